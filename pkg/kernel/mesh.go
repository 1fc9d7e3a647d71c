package kernel

import "math"

// Mesh is a triangle mesh suitable for rendering.
// All arrays are flat: vertices has 3 floats per vertex (x,y,z),
// normals has 3 floats per vertex, indices has 3 uint32s per triangle.
type Mesh struct {
	Vertices []float32 `json:"vertices"` // [x0,y0,z0, x1,y1,z1, ...]
	Normals  []float32 `json:"normals"`  // [nx0,ny0,nz0, ...]
	Indices  []uint32  `json:"indices"`  // [i0,i1,i2, ...] triangles
	Feature  string    `json:"feature"`  // which history feature produced it
}

// VertexCount returns the number of vertices.
func (m *Mesh) VertexCount() int {
	return len(m.Vertices) / 3
}

// TriangleCount returns the number of triangles.
func (m *Mesh) TriangleCount() int {
	return len(m.Indices) / 3
}

// IsEmpty returns true if the mesh has no geometry.
func (m *Mesh) IsEmpty() bool {
	return len(m.Vertices) == 0
}

// Append adds other's triangles to m, offsetting indices.
func (m *Mesh) Append(other *Mesh) {
	base := uint32(m.VertexCount())
	m.Vertices = append(m.Vertices, other.Vertices...)
	m.Normals = append(m.Normals, other.Normals...)
	for _, i := range other.Indices {
		m.Indices = append(m.Indices, base+i)
	}
}

// boxFaces lists each face of a box as four corner selectors and a
// normal. A selector bit picks max (1) or min (0) on x, y, z.
var boxFaces = []struct {
	corners [4]int
	normal  [3]float32
}{
	{[4]int{0, 2, 6, 4}, [3]float32{-1, 0, 0}},
	{[4]int{1, 5, 7, 3}, [3]float32{1, 0, 0}},
	{[4]int{0, 4, 5, 1}, [3]float32{0, -1, 0}},
	{[4]int{2, 3, 7, 6}, [3]float32{0, 1, 0}},
	{[4]int{0, 1, 3, 2}, [3]float32{0, 0, -1}},
	{[4]int{4, 6, 7, 5}, [3]float32{0, 0, 1}},
}

// BoxMesh returns a flat-shaded mesh of the box spanning min to max.
func BoxMesh(min, max [3]float64) *Mesh {
	m := &Mesh{}
	corner := func(sel int) [3]float32 {
		var c [3]float32
		for axis := 0; axis < 3; axis++ {
			if sel&(1<<axis) != 0 {
				c[axis] = float32(max[axis])
			} else {
				c[axis] = float32(min[axis])
			}
		}
		return c
	}
	for _, f := range boxFaces {
		base := uint32(m.VertexCount())
		for _, sel := range f.corners {
			c := corner(sel)
			m.Vertices = append(m.Vertices, c[0], c[1], c[2])
			m.Normals = append(m.Normals, f.normal[0], f.normal[1], f.normal[2])
		}
		m.Indices = append(m.Indices, base, base+1, base+2, base, base+2, base+3)
	}
	return m
}

// VertexNormals generates per-vertex normals by averaging the face normals
// of all triangles incident on each vertex, weighted by triangle area.
func VertexNormals(vertices []float32, indices []uint32) []float32 {
	normals := make([]float32, len(vertices))

	for t := 0; t+2 < len(indices); t += 3 {
		i0, i1, i2 := indices[t], indices[t+1], indices[t+2]

		ax, ay, az := float64(vertices[i0*3]), float64(vertices[i0*3+1]), float64(vertices[i0*3+2])
		bx, by, bz := float64(vertices[i1*3]), float64(vertices[i1*3+1]), float64(vertices[i1*3+2])
		cx, cy, cz := float64(vertices[i2*3]), float64(vertices[i2*3+1]), float64(vertices[i2*3+2])

		e1x, e1y, e1z := bx-ax, by-ay, bz-az
		e2x, e2y, e2z := cx-ax, cy-ay, cz-az

		nx := float32(e1y*e2z - e1z*e2y)
		ny := float32(e1z*e2x - e1x*e2z)
		nz := float32(e1x*e2y - e1y*e2x)

		for _, idx := range []uint32{i0, i1, i2} {
			normals[idx*3+0] += nx
			normals[idx*3+1] += ny
			normals[idx*3+2] += nz
		}
	}

	for i := 0; i+2 < len(normals); i += 3 {
		nx, ny, nz := float64(normals[i]), float64(normals[i+1]), float64(normals[i+2])
		length := math.Sqrt(nx*nx + ny*ny + nz*nz)
		if length > 1e-12 {
			normals[i] = float32(nx / length)
			normals[i+1] = float32(ny / length)
			normals[i+2] = float32(nz / length)
		}
	}
	return normals
}
