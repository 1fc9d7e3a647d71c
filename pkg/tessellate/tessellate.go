// Package tessellate turns the bodies of a rebuilt part into triangle
// meshes using the kernel that built them. One mesh is produced per body.
package tessellate

import (
	"context"
	"fmt"
	"math"

	"github.com/chazu/kerf/pkg/caderr"
	"github.com/chazu/kerf/pkg/document"
	"github.com/chazu/kerf/pkg/history"
	"github.com/chazu/kerf/pkg/kernel"
)

// Tessellate meshes each body with k, in order. Each mesh's Feature is
// the body's feature name; the history names unnamed features after
// their kind and position. The context is checked between bodies.
func Tessellate(ctx context.Context, k kernel.Kernel, bodies []history.Body) ([]*kernel.Mesh, error) {
	if len(bodies) == 0 {
		return nil, nil
	}
	if !k.Capabilities().Has(kernel.CapMesh) {
		return nil, kernel.Unsupported(k.Name(), kernel.CapMesh)
	}

	meshes := make([]*kernel.Mesh, 0, len(bodies))
	for _, b := range bodies {
		if err := ctx.Err(); err != nil {
			return nil, caderr.Wrap(caderr.Cancelled, "Tessellate", err)
		}
		m, err := k.ToMesh(b.Solid)
		if err != nil {
			return nil, fmt.Errorf("tessellate: ToMesh failed for feature %s: %w", b.Feature.Short(), err)
		}
		m.Feature = b.Name
		meshes = append(meshes, m)
	}
	return meshes, nil
}

// Document meshes the current assembly of d. The document stays locked
// while the kernel runs, so no command can release a solid underneath it.
func Document(ctx context.Context, d *document.Document) ([]*kernel.Mesh, error) {
	var meshes []*kernel.Mesh
	err := d.Read(func(h *history.History) error {
		var err error
		meshes, err = Tessellate(ctx, h.Kernel(), h.Assembly())
		return err
	})
	return meshes, err
}

// Merge concatenates meshes into one. The result's Feature is empty.
func Merge(meshes []*kernel.Mesh) *kernel.Mesh {
	out := &kernel.Mesh{}
	for _, m := range meshes {
		out.Append(m)
	}
	return out
}

// Stats summarizes a set of meshes.
type Stats struct {
	Meshes    int        `json:"meshes"`
	Vertices  int        `json:"vertices"`
	Triangles int        `json:"triangles"`
	Min       [3]float64 `json:"min"`
	Max       [3]float64 `json:"max"`
}

// Summarize counts vertices and triangles and bounds every vertex. The
// bounds are zero when there are no vertices.
func Summarize(meshes []*kernel.Mesh) Stats {
	st := Stats{Meshes: len(meshes)}
	lo := [3]float64{math.Inf(1), math.Inf(1), math.Inf(1)}
	hi := [3]float64{math.Inf(-1), math.Inf(-1), math.Inf(-1)}
	for _, m := range meshes {
		st.Vertices += m.VertexCount()
		st.Triangles += m.TriangleCount()
		for i := 0; i+2 < len(m.Vertices); i += 3 {
			for a := 0; a < 3; a++ {
				v := float64(m.Vertices[i+a])
				lo[a] = math.Min(lo[a], v)
				hi[a] = math.Max(hi[a], v)
			}
		}
	}
	if st.Vertices > 0 {
		st.Min, st.Max = lo, hi
	}
	return st
}
