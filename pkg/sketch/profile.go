package sketch

import (
	"math"
	"sort"

	"github.com/chazu/kerf/pkg/caderr"
	"github.com/chazu/kerf/pkg/geom"
)

// DefaultArcSegments is the number of segments used to discretize a full
// circle when extracting profiles.
const DefaultArcSegments = 64

// Region is a closed area of the sketch in local coordinates: a
// counter-clockwise outer loop and any counter-clockwise holes inside it.
type Region struct {
	Outer []geom.Vec2
	Holes [][]geom.Vec2
}

// Area returns the outer area minus the hole areas.
func (r Region) Area() float64 {
	a := geom.PolygonArea(r.Outer)
	for _, h := range r.Holes {
		a -= geom.PolygonArea(h)
	}
	return a
}

// segment is a non-construction curve with its endpoints and a polyline
// running from start to end.
type segment struct {
	id         EntityID
	start, end geom.Vec2
	points     []geom.Vec2
}

// Regions extracts the closed regions formed by non-construction
// geometry. Circles form loops on their own; lines and arcs are chained
// end to start within tol. Open chains are ignored. Loops nested inside
// another loop become holes of the innermost enclosing outer loop, with
// alternating nesting depth deciding outer versus hole.
func (s *Sketch) Regions(tol float64, arcSegments int) ([]Region, error) {
	if arcSegments < 8 {
		arcSegments = DefaultArcSegments
	}

	var loops [][]geom.Vec2
	var segs []*segment
	for _, e := range s.entities {
		if e.Construction {
			continue
		}
		switch e.Kind {
		case KindCircle:
			c := geom.Vec2{X: e.Params[0], Y: e.Params[1]}
			loops = append(loops, arcPoints(c, e.Params[2], 0, 2*math.Pi, arcSegments, false))
		case KindLine:
			a := geom.Vec2{X: e.Params[0], Y: e.Params[1]}
			b := geom.Vec2{X: e.Params[2], Y: e.Params[3]}
			if a.Near(b, tol) {
				continue
			}
			segs = append(segs, &segment{id: e.ID, start: a, end: b, points: []geom.Vec2{a, b}})
		case KindArc:
			c := geom.Vec2{X: e.Params[0], Y: e.Params[1]}
			sweep := arcSweep(e.Params[3], e.Params[4])
			n := int(math.Ceil(sweep / (2 * math.Pi) * float64(arcSegments)))
			if n < 2 {
				n = 2
			}
			pts := arcPoints(c, e.Params[2], e.Params[3], sweep, n, true)
			segs = append(segs, &segment{id: e.ID, start: pts[0], end: pts[len(pts)-1], points: pts})
		}
	}

	loops = append(loops, chainLoops(segs, tol)...)

	var valid [][]geom.Vec2
	for _, l := range loops {
		if len(l) < 3 || math.Abs(geom.PolygonArea(l)) < tol*tol {
			continue
		}
		if geom.PolygonArea(l) < 0 {
			reverse(l)
		}
		valid = append(valid, l)
	}
	if len(valid) == 0 {
		return nil, caderr.New(caderr.InvalidProfile, "Regions", "sketch %s has no closed profile", s.ID)
	}
	return nest(valid), nil
}

// arcSweep returns the counter-clockwise sweep from a0 to a1 in (0, 2π].
func arcSweep(a0, a1 float64) float64 {
	sweep := math.Mod(a1-a0, 2*math.Pi)
	if sweep <= 0 {
		sweep += 2 * math.Pi
	}
	return sweep
}

// arcPoints samples n segments of an arc. When inclusive is false the
// final point (equal to the first for a full circle) is omitted.
func arcPoints(c geom.Vec2, r, a0, sweep float64, n int, inclusive bool) []geom.Vec2 {
	count := n
	if inclusive {
		count = n + 1
	}
	pts := make([]geom.Vec2, 0, count)
	for i := 0; i < count; i++ {
		a := a0 + sweep*float64(i)/float64(n)
		pts = append(pts, geom.Vec2{X: c.X + r*math.Cos(a), Y: c.Y + r*math.Sin(a)})
	}
	return pts
}

// chainLoops joins segments into closed loops. Segments are consumed in
// entity order; a segment may be traversed backwards.
func chainLoops(segs []*segment, tol float64) [][]geom.Vec2 {
	used := make([]bool, len(segs))
	var loops [][]geom.Vec2

	for i, first := range segs {
		if used[i] {
			continue
		}
		used[i] = true
		chain := append([]geom.Vec2(nil), first.points...)
		start := first.start
		cur := first.end
		closed := cur.Near(start, tol)

		for !closed {
			next := -1
			reversed := false
			for j, sg := range segs {
				if used[j] {
					continue
				}
				if sg.start.Near(cur, tol) {
					next = j
					break
				}
				if sg.end.Near(cur, tol) {
					next, reversed = j, true
					break
				}
			}
			if next < 0 {
				break
			}
			used[next] = true
			pts := append([]geom.Vec2(nil), segs[next].points...)
			if reversed {
				reverse(pts)
			}
			chain = append(chain, pts[1:]...)
			cur = pts[len(pts)-1]
			closed = cur.Near(start, tol)
		}

		if closed {
			loops = append(loops, chain[:len(chain)-1])
		}
	}
	return loops
}

// nest groups loops into regions by containment depth.
func nest(loops [][]geom.Vec2) []Region {
	sort.SliceStable(loops, func(i, j int) bool {
		return math.Abs(geom.PolygonArea(loops[i])) > math.Abs(geom.PolygonArea(loops[j]))
	})

	depth := make([]int, len(loops))
	parent := make([]int, len(loops))
	for i := range loops {
		parent[i] = -1
		for j := 0; j < i; j++ {
			if geom.PointInPolygon(loops[i][0], loops[j]) {
				depth[i]++
				parent[i] = j // loops are sorted, so the last container is the innermost
			}
		}
	}

	var regions []Region
	regionOf := make(map[int]int)
	for i, l := range loops {
		if depth[i]%2 == 0 {
			regionOf[i] = len(regions)
			regions = append(regions, Region{Outer: l})
		}
	}
	for i, l := range loops {
		if depth[i]%2 == 1 {
			r := regionOf[parent[i]]
			regions[r].Holes = append(regions[r].Holes, l)
		}
	}
	return regions
}

func reverse(pts []geom.Vec2) {
	for i, j := 0, len(pts)-1; i < j; i, j = i+1, j-1 {
		pts[i], pts[j] = pts[j], pts[i]
	}
}
