package history

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/chazu/kerf/pkg/geom"
	"github.com/chazu/kerf/pkg/kernel"
)

// TopologyConfig tunes role correlation between builds.
type TopologyConfig struct {
	// MaxScore is the worst match score still accepted. A score sums the
	// centroid distance relative to the model size, the relative measure
	// difference and the normal disagreement, each in [0, 1] for
	// reasonable matches.
	MaxScore float64 `toml:"max_score" json:"maxScore"`
}

// DefaultTopologyConfig returns the default correlation settings.
func DefaultTopologyConfig() TopologyConfig {
	return TopologyConfig{MaxScore: 1.0}
}

// Role is a parsed logical role name such as "face/start" or "edge/7".
type Role struct {
	Kind kernel.ElementKind
	Name string
}

func (r Role) String() string { return r.Kind.String() + "/" + r.Name }

// ParseRole parses "<face|edge>/<name>".
func ParseRole(s string) (Role, error) {
	kind, name, ok := strings.Cut(s, "/")
	if !ok || name == "" {
		return Role{}, fmt.Errorf("role %q is not <kind>/<name>", s)
	}
	k, err := kernel.ParseElementKind(kind)
	if err != nil {
		return Role{}, fmt.Errorf("role %q: %w", s, err)
	}
	return Role{Kind: k, Name: name}, nil
}

// Entry is a role resolved against one build: the kernel-native index and
// the geometric signature used to find it again next time.
type Entry struct {
	Role     string             `json:"role"`
	Kind     kernel.ElementKind `json:"kind"`
	Index    int                `json:"index"`
	Centroid geom.Vec3          `json:"centroid"`
	Measure  float64            `json:"measure"`
	Normal   geom.Vec3          `json:"normal"`
}

func entryOf(role string, e kernel.Element) Entry {
	return Entry{
		Role:     role,
		Kind:     e.Kind,
		Index:    e.Index,
		Centroid: e.Centroid,
		Measure:  e.Measure,
		Normal:   e.Normal,
	}
}

// Table maps logical roles to kernel-native indices for one build.
type Table struct {
	entries map[string]Entry
	// next numbers fresh roles per kind. It only grows, so a dropped role
	// name is never handed to a different element.
	next map[kernel.ElementKind]int
}

func newTable() *Table {
	return &Table{
		entries: make(map[string]Entry),
		next:    make(map[kernel.ElementKind]int),
	}
}

// Resolve looks up a role.
func (t *Table) Resolve(role string) (Entry, bool) {
	if t == nil {
		return Entry{}, false
	}
	e, ok := t.entries[role]
	return e, ok
}

// RoleOf returns the role bound to a kernel-native index.
func (t *Table) RoleOf(kind kernel.ElementKind, index int) (string, bool) {
	if t == nil {
		return "", false
	}
	for r, e := range t.entries {
		if e.Kind == kind && e.Index == index {
			return r, true
		}
	}
	return "", false
}

// Roles returns every role, faces first, in natural order.
func (t *Table) Roles() []string {
	if t == nil {
		return nil
	}
	roles := make([]string, 0, len(t.entries))
	for r := range t.entries {
		roles = append(roles, r)
	}
	sort.Slice(roles, func(i, j int) bool { return roleLess(roles[i], roles[j]) })
	return roles
}

// Len returns the number of roles.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.entries)
}

// roleLess orders faces before edges and numbered roles numerically.
func roleLess(a, b string) bool {
	ra, errA := ParseRole(a)
	rb, errB := ParseRole(b)
	if errA != nil || errB != nil {
		return a < b
	}
	if ra.Kind != rb.Kind {
		return ra.Kind < rb.Kind
	}
	na, errA := strconv.Atoi(ra.Name)
	nb, errB := strconv.Atoi(rb.Name)
	switch {
	case errA == nil && errB == nil:
		return na < nb
	case errA == nil:
		return false
	case errB == nil:
		return true
	}
	return ra.Name < rb.Name
}

// fresh returns the next unused numbered role for kind.
func (t *Table) fresh(kind kernel.ElementKind) string {
	for {
		n := t.next[kind]
		t.next[kind] = n + 1
		r := Role{Kind: kind, Name: strconv.Itoa(n)}.String()
		if _, taken := t.entries[r]; !taken {
			return r
		}
	}
}

// correlate builds the role table of a new build. Roles of prev are
// matched to same-kind elements greedily by ascending score, ties going
// to the lowest native index; roles without a match under cfg.MaxScore
// are dropped. Elements left over get fresh roles, or the cap roles
// face/start and face/end when useTags is set and the kernel tagged them.
func correlate(prev *Table, topo kernel.Topology, cfg TopologyConfig, useTags bool) *Table {
	t := newTable()
	if prev != nil {
		for k, n := range prev.next {
			t.next[k] = n
		}
	}

	scale := modelScale(prev, topo)
	for _, kind := range []kernel.ElementKind{kernel.Face, kernel.Edge} {
		elems := topo.Elements(kind)
		taken := make([]bool, len(elems))

		if prev != nil {
			type pair struct {
				role  string
				elem  int
				score float64
			}
			var pairs []pair
			for role, e := range prev.entries {
				if e.Kind != kind {
					continue
				}
				for i, el := range elems {
					if s := score(e, el, scale); s <= cfg.MaxScore {
						pairs = append(pairs, pair{role, i, s})
					}
				}
			}
			sort.Slice(pairs, func(i, j int) bool {
				a, b := pairs[i], pairs[j]
				if a.score != b.score {
					return a.score < b.score
				}
				if elems[a.elem].Index != elems[b.elem].Index {
					return elems[a.elem].Index < elems[b.elem].Index
				}
				return a.role < b.role
			})
			for _, p := range pairs {
				if taken[p.elem] {
					continue
				}
				if _, done := t.entries[p.role]; done {
					continue
				}
				taken[p.elem] = true
				t.entries[p.role] = entryOf(p.role, elems[p.elem])
			}
		}

		for i, el := range elems {
			if taken[i] {
				continue
			}
			role := ""
			if useTags && el.Tag != "" {
				r := Role{Kind: kind, Name: el.Tag}.String()
				if _, exists := t.entries[r]; !exists {
					role = r
				}
			}
			if role == "" {
				role = t.fresh(kind)
			}
			t.entries[role] = entryOf(role, el)
		}
	}
	return t
}

// score measures how well element el matches the recorded entry e.
// Zero is a perfect match.
func score(e Entry, el kernel.Element, scale float64) float64 {
	s := e.Centroid.Dist(el.Centroid) / scale

	if m := math.Max(e.Measure, el.Measure); m > geom.Epsilon {
		s += math.Abs(e.Measure-el.Measure) / m
	}

	dot := e.Normal.Normalize().Dot(el.Normal.Normalize())
	if e.Kind == kernel.Edge {
		// Edge directions carry no orientation.
		s += 1 - math.Abs(dot)
	} else {
		s += (1 - dot) / 2
	}
	return s
}

// modelScale is the diagonal of the box around every centroid involved.
func modelScale(prev *Table, topo kernel.Topology) float64 {
	var pts []geom.Vec3
	if prev != nil {
		for _, e := range prev.entries {
			pts = append(pts, e.Centroid)
		}
	}
	for _, e := range topo.Faces {
		pts = append(pts, e.Centroid)
	}
	for _, e := range topo.Edges {
		pts = append(pts, e.Centroid)
	}
	min, max := kernel.Bounds(pts)
	d := geom.Vec3{X: max[0] - min[0], Y: max[1] - min[1], Z: max[2] - min[2]}.Len()
	return math.Max(d, 1e-9)
}

// planeOnFace derives a sketch plane from a planar face: its normal is
// the face normal and its origin the projection of the world origin onto
// the face, so local coordinates line up with the world axes where
// possible.
func planeOnFace(e Entry) (geom.Plane, error) {
	n := e.Normal.Normalize()
	if n.IsZero() {
		return geom.Plane{}, fmt.Errorf("face %s has no normal", e.Role)
	}
	origin := n.Scale(e.Centroid.Dot(n))
	hint := geom.XAxis
	if math.Abs(n.Dot(hint)) > 0.9 {
		hint = geom.YAxis
	}
	return geom.NewPlane(origin, n, hint)
}
