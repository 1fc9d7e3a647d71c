package document

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chazu/kerf/pkg/caderr"
	"github.com/chazu/kerf/pkg/geom"
	"github.com/chazu/kerf/pkg/history"
	"github.com/chazu/kerf/pkg/ident"
	"github.com/chazu/kerf/pkg/kernel/nop"
	"github.com/chazu/kerf/pkg/kernel/sdfx"
	"github.com/chazu/kerf/pkg/sketch"
	"github.com/chazu/kerf/pkg/solver"
)

func newDoc(t *testing.T) *Document {
	t.Helper()
	return New(nop.New(), WithIDs(ident.NewSequence()))
}

// rect draws a constrained rectangle through the document commands.
func rect(t *testing.T, d *Document, x0, y0, x1, y1 float64) sketch.SketchID {
	t.Helper()
	sk := d.CreateSketch("base", geom.PlaneXY())
	require.NotEmpty(t, sk)

	corners := [][2]float64{{x0, y0}, {x1, y0}, {x1, y1}, {x0, y1}}
	var lines [4]sketch.EntityID
	for i := range corners {
		a, b := corners[i], corners[(i+1)%4]
		id, err := d.AddEntity(sk, sketch.Line(a[0], a[1], b[0], b[1]))
		require.NoError(t, err)
		lines[i] = id
	}
	for i := range lines {
		_, err := d.AddConstraint(sk, sketch.Coincident, []sketch.Ref{sketch.EndOf(lines[i]), sketch.StartOf(lines[(i+1)%4])})
		require.NoError(t, err)
	}
	return sk
}

func TestCommandsBuildAPart(t *testing.T) {
	d := newDoc(t)
	sk := rect(t, d, 0, 0, 10, 5)

	pad, err := d.AddFeature(history.Spec{Name: "pad", Params: &history.ExtrudeParams{Sketch: sk, Distance: 2}})
	require.NoError(t, err)

	rep, err := d.Rebuild(context.Background())
	require.NoError(t, err)
	o, ok := rep.Outcome(pad)
	require.True(t, ok)
	assert.Equal(t, history.Rebuilt, o)
	assert.Equal(t, []sketch.SketchID{sk}, rep.Solved)

	bodies := d.Assembly()
	require.Len(t, bodies, 1)
	assert.Equal(t, pad, bodies[0].Feature)

	snap := d.Snapshot()
	assert.Equal(t, "nop", snap.Kernel)
	assert.Equal(t, 1, snap.Rollback)
	fv, ok := snap.Feature(pad)
	require.True(t, ok)
	assert.True(t, fv.Active)
	assert.False(t, fv.Dirty)
	assert.Equal(t, "nop", fv.Built)
	assert.Contains(t, fv.Roles, "face/start")
	require.NotNil(t, snap.Report)
	assert.Equal(t, "rebuilt", snap.Report.Outcomes[string(pad)])

	sv, ok := snap.Sketch(sk)
	require.True(t, ok)
	assert.Len(t, sv.Entities, 4)
	assert.Len(t, sv.Constraints, 4)
	assert.False(t, sv.Stale)
}

func TestSnapshotsAreImmutable(t *testing.T) {
	d := newDoc(t)
	before := d.Snapshot()
	require.NotNil(t, before)
	assert.Empty(t, before.Sketches)

	d.CreateSketch("s", geom.PlaneXY())
	after := d.Snapshot()

	assert.Empty(t, before.Sketches, "an old snapshot must not see later commands")
	assert.Len(t, after.Sketches, 1)
	assert.Greater(t, after.Version, before.Version)
}

func TestFailedCommandKeepsState(t *testing.T) {
	d := newDoc(t)
	sk := d.CreateSketch("s", geom.PlaneXY())

	_, err := d.AddEntity(sk, sketch.Entity{Kind: sketch.KindLine, Params: []float64{1, 2}})
	require.Error(t, err)
	assert.Equal(t, caderr.ArityMismatch, caderr.CodeOf(err))

	_, err = d.AddEntity("missing", sketch.Point(0, 0))
	assert.Equal(t, caderr.InvalidReference, caderr.CodeOf(err))

	_, err = d.AddConstraint(sk, sketch.Distance, nil, 1, 2)
	assert.Equal(t, caderr.ArityMismatch, caderr.CodeOf(err))

	sv, ok := d.Snapshot().Sketch(sk)
	require.True(t, ok)
	assert.Empty(t, sv.Entities)

	err = d.SetKernel(nil)
	assert.Equal(t, caderr.InvalidReference, caderr.CodeOf(err))
	assert.Equal(t, "nop", d.Kernel().Name())
}

func TestSetKernelMarksEverythingDirty(t *testing.T) {
	d := newDoc(t)
	sk := rect(t, d, 0, 0, 4, 4)
	pad, err := d.AddFeature(history.Spec{Params: &history.ExtrudeParams{Sketch: sk, Distance: 1}})
	require.NoError(t, err)
	_, err = d.Rebuild(context.Background())
	require.NoError(t, err)

	require.NoError(t, d.SetKernel(sdfx.New()))
	fv, _ := d.Snapshot().Feature(pad)
	assert.True(t, fv.Dirty)
	assert.Equal(t, "nop", fv.Built)

	_, err = d.Rebuild(context.Background())
	require.NoError(t, err)
	fv, _ = d.Snapshot().Feature(pad)
	assert.Equal(t, "sdfx", fv.Built)
}

func TestRollbackAndDeleteThroughCommands(t *testing.T) {
	d := newDoc(t)
	sk := rect(t, d, 0, 0, 4, 4)
	a, err := d.AddFeature(history.Spec{Params: &history.ExtrudeParams{Sketch: sk, Distance: 1}})
	require.NoError(t, err)
	b, err := d.AddFeature(history.Spec{Params: &history.ExtrudeParams{Sketch: sk, Distance: 2, Op: history.Join, Target: a}})
	require.NoError(t, err)

	err = d.DeleteFeature(a)
	assert.Equal(t, caderr.EntityInUse, caderr.CodeOf(err))

	require.NoError(t, d.SetRollback(1))
	fv, _ := d.Snapshot().Feature(b)
	assert.False(t, fv.Active)

	rep, err := d.Rebuild(context.Background())
	require.NoError(t, err)
	o, _ := rep.Outcome(b)
	assert.Equal(t, history.Suppressed, o)

	require.NoError(t, d.DeleteFeature(b))
	require.NoError(t, d.DeleteFeature(a))
	assert.Empty(t, d.Snapshot().Features)
}

func TestSuppressThroughCommands(t *testing.T) {
	d := newDoc(t)
	sk := rect(t, d, 0, 0, 4, 4)
	a, err := d.AddFeature(history.Spec{Params: &history.ExtrudeParams{Sketch: sk, Distance: 1}})
	require.NoError(t, err)
	b, err := d.AddFeature(history.Spec{Params: &history.ExtrudeParams{Sketch: sk, Distance: 2, Op: history.Join, Target: a}})
	require.NoError(t, err)
	_, err = d.Rebuild(context.Background())
	require.NoError(t, err)

	require.NoError(t, d.SetSuppressed(b, true))
	fv, _ := d.Snapshot().Feature(b)
	assert.True(t, fv.Suppressed)
	assert.False(t, fv.Active)

	rep, err := d.Rebuild(context.Background())
	require.NoError(t, err)
	o, _ := rep.Outcome(b)
	assert.Equal(t, history.Suppressed, o)

	// The join target cannot be switched off while the join consumes it.
	require.NoError(t, d.SetSuppressed(b, false))
	require.NoError(t, d.SetSuppressed(a, true))
	_, err = d.Rebuild(context.Background())
	assert.Equal(t, caderr.InvalidReference, caderr.CodeOf(err))
	assert.Equal(t, "failed", d.Snapshot().Report.Outcomes[string(b)])

	assert.Equal(t, caderr.InvalidReference, caderr.CodeOf(d.SetSuppressed("ghost", true)))
}

func TestEditFeatureAndSolve(t *testing.T) {
	d := newDoc(t)
	sk := rect(t, d, 0, 0, 4, 4)
	pad, err := d.AddFeature(history.Spec{Params: &history.ExtrudeParams{Sketch: sk, Distance: 1}})
	require.NoError(t, err)

	res, err := d.Solve(sk)
	require.NoError(t, err)
	assert.Equal(t, solver.UnderConstrained, res.Status)
	assert.Positive(t, res.DOF)

	require.NoError(t, d.EditFeature(pad, &history.ExtrudeParams{Sketch: sk, Distance: 3}))
	_, err = d.Rebuild(context.Background())
	require.NoError(t, err)

	var zmax float64
	require.NoError(t, d.Read(func(h *history.History) error {
		f, err := h.Feature(pad)
		if err != nil {
			return err
		}
		_, hi := f.Output().Solid.BoundingBox()
		zmax = hi[2]
		return nil
	}))
	assert.InDelta(t, 3, zmax, 1e-9)
}

func TestConcurrentReadersSeeConsistentSnapshots(t *testing.T) {
	d := newDoc(t)
	sk := d.CreateSketch("s", geom.PlaneXY())

	var wg sync.WaitGroup
	stop := make(chan struct{})
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				snap := d.Snapshot()
				for _, s := range snap.Sketches {
					_ = len(s.Entities)
				}
			}
		}()
	}

	for i := range 50 {
		_, err := d.AddEntity(sk, sketch.Point(float64(i), 0))
		require.NoError(t, err)
	}
	close(stop)
	wg.Wait()

	sv, _ := d.Snapshot().Sketch(sk)
	assert.Len(t, sv.Entities, 50)
}
