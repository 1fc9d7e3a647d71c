package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chazu/kerf/pkg/geom"
	"github.com/chazu/kerf/pkg/history"
	"github.com/chazu/kerf/pkg/ident"
	"github.com/chazu/kerf/pkg/kernel/nop"
	"github.com/chazu/kerf/pkg/persist"
)

func setupStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "kerf.db"))
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, s.Close()) })
	return s
}

func plate(t *testing.T, thickness float64) *persist.Record {
	t.Helper()
	h := history.New(nop.New(), history.WithIDs(ident.NewSequence()))
	sk := h.CreateSketch("plate", geom.PlaneXY())
	s, err := h.Sketch(sk)
	require.NoError(t, err)
	_, err = s.AddRectangle(0, 0, 20, 10)
	require.NoError(t, err)
	_, err = h.AddFeature(history.Spec{Name: "plate", Params: &history.ExtrudeParams{Sketch: sk, Distance: thickness}})
	require.NoError(t, err)
	return persist.Capture(h)
}

func TestMigrationsApplyOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kerf.db")
	s, err := Open(path)
	require.NoError(t, err)
	v, err := s.SchemaVersion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, v)
	require.NoError(t, s.Close())

	// Reopening must not re-run the ALTER TABLE.
	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()
	v, err = s.SchemaVersion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, v)
}

func TestCommitNumbersRevisions(t *testing.T) {
	ctx := context.Background()
	s := setupStore(t)

	r1, err := s.Commit(ctx, "bracket", "first", plate(t, 2))
	require.NoError(t, err)
	assert.Equal(t, 1, r1.Number)
	assert.Equal(t, persist.Version, r1.Version)
	assert.Equal(t, "nop", r1.Kernel)
	assert.Equal(t, 1, r1.Features)

	r2, err := s.Commit(ctx, "bracket", "thicker", plate(t, 3))
	require.NoError(t, err)
	assert.Equal(t, 2, r2.Number)
	assert.NotEqual(t, r1.Digest, r2.Digest)

	// Same content as the latest revision: nothing new is written.
	again, err := s.Commit(ctx, "bracket", "no-op", plate(t, 3))
	require.NoError(t, err)
	assert.Equal(t, 2, again.Number)
	assert.Equal(t, "thicker", again.Message)

	revs, err := s.List(ctx, "bracket")
	require.NoError(t, err)
	require.Len(t, revs, 2)
	assert.Equal(t, "first", revs[0].Message)
	assert.Equal(t, "thicker", revs[1].Message)
	assert.False(t, revs[1].CreatedAt.IsZero())
}

func TestGetRestoresRecord(t *testing.T) {
	ctx := context.Background()
	s := setupStore(t)

	_, err := s.Commit(ctx, "bracket", "", plate(t, 2))
	require.NoError(t, err)
	_, err = s.Commit(ctx, "bracket", "", plate(t, 5))
	require.NoError(t, err)

	rec, rev, err := s.Get(ctx, "bracket", 0)
	require.NoError(t, err)
	assert.Equal(t, 2, rev.Number)
	assert.InDelta(t, 5, rec.Features[0].Distance, 0)

	rec, rev, err = s.Get(ctx, "bracket", 1)
	require.NoError(t, err)
	assert.Equal(t, 1, rev.Number)
	assert.Equal(t, plate(t, 2), rec)

	h, err := persist.Restore(rec, nop.New())
	require.NoError(t, err)
	_, err = h.Rebuild(ctx)
	require.NoError(t, err)
}

func TestNotFound(t *testing.T) {
	ctx := context.Background()
	s := setupStore(t)

	_, _, err := s.Get(ctx, "ghost", 0)
	assert.True(t, errors.Is(err, ErrNotFound))

	_, err = s.List(ctx, "ghost")
	assert.True(t, errors.Is(err, ErrNotFound))

	assert.True(t, errors.Is(s.Delete(ctx, "ghost"), ErrNotFound))

	_, err = s.Commit(ctx, "", "", plate(t, 1))
	assert.Error(t, err)
}

func TestProjectsAndDelete(t *testing.T) {
	ctx := context.Background()
	s := setupStore(t)

	for _, name := range []string{"washer", "bracket"} {
		_, err := s.Commit(ctx, name, "", plate(t, 1))
		require.NoError(t, err)
	}
	names, err := s.Projects(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"bracket", "washer"}, names)

	require.NoError(t, s.Delete(ctx, "bracket"))
	_, err = s.List(ctx, "bracket")
	assert.True(t, errors.Is(err, ErrNotFound), "revisions go with their project")

	names, err = s.Projects(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"washer"}, names)
}
