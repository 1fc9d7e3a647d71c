package ident

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSequenceIsPerKind(t *testing.T) {
	s := NewSequence()
	assert.Equal(t, "entity-0001", s.Next("entity"))
	assert.Equal(t, "entity-0002", s.Next("entity"))
	assert.Equal(t, "feature-0001", s.Next("feature"))
}

func TestUUIDIsVersion7(t *testing.T) {
	id := UUID{}.Next("entity")
	parsed, err := uuid.Parse(id)
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(7), parsed.Version())
	assert.NotEqual(t, id, UUID{}.Next("entity"))
}

func TestShort(t *testing.T) {
	assert.Equal(t, "abc", Short("abc"))
	assert.Equal(t, "feature-0012", Short("feature-0012"))
	assert.Equal(t, "0190c1a4", Short("0190c1a4-7b3e-7c00-8a51-5d2f1e0c9b77"))
}
