package caderr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorIsMatchesCode(t *testing.T) {
	err := New(InvalidReference, "RemoveEntity", "unknown entity %q", "e-1")
	wrapped := fmt.Errorf("doc: %w", err)

	assert.ErrorIs(t, wrapped, ErrInvalidReference)
	assert.NotErrorIs(t, wrapped, ErrArityMismatch)
	assert.Equal(t, InvalidReference, CodeOf(wrapped))
	assert.True(t, Has(wrapped, InvalidReference))
}

func TestErrorMessage(t *testing.T) {
	err := New(ConstraintConflict, "Solve", "residual %.1g above tolerance", 0.5).WithIDs("c-1", "c-2")
	assert.Equal(t, "Solve: CONSTRAINT_CONFLICT: residual 0.5 above tolerance [c-1, c-2]", err.Error())
	assert.Equal(t, []string{"c-1", "c-2"}, IDsOf(err))
}

func TestWrapUnwrap(t *testing.T) {
	cause := errors.New("marching cubes failed")
	err := Wrap(KernelFailure, "Extrude", cause)

	assert.ErrorIs(t, err, cause)
	assert.ErrorIs(t, err, ErrKernelFailure)
	assert.Equal(t, "Extrude: KERNEL_FAILURE: marching cubes failed", err.Error())
}

func TestCodeOfPlainError(t *testing.T) {
	assert.Equal(t, Code(""), CodeOf(errors.New("plain")))
	assert.Nil(t, IDsOf(nil))
}

func TestJoinedErrors(t *testing.T) {
	err := errors.Join(
		New(BrokenTopologyReference, "Rebuild", "role face/end missing"),
		New(UnsupportedOperation, "Rebuild", "revolve"),
	)
	assert.ErrorIs(t, err, ErrBrokenTopologyReference)
	assert.ErrorIs(t, err, ErrUnsupportedOperation)
	assert.Equal(t, BrokenTopologyReference, CodeOf(err))
}
