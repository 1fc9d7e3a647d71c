// Package caderr defines the error taxonomy shared by the sketch model,
// the constraint solver, the kernel backends and the rebuild engine.
//
// Every failure surfaced to callers is an *Error carrying a Code. Use
// errors.Is against the package sentinels (ErrInvalidReference, ...) or
// CodeOf to branch on the category; both see through wrapping.
package caderr

import (
	"errors"
	"fmt"
	"strings"
)

// Code categorizes an error.
type Code string

const (
	// InvalidReference indicates an unknown entity, constraint, sketch or
	// feature identifier, or a reference that breaks history ordering.
	InvalidReference Code = "INVALID_REFERENCE"

	// ArityMismatch indicates the supplied references or parameters do not
	// match the kind of constraint, entity or feature.
	ArityMismatch Code = "ARITY_MISMATCH"

	// EntityInUse indicates a removal was rejected because the target is
	// still referenced.
	EntityInUse Code = "ENTITY_IN_USE"

	// ConstraintConflict indicates the solver proved the system
	// over-constrained. IDs lists the implicated constraints.
	ConstraintConflict Code = "CONSTRAINT_CONFLICT"

	// SolverDiverged indicates the iteration budget ran out without
	// convergence. The sketch keeps its pre-solve values.
	SolverDiverged Code = "SOLVER_DIVERGED"

	// UnsupportedOperation indicates the active kernel lacks a capability.
	UnsupportedOperation Code = "UNSUPPORTED_OPERATION"

	// BrokenTopologyReference indicates a logical face or edge role could
	// not be resolved after a rebuild.
	BrokenTopologyReference Code = "BROKEN_TOPOLOGY_REFERENCE"

	// KernelFailure indicates a backend-specific failure such as degenerate
	// geometry.
	KernelFailure Code = "KERNEL_FAILURE"

	// InvalidProfile indicates a sketch has no closed region to build from.
	InvalidProfile Code = "INVALID_PROFILE"

	// Cancelled indicates a rebuild stopped at a cancellation check.
	Cancelled Code = "CANCELLED"
)

// Error is the typed error returned across the modeling core.
type Error struct {
	// Code identifies the error category.
	Code Code

	// Op names the operation that failed (e.g. "AddConstraint").
	Op string

	// Message is a human-readable description.
	Message string

	// IDs lists the identifiers implicated by the error, such as the
	// conflicting constraints or the missing role.
	IDs []string

	// Err is an optional underlying cause.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(string(e.Code))
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if len(e.IDs) > 0 {
		fmt.Fprintf(&b, " [%s]", strings.Join(e.IDs, ", "))
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error with the same Code, so the package sentinels work
// with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// Sentinels for errors.Is.
var (
	ErrInvalidReference        = &Error{Code: InvalidReference}
	ErrArityMismatch           = &Error{Code: ArityMismatch}
	ErrEntityInUse             = &Error{Code: EntityInUse}
	ErrConstraintConflict      = &Error{Code: ConstraintConflict}
	ErrSolverDiverged          = &Error{Code: SolverDiverged}
	ErrUnsupportedOperation    = &Error{Code: UnsupportedOperation}
	ErrBrokenTopologyReference = &Error{Code: BrokenTopologyReference}
	ErrKernelFailure           = &Error{Code: KernelFailure}
	ErrInvalidProfile          = &Error{Code: InvalidProfile}
	ErrCancelled               = &Error{Code: Cancelled}
)

// New creates an *Error with a formatted message.
func New(code Code, op, format string, args ...any) *Error {
	return &Error{Code: code, Op: op, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an *Error around an underlying cause.
func Wrap(code Code, op string, err error) *Error {
	return &Error{Code: code, Op: op, Err: err}
}

// WithIDs returns e after attaching the implicated identifiers.
func (e *Error) WithIDs(ids ...string) *Error {
	e.IDs = append(e.IDs, ids...)
	return e
}

// CodeOf returns the Code of the first *Error in err's chain, or "" if
// there is none.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IDsOf returns the implicated identifiers of the first *Error in err's
// chain.
func IDsOf(err error) []string {
	var e *Error
	if errors.As(err, &e) {
		return e.IDs
	}
	return nil
}

// Has reports whether err's chain contains an *Error with the given code.
func Has(err error, code Code) bool {
	return errors.Is(err, &Error{Code: code})
}
