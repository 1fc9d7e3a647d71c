//go:build !manifold

// Package manifold is the mesh-boolean backend of kerf. This file is the
// build without the manifold tag: the backend name stays known to config
// and saved documents, but opening it fails so callers can fall back to
// sdfx or nop.
package manifold

import (
	"github.com/chazu/kerf/pkg/caderr"
	"github.com/chazu/kerf/pkg/kernel"
)

// New reports that the manifold backend was not compiled in. The error is
// UnsupportedOperation naming the backend, like any other missing
// capability.
func New() (kernel.Kernel, error) {
	return nil, caderr.New(caderr.UnsupportedOperation, Name,
		"%s backend not compiled in; rebuild kerf with -tags=manifold", Name).WithIDs(Name)
}
