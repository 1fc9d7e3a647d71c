// Package ident issues the stable identifiers used for sketches,
// entities, constraints and features.
package ident

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Generator issues fresh identifiers. kind is a short category such as
// "entity" that a generator may fold into the identifier.
type Generator interface {
	Next(kind string) string
}

// UUID issues time-ordered UUIDv7 strings.
type UUID struct{}

// Next implements Generator.
func (UUID) Next(string) string {
	return uuid.Must(uuid.NewV7()).String()
}

// Sequence issues deterministic "<kind>-0001" identifiers, numbered per
// kind. It is safe for concurrent use.
type Sequence struct {
	mu     sync.Mutex
	counts map[string]int
}

// NewSequence returns a Sequence starting at 1 for every kind.
func NewSequence() *Sequence {
	return &Sequence{counts: make(map[string]int)}
}

// Next implements Generator.
func (s *Sequence) Next(kind string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counts[kind]++
	return fmt.Sprintf("%s-%04d", kind, s.counts[kind])
}

// Default is the generator used when none is configured.
var Default Generator = UUID{}

// Short abbreviates a UUID to its first eight characters for log output.
// Other identifiers are already short and come back unchanged.
func Short(id string) string {
	if _, err := uuid.Parse(id); err != nil {
		return id
	}
	return id[:8]
}
