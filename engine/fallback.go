package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/chazu/slotjit/backend"
	"github.com/chazu/slotjit/program"
)

// Fallback sends short chunks to one backend and long chunks to another.
// A chunk is routed once, when first added, and the same backend then
// generates and executes it.
type Fallback struct {
	small     backend.Backend
	large     backend.Backend
	threshold int

	mu     sync.RWMutex
	routes map[program.Key]backend.Backend
}

var _ backend.Backend = (*Fallback)(nil)

// NewFallback returns a dispatcher sending chunks of at most threshold
// instructions to small and the rest to large.
func NewFallback(small, large backend.Backend, threshold int) (*Fallback, error) {
	if threshold < 0 {
		return nil, fmt.Errorf("%w: %d", backend.ErrInvalidThreshold, threshold)
	}
	return &Fallback{
		small:     small,
		large:     large,
		threshold: threshold,
		routes:    make(map[program.Key]backend.Backend),
	}, nil
}

// Name implements backend.Backend.
func (f *Fallback) Name() string { return f.large.Name() + "+fallback" }

// Route returns the backend c is assigned to, assigning it on first use.
func (f *Fallback) Route(c *program.Chunk) backend.Backend {
	k := c.Key()
	f.mu.RLock()
	b, ok := f.routes[k]
	f.mu.RUnlock()
	if ok {
		return b
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if b, ok := f.routes[k]; ok {
		return b
	}
	b = f.large
	if c.Len() <= f.threshold {
		b = f.small
	}
	f.routes[k] = b
	log.Debugf("route %v (%d instructions) to %s", c.Range(), c.Len(), b.Name())
	return b
}

// AddToGeneration implements backend.Backend.
func (f *Fallback) AddToGeneration(c *program.Chunk) error {
	return f.Route(c).AddToGeneration(c)
}

// PerformGeneration implements backend.Backend. Both backends generate;
// their errors are joined.
func (f *Fallback) PerformGeneration(ctx context.Context) error {
	return errors.Join(
		f.small.PerformGeneration(ctx),
		f.large.PerformGeneration(ctx),
	)
}

// Execute implements backend.Backend.
func (f *Fallback) Execute(c *program.Chunk, st *backend.State) error {
	f.mu.RLock()
	b, ok := f.routes[c.Key()]
	f.mu.RUnlock()
	if !ok {
		return backend.NotGenerated(f.Name(), c)
	}
	return b.Execute(c, st)
}

// Diagnostics implements backend.Backend.
func (f *Fallback) Diagnostics() string {
	var parts []string
	for _, b := range []backend.Backend{f.small, f.large} {
		if d := b.Diagnostics(); d != "" {
			parts = append(parts, d)
		}
	}
	return strings.Join(parts, "\n")
}

// Stats implements backend.Backend. Counters of both backends are summed.
func (f *Fallback) Stats() backend.Stats {
	s, l := f.small.Stats(), f.large.Stats()
	return backend.Stats{
		Queued:     s.Queued + l.Queued,
		Generated:  s.Generated + l.Generated,
		Batches:    s.Batches + l.Batches,
		Executions: s.Executions + l.Executions,
		Failures:   s.Failures + l.Failures,
		Cached:     s.Cached + l.Cached,
	}
}

// Close closes whichever of the two backends hold resources.
func (f *Fallback) Close() error {
	return errors.Join(Close(f.small), Close(f.large))
}

// Close releases the resources held by b, if it holds any.
func Close(b backend.Backend) error {
	if c, ok := b.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
