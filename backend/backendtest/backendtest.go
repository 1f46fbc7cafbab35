// Package backendtest holds helpers shared by the backend test suites:
// running whole passes and comparing execution states bit for bit.
package backendtest

import (
	"context"
	"math"

	"github.com/chazu/slotjit/backend"
	"github.com/chazu/slotjit/program"
	"github.com/google/go-cmp/cmp"
)

// Generate queues every chunk on b and performs one generation.
func Generate(ctx context.Context, b backend.Backend, chunks []*program.Chunk) error {
	for _, c := range chunks {
		if err := b.AddToGeneration(c); err != nil {
			return err
		}
	}
	return b.PerformGeneration(ctx)
}

// Pass executes chunks in order against st.
func Pass(b backend.Backend, chunks []*program.Chunk, st *backend.State) error {
	for _, c := range chunks {
		if err := b.Execute(c, st); err != nil {
			return err
		}
	}
	return nil
}

// Snapshot is the observable result of a pass with floats as raw bits, so
// that comparisons are bit-identical and NaN-safe.
type Snapshot struct {
	Slots        []uint64
	Destinations []uint64
	Cosi, Codi   int
	Cond         bool
	Inactive     int
}

// Take snapshots st.
func Take(st *backend.State) Snapshot {
	return Snapshot{
		Slots:        bits(st.Slots),
		Destinations: bits(st.Destinations),
		Cosi:         st.Cosi,
		Codi:         st.Codi,
		Cond:         st.Cond,
		Inactive:     st.Inactive,
	}
}

// Diff returns a human-readable difference between two states, or "" when
// they are bit-identical.
func Diff(want, got *backend.State) string {
	return cmp.Diff(Take(want), Take(got))
}

func bits(fs []float64) []uint64 {
	out := make([]uint64, len(fs))
	for i, f := range fs {
		out[i] = math.Float64bits(f)
	}
	return out
}
