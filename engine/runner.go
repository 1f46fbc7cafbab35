package engine

import (
	"context"
	"fmt"

	"github.com/chazu/slotjit/backend"
	"github.com/chazu/slotjit/program"
	"golang.org/x/sync/errgroup"
)

// Runner executes a fixed chunk sequence on one backend. After Prepare,
// passes may run concurrently as long as each owns its state.
type Runner struct {
	Backend backend.Backend
	Chunks  []*program.Chunk
	// Workers bounds concurrent passes in RunAll; zero or less means no
	// bound.
	Workers int
}

// NewRunner partitions p into chunks of at most chunkLen instructions.
func NewRunner(b backend.Backend, p *program.Program, chunkLen int) (*Runner, error) {
	chunks, err := p.Partition(chunkLen)
	if err != nil {
		return nil, err
	}
	return &Runner{Backend: b, Chunks: chunks}, nil
}

// Prepare queues every chunk and performs one generation.
func (r *Runner) Prepare(ctx context.Context) error {
	for _, c := range r.Chunks {
		if err := r.Backend.AddToGeneration(c); err != nil {
			return err
		}
	}
	return r.Backend.PerformGeneration(ctx)
}

// Pass executes the chunks in order against st.
func (r *Runner) Pass(st *backend.State) error {
	for _, c := range r.Chunks {
		if err := r.Backend.Execute(c, st); err != nil {
			return err
		}
	}
	return nil
}

// RunAll executes one pass per state. The first error cancels passes that
// have not started.
func (r *Runner) RunAll(ctx context.Context, states []*backend.State) error {
	g, ctx := errgroup.WithContext(ctx)
	if r.Workers > 0 {
		g.SetLimit(r.Workers)
	}
	for i, st := range states {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := r.Pass(st); err != nil {
				return fmt.Errorf("pass %d: %w", i, err)
			}
			return nil
		})
	}
	return g.Wait()
}
