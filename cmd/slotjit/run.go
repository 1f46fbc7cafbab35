package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/chazu/slotjit/backend"
	"github.com/chazu/slotjit/backend/backendtest"
	"github.com/chazu/slotjit/engine"
	"github.com/chazu/slotjit/interp"
	"github.com/chazu/slotjit/manifest"
	"github.com/chazu/slotjit/program"
)

func runCommand(m *manifest.Manifest, args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	kind := fs.String("kind", m.Engine.Kind, "Backend kind: interp, gosrc, emit, gosrc+fallback, emit+fallback")
	threshold := fs.Int("threshold", m.Engine.Threshold, "Longest chunk interpreted by the fallback kinds")
	passes := fs.Int("passes", 1, "Number of passes")
	workers := fs.Int("workers", m.Engine.Workers, "Concurrent passes (0 = unbounded)")
	verify := fs.Bool("verify", false, "Compare every pass with the interpreter")
	timeout := fs.Duration("timeout", 0, "Bound on generation and execution (0 = none)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("run needs one program file")
	}
	if *passes < 1 {
		return fmt.Errorf("passes must be at least 1, got %d", *passes)
	}

	f, p, chunks, err := load(fs.Arg(0))
	if err != nil {
		return err
	}

	cfg := m.EngineConfig()
	cfg.Kind = *kind
	cfg.Threshold = *threshold
	b, err := engine.New(cfg)
	if err != nil {
		return err
	}
	defer engine.Close(b)

	ctx := context.Background()
	if *timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *timeout)
		defer cancel()
	}

	r := &engine.Runner{Backend: b, Chunks: chunks, Workers: *workers}
	start := time.Now()
	if err := r.Prepare(ctx); err != nil {
		return err
	}
	log.Infof("generated %d chunks with %s in %s", len(chunks), b.Name(), time.Since(start))

	initial := backend.NewState(p, f.Sources)
	states := make([]*backend.State, *passes)
	for i := range states {
		states[i] = initial.Clone()
	}
	start = time.Now()
	if err := r.RunAll(ctx, states); err != nil {
		return err
	}
	elapsed := time.Since(start)

	if *verify {
		want := initial.Clone()
		interp.Run(p.Whole(), want)
		for i, st := range states {
			if diff := backendtest.Diff(want, st); diff != "" {
				return fmt.Errorf("pass %d differs from the interpreter (-interp +%s):\n%s", i, b.Name(), diff)
			}
		}
		fmt.Printf("Verified %d passes against the interpreter\n", len(states))
	}

	st := states[len(states)-1]
	s := b.Stats()
	fmt.Printf("Backend:      %s\n", b.Name())
	fmt.Printf("Passes:       %d in %s\n", len(states), elapsed)
	fmt.Printf("Cursors:      cosi=%d codi=%d\n", st.Cosi, st.Codi)
	fmt.Printf("Destinations: %v\n", st.Destinations)
	fmt.Printf("Chunks:       %d generated, %d cached, %d batches\n", s.Generated, s.Cached, s.Batches)
	fmt.Printf("Executions:   %d (%d failures)\n", s.Executions, s.Failures)
	return nil
}

// load reads a program file and builds its chunks.
func load(path string) (*program.File, *program.Program, []*program.Chunk, error) {
	f, err := program.ReadFile(path)
	if err != nil {
		return nil, nil, nil, err
	}
	p, err := f.Program()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("%s: %w", path, err)
	}
	chunks, err := f.ChunksOf(p)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("%s: %w", path, err)
	}
	return f, p, chunks, nil
}
