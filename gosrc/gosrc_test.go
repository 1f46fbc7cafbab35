package gosrc

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/chazu/slotjit/alloc"
	"github.com/chazu/slotjit/backend"
	"github.com/chazu/slotjit/backend/backendtest"
	"github.com/chazu/slotjit/buildcache"
	"github.com/chazu/slotjit/interp"
	"github.com/chazu/slotjit/program"
	"github.com/chazu/slotjit/program/synth"
)

const probeSource = `package main

func Chunk_probe(s, src, dst []float64, ci, di int, cond bool, inactive int) (int, int, bool, int) {
	return ci + 1, di, cond, inactive
}

func main() {}
`

var (
	probeOnce sync.Once
	probeErr  error
)

// requirePlugins skips the test unless this environment can build a plugin
// and load it into the test binary. Race and coverage builds, missing cgo
// and missing toolchains all fail the probe.
func requirePlugins(t *testing.T) {
	t.Helper()
	if testing.Short() {
		t.Skip("plugin builds are slow")
	}
	probeOnce.Do(func() {
		if _, err := exec.LookPath("go"); err != nil {
			probeErr = err
			return
		}
		dir := filepath.Join(t.TempDir(), "probe")
		path, err := Toolchain{}.Build(context.Background(), dir, "slotjit.gen/probe", probeSource)
		if err != nil {
			probeErr = err
			return
		}
		funcs, err := Load(path, []string{"Chunk_probe"})
		if err != nil {
			probeErr = err
			return
		}
		if ci, _, _, _ := funcs["Chunk_probe"](nil, nil, nil, 1, 0, false, 0); ci != 2 {
			probeErr = fmt.Errorf("probe returned ci=%d", ci)
		}
	})
	if probeErr != nil {
		t.Skipf("plugins unavailable: %v", probeErr)
	}
}

func newBackend(t *testing.T, opts backend.Options, allocOpts alloc.Options, cfg Config) *Backend {
	t.Helper()
	if cfg.BuildDir == "" {
		cfg.BuildDir = t.TempDir()
	}
	b, err := New(opts, allocOpts, cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { b.Close() })
	return b
}

func TestCheckpointRejected(t *testing.T) {
	_, err := New(backend.Options{Checkpoint: true}, alloc.Options{}, Config{})
	if !errors.Is(err, backend.ErrCheckpointUnsupported) {
		t.Errorf("err = %v, want ErrCheckpointUnsupported", err)
	}
}

func TestNotGenerated(t *testing.T) {
	p := program.MustNew(synth.Scenario())
	b := newBackend(t, backend.Options{}, alloc.Options{}, Config{})
	if err := b.AddToGeneration(p.Whole()); err != nil {
		t.Fatal(err)
	}
	// Queued but not generated.
	err := b.Execute(p.Whole(), backend.NewState(p, []float64{5}))
	if !errors.Is(err, backend.ErrNotGenerated) {
		t.Errorf("err = %v, want ErrNotGenerated", err)
	}
}

func TestBuildFailureReportsChunks(t *testing.T) {
	p := synth.Generate(synth.DefaultOptions(4))
	chunks, err := p.Partition(50)
	if err != nil {
		t.Fatal(err)
	}
	b := newBackend(t, backend.Options{PreserveSource: true}, alloc.Options{},
		Config{Go: filepath.Join(t.TempDir(), "no-such-go")})

	err = backendtest.Generate(context.Background(), b, chunks)
	if err == nil {
		t.Fatal("generation with a missing toolchain succeeded")
	}
	var gerr *backend.GenerationError
	if !errors.As(err, &gerr) {
		t.Fatalf("err = %v, want *GenerationError", err)
	}
	if gerr.Backend != Name || !strings.Contains(gerr.Representation, "func Chunk_") {
		t.Errorf("GenerationError = %+v", gerr)
	}
	if got := b.Stats(); got.Failures != uint64(len(chunks)) || got.Cached != 0 {
		t.Errorf("stats = %+v, want %d failures and nothing cached", got, len(chunks))
	}

	// Failed chunks can be queued again.
	if err := b.AddToGeneration(chunks[0]); err != nil {
		t.Fatal(err)
	}
	if got := b.Stats().Queued; got != uint64(len(chunks)+1) {
		t.Errorf("queued = %d, want %d", got, len(chunks)+1)
	}
}

func TestBuildFailureWithoutPreserveSource(t *testing.T) {
	p := program.MustNew(synth.Scenario())
	b := newBackend(t, backend.Options{}, alloc.Options{},
		Config{Go: filepath.Join(t.TempDir(), "no-such-go")})
	err := backendtest.Generate(context.Background(), b, []*program.Chunk{p.Whole()})
	var gerr *backend.GenerationError
	if !errors.As(err, &gerr) {
		t.Fatalf("err = %v, want *GenerationError", err)
	}
	if gerr.Representation != "" {
		t.Errorf("representation retained without PreserveSource")
	}
	if b.Diagnostics() != "" {
		t.Errorf("diagnostics retained without PreserveSource")
	}
}

func TestScenario(t *testing.T) {
	requirePlugins(t)
	p := program.MustNew(synth.Scenario())
	b := newBackend(t, backend.Options{PreserveSource: true}, alloc.Options{}, Config{})
	if err := backendtest.Generate(context.Background(), b, []*program.Chunk{p.Whole()}); err != nil {
		t.Fatal(err)
	}
	for _, tc := range []struct {
		src  float64
		want float64
	}{{5, 25}, {3, 0}} {
		st := backend.NewState(p, []float64{tc.src})
		if err := b.Execute(p.Whole(), st); err != nil {
			t.Fatal(err)
		}
		if st.Destinations[0] != tc.want || st.Cosi != 1 || st.Codi != 1 {
			t.Errorf("source %v: dest=%v cosi=%d codi=%d", tc.src, st.Destinations[0], st.Cosi, st.Codi)
		}
	}
	if !strings.Contains(b.Diagnostics(), FuncName(p.Whole())) {
		t.Errorf("diagnostics missing the chunk function")
	}
}

func TestParityWithInterpreter(t *testing.T) {
	requirePlugins(t)
	ctx := context.Background()
	for _, mode := range allocModes {
		// One backend per mode so batches accumulate in one process.
		b := newBackend(t, backend.Options{}, mode.opts, Config{})
		for seed := uint64(1); seed <= 3; seed++ {
			p := synth.Generate(synth.DefaultOptions(seed))
			sources := synth.Sources(seed, p.SourceCount())
			want := backend.NewState(p, sources)
			interp.Run(p.Whole(), want)

			for _, size := range []int{3, 11, p.Len()} {
				name := fmt.Sprintf("%s/seed%d/%d", mode.name, seed, size)
				chunks, err := p.Partition(size)
				if err != nil {
					t.Fatalf("%s: %v", name, err)
				}
				if err := backendtest.Generate(ctx, b, chunks); err != nil {
					t.Fatalf("%s: %v", name, err)
				}
				got := backend.NewState(p, sources)
				if err := backendtest.Pass(b, chunks, got); err != nil {
					t.Fatalf("%s: %v", name, err)
				}
				if diff := backendtest.Diff(want, got); diff != "" {
					t.Errorf("%s: mismatch (-interp +gosrc):\n%s", name, diff)
				}
			}
		}
	}
}

func TestSharedSymbolsAcrossBatches(t *testing.T) {
	requirePlugins(t)
	ctx := context.Background()
	b := newBackend(t, backend.Options{}, alloc.Options{}, Config{})

	first := program.MustNew(synth.Scenario())
	if err := backendtest.Generate(ctx, b, []*program.Chunk{first.Whole()}); err != nil {
		t.Fatal(err)
	}
	second := program.MustNew(synth.Scenario())
	if err := backendtest.Generate(ctx, b, []*program.Chunk{second.Whole()}); err != nil {
		t.Fatal(err)
	}
	st := backend.NewState(second, []float64{5})
	if err := b.Execute(second.Whole(), st); err != nil {
		t.Fatal(err)
	}
	if st.Destinations[0] != 25 {
		t.Errorf("dest = %v, want 25", st.Destinations[0])
	}
	if got := b.Stats(); got.Batches != 2 || got.Cached != 2 {
		t.Errorf("stats = %+v", got)
	}
}

func TestBuildCacheReusesPlugin(t *testing.T) {
	requirePlugins(t)
	ctx := context.Background()
	dir := t.TempDir()
	cfg := Config{BuildDir: filepath.Join(dir, "builds"), CacheDB: filepath.Join(dir, "index.db")}
	p := synth.Generate(synth.DefaultOptions(9))
	chunks, err := p.Partition(12)
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 2; i++ {
		b := newBackend(t, backend.Options{}, alloc.Options{Reuse: true}, cfg)
		if err := backendtest.Generate(ctx, b, chunks); err != nil {
			t.Fatalf("round %d: %v", i, err)
		}
		st := backend.NewState(p, synth.Sources(9, p.SourceCount()))
		if err := backendtest.Pass(b, chunks, st); err != nil {
			t.Fatalf("round %d: %v", i, err)
		}
	}

	index, err := buildcache.Open(cfg.CacheDB)
	if err != nil {
		t.Fatal(err)
	}
	defer index.Close()
	entries, err := index.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("index has %d builds, want 1 reused build", len(entries))
	}
}

func TestOutOfRangeBecomesError(t *testing.T) {
	requirePlugins(t)
	p := program.MustNew(synth.Scenario())
	b := newBackend(t, backend.Options{}, alloc.Options{}, Config{})
	if err := backendtest.Generate(context.Background(), b, []*program.Chunk{p.Whole()}); err != nil {
		t.Fatal(err)
	}
	err := b.Execute(p.Whole(), backend.NewState(p, nil))
	var ee *backend.ExecutionError
	if !errors.As(err, &ee) || ee.Backend != Name {
		t.Errorf("err = %v, want *ExecutionError", err)
	}
}
