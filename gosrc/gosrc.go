// Package gosrc is the source-compiling backend. Pending chunks are rendered
// as Go functions into one file, type-checked in memory, built into a plugin
// with the go command and bound by symbol name.
package gosrc

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/chazu/slotjit/alloc"
	"github.com/chazu/slotjit/backend"
	"github.com/chazu/slotjit/buildcache"
	"github.com/chazu/slotjit/program"
	"github.com/google/uuid"
	"github.com/tliron/commonlog"
)

// Name is the backend name.
const Name = "gosrc"

var log = commonlog.GetLogger("slotjit.gosrc")

// Config locates the toolchain and the build outputs.
type Config struct {
	// BuildDir holds one subdirectory per batch. Empty means a directory
	// under os.TempDir.
	BuildDir string
	// CacheDB is the build index. Empty disables the persistent cache.
	CacheDB string
	// Go is the go command. Empty means "go" on PATH.
	Go string
}

// Backend compiles chunks to plugin functions.
type Backend struct {
	opts  backend.Options
	alloc alloc.Options
	dir   string
	tc    Toolchain
	cache *backend.Cache[chunkFunc]
	index *buildcache.Cache

	mu        sync.Mutex
	loaded    map[string]chunkFunc // by symbol, across batches
	sources   []string
	goVersion string
}

var _ backend.Backend = (*Backend)(nil)

// New returns a plugin backend. Opening the build index is the only work
// done up front; the toolchain is first used by PerformGeneration.
func New(opts backend.Options, allocOpts alloc.Options, cfg Config) (*Backend, error) {
	if err := opts.Check(); err != nil {
		return nil, err
	}
	b := &Backend{
		opts:   opts,
		alloc:  allocOpts,
		dir:    cfg.BuildDir,
		tc:     Toolchain{Go: cfg.Go},
		cache:  backend.NewCache[chunkFunc](),
		loaded: make(map[string]chunkFunc),
	}
	if b.dir == "" {
		b.dir = filepath.Join(os.TempDir(), "slotjit-plugins")
	}
	if cfg.CacheDB != "" {
		index, err := buildcache.Open(cfg.CacheDB)
		if err != nil {
			return nil, err
		}
		b.index = index
	}
	return b, nil
}

// Close releases the build index. Loaded plugins stay mapped.
func (b *Backend) Close() error {
	if b.index != nil {
		return b.index.Close()
	}
	return nil
}

// Name implements backend.Backend.
func (b *Backend) Name() string { return Name }

// AddToGeneration implements backend.Backend.
func (b *Backend) AddToGeneration(c *program.Chunk) error {
	b.cache.Queue(c)
	return nil
}

// PerformGeneration implements backend.Backend. Every pending chunk is
// built in one plugin. On failure the batch's chunks are unqueued and one
// GenerationError per affected chunk is returned, joined.
func (b *Backend) PerformGeneration(ctx context.Context) error {
	pending := b.cache.Drain()
	if len(pending) == 0 {
		return ctx.Err()
	}

	// Chunks whose content was built by an earlier batch bind directly.
	var build []*program.Chunk
	b.mu.Lock()
	for _, c := range pending {
		if fn, ok := b.loaded[FuncName(c)]; ok {
			b.cache.Put(c, fn)
			continue
		}
		build = append(build, c)
	}
	b.mu.Unlock()
	if len(build) == 0 {
		b.cache.Batch()
		return nil
	}

	batch := uuid.NewString()
	start := time.Now()

	source, err := Render(build, b.alloc)
	if err != nil {
		var rerr *RenderError
		if errors.As(err, &rerr) {
			return b.fail(build, "", err, func(c *program.Chunk) bool { return c.Range() == rerr.Range })
		}
		return b.fail(build, "", err, nil)
	}

	if errs := NewValidator("chunks.go").Validate(source); len(errs) > 0 {
		failing := FailingFunctions(errs)
		err := fmt.Errorf("generated source does not type-check:\n%s", FormatValidationErrors(errs))
		var only func(*program.Chunk) bool
		if len(failing) > 0 {
			only = func(c *program.Chunk) bool { return failing[FuncName(c)] }
		}
		return b.fail(build, source, err, only)
	}

	path, err := b.plugin(ctx, batch, source, len(build))
	if err != nil {
		return b.fail(build, source, err, nil)
	}

	names := make([]string, 0, len(build))
	for _, c := range build {
		names = append(names, FuncName(c))
	}
	funcs, err := Load(path, names)
	if err != nil {
		return b.fail(build, source, err, nil)
	}

	b.mu.Lock()
	for name, fn := range funcs {
		b.loaded[name] = fn
	}
	if b.opts.PreserveSource {
		b.sources = append(b.sources, source)
	}
	b.mu.Unlock()
	for _, c := range build {
		b.cache.Put(c, funcs[FuncName(c)])
	}
	b.cache.Batch()

	if m := commonlog.NewInfoMessage(0, "slotjit", "gosrc"); m != nil {
		commonlog.SetMessageKeysAndValues(m.Set("_message", "generated batch"),
			"batch", batch, "chunks", len(build), "elapsed", time.Since(start))
		m.Send()
	}
	return nil
}

// plugin returns the path of a plugin built from source, reusing an indexed
// build when one exists for the same source and toolchain.
func (b *Backend) plugin(ctx context.Context, batch, source string, chunks int) (string, error) {
	sum := sha256.Sum256([]byte(source))
	hash := hex.EncodeToString(sum[:])

	var version string
	if b.index != nil {
		v, err := b.toolchainVersion(ctx)
		if err != nil {
			return "", err
		}
		version = v
		entry, err := b.index.Get(hash, version)
		if err == nil {
			log.Debugf("build cache hit %s (batch %s)", hash[:12], entry.Batch)
			return entry.Path, nil
		}
		if !errors.Is(err, buildcache.ErrNotFound) {
			log.Warningf("build cache: %v", err)
		}
	}

	// Each batch gets its own module path; the runtime refuses to load two
	// plugins with the same path.
	module := "slotjit.gen/b" + strings.ReplaceAll(batch, "-", "")
	path, err := b.tc.Build(ctx, filepath.Join(b.dir, batch), module, source)
	if err != nil {
		return "", err
	}
	log.Debugf("built plugin %s", path)

	if b.index != nil {
		err := b.index.Put(buildcache.Entry{
			Hash:      hash,
			Path:      path,
			Batch:     batch,
			Chunks:    chunks,
			GoVersion: version,
		})
		if err != nil {
			log.Warningf("build cache: %v", err)
		}
	}
	return path, nil
}

func (b *Backend) toolchainVersion(ctx context.Context) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.goVersion == "" {
		v, err := b.tc.Version(ctx)
		if err != nil {
			return "", err
		}
		b.goVersion = v
	}
	return b.goVersion, nil
}

// fail unqueues every chunk of a batch and reports those selected by only
// (all of them when only is nil).
func (b *Backend) fail(chunks []*program.Chunk, source string, err error, only func(*program.Chunk) bool) error {
	if !b.opts.PreserveSource {
		source = ""
	}
	if only != nil && !anyChunk(chunks, only) {
		only = nil
	}
	var errs []error
	for _, c := range chunks {
		b.cache.Forget(c)
		if only != nil && !only(c) {
			continue
		}
		b.cache.Failed()
		errs = append(errs, &backend.GenerationError{
			Backend:        Name,
			Range:          c.Range(),
			Representation: source,
			Err:            err,
		})
	}
	log.Errorf("generation failed for %d chunks: %v", len(chunks), err)
	return errors.Join(errs...)
}

func anyChunk(chunks []*program.Chunk, f func(*program.Chunk) bool) bool {
	for _, c := range chunks {
		if f(c) {
			return true
		}
	}
	return false
}

// Execute implements backend.Backend.
func (b *Backend) Execute(c *program.Chunk, st *backend.State) (err error) {
	b.cache.Executed()
	defer func() {
		if err != nil {
			b.cache.Failed()
		}
	}()
	fn, ok := b.cache.Get(c)
	if !ok {
		return backend.NotGenerated(Name, c)
	}
	defer backend.Recover(Name, c, &err)
	st.Cosi, st.Codi, st.Cond, st.Inactive = fn(
		st.Slots, st.Sources, st.Destinations,
		st.Cosi, st.Codi, st.Cond, st.Inactive,
	)
	return nil
}

// Diagnostics implements backend.Backend. It returns the source of every
// built batch when PreserveSource is set.
func (b *Backend) Diagnostics() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return strings.Join(b.sources, "\n")
}

// Stats implements backend.Backend.
func (b *Backend) Stats() backend.Stats { return b.cache.Stats() }
