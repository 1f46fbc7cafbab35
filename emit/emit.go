// Package emit is the in-process compiling backend. Each chunk is lowered
// into a compact stack IL through an emitter with labels and branches, and
// the IL is bound at once into a chain of closures. No source text is
// produced and no external compiler runs.
package emit

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/chazu/slotjit/alloc"
	"github.com/chazu/slotjit/backend"
	"github.com/chazu/slotjit/lower"
	"github.com/chazu/slotjit/program"
	"github.com/tliron/commonlog"
)

// Name is the backend name.
const Name = "emit"

var log = commonlog.GetLogger("slotjit.emit")

// Backend compiles chunks to bound IL.
type Backend struct {
	opts  backend.Options
	alloc alloc.Options
	cache *backend.Cache[*Compiled]

	mu       sync.Mutex
	listings []string
}

var _ backend.Backend = (*Backend)(nil)

// New returns an emitting backend planning locals with allocOpts.
func New(opts backend.Options, allocOpts alloc.Options) (*Backend, error) {
	if err := opts.Check(); err != nil {
		return nil, err
	}
	return &Backend{
		opts:  opts,
		alloc: allocOpts,
		cache: backend.NewCache[*Compiled](),
	}, nil
}

// Name implements backend.Backend.
func (e *Backend) Name() string { return Name }

// Compile lowers and binds c without registering it.
func Compile(c *program.Chunk, allocOpts alloc.Options) (*Compiled, error) {
	plan := alloc.New(c, allocOpts)
	t := newILTarget()
	lower.Walk(c, plan, t)
	if t.err != nil {
		return nil, t.err
	}
	return bind(t.b.Bytes(), plan.NumLocals)
}

// AddToGeneration implements backend.Backend. The chunk is emitted and
// bound immediately.
func (e *Backend) AddToGeneration(c *program.Chunk) error {
	if !e.cache.Queue(c) {
		return nil
	}
	compiled, err := Compile(c, e.alloc)
	if err != nil {
		e.cache.Failed()
		e.cache.Forget(c)
		gerr := &backend.GenerationError{Backend: Name, Range: c.Range(), Err: err}
		log.Errorf("emit %v: %v", c.Range(), err)
		return gerr
	}
	e.cache.Put(c, compiled)
	if e.opts.PreserveSource {
		e.mu.Lock()
		e.listings = append(e.listings, fmt.Sprintf("; %s\n%s", c.Name(), compiled.Listing()))
		e.mu.Unlock()
	}
	return nil
}

// PerformGeneration implements backend.Backend. Chunks were bound when
// added, so this only closes the batch.
func (e *Backend) PerformGeneration(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if n := len(e.cache.Drain()); n > 0 {
		e.cache.Batch()
		log.Debugf("bound %d chunks", n)
	}
	return nil
}

// Execute implements backend.Backend.
func (e *Backend) Execute(c *program.Chunk, st *backend.State) (err error) {
	e.cache.Executed()
	defer func() {
		if err != nil {
			e.cache.Failed()
		}
	}()
	compiled, ok := e.cache.Get(c)
	if !ok {
		return backend.NotGenerated(Name, c)
	}
	defer backend.Recover(Name, c, &err)
	compiled.Run(st)
	return nil
}

// Diagnostics implements backend.Backend. It returns the IL listings of
// every chunk when PreserveSource is set.
func (e *Backend) Diagnostics() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return strings.Join(e.listings, "\n\n")
}

// Stats implements backend.Backend.
func (e *Backend) Stats() backend.Stats { return e.cache.Stats() }
