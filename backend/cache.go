package backend

import (
	"sync"
	"sync/atomic"

	"github.com/chazu/slotjit/program"
)

// Stats holds backend counters.
type Stats struct {
	Queued     uint64 // chunks accepted by AddToGeneration
	Generated  uint64 // chunks compiled
	Batches    uint64 // PerformGeneration calls that compiled something
	Executions uint64
	Failures   uint64 // generation and execution errors
	Cached     int    // chunks ready to execute
}

// Cache is the per-instance registry of queued and compiled chunks. The
// zero value is not usable; call NewCache.
type Cache[T any] struct {
	mu      sync.RWMutex
	pending []*program.Chunk
	known   map[program.Key]bool
	ready   map[program.Key]T

	queued     uint64
	generated  uint64
	batches    uint64
	executions uint64
	failures   uint64
}

// NewCache returns an empty cache.
func NewCache[T any]() *Cache[T] {
	return &Cache[T]{
		known: make(map[program.Key]bool),
		ready: make(map[program.Key]T),
	}
}

// Queue records c for the next generation. It reports false when c is
// already queued or compiled.
func (c *Cache[T]) Queue(ch *program.Chunk) bool {
	k := ch.Key()
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.known[k] {
		return false
	}
	c.known[k] = true
	c.pending = append(c.pending, ch)
	atomic.AddUint64(&c.queued, 1)
	return true
}

// Drain removes and returns every queued chunk.
func (c *Cache[T]) Drain() []*program.Chunk {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.pending
	c.pending = nil
	return out
}

// Forget drops ch so a later AddToGeneration can queue it again. Used
// after a failed generation.
func (c *Cache[T]) Forget(ch *program.Chunk) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.known, ch.Key())
}

// Put stores the compiled form of ch.
func (c *Cache[T]) Put(ch *program.Chunk, v T) {
	c.mu.Lock()
	c.ready[ch.Key()] = v
	c.mu.Unlock()
	atomic.AddUint64(&c.generated, 1)
}

// Get returns the compiled form of ch.
func (c *Cache[T]) Get(ch *program.Chunk) (T, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.ready[ch.Key()]
	return v, ok
}

// Batch counts one completed generation batch.
func (c *Cache[T]) Batch() { atomic.AddUint64(&c.batches, 1) }

// Executed counts one Execute call.
func (c *Cache[T]) Executed() { atomic.AddUint64(&c.executions, 1) }

// Failed counts one error.
func (c *Cache[T]) Failed() { atomic.AddUint64(&c.failures, 1) }

// Stats snapshots the counters.
func (c *Cache[T]) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Stats{
		Queued:     atomic.LoadUint64(&c.queued),
		Generated:  atomic.LoadUint64(&c.generated),
		Batches:    atomic.LoadUint64(&c.batches),
		Executions: atomic.LoadUint64(&c.executions),
		Failures:   atomic.LoadUint64(&c.failures),
		Cached:     len(c.ready),
	}
}
