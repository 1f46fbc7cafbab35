// Package backend defines the contract every chunk execution strategy
// honors, the execution state they mutate, and the errors they report.
package backend

import (
	"context"
	"errors"
	"fmt"

	"github.com/chazu/slotjit/program"
)

var (
	// ErrNotGenerated means Execute was called on a chunk that was never
	// added to a completed generation.
	ErrNotGenerated = errors.New("chunk was not generated")
	// ErrCheckpointUnsupported is returned by every constructor when the
	// checkpoint option is set.
	ErrCheckpointUnsupported = errors.New("checkpointing is not supported")
	// ErrUnknownKind means a backend kind name is not recognized.
	ErrUnknownKind = errors.New("unknown backend kind")
	// ErrInvalidThreshold means a fallback threshold is negative.
	ErrInvalidThreshold = errors.New("invalid fallback threshold")
)

// Backend compiles and executes chunks. Generation is two-phase: chunks are
// queued with AddToGeneration and compiled together by PerformGeneration.
// After generation, Execute may be called concurrently with distinct
// states.
type Backend interface {
	// Name identifies the backend in errors and logs.
	Name() string
	// AddToGeneration queues c. Adding a chunk that is already queued or
	// generated is a no-op.
	AddToGeneration(c *program.Chunk) error
	// PerformGeneration compiles every queued chunk.
	PerformGeneration(ctx context.Context) error
	// Execute runs c against st.
	Execute(c *program.Chunk, st *State) error
	// Diagnostics returns the retained generated representation, if any.
	Diagnostics() string
	// Stats returns counters describing the backend's work so far.
	Stats() Stats
}

// Options are shared by all backend constructors.
type Options struct {
	// PreserveSource retains the generated representation for Diagnostics
	// and error reports.
	PreserveSource bool
	// Checkpoint requests resumable execution. No backend implements it.
	Checkpoint bool
}

// Check rejects options no backend can honor.
func (o Options) Check() error {
	if o.Checkpoint {
		return ErrCheckpointUnsupported
	}
	return nil
}

// GenerationError reports a chunk that failed to compile.
type GenerationError struct {
	Backend string
	Range   program.Range
	// Representation is the generated source or listing, when retained.
	Representation string
	Err            error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("%s: generating chunk %v: %v", e.Backend, e.Range, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// ExecutionError reports a chunk that failed while running.
type ExecutionError struct {
	Backend string
	Range   program.Range
	Err     error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("%s: executing chunk %v: %v", e.Backend, e.Range, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// NotGenerated builds the error for executing an unknown chunk.
func NotGenerated(name string, c *program.Chunk) error {
	return &ExecutionError{Backend: name, Range: c.Range(), Err: ErrNotGenerated}
}

// Recover converts a panic raised while running c into an ExecutionError
// stored in *err. It must be deferred directly.
func Recover(name string, c *program.Chunk, err *error) {
	r := recover()
	if r == nil {
		return
	}
	cause, ok := r.(error)
	if !ok {
		cause = fmt.Errorf("panic: %v", r)
	}
	*err = &ExecutionError{Backend: name, Range: c.Range(), Err: cause}
}
