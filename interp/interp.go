// Package interp executes chunks by direct dispatch over the instruction
// sequence. It is the reference semantics the compiling backends are
// tested against and the small-chunk side of the fallback dispatcher.
package interp

import (
	"context"
	"fmt"

	"github.com/chazu/slotjit/backend"
	"github.com/chazu/slotjit/program"
	"github.com/tliron/commonlog"
)

// Name is the backend name.
const Name = "interp"

var log = commonlog.GetLogger("slotjit.interp")

// Interpreter is the interpreting backend. It needs no generation step;
// AddToGeneration only records the chunk for statistics.
type Interpreter struct {
	cache *backend.Cache[struct{}]
}

// New returns an interpreter.
func New(opts backend.Options) (*Interpreter, error) {
	if err := opts.Check(); err != nil {
		return nil, err
	}
	return &Interpreter{cache: backend.NewCache[struct{}]()}, nil
}

// Name implements backend.Backend.
func (in *Interpreter) Name() string { return Name }

// AddToGeneration implements backend.Backend.
func (in *Interpreter) AddToGeneration(c *program.Chunk) error {
	if in.cache.Queue(c) {
		in.cache.Put(c, struct{}{})
	}
	return nil
}

// PerformGeneration implements backend.Backend. It does nothing.
func (in *Interpreter) PerformGeneration(ctx context.Context) error {
	if n := len(in.cache.Drain()); n > 0 {
		log.Debugf("%d chunks interpreted without generation", n)
	}
	return ctx.Err()
}

// Execute implements backend.Backend.
func (in *Interpreter) Execute(c *program.Chunk, st *backend.State) (err error) {
	in.cache.Executed()
	defer func() {
		if err != nil {
			in.cache.Failed()
		}
	}()
	defer backend.Recover(Name, c, &err)
	Run(c, st)
	return nil
}

// Diagnostics implements backend.Backend. The interpreter keeps no
// generated representation.
func (in *Interpreter) Diagnostics() string { return "" }

// Stats implements backend.Backend.
func (in *Interpreter) Stats() backend.Stats { return in.cache.Stats() }

// Run interprets c against st. It panics on out-of-range operands and on
// opcodes it does not know; Execute turns those into errors.
func Run(c *program.Chunk, st *backend.State) {
	p := c.Program()
	layout := c.Layout()
	s := st.Slots

	if layout.EntryOpen > 0 && st.Inactive > len(layout.Leading) {
		advance(st, p.StreamCount(c.Start(), c.End()))
		st.Inactive += layout.ExitOpen - layout.EntryOpen
		return
	}

	pc := c.Start()
	if r, ok := layout.Resume(st.Inactive); ok {
		advance(st, r.Skip)
		pc = r.Close + 1
	}
	st.Inactive = 0

	for pc < c.End() {
		cmd := c.At(pc)
		switch cmd.Op {
		case program.OpZero:
			s[cmd.Index] = 0
		case program.OpCopyTo:
			s[cmd.Index] = s[cmd.SourceIndex]
		case program.OpNextSource:
			s[cmd.Index] = st.Sources[st.Cosi]
			st.Cosi++
		case program.OpMultiplyBy:
			s[cmd.Index] = float64(s[cmd.Index] * s[cmd.SourceIndex])
		case program.OpIncrementBy:
			s[cmd.Index] = float64(s[cmd.Index] + s[cmd.SourceIndex])
		case program.OpDecrementBy:
			s[cmd.Index] = float64(s[cmd.Index] - s[cmd.SourceIndex])
		case program.OpNextDestination:
			st.Destinations[st.Codi] = s[cmd.SourceIndex]
			st.Codi++
		case program.OpReusedDestination:
			st.Destinations[cmd.Index] = float64(st.Destinations[cmd.Index] + s[cmd.SourceIndex])
		case program.OpEqualsOtherArrayIndex:
			st.Cond = s[cmd.Index] == s[cmd.SourceIndex]
		case program.OpNotEqualsOtherArrayIndex:
			st.Cond = s[cmd.Index] != s[cmd.SourceIndex]
		case program.OpGreaterThanOtherArrayIndex:
			st.Cond = s[cmd.Index] > s[cmd.SourceIndex]
		case program.OpLessThanOtherArrayIndex:
			st.Cond = s[cmd.Index] < s[cmd.SourceIndex]
		case program.OpEqualsValue:
			st.Cond = s[cmd.Index] == cmd.Immediate()
		case program.OpNotEqualsValue:
			st.Cond = s[cmd.Index] != cmd.Immediate()
		case program.OpIf:
			if !st.Cond {
				r := layout.Region(pc)
				advance(st, r.Skip)
				if r.Clipped(c.End()) {
					st.Inactive = r.Suspend
				}
				pc = r.Close
			}
		case program.OpEndIf, program.OpComment, program.OpBlank:
		default:
			panic(fmt.Errorf("%w: %v at instruction %d", program.ErrUnsupportedOpcode, cmd.Op, pc))
		}
		pc++
	}
}

func advance(st *backend.State, sk program.Skip) {
	st.Cosi += sk.Sources
	st.Codi += sk.Destinations
}
