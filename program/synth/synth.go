// Package synth builds well-formed array-command programs: the fixed
// reference scenario and seeded random programs for demos, benchmarks and
// cross-backend parity checks.
package synth

import (
	"math/rand/v2"

	"github.com/chazu/slotjit/program"
)

// Scenario returns the reference program: read a value, square it and emit
// it only when it equals 5.
func Scenario() []program.ArrayCommand {
	return []program.ArrayCommand{
		program.NextSource(0),
		program.EqualsValue(0, 5),
		program.If(),
		program.MultiplyBy(0, 0),
		program.NextDestination(0),
		program.EndIf(),
	}
}

// Options controls random program generation.
type Options struct {
	Seed     uint64
	Length   int // approximate instruction count
	Slots    int // slots are drawn from [0, Slots)
	Hot      int // the first Hot slots are drawn half of the time
	MaxDepth int // deepest If nesting
}

// DefaultOptions returns options producing a medium-sized nested program.
func DefaultOptions(seed uint64) Options {
	return Options{Seed: seed, Length: 200, Slots: 16, Hot: 4, MaxDepth: 3}
}

type generator struct {
	opts  Options
	rnd   *rand.Rand
	cmds  []program.ArrayCommand
	depth int
	dests int
}

// Generate returns a random well-formed program. The same options always
// produce the same program.
func Generate(opts Options) *program.Program {
	if opts.Slots <= 0 {
		opts.Slots = 1
	}
	if opts.Hot > opts.Slots {
		opts.Hot = opts.Slots
	}
	g := &generator{
		opts: opts,
		rnd:  rand.New(rand.NewPCG(opts.Seed, opts.Seed^0x9e3779b97f4a7c15)),
	}
	for len(g.cmds) < opts.Length {
		g.step()
	}
	for ; g.depth > 0; g.depth-- {
		g.emit(program.EndIf())
	}
	return program.MustNew(g.cmds)
}

func (g *generator) emit(c program.ArrayCommand) {
	g.cmds = append(g.cmds, c)
}

func (g *generator) slot() int {
	if g.opts.Hot > 0 && g.rnd.IntN(2) == 0 {
		return g.rnd.IntN(g.opts.Hot)
	}
	return g.rnd.IntN(g.opts.Slots)
}

func (g *generator) step() {
	switch n := g.rnd.IntN(100); {
	case n < 12:
		g.emit(program.NextSource(g.slot()))
	case n < 20:
		g.emit(program.CopyTo(g.slot(), g.slot()))
	case n < 24:
		g.emit(program.Zero(g.slot()))
	case n < 34:
		g.emit(program.IncrementBy(g.slot(), g.slot()))
	case n < 42:
		g.emit(program.DecrementBy(g.slot(), g.slot()))
	case n < 48:
		g.emit(program.MultiplyBy(g.slot(), g.slot()))
	case n < 58:
		g.emit(program.NextDestination(g.slot()))
		g.dests++
	case n < 62:
		pos := 0
		if g.dests > 0 {
			pos = g.rnd.IntN(g.dests)
		}
		g.emit(program.ReusedDestination(pos, g.slot()))
	case n < 80:
		if g.depth < g.opts.MaxDepth {
			g.predicate()
			g.emit(program.If())
			g.depth++
		} else {
			g.predicate()
		}
	case n < 92:
		if g.depth > 0 {
			g.emit(program.EndIf())
			g.depth--
		}
	case n < 96:
		g.emit(program.Comment())
	default:
		g.emit(program.Blank())
	}
}

func (g *generator) predicate() {
	a, b := g.slot(), g.slot()
	switch g.rnd.IntN(6) {
	case 0:
		g.emit(program.EqualsOtherArrayIndex(a, b))
	case 1:
		g.emit(program.NotEqualsOtherArrayIndex(a, b))
	case 2:
		g.emit(program.GreaterThanOtherArrayIndex(a, b))
	case 3:
		g.emit(program.LessThanOtherArrayIndex(a, b))
	case 4:
		g.emit(program.EqualsValue(a, g.rnd.IntN(5)-1))
	default:
		g.emit(program.NotEqualsValue(a, g.rnd.IntN(5)-1))
	}
}

// Sources returns n small integral source values. Small integers make the
// equality predicates in generated programs take both outcomes.
func Sources(seed uint64, n int) []float64 {
	rnd := rand.New(rand.NewPCG(seed, seed+1))
	out := make([]float64, n)
	for i := range out {
		out[i] = float64(rnd.IntN(7) - 2)
	}
	return out
}
