// Package program holds the array-command model shared by every backend:
// opcodes, programs, the branch skip analysis and chunk layouts.
package program

import (
	"errors"
	"fmt"
)

var (
	// ErrUnmatchedIf means an If has no EndIf anywhere after it.
	ErrUnmatchedIf = errors.New("program: If without matching EndIf")
	// ErrUnmatchedEndIf means an EndIf was found with no open If.
	ErrUnmatchedEndIf = errors.New("program: EndIf without open If")
	// ErrUnsupportedOpcode means an instruction carries an unknown opcode.
	ErrUnsupportedOpcode = errors.New("program: unsupported opcode")
	// ErrBadOperand means a slot or destination operand is negative.
	ErrBadOperand = errors.New("program: bad operand")
)

// Skip is the number of stream-advancing instructions inside a region.
// A false branch advances the cursors by these counts instead of running
// the region.
type Skip struct {
	Sources      int
	Destinations int
}

// IsZero reports whether the skip moves neither cursor.
func (s Skip) IsZero() bool {
	return s.Sources == 0 && s.Destinations == 0
}

// Program is an immutable, validated instruction sequence together with
// its branch skip analysis.
type Program struct {
	commands []ArrayCommand

	match []int  // If -> EndIf, EndIf -> If, otherwise -1
	skips []Skip // per If: stream instructions nested inside it

	// stream prefix counts: prefix[i] counts instructions in [0, i)
	srcPrefix []int
	dstPrefix []int
	// openAt[i] is the number of Ifs still open before instruction i
	openAt []int

	slotCount int
	destCount int
	maxDepth  int
}

// New validates commands and runs the skip analysis. The slice is copied.
// A sequence with an unclosed If or a stray EndIf is rejected.
func New(commands []ArrayCommand) (*Program, error) {
	p := &Program{
		commands:  append([]ArrayCommand(nil), commands...),
		match:     make([]int, len(commands)),
		skips:     make([]Skip, len(commands)),
		srcPrefix: make([]int, len(commands)+1),
		dstPrefix: make([]int, len(commands)+1),
		openAt:    make([]int, len(commands)+1),
	}
	if err := p.analyze(); err != nil {
		return nil, err
	}
	return p, nil
}

// MustNew is like New but panics on error. Intended for tests and fixed
// programs.
func MustNew(commands []ArrayCommand) *Program {
	p, err := New(commands)
	if err != nil {
		panic(err)
	}
	return p
}

func (p *Program) analyze() error {
	// open holds the indices of the Ifs enclosing the current instruction.
	var open []int
	for i, cmd := range p.commands {
		p.match[i] = -1
		if !cmd.Op.Valid() {
			return fmt.Errorf("%w: %d at instruction %d", ErrUnsupportedOpcode, byte(cmd.Op), i)
		}
		if err := p.checkOperands(i, cmd); err != nil {
			return err
		}

		info := cmd.Op.Info()
		p.srcPrefix[i+1] = p.srcPrefix[i]
		p.dstPrefix[i+1] = p.dstPrefix[i]
		if info.ReadsSource {
			p.srcPrefix[i+1]++
			for _, at := range open {
				p.skips[at].Sources++
			}
		}
		if info.WritesDest {
			p.dstPrefix[i+1]++
			for _, at := range open {
				p.skips[at].Destinations++
			}
		}

		switch cmd.Op {
		case OpIf:
			open = append(open, i)
			if len(open) > p.maxDepth {
				p.maxDepth = len(open)
			}
		case OpEndIf:
			if len(open) == 0 {
				return fmt.Errorf("%w at instruction %d", ErrUnmatchedEndIf, i)
			}
			at := open[len(open)-1]
			open = open[:len(open)-1]
			p.match[at] = i
			p.match[i] = at
		}
		p.openAt[i+1] = len(open)
	}
	if len(open) > 0 {
		return fmt.Errorf("%w at instruction %d", ErrUnmatchedIf, open[len(open)-1])
	}
	return nil
}

func (p *Program) checkOperands(i int, cmd ArrayCommand) error {
	info := cmd.Op.Info()
	if info.IndexIsSlot() || info.IndexIsDestination() {
		if cmd.Index < 0 {
			return fmt.Errorf("%w: %v at instruction %d", ErrBadOperand, cmd, i)
		}
	}
	if info.IndexIsSlot() && cmd.Index >= p.slotCount {
		p.slotCount = cmd.Index + 1
	}
	if info.IndexIsDestination() && cmd.Index >= p.destCount {
		p.destCount = cmd.Index + 1
	}
	if info.SourceIsSlot() {
		if cmd.SourceIndex < 0 {
			return fmt.Errorf("%w: %v at instruction %d", ErrBadOperand, cmd, i)
		}
		if cmd.SourceIndex >= p.slotCount {
			p.slotCount = cmd.SourceIndex + 1
		}
	}
	return nil
}

// Len returns the number of instructions.
func (p *Program) Len() int { return len(p.commands) }

// At returns instruction i.
func (p *Program) At(i int) ArrayCommand { return p.commands[i] }

// Commands returns a copy of the instruction sequence.
func (p *Program) Commands() []ArrayCommand {
	return append([]ArrayCommand(nil), p.commands...)
}

// SlotCount is one past the highest slot referenced.
func (p *Program) SlotCount() int { return p.slotCount }

// SourceCount is the number of source values one full pass consumes.
func (p *Program) SourceCount() int { return p.srcPrefix[len(p.commands)] }

// DestinationCount is the size a destinations buffer needs for a full pass.
func (p *Program) DestinationCount() int {
	if n := p.dstPrefix[len(p.commands)]; n > p.destCount {
		return n
	}
	return p.destCount
}

// OpenAt returns the number of regions open just before instruction i.
// OpenAt(Len()) is always zero for a valid program.
func (p *Program) OpenAt(i int) int { return p.openAt[i] }

// MaxDepth is the deepest If nesting in the program.
func (p *Program) MaxDepth() int { return p.maxDepth }

// Match returns the EndIf closing the If at i (or the If opened by the
// EndIf at i). It returns -1 for other instructions.
func (p *Program) Match(i int) int { return p.match[i] }

// SkipOf returns the skip counts of the whole region opened by the If at i.
func (p *Program) SkipOf(i int) Skip { return p.skips[i] }

// StreamCount counts the stream-advancing instructions in [start, end).
func (p *Program) StreamCount(start, end int) Skip {
	return Skip{
		Sources:      p.srcPrefix[end] - p.srcPrefix[start],
		Destinations: p.dstPrefix[end] - p.dstPrefix[start],
	}
}

// CursorsAt returns the cursor positions reached after executing [0, i)
// from zero cursors. Because false branches skip by the same counts, this
// does not depend on any condition outcome.
func (p *Program) CursorsAt(i int) (cosi, codi int) {
	return p.srcPrefix[i], p.dstPrefix[i]
}
