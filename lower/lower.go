// Package lower walks a chunk together with its allocation plan and drives
// a code-generation target. Both compiling backends lower through Walk, so
// they agree on when locals are loaded and flushed and on how the false
// branch of every region is synthesized.
package lower

import (
	"fmt"

	"github.com/chazu/slotjit/alloc"
	"github.com/chazu/slotjit/program"
)

// Operand is a slot operand after allocation: either a local caching the
// slot or the slot itself in the slot array.
type Operand struct {
	Local int // -1 when the operand is accessed in the slot array
	Slot  int
}

// IsLocal reports whether the operand lives in a local.
func (o Operand) IsLocal() bool { return o.Local >= 0 }

func (o Operand) String() string {
	if o.IsLocal() {
		return fmt.Sprintf("l%d(s[%d])", o.Local, o.Slot)
	}
	return fmt.Sprintf("s[%d]", o.Slot)
}

var none = Operand{Local: -1, Slot: -1}

// Target receives the lowered form of a chunk.
//
// The call sequence is Begin, an optional Bypass, then any mix of Load,
// Store, Instruction, Marker and the properly nested region calls (If or
// Resume, then Else, Skip, SetInactive, EndIf), then End.
type Target interface {
	// Begin starts the chunk with numLocals locals available.
	Begin(numLocals int)
	// Bypass returns early when the inactive count exceeds leading: the
	// cursors advance by skip and the count grows by opened, which may be
	// negative.
	Bypass(leading int, skip program.Skip, opened int)
	// Load copies s[slot] into local.
	Load(local, slot int)
	// Store copies local into s[slot].
	Store(local, slot int)
	// Instruction emits one non-control command. For slot operands index
	// and source are resolved; other operands are read from cmd.
	Instruction(cmd program.ArrayCommand, index, source Operand)
	// Marker emits a no-op marker (Comment or Blank).
	Marker(cmd program.ArrayCommand)
	// If opens a region taken when the condition flag is set.
	If()
	// Resume opens a continued region taken unless the inactive count
	// equals inactive.
	Resume(inactive int)
	// Else switches to the synthesized false branch.
	Else()
	// Skip advances the cursors in the false branch.
	Skip(program.Skip)
	// SetInactive sets the inactive count in the false branch.
	SetInactive(n int)
	// EndIf closes the region.
	EndIf()
	// End finishes the chunk.
	End()
}

// Walk lowers c under plan into t.
func Walk(c *program.Chunk, plan *alloc.Plan, t Target) {
	b := newBinder(plan, t, c.End())
	layout := c.Layout()

	t.Begin(plan.NumLocals)
	if layout.EntryOpen > 0 {
		t.Bypass(len(layout.Leading),
			c.Program().StreamCount(c.Start(), c.End()),
			layout.ExitOpen-layout.EntryOpen)
	}
	if !plan.Reuse {
		for _, a := range plan.Assignments {
			b.load(a.Local, a.Slot)
		}
	}

	for j, r := range layout.Leading {
		t.Resume(len(layout.Leading) - j)
		b.open(r)
	}

	for i := c.Start(); i < c.End(); i++ {
		cmd := c.At(i)
		switch cmd.Op {
		case program.OpIf:
			t.If()
			b.open(layout.Region(i))
		case program.OpEndIf:
			b.close()
		case program.OpComment, program.OpBlank:
			t.Marker(cmd)
		default:
			info := cmd.Op.Info()
			index, source := none, none
			if info.IndexIsSlot() {
				index = b.use(cmd.Index, info.IndexIsWritten())
			}
			if info.SourceIsSlot() {
				source = b.use(cmd.SourceIndex, false)
			}
			t.Instruction(cmd, index, source)
		}
		b.release(i)
	}

	for len(b.regions) > 0 {
		b.close()
	}
	b.exit()
	t.End()
}
