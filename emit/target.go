package emit

import (
	"fmt"

	"github.com/chazu/slotjit/lower"
	"github.com/chazu/slotjit/program"
)

type branch struct {
	orElse *Label
	end    *Label
}

// ilTarget lowers a chunk into IL.
type ilTarget struct {
	b         *Builder
	numLocals int
	open      []branch
	err       error
}

func newILTarget() *ilTarget {
	return &ilTarget{b: NewBuilder()}
}

var _ lower.Target = (*ilTarget)(nil)

func (t *ilTarget) Begin(numLocals int) { t.numLocals = numLocals }

func (t *ilTarget) Bypass(leading int, skip program.Skip, opened int) {
	t.b.EmitInt32s(OpBypass, leading, skip.Sources, skip.Destinations, opened)
}

func (t *ilTarget) Load(local, slot int) {
	t.b.EmitInt32(OpLdSlot, slot)
	t.b.EmitInt32(OpStLoc, local)
}

func (t *ilTarget) Store(local, slot int) {
	t.b.EmitInt32(OpLdLoc, local)
	t.b.EmitInt32(OpStSlot, slot)
}

func (t *ilTarget) load(o lower.Operand) {
	if o.IsLocal() {
		t.b.EmitInt32(OpLdLoc, o.Local)
	} else {
		t.b.EmitInt32(OpLdSlot, o.Slot)
	}
}

func (t *ilTarget) store(o lower.Operand) {
	if o.IsLocal() {
		t.b.EmitInt32(OpStLoc, o.Local)
	} else {
		t.b.EmitInt32(OpStSlot, o.Slot)
	}
}

func (t *ilTarget) Instruction(cmd program.ArrayCommand, index, source lower.Operand) {
	switch cmd.Op {
	case program.OpZero:
		t.b.EmitFloat64(OpLdConst, 0)
		t.store(index)
	case program.OpCopyTo:
		t.load(source)
		t.store(index)
	case program.OpNextSource:
		t.b.Emit(OpLdSource)
		t.store(index)
	case program.OpMultiplyBy:
		t.arith(OpMul, index, source)
	case program.OpIncrementBy:
		t.arith(OpAdd, index, source)
	case program.OpDecrementBy:
		t.arith(OpSub, index, source)
	case program.OpNextDestination:
		t.load(source)
		t.b.Emit(OpStDest)
	case program.OpReusedDestination:
		t.b.EmitInt32(OpLdDestAt, cmd.Index)
		t.load(source)
		t.b.Emit(OpAdd)
		t.b.EmitInt32(OpStDestAt, cmd.Index)
	case program.OpEqualsOtherArrayIndex:
		t.compare(OpCmpEQ, index, source)
	case program.OpNotEqualsOtherArrayIndex:
		t.compare(OpCmpNE, index, source)
	case program.OpGreaterThanOtherArrayIndex:
		t.compare(OpCmpGT, index, source)
	case program.OpLessThanOtherArrayIndex:
		t.compare(OpCmpLT, index, source)
	case program.OpEqualsValue:
		t.load(index)
		t.b.EmitFloat64(OpLdConst, cmd.Immediate())
		t.b.Emit(OpCmpEQ)
	case program.OpNotEqualsValue:
		t.load(index)
		t.b.EmitFloat64(OpLdConst, cmd.Immediate())
		t.b.Emit(OpCmpNE)
	default:
		if t.err == nil {
			t.err = fmt.Errorf("%w: %v", program.ErrUnsupportedOpcode, cmd.Op)
		}
	}
}

// arith emits index = index op source, destination value first.
func (t *ilTarget) arith(op Opcode, index, source lower.Operand) {
	t.load(index)
	t.load(source)
	t.b.Emit(op)
	t.store(index)
}

func (t *ilTarget) compare(op Opcode, index, source lower.Operand) {
	t.load(index)
	t.load(source)
	t.b.Emit(op)
}

func (t *ilTarget) Marker(program.ArrayCommand) { t.b.Emit(OpNop) }

func (t *ilTarget) If() {
	br := branch{orElse: t.b.NewLabel(), end: t.b.NewLabel()}
	t.b.EmitJump(OpJumpFalse, br.orElse)
	t.open = append(t.open, br)
}

func (t *ilTarget) Resume(inactive int) {
	br := branch{orElse: t.b.NewLabel(), end: t.b.NewLabel()}
	t.b.EmitJump(OpJumpInact, br.orElse, inactive)
	t.open = append(t.open, br)
}

func (t *ilTarget) Else() {
	br := t.open[len(t.open)-1]
	t.b.EmitJump(OpJump, br.end)
	t.b.Mark(br.orElse)
}

func (t *ilTarget) Skip(sk program.Skip) {
	t.b.EmitInt32s(OpAdvance, sk.Sources, sk.Destinations)
}

func (t *ilTarget) SetInactive(n int) { t.b.EmitInt32(OpSetInact, n) }

func (t *ilTarget) EndIf() {
	br := t.open[len(t.open)-1]
	t.open = t.open[:len(t.open)-1]
	t.b.Mark(br.end)
}

func (t *ilTarget) End() { t.b.Emit(OpReturn) }
