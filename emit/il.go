package emit

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"
)

// Opcode is an instruction of the chunk IL, a small stack machine over
// float64 with a separate condition register.
type Opcode byte

// Slot, local and stream access
const (
	OpNop      Opcode = 0x00
	OpLdSlot   Opcode = 0x01 // push s[k]
	OpStSlot   Opcode = 0x02 // pop into s[k]
	OpLdLoc    Opcode = 0x03 // push l[k]
	OpStLoc    Opcode = 0x04 // pop into l[k]
	OpLdConst  Opcode = 0x05 // push float64 operand
	OpLdSource Opcode = 0x06 // push src[ci]; ci++
	OpStDest   Opcode = 0x07 // pop into dst[di]; di++
	OpLdDestAt Opcode = 0x08 // push dst[k]
	OpStDestAt Opcode = 0x09 // pop into dst[k]
	OpAdvance  Opcode = 0x0A // ci += a; di += b
	OpSetInact Opcode = 0x0B // inactive = k
	OpReturn   Opcode = 0x0C
	OpBypass   Opcode = 0x0D // if inactive > k: ci += a; di += b; inactive += n; return
)

// Arithmetic and comparisons
const (
	OpAdd   Opcode = 0x20 // pop b, a; push float64(a + b)
	OpSub   Opcode = 0x21 // pop b, a; push float64(a - b)
	OpMul   Opcode = 0x22 // pop b, a; push float64(a * b)
	OpCmpEQ Opcode = 0x28 // pop b, a; cond = a == b
	OpCmpNE Opcode = 0x29
	OpCmpGT Opcode = 0x2A
	OpCmpLT Opcode = 0x2B
)

// Control flow. Jump operands are offsets from the end of the instruction.
const (
	OpJump      Opcode = 0x40
	OpJumpFalse Opcode = 0x41 // jump when cond is false
	OpJumpInact Opcode = 0x42 // jump when inactive == k
)

// OpcodeInfo holds metadata about an opcode.
type OpcodeInfo struct {
	Name         string
	OperandBytes int
	StackEffect  int
}

var opcodeTable = map[Opcode]OpcodeInfo{
	OpNop:      {"NOP", 0, 0},
	OpLdSlot:   {"LD_SLOT", 4, 1},
	OpStSlot:   {"ST_SLOT", 4, -1},
	OpLdLoc:    {"LD_LOC", 4, 1},
	OpStLoc:    {"ST_LOC", 4, -1},
	OpLdConst:  {"LD_CONST", 8, 1},
	OpLdSource: {"LD_SOURCE", 0, 1},
	OpStDest:   {"ST_DEST", 0, -1},
	OpLdDestAt: {"LD_DEST_AT", 4, 1},
	OpStDestAt: {"ST_DEST_AT", 4, -1},
	OpAdvance:  {"ADVANCE", 8, 0},
	OpSetInact: {"SET_INACTIVE", 4, 0},
	OpReturn:   {"RETURN", 0, 0},
	OpBypass:   {"BYPASS", 16, 0},

	OpAdd:   {"ADD", 0, -1},
	OpSub:   {"SUB", 0, -1},
	OpMul:   {"MUL", 0, -1},
	OpCmpEQ: {"CMP_EQ", 0, -2},
	OpCmpNE: {"CMP_NE", 0, -2},
	OpCmpGT: {"CMP_GT", 0, -2},
	OpCmpLT: {"CMP_LT", 0, -2},

	OpJump:      {"JUMP", 4, 0},
	OpJumpFalse: {"JUMP_FALSE", 4, 0},
	OpJumpInact: {"JUMP_INACTIVE", 8, 0},
}

// Info returns the metadata for an opcode.
func (op Opcode) Info() OpcodeInfo {
	if info, ok := opcodeTable[op]; ok {
		return info
	}
	return OpcodeInfo{Name: fmt.Sprintf("UNKNOWN_%02X", byte(op))}
}

func (op Opcode) String() string { return op.Info().Name }

// ---------------------------------------------------------------------------
// Builder
// ---------------------------------------------------------------------------

// Builder appends IL instructions.
type Builder struct {
	code []byte
}

// NewBuilder returns an empty builder.
func NewBuilder() *Builder {
	return &Builder{code: make([]byte, 0, 128)}
}

// Bytes returns the emitted code.
func (b *Builder) Bytes() []byte { return b.code }

// Len returns the current length.
func (b *Builder) Len() int { return len(b.code) }

// Emit appends an opcode with no operands.
func (b *Builder) Emit(op Opcode) {
	b.code = append(b.code, byte(op))
}

// EmitInt32 appends an opcode with one 32-bit operand.
func (b *Builder) EmitInt32(op Opcode, v int) {
	b.code = append(b.code, byte(op))
	b.code = binary.LittleEndian.AppendUint32(b.code, uint32(int32(v)))
}

// EmitInt32s appends an opcode followed by several 32-bit operands.
func (b *Builder) EmitInt32s(op Opcode, vs ...int) {
	b.code = append(b.code, byte(op))
	for _, v := range vs {
		b.code = binary.LittleEndian.AppendUint32(b.code, uint32(int32(v)))
	}
}

// EmitFloat64 appends an opcode with a float64 operand.
func (b *Builder) EmitFloat64(op Opcode, v float64) {
	b.code = append(b.code, byte(op))
	b.code = binary.LittleEndian.AppendUint64(b.code, math.Float64bits(v))
}

// Label is a jump target, possibly not yet placed.
type Label struct {
	resolved bool
	position int
	refs     []int // operand positions waiting for the target
}

// NewLabel creates an unresolved label.
func (b *Builder) NewLabel() *Label {
	return &Label{refs: make([]int, 0, 2)}
}

// Mark resolves a label to the current position.
func (b *Builder) Mark(l *Label) {
	if l.resolved {
		panic("label already resolved")
	}
	l.resolved = true
	l.position = len(b.code)
	for _, ref := range l.refs {
		b.patch(ref, l.position-(ref+4))
	}
	l.refs = nil
}

// EmitJump emits a jump to l. Extra operands precede the offset.
func (b *Builder) EmitJump(op Opcode, l *Label, operands ...int) {
	b.EmitInt32s(op, operands...)
	ref := len(b.code)
	b.code = append(b.code, 0, 0, 0, 0)
	if l.resolved {
		b.patch(ref, l.position-(ref+4))
	} else {
		l.refs = append(l.refs, ref)
	}
}

func (b *Builder) patch(at, offset int) {
	binary.LittleEndian.PutUint32(b.code[at:], uint32(int32(offset)))
}

// ---------------------------------------------------------------------------
// Reader and disassembly
// ---------------------------------------------------------------------------

// Reader decodes IL.
type Reader struct {
	code []byte
	pos  int
}

// NewReader returns a reader positioned at the start of code.
func NewReader(code []byte) *Reader {
	return &Reader{code: code}
}

// Position returns the read offset.
func (r *Reader) Position() int { return r.pos }

// HasMore reports whether instructions remain.
func (r *Reader) HasMore() bool { return r.pos < len(r.code) }

// ReadOpcode reads one opcode.
func (r *Reader) ReadOpcode() Opcode {
	op := Opcode(r.code[r.pos])
	r.pos++
	return op
}

// ReadInt32 reads a 32-bit operand.
func (r *Reader) ReadInt32() int {
	v := int32(binary.LittleEndian.Uint32(r.code[r.pos:]))
	r.pos += 4
	return int(v)
}

// ReadFloat64 reads a float64 operand.
func (r *Reader) ReadFloat64() float64 {
	v := math.Float64frombits(binary.LittleEndian.Uint64(r.code[r.pos:]))
	r.pos += 8
	return v
}

// Instruction is one decoded IL instruction.
type Instruction struct {
	Pos    int
	Op     Opcode
	Args   []int
	Const  float64
	Target int // absolute jump target, -1 when not a jump
	Next   int // offset of the following instruction
}

// Decode reads the instruction at the reader's position.
func (r *Reader) Decode() (Instruction, error) {
	in := Instruction{Pos: r.pos, Target: -1}
	in.Op = r.ReadOpcode()
	info, ok := opcodeTable[in.Op]
	if !ok {
		return in, fmt.Errorf("unknown IL opcode 0x%02X at %d", byte(in.Op), in.Pos)
	}
	if r.pos+info.OperandBytes > len(r.code) {
		return in, fmt.Errorf("truncated %s at %d", info.Name, in.Pos)
	}
	switch in.Op {
	case OpLdConst:
		in.Const = r.ReadFloat64()
	case OpJump, OpJumpFalse:
		off := r.ReadInt32()
		in.Target = r.pos + off
	case OpJumpInact:
		in.Args = []int{r.ReadInt32()}
		off := r.ReadInt32()
		in.Target = r.pos + off
	default:
		for n := info.OperandBytes / 4; n > 0; n-- {
			in.Args = append(in.Args, r.ReadInt32())
		}
	}
	in.Next = r.pos
	return in, nil
}

func (in Instruction) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%04d  %s", in.Pos, in.Op.Info().Name)
	if in.Op == OpLdConst {
		fmt.Fprintf(&sb, " %v", in.Const)
	}
	for _, a := range in.Args {
		fmt.Fprintf(&sb, " %d", a)
	}
	if in.Target >= 0 {
		fmt.Fprintf(&sb, " (-> %04d)", in.Target)
	}
	return sb.String()
}

// Disassemble returns a listing of code, one instruction per line.
func Disassemble(code []byte) string {
	r := NewReader(code)
	var lines []string
	for r.HasMore() {
		in, err := r.Decode()
		if err != nil {
			lines = append(lines, err.Error())
			break
		}
		lines = append(lines, in.String())
	}
	return strings.Join(lines, "\n")
}
