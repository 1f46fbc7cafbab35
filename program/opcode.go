package program

import "fmt"

// Opcode identifies an array command.
type Opcode byte

const (
	// Pure slot writes
	OpZero       Opcode = iota // s[I] = 0
	OpCopyTo                   // s[I] = s[S]
	OpNextSource               // s[I] = sources[cosi]; cosi++

	// Read-modify-write
	OpMultiplyBy  // s[I] = s[I] * s[S]
	OpIncrementBy // s[I] = s[I] + s[S]
	OpDecrementBy // s[I] = s[I] - s[S]

	// Stream writes
	OpNextDestination   // destinations[codi] = s[S]; codi++
	OpReusedDestination // destinations[I] += s[S]

	// Predicates
	OpEqualsOtherArrayIndex      // cond = s[I] == s[S]
	OpNotEqualsOtherArrayIndex   // cond = s[I] != s[S]
	OpGreaterThanOtherArrayIndex // cond = s[I] > s[S]
	OpLessThanOtherArrayIndex    // cond = s[I] < s[S]
	OpEqualsValue                // cond = s[I] == float64(S)
	OpNotEqualsValue             // cond = s[I] != float64(S)

	// Control
	OpIf
	OpEndIf
	OpComment
	OpBlank

	numOpcodes
)

// Operand roles. Every component that needs to know which operand is a
// slot consults OpInfo instead of switching on opcodes.
const (
	roleNone      = iota
	roleSlotRead  // operand is a slot that is read
	roleSlotWrite // operand is a slot that is written
	roleSlotRMW   // operand is a slot that is read and written
	roleDestPos   // operand is a destinations position
	roleImmediate // operand is an encoded constant
)

// OpInfo describes the operand roles and stream effects of an opcode.
type OpInfo struct {
	Name        string
	index       int
	source      int
	ReadsSource bool // advances cosi
	WritesDest  bool // advances codi
	SetsCond    bool
}

var opTable = [numOpcodes]OpInfo{
	OpZero:                       {Name: "Zero", index: roleSlotWrite},
	OpCopyTo:                     {Name: "CopyTo", index: roleSlotWrite, source: roleSlotRead},
	OpNextSource:                 {Name: "NextSource", index: roleSlotWrite, ReadsSource: true},
	OpMultiplyBy:                 {Name: "MultiplyBy", index: roleSlotRMW, source: roleSlotRead},
	OpIncrementBy:                {Name: "IncrementBy", index: roleSlotRMW, source: roleSlotRead},
	OpDecrementBy:                {Name: "DecrementBy", index: roleSlotRMW, source: roleSlotRead},
	OpNextDestination:            {Name: "NextDestination", source: roleSlotRead, WritesDest: true},
	OpReusedDestination:          {Name: "ReusedDestination", index: roleDestPos, source: roleSlotRead},
	OpEqualsOtherArrayIndex:      {Name: "EqualsOtherArrayIndex", index: roleSlotRead, source: roleSlotRead, SetsCond: true},
	OpNotEqualsOtherArrayIndex:   {Name: "NotEqualsOtherArrayIndex", index: roleSlotRead, source: roleSlotRead, SetsCond: true},
	OpGreaterThanOtherArrayIndex: {Name: "GreaterThanOtherArrayIndex", index: roleSlotRead, source: roleSlotRead, SetsCond: true},
	OpLessThanOtherArrayIndex:    {Name: "LessThanOtherArrayIndex", index: roleSlotRead, source: roleSlotRead, SetsCond: true},
	OpEqualsValue:                {Name: "EqualsValue", index: roleSlotRead, source: roleImmediate, SetsCond: true},
	OpNotEqualsValue:             {Name: "NotEqualsValue", index: roleSlotRead, source: roleImmediate, SetsCond: true},
	OpIf:                         {Name: "If"},
	OpEndIf:                      {Name: "EndIf"},
	OpComment:                    {Name: "Comment"},
	OpBlank:                      {Name: "Blank"},
}

// Valid reports whether op is a known opcode.
func (op Opcode) Valid() bool {
	return op < numOpcodes
}

// Info returns the operand description of op. It panics on unknown opcodes;
// callers validate through Valid or program.New first.
func (op Opcode) Info() OpInfo {
	return opTable[op]
}

func (op Opcode) String() string {
	if !op.Valid() {
		return fmt.Sprintf("Opcode(%d)", byte(op))
	}
	return opTable[op].Name
}

// IndexIsSlot reports whether the Index operand addresses a slot.
func (i OpInfo) IndexIsSlot() bool {
	return i.index == roleSlotRead || i.index == roleSlotWrite || i.index == roleSlotRMW
}

// IndexIsWritten reports whether the Index slot is written.
func (i OpInfo) IndexIsWritten() bool {
	return i.index == roleSlotWrite || i.index == roleSlotRMW
}

// IndexIsRead reports whether the current value of the Index slot is read.
func (i OpInfo) IndexIsRead() bool {
	return i.index == roleSlotRead || i.index == roleSlotRMW
}

// IndexIsDestination reports whether Index is a destinations position.
func (i OpInfo) IndexIsDestination() bool {
	return i.index == roleDestPos
}

// SourceIsSlot reports whether the SourceIndex operand addresses a slot.
func (i OpInfo) SourceIsSlot() bool {
	return i.source == roleSlotRead
}

// SourceIsImmediate reports whether SourceIndex encodes a constant.
func (i OpInfo) SourceIsImmediate() bool {
	return i.source == roleImmediate
}

// AdvancesStream reports whether the opcode moves either cursor.
func (i OpInfo) AdvancesStream() bool {
	return i.ReadsSource || i.WritesDest
}
