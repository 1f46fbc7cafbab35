package program

import "fmt"

// ArrayCommand is one instruction of a program. Index is the destination or
// primary operand; SourceIndex is the source slot, or the immediate for the
// value comparisons. Unused operands are -1.
type ArrayCommand struct {
	Op          Opcode `cbor:"1,keyasint"`
	Index       int    `cbor:"2,keyasint"`
	SourceIndex int    `cbor:"3,keyasint"`
}

// Zero returns s[index] = 0.
func Zero(index int) ArrayCommand { return ArrayCommand{OpZero, index, -1} }

// CopyTo returns s[index] = s[source].
func CopyTo(index, source int) ArrayCommand { return ArrayCommand{OpCopyTo, index, source} }

// NextSource returns s[index] = sources[cosi++].
func NextSource(index int) ArrayCommand { return ArrayCommand{OpNextSource, index, -1} }

// MultiplyBy returns s[index] *= s[source].
func MultiplyBy(index, source int) ArrayCommand { return ArrayCommand{OpMultiplyBy, index, source} }

// IncrementBy returns s[index] += s[source].
func IncrementBy(index, source int) ArrayCommand { return ArrayCommand{OpIncrementBy, index, source} }

// DecrementBy returns s[index] -= s[source].
func DecrementBy(index, source int) ArrayCommand { return ArrayCommand{OpDecrementBy, index, source} }

// NextDestination returns destinations[codi++] = s[source].
func NextDestination(source int) ArrayCommand {
	return ArrayCommand{OpNextDestination, -1, source}
}

// ReusedDestination returns destinations[position] += s[source].
func ReusedDestination(position, source int) ArrayCommand {
	return ArrayCommand{OpReusedDestination, position, source}
}

// EqualsOtherArrayIndex returns cond = s[index] == s[source].
func EqualsOtherArrayIndex(index, source int) ArrayCommand {
	return ArrayCommand{OpEqualsOtherArrayIndex, index, source}
}

// NotEqualsOtherArrayIndex returns cond = s[index] != s[source].
func NotEqualsOtherArrayIndex(index, source int) ArrayCommand {
	return ArrayCommand{OpNotEqualsOtherArrayIndex, index, source}
}

// GreaterThanOtherArrayIndex returns cond = s[index] > s[source].
func GreaterThanOtherArrayIndex(index, source int) ArrayCommand {
	return ArrayCommand{OpGreaterThanOtherArrayIndex, index, source}
}

// LessThanOtherArrayIndex returns cond = s[index] < s[source].
func LessThanOtherArrayIndex(index, source int) ArrayCommand {
	return ArrayCommand{OpLessThanOtherArrayIndex, index, source}
}

// EqualsValue returns cond = s[index] == value.
func EqualsValue(index, value int) ArrayCommand { return ArrayCommand{OpEqualsValue, index, value} }

// NotEqualsValue returns cond = s[index] != value.
func NotEqualsValue(index, value int) ArrayCommand {
	return ArrayCommand{OpNotEqualsValue, index, value}
}

// If opens a conditional region on the current condition flag.
func If() ArrayCommand { return ArrayCommand{OpIf, -1, -1} }

// EndIf closes the innermost open region.
func EndIf() ArrayCommand { return ArrayCommand{OpEndIf, -1, -1} }

// Comment is a no-op marker.
func Comment() ArrayCommand { return ArrayCommand{OpComment, -1, -1} }

// Blank is a no-op marker.
func Blank() ArrayCommand { return ArrayCommand{OpBlank, -1, -1} }

// Immediate returns the constant encoded in SourceIndex.
func (c ArrayCommand) Immediate() float64 {
	return float64(c.SourceIndex)
}

// Slots appends the slot operands of c to dst, Index first.
func (c ArrayCommand) Slots(dst []int) []int {
	info := c.Op.Info()
	if info.IndexIsSlot() {
		dst = append(dst, c.Index)
	}
	if info.SourceIsSlot() {
		dst = append(dst, c.SourceIndex)
	}
	return dst
}

func (c ArrayCommand) String() string {
	if !c.Op.Valid() {
		return fmt.Sprintf("%v(%d, %d)", c.Op, c.Index, c.SourceIndex)
	}
	info := c.Op.Info()
	switch {
	case info.IndexIsSlot() && info.SourceIsSlot():
		return fmt.Sprintf("%s s[%d], s[%d]", info.Name, c.Index, c.SourceIndex)
	case info.IndexIsSlot() && info.SourceIsImmediate():
		return fmt.Sprintf("%s s[%d], %d", info.Name, c.Index, c.SourceIndex)
	case info.IndexIsSlot():
		return fmt.Sprintf("%s s[%d]", info.Name, c.Index)
	case info.IndexIsDestination():
		return fmt.Sprintf("%s d[%d], s[%d]", info.Name, c.Index, c.SourceIndex)
	case info.SourceIsSlot():
		return fmt.Sprintf("%s s[%d]", info.Name, c.SourceIndex)
	}
	return info.Name
}
