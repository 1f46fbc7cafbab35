package alloc

import (
	"sort"

	"github.com/chazu/slotjit/program"
)

// Interval is the live range of one slot inside a chunk, in absolute
// instruction indices.
type Interval struct {
	Slot  int
	First int // first instruction referencing the slot
	Last  int // last instruction referencing the slot
	Uses  int // operand references, an instruction naming the slot twice counts twice
	Depth int // nesting depth of the first use
}

// IntervalIndex records every slot referenced by a chunk.
type IntervalIndex struct {
	intervals []*Interval
	bySlot    map[int]*Interval
}

// NewIntervalIndex scans c once and builds the live interval of every slot
// it references.
func NewIntervalIndex(c *program.Chunk) *IntervalIndex {
	idx := &IntervalIndex{bySlot: make(map[int]*Interval)}
	layout := c.Layout()
	var buf []int
	for i := c.Start(); i < c.End(); i++ {
		buf = c.At(i).Slots(buf[:0])
		for _, s := range buf {
			iv, ok := idx.bySlot[s]
			if !ok {
				iv = &Interval{Slot: s, First: i, Depth: layout.Depth(i)}
				idx.bySlot[s] = iv
				idx.intervals = append(idx.intervals, iv)
			}
			iv.Last = i
			iv.Uses++
		}
	}
	return idx
}

// Len returns the number of distinct slots.
func (x *IntervalIndex) Len() int { return len(x.intervals) }

// Lookup returns the interval of slot s.
func (x *IntervalIndex) Lookup(s int) (Interval, bool) {
	iv, ok := x.bySlot[s]
	if !ok {
		return Interval{}, false
	}
	return *iv, true
}

// ByFirstUse returns the intervals ordered by first use, ties by slot.
func (x *IntervalIndex) ByFirstUse() []Interval {
	out := make([]Interval, len(x.intervals))
	for i, iv := range x.intervals {
		out[i] = *iv
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].First != out[j].First {
			return out[i].First < out[j].First
		}
		return out[i].Slot < out[j].Slot
	})
	return out
}

// Hottest returns at most n intervals with the highest use counts, ties
// broken by earlier first use. n <= 0 returns all of them.
func (x *IntervalIndex) Hottest(n int, minUses int) []Interval {
	var out []Interval
	for _, iv := range x.intervals {
		if iv.Uses >= minUses {
			out = append(out, *iv)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Uses != out[j].Uses {
			return out[i].Uses > out[j].Uses
		}
		return out[i].First < out[j].First
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}
