package program

import (
	"errors"
	"fmt"
)

// ErrBadRange means a chunk range lies outside the program or is empty.
var ErrBadRange = errors.New("program: bad chunk range")

// Range is a half-open instruction interval [Start, End).
type Range struct {
	Start int `cbor:"1,keyasint"`
	End   int `cbor:"2,keyasint"`
}

// Len returns the number of instructions in r.
func (r Range) Len() int { return r.End - r.Start }

func (r Range) String() string {
	return fmt.Sprintf("[%d,%d)", r.Start, r.End)
}

// Key identifies a chunk: the same range of the same program is the same
// chunk, however many *Chunk values describe it.
type Key struct {
	prog *Program
	Range
}

// Chunk is a contiguous slice of a program, the unit of generation and
// execution. It is immutable and safe for concurrent use.
type Chunk struct {
	prog   *Program
	rng    Range
	layout *Layout
}

// Chunk returns the chunk covering [start, end).
func (p *Program) Chunk(start, end int) (*Chunk, error) {
	if start < 0 || end > len(p.commands) || start >= end {
		return nil, fmt.Errorf("%w: [%d,%d) of %d instructions", ErrBadRange, start, end, len(p.commands))
	}
	c := &Chunk{prog: p, rng: Range{start, end}}
	c.layout = newLayout(p, c.rng)
	return c, nil
}

// Whole returns a single chunk covering the entire program. It returns nil
// for an empty program.
func (p *Program) Whole() *Chunk {
	c, err := p.Chunk(0, len(p.commands))
	if err != nil {
		return nil
	}
	return c
}

// Program returns the program c belongs to.
func (c *Chunk) Program() *Program { return c.prog }

// Range returns the instruction interval of c.
func (c *Chunk) Range() Range { return c.rng }

// Start is the absolute index of the first instruction.
func (c *Chunk) Start() int { return c.rng.Start }

// End is one past the absolute index of the last instruction.
func (c *Chunk) End() int { return c.rng.End }

// Len returns the instruction count.
func (c *Chunk) Len() int { return c.rng.Len() }

// At returns the instruction at absolute index i.
func (c *Chunk) At(i int) ArrayCommand { return c.prog.commands[i] }

// Key returns the identity of c.
func (c *Chunk) Key() Key { return Key{c.prog, c.rng} }

// Layout returns the region structure of c.
func (c *Chunk) Layout() *Layout { return c.layout }

// Name returns an identifier-safe name for c, unique within its program.
func (c *Chunk) Name() string {
	return fmt.Sprintf("chunk_%d_%d", c.rng.Start, c.rng.End)
}

func (c *Chunk) String() string { return "chunk" + c.rng.String() }

// Region is a conditional region as seen from inside one chunk.
type Region struct {
	// If is the absolute index of the opening If, or -1 when the region was
	// opened in an earlier chunk and is re-guarded at chunk entry.
	If int
	// Close is the absolute index of the closing EndIf, or the chunk's End
	// when the EndIf lies in a later chunk.
	Close int
	// Skip counts the stream instructions of the region inside the chunk.
	Skip Skip
	// Suspend is, for a clipped region, the number of regions left inactive
	// at chunk exit when the region is not taken.
	Suspend int
}

// Synthetic reports whether the region continues one from an earlier chunk.
func (r Region) Synthetic() bool { return r.If < 0 }

// Clipped reports whether the region's EndIf lies beyond the chunk.
func (r Region) Clipped(end int) bool { return r.Close >= end }

// Layout is the nesting structure of a chunk: continued regions at entry,
// per-If regions clipped to the chunk, and the depth of every instruction.
//
// Whether a continued region runs is not decided by the condition flag,
// which the region body may have changed before the cut. The execution
// state instead carries an inactive count: the number of innermost open
// regions that were not taken when the previous chunk returned. A continued
// region is entered unless it is the outermost inactive one.
type Layout struct {
	start int

	// Leading lists the regions continued from earlier chunks, outermost
	// first. Leading[j] is skipped when the inactive count at entry is
	// len(Leading)-j.
	Leading []Region

	// EntryOpen and ExitOpen are the numbers of regions open at the chunk
	// boundaries.
	EntryOpen int
	ExitOpen  int

	regions []Region // indexed relative to start, valid for Ifs only
	depth   []int
	maxDep  int
}

func newLayout(p *Program, r Range) *Layout {
	l := &Layout{
		start:     r.Start,
		EntryOpen: p.openAt[r.Start],
		ExitOpen:  p.openAt[r.End],
		regions:   make([]Region, r.Len()),
		depth:     make([]int, r.Len()),
	}

	// Leading unmatched EndIfs, innermost first.
	var unmatched []int
	open := 0
	for i := r.Start; i < r.End; i++ {
		switch p.commands[i].Op {
		case OpIf:
			open++
		case OpEndIf:
			if open == 0 {
				unmatched = append(unmatched, i)
			} else {
				open--
			}
		}
	}
	for k := len(unmatched) - 1; k >= 0; k-- {
		l.Leading = append(l.Leading, Region{
			If:    -1,
			Close: unmatched[k],
			Skip:  p.StreamCount(r.Start, unmatched[k]),
		})
	}

	d := len(unmatched)
	l.maxDep = d
	for i := r.Start; i < r.End; i++ {
		rel := i - r.Start
		switch p.commands[i].Op {
		case OpIf:
			l.depth[rel] = d
			d++
			if d > l.maxDep {
				l.maxDep = d
			}
			reg := Region{If: i, Close: p.match[i]}
			if reg.Close >= r.End {
				reg.Close = r.End
				reg.Suspend = l.ExitOpen - p.openAt[i]
			}
			reg.Skip = p.StreamCount(i+1, reg.Close)
			l.regions[rel] = reg
		case OpEndIf:
			d--
			l.depth[rel] = d
		default:
			l.depth[rel] = d
		}
	}
	return l
}

// Region returns the region opened by the If at absolute index i.
func (l *Layout) Region(i int) Region {
	return l.regions[i-l.start]
}

// Depth returns the number of regions (continued ones included) that
// enclose the instruction at absolute index i. If and EndIf sit at the
// depth outside their own region.
func (l *Layout) Depth(i int) int {
	return l.depth[i-l.start]
}

// MaxDepth returns the deepest nesting reached inside the chunk.
func (l *Layout) MaxDepth() int { return l.maxDep }

// Resume returns the region to skip at entry for the given inactive count,
// and false when every continued region runs. Counts above len(Leading)
// mean the whole chunk is bypassed and are not resolved here.
func (l *Layout) Resume(inactive int) (Region, bool) {
	if inactive <= 0 || inactive > len(l.Leading) {
		return Region{}, false
	}
	return l.Leading[len(l.Leading)-inactive], true
}

// Partition splits p into chunks of at most maxLen instructions. A cut is
// placed where no region is open whenever such a point exists in the
// window; otherwise the window is cut at its end, slicing a region.
func (p *Program) Partition(maxLen int) ([]*Chunk, error) {
	if maxLen <= 0 {
		return nil, fmt.Errorf("%w: partition size %d", ErrBadRange, maxLen)
	}
	var chunks []*Chunk
	n := len(p.commands)
	for pos := 0; pos < n; {
		end := pos + maxLen
		if end >= n {
			end = n
		} else {
			for c := end; c > pos; c-- {
				if p.openAt[c] == 0 {
					end = c
					break
				}
			}
		}
		c, err := p.Chunk(pos, end)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, c)
		pos = end
	}
	return chunks, nil
}
