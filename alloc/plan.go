// Package alloc decides which slots of a chunk are cached in native locals
// and which locals they share.
//
// Two modes are offered. No-reuse gives every referenced slot its own local,
// loaded at chunk entry and stored at exit. Reuse keeps only hot slots and
// assigns them locals by linear-scan interval allocation, letting slots
// with disjoint lifetimes share a local.
package alloc

import (
	"fmt"
	"sort"
	"strings"

	"github.com/chazu/slotjit/program"
)

// DefaultMinUses is the use count a slot needs to be cached under reuse.
const DefaultMinUses = 3

// Options configures the planner.
type Options struct {
	// Reuse enables interval allocation. When false every slot referenced
	// by the chunk gets a dedicated local.
	Reuse bool
	// MinUses is the minimum use count of a reuse candidate. Zero means
	// DefaultMinUses.
	MinUses int
	// MaxLocals caps the candidates to the hottest N slots. Zero means no cap.
	MaxLocals int
	// IgnoreDepth disables the nesting-depth rebinding rule. Only tests
	// should set it.
	IgnoreDepth bool
}

func (o Options) minUses() int {
	if o.MinUses <= 0 {
		return DefaultMinUses
	}
	return o.MinUses
}

// Assignment binds one slot to a local for the slot's interval.
type Assignment struct {
	Interval
	Local int
}

// Plan is the allocation result for one chunk.
type Plan struct {
	Reuse       bool
	NumLocals   int
	Assignments []Assignment // ordered by first use

	bySlot   map[int]int   // slot -> index into Assignments
	releases map[int][]int // instruction -> slots whose interval ends there
}

// Local returns the local caching slot s, if any.
func (p *Plan) Local(s int) (int, bool) {
	i, ok := p.bySlot[s]
	if !ok {
		return 0, false
	}
	return p.Assignments[i].Local, true
}

// Assignment returns the assignment of slot s.
func (p *Plan) Assignment(s int) (Assignment, bool) {
	i, ok := p.bySlot[s]
	if !ok {
		return Assignment{}, false
	}
	return p.Assignments[i], true
}

// ReleasesAt returns the slots whose intervals end at instruction i. Under
// no-reuse nothing is released before chunk exit.
func (p *Plan) ReleasesAt(i int) []int {
	return p.releases[i]
}

func (p *Plan) index() {
	p.bySlot = make(map[int]int, len(p.Assignments))
	for i, a := range p.Assignments {
		p.bySlot[a.Slot] = i
	}
	if !p.Reuse {
		return
	}
	p.releases = make(map[int][]int)
	for _, a := range p.Assignments {
		p.releases[a.Last] = append(p.releases[a.Last], a.Slot)
	}
	for _, slots := range p.releases {
		sort.Ints(slots)
	}
}

func (p *Plan) String() string {
	var sb strings.Builder
	mode := "no-reuse"
	if p.Reuse {
		mode = "reuse"
	}
	fmt.Fprintf(&sb, "plan %s: %d locals for %d slots\n", mode, p.NumLocals, len(p.Assignments))
	for _, a := range p.Assignments {
		fmt.Fprintf(&sb, "  s[%d] -> l%d live %d-%d uses=%d depth=%d\n",
			a.Slot, a.Local, a.First, a.Last, a.Uses, a.Depth)
	}
	return sb.String()
}

// New plans the locals of c.
func New(c *program.Chunk, opts Options) *Plan {
	idx := NewIntervalIndex(c)
	if !opts.Reuse {
		return noReuse(idx)
	}
	return reuse(idx, opts)
}

func noReuse(idx *IntervalIndex) *Plan {
	p := &Plan{}
	for i, iv := range idx.ByFirstUse() {
		p.Assignments = append(p.Assignments, Assignment{Interval: iv, Local: i})
	}
	p.NumLocals = len(p.Assignments)
	p.index()
	return p
}
