package lower

import (
	"github.com/chazu/slotjit/alloc"
	"github.com/chazu/slotjit/program"
)

// event is a binding change made while a region is open. Events are
// replayed in order in the region's false branch so that, after the region,
// every local holds the same slot whichever branch ran.
type event struct {
	store bool
	local int
	slot  int
}

type region struct {
	program.Region
	events []event
}

// binder is the binding-state machine: it tracks which slot each local
// holds and whether the local is dirty, and records binding events per open
// region.
type binder struct {
	plan *alloc.Plan
	t    Target

	bound []int // local -> slot, -1 when free
	dirty []bool

	regions []*region
	end     int
}

func newBinder(plan *alloc.Plan, t Target, end int) *binder {
	b := &binder{
		plan:  plan,
		t:     t,
		end:   end,
		bound: make([]int, plan.NumLocals),
		dirty: make([]bool, plan.NumLocals),
	}
	for i := range b.bound {
		b.bound[i] = -1
	}
	return b
}

func (b *binder) record(e event) {
	if n := len(b.regions); n > 0 {
		r := b.regions[n-1]
		r.events = append(r.events, e)
	}
}

func (b *binder) load(local, slot int) {
	b.t.Load(local, slot)
	b.bound[local] = slot
	b.dirty[local] = false
	b.record(event{local: local, slot: slot})
}

// flush writes back a dirty local and frees it.
func (b *binder) flush(local int) {
	slot := b.bound[local]
	if slot < 0 {
		return
	}
	if b.dirty[local] {
		b.t.Store(local, slot)
		b.record(event{store: true, local: local, slot: slot})
	}
	b.bound[local] = -1
	b.dirty[local] = false
}

// use resolves a slot operand, binding the slot's local on first use.
func (b *binder) use(slot int, write bool) Operand {
	local, ok := b.plan.Local(slot)
	if !ok {
		return Operand{Local: -1, Slot: slot}
	}
	if b.bound[local] != slot {
		b.flush(local)
		b.load(local, slot)
	}
	if write {
		b.dirty[local] = true
	}
	return Operand{Local: local, Slot: slot}
}

// release frees the locals whose intervals end at instruction i.
func (b *binder) release(i int) {
	for _, slot := range b.plan.ReleasesAt(i) {
		local, ok := b.plan.Local(slot)
		if ok && b.bound[local] == slot {
			b.flush(local)
		}
	}
}

func (b *binder) open(r program.Region) {
	b.regions = append(b.regions, &region{Region: r})
}

// close synthesizes the false branch of the innermost region.
func (b *binder) close() {
	n := len(b.regions)
	r := b.regions[n-1]
	b.regions = b.regions[:n-1]

	b.t.Else()
	for _, e := range r.events {
		if e.store {
			b.t.Store(e.local, e.slot)
		} else {
			b.t.Load(e.local, e.slot)
		}
	}
	if !r.Skip.IsZero() {
		b.t.Skip(r.Skip)
	}
	switch {
	case r.Synthetic():
		b.t.SetInactive(0)
	case r.Clipped(b.end):
		b.t.SetInactive(r.Suspend)
	}
	b.t.EndIf()

	if n > 1 {
		parent := b.regions[n-2]
		parent.events = append(parent.events, r.events...)
	}
}

// exit stores the locals still holding slot values. Without reuse every
// local is written back; with reuse only dirty ones.
func (b *binder) exit() {
	for local, slot := range b.bound {
		if slot < 0 {
			continue
		}
		if !b.plan.Reuse || b.dirty[local] {
			b.t.Store(local, slot)
		}
	}
}
