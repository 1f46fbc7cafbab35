package alloc

import "sort"

// reuse performs linear-scan allocation over the hot slots of a chunk.
//
// Candidates are visited by first use. Before each allocation every active
// interval that ended before the candidate starts returns its local to the
// free list. A free local is only handed to a candidate whose first use is
// no deeper than the depth the local was last bound at; a binding made in a
// deeper region is invisible to the shallower region that owned the local.
func reuse(idx *IntervalIndex, opts Options) *Plan {
	cands := idx.Hottest(opts.MaxLocals, opts.minUses())
	sort.SliceStable(cands, func(i, j int) bool {
		if cands[i].First != cands[j].First {
			return cands[i].First < cands[j].First
		}
		return cands[i].Slot < cands[j].Slot
	})

	p := &Plan{Reuse: true}
	var (
		active    []Assignment // ordered by Last
		free      []int        // stack of released locals
		boundAt   []int        // local -> depth of its latest binding
		numLocals int
	)

	for _, iv := range cands {
		// expire
		n := 0
		for _, a := range active {
			if a.Last < iv.First {
				free = append(free, a.Local)
			} else {
				active[n] = a
				n++
			}
		}
		active = active[:n]

		local := -1
		for k := len(free) - 1; k >= 0; k-- {
			if opts.IgnoreDepth || iv.Depth <= boundAt[free[k]] {
				local = free[k]
				free = append(free[:k], free[k+1:]...)
				break
			}
		}
		if local < 0 {
			local = numLocals
			numLocals++
			boundAt = append(boundAt, 0)
		}
		boundAt[local] = iv.Depth

		a := Assignment{Interval: iv, Local: local}
		p.Assignments = append(p.Assignments, a)
		at := sort.Search(len(active), func(i int) bool { return active[i].Last > a.Last })
		active = append(active, Assignment{})
		copy(active[at+1:], active[at:])
		active[at] = a
	}

	p.NumLocals = numLocals
	p.index()
	return p
}
