package backend

import "github.com/chazu/slotjit/program"

// State is everything one in-flight execution owns: the slot array, the two
// streams with their cursors, the condition flag and the inactive count
// carried between chunks of a sliced region.
type State struct {
	Slots        []float64
	Sources      []float64
	Destinations []float64

	Cosi int
	Codi int
	Cond bool

	// Inactive is the number of innermost open regions that were not taken
	// when the previous chunk returned. It is zero between whole passes.
	Inactive int
}

// NewState sizes a state for one pass of p over sources.
func NewState(p *program.Program, sources []float64) *State {
	return &State{
		Slots:        make([]float64, p.SlotCount()),
		Sources:      sources,
		Destinations: make([]float64, p.DestinationCount()),
	}
}

// Clone returns a deep copy of st. Sources are shared because no backend
// writes them.
func (st *State) Clone() *State {
	c := *st
	c.Slots = append([]float64(nil), st.Slots...)
	c.Destinations = append([]float64(nil), st.Destinations...)
	return &c
}
