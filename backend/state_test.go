package backend

import (
	"errors"
	"testing"

	"github.com/chazu/slotjit/program"
)

func TestNewStateSizes(t *testing.T) {
	p := program.MustNew([]program.ArrayCommand{
		program.NextSource(4),
		program.NextDestination(4),
		program.ReusedDestination(3, 1),
	})
	st := NewState(p, []float64{1})
	if len(st.Slots) != 5 {
		t.Errorf("slots = %d, want 5", len(st.Slots))
	}
	if len(st.Destinations) != 4 {
		t.Errorf("destinations = %d, want 4", len(st.Destinations))
	}
}

func TestCloneIsIndependent(t *testing.T) {
	st := &State{
		Slots:        []float64{1, 2},
		Sources:      []float64{3},
		Destinations: []float64{4},
		Cosi:         1,
		Cond:         true,
		Inactive:     2,
	}
	c := st.Clone()
	c.Slots[0] = 9
	c.Destinations[0] = 9
	if st.Slots[0] != 1 || st.Destinations[0] != 4 {
		t.Errorf("clone shares buffers with the original")
	}
	if c.Cosi != 1 || !c.Cond || c.Inactive != 2 || &c.Sources[0] != &st.Sources[0] {
		t.Errorf("clone = %+v", c)
	}
}

func TestOptionsCheck(t *testing.T) {
	if err := (Options{PreserveSource: true}).Check(); err != nil {
		t.Errorf("Check = %v", err)
	}
	if err := (Options{Checkpoint: true}).Check(); !errors.Is(err, ErrCheckpointUnsupported) {
		t.Errorf("Check = %v, want ErrCheckpointUnsupported", err)
	}
}

func TestRecover(t *testing.T) {
	c := program.MustNew([]program.ArrayCommand{program.Zero(0)}).Whole()
	run := func(v any) (err error) {
		defer Recover("test", c, &err)
		panic(v)
	}
	var ee *ExecutionError
	if err := run("boom"); !errors.As(err, &ee) || ee.Backend != "test" || ee.Range != c.Range() {
		t.Errorf("err = %v", err)
	}
	cause := errors.New("cause")
	if err := run(cause); !errors.Is(err, cause) {
		t.Errorf("err = %v, want wrapped cause", err)
	}
}
