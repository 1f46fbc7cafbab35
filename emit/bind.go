package emit

import (
	"fmt"
	"sync"

	"github.com/chazu/slotjit/backend"
)

const maxStack = 4

// frame is the machine state of one running chunk.
type frame struct {
	s, src, dst []float64
	l           []float64

	stack [maxStack]float64
	sp    int

	ci, di   int
	cond     bool
	inactive int
}

var framePool = sync.Pool{
	New: func() interface{} {
		return &frame{}
	},
}

func getFrame(numLocals int) *frame {
	f := framePool.Get().(*frame)
	if cap(f.l) < numLocals {
		f.l = make([]float64, numLocals)
	}
	f.l = f.l[:numLocals]
	f.sp = 0
	return f
}

func putFrame(f *frame) {
	f.s, f.src, f.dst = nil, nil, nil
	framePool.Put(f)
}

// step executes one IL instruction and returns the index of the next one,
// or -1 to return.
type step func(f *frame) int

// Compiled is a chunk bound to closures, ready to execute.
type Compiled struct {
	steps     []step
	numLocals int
	code      []byte
}

// Listing returns the disassembled IL.
func (c *Compiled) Listing() string { return Disassemble(c.code) }

// Run executes the chunk against st.
func (c *Compiled) Run(st *backend.State) {
	f := getFrame(c.numLocals)
	defer putFrame(f)
	f.s, f.src, f.dst = st.Slots, st.Sources, st.Destinations
	f.ci, f.di, f.cond, f.inactive = st.Cosi, st.Codi, st.Cond, st.Inactive

	for pc := 0; pc >= 0; {
		pc = c.steps[pc](f)
	}

	st.Cosi, st.Codi, st.Cond, st.Inactive = f.ci, f.di, f.cond, f.inactive
}

// bind decodes code and turns every instruction into a closure with its
// operands and successor resolved. The operand stack must be empty at
// every branch and branch target.
func bind(code []byte, numLocals int) (*Compiled, error) {
	var ins []Instruction
	index := make(map[int]int)
	r := NewReader(code)
	for r.HasMore() {
		in, err := r.Decode()
		if err != nil {
			return nil, err
		}
		index[in.Pos] = len(ins)
		ins = append(ins, in)
	}
	if len(ins) == 0 || ins[len(ins)-1].Op != OpReturn {
		return nil, fmt.Errorf("IL does not end in %v", OpReturn)
	}
	if err := checkStack(ins, index); err != nil {
		return nil, err
	}

	c := &Compiled{steps: make([]step, len(ins)), numLocals: numLocals, code: code}
	for i, in := range ins {
		target := -1
		if in.Target >= 0 {
			t, ok := index[in.Target]
			if !ok {
				return nil, fmt.Errorf("%v at %d jumps to %d, not an instruction", in.Op, in.Pos, in.Target)
			}
			target = t
		}
		for _, a := range in.Args {
			if a < 0 && in.Op != OpBypass {
				return nil, fmt.Errorf("%v at %d: negative operand %d", in.Op, in.Pos, a)
			}
		}
		if (in.Op == OpLdLoc || in.Op == OpStLoc) && in.Args[0] >= numLocals {
			return nil, fmt.Errorf("%v at %d: local %d of %d", in.Op, in.Pos, in.Args[0], numLocals)
		}
		s, err := closure(in, i+1, target)
		if err != nil {
			return nil, err
		}
		c.steps[i] = s
	}
	return c, nil
}

func checkStack(ins []Instruction, index map[int]int) error {
	targets := make(map[int]bool)
	for _, in := range ins {
		if in.Target >= 0 {
			targets[index[in.Target]] = true
		}
	}
	depth := 0
	for i, in := range ins {
		if targets[i] && depth != 0 {
			return fmt.Errorf("stack depth %d at branch target %d", depth, in.Pos)
		}
		depth += in.Op.Info().StackEffect
		if depth < 0 || depth > maxStack {
			return fmt.Errorf("stack depth %d after %v at %d", depth, in.Op, in.Pos)
		}
		if in.Target >= 0 && depth != 0 {
			return fmt.Errorf("stack depth %d at branch %d", depth, in.Pos)
		}
	}
	return nil
}

func closure(in Instruction, next, target int) (step, error) {
	var a, b, n, k int
	if len(in.Args) > 0 {
		k = in.Args[0]
	}
	switch in.Op {
	case OpNop:
		return func(*frame) int { return next }, nil
	case OpLdSlot:
		return func(f *frame) int {
			f.stack[f.sp] = f.s[k]
			f.sp++
			return next
		}, nil
	case OpStSlot:
		return func(f *frame) int {
			f.sp--
			f.s[k] = f.stack[f.sp]
			return next
		}, nil
	case OpLdLoc:
		return func(f *frame) int {
			f.stack[f.sp] = f.l[k]
			f.sp++
			return next
		}, nil
	case OpStLoc:
		return func(f *frame) int {
			f.sp--
			f.l[k] = f.stack[f.sp]
			return next
		}, nil
	case OpLdConst:
		v := in.Const
		return func(f *frame) int {
			f.stack[f.sp] = v
			f.sp++
			return next
		}, nil
	case OpLdSource:
		return func(f *frame) int {
			f.stack[f.sp] = f.src[f.ci]
			f.sp++
			f.ci++
			return next
		}, nil
	case OpStDest:
		return func(f *frame) int {
			f.sp--
			f.dst[f.di] = f.stack[f.sp]
			f.di++
			return next
		}, nil
	case OpLdDestAt:
		return func(f *frame) int {
			f.stack[f.sp] = f.dst[k]
			f.sp++
			return next
		}, nil
	case OpStDestAt:
		return func(f *frame) int {
			f.sp--
			f.dst[k] = f.stack[f.sp]
			return next
		}, nil
	case OpAdvance:
		a, b = in.Args[0], in.Args[1]
		return func(f *frame) int {
			f.ci += a
			f.di += b
			return next
		}, nil
	case OpSetInact:
		return func(f *frame) int {
			f.inactive = k
			return next
		}, nil
	case OpReturn:
		return func(*frame) int { return -1 }, nil
	case OpBypass:
		a, b, n = in.Args[1], in.Args[2], in.Args[3]
		return func(f *frame) int {
			if f.inactive > k {
				f.ci += a
				f.di += b
				f.inactive += n
				return -1
			}
			return next
		}, nil

	case OpAdd:
		return func(f *frame) int {
			f.sp--
			f.stack[f.sp-1] = float64(f.stack[f.sp-1] + f.stack[f.sp])
			return next
		}, nil
	case OpSub:
		return func(f *frame) int {
			f.sp--
			f.stack[f.sp-1] = float64(f.stack[f.sp-1] - f.stack[f.sp])
			return next
		}, nil
	case OpMul:
		return func(f *frame) int {
			f.sp--
			f.stack[f.sp-1] = float64(f.stack[f.sp-1] * f.stack[f.sp])
			return next
		}, nil
	case OpCmpEQ:
		return func(f *frame) int {
			f.sp -= 2
			f.cond = f.stack[f.sp] == f.stack[f.sp+1]
			return next
		}, nil
	case OpCmpNE:
		return func(f *frame) int {
			f.sp -= 2
			f.cond = f.stack[f.sp] != f.stack[f.sp+1]
			return next
		}, nil
	case OpCmpGT:
		return func(f *frame) int {
			f.sp -= 2
			f.cond = f.stack[f.sp] > f.stack[f.sp+1]
			return next
		}, nil
	case OpCmpLT:
		return func(f *frame) int {
			f.sp -= 2
			f.cond = f.stack[f.sp] < f.stack[f.sp+1]
			return next
		}, nil

	case OpJump:
		return func(*frame) int { return target }, nil
	case OpJumpFalse:
		return func(f *frame) int {
			if !f.cond {
				return target
			}
			return next
		}, nil
	case OpJumpInact:
		return func(f *frame) int {
			if f.inactive == k {
				return target
			}
			return next
		}, nil
	}
	return nil, fmt.Errorf("cannot bind %v at %d", in.Op, in.Pos)
}
