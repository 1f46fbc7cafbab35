package emit

import (
	"strings"
	"testing"
)

func TestLabelForwardJump(t *testing.T) {
	b := NewBuilder()
	l := b.NewLabel()

	b.EmitJump(OpJumpFalse, l) // 5 bytes
	b.Emit(OpNop)              // position 5
	b.Emit(OpNop)              // position 6
	b.Mark(l)                  // target 7
	b.Emit(OpReturn)

	in, err := NewReader(b.Bytes()).Decode()
	if err != nil {
		t.Fatal(err)
	}
	if in.Target != 7 {
		t.Errorf("forward jump target = %d, want 7", in.Target)
	}
}

func TestLabelBackwardJump(t *testing.T) {
	b := NewBuilder()
	l := b.NewLabel()

	b.Mark(l)
	b.Emit(OpNop)
	b.EmitJump(OpJumpInact, l, 2)

	r := NewReader(b.Bytes())
	r.Decode()
	in, err := r.Decode()
	if err != nil {
		t.Fatal(err)
	}
	if in.Target != 0 || len(in.Args) != 1 || in.Args[0] != 2 {
		t.Errorf("decoded %+v, want target 0 with operand 2", in)
	}
}

func TestLabelDoubleMark(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("double mark should panic")
		}
	}()

	b := NewBuilder()
	l := b.NewLabel()
	b.Mark(l)
	b.Mark(l)
}

func TestDisassemble(t *testing.T) {
	b := NewBuilder()
	b.EmitInt32(OpLdSlot, 3)
	b.EmitFloat64(OpLdConst, 5)
	b.Emit(OpCmpEQ)
	b.EmitInt32s(OpAdvance, 1, 2)
	b.Emit(OpReturn)

	got := Disassemble(b.Bytes())
	want := strings.Join([]string{
		"0000  LD_SLOT 3",
		"0005  LD_CONST 5",
		"0014  CMP_EQ",
		"0015  ADVANCE 1 2",
		"0024  RETURN",
	}, "\n")
	if got != want {
		t.Errorf("Disassemble:\n%s\nwant:\n%s", got, want)
	}
}

func TestDecodeTruncated(t *testing.T) {
	code := []byte{byte(OpLdSlot), 1, 0}
	if _, err := NewReader(code).Decode(); err == nil {
		t.Error("truncated operand should fail")
	}
	if _, err := NewReader([]byte{0xFF}).Decode(); err == nil {
		t.Error("unknown opcode should fail")
	}
}

func TestBindRejectsBadIL(t *testing.T) {
	tests := []struct {
		name  string
		build func(b *Builder)
	}{
		{"no return", func(b *Builder) { b.Emit(OpNop) }},
		{"stack underflow", func(b *Builder) {
			b.EmitInt32(OpStSlot, 0)
			b.Emit(OpReturn)
		}},
		{"value across branch", func(b *Builder) {
			l := b.NewLabel()
			b.EmitInt32(OpLdSlot, 0)
			b.EmitJump(OpJumpFalse, l)
			b.EmitInt32(OpStSlot, 0)
			b.Mark(l)
			b.Emit(OpReturn)
		}},
		{"local out of range", func(b *Builder) {
			b.EmitInt32(OpLdLoc, 1)
			b.EmitInt32(OpStSlot, 0)
			b.Emit(OpReturn)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewBuilder()
			tt.build(b)
			if _, err := bind(b.Bytes(), 1); err == nil {
				t.Errorf("bind accepted:\n%s", Disassemble(b.Bytes()))
			}
		})
	}
}
