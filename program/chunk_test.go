package program

import (
	"errors"
	"testing"
)

func mustChunk(t *testing.T, p *Program, start, end int) *Chunk {
	t.Helper()
	c, err := p.Chunk(start, end)
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func TestChunkBadRange(t *testing.T) {
	p := MustNew(nested())
	for _, r := range []Range{{3, 3}, {-1, 2}, {0, 12}, {5, 4}} {
		if _, err := p.Chunk(r.Start, r.End); !errors.Is(err, ErrBadRange) {
			t.Errorf("Chunk%v: err = %v, want ErrBadRange", r, err)
		}
	}
	if MustNew(nil).Whole() != nil {
		t.Errorf("Whole of an empty program is not nil")
	}
}

func TestChunkIdentity(t *testing.T) {
	p := MustNew(nested())
	a, b := mustChunk(t, p, 2, 6), mustChunk(t, p, 2, 6)
	if a.Key() != b.Key() {
		t.Errorf("equal ranges have different keys")
	}
	other := MustNew(nested())
	if a.Key() == mustChunk(t, other, 2, 6).Key() {
		t.Errorf("chunks of different programs share a key")
	}
	if a.Name() != "chunk_2_6" || a.String() != "chunk[2,6)" || a.Len() != 4 {
		t.Errorf("name=%q string=%q len=%d", a.Name(), a.String(), a.Len())
	}
}

func TestLayoutWhole(t *testing.T) {
	p := MustNew(nested())
	l := p.Whole().Layout()

	if l.EntryOpen != 0 || l.ExitOpen != 0 || len(l.Leading) != 0 {
		t.Errorf("whole program: entry=%d exit=%d leading=%v", l.EntryOpen, l.ExitOpen, l.Leading)
	}
	outer := l.Region(2)
	if outer.If != 2 || outer.Close != 9 || outer.Skip != (Skip{1, 2}) || outer.Suspend != 0 {
		t.Errorf("Region(2) = %+v", outer)
	}
	if outer.Clipped(11) || outer.Synthetic() {
		t.Errorf("Region(2) clipped or synthetic")
	}
	wantDepth := []int{0, 0, 0, 1, 1, 1, 2, 1, 1, 0, 0}
	for i, w := range wantDepth {
		if got := l.Depth(i); got != w {
			t.Errorf("Depth(%d) = %d, want %d", i, got, w)
		}
	}
	if l.MaxDepth() != 2 {
		t.Errorf("MaxDepth = %d, want 2", l.MaxDepth())
	}
}

func TestLayoutClippedRegions(t *testing.T) {
	p := MustNew(nested())
	c := mustChunk(t, p, 0, 6)
	l := c.Layout()

	if l.EntryOpen != 0 || l.ExitOpen != 2 {
		t.Errorf("entry=%d exit=%d, want 0, 2", l.EntryOpen, l.ExitOpen)
	}
	outer, inner := l.Region(2), l.Region(5)
	if !outer.Clipped(c.End()) || outer.Close != 6 || outer.Skip != (Skip{Sources: 1}) || outer.Suspend != 2 {
		t.Errorf("outer = %+v", outer)
	}
	if !inner.Clipped(c.End()) || inner.Close != 6 || !inner.Skip.IsZero() || inner.Suspend != 1 {
		t.Errorf("inner = %+v", inner)
	}
}

func TestLayoutLeadingRegions(t *testing.T) {
	p := MustNew(nested())
	c := mustChunk(t, p, 6, 10)
	l := c.Layout()

	if l.EntryOpen != 2 || l.ExitOpen != 0 {
		t.Errorf("entry=%d exit=%d, want 2, 0", l.EntryOpen, l.ExitOpen)
	}
	want := []Region{
		{If: -1, Close: 9, Skip: Skip{Destinations: 2}},
		{If: -1, Close: 7, Skip: Skip{Destinations: 1}},
	}
	if len(l.Leading) != len(want) {
		t.Fatalf("Leading = %+v, want %+v", l.Leading, want)
	}
	for i := range want {
		if l.Leading[i] != want[i] || !l.Leading[i].Synthetic() {
			t.Errorf("Leading[%d] = %+v, want %+v", i, l.Leading[i], want[i])
		}
	}

	for _, tt := range []struct {
		inactive int
		close    int
		ok       bool
	}{
		{0, 0, false},
		{1, 7, true},
		{2, 9, true},
		{3, 0, false},
	} {
		r, ok := l.Resume(tt.inactive)
		if ok != tt.ok || (ok && r.Close != tt.close) {
			t.Errorf("Resume(%d) = %+v, %v, want close %d, %v", tt.inactive, r, ok, tt.close, tt.ok)
		}
	}

	wantDepth := map[int]int{6: 2, 7: 1, 8: 1, 9: 0}
	for i, w := range wantDepth {
		if got := l.Depth(i); got != w {
			t.Errorf("Depth(%d) = %d, want %d", i, got, w)
		}
	}
}

func TestLayoutMiddleChunk(t *testing.T) {
	p := MustNew(nested())
	// Starts inside the outer region, opens and closes the inner one.
	l := mustChunk(t, p, 4, 9).Layout()
	if l.EntryOpen != 1 || l.ExitOpen != 1 || len(l.Leading) != 0 {
		t.Errorf("entry=%d exit=%d leading=%v", l.EntryOpen, l.ExitOpen, l.Leading)
	}
	if r := l.Region(5); r.Close != 7 || r.Suspend != 0 {
		t.Errorf("Region(5) = %+v", r)
	}
	if l.Depth(4) != 0 || l.Depth(6) != 1 {
		t.Errorf("depths relative to the chunk: %d %d", l.Depth(4), l.Depth(6))
	}
}

func TestPartition(t *testing.T) {
	p := MustNew(nested())
	tests := []struct {
		size int
		want []Range
	}{
		{6, []Range{{0, 2}, {2, 8}, {8, 11}}},
		{11, []Range{{0, 11}}},
		{100, []Range{{0, 11}}},
		{1, []Range{{0, 1}, {1, 2}, {2, 3}, {3, 4}, {4, 5}, {5, 6}, {6, 7}, {7, 8}, {8, 9}, {9, 10}, {10, 11}}},
	}
	for _, tt := range tests {
		chunks, err := p.Partition(tt.size)
		if err != nil {
			t.Fatal(err)
		}
		if len(chunks) != len(tt.want) {
			t.Errorf("Partition(%d) = %d chunks, want %v", tt.size, len(chunks), tt.want)
			continue
		}
		for i, c := range chunks {
			if c.Range() != tt.want[i] {
				t.Errorf("Partition(%d)[%d] = %v, want %v", tt.size, i, c.Range(), tt.want[i])
			}
		}
	}
	if _, err := p.Partition(0); !errors.Is(err, ErrBadRange) {
		t.Errorf("Partition(0): err = %v, want ErrBadRange", err)
	}
}

func TestPartitionCoversProgram(t *testing.T) {
	p := MustNew(nested())
	for size := 1; size <= 12; size++ {
		chunks, err := p.Partition(size)
		if err != nil {
			t.Fatal(err)
		}
		next := 0
		for _, c := range chunks {
			if c.Start() != next || c.Len() > size {
				t.Errorf("Partition(%d): %v after %d", size, c.Range(), next)
			}
			next = c.End()
		}
		if next != p.Len() {
			t.Errorf("Partition(%d) ends at %d", size, next)
		}
	}
}

func TestHash(t *testing.T) {
	a := MustNew(nested())
	b := MustNew(nested())
	if a.Whole().Hash() != b.Whole().Hash() {
		t.Errorf("equal programs hash differently")
	}
	if mustChunk(t, a, 0, 6).Hash() == mustChunk(t, a, 0, 7).Hash() {
		t.Errorf("different lengths hash equally")
	}

	// The same instruction inside a continued region and at top level
	// generates different code.
	top := MustNew([]ArrayCommand{NextDestination(1)})
	inside := mustChunk(t, a, 6, 7)
	if inside.At(6) != top.At(0) {
		t.Fatalf("fixture drifted: %v vs %v", inside.At(6), top.At(0))
	}
	if inside.Hash() == top.Whole().Hash() {
		t.Errorf("continued chunk hashes like a top-level one")
	}

	c := MustNew([]ArrayCommand{EqualsValue(0, 1)})
	d := MustNew([]ArrayCommand{EqualsValue(0, 2)})
	if c.Whole().Hash() == d.Whole().Hash() {
		t.Errorf("immediates not hashed")
	}
}
