package program

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestFileRoundTrip(t *testing.T) {
	p := MustNew(nested())
	chunks, err := p.Partition(6)
	if err != nil {
		t.Fatal(err)
	}
	f := &File{Commands: p.Commands(), Sources: []float64{1, 2.5}}
	for _, c := range chunks {
		f.Chunks = append(f.Chunks, c.Range())
	}

	path := filepath.Join(t.TempDir(), "prog.sj")
	if err := WriteFile(path, f); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	got, err := ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if diff := cmp.Diff(f, got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}

	q, err := got.Program()
	if err != nil {
		t.Fatal(err)
	}
	back, err := got.ChunksOf(q)
	if err != nil {
		t.Fatal(err)
	}
	if len(back) != 3 || back[1].Range() != (Range{2, 8}) {
		t.Errorf("chunks = %v", back)
	}
}

func TestMarshalIsCanonical(t *testing.T) {
	f := &File{Commands: nested()}
	a, err := Marshal(f)
	if err != nil {
		t.Fatal(err)
	}
	b, err := Marshal(&File{Commands: nested()})
	if err != nil {
		t.Fatal(err)
	}
	if string(a) != string(b) {
		t.Errorf("equal files encode differently")
	}
	if f.Version != FileVersion {
		t.Errorf("Marshal did not stamp the version")
	}
}

func TestUnmarshalRejects(t *testing.T) {
	data, err := cborEncMode.Marshal(&File{Version: 99})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := Unmarshal(data); err == nil || !strings.Contains(err.Error(), "version 99") {
		t.Errorf("err = %v, want unsupported version", err)
	}
	if _, err := Unmarshal([]byte{0xff, 0x00}); err == nil {
		t.Errorf("garbage accepted")
	}
}

func TestChunksOfDefaultsToWhole(t *testing.T) {
	p := MustNew(nested())
	chunks, err := (&File{Commands: nested()}).ChunksOf(p)
	if err != nil {
		t.Fatal(err)
	}
	if len(chunks) != 1 || chunks[0].Range() != (Range{0, 11}) {
		t.Errorf("chunks = %v", chunks)
	}
}

func TestFileInvalidProgram(t *testing.T) {
	f := &File{Commands: []ArrayCommand{If()}}
	if _, err := f.Program(); err == nil {
		t.Errorf("unclosed If accepted")
	}
	p := MustNew(nested())
	f = &File{Chunks: []Range{{0, 40}}}
	if _, err := f.ChunksOf(p); err == nil {
		t.Errorf("out-of-range chunk accepted")
	}
}
