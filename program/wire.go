package program

import (
	"fmt"
	"os"

	"github.com/fxamacker/cbor/v2"
)

// FileVersion is the current program file format version.
const FileVersion = 1

// File is the on-disk form of a program: its instructions, the chunk
// ranges the assembler chose, and optionally a source stream to run it
// against.
type File struct {
	Version  int            `cbor:"1,keyasint"`
	Commands []ArrayCommand `cbor:"2,keyasint"`
	Chunks   []Range        `cbor:"3,keyasint,omitempty"`
	Sources  []float64      `cbor:"4,keyasint,omitempty"`
}

var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("program: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// Marshal serializes f to canonical CBOR.
func Marshal(f *File) ([]byte, error) {
	if f.Version == 0 {
		f.Version = FileVersion
	}
	return cborEncMode.Marshal(f)
}

// Unmarshal deserializes a program file.
func Unmarshal(data []byte) (*File, error) {
	var f File
	if err := cbor.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("program: unmarshal file: %w", err)
	}
	if f.Version != FileVersion {
		return nil, fmt.Errorf("program: unsupported file version %d", f.Version)
	}
	return &f, nil
}

// Program validates the file's instructions.
func (f *File) Program() (*Program, error) {
	return New(f.Commands)
}

// ChunksOf builds the file's chunks against p. When the file lists no
// ranges, the whole program is a single chunk.
func (f *File) ChunksOf(p *Program) ([]*Chunk, error) {
	if len(f.Chunks) == 0 {
		if c := p.Whole(); c != nil {
			return []*Chunk{c}, nil
		}
		return nil, nil
	}
	chunks := make([]*Chunk, 0, len(f.Chunks))
	for _, r := range f.Chunks {
		c, err := p.Chunk(r.Start, r.End)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, c)
	}
	return chunks, nil
}

// ReadFile loads a program file from disk.
func ReadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}
	return Unmarshal(data)
}

// WriteFile stores f at path.
func WriteFile(path string, f *File) error {
	data, err := Marshal(f)
	if err != nil {
		return fmt.Errorf("program: marshal file: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}
