// Package manifest handles slotjit.toml configuration.
package manifest

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/BurntSushi/toml"
	"github.com/chazu/slotjit/alloc"
	"github.com/chazu/slotjit/backend"
	"github.com/chazu/slotjit/engine"
	"github.com/chazu/slotjit/gosrc"
)

// FileName is the configuration file looked up by Load and FindAndLoad.
const FileName = "slotjit.toml"

// DefaultChunkSize is the partition size used when none is configured.
const DefaultChunkSize = 64

// ErrInvalid wraps every schema violation.
var ErrInvalid = errors.New("invalid configuration")

//go:embed schema.cue
var schemaSource string

// Manifest represents a slotjit.toml configuration.
type Manifest struct {
	Engine Engine `toml:"engine"`
	Alloc  Alloc  `toml:"alloc"`
	GoSrc  GoSrc  `toml:"gosrc"`
	Log    Log    `toml:"log"`

	// Dir is the directory containing the slotjit.toml file (set at load time).
	Dir string `toml:"-"`
}

// Engine selects the backend and how passes run.
type Engine struct {
	Kind       string `toml:"kind"`
	Threshold  int    `toml:"threshold"`
	Checkpoint bool   `toml:"checkpoint"`
	Workers    int    `toml:"workers"`
	ChunkSize  int    `toml:"chunk-size"`
}

// Alloc configures local allocation in the compiling backends.
type Alloc struct {
	Reuse     bool `toml:"reuse"`
	MinUses   int  `toml:"min-uses"`
	MaxLocals int  `toml:"max-locals"`
}

// GoSrc configures the plugin backend.
type GoSrc struct {
	PreserveSource bool   `toml:"preserve-source"`
	BuildDir       string `toml:"build-dir"`
	CacheDB        string `toml:"cache-db"`
	Go             string `toml:"go"`
}

// Log configures logging in the command.
type Log struct {
	Verbosity int    `toml:"verbosity"`
	File      string `toml:"file"`
}

// Default returns the configuration used when no file is present.
func Default() *Manifest {
	m := &Manifest{}
	m.applyDefaults()
	return m
}

// Load parses and validates the slotjit.toml file in dir.
func Load(dir string) (*Manifest, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	m, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	m.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}
	return m, nil
}

// Parse validates a slotjit.toml document against the schema and decodes
// it. Relative paths are left as written.
func Parse(data []byte) (*Manifest, error) {
	var raw map[string]any
	if err := toml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse error: %w", err)
	}
	if err := validate(raw); err != nil {
		return nil, err
	}

	var m Manifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse error: %w", err)
	}
	m.applyDefaults()
	return &m, nil
}

func validate(raw map[string]any) error {
	if raw == nil {
		raw = map[string]any{}
	}
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compiling schema: %w", err)
	}
	doc := ctx.Encode(raw)
	if err := doc.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	v := schema.LookupPath(cue.ParsePath("#Config")).Unify(doc)
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return nil
}

func (m *Manifest) applyDefaults() {
	if m.Engine.Kind == "" {
		m.Engine.Kind = engine.KindEmitFallback
	}
	if m.Engine.Threshold == 0 {
		m.Engine.Threshold = engine.DefaultThreshold
	}
	if m.Engine.ChunkSize == 0 {
		m.Engine.ChunkSize = DefaultChunkSize
	}
}

// FindAndLoad walks up from startDir to find a slotjit.toml file,
// then loads and returns the manifest. Returns nil if no manifest is found.
func FindAndLoad(startDir string) (*Manifest, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			return nil, nil
		}
		dir = parent
	}
}

// path resolves p against the manifest directory.
func (m *Manifest) path(p string) string {
	if p == "" || filepath.IsAbs(p) || m.Dir == "" {
		return p
	}
	return filepath.Join(m.Dir, p)
}

// EngineConfig converts the manifest into a backend configuration. Paths
// are resolved against the manifest directory.
func (m *Manifest) EngineConfig() engine.Config {
	return engine.Config{
		Kind:      m.Engine.Kind,
		Threshold: m.Engine.Threshold,
		Options: backend.Options{
			PreserveSource: m.GoSrc.PreserveSource,
			Checkpoint:     m.Engine.Checkpoint,
		},
		Alloc: alloc.Options{
			Reuse:     m.Alloc.Reuse,
			MinUses:   m.Alloc.MinUses,
			MaxLocals: m.Alloc.MaxLocals,
		},
		GoSrc: gosrc.Config{
			BuildDir: m.path(m.GoSrc.BuildDir),
			CacheDB:  m.path(m.GoSrc.CacheDB),
			Go:       m.GoSrc.Go,
		},
	}
}

// LogFile returns the resolved log file path, or nil for standard error.
func (m *Manifest) LogFile() *string {
	if m.Log.File == "" {
		return nil
	}
	p := m.path(m.Log.File)
	return &p
}
