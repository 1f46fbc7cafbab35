// Package engine assembles backends from configuration and drives passes
// over a partitioned program.
package engine

import (
	"fmt"

	"github.com/chazu/slotjit/alloc"
	"github.com/chazu/slotjit/backend"
	"github.com/chazu/slotjit/emit"
	"github.com/chazu/slotjit/gosrc"
	"github.com/chazu/slotjit/interp"
	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("slotjit.engine")

// Backend kinds accepted by New.
const (
	KindInterp        = "interp"
	KindGoSrc         = "gosrc"
	KindEmit          = "emit"
	KindGoSrcFallback = "gosrc+fallback"
	KindEmitFallback  = "emit+fallback"
)

// Kinds lists every accepted kind.
var Kinds = []string{KindInterp, KindGoSrc, KindEmit, KindGoSrcFallback, KindEmitFallback}

// DefaultThreshold is the fallback threshold used when none is configured.
const DefaultThreshold = 8

// Config selects and configures a backend.
type Config struct {
	Kind string
	// Threshold is the longest chunk the fallback kinds interpret.
	Threshold int
	Options   backend.Options
	Alloc     alloc.Options
	GoSrc     gosrc.Config
}

// New builds the backend cfg names. Configuration errors are reported here,
// before anything is generated.
func New(cfg Config) (backend.Backend, error) {
	if err := cfg.Options.Check(); err != nil {
		return nil, err
	}

	switch cfg.Kind {
	case KindInterp:
		in, err := interp.New(cfg.Options)
		if err != nil {
			return nil, err
		}
		return in, nil
	case KindGoSrc, KindEmit:
		return compiler(cfg)
	case KindGoSrcFallback, KindEmitFallback:
		if cfg.Threshold < 0 {
			return nil, fmt.Errorf("%w: %d", backend.ErrInvalidThreshold, cfg.Threshold)
		}
		small, err := interp.New(cfg.Options)
		if err != nil {
			return nil, err
		}
		large, err := compiler(cfg)
		if err != nil {
			return nil, err
		}
		f, err := NewFallback(small, large, cfg.Threshold)
		if err != nil {
			return nil, err
		}
		return f, nil
	}
	return nil, fmt.Errorf("%w: %q", backend.ErrUnknownKind, cfg.Kind)
}

// compiler builds the compiling backend of a kind.
func compiler(cfg Config) (backend.Backend, error) {
	if cfg.Kind == KindGoSrc || cfg.Kind == KindGoSrcFallback {
		b, err := gosrc.New(cfg.Options, cfg.Alloc, cfg.GoSrc)
		if err != nil {
			return nil, err
		}
		return b, nil
	}
	b, err := emit.New(cfg.Options, cfg.Alloc)
	if err != nil {
		return nil, err
	}
	return b, nil
}
