package gosrc

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"plugin"
	"runtime"
	"strings"
)

// ErrPluginsUnsupported means the platform cannot load Go plugins.
var ErrPluginsUnsupported = errors.New("plugin mode not supported on " + runtime.GOOS)

// Toolchain builds plugin sources with the go command.
type Toolchain struct {
	// Go is the go command; empty means "go" on PATH.
	Go string
}

func (tc Toolchain) command() string {
	if tc.Go == "" {
		return "go"
	}
	return tc.Go
}

// Version returns the output of "go env GOVERSION".
func (tc Toolchain) Version(ctx context.Context) (string, error) {
	out, err := exec.CommandContext(ctx, tc.command(), "env", "GOVERSION").Output()
	if err != nil {
		return "", fmt.Errorf("querying go version: %w", err)
	}
	return strings.TrimSpace(string(out)), nil
}

// Build writes source as a single-file module in dir and compiles it with
// -buildmode=plugin. It returns the path of the .so.
func (tc Toolchain) Build(ctx context.Context, dir, module, source string) (string, error) {
	if runtime.GOOS == "windows" {
		return "", ErrPluginsUnsupported
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create build directory: %w", err)
	}

	gomod := fmt.Sprintf("module %s\n\ngo %s\n", module, languageVersion())
	if err := os.WriteFile(filepath.Join(dir, "go.mod"), []byte(gomod), 0644); err != nil {
		return "", fmt.Errorf("failed to write go.mod: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "chunks.go"), []byte(source), 0644); err != nil {
		return "", fmt.Errorf("failed to write plugin source: %w", err)
	}

	output := filepath.Join(dir, "chunks.so")
	cmd := exec.CommandContext(ctx, tc.command(), "build", "-buildmode=plugin", "-o", output, ".")
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), "GOFLAGS=", "GOWORK=off", "CGO_ENABLED=1")

	out, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("failed to build plugin: %w\nOutput: %s", err, out)
	}
	return output, nil
}

// languageVersion is the go directive for generated modules: the major and
// minor version of the running toolchain.
func languageVersion() string {
	v := strings.TrimPrefix(runtime.Version(), "go")
	parts := strings.SplitN(v, ".", 3)
	if len(parts) < 2 {
		return "1.21"
	}
	minor := parts[1]
	if i := strings.IndexFunc(minor, func(r rune) bool { return r < '0' || r > '9' }); i >= 0 {
		minor = minor[:i]
	}
	return parts[0] + "." + minor
}

// Load opens a plugin and resolves each named chunk function.
func Load(path string, names []string) (map[string]chunkFunc, error) {
	if runtime.GOOS == "windows" {
		return nil, ErrPluginsUnsupported
	}
	p, err := plugin.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open plugin: %w", err)
	}
	funcs := make(map[string]chunkFunc, len(names))
	for _, name := range names {
		sym, err := p.Lookup(name)
		if err != nil {
			return nil, fmt.Errorf("plugin missing %s: %w", name, err)
		}
		fn, ok := sym.(chunkFunc)
		if !ok {
			return nil, fmt.Errorf("%s has type %T", name, sym)
		}
		funcs[name] = fn
	}
	return funcs, nil
}
