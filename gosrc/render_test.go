package gosrc

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/chazu/slotjit/alloc"
	"github.com/chazu/slotjit/program"
	"github.com/chazu/slotjit/program/synth"
)

var allocModes = []struct {
	name string
	opts alloc.Options
}{
	{"no-reuse", alloc.Options{}},
	{"reuse", alloc.Options{Reuse: true}},
	{"reuse-min1", alloc.Options{Reuse: true, MinUses: 1}},
	{"reuse-capped", alloc.Options{Reuse: true, MinUses: 1, MaxLocals: 2}},
}

func TestRenderTypeChecks(t *testing.T) {
	for seed := uint64(1); seed <= 8; seed++ {
		p := synth.Generate(synth.DefaultOptions(seed))
		for _, mode := range allocModes {
			for _, size := range []int{1, 5, 17, p.Len()} {
				name := fmt.Sprintf("seed%d/%s/%d", seed, mode.name, size)
				chunks, err := p.Partition(size)
				if err != nil {
					t.Fatalf("%s: %v", name, err)
				}
				source, err := Render(chunks, mode.opts)
				if err != nil {
					t.Fatalf("%s: %v", name, err)
				}
				if errs := NewValidator("chunks.go").Validate(source); len(errs) > 0 {
					t.Errorf("%s: generated source does not type-check:\n%s\n%s",
						name, FormatValidationErrors(errs), source)
				}
			}
		}
	}
}

func TestRenderScenario(t *testing.T) {
	p := program.MustNew(synth.Scenario())
	source, err := Render([]*program.Chunk{p.Whole()}, alloc.Options{})
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{
		"// Code generated by slotjit. DO NOT EDIT.",
		"package main",
		"func " + FuncName(p.Whole()) + "(s, src, dst []float64, ci, di int, cond bool, inactive int) (int, int, bool, int)",
		"src[ci]",
		"ci++",
		"dst[di]",
		"di++",
		"float64(l0 * l0)",
		"cond = l0 == 5.0",
		"return ci, di, cond, inactive",
		"func main()",
	} {
		if !strings.Contains(source, want) {
			t.Errorf("source missing %q:\n%s", want, source)
		}
	}
}

func TestRenderSharesSymbols(t *testing.T) {
	a := program.MustNew(synth.Scenario())
	b := program.MustNew(synth.Scenario())
	if FuncName(a.Whole()) != FuncName(b.Whole()) {
		t.Fatalf("equal content, different symbols: %s %s", FuncName(a.Whole()), FuncName(b.Whole()))
	}
	source, err := Render([]*program.Chunk{a.Whole(), b.Whole()}, alloc.Options{})
	if err != nil {
		t.Fatal(err)
	}
	if n := strings.Count(source, "func Chunk_"); n != 1 {
		t.Errorf("rendered %d chunk functions, want 1", n)
	}
}

func TestFuncNameDistinguishesContent(t *testing.T) {
	p := synth.Generate(synth.DefaultOptions(2))
	chunks, err := p.Partition(8)
	if err != nil {
		t.Fatal(err)
	}
	seen := make(map[string]program.Range)
	for _, c := range chunks {
		name := FuncName(c)
		if !strings.HasPrefix(name, "Chunk_") || len(name) != len("Chunk_")+24 {
			t.Errorf("malformed symbol %q", name)
		}
		if prev, ok := seen[name]; ok && !sameCommands(p, prev, c.Range()) {
			t.Errorf("%v and %v share %s with different commands", prev, c.Range(), name)
		}
		seen[name] = c.Range()
	}
}

func sameCommands(p *program.Program, a, b program.Range) bool {
	if a.Len() != b.Len() {
		return false
	}
	for i := 0; i < a.Len(); i++ {
		if p.At(a.Start+i) != p.At(b.Start+i) {
			return false
		}
	}
	return true
}

func TestValidatorAttributesErrors(t *testing.T) {
	source := `package main

func Chunk_ok(s []float64) float64 {
	return s[0]
}

func Chunk_bad(s []float64) float64 {
	return undefinedName
}

func main() {}
`
	errs := NewValidator("chunks.go").Validate(source)
	if len(errs) != 1 {
		t.Fatalf("got %d errors, want 1: %+v", len(errs), errs)
	}
	e := errs[0]
	if e.Function != "Chunk_bad" || e.Line != 8 || !strings.Contains(e.Message, "undefinedName") {
		t.Errorf("error = %+v", e)
	}
	failing := FailingFunctions(errs)
	if !failing["Chunk_bad"] || failing["Chunk_ok"] {
		t.Errorf("FailingFunctions = %v", failing)
	}
	if report := FormatValidationErrors(errs); !strings.HasPrefix(report, "  Chunk_bad: ") {
		t.Errorf("report = %q", report)
	}
}

func TestValidatorParseError(t *testing.T) {
	errs := NewValidator("chunks.go").Validate("package main\nfunc {")
	if len(errs) != 1 || errs[0].Function != "<package>" {
		t.Errorf("errs = %+v", errs)
	}
}

func TestRenderErrorUnwraps(t *testing.T) {
	err := error(&RenderError{Range: program.Range{Start: 2, End: 4}, Err: program.ErrUnsupportedOpcode})
	if !errors.Is(err, program.ErrUnsupportedOpcode) {
		t.Errorf("errors.Is failed for %v", err)
	}
	if !strings.Contains(err.Error(), "rendering") {
		t.Errorf("Error() = %q", err.Error())
	}
}
