package gosrc

import (
	"bytes"
	"encoding/hex"
	"fmt"

	"github.com/chazu/slotjit/alloc"
	"github.com/chazu/slotjit/lower"
	"github.com/chazu/slotjit/program"
	"github.com/dave/jennifer/jen"
)

// Chunk functions share one signature:
//
//	func(s, src, dst []float64, ci, di int, cond bool, inactive int) (int, int, bool, int)
//
// returning the updated cursors, condition flag and inactive count.
type chunkFunc = func(s, src, dst []float64, ci, di int, cond bool, inactive int) (int, int, bool, int)

// FuncName returns the exported symbol a chunk is rendered under. Chunks
// with the same content share a symbol.
func FuncName(c *program.Chunk) string {
	h := c.Hash()
	return "Chunk_" + hex.EncodeToString(h[:12])
}

// jenTarget renders one chunk as Go statements.
type jenTarget struct {
	blocks    [][]jen.Code // innermost last
	conds     []jen.Code   // guard of each open region
	elses     []bool       // whether the region's false branch started
	numLocals int
	err       error
}

var _ lower.Target = (*jenTarget)(nil)

func (t *jenTarget) emit(c jen.Code) {
	n := len(t.blocks) - 1
	t.blocks[n] = append(t.blocks[n], c)
}

func local(l int) *jen.Statement { return jen.Id(fmt.Sprintf("l%d", l)) }

func slot(s int) *jen.Statement { return jen.Id("s").Index(jen.Lit(s)) }

func operand(o lower.Operand) *jen.Statement {
	if o.IsLocal() {
		return local(o.Local)
	}
	return slot(o.Slot)
}

func ret() *jen.Statement {
	return jen.Return(jen.Id("ci"), jen.Id("di"), jen.Id("cond"), jen.Id("inactive"))
}

// adjust emits name += n, or nothing when n is zero.
func adjust(name string, n int) jen.Code {
	switch {
	case n > 0:
		return jen.Id(name).Op("+=").Lit(n)
	case n < 0:
		return jen.Id(name).Op("-=").Lit(-n)
	}
	return jen.Null()
}

func (t *jenTarget) Begin(numLocals int) {
	t.blocks = [][]jen.Code{nil}
	t.numLocals = numLocals
	for l := 0; l < numLocals; l++ {
		t.emit(jen.Var().Add(local(l)).Float64())
		t.emit(jen.Id("_").Op("=").Add(local(l)))
	}
}

func (t *jenTarget) Bypass(leading int, skip program.Skip, opened int) {
	t.emit(jen.If(jen.Id("inactive").Op(">").Lit(leading)).Block(
		adjust("ci", skip.Sources),
		adjust("di", skip.Destinations),
		adjust("inactive", opened),
		ret(),
	))
}

func (t *jenTarget) Load(l, s int) {
	t.emit(local(l).Op("=").Add(slot(s)))
}

func (t *jenTarget) Store(l, s int) {
	t.emit(slot(s).Op("=").Add(local(l)))
}

func (t *jenTarget) Instruction(cmd program.ArrayCommand, index, source lower.Operand) {
	switch cmd.Op {
	case program.OpZero:
		t.emit(operand(index).Op("=").Lit(0))
	case program.OpCopyTo:
		t.emit(operand(index).Op("=").Add(operand(source)))
	case program.OpNextSource:
		t.emit(operand(index).Op("=").Id("src").Index(jen.Id("ci")))
		t.emit(jen.Id("ci").Op("++"))
	case program.OpMultiplyBy:
		t.arith("*", index, source)
	case program.OpIncrementBy:
		t.arith("+", index, source)
	case program.OpDecrementBy:
		t.arith("-", index, source)
	case program.OpNextDestination:
		t.emit(jen.Id("dst").Index(jen.Id("di")).Op("=").Add(operand(source)))
		t.emit(jen.Id("di").Op("++"))
	case program.OpReusedDestination:
		at := func() *jen.Statement { return jen.Id("dst").Index(jen.Lit(cmd.Index)) }
		t.emit(at().Op("=").Float64().Parens(at().Op("+").Add(operand(source))))
	case program.OpEqualsOtherArrayIndex:
		t.compare("==", index, operand(source))
	case program.OpNotEqualsOtherArrayIndex:
		t.compare("!=", index, operand(source))
	case program.OpGreaterThanOtherArrayIndex:
		t.compare(">", index, operand(source))
	case program.OpLessThanOtherArrayIndex:
		t.compare("<", index, operand(source))
	case program.OpEqualsValue:
		t.compare("==", index, jen.Lit(cmd.Immediate()))
	case program.OpNotEqualsValue:
		t.compare("!=", index, jen.Lit(cmd.Immediate()))
	default:
		if t.err == nil {
			t.err = fmt.Errorf("%w: %v", program.ErrUnsupportedOpcode, cmd.Op)
		}
	}
}

// arith emits index = float64(index op source). The conversion forces
// rounding and keeps the compiler from fusing operations.
func (t *jenTarget) arith(op string, index, source lower.Operand) {
	t.emit(operand(index).Op("=").Float64().Parens(operand(index).Op(op).Add(operand(source))))
}

func (t *jenTarget) compare(op string, index lower.Operand, rhs *jen.Statement) {
	t.emit(jen.Id("cond").Op("=").Add(operand(index)).Op(op).Add(rhs))
}

func (t *jenTarget) Marker(cmd program.ArrayCommand) {
	t.emit(jen.Comment(cmd.Op.String()))
}

func (t *jenTarget) open(cond jen.Code) {
	t.conds = append(t.conds, cond)
	t.elses = append(t.elses, false)
	t.blocks = append(t.blocks, nil)
}

func (t *jenTarget) If() { t.open(jen.Id("cond")) }

func (t *jenTarget) Resume(inactive int) {
	t.open(jen.Id("inactive").Op("!=").Lit(inactive))
}

func (t *jenTarget) Else() {
	t.elses[len(t.elses)-1] = true
	t.blocks = append(t.blocks, nil)
}

func (t *jenTarget) Skip(sk program.Skip) {
	t.emit(adjust("ci", sk.Sources))
	t.emit(adjust("di", sk.Destinations))
}

func (t *jenTarget) SetInactive(n int) {
	t.emit(jen.Id("inactive").Op("=").Lit(n))
}

func (t *jenTarget) EndIf() {
	n := len(t.conds) - 1
	cond, hasElse := t.conds[n], t.elses[n]
	t.conds, t.elses = t.conds[:n], t.elses[:n]

	var orElse []jen.Code
	if hasElse {
		orElse = t.blocks[len(t.blocks)-1]
		t.blocks = t.blocks[:len(t.blocks)-1]
	}
	body := t.blocks[len(t.blocks)-1]
	t.blocks = t.blocks[:len(t.blocks)-1]

	stmt := jen.If(cond).Block(body...)
	if len(orElse) > 0 {
		stmt = stmt.Else().Block(orElse...)
	}
	t.emit(stmt)
}

func (t *jenTarget) End() { t.emit(ret()) }

// renderFunc lowers c into a function declaration on f.
func renderFunc(f *jen.File, c *program.Chunk, opts alloc.Options) error {
	plan := alloc.New(c, opts)
	t := &jenTarget{}
	lower.Walk(c, plan, t)
	if t.err != nil {
		return t.err
	}
	f.Commentf("%s covers %v with %d locals.", FuncName(c), c.Range(), plan.NumLocals)
	f.Func().Id(FuncName(c)).Params(
		jen.List(jen.Id("s"), jen.Id("src"), jen.Id("dst")).Index().Float64(),
		jen.List(jen.Id("ci"), jen.Id("di")).Int(),
		jen.Id("cond").Bool(),
		jen.Id("inactive").Int(),
	).Params(jen.Int(), jen.Int(), jen.Bool(), jen.Int()).Block(t.blocks[0]...)
	f.Line()
	return nil
}

// RenderError reports the chunk that could not be rendered.
type RenderError struct {
	Range program.Range
	Err   error
}

func (e *RenderError) Error() string { return fmt.Sprintf("rendering %v: %v", e.Range, e.Err) }

func (e *RenderError) Unwrap() error { return e.Err }

// Render produces the plugin source for a batch of chunks. Chunks sharing a
// symbol are rendered once. The output depends only on the chunks and opts,
// so its hash identifies the build.
func Render(chunks []*program.Chunk, opts alloc.Options) (string, error) {
	f := jen.NewFile("main")
	f.HeaderComment("Code generated by slotjit. DO NOT EDIT.")

	seen := make(map[string]bool)
	for _, c := range chunks {
		name := FuncName(c)
		if seen[name] {
			continue
		}
		seen[name] = true
		if err := renderFunc(f, c, opts); err != nil {
			return "", &RenderError{Range: c.Range(), Err: err}
		}
	}

	// Plugins are built from a main package.
	f.Func().Id("main").Params().Block()

	var buf bytes.Buffer
	if err := f.Render(&buf); err != nil {
		return "", fmt.Errorf("render: %w", err)
	}
	return buf.String(), nil
}
