package gosrc

import (
	"go/ast"
	"go/importer"
	"go/parser"
	"go/token"
	"go/types"
	"strings"
)

// ValidationError is a parse or type error in generated source, attributed
// to the chunk function containing it.
type ValidationError struct {
	Line     int
	Column   int
	Function string // "<package>" when outside any function
	Message  string
}

// Validator parses and type-checks generated source in memory, so broken
// code is reported against its chunk before the toolchain runs.
type Validator struct {
	fset     *token.FileSet
	filename string
}

// NewValidator creates a validator; filename appears in positions.
func NewValidator(filename string) *Validator {
	return &Validator{filename: filename}
}

// Validate returns every error found in source.
func (v *Validator) Validate(source string) []ValidationError {
	v.fset = token.NewFileSet()

	file, err := parser.ParseFile(v.fset, v.filename, source, parser.AllErrors)
	if err != nil {
		return []ValidationError{{Line: 1, Column: 1, Function: "<package>", Message: err.Error()}}
	}

	funcs := v.functionLines(file)

	var errs []ValidationError
	conf := types.Config{
		Importer: importer.Default(),
		Error: func(err error) {
			terr, ok := err.(types.Error)
			if !ok {
				return
			}
			pos := v.fset.Position(terr.Pos)
			fn := funcs[pos.Line]
			if fn == "" {
				fn = "<package>"
			}
			errs = append(errs, ValidationError{
				Line:     pos.Line,
				Column:   pos.Column,
				Function: fn,
				Message:  terr.Msg,
			})
		},
	}
	_, _ = conf.Check(file.Name.Name, v.fset, []*ast.File{file}, nil)
	return errs
}

// functionLines maps each source line to the function declared over it.
func (v *Validator) functionLines(file *ast.File) map[int]string {
	lines := make(map[int]string)
	for _, decl := range file.Decls {
		fn, ok := decl.(*ast.FuncDecl)
		if !ok {
			continue
		}
		start := v.fset.Position(fn.Pos()).Line
		end := v.fset.Position(fn.End()).Line
		for l := start; l <= end; l++ {
			lines[l] = fn.Name.Name
		}
	}
	return lines
}

// FailingFunctions returns the names of functions with errors.
func FailingFunctions(errs []ValidationError) map[string]bool {
	out := make(map[string]bool)
	for _, e := range errs {
		if e.Function != "<package>" {
			out[e.Function] = true
		}
	}
	return out
}

// FormatValidationErrors returns a human-readable report.
func FormatValidationErrors(errs []ValidationError) string {
	var sb strings.Builder
	for _, e := range errs {
		sb.WriteString("  ")
		if e.Function != "<package>" {
			sb.WriteString(e.Function)
			sb.WriteString(": ")
		}
		sb.WriteString(e.Message)
		sb.WriteString("\n")
	}
	return sb.String()
}
