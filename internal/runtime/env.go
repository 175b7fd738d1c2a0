// Package runtime ties the pipeline together behind one Environment
// handle: the process-wide symbol table, the known-symbol set, the global
// closure, and the root parse scope and syntax table (spec.md 9: "global
// mutable state ... concentrate in one explicit Environment handle").
package runtime

import (
	"github.com/smile-lang/smile/internal/bytecode"
	"github.com/smile-lang/smile/internal/compiler"
	"github.com/smile-lang/smile/internal/diagnostics"
	"github.com/smile-lang/smile/internal/lexer"
	"github.com/smile-lang/smile/internal/object"
	"github.com/smile-lang/smile/internal/parser"
	"github.com/smile-lang/smile/internal/parsescope"
	"github.com/smile-lang/smile/internal/symbol"
	"github.com/smile-lang/smile/internal/syntax"
)

// Environment is the single handle threaded through parsing, compiling,
// and evaluation. Create one at startup; it is not safe for concurrent
// use from multiple goroutines (spec.md 5).
type Environment struct {
	Symbols *symbol.Table
	Known   *symbol.Known
	VM      *bytecode.VM

	// Scope and Syntax persist across Eval calls so a REPL session keeps
	// its declarations and grammar extensions.
	Scope  *parsescope.Scope
	Syntax *syntax.Table

	compiler *compiler.Compiler
	tracing  bool
}

// Option configures an Environment.
type Option func(*Environment)

// WithTracing threads tracing through every stage.
func WithTracing(trace bool) Option {
	return func(e *Environment) { e.tracing = trace }
}

// NewEnvironment initializes the symbol table, interns the known symbols,
// installs the intrinsic protos, and creates the global closure.
func NewEnvironment(opts ...Option) *Environment {
	symbols := symbol.New()
	known := symbol.NewKnown(symbols)

	e := &Environment{
		Symbols: symbols,
		Known:   known,
		Scope:   parsescope.CreateRoot(),
		Syntax:  syntax.NewTable(known),
	}
	for _, opt := range opts {
		opt(e)
	}

	e.compiler = compiler.New(symbols, known, compiler.WithTracing(e.tracing))
	e.VM = bytecode.NewVM(symbols, known,
		bytecode.WithTracing(e.tracing),
		bytecode.WithLocations(e.compiler.Locations()))
	installIntrinsics(e)
	return e
}

// SetGlobalVariable exposes a variable in the global closure and declares
// it in the persistent root scope so source code can name it (used by the
// CLI's -D and the REPL's $a/$p/$e/$_ protocol, spec.md 6).
func (e *Environment) SetGlobalVariable(name string, v object.Value) {
	sym := e.Symbols.Intern(name)
	e.VM.SetGlobalVariable(sym, v)
	e.Scope.DeclareHere(sym, parsescope.DeclGlobal, lexer.Position{})
}

// GetGlobalVariable reads a global closure variable.
func (e *Environment) GetGlobalVariable(name string) object.Value {
	return e.VM.GetGlobalVariable(e.Symbols.Intern(name))
}

// Outcome carries everything one source unit produced on its way through
// the pipeline.
type Outcome struct {
	Raw    object.Value
	Result bytecode.EvalResult

	ParseMessages   *diagnostics.List
	CompileMessages *diagnostics.List

	// Compiled is the top-level function; nil when parsing or compiling
	// failed.
	Compiled *bytecode.ClosureInfo
}

// Ok reports whether the unit parsed and compiled cleanly.
func (o *Outcome) Ok(warningsAsErrors bool) bool {
	return !o.ParseMessages.HasErrors(warningsAsErrors) &&
		!o.CompileMessages.HasErrors(warningsAsErrors)
}

// Parse runs the lexer and parser over source, reusing the environment's
// persistent scope and syntax table.
func (e *Environment) Parse(source, filename string) (object.Value, *diagnostics.List) {
	lx := lexer.New(source, lexer.WithFilename(filename), lexer.WithTracing(e.tracing))
	p := parser.New(lx, e.Symbols, e.Known,
		parser.WithScope(e.Scope),
		parser.WithSyntaxTable(e.Syntax),
		parser.WithTracing(e.tracing))
	raw := p.Parse()

	diags := p.Diagnostics()
	for _, lerr := range lx.Errors() {
		diags.AddError(lerr.Pos, "%s", lerr.Message)
	}
	diags.AttachSource(source)

	e.Syntax = p.SyntaxTable()
	return raw, diags
}

// Compile lowers a raw form to a top-level function.
func (e *Environment) Compile(raw object.Value, name string) (*bytecode.ClosureInfo, *diagnostics.List) {
	before := e.compiler.Diagnostics().Len()
	info := e.compiler.Compile(raw, name)
	all := e.compiler.Diagnostics()
	fresh := &diagnostics.List{Items: all.Items[before:]}
	return info, fresh
}

// Eval runs the whole pipeline over one source unit. Parse or compile
// errors short-circuit evaluation.
func (e *Environment) Eval(source, filename string) *Outcome {
	out := &Outcome{CompileMessages: &diagnostics.List{}}
	out.Raw, out.ParseMessages = e.Parse(source, filename)
	if out.ParseMessages.HasErrors(false) {
		return out
	}

	out.Compiled, out.CompileMessages = e.Compile(out.Raw, "<main>")
	out.CompileMessages.AttachSource(source)
	if out.CompileMessages.HasErrors(false) {
		return out
	}

	out.Result = e.VM.Run(out.Compiled)
	return out
}
