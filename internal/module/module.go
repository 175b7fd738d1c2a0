// Package module implements module loading (spec.md 6): a module is a
// self-contained source string parsed in a fresh scope against a supplied
// set of externally-declared variables. The host evaluates the returned
// expression in the global closure to install the module's exports.
// Filesystem access is the host's business: a SourceLoader supplies bytes.
package module

import (
	"fmt"

	"github.com/smile-lang/smile/internal/diagnostics"
	"github.com/smile-lang/smile/internal/lexer"
	"github.com/smile-lang/smile/internal/object"
	"github.com/smile-lang/smile/internal/parser"
	"github.com/smile-lang/smile/internal/parsescope"
	"github.com/smile-lang/smile/internal/symbol"
	"github.com/smile-lang/smile/internal/syntax"
)

// SourceLoader resolves a module name to its source text. The returned
// path keys the loaded-module cache so a module parses once no matter how
// many times it is referenced.
type SourceLoader func(name string) (source string, path string, err error)

// ModuleInfo is the result of loading one module (spec.md 6).
type ModuleInfo struct {
	Name       string
	Ok         bool
	Expression object.Value
	Scope      *parsescope.Scope
	Messages   *diagnostics.List
}

// Loader parses modules on demand and caches the results by resolved
// path.
type Loader struct {
	symbols *symbol.Table
	known   *symbol.Known
	source  SourceLoader
	cache   map[string]*ModuleInfo

	// ExternalVars are predeclared as globals in every module's fresh
	// scope.
	ExternalVars []symbol.Symbol
}

// NewLoader creates a Loader backed by the given source resolver.
func NewLoader(symbols *symbol.Table, known *symbol.Known, source SourceLoader) *Loader {
	return &Loader{
		symbols: symbols,
		known:   known,
		source:  source,
		cache:   make(map[string]*ModuleInfo),
	}
}

// LoadModule resolves, parses, and caches the named module. A second load
// of the same resolved path returns the cached ModuleInfo unchanged.
func (l *Loader) LoadModule(name string) (*ModuleInfo, error) {
	source, path, err := l.source(name)
	if err != nil {
		return nil, fmt.Errorf("module %s: %w", name, err)
	}
	if info, ok := l.cache[path]; ok {
		return info, nil
	}

	scope := parsescope.CreateRoot()
	scope.DeclareVariablesFromNames(l.ExternalVars)

	lx := lexer.New(source, lexer.WithFilename(path))
	p := parser.New(lx, l.symbols, l.known,
		parser.WithScope(scope),
		parser.WithSyntaxTable(syntax.NewTable(l.known)))
	expr := p.Parse()

	diags := p.Diagnostics()
	for _, lerr := range lx.Errors() {
		diags.AddError(lerr.Pos, "%s", lerr.Message)
	}
	diags.AttachSource(source)

	info := &ModuleInfo{
		Name:       name,
		Ok:         !diags.HasErrors(false),
		Expression: expr,
		Scope:      scope,
		Messages:   diags,
	}
	l.cache[path] = info
	return info, nil
}
