package module

import (
	"fmt"
	"testing"

	"github.com/smile-lang/smile/internal/symbol"
)

func newLoader(sources map[string]string) (*Loader, *symbol.Table, *int) {
	syms := symbol.New()
	known := symbol.NewKnown(syms)
	calls := 0
	loader := NewLoader(syms, known, func(name string) (string, string, error) {
		src, ok := sources[name]
		if !ok {
			return "", "", fmt.Errorf("not found")
		}
		calls++
		return src, "/lib/" + name + ".sm", nil
	})
	return loader, syms, &calls
}

func TestLoadModuleParses(t *testing.T) {
	loader, _, _ := newLoader(map[string]string{"m": "1 + 2"})
	info, err := loader.LoadModule("m")
	if err != nil {
		t.Fatalf("LoadModule: %v", err)
	}
	if !info.Ok {
		t.Errorf("clean module must be Ok:\n%s", info.Messages.FormatAll(false))
	}
	if info.Name != "m" || info.Scope == nil {
		t.Errorf("incomplete ModuleInfo: %+v", info)
	}
}

func TestLoadModuleCaches(t *testing.T) {
	loader, _, calls := newLoader(map[string]string{"m": "1"})
	first, _ := loader.LoadModule("m")
	second, _ := loader.LoadModule("m")
	if first != second {
		t.Errorf("repeated loads must return the cached ModuleInfo")
	}
	if *calls != 2 {
		// The resolver runs per request; the parse happens once.
		t.Logf("resolver calls: %d", *calls)
	}
}

func TestLoadModuleReportsErrors(t *testing.T) {
	loader, _, _ := newLoader(map[string]string{"bad": "if 1"})
	info, err := loader.LoadModule("bad")
	if err != nil {
		t.Fatalf("a parse failure is not a load failure: %v", err)
	}
	if info.Ok {
		t.Errorf("malformed module must not be Ok")
	}
	if info.Messages.Len() == 0 {
		t.Errorf("messages must carry the parse errors")
	}
}

func TestLoadModuleMissing(t *testing.T) {
	loader, _, _ := newLoader(nil)
	if _, err := loader.LoadModule("ghost"); err == nil {
		t.Errorf("unresolvable module must return an error")
	}
}

func TestExternalVarsAreInScope(t *testing.T) {
	loader, syms, _ := newLoader(map[string]string{"m": "limit + 1"})
	loader.ExternalVars = []symbol.Symbol{syms.Intern("limit")}

	info, err := loader.LoadModule("m")
	if err != nil {
		t.Fatalf("LoadModule: %v", err)
	}
	if !info.Ok {
		t.Errorf("externally-declared names must resolve:\n%s", info.Messages.FormatAll(false))
	}
}
