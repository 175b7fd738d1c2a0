package symbol

import "testing"

func TestInternAssignsStableIds(t *testing.T) {
	tbl := New()
	a := tbl.Intern("alpha")
	b := tbl.Intern("beta")
	if a == Invalid || b == Invalid {
		t.Fatalf("id 0 is reserved; got %d %d", a, b)
	}
	if a == b {
		t.Fatalf("distinct names must get distinct ids")
	}
	if tbl.Intern("alpha") != a {
		t.Errorf("re-interning must return the same id")
	}
}

func TestNameAndLookup(t *testing.T) {
	tbl := New()
	sym := tbl.Intern("plus")
	if tbl.Name(sym) != "plus" {
		t.Errorf("reverse lookup failed: %q", tbl.Name(sym))
	}
	if tbl.Name(Invalid) != "" {
		t.Errorf("id 0 must have no name")
	}
	if _, ok := tbl.Lookup("absent"); ok {
		t.Errorf("Lookup must not intern")
	}
	if got, ok := tbl.Lookup("plus"); !ok || got != sym {
		t.Errorf("Lookup existing: got %d %v", got, ok)
	}
	if tbl.Len() != 1 {
		t.Errorf("Len: expected 1, got %d", tbl.Len())
	}
}

func TestKnownSymbolsAreFixed(t *testing.T) {
	tbl := New()
	k := NewKnown(tbl)
	if k.IfForm == Invalid || k.FnForm == Invalid || k.PrognForm == Invalid {
		t.Fatalf("known forms must be interned")
	}
	if tbl.Intern("$if") != k.IfForm {
		t.Errorf("$if must resolve to the pre-interned id")
	}
	if tbl.Name(k.Stmt) != "STMT" {
		t.Errorf("STMT: got %q", tbl.Name(k.Stmt))
	}
}
