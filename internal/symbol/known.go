package symbol

// Known holds the pre-interned, fixed-id symbols the parser and compiler
// compare against directly rather than by string (spec.md 4.1). Every
// Environment (see internal/runtime) creates exactly one Known set bound to
// its own Table, at startup.
type Known struct {
	Plus, Minus, Star, Slash Symbol

	If, While, Till, Catch Symbol

	SetForm, OpSetForm, IfForm, WhileForm, TillForm, CatchForm Symbol
	ReturnForm, FnForm, QuoteForm, PrognForm, ScopeForm         Symbol
	NewForm, IsForm, TypeofForm, EqForm, NeForm                 Symbol
	AndForm, OrForm, NotForm, IndexForm, DotForm                 Symbol

	GetMember, SetMember Symbol

	// Template substitution markers produced by backquote parsing
	// (spec.md 4.5.1) and consumed when a syntax rule's replacement is
	// instantiated.
	UnquoteForm, SpliceForm Symbol

	// Method-call symbols the parser emits directly: dynamic-string
	// reassembly and the `..` range operator.
	Join, RangeTo, ConsOp Symbol

	// Property names with dedicated fast-path opcodes (spec.md 4.7:
	// LdA LdD LdLeft LdRight LdStart LdEnd LdCount LdLength).
	PropA, PropD, PropLeft, PropRight     Symbol
	PropStart, PropEnd, PropCount, PropLength Symbol

	// Well-known exception object property and kind symbols (spec.md 7).
	ExcKind, ExcMessage, ExcStackTrace Symbol
	KindNativeMethodError, KindEvalError, KindCompileError Symbol
	KindStoppedAtBreakpoint, KindUnknownError              Symbol

	// The function-call fallbacks for non-function callees (spec.md 4.7).
	Fn Symbol

	Stmt, Expr, OrExpr, AndExpr, NotExpr, CmpExpr Symbol
	AddExpr, MulExpr, BinaryExpr, ColonExpr       Symbol
	RangeExpr, PrefixExpr, ConsExpr, DotExpr, Term Symbol

	Does Symbol // does-not-understand
}

// NewKnown pre-interns the fixed symbol set against table and returns it.
// Call this exactly once per Table at startup (spec.md 4.1).
func NewKnown(t *Table) *Known {
	k := &Known{}
	k.Plus = t.Intern("+")
	k.Minus = t.Intern("-")
	k.Star = t.Intern("*")
	k.Slash = t.Intern("/")

	k.If = t.Intern("if")
	k.While = t.Intern("while")
	k.Till = t.Intern("till")
	k.Catch = t.Intern("catch")

	k.SetForm = t.Intern("$set")
	k.OpSetForm = t.Intern("$opset")
	k.IfForm = t.Intern("$if")
	k.WhileForm = t.Intern("$while")
	k.TillForm = t.Intern("$till")
	k.CatchForm = t.Intern("$catch")
	k.ReturnForm = t.Intern("$return")
	k.FnForm = t.Intern("$fn")
	k.QuoteForm = t.Intern("$quote")
	k.PrognForm = t.Intern("$progn")
	k.ScopeForm = t.Intern("$scope")
	k.NewForm = t.Intern("$new")
	k.IsForm = t.Intern("$is")
	k.TypeofForm = t.Intern("$typeof")
	k.EqForm = t.Intern("$eq")
	k.NeForm = t.Intern("$ne")
	k.AndForm = t.Intern("$and")
	k.OrForm = t.Intern("$or")
	k.NotForm = t.Intern("$not")
	k.IndexForm = t.Intern("$index")
	k.DotForm = t.Intern("$dot")

	k.GetMember = t.Intern("get-member")
	k.SetMember = t.Intern("set-member")

	k.UnquoteForm = t.Intern("$unquote")
	k.SpliceForm = t.Intern("$splice")

	k.Join = t.Intern("join")
	k.RangeTo = t.Intern("range-to")
	k.ConsOp = t.Intern("##")

	k.PropA = t.Intern("a")
	k.PropD = t.Intern("d")
	k.PropLeft = t.Intern("left")
	k.PropRight = t.Intern("right")
	k.PropStart = t.Intern("start")
	k.PropEnd = t.Intern("end")
	k.PropCount = t.Intern("count")
	k.PropLength = t.Intern("length")

	k.ExcKind = t.Intern("kind")
	k.ExcMessage = t.Intern("message")
	k.ExcStackTrace = t.Intern("stack-trace")
	k.KindNativeMethodError = t.Intern("native-method-error")
	k.KindEvalError = t.Intern("eval-error")
	k.KindCompileError = t.Intern("compile-error")
	k.KindStoppedAtBreakpoint = t.Intern("stopped-at-breakpoint")
	k.KindUnknownError = t.Intern("unknown-error")

	k.Fn = t.Intern("fn")

	k.Stmt = t.Intern("STMT")
	k.Expr = t.Intern("EXPR")
	k.OrExpr = t.Intern("OREXPR")
	k.AndExpr = t.Intern("ANDEXPR")
	k.NotExpr = t.Intern("NOTEXPR")
	k.CmpExpr = t.Intern("CMPEXPR")
	k.AddExpr = t.Intern("ADDEXPR")
	k.MulExpr = t.Intern("MULEXPR")
	k.BinaryExpr = t.Intern("BINARYEXPR")
	k.ColonExpr = t.Intern("COLONEXPR")
	k.RangeExpr = t.Intern("RANGEEXPR")
	k.PrefixExpr = t.Intern("PREFIXEXPR")
	k.ConsExpr = t.Intern("CONSEXPR")
	k.DotExpr = t.Intern("DOTEXPR")
	k.Term = t.Intern("TERM")

	k.Does = t.Intern("does-not-understand")
	return k
}
