// Package printer renders raw-form expression trees back to a stable
// textual representation: lists as `[elem elem ...]`, dotted pairs as
// `(left . right)`, symbols as their interned name, strings quoted with
// C-style escapes, and numeric literals with their type suffix (none for
// the default Int32 and Real64 kinds). The CLI's
// raw-form mode prints through this package.
package printer

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/smile-lang/smile/internal/object"
	"github.com/smile-lang/smile/internal/symbol"
)

// Printer renders object.Values. It needs the symbol table to turn Symbol
// ids back into names.
type Printer struct {
	symbols *symbol.Table
}

// New creates a Printer against the given symbol table.
func New(symbols *symbol.Table) *Printer {
	return &Printer{symbols: symbols}
}

// Print renders v to its stable textual form.
func (p *Printer) Print(v object.Value) string {
	var sb strings.Builder
	p.printValue(&sb, v)
	return sb.String()
}

func (p *Printer) printValue(sb *strings.Builder, v object.Value) {
	switch v.Kind {
	case object.KindNull:
		sb.WriteString("[]")
	case object.KindBool:
		if v.Data.(bool) {
			sb.WriteString("true")
		} else {
			sb.WriteString("false")
		}
	case object.KindByte:
		fmt.Fprintf(sb, "%dx", v.Data.(byte))
	case object.KindInt16:
		fmt.Fprintf(sb, "%dh", v.Data.(int16))
	case object.KindInt32:
		fmt.Fprintf(sb, "%d", v.Data.(int32))
	case object.KindInt64:
		fmt.Fprintf(sb, "%dL", v.Data.(int64))
	case object.KindInt128:
		fmt.Fprintf(sb, "%sLL", v.Data.(*big.Int).String())
	case object.KindBigInt:
		fmt.Fprintf(sb, "%st", v.Data.(*big.Int).String())
	case object.KindReal32:
		sb.WriteString(formatReal(float64(v.Data.(float32))) + "rf")
	case object.KindReal64:
		sb.WriteString(formatReal(v.Data.(float64)))
	case object.KindReal128:
		sb.WriteString(v.Data.(*big.Float).Text('g', -1) + "r")
	case object.KindFloat32:
		sb.WriteString(formatReal(float64(v.Data.(float32))) + "f")
	case object.KindFloat64:
		sb.WriteString(formatReal(v.Data.(float64)) + "f")
	case object.KindChar:
		sb.WriteString("'" + escapeChar(rune(v.Data.(byte))) + "'")
	case object.KindUni:
		sb.WriteString("'" + escapeChar(v.Data.(rune)) + "'")
	case object.KindSymbol:
		name := p.symbols.Name(v.Data.(symbol.Symbol))
		if name == "" {
			fmt.Fprintf(sb, "#%d", v.Data.(symbol.Symbol))
		} else {
			sb.WriteString(name)
		}
	case object.KindString:
		sb.WriteString(quoteString(v.Data.(*object.SmileString).String()))
	case object.KindList:
		p.printList(sb, v)
	case object.KindPair:
		pair := v.Data.(*object.SmilePair)
		sb.WriteString("(")
		p.printValue(sb, pair.Left)
		sb.WriteString(" . ")
		p.printValue(sb, pair.Right)
		sb.WriteString(")")
	case object.KindUserObject:
		sb.WriteString("{user-object}")
	case object.KindFunction:
		fn := v.Data.(object.Function)
		fmt.Fprintf(sb, "<fn %s>", fn.FunctionName())
	case object.KindHandle:
		h := v.Data.(*object.Handle)
		fmt.Fprintf(sb, "<handle %s>", h.Kind)
	case object.KindSyntax:
		sb.WriteString("<syntax>")
	case object.KindNonterminal:
		n := v.Data.(*object.Nonterminal)
		fmt.Fprintf(sb, "[%s %s]", p.symbols.Name(n.Class), p.symbols.Name(n.Variable))
	default:
		sb.WriteString("<unknown>")
	}
}

// printList renders a proper list as `[a b c]` and an improper list with a
// trailing dotted tail as `[a b . t]`.
func (p *Printer) printList(sb *strings.Builder, v object.Value) {
	sb.WriteString("[")
	first := true
	for v.Kind == object.KindList {
		cell := v.Data.(*object.Cell)
		if !first {
			sb.WriteString(" ")
		}
		p.printValue(sb, cell.Head)
		first = false
		v = cell.Tail
	}
	if v.Kind != object.KindNull {
		sb.WriteString(" . ")
		p.printValue(sb, v)
	}
	sb.WriteString("]")
}

func formatReal(f float64) string {
	s := strconv.FormatFloat(f, 'g', -1, 64)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return s
}

func escapeChar(r rune) string {
	switch r {
	case '\'':
		return "\\'"
	case '\\':
		return "\\\\"
	case '\n':
		return "\\n"
	case '\r':
		return "\\r"
	case '\t':
		return "\\t"
	}
	if r < 32 {
		return fmt.Sprintf("\\x%02X", r)
	}
	if r > 127 {
		return fmt.Sprintf("\\u%04X", r)
	}
	return string(r)
}

func quoteString(s string) string {
	var sb strings.Builder
	sb.WriteString("\"")
	for _, r := range s {
		switch r {
		case '"':
			sb.WriteString("\\\"")
		case '\\':
			sb.WriteString("\\\\")
		case '\n':
			sb.WriteString("\\n")
		case '\r':
			sb.WriteString("\\r")
		case '\t':
			sb.WriteString("\\t")
		case '{':
			sb.WriteString("\\{")
		case '}':
			sb.WriteString("\\}")
		default:
			if r < 32 {
				fmt.Fprintf(&sb, "\\x%02X", r)
			} else {
				sb.WriteRune(r)
			}
		}
	}
	sb.WriteString("\"")
	return sb.String()
}
