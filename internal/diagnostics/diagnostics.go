// Package diagnostics formats Smile's parse, compile, and runtime
// diagnostics with source context, line/column information, and visual
// indicators (carets) pointing at the offending location.
package diagnostics

import (
	"fmt"
	"strings"

	"github.com/smile-lang/smile/internal/lexer"
)

// Severity classifies a diagnostic.
type Severity byte

const (
	Info Severity = iota
	Warning
	Error
)

func (s Severity) String() string {
	switch s {
	case Info:
		return "info"
	case Warning:
		return "warning"
	default:
		return "error"
	}
}

// Diagnostic is a single parse or compile message with position and optional
// source context.
type Diagnostic struct {
	Severity Severity
	Text     string
	Source   string
	Pos      lexer.Position
}

// New creates a diagnostic.
func New(severity Severity, pos lexer.Position, text string) *Diagnostic {
	return &Diagnostic{Severity: severity, Pos: pos, Text: text}
}

// Error implements the error interface.
func (d *Diagnostic) Error() string {
	return d.Format(false)
}

// Format formats the diagnostic with its source line and a caret. If color
// is true, ANSI color codes are used for terminal output.
func (d *Diagnostic) Format(color bool) string {
	var sb strings.Builder

	sev := d.severityHeader()
	if d.Pos.File != "" {
		sb.WriteString(fmt.Sprintf("%s in %s:%d:%d\n", sev, d.Pos.File, d.Pos.Line, d.Pos.Column))
	} else {
		sb.WriteString(fmt.Sprintf("%s at line %d:%d\n", sev, d.Pos.Line, d.Pos.Column))
	}

	sourceLine := d.getSourceLine(d.Pos.Line)
	if sourceLine != "" {
		lineNumStr := fmt.Sprintf("%4d | ", d.Pos.Line)
		sb.WriteString(lineNumStr)
		sb.WriteString(sourceLine)
		sb.WriteString("\n")

		col := d.Pos.Column
		if col < 1 {
			col = 1
		}
		sb.WriteString(strings.Repeat(" ", len(lineNumStr)+col-1))
		if color {
			sb.WriteString(d.caretColor())
		}
		sb.WriteString("^")
		if color {
			sb.WriteString("\033[0m")
		}
		sb.WriteString("\n")
	}

	if color {
		sb.WriteString("\033[1m")
	}
	sb.WriteString(d.Text)
	if color {
		sb.WriteString("\033[0m")
	}

	return sb.String()
}

func (d *Diagnostic) severityHeader() string {
	switch d.Severity {
	case Info:
		return "Info"
	case Warning:
		return "Warning"
	default:
		return "Error"
	}
}

func (d *Diagnostic) caretColor() string {
	switch d.Severity {
	case Warning:
		return "\033[1;33m"
	case Error:
		return "\033[1;31m"
	default:
		return "\033[1;36m"
	}
}

// getSourceLine extracts a specific line from the source code.
// Lines are 1-indexed.
func (d *Diagnostic) getSourceLine(lineNum int) string {
	if d.Source == "" {
		return ""
	}

	lines := strings.Split(d.Source, "\n")
	if lineNum < 1 || lineNum > len(lines) {
		return ""
	}

	return lines[lineNum-1]
}

// FormatWithContext formats the diagnostic with contextLines lines of
// surrounding source on each side.
func (d *Diagnostic) FormatWithContext(contextLines int, color bool) string {
	if d.Source == "" {
		return d.Format(color)
	}

	lines := strings.Split(d.Source, "\n")
	if d.Pos.Line < 1 || d.Pos.Line > len(lines) {
		return d.Format(color)
	}

	startLine := d.Pos.Line - contextLines
	if startLine < 1 {
		startLine = 1
	}
	endLine := d.Pos.Line + contextLines
	if endLine > len(lines) {
		endLine = len(lines)
	}

	var sb strings.Builder
	sev := d.severityHeader()
	if d.Pos.File != "" {
		sb.WriteString(fmt.Sprintf("%s in %s:%d:%d\n", sev, d.Pos.File, d.Pos.Line, d.Pos.Column))
	} else {
		sb.WriteString(fmt.Sprintf("%s at line %d:%d\n", sev, d.Pos.Line, d.Pos.Column))
	}

	for cur := startLine; cur <= endLine; cur++ {
		line := lines[cur-1]
		lineNumStr := fmt.Sprintf("%4d | ", cur)

		if cur == d.Pos.Line {
			if color {
				sb.WriteString("\033[1m")
			}
			sb.WriteString(lineNumStr)
			sb.WriteString(line)
			if color {
				sb.WriteString("\033[0m")
			}
			sb.WriteString("\n")

			col := d.Pos.Column
			if col < 1 {
				col = 1
			}
			sb.WriteString(strings.Repeat(" ", len(lineNumStr)+col-1))
			if color {
				sb.WriteString(d.caretColor())
			}
			sb.WriteString("^")
			if color {
				sb.WriteString("\033[0m")
			}
			sb.WriteString("\n")
		} else {
			if color {
				sb.WriteString("\033[2m")
			}
			sb.WriteString(lineNumStr)
			sb.WriteString(line)
			if color {
				sb.WriteString("\033[0m")
			}
			sb.WriteString("\n")
		}
	}

	sb.WriteString("\n")
	if color {
		sb.WriteString("\033[1m")
	}
	sb.WriteString(d.Text)
	if color {
		sb.WriteString("\033[0m")
	}

	return sb.String()
}

// List is an ordered collection of diagnostics accumulated by one pipeline
// stage (lexing, parsing, or compiling).
type List struct {
	Items []*Diagnostic
}

// Add appends a diagnostic.
func (l *List) Add(d *Diagnostic) {
	l.Items = append(l.Items, d)
}

// AddError is shorthand for appending an Error-severity diagnostic.
func (l *List) AddError(pos lexer.Position, format string, args ...any) {
	l.Add(New(Error, pos, fmt.Sprintf(format, args...)))
}

// AddWarning is shorthand for appending a Warning-severity diagnostic.
func (l *List) AddWarning(pos lexer.Position, format string, args ...any) {
	l.Add(New(Warning, pos, fmt.Sprintf(format, args...)))
}

// AddInfo is shorthand for appending an Info-severity diagnostic.
func (l *List) AddInfo(pos lexer.Position, format string, args ...any) {
	l.Add(New(Info, pos, fmt.Sprintf(format, args...)))
}

// HasErrors reports whether any diagnostic has Error severity. With
// warningsAsErrors, warnings count too.
func (l *List) HasErrors(warningsAsErrors bool) bool {
	for _, d := range l.Items {
		if d.Severity == Error || (warningsAsErrors && d.Severity == Warning) {
			return true
		}
	}
	return false
}

// Len reports the number of accumulated diagnostics.
func (l *List) Len() int { return len(l.Items) }

// AttachSource fills in the Source field on every diagnostic that lacks
// one, so Format can show the offending line.
func (l *List) AttachSource(source string) {
	for _, d := range l.Items {
		if d.Source == "" {
			d.Source = source
		}
	}
}

// FormatAll formats every diagnostic, numbered, matching the multi-error
// output shape of the rest of the toolchain.
func (l *List) FormatAll(color bool) string {
	if len(l.Items) == 0 {
		return ""
	}

	var sb strings.Builder
	for i, d := range l.Items {
		if len(l.Items) > 1 {
			if color {
				sb.WriteString("\033[1m")
			}
			sb.WriteString(fmt.Sprintf("[%d/%d] ", i+1, len(l.Items)))
			if color {
				sb.WriteString("\033[0m")
			}
		}
		sb.WriteString(d.Format(color))
		sb.WriteString("\n")
		if i < len(l.Items)-1 {
			sb.WriteString("\n")
		}
	}
	return sb.String()
}
