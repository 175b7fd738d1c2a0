package lexer

import "fmt"

// TokenKind identifies the lexical category of a Token.
type TokenKind int

const (
	EOI TokenKind = iota
	ILLEGAL

	LeftBracket
	RightBracket
	LeftParen
	RightParen
	LeftBrace
	RightBrace
	Comma
	Semicolon
	Colon
	Dot
	Bar

	AlphaName
	PunctName

	Byte
	Int16
	Int32
	Int64
	Int128
	BigIntLit
	Real32
	Real64
	Real128
	Float32
	Float64

	CharLit
	UniLit
	RawString
	DynString
	DynStringBegin // "...{  (dynamic string up to an embedded expression)
	DynStringMid   // }...{  (between two embedded expressions)
	DynStringEnd   // }..."  (closing segment after the last embedded expression)

	Backtick
	At
	DoubleAt
	DoubleHash
)

var tokenKindNames = [...]string{
	EOI:              "EOI",
	ILLEGAL:          "ILLEGAL",
	LeftBracket:      "LeftBracket",
	RightBracket:     "RightBracket",
	LeftParen:        "LeftParen",
	RightParen:       "RightParen",
	LeftBrace:        "LeftBrace",
	RightBrace:       "RightBrace",
	Comma:            "Comma",
	Semicolon:        "Semicolon",
	Colon:            "Colon",
	Dot:              "Dot",
	Bar:              "Bar",
	AlphaName:        "AlphaName",
	PunctName:        "PunctName",
	Byte:             "Byte",
	Int16:            "Int16",
	Int32:            "Int32",
	Int64:            "Int64",
	Int128:           "Int128",
	BigIntLit:        "BigInt",
	Real32:           "Real32",
	Real64:           "Real64",
	Real128:          "Real128",
	Float32:          "Float32",
	Float64:          "Float64",
	CharLit:          "Char",
	UniLit:           "Uni",
	RawString:        "RawString",
	DynString:        "DynString",
	DynStringBegin:   "DynStringBegin",
	DynStringMid:     "DynStringMid",
	DynStringEnd:     "DynStringEnd",
	Backtick:         "Backtick",
	At:               "At",
	DoubleAt:         "DoubleAt",
	DoubleHash:       "DoubleHash",
}

func (k TokenKind) String() string {
	if int(k) >= 0 && int(k) < len(tokenKindNames) && tokenKindNames[k] != "" {
		return tokenKindNames[k]
	}
	return fmt.Sprintf("TokenKind(%d)", int(k))
}

// Position locates a token in its source file.
type Position struct {
	File   string
	Line   int
	Column int
	Offset int
}

func (p Position) String() string {
	if p.File != "" {
		return fmt.Sprintf("%s:%d:%d", p.File, p.Line, p.Column)
	}
	return fmt.Sprintf("%d:%d", p.Line, p.Column)
}

// Token is a single lexical unit: a kind, its textual or numeric payload, and
// the position it started at.
type Token struct {
	Kind  TokenKind
	Text  string // verbatim or decoded text payload (identifier, string contents, punctuation spelling)
	Int   int64  // decoded integer payload for Byte/Int16/Int32/Int64
	Float float64
	Pos   Position
	// AfterNewline is set when at least one line terminator was crossed
	// between the previous token and this one. The parser consults it to
	// decide whether a binary operator may continue the expression
	// (spec.md 4.5, line wrapping).
	AfterNewline bool
}

func NewToken(kind TokenKind, text string, pos Position) Token {
	return Token{Kind: kind, Text: text, Pos: pos}
}

func (t Token) String() string {
	if t.Text != "" {
		return fmt.Sprintf("%s(%q)", t.Kind, t.Text)
	}
	return t.Kind.String()
}
