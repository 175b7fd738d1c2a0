package lexer

import "testing"

func collect(input string) []Token {
	l := New(input)
	var toks []Token
	for {
		tok := l.Next()
		if tok.Kind == EOI {
			return toks
		}
		toks = append(toks, tok)
	}
}

func TestPunctuationAndDelimiters(t *testing.T) {
	tests := []struct {
		input string
		kinds []TokenKind
	}{
		{"[ ] ( ) { } , ;", []TokenKind{LeftBracket, RightBracket, LeftParen, RightParen, LeftBrace, RightBrace, Comma, Semicolon}},
		{". : | ` @ @@ ##", []TokenKind{Dot, Colon, Bar, Backtick, At, DoubleAt, DoubleHash}},
		{"+ - <= == => ..", []TokenKind{PunctName, PunctName, PunctName, PunctName, PunctName, PunctName}},
	}
	for _, tt := range tests {
		toks := collect(tt.input)
		if len(toks) != len(tt.kinds) {
			t.Fatalf("%q: expected %d tokens, got %d", tt.input, len(tt.kinds), len(toks))
		}
		for i, k := range tt.kinds {
			if toks[i].Kind != k {
				t.Errorf("%q token %d: expected %s, got %s", tt.input, i, k, toks[i].Kind)
			}
		}
	}
}

func TestNames(t *testing.T) {
	toks := collect("foo my-if $set _x #syntax")
	want := []string{"foo", "my-if", "$set", "_x", "#syntax"}
	if len(toks) != len(want) {
		t.Fatalf("expected %d tokens, got %d", len(want), len(toks))
	}
	for i, text := range want {
		if toks[i].Kind != AlphaName || toks[i].Text != text {
			t.Errorf("token %d: expected AlphaName %q, got %s %q", i, text, toks[i].Kind, toks[i].Text)
		}
	}
}

func TestDotSplitsFromOperators(t *testing.T) {
	// `1.<` must lex as 1, Dot, < so pairs like (1 . <) round-trip.
	toks := collect("1.<")
	if len(toks) != 3 {
		t.Fatalf("expected 3 tokens, got %d: %v", len(toks), toks)
	}
	if toks[0].Kind != Int32 || toks[1].Kind != Dot || toks[2].Kind != PunctName || toks[2].Text != "<" {
		t.Errorf("unexpected tokens: %v", toks)
	}
}

func TestNumericLiterals(t *testing.T) {
	tests := []struct {
		input string
		kind  TokenKind
		value int64
	}{
		{"12", Int32, 12},
		{"0x2B", Int32, 43},
		{"0o17", Int32, 15},
		{"0b1010", Int32, 10},
		{"1_000_000", Int32, 1000000},
		{"200x", Byte, 200},
		{"1000h", Int16, 1000},
		{"5L", Int64, 5},
	}
	for _, tt := range tests {
		toks := collect(tt.input)
		if len(toks) != 1 {
			t.Fatalf("%q: expected 1 token, got %d", tt.input, len(toks))
		}
		if toks[0].Kind != tt.kind {
			t.Errorf("%q: expected %s, got %s", tt.input, tt.kind, toks[0].Kind)
		}
		if toks[0].Int != tt.value {
			t.Errorf("%q: expected value %d, got %d", tt.input, tt.value, toks[0].Int)
		}
	}
}

func TestRealLiterals(t *testing.T) {
	tests := []struct {
		input string
		kind  TokenKind
		value float64
	}{
		{"1.5", Real64, 1.5},
		{"2e3", Real64, 2000},
		{"7r", Real64, 7},
		{"7rf", Real32, 7},
		{"7f", Float64, 7},
	}
	for _, tt := range tests {
		toks := collect(tt.input)
		if len(toks) != 1 {
			t.Fatalf("%q: expected 1 token, got %d: %v", tt.input, len(toks), toks)
		}
		if toks[0].Kind != tt.kind {
			t.Errorf("%q: expected %s, got %s", tt.input, tt.kind, toks[0].Kind)
		}
		if toks[0].Float != tt.value {
			t.Errorf("%q: expected %g, got %g", tt.input, tt.value, toks[0].Float)
		}
	}
}

func TestBigLiterals(t *testing.T) {
	toks := collect("12LL 99999999999999999999t")
	if len(toks) != 2 {
		t.Fatalf("expected 2 tokens, got %d: %v", len(toks), toks)
	}
	if toks[0].Kind != Int128 || toks[0].Text != "12LL" {
		t.Errorf("expected Int128 '12LL', got %s %q", toks[0].Kind, toks[0].Text)
	}
	if toks[1].Kind != BigIntLit {
		t.Errorf("expected BigInt, got %s", toks[1].Kind)
	}

	l := New("12LL 99999999999999999999t")
	for l.Next().Kind != EOI {
	}
	if len(l.Errors()) != 0 {
		t.Errorf("big literals should not error: %v", l.Errors())
	}
}

func TestDynStringEscapes(t *testing.T) {
	toks := collect(`"a\n\t\x41\{b\}"`)
	if len(toks) != 1 || toks[0].Kind != DynString {
		t.Fatalf("expected one DynString, got %v", toks)
	}
	if toks[0].Text != "a\n\tA{b}" {
		t.Errorf("unexpected decoded text %q", toks[0].Text)
	}
}

func TestDynStringEmbeddedExpression(t *testing.T) {
	l := New(`"a{x}b{y}c"`)

	tok := l.Next()
	if tok.Kind != DynStringBegin || tok.Text != "a" {
		t.Fatalf("expected DynStringBegin 'a', got %s %q", tok.Kind, tok.Text)
	}
	if tok = l.Next(); tok.Kind != AlphaName || tok.Text != "x" {
		t.Fatalf("expected embedded name x, got %v", tok)
	}
	if tok = l.Next(); tok.Kind != RightBrace {
		t.Fatalf("expected closing brace, got %v", tok)
	}
	if tok = l.ResumeDynString(); tok.Kind != DynStringMid || tok.Text != "b" {
		t.Fatalf("expected DynStringMid 'b', got %s %q", tok.Kind, tok.Text)
	}
	if tok = l.Next(); tok.Kind != AlphaName || tok.Text != "y" {
		t.Fatalf("expected embedded name y, got %v", tok)
	}
	l.Next() // }
	if tok = l.ResumeDynString(); tok.Kind != DynStringEnd || tok.Text != "c" {
		t.Fatalf("expected DynStringEnd 'c', got %s %q", tok.Kind, tok.Text)
	}
}

func TestRawStringAndChars(t *testing.T) {
	toks := collect(`''no \n escapes'' 'a' '\n' 'é'`)
	if len(toks) != 4 {
		t.Fatalf("expected 4 tokens, got %d: %v", len(toks), toks)
	}
	if toks[0].Kind != RawString || toks[0].Text != `no \n escapes` {
		t.Errorf("raw string: got %s %q", toks[0].Kind, toks[0].Text)
	}
	if toks[1].Kind != CharLit || toks[1].Text != "a" {
		t.Errorf("char: got %s %q", toks[1].Kind, toks[1].Text)
	}
	if toks[2].Kind != CharLit || toks[2].Text != `\n` {
		t.Errorf("escaped char: got %s %q", toks[2].Kind, toks[2].Text)
	}
	if toks[3].Kind != UniLit || toks[3].Text != `é` {
		t.Errorf("uni: got %s %q", toks[3].Kind, toks[3].Text)
	}
}

func TestCommentsAndNewlineFlag(t *testing.T) {
	toks := collect("1 // line comment\n/* block */ 2\n+ 3")
	if len(toks) != 4 {
		t.Fatalf("expected 4 tokens, got %d: %v", len(toks), toks)
	}
	if toks[0].AfterNewline {
		t.Errorf("first token should not be flagged")
	}
	if !toks[1].AfterNewline {
		t.Errorf("token after line comment newline should be flagged")
	}
	if !toks[2].AfterNewline || toks[2].Text != "+" {
		t.Errorf("operator at line start should be flagged: %v", toks[2])
	}
	if toks[3].AfterNewline {
		t.Errorf("token on same line should not be flagged")
	}
}

func TestSaveRestoreState(t *testing.T) {
	l := New("1 2 3")
	first := l.Next()
	state := l.SaveState()
	second := l.Next()
	l.RestoreState(state)
	again := l.Next()
	if first.Int != 1 || second.Int != 2 || again.Int != 2 {
		t.Errorf("restore did not rewind: %v %v %v", first, second, again)
	}
}

func TestLexerErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"unterminated string", `"abc`},
		{"base prefix with no digits", "0x"},
		{"bad escape", `"\q"`},
		{"unterminated char", "'a"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := New(tt.input)
			for l.Next().Kind != EOI {
			}
			if len(l.Errors()) == 0 {
				t.Errorf("expected a lexer error for %q", tt.input)
			}
		})
	}
}

func TestBOMStripped(t *testing.T) {
	toks := collect("\xEF\xBB\xBF42")
	if len(toks) != 1 || toks[0].Kind != Int32 || toks[0].Int != 42 {
		t.Errorf("BOM not stripped: %v", toks)
	}
}
