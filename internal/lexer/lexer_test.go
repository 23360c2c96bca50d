package lexer

import (
	"testing"

	"github.com/fuselang/fuse/internal/token"
)

func kinds(toks []token.Token) []token.Kind {
	out := make([]token.Kind, len(toks))
	for i, t := range toks {
		out[i] = t.Kind
	}
	return out
}

func TestSimpleFunction(t *testing.T) {
	src := "fn main():\n  print(1)\n"
	toks, diags := New(src)
	if diags.HasErrors() {
		t.Fatalf("unexpected diagnostics: %v", diags.All())
	}
	want := []token.Kind{
		token.KEYWORD, token.IDENT, token.LPAREN, token.RPAREN, token.COLON, token.NEWLINE,
		token.INDENT,
		token.IDENT, token.LPAREN, token.INT, token.RPAREN, token.NEWLINE,
		token.DEDENT,
		token.EOF,
	}
	got := kinds(toks)
	if len(got) != len(want) {
		t.Fatalf("token count: got %d want %d (%v)", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("token %d: got %v want %v", i, got[i], want[i])
		}
	}
}

func TestIndentDedentBalance(t *testing.T) {
	src := "fn a():\n  if true:\n    print(1)\n  print(2)\n"
	toks, diags := New(src)
	if diags.HasErrors() {
		t.Fatalf("unexpected diagnostics: %v", diags.All())
	}
	depth := 0
	for _, tok := range toks {
		switch tok.Kind {
		case token.INDENT:
			depth++
		case token.DEDENT:
			depth--
			if depth < 0 {
				t.Fatal("dedent below zero")
			}
		case token.EOF:
			if depth != 0 {
				t.Fatalf("unbalanced indentation at EOF: depth %d", depth)
			}
		}
	}
}

// Nesting inside brackets suppresses newline/indent handling.
func TestBracketNestingSuppressesNewlines(t *testing.T) {
	src := "fn a():\n  let x = [1,\n    2,\n    3]\n"
	toks, diags := New(src)
	if diags.HasErrors() {
		t.Fatalf("unexpected diagnostics: %v", diags.All())
	}
	indents := 0
	for _, tok := range toks {
		if tok.Kind == token.INDENT {
			indents++
		}
	}
	if indents != 1 {
		t.Errorf("want exactly 1 INDENT (the fn body), got %d", indents)
	}
}

func TestNumbers(t *testing.T) {
	tests := []struct {
		src  string
		kind token.Kind
	}{
		{"42", token.INT},
		{"3.14", token.FLOAT},
	}
	for _, tt := range tests {
		toks, diags := New(tt.src)
		if diags.HasErrors() {
			t.Fatalf("%q: unexpected diagnostics", tt.src)
		}
		if toks[0].Kind != tt.kind {
			t.Errorf("%q: got %v want %v", tt.src, toks[0].Kind, tt.kind)
		}
	}
}

// N..M must lex as Int DotDot Int, not as a malformed float.
func TestRangeVersusFloat(t *testing.T) {
	toks, diags := New("1..5")
	if diags.HasErrors() {
		t.Fatalf("unexpected diagnostics: %v", diags.All())
	}
	want := []token.Kind{token.INT, token.DOTDOT, token.INT, token.NEWLINE, token.EOF}
	got := kinds(toks)
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("token %d: got %v want %v (stream %v)", i, got[i], want[i], got)
		}
	}
}

func TestStringEscapes(t *testing.T) {
	toks, diags := New(`"a\nb\t\"c\""`)
	if diags.HasErrors() {
		t.Fatalf("unexpected diagnostics: %v", diags.All())
	}
	if toks[0].Kind != token.STRING {
		t.Fatalf("got %v want STRING", toks[0].Kind)
	}
	if toks[0].StrVal != "a\nb\t\"c\"" {
		t.Errorf("escape decoding: got %q", toks[0].StrVal)
	}
}

func TestInterpolationSegments(t *testing.T) {
	src := `"hi ${name}!"`
	toks, diags := New(src)
	if diags.HasErrors() {
		t.Fatalf("unexpected diagnostics: %v", diags.All())
	}
	if toks[0].Kind != token.INTERP_STRING {
		t.Fatalf("got %v want INTERP_STRING", toks[0].Kind)
	}
	segs := toks[0].Segments
	if len(segs) != 3 {
		t.Fatalf("want 3 segments, got %d: %+v", len(segs), segs)
	}
	if segs[0].IsExpr || segs[0].Text != "hi " {
		t.Errorf("segment 0: %+v", segs[0])
	}
	if !segs[1].IsExpr || segs[1].Src != "name" {
		t.Errorf("segment 1: %+v", segs[1])
	}
	if segs[1].Offset != 6 {
		t.Errorf("segment 1 offset: got %d want 6", segs[1].Offset)
	}
	if segs[2].IsExpr || segs[2].Text != "!" {
		t.Errorf("segment 2: %+v", segs[2])
	}
}

func TestTabIndentIsDiagnosed(t *testing.T) {
	_, diags := New("fn a():\n\tprint(1)\n")
	if !diags.HasErrors() {
		t.Fatal("want a diagnostic for tab indentation")
	}
}

func TestUnterminatedString(t *testing.T) {
	toks, diags := New(`"abc`)
	if !diags.HasErrors() {
		t.Fatal("want a diagnostic for unterminated string")
	}
	if toks[len(toks)-1].Kind != token.EOF {
		t.Error("stream must still end in EOF")
	}
}

func TestCommentsSkipped(t *testing.T) {
	toks, diags := New("# a comment\nfn a():\n  print(1)\n")
	if diags.HasErrors() {
		t.Fatalf("unexpected diagnostics: %v", diags.All())
	}
	if toks[0].Kind != token.KEYWORD || toks[0].Keyword != token.KwFn {
		t.Errorf("comment not skipped, first token %v", toks[0])
	}
}

func TestDocComment(t *testing.T) {
	toks, diags := New("## adds things\nfn a():\n  print(1)\n")
	if diags.HasErrors() {
		t.Fatalf("unexpected diagnostics: %v", diags.All())
	}
	if toks[0].Kind != token.DOC_COMMENT {
		t.Fatalf("got %v want DOC_COMMENT", toks[0].Kind)
	}
}

func TestLongestMatchOperators(t *testing.T) {
	tests := []struct {
		src  string
		kind token.Kind
	}{
		{"??", token.QUESTIONQUEST},
		{"?!", token.QUESTIONBANG},
		{"?.", token.QUESTIONDOT},
		{"->", token.ARROW},
		{"==", token.EQ},
		{"<=", token.LE},
	}
	for _, tt := range tests {
		toks, _ := New(tt.src)
		if toks[0].Kind != tt.kind {
			t.Errorf("%q: got %v want %v", tt.src, toks[0].Kind, tt.kind)
		}
	}
}
