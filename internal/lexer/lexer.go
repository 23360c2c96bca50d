// Package lexer implements the indentation-structured scanner: a
// byte-at-a-time reader feeding a per-line tokenizer, with an indentation
// stack emitting synthetic Indent/Dedent tokens and a delimiter-nesting
// counter suppressing them inside bracketed continuations.
package lexer

import (
	"strconv"
	"strings"

	"github.com/fuselang/fuse/internal/diagnostics"
	"github.com/fuselang/fuse/internal/token"
)

// Lexer turns source text into a flat token stream, emitting synthetic
// Indent/Dedent/Newline tokens from the line-structured algorithm.
type Lexer struct {
	input string
	pos   int // current byte offset
	ch    byte

	indentStack []int
	nesting     int

	diags *diagnostics.Diagnostics
	toks  []token.Token
}

// New scans the entire input eagerly and returns the token stream plus
// any diagnostics raised along the way; the parser works over the whole
// stream rather than pulling tokens on demand.
func New(input string) ([]token.Token, *diagnostics.Diagnostics) {
	l := &Lexer{input: input, indentStack: []int{0}, diags: &diagnostics.Diagnostics{}}
	if len(input) > 0 {
		l.ch = input[0]
	}
	l.run()
	return l.toks, l.diags
}

func (l *Lexer) emit(tok token.Token) { l.toks = append(l.toks, tok) }

func (l *Lexer) advance() {
	l.pos++
	if l.pos >= len(l.input) {
		l.ch = 0
		return
	}
	l.ch = l.input[l.pos]
}

func (l *Lexer) peekAt(off int) byte {
	if l.pos+off >= len(l.input) {
		return 0
	}
	return l.input[l.pos+off]
}

func (l *Lexer) run() {
	for l.pos < len(l.input) {
		l.lexLine()
	}
	// Final dedent to 0, then Eof.
	for len(l.indentStack) > 1 {
		l.indentStack = l.indentStack[:len(l.indentStack)-1]
		l.emit(token.Token{Kind: token.DEDENT, Span: token.Span{Start: l.pos, End: l.pos}})
	}
	l.emit(token.Token{Kind: token.EOF, Span: token.Span{Start: l.pos, End: l.pos}})
}

// lexLine handles indentation bookkeeping for one physical line, then
// tokenizes its body.
func (l *Lexer) lexLine() {
	lineStart := l.pos
	col := 0
	for l.ch == ' ' || l.ch == '\t' {
		if l.ch == '\t' {
			l.diags.Errorf(token.Span{Start: l.pos, End: l.pos + 1}, "tabs are not allowed for indentation")
			col++
			l.advance()
			continue
		}
		col++
		l.advance()
	}

	if l.ch == 0 {
		return
	}
	if l.ch == '\n' {
		l.advance()
		return // blank line, stack untouched
	}
	if l.ch == '#' {
		if l.peekAt(1) == '#' {
			start := l.pos
			for l.ch != '\n' && l.ch != 0 {
				l.advance()
			}
			text := l.input[start:l.pos]
			l.emit(token.Token{Kind: token.DOC_COMMENT, Span: token.Span{Start: start, End: l.pos}, Lexeme: text})
			if l.nesting == 0 {
				l.emit(token.Token{Kind: token.NEWLINE, Span: token.Span{Start: l.pos, End: l.pos}})
			}
		} else {
			for l.ch != '\n' && l.ch != 0 {
				l.advance()
			}
		}
		if l.ch == '\n' {
			l.advance()
		}
		return
	}

	if l.nesting == 0 {
		top := l.indentStack[len(l.indentStack)-1]
		if col > top {
			l.indentStack = append(l.indentStack, col)
			l.emit(token.Token{Kind: token.INDENT, Span: token.Span{Start: lineStart, End: l.pos}})
		} else if col < top {
			for len(l.indentStack) > 0 && l.indentStack[len(l.indentStack)-1] > col {
				l.indentStack = l.indentStack[:len(l.indentStack)-1]
				l.emit(token.Token{Kind: token.DEDENT, Span: token.Span{Start: lineStart, End: l.pos}})
			}
			if len(l.indentStack) == 0 || l.indentStack[len(l.indentStack)-1] != col {
				l.diags.Errorf(token.Span{Start: lineStart, End: l.pos}, "inconsistent indentation")
				l.indentStack = append(l.indentStack, col)
			}
		}
	}

	for l.ch != '\n' && l.ch != 0 {
		l.lexToken()
	}
	if l.nesting == 0 {
		l.emit(token.Token{Kind: token.NEWLINE, Span: token.Span{Start: l.pos, End: l.pos}})
	}
	if l.ch == '\n' {
		l.advance()
	}
}

func isIdentStart(b byte) bool {
	return b == '_' || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}
func isIdentCont(b byte) bool { return isIdentStart(b) || (b >= '0' && b <= '9') }
func isDigit(b byte) bool     { return b >= '0' && b <= '9' }

func (l *Lexer) skipInlineSpace() {
	for l.ch == ' ' || l.ch == '\t' {
		l.advance()
	}
}

func (l *Lexer) lexToken() {
	l.skipInlineSpace()
	if l.ch == '\n' || l.ch == 0 {
		return
	}
	start := l.pos

	switch {
	case l.ch == '#':
		for l.ch != '\n' && l.ch != 0 {
			l.advance()
		}
		return
	case isIdentStart(l.ch):
		for isIdentCont(l.ch) {
			l.advance()
		}
		lex := l.input[start:l.pos]
		l.emitWord(lex, start)
	case isDigit(l.ch):
		l.lexNumber(start)
	case l.ch == '"':
		l.lexString(start)
	default:
		l.lexPunct(start)
	}
}

func (l *Lexer) emitWord(lex string, start int) {
	sp := token.Span{Start: start, End: l.pos}
	switch lex {
	case "true":
		l.emit(token.Token{Kind: token.BOOL, Span: sp, Lexeme: lex, BoolVal: true})
	case "false":
		l.emit(token.Token{Kind: token.BOOL, Span: sp, Lexeme: lex, BoolVal: false})
	case "null":
		l.emit(token.Token{Kind: token.NULL, Span: sp, Lexeme: lex})
	default:
		if kw, ok := token.Keywords[lex]; ok {
			l.emit(token.Token{Kind: token.KEYWORD, Span: sp, Lexeme: lex, Keyword: kw})
		} else {
			l.emit(token.Token{Kind: token.IDENT, Span: sp, Lexeme: lex})
		}
	}
}

func (l *Lexer) lexNumber(start int) {
	for isDigit(l.ch) {
		l.advance()
	}
	if l.ch == '.' && l.peekAt(1) == '.' {
		// `N..` is Int then DotDot, handled by caller re-reading punct.
		lex := l.input[start:l.pos]
		iv, _ := strconv.ParseInt(lex, 10, 64)
		l.emit(token.Token{Kind: token.INT, Span: token.Span{Start: start, End: l.pos}, Lexeme: lex, IntVal: iv})
		return
	}
	if l.ch == '.' && isDigit(l.peekAt(1)) {
		l.advance() // consume '.'
		for isDigit(l.ch) {
			l.advance()
		}
		lex := l.input[start:l.pos]
		fv, _ := strconv.ParseFloat(lex, 64)
		l.emit(token.Token{Kind: token.FLOAT, Span: token.Span{Start: start, End: l.pos}, Lexeme: lex, FloatVal: fv})
		return
	}
	lex := l.input[start:l.pos]
	iv, _ := strconv.ParseInt(lex, 10, 64)
	l.emit(token.Token{Kind: token.INT, Span: token.Span{Start: start, End: l.pos}, Lexeme: lex, IntVal: iv})
}

func (l *Lexer) lexString(start int) {
	l.advance() // consume opening quote
	var sb strings.Builder
	var segments []token.InterpSegment
	hasInterp := false
	flushText := func() {
		if sb.Len() > 0 {
			segments = append(segments, token.InterpSegment{Text: sb.String()})
			sb.Reset()
		}
	}
	for {
		if l.ch == 0 {
			l.diags.Errorf(token.Span{Start: start, End: l.pos}, "unterminated string literal")
			break
		}
		if l.ch == '"' {
			l.advance()
			break
		}
		if l.ch == '\\' {
			l.advance()
			switch l.ch {
			case 'n':
				sb.WriteByte('\n')
			case 't':
				sb.WriteByte('\t')
			case 'r':
				sb.WriteByte('\r')
			case '\\':
				sb.WriteByte('\\')
			case '"':
				sb.WriteByte('"')
			default:
				sb.WriteByte(l.ch)
			}
			l.advance()
			continue
		}
		if l.ch == '$' && l.peekAt(1) == '{' {
			hasInterp = true
			flushText()
			l.advance() // $
			l.advance() // {
			exprStart := l.pos
			depth := 1
			for depth > 0 {
				if l.ch == 0 {
					l.diags.Errorf(token.Span{Start: start, End: l.pos}, "unterminated interpolation")
					break
				}
				if l.ch == '"' {
					// nested string literal: skip balanced, interpolation-unaware
					l.advance()
					for l.ch != '"' && l.ch != 0 {
						if l.ch == '\\' {
							l.advance()
						}
						l.advance()
					}
					l.advance()
					continue
				}
				if l.ch == '{' {
					depth++
				} else if l.ch == '}' {
					depth--
					if depth == 0 {
						break
					}
				}
				l.advance()
			}
			src := l.input[exprStart:l.pos]
			segments = append(segments, token.InterpSegment{IsExpr: true, Src: src, Offset: exprStart})
			if l.ch == '}' {
				l.advance()
			}
			continue
		}
		sb.WriteByte(l.ch)
		l.advance()
	}
	flushText()
	sp := token.Span{Start: start, End: l.pos}
	if hasInterp {
		l.emit(token.Token{Kind: token.INTERP_STRING, Span: sp, Segments: segments})
	} else {
		val := ""
		if len(segments) > 0 {
			val = segments[0].Text
		}
		l.emit(token.Token{Kind: token.STRING, Span: sp, StrVal: val})
	}
}

// punct2 are two-character operators checked before falling back to the
// single-character table, longest-match first.
var punct2 = map[string]token.Kind{
	"??": token.QUESTIONQUEST,
	"?!": token.QUESTIONBANG,
	"?.": token.QUESTIONDOT,
	"?[": token.QUESTIONLBRACKET,
	"->": token.ARROW,
	"=>": token.FATARROW,
	"==": token.EQ,
	"!=": token.NEQ,
	"<=": token.LE,
	">=": token.GE,
	"..": token.DOTDOT,
}

var punct1 = map[byte]token.Kind{
	'(': token.LPAREN, ')': token.RPAREN,
	'[': token.LBRACKET, ']': token.RBRACKET,
	'{': token.LBRACE, '}': token.RBRACE,
	',': token.COMMA, ':': token.COLON, '.': token.DOT,
	'=': token.ASSIGN, '<': token.LT, '>': token.GT,
	'+': token.PLUS, '-': token.MINUS, '*': token.STAR,
	'/': token.SLASH, '%': token.PERCENT,
	'?': token.QUESTION, '!': token.BANG,
}

func (l *Lexer) lexPunct(start int) {
	two := string([]byte{l.ch, l.peekAt(1)})
	if kind, ok := punct2[two]; ok {
		l.advance()
		l.advance()
		l.trackNesting(two[0])
		l.trackNesting(two[1])
		l.emit(token.Token{Kind: kind, Span: token.Span{Start: start, End: l.pos}, Lexeme: two})
		return
	}
	ch := l.ch
	if kind, ok := punct1[ch]; ok {
		l.advance()
		l.trackNesting(ch)
		l.emit(token.Token{Kind: kind, Span: token.Span{Start: start, End: l.pos}, Lexeme: string(ch)})
		return
	}
	l.diags.Errorf(token.Span{Start: start, End: l.pos + 1}, "unexpected character %q", ch)
	l.advance()
}

func (l *Lexer) trackNesting(ch byte) {
	switch ch {
	case '(', '[', '{':
		l.nesting++
	case ')', ']', '}':
		if l.nesting > 0 {
			l.nesting--
		} else {
			l.diags.Warnf(token.Span{Start: l.pos - 1, End: l.pos}, "unmatched closing delimiter %q", ch)
		}
	}
}
