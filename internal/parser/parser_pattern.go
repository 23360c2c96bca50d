package parser

import (
	"github.com/fuselang/fuse/internal/ast"
	"github.com/fuselang/fuse/internal/token"
)

// parsePattern parses one match pattern: wildcard `_`,
// literals, plain identifiers (which bind), `Name(p1, p2)` enum-variant
// shapes, and `Name(field: p)` struct shapes.
func (p *Parser) parsePattern() ast.Pattern {
	t := p.cur()
	switch {
	case t.Kind == token.IDENT && t.Lexeme == "_":
		p.advance()
		wp := &ast.WildcardPattern{}
		wp.SpanV = t.Span
		return wp
	case t.Kind == token.INT || t.Kind == token.FLOAT || t.Kind == token.BOOL ||
		t.Kind == token.STRING || t.Kind == token.NULL:
		lit := p.parsePrimaryLiteral()
		lp := &ast.LiteralPattern{Value: lit}
		lp.SpanV = lit.Span()
		return lp
	case t.Kind == token.IDENT:
		name, sp, _ := p.expectIdent()
		if p.cur().Kind == token.LPAREN {
			p.advance()
			var args []ast.Pattern
			var fields []ast.StructFieldPattern
			isStruct := p.cur().Kind == token.IDENT && p.peekN(1).Kind == token.COLON
			for p.cur().Kind != token.RPAREN && !p.atEnd() {
				if isStruct {
					fname, _, _ := p.expectIdent()
					p.expectKind(token.COLON, "':'")
					fields = append(fields, ast.StructFieldPattern{Name: fname, Pattern: p.parsePattern()})
				} else {
					args = append(args, p.parsePattern())
				}
				if p.cur().Kind == token.COMMA {
					p.advance()
					continue
				}
				break
			}
			end := p.cur().Span
			p.expectKind(token.RPAREN, "')'")
			if isStruct {
				stp := &ast.StructPattern{Name: name, Fields: fields}
				stp.SpanV = token.Merge(sp, end)
				return stp
			}
			evp := &ast.EnumVariantPattern{Name: name, Args: args}
			evp.SpanV = token.Merge(sp, end)
			return evp
		}
		ip := &ast.IdentPattern{Name: name}
		ip.SpanV = sp
		return ip
	default:
		p.diags.Errorf(t.Span, "expected pattern, got %s", t.Kind)
		p.advance()
		wp := &ast.WildcardPattern{}
		wp.SpanV = t.Span
		return wp
	}
}

func (p *Parser) parsePrimaryLiteral() ast.Expr {
	t := p.advance()
	switch t.Kind {
	case token.INT:
		return &ast.IntLit{Base: ast.NewBase(t.Span), Value: t.IntVal}
	case token.FLOAT:
		return &ast.FloatLit{Base: ast.NewBase(t.Span), Value: t.FloatVal}
	case token.BOOL:
		return &ast.BoolLit{Base: ast.NewBase(t.Span), Value: t.BoolVal}
	case token.STRING:
		return &ast.StringLit{Base: ast.NewBase(t.Span), Value: t.StrVal}
	default:
		return &ast.NullLit{Base: ast.NewBase(t.Span)}
	}
}
