package parser

import (
	"github.com/fuselang/fuse/internal/ast"
	"github.com/fuselang/fuse/internal/token"
)

// parseTypeRef parses a type annotation: a base name,
// optionally followed by `<args>` (generic), `?` (optional), `!Err` (result),
// or `(args)` (refined).
func (p *Parser) parseTypeRef() *ast.TypeRef {
	start := p.cur().Span
	name, _, ok := p.expectIdent()
	if !ok {
		return &ast.TypeRef{SpanV: start, Kind: ast.TRSimple, Name: "Unknown"}
	}
	var ty *ast.TypeRef

	if p.cur().Kind == token.LT {
		p.advance()
		var args []*ast.TypeRef
		for p.cur().Kind != token.GT && !p.atEnd() {
			args = append(args, p.parseTypeRef())
			if p.cur().Kind == token.COMMA {
				p.advance()
				continue
			}
			break
		}
		p.expectKind(token.GT, "'>'")
		ty = &ast.TypeRef{SpanV: token.Merge(start, p.cur().Span), Kind: ast.TRGeneric, Base: name, Args: args}
	} else if p.cur().Kind == token.LPAREN {
		p.advance()
		var args []ast.Expr
		for p.cur().Kind != token.RPAREN && !p.atEnd() {
			args = append(args, p.parseExpr())
			if p.cur().Kind == token.COMMA {
				p.advance()
				continue
			}
			break
		}
		p.expectKind(token.RPAREN, "')'")
		ty = &ast.TypeRef{SpanV: token.Merge(start, p.cur().Span), Kind: ast.TRRefined, RefinedBase: name, RefinedArgs: args}
	} else {
		ty = &ast.TypeRef{SpanV: start, Kind: ast.TRSimple, Name: name}
	}

	for {
		if p.cur().Kind == token.QUESTION {
			p.advance()
			ty = &ast.TypeRef{SpanV: token.Merge(start, p.cur().Span), Kind: ast.TROptional, Inner: ty}
			continue
		}
		if p.cur().Kind == token.BANG {
			p.advance()
			result := &ast.TypeRef{SpanV: token.Merge(start, p.cur().Span), Kind: ast.TRResult, Ok: ty}
			if p.cur().Kind == token.IDENT {
				result.Err = p.parseTypeRef()
			}
			ty = result
			continue
		}
		break
	}
	return ty
}
