package parser

import (
	"github.com/fuselang/fuse/internal/ast"
	"github.com/fuselang/fuse/internal/diagnostics"
	"github.com/fuselang/fuse/internal/lexer"
	"github.com/fuselang/fuse/internal/token"
)

// parseSubExpr re-lexes and re-parses the source of one `${...}` segment in
// isolation, then shifts every span in the result by offset so it points
// back at the original file.
func parseSubExpr(src string, offset int, out *diagnostics.Diagnostics) ast.Expr {
	toks, diags := lexer.New(src)
	for _, d := range diags.All() {
		d.Span = shiftSpan(d.Span, offset)
		out.Add(d)
	}
	sub := &Parser{toks: toks, diags: &diagnostics.Diagnostics{}}
	expr := sub.parseExpr()
	for _, d := range sub.diags.All() {
		d.Span = shiftSpan(d.Span, offset)
		out.Add(d)
	}
	shiftExprSpans(expr, offset)
	return expr
}

func shiftSpan(s token.Span, offset int) token.Span {
	return token.Span{Start: s.Start + offset, End: s.End + offset}
}

// shiftExprSpans walks the parsed sub-expression and rewrites every span in
// place. Expr spans are stored in an embedded ast.Base whose SpanV field is
// exported, so a reflect-free type switch suffices; the node set is small
// and closed, so this stays a flat switch rather than a visitor.
func shiftExprSpans(e ast.Expr, offset int) {
	if e == nil {
		return
	}
	switch n := e.(type) {
	case *ast.IntLit:
		n.SpanV = shiftSpan(n.SpanV, offset)
	case *ast.FloatLit:
		n.SpanV = shiftSpan(n.SpanV, offset)
	case *ast.BoolLit:
		n.SpanV = shiftSpan(n.SpanV, offset)
	case *ast.StringLit:
		n.SpanV = shiftSpan(n.SpanV, offset)
	case *ast.NullLit:
		n.SpanV = shiftSpan(n.SpanV, offset)
	case *ast.InterpString:
		n.SpanV = shiftSpan(n.SpanV, offset)
		for _, part := range n.Parts {
			shiftExprSpans(part.Expr, offset)
		}
	case *ast.Ident:
		n.SpanV = shiftSpan(n.SpanV, offset)
	case *ast.Unary:
		n.SpanV = shiftSpan(n.SpanV, offset)
		shiftExprSpans(n.Expr, offset)
	case *ast.Binary:
		n.SpanV = shiftSpan(n.SpanV, offset)
		shiftExprSpans(n.Left, offset)
		shiftExprSpans(n.Right, offset)
	case *ast.Call:
		n.SpanV = shiftSpan(n.SpanV, offset)
		shiftExprSpans(n.Callee, offset)
		for _, a := range n.Args {
			shiftExprSpans(a.Value, offset)
		}
	case *ast.Member:
		n.SpanV = shiftSpan(n.SpanV, offset)
		shiftExprSpans(n.Target, offset)
	case *ast.OptionalMember:
		n.SpanV = shiftSpan(n.SpanV, offset)
		shiftExprSpans(n.Target, offset)
	case *ast.Index:
		n.SpanV = shiftSpan(n.SpanV, offset)
		shiftExprSpans(n.Target, offset)
		shiftExprSpans(n.Index, offset)
	case *ast.OptionalIndex:
		n.SpanV = shiftSpan(n.SpanV, offset)
		shiftExprSpans(n.Target, offset)
		shiftExprSpans(n.Index, offset)
	case *ast.StructLit:
		n.SpanV = shiftSpan(n.SpanV, offset)
		for _, f := range n.Fields {
			shiftExprSpans(f.Value, offset)
		}
	case *ast.ListLit:
		n.SpanV = shiftSpan(n.SpanV, offset)
		for _, el := range n.Elems {
			shiftExprSpans(el, offset)
		}
	case *ast.MapLit:
		n.SpanV = shiftSpan(n.SpanV, offset)
		for _, en := range n.Entries {
			shiftExprSpans(en.Key, offset)
			shiftExprSpans(en.Value, offset)
		}
	case *ast.Coalesce:
		n.SpanV = shiftSpan(n.SpanV, offset)
		shiftExprSpans(n.Left, offset)
		shiftExprSpans(n.Right, offset)
	case *ast.BangChain:
		n.SpanV = shiftSpan(n.SpanV, offset)
		shiftExprSpans(n.Expr, offset)
		shiftExprSpans(n.Error, offset)
	case *ast.Await:
		n.SpanV = shiftSpan(n.SpanV, offset)
		shiftExprSpans(n.Expr, offset)
	case *ast.Box:
		n.SpanV = shiftSpan(n.SpanV, offset)
		shiftExprSpans(n.Expr, offset)
	}
}
