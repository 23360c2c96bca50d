package parser

import (
	"github.com/fuselang/fuse/internal/ast"
	"github.com/fuselang/fuse/internal/token"
)

// parseExpr is the entry point for the precedence ladder, lowest to
// highest: ?? , or , and , ==/!= , comparisons , .. , +/- , */%  , unary,
// await/box, postfix.
func (p *Parser) parseExpr() ast.Expr {
	return p.parseCoalesce()
}

func (p *Parser) parseCoalesce() ast.Expr {
	left := p.parseOr()
	for p.cur().Kind == token.QUESTIONQUEST {
		p.advance()
		right := p.parseOr()
		c := &ast.Coalesce{Left: left, Right: right}
		c.SpanV = token.Merge(left.Span(), right.Span())
		left = c
	}
	return left
}

func (p *Parser) parseOr() ast.Expr {
	left := p.parseAnd()
	for p.isKeyword(token.KwOr) {
		p.advance()
		right := p.parseAnd()
		left = p.mkBinary("or", left, right)
	}
	return left
}

func (p *Parser) parseAnd() ast.Expr {
	left := p.parseEquality()
	for p.isKeyword(token.KwAnd) {
		p.advance()
		right := p.parseEquality()
		left = p.mkBinary("and", left, right)
	}
	return left
}

func (p *Parser) parseEquality() ast.Expr {
	left := p.parseComparison()
	for p.cur().Kind == token.EQ || p.cur().Kind == token.NEQ {
		op := p.opText(p.advance())
		right := p.parseComparison()
		left = p.mkBinary(op, left, right)
	}
	return left
}

func (p *Parser) parseComparison() ast.Expr {
	left := p.parseRange()
	for p.cur().Kind == token.LT || p.cur().Kind == token.LE ||
		p.cur().Kind == token.GT || p.cur().Kind == token.GE {
		op := p.opText(p.advance())
		right := p.parseRange()
		left = p.mkBinary(op, left, right)
	}
	return left
}

func (p *Parser) parseRange() ast.Expr {
	left := p.parseAdditive()
	for p.cur().Kind == token.DOTDOT {
		p.advance()
		right := p.parseAdditive()
		left = p.mkBinary("..", left, right)
	}
	return left
}

func (p *Parser) parseAdditive() ast.Expr {
	left := p.parseMultiplicative()
	for p.cur().Kind == token.PLUS || p.cur().Kind == token.MINUS {
		op := p.opText(p.advance())
		right := p.parseMultiplicative()
		left = p.mkBinary(op, left, right)
	}
	return left
}

func (p *Parser) parseMultiplicative() ast.Expr {
	left := p.parseUnary()
	for p.cur().Kind == token.STAR || p.cur().Kind == token.SLASH || p.cur().Kind == token.PERCENT {
		op := p.opText(p.advance())
		right := p.parseUnary()
		left = p.mkBinary(op, left, right)
	}
	return left
}

func (p *Parser) parseUnary() ast.Expr {
	if p.cur().Kind == token.MINUS || p.cur().Kind == token.BANG {
		t := p.advance()
		operand := p.parseUnary()
		u := &ast.Unary{Op: p.opText(t), Expr: operand}
		u.SpanV = token.Merge(t.Span, operand.Span())
		return u
	}
	return p.parseAwaitBox()
}

func (p *Parser) parseAwaitBox() ast.Expr {
	if p.isKeyword(token.KwAwait) {
		t := p.advance()
		operand := p.parseAwaitBox()
		a := &ast.Await{Expr: operand}
		a.SpanV = token.Merge(t.Span, operand.Span())
		return a
	}
	if p.isKeyword(token.KwBox) {
		t := p.advance()
		operand := p.parseAwaitBox()
		b := &ast.Box{Expr: operand}
		b.SpanV = token.Merge(t.Span, operand.Span())
		return b
	}
	if p.isKeyword(token.KwSpawn) {
		t := p.advance()
		p.expectKind(token.COLON, "':'")
		blk := p.parseBlock()
		sp := &ast.Spawn{Block: blk}
		sp.SpanV = token.Merge(t.Span, blk.Span())
		return sp
	}
	return p.parsePostfix()
}

func (p *Parser) parsePostfix() ast.Expr {
	expr := p.parsePrimary()
	for {
		switch p.cur().Kind {
		case token.DOT:
			p.advance()
			name, sp, _ := p.expectIdent()
			m := &ast.Member{Target: expr, Name: name}
			m.SpanV = token.Merge(expr.Span(), sp)
			expr = m
		case token.QUESTIONDOT:
			p.advance()
			name, sp, _ := p.expectIdent()
			m := &ast.OptionalMember{Target: expr, Name: name}
			m.SpanV = token.Merge(expr.Span(), sp)
			expr = m
		case token.LBRACKET:
			p.advance()
			idx := p.parseExpr()
			end := p.cur().Span
			p.expectKind(token.RBRACKET, "']'")
			ix := &ast.Index{Target: expr, Index: idx}
			ix.SpanV = token.Merge(expr.Span(), end)
			expr = ix
		case token.QUESTIONLBRACKET:
			p.advance()
			idx := p.parseExpr()
			end := p.cur().Span
			p.expectKind(token.RBRACKET, "']'")
			ix := &ast.OptionalIndex{Target: expr, Index: idx}
			ix.SpanV = token.Merge(expr.Span(), end)
			expr = ix
		case token.LPAREN:
			expr = p.parseCallTail(expr)
		case token.QUESTIONBANG:
			p.advance()
			bc := &ast.BangChain{Expr: expr}
			if p.startsExpr() {
				bc.Error = p.parseAwaitBox()
				bc.SpanV = token.Merge(expr.Span(), bc.Error.Span())
			} else {
				bc.SpanV = expr.Span()
			}
			expr = bc
		default:
			return expr
		}
	}
}

// startsExpr reports whether the current token can begin an expression,
// used to decide whether `?!` carries an optional trailing error expression.
func (p *Parser) startsExpr() bool {
	switch p.cur().Kind {
	case token.NEWLINE, token.DEDENT, token.EOF, token.COMMA, token.RPAREN,
		token.RBRACKET, token.RBRACE, token.COLON:
		return false
	}
	return true
}

func (p *Parser) parseCallTail(callee ast.Expr) ast.Expr {
	start := p.advance().Span // '('
	var args []ast.CallArg
	for p.cur().Kind != token.RPAREN && !p.atEnd() {
		args = append(args, p.parseCallArg())
		if p.cur().Kind == token.COMMA {
			p.advance()
			continue
		}
		break
	}
	end := p.cur().Span
	p.expectKind(token.RPAREN, "')'")

	// A trailing positional argument after named arguments is the
	// block-sugar child slot of the HTML DSL; mark it so the
	// struct-literal disambiguation below and the canonicalizer both see
	// it.
	if len(args) > 0 && args[len(args)-1].Name == "" {
		for _, a := range args[:len(args)-1] {
			if a.Name != "" {
				args[len(args)-1].IsBlockSugar = true
				break
			}
		}
	}

	// A bare-identifier callee with any named argument is a struct literal
	// (a call whose callee is a bare identifier and whose argument
	// list contains any named argument parses as a struct literal"). A
	// trailing block-sugar argument is the exception: it marks an HTML-DSL
	// call, which must stay a Call so the canonicalizer can see its named
	// args and rewrite them into a map literal.
	if ident, ok := callee.(*ast.Ident); ok {
		hasNamed := false
		hasBlockSugar := false
		for _, a := range args {
			if a.Name != "" {
				hasNamed = true
			}
			if a.IsBlockSugar {
				hasBlockSugar = true
			}
		}
		if hasNamed && !hasBlockSugar {
			sl := &ast.StructLit{Name: ident.Name}
			for _, a := range args {
				sl.Fields = append(sl.Fields, ast.StructFieldInit{Name: a.Name, Value: a.Value})
			}
			sl.SpanV = token.Merge(callee.Span(), end)
			_ = start
			return sl
		}
	}
	call := &ast.Call{Callee: callee, Args: args}
	call.SpanV = token.Merge(callee.Span(), end)
	return call
}

func (p *Parser) parseCallArg() ast.CallArg {
	if p.cur().Kind == token.IDENT && (p.peekN(1).Kind == token.COLON || p.peekN(1).Kind == token.ASSIGN) {
		name, _, _ := p.expectIdent()
		p.advance() // ':' or '='
		val := p.parseExpr()
		return ast.CallArg{Name: name, Value: val}
	}
	val := p.parseExpr()
	return ast.CallArg{Value: val, IsBlockSugar: false}
}

func (p *Parser) mkBinary(op string, l, r ast.Expr) ast.Expr {
	b := &ast.Binary{Op: op, Left: l, Right: r}
	b.SpanV = token.Merge(l.Span(), r.Span())
	return b
}

func (p *Parser) opText(t token.Token) string {
	if t.Lexeme != "" {
		return t.Lexeme
	}
	switch t.Kind {
	case token.EQ:
		return "=="
	case token.NEQ:
		return "!="
	}
	return ""
}

func (p *Parser) parsePrimary() ast.Expr {
	t := p.cur()
	switch t.Kind {
	case token.INT:
		p.advance()
		return &ast.IntLit{Base: ast.NewBase(t.Span), Value: t.IntVal}
	case token.FLOAT:
		p.advance()
		return &ast.FloatLit{Base: ast.NewBase(t.Span), Value: t.FloatVal}
	case token.BOOL:
		p.advance()
		return &ast.BoolLit{Base: ast.NewBase(t.Span), Value: t.BoolVal}
	case token.NULL:
		p.advance()
		return &ast.NullLit{Base: ast.NewBase(t.Span)}
	case token.STRING:
		p.advance()
		return &ast.StringLit{Base: ast.NewBase(t.Span), Value: t.StrVal}
	case token.INTERP_STRING:
		p.advance()
		return p.buildInterpString(t)
	case token.IDENT:
		return p.parseIdentOrQualified()
	case token.LPAREN:
		p.advance()
		inner := p.parseExpr()
		p.expectKind(token.RPAREN, "')'")
		return inner
	case token.LBRACKET:
		return p.parseListLit()
	case token.LBRACE:
		return p.parseMapLit()
	default:
		p.diags.Errorf(t.Span, "expected expression, got %s %q", t.Kind, t.Lexeme)
		p.advance()
		return &ast.NullLit{Base: ast.NewBase(t.Span)}
	}
}

func (p *Parser) parseIdentOrQualified() ast.Expr {
	name, sp, _ := p.expectIdent()
	id := &ast.Ident{Name: name}
	id.SpanV = sp
	return id
}

// buildInterpString re-lexes and re-parses each `${...}` segment using its
// saved file offset, so nested expression spans point at the
// original source rather than the token's local text.
func (p *Parser) buildInterpString(t token.Token) ast.Expr {
	is := &ast.InterpString{}
	is.SpanV = t.Span
	for _, seg := range t.Segments {
		if !seg.IsExpr {
			is.Parts = append(is.Parts, ast.InterpPart{Text: seg.Text})
			continue
		}
		part := ast.InterpPart{Expr: parseSubExpr(seg.Src, seg.Offset, p.diags)}
		is.Parts = append(is.Parts, part)
	}
	return is
}

func (p *Parser) parseListLit() ast.Expr {
	start := p.advance().Span // '['
	ll := &ast.ListLit{}
	ll.SpanV = start
	for p.cur().Kind != token.RBRACKET && !p.atEnd() {
		ll.Elems = append(ll.Elems, p.parseExpr())
		if p.cur().Kind == token.COMMA {
			p.advance()
			continue
		}
		break
	}
	end := p.cur().Span
	p.expectKind(token.RBRACKET, "']'")
	ll.SpanV = token.Merge(start, end)
	return ll
}

func (p *Parser) parseMapLit() ast.Expr {
	start := p.advance().Span // '{'
	ml := &ast.MapLit{}
	ml.SpanV = start
	for p.cur().Kind != token.RBRACE && !p.atEnd() {
		key := p.parseExpr()
		p.expectKind(token.COLON, "':'")
		val := p.parseExpr()
		ml.Entries = append(ml.Entries, ast.MapEntry{Key: key, Value: val})
		if p.cur().Kind == token.COMMA {
			p.advance()
			continue
		}
		break
	}
	end := p.cur().Span
	p.expectKind(token.RBRACE, "'}'")
	ml.SpanV = token.Merge(start, end)
	return ml
}
