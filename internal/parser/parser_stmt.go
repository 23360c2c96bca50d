package parser

import (
	"github.com/fuselang/fuse/internal/ast"
	"github.com/fuselang/fuse/internal/token"
)

func (p *Parser) parseStmt() ast.Stmt {
	switch {
	case p.isKeyword(token.KwLet) || p.isKeyword(token.KwVar):
		return p.parseLetStmt()
	case p.isKeyword(token.KwReturn):
		return p.parseReturnStmt()
	case p.isKeyword(token.KwIf):
		return p.parseIfStmt()
	case p.isKeyword(token.KwMatch):
		return p.parseMatchStmt()
	case p.isKeyword(token.KwFor):
		return p.parseForStmt()
	case p.isKeyword(token.KwWhile):
		return p.parseWhileStmt()
	case p.isKeyword(token.KwBreak):
		t := p.advance()
		p.expectNewlineOrDedent()
		bs := &ast.BreakStmt{}
		bs.SpanV = t.Span
		return bs
	case p.isKeyword(token.KwContinue):
		t := p.advance()
		p.expectNewlineOrDedent()
		cs := &ast.ContinueStmt{}
		cs.SpanV = t.Span
		return cs
	default:
		return p.parseExprOrAssignStmt()
	}
}

// expectNewlineOrDedent consumes a trailing Newline; every
// statement except `spawn: block` requires one, but we tolerate EOF/Dedent
// so the last statement of a block doesn't need a synthetic token.
func (p *Parser) expectNewlineOrDedent() {
	if p.cur().Kind == token.NEWLINE {
		p.advance()
		return
	}
	if p.cur().Kind == token.DEDENT || p.atEnd() {
		return
	}
	p.diags.Errorf(p.cur().Span, "expected newline after statement, got %s", p.cur().Kind)
}

func (p *Parser) parseLetStmt() ast.Stmt {
	kwTok := p.advance()
	mutable := kwTok.Keyword == token.KwVar
	name, sp, _ := p.expectIdent()
	st := &ast.LetStmt{Mutable: mutable, Name: name}
	if p.cur().Kind == token.COLON {
		p.advance()
		st.Type = p.parseTypeRef()
	}
	p.expectKind(token.ASSIGN, "'='")
	st.Value = p.parseExpr()
	st.SpanV = token.Merge(kwTok.Span, st.Value.Span())
	_ = sp
	if _, isSpawn := st.Value.(*ast.Spawn); !isSpawn {
		p.expectNewlineOrDedent()
	} else if p.cur().Kind == token.NEWLINE {
		p.advance()
	}
	return st
}

func (p *Parser) parseReturnStmt() ast.Stmt {
	kwTok := p.advance()
	rs := &ast.ReturnStmt{}
	rs.SpanV = kwTok.Span
	if p.cur().Kind != token.NEWLINE && p.cur().Kind != token.DEDENT && !p.atEnd() {
		rs.Value = p.parseExpr()
		rs.SpanV = token.Merge(kwTok.Span, rs.Value.Span())
	}
	p.expectNewlineOrDedent()
	return rs
}

func (p *Parser) parseIfStmt() ast.Stmt {
	start := p.advance().Span // 'if'
	ifs := &ast.IfStmt{}
	cond := p.parseExpr()
	p.expectKind(token.COLON, "':'")
	block := p.parseBlock()
	ifs.Arms = append(ifs.Arms, ast.IfArm{Cond: cond, Block: block})
	for p.isKeyword(token.KwElse) && p.peekN(1).Kind == token.KEYWORD && p.peekN(1).Keyword == token.KwIf {
		p.advance() // else
		p.advance() // if
		c := p.parseExpr()
		p.expectKind(token.COLON, "':'")
		b := p.parseBlock()
		ifs.Arms = append(ifs.Arms, ast.IfArm{Cond: c, Block: b})
	}
	if p.isKeyword(token.KwElse) {
		p.advance()
		p.expectKind(token.COLON, "':'")
		ifs.Else = p.parseBlock()
	}
	end := block.Span()
	if ifs.Else != nil {
		end = ifs.Else.Span()
	} else if n := len(ifs.Arms); n > 0 {
		end = ifs.Arms[n-1].Block.Span()
	}
	ifs.SpanV = token.Merge(start, end)
	return ifs
}

func (p *Parser) parseMatchStmt() ast.Stmt {
	start := p.advance().Span // 'match'
	ms := &ast.MatchStmt{}
	ms.Subject = p.parseExpr()
	p.expectKind(token.COLON, "':'")
	p.skipNewlines()
	if p.cur().Kind == token.INDENT {
		p.advance()
		for p.cur().Kind != token.DEDENT && !p.atEnd() {
			p.skipNewlines()
			if p.cur().Kind == token.DEDENT {
				break
			}
			p.expectKeyword(token.KwCase)
			pat := p.parsePattern()
			p.expectKind(token.COLON, "':'")
			blk := p.parseBlock()
			ms.Cases = append(ms.Cases, ast.MatchCase{Pattern: pat, Block: blk})
			p.skipNewlines()
		}
		if p.cur().Kind == token.DEDENT {
			p.advance()
		}
	}
	ms.SpanV = token.Merge(start, p.cur().Span)
	return ms
}

func (p *Parser) parseForStmt() ast.Stmt {
	start := p.advance().Span // 'for'
	pat := p.parsePattern()
	p.expectKeyword(token.KwIn)
	iter := p.parseExpr()
	p.expectKind(token.COLON, "':'")
	blk := p.parseBlock()
	fs := &ast.ForStmt{Pattern: pat, Iter: iter, Block: blk}
	fs.SpanV = token.Merge(start, blk.Span())
	return fs
}

func (p *Parser) parseWhileStmt() ast.Stmt {
	start := p.advance().Span // 'while'
	cond := p.parseExpr()
	p.expectKind(token.COLON, "':'")
	blk := p.parseBlock()
	ws := &ast.WhileStmt{Cond: cond, Block: blk}
	ws.SpanV = token.Merge(start, blk.Span())
	return ws
}

// parseExprOrAssignStmt parses either an assignment `lvalue = expr` or a
// bare expression statement; `spawn: block` is an expression statement that
// does not require a trailing Newline.
func (p *Parser) parseExprOrAssignStmt() ast.Stmt {
	startPos := p.pos
	expr := p.parseExpr()
	if p.cur().Kind == token.ASSIGN {
		p.advance()
		value := p.parseExpr()
		as := &ast.AssignStmt{Target: expr, Value: value}
		as2 := as
		_ = startPos
		as2.SpanV = token.Merge(expr.Span(), value.Span())
		p.expectNewlineOrDedent()
		return as2
	}
	es := &ast.ExprStmt{Expr: expr}
	es.SpanV = expr.Span()
	if _, isSpawn := expr.(*ast.Spawn); !isSpawn {
		p.expectNewlineOrDedent()
	} else if p.cur().Kind == token.NEWLINE {
		p.advance()
	}
	return es
}
