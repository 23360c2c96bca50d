package parser

import (
	"strings"

	"github.com/fuselang/fuse/internal/ast"
	"github.com/fuselang/fuse/internal/token"
)

func (p *Parser) takeDoc() string {
	var lines []string
	for p.cur().Kind == token.DOC_COMMENT {
		t := p.advance()
		p.skipNewlines()
		lines = append(lines, strings.TrimSpace(strings.TrimPrefix(t.Lexeme, "##")))
	}
	return strings.Join(lines, "\n")
}

func (p *Parser) parseType() ast.Item {
	start, _ := p.expectKeyword(token.KwType)
	name, _, _ := p.expectIdent()
	td := &ast.TypeDecl{Name: name}
	if p.cur().Kind == token.ASSIGN {
		p.advance()
		base, _, _ := p.expectIdent()
		p.expectKeyword(token.KwWithout)
		var without []string
		for {
			n, _, ok := p.expectIdent()
			if !ok {
				break
			}
			without = append(without, n)
			if p.cur().Kind == token.COMMA {
				p.advance()
				continue
			}
			break
		}
		td.Derive = &ast.TypeDerive{Base: base, Without: without}
	} else {
		p.expectKind(token.COLON, "':'")
		p.skipNewlines()
		if p.cur().Kind == token.INDENT {
			p.advance()
			for p.cur().Kind != token.DEDENT && !p.atEnd() {
				p.skipNewlines()
				if p.cur().Kind == token.DEDENT {
					break
				}
				td.Fields = append(td.Fields, p.parseFieldDecl())
				p.skipNewlines()
			}
			if p.cur().Kind == token.DEDENT {
				p.advance()
			}
		}
	}
	end := p.cur().Span
	td.SpanV = token.Merge(start.Span, end)
	p.skipNewlines()
	return td
}

func (p *Parser) parseFieldDecl() *ast.FieldDecl {
	start, sp, _ := p.expectIdent()
	p.expectKind(token.COLON, "':'")
	ty := p.parseTypeRef()
	fd := &ast.FieldDecl{SpanV: sp, Name: start, Type: ty}
	if p.cur().Kind == token.ASSIGN {
		p.advance()
		fd.Default = p.parseExpr()
	}
	fd.SpanV = token.Merge(sp, p.cur().Span)
	return fd
}

func (p *Parser) parseEnum() ast.Item {
	start, _ := p.expectKeyword(token.KwEnum)
	name, _, _ := p.expectIdent()
	ed := &ast.EnumDecl{Name: name}
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
			vname, _, _ := p.expectIdent()
			variant := ast.EnumVariant{Name: vname}
			if p.cur().Kind == token.LPAREN {
				p.advance()
				for p.cur().Kind != token.RPAREN && !p.atEnd() {
					variant.Payload = append(variant.Payload, p.parseTypeRef())
					if p.cur().Kind == token.COMMA {
						p.advance()
						continue
					}
					break
				}
				p.expectKind(token.RPAREN, "')'")
			}
			ed.Variants = append(ed.Variants, variant)
			p.skipNewlines()
		}
		if p.cur().Kind == token.DEDENT {
			p.advance()
		}
	}
	ed.SpanV = token.Merge(start.Span, p.cur().Span)
	p.skipNewlines()
	return ed
}

func (p *Parser) parseFn() ast.Item {
	start, _ := p.expectKeyword(token.KwFn)
	name, _, _ := p.expectIdent()
	fd := &ast.FnDecl{Name: name}
	p.expectKind(token.LPAREN, "'('")
	for p.cur().Kind != token.RPAREN && !p.atEnd() {
		pname, _, _ := p.expectIdent()
		p.expectKind(token.COLON, "':'")
		pty := p.parseTypeRef()
		fd.Params = append(fd.Params, ast.Param{Name: pname, Type: pty})
		if p.cur().Kind == token.COMMA {
			p.advance()
			continue
		}
		break
	}
	p.expectKind(token.RPAREN, "')'")
	if p.cur().Kind == token.ARROW {
		p.advance()
		fd.Ret = p.parseTypeRef()
	}
	p.expectKind(token.COLON, "':'")
	fd.Body = p.parseBlock()
	fd.SpanV = token.Merge(start.Span, fd.Body.Span())
	p.skipNewlines()
	return fd
}

func (p *Parser) parseService() ast.Item {
	start, _ := p.expectKeyword(token.KwService)
	name, _, _ := p.expectIdent()
	sd := &ast.ServiceDecl{Name: name}
	if p.cur().Kind == token.STRING {
		sd.BasePath = p.advance().StrVal
	}
	p.expectKind(token.COLON, "':'")
	p.skipNewlines()
	if p.cur().Kind == token.INDENT {
		p.advance()
		for p.cur().Kind != token.DEDENT && !p.atEnd() {
			p.skipNewlines()
			if p.cur().Kind == token.DEDENT {
				break
			}
			sd.Routes = append(sd.Routes, p.parseRoute())
			p.skipNewlines()
		}
		if p.cur().Kind == token.DEDENT {
			p.advance()
		}
	}
	sd.SpanV = token.Merge(start.Span, p.cur().Span)
	p.skipNewlines()
	return sd
}

var verbKeywords = map[token.Keyword]string{
	token.KwGet: "GET", token.KwPost: "POST", token.KwPut: "PUT",
	token.KwDelete: "DELETE", token.KwPatch: "PATCH",
}

func (p *Parser) parseRoute() *ast.RouteDecl {
	start := p.cur().Span
	verb := "GET"
	if p.cur().Kind == token.KEYWORD {
		if v, ok := verbKeywords[p.cur().Keyword]; ok {
			verb = v
			p.advance()
		}
	}
	pathTok, _ := p.expectKind(token.STRING, "route path string")
	rd := &ast.RouteDecl{SpanV: start, Verb: verb, Path: pathTok.StrVal}
	if p.cur().Kind == token.LPAREN {
		p.advance()
		rd.BodyType = p.parseTypeRef()
		p.expectKind(token.RPAREN, "')'")
	}
	p.expectKind(token.ARROW, "'->'")
	rd.RetType = p.parseTypeRef()
	p.expectKind(token.COLON, "':'")
	rd.Body = p.parseBlock()
	rd.SpanV = token.Merge(start, rd.Body.Span())
	return rd
}

func (p *Parser) parseConfig() ast.Item {
	start, _ := p.expectKeyword(token.KwConfig)
	name, _, _ := p.expectIdent()
	cd := &ast.ConfigDecl{Name: name}
	p.expectKind(token.COLON, "':'")
	p.skipNewlines()
	if p.cur().Kind == token.INDENT {
		p.advance()
		for p.cur().Kind != token.DEDENT && !p.atEnd() {
			p.skipNewlines()
			if p.cur().Kind == token.DEDENT {
				break
			}
			fname, _, _ := p.expectIdent()
			p.expectKind(token.COLON, "':'")
			fty := p.parseTypeRef()
			p.expectKind(token.ASSIGN, "'=' (config fields require a literal default)")
			fval := p.parseExpr()
			cd.Fields = append(cd.Fields, ast.ConfigField{Name: fname, Type: fty, Value: fval})
			p.skipNewlines()
		}
		if p.cur().Kind == token.DEDENT {
			p.advance()
		}
	}
	cd.SpanV = token.Merge(start.Span, p.cur().Span)
	p.skipNewlines()
	return cd
}

// parseBlock consumes `Newline Indent stmt+ Dedent`.
func (p *Parser) parseBlock() *ast.Block {
	start := p.cur().Span
	blk := &ast.Block{SpanV: start}
	p.skipNewlines()
	if p.cur().Kind != token.INDENT {
		p.diags.Errorf(p.cur().Span, "expected indented block")
		return blk
	}
	p.advance()
	for p.cur().Kind != token.DEDENT && !p.atEnd() {
		p.skipNewlines()
		if p.cur().Kind == token.DEDENT || p.atEnd() {
			break
		}
		stmt := p.parseStmt()
		if stmt != nil {
			blk.Stmts = append(blk.Stmts, stmt)
		}
		p.skipNewlines()
	}
	if p.cur().Kind == token.DEDENT {
		p.advance()
	}
	blk.SpanV = token.Merge(start, p.cur().Span)
	return blk
}
