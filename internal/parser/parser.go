// Package parser implements the recursive-descent parser: one small file
// per grammar area, a one-token-lookahead cursor, and sync-to-next-item
// error recovery so a broken declaration never hides the ones after it.
package parser

import (
	"github.com/fuselang/fuse/internal/ast"
	"github.com/fuselang/fuse/internal/diagnostics"
	"github.com/fuselang/fuse/internal/token"
)

// Parser walks a flat token slice produced by the lexer.
type Parser struct {
	toks  []token.Token
	pos   int
	diags *diagnostics.Diagnostics
}

// Parse parses a complete token stream into a Program, recovering from
// per-item errors by syncing to the next top-level keyword (the invariant
// that parsing never yields an unbounded Item).
func Parse(toks []token.Token) (*ast.Program, *diagnostics.Diagnostics) {
	p := &Parser{toks: toks, diags: &diagnostics.Diagnostics{}}
	prog := &ast.Program{}
	start := p.cur().Span
	for !p.atEnd() {
		p.skipNewlines()
		if p.atEnd() {
			break
		}
		if req := p.tryParseRequires(); req != nil {
			prog.Requires = append(prog.Requires, req)
			continue
		}
		doc := p.takeDoc()
		item := p.parseItem()
		if item != nil {
			switch d := item.(type) {
			case *ast.TypeDecl:
				d.Doc = doc
			case *ast.EnumDecl:
				d.Doc = doc
			case *ast.FnDecl:
				d.Doc = doc
			}
			prog.Items = append(prog.Items, item)
		}
	}
	end := p.cur().Span
	prog.SpanV = token.Merge(start, end)
	return prog, p.diags
}

func (p *Parser) cur() token.Token {
	if p.pos >= len(p.toks) {
		return token.Token{Kind: token.EOF}
	}
	return p.toks[p.pos]
}

func (p *Parser) peekN(n int) token.Token {
	idx := p.pos + n
	if idx >= len(p.toks) {
		return token.Token{Kind: token.EOF}
	}
	return p.toks[idx]
}

func (p *Parser) atEnd() bool { return p.cur().Kind == token.EOF }

func (p *Parser) advance() token.Token {
	t := p.cur()
	if p.pos < len(p.toks)-1 || t.Kind != token.EOF {
		p.pos++
	}
	return t
}

func (p *Parser) skipNewlines() {
	for p.cur().Kind == token.NEWLINE {
		p.advance()
	}
}

func (p *Parser) isKeyword(kw token.Keyword) bool {
	t := p.cur()
	return t.Kind == token.KEYWORD && t.Keyword == kw
}

func (p *Parser) expectKind(k token.Kind, what string) (token.Token, bool) {
	if p.cur().Kind == k {
		return p.advance(), true
	}
	p.diags.Errorf(p.cur().Span, "expected %s, got %s", what, p.cur().Kind)
	return p.cur(), false
}

func (p *Parser) expectKeyword(kw token.Keyword) (token.Token, bool) {
	if p.isKeyword(kw) {
		return p.advance(), true
	}
	p.diags.Errorf(p.cur().Span, "expected keyword %q, got %s %q", kw, p.cur().Kind, p.cur().Lexeme)
	return p.cur(), false
}

func (p *Parser) expectIdent() (string, token.Span, bool) {
	if p.cur().Kind == token.IDENT {
		t := p.advance()
		return t.Lexeme, t.Span, true
	}
	p.diags.Errorf(p.cur().Span, "expected identifier, got %s", p.cur().Kind)
	return "", p.cur().Span, false
}

// itemStartKeywords is the error-recovery sync set: on a parse failure inside an
// item, skip forward to the next of these (after a Newline/Dedent).
var itemStartKeywords = map[token.Keyword]bool{
	token.KwImport: true, token.KwType: true, token.KwEnum: true,
	token.KwFn: true, token.KwService: true, token.KwConfig: true,
	token.KwApp: true, token.KwMigration: true, token.KwTest: true,
}

func (p *Parser) syncToNextItem() {
	for !p.atEnd() {
		if p.cur().Kind == token.KEYWORD && itemStartKeywords[p.cur().Keyword] {
			if p.pos == 0 {
				return
			}
			if prev := p.toks[p.pos-1].Kind; prev == token.NEWLINE || prev == token.DEDENT {
				return
			}
		}
		p.advance()
	}
}

func (p *Parser) parseItem() ast.Item {
	start := p.pos
	switch {
	case p.isKeyword(token.KwImport):
		return p.parseImport()
	case p.isKeyword(token.KwType):
		return p.parseType()
	case p.isKeyword(token.KwEnum):
		return p.parseEnum()
	case p.isKeyword(token.KwFn):
		return p.parseFn()
	case p.isKeyword(token.KwService):
		return p.parseService()
	case p.isKeyword(token.KwConfig):
		return p.parseConfig()
	case p.isKeyword(token.KwApp):
		return p.parseBlockItem(token.KwApp, "app")
	case p.isKeyword(token.KwMigration):
		return p.parseBlockItem(token.KwMigration, "migration")
	case p.isKeyword(token.KwTest):
		return p.parseBlockItem(token.KwTest, "test")
	default:
		p.diags.Errorf(p.cur().Span, "expected a top-level item, got %s %q", p.cur().Kind, p.cur().Lexeme)
		p.advance()
		if p.pos == start {
			p.advance()
		}
		p.syncToNextItem()
		return nil
	}
}

func (p *Parser) tryParseRequires() *ast.RequireDecl {
	if !p.isKeyword(token.KwRequires) {
		return nil
	}
	start := p.advance().Span
	var caps []string
	for {
		name, sp, ok := p.expectIdent()
		if !ok {
			break
		}
		caps = append(caps, name)
		start = token.Merge(start, sp)
		if p.cur().Kind == token.COMMA {
			p.advance()
			continue
		}
		break
	}
	p.skipNewlines()
	return &ast.RequireDecl{SpanV: start, Capabilities: caps}
}

func (p *Parser) parseBlockItem(kw token.Keyword, label string) ast.Item {
	start, _ := p.expectKeyword(kw)
	nameTok, _ := p.expectKind(token.STRING, "name string")
	p.expectKind(token.COLON, "':'")
	block := p.parseBlock()
	bi := ast.BlockItem{SpanV: token.Merge(start.Span, block.Span()), Name: nameTok.StrVal, Body: block}
	switch label {
	case "app":
		return &ast.AppDecl{BlockItem: bi}
	case "migration":
		return &ast.MigrationDecl{BlockItem: bi}
	default:
		return &ast.TestDecl{BlockItem: bi}
	}
}

func (p *Parser) parseImport() ast.Item {
	start, _ := p.expectKeyword(token.KwImport)
	imp := &ast.Import{SpanV: start.Span}
	if p.cur().Kind == token.LBRACE {
		p.advance()
		for p.cur().Kind != token.RBRACE && !p.atEnd() {
			name, _, ok := p.expectIdent()
			if !ok {
				break
			}
			alias := ""
			if p.isKeyword(token.KwAs) {
				p.advance()
				alias, _, _ = p.expectIdent()
			}
			imp.Names = append(imp.Names, ast.ImportItem{Name: name, Alias: alias})
			if p.cur().Kind == token.COMMA {
				p.advance()
				continue
			}
			break
		}
		p.expectKind(token.RBRACE, "'}'")
		p.expectKeyword(token.KwFrom)
		pathTok, _ := p.expectKind(token.STRING, "import path string")
		imp.Path = pathTok.StrVal
	} else {
		name, _, _ := p.expectIdent()
		alias := name
		if p.isKeyword(token.KwAs) {
			p.advance()
			alias, _, _ = p.expectIdent()
		}
		if p.isKeyword(token.KwFrom) {
			p.advance()
			pathTok, _ := p.expectKind(token.STRING, "import path string")
			imp.Path = pathTok.StrVal
		} else {
			imp.Path = name
		}
		imp.ModuleAlias = alias
	}
	end := p.cur().Span
	imp.SpanV = token.Merge(start.Span, end)
	p.skipNewlines()
	return imp
}
