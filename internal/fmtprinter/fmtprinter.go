// Package fmtprinter is the source formatter collaborator: it
// re-lexes and re-parses the text through the ordinary front end, then
// reprints the AST with canonical two-space indentation. On parse errors
// the input is returned unchanged alongside the diagnostics, so a broken
// buffer is never mangled.
package fmtprinter

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/fuselang/fuse/internal/ast"
	"github.com/fuselang/fuse/internal/diagnostics"
	"github.com/fuselang/fuse/internal/lexer"
	"github.com/fuselang/fuse/internal/parser"
)

// FormatSource formats one file's text.
func FormatSource(text string) (string, []diagnostics.Diag) {
	toks, lexDiags := lexer.New(text)
	prog, parseDiags := parser.Parse(toks)
	all := &diagnostics.Diagnostics{}
	all.Extend(lexDiags)
	all.Extend(parseDiags)
	if all.HasErrors() {
		return text, all.All()
	}
	p := &printer{}
	p.program(prog)
	return p.String(), all.All()
}

type printer struct {
	b      strings.Builder
	indent int
}

func (p *printer) String() string { return p.b.String() }

func (p *printer) line(format string, args ...any) {
	p.b.WriteString(strings.Repeat("  ", p.indent))
	fmt.Fprintf(&p.b, format, args...)
	p.b.WriteByte('\n')
}

func (p *printer) blank() { p.b.WriteByte('\n') }

func (p *printer) program(prog *ast.Program) {
	for _, req := range prog.Requires {
		p.line("requires %s", strings.Join(req.Capabilities, ", "))
	}
	if len(prog.Requires) > 0 {
		p.blank()
	}
	// Imports first, in source order, then the remaining items separated
	// by one blank line.
	var imports []ast.Item
	var rest []ast.Item
	for _, item := range prog.Items {
		if _, ok := item.(*ast.Import); ok {
			imports = append(imports, item)
		} else {
			rest = append(rest, item)
		}
	}
	for _, item := range imports {
		p.item(item)
	}
	if len(imports) > 0 && len(rest) > 0 {
		p.blank()
	}
	for i, item := range rest {
		if i > 0 {
			p.blank()
		}
		p.item(item)
	}
}

func (p *printer) doc(doc string) {
	if doc == "" {
		return
	}
	for _, l := range strings.Split(doc, "\n") {
		p.line("## %s", l)
	}
}

func (p *printer) item(item ast.Item) {
	switch d := item.(type) {
	case *ast.Import:
		p.importDecl(d)
	case *ast.TypeDecl:
		p.typeDecl(d)
	case *ast.EnumDecl:
		p.enumDecl(d)
	case *ast.FnDecl:
		p.fnDecl(d)
	case *ast.ServiceDecl:
		p.serviceDecl(d)
	case *ast.ConfigDecl:
		p.configDecl(d)
	case *ast.AppDecl:
		p.blockItem("app", d.Name, d.Body)
	case *ast.MigrationDecl:
		p.blockItem("migration", d.Name, d.Body)
	case *ast.TestDecl:
		p.blockItem("test", d.Name, d.Body)
	}
}

func (p *printer) importDecl(d *ast.Import) {
	switch {
	case len(d.Names) > 0:
		parts := make([]string, len(d.Names))
		for i, n := range d.Names {
			if n.Alias != "" {
				parts[i] = n.Name + " as " + n.Alias
			} else {
				parts[i] = n.Name
			}
		}
		p.line("import { %s } from %s", strings.Join(parts, ", "), strconv.Quote(d.Path))
	case d.ModuleAlias != "" && d.ModuleAlias != d.Path:
		p.line("import %s from %s", d.ModuleAlias, strconv.Quote(d.Path))
	default:
		p.line("import %s", d.Path)
	}
}

func (p *printer) typeDecl(d *ast.TypeDecl) {
	p.doc(d.Doc)
	if d.Derive != nil {
		p.line("type %s = %s without %s", d.Name, d.Derive.Base, strings.Join(d.Derive.Without, ", "))
		return
	}
	p.line("type %s:", d.Name)
	p.indent++
	for _, f := range d.Fields {
		if f.Default != nil {
			p.line("%s: %s = %s", f.Name, p.typeRef(f.Type), p.expr(f.Default, 0))
		} else {
			p.line("%s: %s", f.Name, p.typeRef(f.Type))
		}
	}
	p.indent--
}

func (p *printer) enumDecl(d *ast.EnumDecl) {
	p.doc(d.Doc)
	p.line("enum %s:", d.Name)
	p.indent++
	for _, v := range d.Variants {
		if len(v.Payload) == 0 {
			p.line("case %s", v.Name)
			continue
		}
		tys := make([]string, len(v.Payload))
		for i, ty := range v.Payload {
			tys[i] = p.typeRef(ty)
		}
		p.line("case %s(%s)", v.Name, strings.Join(tys, ", "))
	}
	p.indent--
}

func (p *printer) fnDecl(d *ast.FnDecl) {
	p.doc(d.Doc)
	params := make([]string, len(d.Params))
	for i, prm := range d.Params {
		params[i] = prm.Name + ": " + p.typeRef(prm.Type)
	}
	sig := fmt.Sprintf("fn %s(%s)", d.Name, strings.Join(params, ", "))
	if d.Ret != nil {
		sig += " -> " + p.typeRef(d.Ret)
	}
	p.line("%s:", sig)
	p.block(d.Body)
}

func (p *printer) serviceDecl(d *ast.ServiceDecl) {
	if d.BasePath != "" {
		p.line("service %s %s:", d.Name, strconv.Quote(d.BasePath))
	} else {
		p.line("service %s:", d.Name)
	}
	p.indent++
	for i, r := range d.Routes {
		if i > 0 {
			p.blank()
		}
		head := strings.ToLower(r.Verb) + " " + strconv.Quote(r.Path)
		if r.BodyType != nil {
			head += "(" + p.typeRef(r.BodyType) + ")"
		}
		head += " -> " + p.typeRef(r.RetType)
		p.line("%s:", head)
		p.block(r.Body)
	}
	p.indent--
}

func (p *printer) configDecl(d *ast.ConfigDecl) {
	p.line("config %s:", d.Name)
	p.indent++
	for _, f := range d.Fields {
		p.line("%s: %s = %s", f.Name, p.typeRef(f.Type), p.expr(f.Value, 0))
	}
	p.indent--
}

func (p *printer) blockItem(kw, name string, body *ast.Block) {
	p.line("%s %s:", kw, strconv.Quote(name))
	p.block(body)
}

func (p *printer) block(b *ast.Block) {
	p.indent++
	if b == nil || len(b.Stmts) == 0 {
		p.indent--
		return
	}
	for _, s := range b.Stmts {
		p.stmt(s)
	}
	p.indent--
}

func (p *printer) stmt(s ast.Stmt) {
	switch n := s.(type) {
	case *ast.LetStmt:
		kw := "let"
		if n.Mutable {
			kw = "var"
		}
		if sp, ok := n.Value.(*ast.Spawn); ok {
			p.line("%s %s = spawn:", kw, n.Name)
			p.block(sp.Block)
			return
		}
		if n.Type != nil {
			p.line("%s %s: %s = %s", kw, n.Name, p.typeRef(n.Type), p.expr(n.Value, 0))
		} else {
			p.line("%s %s = %s", kw, n.Name, p.expr(n.Value, 0))
		}
	case *ast.ReturnStmt:
		if n.Value != nil {
			p.line("return %s", p.expr(n.Value, 0))
		} else {
			p.line("return")
		}
	case *ast.IfStmt:
		for i, arm := range n.Arms {
			kw := "if"
			if i > 0 {
				kw = "else if"
			}
			p.line("%s %s:", kw, p.expr(arm.Cond, 0))
			p.block(arm.Block)
		}
		if n.Else != nil {
			p.line("else:")
			p.block(n.Else)
		}
	case *ast.MatchStmt:
		p.line("match %s:", p.expr(n.Subject, 0))
		p.indent++
		for _, c := range n.Cases {
			p.line("case %s:", p.pattern(c.Pattern))
			p.block(c.Block)
		}
		p.indent--
	case *ast.ForStmt:
		p.line("for %s in %s:", p.pattern(n.Pattern), p.expr(n.Iter, 0))
		p.block(n.Block)
	case *ast.WhileStmt:
		p.line("while %s:", p.expr(n.Cond, 0))
		p.block(n.Block)
	case *ast.BreakStmt:
		p.line("break")
	case *ast.ContinueStmt:
		p.line("continue")
	case *ast.AssignStmt:
		p.line("%s = %s", p.expr(n.Target, 0), p.expr(n.Value, 0))
	case *ast.ExprStmt:
		if sp, ok := n.Expr.(*ast.Spawn); ok {
			p.line("spawn:")
			p.block(sp.Block)
			return
		}
		p.line("%s", p.expr(n.Expr, 0))
	}
}

func (p *printer) pattern(pat ast.Pattern) string {
	switch n := pat.(type) {
	case *ast.WildcardPattern:
		return "_"
	case *ast.LiteralPattern:
		return p.expr(n.Value, 0)
	case *ast.IdentPattern:
		return n.Name
	case *ast.EnumVariantPattern:
		if len(n.Args) == 0 {
			return n.Name
		}
		args := make([]string, len(n.Args))
		for i, a := range n.Args {
			args[i] = p.pattern(a)
		}
		return n.Name + "(" + strings.Join(args, ", ") + ")"
	case *ast.StructPattern:
		fields := make([]string, len(n.Fields))
		for i, f := range n.Fields {
			fields[i] = f.Name + ": " + p.pattern(f.Pattern)
		}
		return n.Name + "(" + strings.Join(fields, ", ") + ")"
	}
	return "_"
}

// Expression precedence levels, low to high, mirroring the parser.
const (
	precNone = iota
	precCoalesce
	precOr
	precAnd
	precEquality
	precCompare
	precRange
	precAdd
	precMul
	precUnary
	precPostfix
)

var binaryPrec = map[string]int{
	"??": precCoalesce,
	"or": precOr, "and": precAnd,
	"==": precEquality, "!=": precEquality,
	"<": precCompare, "<=": precCompare, ">": precCompare, ">=": precCompare,
	"..": precRange,
	"+":  precAdd, "-": precAdd,
	"*": precMul, "/": precMul, "%": precMul,
}

// expr renders e, parenthesizing when its precedence is below min.
func (p *printer) expr(e ast.Expr, min int) string {
	s, prec := p.exprPrec(e)
	if prec < min {
		return "(" + s + ")"
	}
	return s
}

func (p *printer) exprPrec(e ast.Expr) (string, int) {
	switch n := e.(type) {
	case *ast.IntLit:
		return strconv.FormatInt(n.Value, 10), precPostfix
	case *ast.FloatLit:
		s := strconv.FormatFloat(n.Value, 'f', -1, 64)
		if !strings.Contains(s, ".") {
			s += ".0"
		}
		return s, precPostfix
	case *ast.BoolLit:
		if n.Value {
			return "true", precPostfix
		}
		return "false", precPostfix
	case *ast.StringLit:
		return strconv.Quote(n.Value), precPostfix
	case *ast.NullLit:
		return "null", precPostfix
	case *ast.InterpString:
		var b strings.Builder
		b.WriteByte('"')
		for _, part := range n.Parts {
			if part.Expr != nil {
				b.WriteString("${")
				b.WriteString(p.expr(part.Expr, 0))
				b.WriteByte('}')
				continue
			}
			b.WriteString(escapeInterp(part.Text))
		}
		b.WriteByte('"')
		return b.String(), precPostfix
	case *ast.Ident:
		return n.Name, precPostfix
	case *ast.Unary:
		return n.Op + p.expr(n.Expr, precUnary), precUnary
	case *ast.Binary:
		prec := binaryPrec[n.Op]
		// Left-associative: the right operand needs strictly higher
		// precedence to avoid re-parsing differently.
		return p.expr(n.Left, prec) + " " + n.Op + " " + p.expr(n.Right, prec+1), prec
	case *ast.Coalesce:
		return p.expr(n.Left, precCoalesce) + " ?? " + p.expr(n.Right, precCoalesce+1), precCoalesce
	case *ast.Call:
		args := make([]string, len(n.Args))
		for i, a := range n.Args {
			if a.Name != "" {
				args[i] = a.Name + "=" + p.expr(a.Value, 0)
			} else {
				args[i] = p.expr(a.Value, 0)
			}
		}
		return p.expr(n.Callee, precPostfix) + "(" + strings.Join(args, ", ") + ")", precPostfix
	case *ast.Member:
		return p.expr(n.Target, precPostfix) + "." + n.Name, precPostfix
	case *ast.OptionalMember:
		return p.expr(n.Target, precPostfix) + "?." + n.Name, precPostfix
	case *ast.Index:
		return p.expr(n.Target, precPostfix) + "[" + p.expr(n.Index, 0) + "]", precPostfix
	case *ast.OptionalIndex:
		return p.expr(n.Target, precPostfix) + "?[" + p.expr(n.Index, 0) + "]", precPostfix
	case *ast.StructLit:
		fields := make([]string, len(n.Fields))
		for i, f := range n.Fields {
			fields[i] = f.Name + "=" + p.expr(f.Value, 0)
		}
		return n.Name + "(" + strings.Join(fields, ", ") + ")", precPostfix
	case *ast.ListLit:
		elems := make([]string, len(n.Elems))
		for i, el := range n.Elems {
			elems[i] = p.expr(el, 0)
		}
		return "[" + strings.Join(elems, ", ") + "]", precPostfix
	case *ast.MapLit:
		entries := make([]string, len(n.Entries))
		for i, en := range n.Entries {
			entries[i] = p.expr(en.Key, 0) + ": " + p.expr(en.Value, 0)
		}
		return "{" + strings.Join(entries, ", ") + "}", precPostfix
	case *ast.BangChain:
		if n.Error != nil {
			return p.expr(n.Expr, precPostfix) + " ?! " + p.expr(n.Error, precUnary), precPostfix
		}
		return p.expr(n.Expr, precPostfix) + " ?!", precPostfix
	case *ast.Await:
		return "await " + p.expr(n.Expr, precUnary), precUnary
	case *ast.Box:
		return "box " + p.expr(n.Expr, precUnary), precUnary
	case *ast.Spawn:
		// Spawn outside statement position prints inline-empty; statement
		// position is handled in stmt().
		return "spawn:", precNone
	}
	return "", precPostfix
}

// typeRef renders a type annotation, including refined-type constraint
// arguments TypeRef.String leaves abstract.
func (p *printer) typeRef(ty *ast.TypeRef) string {
	if ty == nil {
		return "?"
	}
	switch ty.Kind {
	case ast.TRSimple:
		return ty.Name
	case ast.TRGeneric:
		args := make([]string, len(ty.Args))
		for i, a := range ty.Args {
			args[i] = p.typeRef(a)
		}
		return ty.Base + "<" + strings.Join(args, ", ") + ">"
	case ast.TROptional:
		return p.typeRef(ty.Inner) + "?"
	case ast.TRResult:
		if ty.Err != nil {
			return p.typeRef(ty.Ok) + "!" + p.typeRef(ty.Err)
		}
		return p.typeRef(ty.Ok) + "!"
	case ast.TRRefined:
		args := make([]string, len(ty.RefinedArgs))
		for i, a := range ty.RefinedArgs {
			args[i] = p.expr(a, 0)
		}
		return ty.RefinedBase + "(" + strings.Join(args, ", ") + ")"
	}
	return ty.String()
}

func escapeInterp(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '\n':
			b.WriteString(`\n`)
		case '\t':
			b.WriteString(`\t`)
		case '\r':
			b.WriteString(`\r`)
		case '\\':
			b.WriteString(`\\`)
		case '"':
			b.WriteString(`\"`)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
