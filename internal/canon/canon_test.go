package canon

import (
	"testing"

	"github.com/fuselang/fuse/internal/ast"
	"github.com/fuselang/fuse/internal/lexer"
	"github.com/fuselang/fuse/internal/parser"
)

func parse(t *testing.T, src string) *ast.Program {
	t.Helper()
	toks, lexDiags := lexer.New(src)
	if lexDiags.HasErrors() {
		t.Fatalf("lex error: %v", lexDiags.All())
	}
	prog, diags := parser.Parse(toks)
	if diags.HasErrors() {
		t.Fatalf("parse error: %v", diags.All())
	}
	return prog
}

func firstExprStmt(t *testing.T, prog *ast.Program) ast.Expr {
	t.Helper()
	fn := prog.Items[len(prog.Items)-1].(*ast.FnDecl)
	return fn.Body.Stmts[0].(*ast.ExprStmt).Expr
}

// An attribute-only HTML shorthand (parsed as a struct literal) becomes
// the canonical tag({"attr": "v"}) call.
func TestHtmlAttrOnlyShorthand(t *testing.T) {
	prog := parse(t, "fn render():\n  div(className=\"box\")\n")
	Program(prog)
	call, ok := firstExprStmt(t, prog).(*ast.Call)
	if !ok {
		t.Fatalf("want Call after canonicalization, got %T", firstExprStmt(t, prog))
	}
	if ident := call.Callee.(*ast.Ident); ident.Name != "div" {
		t.Errorf("callee: %s", ident.Name)
	}
	if len(call.Args) != 1 {
		t.Fatalf("args: %d", len(call.Args))
	}
	ml, ok := call.Args[0].Value.(*ast.MapLit)
	if !ok {
		t.Fatalf("want MapLit arg, got %T", call.Args[0].Value)
	}
	key := ml.Entries[0].Key.(*ast.StringLit)
	if key.Value != "class" {
		t.Errorf("className not normalized: %q", key.Value)
	}
}

// With a trailing child argument the parser keeps a Call; the attrs are
// folded into a leading map literal and the child stays second.
func TestHtmlShorthandWithChild(t *testing.T) {
	prog := parse(t, "fn render():\n  div(className=\"box\", span({\"class\": \"inner\"}))\n")
	Program(prog)
	call := firstExprStmt(t, prog).(*ast.Call)
	if len(call.Args) != 2 {
		t.Fatalf("args: %d", len(call.Args))
	}
	if _, ok := call.Args[0].Value.(*ast.MapLit); !ok {
		t.Errorf("first arg: %T", call.Args[0].Value)
	}
	if _, ok := call.Args[1].Value.(*ast.Call); !ok {
		t.Errorf("child arg: %T", call.Args[1].Value)
	}
}

// A local binding shadows the tag name, so no rewrite happens.
func TestShadowedTagNotRewritten(t *testing.T) {
	prog := parse(t, "fn render():\n  let div = 1\n  div(className=\"box\")\n")
	Program(prog)
	fn := prog.Items[0].(*ast.FnDecl)
	stmt := fn.Body.Stmts[1].(*ast.ExprStmt)
	if _, ok := stmt.Expr.(*ast.StructLit); !ok {
		t.Errorf("shadowed tag must stay a struct literal, got %T", stmt.Expr)
	}
}

// A user type named like a tag keeps struct-literal semantics.
func TestDeclaredTypeShadowsTag(t *testing.T) {
	prog := parse(t, "type div:\n  className: String\nfn render():\n  div(className=\"box\")\n")
	Program(prog)
	fn := prog.Items[1].(*ast.FnDecl)
	stmt := fn.Body.Stmts[0].(*ast.ExprStmt)
	if _, ok := stmt.Expr.(*ast.StructLit); !ok {
		t.Errorf("type-shadowed tag must stay a struct literal, got %T", stmt.Expr)
	}
}

// Non-tag struct literals are untouched.
func TestPlainStructLitUntouched(t *testing.T) {
	prog := parse(t, "type User:\n  name: String\nfn f():\n  User(name=\"x\")\n")
	Program(prog)
	fn := prog.Items[1].(*ast.FnDecl)
	stmt := fn.Body.Stmts[0].(*ast.ExprStmt)
	if _, ok := stmt.Expr.(*ast.StructLit); !ok {
		t.Errorf("got %T", stmt.Expr)
	}
}
