package parser

import (
	"testing"

	"github.com/fuselang/fuse/internal/ast"
	"github.com/fuselang/fuse/internal/lexer"
)

func parse(t *testing.T, src string) *ast.Program {
	t.Helper()
	toks, lexDiags := lexer.New(src)
	if lexDiags.HasErrors() {
		t.Fatalf("lex error: %v", lexDiags.All())
	}
	prog, diags := Parse(toks)
	if diags.HasErrors() {
		t.Fatalf("parse error: %v", diags.All())
	}
	return prog
}

func TestFnDecl(t *testing.T) {
	prog := parse(t, "fn add(a: Int, b: Int) -> Int:\n  return a + b\n")
	if len(prog.Items) != 1 {
		t.Fatalf("want 1 item, got %d", len(prog.Items))
	}
	fn, ok := prog.Items[0].(*ast.FnDecl)
	if !ok {
		t.Fatalf("want FnDecl, got %T", prog.Items[0])
	}
	if fn.Name != "add" || len(fn.Params) != 2 || fn.Ret == nil {
		t.Errorf("bad signature: %+v", fn)
	}
	if len(fn.Body.Stmts) != 1 {
		t.Fatalf("want 1 stmt, got %d", len(fn.Body.Stmts))
	}
	ret, ok := fn.Body.Stmts[0].(*ast.ReturnStmt)
	if !ok {
		t.Fatalf("want ReturnStmt, got %T", fn.Body.Stmts[0])
	}
	if _, ok := ret.Value.(*ast.Binary); !ok {
		t.Errorf("want Binary return value, got %T", ret.Value)
	}
}

// A call with any named argument parses as a struct literal.
func TestStructLitVersusCall(t *testing.T) {
	prog := parse(t, "fn f():\n  let a = User(name=\"x\")\n  let b = g(1, 2)\n")
	fn := prog.Items[0].(*ast.FnDecl)

	letA := fn.Body.Stmts[0].(*ast.LetStmt)
	if sl, ok := letA.Value.(*ast.StructLit); !ok {
		t.Errorf("named-arg call: want StructLit, got %T", letA.Value)
	} else if sl.Name != "User" || len(sl.Fields) != 1 || sl.Fields[0].Name != "name" {
		t.Errorf("struct literal shape: %+v", sl)
	}

	letB := fn.Body.Stmts[1].(*ast.LetStmt)
	if _, ok := letB.Value.(*ast.Call); !ok {
		t.Errorf("positional call: want Call, got %T", letB.Value)
	}
}

func TestTypeDeclWithDerive(t *testing.T) {
	prog := parse(t, "type PublicUser = User without password, email\n")
	td := prog.Items[0].(*ast.TypeDecl)
	if td.Derive == nil || td.Derive.Base != "User" {
		t.Fatalf("derive: %+v", td.Derive)
	}
	if len(td.Derive.Without) != 2 || td.Derive.Without[0] != "password" {
		t.Errorf("without: %v", td.Derive.Without)
	}
}

func TestEnumDecl(t *testing.T) {
	prog := parse(t, "enum Shape:\n  case Circle(Float)\n  case Square(Float)\n")
	ed := prog.Items[0].(*ast.EnumDecl)
	if ed.Name != "Shape" || len(ed.Variants) != 2 {
		t.Fatalf("enum: %+v", ed)
	}
	if ed.Variants[0].Name != "Circle" || len(ed.Variants[0].Payload) != 1 {
		t.Errorf("variant: %+v", ed.Variants[0])
	}
}

func TestServiceRoutes(t *testing.T) {
	src := "service Users \"/api\":\n" +
		"  get \"/u/{id:Id}\" -> String!NotFound:\n" +
		"    return \"ok\"\n" +
		"  post \"/u\"(User) -> User:\n" +
		"    return body\n"
	prog := parse(t, src)
	sd := prog.Items[0].(*ast.ServiceDecl)
	if sd.BasePath != "/api" || len(sd.Routes) != 2 {
		t.Fatalf("service: %+v", sd)
	}
	if sd.Routes[0].Verb != "GET" || sd.Routes[0].Path != "/u/{id:Id}" {
		t.Errorf("route 0: %+v", sd.Routes[0])
	}
	if sd.Routes[0].RetType.Kind != ast.TRResult {
		t.Errorf("route 0 ret: %+v", sd.Routes[0].RetType)
	}
	if sd.Routes[1].BodyType == nil {
		t.Error("route 1: missing body type")
	}
}

func TestMatchStmt(t *testing.T) {
	src := "fn f(s: Shape):\n" +
		"  match s:\n" +
		"    case Circle(r):\n" +
		"      print(r)\n" +
		"    case _:\n" +
		"      print(0)\n"
	prog := parse(t, src)
	fn := prog.Items[0].(*ast.FnDecl)
	m := fn.Body.Stmts[0].(*ast.MatchStmt)
	if len(m.Cases) != 2 {
		t.Fatalf("cases: %d", len(m.Cases))
	}
	if _, ok := m.Cases[0].Pattern.(*ast.EnumVariantPattern); !ok {
		t.Errorf("case 0 pattern: %T", m.Cases[0].Pattern)
	}
	if _, ok := m.Cases[1].Pattern.(*ast.WildcardPattern); !ok {
		t.Errorf("case 1 pattern: %T", m.Cases[1].Pattern)
	}
}

func TestBangChain(t *testing.T) {
	prog := parse(t, "fn f(y: Option<String>) -> String:\n  return y ?! NotFound(message=\"no\")\n")
	fn := prog.Items[0].(*ast.FnDecl)
	ret := fn.Body.Stmts[0].(*ast.ReturnStmt)
	bc, ok := ret.Value.(*ast.BangChain)
	if !ok {
		t.Fatalf("want BangChain, got %T", ret.Value)
	}
	if bc.Error == nil {
		t.Error("want explicit error expression")
	}
}

func TestBangChainWithoutError(t *testing.T) {
	prog := parse(t, "fn f(y: Option<Int>) -> Int:\n  return y ?!\n")
	fn := prog.Items[0].(*ast.FnDecl)
	ret := fn.Body.Stmts[0].(*ast.ReturnStmt)
	bc, ok := ret.Value.(*ast.BangChain)
	if !ok {
		t.Fatalf("want BangChain, got %T", ret.Value)
	}
	if bc.Error != nil {
		t.Errorf("want no error expression, got %T", bc.Error)
	}
}

func TestPrecedence(t *testing.T) {
	prog := parse(t, "fn f():\n  let x = 1 + 2 * 3\n")
	fn := prog.Items[0].(*ast.FnDecl)
	let := fn.Body.Stmts[0].(*ast.LetStmt)
	add := let.Value.(*ast.Binary)
	if add.Op != "+" {
		t.Fatalf("root op: %s", add.Op)
	}
	mul, ok := add.Right.(*ast.Binary)
	if !ok || mul.Op != "*" {
		t.Errorf("right: %+v", add.Right)
	}
}

func TestImportForms(t *testing.T) {
	prog := parse(t, "import { a, b as c } from \"./lib\"\nimport util from \"./util\"\n")
	i0 := prog.Items[0].(*ast.Import)
	if len(i0.Names) != 2 || i0.Names[1].Alias != "c" || i0.Path != "./lib" {
		t.Errorf("named import: %+v", i0)
	}
	i1 := prog.Items[1].(*ast.Import)
	if i1.ModuleAlias != "util" || i1.Path != "./util" {
		t.Errorf("module import: %+v", i1)
	}
}

// A broken item must not prevent the following item from parsing (the
// sync-to-next-item recovery).
func TestRecoverySyncsToNextItem(t *testing.T) {
	toks, _ := lexer.New("type Broken\nfn ok():\n  print(1)\n")
	prog, diags := Parse(toks)
	if !diags.HasErrors() {
		t.Fatal("want diagnostics from broken type decl")
	}
	foundFn := false
	for _, item := range prog.Items {
		if fn, ok := item.(*ast.FnDecl); ok && fn.Name == "ok" {
			foundFn = true
		}
	}
	if !foundFn {
		t.Error("parser did not recover to the fn item")
	}
}

// Depth-first span starts must be monotonically non-decreasing.
func TestSpansMonotonic(t *testing.T) {
	src := "fn add(a: Int, b: Int) -> Int:\n  let c = a + b\n  return c\n\nfn main():\n  print(add(1, 2))\n"
	prog := parse(t, src)
	last := 0
	for _, item := range prog.Items {
		sp := item.Span()
		if sp.Start < last {
			t.Errorf("item span start went backwards: %d < %d", sp.Start, last)
		}
		last = sp.Start
	}
}

func TestRequiresDecl(t *testing.T) {
	prog := parse(t, "requires network, db\nfn f():\n  print(1)\n")
	if len(prog.Requires) != 1 {
		t.Fatalf("requires: %d", len(prog.Requires))
	}
	caps := prog.Requires[0].Capabilities
	if len(caps) != 2 || caps[0] != "network" || caps[1] != "db" {
		t.Errorf("capabilities: %v", caps)
	}
}

func TestInterpStringReparse(t *testing.T) {
	prog := parse(t, "fn f(name: String):\n  print(\"hi ${name}!\")\n")
	fn := prog.Items[0].(*ast.FnDecl)
	call := fn.Body.Stmts[0].(*ast.ExprStmt).Expr.(*ast.Call)
	is, ok := call.Args[0].Value.(*ast.InterpString)
	if !ok {
		t.Fatalf("want InterpString, got %T", call.Args[0].Value)
	}
	var exprPart ast.Expr
	for _, part := range is.Parts {
		if part.Expr != nil {
			exprPart = part.Expr
		}
	}
	ident, ok := exprPart.(*ast.Ident)
	if !ok || ident.Name != "name" {
		t.Fatalf("interpolated expr: %#v", exprPart)
	}
	// The span must point back into the original source.
	if ident.Span().Start == 0 {
		t.Error("interpolated expr span not rebased to the file offset")
	}
}
