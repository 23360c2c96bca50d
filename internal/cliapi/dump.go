package cliapi

import (
	"fmt"
	"io"
	"strings"

	"github.com/fuselang/fuse/internal/ast"
)

// dumpProgram writes a structural rendering of the parsed program, one
// node per line with nesting by indentation — the --dump-ast surface.
func dumpProgram(w io.Writer, prog *ast.Program) {
	d := &dumper{w: w}
	for _, req := range prog.Requires {
		d.line(0, "Requires(%s) %s", strings.Join(req.Capabilities, ", "), req.Span())
	}
	for _, item := range prog.Items {
		d.item(0, item)
	}
}

type dumper struct{ w io.Writer }

func (d *dumper) line(depth int, format string, args ...any) {
	fmt.Fprintf(d.w, "%s%s\n", strings.Repeat("  ", depth), fmt.Sprintf(format, args...))
}

func (d *dumper) item(depth int, item ast.Item) {
	switch n := item.(type) {
	case *ast.Import:
		d.line(depth, "Import(%q) %s", n.Path, n.Span())
	case *ast.TypeDecl:
		if n.Derive != nil {
			d.line(depth, "Type(%s = %s without %s) %s", n.Name, n.Derive.Base, strings.Join(n.Derive.Without, ", "), n.Span())
			return
		}
		d.line(depth, "Type(%s) %s", n.Name, n.Span())
		for _, f := range n.Fields {
			d.line(depth+1, "Field(%s: %s)", f.Name, f.Type)
			if f.Default != nil {
				d.expr(depth+2, f.Default)
			}
		}
	case *ast.EnumDecl:
		d.line(depth, "Enum(%s) %s", n.Name, n.Span())
		for _, v := range n.Variants {
			d.line(depth+1, "Variant(%s/%d)", v.Name, len(v.Payload))
		}
	case *ast.FnDecl:
		params := make([]string, len(n.Params))
		for i, p := range n.Params {
			params[i] = p.Name + ": " + p.Type.String()
		}
		ret := ""
		if n.Ret != nil {
			ret = " -> " + n.Ret.String()
		}
		d.line(depth, "Fn(%s(%s)%s) %s", n.Name, strings.Join(params, ", "), ret, n.Span())
		d.block(depth+1, n.Body)
	case *ast.ServiceDecl:
		d.line(depth, "Service(%s %q) %s", n.Name, n.BasePath, n.Span())
		for _, r := range n.Routes {
			d.line(depth+1, "Route(%s %q -> %s)", r.Verb, r.Path, r.RetType)
			d.block(depth+2, r.Body)
		}
	case *ast.ConfigDecl:
		d.line(depth, "Config(%s) %s", n.Name, n.Span())
		for _, f := range n.Fields {
			d.line(depth+1, "Field(%s: %s)", f.Name, f.Type)
			d.expr(depth+2, f.Value)
		}
	case *ast.AppDecl:
		d.line(depth, "App(%q) %s", n.Name, n.Span())
		d.block(depth+1, n.Body)
	case *ast.MigrationDecl:
		d.line(depth, "Migration(%q) %s", n.Name, n.Span())
		d.block(depth+1, n.Body)
	case *ast.TestDecl:
		d.line(depth, "Test(%q) %s", n.Name, n.Span())
		d.block(depth+1, n.Body)
	}
}

func (d *dumper) block(depth int, b *ast.Block) {
	if b == nil {
		return
	}
	for _, s := range b.Stmts {
		d.stmt(depth, s)
	}
}

func (d *dumper) stmt(depth int, s ast.Stmt) {
	switch n := s.(type) {
	case *ast.LetStmt:
		kw := "Let"
		if n.Mutable {
			kw = "Var"
		}
		if n.Type != nil {
			d.line(depth, "%s(%s: %s)", kw, n.Name, n.Type)
		} else {
			d.line(depth, "%s(%s)", kw, n.Name)
		}
		d.expr(depth+1, n.Value)
	case *ast.ReturnStmt:
		d.line(depth, "Return")
		if n.Value != nil {
			d.expr(depth+1, n.Value)
		}
	case *ast.IfStmt:
		d.line(depth, "If")
		for _, arm := range n.Arms {
			d.line(depth+1, "Arm")
			d.expr(depth+2, arm.Cond)
			d.block(depth+2, arm.Block)
		}
		if n.Else != nil {
			d.line(depth+1, "Else")
			d.block(depth+2, n.Else)
		}
	case *ast.MatchStmt:
		d.line(depth, "Match")
		d.expr(depth+1, n.Subject)
		for _, c := range n.Cases {
			d.line(depth+1, "Case(%s)", patternLabel(c.Pattern))
			d.block(depth+2, c.Block)
		}
	case *ast.ForStmt:
		d.line(depth, "For(%s)", patternLabel(n.Pattern))
		d.expr(depth+1, n.Iter)
		d.block(depth+1, n.Block)
	case *ast.WhileStmt:
		d.line(depth, "While")
		d.expr(depth+1, n.Cond)
		d.block(depth+1, n.Block)
	case *ast.BreakStmt:
		d.line(depth, "Break")
	case *ast.ContinueStmt:
		d.line(depth, "Continue")
	case *ast.AssignStmt:
		d.line(depth, "Assign")
		d.expr(depth+1, n.Target)
		d.expr(depth+1, n.Value)
	case *ast.ExprStmt:
		d.expr(depth, n.Expr)
	}
}

func (d *dumper) expr(depth int, e ast.Expr) {
	switch n := e.(type) {
	case *ast.IntLit:
		d.line(depth, "Int(%d)", n.Value)
	case *ast.FloatLit:
		d.line(depth, "Float(%g)", n.Value)
	case *ast.BoolLit:
		d.line(depth, "Bool(%t)", n.Value)
	case *ast.StringLit:
		d.line(depth, "String(%q)", n.Value)
	case *ast.NullLit:
		d.line(depth, "Null")
	case *ast.InterpString:
		d.line(depth, "InterpString(%d parts)", len(n.Parts))
		for _, part := range n.Parts {
			if part.Expr != nil {
				d.expr(depth+1, part.Expr)
			} else {
				d.line(depth+1, "Text(%q)", part.Text)
			}
		}
	case *ast.Ident:
		d.line(depth, "Ident(%s)", n.Name)
	case *ast.Unary:
		d.line(depth, "Unary(%s)", n.Op)
		d.expr(depth+1, n.Expr)
	case *ast.Binary:
		d.line(depth, "Binary(%s)", n.Op)
		d.expr(depth+1, n.Left)
		d.expr(depth+1, n.Right)
	case *ast.Coalesce:
		d.line(depth, "Coalesce")
		d.expr(depth+1, n.Left)
		d.expr(depth+1, n.Right)
	case *ast.Call:
		d.line(depth, "Call")
		d.expr(depth+1, n.Callee)
		for _, a := range n.Args {
			if a.Name != "" {
				d.line(depth+1, "NamedArg(%s)", a.Name)
				d.expr(depth+2, a.Value)
			} else {
				d.expr(depth+1, a.Value)
			}
		}
	case *ast.Member:
		d.line(depth, "Member(%s)", n.Name)
		d.expr(depth+1, n.Target)
	case *ast.OptionalMember:
		d.line(depth, "OptionalMember(%s)", n.Name)
		d.expr(depth+1, n.Target)
	case *ast.Index:
		d.line(depth, "Index")
		d.expr(depth+1, n.Target)
		d.expr(depth+1, n.Index)
	case *ast.OptionalIndex:
		d.line(depth, "OptionalIndex")
		d.expr(depth+1, n.Target)
		d.expr(depth+1, n.Index)
	case *ast.StructLit:
		d.line(depth, "StructLit(%s)", n.Name)
		for _, f := range n.Fields {
			d.line(depth+1, "Field(%s)", f.Name)
			d.expr(depth+2, f.Value)
		}
	case *ast.ListLit:
		d.line(depth, "List(%d)", len(n.Elems))
		for _, el := range n.Elems {
			d.expr(depth+1, el)
		}
	case *ast.MapLit:
		d.line(depth, "Map(%d)", len(n.Entries))
		for _, en := range n.Entries {
			d.expr(depth+1, en.Key)
			d.expr(depth+1, en.Value)
		}
	case *ast.BangChain:
		d.line(depth, "Bang")
		d.expr(depth+1, n.Expr)
		if n.Error != nil {
			d.expr(depth+1, n.Error)
		}
	case *ast.Spawn:
		d.line(depth, "Spawn")
		d.block(depth+1, n.Block)
	case *ast.Await:
		d.line(depth, "Await")
		d.expr(depth+1, n.Expr)
	case *ast.Box:
		d.line(depth, "Box")
		d.expr(depth+1, n.Expr)
	}
}

func patternLabel(p ast.Pattern) string {
	switch n := p.(type) {
	case *ast.WildcardPattern:
		return "_"
	case *ast.LiteralPattern:
		return "literal"
	case *ast.IdentPattern:
		return n.Name
	case *ast.EnumVariantPattern:
		return fmt.Sprintf("%s/%d", n.Name, len(n.Args))
	case *ast.StructPattern:
		return n.Name + "{}"
	}
	return "?"
}
