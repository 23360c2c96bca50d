// Package canon implements the canonicalizer: after imports are
// known, it rewrites HTML-tag call shorthand into its canonical Call form
// so the symbol collector and type checker see a uniform signature.
package canon

import (
	"github.com/fuselang/fuse/internal/ast"
	"github.com/fuselang/fuse/internal/modules"
	"github.com/fuselang/fuse/internal/token"
)

// Registry rewrites every module in reg, in ascending ModuleId order, the
// same iteration order every other pass uses.
func Registry(reg *modules.Registry) {
	for _, unit := range reg.Ordered() {
		fnNames := make(map[string]bool)
		configNames := make(map[string]bool)
		typeNames := make(map[string]bool)
		for _, item := range unit.Program.Items {
			switch decl := item.(type) {
			case *ast.FnDecl:
				fnNames[decl.Name] = true
			case *ast.ConfigDecl:
				configNames[decl.Name] = true
			case *ast.TypeDecl:
				typeNames[decl.Name] = true
			}
		}
		importItemNames := make(map[string]bool)
		for name := range unit.ImportItems {
			importItemNames[name] = true
		}
		c := &canonicalizer{fnNames: fnNames, configNames: configNames, typeNames: typeNames, importItemNames: importItemNames}
		c.program(unit.Program.Items)
	}
}

// Program canonicalizes a single, already-parsed program with no module
// context (used by the formatter and LSP, which canonicalize one buffer at
// a time without a full registry).
func Program(prog *ast.Program) {
	fnNames := make(map[string]bool)
	configNames := make(map[string]bool)
	typeNames := make(map[string]bool)
	for _, item := range prog.Items {
		switch decl := item.(type) {
		case *ast.FnDecl:
			fnNames[decl.Name] = true
		case *ast.ConfigDecl:
			configNames[decl.Name] = true
		case *ast.TypeDecl:
			typeNames[decl.Name] = true
		}
	}
	c := &canonicalizer{fnNames: fnNames, configNames: configNames, typeNames: typeNames, importItemNames: map[string]bool{}}
	c.program(prog.Items)
}

type canonicalizer struct {
	fnNames         map[string]bool
	configNames     map[string]bool
	typeNames       map[string]bool
	importItemNames map[string]bool
}

type scopeStack struct {
	scopes []map[string]bool
}

func newScopeStack() *scopeStack {
	return &scopeStack{scopes: []map[string]bool{{}}}
}

func (s *scopeStack) clone() *scopeStack {
	out := make([]map[string]bool, len(s.scopes))
	for i, sc := range s.scopes {
		cp := make(map[string]bool, len(sc))
		for k := range sc {
			cp[k] = true
		}
		out[i] = cp
	}
	return &scopeStack{scopes: out}
}

func (s *scopeStack) contains(name string) bool {
	for i := len(s.scopes) - 1; i >= 0; i-- {
		if s.scopes[i][name] {
			return true
		}
	}
	return false
}

func (s *scopeStack) declare(name string) {
	s.scopes[len(s.scopes)-1][name] = true
}

func (s *scopeStack) push() { s.scopes = append(s.scopes, map[string]bool{}) }
func (s *scopeStack) pop() {
	if len(s.scopes) > 1 {
		s.scopes = s.scopes[:len(s.scopes)-1]
	}
}

func (c *canonicalizer) program(items []ast.Item) {
	for _, item := range items {
		switch decl := item.(type) {
		case *ast.TypeDecl:
			for _, f := range decl.Fields {
				c.typeRef(f.Type, newScopeStack())
				if f.Default != nil {
					f.Default = c.expr(f.Default, newScopeStack())
				}
			}
		case *ast.EnumDecl:
			for _, v := range decl.Variants {
				for _, t := range v.Payload {
					c.typeRef(t, newScopeStack())
				}
			}
		case *ast.FnDecl:
			scope := newScopeStack()
			for _, p := range decl.Params {
				c.typeRef(p.Type, scope)
				scope.declare(p.Name)
			}
			if decl.Ret != nil {
				c.typeRef(decl.Ret, scope)
			}
			c.block(decl.Body, scope)
		case *ast.ServiceDecl:
			for _, r := range decl.Routes {
				if r.BodyType != nil {
					c.typeRef(r.BodyType, newScopeStack())
				}
				c.typeRef(r.RetType, newScopeStack())
				c.block(r.Body, newScopeStack())
			}
		case *ast.ConfigDecl:
			for i := range decl.Fields {
				c.typeRef(decl.Fields[i].Type, newScopeStack())
				decl.Fields[i].Value = c.expr(decl.Fields[i].Value, newScopeStack())
			}
		case *ast.AppDecl:
			c.block(decl.Body, newScopeStack())
		case *ast.MigrationDecl:
			c.block(decl.Body, newScopeStack())
		case *ast.TestDecl:
			c.block(decl.Body, newScopeStack())
		}
	}
}

func (c *canonicalizer) typeRef(ty *ast.TypeRef, scope *scopeStack) {
	if ty == nil {
		return
	}
	switch ty.Kind {
	case ast.TRSimple:
	case ast.TROptional:
		c.typeRef(ty.Inner, scope)
	case ast.TRResult:
		c.typeRef(ty.Ok, scope)
		c.typeRef(ty.Err, scope)
	case ast.TRGeneric:
		for _, a := range ty.Args {
			c.typeRef(a, scope)
		}
	case ast.TRRefined:
		for i := range ty.RefinedArgs {
			ty.RefinedArgs[i] = c.expr(ty.RefinedArgs[i], scope.clone())
		}
	}
}

func (c *canonicalizer) block(b *ast.Block, scope *scopeStack) {
	if b == nil {
		return
	}
	scope.push()
	for _, stmt := range b.Stmts {
		c.stmt(stmt, scope)
	}
	scope.pop()
}

func (c *canonicalizer) stmt(stmt ast.Stmt, scope *scopeStack) {
	switch s := stmt.(type) {
	case *ast.LetStmt:
		if s.Type != nil {
			c.typeRef(s.Type, scope)
		}
		s.Value = c.expr(s.Value, scope)
		scope.declare(s.Name)
	case *ast.AssignStmt:
		s.Target = c.expr(s.Target, scope)
		s.Value = c.expr(s.Value, scope)
	case *ast.ReturnStmt:
		if s.Value != nil {
			s.Value = c.expr(s.Value, scope)
		}
	case *ast.IfStmt:
		for i := range s.Arms {
			s.Arms[i].Cond = c.expr(s.Arms[i].Cond, scope)
			branch := scope.clone()
			c.block(s.Arms[i].Block, branch)
		}
		if s.Else != nil {
			branch := scope.clone()
			c.block(s.Else, branch)
		}
	case *ast.MatchStmt:
		s.Subject = c.expr(s.Subject, scope)
		for _, cs := range s.Cases {
			branch := scope.clone()
			for _, name := range patternBindings(cs.Pattern) {
				branch.declare(name)
			}
			c.block(cs.Block, branch)
		}
	case *ast.ForStmt:
		s.Iter = c.expr(s.Iter, scope)
		branch := scope.clone()
		for _, name := range patternBindings(s.Pattern) {
			branch.declare(name)
		}
		c.block(s.Block, branch)
	case *ast.WhileStmt:
		s.Cond = c.expr(s.Cond, scope)
		branch := scope.clone()
		c.block(s.Block, branch)
	case *ast.ExprStmt:
		s.Expr = c.expr(s.Expr, scope)
	case *ast.BreakStmt, *ast.ContinueStmt:
	}
}

// expr canonicalizes one expression, returning its replacement: almost
// always e itself, except when an HTML-tag struct literal is rewritten
// into its canonical Call form.
func (c *canonicalizer) expr(e ast.Expr, scope *scopeStack) ast.Expr {
	switch n := e.(type) {
	case nil:
	case *ast.IntLit, *ast.FloatLit, *ast.BoolLit, *ast.StringLit, *ast.NullLit, *ast.Ident:
	case *ast.Binary:
		n.Left = c.expr(n.Left, scope)
		n.Right = c.expr(n.Right, scope)
	case *ast.Unary:
		n.Expr = c.expr(n.Expr, scope)
	case *ast.Call:
		n.Callee = c.expr(n.Callee, scope)
		for i := range n.Args {
			n.Args[i].Value = c.expr(n.Args[i].Value, scope)
		}
		if ident, ok := n.Callee.(*ast.Ident); ok && c.shouldUseHtmlTagBuiltin(ident.Name, scope) {
			rewriteHtmlAttrShorthand(n)
		}
	case *ast.Member:
		n.Target = c.expr(n.Target, scope)
	case *ast.OptionalMember:
		n.Target = c.expr(n.Target, scope)
	case *ast.Index:
		n.Target = c.expr(n.Target, scope)
		n.Index = c.expr(n.Index, scope)
	case *ast.OptionalIndex:
		n.Target = c.expr(n.Target, scope)
		n.Index = c.expr(n.Index, scope)
	case *ast.StructLit:
		for i := range n.Fields {
			n.Fields[i].Value = c.expr(n.Fields[i].Value, scope)
		}
		// An attribute-only HTML shorthand parses as a struct literal
		// (no child argument keeps it out of the Call form); rewrite it
		// here once scope shadowing is known.
		if c.shouldUseHtmlTagBuiltin(n.Name, scope) {
			if call := htmlStructLitToCall(n); call != nil {
				return call
			}
		}
	case *ast.ListLit:
		for i := range n.Elems {
			n.Elems[i] = c.expr(n.Elems[i], scope)
		}
	case *ast.MapLit:
		for i := range n.Entries {
			n.Entries[i].Key = c.expr(n.Entries[i].Key, scope)
			n.Entries[i].Value = c.expr(n.Entries[i].Value, scope)
		}
	case *ast.InterpString:
		for i := range n.Parts {
			if n.Parts[i].Expr != nil {
				n.Parts[i].Expr = c.expr(n.Parts[i].Expr, scope)
			}
		}
	case *ast.Coalesce:
		n.Left = c.expr(n.Left, scope)
		n.Right = c.expr(n.Right, scope)
	case *ast.BangChain:
		n.Expr = c.expr(n.Expr, scope)
		if n.Error != nil {
			n.Error = c.expr(n.Error, scope)
		}
	case *ast.Spawn:
		c.block(n.Block, scope.clone())
	case *ast.Await:
		n.Expr = c.expr(n.Expr, scope)
	case *ast.Box:
		n.Expr = c.expr(n.Expr, scope)
	}
	return e
}

// htmlStructLitToCall converts `tag(key="v", ...)` (parsed as a struct
// literal) into the canonical `tag({"key": "v", ...})` call, or nil when
// any attribute value is not a string literal.
func htmlStructLitToCall(sl *ast.StructLit) *ast.Call {
	ml := &ast.MapLit{Base: ast.NewBase(sl.Span())}
	for _, f := range sl.Fields {
		lit, ok := f.Value.(*ast.StringLit)
		if !ok {
			return nil
		}
		ml.Entries = append(ml.Entries, ast.MapEntry{
			Key:   &ast.StringLit{Base: ast.NewBase(lit.Span()), Value: normalizeAttrName(f.Name)},
			Value: lit,
		})
	}
	call := &ast.Call{
		Base:   ast.NewBase(sl.Span()),
		Callee: &ast.Ident{Base: ast.NewBase(sl.Span()), Name: sl.Name},
		Args:   []ast.CallArg{{Value: ml}},
	}
	return call
}

func (c *canonicalizer) shouldUseHtmlTagBuiltin(name string, scope *scopeStack) bool {
	if !htmlTags[name] {
		return false
	}
	if scope.contains(name) || c.fnNames[name] || c.configNames[name] || c.typeNames[name] || c.importItemNames[name] {
		return false
	}
	return true
}

// rewriteHtmlAttrShorthand turns `name(key="v", key2="v2", child)` into
// `name({ "normKey":"v", "normKey2":"v2" }, child)` in place, aborting
// (leaving the call untouched) if any named argument's value isn't a
// string literal, or any unnamed arg other than one block-sugar child is
// present.
func rewriteHtmlAttrShorthand(call *ast.Call) {
	hasNamed := false
	for _, a := range call.Args {
		if a.Name != "" {
			hasNamed = true
			break
		}
	}
	if !hasNamed {
		return
	}

	type attr struct {
		key   string
		value string
		span  ast.Expr
	}
	var attrs []attr
	var child ast.Expr
	for _, a := range call.Args {
		if a.Name != "" {
			lit, ok := a.Value.(*ast.StringLit)
			if !ok {
				return
			}
			attrs = append(attrs, attr{key: normalizeAttrName(a.Name), value: lit.Value, span: lit})
			continue
		}
		if a.IsBlockSugar && child == nil {
			child = a.Value
			continue
		}
		return
	}
	if len(attrs) == 0 {
		return
	}

	ml := &ast.MapLit{}
	for _, a := range attrs {
		ml.Entries = append(ml.Entries, ast.MapEntry{
			Key:   &ast.StringLit{Base: ast.NewBase(a.span.Span()), Value: a.key},
			Value: &ast.StringLit{Base: ast.NewBase(a.span.Span()), Value: a.value},
		})
	}
	span := attrs[0].span.Span()
	for _, a := range attrs[1:] {
		span = token.Merge(span, a.span.Span())
	}
	ml.SpanV = span

	newArgs := []ast.CallArg{{Value: ml}}
	if child != nil {
		newArgs = append(newArgs, ast.CallArg{Value: child})
	}
	call.Args = newArgs
}

func patternBindings(p ast.Pattern) []string {
	var out []string
	collectPatternBindings(p, &out)
	return out
}

func collectPatternBindings(p ast.Pattern, out *[]string) {
	switch pat := p.(type) {
	case *ast.WildcardPattern, *ast.LiteralPattern:
	case *ast.IdentPattern:
		if pat.Name != "_" {
			*out = append(*out, pat.Name)
		}
	case *ast.EnumVariantPattern:
		for _, arg := range pat.Args {
			collectPatternBindings(arg, out)
		}
	case *ast.StructPattern:
		for _, f := range pat.Fields {
			collectPatternBindings(f.Pattern, out)
		}
	}
}
