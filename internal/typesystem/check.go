package typesystem

import (
	"github.com/fuselang/fuse/internal/ast"
	"github.com/fuselang/fuse/internal/diagnostics"
	"github.com/fuselang/fuse/internal/modules"
	"github.com/fuselang/fuse/internal/symbols"
	"github.com/fuselang/fuse/internal/token"
)

var builtinCapabilities = map[string]bool{
	"log": true, "db": true, "env": true, "json": true, "time": true,
	"print": true, "serve": true, "errors": true,
}

// Checker type-checks a single module against its own and its imports'
// symbol tables, recording the capabilities it observed built-ins using.
type Checker struct {
	moduleId    modules.ModuleId
	syms        *symbols.ModuleSymbols
	allSyms     map[modules.ModuleId]*symbols.ModuleSymbols
	unit        *modules.ModuleUnit
	diags       *diagnostics.Diagnostics
	env         *typeEnv
	fnCache     map[string]*FnSig
	currentRet  *Ty
	usedCaps    map[string]bool
}

func NewChecker(moduleId modules.ModuleId, unit *modules.ModuleUnit, syms *symbols.ModuleSymbols, allSyms map[modules.ModuleId]*symbols.ModuleSymbols, diags *diagnostics.Diagnostics) *Checker {
	return &Checker{
		moduleId: moduleId,
		syms:     syms,
		allSyms:  allSyms,
		unit:     unit,
		diags:    diags,
		env:      newTypeEnv(),
		fnCache:  make(map[string]*FnSig),
		usedCaps: make(map[string]bool),
	}
}

func (c *Checker) UsedCapabilities() map[string]bool { return c.usedCaps }

// CheckProgram walks every top-level item of the module.
func (c *Checker) CheckProgram() {
	for _, item := range c.unit.Program.Items {
		switch decl := item.(type) {
		case *ast.FnDecl:
			c.checkFnDecl(decl)
		case *ast.ConfigDecl:
			c.checkConfigDecl(decl)
		case *ast.ServiceDecl:
			c.checkServiceDecl(decl)
		case *ast.AppDecl:
			c.env.push()
			c.checkBlock(decl.Body)
			c.env.pop()
		case *ast.TestDecl:
			c.env.push()
			c.checkBlock(decl.Body)
			c.env.pop()
		case *ast.TypeDecl:
			c.checkTypeDecl(decl)
		case *ast.EnumDecl:
			c.checkEnumDecl(decl)
		}
	}
}

func (c *Checker) checkTypeDecl(decl *ast.TypeDecl) {
	for _, f := range decl.Fields {
		fieldTy := c.resolveTypeRef(f.Type)
		if f.Default != nil {
			valTy := c.checkExpr(f.Default)
			if !IsAssignable(valTy, fieldTy) {
				c.typeMismatch(f.Default.Span(), fieldTy, valTy)
			}
		}
	}
}

func (c *Checker) checkEnumDecl(decl *ast.EnumDecl) {
	for _, v := range decl.Variants {
		for _, t := range v.Payload {
			c.resolveTypeRef(t)
		}
	}
}

func (c *Checker) checkConfigDecl(decl *ast.ConfigDecl) {
	for _, f := range decl.Fields {
		fieldTy := c.resolveTypeRef(f.Type)
		valTy := c.checkExpr(f.Value)
		if !IsAssignable(valTy, fieldTy) {
			c.typeMismatch(f.Value.Span(), fieldTy, valTy)
		}
	}
}

func (c *Checker) checkServiceDecl(decl *ast.ServiceDecl) {
	c.usedCaps["serve"] = true
	for _, r := range decl.Routes {
		c.env.push()
		for _, seg := range routeParams(r.Path) {
			c.env.insert(seg.name, primByName(seg.typeName))
		}
		if r.BodyType != nil {
			c.env.insert("body", c.resolveTypeRef(r.BodyType))
		}
		prevRet := c.currentRet
		c.currentRet = c.resolveTypeRef(r.RetType)
		c.checkBlock(r.Body)
		c.currentRet = prevRet
		c.env.pop()
	}
}

func (c *Checker) checkFnDecl(decl *ast.FnDecl) {
	sig := c.resolveFnSig(decl)
	prevRet := c.currentRet
	c.currentRet = sig.Ret
	c.env.push()
	for _, p := range sig.Params {
		c.env.insert(p.Name, p.Ty)
	}
	c.checkBlock(decl.Body)
	c.env.pop()
	c.currentRet = prevRet
}

func (c *Checker) resolveFnSig(decl *ast.FnDecl) *FnSig {
	if sig, ok := c.fnCache[decl.Name]; ok {
		return sig
	}
	sig := &FnSig{}
	for _, p := range decl.Params {
		sig.Params = append(sig.Params, ParamSig{Name: p.Name, Ty: c.resolveTypeRef(p.Type)})
	}
	if decl.Ret != nil {
		sig.Ret = c.resolveTypeRef(decl.Ret)
	} else {
		sig.Ret = Prim(TUnit)
	}
	c.fnCache[decl.Name] = sig
	return sig
}

func (c *Checker) checkBlock(b *ast.Block) {
	if b == nil {
		return
	}
	c.env.push()
	for _, stmt := range b.Stmts {
		c.checkStmt(stmt)
	}
	c.env.pop()
}

func (c *Checker) checkStmt(stmt ast.Stmt) {
	switch s := stmt.(type) {
	case *ast.LetStmt:
		valTy := c.checkExpr(s.Value)
		declTy := valTy
		if s.Type != nil {
			declTy = c.resolveTypeRef(s.Type)
			if !IsAssignable(valTy, declTy) {
				c.typeMismatch(s.Value.Span(), declTy, valTy)
			}
		}
		c.env.insert(s.Name, declTy)
	case *ast.AssignStmt:
		targetTy := c.checkExpr(s.Target)
		valTy := c.checkExpr(s.Value)
		if !IsAssignable(valTy, targetTy) {
			c.typeMismatch(s.Value.Span(), targetTy, valTy)
		}
	case *ast.ReturnStmt:
		if s.Value != nil {
			valTy := c.checkExpr(s.Value)
			if c.currentRet != nil && c.currentRet.Kind == TResult {
				if !IsAssignable(valTy, c.currentRet.Ok) && !tyEqual(valTy, c.currentRet) {
					c.typeMismatch(s.Value.Span(), c.currentRet.Ok, valTy)
				}
			} else if c.currentRet != nil && !IsAssignable(valTy, c.currentRet) {
				c.typeMismatch(s.Value.Span(), c.currentRet, valTy)
			}
		}
	case *ast.IfStmt:
		for _, arm := range s.Arms {
			condTy := c.checkExpr(arm.Cond)
			if condTy.Kind != TBool && condTy.Kind != TUnknown {
				c.diags.Errorf(arm.Cond.Span(), "if condition must be Bool, got %s", condTy)
			}
			c.env.push()
			c.checkBlock(arm.Block)
			c.env.pop()
		}
		if s.Else != nil {
			c.env.push()
			c.checkBlock(s.Else)
			c.env.pop()
		}
	case *ast.MatchStmt:
		c.checkExpr(s.Subject)
		for _, cs := range s.Cases {
			c.env.push()
			// Pattern bindings enter the arm's scope as Unknown; the
			// matched payload's precise type is a runtime property
			// (the Unknown inference fallback).
			for _, name := range patternNames(cs.Pattern) {
				c.env.insert(name, Unknown())
			}
			c.checkBlock(cs.Block)
			c.env.pop()
		}
	case *ast.ForStmt:
		iterTy := c.checkExpr(s.Iter)
		elemTy := Unknown()
		switch iterTy.Kind {
		case TList:
			elemTy = iterTy.Elem
		case TMap:
			elemTy = iterTy.Val
		case TRange:
			elemTy = iterTy.Elem
		case TUnknown:
		default:
			c.diags.Errorf(s.Iter.Span(), "for-loop source must be List or Map, got %s", iterTy)
		}
		c.env.push()
		if ident, ok := s.Pattern.(*ast.IdentPattern); ok {
			c.env.insert(ident.Name, elemTy)
		} else {
			for _, name := range patternNames(s.Pattern) {
				c.env.insert(name, Unknown())
			}
		}
		c.checkBlock(s.Block)
		c.env.pop()
	case *ast.WhileStmt:
		condTy := c.checkExpr(s.Cond)
		if condTy.Kind != TBool && condTy.Kind != TUnknown {
			c.diags.Errorf(s.Cond.Span(), "while condition must be Bool, got %s", condTy)
		}
		c.env.push()
		c.checkBlock(s.Block)
		c.env.pop()
	case *ast.ExprStmt:
		c.checkExpr(s.Expr)
	}
}

// patternNames collects every identifier a pattern binds, left to
// right. The reserved Some/None/Ok/Err spellings and wildcards bind
// nothing themselves.
func patternNames(p ast.Pattern) []string {
	var out []string
	var walk func(ast.Pattern)
	walk = func(p ast.Pattern) {
		switch pat := p.(type) {
		case *ast.IdentPattern:
			switch pat.Name {
			case "_", "None", "Some", "Ok", "Err":
			default:
				out = append(out, pat.Name)
			}
		case *ast.EnumVariantPattern:
			for _, a := range pat.Args {
				walk(a)
			}
		case *ast.StructPattern:
			for _, f := range pat.Fields {
				walk(f.Pattern)
			}
		}
	}
	walk(p)
	return out
}

type routeParam struct {
	name     string
	typeName string
}

// routeParams extracts `{name:Type}` path segments from a route path like
// "/u/{id:Id}" (path segments {name:Type} are typed path parameters).
func routeParams(path string) []routeParam {
	var out []routeParam
	i := 0
	for i < len(path) {
		if path[i] != '{' {
			i++
			continue
		}
		end := i + 1
		for end < len(path) && path[end] != '}' {
			end++
		}
		if end >= len(path) {
			break
		}
		seg := path[i+1 : end]
		name, typeName := seg, "String"
		for j := 0; j < len(seg); j++ {
			if seg[j] == ':' {
				name, typeName = seg[:j], seg[j+1:]
				break
			}
		}
		out = append(out, routeParam{name: name, typeName: typeName})
		i = end + 1
	}
	return out
}

func (c *Checker) typeMismatch(span token.Span, want, got *Ty) {
	c.diags.Errorf(span, "type mismatch: expected %s, got %s", want, got)
}
