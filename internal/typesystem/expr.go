package typesystem

import (
	"github.com/fuselang/fuse/internal/ast"
	"github.com/fuselang/fuse/internal/token"
)

func (c *Checker) checkExpr(e ast.Expr) *Ty {
	switch n := e.(type) {
	case nil:
		return Unknown()
	case *ast.IntLit:
		return Prim(TInt)
	case *ast.FloatLit:
		return Prim(TFloat)
	case *ast.BoolLit:
		return Prim(TBool)
	case *ast.StringLit:
		return Prim(TString)
	case *ast.NullLit:
		return Prim(TNull)
	case *ast.InterpString:
		for _, part := range n.Parts {
			if part.Expr != nil {
				c.checkExpr(part.Expr)
			}
		}
		return Prim(TString)
	case *ast.Ident:
		return c.checkIdent(n)
	case *ast.Unary:
		return c.checkUnary(n)
	case *ast.Binary:
		return c.checkBinary(n)
	case *ast.Call:
		return c.checkCall(n)
	case *ast.Member:
		return c.checkMember(n.Target, n.Name, n.SpanV)
	case *ast.OptionalMember:
		base := c.checkMember(n.Target, n.Name, n.SpanV)
		return OptionOf(base)
	case *ast.Index:
		return c.checkIndex(n.Target, n.Index)
	case *ast.OptionalIndex:
		base := c.checkIndex(n.Target, n.Index)
		return OptionOf(base)
	case *ast.StructLit:
		return c.checkStructLit(n)
	case *ast.ListLit:
		return c.checkListLit(n)
	case *ast.MapLit:
		return c.checkMapLit(n)
	case *ast.Coalesce:
		left := c.checkExpr(n.Left)
		right := c.checkExpr(n.Right)
		if left.Kind == TOption {
			return unify(left.Elem, right)
		}
		return unify(left, right)
	case *ast.BangChain:
		return c.checkBangChain(n)
	case *ast.Spawn:
		c.env.push()
		c.checkBlock(n.Block)
		c.env.pop()
		return TaskOf(blockReturnType(n.Block, c))
	case *ast.Await:
		inner := c.checkExpr(n.Expr)
		if inner.Kind != TTask && inner.Kind != TUnknown {
			c.diags.Errorf(n.Span(), "await requires Task<T>, got %s", inner)
			return Unknown()
		}
		if inner.Kind == TTask {
			return inner.Elem
		}
		return Unknown()
	case *ast.Box:
		return BoxedOf(c.checkExpr(n.Expr))
	}
	return Unknown()
}

func unify(a, b *Ty) *Ty {
	if a == nil || a.Kind == TUnknown {
		return b
	}
	if b == nil || b.Kind == TUnknown {
		return a
	}
	if tyEqual(a, b) {
		return a
	}
	return Unknown()
}

// blockReturnType scans a spawned block's top-level return statements for a
// common type; the interpreter/VM determine the actual value at runtime, so
// this is a best-effort static hint used only for diagnostics.
func blockReturnType(b *ast.Block, c *Checker) *Ty {
	if b == nil {
		return Prim(TUnit)
	}
	for _, stmt := range b.Stmts {
		if ret, ok := stmt.(*ast.ReturnStmt); ok && ret.Value != nil {
			return c.checkExpr(ret.Value)
		}
	}
	return Prim(TUnit)
}

func (c *Checker) checkIdent(n *ast.Ident) *Ty {
	if ty, ok := c.env.lookup(n.Name); ok {
		return ty
	}
	if decl, ok := c.syms.Functions[n.Name]; ok {
		return c.resolveFnSig(decl).Ret
	}
	if _, ok := c.syms.Configs[n.Name]; ok {
		return ConfigTy(n.Name)
	}
	if _, ok := c.syms.Enums[n.Name]; ok {
		return EnumTy(n.Name)
	}
	if _, ok := c.syms.Types[n.Name]; ok {
		return StructTy(n.Name)
	}
	if link, ok := c.unit.ImportItems[n.Name]; ok {
		if other, ok := c.allSyms[link.Id]; ok {
			if _, ok := other.Configs[n.Name]; ok {
				return ConfigTy(n.Name)
			}
		}
	}
	if _, ok := c.unit.Modules[n.Name]; ok {
		return ModuleTy(n.Name)
	}
	if builtinCapabilities[n.Name] {
		c.usedCaps[n.Name] = true
		return Unknown()
	}
	switch n.Name {
	case "print", "assert", "range", "Some", "None", "Ok", "Err":
		return Unknown()
	}
	c.diags.Errorf(n.Span(), "unknown identifier %s", n.Name)
	return Unknown()
}

func (c *Checker) checkUnary(n *ast.Unary) *Ty {
	operand := c.checkExpr(n.Expr)
	switch n.Op {
	case "-":
		if !operand.IsNumeric() && operand.Kind != TUnknown {
			c.diags.Errorf(n.Span(), "unary - requires numeric operand, got %s", operand)
		}
		return operand
	case "!":
		if operand.Kind != TBool && operand.Kind != TUnknown {
			c.diags.Errorf(n.Span(), "unary ! requires Bool operand, got %s", operand)
		}
		return Prim(TBool)
	}
	return Unknown()
}

func (c *Checker) checkBinary(n *ast.Binary) *Ty {
	left := c.checkExpr(n.Left)
	right := c.checkExpr(n.Right)
	switch n.Op {
	case "+", "-", "*", "/", "%":
		if n.Op == "+" && (left.Kind == TString || right.Kind == TString) {
			return Prim(TString)
		}
		if left.IsNumeric() && right.IsNumeric() {
			if left.Kind == TFloat || right.Kind == TFloat {
				return Prim(TFloat)
			}
			return Prim(TInt)
		}
		if left.Kind == TUnknown || right.Kind == TUnknown {
			return Unknown()
		}
		c.diags.Errorf(n.Span(), "%s requires numeric (or string, for +) operands, got %s and %s", n.Op, left, right)
		return Unknown()
	case "==", "!=":
		if !IsAssignable(left, right) && !IsAssignable(right, left) && left.Kind != TUnknown && right.Kind != TUnknown {
			c.diags.Errorf(n.Span(), "cannot compare incompatible types %s and %s", left, right)
		}
		return Prim(TBool)
	case "<", "<=", ">", ">=":
		if (!left.IsNumeric() || !right.IsNumeric()) && left.Kind != TUnknown && right.Kind != TUnknown {
			c.diags.Errorf(n.Span(), "comparison requires numeric operands, got %s and %s", left, right)
		}
		return Prim(TBool)
	case "and", "or":
		if left.Kind != TBool && left.Kind != TUnknown {
			c.diags.Errorf(n.Left.Span(), "%s requires Bool operand, got %s", n.Op, left)
		}
		if right.Kind != TBool && right.Kind != TUnknown {
			c.diags.Errorf(n.Right.Span(), "%s requires Bool operand, got %s", n.Op, right)
		}
		return Prim(TBool)
	case "..":
		if (!left.IsNumeric() || !right.IsNumeric()) && left.Kind != TUnknown && right.Kind != TUnknown {
			c.diags.Errorf(n.Span(), ".. requires numeric operands, got %s and %s", left, right)
		}
		return RangeOf(unify(left, right))
	}
	return Unknown()
}

func (c *Checker) checkCall(n *ast.Call) *Ty {
	for _, a := range n.Args {
		if a.Name != "" {
			c.diags.Errorf(n.Span(), "named arguments are not allowed in calls (use a struct literal)")
		}
		c.checkExpr(a.Value)
	}
	switch callee := n.Callee.(type) {
	case *ast.Ident:
		if builtinCapabilities[callee.Name] {
			c.usedCaps[callee.Name] = true
			return Unknown()
		}
		if decl, ok := c.syms.Functions[callee.Name]; ok {
			return c.resolveFnSig(decl).Ret
		}
		if link, ok := c.unit.ImportItems[callee.Name]; ok {
			if other, ok := c.allSyms[link.Id]; ok {
				if _, ok := other.Functions[callee.Name]; ok {
					return Unknown()
				}
			}
		}
		return c.checkExpr(n.Callee)
	case *ast.Member:
		if target, ok := callee.Target.(*ast.Ident); ok && builtinCapabilities[target.Name] {
			c.usedCaps[target.Name] = true
			return Unknown()
		}
		c.checkExpr(callee)
		return Unknown()
	default:
		c.checkExpr(n.Callee)
		return Unknown()
	}
}

func (c *Checker) checkMember(target ast.Expr, name string, span token.Span) *Ty {
	base := c.checkExpr(target)
	switch base.Kind {
	case TStruct:
		if td, ok := c.syms.Types[base.Name]; ok {
			for _, f := range td.Fields {
				if f.Name == name {
					return c.resolveTypeRef(f.Type)
				}
			}
			if fields, ok := c.syms.DerivedFields[base.Name]; ok {
				for _, f := range fields {
					if f.Name == name {
						return c.resolveTypeRef(f.Type)
					}
				}
			}
		}
		return Unknown()
	case TConfig:
		if cd, ok := c.syms.Configs[base.Name]; ok {
			for _, f := range cd.Fields {
				if f.Name == name {
					return c.resolveTypeRef(f.Type)
				}
			}
		}
		return Unknown()
	case TEnum:
		if ed, ok := c.syms.Enums[base.Name]; ok {
			for _, v := range ed.Variants {
				if v.Name == name {
					return EnumTy(base.Name)
				}
			}
			c.diags.Errorf(span, "unknown variant %s of enum %s", name, base.Name)
		}
		return EnumTy(base.Name)
	case TModule:
		return Unknown()
	default:
		return Unknown()
	}
}

func (c *Checker) checkIndex(target, index ast.Expr) *Ty {
	base := c.checkExpr(target)
	c.checkExpr(index)
	switch base.Kind {
	case TList:
		return base.Elem
	case TMap:
		return base.Val
	case TUnknown:
		return Unknown()
	default:
		return Unknown()
	}
}

func (c *Checker) checkStructLit(n *ast.StructLit) *Ty {
	td, ok := c.syms.Types[n.Name]
	var fields []*ast.FieldDecl
	if ok {
		if td.Derive != nil {
			fields = c.syms.DerivedFields[n.Name]
		} else {
			fields = td.Fields
		}
	}
	seen := make(map[string]bool)
	provided := make(map[string]bool)
	for _, f := range n.Fields {
		if seen[f.Name] {
			c.diags.Errorf(n.Span(), "duplicate field %s in struct literal", f.Name)
		}
		seen[f.Name] = true
		provided[f.Name] = true
		valTy := c.checkExpr(f.Value)
		if ok {
			found := false
			for _, fd := range fields {
				if fd.Name == f.Name {
					found = true
					wantTy := c.resolveTypeRef(fd.Type)
					if !IsAssignable(valTy, wantTy) {
						c.typeMismatch(f.Value.Span(), wantTy, valTy)
					}
				}
			}
			if !found {
				c.diags.Errorf(n.Span(), "unknown field %s on %s", f.Name, n.Name)
			}
		}
	}
	if ok {
		for _, fd := range fields {
			if provided[fd.Name] {
				continue
			}
			if fd.Default != nil || fd.Type.IsOptional() {
				continue
			}
			c.diags.Errorf(n.Span(), "missing required field %s on %s", fd.Name, n.Name)
		}
		return StructTy(n.Name)
	}
	return Unknown()
}

func (c *Checker) checkListLit(n *ast.ListLit) *Ty {
	var elem *Ty
	for _, el := range n.Elems {
		t := c.checkExpr(el)
		if elem == nil {
			elem = t
		} else {
			elem = unify(elem, t)
		}
	}
	if elem == nil {
		elem = Unknown()
	}
	return ListOf(elem)
}

func (c *Checker) checkMapLit(n *ast.MapLit) *Ty {
	var key, val *Ty
	for _, en := range n.Entries {
		kt := c.checkExpr(en.Key)
		vt := c.checkExpr(en.Value)
		if key == nil {
			key, val = kt, vt
		} else {
			key, val = unify(key, kt), unify(val, vt)
		}
	}
	if key == nil {
		key = Prim(TString)
	}
	if val == nil {
		val = Unknown()
	}
	return MapOf(key, val)
}

func (c *Checker) checkBangChain(n *ast.BangChain) *Ty {
	inner := c.checkExpr(n.Expr)
	if n.Error != nil {
		c.checkExpr(n.Error)
	}
	switch inner.Kind {
	case TOption:
		return inner.Elem
	case TResult:
		return inner.Ok
	case TUnknown:
		return Unknown()
	default:
		c.diags.Errorf(n.Span(), "?! requires an Option or Result, got %s", inner)
		return Unknown()
	}
}
