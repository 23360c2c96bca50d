package interp

import (
	"github.com/fuselang/fuse/internal/ast"
	"github.com/fuselang/fuse/internal/value"
	"github.com/fuselang/fuse/internal/valueops"
)

func (e *Engine) evalExpr(expr ast.Expr, frame *Frame) (value.Value, *Signal) {
	switch n := expr.(type) {
	case *ast.IntLit:
		return value.Int(n.Value), nil
	case *ast.FloatLit:
		return value.Float(n.Value), nil
	case *ast.BoolLit:
		return value.Bool(n.Value), nil
	case *ast.StringLit:
		return value.Str(n.Value), nil
	case *ast.NullLit:
		return value.Null(), nil
	case *ast.InterpString:
		return e.evalInterpString(n, frame)
	case *ast.Ident:
		return e.evalIdent(n, frame)
	case *ast.Unary:
		return e.evalUnary(n, frame)
	case *ast.Binary:
		return e.evalBinary(n, frame)
	case *ast.Call:
		return e.evalCall(n, frame)
	case *ast.Member:
		return e.evalMember(n.Target, n.Name, frame)
	case *ast.OptionalMember:
		target, sig := e.evalExpr(n.Target, frame)
		if sig != nil {
			return value.Unit(), sig
		}
		if target.IsNull() {
			return value.Null(), nil
		}
		return e.evalMemberOn(target, n.Name, frame)
	case *ast.Index:
		return e.evalIndex(n.Target, n.Index, frame)
	case *ast.OptionalIndex:
		target, sig := e.evalExpr(n.Target, frame)
		if sig != nil {
			return value.Unit(), sig
		}
		if target.IsNull() {
			return value.Null(), nil
		}
		return e.evalIndexOn(target, n.Index, frame)
	case *ast.StructLit:
		return e.evalStructLit(n, frame)
	case *ast.ListLit:
		elems := make([]value.Value, len(n.Elems))
		for i, el := range n.Elems {
			v, sig := e.evalExpr(el, frame)
			if sig != nil {
				return value.Unit(), sig
			}
			elems[i] = v
		}
		return value.ListOf(elems), nil
	case *ast.MapLit:
		entries := make(map[string]value.Value, len(n.Entries))
		for _, me := range n.Entries {
			kv, sig := e.evalExpr(me.Key, frame)
			if sig != nil {
				return value.Unit(), sig
			}
			vv, sig := e.evalExpr(me.Value, frame)
			if sig != nil {
				return value.Unit(), sig
			}
			entries[mapKey(kv)] = vv
		}
		return value.MapOf(entries), nil
	case *ast.Coalesce:
		left, sig := e.evalExpr(n.Left, frame)
		if sig != nil {
			return value.Unit(), sig
		}
		if !left.IsNull() {
			return left, nil
		}
		return e.evalExpr(n.Right, frame)
	case *ast.BangChain:
		return e.evalBangChain(n, frame)
	case *ast.Spawn:
		return e.evalSpawn(n, frame)
	case *ast.Await:
		return e.evalAwait(n, frame)
	case *ast.Box:
		v, sig := e.evalExpr(n.Expr, frame)
		if sig != nil {
			return value.Unit(), sig
		}
		return value.BoxOf(v), nil
	}
	return value.Unit(), runtimeErr("unknown expression %T", expr)
}

func mapKey(v value.Value) string {
	return v.String()
}

func (e *Engine) evalInterpString(n *ast.InterpString, frame *Frame) (value.Value, *Signal) {
	out := ""
	for _, part := range n.Parts {
		if part.Expr == nil {
			out += part.Text
			continue
		}
		v, sig := e.evalExpr(part.Expr, frame)
		if sig != nil {
			return value.Unit(), sig
		}
		out += v.String()
	}
	return value.Str(out), nil
}

func (e *Engine) evalUnary(n *ast.Unary, frame *Frame) (value.Value, *Signal) {
	v, sig := e.evalExpr(n.Expr, frame)
	if sig != nil {
		return value.Unit(), sig
	}
	switch n.Op {
	case "-":
		if v.IsInt() {
			return value.Int(-v.AsInt()), nil
		}
		if v.IsFloat() {
			return value.Float(-v.AsFloat()), nil
		}
		return value.Unit(), runtimeErr("cannot negate %s", v.TypeName())
	case "!":
		return value.Bool(!v.Truthy()), nil
	}
	return value.Unit(), runtimeErr("unknown unary operator %s", n.Op)
}

func (e *Engine) evalBinary(n *ast.Binary, frame *Frame) (value.Value, *Signal) {
	if n.Op == "and" {
		l, sig := e.evalExpr(n.Left, frame)
		if sig != nil {
			return value.Unit(), sig
		}
		if !l.Truthy() {
			return value.Bool(false), nil
		}
		r, sig := e.evalExpr(n.Right, frame)
		if sig != nil {
			return value.Unit(), sig
		}
		return value.Bool(r.Truthy()), nil
	}
	if n.Op == "or" {
		l, sig := e.evalExpr(n.Left, frame)
		if sig != nil {
			return value.Unit(), sig
		}
		if l.Truthy() {
			return value.Bool(true), nil
		}
		r, sig := e.evalExpr(n.Right, frame)
		if sig != nil {
			return value.Unit(), sig
		}
		return value.Bool(r.Truthy()), nil
	}
	l, sig := e.evalExpr(n.Left, frame)
	if sig != nil {
		return value.Unit(), sig
	}
	r, sig := e.evalExpr(n.Right, frame)
	if sig != nil {
		return value.Unit(), sig
	}
	v, err := valueops.ApplyBinary(n.Op, l, r)
	if err != nil {
		return value.Unit(), runtimeErr("%s", err.Error())
	}
	return v, nil
}

func (e *Engine) evalIndex(target, idx ast.Expr, frame *Frame) (value.Value, *Signal) {
	t, sig := e.evalExpr(target, frame)
	if sig != nil {
		return value.Unit(), sig
	}
	return e.evalIndexOn(t, idx, frame)
}

func (e *Engine) evalIndexOn(t value.Value, idx ast.Expr, frame *Frame) (value.Value, *Signal) {
	i, sig := e.evalExpr(idx, frame)
	if sig != nil {
		return value.Unit(), sig
	}
	if !t.IsObj() {
		return value.Unit(), runtimeErr("cannot index %s", t.TypeName())
	}
	switch t.ObjKind() {
	case value.KList:
		l := t.Obj.(*value.List)
		if !i.IsInt() {
			return value.Unit(), runtimeErr("list index must be Int")
		}
		n := i.AsInt()
		if n < 0 || int(n) >= len(l.Elems) {
			return value.Unit(), runtimeErr("list index out of range: %d", n)
		}
		return l.Elems[n], nil
	case value.KMap:
		m := t.Obj.(*value.Map)
		v, ok := m.Entries[mapKey(i)]
		if !ok {
			return value.Null(), nil
		}
		return v, nil
	default:
		return value.Unit(), runtimeErr("cannot index %s", t.TypeName())
	}
}

func (e *Engine) evalStructLit(n *ast.StructLit, frame *Frame) (value.Value, *Signal) {
	unit := e.Reg.Modules[frame.ModuleId]
	syms := e.Syms[frame.ModuleId]
	decl, fieldDecls := resolveTypeDecl(unit, syms, e, n.Name)
	fields := make(map[string]value.Value)
	given := make(map[string]bool)
	for _, fi := range n.Fields {
		v, sig := e.evalExpr(fi.Value, frame)
		if sig != nil {
			return value.Unit(), sig
		}
		fields[fi.Name] = v
		given[fi.Name] = true
	}
	if decl != nil {
		var fieldSig *Signal
		err := valueops.FillStructDefaults(n.Name, fieldDecls, fields, given, func(d ast.Expr) (value.Value, error) {
			v, sig := e.evalExpr(d, frame)
			if sig != nil {
				fieldSig = sig
				return value.Unit(), sig
			}
			return v, nil
		})
		if fieldSig != nil {
			return value.Unit(), fieldSig
		}
		if err == nil {
			err = valueops.ValidateStructFields(fieldDecls, fields, given)
		}
		if err != nil {
			if derr, ok := err.(*valueops.DomainErr); ok {
				return value.Unit(), domainErr(derr.Value)
			}
			return value.Unit(), runtimeErr("%s", err.Error())
		}
	}
	return value.StructOf(n.Name, fields), nil
}
