package interp

import (
	"github.com/fuselang/fuse/internal/ast"
	"github.com/fuselang/fuse/internal/value"
)

// assignTo implements the assignment-chain walk at the AST level:
// the root identifier's cell is found, then each Member/Index step either
// mutates the shared heap object in place (Struct/List/Map are pointer-
// backed, so the write is visible through every alias, matching the VM's
// load-mutate-store-back result) or raises when an optional step is Null.
func (e *Engine) assignTo(target ast.Expr, v value.Value, frame *Frame) *Signal {
	switch t := target.(type) {
	case *ast.Ident:
		cell, ok := frame.lookup(t.Name)
		if !ok {
			return runtimeErr("assignment to undeclared variable %s", t.Name)
		}
		*cell = v
		return nil
	case *ast.Member:
		owner, sig := e.evalExpr(t.Target, frame)
		if sig != nil {
			return sig
		}
		return setMember(owner, t.Name, v)
	case *ast.OptionalMember:
		owner, sig := e.evalExpr(t.Target, frame)
		if sig != nil {
			return sig
		}
		if owner.IsNull() {
			return runtimeErr("cannot assign through optional access")
		}
		return setMember(owner, t.Name, v)
	case *ast.Index:
		owner, sig := e.evalExpr(t.Target, frame)
		if sig != nil {
			return sig
		}
		idx, sig := e.evalExpr(t.Index, frame)
		if sig != nil {
			return sig
		}
		return setIndex(owner, idx, v)
	case *ast.OptionalIndex:
		owner, sig := e.evalExpr(t.Target, frame)
		if sig != nil {
			return sig
		}
		if owner.IsNull() {
			return runtimeErr("cannot assign through optional access")
		}
		idx, sig := e.evalExpr(t.Index, frame)
		if sig != nil {
			return sig
		}
		return setIndex(owner, idx, v)
	}
	return runtimeErr("invalid assignment target %T", target)
}

func setMember(owner value.Value, name string, v value.Value) *Signal {
	if !owner.IsObj() {
		return runtimeErr("cannot assign field %s of %s", name, owner.TypeName())
	}
	switch owner.ObjKind() {
	case value.KStruct:
		owner.Obj.(*value.Struct).Fields[name] = v
		return nil
	case value.KBoxed:
		cell := owner.Obj.(*value.Boxed).Cell
		return setMember(*cell, name, v)
	default:
		return runtimeErr("cannot assign field %s of %s", name, owner.TypeName())
	}
}

func setIndex(owner, idx, v value.Value) *Signal {
	if !owner.IsObj() {
		return runtimeErr("cannot index-assign %s", owner.TypeName())
	}
	switch owner.ObjKind() {
	case value.KList:
		l := owner.Obj.(*value.List)
		if !idx.IsInt() {
			return runtimeErr("list index must be Int")
		}
		n := idx.AsInt()
		if n < 0 || int(n) >= len(l.Elems) {
			return runtimeErr("list index out of range: %d", n)
		}
		l.Elems[n] = v
		return nil
	case value.KMap:
		m := owner.Obj.(*value.Map)
		m.Entries[mapKey(idx)] = v
		return nil
	case value.KBoxed:
		cell := owner.Obj.(*value.Boxed).Cell
		return setIndex(*cell, idx, v)
	default:
		return runtimeErr("cannot index-assign %s", owner.TypeName())
	}
}
