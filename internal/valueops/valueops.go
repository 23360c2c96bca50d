// Package valueops holds the arithmetic, comparison, and struct-default
// logic behind binary operators and struct literals. Both
// internal/interp and internal/vm call these exact functions instead of
// each reimplementing operator semantics, so the two engines can never
// drift apart on what "+"  or a missing struct field means.
package valueops

import (
	"fmt"

	"github.com/fuselang/fuse/internal/ast"
	"github.com/fuselang/fuse/internal/runtimetype"
	"github.com/fuselang/fuse/internal/value"
)

// OpError is a runtime-level failure from an operator, as opposed to a
// domain Error(value) the language program raised itself.
type OpError struct{ msg string }

func (e *OpError) Error() string { return e.msg }

func errf(format string, args ...any) *OpError {
	return &OpError{msg: fmt.Sprintf(format, args...)}
}

// ApplyBinary evaluates one binary operator over already
// evaluated operands. "and"/"or" are not handled here: they short-circuit
// before their right operand is evaluated, so each caller implements that
// control flow itself (interp.evalBinary, and lower.lowerBinary with
// jumps; the VM's eager OpAnd/OpOr opcodes are never emitted by the
// lowerer).
func ApplyBinary(op string, l, r value.Value) (value.Value, error) {
	switch op {
	case "+":
		if l.IsObj() && l.ObjKind() == value.KString || r.IsObj() && r.ObjKind() == value.KString {
			return value.Str(l.String() + r.String()), nil
		}
		return NumericOp(op, l, r)
	case "-", "*", "/", "%":
		return NumericOp(op, l, r)
	case "==":
		return value.Bool(l.Equals(r)), nil
	case "!=":
		return value.Bool(!l.Equals(r)), nil
	case "<", "<=", ">", ">=":
		return CompareOp(op, l, r)
	case "..":
		if !l.IsInt() || !r.IsInt() {
			return value.Unit(), errf("range bounds must be Int")
		}
		n := r.AsInt() - l.AsInt()
		if n < 0 {
			n = 0
		}
		items := make([]value.Value, 0, n)
		for i := l.AsInt(); i < r.AsInt(); i++ {
			items = append(items, value.Int(i))
		}
		return value.ListOf(items), nil
	}
	return value.Unit(), errf("unknown binary operator %s", op)
}

// NumericOp applies one of +,-,*,/,% over Int/Float operands, staying in
// Int as long as both sides are Int and widening to Float otherwise.
func NumericOp(op string, l, r value.Value) (value.Value, error) {
	if !l.IsInt() && !l.IsFloat() {
		return value.Unit(), errf("non-numeric operand %s to %s", l.TypeName(), op)
	}
	if !r.IsInt() && !r.IsFloat() {
		return value.Unit(), errf("non-numeric operand %s to %s", r.TypeName(), op)
	}
	if l.IsInt() && r.IsInt() {
		a, b := l.AsInt(), r.AsInt()
		switch op {
		case "+":
			return value.Int(a + b), nil
		case "-":
			return value.Int(a - b), nil
		case "*":
			return value.Int(a * b), nil
		case "/":
			if b == 0 {
				return value.Unit(), errf("division by zero")
			}
			return value.Int(a / b), nil
		case "%":
			if b == 0 {
				return value.Unit(), errf("division by zero")
			}
			return value.Int(a % b), nil
		}
	}
	a, b := AsFloat(l), AsFloat(r)
	switch op {
	case "+":
		return value.Float(a + b), nil
	case "-":
		return value.Float(a - b), nil
	case "*":
		return value.Float(a * b), nil
	case "/":
		return value.Float(a / b), nil
	case "%":
		return value.Unit(), errf("%% requires Int operands")
	}
	return value.Unit(), errf("unknown numeric operator %s", op)
}

// AsFloat widens an Int or Float value to float64.
func AsFloat(v value.Value) float64 {
	if v.IsInt() {
		return float64(v.AsInt())
	}
	return v.AsFloat()
}

// CompareOp applies one of <,<=,>,>= over numeric operands.
func CompareOp(op string, l, r value.Value) (value.Value, error) {
	if !l.IsInt() && !l.IsFloat() || !r.IsInt() && !r.IsFloat() {
		return value.Unit(), errf("comparison requires numeric operands")
	}
	a, b := AsFloat(l), AsFloat(r)
	switch op {
	case "<":
		return value.Bool(a < b), nil
	case "<=":
		return value.Bool(a <= b), nil
	case ">":
		return value.Bool(a > b), nil
	case ">=":
		return value.Bool(a >= b), nil
	}
	return value.Unit(), errf("unknown comparison operator %s", op)
}

// FillStructDefaults applies the struct-literal default rule to every
// declared field the literal itself didn't supply: the type's default
// expression if any, else null for an optional field, else a missing-field
// domain error. evalDefault evaluates one field's Default AST node in the
// caller's own expression evaluator (interp's frame-closing evalExpr, or
// the VM's lowered config/type default function) since valueops has no
// expression evaluator of its own.
func FillStructDefaults(structName string, fieldDecls []*ast.FieldDecl, fields map[string]value.Value, given map[string]bool, evalDefault func(ast.Expr) (value.Value, error)) error {
	for _, fd := range fieldDecls {
		if given[fd.Name] {
			continue
		}
		if fd.Default != nil {
			v, err := evalDefault(fd.Default)
			if err != nil {
				return err
			}
			fields[fd.Name] = v
			continue
		}
		if fd.Type != nil && fd.Type.IsOptional() {
			fields[fd.Name] = value.Null()
			continue
		}
		return &DomainErr{Value: MissingFieldError(structName, fd.Name)}
	}
	return nil
}

// ValidateStructFields checks each literal-supplied field against its
// declared type, returning a DomainErr
// carrying a ValidationError on mismatch. Unknown field names are left to
// the type checker; at runtime they pass through unchecked.
func ValidateStructFields(decls []*ast.FieldDecl, fields map[string]value.Value, given map[string]bool) error {
	for _, fd := range decls {
		if !given[fd.Name] {
			continue
		}
		if err := runtimetype.ValidateValue(fields[fd.Name], fd.Type, fd.Name); err != nil {
			if verr, ok := err.(*runtimetype.ValidationError); ok {
				return &DomainErr{Value: verr.ToValue()}
			}
			return err
		}
	}
	return nil
}

// DomainErr wraps a domain error value so FillStructDefaults can
// signal it distinctly from an OpError without importing interp's Signal
// type (which would create an import cycle: interp already imports
// valueops).
type DomainErr struct{ Value value.Value }

func (e *DomainErr) Error() string { return "domain error: " + e.Value.String() }

// MissingFieldError builds the same validation error interp and the VM
// both raise for an unfilled required struct field.
func MissingFieldError(typeName, field string) value.Value {
	return (&runtimetype.ValidationError{Fields: []runtimetype.FieldError{{
		Path: field, Code: "missing_field", Message: "missing required field " + field + " of " + typeName,
	}}}).ToValue()
}

// MatchPattern implements the language's pattern matching: patterns bind
// left-to-right; Some/None/Ok/Err are recognized regardless of scope. bind
// is called once per IdentPattern a successful match binds — interp wires
// it to a Frame.declare, the VM wires it to a local-slot write — so this
// one matcher drives both engines identically.
func MatchPattern(p ast.Pattern, v value.Value, bind func(name string, v value.Value)) bool {
	switch pat := p.(type) {
	case *ast.WildcardPattern:
		return true
	case *ast.LiteralPattern:
		lit, _ := LiteralValue(pat.Value)
		return lit.Equals(v)
	case *ast.IdentPattern:
		switch pat.Name {
		case "None":
			return v.IsNull()
		case "Some":
			return false // a bare `Some` with no parenthesised sub-pattern matches nothing
		}
		bind(pat.Name, v)
		return true
	case *ast.EnumVariantPattern:
		return matchEnumVariantPattern(pat, v, bind)
	case *ast.StructPattern:
		return matchStructPattern(pat, v, bind)
	}
	return false
}

func matchEnumVariantPattern(pat *ast.EnumVariantPattern, v value.Value, bind func(string, value.Value)) bool {
	switch pat.Name {
	case "Some":
		if v.IsNull() {
			return false
		}
		if len(pat.Args) != 1 {
			return false
		}
		return MatchPattern(pat.Args[0], v, bind)
	case "None":
		return v.IsNull()
	case "Ok":
		if !v.IsObj() || v.ObjKind() != value.KResultOk {
			return false
		}
		inner := v.Obj.(*value.ResultOk).Inner
		if len(pat.Args) == 0 {
			return true
		}
		return MatchPattern(pat.Args[0], inner, bind)
	case "Err":
		if !v.IsObj() || v.ObjKind() != value.KResultErr {
			return false
		}
		inner := v.Obj.(*value.ResultErr).Inner
		if len(pat.Args) == 0 {
			return true
		}
		return MatchPattern(pat.Args[0], inner, bind)
	default:
		if !v.IsObj() || v.ObjKind() != value.KEnum {
			return false
		}
		en := v.Obj.(*value.Enum)
		if en.Variant != pat.Name || len(en.Payload) != len(pat.Args) {
			return false
		}
		for i, sub := range pat.Args {
			if !MatchPattern(sub, en.Payload[i], bind) {
				return false
			}
		}
		return true
	}
}

func matchStructPattern(pat *ast.StructPattern, v value.Value, bind func(string, value.Value)) bool {
	if !v.IsObj() || v.ObjKind() != value.KStruct {
		return false
	}
	s := v.Obj.(*value.Struct)
	if pat.Name != "" && pat.Name != s.Name {
		return false
	}
	for _, f := range pat.Fields {
		fv, ok := s.Fields[f.Name]
		if !ok {
			return false
		}
		if !MatchPattern(f.Pattern, fv, bind) {
			return false
		}
	}
	return true
}

// LiteralValue evaluates a LiteralPattern's constant AST node directly,
// without a full expression evaluator (literal patterns are always one of
// these five node kinds).
func LiteralValue(e ast.Expr) (value.Value, bool) {
	switch lit := e.(type) {
	case *ast.IntLit:
		return value.Int(lit.Value), true
	case *ast.FloatLit:
		return value.Float(lit.Value), true
	case *ast.BoolLit:
		return value.Bool(lit.Value), true
	case *ast.StringLit:
		return value.Str(lit.Value), true
	case *ast.NullLit:
		return value.Null(), true
	}
	return value.Null(), false
}

// IterableItems resolves what a `for pat in iter` source yields:
// List yields its elements, Map yields its values (the IterInit
// contract, shared so both engines iterate identically).
func IterableItems(v value.Value) ([]value.Value, error) {
	if !v.IsObj() {
		return nil, errf("cannot iterate over %s", v.TypeName())
	}
	switch v.ObjKind() {
	case value.KList:
		return v.Obj.(*value.List).Elems, nil
	case value.KMap:
		m := v.Obj.(*value.Map)
		out := make([]value.Value, 0, len(m.Entries))
		for _, val := range m.Entries {
			out = append(out, val)
		}
		return out, nil
	default:
		return nil, errf("cannot iterate over %s", v.TypeName())
	}
}
