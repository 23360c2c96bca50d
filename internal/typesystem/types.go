// Package typesystem implements the language's type algebra and checker:
// a scoped variable environment, a resolve step from written annotations
// to Ty values, per-expression checking, and the strict-mode capability
// analysis.
package typesystem

import "fmt"

// Kind discriminates the shape of a Ty.
type Kind int

const (
	TInt Kind = iota
	TFloat
	TBool
	TString
	TBytes
	TId
	TEmail
	THtml
	TUnit
	TError
	TNull
	TOption
	TResult
	TList
	TMap
	TRefined
	TStruct
	TEnum
	TConfig
	TModule
	TExternal
	TFn
	TTask
	TRange
	TBoxed
	TUnknown
)

// Ty is a resolved type, the checker's working representation (distinct
// from ast.TypeRef, which is the as-written annotation).
type Ty struct {
	Kind Kind
	Name string // Struct/Enum/Config/Module/External name
	Elem *Ty    // Option/List/Task/Range/Boxed element
	Key  *Ty    // Map key
	Val  *Ty    // Map value
	Ok   *Ty    // Result ok
	Err  *Ty    // Result err
	Repr string // Refined's printed constraint
	Sig  *FnSig // Fn signature
}

// FnSig is a resolved function signature.
type FnSig struct {
	Params []ParamSig
	Ret    *Ty
}

type ParamSig struct {
	Name string
	Ty   *Ty
}

func Prim(k Kind) *Ty { return &Ty{Kind: k} }

func Unknown() *Ty { return &Ty{Kind: TUnknown} }

func OptionOf(t *Ty) *Ty   { return &Ty{Kind: TOption, Elem: t} }
func ListOf(t *Ty) *Ty     { return &Ty{Kind: TList, Elem: t} }
func TaskOf(t *Ty) *Ty     { return &Ty{Kind: TTask, Elem: t} }
func RangeOf(t *Ty) *Ty    { return &Ty{Kind: TRange, Elem: t} }
func BoxedOf(t *Ty) *Ty    { return &Ty{Kind: TBoxed, Elem: t} }
func MapOf(k, v *Ty) *Ty   { return &Ty{Kind: TMap, Key: k, Val: v} }
func ResultOf(ok, err *Ty) *Ty { return &Ty{Kind: TResult, Ok: ok, Err: err} }
func StructTy(name string) *Ty { return &Ty{Kind: TStruct, Name: name} }
func EnumTy(name string) *Ty   { return &Ty{Kind: TEnum, Name: name} }
func ConfigTy(name string) *Ty { return &Ty{Kind: TConfig, Name: name} }
func ModuleTy(name string) *Ty { return &Ty{Kind: TModule, Name: name} }
func ExternalTy(name string) *Ty { return &Ty{Kind: TExternal, Name: name} }
func RefinedTy(base, repr string) *Ty { return &Ty{Kind: TRefined, Name: base, Repr: repr} }

// primitiveNames maps simple TypeRef names to ground types.
var primitiveNames = map[string]Kind{
	"Int": TInt, "Float": TFloat, "Bool": TBool, "String": TString,
	"Bytes": TBytes, "Id": TId, "Email": TEmail, "Html": THtml,
	"Unit": TUnit, "Error": TError, "Null": TNull,
}

// IsAssignable reports whether a value of type `value` may be used where
// `target` is expected.
func IsAssignable(value, target *Ty) bool {
	if value == nil || target == nil {
		return true
	}
	if target.Kind == TUnknown || value.Kind == TUnknown {
		return true
	}
	if tyEqual(value, target) {
		return true
	}
	if value.Kind == TRefined {
		return IsAssignable(primByName(value.Name), target) || target.Kind == TRefined && target.Name == value.Name
	}
	if target.Kind == TRefined {
		return IsAssignable(value, primByName(target.Name))
	}
	if target.Kind == TOption {
		if value.Kind == TOption {
			return IsAssignable(value.Elem, target.Elem)
		}
		if value.Kind == TNull {
			return true
		}
		return IsAssignable(value, target.Elem)
	}
	return false
}

func primByName(name string) *Ty {
	if k, ok := primitiveNames[name]; ok {
		return Prim(k)
	}
	return Unknown()
}

func tyEqual(a, b *Ty) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case TStruct, TEnum, TConfig, TModule, TExternal:
		return a.Name == b.Name
	case TRefined:
		return a.Name == b.Name && a.Repr == b.Repr
	case TOption, TList, TTask, TRange, TBoxed:
		return tyEqual(a.Elem, b.Elem)
	case TMap:
		return tyEqual(a.Key, b.Key) && tyEqual(a.Val, b.Val)
	case TResult:
		return tyEqual(a.Ok, b.Ok) && tyEqual(a.Err, b.Err)
	default:
		return true
	}
}

func (t *Ty) String() string {
	if t == nil {
		return "?"
	}
	switch t.Kind {
	case TInt:
		return "Int"
	case TFloat:
		return "Float"
	case TBool:
		return "Bool"
	case TString:
		return "String"
	case TBytes:
		return "Bytes"
	case TId:
		return "Id"
	case TEmail:
		return "Email"
	case THtml:
		return "Html"
	case TUnit:
		return "Unit"
	case TError:
		return "Error"
	case TNull:
		return "Null"
	case TOption:
		return t.Elem.String() + "?"
	case TResult:
		return fmt.Sprintf("%s!%s", t.Ok, t.Err)
	case TList:
		return "List<" + t.Elem.String() + ">"
	case TMap:
		return "Map<" + t.Key.String() + "," + t.Val.String() + ">"
	case TRefined:
		return t.Name + "(" + t.Repr + ")"
	case TStruct, TEnum, TConfig, TModule, TExternal:
		return t.Name
	case TFn:
		return "Fn"
	case TTask:
		return "Task<" + t.Elem.String() + ">"
	case TRange:
		return "Range<" + t.Elem.String() + ">"
	case TBoxed:
		return "Boxed<" + t.Elem.String() + ">"
	default:
		return "Unknown"
	}
}

// IsNumeric reports whether t is Int or Float.
func (t *Ty) IsNumeric() bool {
	return t != nil && (t.Kind == TInt || t.Kind == TFloat)
}

// ErrorDomains returns every distinct error-type name (Struct/Enum) that
// could flow out of t if t is a Result, directly or via Option<Result<..>>.
func ErrorDomains(t *Ty) []*Ty {
	if t == nil {
		return nil
	}
	switch t.Kind {
	case TResult:
		if t.Err == nil {
			return nil
		}
		return []*Ty{t.Err}
	case TOption:
		return ErrorDomains(t.Elem)
	default:
		return nil
	}
}
