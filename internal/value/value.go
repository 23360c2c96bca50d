// Package value implements the tagged-union runtime Value shared by the
// tree-walking interpreter and the bytecode VM: a Type discriminant plus
// a Data word for unboxed primitives, with an Obj pointer for everything
// heap-shaped, so Int/Float/Bool/Unit/Null never allocate.
package value

import (
	"fmt"
	"math"
)

// Type discriminates the shape of a Value.
type Type uint8

const (
	TUnit Type = iota
	TInt
	TFloat
	TBool
	TNull
	TObj // every heap-shaped value lives behind Obj
)

// Value is the stack-passed runtime representation. Int/Float/Bool/Unit/Null
// never allocate; every other case is carried through Obj.
type Value struct {
	Type Type
	Data uint64 // int64 bits, float64 bits, or bool 0/1
	Obj  Object
}

// Object is satisfied by every heap-shaped value kind.
type Object interface {
	objectKind() Kind
}

// Kind further discriminates Object implementations for type-name
// rendering and pattern matching without repeated type assertions.
type Kind uint8

const (
	KString Kind = iota
	KBytes
	KHtml
	KList
	KMap
	KStruct
	KEnum
	KEnumCtor
	KResultOk
	KResultErr
	KConfig
	KFunction
	KBuiltin
	KQuery
	KTask
	KIterator
	KBoxed
)

func Unit() Value                      { return Value{Type: TUnit} }
func Null() Value                      { return Value{Type: TNull} }
func Int(v int64) Value                { return Value{Type: TInt, Data: uint64(v)} }
func Float(v float64) Value            { return Value{Type: TFloat, Data: math.Float64bits(v)} }
func Bool(v bool) Value {
	var d uint64
	if v {
		d = 1
	}
	return Value{Type: TBool, Data: d}
}
func FromObject(o Object) Value { return Value{Type: TObj, Obj: o} }

func (v Value) AsInt() int64     { return int64(v.Data) }
func (v Value) AsFloat() float64 { return math.Float64frombits(v.Data) }
func (v Value) AsBool() bool     { return v.Data == 1 }

func (v Value) IsUnit() bool { return v.Type == TUnit }
func (v Value) IsNull() bool { return v.Type == TNull }
func (v Value) IsInt() bool  { return v.Type == TInt }
func (v Value) IsFloat() bool { return v.Type == TFloat }
func (v Value) IsBool() bool { return v.Type == TBool }
func (v Value) IsObj() bool  { return v.Type == TObj }

// Truthy applies FUSE's notion of truthiness to condition expressions.
func (v Value) Truthy() bool {
	switch v.Type {
	case TBool:
		return v.AsBool()
	case TNull:
		return false
	default:
		return true
	}
}

// Heap object kinds.

type String struct{ Value string }
type Bytes struct{ Value []byte }

// Html is the opaque tree produced by HTML-tag builtin calls; the renderer
// walks it to produce markup.
type Html struct {
	Tag      string
	Attrs    map[string]string
	Children []Value
}

type List struct{ Elems []Value }
type Map struct{ Entries map[string]Value }

type Struct struct {
	Name   string
	Fields map[string]Value
}

type Enum struct {
	Name    string
	Variant string
	Payload []Value
}

// EnumCtor is a partially-applied enum variant constructor, produced when a
// variant with payload types is referenced without being called.
type EnumCtor struct {
	Name    string
	Variant string
}

type ResultOk struct{ Inner Value }
type ResultErr struct{ Inner Value }

// Config names a realized configuration by its declaration name; field
// access resolves through the engine's config table rather than through
// Config.Fields, since realization happens once per process.
type Config struct{ Name string }

// Function is an unresolved reference to a user-declared function, bound to
// the module it was looked up in.
type Function struct {
	ModuleId int
	Name     string
}

// Builtin names one of the fixed built-in dispatch targets.
type Builtin struct{ Name string }

// Query/Task/Iterator are opaque engine objects threaded through db/spawn
// builtins; their content is engine-internal and never serialized.
type Query struct{ Rows []map[string]Value }
type Task struct {
	Done   bool
	Result Value
	Err    *Value
}
type Iterator struct {
	Values []Value
	Pos    int
}

// Boxed is the sole reference-counted mutable cell: every co-owner
// shares the same *Value, so a write through one alias is visible through
// all others.
type Boxed struct{ Cell *Value }

func (*String) objectKind() Kind    { return KString }
func (*Bytes) objectKind() Kind     { return KBytes }
func (*Html) objectKind() Kind      { return KHtml }
func (*List) objectKind() Kind      { return KList }
func (*Map) objectKind() Kind       { return KMap }
func (*Struct) objectKind() Kind    { return KStruct }
func (*Enum) objectKind() Kind      { return KEnum }
func (*EnumCtor) objectKind() Kind  { return KEnumCtor }
func (*ResultOk) objectKind() Kind  { return KResultOk }
func (*ResultErr) objectKind() Kind { return KResultErr }
func (*Config) objectKind() Kind    { return KConfig }
func (*Function) objectKind() Kind  { return KFunction }
func (*Builtin) objectKind() Kind   { return KBuiltin }
func (*Query) objectKind() Kind     { return KQuery }
func (*Task) objectKind() Kind      { return KTask }
func (*Iterator) objectKind() Kind  { return KIterator }
func (*Boxed) objectKind() Kind     { return KBoxed }

// Constructors for the common heap shapes.

func Str(s string) Value { return FromObject(&String{Value: s}) }
func Bin(b []byte) Value { return FromObject(&Bytes{Value: b}) }
func ListOf(elems []Value) Value {
	return FromObject(&List{Elems: elems})
}
func MapOf(entries map[string]Value) Value {
	return FromObject(&Map{Entries: entries})
}
func StructOf(name string, fields map[string]Value) Value {
	return FromObject(&Struct{Name: name, Fields: fields})
}
func EnumOf(name, variant string, payload []Value) Value {
	return FromObject(&Enum{Name: name, Variant: variant, Payload: payload})
}
func Ok(v Value) Value  { return FromObject(&ResultOk{Inner: v}) }
func Err(v Value) Value { return FromObject(&ResultErr{Inner: v}) }
func BoxOf(v Value) Value {
	cell := v
	return FromObject(&Boxed{Cell: &cell})
}

// ObjKind reports the heap-object kind, panicking if v is not an Obj;
// call sites must check IsObj first.
func (v Value) ObjKind() Kind {
	return v.Obj.objectKind()
}

// TypeName renders the runtime type name used in diagnostics and
// ValidationError messages.
func (v Value) TypeName() string {
	switch v.Type {
	case TUnit:
		return "Unit"
	case TNull:
		return "Null"
	case TInt:
		return "Int"
	case TFloat:
		return "Float"
	case TBool:
		return "Bool"
	case TObj:
		switch o := v.Obj.(type) {
		case *String:
			return "String"
		case *Bytes:
			return "Bytes"
		case *Html:
			return "Html"
		case *List:
			return "List"
		case *Map:
			return "Map"
		case *Struct:
			return o.Name
		case *Enum:
			return o.Name
		case *EnumCtor:
			return o.Name
		case *ResultOk, *ResultErr:
			return "Result"
		case *Config:
			return "Config"
		case *Function:
			return "Function"
		case *Builtin:
			return "Builtin"
		case *Query:
			return "Query"
		case *Task:
			return "Task"
		case *Iterator:
			return "Iterator"
		case *Boxed:
			return "Boxed"
		}
	}
	return "Unknown"
}

// Equals implements FUSE's structural equality, comparing Int and Float
// operands numerically across the two representations.
func (v Value) Equals(other Value) bool {
	if v.Type != other.Type {
		if v.Type == TInt && other.Type == TFloat {
			return float64(v.AsInt()) == other.AsFloat()
		}
		if v.Type == TFloat && other.Type == TInt {
			return v.AsFloat() == float64(other.AsInt())
		}
		return false
	}
	switch v.Type {
	case TUnit, TNull:
		return true
	case TInt:
		return v.AsInt() == other.AsInt()
	case TFloat:
		return v.AsFloat() == other.AsFloat()
	case TBool:
		return v.AsBool() == other.AsBool()
	case TObj:
		return objEquals(v.Obj, other.Obj)
	}
	return false
}

func objEquals(a, b Object) bool {
	if a.objectKind() != b.objectKind() {
		return false
	}
	switch av := a.(type) {
	case *String:
		return av.Value == b.(*String).Value
	case *Bytes:
		return string(av.Value) == string(b.(*Bytes).Value)
	case *List:
		bv := b.(*List)
		if len(av.Elems) != len(bv.Elems) {
			return false
		}
		for i := range av.Elems {
			if !av.Elems[i].Equals(bv.Elems[i]) {
				return false
			}
		}
		return true
	case *Map:
		bv := b.(*Map)
		if len(av.Entries) != len(bv.Entries) {
			return false
		}
		for k, val := range av.Entries {
			other, ok := bv.Entries[k]
			if !ok || !val.Equals(other) {
				return false
			}
		}
		return true
	case *Struct:
		bv := b.(*Struct)
		if av.Name != bv.Name || len(av.Fields) != len(bv.Fields) {
			return false
		}
		for k, val := range av.Fields {
			other, ok := bv.Fields[k]
			if !ok || !val.Equals(other) {
				return false
			}
		}
		return true
	case *Enum:
		bv := b.(*Enum)
		if av.Name != bv.Name || av.Variant != bv.Variant || len(av.Payload) != len(bv.Payload) {
			return false
		}
		for i := range av.Payload {
			if !av.Payload[i].Equals(bv.Payload[i]) {
				return false
			}
		}
		return true
	case *ResultOk:
		return av.Inner.Equals(b.(*ResultOk).Inner)
	case *ResultErr:
		return av.Inner.Equals(b.(*ResultErr).Inner)
	case *Boxed:
		return av.Cell.Equals(*b.(*Boxed).Cell)
	default:
		return a == b
	}
}

// FormatFloat renders a float the way the engine's canonical formatter
// does: integral floats print without a trailing ".0", matching both
// backends byte-for-byte.
func FormatFloat(f float64) string {
	if f == math.Trunc(f) && !math.IsInf(f, 0) {
		return fmt.Sprintf("%d", int64(f))
	}
	return fmt.Sprintf("%g", f)
}

// String renders a value the way `print`/string interpolation does.
func (v Value) String() string {
	switch v.Type {
	case TUnit:
		return "()"
	case TNull:
		return "null"
	case TInt:
		return fmt.Sprintf("%d", v.AsInt())
	case TFloat:
		return FormatFloat(v.AsFloat())
	case TBool:
		if v.AsBool() {
			return "true"
		}
		return "false"
	case TObj:
		return objString(v.Obj)
	}
	return ""
}

func objString(o Object) string {
	switch ov := o.(type) {
	case *String:
		return ov.Value
	case *Bytes:
		return string(ov.Value)
	case *List:
		s := "["
		for i, e := range ov.Elems {
			if i > 0 {
				s += ", "
			}
			s += e.String()
		}
		return s + "]"
	case *Map:
		s := "{"
		first := true
		for k, v := range ov.Entries {
			if !first {
				s += ", "
			}
			first = false
			s += k + ": " + v.String()
		}
		return s + "}"
	case *Struct:
		s := ov.Name + "("
		first := true
		for k, v := range ov.Fields {
			if !first {
				s += ", "
			}
			first = false
			s += k + ": " + v.String()
		}
		return s + ")"
	case *Enum:
		s := ov.Variant
		if len(ov.Payload) > 0 {
			s += "("
			for i, p := range ov.Payload {
				if i > 0 {
					s += ", "
				}
				s += p.String()
			}
			s += ")"
		}
		return s
	case *ResultOk:
		return "Ok(" + ov.Inner.String() + ")"
	case *ResultErr:
		return "Err(" + ov.Inner.String() + ")"
	case *Boxed:
		return ov.Cell.String()
	default:
		return fmt.Sprintf("<%s>", o.objectKind())
	}
}

func (k Kind) String() string {
	switch k {
	case KString:
		return "String"
	case KBytes:
		return "Bytes"
	case KHtml:
		return "Html"
	case KList:
		return "List"
	case KMap:
		return "Map"
	case KStruct:
		return "Struct"
	case KEnum:
		return "Enum"
	case KEnumCtor:
		return "EnumCtor"
	case KResultOk:
		return "ResultOk"
	case KResultErr:
		return "ResultErr"
	case KConfig:
		return "Config"
	case KFunction:
		return "Function"
	case KBuiltin:
		return "Builtin"
	case KQuery:
		return "Query"
	case KTask:
		return "Task"
	case KIterator:
		return "Iterator"
	case KBoxed:
		return "Boxed"
	}
	return "?"
}
