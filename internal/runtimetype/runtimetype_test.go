package runtimetype

import (
	"testing"

	"github.com/fuselang/fuse/internal/ast"
	"github.com/fuselang/fuse/internal/value"
)

func simple(name string) *ast.TypeRef {
	return &ast.TypeRef{Kind: ast.TRSimple, Name: name}
}

func optional(inner *ast.TypeRef) *ast.TypeRef {
	return &ast.TypeRef{Kind: ast.TROptional, Inner: inner}
}

func refined(base string, lo, hi int64) *ast.TypeRef {
	return &ast.TypeRef{Kind: ast.TRRefined, RefinedBase: base, RefinedArgs: []ast.Expr{
		&ast.Binary{Op: "..", Left: &ast.IntLit{Value: lo}, Right: &ast.IntLit{Value: hi}},
	}}
}

func generic(base string, args ...*ast.TypeRef) *ast.TypeRef {
	return &ast.TypeRef{Kind: ast.TRGeneric, Base: base, Args: args}
}

func TestParseEnvValue(t *testing.T) {
	tests := []struct {
		name string
		ty   *ast.TypeRef
		raw  string
		want value.Value
	}{
		{"int", simple("Int"), "42", value.Int(42)},
		{"float", simple("Float"), "2.5", value.Float(2.5)},
		{"bool", simple("Bool"), "true", value.Bool(true)},
		{"string", simple("String"), "hello", value.Str("hello")},
		{"optional empty", optional(simple("Int")), "", value.Null()},
		{"optional present", optional(simple("Int")), "7", value.Int(7)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseEnvValue(tt.ty, tt.raw)
			if err != nil {
				t.Fatalf("error: %v", err)
			}
			if !got.Equals(tt.want) {
				t.Errorf("got %s want %s", got, tt.want)
			}
		})
	}
}

func TestParseEnvValueInvalidInt(t *testing.T) {
	_, err := ParseEnvValue(simple("Int"), "abc")
	verr, ok := err.(*ValidationError)
	if !ok {
		t.Fatalf("want *ValidationError, got %T", err)
	}
	if len(verr.Fields) != 1 || verr.Fields[0].Code != "invalid_value" {
		t.Errorf("fields: %+v", verr.Fields)
	}
	if verr.Fields[0].Message != "invalid Int: abc" {
		t.Errorf("message: %q", verr.Fields[0].Message)
	}
}

func TestValidateValue(t *testing.T) {
	if err := ValidateValue(value.Int(3), simple("Int"), "x"); err != nil {
		t.Errorf("Int: %v", err)
	}
	if err := ValidateValue(value.Str("s"), simple("Int"), "x"); err == nil {
		t.Error("String against Int must fail")
	}
	if err := ValidateValue(value.Null(), optional(simple("Int")), "x"); err != nil {
		t.Errorf("Null against Option<Int>: %v", err)
	}
	if err := ValidateValue(value.Null(), simple("Int"), "x"); err == nil {
		t.Error("Null against Int must fail")
	}
}

// Refined bounds are closed on both ends: length for String, magnitude
// for Int.
func TestRefinedBounds(t *testing.T) {
	age := refined("Int", 0, 130)
	if err := ValidateValue(value.Int(0), age, "age"); err != nil {
		t.Errorf("lo bound: %v", err)
	}
	if err := ValidateValue(value.Int(130), age, "age"); err != nil {
		t.Errorf("hi bound: %v", err)
	}
	if err := ValidateValue(value.Int(131), age, "age"); err == nil {
		t.Error("131 must be out of range")
	}

	name := refined("String", 1, 3)
	if err := ValidateValue(value.Str("abc"), name, "name"); err != nil {
		t.Errorf("len 3: %v", err)
	}
	if err := ValidateValue(value.Str(""), name, "name"); err == nil {
		t.Error("empty must be out of range")
	}
	if err := ValidateValue(value.Str("abcd"), name, "name"); err == nil {
		t.Error("len 4 must be out of range")
	}
}

// decode(encode(v)) == v for round-trippable shapes.
func TestJSONRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		v    value.Value
		ty   *ast.TypeRef
	}{
		{"int", value.Int(42), simple("Int")},
		{"float", value.Float(1.5), simple("Float")},
		{"bool", value.Bool(true), simple("Bool")},
		{"string", value.Str("hi"), simple("String")},
		{"null option", value.Null(), optional(simple("Int"))},
		{"list", value.ListOf([]value.Value{value.Int(1), value.Int(2)}), generic("List", simple("Int"))},
		{"map", value.MapOf(map[string]value.Value{"a": value.Str("x")}), generic("Map", simple("String"), simple("String"))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := ValidateValue(tt.v, tt.ty, ""); err != nil {
				t.Fatalf("precondition validate: %v", err)
			}
			j := ValueToJSON(tt.v)
			back, err := DecodeJSONValue(j, tt.ty, "")
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			if !back.Equals(tt.v) {
				t.Errorf("round trip: got %s want %s", back, tt.v)
			}
		})
	}
}

func TestMarshalValue(t *testing.T) {
	tests := []struct {
		v    value.Value
		want string
	}{
		{value.Str("ok"), `"ok"`},
		{value.Int(3), `3`},
		{value.Bool(false), `false`},
		{value.Null(), `null`},
		{value.ListOf([]value.Value{value.Int(1)}), `[1]`},
	}
	for _, tt := range tests {
		got, err := MarshalValue(tt.v)
		if err != nil {
			t.Fatalf("%s: %v", tt.v, err)
		}
		if string(got) != tt.want {
			t.Errorf("got %s want %s", got, tt.want)
		}
	}
}

func TestValidationErrorToValue(t *testing.T) {
	verr := &ValidationError{Fields: []FieldError{{Path: "port", Code: "invalid_value", Message: "invalid Int: abc"}}}
	v := verr.ToValue()
	s := v.Obj.(*value.Struct)
	if s.Name != "ValidationError" {
		t.Errorf("name: %s", s.Name)
	}
	if s.Fields["message"].String() != "validation failed" {
		t.Errorf("message: %s", s.Fields["message"])
	}
}
