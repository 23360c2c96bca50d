package value

import "testing"

func TestFormatFloat(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{2.0, "2"},
		{2.5, "2.5"},
		{0, "0"},
		{-3.0, "-3"},
	}
	for _, tt := range tests {
		if got := FormatFloat(tt.in); got != tt.want {
			t.Errorf("%v: got %q want %q", tt.in, got, tt.want)
		}
	}
}

func TestEqualsCrossNumeric(t *testing.T) {
	if !Int(2).Equals(Float(2.0)) {
		t.Error("Int 2 must equal Float 2.0")
	}
	if Int(2).Equals(Float(2.5)) {
		t.Error("Int 2 must not equal Float 2.5")
	}
}

func TestStructuralEquality(t *testing.T) {
	a := StructOf("User", map[string]Value{"name": Str("x")})
	b := StructOf("User", map[string]Value{"name": Str("x")})
	c := StructOf("User", map[string]Value{"name": Str("y")})
	if !a.Equals(b) {
		t.Error("identical structs must be equal")
	}
	if a.Equals(c) {
		t.Error("differing structs must not be equal")
	}
}

func TestBoxedSharing(t *testing.T) {
	box := BoxOf(Int(1))
	alias := box
	*alias.Obj.(*Boxed).Cell = Int(2)
	if box.Obj.(*Boxed).Cell.AsInt() != 2 {
		t.Error("write through alias not visible")
	}
}

func TestStringRendering(t *testing.T) {
	tests := []struct {
		v    Value
		want string
	}{
		{Int(3), "3"},
		{Float(2.0), "2"},
		{Bool(true), "true"},
		{Null(), "null"},
		{Str("hi"), "hi"},
		{ListOf([]Value{Int(1), Int(2)}), "[1, 2]"},
		{Ok(Int(1)), "Ok(1)"},
		{Err(Str("e")), "Err(e)"},
		{EnumOf("Shape", "Circle", []Value{Float(2.0)}), "Circle(2)"},
	}
	for _, tt := range tests {
		if got := tt.v.String(); got != tt.want {
			t.Errorf("got %q want %q", got, tt.want)
		}
	}
}

func TestTruthy(t *testing.T) {
	if Null().Truthy() {
		t.Error("null is falsy")
	}
	if !Int(0).Truthy() {
		t.Error("non-bool non-null values are truthy")
	}
	if Bool(false).Truthy() {
		t.Error("false is falsy")
	}
}
