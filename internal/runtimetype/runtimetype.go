// Package runtimetype implements the built-in type-runtime: env-value
// parsing, structural validation, and the JSON codec shared by the
// interpreter, the VM, and the CLI argument binder.
package runtimetype

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/fuselang/fuse/internal/ast"
	"github.com/fuselang/fuse/internal/value"
)

// FieldError is one entry of a ValidationError's `fields` array.
type FieldError struct {
	Path    string
	Code    string
	Message string
}

// ValidationError is the canonical structured error, raised as
// a domain error whenever env parsing, struct construction, or JSON
// decoding produces a shape that doesn't match its declared type.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string { return "validation failed" }

func newVErr(path, code, message string) *ValidationError {
	return &ValidationError{Fields: []FieldError{{Path: path, Code: code, Message: message}}}
}

// ToValue renders a ValidationError as the Struct value the engines carry
// through ResultErr/Error, matching the rendered wire shape.
func (e *ValidationError) ToValue() value.Value {
	fields := make([]value.Value, 0, len(e.Fields))
	for _, f := range e.Fields {
		fields = append(fields, value.StructOf("ValidationFieldError", map[string]value.Value{
			"path":    value.Str(f.Path),
			"code":    value.Str(f.Code),
			"message": value.Str(f.Message),
		}))
	}
	return value.StructOf("ValidationError", map[string]value.Value{
		"message": value.Str("validation failed"),
		"fields":  value.ListOf(fields),
	})
}

// ParseEnvValue parses a raw environment-variable string into a Value per
// ty, honouring Option and Refined. Non-scalar types (List, Map,
// Struct, Enum) accept a JSON-encoded raw string.
func ParseEnvValue(ty *ast.TypeRef, raw string) (value.Value, error) {
	if ty != nil && ty.IsOptional() {
		if raw == "" {
			return value.Null(), nil
		}
		inner := ty.Inner
		if ty.Kind == ast.TRGeneric {
			inner = ty.Args[0]
		}
		return ParseEnvValue(inner, raw)
	}
	if ty != nil && ty.Kind == ast.TRRefined {
		v, err := ParseEnvValue(&ast.TypeRef{Kind: ast.TRSimple, Name: ty.RefinedBase}, raw)
		if err != nil {
			return value.Unit(), err
		}
		if err := validateRefinement(v, ty, ""); err != nil {
			return value.Unit(), err
		}
		return v, nil
	}
	name := simpleName(ty)
	switch name {
	case "Int":
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return value.Unit(), newVErr("", "invalid_value", fmt.Sprintf("invalid Int: %s", raw))
		}
		return value.Int(n), nil
	case "Float":
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return value.Unit(), newVErr("", "invalid_value", fmt.Sprintf("invalid Float: %s", raw))
		}
		return value.Float(f), nil
	case "Bool":
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return value.Unit(), newVErr("", "invalid_value", fmt.Sprintf("invalid Bool: %s", raw))
		}
		return value.Bool(b), nil
	case "String", "Id", "Email", "":
		return value.Str(raw), nil
	case "Bytes":
		return value.Bin([]byte(raw)), nil
	default:
		var raw2 any
		if err := json.Unmarshal([]byte(raw), &raw2); err != nil {
			return value.Unit(), newVErr("", "invalid_value", fmt.Sprintf("invalid %s: %s", name, raw))
		}
		return DecodeJSONValue(raw2, ty, "")
	}
}

func simpleName(ty *ast.TypeRef) string {
	if ty == nil {
		return ""
	}
	if ty.Kind == ast.TRSimple {
		return ty.Name
	}
	return ty.Base
}

// ValidateValue is the structural check: it returns nil when v
// matches ty, else a *ValidationError naming the mismatch.
func ValidateValue(v value.Value, ty *ast.TypeRef, path string) error {
	if ty == nil {
		return nil
	}
	if ty.IsOptional() {
		if v.IsNull() {
			return nil
		}
		inner := ty.Inner
		if ty.Kind == ast.TRGeneric {
			inner = ty.Args[0]
		}
		return ValidateValue(v, inner, path)
	}
	switch ty.Kind {
	case ast.TRResult:
		if v.IsObj() {
			switch v.ObjKind() {
			case value.KResultOk:
				return ValidateValue(v.Obj.(*value.ResultOk).Inner, ty.Ok, path)
			case value.KResultErr:
				return nil
			}
		}
		return newVErr(path, "type_mismatch", fmt.Sprintf("expected Result, got %s", v.TypeName()))
	case ast.TRRefined:
		if err := validatePrimitive(v, ty.RefinedBase, path); err != nil {
			return err
		}
		return validateRefinement(v, ty, path)
	case ast.TRGeneric:
		switch ty.Base {
		case "List":
			if !v.IsObj() || v.ObjKind() != value.KList {
				return newVErr(path, "type_mismatch", fmt.Sprintf("expected List, got %s", v.TypeName()))
			}
			if len(ty.Args) == 1 {
				for i, e := range v.Obj.(*value.List).Elems {
					if err := ValidateValue(e, ty.Args[0], fmt.Sprintf("%s[%d]", path, i)); err != nil {
						return err
					}
				}
			}
			return nil
		case "Map":
			if !v.IsObj() || v.ObjKind() != value.KMap {
				return newVErr(path, "type_mismatch", fmt.Sprintf("expected Map, got %s", v.TypeName()))
			}
			if len(ty.Args) == 2 {
				for k, e := range v.Obj.(*value.Map).Entries {
					if err := ValidateValue(e, ty.Args[1], fmt.Sprintf("%s.%s", path, k)); err != nil {
						return err
					}
				}
			}
			return nil
		default:
			return nil
		}
	case ast.TRSimple:
		return validatePrimitive(v, ty.Name, path)
	}
	return nil
}

func validatePrimitive(v value.Value, name string, path string) error {
	switch name {
	case "Int":
		if !v.IsInt() {
			return newVErr(path, "type_mismatch", fmt.Sprintf("expected Int, got %s", v.TypeName()))
		}
	case "Float":
		if !v.IsFloat() && !v.IsInt() {
			return newVErr(path, "type_mismatch", fmt.Sprintf("expected Float, got %s", v.TypeName()))
		}
	case "Bool":
		if !v.IsBool() {
			return newVErr(path, "type_mismatch", fmt.Sprintf("expected Bool, got %s", v.TypeName()))
		}
	case "String", "Id", "Email":
		if !v.IsObj() || v.ObjKind() != value.KString {
			return newVErr(path, "type_mismatch", fmt.Sprintf("expected String, got %s", v.TypeName()))
		}
	case "Bytes":
		if !v.IsObj() || v.ObjKind() != value.KBytes {
			return newVErr(path, "type_mismatch", fmt.Sprintf("expected Bytes, got %s", v.TypeName()))
		}
	case "Html":
		if !v.IsObj() || v.ObjKind() != value.KHtml {
			return newVErr(path, "type_mismatch", fmt.Sprintf("expected Html, got %s", v.TypeName()))
		}
	case "Unit":
		if !v.IsUnit() {
			return newVErr(path, "type_mismatch", fmt.Sprintf("expected Unit, got %s", v.TypeName()))
		}
	default:
		if v.IsObj() && v.ObjKind() == value.KStruct && v.Obj.(*value.Struct).Name == name {
			return nil
		}
		if v.IsObj() && v.ObjKind() == value.KEnum && v.Obj.(*value.Enum).Name == name {
			return nil
		}
	}
	return nil
}

// validateRefinement checks a refined numeric/length range `lo..hi`
// (inclusive) parsed from the refinement's literal arguments.
func validateRefinement(v value.Value, ty *ast.TypeRef, path string) error {
	lo, hi, ok := refinedBounds(ty.RefinedArgs)
	if !ok {
		return nil
	}
	var metric float64
	switch {
	case v.IsInt():
		metric = float64(v.AsInt())
	case v.IsFloat():
		metric = v.AsFloat()
	case v.IsObj() && v.ObjKind() == value.KString:
		metric = float64(len(v.Obj.(*value.String).Value))
	case v.IsObj() && v.ObjKind() == value.KBytes:
		metric = float64(len(v.Obj.(*value.Bytes).Value))
	default:
		return nil
	}
	if metric < lo || metric > hi {
		return newVErr(path, "invalid_value", fmt.Sprintf("%v out of range [%v, %v]", metric, lo, hi))
	}
	return nil
}

func refinedBounds(args []ast.Expr) (lo, hi float64, ok bool) {
	toF := func(e ast.Expr) (float64, bool) {
		switch lit := e.(type) {
		case *ast.IntLit:
			return float64(lit.Value), true
		case *ast.FloatLit:
			return lit.Value, true
		}
		return 0, false
	}
	// The surface syntax is a single `lo..hi` range expression; two bare
	// literal arguments are accepted as the desugared spelling.
	if len(args) == 1 {
		bin, isBin := args[0].(*ast.Binary)
		if !isBin || bin.Op != ".." {
			return 0, 0, false
		}
		var ok1, ok2 bool
		lo, ok1 = toF(bin.Left)
		hi, ok2 = toF(bin.Right)
		return lo, hi, ok1 && ok2
	}
	if len(args) < 2 {
		return 0, 0, false
	}
	var ok1, ok2 bool
	lo, ok1 = toF(args[0])
	hi, ok2 = toF(args[1])
	return lo, hi, ok1 && ok2
}

// DecodeJSONValue decodes a parsed-JSON `any` (from encoding/json) into a
// Value per ty, with enums tagged {type, data?} and results tagged
// {type:"Ok"|"Err", data}.
func DecodeJSONValue(j any, ty *ast.TypeRef, path string) (value.Value, error) {
	if ty != nil && ty.IsOptional() {
		if j == nil {
			return value.Null(), nil
		}
		inner := ty.Inner
		if ty.Kind == ast.TRGeneric {
			inner = ty.Args[0]
		}
		return DecodeJSONValue(j, inner, path)
	}
	if j == nil {
		return value.Null(), nil
	}
	if ty == nil {
		return JSONToValue(j), nil
	}
	switch ty.Kind {
	case ast.TRResult:
		m, ok := j.(map[string]any)
		if !ok {
			return value.Unit(), newVErr(path, "type_mismatch", "expected Result object")
		}
		tag, _ := m["type"].(string)
		if tag == "Err" {
			ev, err := DecodeJSONValue(m["data"], ty.Err, path+".data")
			if err != nil {
				return value.Unit(), err
			}
			return value.Err(ev), nil
		}
		ov, err := DecodeJSONValue(m["data"], ty.Ok, path+".data")
		if err != nil {
			return value.Unit(), err
		}
		return value.Ok(ov), nil
	case ast.TRRefined:
		v, err := DecodeJSONValue(j, &ast.TypeRef{Kind: ast.TRSimple, Name: ty.RefinedBase}, path)
		if err != nil {
			return value.Unit(), err
		}
		if err := validateRefinement(v, ty, path); err != nil {
			return value.Unit(), err
		}
		return v, nil
	case ast.TRGeneric:
		switch ty.Base {
		case "List":
			arr, ok := j.([]any)
			if !ok {
				return value.Unit(), newVErr(path, "type_mismatch", "expected array")
			}
			var elemTy *ast.TypeRef
			if len(ty.Args) == 1 {
				elemTy = ty.Args[0]
			}
			out := make([]value.Value, len(arr))
			for i, e := range arr {
				ev, err := DecodeJSONValue(e, elemTy, fmt.Sprintf("%s[%d]", path, i))
				if err != nil {
					return value.Unit(), err
				}
				out[i] = ev
			}
			return value.ListOf(out), nil
		case "Map":
			m, ok := j.(map[string]any)
			if !ok {
				return value.Unit(), newVErr(path, "type_mismatch", "expected object")
			}
			var valTy *ast.TypeRef
			if len(ty.Args) == 2 {
				valTy = ty.Args[1]
			}
			out := make(map[string]value.Value, len(m))
			for k, e := range m {
				ev, err := DecodeJSONValue(e, valTy, path+"."+k)
				if err != nil {
					return value.Unit(), err
				}
				out[k] = ev
			}
			return value.MapOf(out), nil
		default:
			return JSONToValue(j), nil
		}
	case ast.TRSimple:
		return decodeScalar(j, ty.Name, path)
	}
	return JSONToValue(j), nil
}

func decodeScalar(j any, name string, path string) (value.Value, error) {
	switch name {
	case "Int":
		switch n := j.(type) {
		case int64:
			return value.Int(n), nil
		case float64:
			return value.Int(int64(n)), nil
		case json.Number:
			i, _ := n.Int64()
			return value.Int(i), nil
		}
		return value.Unit(), newVErr(path, "type_mismatch", "expected Int")
	case "Float":
		switch n := j.(type) {
		case float64:
			return value.Float(n), nil
		case json.Number:
			f, _ := n.Float64()
			return value.Float(f), nil
		}
		return value.Unit(), newVErr(path, "type_mismatch", "expected Float")
	case "Bool":
		b, ok := j.(bool)
		if !ok {
			return value.Unit(), newVErr(path, "type_mismatch", "expected Bool")
		}
		return value.Bool(b), nil
	case "String", "Id", "Email":
		s, ok := j.(string)
		if !ok {
			return value.Unit(), newVErr(path, "type_mismatch", "expected String")
		}
		return value.Str(s), nil
	case "Bytes":
		s, ok := j.(string)
		if !ok {
			return value.Unit(), newVErr(path, "type_mismatch", "expected Bytes")
		}
		return value.Bin([]byte(s)), nil
	case "Unit", "Null":
		return value.Unit(), nil
	default:
		m, ok := j.(map[string]any)
		if !ok {
			return JSONToValue(j), nil
		}
		if tag, ok := m["type"].(string); ok {
			if data, hasData := m["data"]; hasData {
				fields := decodeEnumData(data)
				return value.EnumOf(name, tag, fields), nil
			}
			return value.EnumOf(name, tag, nil), nil
		}
		fields := make(map[string]value.Value, len(m))
		for k, v := range m {
			fields[k] = JSONToValue(v)
		}
		return value.StructOf(name, fields), nil
	}
}

func decodeEnumData(data any) []value.Value {
	if arr, ok := data.([]any); ok {
		out := make([]value.Value, len(arr))
		for i, e := range arr {
			out[i] = JSONToValue(e)
		}
		return out
	}
	return []value.Value{JSONToValue(data)}
}

// ValueToJSON renders v through the bijective codec: enums as {type, data?},
// Ok/Err results as {type:"Ok"|"Err", data}.
func ValueToJSON(v value.Value) any {
	switch v.Type {
	case value.TUnit:
		return nil
	case value.TNull:
		return nil
	case value.TInt:
		return v.AsInt()
	case value.TFloat:
		return v.AsFloat()
	case value.TBool:
		return v.AsBool()
	case value.TObj:
		return objToJSON(v.Obj)
	}
	return nil
}

func objToJSON(o value.Object) any {
	switch ov := o.(type) {
	case *value.String:
		return ov.Value
	case *value.Bytes:
		return string(ov.Value)
	case *value.List:
		out := make([]any, len(ov.Elems))
		for i, e := range ov.Elems {
			out[i] = ValueToJSON(e)
		}
		return out
	case *value.Map:
		out := make(map[string]any, len(ov.Entries))
		for k, e := range ov.Entries {
			out[k] = ValueToJSON(e)
		}
		return out
	case *value.Struct:
		out := make(map[string]any, len(ov.Fields))
		for k, e := range ov.Fields {
			out[k] = ValueToJSON(e)
		}
		return out
	case *value.Enum:
		m := map[string]any{"type": ov.Variant}
		if len(ov.Payload) > 0 {
			if len(ov.Payload) == 1 {
				m["data"] = ValueToJSON(ov.Payload[0])
			} else {
				arr := make([]any, len(ov.Payload))
				for i, p := range ov.Payload {
					arr[i] = ValueToJSON(p)
				}
				m["data"] = arr
			}
		}
		return m
	case *value.ResultOk:
		return map[string]any{"type": "Ok", "data": ValueToJSON(ov.Inner)}
	case *value.ResultErr:
		return map[string]any{"type": "Err", "data": ValueToJSON(ov.Inner)}
	case *value.Boxed:
		return ValueToJSON(*ov.Cell)
	default:
		return nil
	}
}

// JSONToValue converts a parsed-JSON `any` into an untyped Value, used
// where no declared type is available to drive DecodeJSONValue.
func JSONToValue(j any) value.Value {
	switch jv := j.(type) {
	case nil:
		return value.Null()
	case bool:
		return value.Bool(jv)
	case int64:
		return value.Int(jv)
	case float64:
		if jv == float64(int64(jv)) {
			return value.Int(int64(jv))
		}
		return value.Float(jv)
	case json.Number:
		if i, err := jv.Int64(); err == nil {
			return value.Int(i)
		}
		f, _ := jv.Float64()
		return value.Float(f)
	case string:
		return value.Str(jv)
	case []any:
		out := make([]value.Value, len(jv))
		for i, e := range jv {
			out[i] = JSONToValue(e)
		}
		return value.ListOf(out)
	case map[string]any:
		out := make(map[string]value.Value, len(jv))
		for k, e := range jv {
			out[k] = JSONToValue(e)
		}
		return value.MapOf(out)
	default:
		return value.Null()
	}
}

// MarshalValue renders v as a compact JSON document, used by the HTTP
// collaborator for response bodies and by the CLI for stderr error
// rendering.
func MarshalValue(v value.Value) ([]byte, error) {
	return json.Marshal(ValueToJSON(v))
}
