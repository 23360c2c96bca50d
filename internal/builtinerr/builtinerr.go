// Package builtinerr implements the fixed vocabulary of recognised error
// structs, their HTTP status mapping, and the wire-stable error JSON
// envelope shared by both execution engines and the HTTP collaborator.
package builtinerr

import (
	"encoding/json"

	"github.com/fuselang/fuse/internal/runtimetype"
	"github.com/fuselang/fuse/internal/value"
)

// New constructs a recognised domain-error struct with a "message" field,
// the shape produced by calls like `NotFound(message="x")`.
func New(name, message string) value.Value {
	return value.StructOf(name, map[string]value.Value{"message": value.Str(message)})
}

// StatusFor maps a domain-error value to its HTTP status.
func StatusFor(v value.Value) int {
	if !v.IsObj() || v.ObjKind() != value.KStruct {
		return 500
	}
	s := v.Obj.(*value.Struct)
	switch s.Name {
	case "ValidationError", "BadRequest":
		return 400
	case "Unauthorized":
		return 401
	case "Forbidden":
		return 403
	case "NotFound":
		return 404
	case "Conflict":
		return 409
	case "Error":
		if status, ok := s.Fields["status"]; ok && status.IsInt() {
			return int(status.AsInt())
		}
		return 500
	default:
		return 500
	}
}

// codeFor maps a recognised struct name to its wire `code`.
func codeFor(name string) string {
	switch name {
	case "ValidationError":
		return "validation_error"
	case "BadRequest":
		return "bad_request"
	case "Unauthorized":
		return "unauthorized"
	case "Forbidden":
		return "forbidden"
	case "NotFound":
		return "not_found"
	case "Conflict":
		return "conflict"
	default:
		return "error"
	}
}

type wireField struct {
	Path    string `json:"path"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type wireError struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Fields  []wireField `json:"fields,omitempty"`
}

type wireEnvelope struct {
	Error wireError `json:"error"`
}

// RenderJSON renders v as the wire error envelope. v is expected to be a
// recognised error Struct (ValidationError, BadRequest, ..., or a plain
// user struct/enum), the shape produced when ?! or a route's ResultErr
// arm surfaces a domain error.
func RenderJSON(v value.Value) []byte {
	env := wireEnvelope{}
	if v.IsObj() && v.ObjKind() == value.KStruct {
		s := v.Obj.(*value.Struct)
		env.Error.Code = codeFor(s.Name)
		if msg, ok := s.Fields["message"]; ok {
			env.Error.Message = msg.String()
		} else {
			env.Error.Message = s.Name
		}
		if s.Name == "ValidationError" {
			if fs, ok := s.Fields["fields"]; ok && fs.IsObj() && fs.ObjKind() == value.KList {
				for _, fv := range fs.Obj.(*value.List).Elems {
					if !fv.IsObj() || fv.ObjKind() != value.KStruct {
						continue
					}
					fsv := fv.Obj.(*value.Struct)
					env.Error.Fields = append(env.Error.Fields, wireField{
						Path:    fsv.Fields["path"].String(),
						Code:    fsv.Fields["code"].String(),
						Message: fsv.Fields["message"].String(),
					})
				}
			}
		}
	} else {
		env.Error.Code = "error"
		env.Error.Message = v.String()
	}
	b, err := json.Marshal(env)
	if err != nil {
		return []byte(`{"error":{"code":"error","message":"unrenderable error"}}`)
	}
	return b
}

// FromValidationError converts a runtimetype.ValidationError into the
// Struct shape RenderJSON expects.
func FromValidationError(err *runtimetype.ValidationError) value.Value {
	return err.ToValue()
}
