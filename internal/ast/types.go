package ast

import "github.com/fuselang/fuse/internal/token"

// TypeRefKind discriminates the shape of a TypeRef.
type TypeRefKind int

const (
	TRSimple TypeRefKind = iota
	TRGeneric
	TROptional
	TRResult
	TRRefined
)

// TypeRef is a type annotation as written in source.
type TypeRef struct {
	SpanV token.Span
	Kind  TypeRefKind

	// TRSimple
	Name string

	// TRGeneric: base<args...>
	Base string
	Args []*TypeRef

	// TROptional: inner?
	Inner *TypeRef

	// TRResult: Ok!Err or Ok! (Err defaults to the well-known Error type)
	Ok  *TypeRef
	Err *TypeRef // nil means unspecified error type

	// TRRefined: base(expr, expr, ...)
	RefinedBase string
	RefinedArgs []Expr
}

func (t *TypeRef) Span() token.Span { return t.SpanV }

// IsOptional reports whether t is sugar for Option<T>.
func (t *TypeRef) IsOptional() bool {
	if t == nil {
		return false
	}
	if t.Kind == TROptional {
		return true
	}
	return t.Kind == TRGeneric && t.Base == "Option"
}

// String renders a TypeRef back to FUSE source syntax, used by diagnostics
// and the formatter.
func (t *TypeRef) String() string {
	if t == nil {
		return "?"
	}
	switch t.Kind {
	case TRSimple:
		return t.Name
	case TRGeneric:
		s := t.Base + "<"
		for i, a := range t.Args {
			if i > 0 {
				s += ", "
			}
			s += a.String()
		}
		return s + ">"
	case TROptional:
		return t.Inner.String() + "?"
	case TRResult:
		if t.Err != nil {
			return t.Ok.String() + "!" + t.Err.String()
		}
		return t.Ok.String() + "!"
	case TRRefined:
		return t.RefinedBase + "(...)"
	}
	return "?"
}
