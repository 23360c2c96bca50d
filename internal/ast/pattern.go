package ast

// Pattern is satisfied by every match/for/let-destructure pattern.
type Pattern interface {
	Node
	patternNode()
}

type WildcardPattern struct{ Base }

type LiteralPattern struct {
	Base
	Value Expr // Int/Float/Bool/String/Null literal
}

// IdentPattern binds the matched value to Name. The interpreter recognizes
// the reserved spellings Some/None/Ok/Err regardless of lexical scope.
type IdentPattern struct {
	Base
	Name string
}

// EnumVariantPattern matches `Name(p1, p2)` against an Enum value (or the
// built-in Some/Ok/Err shapes).
type EnumVariantPattern struct {
	Base
	Name string
	Args []Pattern
}

// StructFieldPattern is one `name: pat` inside a StructPattern.
type StructFieldPattern struct {
	Name    string
	Pattern Pattern
}

type StructPattern struct {
	Base
	Name   string
	Fields []StructFieldPattern
}

func (*WildcardPattern) patternNode()     {}
func (*LiteralPattern) patternNode()      {}
func (*IdentPattern) patternNode()        {}
func (*EnumVariantPattern) patternNode()  {}
func (*StructPattern) patternNode()       {}
