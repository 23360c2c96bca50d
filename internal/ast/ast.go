// Package ast defines the syntax tree produced by the parser. Every node
// carries a Span so downstream diagnostics can point back at source.
package ast

import "github.com/fuselang/fuse/internal/token"

// Node is satisfied by every AST node.
type Node interface {
	Span() token.Span
}

// Program is the parse result of a single source file.
type Program struct {
	SpanV    token.Span
	Items    []Item
	Requires []*RequireDecl
}

func (p *Program) Span() token.Span { return p.SpanV }

// Item is a top-level declaration.
type Item interface {
	Node
	itemNode()
}

// RequireDecl is a module-level `requires cap1, cap2` capability declaration.
type RequireDecl struct {
	SpanV        token.Span
	Capabilities []string
}

func (r *RequireDecl) Span() token.Span { return r.SpanV }

// ImportItem is one item in `import { a, b as c } from "path"`.
type ImportItem struct {
	Name  string
	Alias string // "" if unaliased
}

// Import is an import item. Exactly one of ModuleAlias/Names is
// meaningful depending on the import form parsed (see parser.parseImport).
type Import struct {
	SpanV token.Span
	Path  string
	// Module-style import: `import foo` or `import foo as bar`.
	ModuleAlias string // "" unless this is a module-style import
	// Named-item import: `import { a, b as c } from "path"`.
	Names []ImportItem
}

func (i *Import) Span() token.Span { return i.SpanV }
func (*Import) itemNode()          {}

// TypeDerive expresses "copy of Base without these fields".
type TypeDerive struct {
	Base    string
	Without []string
}

// FieldDecl is one field of a TypeDecl or a ConfigDecl.
type FieldDecl struct {
	SpanV   token.Span
	Name    string
	Type    *TypeRef
	Default Expr // nil if no default
}

func (f *FieldDecl) Span() token.Span { return f.SpanV }

// TypeDecl is a `type Name: ...` or `type Name = Base without f1, f2` item.
type TypeDecl struct {
	SpanV  token.Span
	Name   string
	Fields []*FieldDecl
	Derive *TypeDerive
	Doc    string
}

func (t *TypeDecl) Span() token.Span { return t.SpanV }
func (*TypeDecl) itemNode()          {}

// EnumVariant is one variant of an EnumDecl.
type EnumVariant struct {
	Name    string
	Payload []*TypeRef
}

// EnumDecl is an `enum Name: case Variant(Type, ...)` item.
type EnumDecl struct {
	SpanV    token.Span
	Name     string
	Variants []EnumVariant
	Doc      string
}

func (e *EnumDecl) Span() token.Span { return e.SpanV }
func (*EnumDecl) itemNode()          {}

// Param is one function parameter.
type Param struct {
	Name string
	Type *TypeRef
}

// FnDecl is a `fn name(params) -> ret: body` item.
type FnDecl struct {
	SpanV  token.Span
	Name   string
	Params []Param
	Ret    *TypeRef // nil if unannotated
	Body   *Block
	Doc    string
}

func (f *FnDecl) Span() token.Span { return f.SpanV }
func (*FnDecl) itemNode()          {}

// RouteDecl is one HTTP route inside a ServiceDecl.
type RouteDecl struct {
	SpanV    token.Span
	Verb     string // GET, POST, PUT, DELETE, PATCH
	Path     string // raw path template, e.g. "/u/{id:Id}"
	BodyType *TypeRef
	RetType  *TypeRef
	Body     *Block
}

func (r *RouteDecl) Span() token.Span { return r.SpanV }

// ServiceDecl groups routes under a base path.
type ServiceDecl struct {
	SpanV    token.Span
	Name     string
	BasePath string
	Routes   []*RouteDecl
}

func (s *ServiceDecl) Span() token.Span { return s.SpanV }
func (*ServiceDecl) itemNode()          {}

// ConfigField is one config field; every field carries a required
// literal default expression.
type ConfigField struct {
	Name  string
	Type  *TypeRef
	Value Expr
}

// ConfigDecl is a `config Name: field: Type = value` item.
type ConfigDecl struct {
	SpanV  token.Span
	Name   string
	Fields []ConfigField
}

func (c *ConfigDecl) Span() token.Span { return c.SpanV }
func (*ConfigDecl) itemNode()          {}

// BlockItem is the shared shape of App/Migration/Test: a name and a body.
type BlockItem struct {
	SpanV token.Span
	Name  string
	Body  *Block
}

func (b *BlockItem) Span() token.Span { return b.SpanV }

type AppDecl struct{ BlockItem }
type MigrationDecl struct{ BlockItem }
type TestDecl struct{ BlockItem }

func (*AppDecl) itemNode()       {}
func (*MigrationDecl) itemNode() {}
func (*TestDecl) itemNode()      {}

// Block is a sequence of statements, e.g. a function or route body.
type Block struct {
	SpanV token.Span
	Stmts []Stmt
}

func (b *Block) Span() token.Span { return b.SpanV }
