// Package ir defines the bytecode program the lowerer produces and the VM
// executes: a flat per-function instruction stream over a shared locals
// slice, with op-tagged instruction structs, inline constants, and
// forward/backward jump targets expressed as instruction indices.
package ir

import (
	"github.com/fuselang/fuse/internal/ast"
	"github.com/fuselang/fuse/internal/modules"
)

// Op discriminates one Instr's operation.
type Op int

const (
	OpPush Op = iota
	OpPop
	OpDup

	OpLoadLocal
	OpStoreLocal

	OpNeg
	OpNot
	OpAdd
	OpSub
	OpMul
	OpDiv
	OpMod
	OpEq
	OpNotEq
	OpLt
	OpLtEq
	OpGt
	OpGtEq
	OpAnd
	OpOr
	OpRange

	OpJump
	OpJumpIfFalse
	OpJumpIfNull
	OpReturn
	OpRuntimeError

	OpCall

	OpMakeList
	OpMakeMap
	OpMakeStruct
	OpMakeEnum
	OpMakeBox
	OpInterpString

	OpGetField
	OpGetOptField
	OpSetField
	OpGetIndex
	OpSetIndex
	OpLoadConfigField

	OpIterInit
	OpIterNext

	OpBang

	OpMatchLocal

	OpSpawn
	OpAwait
)

// CallKind discriminates Call's target namespace.
type CallKind int

const (
	CallFunction CallKind = iota
	CallBuiltin
)

// ConstKind discriminates a Push instruction's embedded literal.
type ConstKind int

const (
	ConstInt ConstKind = iota
	ConstFloat
	ConstString
	ConstBool
	ConstNull
	ConstUnit
)

// MatchBinding is one (name, slot) pair a successful MatchLocal writes to.
type MatchBinding struct {
	Name string
	Slot int
}

// Instr is one bytecode instruction. Only the fields relevant to Op are
// populated; the rest stay zero.
type Instr struct {
	Op Op

	// OpPush
	ConstKind ConstKind
	Int       int64
	Float     float64
	Str       string
	Bool      bool

	// OpLoadLocal / OpStoreLocal / OpMatchLocal's subject slot
	Slot int

	// OpJump / OpJumpIfFalse / OpJumpIfNull / OpIterNext's exhaustion target
	Jump int

	// OpCall
	Name     string
	Argc     int
	CallKind CallKind

	// OpMakeList / OpMakeMap
	Len int

	// OpMakeStruct
	StructName string
	Fields     []string

	// OpMakeEnum
	EnumName string
	Variant  string

	// OpInterpString
	Parts int

	// OpGetField / OpGetOptField / OpSetField
	Field string

	// OpLoadConfigField
	Config string

	// OpBang: whether a user-supplied error value precedes the subject
	HasError bool

	// OpMatchLocal
	Pattern  ast.Pattern
	Bindings []MatchBinding

	// OpSpawn
	SpawnFn string
}

// Function is one executable unit: a lowered fn/route/config-default/
// type-default/spawn-lifted body. ModuleId records the
// owning module so the VM can resolve struct/config/enum names declared
// there, the same way interp's Frame.ModuleId does for the AST engine.
// ParamTypes is populated only for plain `fn` declarations (including
// `main`): route/spawn/config-default/type-default functions receive
// already-typed values from their caller and are never re-validated,
// matching the interpreter's own call paths.
type Function struct {
	Name       string
	ModuleId   modules.ModuleId
	Params     []string
	ParamTypes []*ast.TypeRef
	Ret        *ast.TypeRef
	Locals     int
	Code       []Instr
}

// Program is the full lowered module: every function, keyed by name so
// Call{kind:Function} and spawn-lifted synthetic functions both resolve
// through one table.
type Program struct {
	Functions map[string]*Function
	EntryApp  map[string]string // app name -> function name
	Tests     map[string]string
	Migration map[string]string
}

func NewProgram() *Program {
	return &Program{
		Functions: make(map[string]*Function),
		EntryApp:  make(map[string]string),
		Tests:     make(map[string]string),
		Migration: make(map[string]string),
	}
}
