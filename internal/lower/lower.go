// Package lower implements the AST-to-bytecode compiler: a single
// instruction-emitting walk that resolves names to local slots as it
// goes and back-patches jump operands once a block's end is known,
// targeting a single-function-table call model (the IR has no
// closures; `spawn` is the only construct that captures outer locals, and
// it does so by lifting to a synthetic top-level function instead).
package lower

import (
	"fmt"
	"sort"

	"github.com/fuselang/fuse/internal/ast"
	"github.com/fuselang/fuse/internal/ir"
	"github.com/fuselang/fuse/internal/modules"
	"github.com/fuselang/fuse/internal/symbols"
)

// Lowerer compiles every module in a registry into one flat ir.Program.
type Lowerer struct {
	reg      *modules.Registry
	syms     map[modules.ModuleId]*symbols.ModuleSymbols
	prog     *ir.Program
	spawnSeq int
	tempSeq  int
}

func New(reg *modules.Registry, syms map[modules.ModuleId]*symbols.ModuleSymbols) *Lowerer {
	return &Lowerer{reg: reg, syms: syms, prog: ir.NewProgram()}
}

// fctx is one function's compile-time state: the lexical scope stack
// (name -> local slot) and the growing instruction stream. Names are
// slot-addressed rather than stack-depth-addressed since locals live in
// a flat per-call slice (the VM frame's locals), not the operand stack
// itself.
type fctx struct {
	l      *Lowerer
	modId  modules.ModuleId
	code   []ir.Instr
	scopes []map[string]int
	next   int

	loopContinue []int
	loopBreaks   [][]int
}

func (l *Lowerer) newFctx(modId modules.ModuleId) *fctx {
	return &fctx{l: l, modId: modId, scopes: []map[string]int{make(map[string]int)}}
}

func (c *fctx) pushScope() { c.scopes = append(c.scopes, make(map[string]int)) }
func (c *fctx) popScope()  { c.scopes = c.scopes[:len(c.scopes)-1] }

func (c *fctx) declare(name string) int {
	slot := c.next
	c.next++
	c.scopes[len(c.scopes)-1][name] = slot
	return slot
}

func (c *fctx) declareTemp() int {
	c.l.tempSeq++
	return c.declare(fmt.Sprintf("$t%d", c.l.tempSeq))
}

func (c *fctx) lookup(name string) (int, bool) {
	for i := len(c.scopes) - 1; i >= 0; i-- {
		if slot, ok := c.scopes[i][name]; ok {
			return slot, true
		}
	}
	return 0, false
}

func (c *fctx) emit(instr ir.Instr) int {
	c.code = append(c.code, instr)
	return len(c.code) - 1
}

func (c *fctx) patch(idx int) { c.code[idx].Jump = len(c.code) }

func (c *fctx) pushLoop(continueTarget int) {
	c.loopContinue = append(c.loopContinue, continueTarget)
	c.loopBreaks = append(c.loopBreaks, nil)
}

func (c *fctx) popLoop() []int {
	n := len(c.loopBreaks) - 1
	breaks := c.loopBreaks[n]
	c.loopBreaks = c.loopBreaks[:n]
	c.loopContinue = c.loopContinue[:n]
	return breaks
}

func (l *Lowerer) finish(c *fctx, name string, params []string, ret *ast.TypeRef) {
	l.finishTyped(c, name, params, nil, ret)
}

func (l *Lowerer) finishTyped(c *fctx, name string, params []string, paramTypes []*ast.TypeRef, ret *ast.TypeRef) {
	l.prog.Functions[name] = &ir.Function{
		Name: name, ModuleId: c.modId, Params: params, ParamTypes: paramTypes, Ret: ret,
		Locals: c.next, Code: c.code,
	}
}

// Name-mangling helpers keep every lowered unit in one flat function table
// while staying collision-free across modules. Exported so internal/vm can
// derive the same qualified names (config/type default lookups)
// without duplicating the format strings.
func QualFn(modId modules.ModuleId, name string) string { return fmt.Sprintf("%d::%s", modId, name) }
func ConfigDefaultName(modId modules.ModuleId, cfg, field string) string {
	return fmt.Sprintf("__config::%d::%s::%s", modId, cfg, field)
}
func TypeDefaultName(modId modules.ModuleId, typ, field string) string {
	return fmt.Sprintf("__type::%d::%s::%s", modId, typ, field)
}
func RouteFuncName(modId modules.ModuleId, svc string, idx int) string {
	return fmt.Sprintf("__service::%s::%d", svc, idx)
}

func qualFn(modId modules.ModuleId, name string) string             { return QualFn(modId, name) }
func configDefaultName(modId modules.ModuleId, cfg, field string) string {
	return ConfigDefaultName(modId, cfg, field)
}
func typeDefaultName(modId modules.ModuleId, typ, field string) string {
	return TypeDefaultName(modId, typ, field)
}
func routeFuncName(modId modules.ModuleId, svc string, idx int) string {
	return RouteFuncName(modId, svc, idx)
}

// Lower compiles every module's functions, config/type field defaults,
// service routes, apps, migrations, and tests into one ir.Program.
func (l *Lowerer) Lower() *ir.Program {
	for _, unit := range l.reg.Ordered() {
		syms := l.syms[unit.Id]

		for name, fn := range syms.Functions {
			l.lowerFn(unit.Id, name, fn)
		}
		for cfgName, cfg := range syms.Configs {
			for _, f := range cfg.Fields {
				c := l.newFctx(unit.Id)
				l.lowerExpr(c, f.Value)
				c.emit(ir.Instr{Op: ir.OpReturn})
				l.finish(c, configDefaultName(unit.Id, cfgName, f.Name), nil, f.Type)
			}
		}
		for typeName, td := range syms.Types {
			fields := td.Fields
			if derived, ok := syms.DerivedFields[typeName]; ok {
				fields = derived
			}
			for _, f := range fields {
				if f.Default == nil {
					continue
				}
				c := l.newFctx(unit.Id)
				l.lowerExpr(c, f.Default)
				c.emit(ir.Instr{Op: ir.OpReturn})
				l.finish(c, typeDefaultName(unit.Id, typeName, f.Name), nil, f.Type)
			}
		}
		for _, svc := range syms.Services {
			for idx, route := range svc.Routes {
				l.lowerRoute(unit.Id, svc, idx, route)
			}
		}
		for name, app := range syms.Apps {
			qname := qualFn(unit.Id, "__app::"+name)
			c := l.newFctx(unit.Id)
			l.lowerStmts(c, app.Body.Stmts)
			c.emit(ir.Instr{Op: ir.OpPush, ConstKind: ir.ConstUnit})
			c.emit(ir.Instr{Op: ir.OpReturn})
			l.finish(c, qname, nil, nil)
			l.prog.EntryApp[name] = qname
		}
		for name, mig := range syms.Migrations {
			qname := qualFn(unit.Id, "__migration::"+name)
			c := l.newFctx(unit.Id)
			l.lowerStmts(c, mig.Body.Stmts)
			c.emit(ir.Instr{Op: ir.OpPush, ConstKind: ir.ConstUnit})
			c.emit(ir.Instr{Op: ir.OpReturn})
			l.finish(c, qname, nil, nil)
			l.prog.Migration[name] = qname
		}
		for name, test := range syms.Tests {
			qname := qualFn(unit.Id, "__test::"+name)
			c := l.newFctx(unit.Id)
			l.lowerStmts(c, test.Body.Stmts)
			c.emit(ir.Instr{Op: ir.OpPush, ConstKind: ir.ConstUnit})
			c.emit(ir.Instr{Op: ir.OpReturn})
			l.finish(c, qname, nil, nil)
			l.prog.Tests[name] = qname
		}
	}
	return l.prog
}

func (l *Lowerer) lowerFn(modId modules.ModuleId, name string, fn *ast.FnDecl) {
	c := l.newFctx(modId)
	params := make([]string, len(fn.Params))
	paramTypes := make([]*ast.TypeRef, len(fn.Params))
	for i, p := range fn.Params {
		params[i] = p.Name
		paramTypes[i] = p.Type
		c.declare(p.Name)
	}
	l.lowerStmts(c, fn.Body.Stmts)
	c.emit(ir.Instr{Op: ir.OpPush, ConstKind: ir.ConstUnit})
	c.emit(ir.Instr{Op: ir.OpReturn})
	l.finishTyped(c, qualFn(modId, name), params, paramTypes, fn.Ret)
}

// lowerRoute lowers one route: "service routes lower to zero-or-more-
// parameter functions named __service::Svc::idx; path parameter names
// become leading positional parameters; a JSON body is the last parameter."
func (l *Lowerer) lowerRoute(modId modules.ModuleId, svc *ast.ServiceDecl, idx int, route *ast.RouteDecl) {
	c := l.newFctx(modId)
	params := pathParamNames(svc.BasePath + route.Path)
	for _, p := range params {
		c.declare(p)
	}
	if route.BodyType != nil {
		params = append(params, "body")
		c.declare("body")
	}
	l.lowerStmts(c, route.Body.Stmts)
	c.emit(ir.Instr{Op: ir.OpPush, ConstKind: ir.ConstUnit})
	c.emit(ir.Instr{Op: ir.OpReturn})
	l.finish(c, routeFuncName(modId, svc.Name, idx), params, route.RetType)
}

// pathParamNames extracts `{name:Type}` segment names from a path template
// in source order.
func pathParamNames(path string) []string {
	var out []string
	i := 0
	for i < len(path) {
		if path[i] != '{' {
			i++
			continue
		}
		end := i + 1
		for end < len(path) && path[end] != '}' {
			end++
		}
		if end >= len(path) {
			break
		}
		seg := path[i+1 : end]
		name := seg
		for j := 0; j < len(seg); j++ {
			if seg[j] == ':' {
				name = seg[:j]
				break
			}
		}
		out = append(out, name)
		i = end + 1
	}
	return out
}

func (l *Lowerer) lowerStmts(c *fctx, stmts []ast.Stmt) {
	c.pushScope()
	for _, s := range stmts {
		l.lowerStmt(c, s)
	}
	c.popScope()
}

// lowerStmtsInScope lowers stmts without opening a fresh scope, used for
// match-case and loop bodies whose pattern bindings must stay visible.
func (l *Lowerer) lowerStmtsInScope(c *fctx, stmts []ast.Stmt) {
	for _, s := range stmts {
		l.lowerStmt(c, s)
	}
}

func (l *Lowerer) lowerStmt(c *fctx, stmt ast.Stmt) {
	switch s := stmt.(type) {
	case *ast.LetStmt:
		l.lowerExpr(c, s.Value)
		slot := c.declare(s.Name)
		c.emit(ir.Instr{Op: ir.OpStoreLocal, Slot: slot})
	case *ast.ReturnStmt:
		if s.Value != nil {
			l.lowerExpr(c, s.Value)
		} else {
			c.emit(ir.Instr{Op: ir.OpPush, ConstKind: ir.ConstUnit})
		}
		c.emit(ir.Instr{Op: ir.OpReturn})
	case *ast.IfStmt:
		l.lowerIf(c, s)
	case *ast.MatchStmt:
		l.lowerMatch(c, s)
	case *ast.ForStmt:
		l.lowerFor(c, s)
	case *ast.WhileStmt:
		l.lowerWhile(c, s)
	case *ast.BreakStmt:
		idx := c.emit(ir.Instr{Op: ir.OpJump})
		n := len(c.loopBreaks) - 1
		c.loopBreaks[n] = append(c.loopBreaks[n], idx)
	case *ast.ContinueStmt:
		c.emit(ir.Instr{Op: ir.OpJump, Jump: c.loopContinue[len(c.loopContinue)-1]})
	case *ast.AssignStmt:
		l.lowerAssign(c, s)
	case *ast.ExprStmt:
		l.lowerExpr(c, s.Expr)
		c.emit(ir.Instr{Op: ir.OpPop})
	default:
		c.emit(ir.Instr{Op: ir.OpRuntimeError, Str: fmt.Sprintf("unsupported statement %T", stmt)})
	}
}

func (l *Lowerer) lowerIf(c *fctx, s *ast.IfStmt) {
	var ends []int
	for _, arm := range s.Arms {
		l.lowerExpr(c, arm.Cond)
		jf := c.emit(ir.Instr{Op: ir.OpJumpIfFalse})
		l.lowerStmts(c, arm.Block.Stmts)
		ends = append(ends, c.emit(ir.Instr{Op: ir.OpJump}))
		c.patch(jf)
	}
	if s.Else != nil {
		l.lowerStmts(c, s.Else.Stmts)
	}
	for _, e := range ends {
		c.patch(e)
	}
}

func (l *Lowerer) lowerWhile(c *fctx, s *ast.WhileStmt) {
	start := len(c.code)
	l.lowerExpr(c, s.Cond)
	jf := c.emit(ir.Instr{Op: ir.OpJumpIfFalse})
	c.pushLoop(start)
	l.lowerStmts(c, s.Block.Stmts)
	c.emit(ir.Instr{Op: ir.OpJump, Jump: start})
	end := len(c.code)
	c.patch(jf)
	for _, b := range c.popLoop() {
		c.code[b].Jump = end
	}
}

// lowerFor mirrors interp.execFor/bindPattern: the iterated pattern is
// expected to be irrefutable, so a mismatch lowers to a RuntimeError
// exactly like the interpreter's bindPattern does.
func (l *Lowerer) lowerFor(c *fctx, s *ast.ForStmt) {
	l.lowerExpr(c, s.Iter)
	c.emit(ir.Instr{Op: ir.OpIterInit})
	iterSlot := c.declareTemp()
	c.emit(ir.Instr{Op: ir.OpStoreLocal, Slot: iterSlot})

	start := len(c.code)
	next := c.emit(ir.Instr{Op: ir.OpIterNext, Slot: iterSlot})
	itemSlot := c.declareTemp()
	c.emit(ir.Instr{Op: ir.OpStoreLocal, Slot: itemSlot})

	c.pushScope()
	bindings := collectBindings(c, s.Pattern)
	match := c.emit(ir.Instr{Op: ir.OpMatchLocal, Slot: itemSlot, Pattern: s.Pattern, Bindings: bindings})
	c.pushLoop(start)
	l.lowerStmtsInScope(c, s.Block.Stmts)
	c.emit(ir.Instr{Op: ir.OpJump, Jump: start})

	c.patch(match)
	c.emit(ir.Instr{Op: ir.OpRuntimeError, Str: "for-loop pattern did not match iterated value"})

	end := len(c.code)
	c.code[next].Jump = end
	for _, b := range c.popLoop() {
		c.code[b].Jump = end
	}
	c.popScope()
}

func (l *Lowerer) lowerMatch(c *fctx, s *ast.MatchStmt) {
	l.lowerExpr(c, s.Subject)
	subjSlot := c.declareTemp()
	c.emit(ir.Instr{Op: ir.OpStoreLocal, Slot: subjSlot})

	var ends []int
	for _, cs := range s.Cases {
		c.pushScope()
		bindings := collectBindings(c, cs.Pattern)
		match := c.emit(ir.Instr{Op: ir.OpMatchLocal, Slot: subjSlot, Pattern: cs.Pattern, Bindings: bindings})
		l.lowerStmtsInScope(c, cs.Block.Stmts)
		ends = append(ends, c.emit(ir.Instr{Op: ir.OpJump}))
		c.patch(match)
		c.popScope()
	}
	for _, e := range ends {
		c.patch(e)
	}
}

// collectBindings declares a fresh local slot for every name an
// irrefutable sub-pattern binds, matching matchPattern's left-to-right
// binding order.
func collectBindings(c *fctx, p ast.Pattern) []ir.MatchBinding {
	var out []ir.MatchBinding
	var walk func(ast.Pattern)
	walk = func(p ast.Pattern) {
		switch pat := p.(type) {
		case *ast.IdentPattern:
			if pat.Name == "None" {
				return
			}
			slot := c.declare(pat.Name)
			out = append(out, ir.MatchBinding{Name: pat.Name, Slot: slot})
		case *ast.EnumVariantPattern:
			for _, a := range pat.Args {
				walk(a)
			}
		case *ast.StructPattern:
			for _, f := range pat.Fields {
				walk(f.Pattern)
			}
		}
	}
	walk(p)
	return out
}

func (l *Lowerer) lowerAssign(c *fctx, s *ast.AssignStmt) {
	switch t := s.Target.(type) {
	case *ast.Ident:
		l.lowerExpr(c, s.Value)
		slot, ok := c.lookup(t.Name)
		if !ok {
			slot = c.declare(t.Name)
		}
		c.emit(ir.Instr{Op: ir.OpStoreLocal, Slot: slot})
	case *ast.Member:
		l.lowerExpr(c, t.Target)
		l.lowerExpr(c, s.Value)
		c.emit(ir.Instr{Op: ir.OpSetField, Field: t.Name})
	case *ast.OptionalMember:
		l.lowerExpr(c, t.Target)
		c.emit(ir.Instr{Op: ir.OpDup})
		raise := c.emit(ir.Instr{Op: ir.OpJumpIfNull})
		l.lowerExpr(c, s.Value)
		c.emit(ir.Instr{Op: ir.OpSetField, Field: t.Name})
		end := c.emit(ir.Instr{Op: ir.OpJump})
		c.patch(raise)
		c.emit(ir.Instr{Op: ir.OpPop})
		c.emit(ir.Instr{Op: ir.OpRuntimeError, Str: "cannot assign through optional access"})
		c.patch(end)
	case *ast.Index:
		l.lowerExpr(c, t.Target)
		l.lowerExpr(c, t.Index)
		l.lowerExpr(c, s.Value)
		c.emit(ir.Instr{Op: ir.OpSetIndex})
	case *ast.OptionalIndex:
		l.lowerExpr(c, t.Target)
		c.emit(ir.Instr{Op: ir.OpDup})
		raise := c.emit(ir.Instr{Op: ir.OpJumpIfNull})
		l.lowerExpr(c, t.Index)
		l.lowerExpr(c, s.Value)
		c.emit(ir.Instr{Op: ir.OpSetIndex})
		end := c.emit(ir.Instr{Op: ir.OpJump})
		c.patch(raise)
		c.emit(ir.Instr{Op: ir.OpPop})
		c.emit(ir.Instr{Op: ir.OpRuntimeError, Str: "cannot assign through optional access"})
		c.patch(end)
	default:
		c.emit(ir.Instr{Op: ir.OpRuntimeError, Str: fmt.Sprintf("invalid assignment target %T", s.Target)})
	}
}

var binaryOps = map[string]ir.Op{
	"+": ir.OpAdd, "-": ir.OpSub, "*": ir.OpMul, "/": ir.OpDiv, "%": ir.OpMod,
	"==": ir.OpEq, "!=": ir.OpNotEq, "<": ir.OpLt, "<=": ir.OpLtEq, ">": ir.OpGt, ">=": ir.OpGtEq,
	"..": ir.OpRange,
}

func (l *Lowerer) lowerExpr(c *fctx, expr ast.Expr) {
	switch n := expr.(type) {
	case *ast.IntLit:
		c.emit(ir.Instr{Op: ir.OpPush, ConstKind: ir.ConstInt, Int: n.Value})
	case *ast.FloatLit:
		c.emit(ir.Instr{Op: ir.OpPush, ConstKind: ir.ConstFloat, Float: n.Value})
	case *ast.BoolLit:
		c.emit(ir.Instr{Op: ir.OpPush, ConstKind: ir.ConstBool, Bool: n.Value})
	case *ast.StringLit:
		c.emit(ir.Instr{Op: ir.OpPush, ConstKind: ir.ConstString, Str: n.Value})
	case *ast.NullLit:
		c.emit(ir.Instr{Op: ir.OpPush, ConstKind: ir.ConstNull})
	case *ast.InterpString:
		for _, part := range n.Parts {
			if part.Expr != nil {
				l.lowerExpr(c, part.Expr)
			} else {
				c.emit(ir.Instr{Op: ir.OpPush, ConstKind: ir.ConstString, Str: part.Text})
			}
		}
		c.emit(ir.Instr{Op: ir.OpInterpString, Parts: len(n.Parts)})
	case *ast.Ident:
		l.lowerIdent(c, n)
	case *ast.Unary:
		l.lowerExpr(c, n.Expr)
		if n.Op == "-" {
			c.emit(ir.Instr{Op: ir.OpNeg})
		} else {
			c.emit(ir.Instr{Op: ir.OpNot})
		}
	case *ast.Binary:
		l.lowerBinary(c, n)
	case *ast.Call:
		l.lowerCall(c, n)
	case *ast.Member:
		l.lowerMemberExpr(c, n)
	case *ast.OptionalMember:
		l.lowerMember(c, n.Target, n.Name, true)
	case *ast.Index:
		l.lowerExpr(c, n.Target)
		l.lowerExpr(c, n.Index)
		c.emit(ir.Instr{Op: ir.OpGetIndex})
	case *ast.OptionalIndex:
		l.lowerExpr(c, n.Target)
		c.emit(ir.Instr{Op: ir.OpDup})
		jn := c.emit(ir.Instr{Op: ir.OpJumpIfNull})
		l.lowerExpr(c, n.Index)
		c.emit(ir.Instr{Op: ir.OpGetIndex})
		end := c.emit(ir.Instr{Op: ir.OpJump})
		c.patch(jn)
		// The non-null branch leaves [result]; the null branch must leave
		// the same single-value shape, not the leftover [owner] the dup
		// test consumed from — swap it for the Null the expression yields.
		c.emit(ir.Instr{Op: ir.OpPop})
		c.emit(ir.Instr{Op: ir.OpPush, ConstKind: ir.ConstNull})
		c.patch(end)
	case *ast.StructLit:
		names := make([]string, len(n.Fields))
		for i, f := range n.Fields {
			l.lowerExpr(c, f.Value)
			names[i] = f.Name
		}
		c.emit(ir.Instr{Op: ir.OpMakeStruct, StructName: n.Name, Fields: names})
	case *ast.ListLit:
		for _, el := range n.Elems {
			l.lowerExpr(c, el)
		}
		c.emit(ir.Instr{Op: ir.OpMakeList, Len: len(n.Elems)})
	case *ast.MapLit:
		for _, ent := range n.Entries {
			l.lowerExpr(c, ent.Key)
			l.lowerExpr(c, ent.Value)
		}
		c.emit(ir.Instr{Op: ir.OpMakeMap, Len: len(n.Entries)})
	case *ast.Coalesce:
		l.lowerExpr(c, n.Left)
		c.emit(ir.Instr{Op: ir.OpDup})
		useRight := c.emit(ir.Instr{Op: ir.OpJumpIfNull})
		end := c.emit(ir.Instr{Op: ir.OpJump})
		c.patch(useRight)
		c.emit(ir.Instr{Op: ir.OpPop})
		l.lowerExpr(c, n.Right)
		c.patch(end)
	case *ast.BangChain:
		if n.Error != nil {
			l.lowerExpr(c, n.Error)
			l.lowerExpr(c, n.Expr)
			c.emit(ir.Instr{Op: ir.OpBang, HasError: true})
		} else {
			l.lowerExpr(c, n.Expr)
			c.emit(ir.Instr{Op: ir.OpBang})
		}
	case *ast.Spawn:
		l.lowerSpawn(c, n)
	case *ast.Await:
		l.lowerExpr(c, n.Expr)
		c.emit(ir.Instr{Op: ir.OpAwait})
	case *ast.Box:
		l.lowerExpr(c, n.Expr)
		c.emit(ir.Instr{Op: ir.OpMakeBox})
	default:
		c.emit(ir.Instr{Op: ir.OpRuntimeError, Str: fmt.Sprintf("unsupported expression %T", expr)})
		c.emit(ir.Instr{Op: ir.OpPush, ConstKind: ir.ConstUnit})
	}
}

func (l *Lowerer) lowerBinary(c *fctx, n *ast.Binary) {
	// "and"/"or" short-circuit and always coerce to Bool (interp's evalBinary
	// never returns the raw operand, unlike JS-style `&&`/`||`). A double
	// Not reuses OpNot's Truthy() coercion to canonicalize into Bool
	// without a dedicated opcode.
	switch n.Op {
	case "and":
		l.lowerExpr(c, n.Left)
		c.emit(ir.Instr{Op: ir.OpDup})
		jf := c.emit(ir.Instr{Op: ir.OpJumpIfFalse})
		c.emit(ir.Instr{Op: ir.OpPop})
		l.lowerExpr(c, n.Right)
		c.emit(ir.Instr{Op: ir.OpNot})
		c.emit(ir.Instr{Op: ir.OpNot})
		end := c.emit(ir.Instr{Op: ir.OpJump})
		c.patch(jf)
		c.emit(ir.Instr{Op: ir.OpPop})
		c.emit(ir.Instr{Op: ir.OpPush, ConstKind: ir.ConstBool, Bool: false})
		c.patch(end)
		return
	case "or":
		l.lowerExpr(c, n.Left)
		c.emit(ir.Instr{Op: ir.OpDup})
		jf := c.emit(ir.Instr{Op: ir.OpJumpIfFalse})
		c.emit(ir.Instr{Op: ir.OpPop})
		c.emit(ir.Instr{Op: ir.OpPush, ConstKind: ir.ConstBool, Bool: true})
		end := c.emit(ir.Instr{Op: ir.OpJump})
		c.patch(jf)
		c.emit(ir.Instr{Op: ir.OpPop})
		l.lowerExpr(c, n.Right)
		c.emit(ir.Instr{Op: ir.OpNot})
		c.emit(ir.Instr{Op: ir.OpNot})
		c.patch(end)
		return
	}
	op, ok := binaryOps[n.Op]
	if !ok {
		c.emit(ir.Instr{Op: ir.OpRuntimeError, Str: "unknown operator " + n.Op})
		c.emit(ir.Instr{Op: ir.OpPush, ConstKind: ir.ConstUnit})
		return
	}
	l.lowerExpr(c, n.Left)
	l.lowerExpr(c, n.Right)
	c.emit(ir.Instr{Op: op})
}

func (l *Lowerer) lowerIdent(c *fctx, n *ast.Ident) {
	if slot, ok := c.lookup(n.Name); ok {
		c.emit(ir.Instr{Op: ir.OpLoadLocal, Slot: slot})
		return
	}
	if n.Name == "None" {
		c.emit(ir.Instr{Op: ir.OpPush, ConstKind: ir.ConstNull})
		return
	}
	syms := l.syms[c.modId]
	if _, ok := syms.Functions[n.Name]; ok {
		c.emit(ir.Instr{Op: ir.OpRuntimeError, Str: "function " + n.Name + " used as a value is not supported by this backend"})
		c.emit(ir.Instr{Op: ir.OpPush, ConstKind: ir.ConstUnit})
		return
	}
	c.emit(ir.Instr{Op: ir.OpRuntimeError, Str: "unknown identifier " + n.Name})
	c.emit(ir.Instr{Op: ir.OpPush, ConstKind: ir.ConstUnit})
}

// lowerMemberExpr handles the two-level `mod.Config.field` cross-module
// config access specially (one atomic LoadConfigField), falling back to
// the general struct-field path otherwise.
func (l *Lowerer) lowerMemberExpr(c *fctx, n *ast.Member) {
	if m2, ok := n.Target.(*ast.Member); ok {
		if modIdent, ok := m2.Target.(*ast.Ident); ok {
			if _, isLocal := c.lookup(modIdent.Name); !isLocal {
				unit := l.reg.Modules[c.modId]
				if link, ok := unit.Modules[modIdent.Name]; ok {
					if _, ok := l.syms[link.Id].Configs[m2.Name]; ok {
						c.emit(ir.Instr{Op: ir.OpLoadConfigField, Config: m2.Name, Field: n.Name})
						return
					}
				}
			}
		}
	}
	l.lowerMember(c, n.Target, n.Name, false)
}

func (l *Lowerer) lowerMember(c *fctx, target ast.Expr, name string, optional bool) {
	if ident, ok := target.(*ast.Ident); ok {
		if _, isLocal := c.lookup(ident.Name); !isLocal {
			syms := l.syms[c.modId]
			if _, ok := syms.Configs[ident.Name]; ok {
				c.emit(ir.Instr{Op: ir.OpLoadConfigField, Config: ident.Name, Field: name})
				return
			}
			if enumDecl, ok := syms.Enums[ident.Name]; ok {
				for _, v := range enumDecl.Variants {
					if v.Name == name && len(v.Payload) == 0 {
						c.emit(ir.Instr{Op: ir.OpMakeEnum, EnumName: ident.Name, Variant: name})
						return
					}
				}
				c.emit(ir.Instr{Op: ir.OpRuntimeError, Str: "enum constructor used as a bare value is not supported by this backend"})
				c.emit(ir.Instr{Op: ir.OpPush, ConstKind: ir.ConstUnit})
				return
			}
		}
	}
	l.lowerExpr(c, target)
	if optional {
		c.emit(ir.Instr{Op: ir.OpGetOptField, Field: name})
	} else {
		c.emit(ir.Instr{Op: ir.OpGetField, Field: name})
	}
}

// lowerCall resolves the callee statically wherever possible (user
// function, builtin, enum constructor, bare struct-type call) so the VM
// never needs first-class function values for the common paths (the IR's
// Call{name, argc, kind}).
func (l *Lowerer) lowerCall(c *fctx, n *ast.Call) {
	switch callee := n.Callee.(type) {
	case *ast.Ident:
		if _, isLocal := c.lookup(callee.Name); isLocal {
			l.callUnsupportedIndirect(c, n)
			return
		}
		syms := l.syms[c.modId]
		if _, ok := syms.Types[callee.Name]; ok {
			names := make([]string, len(n.Args))
			for i, a := range n.Args {
				l.lowerExpr(c, a.Value)
				names[i] = a.Name
			}
			c.emit(ir.Instr{Op: ir.OpMakeStruct, StructName: callee.Name, Fields: names})
			return
		}
		if _, ok := syms.Functions[callee.Name]; ok {
			for _, a := range n.Args {
				l.lowerExpr(c, a.Value)
			}
			c.emit(ir.Instr{Op: ir.OpCall, Name: qualFn(c.modId, callee.Name), Argc: len(n.Args), CallKind: ir.CallFunction})
			return
		}
		switch callee.Name {
		case "Some", "Ok", "Err":
			if len(n.Args) == 1 {
				l.lowerExpr(c, n.Args[0].Value)
				c.emit(ir.Instr{Op: ir.OpMakeEnum, Variant: callee.Name})
				return
			}
		}
		for _, a := range n.Args {
			l.lowerExpr(c, a.Value)
		}
		c.emit(ir.Instr{Op: ir.OpCall, Name: callee.Name, Argc: len(n.Args), CallKind: ir.CallBuiltin})
	case *ast.Member:
		if ident, ok := callee.Target.(*ast.Ident); ok {
			if _, isLocal := c.lookup(ident.Name); !isLocal {
				syms := l.syms[c.modId]
				if enumDecl, ok := syms.Enums[ident.Name]; ok {
					_ = enumDecl
					for _, a := range n.Args {
						l.lowerExpr(c, a.Value)
					}
					c.emit(ir.Instr{Op: ir.OpMakeEnum, EnumName: ident.Name, Variant: callee.Name, Argc: len(n.Args)})
					return
				}
				unit := l.reg.Modules[c.modId]
				if link, ok := unit.Modules[ident.Name]; ok {
					other := l.syms[link.Id]
					if _, ok := other.Functions[callee.Name]; ok {
						for _, a := range n.Args {
							l.lowerExpr(c, a.Value)
						}
						c.emit(ir.Instr{Op: ir.OpCall, Name: qualFn(link.Id, callee.Name), Argc: len(n.Args), CallKind: ir.CallFunction})
						return
					}
				}
				switch ident.Name {
				case "db":
					for _, a := range n.Args {
						l.lowerExpr(c, a.Value)
					}
					c.emit(ir.Instr{Op: ir.OpCall, Name: "db." + callee.Name, Argc: len(n.Args), CallKind: ir.CallBuiltin})
					return
				case "json", "time", "errors":
					for _, a := range n.Args {
						l.lowerExpr(c, a.Value)
					}
					c.emit(ir.Instr{Op: ir.OpCall, Name: ident.Name + "." + callee.Name, Argc: len(n.Args), CallKind: ir.CallBuiltin})
					return
				}
			}
		}
		l.callUnsupportedIndirect(c, n)
	default:
		l.callUnsupportedIndirect(c, n)
	}
}

func (l *Lowerer) callUnsupportedIndirect(c *fctx, n *ast.Call) {
	c.emit(ir.Instr{Op: ir.OpRuntimeError, Str: "indirect calls through first-class function values are not supported by this backend"})
	c.emit(ir.Instr{Op: ir.OpPush, ConstKind: ir.ConstUnit})
}

// lowerSpawn lifts the block to a synthetic function whose parameters are
// every local currently visible, lexicographically ordered. This
// over-captures relative to true free-variable analysis but is always
// safe: extra captured names are simply unused parameters in the lifted
// function.
func (l *Lowerer) lowerSpawn(c *fctx, n *ast.Spawn) {
	seen := make(map[string]bool)
	var captured []string
	for i := len(c.scopes) - 1; i >= 0; i-- {
		for name := range c.scopes[i] {
			if name[0] == '$' {
				continue // internal temp, never a real capture
			}
			if !seen[name] {
				seen[name] = true
				captured = append(captured, name)
			}
		}
	}
	sort.Strings(captured)

	l.spawnSeq++
	fname := fmt.Sprintf("__spawn::%d::%d", c.modId, l.spawnSeq)

	sc := l.newFctx(c.modId)
	for _, name := range captured {
		sc.declare(name)
	}
	l.lowerStmts(sc, n.Block.Stmts)
	sc.emit(ir.Instr{Op: ir.OpPush, ConstKind: ir.ConstUnit})
	sc.emit(ir.Instr{Op: ir.OpReturn})
	l.finish(sc, fname, captured, nil)

	for _, name := range captured {
		slot, _ := c.lookup(name)
		c.emit(ir.Instr{Op: ir.OpLoadLocal, Slot: slot})
	}
	c.emit(ir.Instr{Op: ir.OpSpawn, SpawnFn: fname, Argc: len(captured)})
}
