// Package vm executes the bytecode program the lower package produces: a
// stack machine with one instruction-dispatch switch over a per-call
// frame holding its own operand stack and locals slice. Every operator,
// pattern match, and struct-default rule is shared with internal/interp
// through internal/valueops so the two engines cannot drift apart on
// what an instruction means.
package vm

import (
	"fmt"

	"github.com/fuselang/fuse/internal/ast"
	"github.com/fuselang/fuse/internal/ir"
	"github.com/fuselang/fuse/internal/lower"
	"github.com/fuselang/fuse/internal/modules"
	"github.com/fuselang/fuse/internal/rtcore"
	"github.com/fuselang/fuse/internal/runtimetype"
	"github.com/fuselang/fuse/internal/symbols"
	"github.com/fuselang/fuse/internal/value"
	"github.com/fuselang/fuse/internal/valueops"
)

// vmErr is the VM's error sum: Runtime(msg) | Error(Value).
type vmErr struct {
	runtime bool
	msg     string
	val     value.Value
}

func (e *vmErr) Error() string {
	if e.runtime {
		return e.msg
	}
	return "error: " + e.val.String()
}

func runtimeErr(format string, args ...any) *vmErr {
	return &vmErr{runtime: true, msg: fmt.Sprintf(format, args...)}
}

func domainErr(v value.Value) *vmErr {
	return &vmErr{val: v}
}

// ErrorValue reports whether err carries a domain-error value (the
// structured kind the CLI renders as JSON with exit 2), and that value.
func ErrorValue(err error) (bool, value.Value) {
	if ve, ok := err.(*vmErr); ok && !ve.runtime {
		return true, ve.val
	}
	return false, value.Unit()
}

func fromOpErr(err error) *vmErr {
	if err == nil {
		return nil
	}
	if derr, ok := err.(*valueops.DomainErr); ok {
		return domainErr(derr.Value)
	}
	if verr, ok := err.(*runtimetype.ValidationError); ok {
		return domainErr(verr.ToValue())
	}
	if re, ok := err.(*rtcore.RuntimeErr); ok {
		return runtimeErr("%s", re.Msg)
	}
	return runtimeErr("%s", err.Error())
}

// VM executes one lowered ir.Program, sharing a Host with
// whatever interpreter run might also be in play in this process.
type VM struct {
	Prog *ir.Program
	Reg  *modules.Registry
	Syms map[modules.ModuleId]*symbols.ModuleSymbols
	Host *rtcore.Host

	// typeFields/typeOwner resolve a struct literal's declared field list
	// (derivation-expanded) and owning module by name, built once from
	// every module's symbols (MakeStruct carries no module context of
	// its own, mirroring interp's cross-module resolveTypeDecl search,
	// generalized to a flat global name table since IR instructions only
	// carry bare struct/config names).
	typeFields map[string][]*ast.FieldDecl
	typeOwner  map[string]modules.ModuleId
	cfgOwner   map[string]modules.ModuleId

	tasks []*pendingTask
}

type pendingTask struct {
	forced bool
	result value.Value
	err    *vmErr
	run    func() (value.Value, *vmErr)
}

// New builds a VM ready to execute prog against reg's modules.
func New(prog *ir.Program, reg *modules.Registry, syms map[modules.ModuleId]*symbols.ModuleSymbols, host *rtcore.Host) *VM {
	v := &VM{
		Prog:       prog,
		Reg:        reg,
		Syms:       syms,
		Host:       host,
		typeFields: make(map[string][]*ast.FieldDecl),
		typeOwner:  make(map[string]modules.ModuleId),
		cfgOwner:   make(map[string]modules.ModuleId),
	}
	for _, unit := range reg.Ordered() {
		s := syms[unit.Id]
		if s == nil {
			continue
		}
		for name, decl := range s.Types {
			v.typeOwner[name] = unit.Id
			if fields, ok := s.DerivedFields[name]; ok {
				v.typeFields[name] = fields
			} else {
				v.typeFields[name] = decl.Fields
			}
		}
		for name := range s.Configs {
			v.cfgOwner[name] = unit.Id
		}
	}
	return v
}

// frame is one function activation: its locals slice and operand stack.
type frame struct {
	fn     *ir.Function
	ip     int
	locals []value.Value
	stack  []value.Value
}

func (f *frame) push(v value.Value) { f.stack = append(f.stack, v) }

func (f *frame) pop() (value.Value, bool) {
	n := len(f.stack)
	if n == 0 {
		return value.Value{}, false
	}
	v := f.stack[n-1]
	f.stack = f.stack[:n-1]
	return v, true
}

func (f *frame) top() (value.Value, bool) {
	n := len(f.stack)
	if n == 0 {
		return value.Value{}, false
	}
	return f.stack[n-1], true
}

// RunApp evaluates the named app declaration (or the sole app if name is
// ""), draining any un-awaited tasks at completion (remaining tasks are
// discarded, same as the interpreter).
func (vm *VM) RunApp(name string) error {
	qname, ok := vm.Prog.EntryApp[name]
	if !ok && name == "" {
		for n, q := range vm.Prog.EntryApp {
			name, qname, ok = n, q, true
			break
		}
	}
	if !ok {
		return runtimeErr("no app named %s", name)
	}
	_, err := vm.callNamed(qname, nil)
	vm.tasks = nil
	return err
}

// RunMigration evaluates the named migration block.
func (vm *VM) RunMigration(name string) error {
	qname, ok := vm.Prog.Migration[name]
	if !ok {
		return runtimeErr("no migration named %s", name)
	}
	_, err := vm.callNamed(qname, nil)
	vm.tasks = nil
	return err
}

// RunTest evaluates the named test block, reporting pass/fail the same way
// interp.RunTest does: a domain Error surfaced from the body is a failure,
// anything else propagating is still an error for the caller to report.
func (vm *VM) RunTest(name string) (bool, error) {
	qname, ok := vm.Prog.Tests[name]
	if !ok {
		return false, runtimeErr("no test named %s", name)
	}
	_, err := vm.callNamed(qname, nil)
	vm.tasks = nil
	if err == nil {
		return true, nil
	}
	if ve, ok := err.(*vmErr); ok && !ve.runtime {
		return false, err
	}
	return false, err
}

// CallMain binds args by name into fn main(...)'s parameters and executes
// it as the program's entry point.
func (vm *VM) CallMain(args map[string]value.Value) error {
	unit := vm.Reg.RootUnit()
	fn := vm.Prog.Functions[lower.QualFn(unit.Id, "main")]
	if fn == nil {
		return runtimeErr("no fn main declared")
	}
	positional := make([]value.Value, len(fn.Params))
	for i, p := range fn.Params {
		if v, ok := args[p]; ok {
			positional[i] = v
		} else {
			positional[i] = value.Null()
		}
	}
	_, err := vm.callFunction(fn, positional)
	if err != nil {
		return err
	}
	return nil
}

// callNamed invokes an already-qualified function name with positional
// args, translating *vmErr into a plain error for external callers.
func (vm *VM) callNamed(name string, args []value.Value) (value.Value, error) {
	fn, ok := vm.Prog.Functions[name]
	if !ok {
		return value.Unit(), runtimeErr("unknown function %s", name)
	}
	v, err := vm.callFunction(fn, args)
	if err != nil {
		return value.Unit(), err
	}
	return v, nil
}

// callFunction implements the engine call contract: validate declared
// parameter types (only plain `fn`/`main` functions carry ParamTypes; see
// ir.Function's doc), execute, and apply Result-wrapping on return.
func (vm *VM) callFunction(fn *ir.Function, args []value.Value) (value.Value, *vmErr) {
	f := &frame{fn: fn, locals: make([]value.Value, fn.Locals)}
	for i := range fn.Params {
		var v value.Value
		if i < len(args) {
			v = args[i]
		} else {
			v = value.Null()
		}
		if fn.ParamTypes != nil && i < len(fn.ParamTypes) {
			if verr := runtimetype.ValidateValue(v, fn.ParamTypes[i], fn.Params[i]); verr != nil {
				return value.Unit(), fromOpErr(verr)
			}
		}
		f.locals[i] = v
	}
	result, err := vm.run(f)
	if err != nil {
		return value.Unit(), err
	}
	if fn.Ret != nil && fn.Ret.Kind == ast.TRResult {
		if result.IsObj() && (result.ObjKind() == value.KResultOk || result.ObjKind() == value.KResultErr) {
			return result, nil
		}
		return value.Ok(result), nil
	}
	return result, nil
}
