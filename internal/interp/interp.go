// Package interp implements the tree-walking AST engine: a per-call
// environment chain plus a dedicated control-flow result type propagated
// through every evaluation instead of Go panics.
package interp

import (
	"fmt"

	"github.com/fuselang/fuse/internal/ast"
	"github.com/fuselang/fuse/internal/modules"
	"github.com/fuselang/fuse/internal/rtcore"
	"github.com/fuselang/fuse/internal/symbols"
	"github.com/fuselang/fuse/internal/value"
)

// SignalKind discriminates the engine's non-local exits. A nil *Signal
// means "fell through normally".
type SignalKind int

const (
	SigReturn SignalKind = iota
	SigBreak
	SigContinue
	SigError   // the domain-error channel
	SigRuntime // an implementation error (ExecError::Runtime)
)

// Signal is the tagged non-local-exit value threaded through every
// statement/expression evaluation: a Return/Break/Continue/Error/Runtime
// sum rather than Go panics, so nested loops and `?!` compose cleanly.
type Signal struct {
	Kind  SignalKind
	Value value.Value // Return, Error
	Msg   string      // Runtime
}

func (s *Signal) Error() string {
	switch s.Kind {
	case SigReturn:
		return fmt.Sprintf("return %s", s.Value)
	case SigBreak:
		return "break"
	case SigContinue:
		return "continue"
	case SigError:
		return fmt.Sprintf("error: %s", s.Value)
	case SigRuntime:
		return s.Msg
	}
	return "signal"
}

func runtimeErr(format string, args ...any) *Signal {
	return &Signal{Kind: SigRuntime, Msg: fmt.Sprintf(format, args...)}
}

func domainErr(v value.Value) *Signal {
	return &Signal{Kind: SigError, Value: v}
}

// scope is one lexical block's bindings.
type scope map[string]*value.Value

// Frame is one function-call activation: a stacked lexical environment,
// with a scope entered on block enter and exited on block exit.
type Frame struct {
	ModuleId modules.ModuleId
	scopes   []scope
}

func newFrame(moduleId modules.ModuleId) *Frame {
	return &Frame{ModuleId: moduleId, scopes: []scope{make(scope)}}
}

func (f *Frame) push() { f.scopes = append(f.scopes, make(scope)) }
func (f *Frame) pop()  { f.scopes = f.scopes[:len(f.scopes)-1] }

func (f *Frame) declare(name string, v value.Value) {
	f.scopes[len(f.scopes)-1][name] = &v
}

// lookup walks the scope stack innermost-first.
func (f *Frame) lookup(name string) (*value.Value, bool) {
	for i := len(f.scopes) - 1; i >= 0; i-- {
		if cell, ok := f.scopes[i][name]; ok {
			return cell, true
		}
	}
	return nil, false
}

// Engine evaluates a loaded, symbol-collected registry directly.
type Engine struct {
	Reg  *modules.Registry
	Syms map[modules.ModuleId]*symbols.ModuleSymbols
	Host *rtcore.Host

	tasks []*pendingTask
}

type pendingTask struct {
	run    func() (value.Value, *Signal)
	forced bool
	result value.Value
	sig    *Signal
}

// New builds an Engine ready to evaluate reg's modules, sharing host with
// whatever VM run might also be in play (one Host per process).
func New(reg *modules.Registry, syms map[modules.ModuleId]*symbols.ModuleSymbols, host *rtcore.Host) *Engine {
	return &Engine{Reg: reg, Syms: syms, Host: host}
}

// RunApp evaluates the named app declaration (or the sole app if name is
// ""), draining any un-awaited tasks at completion (remaining tasks are
// discarded, not an error).
func (e *Engine) RunApp(name string) *Signal {
	unit := e.Reg.RootUnit()
	syms := e.Syms[unit.Id]
	var app *ast.AppDecl
	if name != "" {
		app = syms.Apps[name]
		if app == nil {
			return runtimeErr("no app named %s", name)
		}
	} else {
		for _, a := range syms.Apps {
			app = a
			break
		}
		if app == nil {
			return runtimeErr("no app declared")
		}
	}
	frame := newFrame(unit.Id)
	sig := e.execBlock(app.Body, frame)
	e.tasks = nil
	if sig != nil && sig.Kind == SigReturn {
		return nil
	}
	return sig
}

// RunMigration evaluates the named migration block.
func (e *Engine) RunMigration(name string) *Signal {
	unit := e.Reg.RootUnit()
	syms := e.Syms[unit.Id]
	m := syms.Migrations[name]
	if m == nil {
		return runtimeErr("no migration named %s", name)
	}
	frame := newFrame(unit.Id)
	sig := e.execBlock(m.Body, frame)
	e.tasks = nil
	if sig != nil && sig.Kind == SigReturn {
		return nil
	}
	return sig
}

// RunMigrationAt evaluates a migration declared in an arbitrary module;
// the --migrate mode collects migrations registry-wide, not just from the
// root.
func (e *Engine) RunMigrationAt(id modules.ModuleId, name string) *Signal {
	syms := e.Syms[id]
	if syms == nil || syms.Migrations[name] == nil {
		return runtimeErr("no migration named %s", name)
	}
	frame := newFrame(id)
	sig := e.execBlock(syms.Migrations[name].Body, frame)
	e.tasks = nil
	if sig != nil && sig.Kind == SigReturn {
		return nil
	}
	return sig
}

// RunTestAt evaluates a test declared in an arbitrary module, reporting
// pass/fail the way RunTest does.
func (e *Engine) RunTestAt(id modules.ModuleId, name string) (bool, *Signal) {
	syms := e.Syms[id]
	if syms == nil || syms.Tests[name] == nil {
		return false, runtimeErr("no test named %s", name)
	}
	frame := newFrame(id)
	sig := e.execBlock(syms.Tests[name].Body, frame)
	e.tasks = nil
	if sig == nil || sig.Kind == SigReturn {
		return true, nil
	}
	return false, sig
}

// RunTest evaluates the named test block, reporting pass/fail.
func (e *Engine) RunTest(name string) (bool, *Signal) {
	unit := e.Reg.RootUnit()
	syms := e.Syms[unit.Id]
	t := syms.Tests[name]
	if t == nil {
		return false, runtimeErr("no test named %s", name)
	}
	frame := newFrame(unit.Id)
	sig := e.execBlock(t.Body, frame)
	e.tasks = nil
	if sig == nil || sig.Kind == SigReturn {
		return true, nil
	}
	if sig.Kind == SigError {
		return false, sig
	}
	return false, sig
}

// CallMain binds args by name into fn main(...)'s parameters and executes
// it as the program's entry point.
func (e *Engine) CallMain(args map[string]value.Value) *Signal {
	unit := e.Reg.RootUnit()
	syms := e.Syms[unit.Id]
	fn := syms.Functions["main"]
	if fn == nil {
		return runtimeErr("no fn main declared")
	}
	positional := make([]value.Value, len(fn.Params))
	for i, p := range fn.Params {
		if v, ok := args[p.Name]; ok {
			positional[i] = v
		}
	}
	_, sig := e.callFnDecl(unit.Id, fn, positional)
	return sig
}
