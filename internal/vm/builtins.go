package vm

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/fuselang/fuse/internal/ast"
	"github.com/fuselang/fuse/internal/runtimetype"
	"github.com/fuselang/fuse/internal/value"
	"github.com/fuselang/fuse/internal/valueops"
)

// callBuiltin dispatches the fixed built-in table, mirroring
// interp.callBuiltin exactly so both engines produce identical observable
// output.
func (vm *VM) callBuiltin(name string, args []value.Value, f *frame) (value.Value, *vmErr) {
	switch name {
	case "print":
		s := ""
		for i, a := range args {
			if i > 0 {
				s += " "
			}
			s += a.String()
		}
		fmt.Fprintln(vm.Host.Stdout, s)
		return value.Unit(), nil
	case "log":
		s := ""
		for i, a := range args {
			if i > 0 {
				s += " "
			}
			s += a.String()
		}
		fmt.Fprintln(vm.Host.Stderr, s)
		return value.Unit(), nil
	case "env":
		if len(args) != 1 || !args[0].IsObj() || args[0].ObjKind() != value.KString {
			return value.Unit(), runtimeErr("env(name) requires a String argument")
		}
		raw, ok := vm.Host.Getenv(args[0].Obj.(*value.String).Value)
		if !ok {
			return value.Null(), nil
		}
		return value.Str(raw), nil
	case "assert":
		if len(args) == 0 || !args[0].Truthy() {
			msg := "assertion failed"
			if len(args) > 1 {
				msg = args[1].String()
			}
			return value.Unit(), domainErr(value.StructOf("AssertionError", map[string]value.Value{"message": value.Str(msg)}))
		}
		return value.Unit(), nil
	case "range":
		if len(args) != 2 {
			return value.Unit(), runtimeErr("range(lo, hi) requires two arguments")
		}
		v, err := valueops.ApplyBinary("..", args[0], args[1])
		if err != nil {
			return value.Unit(), runtimeErr("%s", err.Error())
		}
		return v, nil
	case "serve":
		return vm.callServe(args, f)
	case "db.exec":
		return vm.callDB(vm.Host.DB.Exec, args)
	case "db.query":
		return vm.callDB(vm.Host.DB.Query, args)
	case "db.one":
		return vm.callDB(vm.Host.DB.One, args)
	case "json.encode":
		if len(args) != 1 {
			return value.Unit(), runtimeErr("json.encode(v) requires one argument")
		}
		b, err := runtimetype.MarshalValue(args[0])
		if err != nil {
			return value.Unit(), runtimeErr("json encode failed: %v", err)
		}
		return value.Str(string(b)), nil
	case "json.decode":
		if len(args) != 1 || !args[0].IsObj() || args[0].ObjKind() != value.KString {
			return value.Unit(), runtimeErr("json.decode(s) requires a String argument")
		}
		var raw any
		if err := json.Unmarshal([]byte(args[0].Obj.(*value.String).Value), &raw); err != nil {
			return value.Unit(), domainErr((&runtimetype.ValidationError{Fields: []runtimetype.FieldError{{
				Code: "invalid_json", Message: err.Error(),
			}}}).ToValue())
		}
		return runtimetype.JSONToValue(raw), nil
	case "time.now":
		return value.Int(time.Now().Unix()), nil
	case "errors.new":
		if len(args) < 1 {
			return value.Unit(), runtimeErr("errors.new(name, message?) requires at least one argument")
		}
		msg := ""
		if len(args) > 1 {
			msg = args[1].String()
		}
		return value.StructOf(args[0].String(), map[string]value.Value{"message": value.Str(msg)}), nil
	}
	return value.Unit(), runtimeErr("unknown builtin %s", name)
}

func (vm *VM) callDB(fn func(string, []value.Value) (value.Value, error), args []value.Value) (value.Value, *vmErr) {
	if vm.Host.DB == nil {
		return value.Unit(), runtimeErr("no database configured")
	}
	if len(args) == 0 || !args[0].IsObj() || args[0].ObjKind() != value.KString {
		return value.Unit(), runtimeErr("db call requires a String query as its first argument")
	}
	query := args[0].Obj.(*value.String).Value
	v, err := fn(query, args[1:])
	if err != nil {
		return value.Unit(), fromOpErr(err)
	}
	return v, nil
}

// callServe hands the current frame's module's service to the HTTP
// collaborator, mirroring interp.callServe's arbitrary
// service selection when a module declares more than one (an existing,
// rarely-exercised non-determinism this engine intentionally mirrors
// rather than resolves unilaterally).
func (vm *VM) callServe(args []value.Value, f *frame) (value.Value, *vmErr) {
	if len(args) == 0 || !args[0].IsInt() {
		return value.Unit(), runtimeErr("serve(port) requires an Int port")
	}
	port := int(args[0].AsInt())
	syms := vm.Syms[f.fn.ModuleId]
	var svc *ast.ServiceDecl
	for _, s := range syms.Services {
		svc = s
		break
	}
	if svc == nil {
		return value.Unit(), runtimeErr("no service declared")
	}
	if vm.Host.HTTP == nil {
		return value.Unit(), runtimeErr("no HTTP collaborator configured")
	}
	maxReq := 0
	if raw, ok := vm.Host.Getenv("FUSE_MAX_REQUESTS"); ok {
		fmt.Sscanf(raw, "%d", &maxReq)
	}
	dispatch := vm.makeDispatcher(f.fn.ModuleId, svc)
	if err := vm.Host.HTTP.Serve(port, maxReq, dispatch); err != nil {
		return value.Unit(), runtimeErr("serve failed: %v", err)
	}
	return value.Unit(), nil
}
