package vm

import (
	"strings"

	"github.com/fuselang/fuse/internal/ast"
	"github.com/fuselang/fuse/internal/lower"
	"github.com/fuselang/fuse/internal/modules"
	"github.com/fuselang/fuse/internal/rtcore"
	"github.com/fuselang/fuse/internal/value"
)

// makeDispatcher builds the rtcore.Dispatcher for one `serve()` call. Route
// matching, path-parameter typing, JSON decoding, and status selection all
// live in rtcore.BuildDispatcher; this engine only supplies
// how a matched route actually runs: by calling its lowered function,
// mirroring interp.makeDispatcher's execBlock call.
func (vm *VM) makeDispatcher(modId modules.ModuleId, svc *ast.ServiceDecl) rtcore.Dispatcher {
	return rtcore.BuildDispatcher(svc, func(route *ast.RouteDecl, params map[string]value.Value, body value.Value, hasBody bool) (value.Value, error) {
		idx := routeIndex(svc, route)
		if idx < 0 {
			return value.Unit(), runtimeErr("route not found in service %s", svc.Name)
		}
		fn, ok := vm.Prog.Functions[lower.RouteFuncName(modId, svc.Name, idx)]
		if !ok {
			return value.Unit(), runtimeErr("route function not lowered for %s", svc.Name)
		}
		names := pathParamNames(svc.BasePath + route.Path)
		args := make([]value.Value, 0, len(names)+1)
		for _, n := range names {
			args = append(args, params[n])
		}
		if hasBody {
			args = append(args, body)
		}
		out, err := vm.callFunction(fn, args)
		if err != nil {
			if !err.runtime {
				return value.Unit(), &rtcore.DomainErr{Value: err.val}
			}
			return value.Unit(), err
		}
		return out, nil
	})
}

func routeIndex(svc *ast.ServiceDecl, route *ast.RouteDecl) int {
	for i, r := range svc.Routes {
		if r == route {
			return i
		}
	}
	return -1
}

// pathParamNames extracts `{name:Type}` segment names from a path template
// in source order, the same contract lower.lowerRoute binds positional
// route-function parameters against.
func pathParamNames(path string) []string {
	var names []string
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
		if idx := strings.IndexByte(seg, ':'); idx >= 0 {
			name = seg[:idx]
		}
		names = append(names, name)
		i = end + 1
	}
	return names
}
