package interp

import (
	"github.com/fuselang/fuse/internal/ast"
	"github.com/fuselang/fuse/internal/modules"
	"github.com/fuselang/fuse/internal/rtcore"
	"github.com/fuselang/fuse/internal/value"
)

// makeDispatcher builds the rtcore.Dispatcher the HTTP collaborator drives
// for one `serve()` call. Route matching, path-parameter typing, JSON body
// decoding, and status selection all live in rtcore.BuildDispatcher
// so the VM can share them byte-for-byte; this engine only
// supplies how a matched route's body actually runs.
func (e *Engine) makeDispatcher(modId modules.ModuleId, svc *ast.ServiceDecl) rtcore.Dispatcher {
	return rtcore.BuildDispatcher(svc, func(route *ast.RouteDecl, params map[string]value.Value, body value.Value, hasBody bool) (value.Value, error) {
		frame := newFrame(modId)
		for name, v := range params {
			frame.declare(name, v)
		}
		if hasBody {
			frame.declare("body", body)
		}
		sig := e.execBlock(route.Body, frame)
		if sig == nil {
			return value.Unit(), nil
		}
		switch sig.Kind {
		case SigReturn:
			return sig.Value, nil
		case SigError:
			return value.Unit(), &rtcore.DomainErr{Value: sig.Value}
		default:
			return value.Unit(), sig
		}
	})
}
