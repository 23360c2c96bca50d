package rtcore

import (
	"encoding/json"
	"strings"

	"github.com/fuselang/fuse/internal/ast"
	"github.com/fuselang/fuse/internal/builtinerr"
	"github.com/fuselang/fuse/internal/runtimetype"
	"github.com/fuselang/fuse/internal/value"
)

// DomainErr wraps a domain-error value so RouteRunner
// implementations can distinguish it from an implementation-level Runtime
// error when BuildDispatcher chooses an HTTP status.
type DomainErr struct{ Value value.Value }

func (e *DomainErr) Error() string { return "domain error: " + e.Value.String() }

// RouteRunner executes one matched route's body against already-bound
// path parameters and an optional decoded request body value. Both
// engines supply their own implementation (interp executes the AST
// directly; the VM calls the lowered route function) so this dispatch
// glue — route matching, path-parameter typing, JSON body decoding,
// status selection — is written exactly once and shared.
type RouteRunner func(route *ast.RouteDecl, params map[string]value.Value, body value.Value, hasBody bool) (value.Value, error)

// BuildDispatcher implements the serve() route-matching and
// status-selection contract on top of a RouteRunner.
func BuildDispatcher(svc *ast.ServiceDecl, run RouteRunner) Dispatcher {
	return func(verb, path string, req RouteRequest) RouteResult {
		route, params, matchedPath := MatchRoute(svc, verb, path)
		if route == nil {
			if matchedPath {
				return RouteResult{Status: 405, Body: []byte(`{"error":{"code":"method_not_allowed","message":"method not allowed"}}`)}
			}
			return RouteResult{Status: 404, Body: []byte(`{"error":{"code":"not_found","message":"not found"}}`)}
		}

		bound := make(map[string]value.Value, len(params))
		for name, raw := range params {
			typeName := RouteParamType(route.Path, name)
			v, err := runtimetype.ParseEnvValue(&ast.TypeRef{Kind: ast.TRSimple, Name: typeName}, raw)
			if err != nil {
				return RouteResult{Status: 400, Body: builtinerr.RenderJSON(errAsValue(err))}
			}
			bound[name] = v
		}

		var bodyVal value.Value
		hasBody := false
		if route.BodyType != nil {
			if !req.HasBody {
				return RouteResult{Status: 400, Body: []byte(`{"error":{"code":"missing_field","message":"missing request body"}}`)}
			}
			var raw any
			if err := json.Unmarshal(req.Body, &raw); err != nil {
				return RouteResult{Status: 400, Body: []byte(`{"error":{"code":"invalid_json","message":"malformed JSON body"}}`)}
			}
			bv, verr := runtimetype.DecodeJSONValue(raw, route.BodyType, "body")
			if verr != nil {
				return RouteResult{Status: 400, Body: builtinerr.RenderJSON(errAsValue(verr))}
			}
			bodyVal = bv
			hasBody = true
		}

		result, err := run(route, bound, bodyVal, hasBody)
		if err != nil {
			if derr, ok := err.(*DomainErr); ok {
				return RouteResult{Status: builtinerr.StatusFor(derr.Value), Body: builtinerr.RenderJSON(derr.Value)}
			}
			return RouteResult{Status: 500, Body: []byte(`{"error":{"code":"error","message":"runtime error"}}`)}
		}

		if route.RetType != nil && route.RetType.Kind == ast.TRResult {
			if !result.IsObj() || (result.ObjKind() != value.KResultOk && result.ObjKind() != value.KResultErr) {
				result = value.Ok(result)
			}
		}
		if result.IsObj() && result.ObjKind() == value.KResultErr {
			inner := result.Obj.(*value.ResultErr).Inner
			return RouteResult{Status: builtinerr.StatusFor(inner), Body: builtinerr.RenderJSON(inner)}
		}
		if result.IsObj() && result.ObjKind() == value.KResultOk {
			result = result.Obj.(*value.ResultOk).Inner
		}
		body, _ := runtimetype.MarshalValue(result)
		return RouteResult{Status: 200, Body: body}
	}
}

func errAsValue(err error) value.Value {
	if verr, ok := err.(*runtimetype.ValidationError); ok {
		return verr.ToValue()
	}
	return value.StructOf("Error", map[string]value.Value{"message": value.Str(err.Error())})
}

// MatchRoute finds the route matching path's segments, reporting whether
// a path-only match existed under a different verb (the 405 case).
func MatchRoute(svc *ast.ServiceDecl, verb, path string) (*ast.RouteDecl, map[string]string, bool) {
	reqSegs := splitSegs(path)
	anyPathMatch := false
	for _, r := range svc.Routes {
		full := svc.BasePath + r.Path
		segs := splitSegs(full)
		params, ok := matchSegs(segs, reqSegs)
		if !ok {
			continue
		}
		anyPathMatch = true
		if !strings.EqualFold(r.Verb, verb) {
			continue
		}
		return r, params, true
	}
	return nil, nil, anyPathMatch
}

func splitSegs(p string) []string {
	p = strings.Trim(p, "/")
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}

func matchSegs(pattern, req []string) (map[string]string, bool) {
	if len(pattern) != len(req) {
		return nil, false
	}
	params := make(map[string]string)
	for i, seg := range pattern {
		if strings.HasPrefix(seg, "{") && strings.HasSuffix(seg, "}") {
			inner := seg[1 : len(seg)-1]
			name := inner
			if idx := strings.IndexByte(inner, ':'); idx >= 0 {
				name = inner[:idx]
			}
			params[name] = req[i]
			continue
		}
		if seg != req[i] {
			return nil, false
		}
	}
	return params, true
}

// RouteParamType extracts the declared type of a `{name:Type}` path
// segment, defaulting to String.
func RouteParamType(pathTemplate, name string) string {
	i := 0
	for i < len(pathTemplate) {
		if pathTemplate[i] != '{' {
			i++
			continue
		}
		end := i + 1
		for end < len(pathTemplate) && pathTemplate[end] != '}' {
			end++
		}
		if end >= len(pathTemplate) {
			break
		}
		seg := pathTemplate[i+1 : end]
		segName, typeName := seg, "String"
		if idx := strings.IndexByte(seg, ':'); idx >= 0 {
			segName, typeName = seg[:idx], seg[idx+1:]
		}
		if segName == name {
			return typeName
		}
		i = end + 1
	}
	return "String"
}
