package rtcore

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/fuselang/fuse/internal/ast"
	"github.com/fuselang/fuse/internal/builtinerr"
	"github.com/fuselang/fuse/internal/value"
)

func userService() *ast.ServiceDecl {
	return &ast.ServiceDecl{
		Name:     "Users",
		BasePath: "/api",
		Routes: []*ast.RouteDecl{
			{
				Verb: "GET",
				Path: "/u/{id:Id}",
				RetType: &ast.TypeRef{Kind: ast.TRResult,
					Ok:  &ast.TypeRef{Kind: ast.TRSimple, Name: "String"},
					Err: &ast.TypeRef{Kind: ast.TRSimple, Name: "NotFound"}},
			},
			{
				Verb:     "POST",
				Path:     "/u",
				BodyType: &ast.TypeRef{Kind: ast.TRSimple, Name: "String"},
				RetType:  &ast.TypeRef{Kind: ast.TRSimple, Name: "String"},
			},
		},
	}
}

// Scenario 5: the handler's returned value alone selects the status.
func TestStatusSelection(t *testing.T) {
	svc := userService()

	notFound := BuildDispatcher(svc, func(route *ast.RouteDecl, params map[string]value.Value, body value.Value, hasBody bool) (value.Value, error) {
		return value.Unit(), &DomainErr{Value: builtinerr.New("NotFound", "no")}
	})
	res := notFound("GET", "/api/u/x", RouteRequest{})
	if res.Status != 404 {
		t.Errorf("status: %d", res.Status)
	}
	if string(res.Body) != `{"error":{"code":"not_found","message":"no"}}` {
		t.Errorf("body: %s", res.Body)
	}

	okDisp := BuildDispatcher(svc, func(route *ast.RouteDecl, params map[string]value.Value, body value.Value, hasBody bool) (value.Value, error) {
		return value.Str("ok"), nil
	})
	res = okDisp("GET", "/api/u/x", RouteRequest{})
	if res.Status != 200 {
		t.Errorf("status: %d", res.Status)
	}
	if string(res.Body) != `"ok"` {
		t.Errorf("body: %s", res.Body)
	}
}

func TestPathParamsBoundAndTyped(t *testing.T) {
	svc := userService()
	var got map[string]value.Value
	disp := BuildDispatcher(svc, func(route *ast.RouteDecl, params map[string]value.Value, body value.Value, hasBody bool) (value.Value, error) {
		got = params
		return value.Str("x"), nil
	})
	disp("GET", "/api/u/abc123", RouteRequest{})
	if got["id"].String() != "abc123" {
		t.Errorf("id param: %v", got)
	}
}

func TestUnmatchedRouteIs404(t *testing.T) {
	disp := BuildDispatcher(userService(), func(*ast.RouteDecl, map[string]value.Value, value.Value, bool) (value.Value, error) {
		return value.Unit(), nil
	})
	res := disp("GET", "/api/nope", RouteRequest{})
	if res.Status != 404 {
		t.Errorf("status: %d", res.Status)
	}
	var env map[string]map[string]any
	if err := json.Unmarshal(res.Body, &env); err != nil {
		t.Fatalf("body not JSON: %s", res.Body)
	}
	if env["error"]["code"] != "not_found" {
		t.Errorf("code: %v", env["error"])
	}
}

func TestUnknownVerbIs405(t *testing.T) {
	disp := BuildDispatcher(userService(), func(*ast.RouteDecl, map[string]value.Value, value.Value, bool) (value.Value, error) {
		return value.Unit(), nil
	})
	res := disp("DELETE", "/api/u/x", RouteRequest{})
	if res.Status != 405 {
		t.Errorf("status: %d", res.Status)
	}
}

func TestMalformedBodyIs400(t *testing.T) {
	disp := BuildDispatcher(userService(), func(*ast.RouteDecl, map[string]value.Value, value.Value, bool) (value.Value, error) {
		return value.Str("x"), nil
	})
	res := disp("POST", "/api/u", RouteRequest{Body: []byte("{nope"), HasBody: true})
	if res.Status != 400 {
		t.Errorf("status: %d", res.Status)
	}
	if !strings.Contains(string(res.Body), "invalid_json") {
		t.Errorf("body: %s", res.Body)
	}
}

func TestMissingRequiredBodyIs400(t *testing.T) {
	disp := BuildDispatcher(userService(), func(*ast.RouteDecl, map[string]value.Value, value.Value, bool) (value.Value, error) {
		return value.Str("x"), nil
	})
	res := disp("POST", "/api/u", RouteRequest{})
	if res.Status != 400 {
		t.Errorf("status: %d", res.Status)
	}
	if !strings.Contains(string(res.Body), "missing_field") {
		t.Errorf("body: %s", res.Body)
	}
}

// A bare return value on a Result route wraps into Ok and still serves 200.
func TestResultWrappingOnRoutes(t *testing.T) {
	disp := BuildDispatcher(userService(), func(*ast.RouteDecl, map[string]value.Value, value.Value, bool) (value.Value, error) {
		return value.Str("bare"), nil
	})
	res := disp("GET", "/api/u/1", RouteRequest{})
	if res.Status != 200 || string(res.Body) != `"bare"` {
		t.Errorf("got %d %s", res.Status, res.Body)
	}
}

func TestStatusTable(t *testing.T) {
	tests := []struct {
		name   string
		status int
	}{
		{"ValidationError", 400},
		{"BadRequest", 400},
		{"Unauthorized", 401},
		{"Forbidden", 403},
		{"NotFound", 404},
		{"Conflict", 409},
		{"SomethingElse", 500},
	}
	for _, tt := range tests {
		v := builtinerr.New(tt.name, "m")
		if got := builtinerr.StatusFor(v); got != tt.status {
			t.Errorf("%s: got %d want %d", tt.name, got, tt.status)
		}
	}
	withStatus := value.StructOf("Error", map[string]value.Value{
		"message": value.Str("m"),
		"status":  value.Int(503),
	})
	if got := builtinerr.StatusFor(withStatus); got != 503 {
		t.Errorf("Error.status: got %d", got)
	}
}

func TestRouteParamType(t *testing.T) {
	tests := []struct {
		path, name, want string
	}{
		{"/u/{id:Id}", "id", "Id"},
		{"/u/{id:Id}/{n:Int}", "n", "Int"},
		{"/u/{slug}", "slug", "String"},
		{"/u/{id:Id}", "missing", "String"},
	}
	for _, tt := range tests {
		if got := RouteParamType(tt.path, tt.name); got != tt.want {
			t.Errorf("%s %s: got %s want %s", tt.path, tt.name, got, tt.want)
		}
	}
}
