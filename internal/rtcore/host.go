// Package rtcore holds the process-scoped state and external-collaborator
// interfaces shared by the interpreter and the VM: the realized configs
// map, the optional database handle, and HTTP route dispatch, all mutated
// only through the engine's main entry. Sharing one implementation here,
// rather than duplicating config realization and builtin dispatch in each
// engine, is what keeps the two backends byte-identical.
package rtcore

import (
	"io"
	"os"
	"sort"
	"strings"

	"github.com/fuselang/fuse/internal/ast"
	"github.com/fuselang/fuse/internal/modules"
	"github.com/fuselang/fuse/internal/runtimetype"
	"github.com/fuselang/fuse/internal/symbols"
	"github.com/fuselang/fuse/internal/value"
)

// DB is the narrow interface the db.exec/query/one builtins dispatch
// through. internal/dbstore
// supplies the real sqlite-backed implementation.
type DB interface {
	Exec(query string, args []value.Value) (value.Value, error)
	Query(query string, args []value.Value) (value.Value, error)
	One(query string, args []value.Value) (value.Value, error)
}

// RouteResult is what a dispatched HTTP route produces, already reduced to
// an HTTP status and a JSON body.
type RouteResult struct {
	Status int
	Body   []byte
}

// RouteRequest is what the HTTP collaborator hands back to the engine for
// one matched request.
type RouteRequest struct {
	PathParams map[string]string
	Body       []byte
	HasBody    bool
}

// Dispatcher resolves one incoming request against a service's routes.
type Dispatcher func(verb, path string, req RouteRequest) RouteResult

// HTTPServer is the narrow interface the `serve` builtin dispatches
// through. internal/httpserve
// supplies the real net/http-backed implementation.
type HTTPServer interface {
	Serve(port int, maxRequests int, dispatch Dispatcher) error
}

// ConfigSource reads the on-disk TOML config file, keyed by section
// name. internal/configio supplies the real implementation.
type ConfigSource interface {
	// Value returns the raw file value for section.field, or ok=false if
	// absent (file missing, section missing, or field missing).
	Value(section, field string) (string, bool)
}

// Host is the process-scoped state shared by both engines: realized
// configs, the optional DB handle, and the collaborators builtins call
// through. Exactly one Host exists per process invocation.
type Host struct {
	Reg  *modules.Registry
	Syms map[modules.ModuleId]*symbols.ModuleSymbols

	Stdout io.Writer
	Stderr io.Writer

	DB     DB
	HTTP   HTTPServer
	Config ConfigSource

	Getenv func(string) (string, bool)

	configs     map[string]map[string]value.Value
	configDecls map[string]*ast.ConfigDecl
}

// NewHost builds a Host with OS environment lookups and stdio streams;
// callers override DB/HTTP/Config/Getenv for tests or alternate transports.
func NewHost(reg *modules.Registry, syms map[modules.ModuleId]*symbols.ModuleSymbols) *Host {
	h := &Host{
		Reg:    reg,
		Syms:   syms,
		Stdout: os.Stdout,
		Stderr: os.Stderr,
		Getenv: os.LookupEnv,
	}
	h.configDecls = make(map[string]*ast.ConfigDecl)
	for _, unit := range reg.Ordered() {
		if s, ok := syms[unit.Id]; ok {
			for name, decl := range s.Configs {
				h.configDecls[name] = decl
			}
		}
	}
	h.configs = make(map[string]map[string]value.Value)
	return h
}

// BuiltinCapabilities is the fixed built-in dispatch table of the
// engines' identifier-resolution fallback.
var BuiltinCapabilities = map[string]bool{
	"print": true, "env": true, "serve": true, "log": true, "assert": true,
	"db": true, "json": true, "time": true, "errors": true, "range": true,
}

// RealizeConfig realises a config on first access: for each declared
// field, precedence is env var
// FUSE_<CONFIG>_<FIELD> > file > declared default, each validated against
// its TypeRef before being stored.
func (h *Host) RealizeConfig(name string, evalDefault func(ast.Expr) (value.Value, error)) (map[string]value.Value, error) {
	if fields, ok := h.configs[name]; ok {
		return fields, nil
	}
	decl, ok := h.configDecls[name]
	if !ok {
		return nil, &RuntimeErr{Msg: "unknown config " + name}
	}
	out := make(map[string]value.Value, len(decl.Fields))
	for _, f := range decl.Fields {
		envKey := strings.ToUpper(name) + "_" + strings.ToUpper(toSnake(f.Name))
		raw, ok := h.Getenv("FUSE_" + envKey)
		if !ok {
			// The unprefixed CONFIG_FIELD spelling is accepted too.
			raw, ok = h.Getenv(envKey)
		}
		if ok {
			v, err := runtimetype.ParseEnvValue(f.Type, raw)
			if err != nil {
				return nil, err
			}
			out[f.Name] = v
			continue
		}
		if h.Config != nil {
			if raw, ok := h.Config.Value(name, f.Name); ok {
				v, err := runtimetype.ParseEnvValue(f.Type, raw)
				if err != nil {
					return nil, err
				}
				out[f.Name] = v
				continue
			}
		}
		v, err := evalDefault(f.Value)
		if err != nil {
			return nil, err
		}
		if verr := runtimetype.ValidateValue(v, f.Type, f.Name); verr != nil {
			return nil, verr
		}
		out[f.Name] = v
	}
	h.configs[name] = out
	return out, nil
}

// ConfigField reads a realized config's field, realizing the config first
// if this is the first access.
func (h *Host) ConfigField(name, field string, evalDefault func(ast.Expr) (value.Value, error)) (value.Value, error) {
	fields, err := h.RealizeConfig(name, evalDefault)
	if err != nil {
		return value.Unit(), err
	}
	v, ok := fields[field]
	if !ok {
		return value.Unit(), &RuntimeErr{Msg: "unknown config field " + name + "." + field}
	}
	return v, nil
}

func toSnake(name string) string {
	var b strings.Builder
	for i, r := range name {
		if r >= 'A' && r <= 'Z' && i > 0 {
			b.WriteByte('_')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// RuntimeErr is an implementation-level error: stack underflow, unknown
// identifier, invalid local slot. It is never user-recoverable.
type RuntimeErr struct{ Msg string }

func (e *RuntimeErr) Error() string { return e.Msg }

// SortedCapabilities returns the capability names set in m, sorted, so
// they come out in a stable order.
func SortedCapabilities(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
