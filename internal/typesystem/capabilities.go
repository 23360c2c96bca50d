package typesystem

import (
	"sort"
	"strings"

	"github.com/fuselang/fuse/internal/ast"
	"github.com/fuselang/fuse/internal/diagnostics"
	"github.com/fuselang/fuse/internal/modules"
	"github.com/fuselang/fuse/internal/symbols"
)

// ModuleReport is one module's strict-mode capability analysis input: its
// declared `requires` capabilities and the capabilities CheckProgram
// observed it actually using.
type ModuleReport struct {
	Unit     *modules.ModuleUnit
	Syms     *symbols.ModuleSymbols
	Declared []string
	Used     map[string]bool
}

// CapabilityName maps an observed builtin root to the capability it
// exercises: `serve` is the `network` capability, every other builtin is
// its own capability name.
func CapabilityName(builtin string) string {
	if builtin == "serve" {
		return "network"
	}
	return builtin
}

// NormalizeUsed rewrites a CheckProgram used-builtin set into the
// capability names `requires` declarations speak in.
func NormalizeUsed(used map[string]bool) map[string]bool {
	out := make(map[string]bool, len(used))
	for name := range used {
		out[CapabilityName(name)] = true
	}
	return out
}

// CheckCapabilitiesStrict runs the strict-mode capability validation:
// purity (declared-but-unused), cross-layer cycles, and error-domain
// isolation. Non-strict callers simply never call this.
func CheckCapabilitiesStrict(reports []ModuleReport, diags *diagnostics.Diagnostics) {
	checkPurity(reports, diags)
	checkLayerCycles(reports, diags)
	checkErrorDomainIsolation(reports, diags)
}

func checkPurity(reports []ModuleReport, diags *diagnostics.Diagnostics) {
	for _, r := range reports {
		for _, cap := range r.Declared {
			if !r.Used[cap] {
				span := ast.NewBase(r.Unit.Program.Span()).Span()
				if len(r.Unit.Program.Requires) > 0 {
					span = r.Unit.Program.Requires[0].Span()
				}
				diags.Errorf(span, "unused capability %q declared by module %s", cap, r.Unit.Path)
			}
		}
	}
}

// moduleLayer returns the first path segment under "src/", or "" if the
// module's path doesn't contain one (e.g. virtual std modules, which are
// excluded from the layer graph).
func moduleLayer(path string) (string, bool) {
	idx := strings.Index(path, "src/")
	if idx < 0 {
		return "", false
	}
	rest := path[idx+len("src/"):]
	parts := strings.SplitN(rest, "/", 2)
	if parts[0] == "" {
		return "", false
	}
	return parts[0], true
}

func checkLayerCycles(reports []ModuleReport, diags *diagnostics.Diagnostics) {
	layerOf := make(map[modules.ModuleId]string)
	for _, r := range reports {
		if layer, ok := moduleLayer(r.Unit.Path); ok {
			layerOf[r.Unit.Id] = layer
		}
	}
	edges := make(map[string]map[string]bool)
	for _, r := range reports {
		from, ok := layerOf[r.Unit.Id]
		if !ok {
			continue
		}
		for _, link := range r.Unit.Modules {
			to, ok := layerOf[link.Id]
			if !ok || to == from {
				continue
			}
			if edges[from] == nil {
				edges[from] = make(map[string]bool)
			}
			edges[from][to] = true
		}
		for _, link := range r.Unit.ImportItems {
			to, ok := layerOf[link.Id]
			if !ok || to == from {
				continue
			}
			if edges[from] == nil {
				edges[from] = make(map[string]bool)
			}
			edges[from][to] = true
		}
	}

	reported := make(map[string]bool)
	layers := make([]string, 0, len(edges))
	for l := range edges {
		layers = append(layers, l)
	}
	sort.Strings(layers)

	var rootSpan ast.Node
	if len(reports) > 0 {
		rootSpan = reports[0].Unit.Program
	}

	for _, start := range layers {
		path := []string{start}
		onPath := map[string]bool{start: true}
		var walk func(cur string) bool
		walk = func(cur string) bool {
			next := make([]string, 0, len(edges[cur]))
			for n := range edges[cur] {
				next = append(next, n)
			}
			sort.Strings(next)
			for _, n := range next {
				if n == start {
					cycle := append(append([]string{}, path...), start)
					key := strings.Join(cycle, "->")
					if !reported[key] {
						reported[key] = true
						if rootSpan != nil {
							diags.Errorf(rootSpan.Span(), "cyclic layer dependency: %s", strings.Join(cycle, " -> "))
						}
					}
					return true
				}
				if onPath[n] {
					continue
				}
				onPath[n] = true
				path = append(path, n)
				if walk(n) {
					path = path[:len(path)-1]
					delete(onPath, n)
					return true
				}
				path = path[:len(path)-1]
				delete(onPath, n)
			}
			return false
		}
		walk(start)
	}
}

// checkErrorDomainIsolation requires the set of error domains appearing
// in a module's public boundary to have at most one owner module after
// resolving imports.
func checkErrorDomainIsolation(reports []ModuleReport, diags *diagnostics.Diagnostics) {
	for _, r := range reports {
		owners := make(map[string]map[string]bool) // domain name -> owning module paths
		record := func(t *Ty) {
			for _, d := range ErrorDomains(t) {
				if d.Kind != TStruct && d.Kind != TEnum {
					continue
				}
				owner := r.Unit.Path
				if link, ok := r.Unit.ImportItems[d.Name]; ok {
					for _, other := range reports {
						if other.Unit.Id == link.Id {
							owner = other.Unit.Path
						}
					}
				}
				if owners[d.Name] == nil {
					owners[d.Name] = make(map[string]bool)
				}
				owners[d.Name][owner] = true
			}
		}

		checker := NewChecker(r.Unit.Id, r.Unit, r.Syms, nil, &diagnostics.Diagnostics{})
		for name, fn := range r.Syms.Functions {
			_ = name
			sig := checker.resolveFnSig(fn)
			record(sig.Ret)
		}
		for _, svc := range r.Syms.Services {
			for _, route := range svc.Routes {
				record(checker.resolveTypeRef(route.RetType))
			}
		}

		names := make([]string, 0, len(owners))
		for n := range owners {
			names = append(names, n)
		}
		sort.Strings(names)
		for _, n := range names {
			ownerSet := owners[n]
			if len(ownerSet) <= 1 {
				continue
			}
			ownerNames := make([]string, 0, len(ownerSet))
			for o := range ownerSet {
				ownerNames = append(ownerNames, o)
			}
			sort.Strings(ownerNames)
			diags.Errorf(r.Unit.Program.Span(), "error domain %s has multiple owners: %s", n, strings.Join(ownerNames, ", "))
		}
	}
}
