// Package modules implements the module loader and registry: imports are
// resolved transitively through a path-keyed cache into an append-only
// registry of parsed modules, linked by stable integer ModuleIds rather
// than pointers so mutual imports stay cycle-free.
package modules

import (
	"github.com/fuselang/fuse/internal/ast"
)

// ModuleId is a stable integer assigned in load-encounter order; id 0 is
// always the root module.
type ModuleId int

// ModuleLink is a resolved reference to another module by id.
type ModuleLink struct {
	Id ModuleId
}

// ImportKind distinguishes a module-style import from a named-item import,
// recorded in ModuleSymbols.Imports downstream.
type ImportKind int

const (
	ImportModule ImportKind = iota
	ImportItem
)

// ModuleUnit is one loaded module: its parsed program plus its resolved
// import edges.
type ModuleUnit struct {
	Id      ModuleId
	Path    string // filesystem path, or "<std…>" for virtual modules
	Program *ast.Program

	Modules     map[string]ModuleLink // alias -> module-style import target
	ImportItems map[string]ModuleLink // name -> named-item import target

	IsVirtual bool
}

// Registry is the append-only collection of loaded modules, linked by
// resolved ids. Mutual imports are permitted, so the links may form
// cycles; the loader's "already loaded" dedup keeps each path loaded once,
// and nothing here rejects a cycle.
type Registry struct {
	Modules map[ModuleId]*ModuleUnit
	Root    ModuleId
	order   []ModuleId
}

func newRegistry() *Registry {
	return &Registry{Modules: make(map[ModuleId]*ModuleUnit)}
}

// RootUnit returns the root module, or nil if nothing was loaded.
func (r *Registry) RootUnit() *ModuleUnit {
	return r.Modules[r.Root]
}

// Ordered returns every module in load-encounter (ascending id) order, the
// iteration order every later pass is required to use.
func (r *Registry) Ordered() []*ModuleUnit {
	out := make([]*ModuleUnit, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.Modules[id])
	}
	return out
}

func (r *Registry) add(unit *ModuleUnit) {
	r.Modules[unit.Id] = unit
	r.order = append(r.order, unit.Id)
}
