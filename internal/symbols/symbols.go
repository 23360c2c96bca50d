// Package symbols implements per-module symbol collection and the
// type-derivation pre-pass: derivations are expanded first, then every
// top-level name is collected into a ModuleSymbols table.
package symbols

import (
	"github.com/fuselang/fuse/internal/ast"
	"github.com/fuselang/fuse/internal/diagnostics"
	"github.com/fuselang/fuse/internal/modules"
)

// ImportKind distinguishes a module-style import from a named-item import.
type ImportKind int

const (
	ImportModule ImportKind = iota
	ImportItem
)

// ModuleSymbols is the per-module table of top-level names.
type ModuleSymbols struct {
	Functions  map[string]*ast.FnDecl
	Types      map[string]*ast.TypeDecl
	Enums      map[string]*ast.EnumDecl
	Configs    map[string]*ast.ConfigDecl
	Services   map[string]*ast.ServiceDecl
	Apps       map[string]*ast.AppDecl
	Migrations map[string]*ast.MigrationDecl
	Tests      map[string]*ast.TestDecl
	Imports    map[string]ImportKind

	// DerivedFields holds the resolved field list for every TypeDecl that
	// carries a `derive` clause, keyed by type name, after expansion.
	DerivedFields map[string][]*ast.FieldDecl
}

func newModuleSymbols() *ModuleSymbols {
	return &ModuleSymbols{
		Functions:     make(map[string]*ast.FnDecl),
		Types:         make(map[string]*ast.TypeDecl),
		Enums:         make(map[string]*ast.EnumDecl),
		Configs:       make(map[string]*ast.ConfigDecl),
		Services:      make(map[string]*ast.ServiceDecl),
		Apps:          make(map[string]*ast.AppDecl),
		Migrations:    make(map[string]*ast.MigrationDecl),
		Tests:         make(map[string]*ast.TestDecl),
		Imports:       make(map[string]ImportKind),
		DerivedFields: make(map[string][]*ast.FieldDecl),
	}
}

// Collect builds a ModuleSymbols for one already-loaded module, expanding
// type derivations first so DerivedFields is populated before any later
// pass needs it.
func Collect(unit *modules.ModuleUnit, diags *diagnostics.Diagnostics) *ModuleSymbols {
	syms := newModuleSymbols()

	typeDecls := make(map[string]*ast.TypeDecl)
	for _, item := range unit.Program.Items {
		if td, ok := item.(*ast.TypeDecl); ok {
			typeDecls[td.Name] = td
		}
	}
	for name, td := range typeDecls {
		if td.Derive != nil {
			resolveDerivation(name, typeDecls, syms.DerivedFields, make(map[string]bool), diags)
		}
	}

	declared := make(map[string]bool)
	dup := func(name string, span ast.Node) bool {
		if declared[name] {
			diags.Errorf(span.Span(), "duplicate top-level name %s", name)
			return true
		}
		declared[name] = true
		return false
	}

	for _, item := range unit.Program.Items {
		switch decl := item.(type) {
		case *ast.FnDecl:
			if !dup(decl.Name, decl) {
				syms.Functions[decl.Name] = decl
			}
		case *ast.TypeDecl:
			if !dup(decl.Name, decl) {
				syms.Types[decl.Name] = decl
			}
		case *ast.EnumDecl:
			if !dup(decl.Name, decl) {
				syms.Enums[decl.Name] = decl
			}
		case *ast.ConfigDecl:
			if !dup(decl.Name, decl) {
				syms.Configs[decl.Name] = decl
			}
		case *ast.ServiceDecl:
			if !dup(decl.Name, decl) {
				syms.Services[decl.Name] = decl
			}
		case *ast.AppDecl:
			if !dup(decl.Name, decl) {
				syms.Apps[decl.Name] = decl
			}
		case *ast.MigrationDecl:
			if !dup(decl.Name, decl) {
				syms.Migrations[decl.Name] = decl
			}
		case *ast.TestDecl:
			if !dup(decl.Name, decl) {
				syms.Tests[decl.Name] = decl
			}
		}
	}

	for alias := range unit.Modules {
		syms.Imports[alias] = ImportModule
	}
	for name := range unit.ImportItems {
		syms.Imports[name] = ImportItem
	}

	return syms
}

// CollectRegistry runs Collect over every module in reg, in ascending
// ModuleId order, returning a table keyed by ModuleId.
func CollectRegistry(reg *modules.Registry, diags *diagnostics.Diagnostics) map[modules.ModuleId]*ModuleSymbols {
	out := make(map[modules.ModuleId]*ModuleSymbols)
	for _, unit := range reg.Ordered() {
		out[unit.Id] = Collect(unit, diags)
	}
	return out
}

// resolveDerivation recurses into base's derive clause (or its raw fields
// if none), subtracts any field named in `without`, and memoizes the
// result into out[name]. A cycle is diagnosed where it closes and that
// call returns nil without storing anything; the enclosing calls on the
// cycle then carry on with an empty base, so each of those types is stored
// in `out` with no fields (and its `without` names are reported as
// unknown). An unknown base or unknown `without` field name is diagnosed
// but the filtered list is still produced.
func resolveDerivation(name string, typeDecls map[string]*ast.TypeDecl, out map[string][]*ast.FieldDecl, visiting map[string]bool, diags *diagnostics.Diagnostics) []*ast.FieldDecl {
	if fields, ok := out[name]; ok {
		return fields
	}
	td, ok := typeDecls[name]
	if !ok {
		return nil
	}
	if td.Derive == nil {
		out[name] = td.Fields
		return td.Fields
	}
	if visiting[name] {
		diags.Errorf(td.Span(), "cyclic type derivation for %s", name)
		return nil
	}
	visiting[name] = true
	defer delete(visiting, name)

	var baseFields []*ast.FieldDecl
	if baseTd, ok := typeDecls[td.Derive.Base]; ok {
		if baseTd.Derive != nil {
			baseFields = resolveDerivation(td.Derive.Base, typeDecls, out, visiting, diags)
		} else {
			baseFields = baseTd.Fields
		}
	} else {
		diags.Errorf(td.Span(), "unknown derivation base %s for type %s", td.Derive.Base, name)
	}

	without := make(map[string]bool, len(td.Derive.Without))
	for _, w := range td.Derive.Without {
		without[w] = true
	}
	baseFieldNames := make(map[string]bool, len(baseFields))
	for _, f := range baseFields {
		baseFieldNames[f.Name] = true
	}
	for w := range without {
		if !baseFieldNames[w] {
			diags.Errorf(td.Span(), "unknown field %s in without-clause of %s", w, name)
		}
	}

	var resolved []*ast.FieldDecl
	for _, f := range baseFields {
		if !without[f.Name] {
			resolved = append(resolved, f)
		}
	}
	out[name] = resolved
	return resolved
}
