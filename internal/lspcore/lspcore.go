// Package lspcore holds the pure analysis functions the LSP transport in
// cmd/fuse-lsp drives: snapshot construction over in-memory
// buffers, per-snapshot diagnostics, hover/definition/completion lookups,
// and formatting. Everything here is a function over an immutable
// Snapshot; the transport owns document state and protocol plumbing.
package lspcore

import (
	"sort"
	"strings"

	"github.com/fuselang/fuse/internal/ast"
	"github.com/fuselang/fuse/internal/canon"
	"github.com/fuselang/fuse/internal/diagnostics"
	"github.com/fuselang/fuse/internal/fmtprinter"
	"github.com/fuselang/fuse/internal/lexer"
	"github.com/fuselang/fuse/internal/modules"
	"github.com/fuselang/fuse/internal/symbols"
	"github.com/fuselang/fuse/internal/token"
	"github.com/fuselang/fuse/internal/typesystem"
)

// Snapshot is one consistent view of a program: the loaded registry, its
// symbol tables, and every diagnostic the front end and checker produced.
type Snapshot struct {
	Entry string
	Reg   *modules.Registry
	Syms  map[modules.ModuleId]*symbols.ModuleSymbols
	Diags []diagnostics.Diag
}

// Options tunes snapshot analysis. Strict forces capability validation
// even when no module declares `requires` (workspace-config opt-in).
type Options struct {
	Strict bool
}

// Analyze builds a Snapshot for entryPath, with overrides supplying
// in-memory text for unsaved buffers.
// Edits relink at the module-registry level: the registry is rebuilt from
// the buffers, and every downstream structure derives from it.
func Analyze(entryPath, src string, overrides map[string]string, opts Options) *Snapshot {
	reg, diags := modules.LoadWithOverrides(entryPath, src, overrides)
	all := &diagnostics.Diagnostics{}
	all.Extend(diags)

	canon.Registry(reg)
	syms := symbols.CollectRegistry(reg, all)

	strict := opts.Strict
	var reports []typesystem.ModuleReport
	for _, unit := range reg.Ordered() {
		checker := typesystem.NewChecker(unit.Id, unit, syms[unit.Id], syms, all)
		checker.CheckProgram()
		var declared []string
		for _, req := range unit.Program.Requires {
			declared = append(declared, req.Capabilities...)
		}
		if len(declared) > 0 {
			strict = true
		}
		reports = append(reports, typesystem.ModuleReport{
			Unit:     unit,
			Syms:     syms[unit.Id],
			Declared: declared,
			Used:     typesystem.NormalizeUsed(checker.UsedCapabilities()),
		})
	}
	if strict {
		typesystem.CheckCapabilitiesStrict(reports, all)
	}

	all.SortBySpan()
	return &Snapshot{Entry: entryPath, Reg: reg, Syms: syms, Diags: all.All()}
}

// FormatSource is the formatter surface.
func FormatSource(text string) (string, []diagnostics.Diag) {
	return fmtprinter.FormatSource(text)
}

// UnitFor finds the loaded module behind a filesystem path.
func (s *Snapshot) UnitFor(path string) *modules.ModuleUnit {
	for _, unit := range s.Reg.Ordered() {
		if unit.Path == path {
			return unit
		}
	}
	return nil
}

// identAt lexes src and returns the identifier token covering offset.
func identAt(src string, offset int) (string, token.Span, bool) {
	toks, _ := lexer.New(src)
	for _, t := range toks {
		if t.Kind == token.IDENT && t.Span.Start <= offset && offset < t.Span.End {
			return t.Lexeme, t.Span, true
		}
	}
	return "", token.Span{}, false
}

// Hover renders a declaration summary for the identifier at offset in the
// given buffer, resolving through the module's own symbols and its
// named-item imports.
func (s *Snapshot) Hover(path, src string, offset int) (string, bool) {
	name, _, ok := identAt(src, offset)
	if !ok {
		return "", false
	}
	unit := s.UnitFor(path)
	if unit == nil {
		return "", false
	}
	_, decl, found := s.resolve(unit, name)
	if !found {
		return "", false
	}
	return declSummary(decl), true
}

// Definition resolves the identifier at offset to its declaration site.
func (s *Snapshot) Definition(path, src string, offset int) (string, token.Span, bool) {
	name, _, ok := identAt(src, offset)
	if !ok {
		return "", token.Span{}, false
	}
	unit := s.UnitFor(path)
	if unit == nil {
		return "", token.Span{}, false
	}
	target, decl, found := s.resolve(unit, name)
	if !found {
		return "", token.Span{}, false
	}
	return target.Path, decl.Span(), true
}

// resolve looks a top-level name up in unit's own symbols, then through
// its named-item imports (the engine's identifier-resolution order, minus
// locals, which a top-level index cannot see).
func (s *Snapshot) resolve(unit *modules.ModuleUnit, name string) (*modules.ModuleUnit, ast.Node, bool) {
	if decl, ok := lookupDecl(s.Syms[unit.Id], name); ok {
		return unit, decl, true
	}
	if link, ok := unit.ImportItems[name]; ok {
		target := s.Reg.Modules[link.Id]
		if target != nil {
			if decl, ok := lookupDecl(s.Syms[target.Id], name); ok {
				return target, decl, true
			}
		}
	}
	return nil, nil, false
}

func lookupDecl(syms *symbols.ModuleSymbols, name string) (ast.Node, bool) {
	if syms == nil {
		return nil, false
	}
	if d, ok := syms.Functions[name]; ok {
		return d, true
	}
	if d, ok := syms.Types[name]; ok {
		return d, true
	}
	if d, ok := syms.Enums[name]; ok {
		return d, true
	}
	if d, ok := syms.Configs[name]; ok {
		return d, true
	}
	if d, ok := syms.Services[name]; ok {
		return d, true
	}
	return nil, false
}

func declSummary(decl ast.Node) string {
	switch d := decl.(type) {
	case *ast.FnDecl:
		params := make([]string, len(d.Params))
		for i, p := range d.Params {
			params[i] = p.Name + ": " + p.Type.String()
		}
		sig := "fn " + d.Name + "(" + strings.Join(params, ", ") + ")"
		if d.Ret != nil {
			sig += " -> " + d.Ret.String()
		}
		if d.Doc != "" {
			sig += "\n\n" + d.Doc
		}
		return sig
	case *ast.TypeDecl:
		fields := make([]string, len(d.Fields))
		for i, f := range d.Fields {
			fields[i] = "  " + f.Name + ": " + f.Type.String()
		}
		out := "type " + d.Name + ":\n" + strings.Join(fields, "\n")
		if d.Doc != "" {
			out += "\n\n" + d.Doc
		}
		return out
	case *ast.EnumDecl:
		variants := make([]string, len(d.Variants))
		for i, v := range d.Variants {
			variants[i] = "  case " + v.Name
		}
		return "enum " + d.Name + ":\n" + strings.Join(variants, "\n")
	case *ast.ConfigDecl:
		fields := make([]string, len(d.Fields))
		for i, f := range d.Fields {
			fields[i] = "  " + f.Name + ": " + f.Type.String()
		}
		return "config " + d.Name + ":\n" + strings.Join(fields, "\n")
	case *ast.ServiceDecl:
		return "service " + d.Name + " (" + strings.TrimSpace(d.BasePath) + ")"
	}
	return ""
}

// CompletionItem is one completion candidate with a coarse kind label the
// transport maps onto protocol kinds.
type CompletionItem struct {
	Label string
	Kind  string // "function", "type", "enum", "config", "service", "keyword"
}

var keywordCompletions = []string{
	"import", "type", "enum", "fn", "service", "config", "app",
	"migration", "test", "let", "var", "return", "if", "else", "match",
	"case", "for", "in", "while", "break", "continue", "spawn", "await",
	"box", "requires",
}

// Completions lists every top-level name visible in path's module plus
// the statement keywords, sorted by label.
func (s *Snapshot) Completions(path string) []CompletionItem {
	var out []CompletionItem
	unit := s.UnitFor(path)
	if unit != nil {
		if syms := s.Syms[unit.Id]; syms != nil {
			for name := range syms.Functions {
				out = append(out, CompletionItem{Label: name, Kind: "function"})
			}
			for name := range syms.Types {
				out = append(out, CompletionItem{Label: name, Kind: "type"})
			}
			for name := range syms.Enums {
				out = append(out, CompletionItem{Label: name, Kind: "enum"})
			}
			for name := range syms.Configs {
				out = append(out, CompletionItem{Label: name, Kind: "config"})
			}
			for name := range syms.Services {
				out = append(out, CompletionItem{Label: name, Kind: "service"})
			}
			for name := range unit.ImportItems {
				out = append(out, CompletionItem{Label: name, Kind: "type"})
			}
		}
	}
	for _, kw := range keywordCompletions {
		out = append(out, CompletionItem{Label: kw, Kind: "keyword"})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Label < out[j].Label })
	return out
}
