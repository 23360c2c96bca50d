package modules

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fuselang/fuse/internal/ast"
	"github.com/fuselang/fuse/internal/diagnostics"
	"github.com/fuselang/fuse/internal/lexer"
	"github.com/fuselang/fuse/internal/parser"
)

// SourceReader abstracts "read the text behind this resolved path", so the
// LSP collaborator can serve in-memory buffers without touching disk
// (the with-overrides entry point).
type SourceReader func(path string) (string, bool, error)

// Loader resolves imports transitively into a Registry: a path-keyed
// cache dedupes already-loaded modules (which is also what breaks import
// cycles) and ids are handed out in load-encounter order.
type Loader struct {
	Deps        map[string]string // dependency name -> package root, from [dependencies]
	PackageRoot string            // root manifest's package root, for "root:<path>"
	Read        SourceReader

	byPath  map[string]ModuleId
	nextId  ModuleId
	reg     *Registry
	diags   *diagnostics.Diagnostics
}

func defaultReader(path string) (string, bool, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", false, err
	}
	return string(b), true, nil
}

// Load is the full entry point: filesystem access, no explicit dependency
// override.
func Load(entryPath string, src string) (*Registry, *diagnostics.Diagnostics) {
	return newLoader(nil, filepath.Dir(entryPath), defaultReader).load(entryPath, src)
}

// LoadWithDeps is the with-deps entry point: an explicit dependency table
// override (e.g. parsed from a root manifest by the caller).
func LoadWithDeps(entryPath, src string, deps map[string]string) (*Registry, *diagnostics.Diagnostics) {
	return newLoader(deps, filepath.Dir(entryPath), defaultReader).load(entryPath, src)
}

// LoadWithOverrides is the LSP entry point: in-memory text takes precedence
// over disk for any path present in overrides.
func LoadWithOverrides(entryPath, src string, overrides map[string]string) (*Registry, *diagnostics.Diagnostics) {
	reader := func(path string) (string, bool, error) {
		if text, ok := overrides[path]; ok {
			return text, true, nil
		}
		return defaultReader(path)
	}
	return newLoader(nil, filepath.Dir(entryPath), reader).load(entryPath, src)
}

func newLoader(deps map[string]string, packageRoot string, read SourceReader) *Loader {
	return &Loader{
		Deps:        deps,
		PackageRoot: packageRoot,
		Read:        read,
		byPath:      make(map[string]ModuleId),
		reg:         newRegistry(),
		diags:       &diagnostics.Diagnostics{},
	}
}

func (l *Loader) load(entryPath, src string) (*Registry, *diagnostics.Diagnostics) {
	rootId := l.parseAndRegister(entryPath, src, false)
	l.reg.Root = rootId
	if l.diags.HasErrors() {
		return l.reg, l.diags
	}

	// Breadth-first resolve imports for every module discovered so far;
	// newly discovered modules extend the loop (registry is append-only).
	for i := 0; i < len(l.reg.order); i++ {
		unit := l.reg.Modules[l.reg.order[i]]
		l.resolveImports(unit)
	}
	return l.reg, l.diags
}

func (l *Loader) parseAndRegister(path, src string, virtual bool) ModuleId {
	if id, ok := l.byPath[path]; ok {
		return id
	}
	toks, lexDiags := lexer.New(src)
	l.diags.Extend(lexDiags)
	prog, parseDiags := parser.Parse(toks)
	l.diags.Extend(parseDiags)

	id := l.nextId
	l.nextId++
	unit := &ModuleUnit{
		Id:          id,
		Path:        path,
		Program:     prog,
		Modules:     make(map[string]ModuleLink),
		ImportItems: make(map[string]ModuleLink),
		IsVirtual:   virtual,
	}
	l.byPath[path] = id
	l.reg.add(unit)
	return id
}

func (l *Loader) resolveImports(unit *ModuleUnit) {
	seenNames := make(map[string]bool)
	for _, imp := range unit.Program.Items {
		i, ok := imp.(*ast.Import)
		if !ok {
			continue
		}
		target, virtual, err := l.resolvePath(filepath.Dir(unit.Path), i.Path)
		if err != nil {
			l.diags.Errorf(i.Span(), "cannot resolve import %q: %v", i.Path, err)
			continue
		}

		var targetId ModuleId
		if id, ok := l.byPath[target]; ok {
			targetId = id
		} else if virtual {
			targetId = l.parseAndRegister(target, stdModuleSource(target), true)
		} else {
			text, found, rerr := l.Read(target)
			if rerr != nil || !found {
				l.diags.Errorf(i.Span(), "cannot read module %q: %v", target, rerr)
				continue
			}
			targetId = l.parseAndRegister(target, text, false)
		}

		if i.ModuleAlias != "" {
			unit.Modules[i.ModuleAlias] = ModuleLink{Id: targetId}
		}
		for _, name := range i.Names {
			localName := name.Name
			if name.Alias != "" {
				localName = name.Alias
			}
			if seenNames[localName] {
				l.diags.Errorf(i.Span(), "duplicate import %s", localName)
				l.diags.Errorf(i.Span(), "previous import of %s here", localName)
			}
			seenNames[localName] = true
			unit.ImportItems[localName] = ModuleLink{Id: targetId}
		}
	}
}

// resolvePath applies the four import-resolution rules in order:
// relative, root:, dep:, and std.* virtual modules.
func (l *Loader) resolvePath(fromDir, raw string) (string, bool, error) {
	switch {
	case strings.HasPrefix(raw, "./") || strings.HasPrefix(raw, "../"):
		p := filepath.Join(fromDir, raw)
		if !strings.HasSuffix(p, ".fuse") {
			p += ".fuse"
		}
		return p, false, nil
	case strings.HasPrefix(raw, "root:"):
		rel := strings.TrimPrefix(raw, "root:")
		return filepath.Join(l.PackageRoot, rel), false, nil
	case strings.HasPrefix(raw, "dep:"):
		rest := strings.TrimPrefix(raw, "dep:")
		parts := strings.SplitN(rest, "/", 2)
		if len(parts) != 2 {
			return "", false, fmt.Errorf("malformed dep import %q", raw)
		}
		depPath, ok := l.Deps[parts[0]]
		if !ok {
			return "", false, fmt.Errorf("unknown dependency %q", parts[0])
		}
		p := filepath.Join(depPath, parts[1])
		if !strings.HasSuffix(p, ".fuse") {
			p += ".fuse"
		}
		return p, false, nil
	case strings.HasPrefix(raw, "std.") || strings.HasPrefix(raw, "std/"):
		return "<" + raw + ">", true, nil
	default:
		p := filepath.Join(fromDir, raw)
		if !strings.HasSuffix(p, ".fuse") {
			p += ".fuse"
		}
		return p, false, nil
	}
}
