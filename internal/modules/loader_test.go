package modules

import (
	"strings"
	"testing"
)

func TestLoadSingleModule(t *testing.T) {
	reg, diags := Load("/proj/main.fuse", "fn main():\n  print(1)\n")
	if diags.HasErrors() {
		t.Fatalf("diagnostics: %v", diags.All())
	}
	if reg.Root != 0 {
		t.Errorf("root id: %d", reg.Root)
	}
	if len(reg.Modules) != 1 {
		t.Errorf("module count: %d", len(reg.Modules))
	}
}

func TestRelativeImportWithOverrides(t *testing.T) {
	main := "import { helper } from \"./lib\"\nfn main():\n  print(helper())\n"
	lib := "fn helper() -> Int:\n  return 7\n"
	reg, diags := LoadWithOverrides("/proj/main.fuse", main, map[string]string{
		"/proj/lib.fuse": lib,
	})
	if diags.HasErrors() {
		t.Fatalf("diagnostics: %v", diags.All())
	}
	if len(reg.Modules) != 2 {
		t.Fatalf("module count: %d", len(reg.Modules))
	}
	root := reg.RootUnit()
	link, ok := root.ImportItems["helper"]
	if !ok {
		t.Fatal("helper not in import_items")
	}
	if _, ok := reg.Modules[link.Id]; !ok {
		t.Errorf("link id %d not in registry", link.Id)
	}
}

func TestMutualImportsAllowed(t *testing.T) {
	a := "import { b } from \"./b\"\nfn a() -> Int:\n  return 1\n"
	b := "import { a } from \"./a\"\nfn b() -> Int:\n  return 2\n"
	reg, diags := LoadWithOverrides("/proj/a.fuse", a, map[string]string{
		"/proj/a.fuse": a,
		"/proj/b.fuse": b,
	})
	if diags.HasErrors() {
		t.Fatalf("diagnostics: %v", diags.All())
	}
	if len(reg.Modules) != 2 {
		t.Errorf("module count: %d", len(reg.Modules))
	}
}

func TestDuplicateNamedImport(t *testing.T) {
	main := "import { x } from \"./a\"\nimport { x } from \"./b\"\nfn main():\n  print(x)\n"
	_, diags := LoadWithOverrides("/proj/main.fuse", main, map[string]string{
		"/proj/a.fuse": "fn x():\n  return\n",
		"/proj/b.fuse": "fn x():\n  return\n",
	})
	var dup, prev bool
	for _, d := range diags.All() {
		if strings.Contains(d.Message, "duplicate import x") {
			dup = true
		}
		if strings.Contains(d.Message, "previous import of x") {
			prev = true
		}
	}
	if !dup || !prev {
		t.Errorf("want both duplicate-import diagnostics, got %v", diags.All())
	}
}

func TestStdImportIsVirtual(t *testing.T) {
	main := "import http from \"std.http\"\nfn main():\n  print(1)\n"
	reg, diags := LoadWithOverrides("/proj/main.fuse", main, nil)
	if diags.HasErrors() {
		t.Fatalf("diagnostics: %v", diags.All())
	}
	var virtual *ModuleUnit
	for _, unit := range reg.Ordered() {
		if unit.IsVirtual {
			virtual = unit
		}
	}
	if virtual == nil {
		t.Fatal("no virtual module loaded")
	}
	if !strings.HasPrefix(virtual.Path, "<") {
		t.Errorf("virtual path must start with '<': %q", virtual.Path)
	}
}

func TestDepImportResolution(t *testing.T) {
	main := "import { util } from \"dep:toolkit/util\"\nfn main():\n  print(util())\n"
	reg, diags := newLoader(
		map[string]string{"toolkit": "/deps/toolkit"},
		"/proj",
		func(path string) (string, bool, error) {
			if path == "/deps/toolkit/util.fuse" {
				return "fn util() -> Int:\n  return 3\n", true, nil
			}
			return "", false, nil
		},
	).load("/proj/main.fuse", main)
	if diags.HasErrors() {
		t.Fatalf("diagnostics: %v", diags.All())
	}
	if len(reg.Modules) != 2 {
		t.Errorf("module count: %d", len(reg.Modules))
	}
}

func TestUnknownDependencyDiagnosed(t *testing.T) {
	main := "import { x } from \"dep:nope/x\"\nfn main():\n  print(1)\n"
	_, diags := LoadWithOverrides("/proj/main.fuse", main, nil)
	if !diags.HasErrors() {
		t.Fatal("want a diagnostic for unknown dependency")
	}
}

// Every ModuleLink id resolves to a registry entry.
func TestAllLinksResolve(t *testing.T) {
	main := "import { helper } from \"./lib\"\nimport other from \"./other\"\nfn main():\n  print(1)\n"
	reg, diags := LoadWithOverrides("/proj/main.fuse", main, map[string]string{
		"/proj/lib.fuse":   "fn helper():\n  return\n",
		"/proj/other.fuse": "fn o():\n  return\n",
	})
	if diags.HasErrors() {
		t.Fatalf("diagnostics: %v", diags.All())
	}
	for _, unit := range reg.Ordered() {
		for alias, link := range unit.Modules {
			if _, ok := reg.Modules[link.Id]; !ok {
				t.Errorf("alias %s links to missing module %d", alias, link.Id)
			}
		}
		for name, link := range unit.ImportItems {
			if _, ok := reg.Modules[link.Id]; !ok {
				t.Errorf("item %s links to missing module %d", name, link.Id)
			}
		}
	}
}

func TestIdsAssignedInLoadOrder(t *testing.T) {
	main := "import { a } from \"./a\"\nimport { b } from \"./b\"\nfn main():\n  print(1)\n"
	reg, diags := LoadWithOverrides("/proj/main.fuse", main, map[string]string{
		"/proj/a.fuse": "fn a():\n  return\n",
		"/proj/b.fuse": "fn b():\n  return\n",
	})
	if diags.HasErrors() {
		t.Fatalf("diagnostics: %v", diags.All())
	}
	ordered := reg.Ordered()
	for i, unit := range ordered {
		if int(unit.Id) != i {
			t.Errorf("position %d holds id %d", i, unit.Id)
		}
	}
	if ordered[1].Path != "/proj/a.fuse" {
		t.Errorf("first import should get id 1, got %s", ordered[1].Path)
	}
}
