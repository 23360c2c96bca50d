package lspcore

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const mainSrc = "## greets a user\n" +
	"fn greet(name: String) -> String:\n" +
	"  return \"hi ${name}\"\n" +
	"type User:\n" +
	"  name: String\n" +
	"app \"main\":\n" +
	"  print(greet(\"ada\"))\n"

func analyze(t *testing.T, src string) *Snapshot {
	t.Helper()
	return Analyze("/proj/main.fuse", src, map[string]string{"/proj/main.fuse": src}, Options{})
}

func TestDiagnosticsClean(t *testing.T) {
	snap := analyze(t, mainSrc)
	for _, d := range snap.Diags {
		t.Errorf("unexpected diagnostic: %v", d)
	}
}

func TestDiagnosticsReported(t *testing.T) {
	snap := analyze(t, "fn f() -> Int:\n  return unknown_name\n")
	if len(snap.Diags) == 0 {
		t.Error("want diagnostics for unknown identifier")
	}
}

func TestHoverOnFunction(t *testing.T) {
	snap := analyze(t, mainSrc)
	offset := strings.Index(mainSrc, "greet(\"ada\")")
	text, ok := snap.Hover("/proj/main.fuse", mainSrc, offset)
	if !ok {
		t.Fatal("no hover")
	}
	if !strings.Contains(text, "fn greet(name: String) -> String") {
		t.Errorf("hover: %q", text)
	}
	if !strings.Contains(text, "greets a user") {
		t.Errorf("hover must include the doc comment: %q", text)
	}
}

func TestDefinition(t *testing.T) {
	snap := analyze(t, mainSrc)
	useSite := strings.Index(mainSrc, "greet(\"ada\")")
	path, span, ok := snap.Definition("/proj/main.fuse", mainSrc, useSite)
	if !ok {
		t.Fatal("no definition")
	}
	if path != "/proj/main.fuse" {
		t.Errorf("path: %s", path)
	}
	declSite := strings.Index(mainSrc, "fn greet")
	if span.Start < declSite || span.Start > declSite+len("fn greet") {
		t.Errorf("span %v, decl at %d", span, declSite)
	}
}

func TestDefinitionAcrossModules(t *testing.T) {
	lib := "fn helper() -> Int:\n  return 7\n"
	main := "import { helper } from \"./lib\"\napp \"main\":\n  print(helper())\n"
	snap := Analyze("/proj/main.fuse", main, map[string]string{
		"/proj/main.fuse": main,
		"/proj/lib.fuse":  lib,
	}, Options{})
	useSite := strings.Index(main, "helper())")
	path, _, ok := snap.Definition("/proj/main.fuse", main, useSite)
	if !ok {
		t.Fatal("no cross-module definition")
	}
	if path != "/proj/lib.fuse" {
		t.Errorf("path: %s", path)
	}
}

func TestCompletions(t *testing.T) {
	snap := analyze(t, mainSrc)
	items := snap.Completions("/proj/main.fuse")
	var haveGreet, haveUser, haveLet bool
	for _, item := range items {
		switch {
		case item.Label == "greet" && item.Kind == "function":
			haveGreet = true
		case item.Label == "User" && item.Kind == "type":
			haveUser = true
		case item.Label == "let" && item.Kind == "keyword":
			haveLet = true
		}
	}
	if !haveGreet || !haveUser || !haveLet {
		t.Errorf("completions missing entries: greet=%t user=%t let=%t", haveGreet, haveUser, haveLet)
	}
}

func TestFormatSourceDelegates(t *testing.T) {
	out, diags := FormatSource("fn f(a: Int) -> Int:\n    return a\n")
	if len(diags) != 0 {
		t.Fatalf("diags: %v", diags)
	}
	if out != "fn f(a: Int) -> Int:\n  return a\n" {
		t.Errorf("formatted: %q", out)
	}
}

// Relinking happens at the registry level: a new overrides map yields a
// consistent new snapshot without touching disk.
func TestRelinkWithEditedBuffer(t *testing.T) {
	lib := "fn helper() -> Int:\n  return 7\n"
	main := "import { helper } from \"./lib\"\napp \"main\":\n  print(helper())\n"
	overrides := map[string]string{"/proj/main.fuse": main, "/proj/lib.fuse": lib}
	snap := Analyze("/proj/main.fuse", main, overrides, Options{})
	if len(snap.Diags) != 0 {
		t.Fatalf("diags: %v", snap.Diags)
	}

	// Break the helper; the relinked snapshot must surface the error.
	overrides["/proj/lib.fuse"] = "fn helper() -> Int:\n  return missing\n"
	snap2 := Analyze("/proj/main.fuse", main, overrides, Options{})
	if len(snap2.Diags) == 0 {
		t.Error("edited buffer did not produce diagnostics")
	}
}

func TestWorkspaceConfig(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "fuse-workspace.yaml"), []byte("strict: true\nroots:\n  - src/main.fuse\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadWorkspaceConfig(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !cfg.Strict || len(cfg.Roots) != 1 {
		t.Errorf("config: %+v", cfg)
	}

	empty, err := LoadWorkspaceConfig(t.TempDir())
	if err != nil || empty.Strict {
		t.Errorf("missing file: %+v err %v", empty, err)
	}
}
