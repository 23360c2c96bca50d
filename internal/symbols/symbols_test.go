package symbols

import (
	"strings"
	"testing"

	"github.com/fuselang/fuse/internal/diagnostics"
	"github.com/fuselang/fuse/internal/modules"
)

func collect(t *testing.T, src string) (*ModuleSymbols, *diagnostics.Diagnostics) {
	t.Helper()
	reg, loadDiags := modules.Load("/proj/main.fuse", src)
	if loadDiags.HasErrors() {
		t.Fatalf("load error: %v", loadDiags.All())
	}
	diags := &diagnostics.Diagnostics{}
	syms := Collect(reg.RootUnit(), diags)
	return syms, diags
}

func TestCollectKinds(t *testing.T) {
	src := "type User:\n  name: String\n" +
		"enum Shape:\n  case Circle(Float)\n" +
		"fn f():\n  print(1)\n" +
		"config App:\n  port: Int = 8080\n" +
		"service Api \"/api\":\n  get \"/x\" -> String:\n    return \"x\"\n" +
		"app \"main\":\n  print(1)\n" +
		"migration \"001\":\n  print(1)\n" +
		"test \"t\":\n  print(1)\n"
	syms, diags := collect(t, src)
	if diags.HasErrors() {
		t.Fatalf("diagnostics: %v", diags.All())
	}
	if syms.Types["User"] == nil || syms.Enums["Shape"] == nil || syms.Functions["f"] == nil {
		t.Error("missing type/enum/function")
	}
	if syms.Configs["App"] == nil || syms.Services["Api"] == nil {
		t.Error("missing config/service")
	}
	if syms.Apps["main"] == nil || syms.Migrations["001"] == nil || syms.Tests["t"] == nil {
		t.Error("missing app/migration/test")
	}
}

func TestDeriveExpansion(t *testing.T) {
	src := "type User:\n  name: String\n  password: String\n  email: String\n" +
		"type PublicUser = User without password\n"
	syms, diags := collect(t, src)
	if diags.HasErrors() {
		t.Fatalf("diagnostics: %v", diags.All())
	}
	fields := syms.DerivedFields["PublicUser"]
	if len(fields) != 2 {
		t.Fatalf("derived fields: %d", len(fields))
	}
	for _, f := range fields {
		if f.Name == "password" {
			t.Error("password not removed")
		}
	}
}

func TestTransitiveDerive(t *testing.T) {
	src := "type A:\n  x: Int\n  y: Int\n  z: Int\n" +
		"type B = A without x\n" +
		"type C = B without y\n"
	syms, diags := collect(t, src)
	if diags.HasErrors() {
		t.Fatalf("diagnostics: %v", diags.All())
	}
	fields := syms.DerivedFields["C"]
	if len(fields) != 1 || fields[0].Name != "z" {
		t.Errorf("C fields: %+v", fields)
	}
}

func TestCyclicDeriveDiagnosed(t *testing.T) {
	src := "type A = B without x\ntype B = A without y\n"
	_, diags := collect(t, src)
	found := false
	for _, d := range diags.All() {
		if strings.Contains(d.Message, "cyclic type derivation") {
			found = true
		}
	}
	if !found {
		t.Errorf("want cyclic-derivation diagnostic, got %v", diags.All())
	}
}

func TestUnknownWithoutFieldDiagnosed(t *testing.T) {
	src := "type User:\n  name: String\ntype P = User without nope\n"
	syms, diags := collect(t, src)
	if !diags.HasErrors() {
		t.Fatal("want diagnostic for unknown without-field")
	}
	// The filtered field list is still produced.
	if len(syms.DerivedFields["P"]) != 1 {
		t.Errorf("P fields: %+v", syms.DerivedFields["P"])
	}
}

func TestDuplicateTopLevelName(t *testing.T) {
	src := "fn f():\n  print(1)\nfn f():\n  print(2)\n"
	syms, diags := collect(t, src)
	if !diags.HasErrors() {
		t.Fatal("want duplicate-name diagnostic")
	}
	// First declaration wins.
	if syms.Functions["f"] == nil {
		t.Error("first f lost")
	}
}
