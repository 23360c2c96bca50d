package typesystem

import (
	"strings"
	"testing"

	"github.com/fuselang/fuse/internal/canon"
	"github.com/fuselang/fuse/internal/diagnostics"
	"github.com/fuselang/fuse/internal/modules"
	"github.com/fuselang/fuse/internal/symbols"
)

func check(t *testing.T, src string) *diagnostics.Diagnostics {
	t.Helper()
	diags, _ := checkWithReports(t, src)
	return diags
}

func checkWithReports(t *testing.T, src string) (*diagnostics.Diagnostics, []ModuleReport) {
	t.Helper()
	reg, loadDiags := modules.Load("/proj/src/app/main.fuse", src)
	if loadDiags.HasErrors() {
		t.Fatalf("load error: %v", loadDiags.All())
	}
	canon.Registry(reg)
	diags := &diagnostics.Diagnostics{}
	syms := symbols.CollectRegistry(reg, diags)
	var reports []ModuleReport
	for _, unit := range reg.Ordered() {
		c := NewChecker(unit.Id, unit, syms[unit.Id], syms, diags)
		c.CheckProgram()
		var declared []string
		for _, req := range unit.Program.Requires {
			declared = append(declared, req.Capabilities...)
		}
		reports = append(reports, ModuleReport{
			Unit:     unit,
			Syms:     syms[unit.Id],
			Declared: declared,
			Used:     NormalizeUsed(c.UsedCapabilities()),
		})
	}
	return diags, reports
}

func TestWellTypedProgram(t *testing.T) {
	src := "fn add(a: Int, b: Int) -> Int:\n  return a + b\n" +
		"fn main():\n  print(add(1, 2))\n"
	if diags := check(t, src); diags.HasErrors() {
		t.Errorf("unexpected diagnostics: %v", diags.All())
	}
}

func TestArithmeticTypeMismatch(t *testing.T) {
	src := "fn f() -> Int:\n  return 1 - true\n"
	if diags := check(t, src); !diags.HasErrors() {
		t.Error("want diagnostic for Int - Bool")
	}
}

func TestConditionMustBeBool(t *testing.T) {
	src := "fn f():\n  if 1:\n    print(1)\n"
	if diags := check(t, src); !diags.HasErrors() {
		t.Error("want diagnostic for non-Bool condition")
	}
}

func TestOptionAssignability(t *testing.T) {
	// Bare T is assignable to Option<T>; the reverse is not.
	ok := "fn f():\n  let x: Option<Int> = 1\n"
	if diags := check(t, ok); diags.HasErrors() {
		t.Errorf("T to Option<T> should be allowed: %v", diags.All())
	}
	bad := "fn g(o: Option<Int>) -> Int:\n  return o\n"
	if diags := check(t, bad); !diags.HasErrors() {
		t.Error("Option<T> to T must be diagnosed")
	}
}

func TestNamedArgumentsInCallDiagnosed(t *testing.T) {
	// A non-bare-identifier callee keeps its named argument a Call, which
	// the checker rejects (struct literals are the named-syntax construct).
	src := "fn f(a: Int) -> Int:\n  return a\nfn g():\n  f(1)(a=2)\n"
	if diags := check(t, src); !diags.HasErrors() {
		t.Error("want diagnostic for named argument in call position")
	}
}

func TestUnknownStructFieldDiagnosed(t *testing.T) {
	src := "type User:\n  name: String\nfn f():\n  let u = User(nope=\"x\")\n"
	if diags := check(t, src); !diags.HasErrors() {
		t.Error("want diagnostic for unknown struct field")
	}
}

// Strict-mode purity: `requires network, db` with only serve used reports
// exactly one error and it names db.
func TestCapabilityPurity(t *testing.T) {
	src := "requires network, db\n" +
		"service Api \"/\":\n  get \"/x\" -> String:\n    return \"x\"\n" +
		"app \"main\":\n  serve(8080)\n"
	diags, reports := checkWithReports(t, src)
	if diags.HasErrors() {
		t.Fatalf("pre-strict diagnostics: %v", diags.All())
	}
	strict := &diagnostics.Diagnostics{}
	CheckCapabilitiesStrict(reports, strict)
	errs := strict.All()
	if len(errs) != 1 {
		t.Fatalf("want exactly 1 strict error, got %v", errs)
	}
	if !strings.Contains(errs[0].Message, `"db"`) {
		t.Errorf("error must name db: %s", errs[0].Message)
	}
}

func TestMatchBindingsInScope(t *testing.T) {
	src := "enum Shape:\n  case Circle(Float)\n  case Square(Float)\n" +
		"fn area(s: Shape) -> Float:\n" +
		"  match s:\n" +
		"    case Circle(r):\n" +
		"      return r\n" +
		"    case Square(x):\n" +
		"      return x\n" +
		"  return 0.0\n" +
		"app \"main\":\n  print(area(Shape.Circle(2.0)))\n"
	if diags := check(t, src); diags.HasErrors() {
		t.Errorf("match bindings must be in scope: %v", diags.All())
	}
}

func TestUnknownEnumVariantDiagnosed(t *testing.T) {
	src := "enum Shape:\n  case Circle(Float)\n" +
		"app \"main\":\n  print(Shape.Triangle)\n"
	if diags := check(t, src); !diags.HasErrors() {
		t.Error("want diagnostic for unknown enum variant")
	}
}

func TestCapabilityNameMapping(t *testing.T) {
	if CapabilityName("serve") != "network" {
		t.Error("serve must map to network")
	}
	if CapabilityName("db") != "db" {
		t.Error("db maps to itself")
	}
}
