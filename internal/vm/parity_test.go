package vm

import (
	"bytes"
	"testing"

	"github.com/fuselang/fuse/internal/canon"
	"github.com/fuselang/fuse/internal/configio"
	"github.com/fuselang/fuse/internal/diagnostics"
	"github.com/fuselang/fuse/internal/interp"
	"github.com/fuselang/fuse/internal/lower"
	"github.com/fuselang/fuse/internal/modules"
	"github.com/fuselang/fuse/internal/rtcore"
	"github.com/fuselang/fuse/internal/symbols"
)

type built struct {
	reg  *modules.Registry
	syms map[modules.ModuleId]*symbols.ModuleSymbols
}

func load(t *testing.T, src string) built {
	t.Helper()
	reg, loadDiags := modules.Load("/proj/main.fuse", src)
	if loadDiags.HasErrors() {
		t.Fatalf("load error: %v", loadDiags.All())
	}
	canon.Registry(reg)
	diags := &diagnostics.Diagnostics{}
	syms := symbols.CollectRegistry(reg, diags)
	if diags.HasErrors() {
		t.Fatalf("symbol error: %v", diags.All())
	}
	return built{reg: reg, syms: syms}
}

func newHost(b built, stdout, stderr *bytes.Buffer) *rtcore.Host {
	host := rtcore.NewHost(b.reg, b.syms)
	host.Stdout = stdout
	host.Stderr = stderr
	host.Config = configio.Empty()
	host.Getenv = func(string) (string, bool) { return "", false }
	return host
}

// runBoth executes src on the interpreter and the VM, failing unless both
// complete, and returns the two stdout captures for byte comparison
// (the two engines must agree byte-for-byte).
func runBoth(t *testing.T, src string) (string, string) {
	t.Helper()

	b := load(t, src)
	var astOut, astErr bytes.Buffer
	engine := interp.New(b.reg, b.syms, newHost(b, &astOut, &astErr))
	if sig := engine.RunApp(""); sig != nil {
		t.Fatalf("interp error: %s", sig.Error())
	}

	b2 := load(t, src)
	var vmOut, vmErr bytes.Buffer
	prog := lower.New(b2.reg, b2.syms).Lower()
	machine := New(prog, b2.reg, b2.syms, newHost(b2, &vmOut, &vmErr))
	if err := machine.RunApp(""); err != nil {
		t.Fatalf("vm error: %v", err)
	}

	if astErr.String() != vmErr.String() {
		t.Errorf("stderr diverged: interp %q vm %q", astErr.String(), vmErr.String())
	}
	return astOut.String(), vmOut.String()
}

func assertParity(t *testing.T, src, want string) {
	t.Helper()
	astOut, vmOut := runBoth(t, src)
	if astOut != vmOut {
		t.Errorf("engines diverged: interp %q vm %q", astOut, vmOut)
	}
	if want != "" && astOut != want {
		t.Errorf("output: got %q want %q", astOut, want)
	}
}

func TestParityPrintArithmetic(t *testing.T) {
	assertParity(t, "app \"main\":\n  print(2 + 3 * 4)\n  print(10 / 4)\n  print(10.0 / 4)\n", "14\n2\n2.5\n")
}

func TestParityStringInterp(t *testing.T) {
	src := "fn greet(name: String) -> String:\n  return \"hi ${name}\"\n" +
		"app \"main\":\n  print(greet(\"ada\"))\n"
	assertParity(t, src, "hi ada\n")
}

func TestParityControlFlow(t *testing.T) {
	src := "app \"main\":\n" +
		"  var total = 0\n" +
		"  for x in [1, 2, 3, 4, 5]:\n" +
		"    if x == 4:\n" +
		"      continue\n" +
		"    total = total + x\n" +
		"  while total > 8:\n" +
		"    total = total - 3\n" +
		"  print(total)\n"
	assertParity(t, src, "8\n")
}

func TestParityMatchEnum(t *testing.T) {
	src := "enum Shape:\n  case Circle(Float)\n  case Square(Float)\n" +
		"app \"main\":\n" +
		"  let s = Shape.Circle(2.0)\n" +
		"  match s:\n" +
		"    case Circle(r):\n" +
		"      print(r)\n" +
		"    case Square(x):\n" +
		"      print(x)\n"
	assertParity(t, src, "2\n")
}

func TestParityStructDefaults(t *testing.T) {
	src := "type User:\n  name: String\n  role: String = \"user\"\n" +
		"app \"main\":\n" +
		"  let u = User(name=\"ada\")\n" +
		"  print(u.role)\n"
	assertParity(t, src, "user\n")
}

func TestParityCoalesce(t *testing.T) {
	src := "app \"main\":\n" +
		"  let x: Option<Int> = null\n" +
		"  print(x ?? 9)\n" +
		"  let y: Option<Int> = 4\n" +
		"  print(y ?? 9)\n"
	assertParity(t, src, "9\n4\n")
}

func TestParityListsAndMaps(t *testing.T) {
	src := "app \"main\":\n" +
		"  let xs = [10, 20, 30]\n" +
		"  print(xs[1])\n" +
		"  let m = {\"a\": 1}\n" +
		"  print(m[\"a\"])\n"
	assertParity(t, src, "20\n1\n")
}

func TestParitySpawnAwait(t *testing.T) {
	src := "app \"main\":\n" +
		"  let t = spawn:\n" +
		"    print(\"task\")\n" +
		"    return 5\n" +
		"  print(\"before\")\n" +
		"  print(await t)\n"
	assertParity(t, src, "before\ntask\n5\n")
}

func TestParityBoxMutation(t *testing.T) {
	src := "type Counter:\n  n: Int\n" +
		"app \"main\":\n" +
		"  let a = box Counter(n=1)\n" +
		"  let b = a\n" +
		"  b.n = 2\n" +
		"  print(a.n)\n"
	assertParity(t, src, "2\n")
}

// Both engines must produce the same domain error for the same input.
func TestParityDomainError(t *testing.T) {
	src := "fn lookup(x: Int) -> String:\n" +
		"  var y: Option<String> = null\n" +
		"  if x == 1:\n" +
		"    y = \"one\"\n" +
		"  return y ?! NotFound(message=\"x=${x}\")\n" +
		"app \"main\":\n  print(lookup(2))\n"

	b := load(t, src)
	var astOut bytes.Buffer
	engine := interp.New(b.reg, b.syms, newHost(b, &astOut, &bytes.Buffer{}))
	sig := engine.RunApp("")
	if sig == nil || sig.Kind != interp.SigError {
		t.Fatalf("interp: want domain error, got %v", sig)
	}

	b2 := load(t, src)
	var vmOut bytes.Buffer
	prog := lower.New(b2.reg, b2.syms).Lower()
	machine := New(prog, b2.reg, b2.syms, newHost(b2, &vmOut, &bytes.Buffer{}))
	err := machine.RunApp("")
	structured, val := ErrorValue(err)
	if !structured {
		t.Fatalf("vm: want domain error, got %v", err)
	}
	if !sig.Value.Equals(val) {
		t.Errorf("error values diverged: interp %s vm %s", sig.Value, val)
	}
	if astOut.String() != vmOut.String() {
		t.Errorf("stdout diverged: %q vs %q", astOut.String(), vmOut.String())
	}
}

