package interp

import (
	"bytes"
	"strings"
	"testing"

	"github.com/fuselang/fuse/internal/canon"
	"github.com/fuselang/fuse/internal/configio"
	"github.com/fuselang/fuse/internal/diagnostics"
	"github.com/fuselang/fuse/internal/modules"
	"github.com/fuselang/fuse/internal/rtcore"
	"github.com/fuselang/fuse/internal/symbols"
	"github.com/fuselang/fuse/internal/value"
)

type harness struct {
	engine *Engine
	stdout *bytes.Buffer
	stderr *bytes.Buffer
}

func build(t *testing.T, src string, env map[string]string) *harness {
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
	host := rtcore.NewHost(reg, syms)
	h := &harness{stdout: &bytes.Buffer{}, stderr: &bytes.Buffer{}}
	host.Stdout = h.stdout
	host.Stderr = h.stderr
	host.Config = configio.Empty()
	host.Getenv = func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}
	h.engine = New(reg, syms, host)
	return h
}

func runApp(t *testing.T, src string) string {
	t.Helper()
	h := build(t, src, nil)
	if sig := h.engine.RunApp(""); sig != nil {
		t.Fatalf("run error: %s", sig.Error())
	}
	return h.stdout.String()
}

func TestPrint(t *testing.T) {
	out := runApp(t, "app \"main\":\n  print(\"hello\")\n")
	if out != "hello\n" {
		t.Errorf("got %q", out)
	}
}

func TestArithmeticAndInterp(t *testing.T) {
	out := runApp(t, "app \"main\":\n  let x = 2 + 3 * 4\n  print(\"x=${x}\")\n")
	if out != "x=14\n" {
		t.Errorf("got %q", out)
	}
}

func TestFunctionCallAndDefaults(t *testing.T) {
	src := "fn add(a: Int, b: Int) -> Int:\n  return a + b\n" +
		"app \"main\":\n  print(add(1, 2))\n"
	if out := runApp(t, src); out != "3\n" {
		t.Errorf("got %q", out)
	}
}

func TestForLoopAndBreak(t *testing.T) {
	src := "app \"main\":\n" +
		"  for x in [1, 2, 3, 4]:\n" +
		"    if x == 3:\n" +
		"      break\n" +
		"    print(x)\n"
	if out := runApp(t, src); out != "1\n2\n" {
		t.Errorf("got %q", out)
	}
}

func TestWhileContinue(t *testing.T) {
	src := "app \"main\":\n" +
		"  var i = 0\n" +
		"  while i < 5:\n" +
		"    i = i + 1\n" +
		"    if i == 2:\n" +
		"      continue\n" +
		"    print(i)\n"
	if out := runApp(t, src); out != "1\n3\n4\n5\n" {
		t.Errorf("got %q", out)
	}
}

// Scenario 4: the engine's canonical float formatting drops the ".0".
func TestMatchEnum(t *testing.T) {
	src := "enum Shape:\n  case Circle(Float)\n  case Square(Float)\n" +
		"app \"main\":\n" +
		"  let s = Shape.Circle(2.0)\n" +
		"  match s:\n" +
		"    case Circle(r):\n" +
		"      print(r)\n" +
		"    case Square(x):\n" +
		"      print(x)\n"
	if out := runApp(t, src); out != "2\n" {
		t.Errorf("got %q", out)
	}
}

func TestMatchOptionPatterns(t *testing.T) {
	src := "fn describe(o: Option<Int>) -> String:\n" +
		"  match o:\n" +
		"    case Some(n):\n" +
		"      return \"some ${n}\"\n" +
		"    case None:\n" +
		"      return \"none\"\n" +
		"  return \"?\"\n" +
		"app \"main\":\n" +
		"  print(describe(5))\n" +
		"  print(describe(null))\n"
	if out := runApp(t, src); out != "some 5\nnone\n" {
		t.Errorf("got %q", out)
	}
}

func TestBangChainOnOption(t *testing.T) {
	src := "fn lookup(x: Int) -> String:\n" +
		"  var y: Option<String> = null\n" +
		"  if x == 1:\n" +
		"    y = \"one\"\n" +
		"  return y ?! NotFound(message=\"x=${x}\")\n" +
		"app \"main\":\n" +
		"  print(lookup(1))\n"
	if out := runApp(t, src); out != "one\n" {
		t.Errorf("got %q", out)
	}
}

func TestBangChainRaisesDomainError(t *testing.T) {
	src := "fn lookup(x: Int) -> String:\n" +
		"  var y: Option<String> = null\n" +
		"  if x == 1:\n" +
		"    y = \"one\"\n" +
		"  return y ?! NotFound(message=\"x=${x}\")\n" +
		"app \"main\":\n" +
		"  print(lookup(2))\n"
	h := build(t, src, nil)
	sig := h.engine.RunApp("")
	if sig == nil || sig.Kind != SigError {
		t.Fatalf("want domain error, got %v", sig)
	}
	s := sig.Value.Obj.(*value.Struct)
	if s.Name != "NotFound" {
		t.Errorf("error struct: %s", s.Name)
	}
	if s.Fields["message"].String() != "x=2" {
		t.Errorf("message: %s", s.Fields["message"])
	}
}

// Result-typed functions wrap naked Ok-typed returns.
func TestResultWrapping(t *testing.T) {
	src := "fn f(flag: Bool) -> Int!NotFound:\n" +
		"  if flag:\n" +
		"    return 7\n" +
		"  return Err(NotFound(message=\"no\"))\n" +
		"app \"main\":\n" +
		"  match f(true):\n" +
		"    case Ok(n):\n" +
		"      print(n)\n" +
		"    case Err(e):\n" +
		"      print(\"err\")\n" +
		"  match f(false):\n" +
		"    case Ok(n):\n" +
		"      print(n)\n" +
		"    case Err(e):\n" +
		"      print(\"err\")\n"
	if out := runApp(t, src); out != "7\nerr\n" {
		t.Errorf("got %q", out)
	}
}

func TestStructDefaultsAndValidation(t *testing.T) {
	src := "type User:\n  name: String\n  role: String = \"user\"\n  nick: String?\n" +
		"app \"main\":\n" +
		"  let u = User(name=\"ada\")\n" +
		"  print(u.name)\n" +
		"  print(u.role)\n" +
		"  print(u.nick)\n"
	if out := runApp(t, src); out != "ada\nuser\nnull\n" {
		t.Errorf("got %q", out)
	}
}

func TestMissingRequiredFieldIsValidationError(t *testing.T) {
	src := "type User:\n  name: String\n" +
		"app \"main\":\n  let u = User(name=null)\n"
	h := build(t, src, nil)
	sig := h.engine.RunApp("")
	if sig == nil || sig.Kind != SigError {
		t.Fatalf("want validation error, got %v", sig)
	}
	if sig.Value.Obj.(*value.Struct).Name != "ValidationError" {
		t.Errorf("error struct: %s", sig.Value.Obj.(*value.Struct).Name)
	}
}

func TestSpawnAwait(t *testing.T) {
	src := "app \"main\":\n" +
		"  let t = spawn:\n" +
		"    print(\"task\")\n" +
		"    return 5\n" +
		"  print(\"before\")\n" +
		"  let v = await t\n" +
		"  print(v)\n"
	// spawn is lazy: the block runs only at await, so "before" prints first.
	if out := runApp(t, src); out != "before\ntask\n5\n" {
		t.Errorf("got %q", out)
	}
}

func TestUnawaitedTaskDiscarded(t *testing.T) {
	src := "app \"main\":\n" +
		"  let t = spawn:\n" +
		"    print(\"never\")\n" +
		"  print(\"done\")\n"
	if out := runApp(t, src); out != "done\n" {
		t.Errorf("got %q", out)
	}
}

// A write through one alias of a Boxed cell is visible through all
// co-owners (Boxed is the only sharing primitive).
func TestBoxSharing(t *testing.T) {
	src := "type User:\n  name: String\n" +
		"app \"main\":\n" +
		"  let a = box User(name=\"x\")\n" +
		"  let b = a\n" +
		"  b.name = \"y\"\n" +
		"  print(a.name)\n"
	if out := runApp(t, src); out != "y\n" {
		t.Errorf("got %q", out)
	}
}

func TestCoalesce(t *testing.T) {
	src := "app \"main\":\n" +
		"  let x: Option<Int> = null\n" +
		"  print(x ?? 9)\n"
	if out := runApp(t, src); out != "9\n" {
		t.Errorf("got %q", out)
	}
}

// Configs realize on first access with env > file > default.
func TestConfigPrecedence(t *testing.T) {
	src := "config App:\n  greeting: String = \"Hello\"\n" +
		"fn main(name: String):\n  print(\"${App.greeting}, ${name}!\")\n"
	h := build(t, src, map[string]string{"APP_GREETING": "Hi"})
	sig := h.engine.CallMain(map[string]value.Value{"name": value.Str("Codex")})
	if sig != nil {
		t.Fatalf("run error: %s", sig.Error())
	}
	if h.stdout.String() != "Hi, Codex!\n" {
		t.Errorf("got %q", h.stdout.String())
	}
}

func TestConfigDefaultUsed(t *testing.T) {
	src := "config App:\n  port: Int = 8080\n" +
		"app \"main\":\n  print(App.port)\n"
	if out := runApp(t, src); out != "8080\n" {
		t.Errorf("got %q", out)
	}
}

func TestCallMainValidatesArgs(t *testing.T) {
	src := "fn main(port: Int):\n  print(port)\n"
	h := build(t, src, nil)
	sig := h.engine.CallMain(map[string]value.Value{"port": value.Str("abc")})
	if sig == nil || sig.Kind != SigError {
		t.Fatalf("want validation error, got %v", sig)
	}
	if !strings.Contains(sig.Value.String(), "ValidationError") &&
		sig.Value.Obj.(*value.Struct).Name != "ValidationError" {
		t.Errorf("error value: %s", sig.Value)
	}
}

func TestRunTest(t *testing.T) {
	src := "test \"math\":\n  assert(1 + 1 == 2)\n"
	h := build(t, src, nil)
	ok, sig := h.engine.RunTest("math")
	if !ok || sig != nil {
		t.Errorf("test should pass: %v", sig)
	}
}

func TestRunTestFailure(t *testing.T) {
	src := "test \"math\":\n  assert(1 == 2, \"nope\")\n"
	h := build(t, src, nil)
	ok, sig := h.engine.RunTest("math")
	if ok {
		t.Fatal("test should fail")
	}
	if sig == nil || sig.Kind != SigError {
		t.Errorf("want assertion error, got %v", sig)
	}
}
