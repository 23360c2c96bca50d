package fmtprinter

import (
	"strings"
	"testing"
)

func format(t *testing.T, src string) string {
	t.Helper()
	out, diags := FormatSource(src)
	for _, d := range diags {
		t.Fatalf("diagnostics: %v", d)
	}
	return out
}

func TestCanonicalIndentation(t *testing.T) {
	src := "fn add(a: Int,   b: Int) -> Int:\n    return a+b\n"
	want := "fn add(a: Int, b: Int) -> Int:\n  return a + b\n"
	if got := format(t, src); got != want {
		t.Errorf("got:\n%s\nwant:\n%s", got, want)
	}
}

func TestFormatIsIdempotent(t *testing.T) {
	sources := []string{
		"fn add(a: Int, b: Int) -> Int:\n  return a + b\n",
		"type User:\n  name: String\n  role: String = \"user\"\n",
		"enum Shape:\n  case Circle(Float)\n  case Square(Float)\n",
		"config App:\n  port: Int = 8080\n",
		"app \"main\":\n  for x in [1, 2, 3]:\n    print(x)\n",
		"service Users \"/api\":\n  get \"/u/{id:Id}\" -> String!NotFound:\n    return \"ok\"\n",
		"fn f(o: Option<Int>) -> Int:\n  return o ?? 0\n",
		"fn g():\n  match 1:\n    case 1:\n      print(\"one\")\n    case _:\n      print(\"other\")\n",
	}
	for _, src := range sources {
		once := format(t, src)
		twice := format(t, once)
		if once != twice {
			t.Errorf("not idempotent:\nfirst:\n%s\nsecond:\n%s", once, twice)
		}
	}
}

func TestPrecedenceParenthesized(t *testing.T) {
	src := "fn f() -> Int:\n  return (1 + 2) * 3\n"
	got := format(t, src)
	if !strings.Contains(got, "(1 + 2) * 3") {
		t.Errorf("parens dropped:\n%s", got)
	}
}

func TestInterpStringPreserved(t *testing.T) {
	src := "fn f(name: String):\n  print(\"hi ${name}!\")\n"
	got := format(t, src)
	if !strings.Contains(got, `"hi ${name}!"`) {
		t.Errorf("interpolation mangled:\n%s", got)
	}
}

func TestBrokenSourceReturnedUnchanged(t *testing.T) {
	src := "fn ((((\n"
	out, diags := FormatSource(src)
	if len(diags) == 0 {
		t.Fatal("want diagnostics")
	}
	if out != src {
		t.Error("broken source must be returned unchanged")
	}
}

func TestSpawnBlock(t *testing.T) {
	src := "app \"main\":\n  let t = spawn:\n    return 5\n  print(await t)\n"
	once := format(t, src)
	if !strings.Contains(once, "spawn:") {
		t.Errorf("spawn lost:\n%s", once)
	}
	if format(t, once) != once {
		t.Errorf("spawn formatting not idempotent:\n%s", once)
	}
}

func TestDocCommentsKept(t *testing.T) {
	src := "## adds a and b\nfn add(a: Int, b: Int) -> Int:\n  return a + b\n"
	got := format(t, src)
	if !strings.HasPrefix(got, "## adds a and b\n") {
		t.Errorf("doc comment lost:\n%s", got)
	}
}
