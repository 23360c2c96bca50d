package cliapi

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type result struct {
	code   int
	stdout string
	stderr string
}

func run(t *testing.T, env map[string]string, args ...string) result {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := RunWithOptions(args, Options{
		Stdout: &stdout,
		Stderr: &stderr,
		Getenv: func(key string) (string, bool) {
			v, ok := env[key]
			return v, ok
		},
	})
	return result{code: code, stdout: stdout.String(), stderr: stderr.String()}
}

func writeFile(t *testing.T, name, src string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(src), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

// Scenario 1: env override + CLI flag binding, identical on both engines.
func TestHelloCLI(t *testing.T) {
	src := "config App:\n  greeting: String = \"Hello\"\n" +
		"fn main(name: String):\n  print(\"${App.greeting}, ${name}!\")\n"
	path := writeFile(t, "hello.fuse", src)
	env := map[string]string{"APP_GREETING": "Hi"}

	for _, backend := range []string{"ast", "vm", "native"} {
		res := run(t, env, "--run", "--backend", backend, path, "--", "--name", "Codex")
		if res.code != 0 {
			t.Fatalf("[%s] exit %d, stderr %q", backend, res.code, res.stderr)
		}
		if res.stdout != "Hi, Codex!\n" {
			t.Errorf("[%s] stdout %q", backend, res.stdout)
		}
	}
}

// Scenario 2: a type-mismatched flag emits one ValidationError JSON on
// stderr, exit 2, empty stdout.
func TestValidationErrorExit(t *testing.T) {
	path := writeFile(t, "port.fuse", "fn main(port: Int):\n  print(port)\n")
	res := run(t, nil, "--run", path, "--", "--port", "abc")
	if res.code != 2 {
		t.Fatalf("exit %d, stderr %q", res.code, res.stderr)
	}
	if res.stdout != "" {
		t.Errorf("stdout must be empty: %q", res.stdout)
	}
	want := `{"error":{"code":"validation_error","message":"validation failed","fields":[{"path":"port","code":"invalid_value","message":"invalid Int: abc"}]}}` + "\n"
	if res.stderr != want {
		t.Errorf("stderr:\n got %q\nwant %q", res.stderr, want)
	}
}

// Scenario 3: a domain error escaping main renders as JSON with exit 2.
func TestDomainErrorExit(t *testing.T) {
	src := "fn lookup(x: Int) -> String:\n" +
		"  var y: Option<String> = null\n" +
		"  if x == 1:\n" +
		"    y = \"one\"\n" +
		"  return y ?! NotFound(message=\"x=${x}\")\n" +
		"fn main(x: Int):\n  print(lookup(x))\n"
	path := writeFile(t, "lookup.fuse", src)
	res := run(t, nil, "--run", path, "--", "--x", "2")
	if res.code != 2 {
		t.Fatalf("exit %d, stderr %q", res.code, res.stderr)
	}
	if !strings.Contains(res.stderr, `"code":"not_found"`) {
		t.Errorf("stderr: %q", res.stderr)
	}
	if !strings.Contains(res.stderr, "x=2") {
		t.Errorf("stderr: %q", res.stderr)
	}
}

func TestUnknownFlag(t *testing.T) {
	path := writeFile(t, "m.fuse", "fn main(port: Int):\n  print(port)\n")
	res := run(t, nil, "--run", path, "--", "--port", "1", "--nope", "x")
	if res.code != 2 {
		t.Fatalf("exit %d", res.code)
	}
	if !strings.Contains(res.stderr, "unknown_flag") {
		t.Errorf("stderr: %q", res.stderr)
	}
}

func TestMissingRequiredFlag(t *testing.T) {
	path := writeFile(t, "m.fuse", "fn main(port: Int):\n  print(port)\n")
	res := run(t, nil, "--run", path, "--", "--other=1")
	if res.code != 2 {
		t.Fatalf("exit %d", res.code)
	}
	if !strings.Contains(res.stderr, "missing_field") {
		t.Errorf("stderr: %q", res.stderr)
	}
}

func TestBoolFlagForms(t *testing.T) {
	src := "fn main(verbose: Bool, quiet: Bool):\n  print(verbose)\n  print(quiet)\n"
	path := writeFile(t, "flags.fuse", src)
	res := run(t, nil, "--run", path, "--", "--verbose", "--no-quiet")
	if res.code != 0 {
		t.Fatalf("exit %d, stderr %q", res.code, res.stderr)
	}
	if res.stdout != "true\nfalse\n" {
		t.Errorf("stdout: %q", res.stdout)
	}
}

func TestEqualsFlagSyntax(t *testing.T) {
	path := writeFile(t, "m.fuse", "fn main(port: Int):\n  print(port)\n")
	res := run(t, nil, "--run", path, "--", "--port=8080")
	if res.code != 0 || res.stdout != "8080\n" {
		t.Errorf("exit %d stdout %q stderr %q", res.code, res.stdout, res.stderr)
	}
}

func TestCheckMode(t *testing.T) {
	good := writeFile(t, "good.fuse", "fn f() -> Int:\n  return 1\n")
	if res := run(t, nil, "--check", good); res.code != 0 {
		t.Errorf("good program: exit %d stderr %q", res.code, res.stderr)
	}

	bad := writeFile(t, "bad.fuse", "fn f() -> Int:\n  return 1 - true\n")
	res := run(t, nil, "--check", bad)
	if res.code != 1 {
		t.Errorf("bad program: exit %d", res.code)
	}
	if !strings.Contains(res.stderr, "error:") {
		t.Errorf("stderr: %q", res.stderr)
	}
}

func TestRunAppSelectsBackendVmByDefault(t *testing.T) {
	path := writeFile(t, "app.fuse", "app \"main\":\n  print(\"from app\")\n")
	res := run(t, nil, "--run", path)
	if res.code != 0 {
		t.Fatalf("exit %d stderr %q", res.code, res.stderr)
	}
	if res.stdout != "from app\n" {
		t.Errorf("stdout: %q", res.stdout)
	}
}

func TestNamedApp(t *testing.T) {
	src := "app \"one\":\n  print(1)\napp \"two\":\n  print(2)\n"
	path := writeFile(t, "apps.fuse", src)
	res := run(t, nil, "--run", "--app", "two", path)
	if res.code != 0 || res.stdout != "2\n" {
		t.Errorf("exit %d stdout %q stderr %q", res.code, res.stdout, res.stderr)
	}
}

func TestTestMode(t *testing.T) {
	src := "test \"passes\":\n  assert(true)\ntest \"fails\":\n  assert(false, \"boom\")\n"
	path := writeFile(t, "t.fuse", src)
	res := run(t, nil, "--test", path)
	if res.code != 1 {
		t.Errorf("exit %d", res.code)
	}
	if !strings.Contains(res.stdout, "ok passes") {
		t.Errorf("stdout: %q", res.stdout)
	}
	if !strings.Contains(res.stdout, "FAILED fails") {
		t.Errorf("stdout: %q", res.stdout)
	}
}

func TestTestModeAllPass(t *testing.T) {
	path := writeFile(t, "t.fuse", "test \"a\":\n  assert(true)\n")
	res := run(t, nil, "--test", path)
	if res.code != 0 {
		t.Errorf("exit %d stdout %q", res.code, res.stdout)
	}
	if !strings.Contains(res.stdout, "ok (1 tests)") {
		t.Errorf("stdout: %q", res.stdout)
	}
}

func TestOpenapiMode(t *testing.T) {
	src := "service S \"/\":\n  get \"/x\" -> String:\n    return \"x\"\n"
	path := writeFile(t, "svc.fuse", src)
	res := run(t, nil, "--openapi", path)
	if res.code != 0 {
		t.Fatalf("exit %d stderr %q", res.code, res.stderr)
	}
	if !strings.Contains(res.stdout, `"openapi":"3.0.0"`) {
		t.Errorf("stdout: %q", res.stdout)
	}
}

func TestFmtMode(t *testing.T) {
	path := writeFile(t, "f.fuse", "fn add(a: Int,b: Int) -> Int:\n    return a+b\n")
	res := run(t, nil, "--fmt", path)
	if res.code != 0 {
		t.Fatalf("exit %d stderr %q", res.code, res.stderr)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != "fn add(a: Int, b: Int) -> Int:\n  return a + b\n" {
		t.Errorf("formatted file:\n%s", b)
	}
}

func TestDumpAst(t *testing.T) {
	path := writeFile(t, "d.fuse", "fn main():\n  print(1)\n")
	res := run(t, nil, "--dump-ast", path)
	if res.code != 0 {
		t.Fatalf("exit %d", res.code)
	}
	if !strings.Contains(res.stdout, "Fn(main()") {
		t.Errorf("stdout: %q", res.stdout)
	}
}

func TestMigrateRunsPendingOnce(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "m.fuse")
	src := "migration \"001_init\":\n  print(\"migrating\")\n"
	if err := os.WriteFile(path, []byte(src), 0o644); err != nil {
		t.Fatal(err)
	}
	env := map[string]string{"FUSE_DB_PATH": filepath.Join(dir, "m.db")}

	res := run(t, env, "--migrate", path)
	if res.code != 0 {
		t.Fatalf("exit %d stderr %q", res.code, res.stderr)
	}
	if res.stdout != "migrating\n" {
		t.Errorf("stdout: %q", res.stdout)
	}

	// A second run finds the migration recorded and skips it.
	res = run(t, env, "--migrate", path)
	if res.code != 0 {
		t.Fatalf("second run exit %d stderr %q", res.code, res.stderr)
	}
	if res.stdout != "" {
		t.Errorf("second run stdout: %q", res.stdout)
	}
}

func TestParseProgramArgs(t *testing.T) {
	raw, err := parseProgramArgs([]string{"--a", "1", "--b=2", "--no-c", "--d"})
	if err != nil {
		t.Fatal(err)
	}
	if raw.values["a"][0] != "1" || raw.values["b"][0] != "2" {
		t.Errorf("values: %v", raw.values)
	}
	if raw.bools["c"] != false || raw.bools["d"] != true {
		t.Errorf("bools: %v", raw.bools)
	}
	if _, err := parseProgramArgs([]string{"loose"}); err == nil {
		t.Error("non-flag argument must error")
	}
}

func TestMissingFileUsage(t *testing.T) {
	res := run(t, nil, "--run")
	if res.code != 1 {
		t.Errorf("exit %d", res.code)
	}
	if !strings.Contains(res.stderr, "usage:") {
		t.Errorf("stderr: %q", res.stderr)
	}
}
