package configio

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParseSectionsAndScalars(t *testing.T) {
	f, err := Parse("[App]\nport = 8080\nname = \"svc\"\ndebug = true\n\n[Db]\npath = \"./x.db\"\n")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	tests := []struct {
		section, field, want string
	}{
		{"App", "port", "8080"},
		{"App", "name", "svc"},
		{"App", "debug", "true"},
		{"Db", "path", "./x.db"},
	}
	for _, tt := range tests {
		got, ok := f.Value(tt.section, tt.field)
		if !ok || got != tt.want {
			t.Errorf("%s.%s: got %q ok=%t want %q", tt.section, tt.field, got, ok, tt.want)
		}
	}
	if _, ok := f.Value("App", "missing"); ok {
		t.Error("missing field reported present")
	}
	if _, ok := f.Value("Nope", "x"); ok {
		t.Error("missing section reported present")
	}
}

func TestCommentsAndBlankLines(t *testing.T) {
	f, err := Parse("# top\n[App]\n# inner\nport = 1 # trailing\n")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got, _ := f.Value("App", "port"); got != "1" {
		t.Errorf("port: %q", got)
	}
}

// The three accepted dependency-declaration syntaxes.
func TestDependencies(t *testing.T) {
	src := "[dependencies]\n" +
		"plain = \"../plain\"\n" +
		"inline = { path = \"../inline\", version = \"1\" }\n" +
		"dotted.path = \"../dotted\"\n"
	f, err := Parse(src)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	want := map[string]string{
		"plain":  "../plain",
		"inline": "../inline",
		"dotted": "../dotted",
	}
	if diff := cmp.Diff(want, f.Dependencies()); diff != "" {
		t.Errorf("dependencies mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadMissingFileIsEmpty(t *testing.T) {
	f, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	if err != nil {
		t.Fatalf("missing file must not error: %v", err)
	}
	if _, ok := f.Value("App", "port"); ok {
		t.Error("empty file reported values")
	}
}

func TestLoadRealFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte("[App]\ngreeting = \"Hi\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	f, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got, _ := f.Value("App", "greeting"); got != "Hi" {
		t.Errorf("greeting: %q", got)
	}
}

func TestDefaultPath(t *testing.T) {
	env := map[string]string{}
	getenv := func(k string) (string, bool) { v, ok := env[k]; return v, ok }
	if DefaultPath(getenv) != "config.toml" {
		t.Error("default must be config.toml")
	}
	env["FUSE_CONFIG"] = "/etc/fuse.toml"
	if DefaultPath(getenv) != "/etc/fuse.toml" {
		t.Error("FUSE_CONFIG must win")
	}
}

func TestMalformedSectionHeader(t *testing.T) {
	if _, err := Parse("[App\n"); err == nil {
		t.Error("want error for unterminated section header")
	}
}
