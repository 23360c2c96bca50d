package dbstore

import (
	"path/filepath"
	"testing"

	"github.com/fuselang/fuse/internal/value"
)

func open(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestExecQueryOne(t *testing.T) {
	s := open(t)

	if _, err := s.Exec("CREATE TABLE users (id INTEGER PRIMARY KEY, name TEXT)", nil); err != nil {
		t.Fatalf("create: %v", err)
	}
	n, err := s.Exec("INSERT INTO users (name) VALUES (?), (?)", []value.Value{value.Str("ada"), value.Str("bob")})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if !n.IsInt() || n.AsInt() != 2 {
		t.Errorf("rows affected: %s", n)
	}

	rows, err := s.Query("SELECT name FROM users ORDER BY id", nil)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	list := rows.Obj.(*value.List)
	if len(list.Elems) != 2 {
		t.Fatalf("row count: %d", len(list.Elems))
	}
	first := list.Elems[0].Obj.(*value.Map)
	if first.Entries["name"].String() != "ada" {
		t.Errorf("first row: %s", list.Elems[0])
	}

	one, err := s.One("SELECT name FROM users WHERE name = ?", []value.Value{value.Str("bob")})
	if err != nil {
		t.Fatalf("one: %v", err)
	}
	m := one.Obj.(*value.Map)
	if m.Entries["name"].String() != "bob" {
		t.Errorf("one: %s", one)
	}

	missing, err := s.One("SELECT name FROM users WHERE name = ?", []value.Value{value.Str("nope")})
	if err != nil {
		t.Fatalf("one missing: %v", err)
	}
	if !missing.IsNull() {
		t.Errorf("missing row must be Null, got %s", missing)
	}
}

func TestBindArgKinds(t *testing.T) {
	s := open(t)
	if _, err := s.Exec("CREATE TABLE t (i INTEGER, f REAL, b INTEGER, s TEXT, n TEXT)", nil); err != nil {
		t.Fatal(err)
	}
	args := []value.Value{value.Int(1), value.Float(2.5), value.Bool(true), value.Str("x"), value.Null()}
	if _, err := s.Exec("INSERT INTO t VALUES (?, ?, ?, ?, ?)", args); err != nil {
		t.Fatalf("insert: %v", err)
	}
	row, err := s.One("SELECT * FROM t", nil)
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	m := row.Obj.(*value.Map)
	if m.Entries["i"].AsInt() != 1 {
		t.Errorf("i: %s", m.Entries["i"])
	}
	if m.Entries["f"].AsFloat() != 2.5 {
		t.Errorf("f: %s", m.Entries["f"])
	}
	if !m.Entries["n"].IsNull() {
		t.Errorf("n: %s", m.Entries["n"])
	}
}

func TestMigrationLedger(t *testing.T) {
	s := open(t)
	if err := s.EnsureMigrationLog(); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	applied, err := s.AppliedMigrations()
	if err != nil {
		t.Fatalf("applied: %v", err)
	}
	if len(applied) != 0 {
		t.Errorf("fresh ledger not empty: %v", applied)
	}

	runId, err := s.RecordMigration("001_init")
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if runId == "" {
		t.Error("empty run id")
	}
	applied, err = s.AppliedMigrations()
	if err != nil {
		t.Fatal(err)
	}
	if !applied["001_init"] {
		t.Errorf("001_init not recorded: %v", applied)
	}

	// Recording the same migration twice violates the primary key.
	if _, err := s.RecordMigration("001_init"); err == nil {
		t.Error("duplicate migration record must fail")
	}
}

func TestDefaultPath(t *testing.T) {
	env := map[string]string{}
	getenv := func(k string) (string, bool) { v, ok := env[k]; return v, ok }
	if DefaultPath(getenv) != "fuse.db" {
		t.Error("default must be fuse.db")
	}
	env["FUSE_DB_PATH"] = "/tmp/x.db"
	if DefaultPath(getenv) != "/tmp/x.db" {
		t.Error("FUSE_DB_PATH must win")
	}
}
