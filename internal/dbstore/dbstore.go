// Package dbstore is the on-disk SQL store collaborator behind the
// db.exec/db.query/db.one builtins and the --migrate mode. The engines see
// only the narrow rtcore.DB interface; this package supplies the concrete
// sqlite-backed implementation.
package dbstore

import (
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/fuselang/fuse/internal/rtlog"
	"github.com/fuselang/fuse/internal/value"
)

// Store wraps one sqlite database file.
type Store struct {
	db *sql.DB
}

// DefaultPath resolves the database location: FUSE_DB_PATH if set, else
// ./fuse.db.
func DefaultPath(getenv func(string) (string, bool)) string {
	if p, ok := getenv("FUSE_DB_PATH"); ok && p != "" {
		return p
	}
	return "fuse.db"
}

// Open opens (creating if absent) the sqlite file at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	// A single connection keeps statement ordering deterministic under the
	// single-threaded scheduling model.
	db.SetMaxOpenConns(1)
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Exec runs a statement and returns the affected row count as an Int.
func (s *Store) Exec(query string, args []value.Value) (value.Value, error) {
	res, err := s.db.Exec(query, bindArgs(args)...)
	if err != nil {
		rtlog.L().Warnw("db.exec failed", "query", query, "err", err)
		return value.Unit(), err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return value.Unit(), err
	}
	return value.Int(n), nil
}

// Query runs a query and returns a List of row Maps, column name -> value.
func (s *Store) Query(query string, args []value.Value) (value.Value, error) {
	rows, err := s.db.Query(query, bindArgs(args)...)
	if err != nil {
		rtlog.L().Warnw("db.query failed", "query", query, "err", err)
		return value.Unit(), err
	}
	defer rows.Close()
	out, err := scanRows(rows)
	if err != nil {
		return value.Unit(), err
	}
	return value.ListOf(out), nil
}

// One runs a query expected to match at most one row, returning its Map or
// Null when nothing matched.
func (s *Store) One(query string, args []value.Value) (value.Value, error) {
	rows, err := s.db.Query(query, bindArgs(args)...)
	if err != nil {
		rtlog.L().Warnw("db.one failed", "query", query, "err", err)
		return value.Unit(), err
	}
	defer rows.Close()
	out, err := scanRows(rows)
	if err != nil {
		return value.Unit(), err
	}
	if len(out) == 0 {
		return value.Null(), nil
	}
	return out[0], nil
}

// EnsureMigrationLog creates the ledger table migrations are recorded in.
func (s *Store) EnsureMigrationLog() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS fuse_migrations (
		run_id TEXT NOT NULL,
		name TEXT NOT NULL PRIMARY KEY,
		applied_at TEXT NOT NULL DEFAULT (datetime('now'))
	)`)
	return err
}

// AppliedMigrations returns the names already recorded in the ledger.
func (s *Store) AppliedMigrations() (map[string]bool, error) {
	rows, err := s.db.Query(`SELECT name FROM fuse_migrations`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	applied := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		applied[name] = true
	}
	return applied, rows.Err()
}

// RecordMigration marks one migration as applied under a fresh run id and
// returns that id.
func (s *Store) RecordMigration(name string) (string, error) {
	runId := uuid.NewString()
	_, err := s.db.Exec(`INSERT INTO fuse_migrations (run_id, name) VALUES (?, ?)`, runId, name)
	if err != nil {
		return "", err
	}
	return runId, nil
}

// bindArgs converts runtime values to driver arguments.
func bindArgs(args []value.Value) []any {
	out := make([]any, len(args))
	for i, a := range args {
		out[i] = bindArg(a)
	}
	return out
}

func bindArg(v value.Value) any {
	switch v.Type {
	case value.TNull, value.TUnit:
		return nil
	case value.TInt:
		return v.AsInt()
	case value.TFloat:
		return v.AsFloat()
	case value.TBool:
		return v.AsBool()
	case value.TObj:
		switch o := v.Obj.(type) {
		case *value.String:
			return o.Value
		case *value.Bytes:
			return o.Value
		case *value.Boxed:
			return bindArg(*o.Cell)
		}
	}
	return v.String()
}

func scanRows(rows *sql.Rows) ([]value.Value, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	var out []value.Value
	for rows.Next() {
		cells := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range cells {
			ptrs[i] = &cells[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		entries := make(map[string]value.Value, len(cols))
		for i, col := range cols {
			entries[col] = cellValue(cells[i])
		}
		out = append(out, value.MapOf(entries))
	}
	return out, rows.Err()
}

func cellValue(cell any) value.Value {
	switch c := cell.(type) {
	case nil:
		return value.Null()
	case int64:
		return value.Int(c)
	case float64:
		return value.Float(c)
	case bool:
		return value.Bool(c)
	case string:
		return value.Str(c)
	case []byte:
		return value.Str(string(c))
	default:
		return value.Str(fmt.Sprintf("%v", c))
	}
}
