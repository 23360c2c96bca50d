// Package configio reads the on-disk TOML surface the toolchain consumes:
// the runtime config file behind `config` declarations and the root
// manifest's [dependencies] table the module loader resolves `dep:` imports
// against. Only the minimal TOML subset those two callers need is
// implemented: [section] headers, `key = "string" | number | bool`, dotted
// keys, and inline tables.
package configio

import (
	"fmt"
	"os"
	"strings"
)

// File is a parsed config file, keyed section -> field -> raw value text.
// Raw values stay strings; the runtime parses them against the declared
// field type (runtimetype.ParseEnvValue), the same path env overrides take.
type File struct {
	sections map[string]map[string]string
}

// Empty returns a File with no sections, the stand-in when no config file
// exists on disk (every field then falls back to its declared default).
func Empty() *File {
	return &File{sections: make(map[string]map[string]string)}
}

// DefaultPath resolves the config file location: FUSE_CONFIG if set, else
// ./config.toml.
func DefaultPath(getenv func(string) (string, bool)) string {
	if p, ok := getenv("FUSE_CONFIG"); ok && p != "" {
		return p
	}
	return "config.toml"
}

// Load parses the file at path. A missing file is not an error — it yields
// an empty File, since every config field carries a declared default.
func Load(path string) (*File, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Empty(), nil
		}
		return nil, err
	}
	return Parse(string(b))
}

// Parse reads the minimal TOML subset the toolchain consumes.
func Parse(src string) (*File, error) {
	f := Empty()
	section := ""
	for ln, line := range strings.Split(src, "\n") {
		line = stripComment(line)
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "[") {
			if !strings.HasSuffix(line, "]") {
				return nil, fmt.Errorf("line %d: unterminated section header", ln+1)
			}
			section = strings.TrimSpace(line[1 : len(line)-1])
			if f.sections[section] == nil {
				f.sections[section] = make(map[string]string)
			}
			continue
		}
		key, val, ok := splitKeyValue(line)
		if !ok {
			return nil, fmt.Errorf("line %d: expected key = value", ln+1)
		}
		f.set(section, key, val)
	}
	return f, nil
}

func (f *File) set(section, key, rawVal string) {
	// Dotted keys nest: `a.b = v` under section s is section "s.a" (or
	// just "a" at top level) field "b".
	if idx := strings.LastIndexByte(key, '.'); idx >= 0 {
		prefix := key[:idx]
		if section != "" {
			section = section + "." + prefix
		} else {
			section = prefix
		}
		key = key[idx+1:]
	}
	if f.sections[section] == nil {
		f.sections[section] = make(map[string]string)
	}
	f.sections[section][key] = parseScalar(rawVal)
}

// Value implements rtcore.ConfigSource.
func (f *File) Value(section, field string) (string, bool) {
	fields, ok := f.sections[section]
	if !ok {
		return "", false
	}
	v, ok := fields[field]
	return v, ok
}

// Dependencies extracts the [dependencies] table as name -> declared path,
// accepting three syntaxes:
//
//	name = "path"
//	name = { path = "path" }
//	name.path = "path"
func (f *File) Dependencies() map[string]string {
	deps := make(map[string]string)
	for name, raw := range f.sections["dependencies"] {
		if p, ok := inlineTablePath(raw); ok {
			deps[name] = p
			continue
		}
		deps[name] = raw
	}
	for section, fields := range f.sections {
		rest, ok := strings.CutPrefix(section, "dependencies.")
		if !ok {
			continue
		}
		if p, ok := fields["path"]; ok {
			deps[rest] = p
		}
	}
	return deps
}

func stripComment(line string) string {
	inStr := false
	for i := 0; i < len(line); i++ {
		switch line[i] {
		case '"':
			inStr = !inStr
		case '#':
			if !inStr {
				return line[:i]
			}
		}
	}
	return line
}

func splitKeyValue(line string) (key, val string, ok bool) {
	idx := strings.IndexByte(line, '=')
	if idx < 0 {
		return "", "", false
	}
	return strings.TrimSpace(line[:idx]), strings.TrimSpace(line[idx+1:]), true
}

// parseScalar unquotes strings; numbers and bools keep their literal text,
// which is what the type-directed env parser expects.
func parseScalar(raw string) string {
	if len(raw) >= 2 && raw[0] == '"' && raw[len(raw)-1] == '"' {
		return raw[1 : len(raw)-1]
	}
	return raw
}

// inlineTablePath reads `{ path = "..." }`.
func inlineTablePath(raw string) (string, bool) {
	if !strings.HasPrefix(raw, "{") || !strings.HasSuffix(raw, "}") {
		return "", false
	}
	inner := strings.TrimSpace(raw[1 : len(raw)-1])
	for _, part := range strings.Split(inner, ",") {
		k, v, ok := splitKeyValue(strings.TrimSpace(part))
		if ok && k == "path" {
			return parseScalar(v), true
		}
	}
	return "", false
}
