package modules

// stdIndex is the embedded index of synthetic std modules. Builtins
// such as print, log, env, serve, db.exec/query/one, assert, and range are
// dispatched by name at the Call{kind: Builtin} site rather than
// resolved through a module, so most std.* paths materialize as an empty
// module; only std.error declares the well-known domain-error structs that
// `?!` and service routes render by name.
var stdIndex = map[string]string{
	"std.error": `
type ValidationError:
  message: String
  fields: List<String>

type BadRequest:
  message: String

type Unauthorized:
  message: String

type Forbidden:
  message: String

type NotFound:
  message: String

type Conflict:
  message: String
`,
}

// stdModuleSource returns the synthetic source text for a std import path,
// or an empty module body for any std.* path not present in the index.
func stdModuleSource(virtualPath string) string {
	name := virtualPath
	if len(name) >= 2 && name[0] == '<' && name[len(name)-1] == '>' {
		name = name[1 : len(name)-1]
	}
	if src, ok := stdIndex[name]; ok {
		return src
	}
	return ""
}
