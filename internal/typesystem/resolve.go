package typesystem

import "github.com/fuselang/fuse/internal/ast"

// resolveTypeRef turns an as-written ast.TypeRef into a resolved Ty,
// consulting this module's own symbol table and, for names reached via an
// import, the imported module's table.
func (c *Checker) resolveTypeRef(ty *ast.TypeRef) *Ty {
	if ty == nil {
		return Unknown()
	}
	switch ty.Kind {
	case ast.TRSimple:
		return c.resolveSimpleName(ty.Name)
	case ast.TROptional:
		return OptionOf(c.resolveTypeRef(ty.Inner))
	case ast.TRResult:
		okTy := c.resolveTypeRef(ty.Ok)
		var errTy *Ty
		if ty.Err != nil {
			errTy = c.resolveTypeRef(ty.Err)
		} else {
			errTy = Prim(TError)
		}
		return ResultOf(okTy, errTy)
	case ast.TRGeneric:
		switch ty.Base {
		case "Option":
			if len(ty.Args) == 1 {
				return OptionOf(c.resolveTypeRef(ty.Args[0]))
			}
		case "List":
			if len(ty.Args) == 1 {
				return ListOf(c.resolveTypeRef(ty.Args[0]))
			}
		case "Map":
			if len(ty.Args) == 2 {
				return MapOf(c.resolveTypeRef(ty.Args[0]), c.resolveTypeRef(ty.Args[1]))
			}
		case "Task":
			if len(ty.Args) == 1 {
				return TaskOf(c.resolveTypeRef(ty.Args[0]))
			}
		case "Range":
			if len(ty.Args) == 1 {
				return RangeOf(c.resolveTypeRef(ty.Args[0]))
			}
		case "Boxed":
			if len(ty.Args) == 1 {
				return BoxedOf(c.resolveTypeRef(ty.Args[0]))
			}
		}
		return ExternalTy(ty.Base)
	case ast.TRRefined:
		return RefinedTy(ty.RefinedBase, renderRefinedRepr(ty.RefinedArgs))
	}
	return Unknown()
}

func renderRefinedRepr(args []ast.Expr) string {
	if len(args) == 0 {
		return ""
	}
	s := ""
	for i, a := range args {
		if i > 0 {
			s += ","
		}
		switch lit := a.(type) {
		case *ast.IntLit:
			s += itoa(lit.Value)
		case *ast.StringLit:
			s += lit.Value
		default:
			s += "expr"
		}
	}
	return s
}

func itoa(v int64) string {
	if v == 0 {
		return "0"
	}
	neg := v < 0
	if neg {
		v = -v
	}
	var buf [20]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

func (c *Checker) resolveSimpleName(name string) *Ty {
	if k, ok := primitiveNames[name]; ok {
		return Prim(k)
	}
	if _, ok := c.syms.Types[name]; ok {
		return StructTy(name)
	}
	if _, ok := c.syms.Enums[name]; ok {
		return EnumTy(name)
	}
	if _, ok := c.syms.Configs[name]; ok {
		return ConfigTy(name)
	}
	if link, ok := c.unit.ImportItems[name]; ok {
		if other, ok := c.allSyms[link.Id]; ok {
			if _, ok := other.Types[name]; ok {
				return StructTy(name)
			}
			if _, ok := other.Enums[name]; ok {
				return EnumTy(name)
			}
			if _, ok := other.Configs[name]; ok {
				return ConfigTy(name)
			}
		}
	}
	if _, ok := c.unit.Modules[name]; ok {
		return ModuleTy(name)
	}
	return ExternalTy(name)
}
