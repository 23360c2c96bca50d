package vm

import (
	"github.com/fuselang/fuse/internal/ast"
	"github.com/fuselang/fuse/internal/ir"
	"github.com/fuselang/fuse/internal/lower"
	"github.com/fuselang/fuse/internal/value"
	"github.com/fuselang/fuse/internal/valueops"
)

// run drives one frame's instruction stream to its OpReturn. Every
// function the lowerer emits ends in Push(Unit); Return, so this loop never
// falls off the end of Code under well-formed IR.
func (vm *VM) run(f *frame) (value.Value, *vmErr) {
	for {
		if f.ip < 0 || f.ip >= len(f.fn.Code) {
			return value.Unit(), runtimeErr("instruction pointer out of range")
		}
		instr := f.fn.Code[f.ip]
		f.ip++

		switch instr.Op {
		case ir.OpPush:
			f.push(pushConst(instr))
		case ir.OpPop:
			if _, ok := f.pop(); !ok {
				return value.Unit(), runtimeErr("stack underflow on Pop")
			}
		case ir.OpDup:
			v, ok := f.top()
			if !ok {
				return value.Unit(), runtimeErr("stack underflow on Dup")
			}
			f.push(v)

		case ir.OpLoadLocal:
			if instr.Slot < 0 || instr.Slot >= len(f.locals) {
				return value.Unit(), runtimeErr("invalid local slot %d", instr.Slot)
			}
			f.push(f.locals[instr.Slot])
		case ir.OpStoreLocal:
			v, ok := f.pop()
			if !ok {
				return value.Unit(), runtimeErr("stack underflow on StoreLocal")
			}
			if instr.Slot < 0 || instr.Slot >= len(f.locals) {
				return value.Unit(), runtimeErr("invalid local slot %d", instr.Slot)
			}
			f.locals[instr.Slot] = v

		case ir.OpNeg:
			v, ok := f.pop()
			if !ok {
				return value.Unit(), runtimeErr("stack underflow on Neg")
			}
			switch {
			case v.IsInt():
				f.push(value.Int(-v.AsInt()))
			case v.IsFloat():
				f.push(value.Float(-v.AsFloat()))
			default:
				return value.Unit(), runtimeErr("cannot negate %s", v.TypeName())
			}
		case ir.OpNot:
			v, ok := f.pop()
			if !ok {
				return value.Unit(), runtimeErr("stack underflow on Not")
			}
			f.push(value.Bool(!v.Truthy()))

		case ir.OpAdd, ir.OpSub, ir.OpMul, ir.OpDiv, ir.OpMod, ir.OpEq, ir.OpNotEq,
			ir.OpLt, ir.OpLtEq, ir.OpGt, ir.OpGtEq, ir.OpRange:
			r, ok1 := f.pop()
			l, ok2 := f.pop()
			if !ok1 || !ok2 {
				return value.Unit(), runtimeErr("stack underflow on binary operator")
			}
			out, err := valueops.ApplyBinary(opSymbol(instr.Op), l, r)
			if err != nil {
				return value.Unit(), runtimeErr("%s", err.Error())
			}
			f.push(out)
		case ir.OpAnd:
			r, ok1 := f.pop()
			l, ok2 := f.pop()
			if !ok1 || !ok2 {
				return value.Unit(), runtimeErr("stack underflow on And")
			}
			f.push(value.Bool(l.Truthy() && r.Truthy()))
		case ir.OpOr:
			r, ok1 := f.pop()
			l, ok2 := f.pop()
			if !ok1 || !ok2 {
				return value.Unit(), runtimeErr("stack underflow on Or")
			}
			f.push(value.Bool(l.Truthy() || r.Truthy()))

		case ir.OpJump:
			f.ip = instr.Jump
		case ir.OpJumpIfFalse:
			v, ok := f.pop()
			if !ok {
				return value.Unit(), runtimeErr("stack underflow on JumpIfFalse")
			}
			if !v.IsBool() {
				return value.Unit(), runtimeErr("condition must be Bool, got %s", v.TypeName())
			}
			if !v.AsBool() {
				f.ip = instr.Jump
			}
		case ir.OpJumpIfNull:
			v, ok := f.pop()
			if !ok {
				return value.Unit(), runtimeErr("stack underflow on JumpIfNull")
			}
			if v.IsNull() {
				f.ip = instr.Jump
			}
		case ir.OpReturn:
			v, ok := f.pop()
			if !ok {
				return value.Unit(), runtimeErr("stack underflow on Return")
			}
			return v, nil
		case ir.OpRuntimeError:
			return value.Unit(), runtimeErr("%s", instr.Str)

		case ir.OpCall:
			if err := vm.execCall(f, instr); err != nil {
				return value.Unit(), err
			}

		case ir.OpMakeList:
			elems, err := popN(f, instr.Len)
			if err != nil {
				return value.Unit(), err
			}
			f.push(value.ListOf(elems))
		case ir.OpMakeMap:
			pairs, err := popN(f, instr.Len*2)
			if err != nil {
				return value.Unit(), err
			}
			entries := make(map[string]value.Value, instr.Len)
			for i := 0; i < len(pairs); i += 2 {
				entries[pairs[i].String()] = pairs[i+1]
			}
			f.push(value.MapOf(entries))
		case ir.OpMakeStruct:
			vals, err := popN(f, len(instr.Fields))
			if err != nil {
				return value.Unit(), err
			}
			out, verr := vm.makeStruct(instr.StructName, instr.Fields, vals)
			if verr != nil {
				return value.Unit(), verr
			}
			f.push(out)
		case ir.OpMakeEnum:
			vals, err := popN(f, instr.Argc)
			if err != nil {
				return value.Unit(), err
			}
			out, verr := vm.makeEnum(instr.EnumName, instr.Variant, vals)
			if verr != nil {
				return value.Unit(), verr
			}
			f.push(out)
		case ir.OpMakeBox:
			v, ok := f.pop()
			if !ok {
				return value.Unit(), runtimeErr("stack underflow on MakeBox")
			}
			f.push(value.BoxOf(v))
		case ir.OpInterpString:
			parts, err := popN(f, instr.Parts)
			if err != nil {
				return value.Unit(), err
			}
			out := ""
			for _, p := range parts {
				out += p.String()
			}
			f.push(value.Str(out))

		case ir.OpGetField:
			owner, ok := f.pop()
			if !ok {
				return value.Unit(), runtimeErr("stack underflow on GetField")
			}
			v, verr := getField(owner, instr.Field)
			if verr != nil {
				return value.Unit(), verr
			}
			f.push(v)
		case ir.OpGetOptField:
			owner, ok := f.pop()
			if !ok {
				return value.Unit(), runtimeErr("stack underflow on GetOptField")
			}
			if owner.IsNull() {
				f.push(value.Null())
				break
			}
			v, verr := getField(owner, instr.Field)
			if verr != nil {
				return value.Unit(), verr
			}
			f.push(v)
		case ir.OpSetField:
			val, ok1 := f.pop()
			owner, ok2 := f.pop()
			if !ok1 || !ok2 {
				return value.Unit(), runtimeErr("stack underflow on SetField")
			}
			if verr := setField(owner, instr.Field, val); verr != nil {
				return value.Unit(), verr
			}
		case ir.OpGetIndex:
			idx, ok1 := f.pop()
			owner, ok2 := f.pop()
			if !ok1 || !ok2 {
				return value.Unit(), runtimeErr("stack underflow on GetIndex")
			}
			v, verr := getIndex(owner, idx)
			if verr != nil {
				return value.Unit(), verr
			}
			f.push(v)
		case ir.OpSetIndex:
			val, ok1 := f.pop()
			idx, ok2 := f.pop()
			owner, ok3 := f.pop()
			if !ok1 || !ok2 || !ok3 {
				return value.Unit(), runtimeErr("stack underflow on SetIndex")
			}
			if verr := setIndex(owner, idx, val); verr != nil {
				return value.Unit(), verr
			}
		case ir.OpLoadConfigField:
			v, verr := vm.loadConfigField(instr.Config, instr.Field)
			if verr != nil {
				return value.Unit(), verr
			}
			f.push(v)

		case ir.OpIterInit:
			v, ok := f.pop()
			if !ok {
				return value.Unit(), runtimeErr("stack underflow on IterInit")
			}
			items, err := valueops.IterableItems(v)
			if err != nil {
				return value.Unit(), runtimeErr("%s", err.Error())
			}
			f.push(value.FromObject(&value.Iterator{Values: items}))
		case ir.OpIterNext:
			if instr.Slot < 0 || instr.Slot >= len(f.locals) {
				return value.Unit(), runtimeErr("invalid local slot %d", instr.Slot)
			}
			cell := f.locals[instr.Slot]
			if !cell.IsObj() || cell.ObjKind() != value.KIterator {
				return value.Unit(), runtimeErr("IterNext on non-iterator local")
			}
			it := cell.Obj.(*value.Iterator)
			if it.Pos >= len(it.Values) {
				f.ip = instr.Jump
				break
			}
			item := it.Values[it.Pos]
			it.Pos++
			f.push(item)

		case ir.OpBang:
			if err := vm.execBang(f, instr); err != nil {
				return value.Unit(), err
			}

		case ir.OpMatchLocal:
			if instr.Slot < 0 || instr.Slot >= len(f.locals) {
				return value.Unit(), runtimeErr("invalid local slot %d", instr.Slot)
			}
			subj := f.locals[instr.Slot]
			slotByName := make(map[string]int, len(instr.Bindings))
			for _, b := range instr.Bindings {
				slotByName[b.Name] = b.Slot
			}
			matched := valueops.MatchPattern(instr.Pattern, subj, func(name string, v value.Value) {
				if slot, ok := slotByName[name]; ok {
					f.locals[slot] = v
				}
			})
			if !matched {
				f.ip = instr.Jump
			}

		case ir.OpSpawn:
			if err := vm.execSpawn(f, instr); err != nil {
				return value.Unit(), err
			}
		case ir.OpAwait:
			if err := vm.execAwait(f); err != nil {
				return value.Unit(), err
			}

		default:
			return value.Unit(), runtimeErr("unknown opcode %d", instr.Op)
		}
	}
}

func pushConst(instr ir.Instr) value.Value {
	switch instr.ConstKind {
	case ir.ConstInt:
		return value.Int(instr.Int)
	case ir.ConstFloat:
		return value.Float(instr.Float)
	case ir.ConstString:
		return value.Str(instr.Str)
	case ir.ConstBool:
		return value.Bool(instr.Bool)
	case ir.ConstNull:
		return value.Null()
	default:
		return value.Unit()
	}
}

// popN pops n values off the frame's stack and returns them in push order
// (oldest first), matching lower.go's left-to-right argument evaluation.
func popN(f *frame, n int) ([]value.Value, *vmErr) {
	if n == 0 {
		return nil, nil
	}
	out := make([]value.Value, n)
	for i := n - 1; i >= 0; i-- {
		v, ok := f.pop()
		if !ok {
			return nil, runtimeErr("stack underflow popping %d values", n)
		}
		out[i] = v
	}
	return out, nil
}

var binOpSymbols = map[ir.Op]string{
	ir.OpAdd: "+", ir.OpSub: "-", ir.OpMul: "*", ir.OpDiv: "/", ir.OpMod: "%",
	ir.OpEq: "==", ir.OpNotEq: "!=", ir.OpLt: "<", ir.OpLtEq: "<=",
	ir.OpGt: ">", ir.OpGtEq: ">=", ir.OpRange: "..",
}

func opSymbol(op ir.Op) string { return binOpSymbols[op] }

// getField reads a struct/boxed field the same way interp.evalMemberOn
// does for its Struct/Boxed cases.
func getField(owner value.Value, name string) (value.Value, *vmErr) {
	if !owner.IsObj() {
		return value.Unit(), runtimeErr("cannot access field %s of %s", name, owner.TypeName())
	}
	switch owner.ObjKind() {
	case value.KStruct:
		s := owner.Obj.(*value.Struct)
		v, ok := s.Fields[name]
		if !ok {
			return value.Unit(), runtimeErr("unknown field %s of %s", name, s.Name)
		}
		return v, nil
	case value.KBoxed:
		return getField(*owner.Obj.(*value.Boxed).Cell, name)
	default:
		return value.Unit(), runtimeErr("cannot access field %s of %s", name, owner.TypeName())
	}
}

func setField(owner value.Value, name string, v value.Value) *vmErr {
	if !owner.IsObj() {
		return runtimeErr("cannot assign field %s of %s", name, owner.TypeName())
	}
	switch owner.ObjKind() {
	case value.KStruct:
		owner.Obj.(*value.Struct).Fields[name] = v
		return nil
	case value.KBoxed:
		return setField(*owner.Obj.(*value.Boxed).Cell, name, v)
	default:
		return runtimeErr("cannot assign field %s of %s", name, owner.TypeName())
	}
}

func getIndex(owner, idx value.Value) (value.Value, *vmErr) {
	if !owner.IsObj() {
		return value.Unit(), runtimeErr("cannot index %s", owner.TypeName())
	}
	switch owner.ObjKind() {
	case value.KList:
		l := owner.Obj.(*value.List)
		if !idx.IsInt() {
			return value.Unit(), runtimeErr("list index must be Int")
		}
		n := idx.AsInt()
		if n < 0 || int(n) >= len(l.Elems) {
			return value.Unit(), runtimeErr("list index out of range: %d", n)
		}
		return l.Elems[n], nil
	case value.KMap:
		m := owner.Obj.(*value.Map)
		v, ok := m.Entries[idx.String()]
		if !ok {
			return value.Null(), nil
		}
		return v, nil
	case value.KBoxed:
		return getIndex(*owner.Obj.(*value.Boxed).Cell, idx)
	default:
		return value.Unit(), runtimeErr("cannot index %s", owner.TypeName())
	}
}

func setIndex(owner, idx, v value.Value) *vmErr {
	if !owner.IsObj() {
		return runtimeErr("cannot index-assign %s", owner.TypeName())
	}
	switch owner.ObjKind() {
	case value.KList:
		l := owner.Obj.(*value.List)
		if !idx.IsInt() {
			return runtimeErr("list index must be Int")
		}
		n := idx.AsInt()
		if n < 0 || int(n) >= len(l.Elems) {
			return runtimeErr("list index out of range: %d", n)
		}
		l.Elems[n] = v
		return nil
	case value.KMap:
		m := owner.Obj.(*value.Map)
		m.Entries[idx.String()] = v
		return nil
	case value.KBoxed:
		return setIndex(*owner.Obj.(*value.Boxed).Cell, idx, v)
	default:
		return runtimeErr("cannot index-assign %s", owner.TypeName())
	}
}

// makeStruct fills in declared defaults for fields the literal omitted,
// evaluating each missing field's default through its lowered
// type-default function rather than re-walking the AST.
func (vm *VM) makeStruct(name string, fieldNames []string, vals []value.Value) (value.Value, *vmErr) {
	fields := make(map[string]value.Value, len(fieldNames))
	given := make(map[string]bool, len(fieldNames))
	for i, fn := range fieldNames {
		fields[fn] = vals[i]
		given[fn] = true
	}
	decls, ok := vm.typeFields[name]
	if !ok {
		return value.StructOf(name, fields), nil
	}
	ownerMod := vm.typeOwner[name]
	err := valueops.FillStructDefaults(name, decls, fields, given, func(d ast.Expr) (value.Value, error) {
		fnName := lower.TypeDefaultName(ownerMod, name, defaultFieldName(decls, d))
		v, callErr := vm.callNamed(fnName, nil)
		if callErr != nil {
			return value.Unit(), callErr
		}
		return v, nil
	})
	if err == nil {
		err = valueops.ValidateStructFields(decls, fields, given)
	}
	if err != nil {
		if ve, ok := err.(*vmErr); ok {
			return value.Unit(), ve
		}
		if derr, ok := err.(*valueops.DomainErr); ok {
			return value.Unit(), domainErr(derr.Value)
		}
		return value.Unit(), runtimeErr("%s", err.Error())
	}
	return value.StructOf(name, fields), nil
}

// defaultFieldName finds which declared field d (a Default expr pointer)
// belongs to, since valueops.FillStructDefaults's callback only receives
// the AST node, not the field name; the VM needs the name to build the
// lowered type-default function's qualified name.
func defaultFieldName(decls []*ast.FieldDecl, d ast.Expr) string {
	for _, fd := range decls {
		if fd.Default == d {
			return fd.Name
		}
	}
	return ""
}

// makeEnum constructs an enum value, special-casing the built-in
// Option/Result constructors the parser/lowerer never resolve to a real
// EnumDecl (interp's evalCall does the same for Some/Ok/Err).
func (vm *VM) makeEnum(enumName, variant string, args []value.Value) (value.Value, *vmErr) {
	if enumName == "" {
		switch variant {
		case "Some":
			if len(args) != 1 {
				return value.Unit(), runtimeErr("Some() takes exactly one argument")
			}
			return args[0], nil
		case "Ok":
			if len(args) != 1 {
				return value.Unit(), runtimeErr("Ok() takes exactly one argument")
			}
			return value.Ok(args[0]), nil
		case "Err":
			if len(args) != 1 {
				return value.Unit(), runtimeErr("Err() takes exactly one argument")
			}
			return value.Err(args[0]), nil
		}
	}
	return value.EnumOf(enumName, variant, args), nil
}

// loadConfigField realizes (on first access) and reads one config field
// (configs are realised on first access), evaluating a
// missing field's default through its lowered config-default function.
func (vm *VM) loadConfigField(cfgName, field string) (value.Value, *vmErr) {
	ownerMod, ok := vm.cfgOwner[cfgName]
	if !ok {
		return value.Unit(), runtimeErr("unknown config %s", cfgName)
	}
	v, err := vm.Host.ConfigField(cfgName, field, func(_ ast.Expr) (value.Value, error) {
		fnName := lower.ConfigDefaultName(ownerMod, cfgName, field)
		out, callErr := vm.callNamed(fnName, nil)
		if callErr != nil {
			return value.Unit(), callErr
		}
		return out, nil
	})
	if err != nil {
		return value.Unit(), fromOpErr(err)
	}
	return v, nil
}

// execBang implements the `?!` semantics, shared in meaning (not code,
// since the VM operates on a stack rather than an AST node) with
// interp.evalBangChain.
func (vm *VM) execBang(f *frame, instr ir.Instr) *vmErr {
	subj, ok := f.pop()
	if !ok {
		return runtimeErr("stack underflow on Bang")
	}
	var userErr *value.Value
	if instr.HasError {
		ev, ok := f.pop()
		if !ok {
			return runtimeErr("stack underflow on Bang error operand")
		}
		userErr = &ev
	}
	if subj.IsNull() {
		if userErr != nil {
			return domainErr(*userErr)
		}
		return domainErr(defaultNotFound())
	}
	if subj.IsObj() {
		switch subj.ObjKind() {
		case value.KResultOk:
			f.push(subj.Obj.(*value.ResultOk).Inner)
			return nil
		case value.KResultErr:
			if userErr != nil {
				return domainErr(*userErr)
			}
			return domainErr(subj.Obj.(*value.ResultErr).Inner)
		}
	}
	return runtimeErr("?! requires Option or Result, got %s", subj.TypeName())
}

func defaultNotFound() value.Value {
	return value.StructOf("NotFound", map[string]value.Value{"message": value.Str("not found")})
}

// execCall dispatches Call{Function} to the flat function table and
// Call{Builtin} to the shared builtin dispatch.
func (vm *VM) execCall(f *frame, instr ir.Instr) *vmErr {
	args, perr := popN(f, instr.Argc)
	if perr != nil {
		return perr
	}
	switch instr.CallKind {
	case ir.CallFunction:
		fn, ok := vm.Prog.Functions[instr.Name]
		if !ok {
			return runtimeErr("unknown function %s", instr.Name)
		}
		out, err := vm.callFunction(fn, args)
		if err != nil {
			return err
		}
		f.push(out)
		return nil
	case ir.CallBuiltin:
		out, err := vm.callBuiltin(instr.Name, args, f)
		if err != nil {
			return err
		}
		f.push(out)
		return nil
	default:
		return runtimeErr("unknown call kind")
	}
}

// execSpawn creates a lazy Task: the lifted function does not run
// until an await forces it; a task still unforced when the entry point
// returns is discarded without running.
func (vm *VM) execSpawn(f *frame, instr ir.Instr) *vmErr {
	args, perr := popN(f, instr.Argc)
	if perr != nil {
		return perr
	}
	fnName := instr.SpawnFn
	task := &pendingTask{run: func() (value.Value, *vmErr) {
		fn, ok := vm.Prog.Functions[fnName]
		if !ok {
			return value.Unit(), runtimeErr("unknown spawned function %s", fnName)
		}
		return vm.callFunction(fn, args)
	}}
	vm.tasks = append(vm.tasks, task)
	f.push(value.FromObject(&value.Task{}))
	return nil
}

// execAwait drives the most recently spawned unforced task to completion
// (ordering of multiple awaits is source order).
func (vm *VM) execAwait(f *frame) *vmErr {
	target, ok := f.pop()
	if !ok {
		return runtimeErr("stack underflow on Await")
	}
	if !target.IsObj() || target.ObjKind() != value.KTask {
		return runtimeErr("await requires a Task")
	}
	var task *pendingTask
	for _, t := range vm.tasks {
		if !t.forced {
			task = t
			break
		}
	}
	if task == nil {
		return runtimeErr("await on unknown task")
	}
	if !task.forced {
		task.result, task.err = task.run()
		task.forced = true
	}
	if task.err != nil {
		return task.err
	}
	f.push(task.result)
	return nil
}
