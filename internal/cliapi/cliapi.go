// Package cliapi is the core's single command-line entry point:
// `Run(args) -> exit_code`. The cobra shell in cmd/fuse only parses its
// own help surface and hands the raw argument vector here untouched, so
// the mode-selection and flag-binding contract lives in one place.
package cliapi

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/fuselang/fuse/internal/ast"
	"github.com/fuselang/fuse/internal/builtinerr"
	"github.com/fuselang/fuse/internal/canon"
	"github.com/fuselang/fuse/internal/configio"
	"github.com/fuselang/fuse/internal/dbstore"
	"github.com/fuselang/fuse/internal/diagnostics"
	"github.com/fuselang/fuse/internal/fmtprinter"
	"github.com/fuselang/fuse/internal/httpserve"
	"github.com/fuselang/fuse/internal/interp"
	"github.com/fuselang/fuse/internal/lower"
	"github.com/fuselang/fuse/internal/modules"
	"github.com/fuselang/fuse/internal/openapi"
	"github.com/fuselang/fuse/internal/rtcore"
	"github.com/fuselang/fuse/internal/rtlog"
	"github.com/fuselang/fuse/internal/runtimetype"
	"github.com/fuselang/fuse/internal/symbols"
	"github.com/fuselang/fuse/internal/typesystem"
	"github.com/fuselang/fuse/internal/value"
	"github.com/fuselang/fuse/internal/vm"
)

const usage = "usage: fuse [--dump-ast] [--check] [--fmt] [--openapi] [--run] [--migrate] [--test] [--backend ast|vm|native] [--app NAME] <file> [-- program args]"

type backend int

const (
	backendAst backend = iota
	backendVm
	backendNative
)

// Options carries the process surface Run binds to; zero fields default
// to the real OS streams and environment.
type Options struct {
	Stdout io.Writer
	Stderr io.Writer
	Getenv func(string) (string, bool)
}

func (o *Options) fill() {
	if o.Stdout == nil {
		o.Stdout = os.Stdout
	}
	if o.Stderr == nil {
		o.Stderr = os.Stderr
	}
	if o.Getenv == nil {
		o.Getenv = os.LookupEnv
	}
}

// Run executes one toolchain invocation and returns the process exit code
// 0 success, 1 compile/load/semantic/migration/test/plain
// runtime failure, 2 structured validation or domain error.
func Run(args []string) int {
	return RunWithOptions(args, Options{})
}

func RunWithOptions(args []string, opts Options) int {
	opts.fill()

	var (
		dumpAst, check, doRun, doFmt, doOpenapi bool
		migrate, test                           bool
		backendForced                           bool
		be                                      = backendAst
		appName                                 string
		path                                    string
		programArgs                             []string
	)

	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--" {
			programArgs = append(programArgs, args[i+1:]...)
			break
		}
		switch arg {
		case "--dump-ast":
			dumpAst = true
		case "--check":
			check = true
		case "--fmt":
			doFmt = true
		case "--openapi":
			doOpenapi = true
		case "--run":
			doRun = true
		case "--migrate":
			migrate = true
		case "--test":
			test = true
		case "--backend":
			if i+1 >= len(args) {
				fmt.Fprintln(opts.Stderr, "--backend expects a name")
				fmt.Fprintln(opts.Stderr, usage)
				return 1
			}
			i++
			backendForced = true
			switch args[i] {
			case "ast":
				be = backendAst
			case "vm":
				be = backendVm
			case "native":
				be = backendNative
			default:
				fmt.Fprintf(opts.Stderr, "unknown backend: %s\n", args[i])
				fmt.Fprintln(opts.Stderr, usage)
				return 1
			}
		case "--app":
			if i+1 >= len(args) {
				fmt.Fprintln(opts.Stderr, "--app expects a name")
				fmt.Fprintln(opts.Stderr, usage)
				return 1
			}
			i++
			appName = args[i]
		default:
			if path == "" {
				path = arg
			} else {
				programArgs = append(programArgs, arg)
			}
		}
	}

	if path == "" {
		fmt.Fprintln(opts.Stderr, usage)
		return 1
	}

	srcBytes, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(opts.Stderr, "failed to read %s: %v\n", path, err)
		return 1
	}
	src := string(srcBytes)

	if doFmt {
		formatted, diags := fmtprinter.FormatSource(src)
		if hasErrors(diags) {
			reportDiagSlice(opts.Stderr, diags)
			return 1
		}
		if formatted != src {
			if err := os.WriteFile(path, []byte(formatted), 0o644); err != nil {
				fmt.Fprintf(opts.Stderr, "failed to write %s: %v\n", path, err)
				return 1
			}
		}
		return 0
	}

	reg, diags := loadRegistry(path, src)
	if diags.Len() > 0 {
		reportDiags(opts.Stderr, diags)
		return 1
	}
	root := reg.RootUnit()
	if root == nil {
		fmt.Fprintln(opts.Stderr, "no root module loaded")
		return 1
	}

	if doOpenapi {
		doc, err := openapi.Generate(reg)
		if err != nil {
			fmt.Fprintf(opts.Stderr, "openapi error: %v\n", err)
			return 1
		}
		fmt.Fprintln(opts.Stdout, doc)
		return 0
	}

	// Every remaining mode works on the analyzed registry.
	syms, semDiags := analyze(reg)
	needsSema := check || migrate || test || doRun
	if needsSema && semDiags.Len() > 0 {
		reportDiags(opts.Stderr, semDiags)
		return 1
	}

	host := rtcore.NewHost(reg, syms)
	host.Stdout = opts.Stdout
	host.Stderr = opts.Stderr
	host.Getenv = opts.Getenv
	host.HTTP = httpserve.New()
	host.DB = &lazyDB{getenv: opts.Getenv}
	cfgFile, err := configio.Load(configio.DefaultPath(opts.Getenv))
	if err != nil {
		fmt.Fprintf(opts.Stderr, "config error: %v\n", err)
		return 1
	}
	host.Config = cfgFile

	if migrate {
		if code := runMigrations(reg, syms, host, opts); code != 0 {
			return code
		}
		if !doRun {
			return 0
		}
	}

	if test {
		if code := runTests(reg, syms, host, opts); code != 0 {
			return code
		}
		if !doRun {
			return 0
		}
	}

	if doRun {
		if !backendForced {
			if len(programArgs) > 0 {
				be = backendAst
			} else {
				be = backendVm
			}
		}
		if code := runProgram(reg, syms, host, be, appName, programArgs, opts); code != 0 {
			return code
		}
	}

	if dumpAst {
		dumpProgram(opts.Stdout, root.Program)
	}
	return 0
}

// loadRegistry resolves the root manifest's dependency table (if a
// fuse.toml sits next to the entry file) before loading, so `dep:` imports
// resolve.
func loadRegistry(path, src string) (*modules.Registry, *diagnostics.Diagnostics) {
	manifest := filepath.Join(filepath.Dir(path), "fuse.toml")
	if f, err := configio.Load(manifest); err == nil {
		if deps := f.Dependencies(); len(deps) > 0 {
			resolved := make(map[string]string, len(deps))
			for name, depPath := range deps {
				if !filepath.IsAbs(depPath) {
					depPath = filepath.Join(filepath.Dir(path), depPath)
				}
				resolved[name] = depPath
			}
			return modules.LoadWithDeps(path, src, resolved)
		}
	}
	return modules.Load(path, src)
}

// analyze canonicalizes, collects symbols, and type-checks the registry,
// running strict capability validation when any module opted in with a
// `requires` declaration.
func analyze(reg *modules.Registry) (map[modules.ModuleId]*symbols.ModuleSymbols, *diagnostics.Diagnostics) {
	diags := &diagnostics.Diagnostics{}
	canon.Registry(reg)
	syms := symbols.CollectRegistry(reg, diags)

	strict := false
	var reports []typesystem.ModuleReport
	for _, unit := range reg.Ordered() {
		checker := typesystem.NewChecker(unit.Id, unit, syms[unit.Id], syms, diags)
		checker.CheckProgram()
		var declared []string
		for _, req := range unit.Program.Requires {
			declared = append(declared, req.Capabilities...)
		}
		if len(declared) > 0 {
			strict = true
		}
		reports = append(reports, typesystem.ModuleReport{
			Unit:     unit,
			Syms:     syms[unit.Id],
			Declared: declared,
			Used:     typesystem.NormalizeUsed(checker.UsedCapabilities()),
		})
	}
	if strict {
		typesystem.CheckCapabilitiesStrict(reports, diags)
	}
	return syms, diags
}

func runMigrations(reg *modules.Registry, syms map[modules.ModuleId]*symbols.ModuleSymbols, host *rtcore.Host, opts Options) int {
	jobs, err := collectNamed(reg, syms, func(s *symbols.ModuleSymbols) []string {
		return sortedKeys(s.Migrations)
	}, "migration")
	if err != nil {
		fmt.Fprintf(opts.Stderr, "migration error: %v\n", err)
		return 1
	}
	if len(jobs) == 0 {
		return 0
	}

	store, err := dbstore.Open(dbstore.DefaultPath(opts.Getenv))
	if err != nil {
		fmt.Fprintf(opts.Stderr, "migration error: %v\n", err)
		return 1
	}
	defer store.Close()
	if err := store.EnsureMigrationLog(); err != nil {
		fmt.Fprintf(opts.Stderr, "migration error: %v\n", err)
		return 1
	}
	applied, err := store.AppliedMigrations()
	if err != nil {
		fmt.Fprintf(opts.Stderr, "migration error: %v\n", err)
		return 1
	}
	host.DB = store

	engine := interp.New(reg, syms, host)
	for _, job := range jobs {
		if applied[job.name] {
			continue
		}
		if sig := engine.RunMigrationAt(job.module, job.name); sig != nil {
			fmt.Fprintf(opts.Stderr, "migration error: %s\n", sig.Error())
			return 1
		}
		runId, err := store.RecordMigration(job.name)
		if err != nil {
			fmt.Fprintf(opts.Stderr, "migration error: %v\n", err)
			return 1
		}
		rtlog.L().Debugw("migration applied", "name", job.name, "run", runId)
	}
	return 0
}

func runTests(reg *modules.Registry, syms map[modules.ModuleId]*symbols.ModuleSymbols, host *rtcore.Host, opts Options) int {
	jobs, err := collectNamed(reg, syms, func(s *symbols.ModuleSymbols) []string {
		return sortedKeys(s.Tests)
	}, "test")
	if err != nil {
		fmt.Fprintf(opts.Stderr, "test error: %v\n", err)
		return 1
	}
	if len(jobs) == 0 {
		fmt.Fprintln(opts.Stdout, "0 tests")
		return 0
	}

	engine := interp.New(reg, syms, host)
	failed := 0
	for _, job := range jobs {
		ok, sig := engine.RunTestAt(job.module, job.name)
		if ok {
			fmt.Fprintf(opts.Stdout, "ok %s\n", job.name)
			continue
		}
		failed++
		if sig != nil {
			fmt.Fprintf(opts.Stdout, "FAILED %s: %s\n", job.name, sig.Error())
		} else {
			fmt.Fprintf(opts.Stdout, "FAILED %s\n", job.name)
		}
	}
	if failed == 0 {
		fmt.Fprintf(opts.Stdout, "ok (%d tests)\n", len(jobs))
		return 0
	}
	fmt.Fprintf(opts.Stdout, "FAILED (%d failed of %d tests)\n", failed, len(jobs))
	return 1
}

type namedJob struct {
	name   string
	module modules.ModuleId
	path   string
}

// collectNamed gathers migration/test names registry-wide, sorted by
// (name, module path), rejecting duplicates.
func collectNamed(reg *modules.Registry, syms map[modules.ModuleId]*symbols.ModuleSymbols, names func(*symbols.ModuleSymbols) []string, kind string) ([]namedJob, error) {
	var jobs []namedJob
	seen := make(map[string]string)
	for _, unit := range reg.Ordered() {
		s := syms[unit.Id]
		if s == nil {
			continue
		}
		for _, name := range names(s) {
			if strings.TrimSpace(name) == "" {
				return nil, fmt.Errorf("%s name cannot be empty", kind)
			}
			if prev, dup := seen[name]; dup {
				return nil, fmt.Errorf("duplicate %s %s (also declared in %s)", kind, name, prev)
			}
			seen[name] = unit.Path
			jobs = append(jobs, namedJob{name: name, module: unit.Id, path: unit.Path})
		}
	}
	sort.Slice(jobs, func(i, j int) bool {
		if jobs[i].name != jobs[j].name {
			return jobs[i].name < jobs[j].name
		}
		return jobs[i].path < jobs[j].path
	})
	return jobs, nil
}

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func runProgram(reg *modules.Registry, syms map[modules.ModuleId]*symbols.ModuleSymbols, host *rtcore.Host, be backend, appName string, programArgs []string, opts Options) int {
	if len(programArgs) > 0 {
		return runMain(reg, syms, host, be, programArgs, opts)
	}

	switch be {
	case backendAst:
		engine := interp.New(reg, syms, host)
		if sig := engine.RunApp(appName); sig != nil {
			return reportRunError(opts.Stderr, sig.Kind == interp.SigError, sig.Value, sig.Error())
		}
	default:
		// The native backend executes the same lowered IR through the VM
		// runner; there is no separate code generator.
		prog := lower.New(reg, syms).Lower()
		machine := vm.New(prog, reg, syms, host)
		if err := machine.RunApp(appName); err != nil {
			structured, val := vm.ErrorValue(err)
			return reportRunError(opts.Stderr, structured, val, err.Error())
		}
	}
	return 0
}

// runMain implements program-argument binding: everything after
// `--` binds to fn main's parameters by name, validated against the
// declared parameter types.
func runMain(reg *modules.Registry, syms map[modules.ModuleId]*symbols.ModuleSymbols, host *rtcore.Host, be backend, programArgs []string, opts Options) int {
	root := reg.RootUnit()
	mainFn := syms[root.Id].Functions["main"]
	if mainFn == nil {
		fmt.Fprintln(opts.Stderr, "no fn main found for CLI binding")
		return 1
	}

	raw, err := parseProgramArgs(programArgs)
	if err != nil {
		emitValidation(opts.Stderr, []runtimetype.FieldError{{Path: "$", Code: "invalid_args", Message: err.Error()}})
		return 2
	}

	paramNames := make(map[string]bool, len(mainFn.Params))
	for _, p := range mainFn.Params {
		paramNames[p.Name] = true
	}

	var fieldErrs []runtimetype.FieldError
	for _, name := range sortedKeys(raw.values) {
		if !paramNames[name] {
			fieldErrs = append(fieldErrs, runtimetype.FieldError{Path: name, Code: "unknown_flag", Message: "unknown flag"})
		}
	}
	for _, name := range sortedKeys(raw.bools) {
		if !paramNames[name] {
			fieldErrs = append(fieldErrs, runtimetype.FieldError{Path: name, Code: "unknown_flag", Message: "unknown flag"})
		}
	}

	bound := make(map[string]value.Value, len(mainFn.Params))
	for _, p := range mainFn.Params {
		if flag, ok := raw.bools[p.Name]; ok {
			if !isBoolType(p.Type) {
				fieldErrs = append(fieldErrs, runtimetype.FieldError{Path: p.Name, Code: "invalid_type", Message: "expected Bool flag"})
				continue
			}
			bound[p.Name] = value.Bool(flag)
			continue
		}
		if vals, ok := raw.values[p.Name]; ok {
			if len(vals) != 1 {
				fieldErrs = append(fieldErrs, runtimetype.FieldError{Path: p.Name, Code: "invalid_type", Message: "multiple values not supported"})
				continue
			}
			v, err := runtimetype.ParseEnvValue(p.Type, vals[0])
			if err != nil {
				msg := err.Error()
				if verr, ok := err.(*runtimetype.ValidationError); ok && len(verr.Fields) > 0 {
					msg = verr.Fields[0].Message
				}
				fieldErrs = append(fieldErrs, runtimetype.FieldError{Path: p.Name, Code: "invalid_value", Message: msg})
				continue
			}
			bound[p.Name] = v
			continue
		}
		if p.Type.IsOptional() {
			bound[p.Name] = value.Null()
			continue
		}
		fieldErrs = append(fieldErrs, runtimetype.FieldError{Path: p.Name, Code: "missing_field", Message: "missing flag"})
	}

	if len(fieldErrs) > 0 {
		emitValidation(opts.Stderr, fieldErrs)
		return 2
	}

	switch be {
	case backendAst:
		engine := interp.New(reg, syms, host)
		if sig := engine.CallMain(bound); sig != nil {
			if sig.Kind == interp.SigError {
				fmt.Fprintln(opts.Stderr, string(builtinerr.RenderJSON(sig.Value)))
				return 2
			}
			fmt.Fprintln(opts.Stderr, sig.Error())
			return 1
		}
	default:
		prog := lower.New(reg, syms).Lower()
		machine := vm.New(prog, reg, syms, host)
		if err := machine.CallMain(bound); err != nil {
			if structured, val := vm.ErrorValue(err); structured {
				fmt.Fprintln(opts.Stderr, string(builtinerr.RenderJSON(val)))
				return 2
			}
			fmt.Fprintln(opts.Stderr, err.Error())
			return 1
		}
	}
	return 0
}

func reportRunError(stderr io.Writer, structured bool, val value.Value, plain string) int {
	if structured {
		fmt.Fprintln(stderr, string(builtinerr.RenderJSON(val)))
		return 2
	}
	fmt.Fprintf(stderr, "run error: %s\n", plain)
	return 1
}

type rawArgs struct {
	values map[string][]string
	bools  map[string]bool
}

// parseProgramArgs applies the program-argument flag grammar: `--flag VALUE`,
// `--flag=VALUE`, `--no-flag` -> false, bare `--flag` -> true.
func parseProgramArgs(args []string) (*rawArgs, error) {
	raw := &rawArgs{values: make(map[string][]string), bools: make(map[string]bool)}
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if !strings.HasPrefix(arg, "--") {
			return nil, fmt.Errorf("unexpected argument: %s", arg)
		}
		body := arg[2:]
		if name, val, ok := strings.Cut(body, "="); ok {
			raw.values[name] = append(raw.values[name], val)
			continue
		}
		if name, ok := strings.CutPrefix(body, "no-"); ok {
			raw.bools[name] = false
			continue
		}
		if i+1 < len(args) && !strings.HasPrefix(args[i+1], "--") {
			raw.values[body] = append(raw.values[body], args[i+1])
			i++
			continue
		}
		raw.bools[body] = true
	}
	return raw, nil
}

func isBoolType(ty *ast.TypeRef) bool {
	if ty == nil {
		return false
	}
	switch ty.Kind {
	case ast.TRSimple:
		return ty.Name == "Bool"
	case ast.TRRefined:
		return ty.RefinedBase == "Bool"
	case ast.TROptional:
		return isBoolType(ty.Inner)
	case ast.TRGeneric:
		return ty.Base == "Option" && len(ty.Args) == 1 && isBoolType(ty.Args[0])
	}
	return false
}

func emitValidation(stderr io.Writer, fields []runtimetype.FieldError) {
	verr := &runtimetype.ValidationError{Fields: fields}
	fmt.Fprintln(stderr, string(builtinerr.RenderJSON(verr.ToValue())))
}

func hasErrors(diags []diagnostics.Diag) bool {
	for _, d := range diags {
		if d.Level == diagnostics.Error {
			return true
		}
	}
	return false
}

func reportDiags(stderr io.Writer, diags *diagnostics.Diagnostics) {
	reportDiagSlice(stderr, diags.All())
}

func reportDiagSlice(stderr io.Writer, diags []diagnostics.Diag) {
	for _, d := range diags {
		fmt.Fprintln(stderr, d.String())
	}
}

// lazyDB defers opening the sqlite store until the first db builtin call,
// so programs that never touch the database never create the file.
type lazyDB struct {
	getenv func(string) (string, bool)
	store  *dbstore.Store
}

func (l *lazyDB) open() (*dbstore.Store, error) {
	if l.store == nil {
		s, err := dbstore.Open(dbstore.DefaultPath(l.getenv))
		if err != nil {
			return nil, err
		}
		l.store = s
	}
	return l.store, nil
}

func (l *lazyDB) Exec(query string, args []value.Value) (value.Value, error) {
	s, err := l.open()
	if err != nil {
		return value.Unit(), err
	}
	return s.Exec(query, args)
}

func (l *lazyDB) Query(query string, args []value.Value) (value.Value, error) {
	s, err := l.open()
	if err != nil {
		return value.Unit(), err
	}
	return s.Query(query, args)
}

func (l *lazyDB) One(query string, args []value.Value) (value.Value, error) {
	s, err := l.open()
	if err != nil {
		return value.Unit(), err
	}
	return s.One(query, args)
}
