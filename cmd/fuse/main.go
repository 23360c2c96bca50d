// Command fuse is the toolchain's command-line shell: it owns flag
// surface and help text, then hands the reconstructed argument vector to
// the core's cliapi.Run untouched. The core never sees cobra.
package main

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/fuselang/fuse/internal/cliapi"
	"github.com/fuselang/fuse/internal/rtlog"
)

func main() {
	var (
		check, dumpAst, doFmt, doOpenapi, doRun bool
		migrate, test, debug                    bool
		backend, appName                        string
	)

	root := &cobra.Command{
		Use:   "fuse [flags] <file> [-- program args]",
		Short: "Compiler and runtime toolchain for FUSE programs",
		Long: `fuse compiles, checks, formats, and runs FUSE programs.

Everything after -- is passed to the program's fn main, bound by flag
name and validated against the declared parameter types.`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			rtlog.Init(debug)
			defer rtlog.Sync()

			coreArgs := make([]string, 0, len(args)+10)
			appendIf := func(on bool, flag string) {
				if on {
					coreArgs = append(coreArgs, flag)
				}
			}
			appendIf(check, "--check")
			appendIf(dumpAst, "--dump-ast")
			appendIf(doFmt, "--fmt")
			appendIf(doOpenapi, "--openapi")
			appendIf(doRun, "--run")
			appendIf(migrate, "--migrate")
			appendIf(test, "--test")
			if backend != "" {
				coreArgs = append(coreArgs, "--backend", backend)
			}
			if appName != "" {
				coreArgs = append(coreArgs, "--app", appName)
			}
			coreArgs = append(coreArgs, args[0])
			rest := args[1:]
			if len(rest) > 0 && rest[0] == "--" {
				rest = rest[1:]
			}
			if len(rest) > 0 {
				coreArgs = append(coreArgs, "--")
				coreArgs = append(coreArgs, rest...)
			}

			code := cliapi.RunWithOptions(coreArgs, cliapi.Options{
				Stderr: diagWriter(),
			})
			if code != 0 {
				os.Exit(code)
			}
			return nil
		},
	}

	root.Flags().BoolVar(&check, "check", false, "type-check and validate capabilities without running")
	root.Flags().BoolVar(&dumpAst, "dump-ast", false, "print the parsed AST")
	root.Flags().BoolVar(&doFmt, "fmt", false, "reformat the file in place")
	root.Flags().BoolVar(&doOpenapi, "openapi", false, "emit an OpenAPI document for the program's services")
	root.Flags().BoolVar(&doRun, "run", false, "execute the program")
	root.Flags().BoolVar(&migrate, "migrate", false, "apply pending migrations")
	root.Flags().BoolVar(&test, "test", false, "run test blocks")
	root.Flags().StringVar(&backend, "backend", "", "execution backend: ast, vm, or native")
	root.Flags().StringVar(&appName, "app", "", "select a named app declaration")
	root.Flags().BoolVar(&debug, "debug", false, "enable toolchain debug logging")
	root.Flags().SetInterspersed(false)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// diagWriter colors "error:"/"warning:" diagnostic lines when stderr is a
// terminal; piped output stays plain so scripts can match on it.
func diagWriter() io.Writer {
	if isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd()) {
		return &colorWriter{out: os.Stderr}
	}
	return os.Stderr
}

type colorWriter struct {
	out io.Writer
	buf []byte
}

func (w *colorWriter) Write(p []byte) (int, error) {
	w.buf = append(w.buf, p...)
	for {
		idx := bytes.IndexByte(w.buf, '\n')
		if idx < 0 {
			break
		}
		line := w.buf[:idx]
		w.buf = w.buf[idx+1:]
		switch {
		case bytes.HasPrefix(line, []byte("error:")):
			fmt.Fprintf(w.out, "\x1b[31m%s\x1b[0m\n", line)
		case bytes.HasPrefix(line, []byte("warning:")):
			fmt.Fprintf(w.out, "\x1b[33m%s\x1b[0m\n", line)
		default:
			fmt.Fprintf(w.out, "%s\n", line)
		}
	}
	return len(p), nil
}
