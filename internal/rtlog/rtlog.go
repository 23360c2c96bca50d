// Package rtlog is the process-level structured logger. It covers the
// toolchain's own diagnostics (collaborator errors, applied migrations) —
// the language's `print`/`log` builtins write straight to stdout/stderr
// and never pass through here.
package rtlog

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var logger = zap.NewNop().Sugar()

// Init configures the process logger. debug enables Debug-level output;
// everything goes to stderr so stdout stays reserved for program output
// (and, in the LSP binary, for the JSON-RPC stream).
func Init(debug bool) {
	level := zapcore.WarnLevel
	if debug {
		level = zapcore.DebugLevel
	}
	cfg := zap.NewDevelopmentEncoderConfig()
	cfg.TimeKey = "" // diagnostics are not a time series
	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(cfg),
		zapcore.Lock(os.Stderr),
		level,
	)
	logger = zap.New(core).Sugar()
}

// L returns the process logger. Before Init it is a nop, so library code
// can log unconditionally.
func L() *zap.SugaredLogger { return logger }

// Sync flushes buffered output; callers invoke it on process exit.
func Sync() {
	_ = logger.Sync()
}
