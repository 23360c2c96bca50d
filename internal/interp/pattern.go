package interp

import (
	"github.com/fuselang/fuse/internal/ast"
	"github.com/fuselang/fuse/internal/value"
	"github.com/fuselang/fuse/internal/valueops"
)

// matchPattern implements the language's pattern matching by delegating
// to valueops.MatchPattern, binding straight into this frame's innermost
// scope, so this engine and the VM can never disagree on binding order.
func matchPattern(p ast.Pattern, v value.Value, frame *Frame) bool {
	return valueops.MatchPattern(p, v, func(name string, bound value.Value) {
		frame.declare(name, bound)
	})
}

// bindPattern applies matchPattern for a for-loop binding position, raising
// a runtime error if a for-loop pattern genuinely fails to bind (for-loop
// patterns are expected to be irrefutable; spec leaves exotic refutable
// loop patterns undefined, so a mismatch here is treated as Runtime).
func (e *Engine) bindPattern(p ast.Pattern, v value.Value, frame *Frame) *Signal {
	if !matchPattern(p, v, frame) {
		return runtimeErr("for-loop pattern did not match iterated value")
	}
	return nil
}

// iterableItems resolves a `for pat in iter` source at runtime,
// delegating to valueops.IterableItems so both engines iterate
// identically.
func iterableItems(v value.Value) ([]value.Value, *Signal) {
	items, err := valueops.IterableItems(v)
	if err != nil {
		return nil, runtimeErr("%s", err.Error())
	}
	return items, nil
}
