// Package diagnostics holds the shared diagnostic type every compiler pass
// accumulates into, from the lexer through the capability checker.
package diagnostics

import (
	"fmt"
	"sort"

	"github.com/fuselang/fuse/internal/token"
)

// Level distinguishes hard errors (which gate later passes) from warnings.
type Level int

const (
	Error Level = iota
	Warning
)

func (l Level) String() string {
	if l == Warning {
		return "warning"
	}
	return "error"
}

// Diag is one diagnostic message anchored to a source span.
type Diag struct {
	Level   Level
	Span    token.Span
	Message string
}

func (d Diag) String() string {
	return fmt.Sprintf("%s: %s (%s)", d.Level, d.Message, d.Span)
}

// Diagnostics is an ordered collection; passes append to it in source order.
type Diagnostics struct {
	items []Diag
}

func (d *Diagnostics) Errorf(span token.Span, format string, args ...any) {
	d.items = append(d.items, Diag{Level: Error, Span: span, Message: fmt.Sprintf(format, args...)})
}

func (d *Diagnostics) Warnf(span token.Span, format string, args ...any) {
	d.items = append(d.items, Diag{Level: Warning, Span: span, Message: fmt.Sprintf(format, args...)})
}

func (d *Diagnostics) Add(diag Diag) {
	d.items = append(d.items, diag)
}

func (d *Diagnostics) Extend(other *Diagnostics) {
	if other == nil {
		return
	}
	d.items = append(d.items, other.items...)
}

func (d *Diagnostics) All() []Diag {
	return d.items
}

func (d *Diagnostics) HasErrors() bool {
	for _, it := range d.items {
		if it.Level == Error {
			return true
		}
	}
	return false
}

func (d *Diagnostics) Len() int { return len(d.items) }

// SortBySpan orders diagnostics by their starting byte offset; ties keep
// insertion order (sort.SliceStable), keeping "source order within a
// module" requirement.
func (d *Diagnostics) SortBySpan() {
	sort.SliceStable(d.items, func(i, j int) bool {
		return d.items[i].Span.Start < d.items[j].Span.Start
	})
}
