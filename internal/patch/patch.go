// Package patch applies line-addressed edits to note text. Operations
// address 1-indexed lines and come in three kinds: add, mod, del.
package patch

import (
	"sort"
	"strings"

	"github.com/erauner12/notebridge/internal/noteerr"
)

// OpKind identifies a patch operation.
type OpKind string

const (
	OpAdd OpKind = "add"
	OpMod OpKind = "mod"
	OpDel OpKind = "del"
)

// Op is a single line edit. LineNumber is 1-indexed. Value is required
// for add and mod.
type Op struct {
	Op         OpKind  `json:"op"`
	LineNumber int     `json:"line_number"`
	Value      *string `json:"value,omitempty"`
}

// Validate checks structural invariants of a single operation.
func (o Op) Validate() error {
	switch o.Op {
	case OpAdd, OpMod:
		if o.Value == nil {
			return noteerr.Validationf("patch op %q at line %d requires a value", o.Op, o.LineNumber)
		}
	case OpDel:
	default:
		return noteerr.Validationf("unknown patch op %q", o.Op)
	}
	if o.LineNumber < 1 {
		return noteerr.Validationf("patch line_number must be >= 1, got %d", o.LineNumber)
	}
	return nil
}

// Apply applies ops to text and returns the patched result.
//
// Mods run first so they address the base text's line numbering
// (out-of-range mods are silent no-ops), then deletes in descending
// line order (out-of-range also silent), then adds in ascending order
// with a running offset so each applied add shifts subsequent add
// targets by one.
func Apply(text string, ops []Op) (string, error) {
	for _, op := range ops {
		if err := op.Validate(); err != nil {
			return "", err
		}
	}

	lines := splitLines(text)

	var dels, mods, adds []Op
	for _, op := range ops {
		switch op.Op {
		case OpDel:
			dels = append(dels, op)
		case OpMod:
			mods = append(mods, op)
		case OpAdd:
			adds = append(adds, op)
		}
	}

	for _, op := range mods {
		idx := op.LineNumber - 1
		if idx < 0 || idx >= len(lines) {
			continue
		}
		lines[idx] = *op.Value
	}

	sort.SliceStable(dels, func(i, j int) bool { return dels[i].LineNumber > dels[j].LineNumber })
	for _, op := range dels {
		idx := op.LineNumber - 1
		if idx < 0 || idx >= len(lines) {
			continue
		}
		lines = append(lines[:idx], lines[idx+1:]...)
	}

	sort.SliceStable(adds, func(i, j int) bool { return adds[i].LineNumber < adds[j].LineNumber })
	offset := 0
	for _, op := range adds {
		idx := op.LineNumber - 1 + offset
		switch {
		case idx <= 0:
			lines = append([]string{*op.Value}, lines...)
		case idx >= len(lines):
			lines = append(lines, *op.Value)
		default:
			lines = append(lines[:idx], append([]string{*op.Value}, lines[idx:]...)...)
		}
		offset++
	}

	return strings.Join(lines, "\n"), nil
}

// splitLines treats empty input as a zero-line document, so an add at
// line 1 produces a one-line result rather than a leading blank.
func splitLines(text string) []string {
	if text == "" {
		return nil
	}
	return strings.Split(text, "\n")
}
