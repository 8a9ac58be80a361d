package version

import (
	"errors"
	"fmt"

	"vaultcore/pkg/schema"
)

// ErrVersionOrder is the panic value raised when a push would move the version
// number backwards.
var ErrVersionOrder = errors.New("version: version number must not decrease")

// History is the edit history of one item. Stack entries are frozen snapshots;
// only the current ValueSet is ever mutated. deltas[i] describes the move from
// stack[i] to stack[i+1], or to current for the top entry.
//
// History is not safe for concurrent use.
type History struct {
	current  *ValueSet
	original *ValueSet
	stack    []*ValueSet
	deltas   []*Delta
}

// NewHistory wraps the first ValueSet of an item. The original keeps its own
// copy so edits to current never leak into it.
func NewHistory(initial *ValueSet) *History {
	return &History{
		current:  initial,
		original: initial.Clone(),
	}
}

// Current returns the mutable top-of-history ValueSet.
func (h *History) Current() *ValueSet { return h.current }

// Original returns the baseline ValueSet.
func (h *History) Original() *ValueSet { return h.original }

// Schema returns the item type of the history.
func (h *History) Schema() *schema.FieldSet { return h.current.schema }

// HasHistory reports whether any edit level is pending.
func (h *History) HasHistory() bool { return len(h.stack) > 0 }

// Depth returns the number of edit levels.
func (h *History) Depth() int { return len(h.stack) }

// Levels returns the frozen snapshots, oldest first. Callers must not mutate them.
func (h *History) Levels() []*ValueSet {
	out := make([]*ValueSet, len(h.stack))
	copy(out, h.stack)
	return out
}

// Deltas returns one delta per edit level, oldest first.
func (h *History) Deltas() []*Delta {
	out := make([]*Delta, len(h.deltas))
	copy(out, h.deltas)
	return out
}

// Delta returns the delta of the given level.
func (h *History) Delta(level int) (*Delta, bool) {
	if level < 0 || level >= len(h.deltas) {
		return nil, false
	}
	return h.deltas[level], true
}

// Diff returns a live delta between the original and the current state.
func (h *History) Diff() *Delta {
	return Compare(h.original, h.current)
}

// Push snapshots current under newVersion. The previous current becomes the
// top stack entry and the snapshot becomes the new current.
func (h *History) Push(newVersion int) {
	if newVersion < h.current.version {
		panic(fmt.Errorf("%w: push %d over %d", ErrVersionOrder, newVersion, h.current.version))
	}
	snap := h.current.Clone()
	snap.version = newVersion
	if n := len(h.deltas); n > 0 {
		h.deltas[n-1].freeze()
	}
	h.stack = append(h.stack, h.current)
	h.deltas = append(h.deltas, Compare(h.current, snap))
	h.current = snap
}

// Pop discards the most recent edit level, restoring the previous state
// exactly. It is a no-op on an empty history.
func (h *History) Pop() {
	n := len(h.stack)
	if n == 0 {
		return
	}
	h.current = h.stack[n-1]
	h.stack[n-1] = nil
	h.deltas[n-1] = nil
	h.stack = h.stack[:n-1]
	h.deltas = h.deltas[:n-1]
	if m := len(h.deltas); m > 0 {
		h.deltas[m-1].thaw()
	}
}

// MaybePop pops the top level when current is identical to it and reports
// whether a real change exists. An empty history reports false.
func (h *History) MaybePop() bool {
	n := len(h.stack)
	if n == 0 {
		return false
	}
	if h.current.Equal(h.stack[n-1]) {
		h.Pop()
		return false
	}
	return true
}

// Clear accepts the current state as the new baseline at version 0.
func (h *History) Clear() {
	h.dropLevels()
	h.current.version = 0
	h.original = h.current.Clone()
}

// Reset discards every pending edit and reverts to the baseline.
func (h *History) Reset() {
	h.dropLevels()
	h.current = h.original.Clone()
}

// SetHistory re-bases the item onto base. Afterwards exactly one level exists
// describing everything in current that differs from base.
func (h *History) SetHistory(base *ValueSet) {
	h.current.checkSchema(base)
	h.dropLevels()
	orig := h.current.Clone()
	orig.CopyFrom(base)
	orig.version = base.version
	orig.deleted = base.deleted
	h.original = orig
	level := orig.Clone()
	h.stack = append(h.stack, level)
	h.current.version = 1
	h.deltas = append(h.deltas, Compare(level, h.current))
}

// Condense collapses history down to newMax. Levels at or above newMax are
// discarded without touching current, whose version is then set to newMax.
func (h *History) Condense(newMax int) {
	discarded := false
	for h.current.version >= newMax && len(h.stack) > 0 && h.stack[len(h.stack)-1].version >= newMax {
		n := len(h.stack)
		h.stack[n-1] = nil
		h.deltas[n-1] = nil
		h.stack = h.stack[:n-1]
		h.deltas = h.deltas[:n-1]
		discarded = true
	}
	h.current.version = newMax
	if discarded && len(h.stack) > 0 {
		n := len(h.stack)
		h.deltas[n-1] = Compare(h.stack[n-1], h.current)
	}
}

// Replace installs vs as the current state, keeping the pending levels.
func (h *History) Replace(vs *ValueSet) {
	h.current.checkSchema(vs)
	h.current = vs
	if n := len(h.stack); n > 0 {
		h.deltas[n-1] = Compare(h.stack[n-1], vs)
	}
}

// FieldChanged compares field between current and original.
func (h *History) FieldChanged(field *schema.FieldDefinition) Comparison {
	if field == nil || !field.Compared() {
		return Identical
	}
	return h.current.FieldChanged(field, h.original)
}

func (h *History) dropLevels() {
	clear(h.stack)
	clear(h.deltas)
	h.stack = h.stack[:0]
	h.deltas = h.deltas[:0]
}
