package domain

import (
	"context"
	"fmt"

	"vaultcore/pkg/schema"
	"vaultcore/pkg/version"
)

// Item is a version-tracked record. Its data and edit states are re-derived
// after every operation that can change the history or the validation result.
//
// An Item is owned by one editing session at a time; callers serialize access.
type Item struct {
	id         int64
	history    *version.History
	locals     map[string]any
	validation Result
	state      DataState
	editState  EditState
}

// NewItem builds an item around a fresh version 0 ValueSet.
func NewItem(id int64, fs *schema.FieldSet) *Item {
	return NewItemFromValues(id, version.NewValueSet(fs))
}

// NewPendingItem builds an item that has never been committed. Its first
// ValueSet starts at version 1 so the item derives as new.
func NewPendingItem(id int64, fs *schema.FieldSet) *Item {
	vs := version.NewValueSet(fs)
	vs.SetVersion(1)
	return NewItemFromValues(id, vs)
}

// NewItemFromValues builds an item around a supplied initial ValueSet.
func NewItemFromValues(id int64, vs *version.ValueSet) *Item {
	it := &Item{
		id:      id,
		history: version.NewHistory(vs),
		locals:  make(map[string]any),
	}
	it.refresh()
	return it
}

func (it *Item) ID() int64                 { return it.id }
func (it *Item) Schema() *schema.FieldSet  { return it.history.Schema() }
func (it *Item) History() *version.History { return it.history }
func (it *Item) Current() *version.ValueSet {
	return it.history.Current()
}
func (it *Item) Original() *version.ValueSet {
	return it.history.Original()
}

// State returns the derived data state.
func (it *Item) State() DataState { return it.state }

// EditState returns the derived edit state.
func (it *Item) EditState() EditState { return it.editState }

// Get reads a field: Versioned from the current ValueSet, Local from the item,
// Calculated by evaluating the field against the item.
func (it *Item) Get(field *schema.FieldDefinition) any {
	it.checkField(field)
	switch field.Storage() {
	case schema.Versioned:
		return it.history.Current().Get(field)
	case schema.Local:
		return it.locals[field.Name()]
	default:
		return field.Calculate(it)
	}
}

// Set writes a Versioned or Local field. Versioned writes land on the current
// ValueSet only; push history first to make the edit undoable.
func (it *Item) Set(field *schema.FieldDefinition, value any) {
	it.checkField(field)
	switch field.Storage() {
	case schema.Versioned:
		it.history.Current().Put(field, value)
	case schema.Local:
		it.locals[field.Name()] = value
	default:
		panic(fmt.Errorf("%w: %v is calculated", version.ErrOutOfRange, field))
	}
}

func (it *Item) checkField(field *schema.FieldDefinition) {
	if !it.Schema().Contains(field) {
		panic(fmt.Errorf("%w: %v not in %s", version.ErrOutOfRange, field, it.Schema().Name()))
	}
}

// SetValues replaces the current ValueSet.
func (it *Item) SetValues(vs *version.ValueSet) {
	it.history.Replace(vs)
	it.refresh()
}

// NextVersion returns the version a new edit level should use.
func (it *Item) NextVersion() int { return it.history.Current().Version() + 1 }

// PushHistory opens a new edit level at newVersion.
func (it *Item) PushHistory(newVersion int) {
	it.history.Push(newVersion)
	it.refresh()
}

// PopHistory discards the most recent edit level.
func (it *Item) PopHistory() {
	it.history.Pop()
	it.refresh()
}

// MaybePopHistory drops the top level when it made no real change and reports
// whether a change exists.
func (it *Item) MaybePopHistory() bool {
	changed := it.history.MaybePop()
	it.refresh()
	return changed
}

func (it *Item) HasHistory() bool { return it.history.HasHistory() }

// ClearHistory accepts the current state as the committed baseline.
func (it *Item) ClearHistory() {
	it.history.Clear()
	it.refresh()
}

// ResetHistory discards all pending edits.
func (it *Item) ResetHistory() {
	it.history.Reset()
	it.refresh()
}

// SetHistory re-bases the item onto base.
func (it *Item) SetHistory(base *version.ValueSet) {
	it.history.SetHistory(base)
	it.refresh()
}

// CondenseHistory collapses history down to newMax.
func (it *Item) CondenseHistory(newMax int) {
	it.history.Condense(newMax)
	it.refresh()
}

// MarkDeleted flags the current state as deleted.
func (it *Item) MarkDeleted() {
	it.history.Current().SetDeleted(true)
	it.refresh()
}

// MarkRecovered clears the deletion flag of the current state.
func (it *Item) MarkRecovered() {
	it.history.Current().SetDeleted(false)
	it.refresh()
}

// FieldChanged compares field between the current and the original state.
func (it *Item) FieldChanged(field *schema.FieldDefinition) version.Comparison {
	return it.history.FieldChanged(field)
}

// Diff returns a live delta from the original to the current state.
func (it *Item) Diff() *version.Delta { return it.history.Diff() }

// Changes returns audit records for everything pending against the original.
func (it *Item) Changes() ([]Change, error) {
	return ChangesFromDelta(it.id, it.Diff(), it.state == StateNew || it.state == StateDelNew)
}

// Validate runs engine against the item and stores the result.
func (it *Item) Validate(ctx context.Context, engine *RulesEngine) (Result, error) {
	if engine == nil {
		it.SetValidation(Result{})
		return Result{}, nil
	}
	res, err := engine.Evaluate(ctx, it)
	if err != nil {
		return Result{}, err
	}
	it.SetValidation(res)
	return res, nil
}

// SetValidation installs a validation result produced elsewhere.
func (it *Item) SetValidation(res Result) {
	it.validation = Result{Violations: append([]Violation(nil), res.Violations...)}
	it.refresh()
}

// Violations returns the stored validation result.
func (it *Item) Violations() []Violation {
	return append([]Violation(nil), it.validation.Violations...)
}

// HasErrors reports whether the stored validation result blocks commit.
func (it *Item) HasErrors() bool { return it.validation.HasBlocking() }

func (it *Item) refresh() {
	cur := it.history.Current()
	it.state = DeriveState(it.history.Original(), cur)
	it.editState = DeriveEditState(cur, it.validation.HasBlocking())
}
