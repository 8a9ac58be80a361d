package version

import "vaultcore/pkg/schema"

// DeletedField is the name of the synthetic entry reported when the deletion
// flag differs between the two sides of a Delta.
const DeletedField = "deleted"

// Difference is one changed field. Old carries the superseded value; for the
// synthetic deletion entry Field is nil and Old/New hold the flags.
type Difference struct {
	Field    *schema.FieldDefinition
	Name     string
	Old      any
	New      any
	Deletion bool
}

// Delta is a read-only view of the differences between an old and a new
// ValueSet. A live delta recomputes on every read because its new side may
// still be mutated; a frozen delta memoizes its result.
type Delta struct {
	old  *ValueSet
	new  *ValueSet
	live bool
	memo []Difference
	done bool
}

// Compare returns a live delta describing the move from one ValueSet to
// another of the same item type.
func Compare(from, to *ValueSet) *Delta {
	from.checkSchema(to)
	return &Delta{old: from, new: to, live: true}
}

func (d *Delta) Old() *ValueSet { return d.old }
func (d *Delta) New() *ValueSet { return d.new }

// Version returns the version of the superseded ValueSet.
func (d *Delta) Version() int { return d.old.version }

// Live reports whether the delta is recomputed on each read.
func (d *Delta) Live() bool { return d.live }

// Differences lists changed fields in declaration order, preceded by the
// deletion entry when the flags differ.
func (d *Delta) Differences() []Difference {
	if !d.live && d.done {
		out := make([]Difference, len(d.memo))
		copy(out, d.memo)
		return out
	}
	diffs := d.compute()
	if !d.live {
		d.memo = diffs
		d.done = true
		out := make([]Difference, len(diffs))
		copy(out, diffs)
		return out
	}
	return diffs
}

// ChangeCount returns len(Differences()).
func (d *Delta) ChangeCount() int {
	if !d.live && d.done {
		return len(d.memo)
	}
	return len(d.Differences())
}

// IsEmpty reports whether the delta represents no change at all.
func (d *Delta) IsEmpty() bool { return d.ChangeCount() == 0 }

// Changed reports whether field differs between the two sides.
func (d *Delta) Changed(field *schema.FieldDefinition) bool {
	return d.new.FieldChanged(field, d.old) == Different
}

func (d *Delta) compute() []Difference {
	var out []Difference
	if d.old.deleted != d.new.deleted {
		out = append(out, Difference{
			Name:     DeletedField,
			Old:      d.old.deleted,
			New:      d.new.deleted,
			Deletion: true,
		})
	}
	for _, f := range d.new.schema.VersionedFields() {
		if d.new.FieldChanged(f, d.old) == Identical {
			continue
		}
		out = append(out, Difference{
			Field: f,
			Name:  f.Name(),
			Old:   d.old.values[f.Slot()],
			New:   d.new.values[f.Slot()],
		})
	}
	return out
}

func (d *Delta) freeze() {
	d.live = false
	d.memo = nil
	d.done = false
}

func (d *Delta) thaw() {
	d.live = true
	d.memo = nil
	d.done = false
}
