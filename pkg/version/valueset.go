// Package version implements the copy-on-write history of an item's versioned
// field values.
package version

import (
	"bytes"
	"errors"
	"fmt"
	"reflect"
	"time"

	"vaultcore/pkg/schema"
)

// ErrOutOfRange is the panic value raised when a field does not belong to the
// versioned set of a ValueSet's item type.
var ErrOutOfRange = errors.New("version: field out of range")

// ErrSchemaMismatch is the panic value raised when two ValueSets of different
// item types are combined.
var ErrSchemaMismatch = errors.New("version: value sets belong to different schemas")

// ErrKindMismatch is the panic value raised when a value cannot be held by a
// field of the given Kind.
var ErrKindMismatch = errors.New("version: value does not fit field kind")

// Comparison is the outcome of a field-level change check.
type Comparison int

const (
	Identical Comparison = iota
	Different
)

func (c Comparison) String() string {
	if c == Different {
		return "different"
	}
	return "identical"
}

// ValueSet holds every versioned value of one item at one point in time.
type ValueSet struct {
	schema  *schema.FieldSet
	version int
	deleted bool
	values  []any
}

// NewValueSet returns a version 0 ValueSet sized to the schema. The schema is
// locked, since its slot count is now fixed.
func NewValueSet(fs *schema.FieldSet) *ValueSet {
	fs.Lock()
	return &ValueSet{
		schema: fs,
		values: make([]any, fs.SlotCount()),
	}
}

// Schema returns the item type the ValueSet was built for.
func (vs *ValueSet) Schema() *schema.FieldSet { return vs.schema }

func (vs *ValueSet) Version() int     { return vs.version }
func (vs *ValueSet) SetVersion(v int) { vs.version = v }
func (vs *ValueSet) Deleted() bool    { return vs.deleted }

// SetDeleted flips the deletion flag. Items call it through their delete and
// recover operations.
func (vs *ValueSet) SetDeleted(deleted bool) { vs.deleted = deleted }

// Len returns the fixed slot count.
func (vs *ValueSet) Len() int { return len(vs.values) }

// Clone returns an independent snapshot with the same version, flag and values.
func (vs *ValueSet) Clone() *ValueSet {
	out := &ValueSet{
		schema:  vs.schema,
		version: vs.version,
		deleted: vs.deleted,
		values:  make([]any, len(vs.values)),
	}
	for i, v := range vs.values {
		out.values[i] = cloneValue(v)
	}
	return out
}

func (vs *ValueSet) slot(field *schema.FieldDefinition) int {
	if field == nil || !field.IsVersioned() || !vs.schema.Contains(field) {
		panic(fmt.Errorf("%w: %v in %s", ErrOutOfRange, field, vs.schema.Name()))
	}
	idx := field.Slot()
	if idx < 0 || idx >= len(vs.values) {
		panic(fmt.Errorf("%w: %v slot %d of %d", ErrOutOfRange, field, idx, len(vs.values)))
	}
	return idx
}

// Get returns the value held for field.
func (vs *ValueSet) Get(field *schema.FieldDefinition) any {
	return vs.values[vs.slot(field)]
}

// Put stores value for field in the form a snapshot decodes it to: int64 for
// KindInt, float64 for KindFloat and plain JSON values (int64 for integral
// numbers) for KindAny. It panics with ErrKindMismatch when value cannot be
// held by the field.
func (vs *ValueSet) Put(field *schema.FieldDefinition, value any) {
	idx := vs.slot(field)
	v, err := normalize(field.Kind(), value)
	if err != nil {
		panic(fmt.Errorf("%w: %v: %v", ErrKindMismatch, field, err))
	}
	vs.values[idx] = v
}

// FieldChanged compares field against the same slot in other. Fields that are
// not Versioned or not Equality-compared always report Identical.
func (vs *ValueSet) FieldChanged(field *schema.FieldDefinition, other *ValueSet) Comparison {
	if field == nil || !field.Compared() {
		return Identical
	}
	idx := vs.slot(field)
	other.checkSchema(vs)
	if valuesEqual(vs.values[idx], other.values[idx]) {
		return Identical
	}
	return Different
}

// CopyFrom overwrites every slot with the values of other. Version and
// deletion flag are left alone.
func (vs *ValueSet) CopyFrom(other *ValueSet) {
	vs.checkSchema(other)
	for i, v := range other.values {
		vs.values[i] = cloneValue(v)
	}
}

// Equal reports whether vs and other carry the same deletion flag and the same
// value in every compared field. Versions are ignored.
func (vs *ValueSet) Equal(other *ValueSet) bool {
	if vs.deleted != other.deleted {
		return false
	}
	for _, f := range vs.schema.VersionedFields() {
		if vs.FieldChanged(f, other) == Different {
			return false
		}
	}
	return true
}

func (vs *ValueSet) checkSchema(other *ValueSet) {
	if vs.schema != other.schema || len(vs.values) != len(other.values) {
		panic(fmt.Errorf("%w: %s vs %s", ErrSchemaMismatch, vs.schema.Name(), other.schema.Name()))
	}
}

func cloneValue(v any) any {
	if b, ok := v.([]byte); ok && b != nil {
		cp := make([]byte, len(b))
		copy(cp, b)
		return cp
	}
	return v
}

func valuesEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	switch av := a.(type) {
	case []byte:
		bv, ok := b.([]byte)
		return ok && bytes.Equal(av, bv)
	case time.Time:
		bv, ok := b.(time.Time)
		return ok && av.Equal(bv)
	}
	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta != tb {
		return false
	}
	if ta.Comparable() {
		return a == b
	}
	return reflect.DeepEqual(a, b)
}
