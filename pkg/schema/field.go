// Package schema describes the fields of an item type. A FieldSet is built once
// at start-up, locked, and then shared read-only by every item of that type.
package schema

import "errors"

// StorageClass determines where a field's value lives.
type StorageClass int

const (
	// Local values are held on the item but never versioned or compared.
	Local StorageClass = iota
	// Calculated values are derived on read and never stored.
	Calculated
	// Versioned values occupy a slot in every ValueSet of the item type.
	Versioned
)

func (s StorageClass) String() string {
	switch s {
	case Local:
		return "local"
	case Calculated:
		return "calculated"
	case Versioned:
		return "versioned"
	default:
		return "unknown"
	}
}

// EqualityClass determines whether a field takes part in change detection.
type EqualityClass int

const (
	// Equality fields are compared when computing deltas.
	Equality EqualityClass = iota
	// Derived fields follow other fields and are ignored by deltas.
	Derived
)

func (e EqualityClass) String() string {
	switch e {
	case Equality:
		return "equality"
	case Derived:
		return "derived"
	default:
		return "unknown"
	}
}

// Kind is the abstract value type of a field.
type Kind int

const (
	KindAny Kind = iota
	KindString
	KindInt
	KindFloat
	KindBool
	KindBytes
	KindTime
)

func (k Kind) String() string {
	switch k {
	case KindAny:
		return "any"
	case KindString:
		return "string"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindBool:
		return "bool"
	case KindBytes:
		return "bytes"
	case KindTime:
		return "time"
	default:
		return "unknown"
	}
}

// Sized reports whether MaxLength applies to values of this kind.
func (k Kind) Sized() bool {
	return k == KindString || k == KindBytes
}

// Registration errors. They are raised as panic values because they indicate a
// broken type definition rather than bad runtime data.
var (
	ErrLocked         = errors.New("schema: field set is locked")
	ErrDuplicateField = errors.New("schema: duplicate field name")
	ErrInvalidField   = errors.New("schema: invalid field definition")
	ErrUnknownField   = errors.New("schema: unknown field")
)

// Reader exposes field values to calculated fields.
type Reader interface {
	Get(field *FieldDefinition) any
}

// FieldSpec is the registration input for a field.
type FieldSpec struct {
	Name      string
	Kind      Kind
	Storage   StorageClass
	Equality  EqualityClass
	MaxLength int
	// Calculate is required for Calculated fields and forbidden otherwise.
	Calculate func(Reader) any
}

// FieldDefinition is the immutable description of one attribute.
type FieldDefinition struct {
	name      string
	kind      Kind
	storage   StorageClass
	equality  EqualityClass
	maxLength int
	slot      int
	owner     *FieldSet
	calculate func(Reader) any
}

func (f *FieldDefinition) Name() string            { return f.name }
func (f *FieldDefinition) Kind() Kind              { return f.kind }
func (f *FieldDefinition) Storage() StorageClass   { return f.storage }
func (f *FieldDefinition) Equality() EqualityClass { return f.equality }
func (f *FieldDefinition) MaxLength() int          { return f.maxLength }
func (f *FieldDefinition) Owner() *FieldSet        { return f.owner }

// Slot returns the dense ValueSet index of a Versioned field, or -1.
func (f *FieldDefinition) Slot() int { return f.slot }

// IsVersioned reports whether the field is stored in ValueSets.
func (f *FieldDefinition) IsVersioned() bool { return f.storage == Versioned }

// Compared reports whether changes to the field are visible to deltas.
func (f *FieldDefinition) Compared() bool {
	return f.storage == Versioned && f.equality == Equality
}

// Calculate evaluates a Calculated field against r. It returns nil for other
// storage classes.
func (f *FieldDefinition) Calculate(r Reader) any {
	if f.calculate == nil {
		return nil
	}
	return f.calculate(r)
}

func (f *FieldDefinition) String() string {
	if f == nil {
		return "<nil>"
	}
	if f.owner == nil {
		return f.name
	}
	return f.owner.name + "." + f.name
}
