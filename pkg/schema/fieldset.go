package schema

import (
	"fmt"
	"strings"
	"sync"
)

// FieldSet is the schema descriptor of one item type. A child set embeds its
// parent and continues slot numbering from the parent's count.
type FieldSet struct {
	name   string
	parent *FieldSet

	mu       sync.Mutex
	locked   bool
	fields   []*FieldDefinition
	byName   map[string]*FieldDefinition
	baseSlot int
	slots    int
}

// NewFieldSet creates an empty field set. When parent is non-nil it is locked,
// since its slot range is now shared with the child.
func NewFieldSet(name string, parent *FieldSet) *FieldSet {
	fs := &FieldSet{
		name:   name,
		parent: parent,
		byName: make(map[string]*FieldDefinition),
	}
	if parent != nil {
		parent.Lock()
		fs.baseSlot = parent.SlotCount()
	}
	return fs
}

// Name returns the item type name.
func (fs *FieldSet) Name() string { return fs.name }

// Parent returns the parent field set, or nil.
func (fs *FieldSet) Parent() *FieldSet { return fs.parent }

// Register adds a field and returns its definition. It panics when the set is
// locked, the name is already taken anywhere in the lineage, or the spec is
// inconsistent.
func (fs *FieldSet) Register(spec FieldSpec) *FieldDefinition {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if fs.locked {
		panic(fmt.Errorf("%w: %s.%s", ErrLocked, fs.name, spec.Name))
	}
	if err := checkSpec(spec); err != nil {
		panic(fmt.Errorf("%w: %s.%s: %s", ErrInvalidField, fs.name, spec.Name, err))
	}
	if _, ok := fs.byName[spec.Name]; ok {
		panic(fmt.Errorf("%w: %s.%s", ErrDuplicateField, fs.name, spec.Name))
	}
	if fs.parent != nil {
		if _, ok := fs.parent.Field(spec.Name); ok {
			panic(fmt.Errorf("%w: %s.%s shadows %s", ErrDuplicateField, fs.name, spec.Name, fs.parent.name))
		}
	}

	def := &FieldDefinition{
		name:      spec.Name,
		kind:      spec.Kind,
		storage:   spec.Storage,
		equality:  spec.Equality,
		maxLength: spec.MaxLength,
		slot:      -1,
		owner:     fs,
		calculate: spec.Calculate,
	}
	if spec.Storage == Versioned {
		def.slot = fs.baseSlot + fs.slots
		fs.slots++
	}
	fs.fields = append(fs.fields, def)
	fs.byName[def.name] = def
	return def
}

func checkSpec(spec FieldSpec) error {
	switch {
	case strings.TrimSpace(spec.Name) == "":
		return fmt.Errorf("empty name")
	case spec.MaxLength < 0:
		return fmt.Errorf("negative max length")
	case spec.MaxLength > 0 && !spec.Kind.Sized():
		return fmt.Errorf("max length on %s field", spec.Kind)
	case spec.Storage == Calculated && spec.Calculate == nil:
		return fmt.Errorf("calculated field without calculator")
	case spec.Storage != Calculated && spec.Calculate != nil:
		return fmt.Errorf("calculator on %s field", spec.Storage)
	case spec.Storage < Local || spec.Storage > Versioned:
		return fmt.Errorf("unknown storage class %d", spec.Storage)
	}
	return nil
}

// Lock freezes the set. Locking is idempotent.
func (fs *FieldSet) Lock() {
	fs.mu.Lock()
	fs.locked = true
	fs.mu.Unlock()
}

// Locked reports whether further registration is forbidden.
func (fs *FieldSet) Locked() bool {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.locked
}

// SlotCount returns the number of Versioned slots across the whole lineage.
func (fs *FieldSet) SlotCount() int {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.baseSlot + fs.slots
}

// Field looks a field up by name, searching the parent chain.
func (fs *FieldSet) Field(name string) (*FieldDefinition, bool) {
	for cur := fs; cur != nil; cur = cur.parent {
		cur.mu.Lock()
		def, ok := cur.byName[name]
		cur.mu.Unlock()
		if ok {
			return def, true
		}
	}
	return nil, false
}

// MustField is Field for static field tables; it panics on a miss.
func (fs *FieldSet) MustField(name string) *FieldDefinition {
	def, ok := fs.Field(name)
	if !ok {
		panic(fmt.Errorf("%w: %s.%s", ErrUnknownField, fs.name, name))
	}
	return def
}

// Fields returns all fields in declaration order, ancestors first.
func (fs *FieldSet) Fields() []*FieldDefinition {
	var out []*FieldDefinition
	if fs.parent != nil {
		out = fs.parent.Fields()
	}
	fs.mu.Lock()
	out = append(out, fs.fields...)
	fs.mu.Unlock()
	return out
}

// VersionedFields returns the Versioned fields ordered by slot.
func (fs *FieldSet) VersionedFields() []*FieldDefinition {
	all := fs.Fields()
	out := make([]*FieldDefinition, 0, len(all))
	for _, f := range all {
		if f.storage == Versioned {
			out = append(out, f)
		}
	}
	return out
}

// Contains reports whether field was registered on fs or one of its ancestors.
func (fs *FieldSet) Contains(field *FieldDefinition) bool {
	if field == nil {
		return false
	}
	for cur := fs; cur != nil; cur = cur.parent {
		if field.owner == cur {
			return true
		}
	}
	return false
}
