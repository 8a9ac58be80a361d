package schema

import (
	"errors"
	"sync"
	"testing"
)

func expectPanic(t *testing.T, target error, fn func()) {
	t.Helper()
	defer func() {
		t.Helper()
		r := recover()
		if r == nil {
			t.Fatalf("expected panic wrapping %v", target)
		}
		err, ok := r.(error)
		if !ok || !errors.Is(err, target) {
			t.Fatalf("expected panic wrapping %v, got %v", target, r)
		}
	}()
	fn()
}

func TestRegisterAssignsSlotsOnlyToVersionedFields(t *testing.T) {
	fs := NewFieldSet("entry", nil)
	title := fs.Register(FieldSpec{Name: "title", Kind: KindString, Storage: Versioned})
	cache := fs.Register(FieldSpec{Name: "cache", Storage: Local})
	notes := fs.Register(FieldSpec{Name: "notes", Kind: KindString, Storage: Versioned, Equality: Derived})
	length := fs.Register(FieldSpec{Name: "length", Kind: KindInt, Storage: Calculated, Calculate: func(Reader) any { return 0 }})

	if title.Slot() != 0 || notes.Slot() != 1 {
		t.Fatalf("unexpected slots title=%d notes=%d", title.Slot(), notes.Slot())
	}
	if cache.Slot() != -1 || length.Slot() != -1 {
		t.Fatalf("non-versioned fields must not get slots")
	}
	if fs.SlotCount() != 2 {
		t.Fatalf("expected 2 slots, got %d", fs.SlotCount())
	}
	if !title.Compared() || notes.Compared() || cache.Compared() {
		t.Fatalf("unexpected compared flags")
	}
	if got := len(fs.VersionedFields()); got != 2 {
		t.Fatalf("expected 2 versioned fields, got %d", got)
	}
}

func TestChildContinuesParentNumbering(t *testing.T) {
	base := NewFieldSet("base", nil)
	base.Register(FieldSpec{Name: "id", Kind: KindInt, Storage: Versioned})
	base.Register(FieldSpec{Name: "name", Kind: KindString, Storage: Versioned})

	child := NewFieldSet("login", base)
	user := child.Register(FieldSpec{Name: "user", Kind: KindString, Storage: Versioned})
	if user.Slot() != 2 {
		t.Fatalf("expected child slot 2, got %d", user.Slot())
	}
	if child.SlotCount() != 3 {
		t.Fatalf("expected lineage slot count 3, got %d", child.SlotCount())
	}
	if !base.Locked() {
		t.Fatalf("parent must be locked once a child exists")
	}
	if !child.Contains(base.MustField("id")) || base.Contains(user) {
		t.Fatalf("lineage membership wrong")
	}
	names := []string{}
	for _, f := range child.Fields() {
		names = append(names, f.Name())
	}
	if len(names) != 3 || names[0] != "id" || names[2] != "user" {
		t.Fatalf("unexpected field order %v", names)
	}
	if f, ok := child.Field("name"); !ok || f.Owner() != base {
		t.Fatalf("expected lookup through parent")
	}
}

func TestRegisterContractViolations(t *testing.T) {
	fs := NewFieldSet("entry", nil)
	fs.Register(FieldSpec{Name: "title", Kind: KindString, Storage: Versioned})

	expectPanic(t, ErrDuplicateField, func() {
		fs.Register(FieldSpec{Name: "title", Storage: Local})
	})
	expectPanic(t, ErrInvalidField, func() {
		fs.Register(FieldSpec{Name: " ", Storage: Local})
	})
	expectPanic(t, ErrInvalidField, func() {
		fs.Register(FieldSpec{Name: "count", Kind: KindInt, Storage: Versioned, MaxLength: 4})
	})
	expectPanic(t, ErrInvalidField, func() {
		fs.Register(FieldSpec{Name: "calc", Storage: Calculated})
	})
	expectPanic(t, ErrInvalidField, func() {
		fs.Register(FieldSpec{Name: "stored", Storage: Versioned, Calculate: func(Reader) any { return nil }})
	})

	child := NewFieldSet("child", fs)
	expectPanic(t, ErrDuplicateField, func() {
		child.Register(FieldSpec{Name: "title", Storage: Versioned})
	})
	expectPanic(t, ErrLocked, func() {
		fs.Register(FieldSpec{Name: "late", Storage: Versioned})
	})
	expectPanic(t, ErrUnknownField, func() {
		child.MustField("missing")
	})
}

func TestLockedSetSupportsConcurrentReads(t *testing.T) {
	fs := NewFieldSet("entry", nil)
	for _, name := range []string{"a", "b", "c", "d"} {
		fs.Register(FieldSpec{Name: name, Storage: Versioned})
	}
	fs.Lock()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				if fs.SlotCount() != 4 {
					t.Errorf("slot count changed")
					return
				}
				if _, ok := fs.Field("c"); !ok {
					t.Errorf("lookup failed")
					return
				}
			}
		}()
	}
	wg.Wait()
}

func TestEnumStrings(t *testing.T) {
	if Versioned.String() != "versioned" || Local.String() != "local" || Calculated.String() != "calculated" {
		t.Fatalf("storage class strings")
	}
	if Equality.String() != "equality" || Derived.String() != "derived" {
		t.Fatalf("equality class strings")
	}
	if KindBytes.String() != "bytes" || !KindString.Sized() || KindInt.Sized() {
		t.Fatalf("kind helpers")
	}
}
