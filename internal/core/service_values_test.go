package core

import (
	"context"
	"errors"
	"testing"

	"vaultcore/internal/infra/persistence/memory"
	"vaultcore/pkg/domain"
	"vaultcore/pkg/schema"
	"vaultcore/pkg/version"
)

type counter struct {
	fs    *schema.FieldSet
	label *schema.FieldDefinition
	count *schema.FieldDefinition
	ratio *schema.FieldDefinition
	extra *schema.FieldDefinition
}

func newCounter() counter {
	c := counter{fs: schema.NewFieldSet("counter", nil)}
	c.label = c.fs.Register(schema.FieldSpec{Name: "label", Kind: schema.KindString, Storage: schema.Versioned})
	c.count = c.fs.Register(schema.FieldSpec{Name: "count", Kind: schema.KindInt, Storage: schema.Versioned})
	c.ratio = c.fs.Register(schema.FieldSpec{Name: "ratio", Kind: schema.KindFloat, Storage: schema.Versioned})
	c.extra = c.fs.Register(schema.FieldSpec{Name: "extra", Storage: schema.Versioned})
	return c
}

func TestServiceRebaseOntoOwnCommitHasNoChanges(t *testing.T) {
	ctx := context.Background()
	c := newCounter()
	svc := NewInMemoryService(c.fs)
	item := mustCreate(t, svc, func(it *domain.Item) error {
		it.Set(c.label, "hits")
		it.Set(c.count, uint(7))
		it.Set(c.ratio, int16(2))
		it.Set(c.extra, map[string]any{"n": 5, "tags": []string{"a"}})
		return nil
	})
	mustCommit(t, svc, item.ID())

	if err := svc.Rebase(ctx, item.ID()); err != nil {
		t.Fatalf("rebase: %v", err)
	}
	changes, err := svc.Diff(item.ID())
	if err != nil {
		t.Fatalf("diff: %v", err)
	}
	if len(changes) != 0 {
		t.Fatalf("expected no changes against the committed baseline, got %+v", changes)
	}
	if item.Get(c.count) != int64(7) || item.Get(c.ratio) != float64(2) {
		t.Fatalf("unexpected normalised values count=%#v ratio=%#v", item.Get(c.count), item.Get(c.ratio))
	}
}

func TestServiceRejectsMistypedValues(t *testing.T) {
	ctx := context.Background()
	c := newCounter()
	store := memory.NewStore()
	svc := NewService(c.fs, store)

	_, _, err := svc.Create(ctx, func(it *domain.Item) error {
		it.Set(c.label, 42)
		return nil
	})
	if !errors.Is(err, version.ErrKindMismatch) {
		t.Fatalf("expected ErrKindMismatch from create, got %v", err)
	}
	if len(svc.Items()) != 0 {
		t.Fatalf("rejected create must not register an item")
	}

	item := mustCreate(t, svc, func(it *domain.Item) error {
		it.Set(c.label, "hits")
		return nil
	})
	mustCommit(t, svc, item.ID())
	if _, err := svc.Edit(ctx, item.ID(), func(it *domain.Item) error {
		it.Set(c.count, "seven")
		return nil
	}); !errors.Is(err, version.ErrKindMismatch) {
		t.Fatalf("expected ErrKindMismatch from edit, got %v", err)
	}
	if item.HasHistory() || item.Get(c.count) != nil {
		t.Fatalf("rejected edit must be rolled back")
	}

	fresh := NewService(c.fs, store)
	loaded, err := fresh.Load(ctx, item.ID())
	if err != nil {
		t.Fatalf("load from a fresh service: %v", err)
	}
	if loaded.Get(c.label) != "hits" {
		t.Fatalf("unexpected label %v", loaded.Get(c.label))
	}
}

func TestServiceCommitAfterCondenseToZero(t *testing.T) {
	ctx := context.Background()
	l := newLogin()
	store := memory.NewStore()
	svc := NewService(l.fs, store)
	item := mustCreate(t, svc, l.set("base", "ann"))
	mustCommit(t, svc, item.ID())

	if _, err := svc.Edit(ctx, item.ID(), func(it *domain.Item) error {
		it.Set(l.title, "edited")
		return nil
	}); err != nil {
		t.Fatalf("edit: %v", err)
	}
	if err := svc.Condense(ctx, item.ID(), 0); err != nil {
		t.Fatalf("condense: %v", err)
	}
	expectState(t, item, domain.StateClean)
	mustCommit(t, svc, item.ID())

	loaded, err := NewService(l.fs, store).Load(ctx, item.ID())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.Get(l.title) != "edited" {
		t.Fatalf("condensed edits must still reach storage, got %v", loaded.Get(l.title))
	}

	if _, err := svc.Delete(ctx, item.ID()); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := svc.Condense(ctx, item.ID(), 0); err != nil {
		t.Fatalf("condense: %v", err)
	}
	mustCommit(t, svc, item.ID())
	if _, ok, _ := store.Load(ctx, item.ID()); ok {
		t.Fatalf("condensed delete must remove the baseline")
	}
}
