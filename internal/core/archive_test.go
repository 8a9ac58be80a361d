package core

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"vaultcore/internal/blob"
	"vaultcore/pkg/domain"
)

func TestCommitArchivesHistory(t *testing.T) {
	ctx := context.Background()
	l := newLogin()
	objects := blob.NewMemory()
	svc := NewInMemoryService(l.fs, WithArchive(objects))

	item := mustCreate(t, svc, l.set("bank", "ann"))
	if _, err := svc.Edit(ctx, item.ID(), func(it *domain.Item) error {
		it.Set(l.title, "vault")
		return nil
	}); err != nil {
		t.Fatalf("edit: %v", err)
	}
	mustCommit(t, svc, item.ID())

	infos, err := svc.Archive().List(ctx, item.ID())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(infos) != 1 {
		t.Fatalf("expected one archived record, got %d", len(infos))
	}
	if !strings.HasPrefix(infos[0].Key, "history/1/") || infos[0].ContentType != "application/json" {
		t.Fatalf("unexpected archive object %+v", infos[0])
	}
	if infos[0].Metadata["outcome"] != OutcomeCommitted || infos[0].Metadata["item-id"] != "1" {
		t.Fatalf("unexpected metadata %+v", infos[0].Metadata)
	}

	rec, err := svc.Archive().Read(ctx, infos[0].Key)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if rec.ID == "" || rec.ItemID != item.ID() || rec.Schema != "login" || rec.State != domain.StateNew {
		t.Fatalf("unexpected record header %+v", rec)
	}
	if len(rec.Levels) != 1 || rec.Levels[0].Version != 1 {
		t.Fatalf("expected the single edit level, got %+v", rec.Levels)
	}
	if len(rec.Net) != 2 {
		t.Fatalf("expected title and username in the net changes, got %+v", rec.Net)
	}
	for _, change := range rec.Net {
		if change.Action != domain.ActionCreate {
			t.Fatalf("pending item changes should be creates, got %+v", change)
		}
	}

	if _, err := svc.Delete(ctx, item.ID()); err != nil {
		t.Fatalf("delete: %v", err)
	}
	mustCommit(t, svc, item.ID())
	all, err := svc.Archive().List(ctx, 0)
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected two records, got %d", len(all))
	}
	removed, err := svc.Archive().Read(ctx, all[1].Key)
	if err != nil {
		t.Fatalf("read removed: %v", err)
	}
	if removed.Outcome != OutcomeRemoved || removed.State != domain.StateDeleted {
		t.Fatalf("unexpected removal record %+v", removed)
	}
	if len(removed.Net) != 1 || removed.Net[0].Action != domain.ActionDelete {
		t.Fatalf("expected a single delete change, got %+v", removed.Net)
	}
}

func TestArchiveIgnoresForeignObjects(t *testing.T) {
	ctx := context.Background()
	objects := blob.NewMemory()
	if _, err := objects.Put(ctx, "history/1/readme.txt", strings.NewReader("x"), blob.PutOptions{}); err != nil {
		t.Fatalf("put: %v", err)
	}
	infos, err := NewArchive(objects).List(ctx, 1)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(infos) != 0 {
		t.Fatalf("expected non-record objects to be skipped, got %+v", infos)
	}
	if _, err := NewArchive(objects).Read(ctx, "history/1/missing.json"); !errors.Is(err, blob.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

type failingPuts struct {
	blob.Store
}

func (failingPuts) Put(context.Context, string, io.Reader, blob.PutOptions) (blob.Info, error) {
	return blob.Info{}, errors.New("archive offline")
}

func TestCommitStopsWhenArchiveFails(t *testing.T) {
	ctx := context.Background()
	l := newLogin()
	svc := NewInMemoryService(l.fs, WithArchive(failingPuts{Store: blob.NewMemory()}))
	item := mustCreate(t, svc, l.set("bank", "ann"))

	if _, err := svc.Commit(ctx, item.ID()); err == nil || !strings.Contains(err.Error(), "archive offline") {
		t.Fatalf("expected archive failure, got %v", err)
	}
	if _, ok, _ := svc.Store().Load(ctx, item.ID()); ok {
		t.Fatalf("baseline must not move when archiving fails")
	}
	expectState(t, item, domain.StateNew)
}
