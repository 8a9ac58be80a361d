package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"vaultcore/internal/infra/persistence/storetest"
)

func TestStoreContract(t *testing.T) {
	store, err := NewStore(filepath.Join(t.TempDir(), "nested", "vault.db"))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	storetest.Exercise(t, store)
}

func TestStoreSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vault.db")
	store, err := NewStore(path)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	if err := store.Save(context.Background(), storetest.Baseline(9, "kept")); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := NewStore(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer func() { _ = reopened.Close() }()
	if reopened.Path() != path {
		t.Fatalf("unexpected path %s", reopened.Path())
	}
	b, ok, err := reopened.Load(context.Background(), 9)
	if err != nil || !ok {
		t.Fatalf("load after reopen: ok=%v err=%v", ok, err)
	}
	if string(b.Snapshot.Values["title"]) != `"kept"` {
		t.Fatalf("unexpected payload %s", b.Snapshot.Values["title"])
	}
}

func TestLoadRejectsCorruptPayload(t *testing.T) {
	store, err := NewStore(filepath.Join(t.TempDir(), "vault.db"))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	defer func() { _ = store.Close() }()
	if _, err := store.DB().Exec(`INSERT INTO baselines(item_id, schema_name, payload, committed_at) VALUES(1, 'credential', 'not json', 0)`); err != nil {
		t.Fatalf("seed corrupt row: %v", err)
	}
	if _, _, err := store.Load(context.Background(), 1); err == nil {
		t.Fatalf("expected decode error")
	}
	if _, err := store.List(context.Background()); err == nil {
		t.Fatalf("expected list to surface decode error")
	}
}
