package fs

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"vaultcore/internal/blob/core"
)

func TestCleanKeyRejectsEscapes(t *testing.T) {
	for _, key := range []string{"", "  ", "/abs", "../up", "a/../../b", "obj.meta"} {
		if _, err := cleanKey(key); err == nil {
			t.Fatalf("expected %q to be rejected", key)
		}
	}
	if k, err := cleanKey("history/1/./a.json"); err != nil || k != "history/1/a.json" {
		t.Fatalf("unexpected clean key %q %v", k, err)
	}
}

func TestPutWritesSidecarAndSkipsTempFiles(t *testing.T) {
	root := t.TempDir()
	store, err := New(root)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if store.Root() != root || store.Driver() != core.DriverFilesystem {
		t.Fatalf("unexpected store %s %s", store.Root(), store.Driver())
	}
	if _, err := store.Put(context.Background(), "a/b.json", bytes.NewReader([]byte("{}")), core.PutOptions{}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "a", "b.json.meta")); err != nil {
		t.Fatalf("expected sidecar: %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, "a", ".tmp-stale"), []byte("x"), 0o600); err != nil {
		t.Fatalf("write stale temp: %v", err)
	}
	list, err := store.List(context.Background(), "")
	if err != nil || len(list) != 1 || list[0].Key != "a/b.json" {
		t.Fatalf("list should only report objects: %+v %v", list, err)
	}
}

func TestPutHonoursCancelledContext(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := store.Put(ctx, "k", bytes.NewReader(nil), core.PutOptions{}); err == nil {
		t.Fatalf("expected context error")
	}
}
