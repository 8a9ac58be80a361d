// Package storetest holds the behaviour every BaselineStore backend must share.
package storetest

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"vaultcore/pkg/domain"
	"vaultcore/pkg/version"
)

// Baseline builds a committed baseline for itemID with a single title value.
func Baseline(itemID int64, title string) domain.Baseline {
	raw, _ := json.Marshal(title)
	return domain.Baseline{
		ItemID: itemID,
		Snapshot: version.Snapshot{
			Schema: "credential",
			Values: map[string]json.RawMessage{"title": raw},
		},
		CommittedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

// Exercise runs the shared contract against store. The store must be empty.
// It closes the store and checks that later calls fail with
// domain.ErrStoreClosed.
func Exercise(t *testing.T, store domain.BaselineStore) {
	t.Helper()
	ctx := context.Background()

	if _, ok, err := store.Load(ctx, 1); err != nil || ok {
		t.Fatalf("load from empty store: ok=%v err=%v", ok, err)
	}
	for _, b := range []domain.Baseline{Baseline(2, "second"), Baseline(1, "first")} {
		if err := store.Save(ctx, b); err != nil {
			t.Fatalf("save %d: %v", b.ItemID, err)
		}
	}
	if err := store.Save(ctx, Baseline(1, "first, amended")); err != nil {
		t.Fatalf("overwrite: %v", err)
	}

	got, ok, err := store.Load(ctx, 1)
	if err != nil || !ok {
		t.Fatalf("load 1: ok=%v err=%v", ok, err)
	}
	var title string
	if err := json.Unmarshal(got.Snapshot.Values["title"], &title); err != nil || title != "first, amended" {
		t.Fatalf("expected amended title, got %q (%v)", title, err)
	}
	if got.Snapshot.Schema != "credential" || !got.CommittedAt.Equal(Baseline(1, "").CommittedAt) {
		t.Fatalf("unexpected baseline metadata %+v", got)
	}
	got.Snapshot.Values["title"] = json.RawMessage(`"mutated"`)
	again, _, _ := store.Load(ctx, 1)
	if string(again.Snapshot.Values["title"]) != `"first, amended"` {
		t.Fatalf("loaded baseline must not alias stored data")
	}

	list, err := store.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 || list[0].ItemID != 1 || list[1].ItemID != 2 {
		t.Fatalf("expected baselines ordered by id, got %+v", list)
	}

	if removed, err := store.Delete(ctx, 2); err != nil || !removed {
		t.Fatalf("delete 2: removed=%v err=%v", removed, err)
	}
	if removed, err := store.Delete(ctx, 2); err != nil || removed {
		t.Fatalf("repeated delete: removed=%v err=%v", removed, err)
	}
	if list, _ = store.List(ctx); len(list) != 1 {
		t.Fatalf("expected one baseline after delete, got %d", len(list))
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	if err := store.Save(cancelled, Baseline(3, "late")); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation error, got %v", err)
	}

	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := store.Save(ctx, Baseline(1, "after close")); !errors.Is(err, domain.ErrStoreClosed) {
		t.Fatalf("expected ErrStoreClosed from save, got %v", err)
	}
	if _, _, err := store.Load(ctx, 1); !errors.Is(err, domain.ErrStoreClosed) {
		t.Fatalf("expected ErrStoreClosed from load, got %v", err)
	}
	if _, err := store.Delete(ctx, 1); !errors.Is(err, domain.ErrStoreClosed) {
		t.Fatalf("expected ErrStoreClosed from delete, got %v", err)
	}
	if _, err := store.List(ctx); !errors.Is(err, domain.ErrStoreClosed) {
		t.Fatalf("expected ErrStoreClosed from list, got %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
}
