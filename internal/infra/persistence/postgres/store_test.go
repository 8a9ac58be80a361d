package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"

	"vaultcore/internal/infra/persistence/postgres/testutil"
	"vaultcore/internal/infra/persistence/storetest"
)

func openStub(t *testing.T) (*Store, *testutil.StubConn) {
	t.Helper()
	db, conn := testutil.NewStubDB()
	var gotDriver, gotDSN string
	restore := OverrideSQLOpen(func(driverName, dsn string) (*sql.DB, error) {
		gotDriver, gotDSN = driverName, dsn
		return db, nil
	})
	t.Cleanup(restore)
	store, err := NewStore(context.Background(), "")
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	if gotDriver != defaultDriver || gotDSN != defaultDSN {
		t.Fatalf("expected default driver and dsn, got %s %s", gotDriver, gotDSN)
	}
	return store, conn
}

func TestStoreContract(t *testing.T) {
	store, conn := openStub(t)
	if len(conn.Execs) == 0 || !strings.HasPrefix(conn.Execs[0], "CREATE TABLE IF NOT EXISTS baselines") {
		t.Fatalf("expected table creation first, got %v", conn.Execs)
	}
	storetest.Exercise(t, store)
}

func TestUpsertKeepsOneRowPerItem(t *testing.T) {
	store, conn := openStub(t)
	ctx := context.Background()
	for _, title := range []string{"a", "b", "c"} {
		if err := store.Save(ctx, storetest.Baseline(4, title)); err != nil {
			t.Fatalf("save: %v", err)
		}
	}
	if rows := conn.Rows("baselines"); len(rows) != 1 {
		t.Fatalf("expected one row, got %d", len(rows))
	}
	b, ok, err := store.Load(ctx, 4)
	if err != nil || !ok || string(b.Snapshot.Values["title"]) != `"c"` {
		t.Fatalf("expected latest save, got %+v ok=%v err=%v", b, ok, err)
	}
}

func TestNewStoreFailures(t *testing.T) {
	db, conn := testutil.NewStubDB()
	conn.FailPing = true
	restore := OverrideSQLOpen(func(string, string) (*sql.DB, error) { return db, nil })
	defer restore()
	if _, err := NewStore(context.Background(), "postgres://example"); err == nil || !strings.Contains(err.Error(), "ping") {
		t.Fatalf("expected ping failure, got %v", err)
	}

	openErr := errors.New("no driver")
	restoreOpen := OverrideSQLOpen(func(string, string) (*sql.DB, error) { return nil, openErr })
	defer restoreOpen()
	if _, err := NewStore(context.Background(), "postgres://example"); !errors.Is(err, openErr) {
		t.Fatalf("expected open error, got %v", err)
	}
}

func TestReadErrorsSurface(t *testing.T) {
	store, conn := openStub(t)
	if err := store.Save(context.Background(), storetest.Baseline(1, "x")); err != nil {
		t.Fatalf("save: %v", err)
	}
	conn.RowsErr = errors.New("cursor lost")
	if _, err := store.List(context.Background()); err == nil || !strings.Contains(err.Error(), "cursor lost") {
		t.Fatalf("expected rows error, got %v", err)
	}
	conn.RowsErr = nil
	conn.FailExec = true
	if err := store.Save(context.Background(), storetest.Baseline(2, "y")); err == nil {
		t.Fatalf("expected exec failure")
	}
}
