// Package sqlite persists committed baselines in an embedded SQLite file, one
// row per item with the snapshot stored as a JSON blob.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite" // pure go sqlite driver

	"vaultcore/pkg/domain"
	"vaultcore/pkg/version"
)

var _ domain.BaselineStore = (*Store)(nil)

const defaultPath = "vaultcore.db"

const schemaDDL = `CREATE TABLE IF NOT EXISTS baselines (
	item_id INTEGER PRIMARY KEY,
	schema_name TEXT NOT NULL,
	payload BLOB NOT NULL,
	committed_at INTEGER NOT NULL
)`

// Store is a SQLite-backed BaselineStore.
type Store struct {
	db     *sql.DB
	path   string
	closed atomic.Bool
}

// NewStore opens (creating if needed) the database at path.
func NewStore(path string) (*Store, error) {
	if path == "" {
		path = defaultPath
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// A single connection serializes writers and keeps ":memory:" databases shared.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schemaDDL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create baselines table: %w", err)
	}
	return &Store{db: db, path: path}, nil
}

// Path returns the database file location.
func (s *Store) Path() string { return s.path }

// DB exposes the underlying handle for tests.
func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Save(ctx context.Context, b domain.Baseline) error {
	if s.closed.Load() {
		return domain.ErrStoreClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	payload, err := json.Marshal(b.Snapshot)
	if err != nil {
		return fmt.Errorf("encode baseline %d: %w", b.ItemID, err)
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO baselines(item_id, schema_name, payload, committed_at) VALUES(?, ?, ?, ?)
		ON CONFLICT(item_id) DO UPDATE SET schema_name=excluded.schema_name, payload=excluded.payload, committed_at=excluded.committed_at`,
		b.ItemID, b.Snapshot.Schema, payload, b.CommittedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("upsert baseline %d: %w", b.ItemID, err)
	}
	return nil
}

func (s *Store) Load(ctx context.Context, itemID int64) (domain.Baseline, bool, error) {
	if s.closed.Load() {
		return domain.Baseline{}, false, domain.ErrStoreClosed
	}
	row := s.db.QueryRowContext(ctx, `SELECT item_id, payload, committed_at FROM baselines WHERE item_id = ?`, itemID)
	b, err := scanBaseline(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Baseline{}, false, nil
	}
	if err != nil {
		return domain.Baseline{}, false, fmt.Errorf("load baseline %d: %w", itemID, err)
	}
	return b, true, nil
}

func (s *Store) Delete(ctx context.Context, itemID int64) (bool, error) {
	if s.closed.Load() {
		return false, domain.ErrStoreClosed
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM baselines WHERE item_id = ?`, itemID)
	if err != nil {
		return false, fmt.Errorf("delete baseline %d: %w", itemID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *Store) List(ctx context.Context) ([]domain.Baseline, error) {
	if s.closed.Load() {
		return nil, domain.ErrStoreClosed
	}
	rows, err := s.db.QueryContext(ctx, `SELECT item_id, payload, committed_at FROM baselines ORDER BY item_id`)
	if err != nil {
		return nil, fmt.Errorf("select baselines: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var out []domain.Baseline
	for rows.Next() {
		b, err := scanBaseline(rows)
		if err != nil {
			return nil, fmt.Errorf("scan baseline: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// Close releases the database handle. Later calls, Close included, are
// no-ops or fail with domain.ErrStoreClosed.
func (s *Store) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanBaseline(sc scanner) (domain.Baseline, error) {
	var (
		b       domain.Baseline
		payload []byte
		nanos   int64
	)
	if err := sc.Scan(&b.ItemID, &payload, &nanos); err != nil {
		return domain.Baseline{}, err
	}
	var snap version.Snapshot
	if err := json.Unmarshal(payload, &snap); err != nil {
		return domain.Baseline{}, fmt.Errorf("decode baseline %d: %w", b.ItemID, err)
	}
	b.Snapshot = snap
	b.CommittedAt = time.Unix(0, nanos).UTC()
	return b, nil
}
