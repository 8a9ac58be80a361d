// Package postgres provides a Postgres-backed BaselineStore using the pgx
// database/sql driver.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver

	"vaultcore/pkg/domain"
	"vaultcore/pkg/version"
)

var _ domain.BaselineStore = (*Store)(nil)

const (
	defaultDriver = "pgx"
	defaultDSN    = "postgres://localhost/vaultcore?sslmode=disable"
)

const schemaDDL = `CREATE TABLE IF NOT EXISTS baselines (
	item_id BIGINT PRIMARY KEY,
	schema_name TEXT NOT NULL,
	payload JSONB NOT NULL,
	committed_at TIMESTAMPTZ NOT NULL
)`

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

// Store persists baselines in a single Postgres table.
type Store struct {
	db     *sql.DB
	closed atomic.Bool
}

// NewStore opens a store using dsn (falls back to defaultDSN), verifies the
// connection and ensures the baselines table exists.
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		dsn = defaultDSN
	}
	openMu.Lock()
	db, err := sqlOpen(defaultDriver, dsn)
	openMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := db.ExecContext(ctx, schemaDDL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure baselines table: %w", err)
	}
	return &Store{db: db}, nil
}

// DB exposes the underlying sql.DB for integration testing hooks.
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
	_, err = s.db.ExecContext(ctx, `INSERT INTO baselines (item_id, schema_name, payload, committed_at) VALUES ($1, $2, $3, $4)
		ON CONFLICT (item_id) DO UPDATE SET schema_name = EXCLUDED.schema_name, payload = EXCLUDED.payload, committed_at = EXCLUDED.committed_at`,
		b.ItemID, b.Snapshot.Schema, payload, b.CommittedAt.UTC())
	if err != nil {
		return fmt.Errorf("upsert baseline %d: %w", b.ItemID, err)
	}
	return nil
}

func (s *Store) Load(ctx context.Context, itemID int64) (domain.Baseline, bool, error) {
	if s.closed.Load() {
		return domain.Baseline{}, false, domain.ErrStoreClosed
	}
	rows, err := s.db.QueryContext(ctx, `SELECT item_id, payload, committed_at FROM baselines WHERE item_id = $1`, itemID)
	if err != nil {
		return domain.Baseline{}, false, fmt.Errorf("load baseline %d: %w", itemID, err)
	}
	found, err := collect(rows)
	if err != nil {
		return domain.Baseline{}, false, fmt.Errorf("load baseline %d: %w", itemID, err)
	}
	if len(found) == 0 {
		return domain.Baseline{}, false, nil
	}
	return found[0], true, nil
}

func (s *Store) Delete(ctx context.Context, itemID int64) (bool, error) {
	if s.closed.Load() {
		return false, domain.ErrStoreClosed
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM baselines WHERE item_id = $1`, itemID)
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
	out, err := collect(rows)
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ItemID < out[j].ItemID })
	return out, nil
}

// Close releases the database handle. Later calls, Close included, are
// no-ops or fail with domain.ErrStoreClosed.
func (s *Store) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.db.Close()
}

func collect(rows *sql.Rows) (out []domain.Baseline, err error) {
	defer func() {
		if cerr := rows.Close(); err == nil {
			err = cerr
		}
	}()
	for rows.Next() {
		var (
			b       domain.Baseline
			payload []byte
			at      time.Time
		)
		if err := rows.Scan(&b.ItemID, &payload, &at); err != nil {
			return nil, fmt.Errorf("scan baseline: %w", err)
		}
		var snap version.Snapshot
		if err := json.Unmarshal(payload, &snap); err != nil {
			return nil, fmt.Errorf("decode baseline %d: %w", b.ItemID, err)
		}
		b.Snapshot = snap
		b.CommittedAt = at.UTC()
		out = append(out, b)
	}
	if err := rows.Err(); err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	return out, nil
}

// OverrideSQLOpen swaps the sqlOpen function for tests and returns a restore function.
func OverrideSQLOpen(fn func(driverName, dataSourceName string) (*sql.DB, error)) func() {
	openMu.Lock()
	defer openMu.Unlock()
	prev := sqlOpen
	sqlOpen = fn
	return func() {
		openMu.Lock()
		defer openMu.Unlock()
		sqlOpen = prev
	}
}
