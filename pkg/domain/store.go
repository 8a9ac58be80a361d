package domain

import (
	"context"
	"errors"
	"time"

	"vaultcore/pkg/version"
)

// ErrStoreClosed is returned by BaselineStore methods called after Close.
var ErrStoreClosed = errors.New("baseline store closed")

// Baseline is the committed state of one item as held by durable storage.
type Baseline struct {
	ItemID      int64            `json:"item_id"`
	Snapshot    version.Snapshot `json:"snapshot"`
	CommittedAt time.Time        `json:"committed_at"`
}

// BaselineStore is the durable-storage collaborator. Items are committed into
// it and re-based against it; it never sees pending history.
type BaselineStore interface {
	Save(ctx context.Context, b Baseline) error
	Load(ctx context.Context, itemID int64) (Baseline, bool, error)
	Delete(ctx context.Context, itemID int64) (bool, error)
	List(ctx context.Context) ([]Baseline, error)
	Close() error
}
