package core

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"vaultcore/internal/blob"
	"vaultcore/pkg/domain"
)

const archivePrefix = "history/"

// Archive outcomes.
const (
	OutcomeCommitted = "committed"
	OutcomeRemoved   = "removed"
)

// HistoryRecord is the archived form of one item's pending history at the
// moment it was committed.
type HistoryRecord struct {
	ID          string           `json:"id"`
	ItemID      int64            `json:"item_id"`
	Schema      string           `json:"schema"`
	Outcome     string           `json:"outcome"`
	State       domain.DataState `json:"state"`
	CommittedAt time.Time        `json:"committed_at"`
	Levels      []LevelRecord    `json:"levels,omitempty"`
	Net         []domain.Change  `json:"net"`
}

// LevelRecord holds the changes made in one edit level.
type LevelRecord struct {
	Version int             `json:"version"`
	Changes []domain.Change `json:"changes"`
}

// Archive writes HistoryRecords to an object store under
// history/<item id>/<record id>.json. Record ids are UUIDv7 so keys sort in
// commit order.
type Archive struct {
	store blob.Store
	newID func() (uuid.UUID, error)
}

// NewArchive wraps store.
func NewArchive(store blob.Store) *Archive {
	return &Archive{store: store, newID: uuid.NewV7}
}

// Store returns the underlying object store.
func (a *Archive) Store() blob.Store { return a.store }

func archiveKey(itemID int64, recordID string) string {
	return archivePrefix + strconv.FormatInt(itemID, 10) + "/" + recordID + ".json"
}

// BuildRecord captures the pending history of item.
func BuildRecord(item *domain.Item, outcome string, at time.Time) (HistoryRecord, error) {
	pending := item.State() == domain.StateNew || item.State() == domain.StateDelNew
	rec := HistoryRecord{
		ItemID:      item.ID(),
		Schema:      item.Schema().Name(),
		Outcome:     outcome,
		State:       item.State(),
		CommittedAt: at,
	}
	for _, d := range item.History().Deltas() {
		changes, err := domain.ChangesFromDelta(item.ID(), d, pending)
		if err != nil {
			return HistoryRecord{}, err
		}
		if len(changes) == 0 {
			continue
		}
		rec.Levels = append(rec.Levels, LevelRecord{Version: d.Version(), Changes: changes})
	}
	net, err := item.Changes()
	if err != nil {
		return HistoryRecord{}, err
	}
	rec.Net = net
	return rec, nil
}

// Write stores rec, assigning it an id, and returns the object key.
func (a *Archive) Write(ctx context.Context, rec HistoryRecord) (string, error) {
	id, err := a.newID()
	if err != nil {
		return "", fmt.Errorf("archive id: %w", err)
	}
	rec.ID = id.String()
	raw, err := json.Marshal(rec)
	if err != nil {
		return "", fmt.Errorf("encode history record: %w", err)
	}
	key := archiveKey(rec.ItemID, rec.ID)
	_, err = a.store.Put(ctx, key, bytes.NewReader(raw), blob.PutOptions{
		ContentType: "application/json",
		Metadata: map[string]string{
			"item-id": strconv.FormatInt(rec.ItemID, 10),
			"outcome": rec.Outcome,
		},
	})
	if err != nil {
		return "", fmt.Errorf("archive %s: %w", key, err)
	}
	return key, nil
}

// List returns the archive objects for itemID in commit order. An itemID of
// zero lists every item.
func (a *Archive) List(ctx context.Context, itemID int64) ([]blob.Info, error) {
	prefix := archivePrefix
	if itemID != 0 {
		prefix = archivePrefix + strconv.FormatInt(itemID, 10) + "/"
	}
	infos, err := a.store.List(ctx, prefix)
	if err != nil {
		return nil, err
	}
	out := infos[:0]
	for _, info := range infos {
		if strings.HasSuffix(info.Key, ".json") {
			out = append(out, info)
		}
	}
	return out, nil
}

// Read loads the record stored under key.
func (a *Archive) Read(ctx context.Context, key string) (HistoryRecord, error) {
	_, rc, err := a.store.Get(ctx, key)
	if err != nil {
		return HistoryRecord{}, err
	}
	defer func() { _ = rc.Close() }()
	var rec HistoryRecord
	if err := json.NewDecoder(rc).Decode(&rec); err != nil {
		return HistoryRecord{}, fmt.Errorf("decode %s: %w", key, err)
	}
	return rec, nil
}
