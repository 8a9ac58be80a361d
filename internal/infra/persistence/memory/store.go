// Package memory provides a process-local BaselineStore used by tests and by
// ephemeral sessions that never need to survive a restart.
package memory

import (
	"context"
	"sort"
	"sync"

	"vaultcore/pkg/domain"
)

var _ domain.BaselineStore = (*Store)(nil)

// Store keeps committed baselines in a map keyed by item id.
type Store struct {
	mu        sync.RWMutex
	baselines map[int64]domain.Baseline
	closed    bool
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{baselines: make(map[int64]domain.Baseline)}
}

func (s *Store) Save(ctx context.Context, b domain.Baseline) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return domain.ErrStoreClosed
	}
	s.baselines[b.ItemID] = cloneBaseline(b)
	return nil
}

func (s *Store) Load(ctx context.Context, itemID int64) (domain.Baseline, bool, error) {
	if err := ctx.Err(); err != nil {
		return domain.Baseline{}, false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return domain.Baseline{}, false, domain.ErrStoreClosed
	}
	b, ok := s.baselines[itemID]
	if !ok {
		return domain.Baseline{}, false, nil
	}
	return cloneBaseline(b), true, nil
}

func (s *Store) Delete(ctx context.Context, itemID int64) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false, domain.ErrStoreClosed
	}
	_, ok := s.baselines[itemID]
	delete(s.baselines, itemID)
	return ok, nil
}

// List returns every baseline ordered by item id.
func (s *Store) List(ctx context.Context) ([]domain.Baseline, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, domain.ErrStoreClosed
	}
	out := make([]domain.Baseline, 0, len(s.baselines))
	for _, b := range s.baselines {
		out = append(out, cloneBaseline(b))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ItemID < out[j].ItemID })
	return out, nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func cloneBaseline(b domain.Baseline) domain.Baseline {
	b.Snapshot = b.Snapshot.Clone()
	return b
}
