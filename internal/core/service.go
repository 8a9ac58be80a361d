// Package core hosts the editing service: it owns the live items of one item
// type, runs edit sessions against their histories and moves committed state
// into durable storage.
package core

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"vaultcore/internal/infra/persistence/memory"
	"vaultcore/pkg/domain"
	"vaultcore/pkg/schema"
	"vaultcore/pkg/version"
)

// ErrNotFound is returned when an item id is unknown to the service or to the
// baseline store.
type ErrNotFound struct {
	ItemID int64
}

func (e ErrNotFound) Error() string {
	return fmt.Sprintf("item %d not found", e.ItemID)
}

// ErrInvalidVersion is returned by Condense for negative targets.
var ErrInvalidVersion = errors.New("condense target must not be negative")

type itemIDKey struct{}

// ItemIDFromContext returns the id of the item an operation is running
// against, when the service has set one.
func ItemIDFromContext(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(itemIDKey{}).(int64)
	return id, ok
}

// Service coordinates items of a single FieldSet. All operations are
// serialized; items returned to callers must not be mutated outside Edit.
type Service struct {
	mu      sync.Mutex
	schema  *schema.FieldSet
	store   domain.BaselineStore
	items   map[int64]*domain.Item
	nextID  int64
	archive *Archive

	logger  Logger
	clock   Clock
	audit   AuditRecorder
	metrics MetricsRecorder
	tracer  Tracer
	engine  *domain.RulesEngine
}

// NewService builds a service for items of fs backed by store.
func NewService(fs *schema.FieldSet, store domain.BaselineStore, opts ...ServiceOption) *Service {
	cfg := defaultServiceOptions()
	for _, opt := range opts {
		opt(&cfg)
	}
	fs.Lock()
	svc := &Service{
		schema:  fs,
		store:   store,
		items:   make(map[int64]*domain.Item),
		logger:  cfg.logger,
		clock:   cfg.clock,
		audit:   cfg.audit,
		metrics: cfg.metrics,
		tracer:  cfg.tracer,
		engine:  cfg.engine,
	}
	if cfg.archive != nil {
		svc.archive = NewArchive(cfg.archive)
	}
	return svc
}

// NewInMemoryService builds a service over a fresh in-memory baseline store.
func NewInMemoryService(fs *schema.FieldSet, opts ...ServiceOption) *Service {
	return NewService(fs, memory.NewStore(), opts...)
}

func (s *Service) Schema() *schema.FieldSet    { return s.schema }
func (s *Service) Store() domain.BaselineStore { return s.store }

// Close releases the baseline store.
func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.Close()
}

// Archive returns the history archive, nil when none is configured.
func (s *Service) Archive() *Archive { return s.archive }

// run wraps an operation with tracing, metrics, logging and auditing. fn
// returns the item it acted on so the audit entry can carry its final state.
func (s *Service) run(ctx context.Context, op string, id int64, fn func(context.Context) (*domain.Item, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id != 0 {
		ctx = context.WithValue(ctx, itemIDKey{}, id)
	}
	ctx, span := s.tracer.Start(ctx, op)
	start := s.clock.Now()
	item, err := fn(ctx)
	duration := s.clock.Now().Sub(start)
	span.End(err)
	s.metrics.Observe(ctx, op, err == nil, duration)

	entry := AuditEntry{Operation: op, ItemID: id, Duration: duration, Timestamp: s.clock.Now()}
	if item != nil {
		entry.ItemID = item.ID()
		entry.State = item.State()
	}
	if err != nil {
		s.logger.Error("vaultcore operation failed", "operation", op, "item_id", entry.ItemID, "error", err)
		entry.Status = AuditStatusError
		entry.Error = err.Error()
		s.audit.Record(ctx, entry)
		return err
	}
	s.logger.Debug("vaultcore operation", "operation", op, "item_id", entry.ItemID, "state", entry.State, "duration", duration)
	entry.Status = AuditStatusSuccess
	s.audit.Record(ctx, entry)
	return nil
}

func (s *Service) lookup(id int64) (*domain.Item, error) {
	item, ok := s.items[id]
	if !ok {
		return nil, ErrNotFound{ItemID: id}
	}
	return item, nil
}

func (s *Service) validate(ctx context.Context, item *domain.Item) (domain.Result, error) {
	res, err := item.Validate(ctx, s.engine)
	if err != nil {
		return domain.Result{}, fmt.Errorf("validate item %d: %w", item.ID(), err)
	}
	return res, nil
}

// Create registers a new pending item and lets fn populate it. The item
// derives as new until its first commit.
func (s *Service) Create(ctx context.Context, fn func(*domain.Item) error) (*domain.Item, domain.Result, error) {
	var (
		created *domain.Item
		res     domain.Result
	)
	err := s.run(ctx, "create_item", 0, func(ctx context.Context) (*domain.Item, error) {
		item := domain.NewPendingItem(s.nextID+1, s.schema)
		if err := populate(item, fn); err != nil {
			return nil, err
		}
		var err error
		if res, err = s.validate(ctx, item); err != nil {
			return nil, err
		}
		s.nextID = item.ID()
		s.items[item.ID()] = item
		created = item
		return item, nil
	})
	return created, res, err
}

// Load hydrates an item from its committed baseline. Items already held by
// the service are returned as they are.
func (s *Service) Load(ctx context.Context, id int64) (*domain.Item, error) {
	var loaded *domain.Item
	err := s.run(ctx, "load_item", id, func(ctx context.Context) (*domain.Item, error) {
		item, err := s.loadLocked(ctx, id)
		loaded = item
		return item, err
	})
	return loaded, err
}

func (s *Service) loadLocked(ctx context.Context, id int64) (*domain.Item, error) {
	if item, ok := s.items[id]; ok {
		return item, nil
	}
	base, err := s.loadBaseline(ctx, id)
	if err != nil {
		return nil, err
	}
	item := domain.NewItemFromValues(id, base)
	if _, err := s.validate(ctx, item); err != nil {
		return nil, err
	}
	s.items[id] = item
	if id > s.nextID {
		s.nextID = id
	}
	return item, nil
}

func (s *Service) loadBaseline(ctx context.Context, id int64) (*version.ValueSet, error) {
	b, ok, err := s.store.Load(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load baseline %d: %w", id, err)
	}
	if !ok {
		return nil, ErrNotFound{ItemID: id}
	}
	vs, err := version.Decode(s.schema, b.Snapshot)
	if err != nil {
		return nil, fmt.Errorf("decode baseline %d: %w", id, err)
	}
	return vs, nil
}

// LoadAll hydrates every stored baseline not yet held and returns how many
// items were added.
func (s *Service) LoadAll(ctx context.Context) (int, error) {
	added := 0
	err := s.run(ctx, "load_all", 0, func(ctx context.Context) (*domain.Item, error) {
		baselines, err := s.store.List(ctx)
		if err != nil {
			return nil, fmt.Errorf("list baselines: %w", err)
		}
		for _, b := range baselines {
			if _, ok := s.items[b.ItemID]; ok {
				continue
			}
			if _, err := s.loadLocked(ctx, b.ItemID); err != nil {
				return nil, err
			}
			added++
		}
		return nil, nil
	})
	return added, err
}

// Edit runs fn as one undoable edit level. A failing fn leaves the item as it
// was; an fn that changes nothing leaves no level behind.
func (s *Service) Edit(ctx context.Context, id int64, fn func(*domain.Item) error) (domain.Result, error) {
	return s.edit(ctx, "edit_item", id, fn)
}

// Delete marks the item deleted in a new edit level.
func (s *Service) Delete(ctx context.Context, id int64) (domain.Result, error) {
	return s.edit(ctx, "delete_item", id, func(item *domain.Item) error {
		item.MarkDeleted()
		return nil
	})
}

// Recover clears the deletion flag in a new edit level.
func (s *Service) Recover(ctx context.Context, id int64) (domain.Result, error) {
	return s.edit(ctx, "recover_item", id, func(item *domain.Item) error {
		item.MarkRecovered()
		return nil
	})
}

func (s *Service) edit(ctx context.Context, op string, id int64, fn func(*domain.Item) error) (domain.Result, error) {
	var res domain.Result
	err := s.run(ctx, op, id, func(ctx context.Context) (*domain.Item, error) {
		item, err := s.lookup(id)
		if err != nil {
			return nil, err
		}
		if err := applyEdit(item, fn); err != nil {
			return item, err
		}
		res, err = s.validate(ctx, item)
		return item, err
	})
	return res, err
}

// kindMismatch returns the recovered panic value as an error when a field was
// handed a value its kind cannot hold.
func kindMismatch(r any) error {
	if err, ok := r.(error); ok && errors.Is(err, version.ErrKindMismatch) {
		return err
	}
	return nil
}

func populate(item *domain.Item, fn func(*domain.Item) error) (err error) {
	if fn == nil {
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			if err = kindMismatch(r); err == nil {
				panic(r)
			}
		}
	}()
	return fn(item)
}

func applyEdit(item *domain.Item, fn func(*domain.Item) error) (err error) {
	item.PushHistory(item.NextVersion())
	defer func() {
		if r := recover(); r != nil {
			item.PopHistory()
			if err = kindMismatch(r); err == nil {
				panic(r)
			}
		}
	}()
	if err := fn(item); err != nil {
		item.PopHistory()
		return err
	}
	item.MaybePopHistory()
	return nil
}

// Undo discards the most recent edit level and reports whether one existed.
func (s *Service) Undo(ctx context.Context, id int64) (bool, error) {
	undone := false
	err := s.run(ctx, "undo_item", id, func(ctx context.Context) (*domain.Item, error) {
		item, err := s.lookup(id)
		if err != nil {
			return nil, err
		}
		if !item.HasHistory() {
			return item, nil
		}
		item.PopHistory()
		undone = true
		_, err = s.validate(ctx, item)
		return item, err
	})
	return undone, err
}

// Revert drops every pending edit of the item.
func (s *Service) Revert(ctx context.Context, id int64) error {
	return s.run(ctx, "revert_item", id, func(ctx context.Context) (*domain.Item, error) {
		item, err := s.lookup(id)
		if err != nil {
			return nil, err
		}
		item.ResetHistory()
		_, err = s.validate(ctx, item)
		return item, err
	})
}

// Condense collapses the item's history down to newMax.
func (s *Service) Condense(ctx context.Context, id int64, newMax int) error {
	return s.run(ctx, "condense_item", id, func(ctx context.Context) (*domain.Item, error) {
		if newMax < 0 {
			return nil, fmt.Errorf("%w: %d", ErrInvalidVersion, newMax)
		}
		item, err := s.lookup(id)
		if err != nil {
			return nil, err
		}
		item.CondenseHistory(newMax)
		return item, nil
	})
}

// Commit moves the item's pending state into the baseline store. Items with
// blocking violations are refused with a RuleViolationError. Deleted items
// lose their baseline and leave the service; clean items are left alone.
func (s *Service) Commit(ctx context.Context, id int64) (domain.Result, error) {
	var res domain.Result
	err := s.run(ctx, "commit_item", id, func(ctx context.Context) (*domain.Item, error) {
		item, err := s.lookup(id)
		if err != nil {
			return nil, err
		}
		if res, err = s.validate(ctx, item); err != nil {
			return item, err
		}
		if res.HasBlocking() {
			return item, domain.RuleViolationError{ItemID: id, Result: res}
		}
		now := s.clock.Now()
		state := pendingState(item)
		switch state {
		case domain.StateClean:
			return item, nil
		case domain.StateDeleted, domain.StateDelNew:
			if err := s.archiveItem(ctx, item, OutcomeRemoved); err != nil {
				return item, err
			}
			if state == domain.StateDeleted {
				if _, err := s.store.Delete(ctx, id); err != nil {
					return item, fmt.Errorf("delete baseline %d: %w", id, err)
				}
			}
			delete(s.items, id)
			s.logger.Info("vaultcore item removed", "item_id", id)
			return item, nil
		}
		if err := s.archiveItem(ctx, item, OutcomeCommitted); err != nil {
			return item, err
		}
		committed := item.Current().Clone()
		committed.SetVersion(0)
		snap, err := version.Encode(committed)
		if err != nil {
			return item, fmt.Errorf("encode item %d: %w", id, err)
		}
		if err := s.store.Save(ctx, domain.Baseline{ItemID: id, Snapshot: snap, CommittedAt: now}); err != nil {
			return item, fmt.Errorf("save baseline %d: %w", id, err)
		}
		item.ClearHistory()
		s.logger.Info("vaultcore item committed", "item_id", id)
		return item, nil
	})
	return res, err
}

// pendingState is the item's state for commit purposes. A history condensed
// to version 0 derives CLEAN while current can still differ from original;
// such items commit as changed or deleted.
func pendingState(item *domain.Item) domain.DataState {
	state := item.State()
	if state != domain.StateClean || item.Current().Equal(item.Original()) {
		return state
	}
	if item.Current().Deleted() {
		return domain.StateDeleted
	}
	return domain.StateChanged
}

func (s *Service) archiveItem(ctx context.Context, item *domain.Item, outcome string) error {
	if s.archive == nil {
		return nil
	}
	rec, err := BuildRecord(item, outcome, s.clock.Now())
	if err != nil {
		return fmt.Errorf("build history record %d: %w", item.ID(), err)
	}
	key, err := s.archive.Write(ctx, rec)
	if err != nil {
		return err
	}
	s.logger.Debug("vaultcore history archived", "item_id", item.ID(), "key", key)
	return nil
}

// Rebase re-bases the item onto its stored baseline so its pending edits
// become a single level against what storage holds now.
func (s *Service) Rebase(ctx context.Context, id int64) error {
	return s.run(ctx, "rebase_item", id, func(ctx context.Context) (*domain.Item, error) {
		item, err := s.lookup(id)
		if err != nil {
			return nil, err
		}
		base, err := s.loadBaseline(ctx, id)
		if err != nil {
			return item, err
		}
		item.SetHistory(base)
		_, err = s.validate(ctx, item)
		return item, err
	})
}

// Get returns a held item.
func (s *Service) Get(id int64) (*domain.Item, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[id]
	return item, ok
}

// Items returns the held items ordered by id.
func (s *Service) Items() []*domain.Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*domain.Item, 0, len(s.items))
	for _, item := range s.items {
		out = append(out, item)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// Diff returns the pending changes of an item against its baseline.
func (s *Service) Diff(id int64) ([]domain.Change, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	return item.Changes()
}
