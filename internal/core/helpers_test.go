package core

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"vaultcore/pkg/domain"
	"vaultcore/pkg/schema"
)

type login struct {
	fs       *schema.FieldSet
	title    *schema.FieldDefinition
	username *schema.FieldDefinition
	password *schema.FieldDefinition
}

func newLogin() login {
	l := login{fs: schema.NewFieldSet("login", nil)}
	l.title = l.fs.Register(schema.FieldSpec{Name: "title", Kind: schema.KindString, Storage: schema.Versioned, MaxLength: 8})
	l.username = l.fs.Register(schema.FieldSpec{Name: "username", Kind: schema.KindString, Storage: schema.Versioned})
	l.password = l.fs.Register(schema.FieldSpec{Name: "password", Kind: schema.KindBytes, Storage: schema.Versioned})
	return l
}

func (l login) set(title, username string) func(*domain.Item) error {
	return func(item *domain.Item) error {
		item.Set(l.title, title)
		item.Set(l.username, username)
		return nil
	}
}

type captureAuditRecorder struct {
	mu      sync.Mutex
	entries []AuditEntry
}

func (c *captureAuditRecorder) Record(_ context.Context, entry AuditEntry) {
	c.mu.Lock()
	c.entries = append(c.entries, entry)
	c.mu.Unlock()
}

func (c *captureAuditRecorder) has(op string, status AuditStatus, predicate func(AuditEntry) bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, entry := range c.entries {
		if entry.Operation == op && entry.Status == status {
			if predicate == nil || predicate(entry) {
				return true
			}
		}
	}
	return false
}

type metricsCall struct {
	op       string
	success  bool
	duration time.Duration
}

type captureMetricsRecorder struct {
	calls []metricsCall
}

func (c *captureMetricsRecorder) Observe(_ context.Context, op string, success bool, duration time.Duration) {
	c.calls = append(c.calls, metricsCall{op: op, success: success, duration: duration})
}

func (c *captureMetricsRecorder) has(op string, success bool) bool {
	for _, call := range c.calls {
		if call.op == op && call.success == success {
			return true
		}
	}
	return false
}

type spanRecord struct {
	op     string
	itemID int64
	err    error
}

type captureTracer struct {
	started []string
	ended   []spanRecord
}

func (c *captureTracer) Start(ctx context.Context, op string) (context.Context, TraceSpan) {
	c.started = append(c.started, op)
	id, _ := ItemIDFromContext(ctx)
	return ctx, &captureSpan{tracer: c, op: op, itemID: id}
}

type captureSpan struct {
	tracer *captureTracer
	op     string
	itemID int64
}

func (s *captureSpan) End(err error) {
	s.tracer.ended = append(s.tracer.ended, spanRecord{op: s.op, itemID: s.itemID, err: err})
}

type logLine struct {
	level string
	msg   string
	args  []any
}

type captureLogger struct {
	lines []logLine
}

func (c *captureLogger) Debug(msg string, args ...any) { c.add("debug", msg, args) }
func (c *captureLogger) Info(msg string, args ...any)  { c.add("info", msg, args) }
func (c *captureLogger) Warn(msg string, args ...any)  { c.add("warn", msg, args) }
func (c *captureLogger) Error(msg string, args ...any) { c.add("error", msg, args) }

func (c *captureLogger) add(level, msg string, args []any) {
	c.lines = append(c.lines, logLine{level: level, msg: msg, args: args})
}

func (c *captureLogger) count(level string) int {
	n := 0
	for _, line := range c.lines {
		if line.level == level {
			n++
		}
	}
	return n
}

// stepClock advances by step on every call.
type stepClock struct {
	now  time.Time
	step time.Duration
}

func (c *stepClock) Now() time.Time {
	c.now = c.now.Add(c.step)
	return c.now
}

func mustCreate(t *testing.T, svc *Service, fn func(*domain.Item) error) *domain.Item {
	t.Helper()
	item, _, err := svc.Create(context.Background(), fn)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	return item
}

func mustCommit(t *testing.T, svc *Service, id int64) {
	t.Helper()
	if _, err := svc.Commit(context.Background(), id); err != nil {
		t.Fatalf("commit %d: %v", id, err)
	}
}

func expectState(t *testing.T, item *domain.Item, want domain.DataState) {
	t.Helper()
	if got := item.State(); got != want {
		t.Fatalf("expected item %d in state %s, got %s", item.ID(), want, got)
	}
}

var errEditFailed = errors.New("edit failed")
