package core

import (
	"context"
	"encoding/json"
	"expvar"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"
)

var expvarSeq uint64

// ExpvarMetricsRecorder publishes operation latency totals (milliseconds) and
// outcome counters as an expvar.Map:
//
//	{"durations_ms_total": {"<op>": ms}, "results_total": {"<op>": {"success": n, "error": n}}}
type ExpvarMetricsRecorder struct {
	name      string
	durations *expvar.Map
	results   *expvar.Map

	mu       sync.Mutex
	statuses map[string]*expvar.Map
}

// ExpvarMetricsSnapshot is a point-in-time copy of the published values.
type ExpvarMetricsSnapshot struct {
	DurationsMS map[string]float64          `json:"durations_ms_total"`
	Results     map[string]map[string]int64 `json:"results_total"`
	RecordedAt  time.Time                   `json:"recorded_at"`
}

// NewExpvarMetricsRecorder publishes a recorder under name, or under a
// generated vaultcore_service_metrics_<n> name when name is empty. Publishing
// a name twice panics, as expvar does.
func NewExpvarMetricsRecorder(name string) *ExpvarMetricsRecorder {
	if name == "" {
		name = fmt.Sprintf("vaultcore_service_metrics_%d", atomic.AddUint64(&expvarSeq, 1))
	}
	rec := &ExpvarMetricsRecorder{
		name:      name,
		durations: new(expvar.Map).Init(),
		results:   new(expvar.Map).Init(),
		statuses:  make(map[string]*expvar.Map),
	}
	root := expvar.NewMap(name)
	root.Set("durations_ms_total", rec.durations)
	root.Set("results_total", rec.results)
	return rec
}

func (r *ExpvarMetricsRecorder) Name() string { return r.name }

// Observe implements MetricsRecorder. Empty operation names are dropped.
func (r *ExpvarMetricsRecorder) Observe(_ context.Context, operation string, success bool, duration time.Duration) {
	if operation == "" {
		return
	}
	status := AuditStatusError
	if success {
		status = AuditStatusSuccess
	}
	r.durations.AddFloat(operation, float64(duration)/float64(time.Millisecond))
	r.statusMap(operation).Add(string(status), 1)
}

func (r *ExpvarMetricsRecorder) statusMap(operation string) *expvar.Map {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.statuses[operation]
	if !ok {
		m = new(expvar.Map).Init()
		r.statuses[operation] = m
		r.results.Set(operation, m)
	}
	return m
}

// Snapshot copies the current values.
func (r *ExpvarMetricsRecorder) Snapshot() ExpvarMetricsSnapshot {
	snap := ExpvarMetricsSnapshot{
		DurationsMS: make(map[string]float64),
		Results:     make(map[string]map[string]int64),
		RecordedAt:  time.Now().UTC(),
	}
	r.durations.Do(func(kv expvar.KeyValue) {
		if f, ok := kv.Value.(*expvar.Float); ok {
			snap.DurationsMS[kv.Key] = f.Value()
		}
	})
	r.results.Do(func(kv expvar.KeyValue) {
		statuses, ok := kv.Value.(*expvar.Map)
		if !ok {
			return
		}
		counts := make(map[string]int64)
		statuses.Do(func(s expvar.KeyValue) {
			if n, ok := s.Value.(*expvar.Int); ok {
				counts[s.Key] = n.Value()
			}
		})
		snap.Results[kv.Key] = counts
	})
	return snap
}

// JSONTraceEntry is one finished span.
type JSONTraceEntry struct {
	Operation  string    `json:"operation"`
	ItemID     int64     `json:"item_id,omitempty"`
	Status     string    `json:"status"`
	DurationMS float64   `json:"duration_ms"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	EndedAt    time.Time `json:"ended_at"`
}

// JSONTraceTracer keeps every finished span and, when built with a writer,
// also writes it as one JSON line.
type JSONTraceTracer struct {
	now func() time.Time

	mu      sync.Mutex
	enc     *json.Encoder
	entries []JSONTraceEntry
}

// NewJSONTracer returns a tracer writing to w. A nil w only retains spans.
func NewJSONTracer(w io.Writer) *JSONTraceTracer {
	t := &JSONTraceTracer{now: func() time.Time { return time.Now().UTC() }}
	if w != nil {
		t.enc = json.NewEncoder(w)
	}
	return t
}

// Entries returns the spans finished so far, oldest first.
func (t *JSONTraceTracer) Entries() []JSONTraceEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]JSONTraceEntry(nil), t.entries...)
}

// Start implements Tracer. The span records the item id the service put on
// ctx, if any.
func (t *JSONTraceTracer) Start(ctx context.Context, operation string) (context.Context, TraceSpan) {
	entry := JSONTraceEntry{Operation: operation, StartedAt: t.now()}
	if id, ok := ItemIDFromContext(ctx); ok {
		entry.ItemID = id
	}
	return ctx, &jsonTraceSpan{tracer: t, entry: entry}
}

func (t *JSONTraceTracer) finish(entry JSONTraceEntry) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = append(t.entries, entry)
	if t.enc != nil {
		_ = t.enc.Encode(entry)
	}
}

type jsonTraceSpan struct {
	tracer *JSONTraceTracer
	entry  JSONTraceEntry
}

func (s *jsonTraceSpan) End(err error) {
	e := s.entry
	e.EndedAt = s.tracer.now()
	e.DurationMS = float64(e.EndedAt.Sub(e.StartedAt)) / float64(time.Millisecond)
	e.Status = string(AuditStatusSuccess)
	if err != nil {
		e.Status = string(AuditStatusError)
		e.Error = err.Error()
	}
	s.tracer.finish(e)
}
