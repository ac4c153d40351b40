package core

import (
	"expvar"
	"fmt"
	"maps"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"brewcore/internal/engine"
)

// PrometheusRecorder exports engine cache activity as Prometheus counters
// labelled by entity type and field.
type PrometheusRecorder struct {
	recomputed  *prometheus.CounterVec
	invalidated *prometheus.CounterVec
}

var _ engine.Recorder = (*PrometheusRecorder)(nil)

// NewPrometheusRecorder registers the recorder's counters with reg. A nil reg
// registers them with a private registry.
func NewPrometheusRecorder(reg prometheus.Registerer) (*PrometheusRecorder, error) {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	r := &PrometheusRecorder{
		recomputed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "brewcore_field_recomputations_total",
			Help: "Derived field evaluations that missed the cache.",
		}, []string{"entity", "field"}),
		invalidated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "brewcore_field_invalidations_total",
			Help: "Cached derived values dropped because a source changed.",
		}, []string{"entity", "field"}),
	}
	for _, c := range []prometheus.Collector{r.recomputed, r.invalidated} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("register engine metrics: %w", err)
		}
	}
	return r, nil
}

// Recomputed implements engine.Recorder.
func (r *PrometheusRecorder) Recomputed(entityType, field string) {
	r.recomputed.WithLabelValues(entityType, field).Inc()
}

// Invalidated implements engine.Recorder.
func (r *PrometheusRecorder) Invalidated(entityType, field string) {
	r.invalidated.WithLabelValues(entityType, field).Inc()
}

var expvarSeq uint64

// ExpvarRecorder publishes engine cache activity via expvar for deployments
// that prefer process-local metrics. Counters are keyed "entity.field".
type ExpvarRecorder struct {
	name        string
	mu          sync.Mutex
	recomputed  map[string]int64
	invalidated map[string]int64
}

var _ engine.Recorder = (*ExpvarRecorder)(nil)

// ExpvarSnapshot captures a read-only view of the recorded counters.
type ExpvarSnapshot struct {
	Recomputed  map[string]int64 `json:"recomputations_total"`
	Invalidated map[string]int64 `json:"invalidations_total"`
	RecordedAt  time.Time        `json:"recorded_at"`
}

// NewExpvarRecorder constructs an expvar-backed recorder and publishes it
// under the supplied name. When name is empty, a unique identifier is
// generated. expvar names are process-global; publishing a name twice panics.
func NewExpvarRecorder(name string) *ExpvarRecorder {
	if name == "" {
		id := atomic.AddUint64(&expvarSeq, 1)
		name = fmt.Sprintf("brewcore_engine_%d", id)
	}
	rec := &ExpvarRecorder{
		name:        name,
		recomputed:  make(map[string]int64),
		invalidated: make(map[string]int64),
	}
	expvar.Publish(name, expvar.Func(func() any {
		return rec.Snapshot()
	}))
	return rec
}

// Name returns the expvar export name associated with the recorder.
func (r *ExpvarRecorder) Name() string {
	return r.name
}

// Recomputed implements engine.Recorder.
func (r *ExpvarRecorder) Recomputed(entityType, field string) {
	r.mu.Lock()
	r.recomputed[entityType+"."+field]++
	r.mu.Unlock()
}

// Invalidated implements engine.Recorder.
func (r *ExpvarRecorder) Invalidated(entityType, field string) {
	r.mu.Lock()
	r.invalidated[entityType+"."+field]++
	r.mu.Unlock()
}

// Snapshot returns a copy of the counters.
func (r *ExpvarRecorder) Snapshot() ExpvarSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return ExpvarSnapshot{
		Recomputed:  maps.Clone(r.recomputed),
		Invalidated: maps.Clone(r.invalidated),
		RecordedAt:  time.Now().UTC(),
	}
}

// Recorders fans engine events out to every non-nil recorder.
func Recorders(rs ...engine.Recorder) engine.Recorder {
	var out multiRecorder
	for _, r := range rs {
		if r != nil {
			out = append(out, r)
		}
	}
	return out
}

type multiRecorder []engine.Recorder

func (m multiRecorder) Recomputed(entityType, field string) {
	for _, r := range m {
		r.Recomputed(entityType, field)
	}
}

func (m multiRecorder) Invalidated(entityType, field string) {
	for _, r := range m {
		r.Invalidated(entityType, field)
	}
}

// NewRecorder builds the recorder selected by cfg. reg receives Prometheus
// collectors and may be nil for other drivers. A nil recorder means none.
func NewRecorder(cfg MetricsConfig, reg prometheus.Registerer) (engine.Recorder, error) {
	switch cfg.Driver {
	case "", MetricsNone:
		return nil, nil
	case MetricsPrometheus:
		rec, err := NewPrometheusRecorder(reg)
		if err != nil {
			return nil, err
		}
		return rec, nil
	case MetricsExpvar:
		return NewExpvarRecorder(cfg.Name), nil
	default:
		return nil, fmt.Errorf("unknown metrics driver %s", cfg.Driver)
	}
}
