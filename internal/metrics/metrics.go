// Package metrics provides sinks for cache hit, miss and eviction counts.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// CacheRecorder receives cache activity. Implementations must not block.
type CacheRecorder interface {
	RecordHit(op string)
	RecordMiss(op string)
	RecordEviction(key string)
}

// Noop discards all cache activity.
type Noop struct{}

func (Noop) RecordHit(string)      {}
func (Noop) RecordMiss(string)     {}
func (Noop) RecordEviction(string) {}

// Log writes cache activity to a zap logger at debug level.
type Log struct {
	logger *zap.Logger
}

// NewLog creates a logging recorder.
func NewLog(logger *zap.Logger) *Log {
	return &Log{logger: logger}
}

func (l *Log) RecordHit(op string) {
	l.logger.Debug("cache hit", zap.String("op", op))
}

func (l *Log) RecordMiss(op string) {
	l.logger.Debug("cache miss", zap.String("op", op))
}

func (l *Log) RecordEviction(key string) {
	l.logger.Debug("cache eviction", zap.String("key", key))
}

// Prometheus exports cache activity as counters.
type Prometheus struct {
	hits      *prometheus.CounterVec
	misses    *prometheus.CounterVec
	evictions prometheus.Counter
}

// NewPrometheus creates the cache counters and registers them with reg.
func NewPrometheus(reg prometheus.Registerer) (*Prometheus, error) {
	p := &Prometheus{
		hits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "shortlinks",
			Subsystem: "alias_cache",
			Name:      "hits_total",
			Help:      "Alias cache hits by operation.",
		}, []string{"op"}),
		misses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "shortlinks",
			Subsystem: "alias_cache",
			Name:      "misses_total",
			Help:      "Alias cache misses by operation.",
		}, []string{"op"}),
		evictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "shortlinks",
			Subsystem: "alias_cache",
			Name:      "evictions_total",
			Help:      "Alias cache evictions.",
		}),
	}

	for _, c := range []prometheus.Collector{p.hits, p.misses, p.evictions} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}

	return p, nil
}

func (p *Prometheus) RecordHit(op string) {
	p.hits.WithLabelValues(op).Inc()
}

func (p *Prometheus) RecordMiss(op string) {
	p.misses.WithLabelValues(op).Inc()
}

// RecordEviction counts an eviction. Keys are not used as labels to keep
// cardinality bounded.
func (p *Prometheus) RecordEviction(string) {
	p.evictions.Inc()
}

// Multi fans activity out to several recorders.
type Multi []CacheRecorder

func (m Multi) RecordHit(op string) {
	for _, r := range m {
		r.RecordHit(op)
	}
}

func (m Multi) RecordMiss(op string) {
	for _, r := range m {
		r.RecordMiss(op)
	}
}

func (m Multi) RecordEviction(key string) {
	for _, r := range m {
		r.RecordEviction(key)
	}
}
