// Package metrics provides metrics implementations for the user registry.
package metrics

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/overlaykit/userdir/pkg/interfaces"
)

// NoOpMetrics is a no-operation metrics implementation, used when
// instrumentation is disabled.
type NoOpMetrics struct{}

// Counter increments a counter metric
func (m *NoOpMetrics) Counter(name string, value float64, labels map[string]string) {}

// Gauge sets a gauge metric
func (m *NoOpMetrics) Gauge(name string, value float64, labels map[string]string) {}

// Histogram records a distribution sample
func (m *NoOpMetrics) Histogram(name string, value float64, labels map[string]string) {}

// Timer records timing metrics
func (m *NoOpMetrics) Timer(name string, duration float64, labels map[string]string) {}

// TimingStats aggregates the samples recorded for one timer or histogram
// series.
type TimingStats struct {
	Count int64   `json:"count"`
	Total float64 `json:"total"`
	Max   float64 `json:"max"`
}

// Snapshot is a point-in-time copy of every recorded series, keyed by the
// series name with its sorted labels appended.
type Snapshot struct {
	Counters   map[string]float64     `json:"counters"`
	Gauges     map[string]float64     `json:"gauges"`
	Histograms map[string]TimingStats `json:"histograms,omitempty"`
	Timers     map[string]TimingStats `json:"timers"`
}

// Recorder accumulates measurements in memory. It is cheap enough to sit on
// the request path and exposes a snapshot for the metrics endpoint.
type Recorder struct {
	mu         sync.Mutex
	counters   map[string]float64
	gauges     map[string]float64
	histograms map[string]*TimingStats
	timers     map[string]*TimingStats
}

// Counter increments a counter metric
func (m *Recorder) Counter(name string, value float64, labels map[string]string) {
	key := seriesKey(name, labels)
	m.mu.Lock()
	m.counters[key] += value
	m.mu.Unlock()
}

// Gauge sets a gauge metric
func (m *Recorder) Gauge(name string, value float64, labels map[string]string) {
	key := seriesKey(name, labels)
	m.mu.Lock()
	m.gauges[key] = value
	m.mu.Unlock()
}

// Histogram records a distribution sample
func (m *Recorder) Histogram(name string, value float64, labels map[string]string) {
	key := seriesKey(name, labels)
	m.mu.Lock()
	record(m.histograms, key, value)
	m.mu.Unlock()
}

// Timer records timing metrics
func (m *Recorder) Timer(name string, duration float64, labels map[string]string) {
	key := seriesKey(name, labels)
	m.mu.Lock()
	record(m.timers, key, duration)
	m.mu.Unlock()
}

// Snapshot copies out every recorded series. The copy is detached: later
// measurements do not mutate an already taken snapshot.
func (m *Recorder) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := Snapshot{
		Counters: make(map[string]float64, len(m.counters)),
		Gauges:   make(map[string]float64, len(m.gauges)),
		Timers:   make(map[string]TimingStats, len(m.timers)),
	}
	for k, v := range m.counters {
		snap.Counters[k] = v
	}
	for k, v := range m.gauges {
		snap.Gauges[k] = v
	}
	for k, v := range m.timers {
		snap.Timers[k] = *v
	}
	if len(m.histograms) > 0 {
		snap.Histograms = make(map[string]TimingStats, len(m.histograms))
		for k, v := range m.histograms {
			snap.Histograms[k] = *v
		}
	}
	return snap
}

func record(series map[string]*TimingStats, key string, value float64) {
	stats, ok := series[key]
	if !ok {
		stats = &TimingStats{}
		series[key] = stats
	}
	stats.Count++
	stats.Total += value
	if value > stats.Max {
		stats.Max = value
	}
}

// seriesKey builds a stable identity for a named series: labels are sorted
// so the same label set always lands on the same entry.
func seriesKey(name string, labels map[string]string) string {
	if len(labels) == 0 {
		return name
	}

	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(name)
	b.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		fmt.Fprintf(&b, "%s=%s", k, labels[k])
	}
	b.WriteByte('}')
	return b.String()
}

var _ interfaces.Metrics = (*NoOpMetrics)(nil)
var _ interfaces.Metrics = (*Recorder)(nil)

// NewNoOpMetrics creates a new no-op metrics implementation
func NewNoOpMetrics() interfaces.Metrics {
	return &NoOpMetrics{}
}

// NewRecorder creates an in-memory metrics recorder
func NewRecorder() *Recorder {
	return &Recorder{
		counters:   make(map[string]float64),
		gauges:     make(map[string]float64),
		histograms: make(map[string]*TimingStats),
		timers:     make(map[string]*TimingStats),
	}
}

// NewTestMetrics creates a metrics implementation for testing
func NewTestMetrics() interfaces.Metrics {
	return &NoOpMetrics{}
}
