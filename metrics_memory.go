package mqttbus

import (
	"math"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// MemoryMetrics keeps metrics in memory. It is intended for tests and for
// embedding applications that export values themselves.
type MemoryMetrics struct {
	mu         sync.Mutex
	counters   map[string]*memoryValue
	gauges     map[string]*memoryValue
	histograms map[string]*memoryHistogram
}

// NewMemoryMetrics creates a new in-memory metrics instance.
func NewMemoryMetrics() *MemoryMetrics {
	return &MemoryMetrics{
		counters:   make(map[string]*memoryValue),
		gauges:     make(map[string]*memoryValue),
		histograms: make(map[string]*memoryHistogram),
	}
}

// metricKey builds a stable key; labels are sorted so map iteration order
// does not produce distinct series.
func metricKey(name string, labels MetricLabels) string {
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
	for _, k := range keys {
		b.WriteString("|")
		b.WriteString(k)
		b.WriteString("=")
		b.WriteString(labels[k])
	}
	return b.String()
}

// Counter returns a counter metric.
func (m *MemoryMetrics) Counter(name string, labels MetricLabels) Counter {
	return m.value(m.counters, name, labels)
}

// Gauge returns a gauge metric.
func (m *MemoryMetrics) Gauge(name string, labels MetricLabels) Gauge {
	return m.value(m.gauges, name, labels)
}

// Histogram returns a histogram metric.
func (m *MemoryMetrics) Histogram(name string, labels MetricLabels) Histogram {
	key := metricKey(name, labels)

	m.mu.Lock()
	defer m.mu.Unlock()

	h, ok := m.histograms[key]
	if !ok {
		h = &memoryHistogram{}
		m.histograms[key] = h
	}
	return h
}

func (m *MemoryMetrics) value(set map[string]*memoryValue, name string, labels MetricLabels) *memoryValue {
	key := metricKey(name, labels)

	m.mu.Lock()
	defer m.mu.Unlock()

	v, ok := set[key]
	if !ok {
		v = &memoryValue{}
		set[key] = v
	}
	return v
}

// CounterValue returns the value of a counter, or 0 if it was never touched.
func (m *MemoryMetrics) CounterValue(name string, labels MetricLabels) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	if v, ok := m.counters[metricKey(name, labels)]; ok {
		return v.Value()
	}
	return 0
}

// GaugeValue returns the value of a gauge, or 0 if it was never touched.
func (m *MemoryMetrics) GaugeValue(name string, labels MetricLabels) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	if v, ok := m.gauges[metricKey(name, labels)]; ok {
		return v.Value()
	}
	return 0
}

// HistogramCount returns the number of observations of a histogram.
func (m *MemoryMetrics) HistogramCount(name string, labels MetricLabels) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	if h, ok := m.histograms[metricKey(name, labels)]; ok {
		return h.Count()
	}
	return 0
}

// memoryValue is a float64 stored as bits so it can be updated with CAS.
// It serves as both counter and gauge.
type memoryValue struct {
	bits atomic.Uint64
}

func (v *memoryValue) Inc() { v.Add(1) }

func (v *memoryValue) Add(delta float64) {
	for {
		old := v.bits.Load()
		next := math.Float64bits(math.Float64frombits(old) + delta)
		if v.bits.CompareAndSwap(old, next) {
			return
		}
	}
}

func (v *memoryValue) Set(value float64) {
	v.bits.Store(math.Float64bits(value))
}

func (v *memoryValue) Value() float64 {
	return math.Float64frombits(v.bits.Load())
}

type memoryHistogram struct {
	count atomic.Uint64
	sum   memoryValue
}

func (h *memoryHistogram) Observe(value float64) {
	h.count.Add(1)
	h.sum.Add(value)
}

func (h *memoryHistogram) ObserveDuration(d time.Duration) {
	h.Observe(d.Seconds())
}

func (h *memoryHistogram) Count() uint64 {
	return h.count.Load()
}

func (h *memoryHistogram) Sum() float64 {
	return h.sum.Value()
}
