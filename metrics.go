package mqttbus

import (
	"time"
)

// MetricLabels represents key-value pairs for metric labels.
type MetricLabels map[string]string

// Metrics defines the interface for collecting metrics.
type Metrics interface {
	// Counter returns a counter metric.
	Counter(name string, labels MetricLabels) Counter

	// Gauge returns a gauge metric.
	Gauge(name string, labels MetricLabels) Gauge

	// Histogram returns a histogram metric.
	Histogram(name string, labels MetricLabels) Histogram
}

// Counter is a monotonically increasing counter.
type Counter interface {
	// Inc increments the counter by 1.
	Inc()

	// Add adds the given value to the counter.
	Add(delta float64)

	// Value returns the current value.
	Value() float64
}

// Gauge is a metric that can go up and down.
type Gauge interface {
	// Set sets the gauge to the given value.
	Set(value float64)

	// Add adds the given value to the gauge.
	Add(delta float64)

	// Value returns the current value.
	Value() float64
}

// Histogram tracks the distribution of values.
type Histogram interface {
	// Observe records a value.
	Observe(value float64)

	// ObserveDuration records a duration in seconds.
	ObserveDuration(d time.Duration)

	// Count returns the number of observations.
	Count() uint64

	// Sum returns the sum of all observations.
	Sum() float64
}

// NoOpMetrics is a no-op implementation of Metrics.
type NoOpMetrics struct{}

// Counter returns a no-op counter.
func (n *NoOpMetrics) Counter(_ string, _ MetricLabels) Counter {
	return noOpMetric{}
}

// Gauge returns a no-op gauge.
func (n *NoOpMetrics) Gauge(_ string, _ MetricLabels) Gauge {
	return noOpMetric{}
}

// Histogram returns a no-op histogram.
func (n *NoOpMetrics) Histogram(_ string, _ MetricLabels) Histogram {
	return noOpMetric{}
}

type noOpMetric struct{}

func (noOpMetric) Inc()                            {}
func (noOpMetric) Add(_ float64)                   {}
func (noOpMetric) Set(_ float64)                   {}
func (noOpMetric) Value() float64                  { return 0 }
func (noOpMetric) Observe(_ float64)               {}
func (noOpMetric) ObserveDuration(_ time.Duration) {}
func (noOpMetric) Count() uint64                   { return 0 }
func (noOpMetric) Sum() float64                    { return 0 }

// Standard metric names for the dispatcher and codec.
const (
	// MetricMessagesPublished is the total number of Publish calls.
	MetricMessagesPublished = "mqttbus_messages_published_total"

	// MetricDeliveries is the total number of handler invocations.
	MetricDeliveries = "mqttbus_deliveries_total"

	// MetricDeliveryFailures is the total number of handler failures.
	MetricDeliveryFailures = "mqttbus_delivery_failures_total"

	// MetricUnmatched is the total number of publishes no subscriber matched.
	MetricUnmatched = "mqttbus_messages_unmatched_total"

	// MetricSubscribers is the current number of registered subscribers.
	MetricSubscribers = "mqttbus_subscribers"

	// MetricPublishLatency is the time spent dispatching one message.
	MetricPublishLatency = "mqttbus_publish_latency_seconds"

	// MetricPacketsDecoded is the total number of decoded packets.
	MetricPacketsDecoded = "mqttbus_packets_decoded_total"

	// MetricPacketsMalformed is the total number of packets rejected by the codec.
	MetricPacketsMalformed = "mqttbus_packets_malformed_total"
)

// Standard metric labels.
const (
	// LabelPacketType is the packet type label.
	LabelPacketType = "packet_type"

	// LabelFailure distinguishes returned errors from panics.
	LabelFailure = "failure"
)

// DispatchMetrics provides convenience methods for the metrics recorded by
// the dispatcher and packet ingestion.
type DispatchMetrics struct {
	metrics Metrics
}

// NewDispatchMetrics creates a new DispatchMetrics instance.
// A nil m records nothing.
func NewDispatchMetrics(m Metrics) *DispatchMetrics {
	if m == nil {
		m = &NoOpMetrics{}
	}
	return &DispatchMetrics{metrics: m}
}

// MessagePublished records one Publish call.
func (d *DispatchMetrics) MessagePublished(delivered int, elapsed time.Duration) {
	d.metrics.Counter(MetricMessagesPublished, nil).Inc()
	if delivered == 0 {
		d.metrics.Counter(MetricUnmatched, nil).Inc()
	}
	d.metrics.Counter(MetricDeliveries, nil).Add(float64(delivered))
	d.metrics.Histogram(MetricPublishLatency, nil).ObserveDuration(elapsed)
}

// DeliveryFailed records a failing handler.
func (d *DispatchMetrics) DeliveryFailed(panicked bool) {
	failure := "error"
	if panicked {
		failure = "panic"
	}
	d.metrics.Counter(MetricDeliveryFailures, MetricLabels{LabelFailure: failure}).Inc()
}

// Subscribers records the current number of subscribers.
func (d *DispatchMetrics) Subscribers(n int) {
	d.metrics.Gauge(MetricSubscribers, nil).Set(float64(n))
}

// PacketDecoded records a decoded packet.
func (d *DispatchMetrics) PacketDecoded(packetType PacketType) {
	labels := MetricLabels{LabelPacketType: packetType.String()}
	d.metrics.Counter(MetricPacketsDecoded, labels).Inc()
}

// PacketMalformed records a packet rejected by the codec.
func (d *DispatchMetrics) PacketMalformed() {
	d.metrics.Counter(MetricPacketsMalformed, nil).Inc()
}
