package observability

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics provides counter and histogram recording primitives.
type Metrics interface {
	IncCounter(name string, value float64, labels map[string]string)
	ObserveHistogram(name string, value float64, labels map[string]string)
}

var defaultMetrics Metrics = noopMetrics{}

// SetMetrics overrides the global metrics implementation used by the system.
func SetMetrics(metrics Metrics) {
	if metrics == nil {
		defaultMetrics = noopMetrics{}
		return
	}
	defaultMetrics = metrics
}

// Telemetry returns the current global metrics collector.
func Telemetry() Metrics {
	return defaultMetrics
}

type noopMetrics struct{}

func (noopMetrics) IncCounter(string, float64, map[string]string)       {}
func (noopMetrics) ObserveHistogram(string, float64, map[string]string) {}

// Metric names emitted by the webhook engine.
const (
	MetricEventsReceived    = "paygate_webhook_events_received_total"
	MetricEventsDuplicate   = "paygate_webhook_events_duplicate_total"
	MetricEventsProcessed   = "paygate_webhook_events_processed_total"
	MetricEventsFailed      = "paygate_webhook_events_failed_total"
	MetricClaimsReclaimed   = "paygate_webhook_claims_reclaimed_total"
	MetricOutcomeWriteDrops = "paygate_webhook_outcome_write_failures_total"
	MetricProcessingSeconds = "paygate_webhook_processing_duration_seconds"
)

// OTelMetrics bridges the Metrics interface onto the global OpenTelemetry meter.
// Instruments are created lazily per metric name and reused.
type OTelMetrics struct {
	meter      metric.Meter
	mu         sync.Mutex
	counters   map[string]metric.Float64Counter
	histograms map[string]metric.Float64Histogram
}

// NewOTelMetrics builds a Metrics implementation backed by the named otel meter.
func NewOTelMetrics(name string) *OTelMetrics {
	if name == "" {
		name = "paygate"
	}
	return &OTelMetrics{
		meter:      otel.Meter(name),
		counters:   make(map[string]metric.Float64Counter),
		histograms: make(map[string]metric.Float64Histogram),
	}
}

// IncCounter adds value to the named counter with the provided labels.
func (m *OTelMetrics) IncCounter(name string, value float64, labels map[string]string) {
	m.mu.Lock()
	counter, ok := m.counters[name]
	if !ok {
		created, err := m.meter.Float64Counter(name)
		if err != nil {
			m.mu.Unlock()
			return
		}
		m.counters[name] = created
		counter = created
	}
	m.mu.Unlock()
	counter.Add(context.Background(), value, metric.WithAttributes(attrsFromLabels(labels)...))
}

// ObserveHistogram records value on the named histogram with the provided labels.
func (m *OTelMetrics) ObserveHistogram(name string, value float64, labels map[string]string) {
	m.mu.Lock()
	histogram, ok := m.histograms[name]
	if !ok {
		created, err := m.meter.Float64Histogram(name)
		if err != nil {
			m.mu.Unlock()
			return
		}
		m.histograms[name] = created
		histogram = created
	}
	m.mu.Unlock()
	histogram.Record(context.Background(), value, metric.WithAttributes(attrsFromLabels(labels)...))
}

func attrsFromLabels(labels map[string]string) []attribute.KeyValue {
	if len(labels) == 0 {
		return nil
	}
	attrs := make([]attribute.KeyValue, 0, len(labels))
	for k, v := range labels {
		attrs = append(attrs, attribute.String(k, v))
	}
	return attrs
}
