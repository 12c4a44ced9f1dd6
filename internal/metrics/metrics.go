// Package metrics exports server activity to Prometheus.
package metrics

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ashureev/portfolio/internal/domain"
)

const namespace = "portfolio"

// Metrics holds the Prometheus collectors. All methods are safe on a nil receiver.
type Metrics struct {
	connections       prometheus.Gauge
	inbound           *prometheus.CounterVec
	gatewayDuration   *prometheus.HistogramVec
	suggestionBatches prometheus.Counter
	embeddings        *prometheus.CounterVec
	projects          prometheus.Gauge
	embeddingBytes    prometheus.Gauge
}

// New creates the collectors and registers them with reg. Collectors that are
// already registered are reused.
func New(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{}
	var err error
	if m.connections, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "chat",
		Name:      "connections_active",
		Help:      "Number of open chat WebSocket connections.",
	})); err != nil {
		return nil, err
	}
	if m.inbound, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "chat",
		Name:      "inbound_messages_total",
		Help:      "Inbound chat messages by type.",
	}, []string{"type"})); err != nil {
		return nil, err
	}
	if m.gatewayDuration, err = register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "ai",
		Name:      "gateway_call_duration_seconds",
		Help:      "Latency of model gateway calls.",
		Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20},
	}, []string{"operation", "outcome"})); err != nil {
		return nil, err
	}
	if m.suggestionBatches, err = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "chat",
		Name:      "suggestion_batches_total",
		Help:      "Proactive suggestion batches sent to clients.",
	})); err != nil {
		return nil, err
	}
	if m.embeddings, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "catalog",
		Name:      "embeddings_regenerated_total",
		Help:      "Project embedding regenerations by outcome.",
	}, []string{"outcome"})); err != nil {
		return nil, err
	}
	if m.projects, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "catalog",
		Name:      "projects",
		Help:      "Number of stored projects at the last usage sample.",
	})); err != nil {
		return nil, err
	}
	if m.embeddingBytes, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "catalog",
		Name:      "embedding_bytes",
		Help:      "Approximate size of stored embeddings at the last usage sample.",
	})); err != nil {
		return nil, err
	}
	return m, nil
}

func register[T prometheus.Collector](reg prometheus.Registerer, c T) (T, error) {
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(T); ok {
				return existing, nil
			}
		}
		return c, fmt.Errorf("register collector: %w", err)
	}
	return c, nil
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ConnectionOpened increments the active connection gauge.
func (m *Metrics) ConnectionOpened() {
	if m == nil {
		return
	}
	m.connections.Inc()
}

// ConnectionClosed decrements the active connection gauge.
func (m *Metrics) ConnectionClosed() {
	if m == nil {
		return
	}
	m.connections.Dec()
}

// ObserveInbound counts an inbound chat message.
func (m *Metrics) ObserveInbound(msgType string) {
	if m == nil {
		return
	}
	m.inbound.WithLabelValues(msgType).Inc()
}

// ObserveSuggestionBatch counts a suggestion batch sent to a client.
func (m *Metrics) ObserveSuggestionBatch() {
	if m == nil {
		return
	}
	m.suggestionBatches.Inc()
}

// ObserveGatewayCall records the latency and outcome of a gateway call.
func (m *Metrics) ObserveGatewayCall(operation string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	m.gatewayDuration.WithLabelValues(operation, outcome(err)).Observe(duration.Seconds())
}

// ObserveEmbeddingRegenerated counts an embedding regeneration.
func (m *Metrics) ObserveEmbeddingRegenerated(err error) {
	if m == nil {
		return
	}
	m.embeddings.WithLabelValues(outcome(err)).Inc()
}

// ObserveUsage publishes the latest usage sample.
func (m *Metrics) ObserveUsage(sample *domain.UsageSample) {
	if m == nil || sample == nil {
		return
	}
	m.projects.Set(float64(sample.RecordCount))
	m.embeddingBytes.Set(float64(sample.ApproxSizeKB * 1024))
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
