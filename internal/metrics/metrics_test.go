package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashureev/portfolio/internal/domain"
)

func TestMetricsRecordActivity(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := New(reg)
	require.NoError(t, err)

	m.ConnectionOpened()
	m.ConnectionOpened()
	m.ConnectionClosed()
	m.ObserveInbound("chatMessage")
	m.ObserveInbound("chatMessage")
	m.ObserveSuggestionBatch()
	m.ObserveEmbeddingRegenerated(nil)
	m.ObserveEmbeddingRegenerated(errors.New("boom"))
	m.ObserveGatewayCall("reply", 150*time.Millisecond, nil)
	m.ObserveUsage(&domain.UsageSample{RecordCount: 7, ApproxSizeKB: 2})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.connections))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.inbound.WithLabelValues("chatMessage")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.suggestionBatches))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.embeddings.WithLabelValues("error")))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.projects))
	assert.Equal(t, 2048.0, testutil.ToFloat64(m.embeddingBytes))
	assert.Equal(t, 1, testutil.CollectAndCount(m.gatewayDuration))
}

func TestNewReusesRegisteredCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := New(reg)
	require.NoError(t, err)
	second, err := New(reg)
	require.NoError(t, err)

	first.ObserveSuggestionBatch()
	assert.Equal(t, 1.0, testutil.ToFloat64(second.suggestionBatches))
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ConnectionOpened()
		m.ObserveInbound("x")
		m.ObserveGatewayCall("reply", time.Second, nil)
		m.ObserveUsage(&domain.UsageSample{})
	})
}
