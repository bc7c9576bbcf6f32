package logrule

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/contextrules/errors"
	"github.com/c360/contextrules/metric"
)

func TestNewMetricsRegistersOnce(t *testing.T) {
	registry := metric.NewMetricsRegistry()

	metrics, err := NewMetrics(registry)
	require.NoError(t, err)
	require.NotNil(t, metrics)

	// A second registration against the same registry must come back as a
	// classified error, not a panic. The collectors are registered once per
	// process and shared across the transport adapters.
	require.NotPanics(t, func() {
		dup, dupErr := NewMetrics(registry)
		assert.Nil(t, dup)
		require.Error(t, dupErr)
		assert.True(t, errors.IsInvalid(dupErr))
	})
}

func TestNewMetricsNilRegistrar(t *testing.T) {
	metrics, err := NewMetrics(nil)
	require.NoError(t, err)
	assert.Nil(t, metrics)

	// The nil recorder is a no-op everywhere it is threaded.
	metrics.recordReceived("jetstream")
	metrics.recordRejection(RejectBadEnvelope)
	metrics.observeDuration("bus", 0.01)
}

func TestAdaptersShareMetrics(t *testing.T) {
	registry := metric.NewMetricsRegistry()

	metrics, err := NewMetrics(registry)
	require.NoError(t, err)

	cfg := DefaultConfig()
	store := &fakeStore{session: &fakeSession{}}

	// Both adapters accept the same recorder without registering anything
	// further, so wiring them off one registry cannot collide.
	require.NotPanics(t, func() {
		proc := NewProcessorWithMetrics(nil, store, &cfg, metrics)
		sub := NewSubscriberWithMetrics(nil, store, &cfg, metrics)
		assert.NotNil(t, proc)
		assert.NotNil(t, sub)
	})
}
