package metric

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServerInitialize(t *testing.T) {
	registry := NewMetricsRegistry()

	assert.Error(t, NewServer("", registry).Initialize())
	assert.Error(t, NewServer(":9090", nil).Initialize())
	assert.NoError(t, NewServer(":9090", registry).Initialize())
}

func TestServerStartStop(t *testing.T) {
	registry := NewMetricsRegistry()
	srv := NewServer("127.0.0.1:0", registry)

	require.NoError(t, srv.Initialize())
	require.NoError(t, srv.Start(context.Background()))

	assert.True(t, srv.Health().Healthy)
	assert.Error(t, srv.Start(context.Background()), "double start is rejected")

	require.NoError(t, srv.Stop(time.Second))
	assert.False(t, srv.Health().Healthy)

	// Stop after stop is a no-op
	assert.NoError(t, srv.Stop(time.Second))
}
