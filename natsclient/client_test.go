package natsclient

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/contextrules/errors"
)

func TestConnectionStatusString(t *testing.T) {
	tests := []struct {
		status ConnectionStatus
		want   string
	}{
		{StatusDisconnected, "disconnected"},
		{StatusConnecting, "connecting"},
		{StatusConnected, "connected"},
		{StatusReconnecting, "reconnecting"},
		{StatusCircuitOpen, "circuit_open"},
		{ConnectionStatus(99), "unknown"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.status.String())
	}
}

func TestNewClientDefaults(t *testing.T) {
	client, err := NewClient("nats://localhost:4222")
	require.NoError(t, err)

	assert.Equal(t, "nats://localhost:4222", client.URL())
	assert.Equal(t, StatusDisconnected, client.Status())
	assert.False(t, client.IsHealthy())
	assert.Equal(t, int32(0), client.Failures())
}

func TestNewClientOptionValidation(t *testing.T) {
	tests := []struct {
		name string
		opt  ClientOption
	}{
		{"nil logger", WithLogger(nil)},
		{"zero reconnect wait", WithReconnectWait(0)},
		{"negative circuit threshold", WithCircuitThreshold(-1)},
		{"zero max backoff", WithMaxBackoff(0)},
		{"zero connect timeout", WithConnectTimeout(0)},
		{"zero drain timeout", WithDrainTimeout(0)},
		{"missing password", WithUserCredentials("user", "")},
		{"empty token", WithToken("")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewClient("nats://localhost:4222", tt.opt)
			assert.Error(t, err)
		})
	}
}

func TestCircuitBreakerOpensAfterThreshold(t *testing.T) {
	client, err := NewClient("nats://localhost:4222",
		WithCircuitThreshold(3),
		WithMaxBackoff(time.Minute),
	)
	require.NoError(t, err)

	client.recordFailure()
	client.recordFailure()
	assert.Equal(t, StatusDisconnected, client.Status())

	client.recordFailure()
	assert.Equal(t, StatusCircuitOpen, client.Status())

	// Operations are rejected while the circuit is open
	err = client.Connect(context.Background())
	assert.ErrorIs(t, err, ErrCircuitOpen)

	err = client.PublishToStream(context.Background(), "test.subject", []byte("data"))
	assert.ErrorIs(t, err, ErrCircuitOpen)
}

func TestResetCircuitClearsState(t *testing.T) {
	client, err := NewClient("nats://localhost:4222", WithCircuitThreshold(1))
	require.NoError(t, err)

	client.recordFailure()
	require.Equal(t, StatusCircuitOpen, client.Status())

	client.resetCircuit()
	assert.Equal(t, StatusDisconnected, client.Status())
	assert.Equal(t, int32(0), client.Failures())
}

func TestPublishNotConnected(t *testing.T) {
	client, err := NewClient("nats://localhost:4222")
	require.NoError(t, err)

	err = client.Publish(context.Background(), "test.subject", []byte("data"))
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestCloseIdempotent(t *testing.T) {
	client, err := NewClient("nats://localhost:4222")
	require.NoError(t, err)

	require.NoError(t, client.Close(context.Background()))
	require.NoError(t, client.Close(context.Background()))
}

func TestWaitForConnectionTimeout(t *testing.T) {
	client, err := NewClient("nats://localhost:4222")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err = client.WaitForConnection(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrConnectionTimeout))
	assert.True(t, errors.IsTransient(err), "a timed-out wait is retryable")
}

// TestIntegration_PublishSubscribe verifies a core NATS round trip
func TestIntegration_PublishSubscribe(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	tc := NewTestClient(t)
	ctx := context.Background()

	received := make(chan []byte, 1)
	err := tc.Client.Subscribe(ctx, "test.readings", func(_ context.Context, data []byte) {
		received <- data
	})
	require.NoError(t, err)

	err = tc.Client.Publish(ctx, "test.readings", []byte(`{"value":42}`))
	require.NoError(t, err)

	select {
	case data := <-received:
		assert.JSONEq(t, `{"value":42}`, string(data))
	case <-time.After(5 * time.Second):
		t.Fatal("message not received")
	}
}

// TestIntegration_ConsumeStreamManualAck verifies that unacknowledged
// messages are redelivered after AckWait
func TestIntegration_ConsumeStreamManualAck(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	tc := NewTestClient(t, WithJetStream())
	ctx := context.Background()

	_, err := tc.Client.EnsureStream(ctx, jetstream.StreamConfig{
		Name:     "NOTIFICATIONS",
		Subjects: []string{"notifications.>"},
	})
	require.NoError(t, err)

	var deliveries atomic.Int32
	err = tc.Client.ConsumeStream(ctx, ConsumerOptions{
		Stream:     "NOTIFICATIONS",
		Durable:    "test-consumer",
		Subject:    "notifications.sensor",
		AckWait:    500 * time.Millisecond,
		MaxDeliver: 3,
	}, func(_ context.Context, msg jetstream.Msg) {
		// Ack only on the second delivery to exercise redelivery
		if deliveries.Add(1) >= 2 {
			_ = msg.Ack()
		}
	})
	require.NoError(t, err)

	err = tc.Client.PublishToStream(ctx, "notifications.sensor", []byte(`{"id":"sensor-1"}`))
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		return deliveries.Load() >= 2
	}, 5*time.Second, 50*time.Millisecond, "expected redelivery of unacknowledged message")
}
