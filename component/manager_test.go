package component

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeComponent struct {
	name      string
	initErr   error
	startErr  error
	stopErr   error
	healthy   bool
	started   bool
	stopped   bool
	stopOrder *[]string
}

func (f *fakeComponent) Meta() Metadata {
	return Metadata{Name: f.name, Type: "processor"}
}

func (f *fakeComponent) Health() HealthStatus {
	return HealthStatus{Healthy: f.healthy}
}

func (f *fakeComponent) DataFlow() FlowMetrics {
	return FlowMetrics{}
}

func (f *fakeComponent) Initialize() error {
	return f.initErr
}

func (f *fakeComponent) Start(_ context.Context) error {
	if f.startErr != nil {
		return f.startErr
	}
	f.started = true
	return nil
}

func (f *fakeComponent) Stop(_ time.Duration) error {
	f.stopped = true
	if f.stopOrder != nil {
		*f.stopOrder = append(*f.stopOrder, f.name)
	}
	return f.stopErr
}

func TestManagerStartStopOrder(t *testing.T) {
	var stopOrder []string
	first := &fakeComponent{name: "first", healthy: true, stopOrder: &stopOrder}
	second := &fakeComponent{name: "second", healthy: true, stopOrder: &stopOrder}

	m := NewManager(nil)
	m.Register(first)
	m.Register(second)

	require.NoError(t, m.Start(context.Background()))
	assert.True(t, first.started)
	assert.True(t, second.started)
	assert.True(t, m.Healthy())

	require.NoError(t, m.Stop(time.Second))
	assert.Equal(t, []string{"second", "first"}, stopOrder)
}

func TestManagerStartFailureRollsBack(t *testing.T) {
	var stopOrder []string
	first := &fakeComponent{name: "first", healthy: true, stopOrder: &stopOrder}
	second := &fakeComponent{name: "second", startErr: stderrors.New("boom")}

	m := NewManager(nil)
	m.Register(first)
	m.Register(second)

	err := m.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "second")

	// The already-started component is stopped on rollback
	assert.True(t, first.stopped)
}

func TestManagerInitializeFailure(t *testing.T) {
	broken := &fakeComponent{name: "broken", initErr: stderrors.New("bad config")}

	m := NewManager(nil)
	m.Register(broken)

	err := m.Start(context.Background())
	require.Error(t, err)
	assert.False(t, broken.started)
}

func TestManagerHealthyReflectsComponents(t *testing.T) {
	sick := &fakeComponent{name: "sick", healthy: false}

	m := NewManager(nil)
	m.Register(sick)

	require.NoError(t, m.Start(context.Background()))
	assert.False(t, m.Healthy())
}

func TestManagerStopCollectsErrors(t *testing.T) {
	bad := &fakeComponent{name: "bad", healthy: true, stopErr: stderrors.New("stuck")}
	good := &fakeComponent{name: "good", healthy: true}

	m := NewManager(nil)
	m.Register(bad)
	m.Register(good)

	require.NoError(t, m.Start(context.Background()))

	err := m.Stop(time.Second)
	require.Error(t, err)
	assert.True(t, good.stopped)
	assert.True(t, bad.stopped)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "created", StateCreated.String())
	assert.Equal(t, "started", StateStarted.String())
	assert.Equal(t, "unknown", State(42).String())
}
