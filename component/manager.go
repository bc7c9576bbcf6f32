package component

import (
	"context"
	"log/slog"
	"time"

	"github.com/c360/contextrules/errors"
)

// managed tracks a component and its lifecycle state. The manager creates a
// child context per component so each one can be cancelled individually; the
// component itself never stores the context.
type managed struct {
	component LifecycleComponent
	state     State
	cancel    context.CancelFunc
	lastError error
}

// Manager starts registered components in registration order and stops them
// in reverse.
type Manager struct {
	components []*managed
	logger     *slog.Logger
}

// NewManager creates an empty component manager
func NewManager(logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{logger: logger.With("component", "manager")}
}

// Register adds a component to be managed. Must be called before Start.
func (m *Manager) Register(c LifecycleComponent) {
	m.components = append(m.components, &managed{component: c, state: StateCreated})
}

// Start initializes and starts all registered components in order. On the
// first failure it stops the components already started and returns the
// failure.
func (m *Manager) Start(ctx context.Context) error {
	for i, mc := range m.components {
		meta := mc.component.Meta()

		if err := mc.component.Initialize(); err != nil {
			mc.state = StateFailed
			mc.lastError = err
			m.stopStarted(i)
			return errors.Wrap(err, "Manager", "Start", "initialize "+meta.Name)
		}
		mc.state = StateInitialized

		childCtx, cancel := context.WithCancel(ctx)
		mc.cancel = cancel

		if err := mc.component.Start(childCtx); err != nil {
			cancel()
			mc.state = StateFailed
			mc.lastError = err
			m.stopStarted(i)
			return errors.Wrap(err, "Manager", "Start", "start "+meta.Name)
		}
		mc.state = StateStarted

		m.logger.Info("Component started", "name", meta.Name, "type", meta.Type)
	}
	return nil
}

// Stop stops all started components in reverse registration order. Errors
// are logged and collected; every component gets a stop attempt.
func (m *Manager) Stop(timeout time.Duration) error {
	var errs []error
	for i := len(m.components) - 1; i >= 0; i-- {
		mc := m.components[i]
		if mc.state != StateStarted {
			continue
		}

		meta := mc.component.Meta()
		if err := mc.component.Stop(timeout); err != nil {
			mc.state = StateFailed
			mc.lastError = err
			errs = append(errs, errors.Wrap(err, "Manager", "Stop", "stop "+meta.Name))
			m.logger.Error("Component stop failed", "name", meta.Name, "error", err)
		} else {
			mc.state = StateStopped
			m.logger.Info("Component stopped", "name", meta.Name)
		}

		if mc.cancel != nil {
			mc.cancel()
		}
	}
	return errors.Join(errs...)
}

// Healthy reports whether every started component is healthy
func (m *Manager) Healthy() bool {
	for _, mc := range m.components {
		if mc.state != StateStarted {
			continue
		}
		if !mc.component.Health().Healthy {
			return false
		}
	}
	return true
}

// stopStarted stops components [0, upto) in reverse after a startup failure
func (m *Manager) stopStarted(upto int) {
	for i := upto - 1; i >= 0; i-- {
		mc := m.components[i]
		if mc.state != StateStarted {
			continue
		}
		if err := mc.component.Stop(5 * time.Second); err != nil {
			m.logger.Error("Rollback stop failed",
				"name", mc.component.Meta().Name, "error", err)
		}
		if mc.cancel != nil {
			mc.cancel()
		}
		mc.state = StateStopped
	}
}
