package logrule

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/c360/contextrules/component"
	"github.com/c360/contextrules/contextstore"
	"github.com/c360/contextrules/errors"
	"github.com/c360/contextrules/natsclient"
	"github.com/c360/contextrules/types"
)

// Static interface check
var _ component.LifecycleComponent = (*Subscriber)(nil)

// Subscriber is the typed bus transport adapter: a core NATS subscription
// decoding notification envelopes and running them through the same handler
// as the pull/ack consumer. Acknowledgement is framework-managed; failures
// are logged, not redelivered.
type Subscriber struct {
	metadata    component.Metadata
	health      component.HealthStatus
	flowMetrics component.FlowMetrics

	natsClient *natsclient.Client
	handler    *Handler
	config     *Config
	metrics    *Metrics

	started           bool
	startTime         time.Time
	messagesProcessed int64
	errorCount        int64
	lastError         string
	lastActivity      time.Time
	mu                sync.RWMutex

	logger *slog.Logger
}

// NewSubscriber creates the typed bus adapter
func NewSubscriber(natsClient *natsclient.Client, store contextstore.Store, config *Config) *Subscriber {
	return NewSubscriberWithMetrics(natsClient, store, config, nil)
}

// NewSubscriberWithMetrics creates the adapter with optional metrics.
// The *Metrics is shared with the pull/ack consumer; both adapters record
// into the same collectors, distinguished by the transport label.
func NewSubscriberWithMetrics(
	natsClient *natsclient.Client,
	store contextstore.Store,
	config *Config,
	metrics *Metrics,
) *Subscriber {
	if config == nil {
		defaultConfig := DefaultConfig()
		config = &defaultConfig
	}

	publisher := NewPublisher(natsClient, config, metrics)

	return &Subscriber{
		metadata: component.Metadata{
			Name:        "logrule-subscriber",
			Type:        "consumer",
			Description: "Typed bus adapter feeding the logrule evaluation pipeline",
			Version:     "1.0.0",
		},
		natsClient: natsClient,
		handler:    NewHandler(store, publisher, metrics),
		config:     config,
		metrics:    metrics,
		health: component.HealthStatus{
			Healthy:   true,
			LastCheck: time.Now(),
		},
		logger: slog.Default().With("component", "logrule-subscriber"),
	}
}

// Meta returns component metadata
func (s *Subscriber) Meta() component.Metadata {
	return s.metadata
}

// Health returns current health status
func (s *Subscriber) Health() component.HealthStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	s.health.LastCheck = time.Now()
	s.health.ErrorCount = int(atomic.LoadInt64(&s.errorCount))
	s.health.LastError = s.lastError
	if !s.startTime.IsZero() {
		s.health.Uptime = time.Since(s.startTime)
	}

	return s.health
}

// DataFlow returns current data flow metrics
func (s *Subscriber) DataFlow() component.FlowMetrics {
	s.mu.RLock()
	defer s.mu.RUnlock()

	processed := atomic.LoadInt64(&s.messagesProcessed)
	if !s.startTime.IsZero() && processed > 0 {
		duration := time.Since(s.startTime).Seconds()
		if duration > 0 {
			s.flowMetrics.MessagesPerSecond = float64(processed) / duration
		}
	}
	if processed > 0 {
		s.flowMetrics.ErrorRate = float64(atomic.LoadInt64(&s.errorCount)) / float64(processed)
	}
	s.flowMetrics.LastActivity = s.lastActivity

	return s.flowMetrics
}

// Initialize validates configuration
func (s *Subscriber) Initialize() error {
	if err := s.config.Validate(); err != nil {
		return errors.Wrap(err, "Subscriber", "Initialize", "validate config")
	}
	if s.config.BusSubject == "" {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Subscriber", "Initialize",
			"bus_subject is required for the subscriber adapter")
	}
	return nil
}

// Start subscribes to the bus subject
func (s *Subscriber) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "Subscriber", "Start", "check subscriber state")
	}

	if err := s.natsClient.Subscribe(ctx, s.config.BusSubject, s.consume); err != nil {
		return errors.Wrap(err, "Subscriber", "Start", "subscribe to "+s.config.BusSubject)
	}

	s.started = true
	s.startTime = time.Now()
	s.health.Healthy = true

	s.logger.Info("Logrule subscriber started", "subject", s.config.BusSubject)
	return nil
}

// consume decodes and processes one bus delivery
func (s *Subscriber) consume(ctx context.Context, data []byte) {
	start := time.Now()
	s.metrics.recordReceived("bus")

	s.mu.Lock()
	s.lastActivity = time.Now()
	s.mu.Unlock()

	ev, err := types.ParseSubscriptionEvent(data)
	if err != nil {
		s.metrics.recordRejection(RejectBadEnvelope)
		s.logger.Warn("Rejecting malformed bus notification", "error", err)
		return
	}

	if err := s.handler.ProcessEvent(ctx, ev); err != nil {
		atomic.AddInt64(&s.errorCount, 1)
		s.mu.Lock()
		s.lastError = err.Error()
		s.mu.Unlock()
		// Core NATS carries no redelivery contract; the failure is logged
		// and the notification dropped.
		s.logger.Error("Bus notification processing failed",
			"subscription_id", ev.SubscriptionID, "error", err)
		return
	}

	atomic.AddInt64(&s.messagesProcessed, 1)
	s.metrics.observeDuration("bus", time.Since(start).Seconds())
}

// Stop marks the subscriber stopped; the NATS client drains subscriptions
// on close.
func (s *Subscriber) Stop(_ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}
	s.started = false
	s.health.Healthy = false

	s.logger.Info("Logrule subscriber stopped")
	return nil
}
