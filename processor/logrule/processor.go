package logrule

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/c360/contextrules/component"
	"github.com/c360/contextrules/contextstore"
	"github.com/c360/contextrules/errors"
	"github.com/c360/contextrules/natsclient"
	"github.com/c360/contextrules/types"
)

// Static interface check
var _ component.LifecycleComponent = (*Processor)(nil)

// Processor is the pull/ack transport adapter: a durable JetStream consumer
// with explicit acknowledgement. Messages are acknowledged unconditionally
// once the per-property loop completes — validation failures are permanent
// rejections, not retries. A handler that dies mid-loop leaves the message
// unacknowledged and eligible for redelivery.
type Processor struct {
	metadata    component.Metadata
	health      component.HealthStatus
	flowMetrics component.FlowMetrics

	natsClient *natsclient.Client
	handler    *Handler
	config     *Config
	metrics    *Metrics

	shutdown chan struct{}
	done     chan struct{}

	startTime         time.Time
	messagesProcessed int64
	errorCount        int64
	lastError         string
	lastActivity      time.Time
	mu                sync.RWMutex

	logger *slog.Logger
}

// NewProcessor creates the pull/ack consumer component
func NewProcessor(natsClient *natsclient.Client, store contextstore.Store, config *Config) *Processor {
	return NewProcessorWithMetrics(natsClient, store, config, nil)
}

// NewProcessorWithMetrics creates the consumer with optional metrics.
// The *Metrics is constructed once per process with NewMetrics and shared
// across adapters; passing nil disables instrumentation.
func NewProcessorWithMetrics(
	natsClient *natsclient.Client,
	store contextstore.Store,
	config *Config,
	metrics *Metrics,
) *Processor {
	if config == nil {
		defaultConfig := DefaultConfig()
		config = &defaultConfig
	}

	publisher := NewPublisher(natsClient, config, metrics)

	return &Processor{
		metadata: component.Metadata{
			Name:        "logrule-processor",
			Type:        "consumer",
			Description: "Evaluates threshold rules against sensor change notifications",
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
		flowMetrics: component.FlowMetrics{
			LastActivity: time.Now(),
		},
		logger: slog.Default().With("component", "logrule-processor"),
	}
}

// Meta returns component metadata
func (p *Processor) Meta() component.Metadata {
	return p.metadata
}

// Health returns current health status
func (p *Processor) Health() component.HealthStatus {
	p.mu.RLock()
	defer p.mu.RUnlock()

	p.health.LastCheck = time.Now()
	p.health.ErrorCount = int(atomic.LoadInt64(&p.errorCount))
	p.health.LastError = p.lastError
	if !p.startTime.IsZero() {
		p.health.Uptime = time.Since(p.startTime)
	}

	return p.health
}

// DataFlow returns current data flow metrics
func (p *Processor) DataFlow() component.FlowMetrics {
	p.mu.RLock()
	defer p.mu.RUnlock()

	processed := atomic.LoadInt64(&p.messagesProcessed)
	if !p.startTime.IsZero() && processed > 0 {
		duration := time.Since(p.startTime).Seconds()
		if duration > 0 {
			p.flowMetrics.MessagesPerSecond = float64(processed) / duration
		}
	}
	if processed > 0 {
		p.flowMetrics.ErrorRate = float64(atomic.LoadInt64(&p.errorCount)) / float64(processed)
	}
	p.flowMetrics.LastActivity = p.lastActivity

	return p.flowMetrics
}

// Initialize validates configuration
func (p *Processor) Initialize() error {
	if err := p.config.Validate(); err != nil {
		return errors.Wrap(err, "Processor", "Initialize", "validate config")
	}

	p.logger.Info("Logrule processor initialized",
		"stream", p.config.Stream, "subject", p.config.Subject)
	return nil
}

// Start ensures the stream exists and begins consuming
func (p *Processor) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.shutdown != nil {
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "Processor", "Start", "check processor state")
	}

	if !p.natsClient.IsHealthy() {
		return errors.WrapFatal(errors.ErrNoConnection, "Processor", "Start", "check NATS health")
	}

	if _, err := p.natsClient.EnsureStream(ctx, jetstream.StreamConfig{
		Name:     p.config.Stream,
		Subjects: []string{p.config.Subject},
	}); err != nil {
		return errors.Wrap(err, "Processor", "Start", "ensure notifications stream")
	}

	// History records publish through JetStream; the events stream must
	// exist before the first evaluation.
	if _, err := p.natsClient.EnsureStream(ctx, jetstream.StreamConfig{
		Name:     p.config.EventsStream,
		Subjects: []string{p.config.HistorySubject},
	}); err != nil {
		return errors.Wrap(err, "Processor", "Start", "ensure events stream")
	}

	if err := p.natsClient.ConsumeStream(ctx, natsclient.ConsumerOptions{
		Stream:     p.config.Stream,
		Durable:    p.config.Durable,
		Subject:    p.config.Subject,
		AckWait:    p.config.AckWait,
		MaxDeliver: p.config.MaxDeliver,
	}, p.handleDelivery); err != nil {
		return errors.Wrap(err, "Processor", "Start", "start consumer")
	}

	p.shutdown = make(chan struct{})
	p.done = make(chan struct{})
	p.startTime = time.Now()
	p.health.Healthy = true

	go p.run(ctx)

	p.logger.Info("Logrule processor started",
		"stream", p.config.Stream, "durable", p.config.Durable)
	return nil
}

// run waits for shutdown or context cancellation. Cancellation stops new
// deliveries; in-flight handlers finish before the consumer stops.
func (p *Processor) run(ctx context.Context) {
	defer close(p.done)

	select {
	case <-p.shutdown:
		p.logger.Info("Logrule processor shutdown requested")
	case <-ctx.Done():
		p.logger.Info("Logrule processor context cancelled", "error", ctx.Err())
	}

	p.natsClient.StopConsumers()
}

// handleDelivery processes one delivery from the stream. The message is
// acknowledged after the per-property loop completes, or immediately on a
// permanent validation rejection. Transient failures leave it unacknowledged
// so the stream redelivers after AckWait.
func (p *Processor) handleDelivery(ctx context.Context, msg jetstream.Msg) {
	start := time.Now()
	p.metrics.recordReceived("jetstream")

	p.mu.Lock()
	p.lastActivity = time.Now()
	p.mu.Unlock()

	ev, err := types.ParseSubscriptionEvent(msg.Data())
	if err != nil {
		p.metrics.recordRejection(RejectBadEnvelope)
		p.logger.Warn("Rejecting malformed notification", "error", err)
		p.ack(msg)
		return
	}

	if err := p.handler.ProcessEvent(ctx, ev); err != nil {
		p.recordError(err)
		p.logger.Warn("Processing interrupted, leaving message for redelivery",
			"subscription_id", ev.SubscriptionID, "error", err)
		return
	}

	atomic.AddInt64(&p.messagesProcessed, 1)
	p.metrics.observeDuration("jetstream", time.Since(start).Seconds())
	p.ack(msg)
}

func (p *Processor) ack(msg jetstream.Msg) {
	if err := msg.Ack(); err != nil {
		p.recordError(err)
		p.logger.Error("Acknowledge failed", "error", err)
	}
}

func (p *Processor) recordError(err error) {
	atomic.AddInt64(&p.errorCount, 1)
	p.mu.Lock()
	p.lastError = err.Error()
	p.mu.Unlock()
}

// Stop stops the consumer and waits for in-flight handlers
func (p *Processor) Stop(timeout time.Duration) error {
	p.mu.Lock()
	if p.shutdown == nil {
		p.mu.Unlock()
		return nil // Already stopped
	}
	close(p.shutdown)
	p.mu.Unlock()

	select {
	case <-p.done:
	case <-time.After(timeout):
		p.logger.Warn("Logrule processor shutdown timeout", "timeout", timeout)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.shutdown = nil
	p.done = nil
	p.health.Healthy = false

	p.logger.Info("Logrule processor stopped")
	return nil
}
