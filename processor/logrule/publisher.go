package logrule

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/c360/contextrules/errors"
	"github.com/c360/contextrules/types"
)

// Bus is the outbound publishing capability of the message queue gateway.
// Satisfied by *natsclient.Client.
type Bus interface {
	Publish(ctx context.Context, subject string, data []byte) error
	PublishToStream(ctx context.Context, subject string, data []byte) error
}

// Publisher builds and publishes the derived downstream events. The narrowed
// single-property forward is fire-and-forget over core NATS; history records
// are the audit trail and go through JetStream so they persist in the events
// stream.
type Publisher struct {
	bus     Bus
	config  *Config
	metrics *Metrics
	logger  *slog.Logger
}

// NewPublisher creates a publisher for the configured destinations
func NewPublisher(bus Bus, config *Config, metrics *Metrics) *Publisher {
	return &Publisher{
		bus:     bus,
		config:  config,
		metrics: metrics,
		logger:  slog.Default().With("component", "logrule-publisher"),
	}
}

// ForwardProperty publishes the narrowed copy of the inbound envelope,
// containing one entity with one property+metadata pair, to the next
// pipeline stage.
func (p *Publisher) ForwardProperty(
	ctx context.Context,
	ev *types.SubscriptionEvent,
	entity *types.Entity,
	propertyKey string,
) error {
	narrowed := ev.Narrow(entity, propertyKey, types.MetadataKey(propertyKey))

	data, err := json.Marshal(narrowed)
	if err != nil {
		return errors.Wrap(err, "Publisher", "ForwardProperty", "marshal event")
	}

	if err := p.bus.Publish(ctx, p.config.ForwardSubject, data); err != nil {
		return errors.WrapTransient(err, "Publisher", "ForwardProperty",
			fmt.Sprintf("publish to %s", p.config.ForwardSubject))
	}

	p.metrics.recordPublished("forward")
	return nil
}

// PublishHistory publishes an append-only history record for an evaluated
// observation, independent of the rule outcome. Records go to the durable
// events stream so the audit trail survives consumer downtime.
func (p *Publisher) PublishHistory(ctx context.Context, entry types.LogEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return errors.Wrap(err, "Publisher", "PublishHistory", "marshal entry")
	}

	if err := p.bus.PublishToStream(ctx, p.config.HistorySubject, data); err != nil {
		return errors.WrapTransient(err, "Publisher", "PublishHistory",
			fmt.Sprintf("publish to %s", p.config.HistorySubject))
	}

	p.metrics.recordPublished("history")
	return nil
}
