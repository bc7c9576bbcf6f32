package logrule

import (
	"time"

	"github.com/c360/contextrules/errors"
)

// Config holds configuration for the logrule pipeline. Destination subjects
// are deployment configuration, never computed.
type Config struct {
	// Stream is the JetStream stream holding inbound change notifications
	Stream string `json:"stream"`

	// Subject is the consumer filter subject within the stream
	Subject string `json:"subject"`

	// Durable names the pull consumer so redeliveries survive restarts
	Durable string `json:"durable"`

	// AckWait is how long an unacknowledged delivery waits before redelivery
	AckWait time.Duration `json:"ack_wait"`

	// MaxDeliver caps delivery attempts per message
	MaxDeliver int `json:"max_deliver"`

	// BusSubject is the core NATS subject for the typed subscriber adapter.
	// Empty disables the subscriber.
	BusSubject string `json:"bus_subject,omitempty"`

	// ForwardSubject receives the narrowed single-property events consumed
	// by the alarm-evaluation stage
	ForwardSubject string `json:"forward_subject"`

	// HistorySubject receives the append-only history log events
	HistorySubject string `json:"history_subject"`

	// EventsStream is the JetStream stream backing HistorySubject. History
	// records are an audit trail and are published durably.
	EventsStream string `json:"events_stream"`
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		Stream:         "NOTIFICATIONS",
		Subject:        "notifications.entity.change",
		Durable:        "logrule-processor",
		AckWait:        30 * time.Second,
		MaxDeliver:     3,
		BusSubject:     "notifications.entity.bus",
		ForwardSubject: "events.alarm.evaluate",
		HistorySubject: "events.history.log",
		EventsStream:   "EVENTS",
	}
}

// Validate checks the configuration for errors
func (c *Config) Validate() error {
	if c.Stream == "" {
		return errors.WrapFatal(errors.ErrMissingConfig, "Config", "Validate", "stream is required")
	}
	if c.Subject == "" {
		return errors.WrapFatal(errors.ErrMissingConfig, "Config", "Validate", "subject is required")
	}
	if c.Durable == "" {
		return errors.WrapFatal(errors.ErrMissingConfig, "Config", "Validate", "durable is required")
	}
	if c.AckWait <= 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate", "ack_wait must be positive")
	}
	if c.MaxDeliver < 1 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate", "max_deliver must be at least 1")
	}
	if c.ForwardSubject == "" {
		return errors.WrapFatal(errors.ErrMissingConfig, "Config", "Validate", "forward_subject is required")
	}
	if c.HistorySubject == "" {
		return errors.WrapFatal(errors.ErrMissingConfig, "Config", "Validate", "history_subject is required")
	}
	if c.EventsStream == "" {
		return errors.WrapFatal(errors.ErrMissingConfig, "Config", "Validate", "events_stream is required")
	}
	return nil
}
