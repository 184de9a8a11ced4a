// Package notify delivers credential decision events to downstream consumers.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"credvault/internal/config"
	"credvault/internal/models"
)

// Event describes one recorded verification decision.
type Event struct {
	Kind          models.CredentialKind    `json:"kind"`
	RecordID      string                   `json:"record_id"`
	PersonID      string                   `json:"person_id"`
	State         models.VerificationState `json:"state"`
	Justification *string                  `json:"justification"`
	DecidedBy     string                   `json:"decided_by"`
	DecidedAt     time.Time                `json:"decided_at"`
}

// EventFromCredential builds the event for a decided credential.
func EventFromCredential(c *models.Credential) Event {
	event := Event{
		Kind:          c.Kind,
		RecordID:      c.ID,
		PersonID:      c.PersonID,
		State:         c.State,
		Justification: c.Justification,
		DecidedBy:     c.DecidedBy,
	}
	if c.DecidedAt != nil {
		event.DecidedAt = *c.DecidedAt
	}
	return event
}

// Notifier hands events to a transport. Implementations must be safe for concurrent use.
type Notifier interface {
	Notify(ctx context.Context, event Event) error
	Close() error
}

// LogNotifier writes events to a structured logger.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier returns a notifier that logs at Info on logger, or the default logger when nil.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger.With("component", "notify")}
}

// Notify logs the event.
func (n *LogNotifier) Notify(ctx context.Context, event Event) error {
	attrs := []any{
		"kind", event.Kind,
		"record_id", event.RecordID,
		"person_id", event.PersonID,
		"state", event.State,
		"decided_by", event.DecidedBy,
	}
	if event.Justification != nil {
		attrs = append(attrs, "justification", *event.Justification)
	}
	n.logger.InfoContext(ctx, "credential decided", attrs...)
	return nil
}

// Close is a no-op.
func (n *LogNotifier) Close() error { return nil }

// NopNotifier drops every event.
type NopNotifier struct{}

func (NopNotifier) Notify(context.Context, Event) error { return nil }
func (NopNotifier) Close() error                        { return nil }

// New builds the notifier selected by cfg.
func New(cfg config.NotifyConfig, logger *slog.Logger) (Notifier, error) {
	switch cfg.Driver {
	case "", config.NotifyDriverLog:
		return NewLogNotifier(logger), nil
	case config.NotifyDriverNone:
		return NopNotifier{}, nil
	case config.NotifyDriverAMQP:
		return DialAMQP(cfg.AMQPURL, cfg.Exchange, cfg.RoutingKey)
	default:
		return nil, fmt.Errorf("unknown notify driver %q", cfg.Driver)
	}
}
