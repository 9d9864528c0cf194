package events

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// PublisherConfig configures a Publisher.
type PublisherConfig struct {
	URL            string
	Source         string // e.g. "user-service"
	DialTimeout    time.Duration
	PublishTimeout time.Duration
	Backoff        Backoff
}

// Publisher emits user events. The broker connection is established on the
// first publish and reused until it becomes unhealthy.
type Publisher struct {
	conn    *connector
	source  string
	timeout time.Duration
}

// NewPublisher validates the broker URL. It does not connect.
func NewPublisher(cfg PublisherConfig) (*Publisher, error) {
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 5 * time.Second
	}

	kind, err := brokerFor(cfg.URL)
	if err != nil {
		return nil, err
	}

	var dial dialFunc
	switch kind {
	case brokerAMQP:
		dial = dialAMQP(cfg.URL, cfg.DialTimeout)
	default:
		dial = dialNATS(cfg.URL, cfg.Source, cfg.DialTimeout)
	}
	return newPublisher(dial, cfg), nil
}

func newPublisher(dial dialFunc, cfg PublisherConfig) *Publisher {
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = 5 * time.Second
	}
	if cfg.Backoff.Attempts == 0 {
		cfg.Backoff = DefaultBackoff
	}
	return &Publisher{
		conn:    newConnector(dial, cfg.Backoff),
		source:  cfg.Source,
		timeout: cfg.PublishTimeout,
	}
}

// State reports the state of the underlying broker connection.
func (p *Publisher) State() State {
	return p.conn.State()
}

func (p *Publisher) Close() error {
	p.conn.close()
	return nil
}

// Publish sends one event. Failures are returned as ErrTimeout,
// ErrUnavailable or ErrClosed and are not retried here.
func (p *Publisher) Publish(ctx context.Context, event Event) error {
	data, err := Encode(event)
	if err != nil {
		return err
	}

	t, err := p.conn.get(ctx)
	if err != nil {
		return fmt.Errorf("publish %s: %w", event.Kind(), err)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	if err := t.publish(ctx, event.Meta().EventID, data); err != nil {
		p.conn.invalidate(t)
		return fmt.Errorf("publish %s: %w", event.Kind(), classify(err))
	}

	slog.Debug("published event", "queue", QueueName, "event", event.Kind(), "event_id", event.Meta().EventID)
	return nil
}

func (p *Publisher) PublishUserSignup(ctx context.Context, userID, email, name string, version int64) error {
	event := UserSignup{
		Metadata: NewMetadata(p.source, version),
		UserID:   userID,
		Email:    email,
		Name:     name,
	}
	if err := p.Publish(ctx, event); err != nil {
		slog.Error("failed to publish user_signup", "error", err, "user_id", userID)
		return err
	}
	slog.Info("published user_signup", "user_id", userID, "name", name, "version", version)
	return nil
}

func (p *Publisher) PublishUserDelete(ctx context.Context, userID string, version int64) error {
	event := UserDelete{
		Metadata: NewMetadata(p.source, version),
		UserID:   userID,
	}
	if err := p.Publish(ctx, event); err != nil {
		slog.Error("failed to publish user_delete", "error", err, "user_id", userID)
		return err
	}
	slog.Info("published user_delete", "user_id", userID, "version", version)
	return nil
}
