package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// EventHandler applies user events. Implementations must be idempotent:
// every event may be delivered more than once.
type EventHandler interface {
	OnUserSignup(ctx context.Context, event UserSignup) error
	OnUserDelete(ctx context.Context, event UserDelete) error
}

// delivery is one message handed over by the broker.
type delivery interface {
	Data() []byte
	// Ack marks the message as processed.
	Ack() error
	// Nak asks the broker to redeliver the message later.
	Nak() error
	// Term tells the broker never to redeliver the message.
	Term() error
}

// subscription is a live push subscription on QueueName.
type subscription interface {
	stop()
}

type subscribeFunc func(ctx context.Context, deliver func(context.Context, delivery)) (subscription, error)

// ConsumerConfig holds configuration for the consumer
type ConsumerConfig struct {
	URL           string
	ConsumerName  string // durable name, e.g. "posts"
	Handler       EventHandler
	HandleTimeout time.Duration
	MaxDeliver    int
	Backoff       Backoff
}

// Consumer delivers user events from QueueName to an EventHandler and
// acknowledges each one only after the handler returns nil.
type Consumer struct {
	cfg       ConsumerConfig
	subscribe subscribeFunc
	sub       subscription
	cancel    context.CancelFunc
}

// NewConsumer validates the configuration. It does not connect; Start does.
func NewConsumer(cfg ConsumerConfig) (*Consumer, error) {
	if cfg.Handler == nil {
		return nil, errors.New("consumer handler required")
	}
	if cfg.ConsumerName == "" {
		return nil, errors.New("consumer name required")
	}
	if cfg.HandleTimeout <= 0 {
		cfg.HandleTimeout = 10 * time.Second
	}
	if cfg.MaxDeliver <= 0 {
		cfg.MaxDeliver = DefaultMaxDeliver
	}
	if cfg.Backoff.Attempts == 0 {
		cfg.Backoff = DefaultBackoff
	}

	kind, err := brokerFor(cfg.URL)
	if err != nil {
		return nil, err
	}

	c := &Consumer{cfg: cfg}
	switch kind {
	case brokerAMQP:
		c.subscribe = subscribeAMQP(cfg)
	default:
		c.subscribe = subscribeNATS(cfg)
	}
	return c, nil
}

// Start subscribes to QueueName. Messages are pushed to the handler on the
// broker client's goroutines until Stop is called or ctx is cancelled.
func (c *Consumer) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)

	sub, err := c.subscribe(ctx, c.handle)
	if err != nil {
		cancel()
		return fmt.Errorf("subscribe %s: %w", QueueName, err)
	}
	c.sub = sub
	c.cancel = cancel

	slog.Info("starting event consumer", "consumer", c.cfg.ConsumerName, "queue", QueueName)
	return nil
}

// Stop stops the consumer
func (c *Consumer) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
	if c.sub != nil {
		c.sub.stop()
	}
}

// handle processes a single message. A payload that does not decode is
// terminated so it cannot poison the subscription.
func (c *Consumer) handle(ctx context.Context, d delivery) {
	event, err := Decode(d.Data())
	if err != nil {
		slog.Warn("dropping malformed event", "error", err, "body", preview(d.Data()))
		if err := d.Term(); err != nil {
			slog.Warn("failed to terminate message", "error", err)
		}
		return
	}

	hctx, cancel := context.WithTimeout(ctx, c.cfg.HandleTimeout)
	defer cancel()

	if err := c.apply(hctx, event); err != nil {
		slog.Error("handle event failed", "error", err, "event", event.Kind(), "user_id", event.Key())
		if err := d.Nak(); err != nil {
			slog.Warn("failed to nak message", "error", err)
		}
		return
	}

	if err := d.Ack(); err != nil {
		slog.Warn("failed to ack message", "error", err, "event", event.Kind(), "user_id", event.Key())
	}
}

func (c *Consumer) apply(ctx context.Context, event Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return Dispatch(ctx, c.cfg.Handler, event)
}

// Dispatch routes an event to the matching handler method.
func Dispatch(ctx context.Context, h EventHandler, event Event) error {
	switch ev := event.(type) {
	case UserSignup:
		return h.OnUserSignup(ctx, ev)
	case UserDelete:
		return h.OnUserDelete(ctx, ev)
	default:
		return fmt.Errorf("dispatch %T: %w", event, ErrMalformedEvent)
	}
}

func preview(b []byte) string {
	const limit = 256
	if len(b) > limit {
		return string(b[:limit]) + "..."
	}
	return string(b)
}
