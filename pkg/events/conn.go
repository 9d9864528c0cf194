package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
)

var (
	ErrUnavailable = errors.New("broker unavailable")
	ErrTimeout     = errors.New("broker timeout")
	ErrClosed      = errors.New("broker connection closed")
)

// StreamMaxAge is how long the broker retains undelivered events. Consumers
// must keep tombstones at least this long.
const StreamMaxAge = 7 * 24 * time.Hour

// DefaultMaxDeliver bounds redelivery of an event whose handler keeps failing.
const DefaultMaxDeliver = 5

// State of a broker connection.
type State int32

const (
	Disconnected State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Backoff bounds connection attempts.
type Backoff struct {
	Attempts int
	Base     time.Duration
	Max      time.Duration
}

var DefaultBackoff = Backoff{Attempts: 3, Base: 200 * time.Millisecond, Max: 2 * time.Second}

func (b Backoff) policy(ctx context.Context) backoff.BackOffContext {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = b.Base
	eb.MaxInterval = b.Max
	eb.Multiplier = 2
	eb.MaxElapsedTime = 0
	eb.Reset()

	attempts := b.Attempts
	if attempts < 1 {
		attempts = 1
	}
	return backoff.WithContext(backoff.WithMaxRetries(eb, uint64(attempts-1)), ctx)
}

// retry calls fn until it succeeds or Attempts is exhausted, sleeping with
// exponential backoff between failures. A cancelled ctx stops the loop and
// is reported together with the last failure.
func (b Backoff) retry(ctx context.Context, fn func(ctx context.Context) error) error {
	var last error
	err := backoff.Retry(func() error {
		last = fn(ctx)
		return last
	}, b.policy(ctx))
	if err != nil && last != nil && ctx.Err() != nil && !errors.Is(err, last) {
		return errors.Join(last, ctx.Err())
	}
	return err
}

// classify maps transport errors onto ErrTimeout / ErrUnavailable.
func classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrTimeout), errors.Is(err, ErrUnavailable), errors.Is(err, ErrClosed):
		return err
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	default:
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
}

// transport is one live broker session used for publishing.
type transport interface {
	publish(ctx context.Context, msgID string, body []byte) error
	healthy() bool
	close()
}

type dialFunc func(ctx context.Context) (transport, error)

// connector owns a lazily established transport. All access goes through
// mu, so concurrent first use results in a single dial.
type connector struct {
	mu      sync.Mutex
	state   State
	t       transport
	dial    dialFunc
	backoff Backoff
	closed  bool
}

func newConnector(dial dialFunc, backoff Backoff) *connector {
	return &connector{dial: dial, backoff: backoff}
}

// get returns the cached transport, dialing a new one when there is none or
// the cached one is no longer healthy.
func (c *connector) get(ctx context.Context) (transport, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrClosed
	}
	if c.state == Connected && c.t.healthy() {
		return c.t, nil
	}
	if c.t != nil {
		slog.Warn("broker connection unusable, reconnecting")
		c.t.close()
		c.t = nil
	}

	c.state = Connecting
	var t transport
	err := c.backoff.retry(ctx, func(ctx context.Context) error {
		var err error
		t, err = c.dial(ctx)
		if err != nil {
			slog.Warn("broker dial failed", "error", err)
		}
		return err
	})
	if err != nil {
		c.state = Disconnected
		return nil, classify(err)
	}

	c.t = t
	c.state = Connected
	return t, nil
}

// invalidate drops t if it is still the cached transport.
func (c *connector) invalidate(t transport) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.t != nil && c.t == t {
		c.t.close()
		c.t = nil
		c.state = Disconnected
	}
}

func (c *connector) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *connector) close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = true
	if c.t != nil {
		c.t.close()
		c.t = nil
	}
	c.state = Disconnected
}

type brokerKind int

const (
	brokerNATS brokerKind = iota
	brokerAMQP
)

func brokerFor(rawURL string) (brokerKind, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return 0, fmt.Errorf("parse broker url: %w", err)
	}
	switch u.Scheme {
	case "nats", "tls", "ws", "wss":
		return brokerNATS, nil
	case "amqp", "amqps":
		return brokerAMQP, nil
	default:
		return 0, fmt.Errorf("unsupported broker scheme %q", u.Scheme)
	}
}
