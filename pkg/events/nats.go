package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

type natsTransport struct {
	nc *nats.Conn
	js jetstream.JetStream
}

func dialNATS(natsURL, source string, timeout time.Duration) dialFunc {
	return func(ctx context.Context) (transport, error) {
		nc, err := nats.Connect(natsURL, nats.Name(source), nats.Timeout(timeout))
		if err != nil {
			return nil, fmt.Errorf("connect to nats: %w", err)
		}

		js, err := jetstream.New(nc)
		if err != nil {
			nc.Close()
			return nil, fmt.Errorf("create jetstream: %w", err)
		}

		if err := ensureStream(ctx, js); err != nil {
			slog.Warn("failed to create USERS stream (may already exist)", "error", err)
		}

		return &natsTransport{nc: nc, js: js}, nil
	}
}

// ensureStream declares the durable stream backing QueueName.
func ensureStream(ctx context.Context, js jetstream.JetStream) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:       StreamName,
		Subjects:   []string{QueueName},
		Retention:  jetstream.LimitsPolicy,
		MaxMsgs:    1000000,
		MaxBytes:   1024 * 1024 * 1024, // 1GB
		MaxAge:     StreamMaxAge,
		Storage:    jetstream.FileStorage,
		Duplicates: 2 * time.Minute,
	})
	if err != nil {
		return fmt.Errorf("create stream %s: %w", StreamName, err)
	}
	return nil
}

func (t *natsTransport) publish(ctx context.Context, msgID string, body []byte) error {
	_, err := t.js.Publish(ctx, QueueName, body, jetstream.WithMsgID(msgID))
	if errors.Is(err, nats.ErrTimeout) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return err
}

func (t *natsTransport) healthy() bool {
	return t.nc.IsConnected()
}

func (t *natsTransport) close() {
	t.nc.Close()
}

type natsSubscription struct {
	nc *nats.Conn
	cc jetstream.ConsumeContext
}

func (s *natsSubscription) stop() {
	s.cc.Stop()
	s.nc.Close()
}

func subscribeNATS(cfg ConsumerConfig) subscribeFunc {
	return func(ctx context.Context, deliver func(context.Context, delivery)) (subscription, error) {
		nc, err := nats.Connect(cfg.URL,
			nats.Name(cfg.ConsumerName),
			nats.RetryOnFailedConnect(true),
			nats.MaxReconnects(-1),
			nats.ReconnectWait(2*time.Second),
			nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
				slog.Warn("NATS disconnected", "error", err)
			}),
			nats.ReconnectHandler(func(_ *nats.Conn) {
				slog.Info("NATS reconnected")
			}),
		)
		if err != nil {
			return nil, fmt.Errorf("connect to nats: %w", err)
		}

		js, err := jetstream.New(nc)
		if err != nil {
			nc.Close()
			return nil, fmt.Errorf("create jetstream: %w", err)
		}

		var consumer jetstream.Consumer
		err = cfg.Backoff.retry(ctx, func(ctx context.Context) error {
			if err := ensureStream(ctx, js); err != nil {
				slog.Warn("failed to create USERS stream (may already exist)", "error", err)
			}

			cctx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()

			var err error
			consumer, err = js.CreateOrUpdateConsumer(cctx, StreamName, jetstream.ConsumerConfig{
				Durable:       cfg.ConsumerName,
				FilterSubject: QueueName,
				AckPolicy:     jetstream.AckExplicitPolicy,
				DeliverPolicy: jetstream.DeliverAllPolicy, // Start from beginning to catch up
				AckWait:       30 * time.Second,
				MaxDeliver:    cfg.MaxDeliver,
			})
			return err
		})
		if err != nil {
			nc.Close()
			return nil, fmt.Errorf("create consumer: %w", classify(err))
		}

		cc, err := consumer.Consume(func(msg jetstream.Msg) {
			deliver(ctx, msg)
		}, jetstream.ConsumeErrHandler(func(_ jetstream.ConsumeContext, err error) {
			slog.Warn("consume error", "error", err, "consumer", cfg.ConsumerName)
		}))
		if err != nil {
			nc.Close()
			return nil, fmt.Errorf("consume: %w", err)
		}

		return &natsSubscription{nc: nc, cc: cc}, nil
	}
}
