package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// declareQueue declares QueueName as a durable quorum queue. Publisher and
// consumer must pass identical arguments or the broker rejects the second
// declaration.
func declareQueue(ch *amqp.Channel) error {
	_, err := ch.QueueDeclare(
		QueueName,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		amqp.Table{
			"x-queue-type":     "quorum",
			"x-delivery-limit": DefaultMaxDeliver,
		},
	)
	if err != nil {
		return fmt.Errorf("declare queue %s: %w", QueueName, err)
	}
	return nil
}

func openAMQP(amqpURL string, timeout time.Duration) (*amqp.Connection, *amqp.Channel, error) {
	conn, err := amqp.DialConfig(amqpURL, amqp.Config{
		Dial: amqp.DefaultDial(timeout),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("connect to amqp: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("open channel: %w", err)
	}

	if err := declareQueue(ch); err != nil {
		conn.Close()
		return nil, nil, err
	}
	return conn, ch, nil
}

type amqpTransport struct {
	conn *amqp.Connection
	ch   *amqp.Channel
}

func dialAMQP(amqpURL string, timeout time.Duration) dialFunc {
	return func(ctx context.Context) (transport, error) {
		conn, ch, err := openAMQP(amqpURL, timeout)
		if err != nil {
			return nil, err
		}
		if err := ch.Confirm(false); err != nil {
			conn.Close()
			return nil, fmt.Errorf("enable publisher confirms: %w", err)
		}
		return &amqpTransport{conn: conn, ch: ch}, nil
	}
}

func (t *amqpTransport) publish(ctx context.Context, msgID string, body []byte) error {
	confirm, err := t.ch.PublishWithDeferredConfirmWithContext(
		ctx,
		"",        // default exchange
		QueueName, // routing key
		false,     // mandatory
		false,     // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    msgID,
			Timestamp:    time.Now(),
			Body:         body,
		},
	)
	if err != nil {
		return err
	}

	acked, err := confirm.WaitContext(ctx)
	if err != nil {
		return err
	}
	if !acked {
		return errors.New("publish nacked by broker")
	}
	return nil
}

func (t *amqpTransport) healthy() bool {
	return !t.conn.IsClosed() && !t.ch.IsClosed()
}

func (t *amqpTransport) close() {
	t.ch.Close()
	t.conn.Close()
}

// amqpDelivery adapts amqp.Delivery. Redelivery is bounded by the queue's
// x-delivery-limit.
type amqpDelivery struct {
	d amqp.Delivery
}

func (a amqpDelivery) Data() []byte { return a.d.Body }
func (a amqpDelivery) Ack() error   { return a.d.Ack(false) }
func (a amqpDelivery) Nak() error   { return a.d.Nack(false, true) }
func (a amqpDelivery) Term() error  { return a.d.Nack(false, false) }

type amqpSubscription struct {
	cancel context.CancelFunc
	done   chan struct{}
}

func (s *amqpSubscription) stop() {
	s.cancel()
	<-s.done
}

func consumeAMQP(cfg ConsumerConfig) (*amqp.Connection, *amqp.Channel, <-chan amqp.Delivery, error) {
	conn, ch, err := openAMQP(cfg.URL, 10*time.Second)
	if err != nil {
		return nil, nil, nil, err
	}

	if err := ch.Qos(10, 0, false); err != nil {
		conn.Close()
		return nil, nil, nil, fmt.Errorf("set qos: %w", err)
	}

	msgs, err := ch.Consume(
		QueueName,
		cfg.ConsumerName,
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		conn.Close()
		return nil, nil, nil, fmt.Errorf("consume: %w", err)
	}
	return conn, ch, msgs, nil
}

func subscribeAMQP(cfg ConsumerConfig) subscribeFunc {
	return func(ctx context.Context, deliver func(context.Context, delivery)) (subscription, error) {
		var (
			conn *amqp.Connection
			ch   *amqp.Channel
			msgs <-chan amqp.Delivery
		)
		err := cfg.Backoff.retry(ctx, func(context.Context) error {
			var err error
			conn, ch, msgs, err = consumeAMQP(cfg)
			return err
		})
		if err != nil {
			return nil, classify(err)
		}

		ctx, cancel := context.WithCancel(ctx)
		s := &amqpSubscription{cancel: cancel, done: make(chan struct{})}

		go func() {
			defer close(s.done)
			for {
				if !pump(ctx, msgs, deliver) {
					ch.Close()
					conn.Close()
					return
				}
				conn.Close()

				slog.Warn("amqp delivery channel closed, reconnecting", "consumer", cfg.ConsumerName)
				for {
					err := cfg.Backoff.retry(ctx, func(context.Context) error {
						var err error
						conn, ch, msgs, err = consumeAMQP(cfg)
						return err
					})
					if err == nil {
						slog.Info("amqp consumer reconnected", "consumer", cfg.ConsumerName)
						break
					}
					if ctx.Err() != nil {
						return
					}
					slog.Error("amqp reconnect failed", "error", err, "consumer", cfg.ConsumerName)
					select {
					case <-ctx.Done():
						return
					case <-time.After(cfg.Backoff.Max):
					}
				}
			}
		}()

		return s, nil
	}
}

// pump delivers messages until ctx is done (false) or the broker closes
// the delivery channel (true).
func pump(ctx context.Context, msgs <-chan amqp.Delivery, deliver func(context.Context, delivery)) bool {
	for {
		select {
		case <-ctx.Done():
			return false
		case d, ok := <-msgs:
			if !ok {
				return true
			}
			deliver(ctx, amqpDelivery{d: d})
		}
	}
}
