package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/iliyamo/auth-template-service/internal/config"
)

const maxBackoff = 30 * time.Second

// Handler processes one delivery body. A non-nil error rejects the
// message without requeueing it, unless the consumer is shutting down.
type Handler func(ctx context.Context, body []byte) error

// Consumer reads the in-task queue and hands every delivery to a Handler.
type Consumer struct {
	cfg     config.RabbitMQConfig
	route   Route
	handler Handler
	log     *slog.Logger
}

func NewConsumer(cfg config.RabbitMQConfig, h Handler, log *slog.Logger) *Consumer {
	if log == nil {
		log = slog.Default()
	}
	return &Consumer{
		cfg:     cfg,
		route:   Route{Exchange: cfg.InTaskExchange, Queue: cfg.InTaskQueue},
		handler: h,
		log:     log.With("component", "consumer", "queue", cfg.InTaskQueue),
	}
}

// Run connects, consumes and reconnects with exponential backoff until ctx
// ends. It always returns ctx.Err().
func (c *Consumer) Run(ctx context.Context) error {
	backoff := c.cfg.RetryInterval
	if backoff <= 0 {
		backoff = time.Second
	}
	for {
		conn, err := amqp.Dial(c.cfg.URL)
		if err != nil {
			c.log.WarnContext(ctx, "failed to dial broker", "error", err, "retry_in", backoff)
			if err := sleep(ctx, backoff); err != nil {
				return err
			}
			if backoff < maxBackoff {
				backoff *= 2
			}
			continue
		}
		backoff = c.cfg.RetryInterval

		err = c.consume(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.log.WarnContext(ctx, "consume loop ended, reconnecting", "error", err)
		if err := sleep(ctx, backoff); err != nil {
			return err
		}
	}
}

func (c *Consumer) consume(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(c.cfg.Prefetch, 0, false); err != nil {
		c.log.WarnContext(ctx, "set qos failed", "error", err)
	}
	if err := Declare(ch, c.route); err != nil {
		return err
	}
	msgs, err := ch.Consume(c.route.Queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}
	c.log.InfoContext(ctx, "consuming")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			c.handle(ctx, d.Body, d)
		}
	}
}

// acknowledger is satisfied by amqp.Delivery.
type acknowledger interface {
	Ack(multiple bool) error
	Nack(multiple, requeue bool) error
}

func (c *Consumer) handle(ctx context.Context, body []byte, ack acknowledger) {
	if err := c.handler(ctx, body); err != nil {
		// Interrupted work goes back to the queue; anything else is dropped
		// to avoid tight redelivery loops.
		requeue := ctx.Err() != nil
		c.log.ErrorContext(ctx, "handle message failed", "error", err, "requeue", requeue)
		if err := ack.Nack(false, requeue); err != nil {
			c.log.WarnContext(ctx, "nack failed", "error", err)
		}
		return
	}
	if err := ack.Ack(false); err != nil {
		c.log.WarnContext(ctx, "ack failed", "error", err)
	}
}
