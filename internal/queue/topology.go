package queue

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Route names an exchange and the queue bound to it. The routing key is
// always the queue name.
type Route struct {
	Exchange string
	Queue    string
}

// declarer is the part of *amqp.Channel used to declare topology.
type declarer interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
}

// Declare creates (idempotently) a durable direct exchange and a durable
// priority queue bound to it.
func Declare(ch declarer, r Route) error {
	if err := ch.ExchangeDeclare(r.Exchange, amqp.ExchangeDirect, true, false, false, false, nil); err != nil {
		return fmt.Errorf("exchange declare %s: %w", r.Exchange, err)
	}
	if _, err := ch.QueueDeclare(r.Queue, true, false, false, false, amqp.Table{"x-max-priority": int32(1)}); err != nil {
		return fmt.Errorf("queue declare %s: %w", r.Queue, err)
	}
	if err := ch.QueueBind(r.Queue, r.Queue, r.Exchange, false, nil); err != nil {
		return fmt.Errorf("queue bind %s: %w", r.Queue, err)
	}
	return nil
}

// DialWithRetry dials url every interval until it succeeds, timeout
// elapses or ctx ends.
func DialWithRetry(ctx context.Context, url string, interval, timeout time.Duration, log *slog.Logger) (*amqp.Connection, error) {
	deadline := time.Now().Add(timeout)
	for {
		conn, err := amqp.Dial(url)
		if err == nil {
			return conn, nil
		}
		if time.Now().Add(interval).After(deadline) {
			return nil, fmt.Errorf("rabbitmq dial: %w", err)
		}
		log.WarnContext(ctx, "rabbitmq not reachable, retrying", "error", err, "in", interval)
		if err := sleep(ctx, interval); err != nil {
			return nil, err
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
