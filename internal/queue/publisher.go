package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/iliyamo/auth-template-service/internal/config"
)

// Publisher sends persistent JSON messages to the out-task route. It holds
// one connection and channel and re-creates them when a publish finds them
// closed.
type Publisher struct {
	cfg    config.RabbitMQConfig
	out    Route
	routes []Route
	log    *slog.Logger

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

// NewPublisher does not connect; call Connect at startup or let the first
// Publish do it.
func NewPublisher(cfg config.RabbitMQConfig, log *slog.Logger) *Publisher {
	if log == nil {
		log = slog.Default()
	}
	out := Route{Exchange: cfg.OutTaskExchange, Queue: cfg.OutTaskQueue}
	in := Route{Exchange: cfg.InTaskExchange, Queue: cfg.InTaskQueue}
	routes := []Route{out}
	if in != out {
		routes = append(routes, in)
	}
	return &Publisher{cfg: cfg, out: out, routes: routes, log: log.With("component", "publisher")}
}

// Connect dials with retry and declares both task routes.
func (p *Publisher) Connect(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	conn, err := DialWithRetry(ctx, p.cfg.URL, p.cfg.RetryInterval, p.cfg.ConnectionTimeout, p.log)
	if err != nil {
		return err
	}
	return p.open(conn)
}

func (p *Publisher) open(conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("channel open: %w", err)
	}
	for _, r := range p.routes {
		if err := Declare(ch, r); err != nil {
			_ = ch.Close()
			_ = conn.Close()
			return err
		}
	}
	p.conn, p.ch = conn, ch
	p.log.Info("rabbitmq publisher ready", "exchange", p.out.Exchange, "queue", p.out.Queue)
	return nil
}

// Publish sends body to the out-task exchange with the queue name as
// routing key.
func (p *Publisher) Publish(ctx context.Context, body []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ch == nil || p.ch.IsClosed() {
		p.log.WarnContext(ctx, "channel is closed, reconnecting")
		p.closeLocked()
		conn, err := amqp.DialConfig(p.cfg.URL, amqp.Config{Dial: amqp.DefaultDial(5 * time.Second)})
		if err != nil {
			return fmt.Errorf("rabbitmq dial: %w", err)
		}
		if err := p.open(conn); err != nil {
			return err
		}
	}

	err := p.ch.PublishWithContext(ctx, p.out.Exchange, p.out.Queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	})
	if err != nil {
		p.log.ErrorContext(ctx, "publish failed", "error", err)
		// Force a fresh channel on the next call.
		p.closeLocked()
		return fmt.Errorf("publish: %w", err)
	}
	return nil
}

// Close releases the channel and the connection.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closeLocked()
}

func (p *Publisher) closeLocked() error {
	var errs []error
	if p.ch != nil {
		if err := p.ch.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			errs = append(errs, err)
		}
	}
	if p.conn != nil {
		if err := p.conn.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			errs = append(errs, err)
		}
	}
	p.ch, p.conn = nil, nil
	return errors.Join(errs...)
}
