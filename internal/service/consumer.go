package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/iliyamo/auth-template-service/internal/queue"
)

// ConsumerService handles tasks delivered to the worker.
type ConsumerService struct {
	work time.Duration
	log  *slog.Logger
}

// NewConsumerService returns a consumer that spends work on each task.
func NewConsumerService(work time.Duration, log *slog.Logger) *ConsumerService {
	if log == nil {
		log = slog.Default()
	}
	return &ConsumerService{work: work, log: log.With("component", "consumer")}
}

// ProcessInbound decodes one delivery and simulates processing it. An
// undecodable body is an error so the delivery is rejected.
func (c *ConsumerService) ProcessInbound(ctx context.Context, body []byte) error {
	var msg queue.TaskMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return fmt.Errorf("decode task: %w", err)
	}
	c.log.InfoContext(ctx, "task consumed", "sender", msg.Sender, "bytes", len(body))

	if c.work > 0 {
		t := time.NewTimer(c.work)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
	c.log.InfoContext(ctx, "task processed", "content", msg.Content)
	return nil
}
