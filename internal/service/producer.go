package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/iliyamo/auth-template-service/internal/queue"
)

// Publisher sends one encoded task to the broker.
type Publisher interface {
	Publish(ctx context.Context, body []byte) error
}

// PushResult echoes a published task back to the caller.
type PushResult struct {
	Status string            `json:"status"`
	Data   queue.TaskMessage `json:"data"`
}

// ProducerService pushes test tasks to the out-task queue.
type ProducerService struct {
	pub Publisher
	log *slog.Logger
}

func NewProducerService(pub Publisher, log *slog.Logger) *ProducerService {
	if log == nil {
		log = slog.Default()
	}
	return &ProducerService{pub: pub, log: log.With("component", "producer")}
}

// PushTestMessage publishes msg; an empty sender becomes queue.DefaultSender.
func (p *ProducerService) PushTestMessage(ctx context.Context, msg queue.TaskMessage) (PushResult, error) {
	if strings.TrimSpace(msg.Content) == "" {
		return PushResult{}, fmt.Errorf("%w: content is required", ErrInvalidInput)
	}
	if msg.Sender == "" {
		msg.Sender = queue.DefaultSender
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return PushResult{}, fmt.Errorf("encode task: %w", err)
	}
	p.log.InfoContext(ctx, "pushing task", "bytes", len(body))
	if err := p.pub.Publish(ctx, body); err != nil {
		return PushResult{}, fmt.Errorf("publish task: %w", err)
	}
	return PushResult{Status: "Task successfully pushed", Data: msg}, nil
}
