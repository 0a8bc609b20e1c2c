package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/auth-template-service/internal/queue"
	"github.com/iliyamo/auth-template-service/internal/service"
)

// Producer is implemented by *service.ProducerService.
type Producer interface {
	PushTestMessage(ctx context.Context, msg queue.TaskMessage) (service.PushResult, error)
}

// TaskHandler exposes the broker demo endpoint.
type TaskHandler struct {
	Producer Producer
	Log      *slog.Logger
}

func NewTaskHandler(p Producer, log *slog.Logger) *TaskHandler {
	if log == nil {
		log = slog.Default()
	}
	return &TaskHandler{Producer: p, Log: log}
}

// PushTask publishes the posted message to the out-task queue.
func (h *TaskHandler) PushTask(c echo.Context) error {
	var msg queue.TaskMessage
	if err := c.Bind(&msg); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if strings.TrimSpace(msg.Content) == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "content required"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	res, err := h.Producer.PushTestMessage(ctx, msg)
	if err != nil {
		if errors.Is(err, service.ErrInvalidInput) {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
		}
		h.Log.ErrorContext(ctx, "push task failed", "error", err)
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "failed to push task"})
	}
	return c.JSON(http.StatusAccepted, res)
}
