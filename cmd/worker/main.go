package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/iliyamo/auth-template-service/internal/config"
	"github.com/iliyamo/auth-template-service/internal/logging"
	"github.com/iliyamo/auth-template-service/internal/queue"
	"github.com/iliyamo/auth-template-service/internal/service"
)

func main() {
	cfg := config.LoadWorker()
	log := logging.New(os.Stdout, cfg.Log.Level, cfg.Log.Format).With("service", "auth-worker", "env", cfg.App.Env)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Fail fast when the broker never comes up.
	conn, err := queue.DialWithRetry(ctx, cfg.RabbitMQ.URL, cfg.RabbitMQ.RetryInterval, cfg.RabbitMQ.ConnectionTimeout, log)
	if err != nil {
		log.Error("rabbitmq unavailable", "error", err)
		os.Exit(1)
	}
	_ = conn.Close()

	svc := service.NewConsumerService(cfg.Worker.SimulatedWork, log)
	consumer := queue.NewConsumer(cfg.RabbitMQ, svc.ProcessInbound, log)

	log.Info("worker started", "queue", cfg.RabbitMQ.InTaskQueue)
	if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("worker stopped", "error", err)
		os.Exit(1)
	}
	log.Info("worker stopped")
}
