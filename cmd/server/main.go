package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/iliyamo/auth-template-service/internal/cache"
	"github.com/iliyamo/auth-template-service/internal/config"
	"github.com/iliyamo/auth-template-service/internal/database"
	"github.com/iliyamo/auth-template-service/internal/handler"
	"github.com/iliyamo/auth-template-service/internal/logging"
	"github.com/iliyamo/auth-template-service/internal/middleware"
	"github.com/iliyamo/auth-template-service/internal/queue"
	"github.com/iliyamo/auth-template-service/internal/repository"
	"github.com/iliyamo/auth-template-service/internal/router"
	"github.com/iliyamo/auth-template-service/internal/service"
	"github.com/iliyamo/auth-template-service/internal/utils"
)

func main() {
	cfg := config.Load()
	log := logging.New(os.Stdout, cfg.Log.Level, cfg.Log.Format).With("service", "auth-api", "env", cfg.App.Env)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	db, err := database.OpenWithRetry(ctx, cfg.DB, cfg.RabbitMQ.RetryInterval, cfg.RabbitMQ.ConnectionTimeout, func(err error) {
		log.Warn("database not ready, retrying", "error", err)
	})
	if err != nil {
		return err
	}
	defer db.Close()
	if cfg.DB.Migrate {
		if err := database.Migrate(ctx, db); err != nil {
			return err
		}
	}

	// Redis is optional: without it lookups hit MySQL and nothing is rate limited.
	rdb := config.NewRedisClient(config.LoadRedisConfig())
	cc := config.LoadCacheConfig()
	var userCache cache.Cache = cache.Noop{}
	if rdb != nil {
		defer rdb.Close()
		if cc.Enabled {
			userCache = cache.NewRedis(rdb, cc.Prefix)
		}
	} else {
		log.Warn("redis unavailable, user cache and rate limiting disabled")
	}

	users := repository.NewUserRepo(db, cache.NewAside(userCache, log, cc.ReadTimeout), cc.TTL, log)
	tokens := repository.NewTokenRepo(db)
	hasher := utils.NewPasswordHasher(cfg.Security.BcryptCost, cfg.Security.BcryptWorkers)
	codec, err := utils.NewTokenCodec(cfg.Security.JWTSecret, cfg.Security.JWTAlgorithm)
	if err != nil {
		return fmt.Errorf("token codec: %w", err)
	}
	auth := service.NewAuthService(users, tokens, hasher, codec, cfg.Security.AccessTTL, cfg.Security.RefreshTTL, log)

	if cfg.Admin.Enabled() {
		if err := auth.EnsureAdmin(ctx, cfg.Admin.Username, cfg.Admin.Password); err != nil {
			return fmt.Errorf("bootstrap admin: %w", err)
		}
		log.Info("admin account ensured", "username", cfg.Admin.Username)
	}

	pub := queue.NewPublisher(cfg.RabbitMQ, log)
	if err := pub.Connect(ctx); err != nil {
		return err
	}
	defer pub.Close()

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = handler.NewValidator()
	e.Use(echomw.Recover())
	e.Use(requestLogger(log))

	router.RegisterRoutes(e, db)
	router.RegisterAuth(e, handler.NewAuthHandler(auth, log), codec,
		middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb, log))
	router.RegisterTasks(e, handler.NewTaskHandler(service.NewProducerService(pub, log), log), codec)

	errCh := make(chan error, 1)
	go func() {
		addr := ":" + cfg.App.Port
		log.Info("listening", "addr", addr)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down", "timeout", cfg.App.ShutdownTimeout)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}

func requestLogger(log *slog.Logger) echo.MiddlewareFunc {
	return echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
		LogMethod:   true,
		LogURI:      true,
		LogStatus:   true,
		LogLatency:  true,
		LogRemoteIP: true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v echomw.RequestLoggerValues) error {
			level := slog.LevelInfo
			if v.Error != nil || v.Status >= http.StatusInternalServerError {
				level = slog.LevelError
			}
			attrs := []slog.Attr{
				slog.String("method", v.Method),
				slog.String("uri", v.URI),
				slog.Int("status", v.Status),
				slog.Duration("latency", v.Latency),
				slog.String("remote_ip", v.RemoteIP),
			}
			if v.Error != nil {
				attrs = append(attrs, slog.String("error", v.Error.Error()))
			}
			log.LogAttrs(c.Request().Context(), level, "request", attrs...)
			return nil
		},
	})
}
