// Package main запускает HTTP-сервер сервиса бонусов филиалов.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mmeshcher/bonus-ledger/internal/config"
	"github.com/mmeshcher/bonus-ledger/internal/handler"
	"github.com/mmeshcher/bonus-ledger/internal/middleware"
	"github.com/mmeshcher/bonus-ledger/internal/notify"
	"github.com/mmeshcher/bonus-ledger/internal/repository"
	"github.com/mmeshcher/bonus-ledger/internal/service"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	sugar := logger.Sugar()

	cfg, err := config.Parse()
	if err != nil {
		sugar.Fatalw("configuration error", "error", err.Error())
	}

	loc, err := cfg.Location()
	if err != nil {
		sugar.Fatalw("configuration error", "error", err.Error())
	}

	var repo service.Repository
	if cfg.DatabaseURI != "" {
		pg, err := repository.NewPostgresRepository(cfg.DatabaseURI)
		if err != nil {
			sugar.Fatalw("database initialization error", "error", err.Error())
		}
		repo = pg
	} else {
		sugar.Warn("DATABASE_URI is empty, using in-memory storage")
		repo = repository.NewMemoryRepository()
	}

	var notifier service.Notifier
	if cfg.NotifyWebhookAddress != "" {
		notifier = notify.NewClient(cfg.NotifyWebhookAddress)
	}

	svc := service.NewService(repo, notifier, logger, loc)
	defer svc.Close()

	var limiter middleware.Limiter = middleware.NewLocalLimiter(cfg.RateLimitPerMinute, time.Minute)
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:         cfg.RedisAddr,
			Password:     cfg.RedisPassword,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
			MaxRetries:   3,
		})
		defer rdb.Close()

		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			sugar.Warnw("redis is unavailable, rate limits stay per process", "error", err.Error())
		} else {
			limiter = middleware.NewRedisLimiter(rdb, "bonusledger:ratelimit", cfg.RateLimitPerMinute, time.Minute)
		}
		cancel()
	}
	rateLimit := middleware.RateLimit(limiter, middleware.ClientIP, logger)

	authMiddleware := middleware.NewAuthMiddleware(cfg.AuthSecret).WithSecureCookie(cfg.SecureCookie)
	if cfg.AuthSecret == "" {
		sugar.Warn("AUTH_SECRET is empty, sessions will not survive a restart")
	}

	h := handler.NewHandler(svc, logger, authMiddleware,
		handler.WithRouteLimits(handler.RouteLimits{Login: rateLimit, Approve: rateLimit}),
		handler.WithCORSOrigins(cfg.CORSOrigins),
	)

	r := h.SetupRouter()

	server := &http.Server{
		Addr:              cfg.RunAddress,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	// Доставка уведомлений об утверждённых неделях
	g.Go(func() error {
		svc.StartNotificationDispatch(ctx)
		return nil
	})

	g.Go(func() error {
		sugar.Infow("starting bonus ledger server", "addr", cfg.RunAddress, "timezone", loc.String())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown при отмене контекста (сигнал или ошибка в другой горутине)
	g.Go(func() error {
		<-ctx.Done()
		sugar.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		sugar.Info("server stopped gracefully")
		return nil
	})

	if err := g.Wait(); err != nil {
		sugar.Fatalw("application terminated with error", "error", err)
	}
}
