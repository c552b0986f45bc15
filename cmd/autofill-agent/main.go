// The autofill agent consumes bridge snapshots from Kafka, keeps the
// device-side mirror up to date and serves autofill lookups from it.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gartstein/bizprofile/internal/profile/autofill"
	"github.com/gartstein/bizprofile/internal/profile/config"
	"github.com/gartstein/bizprofile/internal/profile/events"
	"github.com/gartstein/bizprofile/internal/profile/handlers"
	"github.com/gartstein/bizprofile/internal/profile/kv"
	"go.uber.org/zap"
)

func main() {
	logger, _ := zap.NewProduction()
	defer func(logger *zap.Logger) {
		_ = logger.Sync()
	}(logger)

	cfg, err := config.Load("")
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}
	if len(cfg.Bridge.KafkaBrokers) == 0 {
		logger.Fatal("autofill agent needs BRIDGE.KAFKA_BROKERS")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	storage, err := kv.Open(ctx, cfg.Agent.Storage, logger)
	if err != nil {
		logger.Fatal("failed to initialize mirror storage", zap.Error(err))
	}
	defer storage.Close()

	mirror := autofill.NewMirror(storage, cfg.Agent.MirrorKey, cfg.Bridge.Device, logger)

	consumer := events.NewConsumer(cfg.Bridge.KafkaBrokers, cfg.Bridge.Topic, cfg.Agent.GroupID, logger)
	consumer.RegisterHandler(mirror.Apply)
	consumer.Start(ctx)
	defer consumer.Close()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Agent.HTTPPort),
		Handler:           handlers.NewAutofillRouter(mirror, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("Starting autofill lookup server", zap.String("endpoint", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP serve error", zap.Error(err))
			stop()
		}
	}()

	logger.Info("Autofill agent running",
		zap.String("topic", cfg.Bridge.Topic),
		zap.String("device", cfg.Bridge.Device),
	)
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	}
	logger.Info("Autofill agent stopped")
}
