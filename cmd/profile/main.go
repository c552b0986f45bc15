package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gartstein/bizprofile/internal/profile/config"
	"github.com/gartstein/bizprofile/internal/profile/controller"
	"github.com/gartstein/bizprofile/internal/profile/events"
	"github.com/gartstein/bizprofile/internal/profile/handlers"
	"github.com/gartstein/bizprofile/internal/profile/kv"
	"github.com/gartstein/bizprofile/internal/profile/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"google.golang.org/grpc"
)

const healthInterval = 10 * time.Second

func main() {
	logger := initLogger()
	defer func(logger *zap.Logger) {
		_ = logger.Sync()
	}(logger)

	cfg, err := config.Load("")
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	storage, err := kv.Open(ctx, cfg.Storage, logger)
	if err != nil {
		logger.Fatal("failed to initialize storage", zap.Error(err))
	}
	defer func() {
		if err := storage.Close(); err != nil {
			logger.Error("failed to close storage", zap.Error(err))
		}
	}()

	bridge, closeBridge, err := initBridge(cfg, logger)
	if err != nil {
		logger.Fatal("failed to initialize autofill bridge", zap.Error(err))
	}
	defer closeBridge()

	store := controller.NewProfileStore(storage, bridge, logger, storeOptions(cfg)...)
	defer store.Close()

	server := handlers.NewServer(cfg.GRPCPort, cfg.HTTPPort, logger,
		grpc.UnaryInterceptor(handlers.LoggingInterceptor(logger)))
	server.RegisterHTTPHandler(handlers.NewRouter(
		handlers.NewProfileHandler(store, logger),
		handlers.RouterConfig{
			JWTSecret: cfg.JWTSecret,
			Gatherer:  prometheus.DefaultGatherer,
			Ready:     storage.Ping,
		},
		logger,
	))
	server.WatchHealth(ctx, storage.Ping, healthInterval)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			logger.Error("Server failed", zap.Error(err))
		}
	}
	server.Stop()
	logger.Info("Profile service stopped")
}

// initLogger initializes a Zap production logger.
func initLogger() *zap.Logger {
	logger, _ := zap.NewProduction()
	return logger
}

func storeOptions(cfg *config.Config) []controller.Option {
	return []controller.Option{
		controller.WithKey(cfg.Storage.Key),
		controller.WithBridgeTimeout(cfg.Bridge.Timeout),
		controller.WithUpsert(cfg.Store.UpdateMode == config.UpdateUpsert),
		controller.WithStrictReads(cfg.Store.StrictReads),
		controller.WithMetrics(metrics.New(prometheus.DefaultRegisterer)),
	}
}

// initBridge returns the configured autofill bridge and its cleanup.
func initBridge(cfg *config.Config, logger *zap.Logger) (controller.Bridge, func(), error) {
	if cfg.Bridge.Driver != config.BridgeKafka {
		return events.Nop{Logger: logger.Named("autofill_bridge")}, func() {}, nil
	}
	producer, err := events.NewProducer(
		cfg.Bridge.KafkaBrokers,
		cfg.Bridge.Topic,
		cfg.Bridge.Device,
		cfg.Bridge.QueueSize,
		logger,
	)
	if err != nil {
		return nil, nil, err
	}
	return producer, producer.Close, nil
}
