package kv

import (
	"context"
	"fmt"

	"github.com/cenkalti/backoff/v4"
	"github.com/gartstein/bizprofile/internal/profile/config"
	"github.com/gartstein/bizprofile/internal/profile/db"
	"go.uber.org/zap"
)

// Open constructs the Store named by cfg.Driver. Network backends are
// retried with exponential backoff up to cfg.ConnectRetries times.
func Open(ctx context.Context, cfg config.Storage, logger *zap.Logger) (Store, error) {
	logger = logger.Named("kv").With(zap.String("driver", cfg.Driver))

	var store Store
	connect := func() error {
		var err error
		store, err = open(ctx, cfg)
		if err != nil {
			logger.Warn("Failed to open storage, retrying", zap.Error(err))
		}
		return err
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), cfg.ConnectRetries),
		ctx,
	)
	if err := backoff.Retry(connect, policy); err != nil {
		return nil, fmt.Errorf("open %s storage: %w", cfg.Driver, err)
	}

	logger.Info("Storage opened")
	return store, nil
}

func open(ctx context.Context, cfg config.Storage) (Store, error) {
	switch cfg.Driver {
	case config.DriverMemory:
		return NewMemory(), nil
	case config.DriverSQLite:
		return db.NewSQLiteRepository(cfg.SQLitePath)
	case config.DriverPostgres:
		pg := cfg.Postgres
		return db.NewRepository(&db.Config{
			Host:     pg.Host,
			Port:     pg.Port,
			User:     pg.User,
			Password: pg.Password,
			DBName:   pg.DBName,
			SSLMode:  pg.SSLMode,
		})
	case config.DriverRedis:
		return NewRedis(ctx, cfg.Redis)
	case config.DriverS3:
		return NewS3(ctx, cfg.S3)
	default:
		return nil, backoff.Permanent(fmt.Errorf("unknown storage driver %q", cfg.Driver))
	}
}
