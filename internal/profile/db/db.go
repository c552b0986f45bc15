// Package db provides the durable key-value storage used by the profile
// store, implemented on GORM. SQLite backs on-device installs and Postgres
// backs server deployments.
package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gartstein/bizprofile/internal/profile/db/models"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

type Repository struct {
	db *gorm.DB
}

// Config holds Postgres connection settings.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// DSN renders the Postgres connection string.
func (c *Config) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}

// NewRepository connects to Postgres and migrates the key-value table.
func NewRepository(cfg *Config) (*Repository, error) {
	return open(postgres.Open(cfg.DSN()))
}

// NewSQLiteRepository opens (or creates) a SQLite database file and migrates
// the key-value table. Use ":memory:" for a throwaway database.
func NewSQLiteRepository(path string) (*Repository, error) {
	repo, err := open(sqlite.Open(path))
	if err != nil {
		return nil, err
	}
	// SQLite allows a single writer; one connection also keeps ":memory:"
	// databases from splitting across the pool.
	sqlDB, err := repo.db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)
	return repo, nil
}

func open(dialector gorm.Dialector) (*Repository, error) {
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.AutoMigrate(&models.Entry{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &Repository{db: db}, nil
}

// Get returns the value stored under key. found is false when the key is absent.
func (r *Repository) Get(ctx context.Context, key string) (string, bool, error) {
	var entry models.Entry
	result := r.db.WithContext(ctx).First(&entry, "entry_key = ?", key)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return "", false, nil
		}
		return "", false, result.Error
	}
	return entry.Value, true, nil
}

// Set writes value under key, replacing any previous value in one statement.
func (r *Repository) Set(ctx context.Context, key, value string) error {
	entry := models.Entry{Key: key, Value: value, UpdatedAt: time.Now().UTC()}
	result := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "entry_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&entry)
	return result.Error
}

// Delete removes key. Deleting an absent key is not an error.
func (r *Repository) Delete(ctx context.Context, key string) error {
	result := r.db.WithContext(ctx).Delete(&models.Entry{}, "entry_key = ?", key)
	return result.Error
}

// Ping checks the underlying connection.
func (r *Repository) Ping(ctx context.Context) error {
	db, err := r.db.DB()
	if err != nil {
		return err
	}
	return db.PingContext(ctx)
}

func (r *Repository) Close() error {
	db, err := r.db.DB()
	if err != nil {
		return err
	}
	return db.Close()
}
