// Package kv holds the key-value backends the profile store persists
// through and the factory that picks one from configuration.
package kv

import "context"

// Store is a durable string key-value store. Get reports found=false for an
// absent key without an error.
type Store interface {
	Get(ctx context.Context, key string) (value string, found bool, err error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	Ping(ctx context.Context) error
	Close() error
}
