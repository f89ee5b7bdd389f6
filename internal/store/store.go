// Package store provides the key-value substrate behind persisted chat state.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned by Get when the key does not exist.
var ErrNotFound = errors.New("store: key not found")

// KV is the narrow storage capability the session store depends on.
type KV interface {
	// Get returns the value stored under key, or ErrNotFound.
	Get(ctx context.Context, key string) (string, error)

	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key, value string) error

	// Remove deletes key. Removing a missing key is not an error.
	Remove(ctx context.Context, key string) error
}

// Store is a KV backend with a connection lifecycle.
type Store interface {
	KV

	// Ping verifies the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases backend resources.
	Close() error
}

// Backend names accepted by Open.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
	BackendBadger = "badger"
	BackendRedis  = "redis"
)

// Options selects and configures a backend for Open.
type Options struct {
	Backend string
	// Path is the sqlite file or badger directory.
	Path string
	// RedisAddr is host:port for the redis backend.
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	// TTL, when positive, is applied to every write by backends that support expiry.
	TTL time.Duration
}

// Open constructs the backend named by opts.Backend.
func Open(ctx context.Context, opts Options) (Store, error) {
	switch opts.Backend {
	case "", BackendMemory:
		return NewMemory(), nil
	case BackendSQLite:
		return NewSQLite(opts.Path)
	case BackendBadger:
		return NewBadger(BadgerConfig{Path: opts.Path, TTL: opts.TTL})
	case BackendRedis:
		return NewRedis(ctx, RedisConfig{
			Addr:     opts.RedisAddr,
			Password: opts.RedisPassword,
			DB:       opts.RedisDB,
			TTL:      opts.TTL,
		})
	default:
		return nil, fmt.Errorf("unknown store backend %q", opts.Backend)
	}
}
