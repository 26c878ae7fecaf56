package kvstore

import (
	"context"
	"fmt"
	"strings"
)

// Store persists small string settings across restarts.
// A missing key is reported with ok=false, never as an error, and deleting a
// missing key succeeds.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	Close() error
}

const (
	BackendMemory   = "memory"
	BackendFile     = "file"
	BackendSQLite   = "sqlite"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

// Config selects and configures a backend.
type Config struct {
	Backend       string
	Path          string
	RedisAddr     string
	RedisPassword string
	RedisPrefix   string
	DatabaseURL   string
}

// Open builds the configured backend.
func Open(cfg Config) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case BackendMemory:
		return NewMemoryStore(), nil
	case "", BackendFile:
		return NewFileStore(cfg.Path)
	case BackendSQLite:
		return NewSQLiteStore(cfg.Path)
	case BackendRedis:
		return NewRedisStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisPrefix)
	case BackendPostgres:
		return NewGormStore(cfg.DatabaseURL)
	default:
		return nil, fmt.Errorf("unknown kv backend %q", cfg.Backend)
	}
}
