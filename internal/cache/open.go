package cache

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
)

const (
	BackendBadger   = "badger"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

// OpenBackend picks the storage driver named by kind.
func OpenBackend(ctx context.Context, kind, path, url string, logger zerolog.Logger) (Backend, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "", BackendBadger:
		if path == "" {
			return nil, fmt.Errorf("CACHE_PATH is required for the %s cache", BackendBadger)
		}
		return OpenBadger(path, logger)
	case BackendMemory:
		return OpenBadger("", logger)
	case BackendRedis:
		return NewRedisBackend(url)
	case BackendPostgres:
		return NewPostgresBackend(ctx, url)
	default:
		return nil, fmt.Errorf("unknown cache backend %q", kind)
	}
}
