package store

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"studiobook/internal/config"
	"studiobook/internal/events"
)

// Open builds the backend selected by cfg.Storage.Backend.
func Open(ctx context.Context, cfg *config.Config, bus *events.EventBus, logger *zerolog.Logger) (Store, error) {
	switch cfg.Storage.Backend {
	case config.BackendMemory, "":
		return NewMemoryStore(cfg.Storage.Memory.Path, bus, logger)

	case config.BackendSQLite:
		return NewSQLiteStore(cfg.Storage.SQLite.Path, bus, logger)

	case config.BackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:         cfg.Storage.Redis.Address,
			Password:     cfg.Storage.Redis.Password,
			DB:           cfg.Storage.Redis.DB,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		})

		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			client.Close()
			return nil, fmt.Errorf("connect to redis %s: %w", cfg.Storage.Redis.Address, err)
		}
		return NewRedisStore(client, cfg.Storage.Redis.Prefix, logger), nil
	}

	return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
}
