package database

import (
	"context"
	"fmt"

	"github.com/ocgroups/meetsync/internal/logging"
	"github.com/redis/go-redis/v9"
)

func NewRedisClient(ctx context.Context, redisURL string, logger logging.Logger) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("error parsing redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("error pinging redis: %w", err)
	}

	logger.WithField("addr", opts.Addr).Info("Redis client created")

	return client, nil
}
