// Package data provides data access layer implementations.
package data

import (
	"context"
	"time"

	"ModelLane/internal/conf"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/redis/go-redis/v9"
)

// NewRedisClient creates a new Redis client with connection pool configuration.
// It returns the client, a cleanup function, and an error.
// Connection failure does not prevent application startup (graceful degradation):
// the rate limiter runs disabled until Redis comes back.
func NewRedisClient(bc *conf.Bootstrap, logger log.Logger) (*redis.Client, func(), error) {
	helper := log.NewHelper(logger)

	if bc.Redis == nil || bc.Redis.Addr == "" {
		helper.Warn("Redis is not configured, provider rate limiting disabled")
		return nil, func() {}, nil
	}
	addr := bc.Redis.Addr

	rdb := redis.NewClient(&redis.Options{
		Addr:            addr,
		Password:        "",
		DB:              0,
		PoolSize:        100,
		MinIdleConns:    10,
		DialTimeout:     3 * time.Second,
		ReadTimeout:     bc.Redis.ReadTimeout.AsDuration(),
		WriteTimeout:    bc.Redis.WriteTimeout.AsDuration(),
		ConnMaxIdleTime: 5 * time.Minute,
	})

	// Health check: verify connection with ping
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	cleanup := func() {
		helper.Info("Closing Redis client")
		if err := rdb.Close(); err != nil {
			helper.Errorf("Failed to close Redis client: %v", err)
		}
	}

	if err := rdb.Ping(ctx).Err(); err != nil {
		// Startup continues; the repo degrades per call until Redis is back.
		helper.Warnf("Failed to connect to Redis at %s: %v (application will continue without Redis)", addr, err)
		return rdb, cleanup, nil
	}

	helper.Infof("Successfully connected to Redis at %s", addr)
	return rdb, cleanup, nil
}
