package data

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/redis/go-redis/v9"
)

// rateLimitWindow is the fixed window for RPM/TPM counters.
const rateLimitWindow = 60 * time.Second

// RateLimitRepo implements biz.RateLimitRepo on Redis fixed-window counters.
// Following Kratos v2 DDD architecture, the interface is defined in the biz
// layer.
type RateLimitRepo struct {
	rdb    *redis.Client
	logger *log.Helper
}

// NewRateLimitRepo creates a new rate limit repository.
func NewRateLimitRepo(rdb *redis.Client, logger log.Logger) *RateLimitRepo {
	return &RateLimitRepo{
		rdb:    rdb,
		logger: log.NewHelper(logger),
	}
}

// IncrementRPM increments the requests-per-minute counter for a provider.
// Uses Redis INCR with automatic expiration on first increment.
func (r *RateLimitRepo) IncrementRPM(ctx context.Context, providerID string) (int32, error) {
	if r.rdb == nil {
		return 0, fmt.Errorf("redis client is nil")
	}

	key := rateLimitKey(providerID, "rpm")

	count, err := r.rdb.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to increment RPM: %w", err)
	}

	// Set expiration on first increment
	if count == 1 {
		if err := r.rdb.Expire(ctx, key, rateLimitWindow).Err(); err != nil {
			r.logger.Warnf("Failed to set RPM expiration for provider %s: %v", providerID, err)
		}
	}

	return clampInt32(count), nil
}

// GetTPMCount retrieves the current tokens-per-minute count for a provider.
// Returns 0 if the key doesn't exist.
func (r *RateLimitRepo) GetTPMCount(ctx context.Context, providerID string) (int32, error) {
	if r.rdb == nil {
		return 0, fmt.Errorf("redis client is nil")
	}

	key := rateLimitKey(providerID, "tpm")

	count, err := r.rdb.Get(ctx, key).Result()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get TPM count: %w", err)
	}

	countInt, err := strconv.ParseInt(count, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("failed to parse TPM count: %w", err)
	}

	return int32(countInt), nil
}

// IncrementTPM adds tokens (possibly negative, for post-completion
// corrections) to the tokens-per-minute counter.
func (r *RateLimitRepo) IncrementTPM(ctx context.Context, providerID string, tokens int32) (int32, error) {
	if r.rdb == nil {
		return 0, fmt.Errorf("redis client is nil")
	}

	key := rateLimitKey(providerID, "tpm")

	// Get current count first to detect first increment
	_, err := r.rdb.Get(ctx, key).Result()
	isFirstIncrement := err == redis.Nil

	count, err := r.rdb.IncrBy(ctx, key, int64(tokens)).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to increment TPM: %w", err)
	}

	if isFirstIncrement {
		if err := r.rdb.Expire(ctx, key, rateLimitWindow).Err(); err != nil {
			r.logger.Warnf("Failed to set TPM expiration for provider %s: %v", providerID, err)
		}
	}

	return clampInt32(count), nil
}

// rateLimitKey builds the Redis key for a provider's rate limit counter.
// Format: ratelimit:{providerID}:{type} where type is "rpm" or "tpm".
func rateLimitKey(providerID, limitType string) string {
	return fmt.Sprintf("ratelimit:%s:%s", providerID, limitType)
}

func clampInt32(v int64) int32 {
	if v > 2147483647 {
		v = 2147483647
	}
	if v < -2147483648 {
		v = -2147483648
	}
	return int32(v) // #nosec G115 -- overflow is handled above
}
