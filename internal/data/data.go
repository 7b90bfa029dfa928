// Package data provides data access layer implementations.
// It handles the Redis connection backing the provider rate limiter.
package data

import (
	"github.com/google/wire"
)

// ProviderSet is data providers. NewRateLimitRepo is provided through the
// biz set, next to its interface binding.
var ProviderSet = wire.NewSet(
	NewRedisClient,
)
