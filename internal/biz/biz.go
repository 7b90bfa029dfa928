// Package biz contains business logic layer implementations.
// This layer holds the routing algorithm, the per-provider resilience state
// and the rate limiting rules.
package biz

import (
	"ModelLane/internal/data"

	"github.com/google/wire"
)

// ProviderSet is biz providers.
var ProviderSet = wire.NewSet(
	NewRegistry,
	NewRouterUseCase,
	NewRateLimiterUseCase,
	NewOutcomeHistory,
	// Import data layer providers
	data.NewRateLimitRepo,
	// Bind data layer implementations to biz layer interfaces
	wire.Bind(new(RateLimitRepo), new(*data.RateLimitRepo)),
)
