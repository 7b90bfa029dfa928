package biz

import (
	"context"
	"fmt"

	"ModelLane/internal/conf"

	"github.com/go-kratos/kratos/v2/log"
)

// RateLimitRepo abstracts the fixed-window counters behind the per-provider
// rate limiter. Implemented by the data layer on Redis.
type RateLimitRepo interface {
	// IncrementRPM increments the requests-per-minute counter for a provider
	// and returns the new count.
	IncrementRPM(ctx context.Context, providerID string) (int32, error)
	// GetTPMCount returns the current tokens-per-minute count for a provider.
	GetTPMCount(ctx context.Context, providerID string) (int32, error)
	// IncrementTPM adds tokens (possibly negative, for corrections) to the
	// tokens-per-minute counter and returns the new count.
	IncrementTPM(ctx context.Context, providerID string, tokens int32) (int32, error)
}

// RateLimitExceededError reports a locally enforced provider limit. The
// router treats it like an open breaker: skip the candidate, no breaker
// failure recorded.
type RateLimitExceededError struct {
	ProviderID   string
	LimitType    string // "RPM" or "TPM"
	CurrentCount int32
	Limit        int32
}

// Error implements the error interface.
func (e *RateLimitExceededError) Error() string {
	return fmt.Sprintf("provider %s local rate limit exceeded: %s current=%d limit=%d",
		e.ProviderID, e.LimitType, e.CurrentCount, e.Limit)
}

// RateLimiterUseCase enforces per-provider RPM/TPM guard rails so the router
// never drives a vendor account into its own upstream rate limits.
//
// Redis degradation: on any Redis failure the check logs a warning and allows
// the request. A broken limiter must never take the router down with it.
type RateLimiterUseCase struct {
	repo   RateLimitRepo
	logger *log.Helper
}

// NewRateLimiterUseCase creates a new rate limiter use case.
func NewRateLimiterUseCase(repo RateLimitRepo, logger log.Logger) *RateLimiterUseCase {
	return &RateLimiterUseCase{
		repo:   repo,
		logger: log.NewHelper(logger),
	}
}

// Acquire checks a provider's RPM and TPM windows before dispatch. A nil or
// all-zero limit config means unlimited; a nil repo means the limiter is
// disabled entirely (no Redis configured).
func (uc *RateLimiterUseCase) Acquire(ctx context.Context, providerID string, rl *conf.RateLimit, estimatedTokens int32) error {
	if uc.repo == nil || rl == nil {
		return nil
	}

	if rl.Rpm > 0 {
		count, err := uc.repo.IncrementRPM(ctx, providerID)
		if err != nil {
			uc.logger.Warnf("Redis RPM check failed for provider %s: %v (request allowed)", providerID, err)
			return nil
		}
		if count > rl.Rpm {
			uc.logger.Warnw("provider RPM limit exceeded",
				"provider_id", providerID,
				"current", count,
				"limit", rl.Rpm)
			return &RateLimitExceededError{
				ProviderID:   providerID,
				LimitType:    "RPM",
				CurrentCount: count,
				Limit:        rl.Rpm,
			}
		}
	}

	if rl.Tpm > 0 && estimatedTokens > 0 {
		current, err := uc.repo.GetTPMCount(ctx, providerID)
		if err != nil {
			uc.logger.Warnf("Redis TPM get failed for provider %s: %v (request allowed)", providerID, err)
			return nil
		}
		if current+estimatedTokens > rl.Tpm {
			uc.logger.Warnw("provider TPM limit would be exceeded",
				"provider_id", providerID,
				"current", current,
				"estimated", estimatedTokens,
				"limit", rl.Tpm)
			return &RateLimitExceededError{
				ProviderID:   providerID,
				LimitType:    "TPM",
				CurrentCount: current,
				Limit:        rl.Tpm,
			}
		}
		// Pre-charge the estimate; Settle corrects it after completion.
		if _, err := uc.repo.IncrementTPM(ctx, providerID, estimatedTokens); err != nil {
			uc.logger.Warnf("Redis TPM increment failed for provider %s: %v (request allowed)", providerID, err)
			return nil
		}
	}

	return nil
}

// Settle corrects the TPM counter with actual token usage after the request
// completed. Only meaningful when Acquire pre-charged, so the limit config
// gates it the same way. Correction is best-effort: failures are logged,
// never returned.
func (uc *RateLimiterUseCase) Settle(ctx context.Context, providerID string, rl *conf.RateLimit, actualTokens, estimatedTokens int32) {
	if uc.repo == nil || rl == nil || rl.Tpm <= 0 || actualTokens <= 0 {
		return
	}

	correction := actualTokens - estimatedTokens
	if correction == 0 {
		return
	}

	if _, err := uc.repo.IncrementTPM(ctx, providerID, correction); err != nil {
		uc.logger.Warnf("Redis TPM correction failed for provider %s: %v (actual=%d estimated=%d)",
			providerID, err, actualTokens, estimatedTokens)
		return
	}

	uc.logger.Debugw("TPM corrected",
		"provider_id", providerID,
		"actual", actualTokens,
		"estimated", estimatedTokens,
		"correction", correction)
}

// Refund returns the pre-charged estimate after a dispatch that failed
// outright, so a failed attempt does not hold TPM headroom for the rest of
// the window. Gated on the same limit config as the Acquire pre-charge, and
// best-effort like Settle.
func (uc *RateLimiterUseCase) Refund(ctx context.Context, providerID string, rl *conf.RateLimit, estimatedTokens int32) {
	if uc.repo == nil || rl == nil || rl.Tpm <= 0 || estimatedTokens <= 0 {
		return
	}

	if _, err := uc.repo.IncrementTPM(ctx, providerID, -estimatedTokens); err != nil {
		uc.logger.Warnf("Redis TPM refund failed for provider %s: %v (estimated=%d)",
			providerID, err, estimatedTokens)
		return
	}

	uc.logger.Debugw("TPM refunded",
		"provider_id", providerID,
		"estimated", estimatedTokens)
}

// EstimateTokens estimates the token footprint of a request before dispatch.
// Algorithm: tokens ≈ len(prompt) / 4 + maxOutputTokens. Rough on purpose;
// the Settle correction trues it up from the vendor-reported usage.
func (uc *RateLimiterUseCase) EstimateTokens(prompt string, maxOutputTokens int32) int32 {
	promptLen := len(prompt) / 4
	if promptLen > 2147483647 {
		promptLen = 2147483647
	}
	promptTokens := int32(promptLen) // #nosec G115 -- overflow is handled above

	estimatedTotal := promptTokens + maxOutputTokens
	if estimatedTotal <= 0 {
		estimatedTotal = 1
	}
	return estimatedTotal
}
