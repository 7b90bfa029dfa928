package biz

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"ModelLane/internal/conf"
	"ModelLane/internal/llm"
	"ModelLane/internal/model"
	"ModelLane/pkg/breaker"
	"ModelLane/pkg/llmerrors"
	pkglog "ModelLane/pkg/log"

	"github.com/go-kratos/kratos/v2/log"
)

var (
	// ErrNoEligibleProvider means every provider in the chain was filtered
	// out before dispatch, e.g. the requested output budget exceeds what any
	// of them supports.
	ErrNoEligibleProvider = errors.New("no provider in the chain can satisfy the request")
	// ErrDeadlineExceeded means the request deadline expired before any
	// provider produced a result.
	ErrDeadlineExceeded = errors.New("deadline exceeded before a provider succeeded")
	// ErrCanceled means the caller abandoned the request mid-walk.
	ErrCanceled = errors.New("request canceled")
)

// AllProvidersFailedError is the terminal error when the chain is exhausted:
// every dispatched provider failed and every skipped one stayed unavailable.
type AllProvidersFailedError struct {
	TaskClass model.TaskClass
	// PerProvider maps provider id to the last error observed from it.
	PerProvider map[string]error
	// Skipped lists providers bypassed without an attempt (open breaker or
	// local rate limit), with the reason.
	Skipped []string
}

// Error implements the error interface.
func (e *AllProvidersFailedError) Error() string {
	parts := make([]string, 0, len(e.PerProvider))
	for id, err := range e.PerProvider {
		parts = append(parts, fmt.Sprintf("%s: %v", id, err))
	}
	sort.Strings(parts)
	msg := fmt.Sprintf("all providers failed for task class %q", e.TaskClass)
	if len(parts) > 0 {
		msg += " [" + strings.Join(parts, "; ") + "]"
	}
	if len(e.Skipped) > 0 {
		msg += " (skipped: " + strings.Join(e.Skipped, ", ") + ")"
	}
	return msg
}

// RouterUseCase answers one question per request: which configured provider
// serves it, right now. It walks the task class's ordered chain, consults
// each provider's breaker and local rate limits, dispatches at most once per
// candidate, and returns the first success.
//
// No parallel fan-out and no same-provider retry within one request: a
// failed provider's retry budget is the rest of the chain.
type RouterUseCase struct {
	registry    *Registry
	limiter     *RateLimiterUseCase
	history     *OutcomeHistory
	maxAttempts int
	logger      *pkglog.LogHelper
}

// NewRouterUseCase creates the router use case.
func NewRouterUseCase(
	bc *conf.Bootstrap,
	registry *Registry,
	limiter *RateLimiterUseCase,
	history *OutcomeHistory,
	logger log.Logger,
) *RouterUseCase {
	return &RouterUseCase{
		registry:    registry,
		limiter:     limiter,
		history:     history,
		maxAttempts: bc.Routing.MaxAttempts,
		logger:      pkglog.NewLogHelper(logger),
	}
}

// Generate routes one request through its task class chain.
//
// Skips (open breaker, local rate limit) never consume the attempt budget;
// only actual dispatches do. Permanent provider failures still advance to
// the next candidate; classification only decides whether the failing
// provider's breaker counts the failure.
func (uc *RouterUseCase) Generate(ctx context.Context, req *model.GenerationRequest) (*model.GenerationResult, error) {
	start := time.Now()
	if req.RequestID == "" {
		req.RequestID = pkglog.GenerateRequestID()
	}

	chain, err := uc.registry.Candidates(req.TaskClass)
	if err != nil {
		return nil, err
	}

	eligible := make([]*Candidate, 0, len(chain))
	for _, c := range chain {
		if req.MaxTokens <= c.Provider.MaxOutputTokens() {
			eligible = append(eligible, c)
		}
	}
	if len(eligible) == 0 {
		return nil, fmt.Errorf("%w: max_tokens %d exceeds every provider's budget for class %q",
			ErrNoEligibleProvider, req.MaxTokens, req.TaskClass)
	}

	maxAttempts := uc.maxAttempts
	if maxAttempts <= 0 || maxAttempts > len(eligible) {
		maxAttempts = len(eligible)
	}

	if !req.Deadline.IsZero() {
		var cancel context.CancelFunc
		ctx, cancel = context.WithDeadline(ctx, req.Deadline)
		defer cancel()
	}

	perProvider := make(map[string]error)
	var skipped []string
	attempts := 0

	for _, cand := range eligible {
		if attempts >= maxAttempts {
			break
		}
		if err := uc.walkInterrupted(ctx); err != nil {
			uc.recordOutcome(req, "", attempts, start, model.TokenUsage{}, err)
			return nil, err
		}

		pid := cand.Provider.ID()

		if !cand.Breaker.Allow() {
			skipped = append(skipped, pid+" (breaker open)")
			uc.logger.Breaker("provider skipped, breaker not admitting",
				"request_id", req.RequestID,
				"provider_id", pid,
				"state", cand.Breaker.State().String())
			continue
		}

		est := uc.limiter.EstimateTokens(req.Prompt, int32(req.MaxTokens)) // #nosec G115 -- validated at the API boundary
		if rlErr := uc.limiter.Acquire(ctx, pid, cand.Limits, est); rlErr != nil {
			// Local limit, not a provider fault. Return the probe slot the
			// breaker may have handed out; the skip is neither success nor
			// failure.
			cand.Breaker.ReleaseProbe()
			skipped = append(skipped, pid+" (rate limited locally)")
			perProvider[pid] = rlErr
			uc.logger.RateLimit("provider skipped, local rate limit",
				"request_id", req.RequestID,
				"provider_id", pid,
				"error", rlErr.Error())
			continue
		}

		attempts++
		attemptStart := time.Now()
		gen, genErr := cand.Provider.Generate(ctx, req.Prompt, req.MaxTokens)
		if genErr != nil {
			// Walk-level expiry is the caller's budget running out, not the
			// provider failing; surface it without recording an outcome
			// against the breaker.
			if ctx.Err() != nil {
				cand.Breaker.ReleaseProbe()
				uc.limiter.Refund(context.WithoutCancel(ctx), pid, cand.Limits, est)
				err := uc.walkInterrupted(ctx)
				uc.recordOutcome(req, pid, attempts, start, model.TokenUsage{}, err)
				return nil, err
			}

			class := llmerrors.ClassifyError(genErr)
			cand.Breaker.RecordFailure(class)
			uc.limiter.Refund(ctx, pid, cand.Limits, est)
			perProvider[pid] = genErr
			uc.logger.Provider("provider attempt failed",
				"request_id", req.RequestID,
				"provider_id", pid,
				"attempt", attempts,
				"classification", class.String(),
				"latency_ms", time.Since(attemptStart).Milliseconds(),
				"error", genErr.Error())
			continue
		}

		cand.Breaker.RecordSuccess()
		actual := int32(gen.Usage.PromptTokens + gen.Usage.OutputTokens) // #nosec G115 -- vendor-reported counts
		uc.limiter.Settle(ctx, pid, cand.Limits, actual, est)

		result := &model.GenerationResult{
			Text:             gen.Text,
			ProviderID:       pid,
			Model:            cand.Provider.Model(),
			AttemptsMade:     attempts,
			TotalLatency:     time.Since(start),
			Usage:            gen.Usage,
			EstimatedCostUSD: estimateCost(cand.Provider, gen.Usage),
		}
		uc.recordOutcome(req, pid, attempts, start, gen.Usage, nil)
		uc.logger.Router("request served",
			"request_id", req.RequestID,
			"task_class", string(req.TaskClass),
			"provider_id", pid,
			"attempts", attempts,
			"latency_ms", result.TotalLatency.Milliseconds(),
			"prompt_tokens", gen.Usage.PromptTokens,
			"output_tokens", gen.Usage.OutputTokens)
		return result, nil
	}

	failure := &AllProvidersFailedError{
		TaskClass:   req.TaskClass,
		PerProvider: perProvider,
		Skipped:     skipped,
	}
	uc.recordOutcome(req, "", attempts, start, model.TokenUsage{}, failure)
	uc.logger.Router("request exhausted provider chain",
		"request_id", req.RequestID,
		"task_class", string(req.TaskClass),
		"attempts", attempts,
		"skipped", len(skipped))
	return nil, failure
}

// Status reports per-provider health plus recent outcomes.
func (uc *RouterUseCase) Status() ([]model.ProviderStatus, []*model.Outcome) {
	return uc.registry.Status(), uc.history.Recent()
}

// walkInterrupted translates context expiry between candidates into the
// router's terminal errors. Returns nil while the walk may continue.
func (uc *RouterUseCase) walkInterrupted(ctx context.Context) error {
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return fmt.Errorf("%w: %v", ErrDeadlineExceeded, ctx.Err())
	case errors.Is(ctx.Err(), context.Canceled):
		return fmt.Errorf("%w: %v", ErrCanceled, ctx.Err())
	}
	return nil
}

func (uc *RouterUseCase) recordOutcome(req *model.GenerationRequest, providerID string, attempts int, start time.Time, usage model.TokenUsage, err error) {
	o := &model.Outcome{
		RequestID:  req.RequestID,
		TaskClass:  req.TaskClass,
		ProviderID: providerID,
		Attempts:   attempts,
		Latency:    time.Since(start),
		Usage:      usage,
		At:         time.Now(),
	}
	if err != nil {
		o.Err = err.Error()
	}
	uc.history.Record(o)
}

// estimateCost prices reported usage at the serving provider's per-million
// token rates.
func estimateCost(p llm.Provider, usage model.TokenUsage) float64 {
	const mtok = 1_000_000
	return float64(usage.PromptTokens)/mtok*p.InputCostPerMTok() +
		float64(usage.OutputTokens)/mtok*p.OutputCostPerMTok()
}

// BreakerStates returns provider id → breaker state, for the health cron.
func (uc *RouterUseCase) BreakerStates() map[string]breaker.State {
	states := make(map[string]breaker.State)
	for _, st := range uc.registry.Status() {
		states[st.ProviderID] = st.Breaker.State
	}
	return states
}
