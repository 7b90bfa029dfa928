// Package llm contains the outbound provider adapters. Each adapter wraps one
// vendor SDK behind the Provider interface: single attempt, own timeout, all
// failures normalized into llmerrors.ProviderError. Adapters never retry and
// never inspect routing state; resilience lives entirely in the biz layer.
package llm

import (
	"context"
	"errors"
	"time"

	"ModelLane/internal/conf"
	"ModelLane/internal/model"
	"ModelLane/pkg/llmerrors"
)

// Provider is a single (vendor, model) backend the router can dispatch to.
type Provider interface {
	// ID returns the routing identity, e.g. "anthropic/sonnet".
	ID() string
	// Vendor returns the adapter family: anthropic, openai or gemini.
	Vendor() string
	// Model returns the upstream model identifier.
	Model() string
	// MaxOutputTokens returns the largest output budget this backend accepts.
	MaxOutputTokens() int
	// InputCostPerMTok returns the USD price per million input tokens.
	InputCostPerMTok() float64
	// OutputCostPerMTok returns the USD price per million output tokens.
	OutputCostPerMTok() float64
	// Timeout returns the per-attempt ceiling the adapter enforces.
	Timeout() time.Duration

	// Generate performs exactly one upstream call. The adapter applies its
	// own timeout on top of ctx and returns either the generation or a
	// normalized *llmerrors.ProviderError.
	Generate(ctx context.Context, prompt string, maxTokens int) (*model.Generation, error)
}

// descriptor carries the immutable config-derived identity shared by all
// adapters.
type descriptor struct {
	id                string
	vendor            string
	model             string
	maxOutputTokens   int
	costPerMTokInput  float64
	costPerMTokOutput float64
	timeout           time.Duration
}

func newDescriptor(p *conf.Provider) descriptor {
	return descriptor{
		id:                p.Id,
		vendor:            p.Vendor,
		model:             p.Model,
		maxOutputTokens:   p.MaxOutputTokens,
		costPerMTokInput:  p.CostPerMTokInput,
		costPerMTokOutput: p.CostPerMTokOutput,
		timeout:           p.Timeout.AsDuration(),
	}
}

func (d descriptor) ID() string                 { return d.id }
func (d descriptor) Vendor() string             { return d.vendor }
func (d descriptor) Model() string              { return d.model }
func (d descriptor) MaxOutputTokens() int       { return d.maxOutputTokens }
func (d descriptor) InputCostPerMTok() float64  { return d.costPerMTokInput }
func (d descriptor) OutputCostPerMTok() float64 { return d.costPerMTokOutput }
func (d descriptor) Timeout() time.Duration     { return d.timeout }

// normalizeContextErr maps context expiry inside an adapter call to the
// matching semantic kind. Returns nil when err carries no context signal.
func normalizeContextErr(providerID string, err error) *llmerrors.ProviderError {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return llmerrors.New(providerID, llmerrors.KindTimeout, 0, err)
	case errors.Is(err, context.Canceled):
		return llmerrors.New(providerID, llmerrors.KindCanceled, 0, err)
	}
	return nil
}
