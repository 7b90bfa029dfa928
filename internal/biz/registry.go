package biz

import (
	"errors"
	"fmt"

	"ModelLane/internal/conf"
	"ModelLane/internal/llm"
	"ModelLane/internal/model"
	"ModelLane/pkg/breaker"

	"github.com/go-kratos/kratos/v2/log"
)

// ErrUnknownTaskClass is returned when a request names a task class no
// routing table defines. This is a caller configuration error, never a
// provider failure.
var ErrUnknownTaskClass = errors.New("unknown task class")

// Candidate pairs one provider with its dedicated circuit breaker and local
// rate limits. Breakers are strictly per provider; two task classes sharing
// a provider share its breaker.
type Candidate struct {
	Provider llm.Provider
	Breaker  *breaker.Breaker
	Limits   *conf.RateLimit
}

// Registry is the immutable routing table set built once at startup: task
// class to ordered candidate chain, preference first. Chains are fixed for
// the process lifetime; only breaker state changes at runtime.
type Registry struct {
	tables map[model.TaskClass][]*Candidate
	byID   map[string]*Candidate
	// order preserves config declaration order for the status view.
	order []string
}

// NewRegistry assembles the routing tables from validated configuration and
// the initialized adapters. Config validation already guaranteed every chain
// references a declared provider.
func NewRegistry(bc *conf.Bootstrap, providers []llm.Provider, logger log.Logger) (*Registry, error) {
	helper := log.NewHelper(logger)

	r := &Registry{
		tables: make(map[model.TaskClass][]*Candidate, len(bc.Routing.Tables)),
		byID:   make(map[string]*Candidate, len(providers)),
	}

	byID := make(map[string]llm.Provider, len(providers))
	for _, p := range providers {
		byID[p.ID()] = p
	}

	for _, pc := range bc.Providers {
		p, ok := byID[pc.Id]
		if !ok {
			return nil, fmt.Errorf("no adapter initialized for provider %s", pc.Id)
		}

		brk, err := breaker.New(breaker.Config{
			FailureThreshold:  pc.Breaker.FailureThreshold,
			SuccessThreshold:  pc.Breaker.SuccessThreshold,
			OpenTimeout:       pc.Breaker.OpenTimeout.AsDuration(),
			HalfOpenMaxProbes: pc.Breaker.HalfOpenMaxProbes,
		})
		if err != nil {
			return nil, fmt.Errorf("provider %s: %w", pc.Id, err)
		}

		r.byID[pc.Id] = &Candidate{Provider: p, Breaker: brk, Limits: pc.RateLimit}
		r.order = append(r.order, pc.Id)
	}

	for class, chain := range bc.Routing.Tables {
		candidates := make([]*Candidate, 0, len(chain))
		for _, id := range chain {
			candidates = append(candidates, r.byID[id])
		}
		r.tables[model.TaskClass(class)] = candidates
		helper.Infow("routing table registered",
			"task_class", class,
			"chain", chain)
	}

	return r, nil
}

// Candidates returns the ordered chain for a task class.
func (r *Registry) Candidates(class model.TaskClass) ([]*Candidate, error) {
	chain, ok := r.tables[class]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTaskClass, class)
	}
	return chain, nil
}

// Lookup returns the candidate for a provider id, if declared.
func (r *Registry) Lookup(providerID string) (*Candidate, bool) {
	c, ok := r.byID[providerID]
	return c, ok
}

// Status snapshots every declared provider in config order.
func (r *Registry) Status() []model.ProviderStatus {
	out := make([]model.ProviderStatus, 0, len(r.order))
	for _, id := range r.order {
		c := r.byID[id]
		out = append(out, model.ProviderStatus{
			ProviderID: id,
			Vendor:     c.Provider.Vendor(),
			Model:      c.Provider.Model(),
			Breaker:    c.Breaker.Snapshot(),
		})
	}
	return out
}
