package biz

import (
	"time"

	"ModelLane/internal/model"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	historySize = 256
	historyTTL  = time.Hour
)

// OutcomeHistory keeps a bounded, expiring record of recent routing outcomes
// for the status endpoint. Purely in-memory and advisory; losing it on
// restart is fine.
type OutcomeHistory struct {
	cache *expirable.LRU[string, *model.Outcome]
}

// NewOutcomeHistory creates the history buffer.
func NewOutcomeHistory() *OutcomeHistory {
	return &OutcomeHistory{
		cache: expirable.NewLRU[string, *model.Outcome](historySize, nil, historyTTL),
	}
}

// Record stores one outcome keyed by request id.
func (h *OutcomeHistory) Record(o *model.Outcome) {
	if o == nil || o.RequestID == "" {
		return
	}
	h.cache.Add(o.RequestID, o)
}

// Recent returns the retained outcomes, oldest first.
func (h *OutcomeHistory) Recent() []*model.Outcome {
	keys := h.cache.Keys()
	out := make([]*model.Outcome, 0, len(keys))
	for _, k := range keys {
		if o, ok := h.cache.Get(k); ok {
			out = append(out, o)
		}
	}
	return out
}

// Len returns the number of retained outcomes.
func (h *OutcomeHistory) Len() int {
	return h.cache.Len()
}
