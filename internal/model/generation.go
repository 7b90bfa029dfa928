package model

import (
	"strings"
	"time"

	"ModelLane/pkg/breaker"
)

// TaskClass categorizes a generation request and selects which ordered
// provider list applies. The set is config-extensible; these are the classes
// the feature layers use today.
type TaskClass string

const (
	// TaskClassStrategic is for high-stakes reasoning calls (VPR, gap analysis).
	// Routed quality-first.
	TaskClassStrategic TaskClass = "strategic"
	// TaskClassTemplate is for high-volume templated rewriting. Routed cost-first.
	TaskClassTemplate TaskClass = "template"
	// TaskClassValidation is for cheap structural checks. Routed cost-first.
	TaskClassValidation TaskClass = "validation"
)

// ParseTaskClass normalizes a caller-supplied task class string.
func ParseTaskClass(s string) TaskClass {
	return TaskClass(strings.ToLower(strings.TrimSpace(s)))
}

// GenerationRequest is one routing request. Created per call, owned by the
// caller, consumed by the router.
type GenerationRequest struct {
	RequestID string
	TaskClass TaskClass
	Prompt    string
	MaxTokens int
	// Deadline is the walk-level ceiling for the whole fallback chain.
	// Zero means no explicit deadline beyond the caller's context.
	Deadline time.Time
}

// TokenUsage is the usage reported by the provider for a single call.
// Reporting only; billing precision is out of scope here.
type TokenUsage struct {
	PromptTokens int `json:"prompt_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Generation is the raw output of one provider adapter call.
type Generation struct {
	Text  string
	Usage TokenUsage
}

// GenerationResult is the router's answer for a successful request.
type GenerationResult struct {
	Text         string        `json:"text"`
	ProviderID   string        `json:"provider_id"`
	Model        string        `json:"model"`
	AttemptsMade int           `json:"attempts_made"`
	TotalLatency time.Duration `json:"total_latency"`
	Usage        TokenUsage    `json:"usage"`
	// EstimatedCostUSD is usage priced at the serving provider's per-million
	// token rates.
	EstimatedCostUSD float64 `json:"estimated_cost_usd"`
}

// Outcome is the bounded in-memory record of one routed request, kept for
// the status endpoint. Never persisted.
type Outcome struct {
	RequestID  string        `json:"request_id"`
	TaskClass  TaskClass     `json:"task_class"`
	ProviderID string        `json:"provider_id,omitempty"`
	Attempts   int           `json:"attempts"`
	Latency    time.Duration `json:"latency"`
	Usage      TokenUsage    `json:"usage"`
	Err        string        `json:"error,omitempty"`
	At         time.Time     `json:"at"`
}

// ProviderStatus is the per-provider health view exposed by /v1/status.
type ProviderStatus struct {
	ProviderID string           `json:"provider_id"`
	Vendor     string           `json:"vendor"`
	Model      string           `json:"model"`
	Breaker    breaker.Snapshot `json:"breaker"`
}
