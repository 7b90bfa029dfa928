// Package service exposes the routing use cases over the transport layer and
// owns the HTTP error contract. Internal diagnostics (vendor error strings,
// chain composition) stay in the logs; responses carry stable codes only.
package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"ModelLane/internal/biz"
	"ModelLane/internal/model"
	pkglog "ModelLane/pkg/log"

	kerrors "github.com/go-kratos/kratos/v2/errors"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/uuid"
)

// GenerateRequest is the /v1/generate request body.
type GenerateRequest struct {
	TaskClass string `json:"task_class"`
	Prompt    string `json:"prompt"`
	MaxTokens int    `json:"max_tokens"`
	// TimeoutMs optionally caps the whole fallback walk. Zero means the
	// server default applies.
	TimeoutMs int `json:"timeout_ms,omitempty"`
}

// GenerateReply is the /v1/generate response body.
type GenerateReply struct {
	RequestID        string           `json:"request_id"`
	Text             string           `json:"text"`
	ProviderID       string           `json:"provider_id"`
	Model            string           `json:"model"`
	AttemptsMade     int              `json:"attempts_made"`
	LatencyMs        int64            `json:"latency_ms"`
	Usage            model.TokenUsage `json:"usage"`
	EstimatedCostUSD float64          `json:"estimated_cost_usd"`
}

// StatusReply is the /v1/status response body.
type StatusReply struct {
	Providers []model.ProviderStatus `json:"providers"`
	Recent    []*model.Outcome       `json:"recent"`
}

// RouterService implements the HTTP surface over the router use case.
type RouterService struct {
	uc     *biz.RouterUseCase
	logger *log.Helper
}

// NewRouterService creates a new RouterService instance.
func NewRouterService(uc *biz.RouterUseCase, logger log.Logger) *RouterService {
	return &RouterService{
		uc:     uc,
		logger: log.NewHelper(logger),
	}
}

// Generate routes one generation request.
func (s *RouterService) Generate(ctx context.Context, req *GenerateRequest) (*GenerateReply, error) {
	if err := validateGenerate(req); err != nil {
		return nil, err
	}

	// Prefer the id the transport middleware seeded, so log lines and the
	// response correlate.
	requestID := pkglog.GetRequestContext(ctx).RequestID
	if requestID == "" || requestID == "unknown" {
		requestID = uuid.NewString()
	}

	gr := &model.GenerationRequest{
		RequestID: requestID,
		TaskClass: model.ParseTaskClass(req.TaskClass),
		Prompt:    req.Prompt,
		MaxTokens: req.MaxTokens,
	}
	if req.TimeoutMs > 0 {
		gr.Deadline = time.Now().Add(time.Duration(req.TimeoutMs) * time.Millisecond)
	}

	result, err := s.uc.Generate(ctx, gr)
	if err != nil {
		return nil, s.mapError(gr, err)
	}

	return &GenerateReply{
		RequestID:        gr.RequestID,
		Text:             result.Text,
		ProviderID:       result.ProviderID,
		Model:            result.Model,
		AttemptsMade:     result.AttemptsMade,
		LatencyMs:        result.TotalLatency.Milliseconds(),
		Usage:            result.Usage,
		EstimatedCostUSD: result.EstimatedCostUSD,
	}, nil
}

// Status reports provider health and recent outcomes.
func (s *RouterService) Status(_ context.Context) (*StatusReply, error) {
	providers, recent := s.uc.Status()
	return &StatusReply{Providers: providers, Recent: recent}, nil
}

func validateGenerate(req *GenerateRequest) error {
	var problems []string
	if strings.TrimSpace(req.TaskClass) == "" {
		problems = append(problems, "task_class is required")
	}
	if req.Prompt == "" {
		problems = append(problems, "prompt is required")
	}
	if req.MaxTokens <= 0 {
		problems = append(problems, "max_tokens must be > 0")
	}
	if req.TimeoutMs < 0 {
		problems = append(problems, "timeout_ms cannot be negative")
	}
	if len(problems) > 0 {
		return kerrors.New(400, "INVALID_REQUEST", strings.Join(problems, "; "))
	}
	return nil
}

// mapError translates biz errors into the stable HTTP contract. Vendor error
// text and chain composition are logged, never returned to callers.
func (s *RouterService) mapError(req *model.GenerationRequest, err error) error {
	switch {
	case errors.Is(err, biz.ErrUnknownTaskClass):
		return kerrors.New(400, "UNKNOWN_TASK_CLASS",
			"task class "+string(req.TaskClass)+" has no routing table")

	case errors.Is(err, biz.ErrNoEligibleProvider):
		return kerrors.New(400, "NO_ELIGIBLE_PROVIDER",
			"no configured provider can satisfy the requested output budget")

	case errors.Is(err, biz.ErrDeadlineExceeded):
		return kerrors.New(504, "DEADLINE_EXCEEDED",
			"the request deadline expired before a provider succeeded")

	case errors.Is(err, biz.ErrCanceled):
		return kerrors.New(499, "CLIENT_CANCELED", "the request was canceled")
	}

	var apf *biz.AllProvidersFailedError
	if errors.As(err, &apf) {
		s.logger.Errorw("all providers failed",
			"request_id", req.RequestID,
			"task_class", string(req.TaskClass),
			"detail", apf.Error())
		return kerrors.New(503, "ALL_PROVIDERS_FAILED",
			"no provider is currently able to serve the request")
	}

	s.logger.Errorw("unexpected routing error",
		"request_id", req.RequestID,
		"error", err.Error())
	return kerrors.New(500, "INTERNAL", "internal error")
}
