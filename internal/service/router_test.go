package service

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"ModelLane/internal/biz"
	"ModelLane/internal/conf"
	"ModelLane/internal/llm"
	"ModelLane/internal/model"

	kerrors "github.com/go-kratos/kratos/v2/errors"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/durationpb"
)

type stubProvider struct {
	id   string
	fail bool
}

func (p *stubProvider) ID() string                 { return p.id }
func (p *stubProvider) Vendor() string             { return "stub" }
func (p *stubProvider) Model() string              { return "stub-model" }
func (p *stubProvider) MaxOutputTokens() int       { return 8192 }
func (p *stubProvider) InputCostPerMTok() float64  { return 1 }
func (p *stubProvider) OutputCostPerMTok() float64 { return 2 }
func (p *stubProvider) Timeout() time.Duration     { return time.Second }

func (p *stubProvider) Generate(context.Context, string, int) (*model.Generation, error) {
	if p.fail {
		return nil, errors.New("vendor detail that must never reach callers")
	}
	return &model.Generation{
		Text:  "generated text",
		Usage: model.TokenUsage{PromptTokens: 10, OutputTokens: 5},
	}, nil
}

func newTestService(t *testing.T, fail bool) *RouterService {
	t.Helper()
	logger := log.NewStdLogger(io.Discard)

	bc := &conf.Bootstrap{
		Providers: []*conf.Provider{{
			Id:              "stub/one",
			Vendor:          "anthropic",
			Model:           "stub-model",
			ApiKeyEnv:       "K",
			MaxOutputTokens: 8192,
			Timeout:         durationpb.New(time.Second),
			Breaker: &conf.Breaker{
				FailureThreshold:  3,
				SuccessThreshold:  2,
				OpenTimeout:       durationpb.New(30 * time.Second),
				HalfOpenMaxProbes: 2,
			},
		}},
		Routing: &conf.Routing{Tables: map[string][]string{"strategic": {"stub/one"}}},
	}

	reg, err := biz.NewRegistry(bc, []llm.Provider{&stubProvider{id: "stub/one", fail: fail}}, logger)
	require.NoError(t, err)
	uc := biz.NewRouterUseCase(bc, reg, biz.NewRateLimiterUseCase(nil, logger), biz.NewOutcomeHistory(), logger)
	return NewRouterService(uc, logger)
}

func TestGenerate_Success(t *testing.T) {
	svc := newTestService(t, false)

	reply, err := svc.Generate(context.Background(), &GenerateRequest{
		TaskClass: "strategic",
		Prompt:    "write something",
		MaxTokens: 500,
	})

	require.NoError(t, err)
	assert.Equal(t, "generated text", reply.Text)
	assert.Equal(t, "stub/one", reply.ProviderID)
	assert.Equal(t, 1, reply.AttemptsMade)
	assert.NotEmpty(t, reply.RequestID)
}

func TestGenerate_ValidationErrors(t *testing.T) {
	svc := newTestService(t, false)

	tests := []struct {
		name string
		req  *GenerateRequest
	}{
		{"missing task class", &GenerateRequest{Prompt: "p", MaxTokens: 10}},
		{"missing prompt", &GenerateRequest{TaskClass: "strategic", MaxTokens: 10}},
		{"zero max tokens", &GenerateRequest{TaskClass: "strategic", Prompt: "p"}},
		{"negative timeout", &GenerateRequest{TaskClass: "strategic", Prompt: "p", MaxTokens: 10, TimeoutMs: -1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Generate(context.Background(), tt.req)
			ke := kerrors.FromError(err)
			assert.Equal(t, int32(400), ke.Code)
			assert.Equal(t, "INVALID_REQUEST", ke.Reason)
		})
	}
}

func TestGenerate_UnknownTaskClassMapsTo400(t *testing.T) {
	svc := newTestService(t, false)

	_, err := svc.Generate(context.Background(), &GenerateRequest{
		TaskClass: "reporting",
		Prompt:    "p",
		MaxTokens: 10,
	})

	ke := kerrors.FromError(err)
	assert.Equal(t, int32(400), ke.Code)
	assert.Equal(t, "UNKNOWN_TASK_CLASS", ke.Reason)
}

func TestGenerate_ExhaustionMapsTo503WithoutVendorDetail(t *testing.T) {
	svc := newTestService(t, true)

	_, err := svc.Generate(context.Background(), &GenerateRequest{
		TaskClass: "strategic",
		Prompt:    "p",
		MaxTokens: 10,
	})

	ke := kerrors.FromError(err)
	assert.Equal(t, int32(503), ke.Code)
	assert.Equal(t, "ALL_PROVIDERS_FAILED", ke.Reason)
	assert.NotContains(t, ke.Message, "vendor detail")
	assert.NotContains(t, ke.Message, "stub/one")
}

func TestGenerate_BudgetTooLargeMapsTo400(t *testing.T) {
	svc := newTestService(t, false)

	_, err := svc.Generate(context.Background(), &GenerateRequest{
		TaskClass: "strategic",
		Prompt:    "p",
		MaxTokens: 100000,
	})

	ke := kerrors.FromError(err)
	assert.Equal(t, int32(400), ke.Code)
	assert.Equal(t, "NO_ELIGIBLE_PROVIDER", ke.Reason)
}

func TestStatus(t *testing.T) {
	svc := newTestService(t, false)

	reply, err := svc.Status(context.Background())

	require.NoError(t, err)
	require.Len(t, reply.Providers, 1)
	assert.Equal(t, "stub/one", reply.Providers[0].ProviderID)
	assert.Empty(t, reply.Recent)
}
