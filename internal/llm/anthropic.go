package llm

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"ModelLane/internal/conf"
	"ModelLane/internal/model"
	"ModelLane/pkg/llmerrors"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicProvider adapts the Anthropic Messages API to the Provider
// interface.
type AnthropicProvider struct {
	descriptor
	client anthropic.Client
}

// NewAnthropicProvider builds an adapter from its config descriptor. The API
// key is resolved from the environment variable the config names; a missing
// key is a startup error, not a runtime one.
func NewAnthropicProvider(p *conf.Provider) (*AnthropicProvider, error) {
	apiKey := os.Getenv(p.ApiKeyEnv)
	if apiKey == "" {
		return nil, fmt.Errorf("provider %s: environment variable %s is empty", p.Id, p.ApiKeyEnv)
	}

	httpClient, err := newHTTPClient(p.ProxyUrl)
	if err != nil {
		return nil, fmt.Errorf("provider %s: %w", p.Id, err)
	}

	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithHTTPClient(httpClient),
		// The router owns retries; the SDK must not add its own.
		option.WithMaxRetries(0),
	}
	if p.BaseUrl != "" {
		opts = append(opts, option.WithBaseURL(p.BaseUrl))
	}

	return &AnthropicProvider{
		descriptor: newDescriptor(p),
		client:     anthropic.NewClient(opts...),
	}, nil
}

// Generate performs one Messages API call.
func (a *AnthropicProvider) Generate(ctx context.Context, prompt string, maxTokens int) (*model.Generation, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	msg, err := a.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(a.model),
		MaxTokens: int64(maxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return nil, a.normalizeError(err)
	}

	var sb strings.Builder
	for _, block := range msg.Content {
		switch v := block.AsAny().(type) {
		case anthropic.TextBlock:
			sb.WriteString(v.Text)
		}
	}

	return &model.Generation{
		Text: sb.String(),
		Usage: model.TokenUsage{
			PromptTokens: int(msg.Usage.InputTokens),
			OutputTokens: int(msg.Usage.OutputTokens),
		},
	}, nil
}

// normalizeError maps SDK failures to semantic kinds. The Anthropic SDK
// surfaces API failures as *anthropic.Error with the upstream status code.
func (a *AnthropicProvider) normalizeError(err error) error {
	if pe := normalizeContextErr(a.id, err); pe != nil {
		return pe
	}

	var apierr *anthropic.Error
	if errors.As(err, &apierr) {
		return llmerrors.New(a.id, llmerrors.KindFromStatus(apierr.StatusCode), apierr.StatusCode, err)
	}

	return llmerrors.New(a.id, llmerrors.KindUnknown, 0, err)
}
