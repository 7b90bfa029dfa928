package llm

import (
	"context"
	"errors"
	"fmt"
	"os"

	"ModelLane/internal/conf"
	"ModelLane/internal/model"
	"ModelLane/pkg/llmerrors"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIProvider adapts the OpenAI chat completions API. BaseUrl lets the
// same adapter serve any openai-compatible gateway.
type OpenAIProvider struct {
	descriptor
	client *openai.Client
}

// NewOpenAIProvider builds an adapter from its config descriptor.
func NewOpenAIProvider(p *conf.Provider) (*OpenAIProvider, error) {
	apiKey := os.Getenv(p.ApiKeyEnv)
	if apiKey == "" {
		return nil, fmt.Errorf("provider %s: environment variable %s is empty", p.Id, p.ApiKeyEnv)
	}

	httpClient, err := newHTTPClient(p.ProxyUrl)
	if err != nil {
		return nil, fmt.Errorf("provider %s: %w", p.Id, err)
	}

	cfg := openai.DefaultConfig(apiKey)
	cfg.HTTPClient = httpClient
	if p.BaseUrl != "" {
		cfg.BaseURL = p.BaseUrl
	}

	return &OpenAIProvider{
		descriptor: newDescriptor(p),
		client:     openai.NewClientWithConfig(cfg),
	}, nil
}

// Generate performs one chat completion call.
func (o *OpenAIProvider) Generate(ctx context.Context, prompt string, maxTokens int) (*model.Generation, error) {
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     o.model,
		MaxTokens: maxTokens,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return nil, o.normalizeError(err)
	}

	if len(resp.Choices) == 0 {
		return nil, llmerrors.New(o.id, llmerrors.KindUnknown, 0,
			errors.New("completion returned no choices"))
	}

	return &model.Generation{
		Text: resp.Choices[0].Message.Content,
		Usage: model.TokenUsage{
			PromptTokens: resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
		},
	}, nil
}

// normalizeError maps SDK failures to semantic kinds. go-openai surfaces API
// failures as *openai.APIError and transport-level ones as
// *openai.RequestError, both carrying the HTTP status.
func (o *OpenAIProvider) normalizeError(err error) error {
	if pe := normalizeContextErr(o.id, err); pe != nil {
		return pe
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return llmerrors.New(o.id, llmerrors.KindFromStatus(apiErr.HTTPStatusCode), apiErr.HTTPStatusCode, err)
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return llmerrors.New(o.id, llmerrors.KindFromStatus(reqErr.HTTPStatusCode), reqErr.HTTPStatusCode, err)
	}

	return llmerrors.New(o.id, llmerrors.KindUnknown, 0, err)
}
