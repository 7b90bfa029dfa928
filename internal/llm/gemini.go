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

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// GeminiProvider adapts the Google Generative AI API.
type GeminiProvider struct {
	descriptor
	client *genai.Client
}

// NewGeminiProvider builds an adapter from its config descriptor. The genai
// client holds its own connection pool; Close releases it at shutdown.
func NewGeminiProvider(ctx context.Context, p *conf.Provider) (*GeminiProvider, error) {
	apiKey := os.Getenv(p.ApiKeyEnv)
	if apiKey == "" {
		return nil, fmt.Errorf("provider %s: environment variable %s is empty", p.Id, p.ApiKeyEnv)
	}

	httpClient, err := newHTTPClient(p.ProxyUrl)
	if err != nil {
		return nil, fmt.Errorf("provider %s: %w", p.Id, err)
	}

	opts := []option.ClientOption{
		option.WithAPIKey(apiKey),
		option.WithHTTPClient(httpClient),
	}
	if p.BaseUrl != "" {
		opts = append(opts, option.WithEndpoint(p.BaseUrl))
	}

	client, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("provider %s: failed to create genai client: %w", p.Id, err)
	}

	return &GeminiProvider{
		descriptor: newDescriptor(p),
		client:     client,
	}, nil
}

// Generate performs one GenerateContent call.
func (g *GeminiProvider) Generate(ctx context.Context, prompt string, maxTokens int) (*model.Generation, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	// GenerativeModel returns a fresh handle, so per-call settings are safe.
	gm := g.client.GenerativeModel(g.model)
	gm.SetMaxOutputTokens(int32(maxTokens)) // #nosec G115 -- bounded by config validation

	resp, err := gm.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return nil, g.normalizeError(err)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, llmerrors.New(g.id, llmerrors.KindUnknown, 0,
			errors.New("response contained no candidates"))
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			sb.WriteString(string(text))
		}
	}

	usage := model.TokenUsage{}
	if resp.UsageMetadata != nil {
		usage.PromptTokens = int(resp.UsageMetadata.PromptTokenCount)
		usage.OutputTokens = int(resp.UsageMetadata.CandidatesTokenCount)
	}

	return &model.Generation{Text: sb.String(), Usage: usage}, nil
}

// normalizeError maps SDK failures to semantic kinds. The genai SDK wraps
// upstream failures in *googleapi.Error carrying the HTTP status.
func (g *GeminiProvider) normalizeError(err error) error {
	if pe := normalizeContextErr(g.id, err); pe != nil {
		return pe
	}

	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return llmerrors.New(g.id, llmerrors.KindFromStatus(gerr.Code), gerr.Code, err)
	}

	return llmerrors.New(g.id, llmerrors.KindUnknown, 0, err)
}

// Close releases the underlying genai connection.
func (g *GeminiProvider) Close() error {
	return g.client.Close()
}
