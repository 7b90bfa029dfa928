package llm

import (
	"context"
	"fmt"

	"ModelLane/internal/conf"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/wire"
)

// ProviderSet is the llm package's dependency providers.
var ProviderSet = wire.NewSet(NewProviders)

// NewProviders instantiates one adapter per configured provider, in config
// order. Any adapter that cannot be built (missing credential, bad proxy URL)
// fails startup. The cleanup closes adapters that hold connections.
func NewProviders(bc *conf.Bootstrap, logger log.Logger) ([]Provider, func(), error) {
	helper := log.NewHelper(logger)

	providers := make([]Provider, 0, len(bc.Providers))
	var closers []func() error

	cleanup := func() {
		for _, c := range closers {
			_ = c()
		}
	}

	for _, pc := range bc.Providers {
		var (
			p   Provider
			err error
		)
		switch pc.Vendor {
		case "anthropic":
			p, err = NewAnthropicProvider(pc)
		case "openai":
			p, err = NewOpenAIProvider(pc)
		case "gemini":
			var gp *GeminiProvider
			gp, err = NewGeminiProvider(context.Background(), pc)
			if err == nil {
				closers = append(closers, gp.Close)
				p = gp
			}
		default:
			// Unreachable after config validation; kept as a guard.
			err = fmt.Errorf("unsupported vendor %q", pc.Vendor)
		}
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("failed to initialize provider %s: %w", pc.Id, err)
		}

		helper.Infow("provider initialized",
			"provider_id", p.ID(),
			"vendor", p.Vendor(),
			"model", p.Model(),
			"timeout", p.Timeout().String())
		providers = append(providers, p)
	}

	return providers, cleanup, nil
}
