// Package conf provides configuration management using Viper.
// It supports loading configuration from YAML files and environment variables,
// with CLI flag overrides. The whole configuration is assembled and validated
// once at startup; validation failures are fatal before the server binds.
package conf

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"google.golang.org/protobuf/types/known/durationpb"
)

// Bootstrap is the root configuration object injected into the application.
type Bootstrap struct {
	Server    *Server
	Log       *Log
	Redis     *Redis
	Providers []*Provider
	Routing   *Routing
}

// Server holds transport configuration.
type Server struct {
	Http *Server_HTTP
	// ApiKey is an optional static service key; empty disables auth.
	ApiKey string
}

// Server_HTTP holds the HTTP listener configuration.
type Server_HTTP struct {
	Network string
	Addr    string
	Timeout *durationpb.Duration
}

// Log holds logger configuration.
type Log struct {
	Level      string
	Format     string
	Env        string
	OutputFile string
}

// Redis holds the optional Redis connection used by the per-provider rate
// limiter. A missing section disables rate limiting entirely.
type Redis struct {
	Addr         string
	ReadTimeout  *durationpb.Duration
	WriteTimeout *durationpb.Duration
}

// Provider describes one (vendor, model) backend: its immutable adapter
// descriptor plus the parameters of its dedicated circuit breaker and local
// rate limits.
type Provider struct {
	// Id is the routing identity, conventionally "vendor/shortname".
	Id string
	// Vendor selects the adapter implementation: anthropic, openai or gemini.
	Vendor string
	// Model is the upstream model identifier.
	Model string
	// ApiKeyEnv names the environment variable holding the credential.
	// Credentials never live in the config file.
	ApiKeyEnv string
	// BaseUrl optionally overrides the vendor endpoint (openai-compatible
	// gateways, test servers).
	BaseUrl string
	// ProxyUrl optionally routes outbound calls through a socks5/http proxy.
	ProxyUrl string

	MaxOutputTokens   int
	CostPerMTokInput  float64
	CostPerMTokOutput float64
	Timeout           *durationpb.Duration

	Breaker   *Breaker
	RateLimit *RateLimit
}

// Breaker holds per-provider circuit breaker parameters.
type Breaker struct {
	FailureThreshold  int
	SuccessThreshold  int
	OpenTimeout       *durationpb.Duration
	HalfOpenMaxProbes int
}

// RateLimit holds per-provider fixed-window limits. Zero means unlimited.
type RateLimit struct {
	Rpm int32
	Tpm int32
}

// Routing maps task classes to ordered provider chains.
type Routing struct {
	// MaxAttempts caps counted attempts per request; 0 means one attempt
	// per distinct provider in the chain.
	MaxAttempts int
	// Tables maps task class → ordered provider ids, preference first.
	Tables map[string][]string
}

// rawProvider mirrors Provider for viper unmarshalling, with plain durations.
type rawProvider struct {
	Id                string        `mapstructure:"id"`
	Vendor            string        `mapstructure:"vendor"`
	Model             string        `mapstructure:"model"`
	ApiKeyEnv         string        `mapstructure:"api_key_env"`
	BaseUrl           string        `mapstructure:"base_url"`
	ProxyUrl          string        `mapstructure:"proxy_url"`
	MaxOutputTokens   int           `mapstructure:"max_output_tokens"`
	CostPerMTokInput  float64       `mapstructure:"cost_per_mtok_input"`
	CostPerMTokOutput float64       `mapstructure:"cost_per_mtok_output"`
	Timeout           time.Duration `mapstructure:"timeout"`
	Breaker           rawBreaker    `mapstructure:"breaker"`
	RateLimit         *rawRateLimit `mapstructure:"rate_limit"`
}

type rawBreaker struct {
	FailureThreshold  int           `mapstructure:"failure_threshold"`
	SuccessThreshold  int           `mapstructure:"success_threshold"`
	OpenTimeout       time.Duration `mapstructure:"open_timeout"`
	HalfOpenMaxProbes int           `mapstructure:"half_open_max_probes"`
}

type rawRateLimit struct {
	Rpm int32 `mapstructure:"rpm"`
	Tpm int32 `mapstructure:"tpm"`
}

// NewBootstrap creates and initializes a Bootstrap configuration.
// It loads configuration from the specified config file path, applies
// defaults, and allows overrides from environment variables prefixed with
// MODELLANE_.
//
// Configuration priority: CLI flags > Environment variables > Config file > Defaults
func NewBootstrap(configPath string) (*Bootstrap, error) {
	v := viper.New()

	setDefaults(v)

	// Enable environment variable support with MODELLANE_ prefix
	v.SetEnvPrefix("MODELLANE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Allow direct environment variable names for common fields
	_ = v.BindEnv("redis.addr", "REDIS_ADDR", "MODELLANE_REDIS_ADDR")
	_ = v.BindEnv("server.api_key", "MODELLANE_API_KEY")
	_ = v.BindEnv("log.level", "MODELLANE_LOG_LEVEL")

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
		}
	}

	bc := &Bootstrap{
		Server: &Server{
			Http: &Server_HTTP{
				Network: v.GetString("server.http.network"),
				Addr:    v.GetString("server.http.addr"),
				Timeout: durationpb.New(v.GetDuration("server.http.timeout")),
			},
			ApiKey: v.GetString("server.api_key"),
		},
		Log: &Log{
			Level:      v.GetString("log.level"),
			Format:     v.GetString("log.format"),
			Env:        v.GetString("log.env"),
			OutputFile: v.GetString("log.output_file"),
		},
		Routing: &Routing{
			MaxAttempts: v.GetInt("routing.max_attempts"),
			Tables:      v.GetStringMapStringSlice("routing.tables"),
		},
	}

	// Redis is optional: no address means the rate limiter runs disabled.
	if addr := v.GetString("redis.addr"); addr != "" {
		bc.Redis = &Redis{
			Addr:         addr,
			ReadTimeout:  durationpb.New(v.GetDuration("redis.read_timeout")),
			WriteTimeout: durationpb.New(v.GetDuration("redis.write_timeout")),
		}
	}

	var raws []rawProvider
	if err := v.UnmarshalKey("providers", &raws); err != nil {
		return nil, fmt.Errorf("failed to parse providers: %w", err)
	}
	for _, r := range raws {
		bc.Providers = append(bc.Providers, convertProvider(r))
	}

	if err := Validate(bc); err != nil {
		return nil, err
	}

	return bc, nil
}

func convertProvider(r rawProvider) *Provider {
	p := &Provider{
		Id:                r.Id,
		Vendor:            strings.ToLower(r.Vendor),
		Model:             r.Model,
		ApiKeyEnv:         r.ApiKeyEnv,
		BaseUrl:           r.BaseUrl,
		ProxyUrl:          r.ProxyUrl,
		MaxOutputTokens:   r.MaxOutputTokens,
		CostPerMTokInput:  r.CostPerMTokInput,
		CostPerMTokOutput: r.CostPerMTokOutput,
		Timeout:           durationpb.New(r.Timeout),
		Breaker: &Breaker{
			FailureThreshold:  r.Breaker.FailureThreshold,
			SuccessThreshold:  r.Breaker.SuccessThreshold,
			OpenTimeout:       durationpb.New(r.Breaker.OpenTimeout),
			HalfOpenMaxProbes: r.Breaker.HalfOpenMaxProbes,
		},
	}
	if r.RateLimit != nil {
		p.RateLimit = &RateLimit{Rpm: r.RateLimit.Rpm, Tpm: r.RateLimit.Tpm}
	}
	return p
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.http.network", "tcp")
	v.SetDefault("server.http.addr", ":8080")
	v.SetDefault("server.http.timeout", 5*time.Minute)

	// Redis defaults (addr intentionally has no default: absent = disabled)
	v.SetDefault("redis.read_timeout", 200*time.Millisecond)
	v.SetDefault("redis.write_timeout", 200*time.Millisecond)

	// Routing defaults
	v.SetDefault("routing.max_attempts", 0)

	// Log defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// supportedVendors is the closed set of adapter implementations.
var supportedVendors = map[string]bool{
	"anthropic": true,
	"openai":    true,
	"gemini":    true,
}

// Validate checks that the configuration is complete and internally
// consistent. It returns an error listing every problem found, so operators
// fix a broken config in one pass.
func Validate(bc *Bootstrap) error {
	var problems []string

	if len(bc.Providers) == 0 {
		problems = append(problems, "at least one provider must be configured")
	}

	seen := make(map[string]bool, len(bc.Providers))
	for i, p := range bc.Providers {
		where := fmt.Sprintf("providers[%d]", i)
		if p.Id == "" {
			problems = append(problems, where+": id is required")
			continue
		}
		where = fmt.Sprintf("provider %q", p.Id)
		if seen[p.Id] {
			problems = append(problems, where+": duplicate id")
		}
		seen[p.Id] = true

		if !supportedVendors[p.Vendor] {
			problems = append(problems, fmt.Sprintf("%s: unsupported vendor %q", where, p.Vendor))
		}
		if p.Model == "" {
			problems = append(problems, where+": model is required")
		}
		if p.ApiKeyEnv == "" {
			problems = append(problems, where+": api_key_env is required")
		}
		if p.MaxOutputTokens <= 0 {
			problems = append(problems, where+": max_output_tokens must be > 0")
		}
		if p.Timeout.AsDuration() <= 0 {
			problems = append(problems, where+": timeout must be > 0")
		}
		if b := p.Breaker; b == nil {
			problems = append(problems, where+": breaker configuration is required")
		} else {
			if b.FailureThreshold <= 0 {
				problems = append(problems, where+": breaker.failure_threshold must be > 0")
			}
			if b.SuccessThreshold <= 0 {
				problems = append(problems, where+": breaker.success_threshold must be > 0")
			}
			if b.OpenTimeout.AsDuration() <= 0 {
				problems = append(problems, where+": breaker.open_timeout must be > 0")
			}
			if b.HalfOpenMaxProbes <= 0 {
				problems = append(problems, where+": breaker.half_open_max_probes must be > 0")
			}
		}
		if rl := p.RateLimit; rl != nil && (rl.Rpm < 0 || rl.Tpm < 0) {
			problems = append(problems, where+": rate_limit values cannot be negative")
		}
	}

	if bc.Routing == nil || len(bc.Routing.Tables) == 0 {
		problems = append(problems, "routing.tables must define at least one task class")
	} else {
		for class, chain := range bc.Routing.Tables {
			if class == "" {
				problems = append(problems, "routing.tables: empty task class name")
			}
			if len(chain) == 0 {
				problems = append(problems, fmt.Sprintf("routing.tables.%s: chain is empty", class))
			}
			for _, id := range chain {
				if !seen[id] {
					problems = append(problems, fmt.Sprintf("routing.tables.%s: unknown provider %q", class, id))
				}
			}
		}
		if bc.Routing.MaxAttempts < 0 {
			problems = append(problems, "routing.max_attempts cannot be negative")
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}

	return nil
}
