package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// Upstream model providers for the AI proxy.
const (
	ProviderGemini    = "gemini"
	ProviderAnthropic = "anthropic"
)

// ProxyConfig holds the AI proxy service settings.
type ProxyConfig struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	Provider string

	GeminiAPIKey  string
	GeminiModel   string
	GeminiBaseURL string

	AnthropicAPIKey string
	AnthropicModel  string

	UpstreamTimeout    time.Duration
	UpstreamMaxRetries int

	// Per-client token bucket. Zero disables limiting.
	ClientRateLimit float64
	ClientBurst     int
}

// LoadProxy reads the AI proxy configuration from environment variables.
// Missing credentials are not an error here; the proxy reports them per request.
func LoadProxy() (*ProxyConfig, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}
	upstreamTimeout, err := parsePositiveDuration("UPSTREAM_TIMEOUT", "20s")
	if err != nil {
		return nil, err
	}
	maxRetries, err := parseNonNegativeInt("UPSTREAM_MAX_RETRIES", 4)
	if err != nil {
		return nil, err
	}
	rateLimit, err := parseFloat("CLIENT_RATE_LIMIT", 0.5)
	if err != nil || rateLimit < 0 {
		return nil, errors.New("invalid CLIENT_RATE_LIMIT")
	}
	burst, err := parseNonNegativeInt("CLIENT_BURST", 30)
	if err != nil {
		return nil, err
	}

	addr := os.Getenv("HTTP_ADDR")
	if addr == "" {
		addr = ":" + sharedcfg.EnvOrDefault("PORT", "3001")
	}

	geminiKey := os.Getenv("GEMINI_API_KEY")
	if geminiKey == "" {
		geminiKey = os.Getenv("GOOGLE_API_KEY")
	}

	cfg := &ProxyConfig{
		HTTPAddr:        addr,
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		Provider: strings.ToLower(sharedcfg.EnvOrDefault("AI_PROVIDER", ProviderGemini)),

		GeminiAPIKey:  geminiKey,
		GeminiModel:   sharedcfg.EnvOrDefault("GEMINI_MODEL", "models/gemini-1.0"),
		GeminiBaseURL: strings.TrimRight(sharedcfg.EnvOrDefault("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com/v1beta2"), "/"),

		AnthropicAPIKey: os.Getenv("ANTHROPIC_API_KEY"),
		AnthropicModel:  sharedcfg.EnvOrDefault("ANTHROPIC_MODEL", "claude-3-5-haiku-latest"),

		UpstreamTimeout:    upstreamTimeout,
		UpstreamMaxRetries: maxRetries,

		ClientRateLimit: rateLimit,
		ClientBurst:     burst,
	}

	switch cfg.Provider {
	case ProviderGemini, ProviderAnthropic:
	default:
		return nil, fmt.Errorf("AI_PROVIDER must be gemini or anthropic: got %q", cfg.Provider)
	}
	if cfg.ClientRateLimit > 0 && cfg.ClientBurst == 0 {
		return nil, errors.New("CLIENT_BURST must be positive when CLIENT_RATE_LIMIT is set")
	}

	return cfg, nil
}

// APIKey returns the credential for the selected provider.
func (c *ProxyConfig) APIKey() string {
	if c.Provider == ProviderAnthropic {
		return c.AnthropicAPIKey
	}
	return c.GeminiAPIKey
}
