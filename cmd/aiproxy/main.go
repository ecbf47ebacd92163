// Command aiproxy serves POST /api/ai/gemini, turning zone descriptions into
// risk predictions from the configured model provider.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"

	"github.com/Cybert47/sistema-resilencia-climatica/internal/adapter/anthropic"
	"github.com/Cybert47/sistema-resilencia-climatica/internal/adapter/gemini"
	httpadapter "github.com/Cybert47/sistema-resilencia-climatica/internal/adapter/http"
	"github.com/Cybert47/sistema-resilencia-climatica/internal/backoff"
	"github.com/Cybert47/sistema-resilencia-climatica/internal/config"
	"github.com/Cybert47/sistema-resilencia-climatica/internal/observability"
	"github.com/Cybert47/sistema-resilencia-climatica/internal/proxy"
)

// alwaysReady reports the proxy ready as soon as it listens. Missing
// credentials are reported per request instead.
type alwaysReady struct{}

func (alwaysReady) CheckReadiness(context.Context) error { return nil }

func newGenerator(cfg *config.ProxyConfig) proxy.Generator {
	if cfg.APIKey() == "" {
		return nil
	}
	if cfg.Provider == config.ProviderAnthropic {
		return anthropic.NewClient(cfg.AnthropicAPIKey, cfg.AnthropicModel, "", cfg.UpstreamTimeout)
	}
	return gemini.NewClient(cfg.GeminiAPIKey, cfg.GeminiModel, cfg.GeminiBaseURL, cfg.UpstreamTimeout)
}

func main() {
	_ = godotenv.Load()

	cfg, err := config.LoadProxy()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := sharedobs.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()
	clock := clockwork.NewRealClock()

	gen := newGenerator(cfg)
	if gen == nil {
		logger.Warn("no model credentials configured; predictions will fail", "provider", cfg.Provider)
	} else {
		logger.Info("model provider configured", "provider", gen.Name())
	}

	policy := backoff.DefaultPolicy()
	policy.MaxRetries = cfg.UpstreamMaxRetries
	retrier := backoff.New(policy, clock)

	var limiter *proxy.ClientLimiter
	if cfg.ClientRateLimit > 0 {
		limiter = proxy.NewClientLimiter(cfg.ClientRateLimit, cfg.ClientBurst, clock, metrics)
		logger.Info("client rate limit enabled", "rps", cfg.ClientRateLimit, "burst", cfg.ClientBurst)
	}

	router := httpadapter.NewRouter(alwaysReady{}, logger)
	proxy.NewHandler(gen, retrier, limiter, metrics, logger).Routes(router)
	srv := httpadapter.NewServer(cfg.HTTPAddr, router, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}

	logger.Info("shutdown complete")
}
