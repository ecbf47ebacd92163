// Command riskd serves the zone risk dashboard API: zone assessments,
// prediction refreshes, locate-me and the persisted prediction cache.
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

	"github.com/Cybert47/sistema-resilencia-climatica/internal/adapter/aiproxy"
	"github.com/Cybert47/sistema-resilencia-climatica/internal/adapter/filestore"
	"github.com/Cybert47/sistema-resilencia-climatica/internal/adapter/geoip"
	httpadapter "github.com/Cybert47/sistema-resilencia-climatica/internal/adapter/http"
	kafkaadapter "github.com/Cybert47/sistema-resilencia-climatica/internal/adapter/kafka"
	"github.com/Cybert47/sistema-resilencia-climatica/internal/adapter/openweather"
	redisadapter "github.com/Cybert47/sistema-resilencia-climatica/internal/adapter/redis"
	"github.com/Cybert47/sistema-resilencia-climatica/internal/backoff"
	"github.com/Cybert47/sistema-resilencia-climatica/internal/cache"
	"github.com/Cybert47/sistema-resilencia-climatica/internal/config"
	"github.com/Cybert47/sistema-resilencia-climatica/internal/domain"
	"github.com/Cybert47/sistema-resilencia-climatica/internal/engine"
	"github.com/Cybert47/sistema-resilencia-climatica/internal/observability"
	"github.com/Cybert47/sistema-resilencia-climatica/internal/pipeline"
	"github.com/Cybert47/sistema-resilencia-climatica/internal/registry"
)

// readiness reports ready only when every check passes.
type readiness []sharedobs.ReadinessChecker

func (r readiness) CheckReadiness(ctx context.Context) error {
	for _, c := range r {
		if err := c.CheckReadiness(ctx); err != nil {
			return err
		}
	}
	return nil
}

func main() {
	// A missing .env file is fine; the environment may already be set.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := sharedobs.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg, err := registry.Load(cfg.ZonesFile)
	if err != nil {
		logger.Error("failed to load zones", "error", err, "file", cfg.ZonesFile)
		os.Exit(1)
	}
	logger.Info("zones loaded", "count", reg.Len())

	// Initialize weather provider (feature-flagged via WEATHER_ENABLED / OWM_KEY).
	var weather domain.WeatherProvider
	if cfg.WeatherEnabled {
		client := openweather.NewClient(cfg.WeatherKey, cfg.WeatherBaseURL, cfg.WeatherTimeout, metrics, logger)
		weather = openweather.NewCachedProvider(client, cfg.WeatherCacheSize, cfg.WeatherCacheTTL, clockwork.NewRealClock(), metrics)
		metrics.WeatherEnabled.Set(1)
		logger.Info("weather enabled", "cache_size", cfg.WeatherCacheSize, "ttl", cfg.WeatherCacheTTL)
	} else {
		logger.Info("weather disabled")
	}

	policy := backoff.DefaultPolicy()
	policy.MaxRetries = cfg.AIMaxRetries
	fetcher := aiproxy.NewClient(cfg.AIProxyURL, cfg.PredictionTimeout, backoff.New(policy, clockwork.NewRealClock()), metrics, logger)

	checks := readiness{}
	var store cache.Store
	switch cfg.CacheBackend {
	case config.CacheBackendRedis:
		client, err := redisadapter.NewClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			logger.Error("failed to connect to redis", "error", err, "addr", cfg.RedisAddr)
			os.Exit(1)
		}
		defer func() {
			if err := client.Close(); err != nil {
				logger.Error("redis close error", "error", err)
			}
		}()
		redisStore := redisadapter.NewStore(client, cfg.CacheKey)
		checks = append(checks, redisStore)
		store = redisStore
	case config.CacheBackendMemory:
		store = cache.NewMemoryStore()
	default:
		store = filestore.New(cfg.CacheFile)
	}
	logger.Info("prediction cache", "backend", cfg.CacheBackend)

	predictions := cache.New(store, logger, metrics)
	if err := predictions.Load(ctx); err != nil {
		logger.Warn("prediction cache not restored, starting empty", "error", err)
	}

	var writer *kafkaadapter.Writer
	if cfg.KafkaEnabled {
		writer = kafkaadapter.NewWriter(cfg.KafkaBrokers, cfg.KafkaTopic, metrics, logger)
		updates, unsubscribe := predictions.Subscribe(64)
		defer unsubscribe()
		go writer.Forward(ctx, updates)
		logger.Info("prediction events enabled", "topic", cfg.KafkaTopic, "brokers", cfg.KafkaBrokers)
	}

	var locator domain.IPLocator
	var geo *geoip.Locator
	if cfg.GeoIPDBPath != "" {
		geo, err = geoip.Open(cfg.GeoIPDBPath, metrics)
		if err != nil {
			logger.Error("failed to open geoip database", "error", err, "path", cfg.GeoIPDBPath)
			os.Exit(1)
		}
		locator = geo
	}

	eng := engine.New(reg, predictions, fetcher, weather, locator, engine.Options{
		ConfidenceThreshold: cfg.ConfidenceThreshold,
		GeolocationTimeout:  cfg.GeolocationTimeout,
	}, logger)

	refresher := pipeline.New(reg, weather, eng.Fetcher(), predictions, pipeline.Options{
		ZoneTimeout: cfg.PredictionTimeout,
		Interval:    cfg.RefreshInterval,
		Rate:        cfg.RefreshRate,
	}, logger, metrics)
	checks = append(checks, refresher)

	router := httpadapter.NewRouter(checks, logger)
	httpadapter.NewDashboard(eng, refresher, logger).Routes(router)
	srv := httpadapter.NewServer(cfg.HTTPAddr, router, logger)

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	// Start periodic refresh.
	go func() {
		if err := refresher.Run(ctx); err != nil {
			logger.Error("refresh loop error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if writer != nil {
		if err := writer.Close(); err != nil {
			logger.Error("kafka writer close error", "error", err)
		}
	}
	if geo != nil {
		if err := geo.Close(); err != nil {
			logger.Error("geoip close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
}
