package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// Cache storage backends.
const (
	CacheBackendFile   = "file"
	CacheBackendRedis  = "redis"
	CacheBackendMemory = "memory"
)

// Config holds the risk engine settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// ZonesFile is an optional GeoJSON file replacing the built-in zones.
	ZonesFile string

	// AI proxy client configuration.
	AIProxyURL          string
	ConfidenceThreshold float64
	PredictionTimeout   time.Duration
	AIMaxRetries        int

	// OpenWeatherMap configuration.
	WeatherKey       string
	WeatherEnabled   bool
	WeatherBaseURL   string
	WeatherTimeout   time.Duration
	WeatherCacheSize int
	WeatherCacheTTL  time.Duration

	// Prediction cache persistence.
	CacheBackend  string
	CacheFile     string
	CacheKey      string
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Prediction event publishing.
	KafkaEnabled bool
	KafkaBrokers []string
	KafkaTopic   string

	// IP geolocation.
	GeoIPDBPath        string
	GeolocationTimeout time.Duration

	// Periodic bulk refresh. A zero interval disables the loop.
	RefreshInterval time.Duration
	RefreshRate     float64
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	threshold, err := parseFloat("AI_CONFIDENCE_THRESHOLD", 45)
	if err != nil {
		return nil, err
	}
	predictionTimeout, err := parsePositiveDuration("PREDICTION_TIMEOUT", "30s")
	if err != nil {
		return nil, err
	}
	aiMaxRetries, err := parseNonNegativeInt("AI_MAX_RETRIES", 4)
	if err != nil {
		return nil, err
	}
	weatherTimeout, err := parsePositiveDuration("WEATHER_TIMEOUT", "5s")
	if err != nil {
		return nil, err
	}
	weatherCacheTTL, err := parsePositiveDuration("WEATHER_CACHE_TTL", "10m")
	if err != nil {
		return nil, err
	}
	redisDB, err := parseNonNegativeInt("REDIS_DB", 0)
	if err != nil {
		return nil, err
	}
	geolocationTimeout, err := parsePositiveDuration("GEOLOCATION_TIMEOUT", "5s")
	if err != nil {
		return nil, err
	}
	refreshInterval, err := parseDuration("REFRESH_INTERVAL", "0s")
	if err != nil {
		return nil, err
	}
	refreshRate, err := parseFloat("REFRESH_RATE", 2)
	if err != nil {
		return nil, err
	}

	weatherKey := os.Getenv("OWM_KEY")
	weatherEnabled := weatherKey != ""
	if v := os.Getenv("WEATHER_ENABLED"); v != "" {
		weatherEnabled = v == "true"
	}

	cfg := &Config{
		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,
		ZonesFile:       os.Getenv("ZONES_FILE"),

		AIProxyURL:          strings.TrimRight(sharedcfg.EnvOrDefault("AI_PROXY_URL", "http://localhost:3001"), "/"),
		ConfidenceThreshold: threshold,
		PredictionTimeout:   predictionTimeout,
		AIMaxRetries:        aiMaxRetries,

		WeatherKey:       weatherKey,
		WeatherEnabled:   weatherEnabled,
		WeatherBaseURL:   sharedcfg.EnvOrDefault("WEATHER_BASE_URL", "https://api.openweathermap.org/data/2.5"),
		WeatherTimeout:   weatherTimeout,
		WeatherCacheSize: parseCacheSize("WEATHER_CACHE_SIZE", 256),
		WeatherCacheTTL:  weatherCacheTTL,

		CacheBackend:  strings.ToLower(sharedcfg.EnvOrDefault("CACHE_BACKEND", CacheBackendFile)),
		CacheFile:     sharedcfg.EnvOrDefault("CACHE_FILE", "rcu-ai-zone-colors.json"),
		CacheKey:      sharedcfg.EnvOrDefault("CACHE_KEY", "rcu:aiZoneColors"),
		RedisAddr:     sharedcfg.EnvOrDefault("REDIS_ADDR", "localhost:6379"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       redisDB,

		KafkaEnabled: os.Getenv("KAFKA_ENABLED") == "true",
		KafkaBrokers: sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaTopic:   sharedcfg.EnvOrDefault("KAFKA_TOPIC", "zone-predictions"),

		GeoIPDBPath:        os.Getenv("GEOIP_DB_PATH"),
		GeolocationTimeout: geolocationTimeout,

		RefreshInterval: refreshInterval,
		RefreshRate:     refreshRate,
	}

	if cfg.ConfidenceThreshold <= 0 || cfg.ConfidenceThreshold > 100 {
		return nil, errors.New("AI_CONFIDENCE_THRESHOLD must be in (0, 100]")
	}
	if cfg.RefreshInterval < 0 {
		return nil, errors.New("invalid REFRESH_INTERVAL")
	}
	if cfg.RefreshRate <= 0 {
		return nil, errors.New("REFRESH_RATE must be positive")
	}
	switch cfg.CacheBackend {
	case CacheBackendFile, CacheBackendRedis, CacheBackendMemory:
	default:
		return nil, fmt.Errorf("CACHE_BACKEND must be one of file, redis, memory: got %q", cfg.CacheBackend)
	}
	if cfg.CacheBackend == CacheBackendFile && cfg.CacheFile == "" {
		return nil, errors.New("CACHE_FILE is required for the file cache backend")
	}
	if cfg.WeatherEnabled && cfg.WeatherKey == "" {
		return nil, errors.New("WEATHER_ENABLED is true but OWM_KEY is not set")
	}
	if cfg.KafkaEnabled && len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("KAFKA_BROKERS is required when KAFKA_ENABLED is true")
	}
	if cfg.KafkaEnabled && cfg.KafkaTopic == "" {
		return nil, errors.New("KAFKA_TOPIC is required when KAFKA_ENABLED is true")
	}

	return cfg, nil
}

func parseDuration(name, def string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(name, def))
	if err != nil {
		return 0, errors.New("invalid " + name)
	}
	return d, nil
}

func parsePositiveDuration(name, def string) (time.Duration, error) {
	d, err := parseDuration(name, def)
	if err != nil || d <= 0 {
		return 0, errors.New("invalid " + name)
	}
	return d, nil
}

func parseFloat(name string, def float64) (float64, error) {
	s := os.Getenv(name)
	if s == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, errors.New("invalid " + name)
	}
	return f, nil
}

func parseNonNegativeInt(name string, def int) (int, error) {
	s := os.Getenv(name)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, errors.New("invalid " + name)
	}
	return n, nil
}

func parseCacheSize(name string, def int) int {
	if s := os.Getenv(name); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			return n
		}
	}
	return def
}
