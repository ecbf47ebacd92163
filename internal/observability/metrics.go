package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "rcu_engine"

// Metrics holds the Prometheus counters, histograms, and gauges for the risk
// engine and the AI proxy.
type Metrics struct {
	// Prediction fetcher.
	PredictionRequests *prometheus.CounterVec // labels: outcome={ai,heuristic}
	PredictionDuration prometheus.Histogram
	PredictionRetries  prometheus.Counter

	// Weather lookups.
	WeatherRequests    *prometheus.CounterVec // labels: outcome={success,error,disabled}
	WeatherCache       *prometheus.CounterVec // labels: result={hit,miss}
	WeatherAPIDuration prometheus.Histogram
	WeatherEnabled     prometheus.Gauge

	// Prediction cache.
	CacheEntries       prometheus.Gauge
	CacheFlushes       *prometheus.CounterVec // labels: outcome={success,error}
	CacheDroppedEvents prometheus.Counter

	// Bulk refresh.
	RefreshRunning  prometheus.Gauge
	RefreshDuration prometheus.Histogram
	RefreshZones    *prometheus.CounterVec // labels: outcome={success,error}

	// Event publishing.
	EventsPublished    prometheus.Counter
	EventPublishErrors prometheus.Counter

	// Geolocation.
	GeolocationRequests *prometheus.CounterVec // labels: outcome={success,error}

	// AI proxy.
	ProxyRequests         *prometheus.CounterVec // labels: outcome={model,heuristic,rate_limited,throttled,invalid,error}
	ProxyUpstreamDuration prometheus.Histogram
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(m.collectors()...)
	return m
}

// NewMetricsForTesting creates unregistered Metrics to avoid "already
// registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		PredictionRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "prediction_requests_total",
			Help:      "Zone predictions by the source that produced the probability.",
		}, []string{"outcome"}),
		PredictionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "prediction_duration_seconds",
			Help:      "Time to obtain a zone prediction, including retries and fallback.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		PredictionRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "prediction_retries_total",
			Help:      "Rate-limited AI proxy calls that were retried.",
		}),
		WeatherRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "weather_requests_total",
			Help:      "Weather lookups by outcome.",
		}, []string{"outcome"}),
		WeatherCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "weather_cache_total",
			Help:      "Weather cache lookups by result.",
		}, []string{"result"}),
		WeatherAPIDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "weather_api_duration_seconds",
			Help:      "Weather API request duration in seconds.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),
		WeatherEnabled: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "weather_enabled",
			Help:      "1 when weather lookups are enabled, 0 otherwise.",
		}),
		CacheEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cache_entries",
			Help:      "Zone predictions currently held in the cache.",
		}),
		CacheFlushes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_flushes_total",
			Help:      "Cache writes to persistent storage by outcome.",
		}, []string{"outcome"}),
		CacheDroppedEvents: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_dropped_notifications_total",
			Help:      "Prediction notifications dropped because a subscriber was full.",
		}),
		RefreshRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "refresh_running",
			Help:      "1 while the periodic refresh loop is active, 0 otherwise.",
		}),
		RefreshDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "refresh_duration_seconds",
			Help:      "Duration of a complete bulk refresh.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}),
		RefreshZones: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refresh_zones_total",
			Help:      "Zones processed by bulk refresh by outcome.",
		}, []string{"outcome"}),
		EventsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Prediction events written to Kafka.",
		}),
		EventPublishErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "event_publish_errors_total",
			Help:      "Prediction events that could not be written to Kafka.",
		}),
		GeolocationRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "geolocation_requests_total",
			Help:      "IP geolocation lookups by outcome.",
		}, []string{"outcome"}),
		ProxyRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "proxy_requests_total",
			Help:      "AI proxy requests by outcome.",
		}, []string{"outcome"}),
		ProxyUpstreamDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "proxy_upstream_duration_seconds",
			Help:      "Upstream model call duration including retries.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.PredictionRequests,
		m.PredictionDuration,
		m.PredictionRetries,
		m.WeatherRequests,
		m.WeatherCache,
		m.WeatherAPIDuration,
		m.WeatherEnabled,
		m.CacheEntries,
		m.CacheFlushes,
		m.CacheDroppedEvents,
		m.RefreshRunning,
		m.RefreshDuration,
		m.RefreshZones,
		m.EventsPublished,
		m.EventPublishErrors,
		m.GeolocationRequests,
		m.ProxyRequests,
		m.ProxyUpstreamDuration,
	}
}
