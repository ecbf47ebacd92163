// Package pipeline runs bulk prediction refreshes: weather then prediction for
// every requested zone, independently, with the results stored in one step.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/storm-data-shared/retry"
	"github.com/jonboulle/clockwork"
	"golang.org/x/time/rate"

	"github.com/Cybert47/sistema-resilencia-climatica/internal/domain"
	"github.com/Cybert47/sistema-resilencia-climatica/internal/observability"
)

// ZoneSource resolves the zones to refresh.
type ZoneSource interface {
	IDs() []string
	ByID(id string) (domain.Zone, error)
}

// PredictionStore receives the successful subset of a refresh.
type PredictionStore interface {
	ReplaceMany(ctx context.Context, preds []domain.ZonePrediction)
}

// Options tunes a Refresher. Zero values select the defaults.
type Options struct {
	// ZoneTimeout bounds weather plus prediction for one zone.
	ZoneTimeout time.Duration
	// Interval between scheduled rounds; 0 disables Run's loop.
	Interval time.Duration
	// Rate is the maximum zones started per second; 0 means unlimited.
	Rate  float64
	Clock clockwork.Clock
}

// Refresher orchestrates bulk refreshes.
type Refresher struct {
	zones   ZoneSource
	weather domain.WeatherProvider
	fetcher domain.PredictionFetcher
	store   PredictionStore
	limiter *rate.Limiter
	opts    Options
	logger  *slog.Logger
	metrics *observability.Metrics
	ready   atomic.Bool
}

// New creates a Refresher. weather may be nil.
func New(zones ZoneSource, weather domain.WeatherProvider, fetcher domain.PredictionFetcher, store PredictionStore, opts Options, logger *slog.Logger, metrics *observability.Metrics) *Refresher {
	if opts.ZoneTimeout <= 0 {
		opts.ZoneTimeout = 30 * time.Second
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	limit := rate.Inf
	if opts.Rate > 0 {
		limit = rate.Limit(opts.Rate)
	}
	return &Refresher{
		zones:   zones,
		weather: weather,
		fetcher: fetcher,
		store:   store,
		limiter: rate.NewLimiter(limit, 1),
		opts:    opts,
		logger:  logger,
		metrics: metrics,
	}
}

// CheckReadiness returns nil once a round has completed, or immediately when
// scheduled refresh is disabled.
func (r *Refresher) CheckReadiness(_ context.Context) error {
	if r.opts.Interval > 0 && !r.ready.Load() {
		return errors.New("first prediction refresh has not completed yet")
	}
	return nil
}

// Refresh updates the given zones, or every zone when ids is empty. One zone
// failing never stops the others; failures are returned together as a
// domain.MultiError alongside the predictions that were stored.
func (r *Refresher) Refresh(ctx context.Context, ids []string) ([]domain.ZonePrediction, error) {
	if len(ids) == 0 {
		ids = r.zones.IDs()
	}

	start := time.Now()
	r.metrics.RefreshRunning.Set(1)
	defer r.metrics.RefreshRunning.Set(0)

	var errs domain.MultiError
	preds := make([]domain.ZonePrediction, 0, len(ids))

	for i, id := range ids {
		if err := r.limiter.Wait(ctx); err != nil {
			for _, rest := range ids[i:] {
				errs.Add(domain.ZoneError{ZoneID: rest, Stage: "canceled", Err: err})
			}
			break
		}

		zp, err := r.refreshZone(ctx, id, &errs)
		if err != nil {
			r.metrics.RefreshZones.WithLabelValues("error").Inc()
			errs.Add(err)
			continue
		}
		r.metrics.RefreshZones.WithLabelValues("success").Inc()
		preds = append(preds, zp)
	}

	r.store.ReplaceMany(ctx, preds)
	r.metrics.RefreshDuration.Observe(time.Since(start).Seconds())

	r.logger.Info("prediction refresh finished",
		"requested", len(ids),
		"updated", len(preds),
		"errors", len(errs.Errors),
		"duration", time.Since(start),
	)
	return preds, errs.ErrOrNil()
}

// refreshZone returns an error only when the zone produced no prediction.
// A weather failure is recorded in errs and the prediction proceeds without
// weather context.
func (r *Refresher) refreshZone(ctx context.Context, id string, errs *domain.MultiError) (domain.ZonePrediction, error) {
	zone, err := r.zones.ByID(id)
	if err != nil {
		return domain.ZonePrediction{}, domain.ZoneError{ZoneID: id, Stage: "lookup", Err: err}
	}

	zctx, cancel := context.WithTimeout(ctx, r.opts.ZoneTimeout)
	defer cancel()

	var weather *domain.WeatherSnapshot
	if r.weather != nil {
		weather, err = r.weather.CurrentWeather(zctx, zone.WeatherPoint())
		if err != nil {
			r.logger.Warn("weather lookup failed, predicting without it", "zone_id", id, "error", err)
			errs.Add(domain.ZoneError{ZoneID: id, Stage: "weather", Err: err})
			weather = nil
		}
	}

	result := r.fetcher.FetchPrediction(zctx, zone, weather)
	if err := ctx.Err(); err != nil {
		return domain.ZonePrediction{}, domain.ZoneError{ZoneID: id, Stage: "predict", Err: err}
	}
	return domain.FromResult(id, result), nil
}

// Run refreshes every zone on the configured interval until ctx is cancelled.
// A round that reports errors is retried sooner, with exponential backoff
// capped at the interval.
func (r *Refresher) Run(ctx context.Context) error {
	if r.opts.Interval <= 0 {
		r.logger.Info("scheduled prediction refresh disabled")
		return nil
	}
	r.logger.Info("prediction refresher started", "interval", r.opts.Interval)

	backoff := initialBackoff
	for {
		_, err := r.Refresh(ctx, nil)
		r.ready.Store(true)
		if ctx.Err() != nil {
			r.logger.Info("prediction refresher stopping", "reason", ctx.Err())
			return nil
		}

		wait := r.opts.Interval
		if err != nil {
			r.logger.Error("prediction refresh had failures", "error", err)
			wait = min(backoff, r.opts.Interval)
			backoff = retry.NextBackoff(backoff, r.opts.Interval)
		} else {
			backoff = initialBackoff
		}

		if !sleepWithContext(ctx, r.opts.Clock, wait) {
			r.logger.Info("prediction refresher stopping", "reason", ctx.Err())
			return nil
		}
	}
}

const initialBackoff = 5 * time.Second

func sleepWithContext(ctx context.Context, clock clockwork.Clock, d time.Duration) bool {
	if d <= 0 {
		return true
	}

	timer := clock.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.Chan():
		return true
	}
}

