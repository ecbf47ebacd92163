// Package aiproxy is the prediction fetcher: it asks the AI proxy service for
// a zone probability and falls back to the local heuristic on any failure.
package aiproxy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/Cybert47/sistema-resilencia-climatica/internal/backoff"
	"github.com/Cybert47/sistema-resilencia-climatica/internal/domain"
	"github.com/Cybert47/sistema-resilencia-climatica/internal/observability"
)

// PredictPath is the proxy route for zone predictions.
const PredictPath = "/api/ai/gemini"

const maxResponseBytes = 64 << 10

// Request is the body sent to the AI proxy.
type Request struct {
	ZoneName        string                  `json:"zoneName"`
	WeatherSnapshot *domain.WeatherSnapshot `json:"weatherSnapshot"`
	AVCD            *float64                `json:"avcd"`
	CMSR            *float64                `json:"cmsr"`
}

// Client implements domain.PredictionFetcher against the AI proxy service.
type Client struct {
	baseURL    string
	httpClient *http.Client
	retrier    *backoff.Retrier
	timeout    time.Duration
	now        func() time.Time
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewClient creates a fetcher for the proxy at baseURL. timeout bounds a whole
// fetch including retries.
func NewClient(baseURL string, timeout time.Duration, retrier *backoff.Retrier, metrics *observability.Metrics, logger *slog.Logger) *Client {
	c := &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{},
		timeout:    timeout,
		now:        time.Now,
		metrics:    metrics,
		logger:     logger,
	}
	c.retrier = retrier.OnRetry(c.logRetry)
	return c
}

// FetchPrediction returns the proxy's estimate for the zone, or the local
// heuristic if the proxy fails, is rate limited past the retry budget, or
// answers without a usable probability. It never fails.
func (c *Client) FetchPrediction(ctx context.Context, zone domain.Zone, weather *domain.WeatherSnapshot) domain.PredictionResult {
	start := time.Now()
	defer func() { c.metrics.PredictionDuration.Observe(time.Since(start).Seconds()) }()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	result, err := c.fetch(ctx, zone, weather)
	if err != nil {
		c.logger.Warn("ai prediction failed, using local heuristic", "zone_id", zone.ID, "error", err)
		c.metrics.PredictionRequests.WithLabelValues(string(domain.SourceHeuristic)).Inc()
		return domain.ClientHeuristic(zone, weather)
	}

	c.metrics.PredictionRequests.WithLabelValues(string(result.Source)).Inc()
	return result
}

func (c *Client) fetch(ctx context.Context, zone domain.Zone, weather *domain.WeatherSnapshot) (domain.PredictionResult, error) {
	payload, err := json.Marshal(Request{
		ZoneName:        zone.Name,
		WeatherSnapshot: weather,
		AVCD:            &zone.AVCD,
		CMSR:            &zone.CMSR,
	})
	if err != nil {
		return domain.PredictionResult{}, fmt.Errorf("encode request: %w", err)
	}

	var result domain.PredictionResult
	err = c.retrier.Do(ctx, func(ctx context.Context) error {
		r, err := c.post(ctx, payload)
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	return result, err
}

func (c *Client) post(ctx context.Context, payload []byte) (domain.PredictionResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+PredictPath, bytes.NewReader(payload))
	if err != nil {
		return domain.PredictionResult{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.PredictionResult{}, fmt.Errorf("ai proxy request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return domain.PredictionResult{}, fmt.Errorf("read response: %w", err)
	}

	// The proxy already spent its retry budget upstream; retrying here would
	// multiply upstream calls.
	if resp.StatusCode == http.StatusTooManyRequests && bytes.Contains(body, []byte(backoff.ExhaustedMessage)) {
		return domain.PredictionResult{}, fmt.Errorf("ai proxy: %w (retry after %s)",
			backoff.ErrRetriesExhausted, resp.Header.Get("Retry-After"))
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return domain.PredictionResult{}, &backoff.RateLimitError{
			StatusCode: resp.StatusCode,
			RetryAfter: backoff.ParseRetryAfter(resp.Header.Get("Retry-After"), c.now()),
			Body:       string(body),
		}
	}
	if resp.StatusCode != http.StatusOK {
		return domain.PredictionResult{}, fmt.Errorf("ai proxy error: status %d: %s", resp.StatusCode, body)
	}

	result, err := domain.ParsePrediction(string(body))
	if err != nil {
		return domain.PredictionResult{}, fmt.Errorf("decode response: %w", err)
	}

	// The proxy marks answers it computed itself.
	var meta struct {
		Source domain.Source `json:"source"`
	}
	if json.Unmarshal(body, &meta) == nil && meta.Source == domain.SourceHeuristic {
		result.Source = domain.SourceHeuristic
	}
	return result, nil
}

func (c *Client) logRetry(attempt int, wait time.Duration, err error) {
	c.metrics.PredictionRetries.Inc()
	c.logger.Info("ai proxy rate limited, retrying", "attempt", attempt+1, "wait", wait, "error", err)
}
