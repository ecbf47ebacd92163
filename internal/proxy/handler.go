// Package proxy is the AI proxy service: it turns a zone description into a
// model prompt, forwards it to the configured upstream, and always answers
// with {probability, explanation} unless the upstream rate limit outlasts the
// retry budget.
package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Cybert47/sistema-resilencia-climatica/internal/backoff"
	"github.com/Cybert47/sistema-resilencia-climatica/internal/domain"
	"github.com/Cybert47/sistema-resilencia-climatica/internal/observability"
)

// Path is the prediction route.
const Path = "/api/ai/gemini"

const maxBodyBytes = 256 << 10

// Generator produces model text for a prompt. A rate-limited upstream must
// return *backoff.RateLimitError.
type Generator interface {
	Name() string
	Generate(ctx context.Context, prompt string) (string, error)
}

// Request is the proxy input. avcd and cmsr are kept raw so non-numeric
// values degrade instead of failing the decode.
type Request struct {
	ZoneName        string          `json:"zoneName"`
	WeatherSnapshot json.RawMessage `json:"weatherSnapshot"`
	AVCD            json.RawMessage `json:"avcd"`
	CMSR            json.RawMessage `json:"cmsr"`
}

// Response is the proxy output.
type Response struct {
	Probability *float64      `json:"probability"`
	Explanation string        `json:"explanation"`
	Source      domain.Source `json:"source"`
}

// Handler serves POST /api/ai/gemini.
type Handler struct {
	gen     Generator
	retrier *backoff.Retrier
	limiter *ClientLimiter
	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewHandler creates the proxy handler. gen may be nil when no credentials are
// configured; every request then fails with 500. limiter may be nil.
func NewHandler(gen Generator, retrier *backoff.Retrier, limiter *ClientLimiter, metrics *observability.Metrics, logger *slog.Logger) *Handler {
	h := &Handler{
		gen:     gen,
		limiter: limiter,
		metrics: metrics,
		logger:  logger,
	}
	h.retrier = retrier.OnRetry(h.logRetry)
	return h
}

// Routes registers the proxy route on r.
func (h *Handler) Routes(r chi.Router) {
	if h.limiter != nil {
		r.With(h.limiter.Middleware).Post(Path, h.handlePredict)
		return
	}
	r.Post(Path, h.handlePredict)
}

func (h *Handler) handlePredict(w http.ResponseWriter, r *http.Request) {
	var req Request
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		h.metrics.ProxyRequests.WithLabelValues("invalid").Inc()
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if strings.TrimSpace(req.ZoneName) == "" {
		h.metrics.ProxyRequests.WithLabelValues("invalid").Inc()
		writeError(w, http.StatusBadRequest, "Missing zoneName")
		return
	}
	if h.gen == nil {
		h.metrics.ProxyRequests.WithLabelValues("error").Inc()
		h.logger.Error("ai proxy has no upstream credentials")
		writeError(w, http.StatusInternalServerError, "No credentials available (set GEMINI_API_KEY or ANTHROPIC_API_KEY)")
		return
	}

	text, err := h.generate(r.Context(), BuildPrompt(req))

	var exhausted *backoff.ExhaustedError
	switch {
	case errors.As(err, &exhausted):
		h.metrics.ProxyRequests.WithLabelValues("rate_limited").Inc()
		h.logger.Warn("upstream rate limit persisted", "zone_name", req.ZoneName, "attempts", exhausted.Attempts)
		w.Header().Set("Retry-After", backoff.FormatRetryAfter(exhausted.RetryAfter()))
		writeError(w, http.StatusTooManyRequests, backoff.ExhaustedMessage)
		return
	case err != nil:
		h.logger.Warn("upstream call failed, answering with heuristic", "zone_name", req.ZoneName, "upstream", h.gen.Name(), "error", err)
		h.writeHeuristic(w, req)
		return
	}

	result, err := domain.ParsePrediction(text)
	if err != nil {
		h.logger.Warn("model answer was not structured, answering with heuristic", "zone_name", req.ZoneName, "text", truncate(text, 200))
		h.writeHeuristic(w, req)
		return
	}

	h.metrics.ProxyRequests.WithLabelValues("model").Inc()
	writeJSON(w, http.StatusOK, Response{
		Probability: result.Probability,
		Explanation: result.Explanation,
		Source:      domain.SourceAI,
	})
}

func (h *Handler) generate(ctx context.Context, prompt string) (string, error) {
	start := time.Now()
	defer func() { h.metrics.ProxyUpstreamDuration.Observe(time.Since(start).Seconds()) }()

	var text string
	err := h.retrier.Do(ctx, func(ctx context.Context) error {
		t, err := h.gen.Generate(ctx, prompt)
		if err != nil {
			return err
		}
		text = t
		return nil
	})
	return text, err
}

func (h *Handler) writeHeuristic(w http.ResponseWriter, req Request) {
	h.metrics.ProxyRequests.WithLabelValues("heuristic").Inc()

	var weather *domain.WeatherSnapshot
	if isPresent(req.WeatherSnapshot) {
		var ws domain.WeatherSnapshot
		if json.Unmarshal(req.WeatherSnapshot, &ws) == nil {
			weather = &ws
		}
	}
	result := domain.ProxyHeuristic(weather, rawNumber(req.AVCD), rawNumber(req.CMSR))
	writeJSON(w, http.StatusOK, Response{
		Probability: result.Probability,
		Explanation: result.Explanation,
		Source:      domain.SourceHeuristic,
	})
}

func (h *Handler) logRetry(attempt int, wait time.Duration, err error) {
	h.logger.Info("upstream rate limited, retrying", "attempt", attempt+1, "wait", wait, "error", err)
}

// BuildPrompt renders the model prompt. Missing values render as null.
func BuildPrompt(req Request) string {
	return fmt.Sprintf("Analiza riesgo de siniestro en la zona \"%s\".\nAVCD=%s, CMSR=%s.\nClima: %s\n\nDevuelve SOLO un JSON con {\"probability\": number, \"explanation\": string}.",
		req.ZoneName, rawText(req.AVCD), rawText(req.CMSR), rawText(req.WeatherSnapshot))
}

func isPresent(raw json.RawMessage) bool {
	s := strings.TrimSpace(string(raw))
	return s != "" && s != "null"
}

func rawText(raw json.RawMessage) string {
	if !isPresent(raw) {
		return "null"
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	return strings.TrimSpace(string(raw))
}

// rawNumber reads a JSON number or numeric string.
func rawNumber(raw json.RawMessage) *float64 {
	if !isPresent(raw) {
		return nil
	}
	var f float64
	if json.Unmarshal(raw, &f) == nil {
		return &f
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		if v, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
			return &v
		}
	}
	return nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // client may have gone away
}
