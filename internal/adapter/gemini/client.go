// Package gemini calls the Google Generative Language generateText endpoint.
package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Cybert47/sistema-resilencia-climatica/internal/backoff"
)

// DefaultBaseURL is the public Generative Language API root.
const DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta2"

const maxResponseBytes = 1 << 20

// ErrEmptyResponse is returned when the model answers without any candidate text.
var ErrEmptyResponse = errors.New("gemini returned no text")

type generateRequest struct {
	Prompt          prompt  `json:"prompt"`
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
}

type prompt struct {
	Text string `json:"text"`
}

// Client sends a single prompt per call. It does not retry: a 429 is
// surfaced as *backoff.RateLimitError for the caller's retrier.
type Client struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
	now        func() time.Time
}

// NewClient creates a Gemini client for model (e.g. "models/gemini-1.0").
func NewClient(apiKey, model, baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		apiKey:     apiKey,
		model:      model,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		now:        time.Now,
	}
}

// Name identifies the upstream in logs.
func (c *Client) Name() string { return "gemini" }

// Generate returns the first candidate's text.
func (c *Client) Generate(ctx context.Context, text string) (string, error) {
	payload, err := json.Marshal(generateRequest{
		Prompt:          prompt{Text: text},
		Temperature:     0.2,
		MaxOutputTokens: 300,
	})
	if err != nil {
		return "", fmt.Errorf("encode request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/%s:generateText", c.baseURL, c.model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("gemini request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return "", &backoff.RateLimitError{
			StatusCode: resp.StatusCode,
			RetryAfter: backoff.ParseRetryAfter(resp.Header.Get("Retry-After"), c.now()),
			Body:       string(body),
		}
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("gemini API error: status %d: %s", resp.StatusCode, body)
	}

	out, err := extractText(body)
	if err != nil {
		return "", err
	}
	return out, nil
}

// extractText accepts the candidate shapes seen across API revisions:
// output as a list of parts, output as a string, or content as a string.
func extractText(body []byte) (string, error) {
	var resp struct {
		Candidates []struct {
			Output  json.RawMessage `json:"output"`
			Content json.RawMessage `json:"content"`
		} `json:"candidates"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if len(resp.Candidates) == 0 {
		return "", ErrEmptyResponse
	}
	cand := resp.Candidates[0]

	var parts []struct {
		Content string `json:"content"`
	}
	if json.Unmarshal(cand.Output, &parts) == nil && len(parts) > 0 && parts[0].Content != "" {
		return parts[0].Content, nil
	}
	var s string
	if json.Unmarshal(cand.Output, &s) == nil && s != "" {
		return s, nil
	}
	if json.Unmarshal(cand.Content, &s) == nil && s != "" {
		return s, nil
	}
	return "", ErrEmptyResponse
}
