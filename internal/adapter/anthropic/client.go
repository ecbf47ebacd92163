// Package anthropic generates proxy answers with Claude through the official SDK.
package anthropic

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/Cybert47/sistema-resilencia-climatica/internal/backoff"
)

// ErrEmptyResponse is returned when the message has no text block.
var ErrEmptyResponse = errors.New("anthropic returned no text")

// Client wraps the SDK with retries disabled; rate limiting is reported as
// *backoff.RateLimitError so the proxy applies its own policy.
type Client struct {
	client anthropic.Client
	model  string
	now    func() time.Time
}

// NewClient creates a client. baseURL may be empty.
func NewClient(apiKey, model, baseURL string, timeout time.Duration) *Client {
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
		option.WithRequestTimeout(timeout),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &Client{
		client: anthropic.NewClient(opts...),
		model:  model,
		now:    time.Now,
	}
}

// Name identifies the upstream in logs.
func (c *Client) Name() string { return "anthropic" }

// Generate sends text as a single user message and joins the text blocks of
// the reply.
func (c *Client) Generate(ctx context.Context, text string) (string, error) {
	msg, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(c.model),
		MaxTokens:   300,
		Temperature: anthropic.Float(0.2),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(text)),
		},
	})
	if err != nil {
		return "", c.mapError(err)
	}

	var b strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	if b.Len() == 0 {
		return "", ErrEmptyResponse
	}
	return b.String(), nil
}

func (c *Client) mapError(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusTooManyRequests {
		rl := &backoff.RateLimitError{StatusCode: apiErr.StatusCode}
		if apiErr.Response != nil {
			rl.RetryAfter = backoff.ParseRetryAfter(apiErr.Response.Header.Get("Retry-After"), c.now())
		}
		return rl
	}
	return fmt.Errorf("anthropic request: %w", err)
}
