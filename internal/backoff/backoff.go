// Package backoff retries rate-limited calls with capped exponential backoff
// and jitter, honoring server-supplied Retry-After hints.
package backoff

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
)

// ErrRetriesExhausted matches any ExhaustedError.
var ErrRetriesExhausted = errors.New("max retries reached")

// ExhaustedMessage is the error body a service sends with its final 429 once
// its own retries are spent. Clients seeing it must not retry again.
const ExhaustedMessage = "Max retries reached (429)"

// Policy bounds the retry loop. Waits grow as Base*2^attempt up to Cap; a
// Retry-After hint replaces the computed wait but is limited to MaxRetryAfter.
type Policy struct {
	MaxRetries    int
	Base          time.Duration
	Cap           time.Duration
	MaxJitter     time.Duration
	MaxRetryAfter time.Duration
}

// DefaultPolicy allows 4 retries, starting at 1s and capped at 10s, with up
// to 300ms of jitter.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:    4,
		Base:          time.Second,
		Cap:           10 * time.Second,
		MaxJitter:     300 * time.Millisecond,
		MaxRetryAfter: time.Minute,
	}
}

// Delay returns the wait before retry number attempt (0-based), excluding
// jitter.
func (p Policy) Delay(attempt int, retryAfter time.Duration) time.Duration {
	if retryAfter > 0 {
		if p.MaxRetryAfter > 0 && retryAfter > p.MaxRetryAfter {
			return p.MaxRetryAfter
		}
		return retryAfter
	}
	d := p.Base
	for range attempt {
		d *= 2
		if p.Cap > 0 && d >= p.Cap {
			return p.Cap
		}
	}
	if p.Cap > 0 {
		return min(d, p.Cap)
	}
	return d
}

// RateLimitError signals a retryable rate-limit response.
type RateLimitError struct {
	StatusCode int
	RetryAfter time.Duration
	Body       string
}

func (e *RateLimitError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("rate limited: status %d", e.StatusCode)
	}
	return fmt.Sprintf("rate limited: status %d: %s", e.StatusCode, e.Body)
}

// ExhaustedError is returned when every retry was rate limited.
type ExhaustedError struct {
	Attempts int
	Last     *RateLimitError
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("max retries reached (429) after %d attempts", e.Attempts)
}

func (e *ExhaustedError) Is(target error) bool { return target == ErrRetriesExhausted }

func (e *ExhaustedError) Unwrap() error { return e.Last }

// RetryAfter returns the last server hint, if any.
func (e *ExhaustedError) RetryAfter() time.Duration {
	if e.Last == nil {
		return 0
	}
	return e.Last.RetryAfter
}

// Retrier runs an operation until it stops being rate limited.
type Retrier struct {
	policy  Policy
	clock   clockwork.Clock
	jitter  func(limit time.Duration) time.Duration
	onRetry func(attempt int, wait time.Duration, err error)
}

// New creates a Retrier. A nil clock uses real time.
func New(p Policy, clock clockwork.Clock) *Retrier {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Retrier{policy: p, clock: clock, jitter: randomJitter}
}

// WithJitter replaces the jitter source.
func (r *Retrier) WithJitter(fn func(limit time.Duration) time.Duration) *Retrier {
	c := *r
	c.jitter = fn
	return &c
}

// OnRetry registers a hook called before each wait.
func (r *Retrier) OnRetry(fn func(attempt int, wait time.Duration, err error)) *Retrier {
	c := *r
	c.onRetry = fn
	return &c
}

// Policy returns the configured policy.
func (r *Retrier) Policy() Policy { return r.policy }

// Do calls op and retries it while it returns a *RateLimitError, up to
// MaxRetries times. Any other error, or success, ends the loop immediately.
func (r *Retrier) Do(ctx context.Context, op func(ctx context.Context) error) error {
	for attempt := 0; ; attempt++ {
		err := op(ctx)
		var rl *RateLimitError
		if err == nil || !errors.As(err, &rl) {
			return err
		}
		if attempt >= r.policy.MaxRetries {
			return &ExhaustedError{Attempts: attempt + 1, Last: rl}
		}

		wait := r.policy.Delay(attempt, rl.RetryAfter)
		if r.jitter != nil && r.policy.MaxJitter > 0 {
			wait += r.jitter(r.policy.MaxJitter)
		}
		if r.onRetry != nil {
			r.onRetry(attempt, wait, err)
		}
		if !Sleep(ctx, r.clock, wait) {
			return ctx.Err()
		}
	}
}

// Sleep waits for d or until ctx is done. It returns false if ctx ended first.
func Sleep(ctx context.Context, clock clockwork.Clock, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
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

// ParseRetryAfter reads a Retry-After header given in seconds or as an HTTP
// date. Unparseable or past values yield 0.
func ParseRetryAfter(value string, now time.Time) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if secs, err := strconv.ParseFloat(value, 64); err == nil {
		if secs <= 0 {
			return 0
		}
		return time.Duration(secs * float64(time.Second))
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := at.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}

// FormatRetryAfter renders d as whole seconds for a Retry-After header,
// rounding up.
func FormatRetryAfter(d time.Duration) string {
	secs := int64((d + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return strconv.FormatInt(secs, 10)
}

func randomJitter(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	return time.Duration(rand.Int64N(int64(limit)))
}
