package proxy

import (
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/time/rate"

	"github.com/Cybert47/sistema-resilencia-climatica/internal/backoff"
	"github.com/Cybert47/sistema-resilencia-climatica/internal/observability"
)

const idleLimiterTTL = 10 * time.Minute

type clientEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// ClientLimiter applies a token bucket per client IP.
type ClientLimiter struct {
	mu       sync.Mutex
	clients  map[string]*clientEntry
	limit    rate.Limit
	burst    int
	clock    clockwork.Clock
	lastScan time.Time
	metrics  *observability.Metrics
}

// NewClientLimiter allows rps sustained requests per client with the given
// burst. A nil clock uses real time.
func NewClientLimiter(rps float64, burst int, clock clockwork.Clock, metrics *observability.Metrics) *ClientLimiter {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &ClientLimiter{
		clients:  make(map[string]*clientEntry),
		limit:    rate.Limit(rps),
		burst:    burst,
		clock:    clock,
		lastScan: clock.Now(),
		metrics:  metrics,
	}
}

// Allow reports whether key may make a request now.
func (l *ClientLimiter) Allow(key string) bool {
	now := l.clock.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.lastScan) > idleLimiterTTL {
		for k, e := range l.clients {
			if now.Sub(e.lastSeen) > idleLimiterTTL {
				delete(l.clients, k)
			}
		}
		l.lastScan = now
	}

	e, ok := l.clients[key]
	if !ok {
		e = &clientEntry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.clients[key] = e
	}
	e.lastSeen = now
	return e.limiter.AllowN(now, 1)
}

// Middleware rejects requests over the limit with 429.
func (l *ClientLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.Allow(clientIP(r)) {
			l.metrics.ProxyRequests.WithLabelValues("throttled").Inc()
			w.Header().Set("Retry-After", backoff.FormatRetryAfter(l.retryAfter()))
			writeError(w, http.StatusTooManyRequests, "Too many requests")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (l *ClientLimiter) retryAfter() time.Duration {
	if l.limit <= 0 {
		return time.Minute
	}
	return time.Duration(float64(time.Second) / float64(l.limit))
}

func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
