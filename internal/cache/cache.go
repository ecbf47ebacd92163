// Package cache holds the process-wide prediction per zone and persists it to
// an external store after every update.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Cybert47/sistema-resilencia-climatica/internal/domain"
	"github.com/Cybert47/sistema-resilencia-climatica/internal/observability"
)

// ErrNotFound is returned by a Store that holds nothing yet.
var ErrNotFound = errors.New("no persisted predictions")

// Store persists the serialized prediction map as a single blob.
type Store interface {
	Load(ctx context.Context) ([]byte, error)
	Save(ctx context.Context, data []byte) error
}

// Cache maps zone ids to their latest prediction. Entries are replaced whole;
// callers only ever receive copies.
type Cache struct {
	store   Store
	logger  *slog.Logger
	metrics *observability.Metrics

	mu      sync.RWMutex
	entries map[string]domain.ZonePrediction

	// flushMu is taken before mu is released so saves land in update order.
	flushMu sync.Mutex

	subMu   sync.Mutex
	subs    map[int]chan domain.ZonePrediction
	nextSub int
}

// New creates an empty cache backed by store.
func New(store Store, logger *slog.Logger, metrics *observability.Metrics) *Cache {
	return &Cache{
		store:   store,
		logger:  logger,
		metrics: metrics,
		entries: make(map[string]domain.ZonePrediction),
		subs:    make(map[int]chan domain.ZonePrediction),
	}
}

// Load replaces the in-memory state with the persisted one. Every entry is
// normalized: its color is recomputed from the probability, and entries
// without a usable probability become green and non-authoritative. A corrupt
// blob is logged and leaves the cache empty. Only a store read failure is
// returned.
func (c *Cache) Load(ctx context.Context) error {
	data, err := c.store.Load(ctx)
	if errors.Is(err, ErrNotFound) || (err == nil && len(data) == 0) {
		c.logger.Info("no persisted predictions found")
		return nil
	}
	if err != nil {
		return fmt.Errorf("load predictions: %w", err)
	}

	entries, err := decode(data)
	if err != nil {
		c.logger.Error("persisted predictions are corrupt, starting empty", "error", err)
		entries = map[string]domain.ZonePrediction{}
	}

	c.mu.Lock()
	c.entries = entries
	c.mu.Unlock()
	c.metrics.CacheEntries.Set(float64(len(entries)))

	c.logger.Info("predictions loaded", "entries", len(entries))
	return nil
}

// Get returns the prediction for a zone.
func (c *Cache) Get(zoneID string) (domain.ZonePrediction, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	zp, ok := c.entries[zoneID]
	return zp, ok
}

// Snapshot returns a copy of every entry.
func (c *Cache) Snapshot() map[string]domain.ZonePrediction {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]domain.ZonePrediction, len(c.entries))
	for k, v := range c.entries {
		out[k] = v
	}
	return out
}

// Len returns the number of cached zones.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Apply replaces one zone's entry from a single-zone event and flushes.
func (c *Cache) Apply(ctx context.Context, e domain.PredictionEvent) domain.ZonePrediction {
	zp := domain.FromEvent(e)
	c.Put(ctx, zp)
	return zp
}

// Put replaces one zone's entry and flushes.
func (c *Cache) Put(ctx context.Context, zp domain.ZonePrediction) {
	c.ReplaceMany(ctx, []domain.ZonePrediction{zp})
}

// ReplaceMany replaces the given entries in one step and flushes once. Zones
// not in preds keep their current value. A non-finite probability is stored
// as missing so the map always serializes.
func (c *Cache) ReplaceMany(ctx context.Context, preds []domain.ZonePrediction) {
	if len(preds) == 0 {
		return
	}

	c.mu.Lock()
	for i, zp := range preds {
		if zp.Probability != nil && !domain.IsFinite(*zp.Probability) {
			zp.Probability, zp.Authoritative, zp.Color = nil, false, domain.ColorGreen
			preds[i] = zp
		}
		c.entries[zp.ZoneID] = zp
	}
	n := len(c.entries)
	data, err := json.Marshal(c.entries)
	c.flushMu.Lock()
	c.mu.Unlock()

	c.metrics.CacheEntries.Set(float64(n))
	if err != nil {
		c.flushMu.Unlock()
		c.flushFailed(err)
	} else {
		c.flush(ctx, data)
	}

	for _, zp := range preds {
		c.publish(zp)
	}
}

// flush must be called with flushMu held; it releases it.
func (c *Cache) flush(ctx context.Context, data []byte) {
	defer c.flushMu.Unlock()

	// A caller's cancellation must not leave storage behind memory.
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	if err := c.store.Save(saveCtx, data); err != nil {
		c.flushFailed(err)
		return
	}
	c.metrics.CacheFlushes.WithLabelValues("success").Inc()
}

func (c *Cache) flushFailed(err error) {
	c.metrics.CacheFlushes.WithLabelValues("error").Inc()
	c.logger.Error("persist predictions failed, keeping in-memory state", "error", err)
}

// Subscribe returns a channel receiving every replaced entry, and a function
// that cancels the subscription. Sends never block: when the buffer is full
// the notification is dropped and counted.
func (c *Cache) Subscribe(buffer int) (<-chan domain.ZonePrediction, func()) {
	ch := make(chan domain.ZonePrediction, buffer)

	c.subMu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = ch
	c.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.subMu.Lock()
			delete(c.subs, id)
			c.subMu.Unlock()
			close(ch)
		})
	}
}

func (c *Cache) publish(zp domain.ZonePrediction) {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	for _, ch := range c.subs {
		select {
		case ch <- zp:
		default:
			c.metrics.CacheDroppedEvents.Inc()
		}
	}
}
