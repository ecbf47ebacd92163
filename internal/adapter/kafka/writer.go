// Package kafka publishes prediction updates to a Kafka topic so other
// dashboard instances and downstream consumers can follow them.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/Cybert47/sistema-resilencia-climatica/internal/domain"
	"github.com/Cybert47/sistema-resilencia-climatica/internal/observability"
)

// EventType is the event_type header on every published message.
const EventType = "rcu:aiPrediction"

const publishTimeout = 10 * time.Second

// Message is the JSON value of a published prediction.
type Message struct {
	EventID string `json:"eventId"`
	domain.ZonePrediction
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Writer produces prediction messages keyed by zone id.
type Writer struct {
	writer  messageWriter
	metrics *observability.Metrics
	logger  *slog.Logger
	newID   func() string
}

// NewWriter creates a Kafka producer for topic.
func NewWriter(brokers []string, topic string, metrics *observability.Metrics, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
	}
	return newWriter(w, metrics, logger)
}

func newWriter(w messageWriter, metrics *observability.Metrics, logger *slog.Logger) *Writer {
	return &Writer{
		writer:  w,
		metrics: metrics,
		logger:  logger,
		newID:   uuid.NewString,
	}
}

// Publish writes the predictions in a single WriteMessages call. Keys are zone
// ids so every update for a zone lands on the same partition.
func (w *Writer) Publish(ctx context.Context, preds ...domain.ZonePrediction) error {
	if len(preds) == 0 {
		return nil
	}
	msgs := make([]kafkago.Message, len(preds))
	for i := range preds {
		msg, err := serializeToMessage(w.newID(), preds[i])
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	if err := w.writer.WriteMessages(ctx, msgs...); err != nil {
		w.metrics.EventPublishErrors.Inc()
		return fmt.Errorf("publish predictions: %w", err)
	}
	w.metrics.EventsPublished.Add(float64(len(msgs)))
	return nil
}

// Forward publishes every update received on updates until the channel is
// closed or ctx is done. Publish failures are logged and skipped.
func (w *Writer) Forward(ctx context.Context, updates <-chan domain.ZonePrediction) {
	for {
		select {
		case <-ctx.Done():
			return
		case zp, ok := <-updates:
			if !ok {
				return
			}
			pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
			if err := w.Publish(pubCtx, zp); err != nil {
				w.logger.Error("prediction event not published", "zone_id", zp.ZoneID, "error", err)
			}
			cancel()
		}
	}
}

// Close flushes pending messages and closes the underlying writer.
func (w *Writer) Close() error {
	return w.writer.Close()
}

// serializeToMessage marshals a ZonePrediction into a Kafka message.
func serializeToMessage(eventID string, zp domain.ZonePrediction) (kafkago.Message, error) {
	data, err := json.Marshal(Message{EventID: eventID, ZonePrediction: zp})
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize prediction: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(zp.ZoneID),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "event_type", Value: []byte(EventType)},
			{Key: "event_id", Value: []byte(eventID)},
			{Key: "processed_at", Value: []byte(zp.UpdatedAt.Format(time.RFC3339))},
		},
	}, nil
}
