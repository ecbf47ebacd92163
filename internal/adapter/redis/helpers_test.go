package redis

import (
	"io"
	"log/slog"

	"github.com/Cybert47/sistema-resilencia-climatica/internal/domain"
	"github.com/Cybert47/sistema-resilencia-climatica/internal/observability"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func metricsForTesting() *observability.Metrics {
	return observability.NewMetricsForTesting()
}

func eventFor(zoneID string, p float64) domain.PredictionEvent {
	return domain.PredictionEvent{ZoneID: zoneID, Probability: domain.Float64(p)}
}
