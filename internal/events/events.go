// Package events defines the sink for completed assessment runs and provides
// a Kafka-backed implementation plus a log-only one for local development.
package events

import (
	"context"
	"log/slog"

	"github.com/nyashahama/climate-risk-backend/internal/pipeline"
)

// Publisher is the interface the worker uses to emit completed runs.
// Tests inject a stub that records calls without hitting the network.
type Publisher interface {
	Publish(ctx context.Context, ev pipeline.RunEvent) error
	Close() error
}

// logPublisher writes each event to the logger. Used when no broker is
// configured so the worker path is the same in every environment.
type logPublisher struct {
	logger *slog.Logger
}

// NewLogPublisher returns a Publisher that only logs.
func NewLogPublisher(logger *slog.Logger) Publisher {
	return &logPublisher{logger: logger}
}

func (p *logPublisher) Publish(_ context.Context, ev pipeline.RunEvent) error {
	p.logger.Info("events: run completed",
		"run_id", ev.RunID,
		"mode", ev.Mode,
		"location", ev.Context.Location,
		"risk_parsed", ev.RiskParsed,
		"insights", len(ev.Insights),
	)
	return nil
}

func (p *logPublisher) Close() error { return nil }
