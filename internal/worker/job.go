package worker

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nyashahama/climate-risk-backend/internal/events"
	"github.com/nyashahama/climate-risk-backend/internal/pipeline"
)

// Job holds the dependencies for delivering one completed run.
type Job struct {
	publisher events.Publisher
	logger    *slog.Logger
}

// NewJob constructs a Job.
func NewJob(publisher events.Publisher, logger *slog.Logger) *Job {
	return &Job{publisher: publisher, logger: logger}
}

// Run publishes ev. Any error is returned to the Runner, which retries up to
// MaxRetries times.
func (j *Job) Run(ctx context.Context, ev pipeline.RunEvent) error {
	if err := j.publisher.Publish(ctx, ev); err != nil {
		return fmt.Errorf("job: publish: %w", err)
	}
	j.logger.Debug("job: run delivered", "run_id", ev.RunID)
	return nil
}
