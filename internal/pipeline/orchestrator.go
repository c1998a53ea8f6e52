// Package pipeline sequences the two model calls of an assessment run and
// owns the resulting state:
//
//  1. Reject blank locations before anything else happens.
//  2. Call the model with the assess or predict prompt.
//  3. Parse the reply (fallback on malformed text) and publish Results.
//  4. Call the model with the insights prompt; failures here are contained.
//  5. Clear loading and hand the completed run to the RunSink.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/nyashahama/climate-risk-backend/internal/ai"
	"github.com/nyashahama/climate-risk-backend/internal/climate"
	"github.com/nyashahama/climate-risk-backend/internal/observability"
)

// ErrRunInProgress is returned when an entry point is called while another
// run is still loading. State is left untouched.
var ErrRunInProgress = errors.New("pipeline: an assessment is already in progress")

// User-facing alerts for a failed risk call.
const (
	AlertAssessFailed  = "AI analysis failed. Please check your API key."
	AlertPredictFailed = "AI prediction failed. Please check your API key."
)

// RunSink receives completed runs. The concrete implementation is
// *worker.Runner; Enqueue must not block.
type RunSink interface {
	Enqueue(ctx context.Context, ev RunEvent) error
}

// subscriberBuffer is the per-subscriber channel capacity. A subscriber that
// falls this far behind misses intermediate snapshots.
const subscriberBuffer = 8

// Orchestrator runs assessments. It allows one run at a time.
type Orchestrator struct {
	completer ai.Completer
	sink      RunSink
	metrics   *observability.Metrics
	clock     clockwork.Clock
	logger    *slog.Logger

	running atomic.Bool

	mu      sync.Mutex
	state   State
	subs    map[int]chan State
	nextSub int
}

// New constructs an Orchestrator. sink may be nil. A nil clock means the
// real clock.
func New(
	completer ai.Completer,
	sink RunSink,
	metrics *observability.Metrics,
	clock clockwork.Clock,
	logger *slog.Logger,
) *Orchestrator {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Orchestrator{
		completer: completer,
		sink:      sink,
		metrics:   metrics,
		clock:     clock,
		logger:    logger,
		state:     State{UpdatedAt: clock.Now()},
		subs:      make(map[int]chan State),
	}
}

// ─── ENTRY POINTS ─────────────────────────────────────────────────────────────

// RunAssessment assesses current risk for c. See run for the error contract.
func (o *Orchestrator) RunAssessment(ctx context.Context, c climate.AssessmentContext) (State, error) {
	return o.run(ctx, climate.ModeAssess, c)
}

// RunPrediction projects risk for c over its timeframe and scenario.
func (o *Orchestrator) RunPrediction(ctx context.Context, c climate.AssessmentContext) (State, error) {
	return o.run(ctx, climate.ModePredict, c)
}

// run returns the state as it stood when the run ended, and:
//   - climate.ErrEmptyLocation: nothing happened, no model call was made.
//   - ErrRunInProgress: another run holds the slot, nothing happened.
//   - an error wrapping ai.ErrTransport: the risk call failed; Alert is set,
//     Results and Insights are unchanged.
//
// A failed insights call is not an error.
func (o *Orchestrator) run(ctx context.Context, mode climate.Mode, c climate.AssessmentContext) (State, error) {
	if !c.HasLocation() {
		o.metrics.Runs.WithLabelValues(string(mode), "validation").Inc()
		return o.Snapshot(), climate.ErrEmptyLocation
	}

	if !o.running.CompareAndSwap(false, true) {
		o.metrics.Runs.WithLabelValues(string(mode), "rejected").Inc()
		return o.Snapshot(), ErrRunInProgress
	}
	defer o.running.Store(false)

	o.metrics.RunsInFlight.Set(1)
	defer o.metrics.RunsInFlight.Set(0)

	runID := uuid.New().String()
	startedAt := o.clock.Now()
	log := o.logger.With("run_id", runID, "mode", mode, "location", c.Location)
	log.Info("pipeline: run started")

	o.update(func(s *State) {
		s.Loading = true
		s.Alert = ""
	})

	// ── 1. Risk call ──────────────────────────────────────────────────────────
	kind := ai.PromptFor(mode)
	raw, err := o.complete(ctx, kind, c)
	if err != nil {
		log.Error("pipeline: risk call failed", "error", err)
		snap := o.update(func(s *State) {
			s.Loading = false
			s.Alert = alertFor(mode)
		})
		o.metrics.Runs.WithLabelValues(string(mode), "transport_error").Inc()
		return snap, fmt.Errorf("pipeline: %s call: %w", kind, err)
	}

	results, parsed := ai.ParseRisk(raw, mode)
	if !parsed {
		log.Warn("pipeline: risk reply is not JSON, using fallback", "reply", truncate(raw, 200))
		o.metrics.ParseFallbacks.WithLabelValues(string(kind)).Inc()
	}

	// Results and run metadata are published together. Insights from a
	// previous run are cleared so they never sit next to these results.
	o.update(func(s *State) {
		s.Results = results
		s.Insights = nil
		s.RunID = runID
		s.Mode = mode
		s.Context = &c
	})

	// ── 2. Insights call ──────────────────────────────────────────────────────
	insights, ok := o.generateInsights(ctx, c, log)

	final := o.update(func(s *State) {
		if ok {
			s.Insights = insights
		}
		s.Loading = false
	})

	completedAt := o.clock.Now()
	o.metrics.Runs.WithLabelValues(string(mode), "success").Inc()
	o.metrics.RunDuration.WithLabelValues(string(mode)).Observe(completedAt.Sub(startedAt).Seconds())
	log.Info("pipeline: run completed",
		"risk_parsed", parsed,
		"insights", len(final.Insights),
		"duration_ms", completedAt.Sub(startedAt).Milliseconds(),
	)

	o.publish(ctx, RunEvent{
		RunID:       runID,
		Mode:        mode,
		Context:     c,
		Results:     final.Results,
		Insights:    final.Insights,
		RiskParsed:  parsed,
		StartedAt:   startedAt,
		CompletedAt: completedAt,
	}, log)

	return final, nil
}

// generateInsights performs the dependent insights call. A transport failure
// is logged and reported as ok=false; a malformed reply yields the fallback
// list with ok=true.
func (o *Orchestrator) generateInsights(ctx context.Context, c climate.AssessmentContext, log *slog.Logger) (climate.InsightList, bool) {
	raw, err := o.complete(ctx, ai.PromptInsights, c)
	if err != nil {
		log.Warn("pipeline: insights call failed, leaving insights unset", "error", err)
		return nil, false
	}

	insights, parsed := ai.ParseInsights(raw, c)
	if !parsed {
		log.Warn("pipeline: insights reply is not JSON, using fallback", "reply", truncate(raw, 200))
		o.metrics.ParseFallbacks.WithLabelValues(string(ai.PromptInsights)).Inc()
	}
	return insights, true
}

// complete builds the prompt for kind and calls the model, recording latency
// and outcome.
func (o *Orchestrator) complete(ctx context.Context, kind ai.PromptKind, c climate.AssessmentContext) (string, error) {
	start := o.clock.Now()
	raw, err := o.completer.Complete(ctx, ai.Build(kind, c))
	o.metrics.ModelCallDuration.WithLabelValues(string(kind)).Observe(o.clock.Since(start).Seconds())

	outcome := "success"
	if err != nil {
		outcome = "error"
		if !errors.Is(err, ai.ErrTransport) {
			err = fmt.Errorf("%w: %w", ai.ErrTransport, err)
		}
	}
	o.metrics.ModelCalls.WithLabelValues(string(kind), outcome).Inc()
	return raw, err
}

func (o *Orchestrator) publish(ctx context.Context, ev RunEvent, log *slog.Logger) {
	if o.sink == nil {
		return
	}
	if err := o.sink.Enqueue(ctx, ev); err != nil {
		log.Warn("pipeline: run event not enqueued", "error", err)
	}
}

// ─── STATE ────────────────────────────────────────────────────────────────────

// Snapshot returns a copy of the current state.
func (o *Orchestrator) Snapshot() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state.clone()
}

// Subscribe returns a channel that receives a snapshot after every state
// change, starting with the current state. Call cancel to unsubscribe; the
// channel is closed afterwards.
func (o *Orchestrator) Subscribe() (<-chan State, func()) {
	ch := make(chan State, subscriberBuffer)

	o.mu.Lock()
	id := o.nextSub
	o.nextSub++
	o.subs[id] = ch
	ch <- o.state.clone()
	o.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			o.mu.Lock()
			delete(o.subs, id)
			close(ch)
			o.mu.Unlock()
		})
	}
	return ch, cancel
}

// update applies fn under the lock, stamps UpdatedAt, notifies subscribers,
// and returns the resulting snapshot.
func (o *Orchestrator) update(fn func(s *State)) State {
	o.mu.Lock()
	defer o.mu.Unlock()

	fn(&o.state)
	o.state.UpdatedAt = o.clock.Now()
	snap := o.state.clone()

	for _, ch := range o.subs {
		select {
		case ch <- snap.clone():
		default:
			// Subscriber is behind; it will catch up on the next change.
		}
	}
	return snap
}

// ─── HELPERS ──────────────────────────────────────────────────────────────────

func alertFor(mode climate.Mode) string {
	if mode == climate.ModePredict {
		return AlertPredictFailed
	}
	return AlertAssessFailed
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "…"
}
