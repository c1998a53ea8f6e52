package pipeline

import (
	"time"

	"github.com/nyashahama/climate-risk-backend/internal/climate"
)

// State is the pipeline's observable state. The Orchestrator owns it; every
// caller outside the package only ever sees copies returned by Snapshot or
// delivered to subscribers.
type State struct {
	Loading bool `json:"loading"`

	// Results is nil until the first successful risk call, then always the
	// direct output of the latest one (parsed or fallback).
	Results climate.RiskResult `json:"results,omitempty"`

	// Insights belongs to the same run as Results. It is nil when that run's
	// insights call failed.
	Insights climate.InsightList `json:"insights,omitempty"`

	// Alert is the user-facing message of the last failed run. Cleared when
	// a new run starts.
	Alert string `json:"alert,omitempty"`

	// RunID, Mode, and Context describe the run that produced Results.
	RunID   string                     `json:"run_id,omitempty"`
	Mode    climate.Mode               `json:"mode,omitempty"`
	Context *climate.AssessmentContext `json:"context,omitempty"`

	UpdatedAt time.Time `json:"updated_at"`
}

func (s State) clone() State {
	out := s
	out.Results = s.Results.Clone()
	out.Insights = s.Insights.Clone()
	if s.Context != nil {
		c := *s.Context
		out.Context = &c
	}
	return out
}

// RunEvent describes one completed run. It is handed to the RunSink after
// loading is cleared.
type RunEvent struct {
	RunID       string                    `json:"run_id"`
	Mode        climate.Mode              `json:"mode"`
	Context     climate.AssessmentContext `json:"context"`
	Results     climate.RiskResult        `json:"results"`
	Insights    climate.InsightList       `json:"insights,omitempty"`
	RiskParsed  bool                      `json:"risk_parsed"`
	StartedAt   time.Time                 `json:"started_at"`
	CompletedAt time.Time                 `json:"completed_at"`
}
