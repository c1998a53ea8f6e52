package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/nyashahama/climate-risk-backend/internal/ai"
	"github.com/nyashahama/climate-risk-backend/internal/climate"
	"github.com/nyashahama/climate-risk-backend/internal/pipeline"
)

// ─── POST /api/assessments ────────────────────────────────────────────────────

// assessmentRequest carries the whole form. The risk prompt ignores timeframe
// and scenario, but the insights prompt uses them.
type assessmentRequest struct {
	Location     string          `json:"location"`
	PropertyType string          `json:"property_type"`
	Timeframe    json.RawMessage `json:"timeframe"`
	Scenario     string          `json:"scenario"`
}

// handleRunAssessment runs the assess pipeline and returns the resulting
// state. It blocks until both model calls have finished.
func (s *Server) handleRunAssessment(w http.ResponseWriter, r *http.Request) {
	var req assessmentRequest
	if !decode(w, r, &req) {
		return
	}

	tf, err := parseTimeframe(req.Timeframe)
	if err != nil {
		respondErr(w, http.StatusBadRequest, err.Error())
		return
	}

	c := climate.NewContext(req.Location, climate.PropertyType(req.PropertyType), tf, climate.Scenario(req.Scenario))
	s.run(w, r, c, s.pipeline.RunAssessment)
}

// ─── POST /api/predictions ────────────────────────────────────────────────────

type predictionRequest struct {
	Location     string `json:"location"`
	PropertyType string `json:"property_type"`
	// Timeframe accepts 10 or "10"; the form select sends strings.
	Timeframe json.RawMessage `json:"timeframe"`
	Scenario  string          `json:"scenario"`
}

// handleRunPrediction runs the predict pipeline. Omitted fields take the form
// defaults: residential, 10 years, moderate.
func (s *Server) handleRunPrediction(w http.ResponseWriter, r *http.Request) {
	var req predictionRequest
	if !decode(w, r, &req) {
		return
	}

	tf, err := parseTimeframe(req.Timeframe)
	if err != nil {
		respondErr(w, http.StatusBadRequest, err.Error())
		return
	}

	c := climate.NewContext(req.Location, climate.PropertyType(req.PropertyType), tf, climate.Scenario(req.Scenario))
	s.run(w, r, c, s.pipeline.RunPrediction)
}

type runFunc func(ctx context.Context, c climate.AssessmentContext) (pipeline.State, error)

// run validates c, executes fn, and maps the outcome to a response:
//
//	400  blank location or unknown enum value
//	409  another run is loading
//	502  the risk call failed (body carries the alert)
//	200  the run completed, possibly with fallback data
func (s *Server) run(w http.ResponseWriter, r *http.Request, c climate.AssessmentContext, fn runFunc) {
	if err := c.Validate(); err != nil {
		respondErr(w, http.StatusBadRequest, err.Error())
		return
	}

	// The run outlives a client that goes away so its result still lands in
	// the shared state. Model calls carry their own timeout.
	ctx := context.WithoutCancel(r.Context())

	st, err := fn(ctx, c)
	switch {
	case err == nil:
		respond(w, http.StatusOK, newStateResponse(st))
	case errors.Is(err, climate.ErrEmptyLocation):
		respondErr(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, pipeline.ErrRunInProgress):
		respondErr(w, http.StatusConflict, "an assessment is already in progress")
	case errors.Is(err, ai.ErrTransport):
		s.logger.Warn("run failed", "error", err, logField(r))
		respond(w, http.StatusBadGateway, errorWithState{
			Error: st.Alert,
			State: newStateResponse(st),
		})
	default:
		s.respondInternalErr(w, r, fmt.Errorf("run: %w", err))
	}
}

type errorWithState struct {
	Error string        `json:"error"`
	State stateResponse `json:"state"`
}

// parseTimeframe decodes a JSON number or numeric string. Absent or null
// means "use the default".
func parseTimeframe(raw json.RawMessage) (climate.Timeframe, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return 0, nil
	}

	var n int
	if err := json.Unmarshal(raw, &n); err == nil {
		tf := climate.Timeframe(n)
		if !tf.Valid() {
			return 0, fmt.Errorf("%w: timeframe must be one of 5, 10, 25, 50 (got %d)", climate.ErrInvalidContext, n)
		}
		return tf, nil
	}

	var str string
	if err := json.Unmarshal(raw, &str); err != nil {
		return 0, fmt.Errorf("%w: timeframe must be a number", climate.ErrInvalidContext)
	}
	return climate.ParseTimeframe(str)
}
