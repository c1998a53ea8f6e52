package api

import (
	"net/http"
	"time"

	"github.com/nyashahama/climate-risk-backend/internal/climate"
	"github.com/nyashahama/climate-risk-backend/internal/pipeline"
)

// hazardResponse is one hazard card: the level and percentage plus the render
// class the frontend applies.
type hazardResponse struct {
	Level      string            `json:"level"`
	Percentage float64           `json:"percentage"`
	Class      climate.RiskClass `json:"class"`
}

type stateResponse struct {
	Loading   bool                              `json:"loading"`
	Alert     string                            `json:"alert,omitempty"`
	RunID     string                            `json:"run_id,omitempty"`
	Mode      climate.Mode                      `json:"mode,omitempty"`
	Context   *climate.AssessmentContext        `json:"context,omitempty"`
	Results   map[climate.Hazard]hazardResponse `json:"results,omitempty"`
	Insights  climate.InsightList               `json:"insights,omitempty"`
	UpdatedAt string                            `json:"updated_at"`
}

// newStateResponse flattens a snapshot. Once results exist every fixed hazard
// is present; a hazard the model omitted renders as medium.
func newStateResponse(st pipeline.State) stateResponse {
	resp := stateResponse{
		Loading:   st.Loading,
		Alert:     st.Alert,
		RunID:     st.RunID,
		Mode:      st.Mode,
		Context:   st.Context,
		Insights:  st.Insights,
		UpdatedAt: st.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if st.Results == nil {
		return resp
	}

	resp.Results = make(map[climate.Hazard]hazardResponse, len(st.Results))
	for h, risk := range st.Results {
		resp.Results[h] = toHazardResponse(risk)
	}
	for _, h := range climate.Hazards {
		if _, ok := resp.Results[h]; !ok {
			resp.Results[h] = toHazardResponse(st.Results.Get(h))
		}
	}
	return resp
}

func toHazardResponse(r climate.HazardRisk) hazardResponse {
	return hazardResponse{
		Level:      r.Level,
		Percentage: r.Percentage,
		Class:      climate.Classify(r.Level),
	}
}

// ─── GET /api/state ───────────────────────────────────────────────────────────

// handleGetState returns the current pipeline snapshot. Clients poll this
// while a run they did not start is loading.
func (s *Server) handleGetState(w http.ResponseWriter, r *http.Request) {
	respond(w, http.StatusOK, newStateResponse(s.pipeline.Snapshot()))
}

// ─── GET /api/risk-class?level= ───────────────────────────────────────────────

// handleRiskClass exposes Classify. Any level, including none, gets a class.
func (s *Server) handleRiskClass(w http.ResponseWriter, r *http.Request) {
	level := r.URL.Query().Get("level")
	respond(w, http.StatusOK, map[string]string{
		"level": level,
		"class": string(climate.Classify(level)),
	})
}
