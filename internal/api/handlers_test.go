package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nyashahama/climate-risk-backend/internal/ai"
	"github.com/nyashahama/climate-risk-backend/internal/api"
	"github.com/nyashahama/climate-risk-backend/internal/climate"
	"github.com/nyashahama/climate-risk-backend/internal/observability"
	"github.com/nyashahama/climate-risk-backend/internal/pipeline"
)

// ─── STUBS ────────────────────────────────────────────────────────────────────

// stubCompleter returns replies in order. Once exhausted it returns err.
type stubCompleter struct {
	mu      sync.Mutex
	replies []string
	err     error
	reqs    []ai.Request
}

func (s *stubCompleter) Complete(_ context.Context, req ai.Request) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reqs = append(s.reqs, req)
	if len(s.replies) == 0 {
		if s.err != nil {
			return "", s.err
		}
		return "", errors.New("stubCompleter: no reply left")
	}
	r := s.replies[0]
	s.replies = s.replies[1:]
	return r, nil
}

// stubAssessor returns a fixed error from both entry points.
type stubAssessor struct {
	api.Assessor
	err error
}

func (s *stubAssessor) RunAssessment(context.Context, climate.AssessmentContext) (pipeline.State, error) {
	return pipeline.State{}, s.err
}

func (s *stubAssessor) RunPrediction(context.Context, climate.AssessmentContext) (pipeline.State, error) {
	return pipeline.State{}, s.err
}

// ─── HELPERS ─────────────────────────────────────────────────────────────────

const (
	riskJSON     = `{"flood":{"level":"High","percentage":70},"heat":{"level":"Low","percentage":10}}`
	insightsJSON = `[{"title":"Elevate","content":"Raise utilities."}]`
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type testDeps struct {
	completer *stubCompleter
	pipeline  *pipeline.Orchestrator
	handler   http.Handler
}

func newTestServer(t *testing.T, replies ...string) *testDeps {
	t.Helper()

	c := &stubCompleter{replies: replies}
	o := pipeline.New(c, nil, observability.NewMetricsForTesting(), nil, discardLogger())
	handler := api.NewServer(o, api.Config{Env: "development"}, discardLogger())

	return &testDeps{completer: c, pipeline: o, handler: handler}
}

func doRequest(t *testing.T, handler http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var bodyReader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		bodyReader = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, bodyReader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}

func decodeJSON(t *testing.T, rr *httptest.ResponseRecorder, dst any) {
	t.Helper()
	if err := json.NewDecoder(rr.Body).Decode(dst); err != nil {
		t.Fatalf("decode response body: %v (raw: %s)", err, rr.Body.String())
	}
}

type hazardBody struct {
	Level      string  `json:"level"`
	Percentage float64 `json:"percentage"`
	Class      string  `json:"class"`
}

type stateBody struct {
	Loading  bool                  `json:"loading"`
	Alert    string                `json:"alert"`
	RunID    string                `json:"run_id"`
	Mode     string                `json:"mode"`
	Results  map[string]hazardBody `json:"results"`
	Insights []climate.Insight     `json:"insights"`
	Context  *struct {
		Location     string `json:"location"`
		PropertyType string `json:"property_type"`
		Timeframe    int    `json:"timeframe"`
		Scenario     string `json:"scenario"`
	} `json:"context"`
}

// ─── GET /healthz ─────────────────────────────────────────────────────────────

func TestHealthz(t *testing.T) {
	deps := newTestServer(t)
	rr := doRequest(t, deps.handler, http.MethodGet, "/healthz", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	deps := newTestServer(t)
	rr := doRequest(t, deps.handler, http.MethodGet, "/metrics", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "go_goroutines") {
		t.Error("expected default Go collector output")
	}
}

// ─── POST /api/assessments ────────────────────────────────────────────────────

func TestRunAssessment_ReturnsResultsWithClasses(t *testing.T) {
	deps := newTestServer(t, riskJSON, insightsJSON)

	rr := doRequest(t, deps.handler, http.MethodPost, "/api/assessments",
		map[string]string{"location": "Miami, FL", "property_type": "commercial"})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var body stateBody
	decodeJSON(t, rr, &body)

	if body.Loading {
		t.Error("loading should be false after the run")
	}
	if body.Mode != "assess" {
		t.Errorf("mode = %q, want assess", body.Mode)
	}
	if got := body.Results["flood"]; got.Level != "High" || got.Class != "risk-high" {
		t.Errorf("flood = %+v", got)
	}
	if got := body.Results["heat"]; got.Class != "risk-low" {
		t.Errorf("heat class = %q, want risk-low", got.Class)
	}
	// The model omitted wildfire; it renders as medium.
	if got := body.Results["wildfire"]; got.Level != "Medium" || got.Class != "risk-medium" {
		t.Errorf("wildfire = %+v, want medium placeholder", got)
	}
	if len(body.Insights) != 1 || body.Insights[0].Title != "Elevate" {
		t.Errorf("insights = %+v", body.Insights)
	}
	if body.Context == nil || body.Context.PropertyType != "commercial" {
		t.Errorf("context = %+v", body.Context)
	}
	if !strings.Contains(deps.completer.reqs[0].Task, "commercial") {
		t.Errorf("prompt should mention property type: %q", deps.completer.reqs[0].Task)
	}
}

func TestRunAssessment_BlankLocationReturns400WithoutModelCall(t *testing.T) {
	deps := newTestServer(t)

	rr := doRequest(t, deps.handler, http.MethodPost, "/api/assessments",
		map[string]string{"location": "   "})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}

	var body map[string]string
	decodeJSON(t, rr, &body)
	if body["error"] != "please enter a location" {
		t.Errorf("error = %q", body["error"])
	}
	if len(deps.completer.reqs) != 0 {
		t.Errorf("model should not be called, got %d calls", len(deps.completer.reqs))
	}
}

func TestRunAssessment_UnknownPropertyTypeReturns400(t *testing.T) {
	deps := newTestServer(t)

	rr := doRequest(t, deps.handler, http.MethodPost, "/api/assessments",
		map[string]string{"location": "Oslo", "property_type": "castle"})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestRunAssessment_InvalidJSONReturns400(t *testing.T) {
	deps := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/api/assessments", bytes.NewBufferString(`{bad json`))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	deps.handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestRunAssessment_TransportErrorReturns502WithAlert(t *testing.T) {
	deps := newTestServer(t)
	deps.completer.err = ai.ErrTransport

	rr := doRequest(t, deps.handler, http.MethodPost, "/api/assessments",
		map[string]string{"location": "Oslo"})
	if rr.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d: %s", rr.Code, rr.Body.String())
	}

	var body struct {
		Error string    `json:"error"`
		State stateBody `json:"state"`
	}
	decodeJSON(t, rr, &body)
	if body.Error != pipeline.AlertAssessFailed {
		t.Errorf("error = %q", body.Error)
	}
	if body.State.Loading || body.State.Results != nil {
		t.Errorf("state should be idle with no results: %+v", body.State)
	}
}

func TestRunAssessment_RunInProgressReturns409(t *testing.T) {
	handler := api.NewServer(&stubAssessor{err: pipeline.ErrRunInProgress}, api.Config{}, discardLogger())

	rr := doRequest(t, handler, http.MethodPost, "/api/assessments",
		map[string]string{"location": "Oslo"})
	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rr.Code)
	}
}

func TestRunAssessment_UnexpectedErrorReturns500(t *testing.T) {
	handler := api.NewServer(&stubAssessor{err: errors.New("boom")}, api.Config{}, discardLogger())

	rr := doRequest(t, handler, http.MethodPost, "/api/assessments",
		map[string]string{"location": "Oslo"})
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rr.Code)
	}
	if strings.Contains(rr.Body.String(), "boom") {
		t.Error("internal error details must not leak")
	}
}

// ─── POST /api/predictions ────────────────────────────────────────────────────

func TestRunPrediction_DefaultsApplied(t *testing.T) {
	deps := newTestServer(t, "not json", "not json either")

	rr := doRequest(t, deps.handler, http.MethodPost, "/api/predictions",
		map[string]string{"location": "Lagos"})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var body stateBody
	decodeJSON(t, rr, &body)

	if body.Context.Timeframe != 10 || body.Context.Scenario != "moderate" || body.Context.PropertyType != "residential" {
		t.Errorf("defaults not applied: %+v", body.Context)
	}
	// Predict fallback: High 75 / High 80 / Medium 60.
	if got := body.Results["heat"]; got.Percentage != 80 || got.Class != "risk-high" {
		t.Errorf("heat = %+v, want predict fallback", got)
	}
	if len(body.Insights) != 1 || body.Insights[0].Title != climate.FallbackInsightTitle {
		t.Errorf("insights = %+v, want fallback", body.Insights)
	}
}

func TestRunAssessment_FormTimeframeAndScenarioReachInsightsPrompt(t *testing.T) {
	deps := newTestServer(t, riskJSON, insightsJSON)

	rr := doRequest(t, deps.handler, http.MethodPost, "/api/assessments", map[string]any{
		"location":      "Miami, FL",
		"property_type": "residential",
		"timeframe":     "50",
		"scenario":      "severe",
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if len(deps.completer.reqs) != 2 {
		t.Fatalf("expected 2 model calls, got %d", len(deps.completer.reqs))
	}
	if task := deps.completer.reqs[1].Task; !strings.Contains(task, "50-year timeframe, severe") {
		t.Errorf("insights prompt = %q", task)
	}
}

func TestRunAssessment_InvalidTimeframeReturns400(t *testing.T) {
	deps := newTestServer(t)
	rr := doRequest(t, deps.handler, http.MethodPost, "/api/assessments",
		map[string]any{"location": "Miami, FL", "timeframe": "ten"})
	if rr.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rr.Code)
	}
}

func TestRunPrediction_TimeframeAsStringOrNumber(t *testing.T) {
	for _, tf := range []any{"25", 25} {
		deps := newTestServer(t, riskJSON, insightsJSON)

		rr := doRequest(t, deps.handler, http.MethodPost, "/api/predictions",
			map[string]any{"location": "Denver", "timeframe": tf, "scenario": "severe"})
		if rr.Code != http.StatusOK {
			t.Fatalf("timeframe %v: expected 200, got %d: %s", tf, rr.Code, rr.Body.String())
		}
		if !strings.Contains(deps.completer.reqs[0].Task, "next 25 years under severe") {
			t.Errorf("timeframe %v: prompt = %q", tf, deps.completer.reqs[0].Task)
		}
	}
}

func TestRunPrediction_InvalidTimeframeReturns400(t *testing.T) {
	for _, tf := range []any{7, "ten", true} {
		deps := newTestServer(t)
		rr := doRequest(t, deps.handler, http.MethodPost, "/api/predictions",
			map[string]any{"location": "Denver", "timeframe": tf})
		if rr.Code != http.StatusBadRequest {
			t.Errorf("timeframe %v: expected 400, got %d", tf, rr.Code)
		}
	}
}

func TestRunPrediction_TransportErrorUsesPredictionAlert(t *testing.T) {
	deps := newTestServer(t)
	deps.completer.err = ai.ErrTransport

	rr := doRequest(t, deps.handler, http.MethodPost, "/api/predictions",
		map[string]string{"location": "Denver"})
	if rr.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", rr.Code)
	}
	var body struct {
		Error string `json:"error"`
	}
	decodeJSON(t, rr, &body)
	if body.Error != pipeline.AlertPredictFailed {
		t.Errorf("error = %q", body.Error)
	}
}

// ─── GET /api/state ───────────────────────────────────────────────────────────

func TestGetState_ReflectsLastRun(t *testing.T) {
	deps := newTestServer(t, riskJSON, insightsJSON)

	rr := doRequest(t, deps.handler, http.MethodGet, "/api/state", nil)
	var before stateBody
	decodeJSON(t, rr, &before)
	if before.Results != nil || before.RunID != "" {
		t.Fatalf("fresh state should be empty: %+v", before)
	}

	doRequest(t, deps.handler, http.MethodPost, "/api/assessments", map[string]string{"location": "Miami"})

	rr = doRequest(t, deps.handler, http.MethodGet, "/api/state", nil)
	var after stateBody
	decodeJSON(t, rr, &after)
	if after.RunID == "" || after.Results["flood"].Level != "High" {
		t.Errorf("state not updated: %+v", after)
	}
}

// ─── GET /api/risk-class ──────────────────────────────────────────────────────

func TestRiskClass(t *testing.T) {
	deps := newTestServer(t)
	cases := map[string]string{
		"Low":     "risk-low",
		"High":    "risk-high",
		"Medium":  "risk-medium",
		"":        "risk-medium",
		"Extreme": "risk-medium",
		"low":     "risk-medium",
	}
	for level, want := range cases {
		rr := doRequest(t, deps.handler, http.MethodGet, "/api/risk-class?level="+level, nil)
		var body map[string]string
		decodeJSON(t, rr, &body)
		if body["class"] != want {
			t.Errorf("level %q: class = %q, want %q", level, body["class"], want)
		}
	}
}

// ─── CORS ─────────────────────────────────────────────────────────────────────

func TestCORS_PreflightProductionAllowList(t *testing.T) {
	handler := api.NewServer(&stubAssessor{}, api.Config{
		Env:         "production",
		CORSOrigins: []string{"https://climate.example"},
	}, discardLogger())

	for origin, wantAllowed := range map[string]bool{
		"https://climate.example": true,
		"https://evil.example":    false,
	} {
		req := httptest.NewRequest(http.MethodOptions, "/api/assessments", nil)
		req.Header.Set("Origin", origin)
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)

		got := rr.Header().Get("Access-Control-Allow-Origin")
		if wantAllowed && (got != origin || rr.Code != http.StatusNoContent) {
			t.Errorf("%s: expected allowed preflight, got %d %q", origin, rr.Code, got)
		}
		if !wantAllowed && got != "" {
			t.Errorf("%s: expected no CORS header, got %q", origin, got)
		}
	}
}

// ─── GET /api/state/stream ────────────────────────────────────────────────────

func TestStateStream_PushesSnapshots(t *testing.T) {
	deps := newTestServer(t, riskJSON, insightsJSON)
	srv := httptest.NewServer(deps.handler)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/state/stream"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))

	var initial stateBody
	if err := conn.ReadJSON(&initial); err != nil {
		t.Fatalf("read initial: %v", err)
	}
	if initial.Loading || initial.Results != nil {
		t.Fatalf("initial snapshot should be idle: %+v", initial)
	}

	if _, err := deps.pipeline.RunAssessment(context.Background(),
		climate.NewContext("Miami", "", 0, "")); err != nil {
		t.Fatalf("run: %v", err)
	}

	var last stateBody
	sawLoading := false
	for i := 0; i < 3; i++ {
		if err := conn.ReadJSON(&last); err != nil {
			t.Fatalf("read update %d: %v", i, err)
		}
		sawLoading = sawLoading || last.Loading
	}
	if !sawLoading {
		t.Error("expected a loading snapshot")
	}
	if last.Loading || len(last.Insights) != 1 {
		t.Errorf("final snapshot = %+v", last)
	}
}
