// Package climate holds the domain types for climate-hazard assessments: the
// user-supplied context, the per-hazard risk result, narrative insights, and
// the deterministic fallbacks used when model output cannot be parsed.
//
// Dependency rule: climate imports nothing from internal/. Every other package
// may import it.
package climate

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ─── ERRORS ──────────────────────────────────────────────────────────────────

// ErrEmptyLocation is the validation failure for a blank location. The
// pipeline never starts when it is returned.
var ErrEmptyLocation = errors.New("please enter a location")

// ErrInvalidContext wraps every enum validation failure so callers can map
// them to a single 400 response.
var ErrInvalidContext = errors.New("invalid assessment context")

// ─── ENUMS ───────────────────────────────────────────────────────────────────

// Mode selects which prompt variant and which fallback the pipeline uses.
type Mode string

const (
	ModeAssess  Mode = "assess"  // current conditions
	ModePredict Mode = "predict" // future projection
)

// PropertyType is the kind of property being assessed.
type PropertyType string

const (
	Residential  PropertyType = "residential"
	Commercial   PropertyType = "commercial"
	Industrial   PropertyType = "industrial"
	Agricultural PropertyType = "agricultural"
)

// Scenario is the climate-change severity assumption for projections.
type Scenario string

const (
	ScenarioOptimistic Scenario = "optimistic" // 1.5°C
	ScenarioModerate   Scenario = "moderate"   // 2.0°C
	ScenarioSevere     Scenario = "severe"     // 3.0°C+
)

// Timeframe is the projection horizon in years.
type Timeframe int

const (
	Timeframe5  Timeframe = 5
	Timeframe10 Timeframe = 10
	Timeframe25 Timeframe = 25
	Timeframe50 Timeframe = 50
)

// Defaults mirror the initial values of the assessment form.
const (
	DefaultPropertyType = Residential
	DefaultTimeframe    = Timeframe10
	DefaultScenario     = ScenarioModerate
)

func (p PropertyType) Valid() bool {
	switch p {
	case Residential, Commercial, Industrial, Agricultural:
		return true
	}
	return false
}

func (s Scenario) Valid() bool {
	switch s {
	case ScenarioOptimistic, ScenarioModerate, ScenarioSevere:
		return true
	}
	return false
}

func (t Timeframe) Valid() bool {
	switch t {
	case Timeframe5, Timeframe10, Timeframe25, Timeframe50:
		return true
	}
	return false
}

// ParseTimeframe accepts the string form used by the original form select
// ("5", "10", "25", "50").
func ParseTimeframe(s string) (Timeframe, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || !Timeframe(n).Valid() {
		return 0, fmt.Errorf("%w: timeframe must be one of 5, 10, 25, 50 (got %q)", ErrInvalidContext, s)
	}
	return Timeframe(n), nil
}

// ─── CONTEXT ─────────────────────────────────────────────────────────────────

// AssessmentContext is the immutable input of one pipeline run. Timeframe and
// Scenario only influence predict mode, but the insights prompt embeds all
// four fields regardless of mode.
type AssessmentContext struct {
	Location     string       `json:"location"`
	PropertyType PropertyType `json:"property_type"`
	Timeframe    Timeframe    `json:"timeframe"`
	Scenario     Scenario     `json:"scenario"`
}

// NewContext builds a context, filling unset enum fields with the form
// defaults. Location is kept as given; emptiness is checked by the pipeline.
func NewContext(location string, pt PropertyType, tf Timeframe, sc Scenario) AssessmentContext {
	if pt == "" {
		pt = DefaultPropertyType
	}
	if tf == 0 {
		tf = DefaultTimeframe
	}
	if sc == "" {
		sc = DefaultScenario
	}
	return AssessmentContext{
		Location:     location,
		PropertyType: pt,
		Timeframe:    tf,
		Scenario:     sc,
	}
}

// HasLocation reports whether the location is non-blank.
func (c AssessmentContext) HasLocation() bool {
	return strings.TrimSpace(c.Location) != ""
}

// Validate checks the enum fields. It does not check the location: an empty
// location is a user notice, not a malformed request.
func (c AssessmentContext) Validate() error {
	var errs []error
	if !c.PropertyType.Valid() {
		errs = append(errs, fmt.Errorf("%w: unknown property_type %q", ErrInvalidContext, c.PropertyType))
	}
	if !c.Timeframe.Valid() {
		errs = append(errs, fmt.Errorf("%w: timeframe must be one of 5, 10, 25, 50 (got %d)", ErrInvalidContext, c.Timeframe))
	}
	if !c.Scenario.Valid() {
		errs = append(errs, fmt.Errorf("%w: unknown scenario %q", ErrInvalidContext, c.Scenario))
	}
	return errors.Join(errs...)
}
