package ai

import (
	"fmt"

	"github.com/nyashahama/climate-risk-backend/internal/climate"
)

// PromptKind selects one of the three prompt variants.
type PromptKind string

const (
	PromptAssess   PromptKind = "assess"
	PromptPredict  PromptKind = "predict"
	PromptInsights PromptKind = "insights"
)

// PromptFor returns the risk prompt kind for a pipeline mode.
func PromptFor(mode climate.Mode) PromptKind {
	if mode == climate.ModePredict {
		return PromptPredict
	}
	return PromptAssess
}

// ─── PERSONAS ─────────────────────────────────────────────────────────────────

const assessPersona = "You are a climate risk assessment expert. Analyze the given location and provide risk levels (Low/Medium/High) for flood, heat, and wildfire risks. Respond with only a JSON object containing 'flood', 'heat', and 'wildfire' keys, each with 'level' and 'percentage' properties."

const predictPersona = "You are a climate scientist specializing in future climate projections. Provide detailed risk assessments considering time-dependent climate change impacts. Respond with JSON containing 'flood', 'heat', and 'wildfire' risks with 'level' and 'percentage' properties."

const insightsPersona = "You are a climate adaptation expert. Generate 3 detailed climate insights for the given location and property type. Format as JSON array with objects containing 'title' and 'content' fields."

// Build returns the request payload for kind. It is pure string formatting.
func Build(kind PromptKind, c climate.AssessmentContext) Request {
	switch kind {
	case PromptPredict:
		return Request{
			Persona: predictPersona,
			Task: fmt.Sprintf(
				"Predict climate risks for %s over the next %d years under %s climate scenario for %s property. Consider accelerating climate change impacts.",
				c.Location, c.Timeframe, c.Scenario, c.PropertyType,
			),
			Temperature: 0.7,
			MaxTokens:   400,
		}
	case PromptInsights:
		return Request{
			Persona: insightsPersona,
			Task: fmt.Sprintf(
				"Generate climate insights for %s, %s property, %d-year timeframe, %s climate scenario. Include specific recommendations and local climate data.",
				c.Location, c.PropertyType, c.Timeframe, c.Scenario,
			),
			Temperature: 0.8,
			MaxTokens:   800,
		}
	default:
		return Request{
			Persona: assessPersona,
			Task: fmt.Sprintf(
				"Assess climate risks for %s. Consider the property type: %s. Provide risk analysis in JSON format.",
				c.Location, c.PropertyType,
			),
			Temperature: 0.7,
			MaxTokens:   300,
		}
	}
}
