package ai

import (
	"encoding/json"

	"github.com/nyashahama/climate-risk-backend/internal/climate"
)

// The parsers below never fail. Model output is decoded strictly (no fence
// stripping, no repair); anything that does not decode is replaced by the
// fixed fallback for the mode. The second return value reports whether the
// raw text decoded, so callers can log and count fallbacks.
//
// No schema validation happens beyond decoding: a hazard entry with an
// unexpected shape is kept as a zero HazardRisk, unknown hazard keys are kept,
// and missing keys stay missing. Rendering treats all of these as Medium.

// ParseRisk decodes a risk reply.
func ParseRisk(raw string, mode climate.Mode) (climate.RiskResult, bool) {
	var entries map[climate.Hazard]json.RawMessage
	// A bare null decodes cleanly into a nil map; it takes the fallback like
	// any other non-object reply.
	if err := json.Unmarshal([]byte(raw), &entries); err != nil || entries == nil {
		return climate.FallbackRisk(mode), false
	}

	out := make(climate.RiskResult, len(entries))
	for h, msg := range entries {
		var hr climate.HazardRisk
		_ = json.Unmarshal(msg, &hr) // shape mismatch → zero value
		out[h] = hr
	}
	return out, true
}

// ParseInsights decodes an insights reply. The fallback embeds the context's
// location and property type.
func ParseInsights(raw string, c climate.AssessmentContext) (climate.InsightList, bool) {
	var entries []json.RawMessage
	// null leaves entries nil and is treated as a non-array reply.
	if err := json.Unmarshal([]byte(raw), &entries); err != nil || entries == nil {
		return climate.FallbackInsights(c), false
	}

	out := make(climate.InsightList, len(entries))
	for i, msg := range entries {
		_ = json.Unmarshal(msg, &out[i])
	}
	return out, true
}
