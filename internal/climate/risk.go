package climate

import "fmt"

// Hazard identifies one of the assessed climate hazards.
type Hazard string

const (
	Flood    Hazard = "flood"
	Heat     Hazard = "heat"
	Wildfire Hazard = "wildfire"
)

// Hazards lists the fixed hazard keys in display order.
var Hazards = []Hazard{Flood, Heat, Wildfire}

// Risk levels as returned by the model. Level is a plain string rather than a
// closed enum because parsed output is passed through unvalidated.
const (
	LevelLow    = "Low"
	LevelMedium = "Medium"
	LevelHigh   = "High"
)

// HazardRisk is the per-hazard assessment.
type HazardRisk struct {
	Level      string  `json:"level"`
	Percentage float64 `json:"percentage"`
}

// RiskResult maps hazard key to its assessment. Keys outside Hazards are kept
// when the model returns them.
type RiskResult map[Hazard]HazardRisk

// Clone returns a copy so snapshots never share the map with the pipeline.
func (r RiskResult) Clone() RiskResult {
	if r == nil {
		return nil
	}
	out := make(RiskResult, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Get returns the risk for h, or a Medium placeholder when the key is absent.
func (r RiskResult) Get(h Hazard) HazardRisk {
	if v, ok := r[h]; ok {
		return v
	}
	return HazardRisk{Level: LevelMedium}
}

// FallbackRisk returns the fixed result substituted when the model output
// for mode cannot be decoded. A fresh map is returned on every call.
func FallbackRisk(mode Mode) RiskResult {
	if mode == ModePredict {
		return RiskResult{
			Flood:    {Level: LevelHigh, Percentage: 75},
			Heat:     {Level: LevelHigh, Percentage: 80},
			Wildfire: {Level: LevelMedium, Percentage: 60},
		}
	}
	return RiskResult{
		Flood:    {Level: LevelMedium, Percentage: 45},
		Heat:     {Level: LevelMedium, Percentage: 55},
		Wildfire: {Level: LevelLow, Percentage: 25},
	}
}

// ─── INSIGHTS ────────────────────────────────────────────────────────────────

// Insight is one narrative recommendation.
type Insight struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// InsightList is ordered; 1–3 entries by convention.
type InsightList []Insight

// Clone returns a copy of the list.
func (l InsightList) Clone() InsightList {
	if l == nil {
		return nil
	}
	out := make(InsightList, len(l))
	copy(out, l)
	return out
}

// FallbackInsightTitle is the title of the single fallback insight.
const FallbackInsightTitle = "AI Climate Analysis"

// FallbackInsights returns the single-element list used when the insights
// response cannot be decoded.
func FallbackInsights(c AssessmentContext) InsightList {
	return InsightList{{
		Title: FallbackInsightTitle,
		Content: fmt.Sprintf(
			"Climate analysis for %s shows varying risk levels. The AI assessment indicates the need for comprehensive climate adaptation planning for %s properties.",
			c.Location, c.PropertyType,
		),
	}}
}
