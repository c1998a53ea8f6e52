package climate_test

import (
	"errors"
	"testing"

	"github.com/nyashahama/climate-risk-backend/internal/climate"
)

// ─── Classify ─────────────────────────────────────────────────────────────────

func TestClassify_IsTotal(t *testing.T) {
	tests := []struct {
		level string
		want  climate.RiskClass
	}{
		{"Low", climate.ClassLow},
		{"Medium", climate.ClassMedium},
		{"High", climate.ClassHigh},
		{"", climate.ClassMedium},
		{"Extreme", climate.ClassMedium},
		{"low", climate.ClassMedium}, // case-sensitive, like the model contract
	}
	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			if got := climate.Classify(tt.level); got != tt.want {
				t.Errorf("Classify(%q) = %q, want %q", tt.level, got, tt.want)
			}
		})
	}
}

func TestClassify_AbsentHazardIsMedium(t *testing.T) {
	r := climate.RiskResult{climate.Flood: {Level: "High", Percentage: 90}}
	if got := climate.Classify(r.Get(climate.Wildfire).Level); got != climate.ClassMedium {
		t.Errorf("absent hazard: got %q, want risk-medium", got)
	}
}

// ─── Fallbacks ────────────────────────────────────────────────────────────────

func TestFallbackRisk_Assess(t *testing.T) {
	r := climate.FallbackRisk(climate.ModeAssess)
	want := map[climate.Hazard]climate.HazardRisk{
		climate.Flood:    {Level: "Medium", Percentage: 45},
		climate.Heat:     {Level: "Medium", Percentage: 55},
		climate.Wildfire: {Level: "Low", Percentage: 25},
	}
	if len(r) != len(want) {
		t.Fatalf("got %d hazards, want %d", len(r), len(want))
	}
	for h, w := range want {
		if r[h] != w {
			t.Errorf("%s: got %+v, want %+v", h, r[h], w)
		}
	}
}

func TestFallbackRisk_Predict(t *testing.T) {
	r := climate.FallbackRisk(climate.ModePredict)
	want := map[climate.Hazard]climate.HazardRisk{
		climate.Flood:    {Level: "High", Percentage: 75},
		climate.Heat:     {Level: "High", Percentage: 80},
		climate.Wildfire: {Level: "Medium", Percentage: 60},
	}
	for h, w := range want {
		if r[h] != w {
			t.Errorf("%s: got %+v, want %+v", h, r[h], w)
		}
	}
}

func TestFallbackRisk_ReturnsFreshMap(t *testing.T) {
	a := climate.FallbackRisk(climate.ModeAssess)
	a[climate.Flood] = climate.HazardRisk{Level: "High", Percentage: 99}

	b := climate.FallbackRisk(climate.ModeAssess)
	if b[climate.Flood].Percentage != 45 {
		t.Errorf("fallback was mutated through a previous result: %+v", b[climate.Flood])
	}
}

func TestFallbackInsights_EmbedsLocationAndPropertyType(t *testing.T) {
	c := climate.NewContext("Denver, CO", climate.Commercial, 0, "")
	got := climate.FallbackInsights(c)
	if len(got) != 1 {
		t.Fatalf("expected 1 insight, got %d", len(got))
	}
	if got[0].Title != "AI Climate Analysis" {
		t.Errorf("title: got %q", got[0].Title)
	}
	want := "Climate analysis for Denver, CO shows varying risk levels. The AI assessment indicates the need for comprehensive climate adaptation planning for commercial properties."
	if got[0].Content != want {
		t.Errorf("content:\n got %q\nwant %q", got[0].Content, want)
	}
}

// ─── Context ──────────────────────────────────────────────────────────────────

func TestNewContext_AppliesFormDefaults(t *testing.T) {
	c := climate.NewContext("Miami, FL", "", 0, "")
	if c.PropertyType != climate.Residential {
		t.Errorf("property type: got %q", c.PropertyType)
	}
	if c.Timeframe != climate.Timeframe10 {
		t.Errorf("timeframe: got %d", c.Timeframe)
	}
	if c.Scenario != climate.ScenarioModerate {
		t.Errorf("scenario: got %q", c.Scenario)
	}
	if err := c.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestValidate_RejectsUnknownEnums(t *testing.T) {
	c := climate.AssessmentContext{
		Location:     "Austin, TX",
		PropertyType: "castle",
		Timeframe:    7,
		Scenario:     "apocalyptic",
	}
	err := c.Validate()
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, climate.ErrInvalidContext) {
		t.Errorf("expected ErrInvalidContext in chain, got: %v", err)
	}
}

func TestHasLocation(t *testing.T) {
	for _, loc := range []string{"", "   ", "\t"} {
		if climate.NewContext(loc, "", 0, "").HasLocation() {
			t.Errorf("location %q should count as empty", loc)
		}
	}
	if !climate.NewContext("Boise, ID", "", 0, "").HasLocation() {
		t.Error("non-empty location reported as empty")
	}
}

func TestParseTimeframe(t *testing.T) {
	for _, s := range []string{"5", "10", "25", "50", " 25 "} {
		if _, err := climate.ParseTimeframe(s); err != nil {
			t.Errorf("ParseTimeframe(%q): unexpected error %v", s, err)
		}
	}
	for _, s := range []string{"", "0", "15", "ten"} {
		if _, err := climate.ParseTimeframe(s); !errors.Is(err, climate.ErrInvalidContext) {
			t.Errorf("ParseTimeframe(%q): expected ErrInvalidContext, got %v", s, err)
		}
	}
}
