package climate

// RiskClass is the render class for a risk level.
type RiskClass string

const (
	ClassLow    RiskClass = "risk-low"
	ClassMedium RiskClass = "risk-medium"
	ClassHigh   RiskClass = "risk-high"
)

// Classify maps a risk level to its render class. Unknown and empty levels
// are treated as medium.
func Classify(level string) RiskClass {
	switch level {
	case LevelLow:
		return ClassLow
	case LevelHigh:
		return ClassHigh
	default:
		return ClassMedium
	}
}
