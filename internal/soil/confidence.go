package soil

import "math"

// ConfidenceLevel buckets a confidence value for display.
type ConfidenceLevel int

const (
	VeryLow ConfidenceLevel = iota
	Low
	Medium
	High
	VeryHigh
)

// Bucket lower bounds, inclusive.
const (
	VeryHighThreshold = 0.90
	HighThreshold     = 0.75
	MediumThreshold   = 0.60
	LowThreshold      = 0.40
)

// LevelFor returns the bucket for a confidence in [0, 1].
func LevelFor(confidence float64) ConfidenceLevel {
	switch {
	case confidence >= VeryHighThreshold:
		return VeryHigh
	case confidence >= HighThreshold:
		return High
	case confidence >= MediumThreshold:
		return Medium
	case confidence >= LowThreshold:
		return Low
	default:
		return VeryLow
	}
}

func (l ConfidenceLevel) String() string {
	switch l {
	case VeryHigh:
		return "very_high"
	case High:
		return "high"
	case Medium:
		return "medium"
	case Low:
		return "low"
	default:
		return "very_low"
	}
}

// DisplayName returns the label shown next to a result.
func (l ConfidenceLevel) DisplayName() string {
	switch l {
	case VeryHigh:
		return "Very High"
	case High:
		return "High"
	case Medium:
		return "Medium"
	case Low:
		return "Low"
	default:
		return "Very Low"
	}
}

// MarshalText encodes the level by name.
func (l ConfidenceLevel) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// Percentage converts a confidence to a whole percentage, rounding half away from zero.
func Percentage(confidence float64) int {
	return int(math.Round(confidence * 100))
}
