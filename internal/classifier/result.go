package classifier

import (
	"math"
	"slices"
	"time"

	"github.com/tphakala/soilnet-go/internal/errors"
	"github.com/tphakala/soilnet-go/internal/logger"
	"github.com/tphakala/soilnet-go/internal/soil"
)

// DefaultConfidenceThreshold is the lowest confidence a primary label may have.
const DefaultConfidenceThreshold = 0.60

// Ranked is one entry of a result's ranked list.
type Ranked struct {
	Type       soil.Type            `json:"type"`
	Confidence float64              `json:"confidence"`
	Percentage int                  `json:"percentage"`
	Level      soil.ConfidenceLevel `json:"level"`
}

// Result is a classification with a primary label and every mapped
// candidate ranked by confidence.
type Result struct {
	Primary      soil.Type            `json:"primary"`
	Confidence   float64              `json:"confidence"`
	Level        soil.ConfidenceLevel `json:"level"`
	Ranked       []Ranked             `json:"ranked"`
	ModelVersion string               `json:"model_version,omitempty"`
	Elapsed      time.Duration        `json:"elapsed"`
}

// Percentage returns the primary confidence as a whole percentage.
func (r *Result) Percentage() int {
	return soil.Percentage(r.Confidence)
}

// buildResult turns backend scores into a Result.
//
// Scores below threshold cannot become the primary label, but every
// mappable score appears in the ranked list so secondary entries can carry
// the Low and VeryLow levels. Labels that map to no soil type are dropped;
// a soil type appears at most once, at its highest confidence.
func buildResult(scores []Score, threshold float64) (*Result, error) {
	if len(scores) == 0 {
		return nil, errors.ErrNoResults
	}

	ordered := make([]Score, len(scores))
	for i, s := range scores {
		ordered[i] = Score{Label: s.Label, Confidence: sanitizeConfidence(s.Confidence)}
	}
	sortScores(ordered)

	if ordered[0].Confidence < threshold {
		return nil, errors.ErrLowConfidence
	}

	var seen [soil.Count]bool
	ranked := make([]Ranked, 0, soil.Count)
	for _, s := range ordered {
		t, ok := soil.MapLabel(s.Label)
		if !ok {
			GetLogger().Debug("dropping unmapped label",
				logger.String("label", s.Label),
				logger.Float64("confidence", s.Confidence))
			continue
		}
		if seen[t] {
			continue
		}
		seen[t] = true
		ranked = append(ranked, Ranked{
			Type:       t,
			Confidence: s.Confidence,
			Percentage: soil.Percentage(s.Confidence),
			Level:      soil.LevelFor(s.Confidence),
		})
	}

	if len(ranked) == 0 || ranked[0].Confidence < threshold {
		return nil, errors.ClassificationFailed("no candidate above the confidence threshold maps to a soil type", nil)
	}

	primary := ranked[0]
	return &Result{
		Primary:    primary.Type,
		Confidence: primary.Confidence,
		Level:      primary.Level,
		Ranked:     slices.Clip(ranked),
	}, nil
}

// sanitizeConfidence clamps to [0, 1]; NaN becomes 0.
func sanitizeConfidence(c float64) float64 {
	switch {
	case math.IsNaN(c), c < 0:
		return 0
	case c > 1:
		return 1
	default:
		return c
	}
}
