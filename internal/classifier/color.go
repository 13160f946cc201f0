package classifier

import (
	"context"
	"fmt"
	"math"
	"sync/atomic"

	"github.com/tphakala/soilnet-go/internal/errors"
)

// colorSharpness scales colour distance into logits. Higher values make the
// nearest reference dominate.
const colorSharpness = 12.0

// colorReferences are typical mean RGB values of each soil type in daylight.
var colorReferences = []struct {
	label   string
	r, g, b float64
}{
	{"clay", 0.55, 0.30, 0.20},
	{"loam", 0.36, 0.25, 0.17},
	{"sandy", 0.78, 0.66, 0.46},
	{"silt", 0.55, 0.50, 0.44},
	{"peat", 0.16, 0.12, 0.09},
	{"chalk", 0.88, 0.86, 0.80},
}

// ColorScorer ranks soil types by the distance between the image's mean
// colour and a fixed reference per type. It is the fallback when no model
// file is configured and is only a rough heuristic.
type ColorScorer struct {
	loaded atomic.Bool
}

// NewColorScorer creates an unloaded ColorScorer.
func NewColorScorer() *ColorScorer {
	return &ColorScorer{}
}

// Load has nothing to read and succeeds unless ctx is already done.
func (s *ColorScorer) Load(ctx context.Context) (ModelInfo, error) {
	if err := ctx.Err(); err != nil {
		return ModelInfo{}, err
	}
	s.loaded.Store(true)

	labels := make([]string, len(colorReferences))
	for i, ref := range colorReferences {
		labels[i] = ref.label
	}
	return ModelInfo{
		Version:   "color-reference",
		Labels:    labels,
		InputSize: 0,
		Source:    "builtin",
	}, nil
}

// Score expects interleaved RGB values in [0, 1].
func (s *ColorScorer) Score(input []float32) ([]Score, error) {
	if !s.loaded.Load() {
		return nil, errors.ErrModelNotLoaded
	}
	if len(input) == 0 || len(input)%3 != 0 {
		return nil, errors.ClassificationFailed(
			fmt.Sprintf("input length %d is not a whole number of RGB pixels", len(input)), nil)
	}

	var r, g, b float64
	for i := 0; i < len(input); i += 3 {
		r += float64(input[i])
		g += float64(input[i+1])
		b += float64(input[i+2])
	}
	n := float64(len(input) / 3)
	r, g, b = r/n, g/n, b/n

	logits := make([]float64, len(colorReferences))
	labels := make([]string, len(colorReferences))
	for i, ref := range colorReferences {
		dist := math.Sqrt((r-ref.r)*(r-ref.r) + (g-ref.g)*(g-ref.g) + (b-ref.b)*(b-ref.b))
		logits[i] = -dist * colorSharpness
		labels[i] = ref.label
	}
	return pairLabels(labels, softmax(logits))
}

// Close marks the scorer unloaded.
func (s *ColorScorer) Close() error {
	s.loaded.Store(false)
	return nil
}
