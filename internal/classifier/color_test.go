package classifier

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tphakala/soilnet-go/internal/errors"
)

func uniformTensor(r, g, b float32, pixels int) []float32 {
	out := make([]float32, 0, pixels*3)
	for range pixels {
		out = append(out, r, g, b)
	}
	return out
}

func TestColorScorerRanksNearestReference(t *testing.T) {
	t.Parallel()

	s := NewColorScorer()
	info, err := s.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "color-reference", info.Version)
	assert.ElementsMatch(t, DefaultLabels, info.Labels)

	tests := []struct {
		name    string
		r, g, b float32
		want    string
	}{
		{"tan", 0.80, 0.67, 0.45, "sandy"},
		{"near black", 0.10, 0.08, 0.06, "peat"},
		{"off white", 0.90, 0.88, 0.83, "chalk"},
		{"brick", 0.58, 0.30, 0.19, "clay"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			scores, err := s.Score(uniformTensor(tt.r, tt.g, tt.b, 16))
			require.NoError(t, err)
			require.Len(t, scores, len(colorReferences))
			assert.Equal(t, tt.want, scores[0].Label)

			sum := 0.0
			for i, sc := range scores {
				sum += sc.Confidence
				if i > 0 {
					assert.LessOrEqual(t, sc.Confidence, scores[i-1].Confidence)
				}
			}
			assert.InDelta(t, 1.0, sum, 1e-9)
		})
	}
}

func TestColorScorerErrors(t *testing.T) {
	t.Parallel()

	s := NewColorScorer()
	_, err := s.Score(uniformTensor(0.5, 0.5, 0.5, 1))
	require.ErrorIs(t, err, errors.ErrModelNotLoaded)

	_, err = s.Load(context.Background())
	require.NoError(t, err)

	_, err = s.Score([]float32{0.1, 0.2})
	require.Error(t, err)

	require.NoError(t, s.Close())
	_, err = s.Score(uniformTensor(0.5, 0.5, 0.5, 1))
	require.ErrorIs(t, err, errors.ErrModelNotLoaded)
}

func TestColorScorerThroughEngine(t *testing.T) {
	t.Parallel()

	e := NewEngine(NewColorScorer(), Options{Threshold: 0.3})
	require.NoError(t, e.Load(context.Background()))
	t.Cleanup(func() { _ = e.Shutdown(context.Background()) })

	res, err := e.ClassifySync(context.Background(), uniformTensor(0.15, 0.11, 0.08, 64))
	require.NoError(t, err)
	assert.Equal(t, "peat", res.Primary.String())
}
