package classifier

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tphakala/soilnet-go/internal/errors"
	"github.com/tphakala/soilnet-go/internal/soil"
)

func TestBuildResultPrimaryAndRanking(t *testing.T) {
	t.Parallel()

	scores := []Score{
		{Label: "Clay", Confidence: 0.82},
		{Label: "loam", Confidence: 0.10},
		{Label: "silt", Confidence: 0.05},
		{Label: "sandy", Confidence: 0.02},
		{Label: "peat", Confidence: 0.007},
		{Label: "chalk", Confidence: 0.003},
	}

	r, err := buildResult(scores, DefaultConfidenceThreshold)
	require.NoError(t, err)

	assert.Equal(t, soil.Clay, r.Primary)
	assert.InDelta(t, 0.82, r.Confidence, 1e-9)
	assert.Equal(t, soil.High, r.Level)
	assert.Equal(t, 82, r.Percentage())

	require.Len(t, r.Ranked, 6)
	assert.Equal(t, soil.Loam, r.Ranked[1].Type)
	assert.Equal(t, 10, r.Ranked[1].Percentage)
	assert.Equal(t, soil.VeryLow, r.Ranked[1].Level, "secondary entries keep sub-threshold levels")
}

func TestBuildResultEmptyScores(t *testing.T) {
	t.Parallel()

	_, err := buildResult(nil, DefaultConfidenceThreshold)
	require.ErrorIs(t, err, errors.ErrNoResults)
}

func TestBuildResultLowConfidence(t *testing.T) {
	t.Parallel()

	scores := []Score{
		{Label: "clay", Confidence: 0.59},
		{Label: "loam", Confidence: 0.30},
		{Label: "silt", Confidence: 0.11},
	}
	_, err := buildResult(scores, DefaultConfidenceThreshold)
	require.ErrorIs(t, err, errors.ErrLowConfidence)
	assert.Equal(t, errors.ClassInferenceFailure, errors.ClassOf(err))
}

func TestBuildResultThresholdIsInclusive(t *testing.T) {
	t.Parallel()

	r, err := buildResult([]Score{{Label: "peat", Confidence: 0.60}, {Label: "silt", Confidence: 0.40}}, 0.60)
	require.NoError(t, err)
	assert.Equal(t, soil.Peat, r.Primary)
	assert.Equal(t, soil.Medium, r.Level)
	assert.Equal(t, soil.Low, r.Ranked[1].Level)
}

func TestBuildResultDropsUnmappedLabels(t *testing.T) {
	t.Parallel()

	scores := []Score{
		{Label: "sandy loam", Confidence: 0.70},
		{Label: "gravel", Confidence: 0.20},
		{Label: "chalky", Confidence: 0.10},
	}
	r, err := buildResult(scores, DefaultConfidenceThreshold)
	require.NoError(t, err)
	assert.Equal(t, soil.Loam, r.Primary)
	require.Len(t, r.Ranked, 2)
	assert.Equal(t, soil.Chalk, r.Ranked[1].Type)
}

func TestBuildResultUnmappedTopCandidate(t *testing.T) {
	t.Parallel()

	scores := []Score{
		{Label: "gravel", Confidence: 0.90},
		{Label: "clay", Confidence: 0.10},
	}
	_, err := buildResult(scores, DefaultConfidenceThreshold)
	require.Error(t, err)

	var failed *errors.ClassificationFailedError
	require.ErrorAs(t, err, &failed)
}

func TestBuildResultNoDuplicateLabels(t *testing.T) {
	t.Parallel()

	scores := []Score{
		{Label: "clay", Confidence: 0.65},
		{Label: "clay soil", Confidence: 0.20},
		{Label: "red clay", Confidence: 0.10},
		{Label: "silt", Confidence: 0.05},
	}
	r, err := buildResult(scores, DefaultConfidenceThreshold)
	require.NoError(t, err)

	require.Len(t, r.Ranked, 2)
	assert.Equal(t, soil.Clay, r.Ranked[0].Type)
	assert.InDelta(t, 0.65, r.Ranked[0].Confidence, 1e-9)
	assert.Equal(t, soil.Silt, r.Ranked[1].Type)
}

func TestBuildResultSortsUnorderedBackends(t *testing.T) {
	t.Parallel()

	scores := []Score{
		{Label: "silt", Confidence: 0.05},
		{Label: "chalk", Confidence: 0.91},
		{Label: "loam", Confidence: 0.04},
	}
	r, err := buildResult(scores, DefaultConfidenceThreshold)
	require.NoError(t, err)
	assert.Equal(t, soil.Chalk, r.Primary)
	assert.Equal(t, soil.VeryHigh, r.Level)
	for i := 1; i < len(r.Ranked); i++ {
		assert.GreaterOrEqual(t, r.Ranked[i-1].Confidence, r.Ranked[i].Confidence)
	}
}

func TestBuildResultSanitizesConfidence(t *testing.T) {
	t.Parallel()

	scores := []Score{
		{Label: "clay", Confidence: math.NaN()},
		{Label: "loam", Confidence: 1.7},
	}
	r, err := buildResult(scores, DefaultConfidenceThreshold)
	require.NoError(t, err)
	assert.Equal(t, soil.Loam, r.Primary)
	assert.InDelta(t, 1.0, r.Confidence, 0)
	assert.InDelta(t, 0.0, r.Ranked[1].Confidence, 0)
}

// Property: the primary confidence never drops below the threshold and the
// ranked list is non-increasing without duplicates.
func TestBuildResultInvariants(t *testing.T) {
	t.Parallel()

	labels := []string{"clay", "loam", "sandy", "silt", "peat", "chalk", "clay soil", "mud"}
	for seed := range 200 {
		scores := make([]Score, 6)
		for i := range scores {
			// Deterministic pseudo-random spread in [0, 1).
			v := math.Mod(float64(seed*7919+i*104729)*0.6180339887, 1)
			scores[i] = Score{Label: labels[(seed+i*3)%len(labels)], Confidence: v}
		}

		r, err := buildResult(scores, DefaultConfidenceThreshold)
		if err != nil {
			continue
		}
		assert.GreaterOrEqual(t, r.Confidence, DefaultConfidenceThreshold)
		seen := map[soil.Type]bool{}
		for i, entry := range r.Ranked {
			assert.False(t, seen[entry.Type], "duplicate %s", entry.Type)
			seen[entry.Type] = true
			if i > 0 {
				assert.GreaterOrEqual(t, r.Ranked[i-1].Confidence, entry.Confidence)
			}
		}
		assert.LessOrEqual(t, len(r.Ranked), soil.Count)
	}
}

func TestNormalizeOutputs(t *testing.T) {
	t.Parallel()

	probs := []float64{0.7, 0.2, 0.1}
	assert.Equal(t, probs, normalizeOutputs(probs))

	logits := normalizeOutputs([]float64{2.0, 1.0, 0.1})
	sum := 0.0
	for _, p := range logits {
		sum += p
	}
	assert.InDelta(t, 1.0, sum, 1e-9)
	assert.Greater(t, logits[0], logits[1])
	assert.Greater(t, logits[1], logits[2])
}

func TestPairLabels(t *testing.T) {
	t.Parallel()

	scores, err := pairLabels([]string{"clay", "loam", "silt"}, []float64{0.1, 0.7, 0.2})
	require.NoError(t, err)
	assert.Equal(t, []Score{
		{Label: "loam", Confidence: 0.7},
		{Label: "silt", Confidence: 0.2},
		{Label: "clay", Confidence: 0.1},
	}, scores)

	_, err = pairLabels([]string{"clay"}, []float64{0.5, 0.5})
	require.Error(t, err)
}
