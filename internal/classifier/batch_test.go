package classifier

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tphakala/soilnet-go/internal/errors"
	"github.com/tphakala/soilnet-go/internal/soil"
)

// markerScorer picks its answer from the first input value:
// 0 clay, 1 loam, anything else a backend failure.
func markerScorer() *MockScorer {
	scorer := NewMockScorer()
	scorer.ScoreFunc = func(input []float32) ([]Score, error) {
		switch input[0] {
		case 0:
			return []Score{{Label: "clay", Confidence: 0.9}, {Label: "loam", Confidence: 0.1}}, nil
		case 1:
			return []Score{{Label: "loam", Confidence: 0.8}, {Label: "clay", Confidence: 0.2}}, nil
		default:
			return nil, fmt.Errorf("invoke failed")
		}
	}
	return scorer
}

func markedInput(marker float32) []float32 {
	in := make([]float32, 4)
	in[0] = marker
	return in
}

func TestClassifyBatchPreservesOrder(t *testing.T) {
	t.Parallel()

	engine := newLoadedEngine(t, markerScorer(), Options{})
	inputs := [][]float32{markedInput(0), markedInput(1), markedInput(0), markedInput(1)}

	results, err := engine.ClassifyBatch(context.Background(), inputs)
	require.NoError(t, err)
	require.Len(t, results, 4)
	assert.Equal(t, soil.Clay, results[0].Primary)
	assert.Equal(t, soil.Loam, results[1].Primary)
	assert.Equal(t, soil.Clay, results[2].Primary)
	assert.Equal(t, soil.Loam, results[3].Primary)
}

func TestClassifyBatchIsAllOrNothing(t *testing.T) {
	t.Parallel()

	engine := newLoadedEngine(t, markerScorer(), Options{})
	inputs := [][]float32{markedInput(0), markedInput(9), markedInput(1)}

	results, err := engine.ClassifyBatch(context.Background(), inputs)
	require.Error(t, err)
	assert.Nil(t, results, "successful items must be discarded when any item fails")
	assert.Contains(t, err.Error(), "batch item 1")

	var failed *errors.ClassificationFailedError
	assert.ErrorAs(t, err, &failed)
}

func TestClassifyBatchEmpty(t *testing.T) {
	t.Parallel()

	engine := newLoadedEngine(t, markerScorer(), Options{})
	results, err := engine.ClassifyBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestClassifyBatchPartialKeepsSuccesses(t *testing.T) {
	t.Parallel()

	engine := newLoadedEngine(t, markerScorer(), Options{})
	inputs := [][]float32{markedInput(0), markedInput(9), markedInput(1)}

	outcomes := engine.ClassifyBatchPartial(context.Background(), inputs, 2)
	require.Len(t, outcomes, 3)

	require.NoError(t, outcomes[0].Err)
	assert.Equal(t, soil.Clay, outcomes[0].Result.Primary)
	require.Error(t, outcomes[1].Err)
	assert.Nil(t, outcomes[1].Result)
	require.NoError(t, outcomes[2].Err)
	assert.Equal(t, soil.Loam, outcomes[2].Result.Primary)
}

func TestClassifyBatchPartialCancelled(t *testing.T) {
	t.Parallel()

	engine := newLoadedEngine(t, markerScorer(), Options{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	outcomes := engine.ClassifyBatchPartial(ctx, [][]float32{markedInput(0), markedInput(1)}, 1)
	require.Len(t, outcomes, 2)
	for _, o := range outcomes {
		require.Error(t, o.Err)
	}
}

func TestClassifyBatchBeforeLoad(t *testing.T) {
	t.Parallel()

	engine := NewEngine(markerScorer(), Options{})
	_, err := engine.ClassifyBatch(context.Background(), [][]float32{markedInput(0)})
	require.ErrorIs(t, err, errors.ErrModelNotLoaded)
}
