package classifier

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tphakala/soilnet-go/internal/errors"
	"github.com/tphakala/soilnet-go/internal/observability/metrics"
	"github.com/tphakala/soilnet-go/internal/soil"
)

func clayScores() []Score {
	return []Score{
		{Label: "clay", Confidence: 0.91},
		{Label: "loam", Confidence: 0.05},
		{Label: "silt", Confidence: 0.02},
		{Label: "sandy", Confidence: 0.01},
		{Label: "peat", Confidence: 0.007},
		{Label: "chalk", Confidence: 0.003},
	}
}

func testInput() []float32 {
	return make([]float32, 12)
}

// gatedScorer blocks Load until release is closed.
type gatedScorer struct {
	*MockScorer
	release chan struct{}
}

func (g *gatedScorer) Load(ctx context.Context) (ModelInfo, error) {
	select {
	case <-g.release:
	case <-ctx.Done():
		return ModelInfo{}, ctx.Err()
	}
	return g.MockScorer.Load(ctx)
}

func newLoadedEngine(t *testing.T, scorer Scorer, opts Options) *Engine {
	t.Helper()

	engine := NewEngine(scorer, opts)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, engine.Load(ctx))
	t.Cleanup(func() {
		_ = engine.Shutdown(context.Background())
	})
	return engine
}

func TestClassifyBeforeInitFailsFast(t *testing.T) {
	t.Parallel()

	engine := NewEngine(NewMockScorer(clayScores()...), Options{})
	assert.Equal(t, StateUnloaded, engine.State())

	outcomes := engine.Classify(context.Background(), testInput())
	o, ok := <-outcomes
	require.True(t, ok)
	require.ErrorIs(t, o.Err, errors.ErrModelNotLoaded)
	assert.Nil(t, o.Result)
	assert.True(t, errors.ClassOf(o.Err).Retryable())

	_, ok = <-outcomes
	assert.False(t, ok, "outcome channel must close after one delivery")
}

func TestClassifyWhileLoadingThenLoaded(t *testing.T) {
	t.Parallel()

	scorer := &gatedScorer{MockScorer: NewMockScorer(clayScores()...), release: make(chan struct{})}
	engine := NewEngine(scorer, Options{})
	t.Cleanup(func() { _ = engine.Shutdown(context.Background()) })

	engine.Init(context.Background())
	assert.Equal(t, StateLoading, engine.State())

	_, err := engine.ClassifySync(context.Background(), testInput())
	require.ErrorIs(t, err, errors.ErrModelNotLoaded)
	assert.Zero(t, scorer.Calls(), "requests must not queue behind loading")

	close(scorer.release)
	<-engine.Ready()
	assert.Equal(t, StateLoaded, engine.State())

	result, err := engine.ClassifySync(context.Background(), testInput())
	require.NoError(t, err)
	assert.Equal(t, soil.Clay, result.Primary)
	assert.Equal(t, "mock", result.ModelVersion)
}

func TestInitIsOneShot(t *testing.T) {
	t.Parallel()

	scorer := NewMockScorer(clayScores()...)
	engine := newLoadedEngine(t, scorer, Options{})

	engine.Init(context.Background())
	require.NoError(t, engine.Load(context.Background()))
	assert.Equal(t, 1, scorer.Loads())
}

func TestLoadFailure(t *testing.T) {
	t.Parallel()

	scorer := NewMockScorer()
	scorer.LoadErr = fmt.Errorf("corrupt flatbuffer")
	engine := NewEngine(scorer, Options{})
	t.Cleanup(func() { _ = engine.Shutdown(context.Background()) })

	err := engine.Load(context.Background())
	require.ErrorIs(t, err, errors.ErrModelLoadFailed)
	assert.Equal(t, StateFailed, engine.State())
	assert.ErrorIs(t, engine.LoadError(), errors.ErrModelLoadFailed)

	_, err = engine.ClassifySync(context.Background(), testInput())
	require.ErrorIs(t, err, errors.ErrModelNotLoaded)
	require.ErrorIs(t, err, errors.ErrModelLoadFailed)

	_, ok := engine.ModelInfo()
	assert.False(t, ok)
}

func TestLoadTimeout(t *testing.T) {
	t.Parallel()

	scorer := NewMockScorer(clayScores()...)
	scorer.LoadDelay = 10 * time.Second
	engine := NewEngine(scorer, Options{})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := engine.Load(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	<-engine.Ready()
	assert.Equal(t, StateFailed, engine.State())
	require.NoError(t, engine.Shutdown(context.Background()))
}

func TestClassifyPropagatesErrors(t *testing.T) {
	t.Parallel()

	t.Run("empty input", func(t *testing.T) {
		t.Parallel()
		engine := newLoadedEngine(t, NewMockScorer(clayScores()...), Options{})
		_, err := engine.ClassifySync(context.Background(), nil)
		require.ErrorIs(t, err, errors.ErrInvalidImage)
		assert.Equal(t, errors.ClassInputValidation, errors.ClassOf(err))
	})

	t.Run("no results", func(t *testing.T) {
		t.Parallel()
		engine := newLoadedEngine(t, NewMockScorer(), Options{})
		_, err := engine.ClassifySync(context.Background(), testInput())
		require.ErrorIs(t, err, errors.ErrNoResults)
	})

	t.Run("low confidence", func(t *testing.T) {
		t.Parallel()
		engine := newLoadedEngine(t, NewMockScorer(
			Score{Label: "clay", Confidence: 0.5},
			Score{Label: "loam", Confidence: 0.5},
		), Options{})
		_, err := engine.ClassifySync(context.Background(), testInput())
		require.ErrorIs(t, err, errors.ErrLowConfidence)
	})

	t.Run("backend failure", func(t *testing.T) {
		t.Parallel()
		scorer := NewMockScorer()
		scorer.ScoreFunc = func([]float32) ([]Score, error) {
			return nil, fmt.Errorf("invoke status 1")
		}
		engine := newLoadedEngine(t, scorer, Options{})
		_, err := engine.ClassifySync(context.Background(), testInput())

		var failed *errors.ClassificationFailedError
		require.ErrorAs(t, err, &failed)
		assert.Equal(t, "scoring backend error", failed.Reason)
		assert.Equal(t, errors.ClassInferenceFailure, errors.ClassOf(err))
	})

	t.Run("custom threshold", func(t *testing.T) {
		t.Parallel()
		engine := newLoadedEngine(t, NewMockScorer(Score{Label: "silt", Confidence: 0.8}), Options{Threshold: 0.85})
		assert.InDelta(t, 0.85, engine.Threshold(), 0)
		_, err := engine.ClassifySync(context.Background(), testInput())
		require.ErrorIs(t, err, errors.ErrLowConfidence)
	})
}

func TestClassifyConcurrentCallsShareModel(t *testing.T) {
	t.Parallel()

	scorer := NewMockScorer(clayScores()...)
	engine := newLoadedEngine(t, scorer, Options{})

	const calls = 50
	var wg sync.WaitGroup
	errs := make(chan error, calls)
	for range calls {
		wg.Go(func() {
			result, err := engine.ClassifySync(context.Background(), testInput())
			if err == nil && result.Primary != soil.Clay {
				err = fmt.Errorf("unexpected primary %s", result.Primary)
			}
			errs <- err
		})
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	assert.Equal(t, calls, scorer.Calls())
}

func TestClassifySyncHonorsContext(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	scorer := NewMockScorer()
	scorer.ScoreFunc = func([]float32) ([]Score, error) {
		<-release
		return clayScores(), nil
	}
	engine := newLoadedEngine(t, scorer, Options{})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := engine.ClassifySync(ctx, testInput())
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryCancellation))

	close(release)
}

func TestShutdown(t *testing.T) {
	t.Parallel()

	scorer := NewMockScorer(clayScores()...)
	engine := NewEngine(scorer, Options{})
	require.NoError(t, engine.Load(context.Background()))

	require.NoError(t, engine.Shutdown(context.Background()))
	assert.True(t, scorer.Closed())
	assert.Equal(t, StateUnloaded, engine.State())

	_, err := engine.ClassifySync(context.Background(), testInput())
	require.ErrorIs(t, err, errors.ErrModelNotLoaded)

	require.NoError(t, engine.Shutdown(context.Background()))
}

func TestLoadAfterShutdownFailsFast(t *testing.T) {
	t.Parallel()

	scorer := NewMockScorer(clayScores()...)
	engine := NewEngine(scorer, Options{})
	require.NoError(t, engine.Shutdown(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	start := time.Now()
	err := engine.Load(ctx)
	require.ErrorIs(t, err, errors.ErrModelNotLoaded)
	assert.Less(t, time.Since(start), time.Second, "Load must not wait for the deadline")
	assert.Equal(t, StateUnloaded, engine.State())
}

func TestShutdownWaitsForInflight(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	started := make(chan struct{})
	scorer := NewMockScorer()
	scorer.ScoreFunc = func([]float32) ([]Score, error) {
		close(started)
		<-release
		return clayScores(), nil
	}
	engine := NewEngine(scorer, Options{})
	require.NoError(t, engine.Load(context.Background()))

	outcome := engine.Classify(context.Background(), testInput())
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.Error(t, engine.Shutdown(ctx), "shutdown must not finish while a call is in flight")

	close(release)
	o := <-outcome
	require.NoError(t, o.Err)
	assert.Equal(t, soil.Clay, o.Result.Primary)
}

func TestEngineRecordsMetrics(t *testing.T) {
	t.Parallel()

	m, err := metrics.NewClassifierMetrics(prometheus.NewRegistry())
	require.NoError(t, err)

	engine := newLoadedEngine(t, NewMockScorer(clayScores()...), Options{Metrics: m})
	_, err = engine.ClassifySync(context.Background(), testInput())
	require.NoError(t, err)
	_, err = engine.ClassifySync(context.Background(), nil)
	require.Error(t, err)

	assert.InDelta(t, 1.0, testutil.ToFloat64(m.ModelLoadedGauge), 0)
	assert.InDelta(t, 1.0, testutil.ToFloat64(m.ClassificationTotal.WithLabelValues(metrics.StatusSuccess)), 0)
	assert.InDelta(t, 1.0, testutil.ToFloat64(m.ClassificationErrors.WithLabelValues("input-validation")), 0)
	assert.InDelta(t, 1.0, testutil.ToFloat64(m.PrimaryLabelCounter.WithLabelValues("clay")), 0)
}

func TestStateString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "loading", StateLoading.String())
	assert.Equal(t, "failed", StateFailed.String())
	assert.Equal(t, "state(9)", State(9).String())
}
