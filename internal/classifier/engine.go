// Package classifier turns normalized soil images into ranked soil type
// classifications.
//
// An Engine owns a Scorer and its lifecycle. Loading runs once in the
// background; Classify calls made before the model is ready fail fast with
// ErrModelNotLoaded instead of queuing, and callers retry.
//
//	engine := classifier.NewEngine(classifier.NewTFLiteScorer(cfg), classifier.Options{})
//	engine.Init(ctx)
//	...
//	outcome := <-engine.Classify(ctx, buffer.Tensor())
package classifier

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tphakala/soilnet-go/internal/errors"
	"github.com/tphakala/soilnet-go/internal/logger"
	"github.com/tphakala/soilnet-go/internal/observability/metrics"
)

// State is the model lifecycle state.
type State int32

const (
	StateUnloaded State = iota
	StateLoading
	StateLoaded
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateUnloaded:
		return "unloaded"
	case StateLoading:
		return "loading"
	case StateLoaded:
		return "loaded"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Options configures an Engine.
type Options struct {
	Threshold float64 // defaults to DefaultConfidenceThreshold
	Metrics   *metrics.ClassifierMetrics
	Logger    logger.Logger
}

// Outcome is delivered exactly once per Classify call.
type Outcome struct {
	Result *Result
	Err    error
}

// Engine classifies normalized buffers with a shared, read-only model.
type Engine struct {
	scorer    Scorer
	threshold float64
	metrics   *metrics.ClassifierMetrics
	log       logger.Logger

	state atomic.Int32
	info  atomic.Pointer[ModelInfo]

	mu       sync.Mutex
	loadErr  error
	closed   bool
	started  bool
	ready    chan struct{}
	inflight sync.WaitGroup
}

// NewEngine creates an engine in the Unloaded state.
func NewEngine(scorer Scorer, opts Options) *Engine {
	threshold := opts.Threshold
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultConfidenceThreshold
	}
	log := opts.Logger
	if log == nil {
		log = GetLogger()
	}
	return &Engine{
		scorer:    scorer,
		threshold: threshold,
		metrics:   opts.Metrics,
		log:       log,
		ready:     make(chan struct{}),
	}
}

// Init starts the one-time background load and returns immediately.
// Later calls are no-ops.
func (e *Engine) Init(ctx context.Context) {
	e.mu.Lock()
	if e.started || e.closed {
		e.mu.Unlock()
		return
	}
	e.started = true
	e.state.Store(int32(StateLoading))
	e.inflight.Add(1)
	e.mu.Unlock()

	go func() {
		defer e.inflight.Done()
		e.load(ctx)
	}()
}

func (e *Engine) load(ctx context.Context) {
	start := time.Now()
	info, err := e.scorer.Load(ctx)
	elapsed := time.Since(start)
	e.metrics.RecordModelLoad(elapsed, err)

	e.mu.Lock()
	if err != nil {
		e.loadErr = errors.New(fmt.Errorf("%w: %w", errors.ErrModelLoadFailed, err)).
			Component("classifier").
			Category(errors.CategoryModelLoad).
			Timing("model-load", elapsed).
			Build()
		e.state.Store(int32(StateFailed))
	} else {
		e.info.Store(&info)
		e.state.Store(int32(StateLoaded))
	}
	close(e.ready)
	e.mu.Unlock()

	if err != nil {
		e.log.Error("model load failed", logger.Error(err), logger.Duration("elapsed", elapsed))
		return
	}
	e.log.Info("model loaded",
		logger.String("version", info.Version),
		logger.Int("labels", len(info.Labels)),
		logger.Duration("elapsed", elapsed))
}

// Load starts loading if needed and waits for it to finish or ctx to end.
// An engine shut down before it ever started loading fails immediately.
func (e *Engine) Load(ctx context.Context) error {
	e.Init(ctx)

	e.mu.Lock()
	neverStarted := e.closed && !e.started
	e.mu.Unlock()
	if neverStarted {
		return e.notLoadedError(StateUnloaded)
	}

	select {
	case <-e.ready:
		return e.LoadError()
	case <-ctx.Done():
		return errors.New(ctx.Err()).
			Component("classifier").
			Category(errors.CategoryTimeout).
			Context("state", e.State().String()).
			Build()
	}
}

// Ready is closed once loading has finished, successfully or not.
func (e *Engine) Ready() <-chan struct{} {
	return e.ready
}

// State returns the current lifecycle state.
func (e *Engine) State() State {
	return State(e.state.Load())
}

// LoadError returns the load failure, if any.
func (e *Engine) LoadError() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.loadErr
}

// ModelInfo returns the loaded model's description.
func (e *Engine) ModelInfo() (ModelInfo, bool) {
	info := e.info.Load()
	if info == nil {
		return ModelInfo{}, false
	}
	return *info, true
}

// Threshold returns the primary confidence threshold.
func (e *Engine) Threshold() float64 {
	return e.threshold
}

// Classify scores input on its own goroutine. The returned channel
// delivers exactly one Outcome and is then closed. Calls made before the
// model is loaded complete immediately with ErrModelNotLoaded.
func (e *Engine) Classify(ctx context.Context, input []float32) <-chan Outcome {
	out := make(chan Outcome, 1)

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		out <- Outcome{Err: e.notLoadedError(StateUnloaded)}
		close(out)
		return out
	}
	if state := e.State(); state != StateLoaded {
		e.mu.Unlock()
		out <- Outcome{Err: e.notLoadedError(state)}
		close(out)
		return out
	}
	e.inflight.Add(1)
	e.mu.Unlock()

	go func() {
		defer e.inflight.Done()
		defer close(out)
		result, err := e.classify(ctx, input)
		out <- Outcome{Result: result, Err: err}
	}()
	return out
}

// ClassifySync waits for Classify's outcome or ctx, whichever comes first.
func (e *Engine) ClassifySync(ctx context.Context, input []float32) (*Result, error) {
	select {
	case o := <-e.Classify(ctx, input):
		return o.Result, o.Err
	case <-ctx.Done():
		return nil, errors.New(ctx.Err()).
			Component("classifier").
			Category(errors.CategoryCancellation).
			Build()
	}
}

func (e *Engine) notLoadedError(state State) error {
	if state == StateFailed {
		return errors.New(fmt.Errorf("%w: %w", errors.ErrModelNotLoaded, errors.ErrModelLoadFailed)).
			Component("classifier").
			Category(errors.CategoryState).
			Context("state", state.String()).
			Build()
	}
	return errors.New(errors.ErrModelNotLoaded).
		Component("classifier").
		Category(errors.CategoryState).
		Context("state", state.String()).
		Build()
}

func (e *Engine) classify(ctx context.Context, input []float32) (result *Result, err error) {
	start := time.Now()
	done := e.metrics.ClassificationStarted()
	defer func() {
		done()
		e.metrics.RecordClassification(time.Since(start), errors.ClassOf(err).String(), err)
	}()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(input) == 0 {
		return nil, errors.New(fmt.Errorf("%w: empty input buffer", errors.ErrInvalidImage)).
			Component("classifier").
			Category(errors.CategoryImageInput).
			Build()
	}

	invokeStart := time.Now()
	scores, err := e.scorer.Score(input)
	e.metrics.RecordModelInvoke(time.Since(invokeStart))
	if err != nil {
		if errors.Is(err, errors.ErrModelNotLoaded) {
			return nil, err
		}
		var failed *errors.ClassificationFailedError
		if errors.As(err, &failed) {
			return nil, err
		}
		return nil, errors.ClassificationFailed("scoring backend error", err)
	}

	result, err = buildResult(scores, e.threshold)
	if err != nil {
		e.log.Debug("classification rejected",
			logger.Error(err),
			logger.Int("scores", len(scores)))
		return nil, err
	}

	if info, ok := e.ModelInfo(); ok {
		result.ModelVersion = info.Version
	}
	result.Elapsed = time.Since(start)
	e.metrics.RecordPrimary(result.Primary.String(), result.Confidence)

	e.log.Debug("classification complete",
		logger.String("primary", result.Primary.String()),
		logger.Float64("confidence", result.Confidence),
		logger.String("level", result.Level.String()),
		logger.Int("ranked", len(result.Ranked)),
		logger.Duration("elapsed", result.Elapsed))
	return result, nil
}

// Shutdown rejects new calls, waits for the load and in-flight
// classifications to finish or ctx to end, and closes the scorer.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.mu.Unlock()

	waited := make(chan struct{})
	go func() {
		e.inflight.Wait()
		close(waited)
	}()

	select {
	case <-waited:
	case <-ctx.Done():
		return errors.New(ctx.Err()).
			Component("classifier").
			Category(errors.CategoryTimeout).
			Context("operation", "shutdown").
			Build()
	}

	e.state.Store(int32(StateUnloaded))
	e.metrics.SetModelUnloaded()
	if err := e.scorer.Close(); err != nil {
		return errors.New(err).
			Component("classifier").
			Category(errors.CategorySystem).
			Context("operation", "close_scorer").
			Build()
	}
	e.log.Info("classifier shut down")
	return nil
}
