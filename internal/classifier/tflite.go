package classifier

import (
	"context"
	"fmt"
	"math"
	"os"
	"runtime"
	"slices"
	"sync"
	"time"

	tflite "github.com/tphakala/go-tflite"
	"github.com/tphakala/go-tflite/delegates/xnnpack"
	"github.com/tphakala/soilnet-go/internal/cpuspec"
	"github.com/tphakala/soilnet-go/internal/errors"
	"github.com/tphakala/soilnet-go/internal/logger"
)

// softmaxTolerance is how far an output sum may drift from 1 before the
// raw outputs are treated as logits.
const softmaxTolerance = 0.01

// TFLiteConfig configures a TFLiteScorer.
type TFLiteConfig struct {
	ModelPath    string
	MetadataPath string // empty means model_metadata.json next to the model
	Threads      int    // 0 picks a count from the CPU topology
	UseXNNPACK   bool
}

// TFLiteScorer scores images with a TensorFlow Lite model.
// The interpreter is not reentrant, so Score serializes on mu.
type TFLiteScorer struct {
	cfg TFLiteConfig

	mu          sync.Mutex
	model       *tflite.Model
	interpreter *tflite.Interpreter
	labels      []string
	inputLen    int
}

// NewTFLiteScorer creates an unloaded scorer.
func NewTFLiteScorer(cfg TFLiteConfig) *TFLiteScorer {
	return &TFLiteScorer{cfg: cfg}
}

// Load reads the model and its metadata and allocates the interpreter.
func (s *TFLiteScorer) Load(ctx context.Context) (ModelInfo, error) {
	start := time.Now()
	if err := ctx.Err(); err != nil {
		return ModelInfo{}, err
	}

	if s.cfg.ModelPath == "" {
		return ModelInfo{}, errors.Newf("%w: model path not configured", errors.ErrModelLoadFailed).
			Component("classifier").
			Category(errors.CategoryConfiguration).
			Build()
	}

	meta, err := ResolveMetadata(s.cfg.ModelPath, s.cfg.MetadataPath)
	if err != nil {
		return ModelInfo{}, err
	}

	modelData, err := os.ReadFile(s.cfg.ModelPath)
	if err != nil {
		return ModelInfo{}, errors.New(fmt.Errorf("%w: %w", errors.ErrModelLoadFailed, err)).
			Component("classifier").
			Category(errors.CategoryModelLoad).
			ModelContext(s.cfg.ModelPath, meta.Version).
			Timing("model-read", time.Since(start)).
			Build()
	}

	model := tflite.NewModel(modelData)
	if model == nil {
		return ModelInfo{}, errors.Newf("%w: cannot parse TensorFlow Lite model", errors.ErrModelLoadFailed).
			Component("classifier").
			Category(errors.CategoryModelInit).
			ModelContext(s.cfg.ModelPath, meta.Version).
			Context("model_size_kb", len(modelData)/1024).
			Build()
	}

	threads := cpuspec.ThreadCount(s.cfg.Threads)
	options := tflite.NewInterpreterOptions()
	defer options.Delete()

	log := GetLogger()
	if s.cfg.UseXNNPACK {
		delegate := xnnpack.New(xnnpack.DelegateOptions{NumThreads: int32(max(1, threads-1))}) //nolint:gosec // bounded by CPU count
		if delegate == nil {
			log.Warn("failed to create XNNPACK delegate, falling back to default CPU kernels")
			options.SetNumThread(threads)
		} else {
			options.AddDelegate(delegate)
			options.SetNumThread(1)
		}
	} else {
		options.SetNumThread(threads)
	}
	options.SetErrorReporter(func(msg string, _ any) {
		GetLogger().Error("TFLite error", logger.String("message", msg))
	}, nil)

	interpreter := tflite.NewInterpreter(model, options)
	if interpreter == nil {
		model.Delete()
		return ModelInfo{}, errors.Newf("%w: cannot create interpreter", errors.ErrModelLoadFailed).
			Component("classifier").
			Category(errors.CategoryModelInit).
			ModelContext(s.cfg.ModelPath, meta.Version).
			Build()
	}
	if status := interpreter.AllocateTensors(); status != tflite.OK {
		interpreter.Delete()
		model.Delete()
		return ModelInfo{}, errors.Newf("%w: tensor allocation failed: %v", errors.ErrModelLoadFailed, status).
			Component("classifier").
			Category(errors.CategoryModelInit).
			ModelContext(s.cfg.ModelPath, meta.Version).
			Build()
	}

	if err := validateTensors(interpreter, meta); err != nil {
		interpreter.Delete()
		model.Delete()
		return ModelInfo{}, err
	}

	// TFLite keeps its own copy of the flatbuffer.
	runtime.GC()

	if err := ctx.Err(); err != nil {
		interpreter.Delete()
		model.Delete()
		return ModelInfo{}, err
	}

	s.mu.Lock()
	s.model = model
	s.interpreter = interpreter
	s.labels = slices.Clone(meta.SoilTypes)
	s.inputLen = meta.InputLen()
	s.mu.Unlock()

	log.Info("soil model initialized",
		logger.String("model", s.cfg.ModelPath),
		logger.String("version", meta.Version),
		logger.Int("labels", len(meta.SoilTypes)),
		logger.Int("threads", threads),
		logger.Bool("xnnpack", s.cfg.UseXNNPACK),
		logger.Duration("elapsed", time.Since(start)))

	return ModelInfo{
		Version:   meta.Version,
		Author:    meta.Author,
		Labels:    slices.Clone(meta.SoilTypes),
		InputSize: meta.InputShape[0],
		Source:    s.cfg.ModelPath,
	}, nil
}

// validateTensors checks the model's input and output shapes against the metadata.
func validateTensors(interpreter *tflite.Interpreter, meta *ModelMetadata) error {
	input := interpreter.GetInputTensor(0)
	if input == nil {
		return errors.Newf("%w: model has no input tensor", errors.ErrModelLoadFailed).
			Component("classifier").
			Category(errors.CategoryValidation).
			Build()
	}
	if got := len(input.Float32s()); got != meta.InputLen() {
		return errors.Newf("%w: input tensor holds %d values, metadata shape %v needs %d",
			errors.ErrModelLoadFailed, got, meta.InputShape, meta.InputLen()).
			Component("classifier").
			Category(errors.CategoryValidation).
			Build()
	}

	output := interpreter.GetOutputTensor(0)
	if output == nil {
		return errors.Newf("%w: model has no output tensor", errors.ErrModelLoadFailed).
			Component("classifier").
			Category(errors.CategoryValidation).
			Build()
	}
	if classes := output.Dim(output.NumDims() - 1); classes != len(meta.SoilTypes) {
		return errors.Newf("%w: label count mismatch: model outputs %d classes but metadata lists %d",
			errors.ErrModelLoadFailed, classes, len(meta.SoilTypes)).
			Component("classifier").
			Category(errors.CategoryLabelLoad).
			Context("expected_labels", classes).
			Context("actual_labels", len(meta.SoilTypes)).
			Build()
	}
	return nil
}

// Score runs one inference. input must be a normalized NHWC tensor.
func (s *TFLiteScorer) Score(input []float32) ([]Score, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.interpreter == nil {
		return nil, errors.ErrModelNotLoaded
	}
	if len(input) != s.inputLen {
		return nil, errors.ClassificationFailed(
			fmt.Sprintf("input holds %d values, model expects %d", len(input), s.inputLen), nil)
	}

	inputTensor := s.interpreter.GetInputTensor(0)
	copy(inputTensor.Float32s(), input)

	if status := s.interpreter.Invoke(); status != tflite.OK {
		return nil, errors.ClassificationFailed(fmt.Sprintf("tensor invoke failed: %v", status), nil)
	}

	outputTensor := s.interpreter.GetOutputTensor(0)
	size := outputTensor.Dim(outputTensor.NumDims() - 1)
	raw := make([]float64, size)
	for i, v := range outputTensor.Float32s()[:size] {
		raw[i] = float64(v)
	}

	return pairLabels(s.labels, normalizeOutputs(raw))
}

// Close releases the interpreter and model.
func (s *TFLiteScorer) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.interpreter != nil {
		s.interpreter.Delete()
		s.interpreter = nil
	}
	if s.model != nil {
		s.model.Delete()
		s.model = nil
	}
	return nil
}

// normalizeOutputs returns probabilities. Outputs that already form a
// distribution pass through; anything else is treated as logits.
func normalizeOutputs(raw []float64) []float64 {
	sum := 0.0
	inRange := true
	for _, v := range raw {
		if math.IsNaN(v) || v < 0 || v > 1 {
			inRange = false
		}
		sum += v
	}
	if inRange && math.Abs(sum-1) <= softmaxTolerance {
		return raw
	}
	return softmax(raw)
}

func softmax(logits []float64) []float64 {
	out := make([]float64, len(logits))
	if len(logits) == 0 {
		return out
	}
	maxLogit := math.Inf(-1)
	for _, v := range logits {
		if !math.IsNaN(v) {
			maxLogit = max(maxLogit, v)
		}
	}
	sum := 0.0
	for i, v := range logits {
		if math.IsNaN(v) {
			continue
		}
		out[i] = math.Exp(v - maxLogit)
		sum += out[i]
	}
	if sum == 0 {
		return out
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}

// pairLabels zips labels with probabilities and sorts by confidence, highest first.
func pairLabels(labels []string, probs []float64) ([]Score, error) {
	if len(labels) != len(probs) {
		return nil, errors.ClassificationFailed(
			fmt.Sprintf("label count %d does not match output size %d", len(labels), len(probs)), nil)
	}
	scores := make([]Score, len(probs))
	for i, p := range probs {
		scores[i] = Score{Label: labels[i], Confidence: p}
	}
	sortScores(scores)
	return scores, nil
}

func sortScores(scores []Score) {
	slices.SortStableFunc(scores, func(a, b Score) int {
		switch {
		case a.Confidence > b.Confidence:
			return -1
		case a.Confidence < b.Confidence:
			return 1
		default:
			return 0
		}
	})
}
