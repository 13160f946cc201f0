// Package imaging validates captured photographs, scores their quality and
// converts them into the fixed size tensor the soil classifier expects.
//
// All operations are synchronous and CPU bound. Callers running on an
// interactive path should move them onto their own goroutine.
package imaging

import (
	"bytes"
	"fmt"
	"image"
	_ "image/jpeg" // register JPEG decoder
	_ "image/png"  // register PNG decoder
	"io"
	"time"

	"github.com/tphakala/soilnet-go/internal/errors"
	"github.com/tphakala/soilnet-go/internal/logger"
	_ "golang.org/x/image/webp" // register WebP decoder
)

// Default pipeline limits.
const (
	DefaultTargetSize       = 224
	DefaultMinDimension     = 100
	DefaultMaxDimension     = 4000
	DefaultMinQualitySide   = 300
	DefaultBlurThreshold    = 100.0
	DefaultMaxAnalysisSide  = 512
	maxEncodedImageBytes    = 64 << 20
	defaultChannelsPerPixel = 3
)

// Config holds the tunable pipeline limits.
type Config struct {
	TargetSize     int     // output edge length in pixels
	MinDimension   int     // smallest accepted width or height
	MaxDimension   int     // largest accepted width or height
	MinQualitySide int     // below this either axis costs the resolution deduction
	BlurThreshold  float64 // Laplacian variance below this counts as blurry
}

// DefaultConfig returns the stock limits.
func DefaultConfig() Config {
	return Config{
		TargetSize:     DefaultTargetSize,
		MinDimension:   DefaultMinDimension,
		MaxDimension:   DefaultMaxDimension,
		MinQualitySide: DefaultMinQualitySide,
		BlurThreshold:  DefaultBlurThreshold,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.TargetSize <= 0 {
		c.TargetSize = d.TargetSize
	}
	if c.MinDimension <= 0 {
		c.MinDimension = d.MinDimension
	}
	if c.MaxDimension <= 0 {
		c.MaxDimension = d.MaxDimension
	}
	if c.MinQualitySide <= 0 {
		c.MinQualitySide = d.MinQualitySide
	}
	if c.BlurThreshold <= 0 {
		c.BlurThreshold = d.BlurThreshold
	}
	return c
}

// Pipeline turns raw images into normalized buffers with a quality verdict.
// A Pipeline holds no mutable state and may be shared.
type Pipeline struct {
	cfg Config
	log logger.Logger
}

// New creates a pipeline. Zero fields in cfg take their defaults.
func New(cfg Config) *Pipeline {
	return &Pipeline{
		cfg: cfg.withDefaults(),
		log: GetLogger(),
	}
}

// Config returns the effective configuration.
func (p *Pipeline) Config() Config {
	return p.cfg
}

// Processed is the outcome of running one image through the pipeline.
type Processed struct {
	Width   int
	Height  int
	Format  string
	Verdict QualityVerdict
	Buffer  *NormalizedBuffer
}

// Decode reads an encoded JPEG, PNG or WebP image.
func Decode(r io.Reader) (image.Image, string, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxEncodedImageBytes+1))
	if err != nil {
		return nil, "", errors.New(fmt.Errorf("%w: reading image: %w", errors.ErrConversionFailed, err)).
			Component("imaging").
			Category(errors.CategoryFileIO).
			Build()
	}
	if len(data) == 0 {
		return nil, "", errors.New(fmt.Errorf("%w: empty image data", errors.ErrInvalidImage)).
			Component("imaging").
			Category(errors.CategoryImageInput).
			Build()
	}
	if len(data) > maxEncodedImageBytes {
		return nil, "", errors.New(fmt.Errorf("%w: encoded image exceeds %d bytes", errors.ErrInvalidImage, maxEncodedImageBytes)).
			Component("imaging").
			Category(errors.CategoryImageInput).
			Context("size_bytes", len(data)).
			Build()
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", errors.New(fmt.Errorf("%w: %w", errors.ErrInvalidImage, err)).
			Component("imaging").
			Category(errors.CategoryImageInput).
			Context("size_bytes", len(data)).
			Build()
	}
	return img, format, nil
}

// Validate reports whether img has decodable pixels and both dimensions
// within the configured range.
func (p *Pipeline) Validate(img image.Image) bool {
	return p.Check(img) == nil
}

// Check is Validate with the reason. Failures wrap ErrInvalidImage.
func (p *Pipeline) Check(img image.Image) error {
	if img == nil {
		return errors.New(fmt.Errorf("%w: no pixel data", errors.ErrInvalidImage)).
			Component("imaging").
			Category(errors.CategoryImageInput).
			Build()
	}

	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= 0 || h <= 0 {
		return errors.New(fmt.Errorf("%w: no pixel data", errors.ErrInvalidImage)).
			Component("imaging").
			Category(errors.CategoryImageInput).
			ImageContext(w, h).
			Build()
	}
	if w < p.cfg.MinDimension || h < p.cfg.MinDimension || w > p.cfg.MaxDimension || h > p.cfg.MaxDimension {
		return errors.New(fmt.Errorf("%w: dimensions %dx%d outside [%d, %d]",
			errors.ErrInvalidImage, w, h, p.cfg.MinDimension, p.cfg.MaxDimension)).
			Component("imaging").
			Category(errors.CategoryImageInput).
			ImageContext(w, h).
			Build()
	}
	return nil
}

// Process validates img, scores it and produces the model input buffer.
// Quality is reported, not enforced; rejecting poor images is up to the caller.
func (p *Pipeline) Process(img image.Image) (*Processed, error) {
	start := time.Now()

	if err := p.Check(img); err != nil {
		return nil, err
	}

	verdict := p.QualityAnalyze(img)

	buf, err := p.ResizeAndCrop(img, p.cfg.TargetSize)
	if err != nil {
		return nil, err
	}

	b := img.Bounds()
	p.log.Debug("image processed",
		logger.Int("width", b.Dx()),
		logger.Int("height", b.Dy()),
		logger.Int("quality_score", verdict.Score),
		logger.Bool("acceptable", verdict.Acceptable),
		logger.Duration("elapsed", time.Since(start)))

	return &Processed{
		Width:   b.Dx(),
		Height:  b.Dy(),
		Verdict: verdict,
		Buffer:  buf,
	}, nil
}

// ProcessReader decodes r and runs Process on the result.
func (p *Pipeline) ProcessReader(r io.Reader) (*Processed, error) {
	img, format, err := Decode(r)
	if err != nil {
		return nil, err
	}
	processed, err := p.Process(img)
	if err != nil {
		return nil, err
	}
	processed.Format = format
	return processed, nil
}
