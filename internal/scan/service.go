// Package scan runs the end to end workflow: decode an image, check its
// quality, classify it, persist the record and keep statistics current.
package scan

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"
	"github.com/tphakala/soilnet-go/internal/classifier"
	"github.com/tphakala/soilnet-go/internal/conf"
	"github.com/tphakala/soilnet-go/internal/datastore"
	"github.com/tphakala/soilnet-go/internal/errors"
	"github.com/tphakala/soilnet-go/internal/export"
	"github.com/tphakala/soilnet-go/internal/imaging"
	"github.com/tphakala/soilnet-go/internal/logger"
	"github.com/tphakala/soilnet-go/internal/observability/metrics"
	"github.com/tphakala/soilnet-go/internal/soil"
	"github.com/tphakala/soilnet-go/internal/stats"
)

// Scan outcome label values for metrics.
const (
	OutcomeSaved          = "saved"
	OutcomeInvalidRequest = "invalid_request"
	OutcomeInvalidImage   = "invalid_image"
	OutcomePoorQuality    = "poor_quality"
	OutcomeNotLoaded      = "model_not_loaded"
	OutcomeLowConfidence  = "low_confidence"
	OutcomeFailed         = "classification_failed"
	OutcomeStoreError     = "store_error"
)

const maxUploadBytes = 64 << 20

// Options tunes a Service.
type Options struct {
	AllowPoorQuality bool
	LoadTimeout      time.Duration // 0 means conf.DefaultModelLoadTimeout
	ImageDir         string        // where uploaded images are written
	Fs               afero.Fs      // nil means the OS filesystem
	Metrics          *metrics.PipelineMetrics
	Logger           logger.Logger
	Clock            func() time.Time
}

// Service ties the pipeline, the classifier and the store together.
// Store writes go through the service so they are serialized.
type Service struct {
	pipeline *imaging.Pipeline
	engine   *classifier.Engine
	store    datastore.Interface
	stats    *stats.Cache

	allowPoorQuality bool
	loadTimeout      time.Duration
	imageDir         string
	fs               afero.Fs
	metrics          *metrics.PipelineMetrics
	log              logger.Logger
	now              func() time.Time

	// mu makes store writes exclusive; reads of the record view share it.
	mu sync.RWMutex
}

// NewService creates a Service. All four collaborators are required.
func NewService(pipeline *imaging.Pipeline, engine *classifier.Engine, store datastore.Interface, cache *stats.Cache, opts Options) (*Service, error) {
	if pipeline == nil || engine == nil || store == nil || cache == nil {
		return nil, errors.Newf("scan service requires pipeline, engine, store and stats cache").
			Component("scan").
			Category(errors.CategoryConfiguration).
			Build()
	}

	s := &Service{
		pipeline:         pipeline,
		engine:           engine,
		store:            store,
		stats:            cache,
		allowPoorQuality: opts.AllowPoorQuality,
		loadTimeout:      opts.LoadTimeout,
		imageDir:         opts.ImageDir,
		fs:               opts.Fs,
		metrics:          opts.Metrics,
		log:              opts.Logger,
		now:              opts.Clock,
	}
	if s.loadTimeout <= 0 {
		s.loadTimeout = conf.DefaultModelLoadTimeout
	}
	if s.imageDir == "" {
		s.imageDir = "images"
	}
	if s.fs == nil {
		s.fs = afero.NewOsFs()
	}
	if s.log == nil {
		s.log = GetLogger()
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s, nil
}

// Request describes one image to scan. Exactly one of ImagePath and Image
// must be set. Images passed as a reader are stored under the image dir.
type Request struct {
	ImagePath string
	Image     io.Reader
	UserID    string
	Location  *datastore.Location
}

// Result is a saved scan.
type Result struct {
	Record         datastore.Record       `json:"record"`
	Classification *classifier.Result     `json:"classification"`
	Quality        imaging.QualityVerdict `json:"quality"`
}

// Metadata is stored in each record's metadata blob.
type Metadata struct {
	Ranked       []classifier.Ranked    `json:"ranked"`
	Level        soil.ConfidenceLevel   `json:"level"`
	Quality      imaging.QualityVerdict `json:"quality"`
	ModelVersion string                 `json:"model_version,omitempty"`
	Width        int                    `json:"width"`
	Height       int                    `json:"height"`
	Format       string                 `json:"format,omitempty"`
	ElapsedMs    int64                  `json:"elapsed_ms"`
}

// Scan classifies one image and saves the record.
func (s *Service) Scan(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()

	if req.Location != nil {
		if err := req.Location.Validate(); err != nil {
			s.metrics.RecordScan(OutcomeInvalidRequest)
			return nil, locationError(err, "")
		}
	}

	data, localPath, err := s.readImage(req)
	if err != nil {
		s.metrics.RecordScan(OutcomeInvalidImage)
		return nil, err
	}

	stageStart := time.Now()
	img, format, err := imaging.Decode(bytes.NewReader(data))
	s.metrics.ObserveStage(metrics.StageDecode, time.Since(stageStart))
	if err != nil {
		s.metrics.RecordScan(OutcomeInvalidImage)
		return nil, err
	}
	if err := s.pipeline.Check(img); err != nil {
		s.metrics.RecordScan(OutcomeInvalidImage)
		return nil, err
	}

	stageStart = time.Now()
	verdict := s.pipeline.QualityAnalyze(img)
	s.metrics.ObserveStage(metrics.StageQuality, time.Since(stageStart))
	s.metrics.RecordQuality(verdict.Score, issueNames(verdict.Issues))
	if !verdict.Acceptable && !s.allowPoorQuality {
		s.metrics.RecordScan(OutcomePoorQuality)
		return nil, errors.New(fmt.Errorf("%w: score %d", errors.ErrPoorQuality, verdict.Score)).
			Component("scan").
			Category(errors.CategoryImageQuality).
			Context("score", verdict.Score).
			Context("issues", strings.Join(issueNames(verdict.Issues), ",")).
			Build()
	}

	stageStart = time.Now()
	buf, err := s.pipeline.ResizeAndCrop(img, s.pipeline.Config().TargetSize)
	s.metrics.ObserveStage(metrics.StageResize, time.Since(stageStart))
	if err != nil {
		s.metrics.RecordScan(OutcomeInvalidImage)
		return nil, err
	}

	classification, err := s.engine.ClassifySync(ctx, buf.Tensor())
	if err != nil {
		s.metrics.RecordScan(classifyOutcome(err))
		return nil, err
	}

	b := img.Bounds()
	meta := Metadata{
		Ranked:       classification.Ranked,
		Level:        classification.Level,
		Quality:      verdict,
		ModelVersion: classification.ModelVersion,
		Width:        b.Dx(),
		Height:       b.Dy(),
		Format:       format,
		ElapsedMs:    time.Since(start).Milliseconds(),
	}
	blob, err := datastore.NewJSONBlob(meta)
	if err != nil {
		s.metrics.RecordScan(OutcomeStoreError)
		return nil, errors.New(err).
			Component("scan").
			Category(errors.CategoryProcessing).
			Context("operation", "encode_metadata").
			Build()
	}

	record := datastore.Record{
		ID:             uuid.NewString(),
		UserID:         req.UserID,
		ImageLocalPath: localPath,
		Label:          classification.Primary,
		Confidence:     classification.Confidence,
		Timestamp:      s.now(),
		MetadataBlob:   blob,
	}
	if err := record.SetLocation(req.Location); err != nil {
		s.metrics.RecordScan(OutcomeInvalidRequest)
		return nil, locationError(err, record.ID)
	}

	uploaded := req.ImagePath == ""
	if uploaded {
		record.ImageLocalPath, err = s.storeUpload(record.ID, format, data)
		if err != nil {
			s.metrics.RecordScan(OutcomeStoreError)
			return nil, err
		}
	}

	if err := s.save(&record); err != nil {
		if uploaded {
			_ = s.fs.Remove(record.ImageLocalPath)
		}
		s.metrics.RecordScan(OutcomeStoreError)
		return nil, err
	}
	s.metrics.RecordScan(OutcomeSaved)

	s.log.Info("scan saved",
		logger.String("record_id", record.ID),
		logger.String("label", record.Label.String()),
		logger.Float64("confidence", record.Confidence),
		logger.Int("quality_score", verdict.Score),
		logger.Duration("elapsed", time.Since(start)))

	return &Result{
		Record:         record,
		Classification: classification,
		Quality:        verdict,
	}, nil
}

func (s *Service) readImage(req Request) (data []byte, localPath string, err error) {
	switch {
	case req.ImagePath != "" && req.Image != nil:
		return nil, "", errors.Newf("%w: both image path and image data given", errors.ErrInvalidImage).
			Component("scan").
			Category(errors.CategoryValidation).
			Build()
	case req.ImagePath != "":
		path, err := filepath.Abs(req.ImagePath)
		if err != nil {
			path = req.ImagePath
		}
		f, err := s.fs.Open(path)
		if err != nil {
			return nil, "", errors.New(fmt.Errorf("%w: %w", errors.ErrInvalidImage, err)).
				Component("scan").
				Category(errors.CategoryFileIO).
				FileContext(path, 0).
				Build()
		}
		defer f.Close()
		data, err = io.ReadAll(io.LimitReader(f, maxUploadBytes))
		if err != nil {
			return nil, "", errors.New(fmt.Errorf("%w: %w", errors.ErrConversionFailed, err)).
				Component("scan").
				Category(errors.CategoryFileIO).
				FileContext(path, 0).
				Build()
		}
		return data, path, nil
	case req.Image != nil:
		data, err = io.ReadAll(io.LimitReader(req.Image, maxUploadBytes))
		if err != nil {
			return nil, "", errors.New(fmt.Errorf("%w: %w", errors.ErrConversionFailed, err)).
				Component("scan").
				Category(errors.CategoryImageInput).
				Build()
		}
		return data, "", nil
	default:
		return nil, "", errors.Newf("%w: no image given", errors.ErrInvalidImage).
			Component("scan").
			Category(errors.CategoryValidation).
			Build()
	}
}

func (s *Service) storeUpload(id, format string, data []byte) (string, error) {
	if err := s.fs.MkdirAll(s.imageDir, 0o750); err != nil {
		return "", uploadError(err, s.imageDir)
	}
	path := filepath.Join(s.imageDir, id+imageExt(format))
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	if err := afero.WriteFile(s.fs, path, data, 0o640); err != nil {
		return "", uploadError(err, path)
	}
	return path, nil
}

func (s *Service) save(record *datastore.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.store.Save(record); err != nil {
		return err
	}
	s.stats.Invalidate()
	return nil
}

// History returns every record, newest first.
func (s *Service) History() ([]datastore.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.store.LoadAll()
}

// Get returns one record.
func (s *Service) Get(id string) (datastore.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.store.Get(id)
}

// Statistics returns usage statistics as of now.
func (s *Service) Statistics(now time.Time) (stats.Statistics, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stats.Statistics(now, s.store.LoadAll)
}

// AttachLocation sets the GPS fix of a saved record. A zero fix timestamp
// is replaced by the current time.
func (s *Service) AttachLocation(id string, loc datastore.Location) (datastore.Record, error) {
	if loc.Timestamp.IsZero() {
		loc.Timestamp = s.now()
	}
	return s.mutate(id, func(r *datastore.Record) error {
		if err := r.SetLocation(&loc); err != nil {
			return locationError(err, id)
		}
		return nil
	})
}

// MarkSynced flags a record as uploaded. remoteURL replaces the stored
// remote image URL when not empty. Marking an already synced record is a
// no-op apart from the URL.
func (s *Service) MarkSynced(id, remoteURL string) (datastore.Record, error) {
	return s.mutate(id, func(r *datastore.Record) error {
		r.Synced = true
		if remoteURL != "" {
			r.ImageRemoteURL = remoteURL
		}
		return nil
	})
}

func (s *Service) mutate(id string, apply func(*datastore.Record) error) (datastore.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, err := s.store.Get(id)
	if err != nil {
		return datastore.Record{}, err
	}
	if err := apply(&record); err != nil {
		return datastore.Record{}, err
	}
	if err := s.store.Update(&record); err != nil {
		return datastore.Record{}, err
	}
	s.stats.Invalidate()
	return s.store.Get(id)
}

// Delete removes a record. Images that the service stored for an upload
// are removed with it.
func (s *Service) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, err := s.store.Get(id)
	if err != nil {
		return err
	}
	if err := s.store.Delete(id); err != nil {
		return err
	}
	s.stats.Invalidate()

	if s.ownsImage(record.ImageLocalPath) {
		if err := s.fs.Remove(record.ImageLocalPath); err != nil {
			s.log.Warn("failed to remove stored image",
				logger.String("record_id", id),
				logger.String("path", record.ImageLocalPath),
				logger.Error(err))
		}
	}
	return nil
}

func (s *Service) ownsImage(path string) bool {
	dir, err := filepath.Abs(s.imageDir)
	if err != nil || path == "" {
		return false
	}
	rel, err := filepath.Rel(dir, path)
	return err == nil && !strings.HasPrefix(rel, "..") && filepath.Dir(rel) == "."
}

// ExportRows returns the flat representation of every record, newest first.
func (s *Service) ExportRows() ([]export.Row, error) {
	s.mu.RLock()
	records, err := s.store.LoadAll()
	s.mu.RUnlock()
	if err != nil {
		return nil, err
	}
	return export.FromRecords(records), nil
}

// WaitForModel blocks until the model finished loading, the load timeout
// passed or ctx ended.
func (s *Service) WaitForModel(ctx context.Context) error {
	s.engine.Init(ctx)
	ctx, cancel := context.WithTimeout(ctx, s.loadTimeout)
	defer cancel()
	return s.engine.Load(ctx)
}

// ModelState reports the classifier lifecycle state.
func (s *Service) ModelState() classifier.State {
	return s.engine.State()
}

// ModelInfo describes the loaded model.
func (s *Service) ModelInfo() (classifier.ModelInfo, bool) {
	return s.engine.ModelInfo()
}

func classifyOutcome(err error) string {
	switch {
	case errors.Is(err, errors.ErrModelNotLoaded), errors.Is(err, errors.ErrModelLoadFailed):
		return OutcomeNotLoaded
	case errors.Is(err, errors.ErrLowConfidence), errors.Is(err, errors.ErrNoResults):
		return OutcomeLowConfidence
	default:
		return OutcomeFailed
	}
}

func issueNames(issues []imaging.IssueKind) []string {
	names := make([]string, len(issues))
	for i, issue := range issues {
		names[i] = string(issue)
	}
	return names
}

func imageExt(format string) string {
	switch format {
	case "jpeg":
		return ".jpg"
	case "":
		return ".img"
	default:
		return "." + format
	}
}

func locationError(err error, id string) error {
	return errors.New(err).
		Component("scan").
		Category(errors.CategoryValidation).
		Context("record_id", id).
		Build()
}

func uploadError(err error, path string) error {
	return errors.New(err).
		Component("scan").
		Category(errors.CategoryFileIO).
		Context("operation", "store_upload").
		FileContext(path, 0).
		Build()
}
