package classifier

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tphakala/soilnet-go/internal/errors"
)

// MetadataFileName is the sidecar looked up next to the model file.
const MetadataFileName = "model_metadata.json"

// DefaultModelVersion is reported when no sidecar provides a version.
const DefaultModelVersion = "soil-classifier-v1"

// DefaultLabels is the output order of the stock model.
var DefaultLabels = []string{"clay", "loam", "sandy", "silt", "peat", "chalk"}

// ModelMetadata is the JSON sidecar written alongside an exported model.
type ModelMetadata struct {
	Version     string   `json:"version"`
	Author      string   `json:"author,omitempty"`
	Description string   `json:"description,omitempty"`
	SoilTypes   []string `json:"soil_types"`
	InputShape  []int    `json:"input_shape"`
	CreatedDate string   `json:"created_date,omitempty"`
}

// DefaultMetadata describes the stock six class 224x224 RGB model.
func DefaultMetadata() *ModelMetadata {
	return &ModelMetadata{
		Version:    DefaultModelVersion,
		SoilTypes:  append([]string(nil), DefaultLabels...),
		InputShape: []int{224, 224, 3},
	}
}

// LoadMetadata reads and validates a metadata sidecar.
func LoadMetadata(path string) (*ModelMetadata, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from configuration
	if err != nil {
		return nil, errors.New(err).
			Component("classifier").
			Category(errors.CategoryLabelLoad).
			Context("metadata_path", path).
			Build()
	}

	var meta ModelMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, errors.New(fmt.Errorf("invalid model metadata: %w", err)).
			Component("classifier").
			Category(errors.CategoryLabelLoad).
			Context("metadata_path", path).
			Build()
	}
	if meta.Version == "" {
		meta.Version = DefaultModelVersion
	}
	if len(meta.InputShape) == 0 {
		meta.InputShape = []int{224, 224, 3}
	}
	if err := meta.Validate(); err != nil {
		return nil, err
	}
	return &meta, nil
}

// ResolveMetadata loads the sidecar at explicitPath, or next to modelPath
// when explicitPath is empty. A missing implicit sidecar yields the defaults.
func ResolveMetadata(modelPath, explicitPath string) (*ModelMetadata, error) {
	if explicitPath != "" {
		return LoadMetadata(explicitPath)
	}
	if modelPath == "" {
		return DefaultMetadata(), nil
	}
	candidate := filepath.Join(filepath.Dir(modelPath), MetadataFileName)
	if _, err := os.Stat(candidate); err != nil {
		return DefaultMetadata(), nil //nolint:nilerr // absent sidecar means stock labels
	}
	return LoadMetadata(candidate)
}

// Validate checks that labels are present and unique and the input shape
// is height, width, channels.
func (m *ModelMetadata) Validate() error {
	if len(m.SoilTypes) == 0 {
		return errors.Newf("model metadata lists no soil types").
			Component("classifier").
			Category(errors.CategoryLabelLoad).
			Build()
	}
	seen := make(map[string]struct{}, len(m.SoilTypes))
	for _, label := range m.SoilTypes {
		key := strings.ToLower(strings.TrimSpace(label))
		if key == "" {
			return errors.Newf("model metadata contains an empty label").
				Component("classifier").
				Category(errors.CategoryLabelLoad).
				Build()
		}
		if _, dup := seen[key]; dup {
			return errors.Newf("model metadata repeats label %q", label).
				Component("classifier").
				Category(errors.CategoryLabelLoad).
				Build()
		}
		seen[key] = struct{}{}
	}
	if len(m.InputShape) != 3 || m.InputShape[0] <= 0 || m.InputShape[1] <= 0 || m.InputShape[2] != 3 {
		return errors.Newf("unsupported input shape %v, want [height width 3]", m.InputShape).
			Component("classifier").
			Category(errors.CategoryValidation).
			Build()
	}
	return nil
}

// InputLen is the number of float32 values in one input tensor.
func (m *ModelMetadata) InputLen() int {
	return m.InputShape[0] * m.InputShape[1] * m.InputShape[2]
}
