// Package export flattens stored records into rows and writes them as
// CSV, JSON or YAML.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/afero"
	"github.com/tphakala/soilnet-go/internal/datastore"
	"github.com/tphakala/soilnet-go/internal/errors"
	"github.com/tphakala/soilnet-go/internal/logger"
	"github.com/tphakala/soilnet-go/internal/soil"
	"gopkg.in/yaml.v3"
)

// Row is the flat field-by-field representation of one record.
type Row struct {
	ID         string    `json:"id" yaml:"id"`
	Label      soil.Type `json:"label" yaml:"label"`
	Confidence float64   `json:"confidence" yaml:"confidence"`
	Percentage int       `json:"percentage" yaml:"percentage"`
	Latitude   *float64  `json:"latitude,omitempty" yaml:"latitude,omitempty"`
	Longitude  *float64  `json:"longitude,omitempty" yaml:"longitude,omitempty"`
	Accuracy   *float64  `json:"accuracy,omitempty" yaml:"accuracy,omitempty"`
	Synced     bool      `json:"synced" yaml:"synced"`
	Timestamp  time.Time `json:"timestamp" yaml:"timestamp"`
}

// FromRecord flattens r.
func FromRecord(r *datastore.Record) Row {
	return Row{
		ID:         r.ID,
		Label:      r.Label,
		Confidence: r.Confidence,
		Percentage: soil.Percentage(r.Confidence),
		Latitude:   r.Latitude,
		Longitude:  r.Longitude,
		Accuracy:   r.Accuracy,
		Synced:     r.Synced,
		Timestamp:  r.Timestamp,
	}
}

// FromRecords flattens records keeping their order.
func FromRecords(records []datastore.Record) []Row {
	rows := make([]Row, len(records))
	for i := range records {
		rows[i] = FromRecord(&records[i])
	}
	return rows
}

// Format is an output encoding.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ParseFormat accepts csv, json, yaml and yml in any case.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "csv":
		return FormatCSV, nil
	case "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	default:
		return "", errors.Newf("unsupported export format %q", s).
			Component("export").
			Category(errors.CategoryValidation).
			Build()
	}
}

// FormatForPath picks the format from a file extension.
func FormatForPath(path string) (Format, error) {
	return ParseFormat(strings.TrimPrefix(filepath.Ext(path), "."))
}

// ContentType returns the MIME type for f.
func (f Format) ContentType() string {
	switch f {
	case FormatCSV:
		return "text/csv; charset=utf-8"
	case FormatYAML:
		return "application/yaml"
	default:
		return "application/json"
	}
}

var csvHeader = []string{"id", "label", "confidence", "percentage", "latitude", "longitude", "accuracy", "synced", "timestamp"}

// Write encodes rows to w.
func Write(w io.Writer, rows []Row, format Format) error {
	var err error
	switch format {
	case FormatCSV:
		err = writeCSV(w, rows)
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if rows == nil {
			rows = []Row{}
		}
		err = enc.Encode(rows)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		err = enc.Encode(rows)
		if err == nil {
			err = enc.Close()
		}
	default:
		_, err = ParseFormat(string(format))
		return err
	}
	if err != nil {
		return errors.New(err).
			Component("export").
			Category(errors.CategoryExport).
			Context("format", string(format)).
			Context("rows", len(rows)).
			Build()
	}
	return nil
}

func writeCSV(w io.Writer, rows []Row) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(csvHeader); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}
	for i := range rows {
		r := &rows[i]
		record := []string{
			sanitizeCSVField(r.ID),
			r.Label.String(),
			strconv.FormatFloat(r.Confidence, 'f', 4, 64),
			strconv.Itoa(r.Percentage),
			formatOptional(r.Latitude, 6),
			formatOptional(r.Longitude, 6),
			formatOptional(r.Accuracy, 1),
			strconv.FormatBool(r.Synced),
			r.Timestamp.UTC().Format(time.RFC3339),
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("failed to write CSV row: %w", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("CSV writer error: %w", err)
	}
	return nil
}

// sanitizeCSVField neutralizes text that a spreadsheet would run as a formula.
func sanitizeCSVField(field string) string {
	if field == "" {
		return field
	}
	switch field[0] {
	case '=', '+', '-', '@':
		return "'" + field
	}
	return field
}

func formatOptional(v *float64, precision int) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', precision, 64)
}

// WriteFile writes rows to path on fs, replacing the file only once the
// encoding has succeeded.
func WriteFile(fs afero.Fs, path string, rows []Row, format Format) error {
	dir := filepath.Dir(path)
	if err := fs.MkdirAll(dir, 0o750); err != nil {
		return fileError(err, "mkdir", path)
	}

	tmp, err := afero.TempFile(fs, dir, ".export-*")
	if err != nil {
		return fileError(err, "create_temp", path)
	}
	tmpName := tmp.Name()

	if err := Write(tmp, rows, format); err != nil {
		_ = tmp.Close()
		_ = fs.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = fs.Remove(tmpName)
		return fileError(err, "close", path)
	}
	if err := fs.Rename(tmpName, path); err != nil {
		_ = fs.Remove(tmpName)
		return fileError(err, "rename", path)
	}

	GetLogger().Info("export written",
		logger.String("path", path),
		logger.String("format", string(format)),
		logger.Int("rows", len(rows)))
	return nil
}

func fileError(err error, operation, path string) error {
	return errors.New(err).
		Component("export").
		Category(errors.CategoryFileIO).
		Context("operation", operation).
		FileContext(path, 0).
		Build()
}
