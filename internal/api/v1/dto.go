package v1

import (
	"encoding/json"
	"time"

	"github.com/tphakala/soilnet-go/internal/classifier"
	"github.com/tphakala/soilnet-go/internal/datastore"
	"github.com/tphakala/soilnet-go/internal/imaging"
	"github.com/tphakala/soilnet-go/internal/soil"
)

// RecordResponse is the JSON shape of a stored record.
type RecordResponse struct {
	ID             string               `json:"id"`
	UserID         string               `json:"user_id,omitempty"`
	ImageLocalPath string               `json:"image_local_path"`
	ImageRemoteURL string               `json:"image_remote_url,omitempty"`
	Label          soil.Type            `json:"label"`
	DisplayName    string               `json:"display_name"`
	Confidence     float64              `json:"confidence"`
	Percentage     int                  `json:"percentage"`
	Level          soil.ConfidenceLevel `json:"level"`
	Location       *datastore.Location  `json:"location,omitempty"`
	Synced         bool                 `json:"synced"`
	Timestamp      time.Time            `json:"timestamp"`
	CreatedAt      time.Time            `json:"created_at"`
	Metadata       json.RawMessage      `json:"metadata,omitempty"`
}

func newRecordResponse(r *datastore.Record) RecordResponse {
	resp := RecordResponse{
		ID:             r.ID,
		UserID:         r.UserID,
		ImageLocalPath: r.ImageLocalPath,
		ImageRemoteURL: r.ImageRemoteURL,
		Label:          r.Label,
		DisplayName:    r.Label.DisplayName(),
		Confidence:     r.Confidence,
		Percentage:     soil.Percentage(r.Confidence),
		Level:          soil.LevelFor(r.Confidence),
		Synced:         r.Synced,
		Timestamp:      r.Timestamp,
		CreatedAt:      r.CreatedAt,
	}
	// A malformed blob is omitted rather than failing the whole listing.
	if loc, err := r.Location(); err == nil {
		resp.Location = loc
	}
	if !r.MetadataBlob.IsEmpty() && json.Valid(r.MetadataBlob) {
		resp.Metadata = json.RawMessage(r.MetadataBlob)
	}
	return resp
}

// ScanResponse is returned by POST /scans.
type ScanResponse struct {
	Record         RecordResponse         `json:"record"`
	Classification *classifier.Result     `json:"classification"`
	Quality        imaging.QualityVerdict `json:"quality"`
}

// ListResponse wraps a page of records.
type ListResponse struct {
	Total   int              `json:"total"`
	Records []RecordResponse `json:"records"`
}

// LocationRequest is the body of PUT /scans/:id/location.
type LocationRequest struct {
	Latitude  *float64   `json:"lat"`
	Longitude *float64   `json:"lon"`
	Accuracy  float64    `json:"accuracy"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
}

// SyncedRequest is the optional body of POST /scans/:id/synced.
type SyncedRequest struct {
	RemoteURL string `json:"remote_url"`
}
