package datastore

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/tphakala/soilnet-go/internal/soil"
)

// Record is one persisted classification.
//
// ID, UserID, ImageLocalPath, Label, Confidence, Timestamp and CreatedAt are
// fixed at Save. Only ImageRemoteURL, Synced, LocationBlob and MetadataBlob
// change afterwards; Latitude, Longitude and Accuracy are derived from
// LocationBlob.
type Record struct {
	ID             string    `gorm:"primaryKey;size:36"`
	UserID         string    `gorm:"size:128;index"`
	ImageLocalPath string    `gorm:"size:1024;not null"`
	ImageRemoteURL string    `gorm:"size:2048"`
	Label          soil.Type `gorm:"type:varchar(16);not null;index"`
	Confidence     float64   `gorm:"not null"`
	Latitude       *float64  `gorm:"column:lat"`
	Longitude      *float64  `gorm:"column:lon"`
	Accuracy       *float64
	Timestamp      time.Time `gorm:"index;not null"`
	Synced         bool      `gorm:"index;not null;default:false"`
	LocationBlob   JSONBlob  `gorm:"type:text"`
	MetadataBlob   JSONBlob  `gorm:"type:text"`
	CreatedAt      time.Time
}

// TableName keeps the table name stable regardless of GORM naming rules.
func (Record) TableName() string {
	return "soil_records"
}

// Location is a GPS fix attached to a record after classification.
type Location struct {
	Latitude  float64   `json:"lat"`
	Longitude float64   `json:"lon"`
	Accuracy  float64   `json:"accuracy"`
	Timestamp time.Time `json:"timestamp"`
}

// Validate checks coordinate ranges.
func (l Location) Validate() error {
	switch {
	case l.Latitude < -90 || l.Latitude > 90:
		return fmt.Errorf("latitude %v out of range", l.Latitude)
	case l.Longitude < -180 || l.Longitude > 180:
		return fmt.Errorf("longitude %v out of range", l.Longitude)
	case l.Accuracy < 0:
		return fmt.Errorf("accuracy %v must not be negative", l.Accuracy)
	}
	return nil
}

// SetLocation stores loc in LocationBlob and the derived columns.
// A nil loc clears them.
func (r *Record) SetLocation(loc *Location) error {
	if loc == nil {
		r.LocationBlob = nil
		r.Latitude, r.Longitude, r.Accuracy = nil, nil, nil
		return nil
	}
	if err := loc.Validate(); err != nil {
		return err
	}
	blob, err := json.Marshal(loc)
	if err != nil {
		return fmt.Errorf("encode location: %w", err)
	}
	r.LocationBlob = blob
	r.syncLocationColumns(loc)
	return nil
}

// Location decodes LocationBlob. It returns nil when no fix is attached.
func (r *Record) Location() (*Location, error) {
	if r.LocationBlob.IsEmpty() {
		return nil, nil
	}
	var loc Location
	if err := json.Unmarshal(r.LocationBlob, &loc); err != nil {
		return nil, fmt.Errorf("decode location: %w", err)
	}
	return &loc, nil
}

func (r *Record) syncLocationColumns(loc *Location) {
	if loc == nil {
		r.Latitude, r.Longitude, r.Accuracy = nil, nil, nil
		return
	}
	lat, lon, acc := loc.Latitude, loc.Longitude, loc.Accuracy
	r.Latitude, r.Longitude, r.Accuracy = &lat, &lon, &acc
}

// DecodeMetadata unmarshals MetadataBlob into v.
func (r *Record) DecodeMetadata(v any) error {
	if r.MetadataBlob.IsEmpty() {
		return nil
	}
	return json.Unmarshal(r.MetadataBlob, v)
}

// JSONBlob is an opaque JSON document stored in a text column.
// Bytes are written and read back unchanged.
type JSONBlob []byte

// NewJSONBlob marshals v.
func NewJSONBlob(v any) (JSONBlob, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return data, nil
}

// IsEmpty reports whether the blob holds no document.
func (b JSONBlob) IsEmpty() bool {
	trimmed := bytes.TrimSpace(b)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

// MarshalJSON embeds the document as-is.
func (b JSONBlob) MarshalJSON() ([]byte, error) {
	if b.IsEmpty() {
		return []byte("null"), nil
	}
	return b, nil
}

// UnmarshalJSON keeps a copy of the raw document.
func (b *JSONBlob) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*b = nil
		return nil
	}
	*b = bytes.Clone(data)
	return nil
}

// Value implements driver.Valuer.
func (b JSONBlob) Value() (driver.Value, error) {
	if b.IsEmpty() {
		return nil, nil
	}
	if !json.Valid(b) {
		return nil, fmt.Errorf("blob is not valid JSON")
	}
	return string(b), nil
}

// Scan implements sql.Scanner.
func (b *JSONBlob) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*b = nil
	case string:
		*b = JSONBlob(v)
	case []byte:
		*b = bytes.Clone(v)
	default:
		return fmt.Errorf("cannot scan %T into JSONBlob", src)
	}
	return nil
}
