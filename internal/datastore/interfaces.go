// interfaces.go: result store interface and the GORM implementation shared by all backends
package datastore

import (
	"bytes"
	"fmt"
	"math"
	"time"

	"github.com/tphakala/soilnet-go/internal/conf"
	"github.com/tphakala/soilnet-go/internal/errors"
	"github.com/tphakala/soilnet-go/internal/logger"
	"github.com/tphakala/soilnet-go/internal/observability/metrics"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Interface is the result store.
//
// Implementations perform no internal locking. Open loads the in-memory view
// and every successful write reloads it, so callers must keep writes
// exclusive of each other and of readers. LoadAll itself never modifies the
// view.
type Interface interface {
	Open() error
	Close() error
	// Save inserts record. It fails with ErrDuplicateID if the id is taken.
	Save(record *Record) error
	// LoadAll returns a copy of every record, newest timestamp first.
	LoadAll() ([]Record, error)
	// Get returns one record or ErrNotFound.
	Get(id string) (Record, error)
	// Update replaces the mutable fields of the stored record with the same id.
	Update(record *Record) error
	// Delete removes a record or fails with ErrNotFound.
	Delete(id string) error
}

// DataStore implements Interface using a GORM database.
type DataStore struct {
	DB      *gorm.DB
	Metrics *metrics.DatastoreMetrics

	view   []Record
	loaded bool
}

// New returns the store selected by settings. Call Open before use.
func New(settings *conf.Settings, m *metrics.DatastoreMetrics) (Interface, error) {
	switch {
	case settings.Output.SQLite.Enabled:
		return &SQLiteStore{DataStore: DataStore{Metrics: m}, Settings: settings}, nil
	case settings.Output.MySQL.Enabled:
		return &MySQLStore{DataStore: DataStore{Metrics: m}, Settings: settings}, nil
	default:
		return nil, errors.Newf("no result store enabled").
			Component("datastore").
			Category(errors.CategoryConfiguration).
			Build()
	}
}

// Save inserts record and reloads the view.
func (ds *DataStore) Save(record *Record) error {
	start := time.Now()
	err := ds.save(record)
	ds.Metrics.RecordOperation(metrics.OpSave, time.Since(start), errorType(err), err)
	return err
}

func (ds *DataStore) save(record *Record) error {
	if ds.DB == nil {
		return stateError("save")
	}
	if err := validateRecord(record); err != nil {
		return err
	}

	loc, err := record.Location()
	if err != nil {
		return validationError(err.Error(), "location_blob", record.ID)
	}
	if loc != nil {
		if err := loc.Validate(); err != nil {
			return validationError(err.Error(), "location_blob", record.ID)
		}
	}
	record.syncLocationColumns(loc)
	if record.Timestamp.IsZero() {
		record.Timestamp = time.Now()
	}
	// MySQL DATETIME(3) keeps milliseconds; store the same value everywhere.
	record.Timestamp = record.Timestamp.UTC().Truncate(time.Millisecond)

	var count int64
	if err := ds.DB.Model(&Record{}).Where("id = ?", record.ID).Count(&count).Error; err != nil {
		return dbError(err, "save", priorityFor(err), "record_id", record.ID)
	}
	if count > 0 {
		return duplicateError(record.ID, nil)
	}

	if err := ds.DB.Create(record).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return duplicateError(record.ID, err)
		}
		return dbError(err, "save", priorityFor(err), "record_id", record.ID)
	}

	ds.reloadAfterWrite("save")
	return nil
}

// LoadAll returns an independent copy of the current view.
func (ds *DataStore) LoadAll() ([]Record, error) {
	start := time.Now()
	records, err := ds.loadAll()
	ds.Metrics.RecordOperation(metrics.OpLoadAll, time.Since(start), errorType(err), err)
	return records, err
}

func (ds *DataStore) loadAll() ([]Record, error) {
	if ds.DB == nil {
		return nil, stateError("load_all")
	}
	if !ds.loaded {
		// The last reload failed; read the table directly until a write
		// reloads the view again.
		return ds.queryAll()
	}
	out := make([]Record, len(ds.view))
	for i := range ds.view {
		out[i] = cloneRecord(&ds.view[i])
	}
	return out, nil
}

// Get reads a single record from the database.
func (ds *DataStore) Get(id string) (Record, error) {
	start := time.Now()
	record, err := ds.get(id)
	ds.Metrics.RecordOperation(metrics.OpGet, time.Since(start), errorType(err), err)
	return record, err
}

func (ds *DataStore) get(id string) (Record, error) {
	if ds.DB == nil {
		return Record{}, stateError("get")
	}
	var record Record
	if err := ds.DB.Where("id = ?", id).First(&record).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Record{}, notFoundError("get", id)
		}
		return Record{}, dbError(err, "get", priorityFor(err), "record_id", id)
	}
	return record, nil
}

// Update writes ImageRemoteURL, Synced, LocationBlob and MetadataBlob from
// record to the stored row with the same id. Other fields of record are
// ignored. Synced never reverts: a stored true stays true.
func (ds *DataStore) Update(record *Record) error {
	start := time.Now()
	err := ds.update(record)
	ds.Metrics.RecordOperation(metrics.OpUpdate, time.Since(start), errorType(err), err)
	return err
}

func (ds *DataStore) update(record *Record) error {
	if ds.DB == nil {
		return stateError("update")
	}
	if record == nil || record.ID == "" {
		return validationError("record id is required", "id", "")
	}

	existing, err := ds.get(record.ID)
	if err != nil {
		if errors.Is(err, errors.ErrNotFound) {
			return notFoundError("update", record.ID)
		}
		return err
	}

	loc, err := record.Location()
	if err != nil {
		return validationError(err.Error(), "location_blob", record.ID)
	}
	if loc != nil {
		if err := loc.Validate(); err != nil {
			return validationError(err.Error(), "location_blob", record.ID)
		}
	}
	record.syncLocationColumns(loc)

	if existing.Synced && !record.Synced {
		GetLogger().Debug("ignoring synced regression",
			logger.String("record_id", record.ID))
		record.Synced = true
	}

	fields := map[string]any{
		"image_remote_url": record.ImageRemoteURL,
		"synced":           record.Synced,
		"location_blob":    record.LocationBlob,
		"lat":              record.Latitude,
		"lon":              record.Longitude,
		"accuracy":         record.Accuracy,
		"metadata_blob":    record.MetadataBlob,
	}
	if err := ds.DB.Model(&Record{}).Where("id = ?", record.ID).Updates(fields).Error; err != nil {
		return dbError(err, "update", priorityFor(err), "record_id", record.ID)
	}

	ds.reloadAfterWrite("update")
	return nil
}

// Delete removes the record with id.
func (ds *DataStore) Delete(id string) error {
	start := time.Now()
	err := ds.delete(id)
	ds.Metrics.RecordOperation(metrics.OpDelete, time.Since(start), errorType(err), err)
	return err
}

func (ds *DataStore) delete(id string) error {
	if ds.DB == nil {
		return stateError("delete")
	}
	result := ds.DB.Where("id = ?", id).Delete(&Record{})
	if result.Error != nil {
		return dbError(result.Error, "delete", priorityFor(result.Error), "record_id", id)
	}
	if result.RowsAffected == 0 {
		return notFoundError("delete", id)
	}

	ds.reloadAfterWrite("delete")
	return nil
}

// queryAll reads the whole table, newest first.
func (ds *DataStore) queryAll() ([]Record, error) {
	var records []Record
	err := ds.DB.
		Order(clause.OrderByColumn{Column: clause.Column{Name: "timestamp"}, Desc: true}).
		Order(clause.OrderByColumn{Column: clause.Column{Name: "id"}}).
		Find(&records).Error
	if err != nil {
		return nil, dbError(err, "load_all", priorityFor(err))
	}
	if records == nil {
		records = []Record{}
	}
	return records, nil
}

// reload replaces the in-memory view with a full read of the table.
func (ds *DataStore) reload() error {
	records, err := ds.queryAll()
	if err != nil {
		ds.loaded = false
		return err
	}

	ds.view = records
	ds.loaded = true

	unsynced := 0
	for i := range records {
		if !records[i].Synced {
			unsynced++
		}
	}
	ds.Metrics.SetRecordCounts(len(records), unsynced)
	return nil
}

// reloadAfterWrite refreshes the view after a committed write. A failed
// reload does not undo the write; the next LoadAll retries it.
func (ds *DataStore) reloadAfterWrite(operation string) {
	if err := ds.reload(); err != nil {
		GetLogger().Warn("failed to reload records after write",
			logger.String("operation", operation),
			logger.Error(err))
	}
}

// closeDB closes the underlying connection pool.
func (ds *DataStore) closeDB() error {
	if ds.DB == nil {
		return stateError("close")
	}
	sqlDB, err := ds.DB.DB()
	if err != nil {
		return dbError(err, "close", errors.PriorityMedium)
	}
	if err := sqlDB.Close(); err != nil {
		return dbError(err, "close", errors.PriorityMedium)
	}
	ds.DB = nil
	ds.view = nil
	ds.loaded = false
	return nil
}

func validateRecord(record *Record) error {
	switch {
	case record == nil:
		return validationError("record is nil", "record", nil)
	case record.ID == "":
		return validationError("record id is required", "id", "")
	case !record.Label.Valid():
		return validationError(fmt.Sprintf("invalid soil type %d", int(record.Label)), "label", int(record.Label))
	case math.IsNaN(record.Confidence) || record.Confidence < 0 || record.Confidence > 1:
		return validationError("confidence must be within [0, 1]", "confidence", record.Confidence)
	case record.ImageLocalPath == "":
		return validationError("image path is required", "image_local_path", "")
	}
	return nil
}

func cloneRecord(r *Record) Record {
	c := *r
	c.Latitude = clonePtr(r.Latitude)
	c.Longitude = clonePtr(r.Longitude)
	c.Accuracy = clonePtr(r.Accuracy)
	c.LocationBlob = JSONBlob(bytes.Clone(r.LocationBlob))
	c.MetadataBlob = JSONBlob(bytes.Clone(r.MetadataBlob))
	return c
}

func clonePtr(p *float64) *float64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
