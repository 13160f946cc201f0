package datastore

import (
	"fmt"
	"io"
	"time"

	"github.com/tphakala/soilnet-go/internal/errors"
	"github.com/tphakala/soilnet-go/internal/logger"
)

// MigrationStats summarizes one Migrate run.
type MigrationStats struct {
	StartTime time.Time
	EndTime   time.Time
	Migrated  int
	Skipped   int // already present in the target
	Errors    int
}

// Print writes a short summary to w.
func (s *MigrationStats) Print(w io.Writer) {
	fmt.Fprintf(w, "Duration: %s\n", s.EndTime.Sub(s.StartTime).Round(time.Millisecond))
	fmt.Fprintf(w, "%-10s %10s %10s\n", "Migrated", "Skipped", "Errors")
	fmt.Fprintf(w, "%-10d %10d %10d\n", s.Migrated, s.Skipped, s.Errors)
}

// Migrate copies every record from src to dst, keeping IDs and timestamps.
// Records whose ID already exists in dst are skipped, so an interrupted run
// can be repeated. Per-record failures are counted and the first one is
// returned after all records were tried.
func Migrate(src, dst Interface) (*MigrationStats, error) {
	stats := &MigrationStats{StartTime: time.Now()}
	defer func() { stats.EndTime = time.Now() }()

	records, err := src.LoadAll()
	if err != nil {
		return stats, err
	}

	log := GetLogger()
	var firstErr error
	// oldest first so both stores list the same order
	for i := len(records) - 1; i >= 0; i-- {
		r := records[i]
		err := dst.Save(&r)
		switch {
		case err == nil:
			stats.Migrated++
		case errors.Is(err, errors.ErrDuplicateID):
			stats.Skipped++
		default:
			stats.Errors++
			if firstErr == nil {
				firstErr = err
			}
			log.Warn("record migration failed", logger.String("record_id", r.ID), logger.Error(err))
		}
	}

	log.Info("migration finished",
		logger.Int("migrated", stats.Migrated),
		logger.Int("skipped", stats.Skipped),
		logger.Int("errors", stats.Errors))
	return stats, firstErr
}

// Verify checks that every src record exists in dst with the same label,
// confidence and timestamp.
func Verify(src, dst Interface) error {
	records, err := src.LoadAll()
	if err != nil {
		return err
	}
	for i := range records {
		want := &records[i]
		got, err := dst.Get(want.ID)
		if err != nil {
			return fmt.Errorf("record %s missing from target: %w", want.ID, err)
		}
		if got.Label != want.Label || got.Confidence != want.Confidence || !got.Timestamp.Equal(want.Timestamp) {
			return errors.Newf("record %s differs between source and target", want.ID).
				Component("datastore").
				Category(errors.CategoryConflict).
				Context("record_id", want.ID).
				Build()
		}
	}
	return nil
}
