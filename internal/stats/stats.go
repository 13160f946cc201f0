// Package stats derives usage statistics from the stored scan history.
//
// Compute is a pure function of the record set, the current time and the
// calendar zone, so the same inputs always give the same Statistics.
package stats

import (
	"time"

	"github.com/tphakala/soilnet-go/internal/datastore"
	"github.com/tphakala/soilnet-go/internal/soil"
)

const (
	weekWindow  = 7 * 24 * time.Hour
	monthWindow = 30 * 24 * time.Hour
)

// Statistics summarizes a record set.
type Statistics struct {
	TotalScans         int        `json:"total_scans" yaml:"total_scans"`
	ScansThisWeek      int        `json:"scans_this_week" yaml:"scans_this_week"`
	ScansThisMonth     int        `json:"scans_this_month" yaml:"scans_this_month"`
	MostCommonSoilType *soil.Type `json:"most_common_soil_type,omitempty" yaml:"most_common_soil_type,omitempty"`
	AverageConfidence  float64    `json:"average_confidence" yaml:"average_confidence"`
	StreakDays         int        `json:"streak_days" yaml:"streak_days"`
	ComputedAt         time.Time  `json:"computed_at" yaml:"computed_at"`
}

// Compute derives Statistics from records as seen at now. Calendar days for
// the streak are taken in loc; a nil loc means time.Local.
//
// The week and month windows are trailing 7 and 30 day spans ending at now,
// inclusive of the boundary.
func Compute(records []datastore.Record, now time.Time, loc *time.Location) Statistics {
	if loc == nil {
		loc = time.Local
	}

	s := Statistics{
		TotalScans: len(records),
		ComputedAt: now,
	}
	if len(records) == 0 {
		return s
	}

	weekStart := now.Add(-weekWindow)
	monthStart := now.Add(-monthWindow)

	var counts [soil.Count]int
	var confidenceSum float64
	days := make(map[civilDate]struct{}, len(records))

	for i := range records {
		r := &records[i]
		if !r.Timestamp.Before(weekStart) {
			s.ScansThisWeek++
		}
		if !r.Timestamp.Before(monthStart) {
			s.ScansThisMonth++
		}
		if r.Label.Valid() {
			counts[r.Label]++
		}
		confidenceSum += r.Confidence
		days[dateOf(r.Timestamp, loc)] = struct{}{}
	}

	s.AverageConfidence = confidenceSum / float64(len(records))
	s.MostCommonSoilType = mostCommon(counts)
	s.StreakDays = streak(days, now, loc)
	return s
}

// mostCommon returns the type with the highest count. Ties go to the
// smallest ordinal because the scan is ascending and only a strictly larger
// count replaces the current best.
func mostCommon(counts [soil.Count]int) *soil.Type {
	best, bestCount := soil.Type(0), 0
	for _, t := range soil.All() {
		if counts[t] > bestCount {
			best, bestCount = t, counts[t]
		}
	}
	if bestCount == 0 {
		return nil
	}
	return &best
}

// streak counts consecutive days with at least one record. Today adds one
// when present; counting continues from yesterday either way and stops at
// the first day without records.
func streak(days map[civilDate]struct{}, now time.Time, loc *time.Location) int {
	today := dateOf(now, loc)

	n := 0
	if _, ok := days[today]; ok {
		n = 1
	}
	for day := today.addDays(-1, loc); ; day = day.addDays(-1, loc) {
		if _, ok := days[day]; !ok {
			return n
		}
		n++
	}
}

// civilDate is a calendar day independent of clock time and zone offsets.
type civilDate struct {
	year  int
	month time.Month
	day   int
}

func dateOf(t time.Time, loc *time.Location) civilDate {
	y, m, d := t.In(loc).Date()
	return civilDate{year: y, month: m, day: d}
}

// addDays normalizes through time.Date so month ends and DST shifts are handled.
func (c civilDate) addDays(n int, loc *time.Location) civilDate {
	return dateOf(time.Date(c.year, c.month, c.day+n, 12, 0, 0, 0, loc), loc)
}
