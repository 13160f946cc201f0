package stats

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tphakala/soilnet-go/internal/datastore"
	"github.com/tphakala/soilnet-go/internal/soil"
)

var helsinki = mustLoad("Europe/Helsinki")

func mustLoad(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.FixedZone(name, 2*60*60)
	}
	return loc
}

func rec(label soil.Type, confidence float64, ts time.Time) datastore.Record {
	return datastore.Record{
		ID:         fmt.Sprintf("%s-%d", label, ts.UnixNano()),
		Label:      label,
		Confidence: confidence,
		Timestamp:  ts,
	}
}

func TestComputeEmpty(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 3, 10, 15, 0, 0, 0, helsinki)
	s := Compute(nil, now, helsinki)
	assert.Zero(t, s.TotalScans)
	assert.Zero(t, s.ScansThisWeek)
	assert.Nil(t, s.MostCommonSoilType)
	assert.InDelta(t, 0.0, s.AverageConfidence, 0)
	assert.Zero(t, s.StreakDays)
	assert.Equal(t, now, s.ComputedAt)
}

func TestTotalMatchesRecordCount(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 3, 10, 15, 0, 0, 0, time.UTC)
	for n := range 25 {
		records := make([]datastore.Record, n)
		for i := range records {
			records[i] = rec(soil.Type(i%soil.Count), 0.7, now.Add(-time.Duration(i)*17*time.Hour))
		}
		assert.Equal(t, n, Compute(records, now, time.UTC).TotalScans)
	}
}

func TestStreakStopsAtGap(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 3, 10, 18, 0, 0, 0, helsinki)
	records := []datastore.Record{
		rec(soil.Clay, 0.9, now.Add(-2*time.Hour)),
		rec(soil.Clay, 0.9, now.AddDate(0, 0, -1)),
		rec(soil.Loam, 0.9, now.AddDate(0, 0, -5)),
	}
	assert.Equal(t, 2, Compute(records, now, helsinki).StreakDays)
}

func TestStreakWithoutToday(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 3, 10, 9, 0, 0, 0, helsinki)
	records := []datastore.Record{
		rec(soil.Silt, 0.8, now.AddDate(0, 0, -1)),
		rec(soil.Silt, 0.8, now.AddDate(0, 0, -2)),
		rec(soil.Silt, 0.8, now.AddDate(0, 0, -3)),
	}
	assert.Equal(t, 3, Compute(records, now, helsinki).StreakDays, "missing today does not break the streak")

	records = []datastore.Record{rec(soil.Silt, 0.8, now.AddDate(0, 0, -2))}
	assert.Zero(t, Compute(records, now, helsinki).StreakDays)

	records = []datastore.Record{rec(soil.Silt, 0.8, now)}
	assert.Equal(t, 1, Compute(records, now, helsinki).StreakDays)
}

func TestStreakUsesLocalCalendarDays(t *testing.T) {
	t.Parallel()

	// 01:00 on the 10th in Helsinki is still the 9th in UTC.
	now := time.Date(2024, 3, 10, 1, 0, 0, 0, helsinki)
	records := []datastore.Record{
		rec(soil.Peat, 0.9, time.Date(2024, 3, 9, 22, 30, 0, 0, time.UTC)),
		rec(soil.Peat, 0.9, time.Date(2024, 3, 8, 12, 0, 0, 0, time.UTC)),
	}
	assert.Equal(t, 1, Compute(records, now, helsinki).StreakDays)
	assert.Equal(t, 2, Compute(records, now, time.UTC).StreakDays)
}

func TestStreakAcrossDSTAndMonthEnd(t *testing.T) {
	t.Parallel()

	// Helsinki moves clocks forward on 2024-03-31.
	now := time.Date(2024, 4, 2, 10, 0, 0, 0, helsinki)
	var records []datastore.Record
	for day := range 6 {
		records = append(records, rec(soil.Chalk, 0.7, time.Date(2024, 4, 2-day, 0, 30, 0, 0, helsinki)))
	}
	assert.Equal(t, 6, Compute(records, now, helsinki).StreakDays)
}

func TestMostCommonSoilType(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name   string
		labels []soil.Type
		want   soil.Type
	}{
		{"majority", []soil.Type{soil.Clay, soil.Clay, soil.Loam}, soil.Clay},
		{"tie prefers smaller ordinal", []soil.Type{soil.Loam, soil.Clay}, soil.Clay},
		{"tie independent of order", []soil.Type{soil.Chalk, soil.Peat, soil.Peat, soil.Chalk}, soil.Peat},
		{"single", []soil.Type{soil.Sandy}, soil.Sandy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			records := make([]datastore.Record, len(tt.labels))
			for i, l := range tt.labels {
				records[i] = rec(l, 0.8, now.Add(-time.Duration(i)*time.Minute))
			}
			got := Compute(records, now, time.UTC).MostCommonSoilType
			require.NotNil(t, got)
			assert.Equal(t, tt.want, *got)
		})
	}
}

func TestWindowsAndAverage(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 3, 31, 12, 0, 0, 0, time.UTC)
	records := []datastore.Record{
		rec(soil.Clay, 1.0, now),
		rec(soil.Clay, 0.8, now.Add(-7*24*time.Hour)),                  // week boundary, included
		rec(soil.Loam, 0.6, now.Add(-7*24*time.Hour-time.Second)),      // just outside the week
		rec(soil.Loam, 0.6, now.Add(-30*24*time.Hour)),                 // month boundary, included
		rec(soil.Silt, 0.0, now.Add(-30*24*time.Hour-time.Nanosecond)), // outside the month
	}

	s := Compute(records, now, time.UTC)
	assert.Equal(t, 5, s.TotalScans)
	assert.Equal(t, 2, s.ScansThisWeek)
	assert.Equal(t, 4, s.ScansThisMonth)
	assert.InDelta(t, 0.6, s.AverageConfidence, 1e-12)
}

func TestComputeIsDeterministic(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 5, 5, 5, 5, 0, 0, helsinki)
	records := []datastore.Record{
		rec(soil.Loam, 0.71, now.Add(-time.Hour)),
		rec(soil.Clay, 0.93, now.Add(-26*time.Hour)),
		rec(soil.Loam, 0.66, now.Add(-50*time.Hour)),
	}
	reversed := []datastore.Record{records[2], records[1], records[0]}

	assert.Equal(t, Compute(records, now, helsinki), Compute(reversed, now, helsinki))
}
