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

type countingLoader struct {
	records []datastore.Record
	calls   int
	err     error
}

func (l *countingLoader) load() ([]datastore.Record, error) {
	l.calls++
	return l.records, l.err
}

func TestCacheReusesSnapshotUntilInvalidated(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	loader := &countingLoader{records: []datastore.Record{rec(soil.Clay, 0.9, now)}}
	c := NewCache(time.Minute, time.UTC, nil)

	first, err := c.Statistics(now, loader.load)
	require.NoError(t, err)
	second, err := c.Statistics(now, loader.load)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, loader.calls)

	loader.records = append(loader.records, rec(soil.Loam, 0.7, now))
	c.Invalidate()
	third, err := c.Statistics(now, loader.load)
	require.NoError(t, err)
	assert.Equal(t, 2, third.TotalScans)
	assert.Equal(t, 2, loader.calls)
}

func TestCacheDisabled(t *testing.T) {
	t.Parallel()

	now := time.Now()
	loader := &countingLoader{}
	c := NewCache(0, nil, nil)

	for range 3 {
		_, err := c.Statistics(now, loader.load)
		require.NoError(t, err)
	}
	assert.Equal(t, 3, loader.calls)
	assert.Equal(t, time.Local, c.Location())
}

func TestCacheDoesNotStoreErrors(t *testing.T) {
	t.Parallel()

	loader := &countingLoader{err: fmt.Errorf("disk gone")}
	c := NewCache(time.Minute, time.UTC, nil)

	_, err := c.Statistics(time.Now(), loader.load)
	require.Error(t, err)

	loader.err = nil
	s, err := c.Statistics(time.Now(), loader.load)
	require.NoError(t, err)
	assert.Zero(t, s.TotalScans)
	assert.Equal(t, 2, loader.calls)
}

func TestCacheRecomputesForEachInstant(t *testing.T) {
	t.Parallel()

	scanned := time.Date(2024, 6, 1, 22, 58, 0, 0, time.UTC)
	loader := &countingLoader{records: []datastore.Record{rec(soil.Sandy, 0.8, scanned)}}
	c := NewCache(5*time.Minute, time.UTC, nil)

	sameDay := scanned.Add(time.Hour)
	s, err := c.Statistics(sameDay, loader.load)
	require.NoError(t, err)
	assert.Equal(t, 1, s.ScansThisWeek)
	assert.Equal(t, 1, s.StreakDays)

	for _, now := range []time.Time{
		scanned.Add(2 * time.Hour),      // past midnight
		scanned.Add(8 * 24 * time.Hour), // outside the week window
		scanned.Add(40 * 24 * time.Hour),
	} {
		got, err := c.Statistics(now, loader.load)
		require.NoError(t, err)
		assert.Equal(t, Compute(loader.records, now, time.UTC), got, "now=%s", now)
		assert.Equal(t, now, got.ComputedAt)
	}

	late, err := c.Statistics(scanned.Add(8*24*time.Hour), loader.load)
	require.NoError(t, err)
	assert.Zero(t, late.ScansThisWeek)
	assert.Zero(t, late.StreakDays)
	assert.Equal(t, 1, late.ScansThisMonth)

	assert.Equal(t, 1, loader.calls, "the record set is loaded once")
}
