package datastore

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tphakala/soilnet-go/internal/soil"
)

func TestMigrateCopiesAndSkipsExisting(t *testing.T) {
	t.Parallel()

	src := createDatabase(t, nil)
	dst := createDatabase(t, nil)

	for i, label := range []soil.Type{soil.Clay, soil.Loam, soil.Peat} {
		r := newRecord("rec-"+label.String(), label, 0.7+float64(i)/10, baseTime.Add(time.Duration(i)*time.Hour))
		require.NoError(t, r.SetLocation(&Location{Latitude: 60, Longitude: 25, Accuracy: 4}))
		require.NoError(t, src.Save(r))
	}
	require.NoError(t, dst.Save(newRecord("rec-clay", soil.Clay, 0.7, baseTime)))

	stats, err := Migrate(src, dst)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Migrated)
	assert.Equal(t, 1, stats.Skipped)
	assert.Zero(t, stats.Errors)

	require.NoError(t, Verify(src, dst))

	got, err := dst.Get("rec-peat")
	require.NoError(t, err)
	loc, err := got.Location()
	require.NoError(t, err)
	require.NotNil(t, loc)
	assert.InDelta(t, 60.0, loc.Latitude, 0)

	var out bytes.Buffer
	stats.Print(&out)
	assert.Contains(t, out.String(), "Migrated")

	again, err := Migrate(src, dst)
	require.NoError(t, err)
	assert.Zero(t, again.Migrated)
	assert.Equal(t, 3, again.Skipped)
}

func TestVerifyDetectsDifferences(t *testing.T) {
	t.Parallel()

	src := createDatabase(t, nil)
	dst := createDatabase(t, nil)
	require.NoError(t, src.Save(newRecord("a", soil.Sandy, 0.8, baseTime)))

	require.Error(t, Verify(src, dst))

	require.NoError(t, dst.Save(newRecord("a", soil.Silt, 0.8, baseTime)))
	require.Error(t, Verify(src, dst))
}
