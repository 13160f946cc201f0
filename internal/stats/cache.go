package stats

import (
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/tphakala/soilnet-go/internal/datastore"
	"github.com/tphakala/soilnet-go/internal/logger"
	"github.com/tphakala/soilnet-go/internal/observability/metrics"
)

const recordsKey = "records"

// Loader reads the full record set, normally datastore.Interface.LoadAll.
type Loader func() ([]datastore.Record, error)

// Cache keeps the loaded record set for ttl and computes Statistics from it
// on every call, so the result for a given now is the same as Compute's.
// Writers call Invalidate after every store mutation so a cached record set
// never outlives a write.
type Cache struct {
	entries *cache.Cache
	ttl     time.Duration
	loc     *time.Location
	metrics *metrics.PipelineMetrics
	log     logger.Logger
}

// NewCache creates a record set cache. A ttl of 0 disables caching.
func NewCache(ttl time.Duration, loc *time.Location, m *metrics.PipelineMetrics) *Cache {
	if loc == nil {
		loc = time.Local
	}
	// No janitor: the single key is overwritten or expired on read.
	return &Cache{
		entries: cache.New(ttl, 0),
		ttl:     ttl,
		loc:     loc,
		metrics: m,
		log:     GetLogger(),
	}
}

// Statistics computes the statistics as of now from the cached record set,
// loading it first when absent. The cached slice is only ever read.
func (c *Cache) Statistics(now time.Time, load Loader) (Statistics, error) {
	records, err := c.records(load)
	if err != nil {
		return Statistics{}, err
	}

	s := Compute(records, now, c.loc)
	c.log.Debug("statistics computed",
		logger.Int("total_scans", s.TotalScans),
		logger.Int("streak_days", s.StreakDays))
	return s, nil
}

func (c *Cache) records(load Loader) ([]datastore.Record, error) {
	if cached, ok := c.entries.Get(recordsKey); ok {
		c.metrics.RecordStatsCache(true)
		return cached.([]datastore.Record), nil
	}
	c.metrics.RecordStatsCache(false)

	records, err := load()
	if err != nil {
		return nil, err
	}
	if c.ttl > 0 {
		c.entries.SetDefault(recordsKey, records)
	}
	return records, nil
}

// Invalidate drops the cached record set.
func (c *Cache) Invalidate() {
	c.entries.Delete(recordsKey)
}

// Location returns the calendar zone used for streaks.
func (c *Cache) Location() *time.Location {
	return c.loc
}
