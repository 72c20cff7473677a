package activedirectory

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "activedirectory"

// PoolStats describes the connection pool.
type PoolStats struct {
	Total   int           `json:"total" yaml:"total"`
	Active  int64         `json:"active" yaml:"active"`
	Idle    int           `json:"idle" yaml:"idle"`
	Created int64         `json:"created" yaml:"created"`
	Errors  int64         `json:"errors" yaml:"errors"`
	Uptime  time.Duration `json:"uptime" yaml:"uptime"`
}

// CacheStats describes the lookup cache. It is zero when caching is off.
type CacheStats struct {
	Hits    int64   `json:"hits" yaml:"hits"`
	Misses  int64   `json:"misses" yaml:"misses"`
	Entries int64   `json:"entries" yaml:"entries"`
	HitRate float64 `json:"hit_rate" yaml:"hit_rate"`
}

// Stats is a snapshot of client statistics.
type Stats struct {
	Pool  PoolStats  `json:"pool" yaml:"pool"`
	Cache CacheStats `json:"cache" yaml:"cache"`
}

// Stats returns pool and cache statistics.
func (ad *ActiveDirectory) Stats() Stats {
	pool := ad.client.Stats()
	cache := ad.cache.Stats()
	return Stats{
		Pool: PoolStats(pool),
		Cache: CacheStats{
			Hits:    cache.Hits,
			Misses:  cache.Misses,
			Entries: cache.Entries,
			HitRate: cache.HitRate,
		},
	}
}

type metrics struct {
	queries  *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

func newMetrics() *metrics {
	return &metrics{
		queries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queries_total",
			Help:      "Directory queries by operation and result (success, not_found, error).",
		}, []string{"operation", "result"}),

		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "query_duration_seconds",
			Help:      "Duration of directory queries by operation.",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"operation"}),
	}
}

func (m *metrics) observe(operation, result string, d time.Duration) {
	if m == nil {
		return
	}
	m.queries.WithLabelValues(operation, result).Inc()
	m.duration.WithLabelValues(operation).Observe(d.Seconds())
}

var (
	poolConnectionsDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "pool", "connections"),
		"Pooled connections by state.",
		[]string{"state"}, nil,
	)
	poolCreatedDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "pool", "connections_created_total"),
		"Connections opened since the pool started.",
		nil, nil,
	)
	poolErrorsDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "pool", "connection_errors_total"),
		"Failed connection attempts since the pool started.",
		nil, nil,
	)
	cacheRequestsDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "cache", "requests_total"),
		"Lookup cache requests by result.",
		[]string{"result"}, nil,
	)
	cacheEntriesDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "cache", "entries"),
		"Items held in the lookup cache.",
		nil, nil,
	)
)

// collector exposes query metrics and pool and cache statistics.
type collector struct {
	ad *ActiveDirectory
}

// Collector returns a prometheus.Collector for this client. Register it
// with a single registry.
func (ad *ActiveDirectory) Collector() prometheus.Collector {
	return &collector{ad: ad}
}

func (c *collector) Describe(ch chan<- *prometheus.Desc) {
	c.ad.metrics.queries.Describe(ch)
	c.ad.metrics.duration.Describe(ch)
	ch <- poolConnectionsDesc
	ch <- poolCreatedDesc
	ch <- poolErrorsDesc
	ch <- cacheRequestsDesc
	ch <- cacheEntriesDesc
}

func (c *collector) Collect(ch chan<- prometheus.Metric) {
	c.ad.metrics.queries.Collect(ch)
	c.ad.metrics.duration.Collect(ch)

	stats := c.ad.Stats()
	ch <- prometheus.MustNewConstMetric(poolConnectionsDesc, prometheus.GaugeValue, float64(stats.Pool.Active), "active")
	ch <- prometheus.MustNewConstMetric(poolConnectionsDesc, prometheus.GaugeValue, float64(stats.Pool.Idle), "idle")
	ch <- prometheus.MustNewConstMetric(poolCreatedDesc, prometheus.CounterValue, float64(stats.Pool.Created))
	ch <- prometheus.MustNewConstMetric(poolErrorsDesc, prometheus.CounterValue, float64(stats.Pool.Errors))
	ch <- prometheus.MustNewConstMetric(cacheRequestsDesc, prometheus.CounterValue, float64(stats.Cache.Hits), "hit")
	ch <- prometheus.MustNewConstMetric(cacheRequestsDesc, prometheus.CounterValue, float64(stats.Cache.Misses), "miss")
	ch <- prometheus.MustNewConstMetric(cacheEntriesDesc, prometheus.GaugeValue, float64(stats.Cache.Entries))
}

var _ prometheus.Collector = (*collector)(nil)
