// Package prometheus exports offcache statistics as Prometheus metrics.
//
//	reg := prometheus.NewRegistry()
//	reg.MustRegister(offprom.NewCollector(c, "orders"))
package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/unkn0wn-root/offcache"
)

// StatsSource is satisfied by offcache.Cache.
type StatsSource interface {
	Stats() offcache.Stats
}

// Collector reads Stats on every scrape. Counters mirror the cache's own
// monotonic counters; gauges are point-in-time.
type Collector struct {
	src StatsSource

	entries     *prometheus.Desc
	bytes       *prometheus.Desc
	hits        *prometheus.Desc
	misses      *prometheus.Desc
	evictions   *prometheus.Desc
	expirations *prometheus.Desc
	online      *prometheus.Desc
	queue       *prometheus.Desc
	conflicts   *prometheus.Desc
	completed   *prometheus.Desc
	lastSync    *prometheus.Desc
	latency     *prometheus.Desc
}

var _ prometheus.Collector = (*Collector)(nil)

// NewCollector labels every metric with cache=name.
func NewCollector(src StatsSource, name string) *Collector {
	cl := prometheus.Labels{"cache": name}
	desc := func(n, help string, labels ...string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName("offcache", "", n), help, labels, cl)
	}
	return &Collector{
		src:         src,
		entries:     desc("entries", "Live entries in the cache."),
		bytes:       desc("size_bytes", "Estimated size of the cache in bytes."),
		hits:        desc("hits_total", "Reads served from the cache."),
		misses:      desc("misses_total", "Reads that found nothing usable."),
		evictions:   desc("evictions_total", "Entries removed by capacity pressure."),
		expirations: desc("expirations_total", "Entries removed after their TTL."),
		online:      desc("online", "1 when the cache may reach the remote."),
		queue:       desc("sync_operations", "Queued operations by status.", "status"),
		conflicts:   desc("sync_conflicts", "Queued operations whose last attempt conflicted."),
		completed:   desc("sync_completed_total", "Operations the remote acknowledged."),
		lastSync:    desc("sync_last_timestamp_seconds", "Timestamp of the newest acknowledged operation."),
		latency:     desc("avg_latency_seconds", "Rolling average latency by stage.", "stage"),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{
		c.entries, c.bytes, c.hits, c.misses, c.evictions, c.expirations,
		c.online, c.queue, c.conflicts, c.completed, c.lastSync, c.latency,
	} {
		ch <- d
	}
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	s := c.src.Stats()
	gauge := func(d *prometheus.Desc, v float64, labels ...string) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.GaugeValue, v, labels...)
	}
	counter := func(d *prometheus.Desc, v float64) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, v)
	}

	gauge(c.entries, float64(s.TotalEntries))
	gauge(c.bytes, float64(s.TotalSize))
	counter(c.hits, float64(s.Hits))
	counter(c.misses, float64(s.Misses))
	counter(c.evictions, float64(s.Evictions))
	counter(c.expirations, float64(s.Expirations))

	online := 0.0
	if s.Sync.Online {
		online = 1
	}
	gauge(c.online, online)
	gauge(c.queue, float64(s.Sync.PendingOperations), "pending")
	gauge(c.queue, float64(s.Sync.ProcessingOperations), "processing")
	gauge(c.queue, float64(s.Sync.FailedOperations), "failed")
	gauge(c.conflicts, float64(s.Sync.ConflictCount))
	counter(c.completed, float64(s.Sync.CompletedOperations))

	last := 0.0
	if !s.Sync.LastSyncTime.IsZero() {
		last = float64(s.Sync.LastSyncTime.UnixNano()) / 1e9
	}
	gauge(c.lastSync, last)

	gauge(c.latency, s.Performance.AvgReadTime.Seconds(), "read")
	gauge(c.latency, s.Performance.AvgWriteTime.Seconds(), "write")
	gauge(c.latency, s.Performance.AvgSyncTime.Seconds(), "sync")
}
