package telemetry

import (
	"github.com/redis/go-redis/v9"
	"github.com/prometheus/client_golang/prometheus"
)

type redisPoolCollector struct {
	client *redis.Client

	hits       *prometheus.Desc
	misses     *prometheus.Desc
	timeouts   *prometheus.Desc
	totalConns *prometheus.Desc
	idleConns  *prometheus.Desc
	staleConns *prometheus.Desc
}

// RegisterRedisPoolMetrics registers Prometheus gauges/counters that
// report live go-redis connection pool statistics on every scrape, for
// consumer-mode deployments.
func RegisterRedisPoolMetrics(reg prometheus.Registerer, client *redis.Client) {
	reg.MustRegister(&redisPoolCollector{
		client: client,
		hits: prometheus.NewDesc(
			"splitkit_redis_pool_hits_total",
			"Number of times a free connection was found in the pool.",
			nil, nil,
		),
		misses: prometheus.NewDesc(
			"splitkit_redis_pool_misses_total",
			"Number of times a free connection was not found in the pool.",
			nil, nil,
		),
		timeouts: prometheus.NewDesc(
			"splitkit_redis_pool_timeouts_total",
			"Number of times a wait for a connection timed out.",
			nil, nil,
		),
		totalConns: prometheus.NewDesc(
			"splitkit_redis_pool_total_conns",
			"Number of total connections currently in the pool.",
			nil, nil,
		),
		idleConns: prometheus.NewDesc(
			"splitkit_redis_pool_idle_conns",
			"Number of idle connections currently in the pool.",
			nil, nil,
		),
		staleConns: prometheus.NewDesc(
			"splitkit_redis_pool_stale_conns_total",
			"Number of stale connections removed from the pool.",
			nil, nil,
		),
	})
}

func (c *redisPoolCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.hits
	ch <- c.misses
	ch <- c.timeouts
	ch <- c.totalConns
	ch <- c.idleConns
	ch <- c.staleConns
}

func (c *redisPoolCollector) Collect(ch chan<- prometheus.Metric) {
	stat := c.client.PoolStats()

	ch <- prometheus.MustNewConstMetric(c.hits, prometheus.CounterValue, float64(stat.Hits))
	ch <- prometheus.MustNewConstMetric(c.misses, prometheus.CounterValue, float64(stat.Misses))
	ch <- prometheus.MustNewConstMetric(c.timeouts, prometheus.CounterValue, float64(stat.Timeouts))
	ch <- prometheus.MustNewConstMetric(c.totalConns, prometheus.GaugeValue, float64(stat.TotalConns))
	ch <- prometheus.MustNewConstMetric(c.idleConns, prometheus.GaugeValue, float64(stat.IdleConns))
	ch <- prometheus.MustNewConstMetric(c.staleConns, prometheus.CounterValue, float64(stat.StaleConns))
}
