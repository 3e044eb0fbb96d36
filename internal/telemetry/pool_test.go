package telemetry

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
)

func TestRegisterRedisPoolMetrics_GathersWithoutError(t *testing.T) {
	reg := prometheus.NewRegistry()
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	defer client.Close()

	RegisterRedisPoolMetrics(reg, client)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	names := map[string]bool{}
	for _, f := range families {
		names[f.GetName()] = true
	}
	for _, want := range []string{
		"splitkit_redis_pool_hits_total",
		"splitkit_redis_pool_misses_total",
		"splitkit_redis_pool_timeouts_total",
		"splitkit_redis_pool_total_conns",
		"splitkit_redis_pool_idle_conns",
		"splitkit_redis_pool_stale_conns_total",
	} {
		if !names[want] {
			t.Errorf("missing metric family %q", want)
		}
	}
}

func TestRegisterRedisPoolMetrics_DoubleRegisterPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	defer client.Close()

	RegisterRedisPoolMetrics(reg, client)

	defer func() {
		if r := recover(); r == nil {
			t.Error("registering the same collector name twice should panic via MustRegister")
		}
	}()
	RegisterRedisPoolMetrics(reg, client)
}
