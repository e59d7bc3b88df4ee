package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
)

var (
	RateLimitBlockTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tickerstream",
		Name:      "http_ratelimit_block_total",
		Help:      "Total number of HTTP requests rejected by the rate limiter.",
	}, []string{"route"})

	RedisPoolOpen     = promauto.NewGauge(prometheus.GaugeOpts{Name: "app_redis_pool_open"})
	RedisPoolIdle     = promauto.NewGauge(prometheus.GaugeOpts{Name: "app_redis_pool_idle"})
	RedisPoolStale    = promauto.NewGauge(prometheus.GaugeOpts{Name: "app_redis_pool_stale"})
	RedisPoolHits     = promauto.NewGauge(prometheus.GaugeOpts{Name: "app_redis_pool_hits"})
	RedisPoolMisses   = promauto.NewGauge(prometheus.GaugeOpts{Name: "app_redis_pool_misses"})
	RedisPoolTimeouts = promauto.NewGauge(prometheus.GaugeOpts{Name: "app_redis_pool_timeouts"})

	RedisCmdDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "app_redis_cmd_duration_seconds",
		Help:    "Redis command latency",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 15), // 1ms ~ 16s
	}, []string{"cmd", "status"})
	RedisErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "app_redis_errors_total",
		Help: "Redis errors",
	}, []string{"cmd"})
)

// ObserveRedis 记录一次命令耗时
func ObserveRedis(cmd string, start time.Time, err error) {
	status := "ok"
	if err != nil {
		status = "error"
		RedisErrors.WithLabelValues(cmd).Inc()
	}
	RedisCmdDuration.WithLabelValues(cmd, status).Observe(time.Since(start).Seconds())
}

// WatchRedisPool 定时把连接池状态写进 gauge，直到 ctx 结束
func WatchRedisPool(ctx context.Context, rdb *redis.Client, every time.Duration) {
	if every <= 0 {
		every = 5 * time.Second
	}
	go func() {
		t := time.NewTicker(every)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				st := rdb.PoolStats()
				RedisPoolOpen.Set(float64(st.TotalConns))
				RedisPoolIdle.Set(float64(st.IdleConns))
				RedisPoolStale.Set(float64(st.StaleConns))
				RedisPoolHits.Set(float64(st.Hits))
				RedisPoolMisses.Set(float64(st.Misses))
				RedisPoolTimeouts.Set(float64(st.Timeouts))
			}
		}
	}()
}
