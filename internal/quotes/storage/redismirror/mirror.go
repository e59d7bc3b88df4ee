// Package redismirror 把每个 symbol 的最新 ticker 镜像到一个 Redis hash。
// 只保留最新值，不是历史：field=symbol，value=ticker JSON，每次 flush 覆盖。
package redismirror

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/segmentio/encoding/json"
	"go.uber.org/zap"

	"tickerstream.com/internal/quotes/datasource/model"
	"tickerstream.com/internal/quotes/wsmetrics"
	"tickerstream.com/pkg/metrics"
)

const sinkRedis = "redis"

type Config struct {
	Key           string        // hash key，例如 tickers:latest
	FlushInterval time.Duration // 例如 1s
}

// Store 镜像需要的最小 Redis 能力
type Store interface {
	HSet(ctx context.Context, key string, values ...interface{}) error
}

type clientStore struct{ rdb redis.UniversalClient }

func (s clientStore) HSet(ctx context.Context, key string, values ...interface{}) error {
	start := time.Now()
	err := s.rdb.HSet(ctx, key, values...).Err()
	metrics.ObserveRedis("hset", start, err)
	return err
}

// NewClientStore 用 go-redis 客户端实现 Store
func NewClientStore(rdb redis.UniversalClient) Store { return clientStore{rdb: rdb} }

// Mirror 读循环里 Offer 只写内存 map；Run 定时把积攒的最新值一次 HSET 出去。
// 同一个 symbol 在一个 flush 周期内多次更新只写最后一次。
type Mirror struct {
	cfg   Config
	store Store
	log   *zap.Logger

	mu      sync.Mutex
	pending map[string]model.Ticker
}

func New(cfg Config, store Store, log *zap.Logger) *Mirror {
	if cfg.Key == "" {
		cfg.Key = "tickers:latest"
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Mirror{
		cfg:     cfg,
		store:   store,
		log:     log.Named("redismirror"),
		pending: make(map[string]model.Ticker),
	}
}

func (m *Mirror) Offer(t model.Ticker) {
	m.mu.Lock()
	m.pending[t.Symbol] = t
	m.mu.Unlock()
}

func (m *Mirror) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

// Run 直到 ctx 结束，退出前再 flush 一次
func (m *Mirror) Run(ctx context.Context) error {
	t := time.NewTicker(m.cfg.FlushInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			fctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := m.Flush(fctx); err != nil {
				m.log.Warn("final flush failed", zap.Error(err))
			}
			return nil
		case <-t.C:
			if err := m.Flush(ctx); err != nil {
				m.log.Warn("flush failed", zap.Error(err))
			}
		}
	}
}

// Flush 写出所有待写的 symbol；失败的这一批放回去，除非已经有更新的值。
func (m *Mirror) Flush(ctx context.Context) error {
	m.mu.Lock()
	if len(m.pending) == 0 {
		m.mu.Unlock()
		return nil
	}
	batch := m.pending
	m.pending = make(map[string]model.Ticker, len(batch))
	m.mu.Unlock()

	values := make([]interface{}, 0, 2*len(batch))
	for sym, t := range batch {
		b, err := json.Marshal(t)
		if err != nil {
			wsmetrics.SinkErrorsTotal.WithLabelValues(sinkRedis).Inc()
			continue
		}
		values = append(values, sym, string(b))
	}
	if len(values) == 0 {
		return nil
	}

	if err := m.store.HSet(ctx, m.cfg.Key, values...); err != nil {
		wsmetrics.SinkErrorsTotal.WithLabelValues(sinkRedis).Inc()
		m.requeue(batch)
		return fmt.Errorf("hset %s (%d symbols): %w", m.cfg.Key, len(batch), err)
	}
	wsmetrics.SinkWrittenTotal.WithLabelValues(sinkRedis).Add(float64(len(values) / 2))
	return nil
}

func (m *Mirror) requeue(batch map[string]model.Ticker) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for sym, t := range batch {
		if _, newer := m.pending[sym]; !newer {
			m.pending[sym] = t
		}
	}
}
