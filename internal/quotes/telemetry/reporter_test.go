package telemetry

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"tickerstream.com/internal/quotes/conn"
	"tickerstream.com/internal/quotes/datasource/model"
	"tickerstream.com/internal/quotes/snapshot"
)

type fakeSource struct {
	stats conn.Stats
	view  conn.HealthView
	cache *snapshot.Cache
}

func (f *fakeSource) Stats() conn.Stats       { return f.stats }
func (f *fakeSource) Health() conn.HealthView { return f.view }
func (f *fakeSource) Cache() *snapshot.Cache  { return f.cache }

func tk(sym, c, o string) model.Ticker {
	return model.Ticker{
		Symbol:      sym,
		Close:       decimal.RequireFromString(c),
		Open:        decimal.RequireFromString(o),
		High:        decimal.RequireFromString(c),
		Low:         decimal.RequireFromString(o),
		BaseVolume:  decimal.NewFromInt(1),
		QuoteVolume: decimal.NewFromInt(2),
	}
}

func TestReporter_SnapshotIsReadOnly(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	cache := snapshot.New()
	cache.PutAll([]model.Ticker{tk("ETHUSDT", "2200", "2100"), tk("BTCUSDT", "42000", "41000")})
	src := &fakeSource{
		stats: conn.Stats{Connects: 3, Disconnects: 2, ReconnectAttempts: 0},
		view:  conn.HealthView{Seq: 3, State: conn.StateOpen, OpenedAt: t0, LastMessage: t0.Add(-2 * time.Second)},
		cache: cache,
	}
	r := New(src, Options{Table: true, Now: func() time.Time { return t0 }})

	rep := r.Snapshot()
	assert.Equal(t, 3, rep.Stats.Connects)
	assert.Equal(t, 2, rep.Stats.Disconnects)
	assert.Equal(t, "open", rep.State)
	assert.Equal(t, 2, rep.CacheSize)
	assert.Equal(t, 2*time.Second, rep.LastMessageAge)
	assert.Equal(t, time.Duration(-1), rep.LastPingAge, "没收到过 ping")
	require.Len(t, rep.Rows, 2)
	assert.Equal(t, "BTCUSDT", rep.Rows[0].Symbol, "按 symbol 字典序")

	// 报表期间缓存和计数都不变
	assert.Equal(t, 2, cache.Len())
	assert.Equal(t, 3, src.stats.Connects)
}

func TestReporter_NoTableByDefault(t *testing.T) {
	cache := snapshot.New()
	cache.Put(tk("BTCUSDT", "1", "1"))
	r := New(&fakeSource{cache: cache}, Options{})
	assert.Nil(t, r.Snapshot().Rows)
	assert.Equal(t, DefaultEvery, r.Every())
}

func TestReporter_EmitLogs(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	cache := snapshot.New()
	cache.Put(tk("BTCUSDT", "110", "100"))
	src := &fakeSource{stats: conn.Stats{Connects: 1}, view: conn.HealthView{Seq: 1, State: conn.StateOpen}, cache: cache}

	r := New(src, Options{Table: true, Logger: zap.New(core)})
	r.Emit()

	entries := logs.FilterMessage("telemetry").All()
	require.Len(t, entries, 1)
	ctx := entries[0].ContextMap()
	assert.EqualValues(t, 1, ctx["connects"])
	assert.EqualValues(t, 1, ctx["cache_size"])
	assert.Contains(t, ctx["table"], "BTCUSDT")
}

func TestTable(t *testing.T) {
	out := Table([]model.Ticker{tk("BTCUSDT", "110", "100"), tk("ETHUSDT", "90", "100")})
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "SYMBOL")
	assert.Contains(t, lines[1], "BTCUSDT")
	assert.Contains(t, lines[1], "10.00")
	assert.Contains(t, lines[2], "-10.00")
}
