package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/segmentio/encoding/json"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tickerstream.com/internal/quotes/conn"
	"tickerstream.com/internal/quotes/datasource/model"
	"tickerstream.com/internal/quotes/plan"
	"tickerstream.com/internal/quotes/telemetry"
	"tickerstream.com/pkg/common"
)

type fakeEngine struct {
	state    conn.State
	stopping bool
	tickers  map[string]model.Ticker
}

func (f *fakeEngine) ID() string      { return "engine-1" }
func (f *fakeEngine) Stopping() bool  { return f.stopping }
func (f *fakeEngine) Plan() plan.Plan { return plan.Plan{Mode: plan.ModeMultiplexed, Streams: []string{"btcusdt@miniTicker"}} }
func (f *fakeEngine) Health() conn.HealthView {
	return conn.HealthView{Seq: 2, State: f.state}
}
func (f *fakeEngine) Report() telemetry.Report {
	return telemetry.Report{Stats: conn.Stats{Connects: 2, Disconnects: 1}, CacheSize: len(f.tickers)}
}
func (f *fakeEngine) Snapshot(symbol string) (model.Ticker, bool) {
	t, ok := f.tickers[symbol]
	return t, ok
}
func (f *fakeEngine) Snapshots() []model.Ticker {
	out := make([]model.Ticker, 0, len(f.tickers))
	for _, t := range f.tickers {
		out = append(out, t)
	}
	return out
}

func newEngine() *fakeEngine {
	return &fakeEngine{
		state: conn.StateOpen,
		tickers: map[string]model.Ticker{
			"BTCUSDT": {Symbol: "BTCUSDT", Close: decimal.RequireFromString("42000.1")},
		},
	}
}

func do(t *testing.T, r http.Handler, path string) (*httptest.ResponseRecorder, common.Response) {
	t.Helper()
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	var resp common.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return w, resp
}

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	m.Run()
}

func TestHealthz(t *testing.T) {
	eng := newEngine()
	r := NewRouter(context.Background(), eng, RouterOptions{})

	w, resp := do(t, r, "/healthz")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get(common.HeaderRequestID))
	data := resp.Data.(map[string]interface{})
	assert.Equal(t, "open", data["state"])

	eng.state = conn.StateClosed
	w, resp = do(t, r, "/healthz")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, common.CodeUnavailable, resp.Code)

	eng.state = conn.StateOpen
	eng.stopping = true
	w, _ = do(t, r, "/healthz")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestStats(t *testing.T) {
	r := NewRouter(context.Background(), newEngine(), RouterOptions{})
	w, resp := do(t, r, "/stats")
	require.Equal(t, http.StatusOK, w.Code)
	data := resp.Data.(map[string]interface{})
	assert.Equal(t, "engine-1", data["engine_id"])
	assert.Equal(t, "multiplexed", data["mode"])
	stats := data["stats"].(map[string]interface{})
	assert.EqualValues(t, 2, stats["connects"])
	assert.EqualValues(t, 1, stats["disconnects"])
}

func TestTickers(t *testing.T) {
	r := NewRouter(context.Background(), newEngine(), RouterOptions{})

	w, resp := do(t, r, "/tickers")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, resp.Data, 1)

	w, resp = do(t, r, "/tickers/BTCUSDT")
	require.Equal(t, http.StatusOK, w.Code)
	data := resp.Data.(map[string]interface{})
	assert.Equal(t, "42000.1", data["close"])

	w, resp = do(t, r, "/tickers/DOGEUSDT")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, common.CodeNotFound, resp.Code)
	assert.Nil(t, resp.Data)
}

func TestRateLimit(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r := NewRouter(ctx, newEngine(), RouterOptions{RateLimit: 0.001, Burst: 1})

	w, _ := do(t, r, "/tickers")
	assert.Equal(t, http.StatusOK, w.Code)
	w, resp := do(t, r, "/tickers")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, common.CodeRateLimited, resp.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	r := NewRouter(context.Background(), newEngine(), RouterOptions{Metrics: true})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "go_goroutines")
}
