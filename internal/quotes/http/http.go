package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	ginprom "github.com/zsais/go-gin-prometheus"
	"golang.org/x/time/rate"

	"tickerstream.com/pkg/middleware"
	"tickerstream.com/pkg/ratelimit"
)

type RouterOptions struct {
	// RateLimit 每个 ip+路由的 rps，<=0 不限流
	RateLimit float64
	Burst     int
	// Metrics 挂载 /metrics 和请求指标
	Metrics bool
}

// NewRouter 只读 API：/healthz /stats /tickers /tickers/:symbol，可选 /metrics
func NewRouter(ctx context.Context, eng Engine, opt RouterOptions) *gin.Engine {
	r := gin.New()
	if opt.Metrics {
		p := ginprom.NewPrometheus("tickerstream")
		p.Use(r)
	}
	r.Use(
		middleware.ReqId(),
		cors.Default(),
		middleware.Recover(),
	)
	if opt.RateLimit > 0 {
		store := ratelimit.NewStore(rate.Limit(opt.RateLimit), opt.Burst, 10*time.Minute)
		store.StartJanitor(ctx, time.Minute)
		r.Use(middleware.RateLimit(store))
	}

	h := &Handler{eng: eng}
	r.GET("/healthz", h.Healthz)
	r.GET("/stats", h.Stats)
	r.GET("/tickers", h.Tickers)
	r.GET("/tickers/:symbol", h.Ticker)
	return r
}

func NewServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}
}
