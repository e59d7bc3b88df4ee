// Package app 宿主进程：引擎 + 可选的 broker/redis 下游 + 只读 HTTP API。
package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"tickerstream.com/internal/quotes/config"
	"tickerstream.com/internal/quotes/conn"
	"tickerstream.com/internal/quotes/datasource/model"
	"tickerstream.com/internal/quotes/gateway"
	qhttp "tickerstream.com/internal/quotes/http"
	"tickerstream.com/internal/quotes/lifecycle"
	"tickerstream.com/internal/quotes/plan"
	"tickerstream.com/internal/quotes/storage/redismirror"
	"tickerstream.com/internal/quotes/telemetry"
	"tickerstream.com/pkg/logger"
	"tickerstream.com/pkg/metrics"
	"tickerstream.com/pkg/xerr"
	"tickerstream.com/pkg/xredis"
)

type App struct {
	cfg *config.Config
	log *zap.Logger

	engine    *lifecycle.Controller
	broker    gateway.Broker
	publisher *gateway.Publisher
	rdb       *redis.Client
	mirror    *redismirror.Mirror
	srv       *http.Server
}

// New 组装所有组件，不发起任何上游连接
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{cfg: cfg, log: logger.L()}

	if cfg.Nats.Enabled {
		b, err := gateway.NewNatsBroker(cfg.Nats.URL, nats.Name(config.Service))
		if err != nil {
			return nil, xerr.Wrap(err, xerr.ExitConfig, "connect nats")
		}
		a.broker = b
		a.publisher = gateway.NewPublisher(b, 0, a.log)
	}
	if cfg.Redis.Enabled {
		rdb, err := xredis.NewRedis(ctx, &xredis.Config{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		if err != nil {
			a.closeSinks()
			return nil, xerr.Wrap(err, xerr.ExitConfig, "connect redis")
		}
		a.rdb = rdb
		a.mirror = redismirror.New(redismirror.Config{Key: cfg.Redis.Key, FlushInterval: cfg.Redis.Flush},
			redismirror.NewClientStore(rdb), a.log)
	}

	eng, err := lifecycle.New(lifecycle.Options{
		Symbols: plan.ParseSymbols(cfg.Symbols),
		Plan:    cfg.PlanOptions(),
		Policy:  cfg.Policy(),
		Health:  cfg.HealthOptions(),
		Telemetry: telemetry.Options{
			Every: cfg.Telemetry.Every,
			Table: cfg.Telemetry.Table,
		},
		ResetAfter: cfg.Reset.After,
		WS: conn.WSOptions{
			DialTimeout: cfg.WS.DialTimeout,
			WriteWait:   cfg.WS.WriteWait,
			ReadLimit:   cfg.WS.ReadLimit,
		},
		OutboundRate: rate.Limit(cfg.WS.OutboundRate),
		OnTicker:     a.fanout,
		Logger:       a.log,
	})
	if err != nil {
		a.closeSinks()
		return nil, err
	}
	a.engine = eng

	if cfg.HTTP.Addr != "" {
		r := qhttp.NewRouter(ctx, eng, qhttp.RouterOptions{
			RateLimit: cfg.HTTP.RateLimit,
			Burst:     cfg.HTTP.Burst,
			Metrics:   cfg.HTTP.Metrics,
		})
		a.srv = qhttp.NewServer(cfg.HTTP.Addr, r)
	}
	return a, nil
}

func (a *App) Engine() *lifecycle.Controller { return a.engine }

// fanout 在读循环里执行，两个下游都只入队
func (a *App) fanout(t model.Ticker) {
	if a.publisher != nil {
		a.publisher.Offer(t)
	}
	if a.mirror != nil {
		a.mirror.Offer(t)
	}
}

// Run 阻塞到 ctx 取消（信号）或引擎自己停下，返回进程退出码
func (a *App) Run(ctx context.Context) int {
	sinkCtx, cancelSinks := context.WithCancel(context.Background())
	defer cancelSinks()
	g, gctx := errgroup.WithContext(sinkCtx)

	if a.publisher != nil {
		g.Go(func() error { return a.publisher.Run(gctx) })
	}
	if a.mirror != nil {
		metrics.WatchRedisPool(gctx, a.rdb, 5*time.Second)
		g.Go(func() error { return a.mirror.Run(gctx) })
	}
	if a.srv != nil {
		g.Go(func() error {
			a.log.Info("http listening", zap.String("addr", a.srv.Addr))
			if err := a.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}

	if err := a.engine.Start(ctx); err != nil {
		a.log.Error("engine start failed", zap.Error(err))
		a.engine.Stop(lifecycle.ExitCode(xerr.ExitFatal))
	}

	select {
	case <-ctx.Done():
		a.log.Info("shutdown requested")
		a.engine.Stop(lifecycle.ExitCode(xerr.ExitOK))
	case <-a.engine.Done():
	case <-gctx.Done():
		// http 起不来之类的，整个进程退出
		a.log.Error("host component failed", zap.Error(context.Cause(gctx)))
		a.engine.Stop(lifecycle.ExitCode(xerr.ExitFatal))
	}
	// Stop 可能和 forfeit 的停机并发，后者还在关连接时这里要等它写完结果
	wctx, cancelWait := context.WithTimeout(context.Background(), 2*lifecycle.DefaultStopTimeout)
	res, err := a.engine.Wait(wctx)
	cancelWait()
	if err != nil {
		a.log.Error("engine did not stop in time", zap.Error(err))
		res = lifecycle.Result{ExitCode: xerr.ExitFatal, Exit: true, Err: err}
	}

	if a.srv != nil {
		sctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		_ = a.srv.Shutdown(sctx)
		cancel()
	}
	cancelSinks()
	if err := g.Wait(); err != nil && res.ExitCode == xerr.ExitOK {
		res.ExitCode = xerr.ExitFatal
	}
	a.closeSinks()

	a.log.Info("host exiting", zap.Int("exit_code", res.ExitCode), zap.Error(res.Err))
	if !res.Exit {
		return xerr.ExitOK
	}
	return res.ExitCode
}

func (a *App) closeSinks() {
	if a.broker != nil {
		_ = a.broker.Close()
	}
	if a.rdb != nil {
		_ = a.rdb.Close()
	}
}
