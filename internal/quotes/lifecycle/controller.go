// Package lifecycle 把各组件拼成一个可嵌入的引擎：Start 启动连接和定时任务，
// Stop 停机并给出退出码。进程要不要退出由宿主决定。
package lifecycle

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"tickerstream.com/internal/quotes/backoff"
	"tickerstream.com/internal/quotes/conn"
	"tickerstream.com/internal/quotes/datasource/model"
	"tickerstream.com/internal/quotes/health"
	"tickerstream.com/internal/quotes/plan"
	"tickerstream.com/internal/quotes/telemetry"
	"tickerstream.com/pkg/logger"
	"tickerstream.com/pkg/xerr"
)

const (
	DefaultResetAfter  = 12 * time.Hour
	DefaultStopTimeout = 5 * time.Second
)

var ErrStopped = errors.New("lifecycle: engine already stopped")

type Options struct {
	Symbols []string
	Plan    plan.Options
	Policy  backoff.Policy

	Health    health.Options
	Telemetry telemetry.Options
	// ResetAfter 启动后到了这个时间无条件强制重连一次
	ResetAfter  time.Duration
	StopTimeout time.Duration

	Transport    conn.Transport // nil 时用 WS 建 gorilla transport
	WS           conn.WSOptions
	OutboundRate rate.Limit
	OnTicker     func(model.Ticker)

	Logger *zap.Logger
}

// Result 引擎的终态。Exit=false 表示嵌入模式，宿主不应退出进程
type Result struct {
	ExitCode int
	Exit     bool
	Err      error
}

type Controller struct {
	id       string
	opt      Options
	log      *zap.Logger
	plan     plan.Plan
	mgr      *conn.Manager
	monitor  *health.Monitor
	reporter *telemetry.Reporter

	mu       sync.Mutex
	started  bool
	sched    *schedule
	stopping atomic.Bool

	done   chan struct{}
	result Result
}

func New(opt Options) (*Controller, error) {
	if opt.ResetAfter <= 0 {
		opt.ResetAfter = DefaultResetAfter
	}
	if opt.StopTimeout <= 0 {
		opt.StopTimeout = DefaultStopTimeout
	}
	if opt.Logger == nil {
		opt.Logger = logger.L()
	}
	if opt.Transport == nil {
		opt.Transport = conn.NewWSTransport(opt.WS)
	}

	id := uuid.NewString()
	log := opt.Logger.With(zap.String("engine_id", id))

	p, err := plan.Build(opt.Symbols, opt.Plan, log.Named("plan"))
	if err != nil {
		return nil, xerr.Wrap(err, xerr.ExitConfig, "build subscription plan")
	}

	mgr := conn.New(conn.Options{
		URL:          p.URL,
		Policy:       opt.Policy,
		Transport:    opt.Transport,
		OnTicker:     opt.OnTicker,
		OutboundRate: opt.OutboundRate,
		Logger:       log,
	})

	hopt := opt.Health
	hopt.Logger = log
	topt := opt.Telemetry
	topt.Logger = log

	log.Info("engine created",
		zap.String("mode", string(p.Mode)),
		zap.Int("requested", p.Requested),
		zap.Int("streams", len(p.Streams)),
		zap.Bool("truncated", p.Truncated),
		zap.String("url", p.URL),
	)

	return &Controller{
		id:       id,
		opt:      opt,
		log:      log.Named("lifecycle"),
		plan:     p,
		mgr:      mgr,
		monitor:  health.NewMonitor(mgr, hopt),
		reporter: telemetry.New(mgr, topt),
		done:     make(chan struct{}),
	}, nil
}

func (c *Controller) ID() string                { return c.id }
func (c *Controller) Plan() plan.Plan           { return c.plan }
func (c *Controller) Stats() conn.Stats         { return c.mgr.Stats() }
func (c *Controller) Health() conn.HealthView   { return c.mgr.Health() }
func (c *Controller) Snapshots() []model.Ticker { return c.mgr.Cache().List() }
func (c *Controller) Report() telemetry.Report  { return c.reporter.Snapshot() }
func (c *Controller) Stopping() bool            { return c.stopping.Load() }
func (c *Controller) Done() <-chan struct{}     { return c.done }
func (c *Controller) Snapshot(symbol string) (model.Ticker, bool) {
	return c.mgr.Cache().Get(symbol)
}

// Start 幂等。调度遥测、健康检查、一次性强制重连，再发起第一次连接
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopping.Load() {
		return ErrStopped
	}
	if c.started {
		return nil
	}
	c.started = true

	s := newSchedule(c.log)
	s.every("telemetry", c.reporter.Every(), func() { c.reporter.Emit() })
	s.every("health", c.monitor.Tick(), func() { c.monitor.Check() })
	s.after("hard_reset", c.opt.ResetAfter, c.hardReset)
	c.sched = s

	if err := c.mgr.Start(ctx); err != nil {
		s.stop()
		return err
	}
	go c.watchFatal()

	c.log.Info("engine started",
		zap.Duration("reset_after", c.opt.ResetAfter),
		zap.Duration("health_tick", c.monitor.Tick()),
		zap.Duration("telemetry_every", c.reporter.Every()),
	)
	return nil
}

func (c *Controller) hardReset() {
	if c.stopping.Load() {
		return
	}
	if err := c.mgr.Terminate(0, "hard_reset"); err != nil {
		// 当前没有 open 的会话：正在重连，等于已经换了一条新连接
		c.log.Info("hard reset skipped", zap.Error(err))
		return
	}
	c.log.Info("hard reset issued", zap.Duration("after", c.opt.ResetAfter))
}

// watchFatal 断线预算耗尽时以非零退出码停机
func (c *Controller) watchFatal() {
	select {
	case err := <-c.mgr.Fatal():
		code := xerr.CodeOf(err)
		c.log.Error("engine forfeited", zap.Int("exit_code", code), zap.Error(err))
		c.stop(&code, err)
	case <-c.done:
	}
}

// Stop 幂等。exitCode 为 nil 表示嵌入模式：只停引擎，不要求宿主退出
func (c *Controller) Stop(exitCode *int) {
	c.stop(exitCode, nil)
}

func (c *Controller) stop(exitCode *int, cause error) {
	if !c.stopping.CompareAndSwap(false, true) {
		return
	}

	c.mu.Lock()
	s := c.sched
	c.mu.Unlock()
	if s != nil {
		s.stop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.opt.StopTimeout)
	defer cancel()
	// 停机时关闭失败不影响结果
	if err := c.mgr.Close(ctx); err != nil {
		c.log.Warn("graceful close incomplete", zap.Error(err))
	}

	res := Result{Err: cause}
	if exitCode != nil {
		res.Exit = true
		res.ExitCode = *exitCode
	}
	c.result = res
	st := c.mgr.Stats()
	c.log.Info("engine stopped",
		zap.Bool("exit", res.Exit),
		zap.Int("exit_code", res.ExitCode),
		zap.Int("connects", st.Connects),
		zap.Int("disconnects", st.Disconnects),
	)
	close(c.done)
}

// Result 只有 Done 关闭之后才有意义
func (c *Controller) Result() Result {
	<-c.done
	return c.result
}

// Wait 阻塞到引擎停下或 ctx 结束
func (c *Controller) Wait(ctx context.Context) (Result, error) {
	select {
	case <-c.done:
		return c.result, nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// ExitCode 方便宿主传给 Stop
func ExitCode(code int) *int { return &code }
