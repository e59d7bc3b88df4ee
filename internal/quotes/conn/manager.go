package conn

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"tickerstream.com/internal/quotes/backoff"
	"tickerstream.com/internal/quotes/datasource/binance"
	"tickerstream.com/internal/quotes/datasource/model"
	"tickerstream.com/internal/quotes/snapshot"
	"tickerstream.com/internal/quotes/wsmetrics"
	"tickerstream.com/pkg/logger"
	"tickerstream.com/pkg/safe"
	"tickerstream.com/pkg/xerr"
)

var (
	ErrNotOpen     = errors.New("conn: no open session")
	ErrShutdown    = errors.New("conn: manager is shutting down")
	ErrRateLimited = errors.New("conn: outbound rate limited")
	ErrTerminating = errors.New("conn: session already terminating")
)

type Options struct {
	URL       string
	Policy    backoff.Policy
	Transport Transport          // nil 使用 gorilla websocket
	Cache     *snapshot.Cache    // nil 新建
	OnTicker  func(model.Ticker) // 每条 ticker 写入缓存后回调，不能阻塞

	// OutboundRate 主动心跳的出站限速（交易所限制每秒 5 条）
	OutboundRate  rate.Limit
	OutboundBurst int

	Now    func() time.Time
	Logger *zap.Logger
}

// Manager 持有会话状态机。所有状态修改都在 mu 下完成：
// 读循环、重连定时器、健康检查、强制断开都从这里串行经过。
type Manager struct {
	opt     Options
	log     *zap.Logger
	cache   *snapshot.Cache
	limiter *rate.Limiter
	now     func() time.Time

	mu       sync.Mutex
	ctx      context.Context
	cancel   context.CancelFunc
	seq      uint64
	sess     *Session
	stats    Stats
	shutdown bool
	forfeit  bool
	retry    *time.Timer

	fatal chan error
	wg    sync.WaitGroup
}

func New(opt Options) *Manager {
	if opt.Transport == nil {
		opt.Transport = NewWSTransport(WSOptions{})
	}
	if opt.Cache == nil {
		opt.Cache = snapshot.New()
	}
	if opt.OutboundRate <= 0 {
		opt.OutboundRate = 5
	}
	if opt.OutboundBurst <= 0 {
		opt.OutboundBurst = 1
	}
	if opt.Now == nil {
		opt.Now = time.Now
	}
	if opt.Logger == nil {
		opt.Logger = logger.L()
	}
	return &Manager{
		opt:     opt,
		log:     opt.Logger.Named("conn"),
		cache:   opt.Cache,
		limiter: rate.NewLimiter(opt.OutboundRate, opt.OutboundBurst),
		now:     opt.Now,
		fatal:   make(chan error, 1),
	}
}

// Start 第一次连接。会话生命周期由 Close 控制，不跟随 ctx 取消
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.shutdown {
		return ErrShutdown
	}
	if m.ctx != nil {
		return nil
	}
	m.ctx, m.cancel = context.WithCancel(context.WithoutCancel(ctx))
	m.connectLocked()
	return nil
}

// Fatal 断线预算耗尽时收到一个 xerr.ExitForfeit 错误
func (m *Manager) Fatal() <-chan error { return m.fatal }

func (m *Manager) Cache() *snapshot.Cache { return m.cache }

func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats
}

func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stateLocked()
}

func (m *Manager) Health() HealthView {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sess == nil {
		return HealthView{State: StateIdle}
	}
	return m.sess.view()
}

func (m *Manager) stateLocked() State {
	if m.sess == nil {
		return StateIdle
	}
	return m.sess.state
}

func (m *Manager) connectLocked() {
	if m.shutdown || m.forfeit {
		return
	}
	from := m.stateLocked()
	to, err := Transition(from, EventDial)
	if err != nil {
		// 已有活跃会话，不能再开第二个
		m.log.Debug("connect skipped", zap.Stringer("state", from))
		return
	}

	m.seq++
	s := newSession(m.seq)
	s.state = to
	m.sess = s
	m.stats.Connects++

	wsmetrics.OnConnect()
	wsmetrics.SessionState.Set(float64(to))
	m.log.Info("session connecting",
		zap.Uint64("session_seq", s.Seq),
		zap.Int("connects", m.stats.Connects),
		zap.Int("attempt", m.stats.ReconnectAttempts),
	)

	m.wg.Add(1)
	safe.GoCtx(logger.WithSession(m.ctx, s.Seq), func(ctx context.Context) { m.run(ctx, s) })
}

// run 一次连接的完整生命周期：dial -> 读循环 -> closed。
// 读循环里的 panic（解析、下游回调）按本地致命错误处理：会话走 fatal 到 closed，照常进入重连和预算
func (m *Manager) run(ctx context.Context, s *Session) {
	defer m.wg.Done()

	var sock Socket
	defer func() {
		if r := recover(); r != nil {
			if sock != nil {
				_ = sock.Terminate()
			}
			m.finish(s, EventFatal, fmt.Errorf("conn: read loop panic: %v", r))
		}
	}()

	sock, err := m.opt.Transport.Dial(ctx, m.opt.URL)
	if err != nil {
		m.closed(s, err)
		return
	}
	if !m.opened(s, sock) {
		_ = sock.Close()
		m.closed(s, ErrShutdown)
		return
	}

	sock.SetPingHandler(func(appData string) error { return m.onPing(s, sock, appData) })
	sock.SetPongHandler(func(string) error {
		m.onPong(s)
		return nil
	})

	for {
		b, err := sock.ReadMessage()
		if err != nil {
			_ = sock.Terminate()
			m.closed(s, err)
			return
		}
		m.onFrame(s, b)
	}
}

func (m *Manager) opened(s *Session, sock Socket) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.shutdown || m.sess != s {
		return false
	}
	to, err := Transition(s.state, EventOpen)
	if err != nil {
		m.log.Warn("unexpected open", zap.Error(err))
		return false
	}
	now := m.now()
	s.state = to
	s.sock = sock
	s.OpenedAt = now
	s.LastMessage = now
	m.stats.ReconnectAttempts = 0

	wsmetrics.OnOpen()
	wsmetrics.SessionState.Set(float64(to))
	m.log.Info("session open", zap.Uint64("session_seq", s.Seq), zap.String("url", m.opt.URL))
	return true
}

func (m *Manager) closed(s *Session, cause error) { m.finish(s, EventClose, cause) }

// finish 会话结束的唯一入口，ev 是 EventClose 或 EventFatal。同一会话只计一次断线
func (m *Manager) finish(s *Session, ev Event, cause error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sess != s || !s.state.Active() {
		return
	}
	wasOpen := s.state == StateOpen
	to, err := Transition(s.state, ev)
	if err != nil {
		return
	}
	s.state = to
	s.sock = nil
	m.stats.Disconnects++

	wsmetrics.OnClose(wasOpen)
	wsmetrics.SessionState.Set(float64(to))

	fields := []zap.Field{
		zap.Uint64("session_seq", s.Seq),
		zap.Stringer("event", ev),
		zap.Bool("was_open", wasOpen),
		zap.Int("disconnects", m.stats.Disconnects),
		zap.Int("budget", m.opt.Policy.MaxDisconnects),
		zap.Error(cause),
	}
	if m.shutdown {
		m.log.Info("session closed on shutdown", fields...)
		return
	}

	d := m.opt.Policy.OnClose(m.stats.Disconnects, m.stats.ReconnectAttempts)
	if d.Forfeit {
		m.forfeit = true
		wsmetrics.ForfeitTotal.Inc()
		m.log.Error("disconnect budget exhausted, giving up", fields...)
		err := xerr.Wrap(
			fmt.Errorf("%d disconnects reached budget %d: %w", m.stats.Disconnects, m.opt.Policy.MaxDisconnects, cause),
			xerr.ExitForfeit, xerr.MapErrMsg(xerr.ExitForfeit),
		)
		select {
		case m.fatal <- err:
		default:
		}
		return
	}

	m.stats.ReconnectAttempts = d.Attempt
	wsmetrics.OnReconnectScheduled(d.Attempt, d.Delay)
	m.log.Warn("session closed, reconnect scheduled",
		append(fields, zap.Int("attempt", d.Attempt), zap.Duration("delay", d.Delay))...)
	m.retry = time.AfterFunc(d.Delay, m.reconnect)
}

func (m *Manager) reconnect() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.retry = nil
	m.connectLocked()
}

func (m *Manager) onFrame(s *Session, b []byte) {
	m.mu.Lock()
	if m.sess != s {
		m.mu.Unlock()
		return
	}
	s.LastMessage = m.now()
	m.mu.Unlock()

	tickers, err := binance.ParseMiniTickers(b)
	wsmetrics.OnFrame(len(b), len(tickers), err)
	if err != nil {
		m.log.Debug("drop frame", zap.Uint64("session_seq", s.Seq), zap.Error(err), zap.Int("bytes", len(b)))
		return
	}
	m.cache.PutAll(tickers)
	if m.opt.OnTicker != nil {
		for _, t := range tickers {
			m.opt.OnTicker(t)
		}
	}
}

// onPing 在读循环里同步执行：pong 立即写出，payload 原样回显
func (m *Manager) onPing(s *Session, sock Socket, appData string) error {
	wsmetrics.PingRecvTotal.Inc()
	now := m.now()
	m.mu.Lock()
	if m.sess == s {
		s.LastPing = now
	}
	m.mu.Unlock()

	err := sock.WritePong([]byte(appData))
	if err != nil {
		wsmetrics.HeartbeatErrorsTotal.WithLabelValues("pong").Inc()
		return err
	}
	wsmetrics.PongSentTotal.Inc()

	m.mu.Lock()
	if m.sess == s {
		s.LastPong = m.now()
	}
	m.mu.Unlock()
	return nil
}

func (m *Manager) onPong(s *Session) {
	wsmetrics.PongRecvTotal.Inc()
	m.mu.Lock()
	if m.sess == s {
		s.LastPong = m.now()
	}
	m.mu.Unlock()
}

func (m *Manager) openSocket() (*Session, Socket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.shutdown {
		return nil, nil, ErrShutdown
	}
	s := m.sess
	if s == nil || s.state != StateOpen || s.sock == nil {
		return nil, nil, ErrNotOpen
	}
	return s, s.sock, nil
}

// SendHeartbeat 主动发一个空 payload 的 ping
func (m *Manager) SendHeartbeat() error {
	s, sock, err := m.openSocket()
	if err != nil {
		return err
	}
	if !m.limiter.Allow() {
		wsmetrics.HeartbeatErrorsTotal.WithLabelValues("rate_limited").Inc()
		return ErrRateLimited
	}
	if err := sock.WritePing(nil); err != nil {
		wsmetrics.HeartbeatErrorsTotal.WithLabelValues("ping").Inc()
		return err
	}
	wsmetrics.HeartbeatSentTotal.Inc()
	m.log.Debug("heartbeat sent", zap.Uint64("session_seq", s.Seq))
	return nil
}

// Terminate 强制断开会话 seq（不发 close 帧），由随后的 close 事件驱动重连。
// seq 为 0 表示当前会话；seq 对不上（会话已经换过）返回 ErrNotOpen，
// 已经在断开中返回 ErrTerminating。
func (m *Manager) Terminate(seq uint64, reason string) error {
	m.mu.Lock()
	if m.shutdown {
		m.mu.Unlock()
		return ErrShutdown
	}
	s := m.sess
	if s == nil || s.state != StateOpen || s.sock == nil || (seq != 0 && s.Seq != seq) {
		m.mu.Unlock()
		return ErrNotOpen
	}
	if s.terminating {
		m.mu.Unlock()
		return ErrTerminating
	}
	s.terminating = true
	sock := s.sock
	m.mu.Unlock()

	wsmetrics.TerminateTotal.WithLabelValues(reason).Inc()
	m.log.Warn("terminating session", zap.Uint64("session_seq", s.Seq), zap.String("reason", reason))
	return sock.Terminate()
}

// Close 停机：不再重连，尽力优雅关闭当前会话，等待读循环退出
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	if m.shutdown {
		m.mu.Unlock()
		return nil
	}
	m.shutdown = true
	if m.retry != nil {
		m.retry.Stop()
		m.retry = nil
	}
	var sock Socket
	if m.sess != nil {
		sock = m.sess.sock
	}
	cancel := m.cancel
	m.mu.Unlock()

	// 关闭已经坏掉的连接会报错，这里忽略
	if sock != nil {
		_ = sock.Close()
	}
	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		if sock != nil {
			_ = sock.Terminate()
		}
		return ctx.Err()
	}
}
