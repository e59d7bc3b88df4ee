// Package health 按固定节拍检查对端心跳。
//
// 两个阈值都和"距离上一次收到对端 ping 多久"比较，检查粒度就是 tick，
// 实际触发时间最多晚一个 tick。
package health

import (
	"time"

	"go.uber.org/zap"

	"tickerstream.com/internal/quotes/conn"
)

const (
	DefaultTick           = 10 * time.Second
	DefaultHeartbeatAfter = 50 * time.Second
	DefaultGrace          = 75 * time.Second
)

// Target 健康检查需要的连接能力，conn.Manager 实现它
type Target interface {
	Health() conn.HealthView
	SendHeartbeat() error
	Terminate(seq uint64, reason string) error
}

type Options struct {
	Tick           time.Duration
	HeartbeatAfter time.Duration // 静默超过它主动发一个空 ping
	Grace          time.Duration // 静默超过它判定会话卡死，强制断开
	Now            func() time.Time
	Logger         *zap.Logger
}

func (o Options) withDefaults() Options {
	if o.Tick <= 0 {
		o.Tick = DefaultTick
	}
	if o.HeartbeatAfter <= 0 {
		o.HeartbeatAfter = DefaultHeartbeatAfter
	}
	if o.Grace <= 0 {
		o.Grace = DefaultGrace
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
}

type Action uint8

const (
	ActionNone Action = iota
	ActionHeartbeat
	ActionTerminate
)

func (a Action) String() string {
	switch a {
	case ActionHeartbeat:
		return "heartbeat"
	case ActionTerminate:
		return "terminate"
	default:
		return "none"
	}
}

type Monitor struct {
	target Target
	opt    Options
	log    *zap.Logger
}

func NewMonitor(target Target, opt Options) *Monitor {
	opt = opt.withDefaults()
	return &Monitor{target: target, opt: opt, log: opt.Logger.Named("health")}
}

func (m *Monitor) Tick() time.Duration { return m.opt.Tick }

// Check 执行一次检查，每次最多一个动作：要么发心跳，要么强制断开
func (m *Monitor) Check() Action {
	v := m.target.Health()
	if v.State != conn.StateOpen {
		return ActionNone
	}

	// 还没收到过 ping 就从会话打开开始算
	ref := v.LastPing
	if ref.IsZero() {
		ref = v.OpenedAt
	}
	if ref.IsZero() {
		return ActionNone
	}
	silence := m.opt.Now().Sub(ref)

	switch {
	case silence > m.opt.Grace:
		m.log.Warn("peer heartbeat missing past grace, terminating session",
			zap.Uint64("session_seq", v.Seq),
			zap.Duration("silence", silence),
			zap.Duration("grace", m.opt.Grace),
		)
		if err := m.target.Terminate(v.Seq, "stalled"); err != nil {
			m.log.Debug("terminate skipped", zap.Error(err))
			return ActionNone
		}
		return ActionTerminate

	case silence > m.opt.HeartbeatAfter:
		if err := m.target.SendHeartbeat(); err != nil {
			m.log.Debug("heartbeat not sent", zap.Error(err))
			return ActionNone
		}
		m.log.Info("sent unsolicited heartbeat",
			zap.Uint64("session_seq", v.Seq),
			zap.Duration("silence", silence),
		)
		return ActionHeartbeat
	}
	return ActionNone
}
