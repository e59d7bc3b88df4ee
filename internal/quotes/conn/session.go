package conn

import "time"

// Session 一次物理连接尝试。每次重连都新建，不跨连接复用
type Session struct {
	Seq   uint64
	state State
	sock  Socket

	OpenedAt    time.Time
	LastMessage time.Time
	LastPing    time.Time // 对端发来的 ping
	LastPong    time.Time // 我们回的 pong 或对端回的 pong

	terminating bool
}

func newSession(seq uint64) *Session {
	return &Session{Seq: seq, state: StateIdle}
}

// HealthView 会话时间戳的只读快照，给健康检查和遥测用
type HealthView struct {
	Seq         uint64
	State       State
	OpenedAt    time.Time
	LastMessage time.Time
	LastPing    time.Time
	LastPong    time.Time
}

func (s *Session) view() HealthView {
	return HealthView{
		Seq:         s.Seq,
		State:       s.state,
		OpenedAt:    s.OpenedAt,
		LastMessage: s.LastMessage,
		LastPing:    s.LastPing,
		LastPong:    s.LastPong,
	}
}

// Stats 连接计数。Disconnects 整个运行期累计，不因重连成功清零
type Stats struct {
	Connects          int `json:"connects"`
	Disconnects       int `json:"disconnects"`
	ReconnectAttempts int `json:"reconnect_attempts"`
}
