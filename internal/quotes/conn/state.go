package conn

import "fmt"

// State 会话状态机：Idle -> Connecting -> Open -> Closed，Closed 可以再回到 Connecting
type State uint8

const (
	StateIdle State = iota
	StateConnecting
	StateOpen
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

// Active Connecting/Open：同一时刻最多一个会话处于这两个状态
func (s State) Active() bool { return s == StateConnecting || s == StateOpen }

type Event uint8

const (
	EventDial  Event = iota + 1 // 开始/重连
	EventOpen                   // 握手成功
	EventClose                  // 对端关闭、网络错误、强制断开
	EventFatal                  // 本地致命错误
)

func (e Event) String() string {
	switch e {
	case EventDial:
		return "dial"
	case EventOpen:
		return "open"
	case EventClose:
		return "close"
	case EventFatal:
		return "fatal"
	default:
		return fmt.Sprintf("event(%d)", uint8(e))
	}
}

type TransitionError struct {
	From  State
	Event Event
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("conn: invalid transition %s --%s-->", e.From, e.Event)
}

// Transition 纯函数，状态迁移表
func Transition(from State, ev Event) (State, error) {
	switch ev {
	case EventDial:
		if from == StateIdle || from == StateClosed {
			return StateConnecting, nil
		}
	case EventOpen:
		if from == StateConnecting {
			return StateOpen, nil
		}
	case EventClose:
		if from.Active() {
			return StateClosed, nil
		}
	case EventFatal:
		return StateClosed, nil
	}
	return from, &TransitionError{From: from, Event: ev}
}
