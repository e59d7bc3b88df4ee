package conn

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// Transport 建立一条物理连接。测试里换成内存实现
type Transport interface {
	Dial(ctx context.Context, url string) (Socket, error)
}

// Socket 一次连接。ReadMessage 只返回数据帧，控制帧在读的过程中交给 handler 处理，
// 所以 ping handler 写出的 pong 一定早于下一帧数据被处理。
type Socket interface {
	ReadMessage() ([]byte, error)
	SetPingHandler(h func(appData string) error)
	SetPongHandler(h func(appData string) error)
	WritePing(payload []byte) error
	WritePong(payload []byte) error
	// Close 发 close 帧后关闭，尽力而为
	Close() error
	// Terminate 直接断掉底层 TCP，不发 close 帧
	Terminate() error
}

type WSOptions struct {
	Dialer      *websocket.Dialer
	Header      http.Header
	DialTimeout time.Duration
	WriteWait   time.Duration
	ReadLimit   int64
}

type WSTransport struct {
	opt WSOptions
}

func NewWSTransport(opt WSOptions) *WSTransport {
	if opt.Dialer == nil {
		opt.Dialer = websocket.DefaultDialer
	}
	if opt.DialTimeout <= 0 {
		opt.DialTimeout = 10 * time.Second
	}
	if opt.WriteWait <= 0 {
		opt.WriteWait = 2 * time.Second
	}
	if opt.ReadLimit <= 0 {
		opt.ReadLimit = 1 << 22 // 全市场数组一帧可能上百 KB
	}
	return &WSTransport{opt: opt}
}

func (t *WSTransport) Dial(ctx context.Context, url string) (Socket, error) {
	// Dial timeout：避免网络黑洞卡死
	dctx, cancel := context.WithTimeout(ctx, t.opt.DialTimeout)
	defer cancel()

	c, resp, err := t.opt.Dialer.DialContext(dctx, url, t.opt.Header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: status=%d: %w", url, resp.StatusCode, err)
		}
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	c.SetReadLimit(t.opt.ReadLimit)
	return &wsSocket{c: c, writeWait: t.opt.WriteWait}, nil
}

type wsSocket struct {
	c         *websocket.Conn
	writeWait time.Duration
}

func (s *wsSocket) ReadMessage() ([]byte, error) {
	_, b, err := s.c.ReadMessage()
	return b, err
}

func (s *wsSocket) SetPingHandler(h func(string) error) { s.c.SetPingHandler(h) }
func (s *wsSocket) SetPongHandler(h func(string) error) { s.c.SetPongHandler(h) }

// WriteControl 可以和其他方法并发调用，不需要额外的写锁
func (s *wsSocket) WritePing(payload []byte) error {
	return s.c.WriteControl(websocket.PingMessage, payload, time.Now().Add(s.writeWait))
}

func (s *wsSocket) WritePong(payload []byte) error {
	return s.c.WriteControl(websocket.PongMessage, payload, time.Now().Add(s.writeWait))
}

func (s *wsSocket) Close() error {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye")
	werr := s.c.WriteControl(websocket.CloseMessage, msg, time.Now().Add(s.writeWait))
	cerr := s.c.Close()
	if werr != nil {
		return werr
	}
	return cerr
}

func (s *wsSocket) Terminate() error { return s.c.Close() }
