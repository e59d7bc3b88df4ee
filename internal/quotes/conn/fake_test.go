package conn

import (
	"context"
	"errors"
	"sync"
)

var errFakeClosed = errors.New("fake: connection closed")

// fakeTransport 按顺序返回预设的 dial 结果；用完后一律返回 dialErr
type fakeTransport struct {
	mu      sync.Mutex
	results []dialResult
	dials   int
	dialErr error
	dialed  chan *fakeSocket
}

type dialResult struct {
	sock *fakeSocket
	err  error
}

func newFakeTransport(results ...dialResult) *fakeTransport {
	return &fakeTransport{
		results: results,
		dialErr: errors.New("fake: connection refused"),
		dialed:  make(chan *fakeSocket, 16),
	}
}

func (t *fakeTransport) Dial(ctx context.Context, url string) (Socket, error) {
	t.mu.Lock()
	t.dials++
	var r dialResult
	if len(t.results) > 0 {
		r = t.results[0]
		t.results = t.results[1:]
	} else {
		r = dialResult{err: t.dialErr}
	}
	t.mu.Unlock()

	if r.err != nil {
		return nil, r.err
	}
	t.dialed <- r.sock
	return r.sock, nil
}

func (t *fakeTransport) Dials() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dials
}

type inbound struct {
	ping bool
	data []byte
}

// fakeSocket 模拟 gorilla 的行为：控制帧在 ReadMessage 内部交给 handler
type fakeSocket struct {
	in     chan inbound
	closed chan struct{}
	once   sync.Once

	mu          sync.Mutex
	pingHandler func(string) error
	pongHandler func(string) error
	pongs       []string
	pings       int
	graceful    bool
	terminated  bool
}

func newFakeSocket() *fakeSocket {
	return &fakeSocket{
		in:     make(chan inbound, 64),
		closed: make(chan struct{}),
	}
}

func (s *fakeSocket) ReadMessage() ([]byte, error) {
	for {
		select {
		case <-s.closed:
			return nil, errFakeClosed
		case m := <-s.in:
			if !m.ping {
				return m.data, nil
			}
			s.mu.Lock()
			h := s.pingHandler
			s.mu.Unlock()
			if h != nil {
				if err := h(string(m.data)); err != nil {
					return nil, err
				}
			}
		}
	}
}

func (s *fakeSocket) SetPingHandler(h func(string) error) {
	s.mu.Lock()
	s.pingHandler = h
	s.mu.Unlock()
}

func (s *fakeSocket) SetPongHandler(h func(string) error) {
	s.mu.Lock()
	s.pongHandler = h
	s.mu.Unlock()
}

func (s *fakeSocket) WritePing(payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pings++
	return nil
}

func (s *fakeSocket) WritePong(payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pongs = append(s.pongs, string(payload))
	return nil
}

func (s *fakeSocket) Close() error {
	s.mu.Lock()
	s.graceful = true
	s.mu.Unlock()
	s.drop()
	return nil
}

func (s *fakeSocket) Terminate() error {
	s.mu.Lock()
	s.terminated = true
	s.mu.Unlock()
	s.drop()
	return nil
}

func (s *fakeSocket) drop() { s.once.Do(func() { close(s.closed) }) }

func (s *fakeSocket) sendPing(payload string) { s.in <- inbound{ping: true, data: []byte(payload)} }
func (s *fakeSocket) sendData(frame string)   { s.in <- inbound{data: []byte(frame)} }

func (s *fakeSocket) Pongs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.pongs...)
}

func (s *fakeSocket) Pings() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pings
}

func (s *fakeSocket) WasGraceful() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.graceful
}

func (s *fakeSocket) WasTerminated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.terminated
}
