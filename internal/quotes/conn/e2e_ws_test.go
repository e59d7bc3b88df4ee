package conn

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// venue 一个最小的行情服务：连上就发 ping，等 pong 回来后推一帧全市场数组
type venue struct {
	upgrader websocket.Upgrader

	mu     sync.Mutex
	pongs  []string
	paths  []string
	conns  int
	closed chan struct{}
}

func newVenue(t *testing.T) (*venue, *httptest.Server) {
	v := &venue{closed: make(chan struct{}, 8)}
	srv := httptest.NewServer(http.HandlerFunc(v.serve))
	t.Cleanup(srv.Close)
	return v, srv
}

func (v *venue) serve(w http.ResponseWriter, r *http.Request) {
	c, err := v.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer c.Close()

	v.mu.Lock()
	v.conns++
	v.paths = append(v.paths, r.URL.RequestURI())
	v.mu.Unlock()

	gotPong := make(chan string, 1)
	c.SetPongHandler(func(p string) error {
		v.mu.Lock()
		v.pongs = append(v.pongs, p)
		v.mu.Unlock()
		select {
		case gotPong <- p:
		default:
		}
		return nil
	})

	readErr := make(chan error, 1)
	go func() {
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				readErr <- err
				return
			}
		}
	}()

	_ = c.WriteControl(websocket.PingMessage, []byte("1700000000000"), time.Now().Add(time.Second))
	select {
	case <-gotPong:
	case <-time.After(2 * time.Second):
		return
	}

	frame := `[{"e":"24hrMiniTicker","E":2,"s":"BTCUSDT","c":"42000.1","o":"41000","h":"42500","l":"40900","v":"12.5","q":"520000"},` +
		`{"e":"24hrMiniTicker","E":2,"s":"ETHUSDT","c":"2200","o":"2100","h":"2250","l":"2090","v":"300","q":"650000"}]`
	_ = c.WriteMessage(websocket.TextMessage, []byte(frame))

	<-readErr
	v.closed <- struct{}{}
}

func (v *venue) Pongs() []string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]string(nil), v.pongs...)
}

func TestManager_E2E_GorillaTransport(t *testing.T) {
	v, srv := newVenue(t)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/stream?streams=!miniTicker@arr"

	m := New(Options{
		URL:       url,
		Policy:    fastPolicy(5),
		Transport: NewWSTransport(WSOptions{DialTimeout: time.Second, WriteWait: time.Second}),
		Logger:    zap.NewNop(),
	})
	require.NoError(t, m.Start(context.Background()))

	require.Eventually(t, func() bool { return m.Cache().Len() == 2 }, 3*time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"1700000000000"}, v.Pongs(), "pong payload 必须和 ping 一致")

	eth, ok := m.Cache().Get("ETHUSDT")
	require.True(t, ok)
	assert.Equal(t, "2200", eth.Close.String())

	v.mu.Lock()
	assert.Equal(t, []string{"/stream?streams=!miniTicker@arr"}, v.paths)
	v.mu.Unlock()

	// 强制断开 -> 自动重连到第二条连接
	require.NoError(t, m.Terminate(0, "hard_reset"))
	require.Eventually(t, func() bool {
		v.mu.Lock()
		defer v.mu.Unlock()
		return v.conns == 2
	}, 3*time.Second, 5*time.Millisecond)
	waitState(t, m, StateOpen)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, m.Close(ctx))
	// 强制断开一次 + 停机关闭一次
	assert.Equal(t, 2, m.Stats().Disconnects)
	assert.Equal(t, 2, m.Stats().Connects)
}
