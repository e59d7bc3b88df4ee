package lifecycle

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"tickerstream.com/pkg/safe"
)

// schedule 持有 controller 启动的所有定时任务，stop 后不会再有任务被触发
type schedule struct {
	log *zap.Logger

	mu      sync.Mutex
	stopped bool
	timers  []*time.Timer
	cancel  context.CancelFunc
	ctx     context.Context
	wg      sync.WaitGroup
}

func newSchedule(log *zap.Logger) *schedule {
	ctx, cancel := context.WithCancel(context.Background())
	return &schedule{log: log, ctx: ctx, cancel: cancel}
}

// every 每隔 d 执行一次 fn，第一次在 d 之后
func (s *schedule) every(name string, d time.Duration, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		t := time.NewTicker(d)
		defer t.Stop()
		for {
			select {
			case <-s.ctx.Done():
				return
			case <-t.C:
				s.run(name, fn)
			}
		}
	}()
}

// after 一次性任务
func (s *schedule) after(name string, d time.Duration, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	s.timers = append(s.timers, time.AfterFunc(d, func() { s.run(name, fn) }))
}

func (s *schedule) run(name string, fn func()) {
	if s.ctx.Err() != nil {
		return
	}
	if err := safe.Call(fn); err != nil {
		s.log.Error("scheduled task panicked", zap.String("task", name), zap.Error(err))
	}
}

// stop 取消全部任务，等正在跑的周期任务返回
func (s *schedule) stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	for _, t := range s.timers {
		t.Stop()
	}
	s.timers = nil
	s.cancel()
	s.mu.Unlock()

	s.wg.Wait()
}
