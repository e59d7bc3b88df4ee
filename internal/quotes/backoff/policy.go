// Package backoff 计算重连延迟，并执行整个运行期的断线预算。
//
// 断线预算是累计值，成功重连也不清零：交易所对频繁重连的连接/IP 会封禁，
// 耗尽预算时宁可主动退出也不要硬重试。
package backoff

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"
)

const (
	DefaultBase           = time.Second
	DefaultMax            = 15 * time.Second
	DefaultJitter         = 500 * time.Millisecond
	DefaultMaxExponent    = 5
	DefaultMaxDisconnects = 5
)

type Policy struct {
	Base        time.Duration
	Max         time.Duration
	Jitter      time.Duration // 随机抖动 [0, Jitter)
	MaxExponent int
	// MaxDisconnects 累计断线预算，<=0 表示不限制
	MaxDisconnects int

	// Rand 返回 [0, n)，测试里替换成固定值；nil 用 math/rand
	Rand func(n int64) int64
}

func Default() Policy {
	return Policy{
		Base:           DefaultBase,
		Max:            DefaultMax,
		Jitter:         DefaultJitter,
		MaxExponent:    DefaultMaxExponent,
		MaxDisconnects: DefaultMaxDisconnects,
	}
}

// Validate 指数上限必须让 Base*2^MaxExponent 落在 int64 以内
func (p Policy) Validate() error {
	if p.Base <= 0 || p.Max < p.Base {
		return fmt.Errorf("backoff: need 0 < base (%s) <= max (%s)", p.Base, p.Max)
	}
	if p.MaxExponent < 0 {
		return fmt.Errorf("backoff: max_exponent must be >= 0, got %d", p.MaxExponent)
	}
	if p.MaxExponent >= 63 || p.Base > time.Duration(math.MaxInt64>>uint(p.MaxExponent)) {
		return fmt.Errorf("backoff: base %s * 2^%d overflows", p.Base, p.MaxExponent)
	}
	if p.Jitter < 0 {
		return errors.New("backoff: jitter must be >= 0")
	}
	return nil
}

// BaseDelay = min(Base * 2^min(k, MaxExponent), Max)，到达 Max 或 int64 上限后不再翻倍
func (p Policy) BaseDelay(k int) time.Duration {
	if k < 0 {
		k = 0
	}
	if k > p.MaxExponent {
		k = p.MaxExponent
	}
	d := p.Base
	for i := 0; i < k; i++ {
		if p.Max > 0 && d >= p.Max {
			break
		}
		if d > math.MaxInt64>>1 {
			d = math.MaxInt64
			break
		}
		d <<= 1
	}
	if p.Max > 0 && d > p.Max {
		d = p.Max
	}
	return d
}

// Delay 基础延迟 + [0, Jitter) 抖动，避免所有客户端同一时刻重连
func (p Policy) Delay(k int) time.Duration {
	return p.BaseDelay(k) + p.jitter()
}

func (p Policy) jitter() time.Duration {
	if p.Jitter <= 0 {
		return 0
	}
	rnd := p.Rand
	if rnd == nil {
		rnd = rand.Int63n
	}
	return time.Duration(rnd(int64(p.Jitter)))
}

// Exhausted 累计断线数达到预算
func (p Policy) Exhausted(disconnects int) bool {
	return p.MaxDisconnects > 0 && disconnects >= p.MaxDisconnects
}

type Decision struct {
	Forfeit bool
	Attempt int // 下一次重连是第几次（从 1 开始）
	Delay   time.Duration
}

// OnClose 在一次会话关闭后调用。
// disconnects 为已经计入本次关闭的累计断线数，attempts 为当前连续重连计数。
func (p Policy) OnClose(disconnects, attempts int) Decision {
	if p.Exhausted(disconnects) {
		return Decision{Forfeit: true, Attempt: attempts}
	}
	next := attempts + 1
	return Decision{Attempt: next, Delay: p.Delay(next)}
}
