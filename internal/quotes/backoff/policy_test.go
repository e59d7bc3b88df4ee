package backoff

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func noJitter() Policy {
	p := Default()
	p.Rand = func(int64) int64 { return 0 }
	return p
}

func TestPolicy_BaseDelay(t *testing.T) {
	p := Default()
	cases := []struct {
		k    int
		want time.Duration
	}{
		{0, 1 * time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 8 * time.Second},
		{4, 15 * time.Second}, // 16s 被 15s 上限截住
		{5, 15 * time.Second},
		{50, 15 * time.Second}, // 指数封顶，不会溢出
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, p.BaseDelay(tc.k), "k=%d", tc.k)
	}
}

func TestPolicy_BaseDelayLargeExponentSaturates(t *testing.T) {
	p := Policy{Base: time.Second, Max: 15 * time.Second, MaxExponent: 40}
	for _, k := range []int{30, 35, 40, 1000} {
		assert.Equal(t, 15*time.Second, p.BaseDelay(k), "k=%d", k)
	}

	// 没有 Max 时停在 int64 上限，不会变成负数
	p = Policy{Base: time.Second, MaxExponent: 200}
	assert.Equal(t, time.Duration(math.MaxInt64), p.BaseDelay(200))
	assert.Positive(t, p.BaseDelay(100))
}

func TestPolicy_Validate(t *testing.T) {
	assert.NoError(t, Default().Validate())

	cases := map[string]Policy{
		"negative exponent": {Base: time.Second, Max: 15 * time.Second, MaxExponent: -1},
		"exponent 40":       {Base: time.Second, Max: 15 * time.Second, MaxExponent: 40},
		"exponent 63":       {Base: time.Nanosecond, Max: time.Second, MaxExponent: 63},
		"zero base":         {Max: time.Second, MaxExponent: 5},
		"max below base":    {Base: time.Second, Max: time.Millisecond, MaxExponent: 5},
		"negative jitter":   {Base: time.Second, Max: time.Second, MaxExponent: 5, Jitter: -1},
	}
	for name, p := range cases {
		assert.Error(t, p.Validate(), name)
	}
	// 1ns * 2^62 还在范围内
	assert.NoError(t, Policy{Base: time.Nanosecond, Max: time.Second, MaxExponent: 62}.Validate())
}

func TestPolicy_DelayJitterBounds(t *testing.T) {
	p := Default()
	for k := 1; k <= 8; k++ {
		for i := 0; i < 200; i++ {
			d := p.Delay(k)
			base := p.BaseDelay(k)
			assert.GreaterOrEqual(t, d, base)
			assert.Less(t, d, base+500*time.Millisecond)
		}
	}
}

func TestPolicy_DelayUsesRand(t *testing.T) {
	p := Default()
	var gotN int64
	p.Rand = func(n int64) int64 {
		gotN = n
		return n - 1
	}
	assert.Equal(t, 8*time.Second+500*time.Millisecond-1, p.Delay(3))
	assert.Equal(t, int64(500*time.Millisecond), gotN)
}

func TestPolicy_OnClose(t *testing.T) {
	p := noJitter()

	d := p.OnClose(1, 0)
	assert.False(t, d.Forfeit)
	assert.Equal(t, 1, d.Attempt)
	assert.Equal(t, 2*time.Second, d.Delay)

	d = p.OnClose(3, 2)
	assert.Equal(t, 3, d.Attempt)
	assert.Equal(t, 8*time.Second, d.Delay)

	d = p.OnClose(5, 4)
	assert.True(t, d.Forfeit, "第 5 次断线耗尽预算")
	assert.Zero(t, d.Delay)
}

func TestPolicy_Exhausted(t *testing.T) {
	p := Default()
	assert.False(t, p.Exhausted(4))
	assert.True(t, p.Exhausted(5))
	assert.True(t, p.Exhausted(6))

	p.MaxDisconnects = 0
	assert.False(t, p.Exhausted(1000))
}
