package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStore_PerKeyBucket(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s := NewStore(1, 2, time.Minute)
	s.now = func() time.Time { return now }

	assert.True(t, s.Allow("a"))
	assert.True(t, s.Allow("a"))
	assert.False(t, s.Allow("a"), "burst 用完")
	assert.True(t, s.Allow("b"), "不同 key 互不影响")

	now = now.Add(time.Second)
	assert.True(t, s.Allow("a"), "1 rps 补回一个令牌")
}

func TestStore_CleanupExpired(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s := NewStore(10, 10, time.Minute)
	s.now = func() time.Time { return now }

	s.Allow("old")
	now = now.Add(50 * time.Second)
	s.Allow("fresh")
	now = now.Add(20 * time.Second)

	s.cleanup()
	assert.Equal(t, 1, s.Len())
}
