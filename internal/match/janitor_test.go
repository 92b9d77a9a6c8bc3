package match_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/koopa0/system-design/14-pong-match-engine/internal/match"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock 可手動推進的時鐘
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// TestEngine_Sweep 測試清理遺棄的可續玩對戰
func TestEngine_Sweep(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}

	cfg := engineConfig()
	cfg.Resumable = true
	cfg.AbandonAfter = time.Minute
	h := newHarness(t, cfg, match.WithClock(clock.Now))

	s, err := h.engine.Connect(context.Background(), "match-1", "alice")
	require.NoError(t, err)
	h.engine.Disconnect(s)
	require.True(t, h.engine.Active("match-1"), "可續玩的對戰保留")

	clock.Advance(30 * time.Second)
	assert.Equal(t, 0, h.engine.Sweep(clock.Now()))
	assert.True(t, h.engine.Active("match-1"))

	clock.Advance(time.Minute)
	assert.Equal(t, 1, h.engine.Sweep(clock.Now()))
	assert.False(t, h.engine.Active("match-1"))
	assert.Equal(t, 0, h.recorder.count(), "未完成的對戰不寫入結果")
}

// TestEngine_SweepSkipsConnected 測試有人在線的對戰不會被清理
func TestEngine_SweepSkipsConnected(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}

	cfg := engineConfig()
	cfg.AbandonAfter = time.Second
	h := newHarness(t, cfg, match.WithClock(clock.Now))

	_, err := h.engine.Connect(context.Background(), "match-1", "alice")
	require.NoError(t, err)

	clock.Advance(time.Hour)
	assert.Equal(t, 0, h.engine.Sweep(clock.Now()))
	assert.True(t, h.engine.Active("match-1"))
}

// TestEngine_SweepDisabled 測試 AbandonAfter 為 0 時停用
func TestEngine_SweepDisabled(t *testing.T) {
	cfg := engineConfig()
	cfg.Resumable = true
	h := newHarness(t, cfg)

	s, err := h.engine.Connect(context.Background(), "match-1", "alice")
	require.NoError(t, err)
	h.engine.Disconnect(s)

	assert.Equal(t, 0, h.engine.Sweep(time.Now().Add(24*time.Hour)))
	assert.True(t, h.engine.Active("match-1"))
}

// TestRegisterJanitor 測試排程器定期清理
func TestRegisterJanitor(t *testing.T) {
	cfg := engineConfig()
	cfg.Resumable = true
	cfg.AbandonAfter = time.Millisecond
	cfg.SweepInterval = 20 * time.Millisecond
	h := newHarness(t, cfg)

	sched, err := gocron.NewScheduler()
	require.NoError(t, err)
	require.NoError(t, match.RegisterJanitor(sched, h.engine))
	sched.Start()
	t.Cleanup(func() { _ = sched.Shutdown() })

	s, err := h.engine.Connect(context.Background(), "match-1", "alice")
	require.NoError(t, err)
	h.engine.Disconnect(s)

	require.Eventually(t, func() bool {
		return !h.engine.Active("match-1")
	}, 2*time.Second, 10*time.Millisecond)
	assert.GreaterOrEqual(t, stat(h.engine, "evicted"), int64(1))
}
