package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/koopa0/system-design/14-pong-match-engine/internal/match"
	"github.com/koopa0/system-design/14-pong-match-engine/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type published struct {
	subject string
	data    []byte
}

// fakeConn 記錄發布內容
type fakeConn struct {
	mu      sync.Mutex
	msgs    []published
	err     error
	drained bool
}

func (c *fakeConn) Publish(subject string, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.msgs = append(c.msgs, published{subject: subject, data: data})
	return nil
}

func (c *fakeConn) Drain() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.drained = true
	return nil
}

// TestPublisher 測試 Subject 與編碼
func TestPublisher(t *testing.T) {
	at := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		prefix   string
		connErr  error
		publish  func(p *Publisher) error
		validate func(t *testing.T, c *fakeConn, err error)
	}{
		{
			name: "狀態事件",
			publish: func(p *Publisher) error {
				return p.PublishStatus(context.Background(), match.StatusEvent{
					MatchID: "m1",
					From:    match.StatusPlaying,
					To:      match.StatusPaused,
					Reason:  "Player 2 disconnected",
					At:      at,
				})
			},
			validate: func(t *testing.T, c *fakeConn, err error) {
				require.NoError(t, err)
				require.Len(t, c.msgs, 1)
				assert.Equal(t, "pong.matches.m1.status", c.msgs[0].subject)

				var got map[string]any
				require.NoError(t, json.Unmarshal(c.msgs[0].data, &got))
				assert.Equal(t, "playing", got["from"])
				assert.Equal(t, "paused", got["to"])
				assert.Equal(t, "Player 2 disconnected", got["reason"])
			},
		},
		{
			name:   "結果事件使用自訂前綴",
			prefix: "arena",
			publish: func(p *Publisher) error {
				return p.PublishFinished(context.Background(), match.Result{
					MatchID:   "m2",
					Status:    match.StatusGameOver,
					RoundWins: [2]int{3, 0},
					Winner:    "alice",
				})
			},
			validate: func(t *testing.T, c *fakeConn, err error) {
				require.NoError(t, err)
				require.Len(t, c.msgs, 1)
				assert.Equal(t, "arena.m2.finished", c.msgs[0].subject)

				var got match.Result
				require.NoError(t, json.Unmarshal(c.msgs[0].data, &got))
				assert.Equal(t, "alice", got.Winner)
				assert.Equal(t, [2]int{3, 0}, got.RoundWins)
			},
		},
		{
			name:    "連線錯誤被包裝",
			connErr: errors.New("nats: connection closed"),
			publish: func(p *Publisher) error {
				return p.PublishStatus(context.Background(), match.StatusEvent{MatchID: "m3"})
			},
			validate: func(t *testing.T, c *fakeConn, err error) {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "pong.matches.m3.status")
			},
		},
		{
			name: "已取消的 context 不發布",
			publish: func(p *Publisher) error {
				ctx, cancel := context.WithCancel(context.Background())
				cancel()
				return p.PublishStatus(ctx, match.StatusEvent{MatchID: "m4"})
			},
			validate: func(t *testing.T, c *fakeConn, err error) {
				assert.ErrorIs(t, err, context.Canceled)
				assert.Empty(t, c.msgs)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &fakeConn{err: tt.connErr}
			p := newPublisher(c, tt.prefix, logger.Discard())
			tt.validate(t, c, tt.publish(p))
		})
	}
}

// TestPublisher_Close 測試關閉時清空緩衝
func TestPublisher_Close(t *testing.T) {
	c := &fakeConn{}
	p := newPublisher(c, "", logger.Discard())

	require.NoError(t, p.Close())
	assert.True(t, c.drained)
}
