package transport

import (
	"testing"

	"github.com/koopa0/system-design/14-pong-match-engine/internal/match"
	"github.com/koopa0/system-design/14-pong-match-engine/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fullConnection 建立一條已啟用且發送緩衝區已滿的連線
func fullConnection(t *testing.T, h *Hub) *Connection {
	t.Helper()
	c := newConnection("match-1", "alice", nil)
	require.True(t, h.register(c))
	t.Cleanup(h.release)
	c.start(nil)

	for i := 0; i < sendBufferSize; i++ {
		h.Broadcast("match-1", match.Message{Type: match.MsgGameState})
	}
	require.Len(t, c.send, sendBufferSize)
	return c
}

func isClosed(c *Connection) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// TestHub_SlowConnection 測試緩衝區滿時的處理：畫面丟棄，狀態變化關閉連線
func TestHub_SlowConnection(t *testing.T) {
	tests := []struct {
		name     string
		msg      match.Message
		validate func(t *testing.T, h *Hub, c *Connection)
	}{
		{
			name: "game_state 丟棄",
			msg:  match.Message{Type: match.MsgGameState},
			validate: func(t *testing.T, h *Hub, c *Connection) {
				assert.False(t, isClosed(c))
				assert.Equal(t, int64(1), h.dropped.Load())
				assert.Equal(t, int64(0), h.evicted.Load())
			},
		},
		{
			name: "paddle_position 丟棄",
			msg:  match.Message{Type: match.MsgPaddlePosition, Player: 2},
			validate: func(t *testing.T, h *Hub, c *Connection) {
				assert.False(t, isClosed(c))
				assert.Equal(t, int64(1), h.dropped.Load())
			},
		},
		{
			name: "game_status_changed 關閉連線",
			msg:  match.Message{Type: match.MsgGameStatusChanged, Status: match.StatusGameOver},
			validate: func(t *testing.T, h *Hub, c *Connection) {
				assert.True(t, isClosed(c))
				assert.Equal(t, int64(0), h.dropped.Load())
				assert.Equal(t, int64(1), h.evicted.Load())

				// 已排隊的訊息仍會送出，之後通道關閉
				n := 0
				for range c.send {
					n++
				}
				assert.Equal(t, sendBufferSize, n)
			},
		},
		{
			name: "player_status 關閉連線",
			msg:  match.Message{Type: match.MsgPlayerStatus, Player: 2},
			validate: func(t *testing.T, h *Hub, c *Connection) {
				assert.True(t, isClosed(c))
				assert.Equal(t, int64(1), h.evicted.Load())
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHub(logger.Discard())
			c := fullConnection(t, h)

			h.Broadcast("match-1", tt.msg)
			tt.validate(t, h, c)
		})
	}
}

// TestHub_PendingOverflow 測試握手期間暫存溢出同樣套用關閉規則
func TestHub_PendingOverflow(t *testing.T) {
	h := NewHub(logger.Discard())
	c := newConnection("match-1", "alice", nil)
	require.True(t, h.register(c))
	t.Cleanup(h.release)

	for i := 0; i < pendingLimit+1; i++ {
		h.Broadcast("match-1", match.Message{Type: match.MsgGameState})
	}
	assert.False(t, isClosed(c))
	assert.Equal(t, int64(1), h.dropped.Load())

	h.Broadcast("match-1", match.Message{Type: match.MsgGameStatusChanged, Status: match.StatusPaused})
	assert.True(t, isClosed(c))
}

// TestHub_StopRejectsRegister 測試停止後不再接受新連線，且可重複停止
func TestHub_StopRejectsRegister(t *testing.T) {
	h := NewHub(logger.Discard())
	h.Stop()
	h.Stop()

	assert.False(t, h.register(newConnection("match-1", "alice", nil)))
	assert.Equal(t, 0, h.ConnectionCount())
}
