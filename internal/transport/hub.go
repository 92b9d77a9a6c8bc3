// Package transport WebSocket 與 HTTP 介面
//
// 系統設計問題：
//
//	如何把引擎的廣播送到每一條連線，又不讓慢客戶端拖住 tick 迴圈？
//
// 設計方案：
//
//   - Hub 模式：集中管理所有對戰的所有連線，實作 match.Broadcaster
//   - 緩衝 channel：引擎持有對戰鎖時呼叫 Broadcast，只做非阻塞入隊
//   - 緩衝區滿時：畫面類訊息直接丟棄（下一個 game_state 會覆蓋），
//     狀態類訊息送不進去就關閉這條慢連線
//   - Ping/Pong 心跳：54s 發送 Ping，60s 讀取逾時
package transport

import (
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/koopa0/system-design/14-pong-match-engine/internal/match"
)

const (
	sendBufferSize = 256
	pendingLimit   = 64

	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second

	maxMessageSize = 4096
)

// Hub 連線中心
//
// 系統設計考量：
//
//  1. 連線映射：map[matchID]map[*Connection]struct{}
//     同一玩家換新連線時，新舊連線會短暫並存；
//     新連線完成引擎握手後才關閉舊連線，舊連線的斷線因 token 過期而被引擎忽略。
//
//  2. 握手前的廣播：
//     新連線在引擎 Connect 之前就先登記（pending 狀態），
//     握手期間的廣播暫存起來，排在 Initial 訊息之後送出，不會遺失也不會亂序。
//
//  3. 關閉順序：
//     wg 追蹤每條連線的讀寫 goroutine，Stop 等到所有斷線路徑（engine.Disconnect）
//     都跑完才返回，之後引擎 Stop 才看得到最終的連線狀態。
type Hub struct {
	logger      *slog.Logger
	connections map[string]map[*Connection]struct{}
	mu          sync.RWMutex
	stopped     bool
	wg          sync.WaitGroup

	dropped atomic.Int64
	evicted atomic.Int64
}

// Connection 一條 WebSocket 連線
type Connection struct {
	MatchID  string
	PlayerID string
	Conn     *websocket.Conn

	send chan []byte

	mu       sync.Mutex
	ready    bool
	closed   bool
	pending  [][]byte
	lastPing time.Time
}

// NewHub 建立連線中心
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		logger:      logger,
		connections: make(map[string]map[*Connection]struct{}),
	}
}

func newConnection(matchID, playerID string, conn *websocket.Conn) *Connection {
	return &Connection{
		MatchID:  matchID,
		PlayerID: playerID,
		Conn:     conn,
		send:     make(chan []byte, sendBufferSize),
		lastPing: time.Now(),
	}
}

// Broadcast 實作 match.Broadcaster
func (h *Hub) Broadcast(matchID string, msg match.Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("序列化訊息失敗", "match_id", matchID, "type", msg.Type, "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.connections[matchID] {
		if c.deliver(data) {
			continue
		}
		if droppable(msg.Type) {
			h.dropped.Add(1)
			h.logger.Warn("連線緩衝區滿",
				"match_id", matchID,
				"player_id", c.PlayerID,
				"type", msg.Type)
			continue
		}

		// 狀態變化不能遺失，客戶端跟不上就斷開，讓它重連取得完整快照
		h.evicted.Add(1)
		h.logger.Warn("慢連線已關閉",
			"match_id", matchID,
			"player_id", c.PlayerID,
			"type", msg.Type)
		c.closeSend()
	}
}

// droppable 會被下一個畫面取代的訊息
func droppable(t match.MessageType) bool {
	return t == match.MsgGameState || t == match.MsgPaddlePosition
}

// register 登記連線（pending 狀態），Hub 已停止時返回 false
//
// 登記成功的連線結束時必須呼叫 release。
func (h *Hub) register(c *Connection) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.stopped {
		return false
	}
	if h.connections[c.MatchID] == nil {
		h.connections[c.MatchID] = make(map[*Connection]struct{})
	}
	h.connections[c.MatchID][c] = struct{}{}
	h.wg.Add(1)
	return true
}

// release 連線的讀寫 goroutine 與斷線處理都已結束
func (h *Hub) release() {
	h.wg.Done()
}

// activate 送出 Initial 訊息與握手期間的廣播，並關閉同一玩家的舊連線
func (h *Hub) activate(c *Connection, initial []match.Message) {
	frames := make([][]byte, 0, len(initial))
	for _, msg := range initial {
		data, err := json.Marshal(msg)
		if err != nil {
			h.logger.Error("序列化訊息失敗", "match_id", c.MatchID, "type", msg.Type, "error", err)
			continue
		}
		frames = append(frames, data)
	}
	c.start(frames)

	var stale []*Connection
	h.mu.RLock()
	for other := range h.connections[c.MatchID] {
		if other != c && other.PlayerID == c.PlayerID {
			stale = append(stale, other)
		}
	}
	h.mu.RUnlock()

	for _, old := range stale {
		h.logger.Info("關閉舊連線", "match_id", c.MatchID, "player_id", c.PlayerID)
		h.unregister(old)
		old.closeSend()
	}
}

// unregister 取消登記（只移除同一個指標）
func (h *Hub) unregister(c *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()

	conns, ok := h.connections[c.MatchID]
	if !ok {
		return
	}
	delete(conns, c)
	if len(conns) == 0 {
		delete(h.connections, c.MatchID)
	}
}

// ConnectionCount 連線總數
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	n := 0
	for _, conns := range h.connections {
		n += len(conns)
	}
	return n
}

// Stats 統計資訊
func (h *Hub) Stats() map[string]any {
	h.mu.RLock()
	matches := len(h.connections)
	h.mu.RUnlock()

	return map[string]any{
		"connections":        h.ConnectionCount(),
		"connected_matches":  matches,
		"dropped_broadcasts": h.dropped.Load(),
		"slow_closed":        h.evicted.Load(),
	}
}

// Stop 關閉所有連線，等待每條連線的斷線處理完成（可重複呼叫）
func (h *Hub) Stop() {
	h.mu.Lock()
	h.stopped = true
	all := h.connections
	h.connections = make(map[string]map[*Connection]struct{})
	h.mu.Unlock()

	for _, conns := range all {
		for c := range conns {
			c.closeSend()
		}
	}
	h.wg.Wait()
	h.logger.Info("WebSocket Hub 已停止")
}

// deliver 非阻塞入隊，返回 false 表示丟棄
func (c *Connection) deliver(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return true
	}
	if !c.ready {
		if len(c.pending) >= pendingLimit {
			return false
		}
		c.pending = append(c.pending, data)
		return true
	}

	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// start 依序送出 Initial 與暫存的廣播，之後直接入隊
func (c *Connection) start(initial [][]byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	for _, data := range append(initial, c.pending...) {
		select {
		case c.send <- data:
		default:
		}
	}
	c.pending = nil
	c.ready = true
}

// closeSend 關閉發送通道，writePump 會送出關閉訊框後結束
func (c *Connection) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// enqueue 直接回覆給這條連線（pong）
func (c *Connection) enqueue(data []byte) {
	c.deliver(data)
}

// readPump 讀取客戶端訊息，返回時連線已不可用
func (c *Connection) readPump(logger *slog.Logger, handle func([]byte)) {
	c.Conn.SetReadLimit(maxMessageSize)
	if err := c.Conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		logger.Error("設置讀取期限失敗", "error", err)
	}
	c.Conn.SetPongHandler(func(string) error {
		c.mu.Lock()
		c.lastPing = time.Now()
		c.mu.Unlock()
		return c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		messageType, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				logger.Warn("WebSocket 讀取錯誤",
					"error", err,
					"match_id", c.MatchID,
					"player_id", c.PlayerID)
			}
			return
		}
		if messageType == websocket.TextMessage {
			handle(message)
		}
	}
}

// writePump 把發送通道的訊息寫到連線，並定期送出 Ping
func (c *Connection) writePump(logger *slog.Logger) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			if err := c.Conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				logger.Error("設置寫入期限失敗", "error", err)
			}
			if !ok {
				_ = c.Conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

			// 批量寫出已排隊的訊息
			n := len(c.send)
			for i := 0; i < n; i++ {
				next, ok := <-c.send
				if !ok {
					return
				}
				if err := c.Conn.WriteMessage(websocket.TextMessage, next); err != nil {
					logger.Error("發送訊息失敗", "error", err)
					return
				}
			}

		case <-ticker.C:
			if err := c.Conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				logger.Error("設置寫入期限失敗", "error", err)
			}
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
