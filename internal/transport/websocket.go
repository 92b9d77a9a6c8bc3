package transport

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/koopa0/system-design/14-pong-match-engine/internal/match"
	apperrors "github.com/koopa0/system-design/14-pong-match-engine/pkg/errors"
)

// UserIDHeader 上游閘道注入的玩家身分
const UserIDHeader = "X-User-ID"

const connectTimeout = 5 * time.Second

// clientMessage 客戶端訊息（指令與心跳共用）
type clientMessage struct {
	Type     string   `json:"type"`
	Position *float64 `json:"position,omitempty"`
}

var pongFrame = []byte(`{"type":"pong"}`)

// WSHandler 處理 /ws/matches/{match_id}
//
// 連線流程：
//  1. 升級為 WebSocket（之後的錯誤都以關閉碼回報）
//  2. 取得玩家身分（X-User-ID 或 player_id 查詢參數）
//  3. 在 Hub 登記（pending），呼叫引擎 Connect
//  4. 送出 Initial 訊息，啟動讀寫 goroutine
//  5. 讀取結束時通知引擎斷線，寫入也結束後才向 Hub 回報
type WSHandler struct {
	engine   *match.Engine
	hub      *Hub
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

// NewWSHandler 建立 WebSocket 處理器
//
// allowedOrigins 為空時不檢查 Origin。
func NewWSHandler(engine *match.Engine, hub *Hub, allowedOrigins []string, logger *slog.Logger) *WSHandler {
	return &WSHandler{
		engine: engine,
		hub:    hub,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				if len(allowedOrigins) == 0 {
					return true
				}
				return slices.Contains(allowedOrigins, r.Header.Get("Origin"))
			},
		},
	}
}

// ServeHTTP 處理 WebSocket 連線
func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	matchID := r.PathValue("match_id")
	playerID := r.Header.Get(UserIDHeader)
	if playerID == "" {
		playerID = r.URL.Query().Get("player_id")
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("升級 WebSocket 失敗", "error", err)
		return
	}

	c := newConnection(matchID, playerID, conn)
	if !h.hub.register(c) {
		closeWith(conn, websocket.CloseGoingAway, "server shutting down")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), connectTimeout)
	sess, err := h.engine.Connect(ctx, matchID, playerID)
	cancel()
	if err != nil {
		h.hub.unregister(c)
		h.hub.release()
		h.reject(conn, err, matchID, playerID)
		return
	}

	h.hub.activate(c, sess.Initial)

	var writer sync.WaitGroup
	writer.Add(1)
	go func() {
		defer writer.Done()
		c.writePump(h.logger)
	}()
	go func() {
		defer func() {
			h.hub.unregister(c)
			c.closeSend()
			h.engine.Disconnect(sess)
			writer.Wait()
			h.hub.release()
		}()
		c.readPump(h.logger, func(data []byte) {
			h.handleMessage(c, sess, data)
		})
	}()

	h.logger.Info("WebSocket 連線建立",
		"match_id", matchID,
		"player_id", playerID,
		"player", sess.Player)
}

// reject 以應用層關閉碼結束連線，不帶內部錯誤原文
func (h *WSHandler) reject(conn *websocket.Conn, err error, matchID, playerID string) {
	code := apperrors.CloseCode(err)
	if code == apperrors.CloseInternal {
		h.logger.Error("連線失敗", "match_id", matchID, "player_id", playerID, "error", err)
	} else {
		h.logger.Info("拒絕連線", "match_id", matchID, "player_id", playerID, "code", code, "error", err)
	}

	closeWith(conn, code, closeText(code))
}

func closeWith(conn *websocket.Conn, code int, text string) {
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, text),
		time.Now().Add(time.Second))
	_ = conn.Close()
}

func closeText(code int) string {
	switch code {
	case apperrors.CloseUnauthenticated:
		return "unauthenticated"
	case apperrors.CloseNotFound:
		return "match not found"
	case apperrors.CloseNotParticipant:
		return "not a participant"
	default:
		return "internal error"
	}
}

// handleMessage 解析並轉交指令
func (h *WSHandler) handleMessage(c *Connection, sess *match.Session, data []byte) {
	var msg clientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		h.logger.Debug("解析客戶端訊息失敗",
			"error", err,
			"match_id", c.MatchID,
			"player_id", c.PlayerID)
		return
	}

	if msg.Type == "ping" {
		c.enqueue(pongFrame)
		return
	}

	h.engine.HandleCommand(sess, match.Command{
		Type:     match.CommandType(msg.Type),
		Position: msg.Position,
	})
}
