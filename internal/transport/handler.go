package transport

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/koopa0/system-design/14-pong-match-engine/internal/directory"
	"github.com/koopa0/system-design/14-pong-match-engine/internal/game"
	"github.com/koopa0/system-design/14-pong-match-engine/internal/match"
	apperrors "github.com/koopa0/system-design/14-pong-match-engine/pkg/errors"
)

// Handler HTTP 請求處理器
type Handler struct {
	engine   *match.Engine
	registry directory.Registry
	hub      *Hub
	ws       *WSHandler
	logger   *slog.Logger
}

// NewHandler 建立 HTTP 處理器
func NewHandler(engine *match.Engine, registry directory.Registry, hub *Hub, ws *WSHandler, logger *slog.Logger) *Handler {
	return &Handler{
		engine:   engine,
		registry: registry,
		hub:      hub,
		ws:       ws,
		logger:   logger,
	}
}

// Routes 設定路由
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()

	// 中間件鏈
	wrap := func(handler http.HandlerFunc) http.HandlerFunc {
		return h.recoverer(h.loggerMiddleware(handler))
	}

	// WebSocket 不經過 loggerMiddleware（包裝後的 ResponseWriter 無法 Hijack）
	mux.HandleFunc("GET /ws/matches/{match_id}", h.recoverer(h.ws.ServeHTTP))

	mux.HandleFunc("POST /api/v1/matches", wrap(h.createMatch))
	mux.HandleFunc("GET /api/v1/matches/{match_id}", wrap(h.getMatch))

	mux.HandleFunc("GET /health", wrap(h.health))
	mux.HandleFunc("GET /stats", wrap(h.stats))

	return mux
}

type createMatchRequest struct {
	MatchID    string          `json:"match_id,omitempty"`
	Player1    string          `json:"player1"`
	Player2    string          `json:"player2"`
	Difficulty game.Difficulty `json:"difficulty"`
	Theme      game.Theme      `json:"theme"`
}

// createMatch 在目錄中登記一場對戰
func (h *Handler) createMatch(w http.ResponseWriter, r *http.Request) {
	var req createMatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.errorResponse(w, "無效的請求格式", http.StatusBadRequest)
		return
	}

	if req.MatchID == "" {
		req.MatchID = uuid.NewString()
	}
	if req.Difficulty == "" {
		req.Difficulty = game.DifficultyMedium
	}
	if req.Theme == "" {
		req.Theme = game.ThemeFire
	}

	seed := match.Seed{
		MatchID:    req.MatchID,
		Player1:    req.Player1,
		Player2:    req.Player2,
		Difficulty: req.Difficulty,
		Theme:      req.Theme,
	}
	if err := h.registry.Register(r.Context(), seed); err != nil {
		h.appErrorResponse(w, err)
		return
	}

	h.jsonResponse(w, map[string]any{
		"match_id":   seed.MatchID,
		"player1":    seed.Player1,
		"player2":    seed.Player2,
		"difficulty": seed.Difficulty,
		"theme":      seed.Theme,
	}, http.StatusCreated)
}

// getMatch 進行中對戰的快照
func (h *Handler) getMatch(w http.ResponseWriter, r *http.Request) {
	snap, err := h.engine.Snapshot(r.PathValue("match_id"))
	if err != nil {
		h.appErrorResponse(w, err)
		return
	}
	h.jsonResponse(w, snap, http.StatusOK)
}

// health 健康檢查
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	h.jsonResponse(w, map[string]any{
		"status": "healthy",
		"time":   time.Now().Unix(),
	}, http.StatusOK)
}

// stats 統計資訊
func (h *Handler) stats(w http.ResponseWriter, r *http.Request) {
	h.jsonResponse(w, map[string]any{
		"engine": h.engine.Stats(),
		"hub":    h.hub.Stats(),
	}, http.StatusOK)
}

// jsonResponse 返回 JSON 回應
func (h *Handler) jsonResponse(w http.ResponseWriter, data any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("編碼 JSON 失敗", "error", err)
	}
}

// errorResponse 返回錯誤回應
func (h *Handler) errorResponse(w http.ResponseWriter, message string, status int) {
	h.jsonResponse(w, map[string]any{
		"error": message,
	}, status)
}

// appErrorResponse 依錯誤碼決定狀態碼，內部錯誤不回傳原文
func (h *Handler) appErrorResponse(w http.ResponseWriter, err error) {
	var appErr *apperrors.AppError
	if !errors.As(err, &appErr) {
		h.logger.Error("處理請求失敗", "error", err)
		h.errorResponse(w, "內部伺服器錯誤", http.StatusInternalServerError)
		return
	}

	status := http.StatusInternalServerError
	switch appErr.Code {
	case apperrors.ErrCodeInvalidInput:
		status = http.StatusBadRequest
	case apperrors.ErrCodeNotFound:
		status = http.StatusNotFound
	case apperrors.ErrCodeAlreadyExists:
		status = http.StatusConflict
	case apperrors.ErrCodeUnavailable:
		status = http.StatusServiceUnavailable
	}

	if status >= http.StatusInternalServerError {
		h.logger.Error("處理請求失敗", "error", err)
	}
	h.jsonResponse(w, appErr, status)
}

// loggerMiddleware 日誌中間件
func (h *Handler) loggerMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := &responseWriter{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		next(ww, r)

		h.logger.Info("HTTP 請求",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.statusCode,
			"duration", time.Since(start))
	}
}

// recoverer panic 恢復中間件
func (h *Handler) recoverer(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				h.logger.Error("處理請求時發生 panic",
					"error", err,
					"method", r.Method,
					"path", r.URL.Path)

				h.errorResponse(w, "內部伺服器錯誤", http.StatusInternalServerError)
			}
		}()

		next(w, r)
	}
}

// responseWriter 包裝 ResponseWriter 以取得狀態碼
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (w *responseWriter) WriteHeader(code int) {
	w.statusCode = code
	w.ResponseWriter.WriteHeader(code)
}
