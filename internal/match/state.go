// Package match 實現即時對戰引擎
//
// 系統設計問題：
//
//	兩名玩家連線到同一場對戰，伺服器以固定頻率推進物理模擬，
//	同時處理斷線、重連、暫停與勝負判定，最後只寫入一次結果。
//
// 核心挑戰：
//  1. 並發控制：每場對戰一個 tick goroutine，加上每個連線一個讀取 goroutine
//  2. 單一迴圈：連線競爭時不能啟動兩個 tick 迴圈
//  3. 冪等清理：重複的斷線事件只能觸發一次持久化與驅逐
//  4. 順序保證：狀態變更通知先於（或同時於）下一個狀態快照
//
// 設計方案：
//
//	✅ 每場對戰一把 sync.Mutex，不同對戰互不阻塞
//	✅ Session Store 分片 + 讀寫鎖，分片鎖只保護 map 操作
//	✅ loopActive 以 CAS 保護，迴圈結束時必定釋放
//	✅ closed 旗標 + 指標比對移除，保證清理只發生一次
//	✅ 出站訊息是非阻塞入隊，可以在持鎖時發送以保證順序
package match

import (
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/koopa0/system-design/14-pong-match-engine/internal/game"
	apperrors "github.com/koopa0/system-design/14-pong-match-engine/pkg/errors"
)

// Status 對戰狀態
//
// 有限狀態機：
//
//	waiting → playing ⇄ paused
//	             ↓ ↑
//	          roundOver（發球延遲）
//	             ↓
//	matchOver → waiting（next_match，局數 +1）
//	    ↓
//	gameOver（系列賽分出勝負）
//
//	matchOver / gameOver → waiting（restart_game，完全重置）
type Status string

const (
	StatusWaiting   Status = "waiting"   // 等待開始
	StatusPlaying   Status = "playing"   // 進行中
	StatusPaused    Status = "paused"    // 暫停（手動或斷線）
	StatusRoundOver Status = "roundOver" // 得分後的發球延遲
	StatusMatchOver Status = "matchOver" // 一局結束
	StatusGameOver  Status = "gameOver"  // 整個系列賽結束
)

// Terminal 是否為終局類狀態（沒有重置指令就無法繼續比賽）
func (s Status) Terminal() bool {
	return s == StatusMatchOver || s == StatusGameOver
}

// Seed 建立對戰所需的資料（由對戰目錄提供）
type Seed struct {
	MatchID    string          `json:"match_id"`
	Player1    string          `json:"player1"`
	Player2    string          `json:"player2"`
	Difficulty game.Difficulty `json:"difficulty"`
	Theme      game.Theme      `json:"theme"`
}

// Validate 驗證對戰設定
func (s Seed) Validate() error {
	switch {
	case strings.TrimSpace(s.MatchID) == "":
		return apperrors.ErrInvalidSeed.WithDetails("match_id is required")
	case s.Player1 == "" || s.Player2 == "":
		return apperrors.ErrInvalidSeed.WithDetails("both players are required")
	case s.Player1 == s.Player2:
		return apperrors.ErrInvalidSeed.WithDetails("players must be distinct")
	case !s.Difficulty.Valid():
		return apperrors.ErrInvalidSeed.WithDetails("unknown difficulty " + string(s.Difficulty))
	case !s.Theme.Valid():
		return apperrors.ErrInvalidSeed.WithDetails("unknown theme " + string(s.Theme))
	}
	return nil
}

// PlayerNumber 返回玩家的席位（1 或 2），非參與者返回 0
func (s Seed) PlayerNumber(playerID string) int {
	switch playerID {
	case "":
		return 0
	case s.Player1:
		return 1
	case s.Player2:
		return 2
	}
	return 0
}

// playerID 依席位返回玩家 ID
func (s Seed) playerID(n int) string {
	if n == 1 {
		return s.Player1
	}
	return s.Player2
}

// Players 參與者（固定順序）
type Players struct {
	Player1 string `json:"player1"`
	Player2 string `json:"player2"`
}

// RoundResult 單局結果
type RoundResult struct {
	Number      int       `json:"round_number" msgpack:"round_number"`
	Scores      [2]int    `json:"scores" msgpack:"scores"`
	Winner      string    `json:"winner" msgpack:"winner"`
	CompletedAt time.Time `json:"completed_at" msgpack:"completed_at"`
}

// Result 對戰最終結果（交給持久化層）
type Result struct {
	MatchID     string        `json:"match_id" msgpack:"match_id"`
	Players     Players       `json:"players" msgpack:"players"`
	Status      Status        `json:"status" msgpack:"status"`
	FinalScores [2]int        `json:"final_scores" msgpack:"final_scores"` // 最後一局的比分
	RoundWins   [2]int        `json:"round_wins" msgpack:"round_wins"`
	Winner      string        `json:"winner,omitempty" msgpack:"winner"`
	Difficulty  string        `json:"difficulty" msgpack:"difficulty"`
	Theme       string        `json:"theme" msgpack:"theme"`
	Rounds      []RoundResult `json:"rounds" msgpack:"rounds"`
	FinishedAt  time.Time     `json:"finished_at" msgpack:"finished_at"`
}

// Snapshot 對戰狀態快照（game_state 訊息與 HTTP 查詢使用）
type Snapshot struct {
	MatchID     string          `json:"match_id"`
	Players     Players         `json:"players"`
	Status      Status          `json:"game_status"`
	Ball        game.Ball       `json:"ball"`
	Paddles     [2]float64      `json:"paddles"`
	Scores      [2]int          `json:"scores"`
	RoundWins   [2]int          `json:"round_wins"`
	RoundNumber int             `json:"round_number"`
	Winner      string          `json:"winner,omitempty"`
	Reason      string          `json:"reason,omitempty"`
	Connected   [2]bool         `json:"connected"`
	Difficulty  game.Difficulty `json:"difficulty"`
	Theme       game.Theme      `json:"theme"`
	PointsToWin int             `json:"points_to_win"`
	RoundsToWin int             `json:"rounds_to_win"`
}

// Match 單場對戰的可變狀態
//
// 系統設計考量：
//
//  1. 並發控制（mu）：
//     tick 迴圈與每個連線的讀取 goroutine 都會修改狀態，
//     所有欄位（loopActive 除外）只能在持有 mu 時讀寫。
//
//  2. 迴圈旗標（loopActive）：
//     以 atomic.Bool 的 CompareAndSwap 搶佔，保證同一時間最多一個迴圈。
//     釋放一律在持有 mu 時進行，呼叫端在同一把鎖下判斷是否需要重新啟動。
//
//  3. 清理旗標（closed）：
//     被驅逐後設為 true，之後的任何操作都視為對已不存在的對戰。
type Match struct {
	mu sync.Mutex

	seed     Seed
	settings game.Settings
	rules    Rules

	status      Status
	reason      string
	phys        game.State
	scores      [2]int
	roundWins   [2]int
	roundNumber int
	winner      string
	rounds      []RoundResult

	connected [2]bool
	tokens    [2]string // 目前有效的連線 token（過期連線的斷線事件會被忽略）

	serveAt      time.Time // roundOver 結束時間
	lastTick     time.Time // 上一次 tick（不會倒退）
	lastActivity time.Time // 最後的連線或指令活動（清理用）
	tickFailures int       // 連續失敗的 tick 數

	closed     bool
	loopActive atomic.Bool
}

// newMatch 依設定建立新的對戰（waiting，比分歸零，球與球拍置中）
func newMatch(seed Seed, cfg Config, now time.Time) *Match {
	settings := game.MustSettings(seed.Difficulty)
	settings.MaxStep = cfg.MaxStep.Seconds()

	m := &Match{
		seed:         seed,
		settings:     settings,
		rules:        cfg.Rules,
		status:       StatusWaiting,
		phys:         game.NewState(settings),
		roundNumber:  1,
		lastTick:     now,
		lastActivity: now,
	}
	return m
}

// ID 對戰 ID（不可變，不需要鎖）
func (m *Match) ID() string {
	return m.seed.MatchID
}

// snapshotLocked 建立快照（呼叫端必須持有 mu）
func (m *Match) snapshotLocked() Snapshot {
	return Snapshot{
		MatchID:     m.seed.MatchID,
		Players:     Players{Player1: m.seed.Player1, Player2: m.seed.Player2},
		Status:      m.status,
		Ball:        m.phys.Ball,
		Paddles:     m.phys.Paddles,
		Scores:      m.scores,
		RoundWins:   m.roundWins,
		RoundNumber: m.roundNumber,
		Winner:      m.winner,
		Reason:      m.reason,
		Connected:   m.connected,
		Difficulty:  m.seed.Difficulty,
		Theme:       m.seed.Theme,
		PointsToWin: m.rules.PointsToWin,
		RoundsToWin: m.rules.RoundsToWin,
	}
}

// Snapshot 取得快照
func (m *Match) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

// resultLocked 建立最終結果（呼叫端必須持有 mu）
func (m *Match) resultLocked(now time.Time) Result {
	rounds := make([]RoundResult, len(m.rounds))
	copy(rounds, m.rounds)

	return Result{
		MatchID:     m.seed.MatchID,
		Players:     Players{Player1: m.seed.Player1, Player2: m.seed.Player2},
		Status:      m.status,
		FinalScores: m.scores,
		RoundWins:   m.roundWins,
		Winner:      m.winner,
		Difficulty:  string(m.seed.Difficulty),
		Theme:       string(m.seed.Theme),
		Rounds:      rounds,
		FinishedAt:  now,
	}
}
