package match

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ConnectionChange 連線狀態變更的結果
type ConnectionChange struct {
	StatusChanged bool
	NewStatus     Status
	Reason        string
	BothConnected bool
	AnyConnected  bool
}

// setConnected 更新玩家連線狀態（呼叫端必須持有 mu）
//
// 系統設計考量：
//
//  1. 斷線暫停：
//     playing / roundOver 時一方斷線而另一方仍在線，強制 paused 並附上原因，
//     讓留下的玩家知道發生了什麼。
//
//  2. 不自動恢復：
//     重連只更新連線旗標，恢復比賽必須由玩家送出 toggle_pause。
//
//  3. 雙方都離線：
//     狀態不變，由 tick 迴圈在下一個 tick 邊界決定清理或保留。
func (m *Match) setConnected(player int, connected bool, now time.Time) (ConnectionChange, Transition) {
	var tr Transition
	m.lastActivity = now

	idx := player - 1
	m.connected[idx] = connected
	tr.send(playerStatus(player, connected))

	change := ConnectionChange{NewStatus: m.status}

	if !connected && m.connected[1-idx] {
		reason := fmt.Sprintf("Player %d disconnected", player)
		if m.forcePause(&tr, reason, now) {
			change.StatusChanged = true
			change.NewStatus = m.status
			change.Reason = reason
		}
	}

	change.BothConnected = m.bothConnected()
	change.AnyConnected = m.anyConnected()
	return change, tr
}

// bindToken 為新連線配發 token，取代同一席位的舊連線
func (m *Match) bindToken(player int) string {
	token := uuid.NewString()
	m.tokens[player-1] = token
	return token
}

// releaseToken 只有目前有效的 token 才能釋放席位
func (m *Match) releaseToken(player int, token string) bool {
	if player != 1 && player != 2 || token == "" || m.tokens[player-1] != token {
		return false
	}
	m.tokens[player-1] = ""
	return true
}

// ownsToken 檢查 token 是否仍有效
func (m *Match) ownsToken(player int, token string) bool {
	return (player == 1 || player == 2) && token != "" && m.tokens[player-1] == token
}

func (m *Match) bothConnected() bool {
	return m.connected[0] && m.connected[1]
}

func (m *Match) anyConnected() bool {
	return m.connected[0] || m.connected[1]
}

// IsAnyConnected 是否仍有玩家在線
func (m *Match) IsAnyConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.anyConnected()
}
