package match

import (
	"fmt"
	"time"

	"github.com/koopa0/system-design/14-pong-match-engine/internal/game"
)

// 狀態轉換表：
//
//	| 從                        | 事件             | 到                               |
//	|---------------------------|------------------|----------------------------------|
//	| waiting                   | start_game       | playing（雙方都在線）            |
//	| playing                   | 非決勝分         | roundOver → playing              |
//	| playing                   | 決勝分           | matchOver / gameOver             |
//	| playing                   | toggle_pause     | paused                           |
//	| paused                    | toggle_pause     | playing（雙方都在線）            |
//	| playing / roundOver       | 一方斷線         | paused（見 coordinator.go）      |
//	| matchOver                 | next_match       | waiting（局數 +1，比分歸零）     |
//	| matchOver / gameOver      | restart_game     | waiting（完全重置）              |
//
// 不符合目前狀態的指令一律丟棄，不回報錯誤，也不修改任何狀態。

// apply 套用玩家指令（呼叫端必須持有 mu）
//
// 返回 false 表示指令被丟棄。
func (m *Match) apply(player int, cmd Command, now time.Time) (Transition, bool) {
	var tr Transition
	if player != 1 && player != 2 {
		return tr, false
	}
	m.lastActivity = now

	switch cmd.Type {
	case CmdPaddleMove:
		if m.status.Terminal() || cmd.Position == nil {
			return tr, false
		}
		y, ok := game.ClampPaddle(m.settings, *cmd.Position)
		if !ok {
			return tr, false
		}
		m.phys.Paddles[player-1] = y
		tr.send(paddlePosition(player, y))

	case CmdStartGame:
		if m.status != StatusWaiting || !m.bothConnected() {
			return tr, false
		}
		m.resetClock(now)
		m.transition(&tr, StatusPlaying, "", now)
		tr.StartLoop = true

	case CmdTogglePause:
		switch m.status {
		case StatusPlaying:
			m.transition(&tr, StatusPaused, fmt.Sprintf("Paused by player %d", player), now)
		case StatusPaused:
			if !m.bothConnected() {
				return tr, false
			}
			// 暫停期間的時間不計入物理步長
			m.resetClock(now)
			m.transition(&tr, StatusPlaying, "", now)
			tr.StartLoop = true
		default:
			return tr, false
		}

	case CmdNextMatch:
		if m.status != StatusMatchOver {
			return tr, false
		}
		m.roundNumber++
		m.resetRound()
		m.transition(&tr, StatusWaiting, "", now)

	case CmdRestartGame:
		if !m.status.Terminal() {
			return tr, false
		}
		m.roundNumber = 1
		m.roundWins = [2]int{}
		m.rounds = nil
		m.resetRound()
		m.transition(&tr, StatusWaiting, "", now)

	default:
		return tr, false
	}

	return tr, true
}

// advance 推進一個 tick（呼叫端必須持有 mu）
//
// 只有 playing 會呼叫物理模擬；roundOver 在發球延遲結束後回到 playing。
// 不論狀態為何都會附上一個 game_state 快照，且排在本次狀態變更通知之後。
func (m *Match) advance(now time.Time) Transition {
	var tr Transition

	elapsed := now.Sub(m.lastTick)
	if elapsed < 0 {
		elapsed = 0
	} else {
		m.lastTick = now
	}

	switch m.status {
	case StatusPlaying:
		var p game.Point
		m.phys, p = game.Step(m.phys, m.settings, elapsed.Seconds())
		if p != game.NoPoint {
			m.score(&tr, p.Scorer(), now)
		}
	case StatusRoundOver:
		if !now.Before(m.serveAt) {
			m.transition(&tr, StatusPlaying, "", now)
		}
	}

	tr.send(gameState(m.snapshotLocked()))
	return tr
}

// score 記錄得分並判定勝負
func (m *Match) score(tr *Transition, scorer int, now time.Time) {
	i := scorer - 1
	m.scores[i]++

	if m.scores[i] < m.rules.PointsToWin {
		if m.rules.ServeDelay > 0 {
			m.serveAt = now.Add(m.rules.ServeDelay)
			m.transition(tr, StatusRoundOver, "", now)
		}
		return
	}

	// 決勝分：本局結束
	m.winner = m.seed.playerID(scorer)
	m.roundWins[i]++
	m.rounds = append(m.rounds, RoundResult{
		Number:      m.roundNumber,
		Scores:      m.scores,
		Winner:      m.winner,
		CompletedAt: now,
	})

	if m.roundWins[i] >= m.rules.RoundsToWin {
		m.transition(tr, StatusGameOver, "", now)
		return
	}
	m.transition(tr, StatusMatchOver, "", now)
}

// forcePause 強制暫停進行中的對戰（斷線或伺服器錯誤）
func (m *Match) forcePause(tr *Transition, reason string, now time.Time) bool {
	if m.status != StatusPlaying && m.status != StatusRoundOver {
		return false
	}
	m.transition(tr, StatusPaused, reason, now)
	return true
}

// transition 變更狀態，並把通知與事件加入 Transition
func (m *Match) transition(tr *Transition, to Status, reason string, now time.Time) {
	from := m.status
	m.status = to
	m.reason = reason

	winner := ""
	if to.Terminal() {
		winner = m.winner
	}

	tr.send(statusChanged(to, winner, reason))
	tr.Events = append(tr.Events, StatusEvent{
		MatchID:     m.seed.MatchID,
		From:        from,
		To:          to,
		Winner:      winner,
		Reason:      reason,
		RoundNumber: m.roundNumber,
		Scores:      m.scores,
		RoundWins:   m.roundWins,
		At:          now,
	})
}

// resetRound 新的一局：比分歸零，球與球拍回到開局位置，保留玩家與難度
func (m *Match) resetRound() {
	m.scores = [2]int{}
	m.winner = ""
	m.phys = game.NewState(m.settings)
	m.serveAt = time.Time{}
}

// resetClock 重新開始計時（lastTick 不會倒退）
func (m *Match) resetClock(now time.Time) {
	if now.After(m.lastTick) {
		m.lastTick = now
	}
}
