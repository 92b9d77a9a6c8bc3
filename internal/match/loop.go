package match

import (
	"fmt"
	"runtime/debug"
	"time"
)

// spawn 啟動 tick 迴圈（呼叫端必須已經以 CAS 取得 loopActive）
func (e *Engine) spawn(m *Match) {
	e.wg.Add(1)
	e.loopsStarted.Add(1)
	e.activeLoops.Add(1)

	go func() {
		defer e.wg.Done()
		defer e.activeLoops.Add(-1)
		e.run(m)
	}()
}

// run tick 迴圈
//
// 系統設計考量：
//
//  1. 固定頻率（time.Ticker）：
//     盡力而為，不保證硬即時；實際經過的時間由 lastTick 計算並夾制。
//
//  2. 旗標釋放：
//     正常退出時 tick 在持有對戰鎖的情況下釋放 loopActive（released = true），
//     之後可能已有新迴圈搶到旗標，defer 不能再清掉它。
//     其他退出路徑（引擎停止、未預期的 panic）由 defer 釋放。
//
//  3. 自我停止：
//     迴圈是唯一能停止自己的實體，只在 tick 邊界檢查「無人在線」條件。
func (e *Engine) run(m *Match) {
	released := false
	defer func() {
		if !released {
			m.loopActive.Store(false)
		}
	}()

	ticker := time.NewTicker(e.cfg.TickInterval())
	defer ticker.Stop()

	e.logger.Debug("tick 迴圈已啟動", "match_id", m.ID())

	for {
		select {
		case <-e.stopCh:
			return
		case <-ticker.C:
			if released = e.tick(m); released {
				e.logger.Debug("tick 迴圈已結束", "match_id", m.ID())
				return
			}
		}
	}
}

// tick 執行一個 tick，返回 true 表示迴圈應該結束（loopActive 已釋放）
func (e *Engine) tick(m *Match) bool {
	var (
		events []StatusEvent
		result *Result
		exit   bool
	)

	now := e.now()

	m.mu.Lock()
	if m.closed {
		m.loopActive.Store(false)
		m.mu.Unlock()
		return true
	}

	tr, err := e.safeAdvance(m, now)
	if err != nil {
		m.tickFailures++
		e.logger.Error("tick 失敗",
			"match_id", m.ID(),
			"failures", m.tickFailures,
			"error", err)

		// 斷路器：連續失敗達上限就暫停對戰並停止迴圈，避免無聲地卡住
		if m.tickFailures >= e.cfg.MaxTickFailures {
			var pause Transition
			m.forcePause(&pause, "Server error", now)
			if perr := e.safeBroadcast(m, pause.Messages); perr != nil {
				e.logger.Error("廣播暫停通知失敗", "match_id", m.ID(), "error", perr)
			}
			events = pause.Events
			m.tickFailures = 0
			exit = true

			e.logger.Warn("tick 迴圈已觸發斷路器",
				"match_id", m.ID(),
				"status", m.status)
		}
	} else {
		m.tickFailures = 0
		events = tr.Events
	}

	if !m.anyConnected() {
		exit = true
		result = e.settleLocked(m, now)
	}
	if exit {
		m.loopActive.Store(false)
	}
	m.mu.Unlock()

	e.publish(events)
	if result != nil {
		e.persist(*result)
	}
	return exit
}

// safeAdvance 推進狀態並廣播，panic 會被轉為錯誤（呼叫端必須持有 mu）
func (e *Engine) safeAdvance(m *Match, now time.Time) (tr Transition, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("tick panic: %v\n%s", r, debug.Stack())
		}
	}()

	tr = m.advance(now)
	e.broadcastLocked(m, tr.Messages)
	return tr, nil
}

// safeBroadcast 同 broadcastLocked，但 panic 會被轉為錯誤
func (e *Engine) safeBroadcast(m *Match, msgs []Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("broadcast panic: %v", r)
		}
	}()
	e.broadcastLocked(m, msgs)
	return nil
}
