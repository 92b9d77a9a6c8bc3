package match

import (
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
)

// Sweep 清理被遺棄的對戰
//
// 條件：沒有玩家在線、沒有迴圈在跑、最後活動超過 AbandonAfter。
// 終局類對戰照常寫入結果；未完成的對戰（包括可續玩的）直接驅逐。
// 返回被驅逐的對戰數。
func (e *Engine) Sweep(now time.Time) int {
	if e.cfg.AbandonAfter <= 0 {
		return 0
	}

	var (
		results []Result
		evicted int
	)

	e.store.Range(func(m *Match) bool {
		m.mu.Lock()
		defer m.mu.Unlock()

		if m.closed || m.anyConnected() || m.loopActive.Load() {
			return true
		}
		if now.Sub(m.lastActivity) < e.cfg.AbandonAfter {
			return true
		}

		if m.status.Terminal() {
			if r := e.settleLocked(m, now); r != nil {
				results = append(results, *r)
			}
		} else {
			e.evictLocked(m, "abandoned")
		}
		evicted++
		return true
	})

	for _, r := range results {
		e.persist(r)
	}
	if evicted > 0 {
		e.logger.Info("清理遺棄的對戰", "evicted", evicted)
	}
	return evicted
}

// RegisterJanitor 在排程器上註冊清理工作
//
// AbandonAfter 為 0 時不註冊。使用單例模式，上一輪未完成時跳過本輪。
func RegisterJanitor(s gocron.Scheduler, e *Engine) error {
	if e.cfg.AbandonAfter <= 0 {
		return nil
	}

	_, err := s.NewJob(
		gocron.DurationJob(e.cfg.SweepInterval),
		gocron.NewTask(func() {
			e.Sweep(e.now())
		}),
		gocron.WithName("match-janitor"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("註冊清理工作失敗: %w", err)
	}
	return nil
}
