package match

import (
	"fmt"
	"time"
)

// Rules 勝負規則
//
// PointsToWin 決定一局的勝負（先得 N 分），RoundsToWin 決定系列賽（先贏 N 局）。
// RoundsToWin 為 1 時，決勝分直接進入 gameOver。
type Rules struct {
	PointsToWin int           `yaml:"points_to_win"`
	RoundsToWin int           `yaml:"rounds_to_win"`
	ServeDelay  time.Duration `yaml:"serve_delay"` // 0 表示得分後立即繼續
}

// Config 引擎設定
type Config struct {
	TickRate        int           `yaml:"tick_rate"` // 每秒 tick 數
	MaxStep         time.Duration `yaml:"max_step"`  // 物理單步上限
	Rules           Rules         `yaml:"rules"`
	Resumable       bool          `yaml:"resumable"`         // 雙方離線後非終局對戰是否保留
	AbandonAfter    time.Duration `yaml:"abandon_after"`     // 無人連線多久後清理（0 停用）
	SweepInterval   time.Duration `yaml:"sweep_interval"`    // 清理掃描間隔
	PersistTimeout  time.Duration `yaml:"persist_timeout"`   // 單次結果寫入的逾時
	MaxTickFailures int           `yaml:"max_tick_failures"` // 連續失敗幾次後停止迴圈
}

// DefaultConfig 預設設定
func DefaultConfig() Config {
	return Config{
		TickRate: 60,
		MaxStep:  50 * time.Millisecond,
		Rules: Rules{
			PointsToWin: 11,
			RoundsToWin: 3,
			ServeDelay:  time.Second,
		},
		Resumable:       false,
		AbandonAfter:    0,
		SweepInterval:   time.Minute,
		PersistTimeout:  5 * time.Second,
		MaxTickFailures: 10,
	}
}

// Validate 驗證設定
func (c Config) Validate() error {
	if c.TickRate <= 0 || c.TickRate > 1000 {
		return fmt.Errorf("tick_rate 必須在 1-1000 之間: %d", c.TickRate)
	}
	if c.MaxStep <= 0 {
		return fmt.Errorf("max_step 必須大於 0")
	}
	if c.Rules.PointsToWin <= 0 {
		return fmt.Errorf("points_to_win 必須大於 0")
	}
	if c.Rules.RoundsToWin <= 0 {
		return fmt.Errorf("rounds_to_win 必須大於 0")
	}
	if c.Rules.ServeDelay < 0 {
		return fmt.Errorf("serve_delay 不能為負數")
	}
	if c.AbandonAfter < 0 {
		return fmt.Errorf("abandon_after 不能為負數")
	}
	if c.AbandonAfter > 0 && c.SweepInterval <= 0 {
		return fmt.Errorf("啟用清理時 sweep_interval 必須大於 0")
	}
	if c.PersistTimeout <= 0 {
		return fmt.Errorf("persist_timeout 必須大於 0")
	}
	if c.MaxTickFailures <= 0 {
		return fmt.Errorf("max_tick_failures 必須大於 0")
	}
	return nil
}

// TickInterval tick 間隔
func (c Config) TickInterval() time.Duration {
	return time.Second / time.Duration(c.TickRate)
}
