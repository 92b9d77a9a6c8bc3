// Package game 實現乒乓球的物理模擬
//
// 系統設計問題：
//
//	伺服器權威的物理模擬如何做到可測試、可重現？
//
// 設計方案：
//
//	✅ 純函數 Step(state, settings, dt)：沒有 I/O、沒有鎖、沒有亂數
//	✅ dt 夾在 [0, MaxStep]：暫停恢復或慢 tick 不會讓球瞬移
//	✅ 掃掠碰撞：以穿越時間插值判斷擊球，高速時不穿透球拍
//
// 座標系：原點在左上角，x 向右、y 向下。玩家 1 在左側，玩家 2 在右側。
package game

import "fmt"

// Difficulty 難度（影響球速與加速幅度）
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// Theme 主題（純外觀，不影響物理）
type Theme string

const (
	ThemeFire  Theme = "fire"
	ThemeWater Theme = "water"
)

// Valid 檢查難度是否合法
func (d Difficulty) Valid() bool {
	switch d {
	case DifficultyEasy, DifficultyMedium, DifficultyHard:
		return true
	}
	return false
}

// Valid 檢查主題是否合法
func (t Theme) Valid() bool {
	return t == ThemeFire || t == ThemeWater
}

// 場地常數（像素）
const (
	FieldWidth   = 800.0
	FieldHeight  = 400.0
	PaddleWidth  = 10.0
	PaddleHeight = 100.0
	PaddleMargin = 20.0
	BallRadius   = 8.0

	// 客戶端以 60 FPS 設計球速（每幀像素），伺服器換算為每秒像素
	framesPerSecond = 60.0

	// 擊球最大偏折角（弧度，約 45 度）
	maxBounceAngle = 0.785

	// 預設最大步長（秒）
	DefaultMaxStep = 0.05
)

// Settings 物理常數
type Settings struct {
	Width        float64
	Height       float64
	PaddleWidth  float64
	PaddleHeight float64
	PaddleMargin float64
	BallRadius   float64

	BallSpeed    float64 // 發球速度（像素/秒）
	SpeedUp      float64 // 每次擊球的加速倍率
	MaxBallSpeed float64 // 速度上限（像素/秒）

	MaxStep float64 // 單次模擬的最大步長（秒）
}

// difficultyTable 難度參數：發球速度、加速倍率、速度上限（每幀像素）
var difficultyTable = map[Difficulty]struct {
	ballSpeed, speedUp, maxSpeed float64
}{
	DifficultyEasy:   {ballSpeed: 3, speedUp: 0.02, maxSpeed: 6},
	DifficultyMedium: {ballSpeed: 5, speedUp: 0.05, maxSpeed: 8},
	DifficultyHard:   {ballSpeed: 7, speedUp: 0.1, maxSpeed: 11},
}

// SettingsFor 返回難度對應的物理常數
func SettingsFor(d Difficulty) (Settings, error) {
	p, ok := difficultyTable[d]
	if !ok {
		return Settings{}, fmt.Errorf("未知的難度: %q", d)
	}

	return Settings{
		Width:        FieldWidth,
		Height:       FieldHeight,
		PaddleWidth:  PaddleWidth,
		PaddleHeight: PaddleHeight,
		PaddleMargin: PaddleMargin,
		BallRadius:   BallRadius,
		BallSpeed:    p.ballSpeed * framesPerSecond,
		SpeedUp:      p.speedUp,
		MaxBallSpeed: p.maxSpeed * framesPerSecond,
		MaxStep:      DefaultMaxStep,
	}, nil
}

// MustSettings 同 SettingsFor，難度不合法時 panic（只用於常數與測試）
func MustSettings(d Difficulty) Settings {
	s, err := SettingsFor(d)
	if err != nil {
		panic(err)
	}
	return s
}
