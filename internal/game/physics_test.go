package game_test

import (
	"math"
	"testing"

	"github.com/koopa0/system-design/14-pong-match-engine/internal/game"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const tick = 1.0 / 60

// TestSettingsFor 測試難度常數換算為每秒像素
func TestSettingsFor(t *testing.T) {
	tests := []struct {
		difficulty game.Difficulty
		speed      float64
		speedUp    float64
		max        float64
	}{
		{game.DifficultyEasy, 180, 0.02, 360},
		{game.DifficultyMedium, 300, 0.05, 480},
		{game.DifficultyHard, 420, 0.1, 660},
	}

	for _, tt := range tests {
		t.Run(string(tt.difficulty), func(t *testing.T) {
			s, err := game.SettingsFor(tt.difficulty)
			require.NoError(t, err)
			assert.InDelta(t, tt.speed, s.BallSpeed, 1e-9)
			assert.InDelta(t, tt.speedUp, s.SpeedUp, 1e-9)
			assert.InDelta(t, tt.max, s.MaxBallSpeed, 1e-9)
			assert.Equal(t, game.FieldWidth, s.Width)
		})
	}

	_, err := game.SettingsFor("nightmare")
	assert.Error(t, err)
}

// TestNewState 測試開局狀態
func TestNewState(t *testing.T) {
	s := game.MustSettings(game.DifficultyMedium)
	st := game.NewState(s)

	assert.Equal(t, 400.0, st.Ball.X)
	assert.Equal(t, 200.0, st.Ball.Y)
	assert.Greater(t, st.Ball.VX, 0.0, "首球發向玩家 2")
	assert.Greater(t, st.Ball.VY, 0.0)
	assert.Equal(t, [2]float64{150, 150}, st.Paddles)
}

// TestServe_SpeedMatchesVector 測試發球向量長度等於基準速度，第一次擊球會加速
func TestServe_SpeedMatchesVector(t *testing.T) {
	for _, d := range []game.Difficulty{game.DifficultyEasy, game.DifficultyMedium, game.DifficultyHard} {
		t.Run(string(d), func(t *testing.T) {
			s := game.MustSettings(d)

			for _, toward := range []int{1, 2} {
				b := game.Serve(s, toward)
				assert.InDelta(t, s.BallSpeed, math.Hypot(b.VX, b.VY), 1e-9)
				assert.InDelta(t, b.Speed, math.Hypot(b.VX, b.VY), 1e-9)
			}

			// 發向玩家 1，球拍正對球的路徑
			st := game.State{Ball: game.Serve(s, 1), Paddles: [2]float64{150, 150}}
			st.Ball.X, st.Ball.Y = 40, 200
			before := math.Hypot(st.Ball.VX, st.Ball.VY)

			got, _ := game.Step(st, s, 0.02)
			require.Greater(t, got.Ball.VX, 0.0, "已反彈")
			assert.Greater(t, math.Hypot(got.Ball.VX, got.Ball.VY), before, "擊球後速度增加")
		})
	}
}

// TestStep_Deterministic 測試相同輸入得到相同輸出
func TestStep_Deterministic(t *testing.T) {
	s := game.MustSettings(game.DifficultyHard)
	a := game.NewState(s)
	b := game.NewState(s)

	for i := 0; i < 600; i++ {
		var pa, pb game.Point
		a, pa = game.Step(a, s, tick)
		b, pb = game.Step(b, s, tick)
		require.Equal(t, a, b, "tick %d", i)
		require.Equal(t, pa, pb)
	}
}

// TestStep_ClampsDelta 測試時間步長夾制
func TestStep_ClampsDelta(t *testing.T) {
	s := game.MustSettings(game.DifficultyMedium)
	start := game.NewState(s)

	big, _ := game.Step(start, s, 5)
	capped, _ := game.Step(start, s, s.MaxStep)
	assert.Equal(t, capped, big, "超過上限的 dt 等同上限")

	for _, dt := range []float64{0, -1, math.NaN()} {
		got, p := game.Step(start, s, dt)
		assert.Equal(t, start, got)
		assert.Equal(t, game.NoPoint, p)
	}
}

// TestStep_Collisions 測試牆面與球拍反彈
func TestStep_Collisions(t *testing.T) {
	s := game.MustSettings(game.DifficultyMedium)

	tests := []struct {
		name     string
		state    game.State
		dt       float64
		validate func(t *testing.T, st game.State, p game.Point)
	}{
		{
			name: "上牆反彈",
			state: game.State{
				Ball:    game.Ball{X: 400, Y: 10, VX: 0, VY: -300, Speed: 300},
				Paddles: [2]float64{150, 150},
			},
			dt: 0.05,
			validate: func(t *testing.T, st game.State, p game.Point) {
				assert.Equal(t, game.NoPoint, p)
				assert.Greater(t, st.Ball.VY, 0.0)
				assert.InDelta(t, 21.0, st.Ball.Y, 1e-9)
			},
		},
		{
			name: "下牆反彈",
			state: game.State{
				Ball:    game.Ball{X: 400, Y: 390, VX: 0, VY: 300, Speed: 300},
				Paddles: [2]float64{150, 150},
			},
			dt: 0.05,
			validate: func(t *testing.T, st game.State, p game.Point) {
				assert.Less(t, st.Ball.VY, 0.0)
				assert.LessOrEqual(t, st.Ball.Y, s.Height-s.BallRadius)
			},
		},
		{
			name: "左拍正中央擊球",
			state: game.State{
				Ball:    game.Ball{X: 45, Y: 200, VX: -300, VY: 0, Speed: 300},
				Paddles: [2]float64{150, 150},
			},
			dt: 0.05,
			validate: func(t *testing.T, st game.State, p game.Point) {
				assert.Equal(t, game.NoPoint, p)
				assert.InDelta(t, 315.0, st.Ball.Speed, 1e-9)
				assert.InDelta(t, 315.0, st.Ball.VX, 1e-9)
				assert.InDelta(t, 0.0, st.Ball.VY, 1e-9)
				assert.Equal(t, 38.0, st.Ball.X)
			},
		},
		{
			name: "左拍下緣擊球產生偏折",
			state: game.State{
				Ball:    game.Ball{X: 45, Y: 250, VX: -300, VY: 0, Speed: 300},
				Paddles: [2]float64{150, 150},
			},
			dt: 0.05,
			validate: func(t *testing.T, st game.State, p game.Point) {
				assert.Greater(t, st.Ball.VX, 0.0)
				assert.Greater(t, st.Ball.VY, 0.0)
				assert.InDelta(t, 315*math.Sin(0.785), st.Ball.VY, 1e-9)
			},
		},
		{
			name: "右拍擊球",
			state: game.State{
				Ball:    game.Ball{X: 755, Y: 200, VX: 300, VY: 0, Speed: 300},
				Paddles: [2]float64{150, 150},
			},
			dt: 0.05,
			validate: func(t *testing.T, st game.State, p game.Point) {
				assert.Equal(t, game.NoPoint, p)
				assert.Less(t, st.Ball.VX, 0.0)
				assert.Equal(t, 762.0, st.Ball.X)
			},
		},
		{
			name: "速度不超過上限",
			state: game.State{
				Ball:    game.Ball{X: 45, Y: 200, VX: -480, VY: 0, Speed: 480},
				Paddles: [2]float64{150, 150},
			},
			dt: 0.02,
			validate: func(t *testing.T, st game.State, p game.Point) {
				assert.InDelta(t, s.MaxBallSpeed, st.Ball.Speed, 1e-9)
			},
		},
		{
			name: "高速不穿透球拍",
			state: game.State{
				Ball:    game.Ball{X: 300, Y: 200, VX: -10000, VY: 0, Speed: 10000},
				Paddles: [2]float64{150, 150},
			},
			dt: 0.05,
			validate: func(t *testing.T, st game.State, p game.Point) {
				assert.Equal(t, game.NoPoint, p)
				assert.Greater(t, st.Ball.VX, 0.0)
				assert.InDelta(t, s.MaxBallSpeed, st.Ball.Speed, 1e-9)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st, p := game.Step(tt.state, s, tt.dt)
			tt.validate(t, st, p)
		})
	}
}

// TestStep_Scoring 測試出界得分與朝失分方發球
func TestStep_Scoring(t *testing.T) {
	s := game.MustSettings(game.DifficultyMedium)

	t.Run("左側出界玩家 2 得分", func(t *testing.T) {
		st := game.State{
			Ball:    game.Ball{X: 10, Y: 300, VX: -300, VY: 0, Speed: 350},
			Paddles: [2]float64{0, 0},
		}
		got, p := game.Step(st, s, 0.05)
		assert.Equal(t, game.PointPlayer2, p)
		assert.Equal(t, 2, p.Scorer())
		assert.Equal(t, game.Serve(s, 1), got.Ball)
		assert.Less(t, got.Ball.VX, 0.0, "發向失分的玩家 1")
	})

	t.Run("右側出界玩家 1 得分", func(t *testing.T) {
		st := game.State{
			Ball:    game.Ball{X: 795, Y: 300, VX: 300, VY: 0, Speed: 300},
			Paddles: [2]float64{0, 0},
		}
		got, p := game.Step(st, s, 0.05)
		assert.Equal(t, game.PointPlayer1, p)
		assert.Greater(t, got.Ball.VX, 0.0)
		assert.Equal(t, s.BallSpeed, got.Ball.Speed, "發球速度重置")
	})

	t.Run("無人接球最終得分", func(t *testing.T) {
		st := game.NewState(s)
		st.Paddles[1] = 0

		var p game.Point
		for i := 0; i < 600 && p == game.NoPoint; i++ {
			st, p = game.Step(st, s, tick)
		}
		assert.Equal(t, game.PointPlayer1, p)
	})
}

// TestClampPaddle 測試球拍位置限制
func TestClampPaddle(t *testing.T) {
	s := game.MustSettings(game.DifficultyEasy)

	tests := []struct {
		in   float64
		want float64
		ok   bool
	}{
		{in: 120, want: 120, ok: true},
		{in: -10, want: 0, ok: true},
		{in: 1000, want: 300, ok: true},
		{in: math.NaN(), ok: false},
		{in: math.Inf(1), ok: false},
	}

	for _, tt := range tests {
		got, ok := game.ClampPaddle(s, tt.in)
		assert.Equal(t, tt.ok, ok, "%v", tt.in)
		if tt.ok {
			assert.Equal(t, tt.want, got)
		}
	}
}
