package game

import "math"

// Ball 球的位置（中心點）與速度（像素/秒）
type Ball struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	VX    float64 `json:"vx"`
	VY    float64 `json:"vy"`
	Speed float64 `json:"speed"` // 目前的基準速度，擊球加速以此為準
}

// State 物理狀態：球與兩支球拍（球拍以上緣 y 表示）
type State struct {
	Ball    Ball       `json:"ball"`
	Paddles [2]float64 `json:"paddles"`
}

// Point 一次模擬步驟的得分結果
type Point int

const (
	NoPoint      Point = 0
	PointPlayer1 Point = 1 // 球越過右側邊界
	PointPlayer2 Point = 2 // 球越過左側邊界
)

// Scorer 返回得分玩家編號（1 或 2），沒有得分時為 0
func (p Point) Scorer() int {
	return int(p)
}

// Serve 把球放回中央，朝 toward 玩家（1 = 左，2 = 右）發球
//
// 發球方向沿場地對角線，向量長度正好是難度的初速（|v| == Speed），結果完全可重現。
func Serve(s Settings, toward int) Ball {
	diag := math.Hypot(s.Width, s.Height)
	vx := s.BallSpeed * s.Width / diag
	if toward == 1 {
		vx = -vx
	}
	return Ball{
		X:     s.Width / 2,
		Y:     s.Height / 2,
		VX:    vx,
		VY:    s.BallSpeed * s.Height / diag,
		Speed: s.BallSpeed,
	}
}

// NewState 開局狀態：球拍置中，首球發向玩家 2
func NewState(s Settings) State {
	center := (s.Height - s.PaddleHeight) / 2
	return State{
		Ball:    Serve(s, 2),
		Paddles: [2]float64{center, center},
	}
}

// ClampPaddle 把球拍位置限制在場地內
//
// NaN 或無窮大返回 ok=false，呼叫端應丟棄該輸入。
func ClampPaddle(s Settings, y float64) (float64, bool) {
	if math.IsNaN(y) || math.IsInf(y, 0) {
		return 0, false
	}
	return clamp(y, 0, s.Height-s.PaddleHeight), true
}

// ClampStep 把時間步長限制在 [0, MaxStep]（秒）
func ClampStep(s Settings, dt float64) float64 {
	if math.IsNaN(dt) || dt <= 0 {
		return 0
	}
	maxStep := s.MaxStep
	if maxStep <= 0 {
		maxStep = DefaultMaxStep
	}
	return math.Min(dt, maxStep)
}

// Step 推進一個時間步長
//
// 處理順序：
//  1. 積分位置（dt 先夾住）
//  2. 上下牆反彈
//  3. 球拍碰撞（掃掠檢測，以穿越時間插值 y）
//  4. 出界得分，並朝失分方重新發球
//
// 純函數：相同輸入永遠得到相同輸出。
func Step(st State, s Settings, dt float64) (State, Point) {
	dt = ClampStep(s, dt)
	if dt == 0 {
		return st, NoPoint
	}

	for i := range st.Paddles {
		st.Paddles[i], _ = ClampPaddle(s, st.Paddles[i])
	}

	b := st.Ball
	oldX, oldY := b.X, b.Y
	newX := oldX + b.VX*dt
	newY := oldY + b.VY*dt

	// 上下牆
	r := s.BallRadius
	if newY-r < 0 {
		newY = r + (r - newY)
		b.VY = math.Abs(b.VY)
	} else if newY+r > s.Height {
		newY = (s.Height - r) - (newY + r - s.Height)
		b.VY = -math.Abs(b.VY)
	}
	newY = clamp(newY, r, s.Height-r)

	hit := false

	// 左側球拍（玩家 1）：球的左緣穿越球拍右表面
	if b.VX < 0 {
		face := s.PaddleMargin + s.PaddleWidth
		if oldX-r >= face && newX-r < face {
			t := (oldX - r - face) / (oldX - newX)
			yAt := oldY + (newY-oldY)*t
			if paddleCovers(s, st.Paddles[0], yAt) {
				b = deflect(s, b, st.Paddles[0], yAt, 1)
				newX = face + r
				newY = clamp(yAt, r, s.Height-r)
				hit = true
			}
		}
	}

	// 右側球拍（玩家 2）：球的右緣穿越球拍左表面
	if !hit && b.VX > 0 {
		face := s.Width - s.PaddleMargin - s.PaddleWidth
		if oldX+r <= face && newX+r > face {
			t := (face - (oldX + r)) / (newX - oldX)
			yAt := oldY + (newY-oldY)*t
			if paddleCovers(s, st.Paddles[1], yAt) {
				b = deflect(s, b, st.Paddles[1], yAt, -1)
				newX = face - r
				newY = clamp(yAt, r, s.Height-r)
				hit = true
			}
		}
	}

	b.X, b.Y = newX, newY

	// 出界
	switch {
	case b.X < 0:
		st.Ball = Serve(s, 1)
		return st, PointPlayer2
	case b.X > s.Width:
		st.Ball = Serve(s, 2)
		return st, PointPlayer1
	}

	st.Ball = b
	return st, NoPoint
}

// paddleCovers 判斷 y 是否落在球拍範圍內（含球半徑）
func paddleCovers(s Settings, top, y float64) bool {
	return y >= top-s.BallRadius && y <= top+s.PaddleHeight+s.BallRadius
}

// deflect 依接觸點相對球拍中心的偏移計算反彈角，並加速（有上限）
//
// dir 為反彈後的水平方向：1 向右，-1 向左。
func deflect(s Settings, b Ball, top, y float64, dir float64) Ball {
	half := s.PaddleHeight / 2
	rel := clamp((y-(top+half))/half, -1, 1)
	angle := rel * maxBounceAngle

	speed := math.Min(b.Speed*(1+s.SpeedUp), s.MaxBallSpeed)
	b.Speed = speed
	b.VX = dir * speed * math.Cos(angle)
	b.VY = speed * math.Sin(angle)
	return b
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
