// Package game runs live pong matches: deterministic physics stepped by
// a per-session loop, websocket clients and the session registry.
package game

import (
	"math"
)

const (
	ArenaWidth   = 800
	ArenaHeight  = 600
	PaddleHeight = 100
	PaddleWidth  = 20
	BallRadius   = 10
	WinningScore = 5
	ServeSpeed   = 6
	PaddleStep   = 8
	MaxBallSpeed = 12

	speedGrowth    = 1.05
	maxBounceAngle = math.Pi / 6
)

// Side identifies one of the two players of a match. Left is always
// player 1 of the stored match row.
type Side int

const (
	SideLeft Side = iota
	SideRight
)

func (s Side) String() string {
	if s == SideLeft {
		return "left"
	}
	return "right"
}

// Other returns the opposing side.
func (s Side) Other() Side {
	if s == SideLeft {
		return SideRight
	}
	return SideLeft
}

type Ball struct {
	X  float64 `json:"x"`
	Y  float64 `json:"y"`
	DX float64 `json:"dx"`
	DY float64 `json:"dy"`
}

// Paddle carries the top edge of the paddle, in [0, ArenaHeight-PaddleHeight].
type Paddle struct {
	Y float64 `json:"y"`
}

// State is the full field snapshot broadcast to clients every tick.
type State struct {
	Ball        Ball   `json:"ball"`
	LeftPaddle  Paddle `json:"left_paddle"`
	RightPaddle Paddle `json:"right_paddle"`
	LeftScore   int    `json:"left_score"`
	RightScore  int    `json:"right_score"`
}

// Pong holds the simulation for one match. It is not safe for concurrent
// use: the owning session goroutine is the only caller.
type Pong struct {
	state State
}

func NewPong() *Pong {
	p := &Pong{}
	p.serve(SideRight)
	return p
}

// State returns a copy of the current field snapshot.
func (p *Pong) State() State {
	return p.state
}

// MovePaddle moves the given side's paddle one step, clamped to the arena.
func (p *Pong) MovePaddle(side Side, direction string) {
	paddle := &p.state.LeftPaddle
	if side == SideRight {
		paddle = &p.state.RightPaddle
	}
	switch direction {
	case "up":
		paddle.Y = math.Max(paddle.Y-PaddleStep, 0)
	case "down":
		paddle.Y = math.Min(paddle.Y+PaddleStep, ArenaHeight-PaddleHeight)
	}
}

// Finished reports the winner once either side reaches the winning score.
func (p *Pong) Finished() (Side, bool) {
	if p.state.LeftScore >= WinningScore {
		return SideLeft, true
	}
	if p.state.RightScore >= WinningScore {
		return SideRight, true
	}
	return 0, false
}

// Step advances the simulation by one tick. The ball moves in sub-steps
// no longer than its radius so it can never tunnel through a paddle at
// high speed.
func (p *Pong) Step() {
	if _, over := p.Finished(); over {
		return
	}

	ball := &p.state.Ball
	speed := math.Hypot(ball.DX, ball.DY)
	steps := int(math.Ceil(speed / BallRadius))
	if steps < 1 {
		steps = 1
	}

	for i := 0; i < steps; i++ {
		ball.X += ball.DX / float64(steps)
		ball.Y += ball.DY / float64(steps)

		if ball.Y-BallRadius <= 0 {
			ball.Y = BallRadius
			ball.DY = -ball.DY
		} else if ball.Y+BallRadius >= ArenaHeight {
			ball.Y = ArenaHeight - BallRadius
			ball.DY = -ball.DY
		}

		if ball.DX < 0 && ball.X-BallRadius <= PaddleWidth && p.paddleBlocks(p.state.LeftPaddle, ball.Y) {
			ball.X = PaddleWidth + BallRadius
			p.bounce(SideLeft)
		} else if ball.DX > 0 && ball.X+BallRadius >= ArenaWidth-PaddleWidth && p.paddleBlocks(p.state.RightPaddle, ball.Y) {
			ball.X = ArenaWidth - PaddleWidth - BallRadius
			p.bounce(SideRight)
		}

		if ball.X < 0 {
			p.state.RightScore++
			p.serve(SideLeft)
			return
		}
		if ball.X > ArenaWidth {
			p.state.LeftScore++
			p.serve(SideRight)
			return
		}
	}
}

func (p *Pong) paddleBlocks(paddle Paddle, ballY float64) bool {
	return ballY >= paddle.Y && ballY <= paddle.Y+PaddleHeight
}

// bounce redirects the ball off the given side's paddle. The exit angle
// grows with the distance from the paddle center, up to maxBounceAngle,
// and each bounce speeds the ball up until it hits the cap.
func (p *Pong) bounce(side Side) {
	ball := &p.state.Ball
	paddle := p.state.LeftPaddle
	if side == SideRight {
		paddle = p.state.RightPaddle
	}

	offset := (ball.Y - (paddle.Y + PaddleHeight/2)) / (PaddleHeight / 2)
	offset = math.Max(-1, math.Min(1, offset))
	angle := offset * maxBounceAngle

	speed := math.Min(math.Hypot(ball.DX, ball.DY)*speedGrowth, MaxBallSpeed)
	ball.DX = math.Cos(angle) * speed
	if side == SideRight {
		ball.DX = -ball.DX
	}
	ball.DY = math.Sin(angle) * speed
}

// serve recenters the ball and both paddles, sending the ball toward the
// side that just conceded the point.
func (p *Pong) serve(toward Side) {
	dx := float64(ServeSpeed)
	if toward == SideLeft {
		dx = -dx
	}
	p.state.Ball = Ball{X: ArenaWidth / 2, Y: ArenaHeight / 2, DX: dx}
	p.state.LeftPaddle.Y = (ArenaHeight - PaddleHeight) / 2
	p.state.RightPaddle.Y = (ArenaHeight - PaddleHeight) / 2
}
