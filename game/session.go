package game

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/42-Transcendence-2025/consegna-finale/models"
)

// Outcome is the terminal result of a session, handed to the recorder
// before any client is notified.
type Outcome struct {
	Status     models.MatchStatus
	Winner     Side // meaningless when Status is aborted
	LeftScore  int
	RightScore int
}

// MatchRecorder persists match state transitions. The session calls it
// from its own goroutine; implementations decide transactional scope.
type MatchRecorder interface {
	MatchStarted(ctx context.Context, matchID int) error
	MatchFinished(ctx context.Context, matchID int, outcome Outcome) error
}

// PlayerInfo identifies one side of the match as stored on the row.
type PlayerInfo struct {
	Username string
	Trophies int
}

// Config tunes the session's timing. Zero values fall back to the
// production defaults; tests shrink them.
type Config struct {
	ReadyPoll    time.Duration
	ReadyWindow  time.Duration
	TickInterval time.Duration
	EmptyGrace   time.Duration
	RecordWait   time.Duration
}

func (c Config) withDefaults() Config {
	if c.ReadyPoll == 0 {
		c.ReadyPoll = 100 * time.Millisecond
	}
	if c.ReadyWindow == 0 {
		c.ReadyWindow = 60 * time.Second
	}
	if c.TickInterval == 0 {
		c.TickInterval = time.Second / 60
	}
	if c.EmptyGrace == 0 {
		c.EmptyGrace = 5 * time.Second
	}
	if c.RecordWait == 0 {
		c.RecordWait = 5 * time.Second
	}
	return c
}

// ErrSessionClosed is returned by Join once the session goroutine exited.
var ErrSessionClosed = errors.New("game session closed")

var errNotParticipant = errors.New("username is not a player of this match")

type eventKind int

const (
	eventJoin eventKind = iota
	eventLeave
	eventInput
)

type sessionEvent struct {
	kind   eventKind
	client *Client
	input  Input
	reply  chan error
}

// Session coordinates one live match. All state below the events channel
// is owned by the run goroutine; Join/Leave/HandleInput only enqueue.
type Session struct {
	GameID  string
	MatchID int

	left     PlayerInfo
	right    PlayerInfo
	recorder MatchRecorder
	logger   *slog.Logger
	cfg      Config

	events chan sessionEvent
	done   chan struct{}
	onStop func()

	clients   map[*Client]bool
	ready     [2]bool
	createdAt time.Time
}

func newSession(gameID string, matchID int, left, right PlayerInfo, recorder MatchRecorder, logger *slog.Logger, cfg Config) *Session {
	return &Session{
		GameID:    gameID,
		MatchID:   matchID,
		left:      left,
		right:     right,
		recorder:  recorder,
		logger:    logger.With(slog.String("game_id", gameID), slog.Int("match_id", matchID)),
		cfg:       cfg.withDefaults(),
		events:    make(chan sessionEvent, 64),
		done:      make(chan struct{}),
		clients:   make(map[*Client]bool),
		createdAt: time.Now(),
	}
}

// Join registers the client with the session and assigns its side. It
// blocks until the session goroutine processed the event.
func (s *Session) Join(c *Client) error {
	ev := sessionEvent{kind: eventJoin, client: c, reply: make(chan error, 1)}
	select {
	case s.events <- ev:
	case <-s.done:
		return ErrSessionClosed
	}
	select {
	case err := <-ev.reply:
		return err
	case <-s.done:
		return ErrSessionClosed
	}
}

// Leave unregisters the client. Safe to call after the session exited.
func (s *Session) Leave(c *Client) {
	select {
	case s.events <- sessionEvent{kind: eventLeave, client: c}:
	case <-s.done:
	}
}

// HandleInput forwards a decoded frame to the session goroutine.
func (s *Session) HandleInput(c *Client, input Input) {
	select {
	case s.events <- sessionEvent{kind: eventInput, client: c, input: input}:
	case <-s.done:
	}
}

// Done is closed when the session goroutine exits.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

func (s *Session) run() {
	defer func() {
		for c := range s.clients {
			s.drop(c)
		}
		close(s.done)
		if s.onStop != nil {
			s.onStop()
		}
	}()

	if !s.awaitReady() {
		return
	}
	s.play()
}

// awaitReady supervises the connect and readiness phases. It returns true
// when both players signalled ready in time; any other resolution writes
// the terminal row, notifies the clients and returns false. A false
// return with no terminal write happens only when everyone disconnected
// and the grace period expired.
func (s *Session) awaitReady() bool {
	poll := time.NewTicker(s.cfg.ReadyPoll)
	defer poll.Stop()
	deadline := time.NewTimer(time.Until(s.createdAt.Add(s.cfg.ReadyWindow)))
	defer deadline.Stop()

	grace := time.NewTimer(s.cfg.EmptyGrace)
	defer grace.Stop()

	var announced [2]bool
	updateSent := false

	for {
		select {
		case ev := <-s.events:
			s.handleLobbyEvent(ev, &updateSent)
			s.rearmGrace(grace)

		case <-grace.C:
			if len(s.clients) == 0 {
				s.logger.Info("session abandoned before readiness")
				return false
			}

		case <-poll.C:
			if s.ready != announced {
				s.broadcast(playersReadyMessage{
					Type:       "players_ready",
					LeftReady:  s.ready[SideLeft],
					RightReady: s.ready[SideRight],
				})
				announced = s.ready
			}
			if s.ready[SideLeft] && s.ready[SideRight] {
				s.start()
				return true
			}

		case <-deadline.C:
			switch {
			case s.ready[SideLeft] && s.ready[SideRight]:
				s.start()
				return true
			case s.ready[SideLeft] || s.ready[SideRight]:
				winner := SideLeft
				if s.ready[SideRight] {
					winner = SideRight
				}
				s.finish(Outcome{Status: models.MatchStatusFinishedWalkover, Winner: winner}, "finished_walkover")
			default:
				s.finish(Outcome{Status: models.MatchStatusAborted}, "aborted")
			}
			return false
		}
	}
}

// play runs the 60Hz loop until a terminal score or an empty client set.
func (s *Session) play() {
	pong := NewPong()
	tick := time.NewTicker(s.cfg.TickInterval)
	defer tick.Stop()

	grace := time.NewTimer(s.cfg.EmptyGrace)
	defer grace.Stop()
	s.rearmGrace(grace)

	for {
		select {
		case ev := <-s.events:
			switch ev.kind {
			case eventJoin:
				// Admission requires status created, so nobody can join a
				// running game.
				ev.reply <- ErrSessionClosed
			case eventLeave:
				s.drop(ev.client)
				s.rearmGrace(grace)
			case eventInput:
				if ev.input.Action == "move" {
					pong.MovePaddle(ev.client.side, ev.input.Direction)
				}
			}

		case <-grace.C:
			if len(s.clients) == 0 {
				s.logger.Warn("all players disconnected mid-game, leaving match in_game")
				return
			}

		case <-tick.C:
			pong.Step()
			if winner, over := pong.Finished(); over {
				state := pong.State()
				s.finish(Outcome{
					Status:     models.MatchStatusFinished,
					Winner:     winner,
					LeftScore:  state.LeftScore,
					RightScore: state.RightScore,
				}, "points")
				return
			}
			s.broadcast(stateMessage{Type: "game_state", State: pong.State()})
		}
	}
}

func (s *Session) handleLobbyEvent(ev sessionEvent, updateSent *bool) {
	switch ev.kind {
	case eventJoin:
		side, ok := s.sideOf(ev.client.Username)
		if !ok {
			ev.reply <- errNotParticipant
			return
		}
		// A reconnect replaces the previous connection for the same side.
		for existing := range s.clients {
			if existing.side == side {
				s.drop(existing)
			}
		}
		ev.client.side = side
		s.clients[ev.client] = true
		ev.reply <- nil

		s.send(ev.client, welcomeMessage{
			Message:    "Authentication successful. Welcome to the game!",
			PlayerSide: side.String(),
		})

		if !*updateSent && s.bothSidesConnected() {
			*updateSent = true
			s.broadcast(playersUpdateMessage{
				Type:                "players_update",
				LeftPlayer:          s.left.Username,
				LeftPlayerTrophies:  s.left.Trophies,
				RightPlayer:         s.right.Username,
				RightPlayerTrophies: s.right.Trophies,
			})
			s.broadcast(waitReadyMessage{
				Type:    "wait_ready",
				Message: "Waiting for players to be ready",
			})
		}

	case eventLeave:
		s.drop(ev.client)

	case eventInput:
		if ev.input.Action == "ready" {
			s.ready[ev.client.side] = true
		}
	}
}

// start transitions the stored match to in_game. A recorder failure is
// logged and the game plays on: the terminal write fixes the row anyway.
func (s *Session) start() {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.RecordWait)
	defer cancel()
	if err := s.recorder.MatchStarted(ctx, s.MatchID); err != nil {
		s.logger.Error("failed to mark match in_game", slog.Any("error", err))
	}
}

// finish persists the terminal outcome and only then tells the clients.
func (s *Session) finish(outcome Outcome, by string) {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.RecordWait)
	defer cancel()
	if err := s.recorder.MatchFinished(ctx, s.MatchID, outcome); err != nil {
		s.logger.Error("failed to record match outcome",
			slog.String("status", string(outcome.Status)), slog.Any("error", err))
	}

	msg := gameOverMessage{Type: "game_over", By: by}
	if outcome.Status != models.MatchStatusAborted {
		winner := s.player(outcome.Winner).Username
		msg.Winner = &winner
	}
	s.broadcast(msg)
}

func (s *Session) sideOf(username string) (Side, bool) {
	switch username {
	case s.left.Username:
		return SideLeft, true
	case s.right.Username:
		return SideRight, true
	}
	return 0, false
}

func (s *Session) player(side Side) PlayerInfo {
	if side == SideLeft {
		return s.left
	}
	return s.right
}

func (s *Session) bothSidesConnected() bool {
	var seen [2]bool
	for c := range s.clients {
		seen[c.side] = true
	}
	return seen[SideLeft] && seen[SideRight]
}

func (s *Session) rearmGrace(grace *time.Timer) {
	if len(s.clients) > 0 {
		return
	}
	if !grace.Stop() {
		select {
		case <-grace.C:
		default:
		}
	}
	grace.Reset(s.cfg.EmptyGrace)
}

// broadcast marshals once and fans out. A side whose buffer is full is
// dropped rather than stalling the loop.
func (s *Session) broadcast(msg interface{}) {
	raw, err := json.Marshal(msg)
	if err != nil {
		s.logger.Error("failed to marshal broadcast", slog.Any("error", err))
		return
	}
	for c := range s.clients {
		select {
		case c.Send <- raw:
		default:
			s.logger.Warn("client send buffer full, dropping connection",
				slog.String("username", c.Username))
			s.drop(c)
		}
	}
}

func (s *Session) send(c *Client, msg interface{}) {
	raw, err := json.Marshal(msg)
	if err != nil {
		return
	}
	select {
	case c.Send <- raw:
	default:
		s.drop(c)
	}
}

// drop removes the client and closes its Send channel, which makes the
// write pump send a close frame and hang up.
func (s *Session) drop(c *Client) {
	if !s.clients[c] {
		return
	}
	delete(s.clients, c)
	close(c.Send)
}

type welcomeMessage struct {
	Message    string `json:"message"`
	PlayerSide string `json:"player_side"`
}

type waitReadyMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type playersUpdateMessage struct {
	Type                string `json:"type"`
	LeftPlayer          string `json:"left_player"`
	LeftPlayerTrophies  int    `json:"left_player_trophies"`
	RightPlayer         string `json:"right_player"`
	RightPlayerTrophies int    `json:"right_player_trophies"`
}

type playersReadyMessage struct {
	Type       string `json:"type"`
	LeftReady  bool   `json:"left_ready"`
	RightReady bool   `json:"right_ready"`
}

type stateMessage struct {
	Type  string `json:"type"`
	State State  `json:"state"`
}

type gameOverMessage struct {
	Type   string  `json:"type"`
	By     string  `json:"by"`
	Winner *string `json:"winner"`
}
