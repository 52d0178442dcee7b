package game

import (
	"log/slog"
	"sync"
)

// Registry holds the live sessions of this process, keyed by game id.
// A session removes itself when its goroutine exits, so a later
// connection for the same game id gets a fresh one (admission against
// the stored match status decides whether that is allowed).
type Registry struct {
	recorder MatchRecorder
	logger   *slog.Logger
	cfg      Config

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewRegistry(recorder MatchRecorder, logger *slog.Logger, cfg Config) *Registry {
	return &Registry{
		recorder: recorder,
		logger:   logger,
		cfg:      cfg,
		sessions: make(map[string]*Session),
	}
}

// GetOrCreate returns the session for the game id, starting one when the
// first player connects.
func (r *Registry) GetOrCreate(gameID string, matchID int, left, right PlayerInfo) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sessions[gameID]; ok {
		return s
	}

	s := newSession(gameID, matchID, left, right, r.recorder, r.logger, r.cfg)
	s.onStop = func() { r.remove(gameID, s) }
	r.sessions[gameID] = s
	go s.run()

	r.logger.Info("game session created",
		slog.String("game_id", gameID), slog.Int("match_id", matchID))
	return s
}

func (r *Registry) remove(gameID string, s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sessions[gameID] == s {
		delete(r.sessions, gameID)
	}
}
