package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/42-Transcendence-2025/consegna-finale/cache"
	"github.com/42-Transcendence-2025/consegna-finale/models"
	"github.com/42-Transcendence-2025/consegna-finale/repositories"
)

// RankedQueue is the ranked-pool face of the cache: the waiting list plus
// the per-player result mailboxes.
type RankedQueue interface {
	PushRanked(ctx context.Context, entry *models.RankedQueueEntry) error
	SnapshotRanked(ctx context.Context) ([]models.RankedQueueEntry, error)
	RemoveRanked(ctx context.Context, entry *models.RankedQueueEntry) (bool, error)
	RemoveRankedByUsername(ctx context.Context, username string) (bool, error)
	PublishRankedMatch(ctx context.Context, username, gameID string) error
	TakeRankedMatch(ctx context.Context, username string) (string, error)
}

type RankedService interface {
	JoinQueue(ctx context.Context, username string) error
	LeaveQueue(ctx context.Context, username string) error
	// Poll consumes the caller's mailbox; ErrNoMatchReady until the
	// matcher pairs them.
	Poll(ctx context.Context, username string) (string, error)
	// Run drives the matcher loop until ctx ends. A second concurrent
	// call returns ErrMatcherAlreadyRunning without starting anything.
	Run(ctx context.Context) error
}

const (
	matcherInterval = time.Second
	matcherBackoff  = 5 * time.Second
)

type rankedService struct {
	userRepo  repositories.UserRepository
	matchRepo repositories.MatchRepository
	queue     RankedQueue
	gameIndex GameIndex
	logger    *slog.Logger

	running atomic.Bool
	now     func() time.Time
}

func NewRankedService(
	userRepo repositories.UserRepository,
	matchRepo repositories.MatchRepository,
	queue RankedQueue,
	gameIndex GameIndex,
	logger *slog.Logger,
) RankedService {
	return &rankedService{
		userRepo:  userRepo,
		matchRepo: matchRepo,
		queue:     queue,
		gameIndex: gameIndex,
		logger:    logger,
		now:       time.Now,
	}
}

func (s *rankedService) JoinQueue(ctx context.Context, username string) error {
	user, err := s.userRepo.GetByUsername(ctx, nil, username)
	if err != nil {
		if errors.Is(err, repositories.ErrUserNotFound) {
			return ErrUserNotFound
		}
		return err
	}

	entries, err := s.queue.SnapshotRanked(ctx)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.Username == username {
			return ErrAlreadyQueued
		}
	}

	return s.queue.PushRanked(ctx, &models.RankedQueueEntry{
		Username:  user.Username,
		Trophies:  user.Trophies,
		Timestamp: s.now(),
	})
}

func (s *rankedService) LeaveQueue(ctx context.Context, username string) error {
	_, err := s.queue.RemoveRankedByUsername(ctx, username)
	return err
}

func (s *rankedService) Poll(ctx context.Context, username string) (string, error) {
	gameID, err := s.queue.TakeRankedMatch(ctx, username)
	if err != nil {
		if errors.Is(err, cache.ErrNotFound) {
			return "", ErrNoMatchReady
		}
		return "", err
	}
	return gameID, nil
}

func (s *rankedService) Run(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return ErrMatcherAlreadyRunning
	}
	defer s.running.Store(false)

	s.logger.Info("ranked matcher started")
	ticker := time.NewTicker(matcherInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("ranked matcher stopped")
			return ctx.Err()
		case <-ticker.C:
			if err := s.cycle(ctx); err != nil {
				// A bad cycle never kills the loop.
				s.logger.Error("ranked matcher cycle failed", slog.Any("error", err))
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(matcherBackoff):
				}
			}
		}
	}
}

// tolerance is the acceptable trophy gap for an entry, widening by 5
// every 10 seconds of waiting.
func tolerance(elapsed time.Duration) int {
	return (int(elapsed.Seconds())/10 + 1) * 5
}

// compatible pairs two entries when their trophy gap fits in either
// side's widened tolerance.
func compatible(now time.Time, a, b models.RankedQueueEntry) bool {
	gap := a.Trophies - b.Trophies
	if gap < 0 {
		gap = -gap
	}
	return gap <= max(tolerance(now.Sub(a.Timestamp)), tolerance(now.Sub(b.Timestamp)))
}

// cycle pairs as many waiting players as it can: first fit in arrival
// order, one pass per tick.
func (s *rankedService) cycle(ctx context.Context) error {
	entries, err := s.queue.SnapshotRanked(ctx)
	if err != nil {
		return fmt.Errorf("failed to snapshot ranked pool: %w", err)
	}

	now := s.now()
	matched := make([]bool, len(entries))
	for i := range entries {
		if matched[i] {
			continue
		}
		for j := i + 1; j < len(entries); j++ {
			if matched[j] || !compatible(now, entries[i], entries[j]) {
				continue
			}
			paired, err := s.pair(ctx, entries[i], entries[j])
			if err != nil {
				return err
			}
			if paired {
				matched[i], matched[j] = true, true
				break
			}
			// One of the two left the queue meanwhile; keep scanning.
		}
	}
	return nil
}

// pair removes both entries from the pool, creates the match and posts
// the game id to each player's mailbox. The removals double as a claim:
// an entry already gone means the player cancelled, and the pairing is
// called off.
func (s *rankedService) pair(ctx context.Context, a, b models.RankedQueueEntry) (bool, error) {
	removedA, err := s.queue.RemoveRanked(ctx, &a)
	if err != nil {
		return false, err
	}
	if !removedA {
		return false, nil
	}
	removedB, err := s.queue.RemoveRanked(ctx, &b)
	if err != nil {
		return false, err
	}
	if !removedB {
		if err := s.queue.PushRanked(ctx, &a); err != nil {
			return false, fmt.Errorf("failed to requeue %s: %w", a.Username, err)
		}
		return false, nil
	}

	playerA, err := s.userRepo.GetByUsername(ctx, nil, a.Username)
	if err != nil {
		return false, fmt.Errorf("failed to load %s: %w", a.Username, err)
	}
	playerB, err := s.userRepo.GetByUsername(ctx, nil, b.Username)
	if err != nil {
		return false, fmt.Errorf("failed to load %s: %w", b.Username, err)
	}

	match := &models.Match{
		Player1ID: &playerA.ID,
		Player2ID: &playerB.ID,
		Status:    models.MatchStatusCreated,
	}
	if err := s.matchRepo.Create(ctx, nil, match); err != nil {
		return false, fmt.Errorf("failed to create ranked match: %w", err)
	}

	gameID := uuid.NewString()
	if err := s.gameIndex.SetMatchForGame(ctx, gameID, match.ID); err != nil {
		return false, fmt.Errorf("failed to index game %s: %w", gameID, err)
	}
	if err := s.queue.PublishRankedMatch(ctx, a.Username, gameID); err != nil {
		return false, err
	}
	if err := s.queue.PublishRankedMatch(ctx, b.Username, gameID); err != nil {
		return false, err
	}

	s.logger.Info("ranked players paired",
		slog.String("game_id", gameID),
		slog.Int("match_id", match.ID),
		slog.String("player_1", a.Username),
		slog.String("player_2", b.Username),
		slog.Int("trophy_gap", abs(playerA.Trophies-playerB.Trophies)))
	return true, nil
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
