package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/42-Transcendence-2025/consegna-finale/bracket"
	"github.com/42-Transcendence-2025/consegna-finale/cache"
	"github.com/42-Transcendence-2025/consegna-finale/models"
	"github.com/42-Transcendence-2025/consegna-finale/repositories"
)

// TicketStore is the pairing-ticket face of the cache.
type TicketStore interface {
	GetTicket(ctx context.Context, key string) (*models.PairingTicket, error)
	SetTicket(ctx context.Context, key string, ticket *models.PairingTicket, ttl time.Duration) error
	DeleteTicket(ctx context.Context, key string) error
}

// GameIndex binds shared game identifiers to stored match rows.
type GameIndex interface {
	SetMatchForGame(ctx context.Context, gameID string, matchID int) error
	MatchForGame(ctx context.Context, gameID string) (int, error)
}

type MatchmakingService interface {
	// PairByPassword blocks until a second player presents the same
	// password, or the timeout expires.
	PairByPassword(ctx context.Context, username, password string) (string, error)
	// PlayTournamentMatch pairs the caller with their current bracket
	// opponent for the next pending match of the tournament.
	PlayTournamentMatch(ctx context.Context, tournamentID int, username string) (string, error)
}

type matchmakingService struct {
	userRepo       repositories.UserRepository
	matchRepo      repositories.MatchRepository
	tournamentRepo repositories.TournamentRepository
	tickets        TicketStore
	gameIndex      GameIndex
	waits          *waitRegistry
	timeout        time.Duration
	logger         *slog.Logger
}

func NewMatchmakingService(
	userRepo repositories.UserRepository,
	matchRepo repositories.MatchRepository,
	tournamentRepo repositories.TournamentRepository,
	tickets TicketStore,
	gameIndex GameIndex,
	timeout time.Duration,
	logger *slog.Logger,
) MatchmakingService {
	return &matchmakingService{
		userRepo:       userRepo,
		matchRepo:      matchRepo,
		tournamentRepo: tournamentRepo,
		tickets:        tickets,
		gameIndex:      gameIndex,
		waits:          newWaitRegistry(),
		timeout:        timeout,
		logger:         logger,
	}
}

func (s *matchmakingService) PairByPassword(ctx context.Context, username, password string) (string, error) {
	if password == "" {
		return "", ErrPasswordRequired
	}
	user, err := s.loadUser(ctx, username)
	if err != nil {
		return "", err
	}

	key := "password_" + password
	return s.rendezvous(ctx, key, user, func(ctx context.Context, holder *models.PongUser) (*models.Match, error) {
		// The ticket holder arrived first and becomes player one.
		match := &models.Match{
			Player1ID: &holder.ID,
			Player2ID: &user.ID,
			Status:    models.MatchStatusCreated,
		}
		if err := s.matchRepo.Create(ctx, nil, match); err != nil {
			return nil, fmt.Errorf("failed to create password match: %w", err)
		}
		return match, nil
	})
}

func (s *matchmakingService) PlayTournamentMatch(ctx context.Context, tournamentID int, username string) (string, error) {
	user, err := s.loadUser(ctx, username)
	if err != nil {
		return "", err
	}

	tournament, err := s.tournamentRepo.GetByID(ctx, nil, tournamentID)
	if err != nil {
		if errors.Is(err, repositories.ErrTournamentNotFound) {
			return "", ErrTournamentNotFound
		}
		return "", err
	}
	if tournament.Status != models.TournamentStatusFull {
		return "", ErrTournamentNotStarted
	}

	players, err := s.tournamentRepo.ListPlayers(ctx, nil, tournamentID)
	if err != nil {
		return "", err
	}
	matches, err := s.matchRepo.ListByTournament(ctx, nil, tournamentID)
	if err != nil {
		return "", err
	}

	playerIDs := make([]int, len(players))
	for i := range players {
		playerIDs[i] = players[i].ID
	}

	slot, alive := bracket.CurrentSlot(playerIDs, matches, user.ID)
	if !alive || slot == bracket.ChampionSlot {
		return "", ErrPlayerEliminated
	}
	matchNumber := bracket.MatchNumberForSlot(slot)

	key := fmt.Sprintf("tournament_%d_match_%d", tournamentID, matchNumber)
	return s.rendezvous(ctx, key, user, func(ctx context.Context, holder *models.PongUser) (*models.Match, error) {
		// Player one is whoever holds the lower slot of the pair, so the
		// stored row matches the bracket regardless of arrival order.
		lowSlot, _ := bracket.PairSlots(matchNumber)

		p1, p2 := holder.ID, user.ID
		if slot == lowSlot {
			p1, p2 = user.ID, holder.ID
		}
		match := &models.Match{
			TournamentID: &tournamentID,
			MatchNumber:  &matchNumber,
			Player1ID:    &p1,
			Player2ID:    &p2,
			Status:       models.MatchStatusCreated,
		}
		if err := s.matchRepo.Create(ctx, nil, match); err != nil {
			if errors.Is(err, repositories.ErrMatchNumberConflict) {
				return nil, ErrMatchAlreadyExists
			}
			return nil, fmt.Errorf("failed to create bracket match: %w", err)
		}
		return match, nil
	})
}

// rendezvous implements the two-player meeting point. The first arrival
// parks a ticket under key and blocks; the second consumes it, creates
// the match and wakes the first. A duplicate request from the ticket
// holder wakes other waiters and re-checks shortly instead of blocking
// on itself.
func (s *matchmakingService) rendezvous(
	ctx context.Context,
	key string,
	user *models.PongUser,
	createMatch func(context.Context, *models.PongUser) (*models.Match, error),
) (string, error) {
	wp := s.waits.acquire(key)
	defer s.waits.release(wp)

	deadline := time.Now().Add(s.timeout)
	var myGameID string

	for {
		wp.admit.Lock()
		ticket, err := s.tickets.GetTicket(ctx, key)

		selfRetry := false
		switch {
		case errors.Is(err, cache.ErrNotFound):
			if myGameID != "" {
				// Our ticket was consumed: the match exists.
				wp.admit.Unlock()
				return myGameID, nil
			}
			myGameID = uuid.NewString()
			parked := &models.PairingTicket{GameID: myGameID, Username: user.Username}
			if err := s.tickets.SetTicket(ctx, key, parked, s.timeout+time.Minute); err != nil {
				wp.admit.Unlock()
				return "", fmt.Errorf("failed to park pairing ticket: %w", err)
			}

		case err != nil:
			wp.admit.Unlock()
			return "", err

		case ticket.Username == user.Username:
			if myGameID == "" {
				selfRetry = true
			}
			myGameID = ticket.GameID

		default:
			if myGameID != "" && ticket.GameID != myGameID {
				// Ours was consumed and a fresh pairing already started.
				wp.admit.Unlock()
				return myGameID, nil
			}
			holder, err := s.loadUser(ctx, ticket.Username)
			if err != nil {
				wp.admit.Unlock()
				return "", err
			}
			match, err := createMatch(ctx, holder)
			if err != nil {
				wp.admit.Unlock()
				return "", err
			}
			if err := s.gameIndex.SetMatchForGame(ctx, ticket.GameID, match.ID); err != nil {
				wp.admit.Unlock()
				return "", fmt.Errorf("failed to index game %s: %w", ticket.GameID, err)
			}
			if err := s.tickets.DeleteTicket(ctx, key); err != nil {
				s.logger.Warn("failed to consume pairing ticket",
					slog.String("key", key), slog.Any("error", err))
			}
			wp.admit.Unlock()
			wp.wake()
			s.logger.Info("players paired",
				slog.String("game_id", ticket.GameID),
				slog.Int("match_id", match.ID),
				slog.String("player_1", ticket.Username),
				slog.String("player_2", user.Username))
			return ticket.GameID, nil
		}

		ch := wp.waitChan()
		wp.admit.Unlock()

		if selfRetry {
			wp.wake()
			ch = wp.waitChan()
		}

		wait := time.Until(deadline)
		if selfRetry && wait > time.Second {
			wait = time.Second
		}
		if wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-ch:
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				s.abandon(ctx, wp, key, myGameID)
				return "", ctx.Err()
			}
			timer.Stop()
		}
		if time.Now().Before(deadline) {
			continue
		}

		return s.resolveTimeout(ctx, wp, key, myGameID)
	}
}

// resolveTimeout decides the final outcome once the deadline passed: a
// consumed ticket means we were matched while waking up, otherwise the
// ticket is withdrawn and the pairing failed.
func (s *matchmakingService) resolveTimeout(ctx context.Context, wp *waitPoint, key, myGameID string) (string, error) {
	wp.admit.Lock()
	defer wp.admit.Unlock()

	ticket, err := s.tickets.GetTicket(ctx, key)
	if myGameID != "" {
		if errors.Is(err, cache.ErrNotFound) || (err == nil && ticket.GameID != myGameID) {
			return myGameID, nil
		}
	}
	if err == nil && myGameID != "" && ticket.GameID == myGameID {
		if err := s.tickets.DeleteTicket(ctx, key); err != nil {
			s.logger.Warn("failed to withdraw pairing ticket",
				slog.String("key", key), slog.Any("error", err))
		}
	}
	return "", ErrNoOpponentFound
}

// abandon withdraws our ticket, if it is still ours, when the caller's
// context ends mid-wait.
func (s *matchmakingService) abandon(ctx context.Context, wp *waitPoint, key, myGameID string) {
	if myGameID == "" {
		return
	}
	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()

	wp.admit.Lock()
	defer wp.admit.Unlock()
	ticket, err := s.tickets.GetTicket(cleanupCtx, key)
	if err == nil && ticket.GameID == myGameID {
		if err := s.tickets.DeleteTicket(cleanupCtx, key); err != nil {
			s.logger.Warn("failed to withdraw pairing ticket",
				slog.String("key", key), slog.Any("error", err))
		}
	}
}

func (s *matchmakingService) loadUser(ctx context.Context, username string) (*models.PongUser, error) {
	user, err := s.userRepo.GetByUsername(ctx, nil, username)
	if err != nil {
		if errors.Is(err, repositories.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return user, nil
}
