package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/42-Transcendence-2025/consegna-finale/bracket"
	"github.com/42-Transcendence-2025/consegna-finale/cache"
	"github.com/42-Transcendence-2025/consegna-finale/game"
	"github.com/42-Transcendence-2025/consegna-finale/models"
	"github.com/42-Transcendence-2025/consegna-finale/repositories"
)

// TxRunner runs a function inside a database transaction. Implemented by
// db.Runner; tests substitute a passthrough.
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(exec repositories.SQLExecutor) error) error
}

// GameInfo is everything the websocket endpoint needs to admit a
// connection for a game id.
type GameInfo struct {
	Match   *models.Match
	Player1 *models.PongUser
	Player2 *models.PongUser
}

// MatchService persists match transitions for live sessions and resolves
// game ids for admission. It implements game.MatchRecorder.
type MatchService interface {
	game.MatchRecorder
	ResolveGame(ctx context.Context, gameID string) (*GameInfo, error)
}

const (
	trophiesWin      = 3
	trophiesLoss     = -3
	trophiesChampion = 10
)

type matchService struct {
	runner         TxRunner
	matchRepo      repositories.MatchRepository
	tournamentRepo repositories.TournamentRepository
	userRepo       repositories.UserRepository
	gameIndex      GameIndex
	logger         *slog.Logger
}

func NewMatchService(
	runner TxRunner,
	matchRepo repositories.MatchRepository,
	tournamentRepo repositories.TournamentRepository,
	userRepo repositories.UserRepository,
	gameIndex GameIndex,
	logger *slog.Logger,
) MatchService {
	return &matchService{
		runner:         runner,
		matchRepo:      matchRepo,
		tournamentRepo: tournamentRepo,
		userRepo:       userRepo,
		gameIndex:      gameIndex,
		logger:         logger,
	}
}

func (s *matchService) ResolveGame(ctx context.Context, gameID string) (*GameInfo, error) {
	matchID, err := s.gameIndex.MatchForGame(ctx, gameID)
	if err != nil {
		if errors.Is(err, cache.ErrNotFound) {
			return nil, ErrGameNotFound
		}
		return nil, err
	}
	match, err := s.matchRepo.GetByID(ctx, nil, matchID)
	if err != nil {
		if errors.Is(err, repositories.ErrMatchNotFound) {
			return nil, ErrGameNotFound
		}
		return nil, err
	}

	info := &GameInfo{Match: match}
	g, gctx := errgroup.WithContext(ctx)
	if match.Player1ID != nil {
		g.Go(func() error {
			var err error
			info.Player1, err = s.userRepo.GetByID(gctx, nil, *match.Player1ID)
			return err
		})
	}
	if match.Player2ID != nil {
		g.Go(func() error {
			var err error
			info.Player2, err = s.userRepo.GetByID(gctx, nil, *match.Player2ID)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to load players for match %d: %w", matchID, err)
	}
	return info, nil
}

// MatchStarted moves a created match to in_game. Any other current status
// leaves the row alone.
func (s *matchService) MatchStarted(ctx context.Context, matchID int) error {
	return s.runner.RunInTx(ctx, func(exec repositories.SQLExecutor) error {
		match, err := s.matchRepo.GetByIDForUpdate(ctx, exec, matchID)
		if err != nil {
			return err
		}
		if match.Status != models.MatchStatusCreated {
			return nil
		}
		return s.matchRepo.UpdateStatus(ctx, exec, matchID, models.MatchStatusInGame)
	})
}

// MatchFinished is the single terminal transition for a match: the row
// write, the trophy accounting and the tournament side effects happen in
// one transaction, under the match row lock. Re-entering a terminal
// state is a no-op, so two racing resolutions settle on one outcome.
func (s *matchService) MatchFinished(ctx context.Context, matchID int, outcome game.Outcome) error {
	return s.runner.RunInTx(ctx, func(exec repositories.SQLExecutor) error {
		match, err := s.matchRepo.GetByIDForUpdate(ctx, exec, matchID)
		if err != nil {
			return err
		}
		if match.Status.IsTerminal() {
			return nil
		}

		winnerID, loserID := resolveWinner(match, outcome)
		p1, p2 := outcome.LeftScore, outcome.RightScore
		match.Status = outcome.Status
		match.PointsPlayer1 = &p1
		match.PointsPlayer2 = &p2
		match.WinnerID = winnerID
		match.LoserID = loserID
		if err := s.matchRepo.Finish(ctx, exec, match); err != nil {
			return fmt.Errorf("failed to finish match %d: %w", matchID, err)
		}

		if outcome.Status != models.MatchStatusAborted {
			if err := s.awardMatchTrophies(ctx, exec, winnerID, loserID); err != nil {
				return err
			}
		}

		if match.TournamentID != nil {
			if err := s.applyTournamentEffects(ctx, exec, match); err != nil {
				return err
			}
		}

		s.logger.Info("match resolved",
			slog.Int("match_id", matchID),
			slog.String("status", string(outcome.Status)))
		return nil
	})
}

func resolveWinner(match *models.Match, outcome game.Outcome) (winnerID, loserID *int) {
	if outcome.Status == models.MatchStatusAborted {
		return nil, nil
	}
	if outcome.Winner == game.SideLeft {
		return match.Player1ID, match.Player2ID
	}
	return match.Player2ID, match.Player1ID
}

func (s *matchService) awardMatchTrophies(ctx context.Context, exec repositories.SQLExecutor, winnerID, loserID *int) error {
	if winnerID != nil {
		if err := s.userRepo.AdjustTrophies(ctx, exec, *winnerID, trophiesWin); err != nil {
			return err
		}
	}
	if loserID != nil {
		if err := s.userRepo.AdjustTrophies(ctx, exec, *loserID, trophiesLoss); err != nil {
			return err
		}
	}
	return nil
}

// applyTournamentEffects runs after a bracket match turned terminal:
// walkover propagation for aborts, then the completion check. Both work
// under the tournament row lock so two semifinals finishing at once
// cannot double-finish the tournament.
func (s *matchService) applyTournamentEffects(ctx context.Context, exec repositories.SQLExecutor, match *models.Match) error {
	tournamentID := *match.TournamentID
	tournament, err := s.tournamentRepo.GetByIDForUpdate(ctx, exec, tournamentID)
	if err != nil {
		return err
	}
	if tournament.Status == models.TournamentStatusFinished {
		return nil
	}

	matches, err := s.matchRepo.ListByTournament(ctx, exec, tournamentID)
	if err != nil {
		return err
	}

	if match.Status == models.MatchStatusAborted && match.MatchNumber != nil {
		matches, err = s.propagateWalkover(ctx, exec, tournamentID, *match.MatchNumber, matches)
		if err != nil {
			return err
		}
	}

	if !bracket.IsComplete(matches) {
		return nil
	}

	var winnerName *string
	if championID, ok := bracket.ChampionID(matches); ok {
		champion, err := s.userRepo.GetByID(ctx, exec, championID)
		if err != nil {
			return fmt.Errorf("failed to load champion %d: %w", championID, err)
		}
		winnerName = &champion.Username
		if err := s.userRepo.AdjustTrophies(ctx, exec, championID, trophiesChampion); err != nil {
			return err
		}
	}
	if err := s.tournamentRepo.SetFinished(ctx, exec, tournamentID, winnerName); err != nil {
		return err
	}
	s.logger.Info("tournament finished",
		slog.Int("tournament_id", tournamentID),
		slog.Any("winner", winnerName))
	return nil
}

// propagateWalkover advances the sibling winner of an aborted match into
// the next round as an already-decided walkover row. The advanced player
// collects the usual win award.
func (s *matchService) propagateWalkover(ctx context.Context, exec repositories.SQLExecutor, tournamentID, abortedNumber int, matches []models.Match) ([]models.Match, error) {
	winnerID, nextNumber, ok := bracket.WalkoverWinner(matches, abortedNumber)
	if !ok {
		return matches, nil
	}

	zero := 0
	walkover := &models.Match{
		TournamentID:  &tournamentID,
		MatchNumber:   &nextNumber,
		Player1ID:     &winnerID,
		Status:        models.MatchStatusFinishedWalkover,
		PointsPlayer1: &zero,
		PointsPlayer2: &zero,
		WinnerID:      &winnerID,
	}
	if err := s.matchRepo.Create(ctx, exec, walkover); err != nil {
		if errors.Is(err, repositories.ErrMatchNumberConflict) {
			// Someone else propagated first.
			return matches, nil
		}
		return matches, fmt.Errorf("failed to create walkover match %d: %w", nextNumber, err)
	}
	if err := s.userRepo.AdjustTrophies(ctx, exec, winnerID, trophiesWin); err != nil {
		return matches, err
	}

	s.logger.Info("walkover propagated",
		slog.Int("tournament_id", tournamentID),
		slog.Int("aborted_match", abortedNumber),
		slog.Int("next_match", nextNumber),
		slog.Int("winner_id", winnerID))
	return append(matches, *walkover), nil
}
