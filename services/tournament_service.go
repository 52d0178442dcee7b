package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/42-Transcendence-2025/consegna-finale/bracket"
	"github.com/42-Transcendence-2025/consegna-finale/models"
	"github.com/42-Transcendence-2025/consegna-finale/repositories"
)

// TournamentPlayerView is one entrant with their current bracket slot,
// nil once eliminated.
type TournamentPlayerView struct {
	Username string `json:"username"`
	Trophies int    `json:"trophies"`
	Slot     *int   `json:"slot"`
}

// TournamentMatchView is one of the seven bracket positions with player
// ids resolved to usernames.
type TournamentMatchView struct {
	MatchNumber   int                `json:"match_number"`
	Player1       *string            `json:"player_1"`
	Player2       *string            `json:"player_2"`
	Status        models.MatchStatus `json:"status,omitempty"`
	PointsPlayer1 *int               `json:"points_player_1"`
	PointsPlayer2 *int               `json:"points_player_2"`
	Winner        *string            `json:"winner"`
}

type TournamentDetail struct {
	ID         int                     `json:"id"`
	Name       *string                 `json:"name"`
	Status     models.TournamentStatus `json:"status"`
	WinnerName *string                 `json:"winner_name"`
	Players    []TournamentPlayerView  `json:"players"`
	Matches    []TournamentMatchView   `json:"matches"`
}

type TournamentService interface {
	// Create opens a tournament and joins the creator to it.
	Create(ctx context.Context, name, creatorUsername string) (*models.Tournament, error)
	// List returns the tournaments still accepting players, entrants
	// included.
	List(ctx context.Context) ([]models.Tournament, error)
	Detail(ctx context.Context, id int) (*TournamentDetail, error)
	Join(ctx context.Context, id int, username string) error
	// Leave withdraws the player; the last player leaving an unfilled
	// tournament deletes it entirely.
	Leave(ctx context.Context, id int, username string) error
}

type tournamentService struct {
	runner         TxRunner
	tournamentRepo repositories.TournamentRepository
	userRepo       repositories.UserRepository
	matchRepo      repositories.MatchRepository
	logger         *slog.Logger
}

func NewTournamentService(
	runner TxRunner,
	tournamentRepo repositories.TournamentRepository,
	userRepo repositories.UserRepository,
	matchRepo repositories.MatchRepository,
	logger *slog.Logger,
) TournamentService {
	return &tournamentService{
		runner:         runner,
		tournamentRepo: tournamentRepo,
		userRepo:       userRepo,
		matchRepo:      matchRepo,
		logger:         logger,
	}
}

func (s *tournamentService) Create(ctx context.Context, name, creatorUsername string) (*models.Tournament, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrTournamentNameRequired
	}
	creator, err := s.loadUser(ctx, creatorUsername)
	if err != nil {
		return nil, err
	}

	tournament := &models.Tournament{
		Name:   &name,
		Status: models.TournamentStatusCreated,
	}
	err = s.runner.RunInTx(ctx, func(exec repositories.SQLExecutor) error {
		if err := s.tournamentRepo.Create(ctx, exec, tournament); err != nil {
			return fmt.Errorf("failed to create tournament: %w", err)
		}
		return s.tournamentRepo.AddPlayer(ctx, exec, tournament.ID, creator.ID)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("tournament created",
		slog.Int("tournament_id", tournament.ID),
		slog.String("creator", creatorUsername))
	tournament.Players = []models.PongUser{*creator}
	return tournament, nil
}

func (s *tournamentService) List(ctx context.Context) ([]models.Tournament, error) {
	tournaments, err := s.tournamentRepo.ListByStatus(ctx, nil, models.TournamentStatusCreated)
	if err != nil {
		return nil, err
	}
	for i := range tournaments {
		players, err := s.tournamentRepo.ListPlayers(ctx, nil, tournaments[i].ID)
		if err != nil {
			return nil, err
		}
		tournaments[i].Players = players
	}
	return tournaments, nil
}

func (s *tournamentService) Detail(ctx context.Context, id int) (*TournamentDetail, error) {
	tournament, err := s.tournamentRepo.GetByID(ctx, nil, id)
	if err != nil {
		if errors.Is(err, repositories.ErrTournamentNotFound) {
			return nil, ErrTournamentNotFound
		}
		return nil, err
	}
	players, err := s.tournamentRepo.ListPlayers(ctx, nil, id)
	if err != nil {
		return nil, err
	}
	matches, err := s.matchRepo.ListByTournament(ctx, nil, id)
	if err != nil {
		return nil, err
	}

	playerIDs := make([]int, len(players))
	names := make(map[int]string, len(players))
	for i, p := range players {
		playerIDs[i] = p.ID
		names[p.ID] = p.Username
	}
	slots := bracket.Slots(playerIDs, matches)

	detail := &TournamentDetail{
		ID:         tournament.ID,
		Name:       tournament.Name,
		Status:     tournament.Status,
		WinnerName: tournament.WinnerName,
		Players:    make([]TournamentPlayerView, 0, len(players)),
		Matches:    make([]TournamentMatchView, 0, models.TournamentMatchCount),
	}
	for _, p := range players {
		view := TournamentPlayerView{Username: p.Username, Trophies: p.Trophies}
		if slot, ok := slots[p.ID]; ok {
			s := slot
			view.Slot = &s
		}
		detail.Players = append(detail.Players, view)
	}
	for _, v := range bracket.MatchViews(playerIDs, matches) {
		detail.Matches = append(detail.Matches, TournamentMatchView{
			MatchNumber:   v.MatchNumber,
			Player1:       usernameOf(names, v.Player1ID),
			Player2:       usernameOf(names, v.Player2ID),
			Status:        v.Status,
			PointsPlayer1: v.PointsPlayer1,
			PointsPlayer2: v.PointsPlayer2,
			Winner:        usernameOf(names, v.WinnerID),
		})
	}
	return detail, nil
}

func (s *tournamentService) Join(ctx context.Context, id int, username string) error {
	user, err := s.loadUser(ctx, username)
	if err != nil {
		return err
	}

	return s.runner.RunInTx(ctx, func(exec repositories.SQLExecutor) error {
		tournament, err := s.tournamentRepo.GetByIDForUpdate(ctx, exec, id)
		if err != nil {
			if errors.Is(err, repositories.ErrTournamentNotFound) {
				return ErrTournamentNotFound
			}
			return err
		}
		if tournament.Status != models.TournamentStatusCreated {
			return ErrTournamentNotJoinable
		}

		players, err := s.tournamentRepo.ListPlayers(ctx, exec, id)
		if err != nil {
			return err
		}
		if len(players) >= models.TournamentCapacity {
			return ErrTournamentFull
		}

		if err := s.tournamentRepo.AddPlayer(ctx, exec, id, user.ID); err != nil {
			if errors.Is(err, repositories.ErrTournamentPlayerConflict) {
				return ErrAlreadyInTournament
			}
			return err
		}

		if len(players)+1 == models.TournamentCapacity {
			s.logger.Info("tournament full", slog.Int("tournament_id", id))
			return s.tournamentRepo.UpdateStatus(ctx, exec, id, models.TournamentStatusFull)
		}
		return nil
	})
}

func (s *tournamentService) Leave(ctx context.Context, id int, username string) error {
	user, err := s.loadUser(ctx, username)
	if err != nil {
		return err
	}

	return s.runner.RunInTx(ctx, func(exec repositories.SQLExecutor) error {
		tournament, err := s.tournamentRepo.GetByIDForUpdate(ctx, exec, id)
		if err != nil {
			if errors.Is(err, repositories.ErrTournamentNotFound) {
				return ErrTournamentNotFound
			}
			return err
		}
		if tournament.Status != models.TournamentStatusCreated {
			return ErrTournamentNotJoinable
		}

		if err := s.tournamentRepo.RemovePlayer(ctx, exec, id, user.ID); err != nil {
			if errors.Is(err, repositories.ErrUserNotFound) {
				return ErrNotInTournament
			}
			return err
		}

		players, err := s.tournamentRepo.ListPlayers(ctx, exec, id)
		if err != nil {
			return err
		}
		if len(players) == 0 {
			s.logger.Info("last player left, deleting tournament", slog.Int("tournament_id", id))
			return s.tournamentRepo.Delete(ctx, exec, id)
		}
		return nil
	})
}

func (s *tournamentService) loadUser(ctx context.Context, username string) (*models.PongUser, error) {
	user, err := s.userRepo.GetByUsername(ctx, nil, username)
	if err != nil {
		if errors.Is(err, repositories.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return user, nil
}

func usernameOf(names map[int]string, id *int) *string {
	if id == nil {
		return nil
	}
	name, ok := names[*id]
	if !ok {
		return nil
	}
	return &name
}
