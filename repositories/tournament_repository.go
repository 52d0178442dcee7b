package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/42-Transcendence-2025/consegna-finale/models"
)

var (
	ErrTournamentNotFound       = errors.New("tournament not found")
	ErrTournamentPlayerConflict = errors.New("player already joined this tournament")
	ErrTournamentInvalidPlayer  = errors.New("invalid player reference")
)

type TournamentRepository interface {
	Create(ctx context.Context, exec SQLExecutor, t *models.Tournament) error
	GetByID(ctx context.Context, exec SQLExecutor, id int) (*models.Tournament, error)
	// GetByIDForUpdate locks the tournament row; exec must be a *sql.Tx.
	// Both the join/leave flows and the completion check serialize on it.
	GetByIDForUpdate(ctx context.Context, exec SQLExecutor, id int) (*models.Tournament, error)
	ListByStatus(ctx context.Context, exec SQLExecutor, status models.TournamentStatus) ([]models.Tournament, error)
	UpdateStatus(ctx context.Context, exec SQLExecutor, id int, status models.TournamentStatus) error
	SetFinished(ctx context.Context, exec SQLExecutor, id int, winnerName *string) error
	Delete(ctx context.Context, exec SQLExecutor, id int) error

	AddPlayer(ctx context.Context, exec SQLExecutor, tournamentID, playerID int) error
	RemovePlayer(ctx context.Context, exec SQLExecutor, tournamentID, playerID int) error
	// ListPlayers returns the entrants in join order; their index is the
	// bracket leaf slot.
	ListPlayers(ctx context.Context, exec SQLExecutor, tournamentID int) ([]models.PongUser, error)
}

type postgresTournamentRepository struct {
	db *sql.DB
}

func NewPostgresTournamentRepository(db *sql.DB) TournamentRepository {
	return &postgresTournamentRepository{db: db}
}

func (r *postgresTournamentRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

func (r *postgresTournamentRepository) Create(ctx context.Context, exec SQLExecutor, t *models.Tournament) error {
	query := `
		INSERT INTO tournaments (name, status, winner_name)
		VALUES ($1, $2, $3)
		RETURNING id, created_at`

	err := r.getExecutor(exec).QueryRowContext(ctx, query, t.Name, t.Status, t.WinnerName).
		Scan(&t.ID, &t.CreatedAt)
	return r.handleTournamentError(err)
}

func (r *postgresTournamentRepository) GetByID(ctx context.Context, exec SQLExecutor, id int) (*models.Tournament, error) {
	return r.getByID(ctx, exec, id, false)
}

func (r *postgresTournamentRepository) GetByIDForUpdate(ctx context.Context, exec SQLExecutor, id int) (*models.Tournament, error) {
	return r.getByID(ctx, exec, id, true)
}

func (r *postgresTournamentRepository) getByID(ctx context.Context, exec SQLExecutor, id int, forUpdate bool) (*models.Tournament, error) {
	query := `SELECT id, name, status, winner_name, created_at FROM tournaments WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	t := &models.Tournament{}
	err := r.getExecutor(exec).QueryRowContext(ctx, query, id).Scan(
		&t.ID, &t.Name, &t.Status, &t.WinnerName, &t.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTournamentNotFound
		}
		return nil, err
	}
	return t, nil
}

func (r *postgresTournamentRepository) ListByStatus(ctx context.Context, exec SQLExecutor, status models.TournamentStatus) ([]models.Tournament, error) {
	query := `
		SELECT id, name, status, winner_name, created_at
		FROM tournaments
		WHERE status = $1
		ORDER BY created_at`

	rows, err := r.getExecutor(exec).QueryContext(ctx, query, status)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tournaments := make([]models.Tournament, 0)
	for rows.Next() {
		var t models.Tournament
		if err := rows.Scan(&t.ID, &t.Name, &t.Status, &t.WinnerName, &t.CreatedAt); err != nil {
			return nil, err
		}
		tournaments = append(tournaments, t)
	}
	return tournaments, rows.Err()
}

func (r *postgresTournamentRepository) UpdateStatus(ctx context.Context, exec SQLExecutor, id int, status models.TournamentStatus) error {
	query := `UPDATE tournaments SET status = $1 WHERE id = $2`

	result, err := r.getExecutor(exec).ExecContext(ctx, query, status, id)
	if err != nil {
		return r.handleTournamentError(err)
	}
	return checkAffectedRows(result, ErrTournamentNotFound)
}

func (r *postgresTournamentRepository) SetFinished(ctx context.Context, exec SQLExecutor, id int, winnerName *string) error {
	query := `UPDATE tournaments SET status = $1, winner_name = $2 WHERE id = $3`

	result, err := r.getExecutor(exec).ExecContext(ctx, query, models.TournamentStatusFinished, winnerName, id)
	if err != nil {
		return r.handleTournamentError(err)
	}
	return checkAffectedRows(result, ErrTournamentNotFound)
}

func (r *postgresTournamentRepository) Delete(ctx context.Context, exec SQLExecutor, id int) error {
	query := `DELETE FROM tournaments WHERE id = $1`

	result, err := r.getExecutor(exec).ExecContext(ctx, query, id)
	if err != nil {
		return r.handleTournamentError(err)
	}
	return checkAffectedRows(result, ErrTournamentNotFound)
}

func (r *postgresTournamentRepository) AddPlayer(ctx context.Context, exec SQLExecutor, tournamentID, playerID int) error {
	query := `INSERT INTO tournament_players (tournament_id, player_id) VALUES ($1, $2)`

	_, err := r.getExecutor(exec).ExecContext(ctx, query, tournamentID, playerID)
	return r.handleTournamentError(err)
}

func (r *postgresTournamentRepository) RemovePlayer(ctx context.Context, exec SQLExecutor, tournamentID, playerID int) error {
	query := `DELETE FROM tournament_players WHERE tournament_id = $1 AND player_id = $2`

	result, err := r.getExecutor(exec).ExecContext(ctx, query, tournamentID, playerID)
	if err != nil {
		return r.handleTournamentError(err)
	}
	return checkAffectedRows(result, ErrUserNotFound)
}

func (r *postgresTournamentRepository) ListPlayers(ctx context.Context, exec SQLExecutor, tournamentID int) ([]models.PongUser, error) {
	query := `
		SELECT u.id, u.username, u.trophies, u.created_at
		FROM tournament_players tp
		JOIN pong_users u ON u.id = tp.player_id
		WHERE tp.tournament_id = $1
		ORDER BY tp.joined_at, u.id`

	rows, err := r.getExecutor(exec).QueryContext(ctx, query, tournamentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	players := make([]models.PongUser, 0, models.TournamentCapacity)
	for rows.Next() {
		var u models.PongUser
		if err := rows.Scan(&u.ID, &u.Username, &u.Trophies, &u.CreatedAt); err != nil {
			return nil, err
		}
		players = append(players, u)
	}
	return players, rows.Err()
}

func (r *postgresTournamentRepository) handleTournamentError(err error) error {
	if err == nil {
		return nil
	}
	if pqErr, ok := err.(*pq.Error); ok {
		switch pqErr.Code {
		case "23505":
			if pqErr.Constraint == "tournament_players_pkey" {
				return ErrTournamentPlayerConflict
			}
		case "23503":
			switch pqErr.Constraint {
			case "tournament_players_tournament_id_fkey":
				return ErrTournamentNotFound
			case "tournament_players_player_id_fkey":
				return ErrTournamentInvalidPlayer
			default:
				return fmt.Errorf("foreign key violation: %s", pqErr.Constraint)
			}
		}
	}
	return err
}
