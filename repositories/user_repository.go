package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/42-Transcendence-2025/consegna-finale/models"
)

var ErrUserNotFound = errors.New("user not found")

type UserRepository interface {
	GetByID(ctx context.Context, exec SQLExecutor, id int) (*models.PongUser, error)
	GetByUsername(ctx context.Context, exec SQLExecutor, username string) (*models.PongUser, error)
	// AdjustTrophies adds delta to the player's trophies, never letting the
	// total drop below zero.
	AdjustTrophies(ctx context.Context, exec SQLExecutor, id int, delta int) error
}

type postgresUserRepository struct {
	db *sql.DB
}

func NewPostgresUserRepository(db *sql.DB) UserRepository {
	return &postgresUserRepository{db: db}
}

func (r *postgresUserRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

func (r *postgresUserRepository) GetByID(ctx context.Context, exec SQLExecutor, id int) (*models.PongUser, error) {
	query := `SELECT id, username, trophies, created_at FROM pong_users WHERE id = $1`

	u := &models.PongUser{}
	err := r.getExecutor(exec).QueryRowContext(ctx, query, id).Scan(
		&u.ID, &u.Username, &u.Trophies, &u.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return u, nil
}

func (r *postgresUserRepository) GetByUsername(ctx context.Context, exec SQLExecutor, username string) (*models.PongUser, error) {
	query := `SELECT id, username, trophies, created_at FROM pong_users WHERE username = $1`

	u := &models.PongUser{}
	err := r.getExecutor(exec).QueryRowContext(ctx, query, username).Scan(
		&u.ID, &u.Username, &u.Trophies, &u.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return u, nil
}

func (r *postgresUserRepository) AdjustTrophies(ctx context.Context, exec SQLExecutor, id int, delta int) error {
	query := `UPDATE pong_users SET trophies = GREATEST(trophies + $1, 0) WHERE id = $2`

	result, err := r.getExecutor(exec).ExecContext(ctx, query, delta, id)
	if err != nil {
		return fmt.Errorf("failed to adjust trophies for user %d: %w", id, err)
	}
	return checkAffectedRows(result, ErrUserNotFound)
}
