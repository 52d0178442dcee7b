// Package cache wraps the Redis structures shared by the matchmaking
// flows: pairing tickets, the game-to-match index, the ranked queue and
// the per-player ranked mailbox.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/42-Transcendence-2025/consegna-finale/models"
)

// ErrNotFound is returned when the requested key does not exist.
var ErrNotFound = errors.New("cache: key not found")

const (
	ticketKeyPrefix  = "game_id_"
	gameIndexPrefix  = "match_id_for_game_"
	rankedPoolKey    = "ranked_pool"
	rankedWaitPrefix = "ranked_wait_"

	gameIndexTTL  = time.Hour
	rankedWaitTTL = time.Minute
)

type Store struct {
	client *redis.Client
}

func New(client *redis.Client) *Store {
	return &Store{client: client}
}

// NewClient parses a redis:// URL, connects and verifies the connection.
func NewClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return client, nil
}

// --- pairing tickets ---

// GetTicket returns the ticket parked under the correlation key, or
// ErrNotFound when no first arrival is waiting there.
func (s *Store) GetTicket(ctx context.Context, key string) (*models.PairingTicket, error) {
	raw, err := s.client.Get(ctx, ticketKeyPrefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	var ticket models.PairingTicket
	if err := json.Unmarshal(raw, &ticket); err != nil {
		return nil, fmt.Errorf("corrupt pairing ticket for %q: %w", key, err)
	}
	return &ticket, nil
}

// SetTicket parks a ticket under the correlation key for ttl.
func (s *Store) SetTicket(ctx context.Context, key string, ticket *models.PairingTicket, ttl time.Duration) error {
	raw, err := json.Marshal(ticket)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, ticketKeyPrefix+key, raw, ttl).Err()
}

// DeleteTicket consumes the ticket so later arrivals start a fresh pairing.
func (s *Store) DeleteTicket(ctx context.Context, key string) error {
	return s.client.Del(ctx, ticketKeyPrefix+key).Err()
}

// --- game index ---

// SetMatchForGame binds a pairing game id to a stored match row.
func (s *Store) SetMatchForGame(ctx context.Context, gameID string, matchID int) error {
	return s.client.Set(ctx, gameIndexPrefix+gameID, matchID, gameIndexTTL).Err()
}

// MatchForGame resolves a game id to its match row id, or ErrNotFound.
func (s *Store) MatchForGame(ctx context.Context, gameID string) (int, error) {
	matchID, err := s.client.Get(ctx, gameIndexPrefix+gameID).Int()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, ErrNotFound
		}
		return 0, err
	}
	return matchID, nil
}

// --- ranked queue ---

// PushRanked appends the entry to the ranked waiting pool.
func (s *Store) PushRanked(ctx context.Context, entry *models.RankedQueueEntry) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return s.client.RPush(ctx, rankedPoolKey, raw).Err()
}

// SnapshotRanked returns the whole pool in arrival order. Corrupt
// elements are dropped rather than wedging the matcher loop.
func (s *Store) SnapshotRanked(ctx context.Context) ([]models.RankedQueueEntry, error) {
	raws, err := s.client.LRange(ctx, rankedPoolKey, 0, -1).Result()
	if err != nil {
		return nil, err
	}
	entries := make([]models.RankedQueueEntry, 0, len(raws))
	for _, raw := range raws {
		var e models.RankedQueueEntry
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			continue
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// RemoveRanked deletes the entry from the pool. It reports whether an
// element was actually removed, which makes the delete-then-notify
// handoff race-free when a player cancels concurrently.
func (s *Store) RemoveRanked(ctx context.Context, entry *models.RankedQueueEntry) (bool, error) {
	raw, err := json.Marshal(entry)
	if err != nil {
		return false, err
	}
	removed, err := s.client.LRem(ctx, rankedPoolKey, 1, raw).Result()
	if err != nil {
		return false, err
	}
	return removed > 0, nil
}

// RemoveRankedByUsername removes every pool entry for the given player,
// regardless of the trophies or timestamp recorded in it.
func (s *Store) RemoveRankedByUsername(ctx context.Context, username string) (bool, error) {
	raws, err := s.client.LRange(ctx, rankedPoolKey, 0, -1).Result()
	if err != nil {
		return false, err
	}
	removed := false
	for _, raw := range raws {
		var e models.RankedQueueEntry
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			continue
		}
		if e.Username != username {
			continue
		}
		n, err := s.client.LRem(ctx, rankedPoolKey, 1, raw).Result()
		if err != nil {
			return removed, err
		}
		if n > 0 {
			removed = true
		}
	}
	return removed, nil
}

// --- ranked mailbox ---

type rankedNotice struct {
	GameID string `json:"game_id"`
}

// PublishRankedMatch drops the paired game id into the player's mailbox.
func (s *Store) PublishRankedMatch(ctx context.Context, username, gameID string) error {
	raw, err := json.Marshal(rankedNotice{GameID: gameID})
	if err != nil {
		return err
	}
	return s.client.Set(ctx, rankedWaitPrefix+username, raw, rankedWaitTTL).Err()
}

// TakeRankedMatch consumes the player's mailbox, returning the paired
// game id or ErrNotFound when no match has been made yet.
func (s *Store) TakeRankedMatch(ctx context.Context, username string) (string, error) {
	key := rankedWaitPrefix + username
	raw, err := s.client.GetDel(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrNotFound
		}
		return "", err
	}
	var notice rankedNotice
	if err := json.Unmarshal(raw, &notice); err != nil {
		return "", fmt.Errorf("corrupt ranked notice for %q: %w", username, err)
	}
	return notice.GameID, nil
}
