package services

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/42-Transcendence-2025/consegna-finale/cache"
	"github.com/42-Transcendence-2025/consegna-finale/models"
	"github.com/42-Transcendence-2025/consegna-finale/repositories"
)

// passthroughRunner executes the callback without a real transaction.
type passthroughRunner struct{}

func (passthroughRunner) RunInTx(_ context.Context, fn func(exec repositories.SQLExecutor) error) error {
	return fn(nil)
}

type fakeUserRepo struct {
	mu    sync.Mutex
	users map[int]*models.PongUser
}

func newFakeUserRepo(users ...*models.PongUser) *fakeUserRepo {
	r := &fakeUserRepo{users: make(map[int]*models.PongUser)}
	for _, u := range users {
		copied := *u
		r.users[u.ID] = &copied
	}
	return r
}

func (r *fakeUserRepo) GetByID(_ context.Context, _ repositories.SQLExecutor, id int) (*models.PongUser, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, repositories.ErrUserNotFound
	}
	copied := *u
	return &copied, nil
}

func (r *fakeUserRepo) GetByUsername(_ context.Context, _ repositories.SQLExecutor, username string) (*models.PongUser, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Username == username {
			copied := *u
			return &copied, nil
		}
	}
	return nil, repositories.ErrUserNotFound
}

func (r *fakeUserRepo) AdjustTrophies(_ context.Context, _ repositories.SQLExecutor, id int, delta int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return repositories.ErrUserNotFound
	}
	u.Trophies += delta
	if u.Trophies < 0 {
		u.Trophies = 0
	}
	return nil
}

func (r *fakeUserRepo) trophies(id int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.users[id].Trophies
}

type fakeMatchRepo struct {
	mu      sync.Mutex
	nextID  int
	matches map[int]*models.Match
}

func newFakeMatchRepo() *fakeMatchRepo {
	return &fakeMatchRepo{matches: make(map[int]*models.Match)}
}

func (r *fakeMatchRepo) Create(_ context.Context, _ repositories.SQLExecutor, m *models.Match) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m.TournamentID != nil && m.MatchNumber != nil {
		for _, existing := range r.matches {
			if existing.TournamentID != nil && *existing.TournamentID == *m.TournamentID &&
				existing.MatchNumber != nil && *existing.MatchNumber == *m.MatchNumber {
				return repositories.ErrMatchNumberConflict
			}
		}
	}
	r.nextID++
	m.ID = r.nextID
	m.CreatedAt = time.Now()
	copied := *m
	r.matches[m.ID] = &copied
	return nil
}

func (r *fakeMatchRepo) GetByID(_ context.Context, _ repositories.SQLExecutor, id int) (*models.Match, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.matches[id]
	if !ok {
		return nil, repositories.ErrMatchNotFound
	}
	copied := *m
	return &copied, nil
}

func (r *fakeMatchRepo) GetByIDForUpdate(ctx context.Context, exec repositories.SQLExecutor, id int) (*models.Match, error) {
	return r.GetByID(ctx, exec, id)
}

func (r *fakeMatchRepo) ListByTournament(_ context.Context, _ repositories.SQLExecutor, tournamentID int) ([]models.Match, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.Match, 0)
	for _, m := range r.matches {
		if m.TournamentID != nil && *m.TournamentID == tournamentID {
			out = append(out, *m)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return *out[i].MatchNumber < *out[j].MatchNumber
	})
	return out, nil
}

func (r *fakeMatchRepo) UpdateStatus(_ context.Context, _ repositories.SQLExecutor, id int, status models.MatchStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.matches[id]
	if !ok {
		return repositories.ErrMatchNotFound
	}
	m.Status = status
	return nil
}

func (r *fakeMatchRepo) Finish(_ context.Context, _ repositories.SQLExecutor, m *models.Match) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.matches[m.ID]
	if !ok {
		return repositories.ErrMatchNotFound
	}
	stored.Status = m.Status
	stored.PointsPlayer1 = m.PointsPlayer1
	stored.PointsPlayer2 = m.PointsPlayer2
	stored.WinnerID = m.WinnerID
	stored.LoserID = m.LoserID
	return nil
}

func (r *fakeMatchRepo) get(id int) models.Match {
	r.mu.Lock()
	defer r.mu.Unlock()
	return *r.matches[id]
}

func (r *fakeMatchRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.matches)
}

// seed inserts a row bypassing the uniqueness checks.
func (r *fakeMatchRepo) seed(m models.Match) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	m.ID = r.nextID
	r.matches[m.ID] = &m
	return m.ID
}

type fakeTournamentRepo struct {
	mu          sync.Mutex
	nextID      int
	tournaments map[int]*models.Tournament
	players     map[int][]int // join order
	userRepo    *fakeUserRepo
}

func newFakeTournamentRepo(userRepo *fakeUserRepo) *fakeTournamentRepo {
	return &fakeTournamentRepo{
		tournaments: make(map[int]*models.Tournament),
		players:     make(map[int][]int),
		userRepo:    userRepo,
	}
}

func (r *fakeTournamentRepo) Create(_ context.Context, _ repositories.SQLExecutor, t *models.Tournament) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	t.ID = r.nextID
	t.CreatedAt = time.Now()
	copied := *t
	r.tournaments[t.ID] = &copied
	return nil
}

func (r *fakeTournamentRepo) GetByID(_ context.Context, _ repositories.SQLExecutor, id int) (*models.Tournament, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tournaments[id]
	if !ok {
		return nil, repositories.ErrTournamentNotFound
	}
	copied := *t
	return &copied, nil
}

func (r *fakeTournamentRepo) GetByIDForUpdate(ctx context.Context, exec repositories.SQLExecutor, id int) (*models.Tournament, error) {
	return r.GetByID(ctx, exec, id)
}

func (r *fakeTournamentRepo) ListByStatus(_ context.Context, _ repositories.SQLExecutor, status models.TournamentStatus) ([]models.Tournament, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.Tournament, 0)
	for _, t := range r.tournaments {
		if t.Status == status {
			out = append(out, *t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *fakeTournamentRepo) UpdateStatus(_ context.Context, _ repositories.SQLExecutor, id int, status models.TournamentStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tournaments[id]
	if !ok {
		return repositories.ErrTournamentNotFound
	}
	t.Status = status
	return nil
}

func (r *fakeTournamentRepo) SetFinished(_ context.Context, _ repositories.SQLExecutor, id int, winnerName *string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tournaments[id]
	if !ok {
		return repositories.ErrTournamentNotFound
	}
	t.Status = models.TournamentStatusFinished
	t.WinnerName = winnerName
	return nil
}

func (r *fakeTournamentRepo) Delete(_ context.Context, _ repositories.SQLExecutor, id int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tournaments[id]; !ok {
		return repositories.ErrTournamentNotFound
	}
	delete(r.tournaments, id)
	delete(r.players, id)
	return nil
}

func (r *fakeTournamentRepo) AddPlayer(_ context.Context, _ repositories.SQLExecutor, tournamentID, playerID int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tournaments[tournamentID]; !ok {
		return repositories.ErrTournamentNotFound
	}
	for _, id := range r.players[tournamentID] {
		if id == playerID {
			return repositories.ErrTournamentPlayerConflict
		}
	}
	r.players[tournamentID] = append(r.players[tournamentID], playerID)
	return nil
}

func (r *fakeTournamentRepo) RemovePlayer(_ context.Context, _ repositories.SQLExecutor, tournamentID, playerID int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := r.players[tournamentID]
	for i, id := range ids {
		if id == playerID {
			r.players[tournamentID] = append(ids[:i:i], ids[i+1:]...)
			return nil
		}
	}
	return repositories.ErrUserNotFound
}

func (r *fakeTournamentRepo) ListPlayers(ctx context.Context, exec repositories.SQLExecutor, tournamentID int) ([]models.PongUser, error) {
	r.mu.Lock()
	ids := append([]int(nil), r.players[tournamentID]...)
	r.mu.Unlock()

	out := make([]models.PongUser, 0, len(ids))
	for _, id := range ids {
		u, err := r.userRepo.GetByID(ctx, exec, id)
		if err != nil {
			return nil, err
		}
		out = append(out, *u)
	}
	return out, nil
}

// fakeCache implements TicketStore, GameIndex and RankedQueue in memory.
type fakeCache struct {
	mu      sync.Mutex
	tickets map[string]models.PairingTicket
	index   map[string]int
	pool    []models.RankedQueueEntry
	mail    map[string]string
}

func newFakeCache() *fakeCache {
	return &fakeCache{
		tickets: make(map[string]models.PairingTicket),
		index:   make(map[string]int),
		mail:    make(map[string]string),
	}
}

func (c *fakeCache) GetTicket(_ context.Context, key string) (*models.PairingTicket, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.tickets[key]
	if !ok {
		return nil, cache.ErrNotFound
	}
	copied := t
	return &copied, nil
}

func (c *fakeCache) SetTicket(_ context.Context, key string, ticket *models.PairingTicket, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tickets[key] = *ticket
	return nil
}

func (c *fakeCache) DeleteTicket(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.tickets, key)
	return nil
}

func (c *fakeCache) hasTicket(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.tickets[key]
	return ok
}

func (c *fakeCache) SetMatchForGame(_ context.Context, gameID string, matchID int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.index[gameID] = matchID
	return nil
}

func (c *fakeCache) MatchForGame(_ context.Context, gameID string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id, ok := c.index[gameID]
	if !ok {
		return 0, cache.ErrNotFound
	}
	return id, nil
}

func (c *fakeCache) PushRanked(_ context.Context, entry *models.RankedQueueEntry) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pool = append(c.pool, *entry)
	return nil
}

func (c *fakeCache) SnapshotRanked(_ context.Context) ([]models.RankedQueueEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]models.RankedQueueEntry(nil), c.pool...), nil
}

func (c *fakeCache) RemoveRanked(_ context.Context, entry *models.RankedQueueEntry) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, e := range c.pool {
		if e.Username == entry.Username && e.Trophies == entry.Trophies && e.Timestamp.Equal(entry.Timestamp) {
			c.pool = append(c.pool[:i:i], c.pool[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (c *fakeCache) RemoveRankedByUsername(_ context.Context, username string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	removed := false
	kept := c.pool[:0]
	for _, e := range c.pool {
		if e.Username == username {
			removed = true
			continue
		}
		kept = append(kept, e)
	}
	c.pool = kept
	return removed, nil
}

func (c *fakeCache) PublishRankedMatch(_ context.Context, username, gameID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mail[username] = gameID
	return nil
}

func (c *fakeCache) TakeRankedMatch(_ context.Context, username string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	gameID, ok := c.mail[username]
	if !ok {
		return "", cache.ErrNotFound
	}
	delete(c.mail, username)
	return gameID, nil
}

func (c *fakeCache) poolUsernames() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.pool))
	for _, e := range c.pool {
		out = append(out, e.Username)
	}
	return out
}
