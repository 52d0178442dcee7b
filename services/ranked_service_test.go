package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/42-Transcendence-2025/consegna-finale/models"
)

func newRankedFixture(users ...*models.PongUser) (*rankedService, *fakeMatchRepo, *fakeUserRepo, *fakeCache) {
	userRepo := newFakeUserRepo(users...)
	matchRepo := newFakeMatchRepo()
	store := newFakeCache()
	svc := NewRankedService(userRepo, matchRepo, store, store, discardLogger()).(*rankedService)
	return svc, matchRepo, userRepo, store
}

func TestTolerance(t *testing.T) {
	testCases := []struct {
		elapsed time.Duration
		want    int
	}{
		{0, 5},
		{9 * time.Second, 5},
		{10 * time.Second, 10},
		{15 * time.Second, 10},
		{25 * time.Second, 15},
		{59 * time.Second, 30},
	}
	for _, tc := range testCases {
		assert.Equal(t, tc.want, tolerance(tc.elapsed), "elapsed %s", tc.elapsed)
	}
}

func TestCompatibleUsesWidestTolerance(t *testing.T) {
	now := time.Now()
	fresh := models.RankedQueueEntry{Username: "a", Trophies: 100, Timestamp: now}
	rival := models.RankedQueueEntry{Username: "b", Trophies: 112, Timestamp: now}

	assert.False(t, compatible(now, fresh, rival), "gap 12 does not fit two fresh tolerances")

	// After 15 seconds one side tolerates 10... still not enough.
	rival.Timestamp = now.Add(-15 * time.Second)
	assert.False(t, compatible(now, fresh, rival))

	// After 25 seconds the waiting side tolerates 15.
	rival.Timestamp = now.Add(-25 * time.Second)
	assert.True(t, compatible(now, fresh, rival))
}

func TestJoinQueueRejectsDuplicate(t *testing.T) {
	svc, _, _, _ := newRankedFixture(&models.PongUser{ID: 1, Username: "alice", Trophies: 42})
	ctx := context.Background()

	require.NoError(t, svc.JoinQueue(ctx, "alice"))
	assert.ErrorIs(t, svc.JoinQueue(ctx, "alice"), ErrAlreadyQueued)

	require.NoError(t, svc.LeaveQueue(ctx, "alice"))
	assert.NoError(t, svc.JoinQueue(ctx, "alice"), "re-joining after leaving is fine")
}

func TestPollConsumesMailbox(t *testing.T) {
	svc, _, _, store := newRankedFixture(&models.PongUser{ID: 1, Username: "alice"})
	ctx := context.Background()

	_, err := svc.Poll(ctx, "alice")
	assert.ErrorIs(t, err, ErrNoMatchReady)

	require.NoError(t, store.PublishRankedMatch(ctx, "alice", "game-123"))
	gameID, err := svc.Poll(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "game-123", gameID)

	_, err = svc.Poll(ctx, "alice")
	assert.ErrorIs(t, err, ErrNoMatchReady, "the notice is consumed by the first poll")
}

func TestCyclePairsFirstFit(t *testing.T) {
	svc, matchRepo, _, store := newRankedFixture(
		&models.PongUser{ID: 1, Username: "alice", Trophies: 100},
		&models.PongUser{ID: 2, Username: "bob", Trophies: 104},
		&models.PongUser{ID: 3, Username: "carol", Trophies: 100},
	)
	ctx := context.Background()

	require.NoError(t, svc.JoinQueue(ctx, "alice"))
	require.NoError(t, svc.JoinQueue(ctx, "bob"))
	require.NoError(t, svc.JoinQueue(ctx, "carol"))

	require.NoError(t, svc.cycle(ctx))

	// First fit: alice pairs with bob even though carol is the closer match.
	require.Equal(t, 1, matchRepo.count())
	match := matchRepo.get(1)
	assert.Equal(t, 1, *match.Player1ID)
	assert.Equal(t, 2, *match.Player2ID)
	assert.Equal(t, models.MatchStatusCreated, match.Status)

	assert.Equal(t, []string{"carol"}, store.poolUsernames(), "the odd player keeps waiting")

	aliceGame, err := svc.Poll(ctx, "alice")
	require.NoError(t, err)
	bobGame, err := svc.Poll(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, aliceGame, bobGame)

	matchID, err := store.MatchForGame(ctx, aliceGame)
	require.NoError(t, err)
	assert.Equal(t, match.ID, matchID)
}

func TestCycleSkipsIncompatiblePairs(t *testing.T) {
	svc, matchRepo, _, _ := newRankedFixture(
		&models.PongUser{ID: 1, Username: "alice", Trophies: 0},
		&models.PongUser{ID: 2, Username: "bob", Trophies: 500},
	)
	ctx := context.Background()

	require.NoError(t, svc.JoinQueue(ctx, "alice"))
	require.NoError(t, svc.JoinQueue(ctx, "bob"))
	require.NoError(t, svc.cycle(ctx))

	assert.Zero(t, matchRepo.count())
}

func TestCycleWideningEventuallyPairs(t *testing.T) {
	svc, matchRepo, _, _ := newRankedFixture(
		&models.PongUser{ID: 1, Username: "alice", Trophies: 0},
		&models.PongUser{ID: 2, Username: "bob", Trophies: 40},
	)
	ctx := context.Background()

	require.NoError(t, svc.JoinQueue(ctx, "alice"))
	require.NoError(t, svc.JoinQueue(ctx, "bob"))

	// 80 seconds later both tolerances reached 45.
	svc.now = func() time.Time { return time.Now().Add(80 * time.Second) }
	require.NoError(t, svc.cycle(ctx))

	assert.Equal(t, 1, matchRepo.count())
}

func TestRunRejectsDuplicateStart(t *testing.T) {
	svc, _, _, _ := newRankedFixture()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- svc.Run(ctx) }()

	require.Eventually(t, func() bool {
		return svc.running.Load()
	}, 2*time.Second, time.Millisecond)

	assert.ErrorIs(t, svc.Run(ctx), ErrMatcherAlreadyRunning)

	cancel()
	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("matcher did not stop on context cancellation")
	}
}
