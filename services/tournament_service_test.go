package services

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/42-Transcendence-2025/consegna-finale/models"
	"github.com/42-Transcendence-2025/consegna-finale/repositories"
)

func newTournamentFixture(users ...*models.PongUser) (TournamentService, *fakeTournamentRepo, *fakeMatchRepo) {
	userRepo := newFakeUserRepo(users...)
	matchRepo := newFakeMatchRepo()
	tournamentRepo := newFakeTournamentRepo(userRepo)
	svc := NewTournamentService(passthroughRunner{}, tournamentRepo, userRepo, matchRepo, discardLogger())
	return svc, tournamentRepo, matchRepo
}

func eightUsers() []*models.PongUser {
	users := make([]*models.PongUser, 0, 8)
	for i := 1; i <= 8; i++ {
		users = append(users, &models.PongUser{ID: i, Username: fmt.Sprintf("player%d", i), Trophies: i * 10})
	}
	return users
}

func TestCreateJoinsTheCreator(t *testing.T) {
	svc, tournamentRepo, _ := newTournamentFixture(&models.PongUser{ID: 1, Username: "alice"})
	ctx := context.Background()

	tournament, err := svc.Create(ctx, "  friday night  ", "alice")
	require.NoError(t, err)
	assert.Equal(t, "friday night", *tournament.Name)
	assert.Equal(t, models.TournamentStatusCreated, tournament.Status)

	players, err := tournamentRepo.ListPlayers(ctx, nil, tournament.ID)
	require.NoError(t, err)
	require.Len(t, players, 1)
	assert.Equal(t, "alice", players[0].Username)
}

func TestCreateRequiresName(t *testing.T) {
	svc, _, _ := newTournamentFixture(&models.PongUser{ID: 1, Username: "alice"})

	_, err := svc.Create(context.Background(), "   ", "alice")
	assert.ErrorIs(t, err, ErrTournamentNameRequired)
}

func TestJoinFillsTournamentAtCapacity(t *testing.T) {
	users := eightUsers()
	extra := &models.PongUser{ID: 9, Username: "latecomer"}
	svc, tournamentRepo, _ := newTournamentFixture(append(users, extra)...)
	ctx := context.Background()

	tournament, err := svc.Create(ctx, "cup", "player1")
	require.NoError(t, err)

	for i := 2; i <= 8; i++ {
		require.NoError(t, svc.Join(ctx, tournament.ID, fmt.Sprintf("player%d", i)))
	}

	stored, err := tournamentRepo.GetByID(ctx, nil, tournament.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TournamentStatusFull, stored.Status, "eighth join fills the tournament")

	assert.ErrorIs(t, svc.Join(ctx, tournament.ID, "latecomer"), ErrTournamentNotJoinable)
}

func TestJoinRejectsDuplicate(t *testing.T) {
	svc, _, _ := newTournamentFixture(eightUsers()...)
	ctx := context.Background()

	tournament, err := svc.Create(ctx, "cup", "player1")
	require.NoError(t, err)

	require.NoError(t, svc.Join(ctx, tournament.ID, "player2"))
	assert.ErrorIs(t, svc.Join(ctx, tournament.ID, "player2"), ErrAlreadyInTournament)
}

func TestLeaveDeletesEmptyTournament(t *testing.T) {
	svc, tournamentRepo, _ := newTournamentFixture(eightUsers()...)
	ctx := context.Background()

	tournament, err := svc.Create(ctx, "cup", "player1")
	require.NoError(t, err)
	require.NoError(t, svc.Join(ctx, tournament.ID, "player2"))

	require.NoError(t, svc.Leave(ctx, tournament.ID, "player2"))
	_, err = tournamentRepo.GetByID(ctx, nil, tournament.ID)
	require.NoError(t, err, "tournament survives while players remain")

	require.NoError(t, svc.Leave(ctx, tournament.ID, "player1"))
	_, err = tournamentRepo.GetByID(ctx, nil, tournament.ID)
	assert.ErrorIs(t, err, repositories.ErrTournamentNotFound, "last player leaving deletes it")
}

func TestLeaveRequiresMembership(t *testing.T) {
	svc, _, _ := newTournamentFixture(eightUsers()...)
	ctx := context.Background()

	tournament, err := svc.Create(ctx, "cup", "player1")
	require.NoError(t, err)

	assert.ErrorIs(t, svc.Leave(ctx, tournament.ID, "player2"), ErrNotInTournament)
}

func TestDetailResolvesSlotsAndViews(t *testing.T) {
	users := eightUsers()
	svc, _, matchRepo := newTournamentFixture(users...)
	ctx := context.Background()

	tournament, err := svc.Create(ctx, "cup", "player1")
	require.NoError(t, err)
	for i := 2; i <= 8; i++ {
		require.NoError(t, svc.Join(ctx, tournament.ID, fmt.Sprintf("player%d", i)))
	}

	// Quarterfinal 0 decided: player1 beat player2.
	number, p1, p2 := 0, 1, 2
	five, one := 5, 1
	matchRepo.seed(models.Match{
		TournamentID: &tournament.ID, MatchNumber: &number,
		Player1ID: &p1, Player2ID: &p2,
		Status:        models.MatchStatusFinished,
		PointsPlayer1: &five, PointsPlayer2: &one,
		WinnerID: &p1, LoserID: &p2,
	})

	detail, err := svc.Detail(ctx, tournament.ID)
	require.NoError(t, err)
	require.Len(t, detail.Players, 8)
	require.Len(t, detail.Matches, models.TournamentMatchCount)

	assert.Equal(t, "player1", detail.Players[0].Username)
	require.NotNil(t, detail.Players[0].Slot)
	assert.Equal(t, 8, *detail.Players[0].Slot, "winner moved to the semifinal feeder")
	assert.Nil(t, detail.Players[1].Slot, "loser is eliminated")
	require.NotNil(t, detail.Players[2].Slot)
	assert.Equal(t, 2, *detail.Players[2].Slot)

	stored := detail.Matches[0]
	assert.Equal(t, "player1", *stored.Player1)
	assert.Equal(t, "player2", *stored.Player2)
	assert.Equal(t, "player1", *stored.Winner)
	assert.Equal(t, 5, *stored.PointsPlayer1)

	synthesized := detail.Matches[1]
	require.NotNil(t, synthesized.Player1)
	assert.Equal(t, "player3", *synthesized.Player1)
	assert.Equal(t, "player4", *synthesized.Player2)
	assert.Nil(t, synthesized.Winner)

	assert.Nil(t, detail.Matches[6].Player1, "final is still unresolved")
}

func TestDetailUnknownTournament(t *testing.T) {
	svc, _, _ := newTournamentFixture(&models.PongUser{ID: 1, Username: "alice"})

	_, err := svc.Detail(context.Background(), 404)
	assert.ErrorIs(t, err, ErrTournamentNotFound)
}
