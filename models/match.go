package models

import "time"

type MatchStatus string

const (
	MatchStatusCreated          MatchStatus = "created"
	MatchStatusInGame           MatchStatus = "in_game"
	MatchStatusFinished         MatchStatus = "finished"
	MatchStatusFinishedWalkover MatchStatus = "finished_walkover"
	MatchStatusAborted          MatchStatus = "aborted"
)

// IsTerminal reports whether the status is absorbing: winner/loser and
// points are written exactly once, at the transition into it.
func (s MatchStatus) IsTerminal() bool {
	switch s {
	case MatchStatusFinished, MatchStatusFinishedWalkover, MatchStatusAborted:
		return true
	}
	return false
}

// Match is a single pong match, ad-hoc or belonging to a tournament bracket.
// Player references are nullable so walkover rows can carry a single player.
type Match struct {
	ID            int         `json:"id"`
	TournamentID  *int        `json:"tournament_id,omitempty"`
	MatchNumber   *int        `json:"match_number,omitempty"`
	Player1ID     *int        `json:"player_1,omitempty"`
	Player2ID     *int        `json:"player_2,omitempty"`
	Status        MatchStatus `json:"status"`
	PointsPlayer1 *int        `json:"points_player_1,omitempty"`
	PointsPlayer2 *int        `json:"points_player_2,omitempty"`
	WinnerID      *int        `json:"winner,omitempty"`
	LoserID       *int        `json:"loser,omitempty"`
	CreatedAt     time.Time   `json:"created_at"`
}
