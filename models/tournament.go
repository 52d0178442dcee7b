package models

import "time"

// TournamentStatus mirrors the ENUM stored in the database.
type TournamentStatus string

const (
	TournamentStatusCreated  TournamentStatus = "created"
	TournamentStatusFull     TournamentStatus = "full"
	TournamentStatusFinished TournamentStatus = "finished"
	TournamentStatusAborted  TournamentStatus = "aborted"
)

// Tournament is an 8-player single-elimination tournament. Players are
// ordered by join time; their index is the leaf slot in the bracket.
type Tournament struct {
	ID         int              `json:"id" db:"id"`
	Name       *string          `json:"name,omitempty" db:"name"`
	Status     TournamentStatus `json:"status" db:"status"`
	WinnerName *string          `json:"winner,omitempty" db:"winner_name"`
	CreatedAt  time.Time        `json:"created_at" db:"created_at"`

	// Related rows, loaded separately (not mapped directly).
	Players []PongUser `json:"players,omitempty" db:"-"`
	Matches []Match    `json:"matches,omitempty" db:"-"`
}

// Fixed bracket size: 8 entrants, 7 matches.
const (
	TournamentCapacity   = 8
	TournamentMatchCount = 7
)
