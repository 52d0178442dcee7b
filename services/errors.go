package services

import "errors"

// Sentinel errors shared across services and the HTTP mapping.
var (
	// Validation and business rules
	ErrPasswordRequired       = errors.New("password is required")
	ErrTournamentNameRequired = errors.New("tournament name is required")
	ErrTournamentNotJoinable  = errors.New("tournament is not accepting players")
	ErrTournamentNotStarted   = errors.New("tournament has not filled up yet")
	ErrNotInTournament        = errors.New("player has not joined this tournament")
	ErrPlayerEliminated       = errors.New("player is no longer in the bracket")

	// Pairing outcomes
	ErrNoOpponentFound = errors.New("no opponent found")
	ErrNoMatchReady    = errors.New("no ranked match ready yet")

	// Conflicts
	ErrAlreadyQueued       = errors.New("player is already in the ranked queue")
	ErrAlreadyInTournament = errors.New("player already joined this tournament")
	ErrTournamentFull      = errors.New("tournament is full")
	ErrMatchAlreadyExists  = errors.New("bracket match already exists")

	// Lookups
	ErrUserNotFound       = errors.New("user not found")
	ErrTournamentNotFound = errors.New("tournament not found")
	ErrMatchNotFound      = errors.New("match not found")
	ErrGameNotFound       = errors.New("no match bound to this game id")

	// Background workers
	ErrMatcherAlreadyRunning = errors.New("ranked matcher is already running")
)
