package models

import "time"

// PairingTicket is the ephemeral rendezvous record stored in the cache under
// a correlation key. The first arriving player writes it, the second
// consumes and deletes it.
type PairingTicket struct {
	GameID   string `json:"game_id"`
	Username string `json:"username"`
}

// RankedQueueEntry is one waiting player in the ranked pool.
type RankedQueueEntry struct {
	Username  string    `json:"username"`
	Trophies  int       `json:"trophies"`
	Timestamp time.Time `json:"timestamp"`
}
