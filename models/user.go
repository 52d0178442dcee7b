package models

import "time"

// PongUser mirrors the row owned by the external user-management service.
// Trophies double as the ranked-pool rating.
type PongUser struct {
	ID        int       `json:"id" db:"id"`
	Username  string    `json:"username" db:"username"`
	Trophies  int       `json:"trophies" db:"trophies"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
