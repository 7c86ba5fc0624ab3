package models

import "time"

// UserProfile is the model-maintained dossier for one user: a compressed
// natural-language summary of durable facts, carried across sessions. At most
// one row exists per user; absence means no prior information.
type UserProfile struct {
	UserID    int64     `json:"user_id"`
	Dossier   string    `json:"dossier"`
	UpdatedAt time.Time `json:"updated_at"`
}
