package models

import (
	"time"

	"github.com/google/uuid"
)

// Participant is a user registered in a tournament. The display name is a
// snapshot taken from the identity token at join time.
type Participant struct {
	TournamentID uuid.UUID `json:"-" db:"tournament_id"`
	UserID       string    `json:"id" db:"user_id"`
	DisplayName  string    `json:"username" db:"display_name"`
	JoinedAt     time.Time `json:"joined_at" db:"joined_at"`
}
