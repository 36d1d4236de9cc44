package models

import (
	"time"

	"github.com/google/uuid"
)

// TournamentStatus представляет статусы турнира, соответствующие значениям колонки status.
type TournamentStatus string

const (
	StatusOpen       TournamentStatus = "open"
	StatusInProgress TournamentStatus = "in_progress"
	StatusCompleted  TournamentStatus = "completed"
	StatusCanceled   TournamentStatus = "canceled"
)

// IsTerminal reports whether no further transition is possible.
func (s TournamentStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCanceled
}

func (s TournamentStatus) IsValid() bool {
	switch s {
	case StatusOpen, StatusInProgress, StatusCompleted, StatusCanceled:
		return true
	}
	return false
}

// Tournament is the aggregate root: it owns its participants and matches.
type Tournament struct {
	ID           uuid.UUID        `json:"id" db:"id"`
	Name         string           `json:"name" db:"name"`
	CreatedBy    string           `json:"created_by" db:"created_by"`
	Status       TournamentStatus `json:"status" db:"status"`
	CurrentRound int              `json:"current_round" db:"current_round"`
	WinnerID     *string          `json:"winner_id,omitempty" db:"winner_id"`
	ArchiveURL   *string          `json:"archive_url,omitempty" db:"archive_url"`
	CreatedAt    time.Time        `json:"created_at" db:"created_at"`
	StartTime    *time.Time       `json:"start_time,omitempty" db:"start_time"`
	EndTime      *time.Time       `json:"end_time,omitempty" db:"end_time"`

	// Заполняются отдельными запросами.
	ParticipantsCount int           `json:"participants_count" db:"participants_count"`
	Participants      []Participant `json:"participants,omitempty" db:"-"`
}

func (t *Tournament) IsCreator(userID string) bool {
	return t.CreatedBy == userID
}
