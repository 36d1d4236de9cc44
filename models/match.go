package models

import (
	"time"

	"github.com/google/uuid"
)

type MatchStatus string

const (
	MatchStatusPending    MatchStatus = "pending"
	MatchStatusInProgress MatchStatus = "in_progress"
	MatchStatusCompleted  MatchStatus = "completed"
	MatchStatusForfeit    MatchStatus = "forfeit"
)

// Match is a single pairing inside a tournament round. Player2ID is nil for a bye.
type Match struct {
	ID           uuid.UUID   `json:"id" db:"id"`
	TournamentID uuid.UUID   `json:"tournament_id" db:"tournament_id"`
	Round        int         `json:"round" db:"round"`
	MatchOrder   int         `json:"match_order" db:"match_order"`
	Player1ID    string      `json:"player1_id" db:"player1_id"`
	Player2ID    *string     `json:"player2_id,omitempty" db:"player2_id"`
	Status       MatchStatus `json:"status" db:"status"`
	ScorePlayer1 int         `json:"score_player1" db:"score_player1"`
	ScorePlayer2 int         `json:"score_player2" db:"score_player2"`
	WinnerID     *string     `json:"winner_id,omitempty" db:"winner_id"`
	StartTime    *time.Time  `json:"start_time,omitempty" db:"start_time"`
	EndTime      *time.Time  `json:"end_time,omitempty" db:"end_time"`
	CreatedAt    time.Time   `json:"created_at" db:"created_at"`
}

func (m *Match) IsBye() bool {
	return m.Player2ID == nil
}

// IsResolved reports whether the match no longer blocks its round.
func (m *Match) IsResolved() bool {
	return m.Status == MatchStatusCompleted || m.Status == MatchStatusForfeit
}

func (m *Match) HasPlayer(userID string) bool {
	if userID == "" {
		return false
	}
	return m.Player1ID == userID || (m.Player2ID != nil && *m.Player2ID == userID)
}

// OpponentOf returns the other player, or "" when userID is not in the match
// or has no opponent.
func (m *Match) OpponentOf(userID string) string {
	switch {
	case m.Player2ID == nil:
		return ""
	case m.Player1ID == userID:
		return *m.Player2ID
	case *m.Player2ID == userID:
		return m.Player1ID
	}
	return ""
}

// Players returns the ids of the players present in the match.
func (m *Match) Players() []string {
	if m.Player2ID == nil {
		return []string{m.Player1ID}
	}
	return []string{m.Player1ID, *m.Player2ID}
}
