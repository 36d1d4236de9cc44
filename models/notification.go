package models

import "github.com/google/uuid"

type NotificationKind string

const (
	KindMatchReady          NotificationKind = "match_ready"
	KindMatchStarted        NotificationKind = "match_started"
	KindMatchCompleted      NotificationKind = "match_completed"
	KindTournamentStarted   NotificationKind = "tournament_started"
	KindTournamentJoined    NotificationKind = "tournament_joined"
	KindTournamentLeft      NotificationKind = "tournament_left"
	KindTournamentCompleted NotificationKind = "tournament_completed"
	KindTournamentCanceled  NotificationKind = "tournament_canceled"
)

// Notification is the payload pushed to a single user's channel.
type Notification struct {
	Kind           NotificationKind `json:"kind"`
	TournamentID   uuid.UUID        `json:"tournament_id"`
	TournamentName string           `json:"tournament_name"`
	MatchID        *uuid.UUID       `json:"match_id,omitempty"`
	Round          *int             `json:"round,omitempty"`
	OpponentID     *string          `json:"opponent_id,omitempty"`
	OpponentName   *string          `json:"opponent_name,omitempty"`
	Message        string           `json:"message"`
}

// Event is a notification addressed to one recipient, produced by a committed
// state transition and dispatched after the transaction.
type Event struct {
	RecipientID  string
	Notification Notification
}
