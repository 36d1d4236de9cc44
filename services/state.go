package services

import (
	"fmt"
	"time"

	"github.com/Dosada05/tournament-orchestrator/models"
)

func isValidStatusTransition(current, next models.TournamentStatus) bool {
	allowedTransitions := map[models.TournamentStatus][]models.TournamentStatus{
		models.StatusOpen:       {models.StatusInProgress, models.StatusCanceled},
		models.StatusInProgress: {models.StatusCompleted, models.StatusCanceled},
		models.StatusCompleted:  {},
		models.StatusCanceled:   {},
	}
	for _, allowedNextStatus := range allowedTransitions[current] {
		if next == allowedNextStatus {
			return true
		}
	}
	return false
}

func isValidMatchTransition(current, next models.MatchStatus) bool {
	allowedTransitions := map[models.MatchStatus][]models.MatchStatus{
		models.MatchStatusPending:    {models.MatchStatusInProgress, models.MatchStatusForfeit},
		models.MatchStatusInProgress: {models.MatchStatusCompleted, models.MatchStatusForfeit},
		models.MatchStatusCompleted:  {},
		models.MatchStatusForfeit:    {},
	}
	for _, allowedNextStatus := range allowedTransitions[current] {
		if next == allowedNextStatus {
			return true
		}
	}
	return false
}

// beginTournament moves an open tournament with enough participants into its
// first round.
func beginTournament(t *models.Tournament, participants int, now time.Time) error {
	if !isValidStatusTransition(t.Status, models.StatusInProgress) {
		return fmt.Errorf("%w: tournament is %s", ErrTournamentInvalidState, t.Status)
	}
	if participants < 2 {
		return fmt.Errorf("%w: found %d", ErrInsufficientParticipants, participants)
	}
	t.Status = models.StatusInProgress
	t.StartTime = &now
	t.CurrentRound = 1
	return nil
}

func completeTournament(t *models.Tournament, winnerID string, now time.Time) error {
	if !isValidStatusTransition(t.Status, models.StatusCompleted) {
		return fmt.Errorf("%w: tournament is %s", ErrTournamentInvalidState, t.Status)
	}
	t.Status = models.StatusCompleted
	t.WinnerID = &winnerID
	t.EndTime = &now
	return nil
}

func cancelTournament(t *models.Tournament, now time.Time) error {
	if t.Status.IsTerminal() {
		return fmt.Errorf("%w: tournament is already %s", ErrTournamentInvalidState, t.Status)
	}
	if !isValidStatusTransition(t.Status, models.StatusCanceled) {
		return fmt.Errorf("%w: tournament is %s", ErrTournamentInvalidState, t.Status)
	}
	t.Status = models.StatusCanceled
	t.EndTime = &now
	return nil
}

func startMatch(m *models.Match, now time.Time) error {
	if !isValidMatchTransition(m.Status, models.MatchStatusInProgress) {
		return fmt.Errorf("%w: match is %s", ErrMatchInvalidState, m.Status)
	}
	if m.Player2ID == nil {
		return fmt.Errorf("%w: match has no second player", ErrMatchInvalidState)
	}
	m.Status = models.MatchStatusInProgress
	m.StartTime = &now
	return nil
}

type MatchResult struct {
	ScorePlayer1 int
	ScorePlayer2 int
	WinnerID     *string
}

// recordMatchResult completes an in-progress match. Equal scores need an
// explicit winner so that a completed match always has one.
func recordMatchResult(m *models.Match, result MatchResult, now time.Time) error {
	if !isValidMatchTransition(m.Status, models.MatchStatusCompleted) {
		return fmt.Errorf("%w: match is %s", ErrMatchInvalidState, m.Status)
	}
	if result.ScorePlayer1 < 0 || result.ScorePlayer2 < 0 {
		return ErrInvalidScore
	}

	var winner string
	switch {
	case result.WinnerID != nil:
		if !m.HasPlayer(*result.WinnerID) {
			return ErrInvalidWinner
		}
		winner = *result.WinnerID
	case result.ScorePlayer1 > result.ScorePlayer2:
		winner = m.Player1ID
	case result.ScorePlayer2 > result.ScorePlayer1:
		winner = *m.Player2ID
	default:
		return ErrMatchTied
	}

	m.ScorePlayer1 = result.ScorePlayer1
	m.ScorePlayer2 = result.ScorePlayer2
	m.WinnerID = &winner
	m.Status = models.MatchStatusCompleted
	m.EndTime = &now
	return nil
}

// forfeitMatch ends the match in favour of the opponent of forfeitingID.
func forfeitMatch(m *models.Match, forfeitingID string, now time.Time) error {
	if !isValidMatchTransition(m.Status, models.MatchStatusForfeit) {
		return fmt.Errorf("%w: match is %s", ErrMatchInvalidState, m.Status)
	}
	if m.Player2ID == nil {
		return fmt.Errorf("%w: match has no second player", ErrMatchInvalidState)
	}
	if !m.HasPlayer(forfeitingID) {
		return ErrForbiddenOperation
	}
	winner := m.OpponentOf(forfeitingID)
	m.WinnerID = &winner
	m.Status = models.MatchStatusForfeit
	m.EndTime = &now
	return nil
}

func roundResolved(matches []*models.Match) bool {
	for _, m := range matches {
		if !m.IsResolved() {
			return false
		}
	}
	return true
}

// roundWinners returns the winners of a fully resolved round in match order.
func roundWinners(matches []*models.Match) ([]string, error) {
	if len(matches) == 0 {
		return nil, fmt.Errorf("%w: round has no matches", ErrIncompleteRound)
	}
	if !roundResolved(matches) {
		return nil, ErrRoundNotResolved
	}
	winners := make([]string, 0, len(matches))
	for _, m := range matches {
		if m.WinnerID == nil {
			return nil, fmt.Errorf("%w: match %s", ErrIncompleteRound, m.ID)
		}
		winners = append(winners, *m.WinnerID)
	}
	return winners, nil
}
