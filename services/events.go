package services

import (
	"fmt"

	"github.com/Dosada05/tournament-orchestrator/models"
)

// participantNames indexes display names by user id. Unknown ids map to "".
type participantNames map[string]string

func namesOf(participants []models.Participant) participantNames {
	names := make(participantNames, len(participants))
	for _, p := range participants {
		names[p.UserID] = p.DisplayName
	}
	return names
}

func (n participantNames) of(userID string) string {
	if name, ok := n[userID]; ok && name != "" {
		return name
	}
	return userID
}

func joinedEvents(t *models.Tournament, participants []models.Participant, joiner models.User) []models.Event {
	var events []models.Event
	for _, p := range participants {
		if p.UserID == joiner.ID {
			continue
		}
		events = append(events, models.Event{
			RecipientID: p.UserID,
			Notification: models.Notification{
				Kind:           models.KindTournamentJoined,
				TournamentID:   t.ID,
				TournamentName: t.Name,
				Message:        fmt.Sprintf("%s joined the tournament %s", joiner.Name, t.Name),
			},
		})
	}
	return events
}

func leftEvents(t *models.Tournament, remaining []models.Participant, leaver models.User) []models.Event {
	events := make([]models.Event, 0, len(remaining))
	for _, p := range remaining {
		events = append(events, models.Event{
			RecipientID: p.UserID,
			Notification: models.Notification{
				Kind:           models.KindTournamentLeft,
				TournamentID:   t.ID,
				TournamentName: t.Name,
				Message:        fmt.Sprintf("%s left the tournament %s", leaver.Name, t.Name),
			},
		})
	}
	return events
}

func tournamentStartedEvents(t *models.Tournament, participants []models.Participant) []models.Event {
	round := t.CurrentRound
	events := make([]models.Event, 0, len(participants))
	for _, p := range participants {
		events = append(events, models.Event{
			RecipientID: p.UserID,
			Notification: models.Notification{
				Kind:           models.KindTournamentStarted,
				TournamentID:   t.ID,
				TournamentName: t.Name,
				Round:          &round,
				Message:        fmt.Sprintf("The tournament %s has started", t.Name),
			},
		})
	}
	return events
}

// roundReadyEvents tells every player of the new round who they face. A player
// with a bye is told they advance without playing.
func roundReadyEvents(t *models.Tournament, matches []*models.Match, names participantNames) []models.Event {
	var events []models.Event
	for _, m := range matches {
		matchID := m.ID
		round := m.Round
		if m.IsBye() {
			events = append(events, models.Event{
				RecipientID: m.Player1ID,
				Notification: models.Notification{
					Kind:           models.KindMatchCompleted,
					TournamentID:   t.ID,
					TournamentName: t.Name,
					MatchID:        &matchID,
					Round:          &round,
					Message:        fmt.Sprintf("You advance with a bye in round %d", round),
				},
			})
			continue
		}
		for _, player := range m.Players() {
			opponentID := m.OpponentOf(player)
			opponentName := names.of(opponentID)
			events = append(events, models.Event{
				RecipientID: player,
				Notification: models.Notification{
					Kind:           models.KindMatchReady,
					TournamentID:   t.ID,
					TournamentName: t.Name,
					MatchID:        &matchID,
					Round:          &round,
					OpponentID:     &opponentID,
					OpponentName:   &opponentName,
					Message:        fmt.Sprintf("Your match against %s is ready", opponentName),
				},
			})
		}
	}
	return events
}

func matchStartedEvents(t *models.Tournament, m *models.Match, starter models.User) []models.Event {
	opponentID := m.OpponentOf(starter.ID)
	if opponentID == "" {
		return nil
	}
	matchID := m.ID
	round := m.Round
	starterID := starter.ID
	starterName := starter.Name
	return []models.Event{{
		RecipientID: opponentID,
		Notification: models.Notification{
			Kind:           models.KindMatchStarted,
			TournamentID:   t.ID,
			TournamentName: t.Name,
			MatchID:        &matchID,
			Round:          &round,
			OpponentID:     &starterID,
			OpponentName:   &starterName,
			Message:        fmt.Sprintf("%s started your match", starter.Name),
		},
	}}
}

func matchCompletedEvents(t *models.Tournament, m *models.Match, names participantNames) []models.Event {
	matchID := m.ID
	round := m.Round
	winner := ""
	if m.WinnerID != nil {
		winner = names.of(*m.WinnerID)
	}

	var events []models.Event
	for _, player := range m.Players() {
		opponentID := m.OpponentOf(player)
		opponentName := names.of(opponentID)
		own, other := m.ScorePlayer1, m.ScorePlayer2
		if player != m.Player1ID {
			own, other = other, own
		}
		message := fmt.Sprintf("Your match against %s is over: %d-%d, winner %s",
			opponentName, own, other, winner)
		if m.Status == models.MatchStatusForfeit {
			message = fmt.Sprintf("Your match against %s ended by forfeit, winner %s", opponentName, winner)
		}
		events = append(events, models.Event{
			RecipientID: player,
			Notification: models.Notification{
				Kind:           models.KindMatchCompleted,
				TournamentID:   t.ID,
				TournamentName: t.Name,
				MatchID:        &matchID,
				Round:          &round,
				OpponentID:     &opponentID,
				OpponentName:   &opponentName,
				Message:        message,
			},
		})
	}
	return events
}

func tournamentCompletedEvents(t *models.Tournament, participants []models.Participant, names participantNames) []models.Event {
	winner := ""
	if t.WinnerID != nil {
		winner = names.of(*t.WinnerID)
	}
	events := make([]models.Event, 0, len(participants))
	for _, p := range participants {
		events = append(events, models.Event{
			RecipientID: p.UserID,
			Notification: models.Notification{
				Kind:           models.KindTournamentCompleted,
				TournamentID:   t.ID,
				TournamentName: t.Name,
				Message:        fmt.Sprintf("The tournament %s is over, winner %s", t.Name, winner),
			},
		})
	}
	return events
}

func tournamentCanceledEvents(t *models.Tournament, participants []models.Participant) []models.Event {
	var events []models.Event
	for _, p := range participants {
		if p.UserID == t.CreatedBy {
			continue
		}
		events = append(events, models.Event{
			RecipientID: p.UserID,
			Notification: models.Notification{
				Kind:           models.KindTournamentCanceled,
				TournamentID:   t.ID,
				TournamentName: t.Name,
				Message:        fmt.Sprintf("The tournament %s was canceled", t.Name),
			},
		})
	}
	return events
}
