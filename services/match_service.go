package services

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/Dosada05/tournament-orchestrator/models"
	"github.com/Dosada05/tournament-orchestrator/repositories"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/jonboulle/clockwork"
)

const DefaultGameClientURL = "/#/pong"

type MatchService interface {
	StartMatch(ctx context.Context, actor models.User, matchID uuid.UUID) (*MatchSession, error)
	RecordScore(ctx context.Context, actor models.User, matchID uuid.UUID, input RecordScoreInput) (*BracketSnapshot, error)
	Forfeit(ctx context.Context, actor models.User, matchID uuid.UUID) (*BracketSnapshot, error)
}

type RecordScoreInput struct {
	ScorePlayer1 int     `json:"score_player1"`
	ScorePlayer2 int     `json:"score_player2"`
	WinnerID     *string `json:"winner_id,omitempty"`
}

// MatchSession tells the game client which match to play.
type MatchSession struct {
	MatchID      uuid.UUID `json:"match_id"`
	TournamentID uuid.UUID `json:"tournament_id"`
	Round        int       `json:"round"`
	Player1ID    string    `json:"player1_id"`
	Player2ID    string    `json:"player2_id"`
	RedirectURL  string    `json:"redirect_url"`
}

type matchService struct {
	runner          *aggregateRunner
	advancer        *roundAdvancer
	tournamentRepo  repositories.TournamentRepository
	participantRepo repositories.ParticipantRepository
	matchRepo       repositories.MatchRepository
	brackets        BracketService
	clock           clockwork.Clock
	gameClientURL   string
	logger          *slog.Logger
}

func NewMatchService(deps AggregateDeps, gameClientURL string) MatchService {
	logger := deps.Logger.With(slog.String("component", "match_service"))
	runner, advancer := newAggregate(deps, logger)
	if gameClientURL == "" {
		gameClientURL = DefaultGameClientURL
	}
	return &matchService{
		runner:          runner,
		advancer:        advancer,
		tournamentRepo:  deps.TournamentRepo,
		participantRepo: deps.ParticipantRepo,
		matchRepo:       deps.MatchRepo,
		brackets:        deps.Brackets,
		clock:           advancer.clock,
		gameClientURL:   gameClientURL,
		logger:          logger,
	}
}

// matchAction is a change to one match made under its tournament's lock. It
// receives the locked tournament and a fresh copy of the match.
type matchAction func(tx *sqlx.Tx, t *models.Tournament, m *models.Match) ([]models.Event, error)

func (s *matchService) withMatch(ctx context.Context, matchID uuid.UUID, action matchAction) (*models.Tournament, *models.Match, error) {
	// Матч читается до блокировки только ради tournament_id, который не меняется.
	located, err := s.matchRepo.GetByID(ctx, nil, matchID)
	if err != nil {
		return nil, nil, mapMatchRepoError(err)
	}

	var (
		tournament *models.Tournament
		match      *models.Match
	)
	err = s.runner.inTournament(ctx, located.TournamentID, func(tx *sqlx.Tx) ([]models.Event, error) {
		var err error
		tournament, err = s.tournamentRepo.GetByIDForUpdate(ctx, tx, located.TournamentID)
		if err != nil {
			return nil, mapTournamentRepoError(err)
		}
		match, err = s.matchRepo.GetByID(ctx, tx, matchID)
		if err != nil {
			return nil, mapMatchRepoError(err)
		}
		return action(tx, tournament, match)
	})
	if err != nil {
		return nil, nil, err
	}
	return tournament, match, nil
}

func requireInProgress(t *models.Tournament) error {
	if t.Status != models.StatusInProgress {
		return fmt.Errorf("%w: tournament is %s", ErrTournamentInvalidState, t.Status)
	}
	return nil
}

func (s *matchService) StartMatch(ctx context.Context, actor models.User, matchID uuid.UUID) (*MatchSession, error) {
	_, match, err := s.withMatch(ctx, matchID, func(tx *sqlx.Tx, t *models.Tournament, m *models.Match) ([]models.Event, error) {
		if !m.HasPlayer(actor.ID) {
			return nil, ErrForbiddenOperation
		}
		if err := requireInProgress(t); err != nil {
			return nil, err
		}
		if err := startMatch(m, s.clock.Now().UTC()); err != nil {
			return nil, err
		}
		if err := s.matchRepo.Update(ctx, tx, m); err != nil {
			return nil, mapMatchRepoError(err)
		}
		return matchStartedEvents(t, m, actor), nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("match started",
		slog.String("match_id", matchID.String()),
		slog.String("started_by", actor.ID))
	return s.session(match), nil
}

func (s *matchService) session(m *models.Match) *MatchSession {
	session := &MatchSession{
		MatchID:      m.ID,
		TournamentID: m.TournamentID,
		Round:        m.Round,
		Player1ID:    m.Player1ID,
	}
	if m.Player2ID != nil {
		session.Player2ID = *m.Player2ID
	}

	query := url.Values{}
	query.Set("matchId", session.MatchID.String())
	query.Set("player1", session.Player1ID)
	query.Set("player2", session.Player2ID)
	query.Set("tournamentId", session.TournamentID.String())

	separator := "?"
	if strings.Contains(s.gameClientURL, "?") {
		separator = "&"
	}
	session.RedirectURL = s.gameClientURL + separator + query.Encode()
	return session
}

func (s *matchService) RecordScore(ctx context.Context, actor models.User, matchID uuid.UUID, input RecordScoreInput) (*BracketSnapshot, error) {
	result := MatchResult{
		ScorePlayer1: input.ScorePlayer1,
		ScorePlayer2: input.ScorePlayer2,
		WinnerID:     input.WinnerID,
	}
	return s.resolve(ctx, actor, matchID, func(t *models.Tournament, m *models.Match) error {
		if !m.HasPlayer(actor.ID) && !t.IsCreator(actor.ID) {
			return ErrForbiddenOperation
		}
		if err := requireInProgress(t); err != nil {
			return err
		}
		return recordMatchResult(m, result, s.clock.Now().UTC())
	})
}

func (s *matchService) Forfeit(ctx context.Context, actor models.User, matchID uuid.UUID) (*BracketSnapshot, error) {
	return s.resolve(ctx, actor, matchID, func(t *models.Tournament, m *models.Match) error {
		if !m.HasPlayer(actor.ID) {
			return ErrForbiddenOperation
		}
		if err := requireInProgress(t); err != nil {
			return err
		}
		return forfeitMatch(m, actor.ID, s.clock.Now().UTC())
	})
}

// resolve applies a terminal transition to a match and, in the same
// transaction, advances the tournament if that was the last open match of the
// round.
func (s *matchService) resolve(ctx context.Context, actor models.User, matchID uuid.UUID, transition func(t *models.Tournament, m *models.Match) error) (*BracketSnapshot, error) {
	tournament, match, err := s.withMatch(ctx, matchID, func(tx *sqlx.Tx, t *models.Tournament, m *models.Match) ([]models.Event, error) {
		if err := transition(t, m); err != nil {
			return nil, err
		}
		if err := s.matchRepo.Update(ctx, tx, m); err != nil {
			return nil, mapMatchRepoError(err)
		}

		participants, err := s.participantRepo.ListByTournament(ctx, tx, t.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to list participants: %w", err)
		}
		events := matchCompletedEvents(t, m, namesOf(participants))

		advanced, err := s.advancer.advanceIfResolved(ctx, tx, t)
		if err != nil {
			return nil, err
		}
		return append(events, advanced...), nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("match resolved",
		slog.String("match_id", matchID.String()),
		slog.String("status", string(match.Status)),
		slog.String("resolved_by", actor.ID))
	if tournament.Status == models.StatusCompleted {
		s.brackets.ArchiveAsync(tournament.ID)
	}
	return s.brackets.GetBracket(ctx, tournament.ID, actor.ID)
}
