package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Dosada05/tournament-orchestrator/brackets"
	"github.com/Dosada05/tournament-orchestrator/models"
	"github.com/Dosada05/tournament-orchestrator/repositories"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/jonboulle/clockwork"
)

// EventSink receives the events of a committed transition. Implementations
// must not block.
type EventSink interface {
	Enqueue(events []models.Event)
}

type noopSink struct{}

func (noopSink) Enqueue([]models.Event) {}

// aggregateRunner runs a state change of one tournament under its lock and
// inside a single transaction.
type aggregateRunner struct {
	db     *sqlx.DB
	locker *TournamentLocker
	sink   EventSink
	logger *slog.Logger
}

// inTournament commits the transaction when fn succeeds and only then hands
// the produced events to the sink. Any error or panic rolls everything back.
func (r *aggregateRunner) inTournament(ctx context.Context, tournamentID uuid.UUID, fn func(tx *sqlx.Tx) ([]models.Event, error)) (txErr error) {
	unlock := r.locker.Lock(tournamentID)
	defer unlock()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	var events []models.Event
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		} else if txErr != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				r.logger.Error("rollback failed",
					slog.String("tournament_id", tournamentID.String()),
					slog.Any("error", rbErr),
					slog.Any("original_error", txErr))
				txErr = fmt.Errorf("transaction processing error: %w (rollback also failed: %v)", txErr, rbErr)
			}
		} else {
			if cErr := tx.Commit(); cErr != nil {
				r.logger.Error("commit failed",
					slog.String("tournament_id", tournamentID.String()),
					slog.Any("error", cErr))
				txErr = fmt.Errorf("failed to commit transaction: %w", cErr)
				return
			}
			if len(events) > 0 {
				r.sink.Enqueue(events)
			}
		}
	}()

	events, txErr = fn(tx)
	return txErr
}

// roundAdvancer moves a tournament past a resolved round. Callers hold the
// tournament lock and pass the transaction that loaded t.
type roundAdvancer struct {
	tournaments  repositories.TournamentRepository
	participants repositories.ParticipantRepository
	matches      repositories.MatchRepository
	generator    brackets.BracketGenerator
	clock        clockwork.Clock
	logger       *slog.Logger
}

func (a *roundAdvancer) advance(ctx context.Context, tx *sqlx.Tx, t *models.Tournament) ([]models.Event, error) {
	if t.Status != models.StatusInProgress {
		return nil, fmt.Errorf("%w: tournament is %s", ErrTournamentInvalidState, t.Status)
	}

	round := t.CurrentRound
	current, err := a.matches.ListByTournament(ctx, tx, t.ID, &round)
	if err != nil {
		return nil, fmt.Errorf("failed to list matches of round %d: %w", round, err)
	}

	winners, err := roundWinners(current)
	if err != nil {
		if errors.Is(err, ErrIncompleteRound) {
			a.logger.Error("round cannot advance",
				slog.String("tournament_id", t.ID.String()),
				slog.Int("round", round),
				slog.Any("error", err))
		}
		return nil, err
	}

	participants, err := a.participants.ListByTournament(ctx, tx, t.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list participants: %w", err)
	}
	names := namesOf(participants)
	now := a.clock.Now().UTC()

	if len(winners) == 1 {
		if err := completeTournament(t, winners[0], now); err != nil {
			return nil, err
		}
		if err := a.tournaments.UpdateState(ctx, tx, t); err != nil {
			return nil, fmt.Errorf("failed to complete tournament: %w", err)
		}
		a.logger.Info("tournament completed",
			slog.String("tournament_id", t.ID.String()),
			slog.String("winner_id", winners[0]),
			slog.Int("rounds", round))
		return tournamentCompletedEvents(t, participants, names), nil
	}

	t.CurrentRound = round + 1
	matches, err := a.createRound(ctx, tx, t, winners, now)
	if err != nil {
		return nil, err
	}
	if err := a.tournaments.UpdateState(ctx, tx, t); err != nil {
		return nil, fmt.Errorf("failed to advance tournament: %w", err)
	}
	a.logger.Info("round advanced",
		slog.String("tournament_id", t.ID.String()),
		slog.Int("round", t.CurrentRound),
		slog.Int("matches", len(matches)))
	return roundReadyEvents(t, matches, names), nil
}

// advanceIfResolved advances when every current match is resolved. An
// inconsistent round is logged by advance and leaves the tournament as is.
func (a *roundAdvancer) advanceIfResolved(ctx context.Context, tx *sqlx.Tx, t *models.Tournament) ([]models.Event, error) {
	round := t.CurrentRound
	current, err := a.matches.ListByTournament(ctx, tx, t.ID, &round)
	if err != nil {
		return nil, fmt.Errorf("failed to list matches of round %d: %w", round, err)
	}
	if !roundResolved(current) {
		return nil, nil
	}
	events, err := a.advance(ctx, tx, t)
	if errors.Is(err, ErrIncompleteRound) {
		return nil, nil
	}
	return events, err
}

// createRound generates and stores the matches of t.CurrentRound.
func (a *roundAdvancer) createRound(ctx context.Context, tx *sqlx.Tx, t *models.Tournament, entrants []string, now time.Time) ([]*models.Match, error) {
	drafts, err := a.generator.GenerateRound(brackets.GenerateRoundParams{
		Round:    t.CurrentRound,
		Entrants: entrants,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate round %d: %w", t.CurrentRound, err)
	}

	matches := make([]*models.Match, 0, len(drafts))
	for _, draft := range drafts {
		matches = append(matches, draft.ToMatch(t.ID, now))
	}
	if err := a.matches.CreateBatch(ctx, tx, matches); err != nil {
		return nil, fmt.Errorf("failed to save matches of round %d: %w", t.CurrentRound, err)
	}
	a.logger.Debug("round generated",
		slog.String("tournament_id", t.ID.String()),
		slog.String("generator", a.generator.GetName()),
		slog.Int("round", t.CurrentRound),
		slog.Int("entrants", len(entrants)))
	return matches, nil
}

func mapTournamentRepoError(err error) error {
	switch {
	case errors.Is(err, repositories.ErrTournamentNotFound):
		return ErrTournamentNotFound
	case errors.Is(err, repositories.ErrTournamentNameConflict):
		return ErrTournamentNameConflict
	}
	return err
}

func mapMatchRepoError(err error) error {
	if errors.Is(err, repositories.ErrMatchNotFound) {
		return ErrMatchNotFound
	}
	return err
}
