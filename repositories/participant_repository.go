package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Dosada05/tournament-orchestrator/models"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

var (
	ErrParticipantNotFound          = errors.New("participant not found")
	ErrParticipantConflict          = errors.New("user is already registered for this tournament")
	ErrParticipantTournamentInvalid = errors.New("participant tournament conflict or invalid")
)

type ParticipantRepository interface {
	Add(ctx context.Context, exec SQLExecutor, p *models.Participant) error
	Remove(ctx context.Context, exec SQLExecutor, tournamentID uuid.UUID, userID string) error
	Get(ctx context.Context, exec SQLExecutor, tournamentID uuid.UUID, userID string) (*models.Participant, error)
	ListByTournament(ctx context.Context, exec SQLExecutor, tournamentID uuid.UUID) ([]models.Participant, error)
	Count(ctx context.Context, exec SQLExecutor, tournamentID uuid.UUID) (int, error)
}

type sqlParticipantRepository struct {
	db *sqlx.DB
}

func NewParticipantRepository(db *sqlx.DB) ParticipantRepository {
	return &sqlParticipantRepository{db: db}
}

func (r *sqlParticipantRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

func (r *sqlParticipantRepository) Add(ctx context.Context, exec SQLExecutor, p *models.Participant) error {
	executor := r.getExecutor(exec)
	query := `
		INSERT INTO tournament_participants (tournament_id, user_id, display_name, joined_at)
		VALUES (:tournament_id, :user_id, :display_name, :joined_at)`

	_, err := sqlx.NamedExecContext(ctx, executor, query, p)
	switch {
	case err == nil:
		return nil
	case isUniqueViolation(err, "tournament_participants_pkey"):
		return ErrParticipantConflict
	case isForeignKeyViolation(err):
		return ErrParticipantTournamentInvalid
	}
	return fmt.Errorf("failed to add participant %s to tournament %s: %w", p.UserID, p.TournamentID, err)
}

func (r *sqlParticipantRepository) Remove(ctx context.Context, exec SQLExecutor, tournamentID uuid.UUID, userID string) error {
	executor := r.getExecutor(exec)
	query := executor.Rebind(`DELETE FROM tournament_participants WHERE tournament_id = ? AND user_id = ?`)
	result, err := executor.ExecContext(ctx, query, tournamentID, userID)
	if err != nil {
		return fmt.Errorf("failed to remove participant %s from tournament %s: %w", userID, tournamentID, err)
	}
	return checkAffectedRows(result, ErrParticipantNotFound)
}

func (r *sqlParticipantRepository) Get(ctx context.Context, exec SQLExecutor, tournamentID uuid.UUID, userID string) (*models.Participant, error) {
	executor := r.getExecutor(exec)
	query := executor.Rebind(`
		SELECT tournament_id, user_id, display_name, joined_at
		FROM tournament_participants
		WHERE tournament_id = ? AND user_id = ?`)

	p := &models.Participant{}
	if err := sqlx.GetContext(ctx, executor, p, query, tournamentID, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrParticipantNotFound
		}
		return nil, fmt.Errorf("failed to get participant %s of tournament %s: %w", userID, tournamentID, err)
	}
	return p, nil
}

func (r *sqlParticipantRepository) ListByTournament(ctx context.Context, exec SQLExecutor, tournamentID uuid.UUID) ([]models.Participant, error) {
	executor := r.getExecutor(exec)
	query := executor.Rebind(`
		SELECT tournament_id, user_id, display_name, joined_at
		FROM tournament_participants
		WHERE tournament_id = ?
		ORDER BY joined_at ASC, user_id ASC`)

	participants := make([]models.Participant, 0)
	if err := sqlx.SelectContext(ctx, executor, &participants, query, tournamentID); err != nil {
		return nil, fmt.Errorf("failed to list participants of tournament %s: %w", tournamentID, err)
	}
	return participants, nil
}

func (r *sqlParticipantRepository) Count(ctx context.Context, exec SQLExecutor, tournamentID uuid.UUID) (int, error) {
	executor := r.getExecutor(exec)
	query := executor.Rebind(`SELECT COUNT(*) FROM tournament_participants WHERE tournament_id = ?`)

	var count int
	if err := sqlx.GetContext(ctx, executor, &count, query, tournamentID); err != nil {
		return 0, fmt.Errorf("failed to count participants of tournament %s: %w", tournamentID, err)
	}
	return count, nil
}
