package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/Dosada05/tournament-orchestrator/models"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

var (
	ErrMatchNotFound          = errors.New("match not found")
	ErrMatchSlotConflict      = errors.New("a match already exists at this round position")
	ErrMatchTournamentInvalid = errors.New("match tournament conflict or invalid")
)

type MatchRepository interface {
	CreateBatch(ctx context.Context, exec SQLExecutor, matches []*models.Match) error
	GetByID(ctx context.Context, exec SQLExecutor, id uuid.UUID) (*models.Match, error)
	ListByTournament(ctx context.Context, exec SQLExecutor, tournamentID uuid.UUID, round *int) ([]*models.Match, error)
	Update(ctx context.Context, exec SQLExecutor, m *models.Match) error
}

type sqlMatchRepository struct {
	db *sqlx.DB
}

func NewMatchRepository(db *sqlx.DB) MatchRepository {
	return &sqlMatchRepository{db: db}
}

func (r *sqlMatchRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

const matchColumns = `id, tournament_id, round, match_order, player1_id, player2_id, status,
		score_player1, score_player2, winner_id, start_time, end_time, created_at`

// CreateBatch inserts all matches with one statement, so a round is either
// stored completely or not at all.
func (r *sqlMatchRepository) CreateBatch(ctx context.Context, exec SQLExecutor, matches []*models.Match) error {
	if len(matches) == 0 {
		return nil
	}
	executor := r.getExecutor(exec)
	query := `
		INSERT INTO tournament_matches (` + matchColumns + `)
		VALUES (:id, :tournament_id, :round, :match_order, :player1_id, :player2_id, :status,
		        :score_player1, :score_player2, :winner_id, :start_time, :end_time, :created_at)`

	_, err := sqlx.NamedExecContext(ctx, executor, query, matches)
	return r.handleMatchError(err)
}

func (r *sqlMatchRepository) GetByID(ctx context.Context, exec SQLExecutor, id uuid.UUID) (*models.Match, error) {
	executor := r.getExecutor(exec)
	query := executor.Rebind(`SELECT ` + matchColumns + ` FROM tournament_matches WHERE id = ?`)

	m := &models.Match{}
	if err := sqlx.GetContext(ctx, executor, m, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrMatchNotFound
		}
		return nil, fmt.Errorf("failed to get match %s: %w", id, err)
	}
	return m, nil
}

func (r *sqlMatchRepository) ListByTournament(ctx context.Context, exec SQLExecutor, tournamentID uuid.UUID, round *int) ([]*models.Match, error) {
	executor := r.getExecutor(exec)

	var queryBuilder strings.Builder
	queryBuilder.WriteString(`SELECT ` + matchColumns + ` FROM tournament_matches WHERE tournament_id = ?`)
	args := []interface{}{tournamentID}

	if round != nil {
		queryBuilder.WriteString(" AND round = ?")
		args = append(args, *round)
	}
	queryBuilder.WriteString(" ORDER BY round ASC, match_order ASC")

	matches := make([]*models.Match, 0)
	if err := sqlx.SelectContext(ctx, executor, &matches, executor.Rebind(queryBuilder.String()), args...); err != nil {
		return nil, fmt.Errorf("failed to list matches of tournament %s: %w", tournamentID, err)
	}
	return matches, nil
}

func (r *sqlMatchRepository) Update(ctx context.Context, exec SQLExecutor, m *models.Match) error {
	executor := r.getExecutor(exec)
	query := `
		UPDATE tournament_matches SET
			status = :status,
			score_player1 = :score_player1,
			score_player2 = :score_player2,
			winner_id = :winner_id,
			start_time = :start_time,
			end_time = :end_time
		WHERE id = :id`

	result, err := sqlx.NamedExecContext(ctx, executor, query, m)
	if err != nil {
		return r.handleMatchError(err)
	}
	return checkAffectedRows(result, ErrMatchNotFound)
}

func (r *sqlMatchRepository) handleMatchError(err error) error {
	switch {
	case err == nil:
		return nil
	case isUniqueViolation(err, "tournament_matches_round_order_key"):
		return ErrMatchSlotConflict
	case isForeignKeyViolation(err):
		return ErrMatchTournamentInvalid
	}
	return err
}
