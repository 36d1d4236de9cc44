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
	ErrTournamentNotFound     = errors.New("tournament not found")
	ErrTournamentNameConflict = errors.New("an active tournament with this name already exists")
)

type ListTournamentsFilter struct {
	Status *models.TournamentStatus
	// ViewerID, if set, fills TournamentListItem.ViewerIsParticipant.
	ViewerID string
	Limit    int
	Offset   int
}

type TournamentListItem struct {
	models.Tournament
	ViewerIsParticipant bool `db:"viewer_is_participant"`
}

type TournamentRepository interface {
	Create(ctx context.Context, exec SQLExecutor, t *models.Tournament) error
	GetByID(ctx context.Context, exec SQLExecutor, id uuid.UUID) (*models.Tournament, error)
	// GetByIDForUpdate loads the tournament and locks its row until exec's
	// transaction ends.
	GetByIDForUpdate(ctx context.Context, exec SQLExecutor, id uuid.UUID) (*models.Tournament, error)
	List(ctx context.Context, exec SQLExecutor, filter ListTournamentsFilter) ([]TournamentListItem, error)
	UpdateState(ctx context.Context, exec SQLExecutor, t *models.Tournament) error
	UpdateArchiveURL(ctx context.Context, exec SQLExecutor, id uuid.UUID, url string) error
	Delete(ctx context.Context, exec SQLExecutor, id uuid.UUID) error
}

type sqlTournamentRepository struct {
	db *sqlx.DB
}

func NewTournamentRepository(db *sqlx.DB) TournamentRepository {
	return &sqlTournamentRepository{db: db}
}

func (r *sqlTournamentRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

const tournamentColumns = `t.id, t.name, t.created_by, t.status, t.current_round, t.winner_id,
		t.archive_url, t.created_at, t.start_time, t.end_time`

const participantsCountColumn = `(SELECT COUNT(*) FROM tournament_participants p WHERE p.tournament_id = t.id) AS participants_count`

func (r *sqlTournamentRepository) Create(ctx context.Context, exec SQLExecutor, t *models.Tournament) error {
	executor := r.getExecutor(exec)
	query := `
		INSERT INTO tournaments (id, name, created_by, status, current_round, created_at)
		VALUES (:id, :name, :created_by, :status, :current_round, :created_at)`

	_, err := sqlx.NamedExecContext(ctx, executor, query, t)
	return r.handleTournamentError(err)
}

func (r *sqlTournamentRepository) GetByID(ctx context.Context, exec SQLExecutor, id uuid.UUID) (*models.Tournament, error) {
	executor := r.getExecutor(exec)
	query := executor.Rebind(`
		SELECT ` + tournamentColumns + `, ` + participantsCountColumn + `
		FROM tournaments t
		WHERE t.id = ?`)

	return r.get(ctx, executor, query, id)
}

func (r *sqlTournamentRepository) GetByIDForUpdate(ctx context.Context, exec SQLExecutor, id uuid.UUID) (*models.Tournament, error) {
	executor := r.getExecutor(exec)
	query := executor.Rebind(`
		SELECT ` + tournamentColumns + `
		FROM tournaments t
		WHERE t.id = ?` + forUpdate(executor))

	return r.get(ctx, executor, query, id)
}

func (r *sqlTournamentRepository) get(ctx context.Context, executor SQLExecutor, query string, id uuid.UUID) (*models.Tournament, error) {
	t := &models.Tournament{}
	if err := sqlx.GetContext(ctx, executor, t, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTournamentNotFound
		}
		return nil, fmt.Errorf("failed to get tournament %s: %w", id, err)
	}
	return t, nil
}

func (r *sqlTournamentRepository) List(ctx context.Context, exec SQLExecutor, filter ListTournamentsFilter) ([]TournamentListItem, error) {
	executor := r.getExecutor(exec)

	var queryBuilder strings.Builder
	queryBuilder.WriteString(`
		SELECT ` + tournamentColumns + `, ` + participantsCountColumn + `,
			EXISTS (SELECT 1 FROM tournament_participants v WHERE v.tournament_id = t.id AND v.user_id = ?) AS viewer_is_participant
		FROM tournaments t
		WHERE 1=1`)
	args := []interface{}{filter.ViewerID}

	if filter.Status != nil {
		queryBuilder.WriteString(" AND t.status = ?")
		args = append(args, *filter.Status)
	}

	queryBuilder.WriteString(" ORDER BY t.created_at DESC, t.id ASC")

	if filter.Limit > 0 {
		queryBuilder.WriteString(" LIMIT ?")
		args = append(args, filter.Limit)
		if filter.Offset > 0 {
			queryBuilder.WriteString(" OFFSET ?")
			args = append(args, filter.Offset)
		}
	}

	tournaments := make([]TournamentListItem, 0)
	if err := sqlx.SelectContext(ctx, executor, &tournaments, executor.Rebind(queryBuilder.String()), args...); err != nil {
		return nil, fmt.Errorf("failed to list tournaments: %w", err)
	}
	return tournaments, nil
}

func (r *sqlTournamentRepository) UpdateState(ctx context.Context, exec SQLExecutor, t *models.Tournament) error {
	executor := r.getExecutor(exec)
	query := `
		UPDATE tournaments SET
			status = :status,
			current_round = :current_round,
			winner_id = :winner_id,
			start_time = :start_time,
			end_time = :end_time
		WHERE id = :id`

	result, err := sqlx.NamedExecContext(ctx, executor, query, t)
	if err != nil {
		return r.handleTournamentError(err)
	}
	return checkAffectedRows(result, ErrTournamentNotFound)
}

func (r *sqlTournamentRepository) UpdateArchiveURL(ctx context.Context, exec SQLExecutor, id uuid.UUID, url string) error {
	executor := r.getExecutor(exec)
	query := executor.Rebind(`UPDATE tournaments SET archive_url = ? WHERE id = ?`)
	result, err := executor.ExecContext(ctx, query, url, id)
	if err != nil {
		return fmt.Errorf("failed to update archive url of tournament %s: %w", id, err)
	}
	return checkAffectedRows(result, ErrTournamentNotFound)
}

func (r *sqlTournamentRepository) Delete(ctx context.Context, exec SQLExecutor, id uuid.UUID) error {
	executor := r.getExecutor(exec)
	query := executor.Rebind(`DELETE FROM tournaments WHERE id = ?`)
	result, err := executor.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete tournament %s: %w", id, err)
	}
	return checkAffectedRows(result, ErrTournamentNotFound)
}

func (r *sqlTournamentRepository) handleTournamentError(err error) error {
	if err == nil {
		return nil
	}
	if isUniqueViolation(err, "tournaments_active_name_key") {
		return ErrTournamentNameConflict
	}
	return err
}
