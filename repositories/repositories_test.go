package repositories

import (
	"context"
	"testing"
	"time"

	"github.com/Dosada05/tournament-orchestrator/db"
	"github.com/Dosada05/tournament-orchestrator/models"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestDB creates an in-memory SQLite database and applies migrations.
func setupTestDB(t *testing.T) *sqlx.DB {
	t.Helper()

	database, err := db.Connect(db.DriverSQLite, "file::memory:", time.Second)
	require.NoError(t, err, "Failed to connect to in-memory DB")
	require.NoError(t, db.Migrate(database), "Failed to apply migrations")

	t.Cleanup(func() { _ = database.Close() })
	return database
}

var baseTime = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func newTournament(name, creator string) *models.Tournament {
	return &models.Tournament{
		ID:        uuid.New(),
		Name:      name,
		CreatedBy: creator,
		Status:    models.StatusOpen,
		CreatedAt: baseTime,
	}
}

func strPtr(s string) *string { return &s }

func TestTournamentRepositoryCreateGet(t *testing.T) {
	database := setupTestDB(t)
	repo := NewTournamentRepository(database)
	ctx := context.Background()

	tournament := newTournament("Spring Cup", "alice")
	require.NoError(t, repo.Create(ctx, nil, tournament))

	got, err := repo.GetByID(ctx, nil, tournament.ID)
	require.NoError(t, err)
	assert.Equal(t, tournament.ID, got.ID)
	assert.Equal(t, "Spring Cup", got.Name)
	assert.Equal(t, "alice", got.CreatedBy)
	assert.Equal(t, models.StatusOpen, got.Status)
	assert.Equal(t, 0, got.CurrentRound)
	assert.Nil(t, got.WinnerID)
	assert.True(t, baseTime.Equal(got.CreatedAt))

	_, err = repo.GetByID(ctx, nil, uuid.New())
	assert.ErrorIs(t, err, ErrTournamentNotFound)
}

func TestTournamentRepositoryNameUniqueAmongActive(t *testing.T) {
	database := setupTestDB(t)
	repo := NewTournamentRepository(database)
	ctx := context.Background()

	first := newTournament("Weekly", "alice")
	require.NoError(t, repo.Create(ctx, nil, first))

	err := repo.Create(ctx, nil, newTournament("Weekly", "bob"))
	assert.ErrorIs(t, err, ErrTournamentNameConflict)

	// Once the first one is finished the name is free again.
	first.Status = models.StatusCompleted
	first.CurrentRound = 1
	require.NoError(t, repo.UpdateState(ctx, nil, first))
	assert.NoError(t, repo.Create(ctx, nil, newTournament("Weekly", "bob")))
}

func TestTournamentRepositoryUpdateStateAndDelete(t *testing.T) {
	database := setupTestDB(t)
	repo := NewTournamentRepository(database)
	ctx := context.Background()

	tournament := newTournament("Cup", "alice")
	require.NoError(t, repo.Create(ctx, nil, tournament))

	start := baseTime.Add(time.Hour)
	tournament.Status = models.StatusInProgress
	tournament.CurrentRound = 1
	tournament.StartTime = &start
	require.NoError(t, repo.UpdateState(ctx, nil, tournament))

	tx, err := database.BeginTxx(ctx, nil)
	require.NoError(t, err)
	locked, err := repo.GetByIDForUpdate(ctx, tx, tournament.ID)
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	assert.Equal(t, models.StatusInProgress, locked.Status)
	assert.Equal(t, 1, locked.CurrentRound)
	require.NotNil(t, locked.StartTime)
	assert.True(t, start.Equal(*locked.StartTime))

	require.NoError(t, repo.UpdateArchiveURL(ctx, nil, tournament.ID, "https://cdn.example.com/a.json"))
	got, err := repo.GetByID(ctx, nil, tournament.ID)
	require.NoError(t, err)
	require.NotNil(t, got.ArchiveURL)
	assert.Equal(t, "https://cdn.example.com/a.json", *got.ArchiveURL)

	require.NoError(t, repo.Delete(ctx, nil, tournament.ID))
	assert.ErrorIs(t, repo.Delete(ctx, nil, tournament.ID), ErrTournamentNotFound)
	assert.ErrorIs(t, repo.UpdateState(ctx, nil, tournament), ErrTournamentNotFound)
}

func TestTournamentRepositoryList(t *testing.T) {
	database := setupTestDB(t)
	repo := NewTournamentRepository(database)
	participants := NewParticipantRepository(database)
	ctx := context.Background()

	var created []*models.Tournament
	for i, name := range []string{"A", "B", "C"} {
		tournament := newTournament(name, "alice")
		tournament.CreatedAt = baseTime.Add(time.Duration(i) * time.Minute)
		require.NoError(t, repo.Create(ctx, nil, tournament))
		created = append(created, tournament)
	}
	require.NoError(t, participants.Add(ctx, nil, &models.Participant{
		TournamentID: created[0].ID, UserID: "alice", DisplayName: "Alice", JoinedAt: baseTime,
	}))
	created[2].Status = models.StatusCanceled
	require.NoError(t, repo.UpdateState(ctx, nil, created[2]))

	all, err := repo.List(ctx, nil, ListTournamentsFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "C", all[0].Name, "newest first")
	assert.Equal(t, "A", all[2].Name)
	assert.Equal(t, 1, all[2].ParticipantsCount)
	assert.False(t, all[2].ViewerIsParticipant)

	viewed, err := repo.List(ctx, nil, ListTournamentsFilter{ViewerID: "alice"})
	require.NoError(t, err)
	require.Len(t, viewed, 3)
	assert.True(t, viewed[2].ViewerIsParticipant)
	assert.False(t, viewed[0].ViewerIsParticipant)

	open := models.StatusOpen
	filtered, err := repo.List(ctx, nil, ListTournamentsFilter{Status: &open})
	require.NoError(t, err)
	require.Len(t, filtered, 2)

	page, err := repo.List(ctx, nil, ListTournamentsFilter{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "B", page[0].Name)
}

func TestParticipantRepository(t *testing.T) {
	database := setupTestDB(t)
	tournaments := NewTournamentRepository(database)
	repo := NewParticipantRepository(database)
	ctx := context.Background()

	tournament := newTournament("Cup", "alice")
	require.NoError(t, tournaments.Create(ctx, nil, tournament))

	alice := &models.Participant{TournamentID: tournament.ID, UserID: "alice", DisplayName: "Alice", JoinedAt: baseTime}
	bob := &models.Participant{TournamentID: tournament.ID, UserID: "bob", DisplayName: "Bob", JoinedAt: baseTime.Add(time.Second)}
	require.NoError(t, repo.Add(ctx, nil, alice))
	require.NoError(t, repo.Add(ctx, nil, bob))
	assert.ErrorIs(t, repo.Add(ctx, nil, alice), ErrParticipantConflict)

	orphan := &models.Participant{TournamentID: uuid.New(), UserID: "carol", DisplayName: "Carol", JoinedAt: baseTime}
	assert.ErrorIs(t, repo.Add(ctx, nil, orphan), ErrParticipantTournamentInvalid)

	count, err := repo.Count(ctx, nil, tournament.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	list, err := repo.ListByTournament(ctx, nil, tournament.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "alice", list[0].UserID)
	assert.Equal(t, "Bob", list[1].DisplayName)

	got, err := repo.Get(ctx, nil, tournament.ID, "bob")
	require.NoError(t, err)
	assert.Equal(t, "Bob", got.DisplayName)

	require.NoError(t, repo.Remove(ctx, nil, tournament.ID, "bob"))
	assert.ErrorIs(t, repo.Remove(ctx, nil, tournament.ID, "bob"), ErrParticipantNotFound)
	_, err = repo.Get(ctx, nil, tournament.ID, "bob")
	assert.ErrorIs(t, err, ErrParticipantNotFound)
}

func TestMatchRepository(t *testing.T) {
	database := setupTestDB(t)
	tournaments := NewTournamentRepository(database)
	repo := NewMatchRepository(database)
	ctx := context.Background()

	tournament := newTournament("Cup", "alice")
	require.NoError(t, tournaments.Create(ctx, nil, tournament))

	regular := &models.Match{
		ID: uuid.New(), TournamentID: tournament.ID, Round: 1, MatchOrder: 0,
		Player1ID: "alice", Player2ID: strPtr("bob"), Status: models.MatchStatusPending, CreatedAt: baseTime,
	}
	bye := &models.Match{
		ID: uuid.New(), TournamentID: tournament.ID, Round: 1, MatchOrder: 1,
		Player1ID: "carol", Status: models.MatchStatusCompleted, ScorePlayer1: 1,
		WinnerID: strPtr("carol"), StartTime: &baseTime, EndTime: &baseTime, CreatedAt: baseTime,
	}

	tx, err := database.BeginTxx(ctx, nil)
	require.NoError(t, err)
	require.NoError(t, repo.CreateBatch(ctx, tx, []*models.Match{bye, regular}))
	require.NoError(t, tx.Commit())

	round := 1
	matches, err := repo.ListByTournament(ctx, nil, tournament.ID, &round)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, regular.ID, matches[0].ID, "ordered by match_order")
	require.NotNil(t, matches[0].Player2ID)
	assert.Equal(t, "bob", *matches[0].Player2ID)
	assert.True(t, matches[1].IsBye())
	require.NotNil(t, matches[1].WinnerID)
	assert.Equal(t, "carol", *matches[1].WinnerID)
}

func TestMatchRepositoryUpdateAndConflicts(t *testing.T) {
	database := setupTestDB(t)
	tournaments := NewTournamentRepository(database)
	repo := NewMatchRepository(database)
	ctx := context.Background()

	tournament := newTournament("Cup", "alice")
	require.NoError(t, tournaments.Create(ctx, nil, tournament))

	m := &models.Match{
		ID: uuid.New(), TournamentID: tournament.ID, Round: 1, MatchOrder: 0,
		Player1ID: "alice", Player2ID: strPtr("bob"), Status: models.MatchStatusPending, CreatedAt: baseTime,
	}
	require.NoError(t, repo.CreateBatch(ctx, nil, []*models.Match{m}))

	clash := *m
	clash.ID = uuid.New()
	assert.ErrorIs(t, repo.CreateBatch(ctx, nil, []*models.Match{&clash}), ErrMatchSlotConflict)

	end := baseTime.Add(time.Hour)
	m.Status = models.MatchStatusCompleted
	m.ScorePlayer1 = 3
	m.ScorePlayer2 = 1
	m.WinnerID = strPtr("alice")
	m.EndTime = &end
	require.NoError(t, repo.Update(ctx, nil, m))

	got, err := repo.GetByID(ctx, nil, m.ID)
	require.NoError(t, err)
	assert.Equal(t, models.MatchStatusCompleted, got.Status)
	assert.Equal(t, 3, got.ScorePlayer1)
	assert.Equal(t, 1, got.ScorePlayer2)
	require.NotNil(t, got.WinnerID)
	assert.Equal(t, "alice", *got.WinnerID)

	_, err = repo.GetByID(ctx, nil, uuid.New())
	assert.ErrorIs(t, err, ErrMatchNotFound)

	missing := *m
	missing.ID = uuid.New()
	assert.ErrorIs(t, repo.Update(ctx, nil, &missing), ErrMatchNotFound)

	// Deleting the tournament cascades to its matches.
	require.NoError(t, tournaments.Delete(ctx, nil, tournament.ID))
	_, err = repo.GetByID(ctx, nil, m.ID)
	assert.ErrorIs(t, err, ErrMatchNotFound)
}
