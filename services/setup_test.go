package services

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/Dosada05/tournament-orchestrator/brackets"
	"github.com/Dosada05/tournament-orchestrator/db"
	"github.com/Dosada05/tournament-orchestrator/models"
	"github.com/Dosada05/tournament-orchestrator/repositories"
	"github.com/Dosada05/tournament-orchestrator/storage"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
)

var (
	alice = models.User{ID: "alice", Name: "Alice"}
	bob   = models.User{ID: "bob", Name: "Bob"}
	carol = models.User{ID: "carol", Name: "Carol"}
	dave  = models.User{ID: "dave", Name: "Dave"}
	eve   = models.User{ID: "eve", Name: "Eve"}
)

var users = map[string]models.User{
	alice.ID: alice, bob.ID: bob, carol.ID: carol, dave.ID: dave, eve.ID: eve,
}

type recordingSink struct {
	mu     sync.Mutex
	events []models.Event
}

func (s *recordingSink) Enqueue(events []models.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, events...)
}

func (s *recordingSink) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = nil
}

func (s *recordingSink) kindsFor(userID string) []models.NotificationKind {
	s.mu.Lock()
	defer s.mu.Unlock()
	var kinds []models.NotificationKind
	for _, ev := range s.events {
		if ev.RecipientID == userID {
			kinds = append(kinds, ev.Notification.Kind)
		}
	}
	return kinds
}

func (s *recordingSink) find(userID string, kind models.NotificationKind) (models.Notification, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ev := range s.events {
		if ev.RecipientID == userID && ev.Notification.Kind == kind {
			return ev.Notification, true
		}
	}
	return models.Notification{}, false
}

type fakeUploader struct {
	mu      sync.Mutex
	objects map[string][]byte
	err     error
	// gate, если задан, держит Upload до закрытия канала.
	gate chan struct{}
}

func newFakeUploader() *fakeUploader {
	return &fakeUploader{objects: make(map[string][]byte)}
}

func (u *fakeUploader) Upload(_ context.Context, key, _ string, reader io.Reader) (*storage.UploadResult, error) {
	if u.gate != nil {
		<-u.gate
	}
	if u.err != nil {
		return nil, u.err
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, reader); err != nil {
		return nil, err
	}
	u.mu.Lock()
	u.objects[key] = buf.Bytes()
	u.mu.Unlock()
	return &storage.UploadResult{Key: key, Location: u.GetPublicURL(key)}, nil
}

func (u *fakeUploader) Delete(_ context.Context, key string) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	delete(u.objects, key)
	return nil
}

func (u *fakeUploader) stored(key string) bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	_, ok := u.objects[key]
	return ok
}

func (u *fakeUploader) GetPublicURL(key string) string {
	return "https://archive.example.com/" + key
}

type testEnv struct {
	db           *sqlx.DB
	clock        *clockwork.FakeClock
	sink         *recordingSink
	locker       *TournamentLocker
	tournaments  TournamentService
	matches      MatchService
	brackets     BracketService
	tournamentDB repositories.TournamentRepository
	participants repositories.ParticipantRepository
	matchDB      repositories.MatchRepository
	logger       *slog.Logger
	logs         *syncBuffer
}

// syncBuffer collects log output written from concurrent goroutines.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

var testStart = time.Date(2024, 6, 1, 18, 0, 0, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvAt(t, "file::memory:")
}

func newTestEnvAt(t *testing.T, dsn string) *testEnv {
	t.Helper()

	database, err := db.Connect(db.DriverSQLite, dsn, time.Second)
	require.NoError(t, err)
	require.NoError(t, db.Migrate(database))
	t.Cleanup(func() { _ = database.Close() })

	logs := &syncBuffer{}
	env := &testEnv{
		db:           database,
		clock:        clockwork.NewFakeClockAt(testStart),
		sink:         &recordingSink{},
		locker:       NewTournamentLocker(),
		tournamentDB: repositories.NewTournamentRepository(database),
		participants: repositories.NewParticipantRepository(database),
		matchDB:      repositories.NewMatchRepository(database),
		logger:       slog.New(slog.NewTextHandler(logs, &slog.HandlerOptions{Level: slog.LevelDebug})),
		logs:         logs,
	}
	env.brackets = NewBracketService(env.tournamentDB, env.participants, env.matchDB, nil, env.logger)

	deps := AggregateDeps{
		DB:              database,
		Locker:          env.locker,
		TournamentRepo:  env.tournamentDB,
		ParticipantRepo: env.participants,
		MatchRepo:       env.matchDB,
		Generator:       brackets.NewSingleEliminationGenerator(rand.NewPCG(1, 2)),
		Brackets:        env.brackets,
		Events:          env.sink,
		Clock:           env.clock,
		Logger:          env.logger,
	}
	env.tournaments = NewTournamentService(deps)
	env.matches = NewMatchService(deps, "")
	return env
}

// openTournament creates a tournament owned by creator and joins the others.
func (e *testEnv) openTournament(t *testing.T, creator models.User, name string, others ...models.User) uuid.UUID {
	t.Helper()
	ctx := context.Background()

	tournament, err := e.tournaments.Create(ctx, creator, CreateTournamentInput{Name: name})
	require.NoError(t, err)
	for _, u := range others {
		_, err := e.tournaments.Join(ctx, u, tournament.ID)
		require.NoError(t, err)
	}
	return tournament.ID
}

func (e *testEnv) startedTournament(t *testing.T, creator models.User, others ...models.User) uuid.UUID {
	t.Helper()
	id := e.openTournament(t, creator, "Cup "+uuid.NewString()[:8], others...)
	_, err := e.tournaments.Start(context.Background(), creator, id)
	require.NoError(t, err)
	return id
}

func (e *testEnv) currentMatches(t *testing.T, tournamentID uuid.UUID) []*models.Match {
	t.Helper()
	matches, err := e.tournaments.GetCurrentMatches(context.Background(), tournamentID)
	require.NoError(t, err)
	return matches
}

func (e *testEnv) tournament(t *testing.T, id uuid.UUID) *models.Tournament {
	t.Helper()
	tournament, err := e.tournamentDB.GetByID(context.Background(), nil, id)
	require.NoError(t, err)
	return tournament
}

func (e *testEnv) match(t *testing.T, id uuid.UUID) *models.Match {
	t.Helper()
	m, err := e.matchDB.GetByID(context.Background(), nil, id)
	require.NoError(t, err)
	return m
}

// play starts m as player1 and records a 3-1 win for player1.
func (e *testEnv) play(t *testing.T, m *models.Match) *BracketSnapshot {
	t.Helper()
	ctx := context.Background()
	p1 := users[m.Player1ID]

	_, err := e.matches.StartMatch(ctx, p1, m.ID)
	require.NoError(t, err)
	snapshot, err := e.matches.RecordScore(ctx, p1, m.ID, RecordScoreInput{ScorePlayer1: 3, ScorePlayer2: 1})
	require.NoError(t, err)
	return snapshot
}

// playRound plays every non-bye match of the current round.
func (e *testEnv) playRound(t *testing.T, tournamentID uuid.UUID) {
	t.Helper()
	for _, m := range e.currentMatches(t, tournamentID) {
		if !m.IsBye() {
			e.play(t, m)
		}
	}
}

func nonBye(matches []*models.Match) []*models.Match {
	var out []*models.Match
	for _, m := range matches {
		if !m.IsBye() {
			out = append(out, m)
		}
	}
	return out
}

func strPtr(s string) *string { return &s }
