package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Dosada05/tournament-orchestrator/brackets"
	"github.com/Dosada05/tournament-orchestrator/db"
	"github.com/Dosada05/tournament-orchestrator/handlers"
	"github.com/Dosada05/tournament-orchestrator/models"
	"github.com/Dosada05/tournament-orchestrator/notify"
	"github.com/Dosada05/tournament-orchestrator/realtime"
	"github.com/Dosada05/tournament-orchestrator/repositories"
	"github.com/Dosada05/tournament-orchestrator/services"
	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v4"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("routes-test-secret")

type apiClient struct {
	t      *testing.T
	server *httptest.Server
	hub    *realtime.Hub
}

func newAPI(t *testing.T) *apiClient {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	database, err := db.Connect(db.DriverSQLite, "file::memory:", time.Second)
	require.NoError(t, err)
	require.NoError(t, db.Migrate(database))
	t.Cleanup(func() { _ = database.Close() })

	tournamentRepo := repositories.NewTournamentRepository(database)
	participantRepo := repositories.NewParticipantRepository(database)
	matchRepo := repositories.NewMatchRepository(database)
	bracketService := services.NewBracketService(tournamentRepo, participantRepo, matchRepo, nil, logger)

	ctx, cancel := context.WithCancel(context.Background())
	hub := realtime.NewHub(logger)
	go hub.Run(ctx)
	dispatcher := notify.NewDispatcher(hub, 16, logger)
	dispatcher.Start()
	t.Cleanup(func() {
		dispatcher.Stop()
		cancel()
	})

	deps := services.AggregateDeps{
		DB:              database,
		Locker:          services.NewTournamentLocker(),
		TournamentRepo:  tournamentRepo,
		ParticipantRepo: participantRepo,
		MatchRepo:       matchRepo,
		Generator:       brackets.NewSingleEliminationGenerator(rand.NewPCG(7, 11)),
		Brackets:        bracketService,
		Events:          dispatcher,
		Clock:           clockwork.NewFakeClockAt(time.Date(2024, 6, 1, 18, 0, 0, 0, time.UTC)),
		Logger:          logger,
	}

	router := chi.NewRouter()
	SetupRoutes(router,
		Options{JWTSecret: testSecret, Logger: logger},
		Handlers{
			Tournament: handlers.NewTournamentHandler(services.NewTournamentService(deps), bracketService, logger),
			Match:      handlers.NewMatchHandler(services.NewMatchService(deps, services.DefaultGameClientURL), logger),
			WebSocket:  handlers.NewWebSocketHandler(hub, nil, logger),
			Health:     handlers.NewHealthHandler(database, logger),
		},
	)

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return &apiClient{t: t, server: server, hub: hub}
}

func token(t *testing.T, userID, name string) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": userID,
		"name":    name,
		"exp":     time.Now().Add(time.Hour).Unix(),
	}).SignedString(testSecret)
	require.NoError(t, err)
	return signed
}

// do выполняет запрос от имени userID (пустой userID означает анонимный запрос).
func (c *apiClient) do(method, path, userID string, body interface{}) (int, map[string]interface{}) {
	c.t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(c.t, err)
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, c.server.URL+path, reader)
	require.NoError(c.t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if userID != "" {
		req.Header.Set("Authorization", "Bearer "+token(c.t, userID, strings.ToUpper(userID[:1])+userID[1:]))
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(c.t, err)
	defer resp.Body.Close()

	var decoded map[string]interface{}
	raw, err := io.ReadAll(resp.Body)
	require.NoError(c.t, err)
	if len(raw) > 0 {
		require.NoError(c.t, json.Unmarshal(raw, &decoded), string(raw))
	}
	return resp.StatusCode, decoded
}

func (c *apiClient) createTournament(userID, name string) string {
	c.t.Helper()
	status, body := c.do(http.MethodPost, "/tournaments", userID, map[string]string{"name": name})
	require.Equal(c.t, http.StatusCreated, status, body)
	return body["tournament"].(map[string]interface{})["id"].(string)
}

func TestHealthz(t *testing.T) {
	api := newAPI(t)
	status, body := api.do(http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", body["status"])
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	api := newAPI(t)

	for _, path := range []string{"/tournaments", "/ws"} {
		status, body := api.do(http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, status, path)
		assert.NotEmpty(t, body["error"], path)
	}
}

func TestCreateTournamentValidation(t *testing.T) {
	api := newAPI(t)

	status, _ := api.do(http.MethodPost, "/tournaments", "alice", map[string]string{"name": "   "})
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = api.do(http.MethodPost, "/tournaments", "alice", map[string]string{"title": "x"})
	assert.Equal(t, http.StatusBadRequest, status, "unknown fields are rejected")

	api.createTournament("alice", "Friday Cup")
	status, body := api.do(http.MethodPost, "/tournaments", "bob", map[string]string{"name": "Friday Cup"})
	assert.Equal(t, http.StatusConflict, status)
	assert.NotEmpty(t, body["error"])
}

func TestTournamentNotFoundAndBadID(t *testing.T) {
	api := newAPI(t)

	status, _ := api.do(http.MethodGet, "/tournaments/0b7d6d3e-6a4f-4f5e-9f39-4f1f2d8a0c11", "alice", nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = api.do(http.MethodGet, "/tournaments/not-a-uuid", "alice", nil)
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = api.do(http.MethodPost, "/matches/0b7d6d3e-6a4f-4f5e-9f39-4f1f2d8a0c11/start", "alice", nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestJoinStartPlayFlow(t *testing.T) {
	api := newAPI(t)
	id := api.createTournament("alice", "Duel")

	status, body := api.do(http.MethodPost, "/tournaments/"+id+"/join", "bob", nil)
	require.Equal(t, http.StatusOK, status, body)
	assert.EqualValues(t, 2, body["participants_count"])

	status, _ = api.do(http.MethodPost, "/tournaments/"+id+"/join", "bob", nil)
	assert.Equal(t, http.StatusBadRequest, status, "double join")

	status, _ = api.do(http.MethodPost, "/tournaments/"+id+"/start", "bob", nil)
	assert.Equal(t, http.StatusForbidden, status, "only the creator starts")

	status, body = api.do(http.MethodPost, "/tournaments/"+id+"/start", "alice", nil)
	require.Equal(t, http.StatusOK, status, body)
	snapshot := body["tournament"].(map[string]interface{})
	assert.Equal(t, "in_progress", snapshot["status"])
	assert.EqualValues(t, 1, snapshot["current_round"])

	status, body = api.do(http.MethodGet, "/tournaments/"+id+"/matches/current", "bob", nil)
	require.Equal(t, http.StatusOK, status)
	matches := body["matches"].([]interface{})
	require.Len(t, matches, 1)
	match := matches[0].(map[string]interface{})
	matchID := match["id"].(string)

	status, _ = api.do(http.MethodPost, "/matches/"+matchID+"/start", "carol", nil)
	assert.Equal(t, http.StatusForbidden, status)

	status, body = api.do(http.MethodPost, "/matches/"+matchID+"/start", "bob", nil)
	require.Equal(t, http.StatusOK, status, body)
	assert.Contains(t, body["redirect_url"], "matchId="+matchID)

	status, _ = api.do(http.MethodPost, "/matches/"+matchID+"/score", "bob",
		map[string]int{"score_player1": 2, "score_player2": 2})
	assert.Equal(t, http.StatusBadRequest, status, "tie without winner")

	player1 := match["player1_id"].(string)
	status, body = api.do(http.MethodPost, "/matches/"+matchID+"/score", "bob",
		map[string]int{"score_player1": 5, "score_player2": 1})
	require.Equal(t, http.StatusOK, status, body)
	snapshot = body["tournament"].(map[string]interface{})
	assert.Equal(t, "completed", snapshot["status"])
	winner := snapshot["winner"].(map[string]interface{})
	assert.Equal(t, player1, winner["id"])

	status, body = api.do(http.MethodGet, "/tournaments/"+id+"/bracket", "alice", nil)
	require.Equal(t, http.StatusOK, status)
	snapshot = body["tournament"].(map[string]interface{})
	rounds := snapshot["rounds"].([]interface{})
	require.Len(t, rounds, 1)
	round := rounds[0].(map[string]interface{})
	assert.EqualValues(t, 1, round["round"])
	final := round["matches"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, "completed", final["status"])
	assert.Equal(t, map[string]interface{}{"player1": float64(5), "player2": float64(1)}, final["score"])
	assert.Equal(t, true, snapshot["is_creator"])

	status, _ = api.do(http.MethodPost, "/tournaments/"+id+"/advance", "alice", nil)
	assert.Equal(t, http.StatusBadRequest, status, "completed tournaments do not advance")
}

func TestListTournaments(t *testing.T) {
	api := newAPI(t)
	api.createTournament("alice", "One")
	second := api.createTournament("bob", "Two")

	status, body := api.do(http.MethodPost, "/tournaments/"+second+"/cancel", "bob", nil)
	require.Equal(t, http.StatusOK, status, body)

	status, body = api.do(http.MethodGet, "/tournaments?status=open", "alice", nil)
	require.Equal(t, http.StatusOK, status)
	list := body["tournaments"].([]interface{})
	require.Len(t, list, 1)
	entry := list[0].(map[string]interface{})
	assert.Equal(t, "One", entry["name"])
	assert.Equal(t, true, entry["is_creator"])

	status, _ = api.do(http.MethodGet, "/tournaments?status=bogus", "alice", nil)
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = api.do(http.MethodGet, "/tournaments?limit=-1", "alice", nil)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestCORSPreflight(t *testing.T) {
	api := newAPI(t)

	req, err := http.NewRequest(http.MethodOptions, api.server.URL+"/tournaments", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://play.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", "Authorization")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.NotEmpty(t, resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Contains(t, resp.Header.Get("Access-Control-Allow-Methods"), http.MethodPost)
}

func TestWebSocketReceivesOwnNotifications(t *testing.T) {
	api := newAPI(t)
	id := api.createTournament("alice", "Live Cup")

	wsURL := "ws" + strings.TrimPrefix(api.server.URL, "http") + "/ws?token=" + token(t, "alice", "Alice")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool {
		return api.hub.SubscriberCount(notify.UserChannel("alice")) == 1
	}, 2*time.Second, 10*time.Millisecond)

	status, _ := api.do(http.MethodPost, "/tournaments/"+id+"/join", "bob", nil)
	require.Equal(t, http.StatusOK, status)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var notification models.Notification
	require.NoError(t, conn.ReadJSON(&notification))
	assert.Equal(t, models.KindTournamentJoined, notification.Kind)
	assert.Equal(t, id, notification.TournamentID.String())
	assert.Equal(t, "Live Cup", notification.TournamentName)
	assert.Equal(t, "Bob joined the tournament Live Cup", notification.Message)
}
