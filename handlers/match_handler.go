package handlers

import (
	"log/slog"
	"net/http"

	"github.com/Dosada05/tournament-orchestrator/services"
)

type MatchHandler struct {
	responder
	matchService services.MatchService
}

func NewMatchHandler(ms services.MatchService, logger *slog.Logger) *MatchHandler {
	return &MatchHandler{
		responder:    responder{logger: logger},
		matchService: ms,
	}
}

// Start godoc
// @Summary Начать матч
// @Tags matches
// @Description Только игрок матча. Возвращает дескриптор игровой сессии с redirect_url.
// @Produce json
// @Param matchID path string true "Match ID"
// @Success 200 {object} services.MatchSession
// @Failure 400 {object} map[string]string
// @Failure 403 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Security BearerAuth
// @Router /matches/{matchID}/start [post]
func (h *MatchHandler) Start(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	matchID, err := getUUIDFromURL(r, "matchID")
	if err != nil {
		h.badRequestResponse(w, r, err)
		return
	}

	session, err := h.matchService.StartMatch(r.Context(), user, matchID)
	if err != nil {
		h.mapServiceErrorToHTTP(w, r, err)
		return
	}
	h.writeOK(w, r, http.StatusOK, session)
}

// RecordScore godoc
// @Summary Записать счёт матча
// @Tags matches
// @Description Игрок матча или создатель турнира. При равном счёте нужен winner_id.
// @Accept json
// @Produce json
// @Param matchID path string true "Match ID"
// @Param input body services.RecordScoreInput true "Scores"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} map[string]string
// @Failure 403 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Security BearerAuth
// @Router /matches/{matchID}/score [post]
func (h *MatchHandler) RecordScore(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	matchID, err := getUUIDFromURL(r, "matchID")
	if err != nil {
		h.badRequestResponse(w, r, err)
		return
	}

	var input services.RecordScoreInput
	if err := readJSON(w, r, &input); err != nil {
		h.badRequestResponse(w, r, err)
		return
	}

	snapshot, err := h.matchService.RecordScore(r.Context(), user, matchID, input)
	if err != nil {
		h.mapServiceErrorToHTTP(w, r, err)
		return
	}
	h.writeOK(w, r, http.StatusOK, jsonResponse{"message": "score recorded", "tournament": snapshot})
}

// Forfeit godoc
// @Summary Сдать матч
// @Tags matches
// @Produce json
// @Param matchID path string true "Match ID"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} map[string]string
// @Failure 403 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Security BearerAuth
// @Router /matches/{matchID}/forfeit [post]
func (h *MatchHandler) Forfeit(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	matchID, err := getUUIDFromURL(r, "matchID")
	if err != nil {
		h.badRequestResponse(w, r, err)
		return
	}

	snapshot, err := h.matchService.Forfeit(r.Context(), user, matchID)
	if err != nil {
		h.mapServiceErrorToHTTP(w, r, err)
		return
	}
	h.writeOK(w, r, http.StatusOK, jsonResponse{"message": "match forfeited", "tournament": snapshot})
}
