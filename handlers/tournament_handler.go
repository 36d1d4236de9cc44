package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/Dosada05/tournament-orchestrator/models"
	"github.com/Dosada05/tournament-orchestrator/services"
	"github.com/google/uuid"
)

type TournamentHandler struct {
	responder
	tournamentService services.TournamentService
	bracketService    services.BracketService
}

func NewTournamentHandler(ts services.TournamentService, bs services.BracketService, logger *slog.Logger) *TournamentHandler {
	return &TournamentHandler{
		responder:         responder{logger: logger},
		tournamentService: ts,
		bracketService:    bs,
	}
}

// Create godoc
// @Summary Создать турнир
// @Tags tournaments
// @Description Создатель автоматически становится участником.
// @Accept json
// @Produce json
// @Param input body services.CreateTournamentInput true "Tournament name"
// @Success 201 {object} map[string]interface{} "Созданный турнир"
// @Failure 400 {object} map[string]string "Пустое или слишком длинное имя"
// @Failure 401 {object} map[string]string "Неавторизован"
// @Failure 409 {object} map[string]string "Активный турнир с таким именем уже есть"
// @Security BearerAuth
// @Router /tournaments [post]
func (h *TournamentHandler) Create(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	var input services.CreateTournamentInput
	if err := readJSON(w, r, &input); err != nil {
		h.badRequestResponse(w, r, err)
		return
	}

	tournament, err := h.tournamentService.Create(r.Context(), user, input)
	if err != nil {
		h.mapServiceErrorToHTTP(w, r, err)
		return
	}
	h.writeOK(w, r, http.StatusCreated, jsonResponse{"tournament": tournament})
}

// List godoc
// @Summary Список турниров
// @Tags tournaments
// @Produce json
// @Param status query string false "open, in_progress, completed or canceled"
// @Param limit query int false "Page size (default 50, max 100)"
// @Param offset query int false "Offset"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} map[string]string
// @Security BearerAuth
// @Router /tournaments [get]
func (h *TournamentHandler) List(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	input := services.ListTournamentsInput{Status: r.URL.Query().Get("status")}
	var err error
	if input.Limit, err = getIntQuery(r, "limit"); err != nil {
		h.badRequestResponse(w, r, err)
		return
	}
	if input.Offset, err = getIntQuery(r, "offset"); err != nil {
		h.badRequestResponse(w, r, err)
		return
	}

	tournaments, err := h.tournamentService.List(r.Context(), user, input)
	if err != nil {
		h.mapServiceErrorToHTTP(w, r, err)
		return
	}
	h.writeOK(w, r, http.StatusOK, jsonResponse{"tournaments": tournaments})
}

// Get godoc
// @Summary Турнир с сеткой и участниками
// @Tags tournaments
// @Produce json
// @Param tournamentID path string true "Tournament ID"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} map[string]string
// @Security BearerAuth
// @Router /tournaments/{tournamentID} [get]
func (h *TournamentHandler) Get(w http.ResponseWriter, r *http.Request) {
	h.bracket(w, r)
}

// Bracket godoc
// @Summary Сетка турнира по раундам
// @Tags tournaments
// @Produce json
// @Param tournamentID path string true "Tournament ID"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} map[string]string
// @Security BearerAuth
// @Router /tournaments/{tournamentID}/bracket [get]
func (h *TournamentHandler) Bracket(w http.ResponseWriter, r *http.Request) {
	h.bracket(w, r)
}

func (h *TournamentHandler) bracket(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	tournamentID, err := getUUIDFromURL(r, "tournamentID")
	if err != nil {
		h.badRequestResponse(w, r, err)
		return
	}

	snapshot, err := h.bracketService.GetBracket(r.Context(), tournamentID, user.ID)
	if err != nil {
		h.mapServiceErrorToHTTP(w, r, err)
		return
	}
	h.writeOK(w, r, http.StatusOK, jsonResponse{"tournament": snapshot})
}

// Join godoc
// @Summary Присоединиться к турниру
// @Tags tournaments
// @Produce json
// @Param tournamentID path string true "Tournament ID"
// @Success 200 {object} services.MembershipResult
// @Failure 400 {object} map[string]string "Уже участник / турнир не открыт"
// @Failure 404 {object} map[string]string
// @Security BearerAuth
// @Router /tournaments/{tournamentID}/join [post]
func (h *TournamentHandler) Join(w http.ResponseWriter, r *http.Request) {
	h.membership(w, r, h.tournamentService.Join)
}

// Leave godoc
// @Summary Покинуть турнир
// @Tags tournaments
// @Description Если создатель уходит последним, турнир удаляется.
// @Produce json
// @Param tournamentID path string true "Tournament ID"
// @Success 200 {object} services.MembershipResult
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Security BearerAuth
// @Router /tournaments/{tournamentID}/leave [post]
func (h *TournamentHandler) Leave(w http.ResponseWriter, r *http.Request) {
	h.membership(w, r, h.tournamentService.Leave)
}

type tournamentAction[T any] func(ctx context.Context, actor models.User, tournamentID uuid.UUID) (T, error)

func (h *TournamentHandler) membership(w http.ResponseWriter, r *http.Request, action tournamentAction[*services.MembershipResult]) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	tournamentID, err := getUUIDFromURL(r, "tournamentID")
	if err != nil {
		h.badRequestResponse(w, r, err)
		return
	}

	result, err := action(r.Context(), user, tournamentID)
	if err != nil {
		h.mapServiceErrorToHTTP(w, r, err)
		return
	}
	h.writeOK(w, r, http.StatusOK, result)
}

// Start godoc
// @Summary Запустить турнир
// @Tags tournaments
// @Description Только создатель; нужно минимум 2 участника. Возвращает сетку первого раунда.
// @Produce json
// @Param tournamentID path string true "Tournament ID"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} map[string]string
// @Failure 403 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Security BearerAuth
// @Router /tournaments/{tournamentID}/start [post]
func (h *TournamentHandler) Start(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, h.tournamentService.Start, "tournament started")
}

// Cancel godoc
// @Summary Отменить турнир
// @Tags tournaments
// @Produce json
// @Param tournamentID path string true "Tournament ID"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} map[string]string
// @Failure 403 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Security BearerAuth
// @Router /tournaments/{tournamentID}/cancel [post]
func (h *TournamentHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, h.tournamentService.Cancel, "tournament canceled")
}

// Advance godoc
// @Summary Перейти к следующему раунду
// @Tags tournaments
// @Description Обычно раунд продвигается автоматически; эндпоинт нужен для восстановления.
// @Produce json
// @Param tournamentID path string true "Tournament ID"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} map[string]string "Раунд не завершён"
// @Failure 403 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Failure 409 {object} map[string]string "Завершённый матч без победителя"
// @Security BearerAuth
// @Router /tournaments/{tournamentID}/advance [post]
func (h *TournamentHandler) Advance(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, h.tournamentService.AdvanceRound, "round advanced")
}

func (h *TournamentHandler) lifecycle(w http.ResponseWriter, r *http.Request, action tournamentAction[*services.BracketSnapshot], message string) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	tournamentID, err := getUUIDFromURL(r, "tournamentID")
	if err != nil {
		h.badRequestResponse(w, r, err)
		return
	}

	snapshot, err := action(r.Context(), user, tournamentID)
	if err != nil {
		h.mapServiceErrorToHTTP(w, r, err)
		return
	}
	h.writeOK(w, r, http.StatusOK, jsonResponse{"message": message, "tournament": snapshot})
}

// CurrentMatches godoc
// @Summary Матчи текущего раунда
// @Tags tournaments
// @Produce json
// @Param tournamentID path string true "Tournament ID"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} map[string]string
// @Security BearerAuth
// @Router /tournaments/{tournamentID}/matches/current [get]
func (h *TournamentHandler) CurrentMatches(w http.ResponseWriter, r *http.Request) {
	tournamentID, err := getUUIDFromURL(r, "tournamentID")
	if err != nil {
		h.badRequestResponse(w, r, err)
		return
	}

	matches, err := h.tournamentService.GetCurrentMatches(r.Context(), tournamentID)
	if err != nil {
		h.mapServiceErrorToHTTP(w, r, err)
		return
	}
	h.writeOK(w, r, http.StatusOK, jsonResponse{"matches": matches})
}
