package handlers

import (
	"log/slog"
	"net/http"

	"github.com/Dosada05/tournament-orchestrator/notify"
	"github.com/Dosada05/tournament-orchestrator/realtime"
	"github.com/gorilla/websocket"
)

type WebSocketHandler struct {
	responder
	hub      *realtime.Hub
	upgrader websocket.Upgrader
}

// NewWebSocketHandler accepts upgrades from the given origins; "*" allows any.
func NewWebSocketHandler(hub *realtime.Hub, allowedOrigins []string, logger *slog.Logger) *WebSocketHandler {
	h := &WebSocketHandler{
		responder: responder{logger: logger},
		hub:       hub,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(allowedOrigins),
	}
	return h
}

func originChecker(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, o := range allowed {
			if o == "*" || o == origin {
				return true
			}
		}
		return false
	}
}

// ServeWs godoc
// @Summary Канал уведомлений пользователя
// @Tags realtime
// @Description Websocket: после апгрейда клиент получает JSON-уведомления, адресованные текущему пользователю. Токен можно передать в параметре token.
// @Param token query string false "JWT for browsers that cannot set headers"
// @Success 101 {string} string "Switching Protocols"
// @Failure 401 {object} map[string]string
// @Router /ws [get]
func (h *WebSocketHandler) ServeWs(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade сам отправляет HTTP ошибку клиенту, здесь только логируем.
		h.logger.Warn("websocket upgrade failed",
			slog.String("user_id", user.ID),
			slog.Any("error", err))
		return
	}

	client := realtime.NewClient(h.hub, conn, notify.UserChannel(user.ID))
	if !h.hub.Subscribe(client) {
		_ = conn.Close()
		return
	}

	go client.WritePump()
	go client.ReadPump()

	h.logger.Debug("websocket client subscribed", slog.String("user_id", user.ID))
}
