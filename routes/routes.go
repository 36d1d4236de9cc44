package routes

import (
	"log/slog"
	"net/http"
	"time"

	_ "github.com/Dosada05/tournament-orchestrator/docs"
	"github.com/Dosada05/tournament-orchestrator/handlers"
	"github.com/Dosada05/tournament-orchestrator/middleware"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware" // Alias to avoid conflict
	"github.com/go-chi/cors"
	httpSwagger "github.com/swaggo/http-swagger"
)

const requestTimeout = 30 * time.Second

// Options содержит всё, что нужно маршрутизатору помимо обработчиков.
type Options struct {
	JWTSecret      []byte
	AllowedOrigins []string
	Logger         *slog.Logger
}

type Handlers struct {
	Tournament *handlers.TournamentHandler
	Match      *handlers.MatchHandler
	WebSocket  *handlers.WebSocketHandler
	Health     *handlers.HealthHandler
}

func SetupRoutes(router chi.Router, opts Options, h Handlers) {
	router.Use(chiMiddleware.RequestID)
	router.Use(chiMiddleware.RealIP)
	router.Use(middleware.RequestLogger(opts.Logger))
	router.Use(chiMiddleware.Recoverer)

	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	router.Get("/swagger/*", httpSwagger.WrapHandler)
	router.Get("/healthz", h.Health.Health)

	authenticate := middleware.Authenticate(opts.JWTSecret, opts.Logger)

	// Websocket живёт дольше любого таймаута запроса, поэтому без Timeout.
	router.With(authenticate).Get("/ws", h.WebSocket.ServeWs)

	router.Group(func(r chi.Router) {
		r.Use(authenticate)
		r.Use(chiMiddleware.Timeout(requestTimeout))

		r.Route("/tournaments", func(r chi.Router) {
			r.Get("/", h.Tournament.List)
			r.Post("/", h.Tournament.Create)

			r.Route("/{tournamentID}", func(r chi.Router) {
				r.Get("/", h.Tournament.Get)
				r.Get("/bracket", h.Tournament.Bracket)
				r.Get("/matches/current", h.Tournament.CurrentMatches)

				r.Post("/join", h.Tournament.Join)
				r.Post("/leave", h.Tournament.Leave)
				r.Post("/start", h.Tournament.Start)
				r.Post("/cancel", h.Tournament.Cancel)
				r.Post("/advance", h.Tournament.Advance)
			})
		})

		r.Route("/matches/{matchID}", func(r chi.Router) {
			r.Post("/start", h.Match.Start)
			r.Post("/score", h.Match.RecordScore)
			r.Post("/forfeit", h.Match.Forfeit)
		})
	})
}
