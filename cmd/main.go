package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Dosada05/tournament-orchestrator/brackets"
	"github.com/Dosada05/tournament-orchestrator/config"
	"github.com/Dosada05/tournament-orchestrator/db"
	"github.com/Dosada05/tournament-orchestrator/handlers"
	"github.com/Dosada05/tournament-orchestrator/notify"
	"github.com/Dosada05/tournament-orchestrator/realtime"
	"github.com/Dosada05/tournament-orchestrator/repositories"
	api "github.com/Dosada05/tournament-orchestrator/routes"
	"github.com/Dosada05/tournament-orchestrator/services"
	"github.com/Dosada05/tournament-orchestrator/storage"
	"github.com/go-chi/chi/v5"
	"github.com/jonboulle/clockwork"
)

const shutdownTimeout = 15 * time.Second

func main() {
	// Загрузка конфигурации
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	// Настройка логгера
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)
	logger.Info("configuration loaded",
		slog.Int("port", cfg.ServerPort),
		slog.String("db_driver", cfg.DatabaseDriver),
		slog.Bool("nats", cfg.NATSURL != ""),
		slog.Bool("archive", cfg.ArchiveEnabled()))

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// Подключение к базе данных
	dbConn, err := db.Connect(cfg.DatabaseDriver, cfg.DatabaseURL, 5*time.Second)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := dbConn.Close(); err != nil {
			logger.Error("failed to close database connection", slog.Any("error", err))
		} else {
			logger.Info("database connection closed")
		}
	}()
	logger.Info("database connection established")

	if cfg.MigrateOnStart {
		if err := db.Migrate(dbConn); err != nil {
			logger.Error("failed to apply migrations", slog.Any("error", err))
			os.Exit(1)
		}
		logger.Info("migrations applied")
	}

	// Архив сеток в Cloudflare R2 (опционально)
	var uploader storage.FileUploader
	if cfg.ArchiveEnabled() {
		uploader, err = storage.NewCloudflareR2Uploader(ctx, storage.CloudflareR2UploaderConfig{
			AccountID:       cfg.R2AccountID,
			AccessKeyID:     cfg.R2AccessKeyID,
			SecretAccessKey: cfg.R2SecretAccessKey,
			BucketName:      cfg.R2BucketName,
			PublicBaseURL:   cfg.R2PublicBaseURL,
		})
		if err != nil {
			logger.Error("failed to initialize Cloudflare R2 uploader", slog.Any("error", err))
			os.Exit(1)
		}
		logger.Info("Cloudflare R2 uploader initialized")
	}

	// Инициализация WebSocket Hub
	wsHub := realtime.NewHub(logger)
	go wsHub.Run(ctx)
	logger.Info("WebSocket Hub started")

	var publisher notify.Publisher = wsHub
	if cfg.NATSURL != "" {
		nc, err := notify.ConnectNATS(cfg.NATSURL, logger)
		if err != nil {
			logger.Error("failed to connect to NATS", slog.Any("error", err))
			os.Exit(1)
		}
		defer nc.Close()

		relay := notify.NewNATSRelay(nc, cfg.NATSSubjectPrefix, wsHub, logger)
		if err := relay.Start(); err != nil {
			logger.Error("failed to start NATS relay", slog.Any("error", err))
			os.Exit(1)
		}
		defer func() {
			if err := relay.Close(); err != nil {
				logger.Warn("failed to close NATS relay", slog.Any("error", err))
			}
		}()
		publisher = notify.NewNATSPublisher(nc, cfg.NATSSubjectPrefix)
		logger.Info("NATS fan-out enabled", slog.String("prefix", cfg.NATSSubjectPrefix))
	}

	dispatcher := notify.NewDispatcher(publisher, cfg.NotifyQueueSize, logger)
	dispatcher.Start()
	defer dispatcher.Stop()

	// Инициализация репозиториев
	tournamentRepo := repositories.NewTournamentRepository(dbConn)
	participantRepo := repositories.NewParticipantRepository(dbConn)
	matchRepo := repositories.NewMatchRepository(dbConn)
	logger.Info("Repositories initialized")

	// Инициализация сервисов
	bracketService := services.NewBracketService(tournamentRepo, participantRepo, matchRepo, uploader, logger)
	deps := services.AggregateDeps{
		DB:              dbConn,
		Locker:          services.NewTournamentLocker(),
		TournamentRepo:  tournamentRepo,
		ParticipantRepo: participantRepo,
		MatchRepo:       matchRepo,
		Generator:       brackets.NewSingleEliminationGenerator(nil),
		Brackets:        bracketService,
		Events:          dispatcher,
		Clock:           clockwork.NewRealClock(),
		Logger:          logger,
	}
	tournamentService := services.NewTournamentService(deps)
	matchService := services.NewMatchService(deps, cfg.GameClientURL)
	logger.Info("Services initialized")

	// Инициализация обработчиков HTTP
	router := chi.NewRouter()
	api.SetupRoutes(router,
		api.Options{
			JWTSecret:      []byte(cfg.JWTSecretKey),
			AllowedOrigins: cfg.CORSAllowedOrigins,
			Logger:         logger,
		},
		api.Handlers{
			Tournament: handlers.NewTournamentHandler(tournamentService, bracketService, logger),
			Match:      handlers.NewMatchHandler(matchService, logger),
			WebSocket:  handlers.NewWebSocketHandler(wsHub, cfg.CORSAllowedOrigins, logger),
			Health:     handlers.NewHealthHandler(dbConn, logger),
		},
	)
	logger.Info("Routes configured")

	// Настройка и запуск HTTP-сервера
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 35 * time.Second,
		IdleTimeout:  120 * time.Second,
		ErrorLog:     slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("starting server", slog.String("address", server.Addr))
		serverErrors <- server.ListenAndServe()
	}()

	// Ожидание сигнала завершения
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", slog.Any("error", err))
			stop()
			os.Exit(1)
		}
		logger.Info("server stopped gracefully")
	case sig := <-quit:
		logger.Info("shutdown signal received", slog.String("signal", sig.String()))
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancelShutdown()

		logger.Info("shutting down server", slog.Duration("timeout", shutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("graceful shutdown failed", slog.Any("error", err))
			if closeErr := server.Close(); closeErr != nil {
				logger.Error("failed to force close server", slog.Any("error", closeErr))
			}
		} else {
			logger.Info("server shutdown complete")
		}
	}

	// Дожидаемся фоновой архивации до закрытия БД.
	bracketService.Wait()
	logger.Info("pending archives finished")

	// Hub закрывает websocket-клиентов по отмене контекста.
	stop()
	logger.Info("application exited")
}
