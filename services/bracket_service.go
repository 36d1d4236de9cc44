package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Dosada05/tournament-orchestrator/models"
	"github.com/Dosada05/tournament-orchestrator/repositories"
	"github.com/Dosada05/tournament-orchestrator/storage"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const archiveTimeout = 30 * time.Second

type PlayerView struct {
	ID   *string `json:"id"`
	Name string  `json:"name"`
}

type ScoreView struct {
	Player1 int `json:"player1"`
	Player2 int `json:"player2"`
}

type MatchView struct {
	ID         uuid.UUID          `json:"id"`
	MatchOrder int                `json:"match_order"`
	Player1    PlayerView         `json:"player1"`
	Player2    PlayerView         `json:"player2"`
	WinnerID   *string            `json:"winner_id"`
	Status     models.MatchStatus `json:"status"`
	Score      ScoreView          `json:"score"`
	IsBye      bool               `json:"is_bye"`
}

type RoundView struct {
	Round   int         `json:"round"`
	Matches []MatchView `json:"matches"`
}

// BracketSnapshot is the read model of a tournament: every round with its
// matches in match order.
type BracketSnapshot struct {
	ID           uuid.UUID               `json:"id"`
	Name         string                  `json:"name"`
	Status       models.TournamentStatus `json:"status"`
	CurrentRound int                     `json:"current_round"`
	Winner       *PlayerView             `json:"winner"`
	Rounds       []RoundView             `json:"rounds"`
	CreatedBy    string                  `json:"created_by"`
	CreatedAt    time.Time               `json:"created_at"`
	StartTime    *time.Time              `json:"start_time,omitempty"`
	EndTime      *time.Time              `json:"end_time,omitempty"`
	ArchiveURL   *string                 `json:"archive_url,omitempty"`

	Participants  []models.Participant `json:"participants"`
	IsCreator     bool                 `json:"is_creator"`
	IsParticipant bool                 `json:"is_participant"`
}

type BracketService interface {
	GetBracket(ctx context.Context, tournamentID uuid.UUID, viewerID string) (*BracketSnapshot, error)
	// ArchiveCompleted uploads the final bracket of a completed tournament and
	// stores its public URL. It is a no-op without an uploader.
	ArchiveCompleted(ctx context.Context, tournamentID uuid.UUID) error
	// ArchiveAsync runs ArchiveCompleted in the background; Wait blocks until
	// every archive started so far has finished.
	ArchiveAsync(tournamentID uuid.UUID)
	Wait()
}

type bracketService struct {
	tournamentRepo  repositories.TournamentRepository
	participantRepo repositories.ParticipantRepository
	matchRepo       repositories.MatchRepository
	uploader        storage.FileUploader
	logger          *slog.Logger

	archives sync.WaitGroup
}

func NewBracketService(
	tournamentRepo repositories.TournamentRepository,
	participantRepo repositories.ParticipantRepository,
	matchRepo repositories.MatchRepository,
	uploader storage.FileUploader,
	logger *slog.Logger,
) BracketService {
	return &bracketService{
		tournamentRepo:  tournamentRepo,
		participantRepo: participantRepo,
		matchRepo:       matchRepo,
		uploader:        uploader,
		logger:          logger.With(slog.String("component", "bracket_service")),
	}
}

func (s *bracketService) GetBracket(ctx context.Context, tournamentID uuid.UUID, viewerID string) (*BracketSnapshot, error) {
	tournament, err := s.tournamentRepo.GetByID(ctx, nil, tournamentID)
	if err != nil {
		return nil, mapTournamentRepoError(err)
	}

	var (
		participants []models.Participant
		matches      []*models.Match
	)
	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var loadErr error
		participants, loadErr = s.participantRepo.ListByTournament(gCtx, nil, tournamentID)
		if loadErr != nil {
			return fmt.Errorf("failed to load participants: %w", loadErr)
		}
		return nil
	})
	g.Go(func() error {
		var loadErr error
		matches, loadErr = s.matchRepo.ListByTournament(gCtx, nil, tournamentID, nil)
		if loadErr != nil {
			return fmt.Errorf("failed to load matches: %w", loadErr)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to load bracket of tournament %s: %w", tournamentID, err)
	}

	return buildSnapshot(tournament, participants, matches, viewerID), nil
}

// buildSnapshot expects matches ordered by round then match_order.
func buildSnapshot(t *models.Tournament, participants []models.Participant, matches []*models.Match, viewerID string) *BracketSnapshot {
	names := namesOf(participants)

	snapshot := &BracketSnapshot{
		ID:            t.ID,
		Name:          t.Name,
		Status:        t.Status,
		CurrentRound:  t.CurrentRound,
		Rounds:        make([]RoundView, 0),
		CreatedBy:     t.CreatedBy,
		CreatedAt:     t.CreatedAt,
		StartTime:     t.StartTime,
		EndTime:       t.EndTime,
		ArchiveURL:    t.ArchiveURL,
		Participants:  participants,
		IsCreator:     viewerID != "" && t.IsCreator(viewerID),
		IsParticipant: false,
	}
	if snapshot.Participants == nil {
		snapshot.Participants = []models.Participant{}
	}
	if viewerID != "" {
		_, snapshot.IsParticipant = names[viewerID]
	}
	if t.WinnerID != nil {
		winner := playerView(t.WinnerID, names)
		snapshot.Winner = &winner
	}

	for _, m := range matches {
		if len(snapshot.Rounds) == 0 || snapshot.Rounds[len(snapshot.Rounds)-1].Round != m.Round {
			snapshot.Rounds = append(snapshot.Rounds, RoundView{Round: m.Round, Matches: []MatchView{}})
		}
		current := &snapshot.Rounds[len(snapshot.Rounds)-1]
		player1 := m.Player1ID
		current.Matches = append(current.Matches, MatchView{
			ID:         m.ID,
			MatchOrder: m.MatchOrder,
			Player1:    playerView(&player1, names),
			Player2:    playerView(m.Player2ID, names),
			WinnerID:   m.WinnerID,
			Status:     m.Status,
			Score:      ScoreView{Player1: m.ScorePlayer1, Player2: m.ScorePlayer2},
			IsBye:      m.IsBye(),
		})
	}
	return snapshot
}

func playerView(userID *string, names participantNames) PlayerView {
	if userID == nil || *userID == "" {
		return PlayerView{Name: "TBD"}
	}
	id := *userID
	return PlayerView{ID: &id, Name: names.of(id)}
}

func (s *bracketService) ArchiveCompleted(ctx context.Context, tournamentID uuid.UUID) error {
	if s.uploader == nil {
		return nil
	}

	snapshot, err := s.GetBracket(ctx, tournamentID, "")
	if err != nil {
		return err
	}
	if snapshot.Status != models.StatusCompleted {
		return fmt.Errorf("%w: tournament is %s", ErrTournamentInvalidState, snapshot.Status)
	}

	payload, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to encode bracket: %w", err)
	}

	result, err := s.uploader.Upload(ctx, storage.BracketArchiveKey(tournamentID), "application/json", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to archive bracket of tournament %s: %w", tournamentID, err)
	}

	if err := s.tournamentRepo.UpdateArchiveURL(ctx, nil, tournamentID, result.Location); err != nil {
		// Объект без ссылки из БД никому не виден, удаляем его.
		if delErr := s.uploader.Delete(ctx, result.Key); delErr != nil {
			s.logger.Warn("failed to delete unreferenced archive",
				slog.String("key", result.Key),
				slog.Any("error", delErr))
		}
		return mapTournamentRepoError(err)
	}
	s.logger.Info("bracket archived",
		slog.String("tournament_id", tournamentID.String()),
		slog.String("location", result.Location))
	return nil
}

// ArchiveAsync archives in the background so that a request never waits on
// object storage.
func (s *bracketService) ArchiveAsync(tournamentID uuid.UUID) {
	if s.uploader == nil {
		return
	}
	s.archives.Add(1)
	go func() {
		defer s.archives.Done()
		ctx, cancel := context.WithTimeout(context.Background(), archiveTimeout)
		defer cancel()
		if err := s.ArchiveCompleted(ctx, tournamentID); err != nil {
			s.logger.Warn("bracket archive failed",
				slog.String("tournament_id", tournamentID.String()),
				slog.Any("error", err))
		}
	}()
}

func (s *bracketService) Wait() {
	s.archives.Wait()
}
