package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/Dosada05/tournament-orchestrator/brackets"
	"github.com/Dosada05/tournament-orchestrator/models"
	"github.com/Dosada05/tournament-orchestrator/repositories"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/jonboulle/clockwork"
)

const (
	maxTournamentNameLength = 100
	defaultListLimit        = 50
	maxListLimit            = 100
)

type TournamentService interface {
	Create(ctx context.Context, actor models.User, input CreateTournamentInput) (*models.Tournament, error)
	List(ctx context.Context, actor models.User, input ListTournamentsInput) ([]TournamentListEntry, error)
	Join(ctx context.Context, actor models.User, tournamentID uuid.UUID) (*MembershipResult, error)
	Leave(ctx context.Context, actor models.User, tournamentID uuid.UUID) (*MembershipResult, error)
	Start(ctx context.Context, actor models.User, tournamentID uuid.UUID) (*BracketSnapshot, error)
	Cancel(ctx context.Context, actor models.User, tournamentID uuid.UUID) (*BracketSnapshot, error)
	// AdvanceRound is the explicit form of the automatic advance that follows
	// the last result of a round.
	AdvanceRound(ctx context.Context, actor models.User, tournamentID uuid.UUID) (*BracketSnapshot, error)
	GetCurrentMatches(ctx context.Context, tournamentID uuid.UUID) ([]*models.Match, error)
}

type CreateTournamentInput struct {
	Name string `json:"name"`
}

type ListTournamentsInput struct {
	Status string
	Limit  int
	Offset int
}

type TournamentListEntry struct {
	models.Tournament
	IsCreator     bool `json:"is_creator"`
	IsParticipant bool `json:"is_participant"`
}

type MembershipResult struct {
	TournamentID      uuid.UUID `json:"tournament_id"`
	ParticipantsCount int       `json:"participants_count"`
	Deleted           bool      `json:"deleted"`
	Message           string    `json:"message"`
}

type tournamentService struct {
	runner          *aggregateRunner
	advancer        *roundAdvancer
	tournamentRepo  repositories.TournamentRepository
	participantRepo repositories.ParticipantRepository
	matchRepo       repositories.MatchRepository
	brackets        BracketService
	clock           clockwork.Clock
	logger          *slog.Logger
}

// AggregateDeps are the collaborators shared by the services that mutate a
// tournament aggregate.
type AggregateDeps struct {
	DB              *sqlx.DB
	Locker          *TournamentLocker
	TournamentRepo  repositories.TournamentRepository
	ParticipantRepo repositories.ParticipantRepository
	MatchRepo       repositories.MatchRepository
	Generator       brackets.BracketGenerator
	Brackets        BracketService
	Events          EventSink
	Clock           clockwork.Clock
	Logger          *slog.Logger
}

func NewTournamentService(deps AggregateDeps) TournamentService {
	logger := deps.Logger.With(slog.String("component", "tournament_service"))
	runner, advancer := newAggregate(deps, logger)
	return &tournamentService{
		runner:          runner,
		advancer:        advancer,
		tournamentRepo:  deps.TournamentRepo,
		participantRepo: deps.ParticipantRepo,
		matchRepo:       deps.MatchRepo,
		brackets:        deps.Brackets,
		clock:           advancer.clock,
		logger:          logger,
	}
}

func newAggregate(deps AggregateDeps, logger *slog.Logger) (*aggregateRunner, *roundAdvancer) {
	clock := deps.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	var sink EventSink = noopSink{}
	if deps.Events != nil {
		sink = deps.Events
	}
	runner := &aggregateRunner{
		db:     deps.DB,
		locker: deps.Locker,
		sink:   sink,
		logger: logger,
	}
	advancer := &roundAdvancer{
		tournaments:  deps.TournamentRepo,
		participants: deps.ParticipantRepo,
		matches:      deps.MatchRepo,
		generator:    deps.Generator,
		clock:        clock,
		logger:       logger,
	}
	return runner, advancer
}

func (s *tournamentService) Create(ctx context.Context, actor models.User, input CreateTournamentInput) (*models.Tournament, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, ErrTournamentNameRequired
	}
	if utf8.RuneCountInString(name) > maxTournamentNameLength {
		return nil, ErrTournamentNameTooLong
	}

	now := s.clock.Now().UTC()
	tournament := &models.Tournament{
		ID:        uuid.New(),
		Name:      name,
		CreatedBy: actor.ID,
		Status:    models.StatusOpen,
		CreatedAt: now,
	}

	err := s.runner.inTournament(ctx, tournament.ID, func(tx *sqlx.Tx) ([]models.Event, error) {
		if err := s.tournamentRepo.Create(ctx, tx, tournament); err != nil {
			return nil, mapTournamentRepoError(err)
		}
		// Создатель автоматически становится участником.
		creator := &models.Participant{
			TournamentID: tournament.ID,
			UserID:       actor.ID,
			DisplayName:  actor.Name,
			JoinedAt:     now,
		}
		if err := s.participantRepo.Add(ctx, tx, creator); err != nil {
			return nil, fmt.Errorf("failed to add creator as participant: %w", err)
		}
		tournament.ParticipantsCount = 1
		tournament.Participants = []models.Participant{*creator}
		return nil, nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("tournament created",
		slog.String("tournament_id", tournament.ID.String()),
		slog.String("created_by", actor.ID))
	return tournament, nil
}

func (s *tournamentService) List(ctx context.Context, actor models.User, input ListTournamentsInput) ([]TournamentListEntry, error) {
	filter := repositories.ListTournamentsFilter{
		ViewerID: actor.ID,
		Limit:    input.Limit,
		Offset:   input.Offset,
	}
	if input.Status != "" {
		status := models.TournamentStatus(input.Status)
		if !status.IsValid() {
			return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidListFilter, input.Status)
		}
		filter.Status = &status
	}
	if input.Limit < 0 || input.Offset < 0 {
		return nil, fmt.Errorf("%w: limit and offset must be non-negative", ErrInvalidListFilter)
	}
	if filter.Limit == 0 {
		filter.Limit = defaultListLimit
	}
	if filter.Limit > maxListLimit {
		filter.Limit = maxListLimit
	}

	items, err := s.tournamentRepo.List(ctx, nil, filter)
	if err != nil {
		return nil, err
	}

	entries := make([]TournamentListEntry, 0, len(items))
	for _, item := range items {
		entries = append(entries, TournamentListEntry{
			Tournament:    item.Tournament,
			IsCreator:     item.IsCreator(actor.ID),
			IsParticipant: item.ViewerIsParticipant,
		})
	}
	return entries, nil
}

func (s *tournamentService) Join(ctx context.Context, actor models.User, tournamentID uuid.UUID) (*MembershipResult, error) {
	result := &MembershipResult{TournamentID: tournamentID}

	err := s.runner.inTournament(ctx, tournamentID, func(tx *sqlx.Tx) ([]models.Event, error) {
		tournament, err := s.tournamentRepo.GetByIDForUpdate(ctx, tx, tournamentID)
		if err != nil {
			return nil, mapTournamentRepoError(err)
		}
		if tournament.Status != models.StatusOpen {
			return nil, ErrTournamentNotOpen
		}

		err = s.participantRepo.Add(ctx, tx, &models.Participant{
			TournamentID: tournamentID,
			UserID:       actor.ID,
			DisplayName:  actor.Name,
			JoinedAt:     s.clock.Now().UTC(),
		})
		if errors.Is(err, repositories.ErrParticipantConflict) {
			return nil, ErrAlreadyJoined
		}
		if err != nil {
			return nil, err
		}

		participants, err := s.participantRepo.ListByTournament(ctx, tx, tournamentID)
		if err != nil {
			return nil, fmt.Errorf("failed to list participants: %w", err)
		}
		result.ParticipantsCount = len(participants)
		result.Message = fmt.Sprintf("You joined the tournament %s", tournament.Name)
		return joinedEvents(tournament, participants, actor), nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *tournamentService) Leave(ctx context.Context, actor models.User, tournamentID uuid.UUID) (*MembershipResult, error) {
	result := &MembershipResult{TournamentID: tournamentID}

	err := s.runner.inTournament(ctx, tournamentID, func(tx *sqlx.Tx) ([]models.Event, error) {
		tournament, err := s.tournamentRepo.GetByIDForUpdate(ctx, tx, tournamentID)
		if err != nil {
			return nil, mapTournamentRepoError(err)
		}
		if tournament.Status != models.StatusOpen {
			return nil, ErrTournamentNotOpen
		}

		if _, err := s.participantRepo.Get(ctx, tx, tournamentID, actor.ID); err != nil {
			if errors.Is(err, repositories.ErrParticipantNotFound) {
				return nil, ErrNotParticipant
			}
			return nil, err
		}

		count, err := s.participantRepo.Count(ctx, tx, tournamentID)
		if err != nil {
			return nil, err
		}
		isCreator := tournament.IsCreator(actor.ID)
		if isCreator && count > 1 {
			return nil, ErrCreatorCannotLeave
		}

		if err := s.participantRepo.Remove(ctx, tx, tournamentID, actor.ID); err != nil {
			return nil, err
		}

		if isCreator {
			// Создатель был последним участником: турнир удаляется вместе с ним.
			if err := s.tournamentRepo.Delete(ctx, tx, tournamentID); err != nil {
				return nil, mapTournamentRepoError(err)
			}
			result.Deleted = true
			result.Message = fmt.Sprintf("The tournament %s was deleted because it had no participants left", tournament.Name)
			return nil, nil
		}

		remaining, err := s.participantRepo.ListByTournament(ctx, tx, tournamentID)
		if err != nil {
			return nil, fmt.Errorf("failed to list participants: %w", err)
		}
		result.ParticipantsCount = len(remaining)
		result.Message = fmt.Sprintf("You left the tournament %s", tournament.Name)
		return leftEvents(tournament, remaining, actor), nil
	})
	if err != nil {
		return nil, err
	}

	if result.Deleted {
		s.logger.Info("tournament deleted on creator leave", slog.String("tournament_id", tournamentID.String()))
	}
	return result, nil
}

func (s *tournamentService) Start(ctx context.Context, actor models.User, tournamentID uuid.UUID) (*BracketSnapshot, error) {
	err := s.runner.inTournament(ctx, tournamentID, func(tx *sqlx.Tx) ([]models.Event, error) {
		tournament, err := s.tournamentRepo.GetByIDForUpdate(ctx, tx, tournamentID)
		if err != nil {
			return nil, mapTournamentRepoError(err)
		}
		if !tournament.IsCreator(actor.ID) {
			return nil, ErrForbiddenOperation
		}

		participants, err := s.participantRepo.ListByTournament(ctx, tx, tournamentID)
		if err != nil {
			return nil, fmt.Errorf("failed to list participants: %w", err)
		}

		now := s.clock.Now().UTC()
		if err := beginTournament(tournament, len(participants), now); err != nil {
			return nil, err
		}

		entrants := make([]string, 0, len(participants))
		for _, p := range participants {
			entrants = append(entrants, p.UserID)
		}
		matches, err := s.advancer.createRound(ctx, tx, tournament, entrants, now)
		if err != nil {
			return nil, err
		}
		if err := s.tournamentRepo.UpdateState(ctx, tx, tournament); err != nil {
			return nil, mapTournamentRepoError(err)
		}

		s.logger.Info("tournament started",
			slog.String("tournament_id", tournamentID.String()),
			slog.Int("participants", len(participants)),
			slog.Int("matches", len(matches)))

		events := tournamentStartedEvents(tournament, participants)
		return append(events, roundReadyEvents(tournament, matches, namesOf(participants))...), nil
	})
	if err != nil {
		return nil, err
	}
	return s.brackets.GetBracket(ctx, tournamentID, actor.ID)
}

func (s *tournamentService) Cancel(ctx context.Context, actor models.User, tournamentID uuid.UUID) (*BracketSnapshot, error) {
	err := s.runner.inTournament(ctx, tournamentID, func(tx *sqlx.Tx) ([]models.Event, error) {
		tournament, err := s.tournamentRepo.GetByIDForUpdate(ctx, tx, tournamentID)
		if err != nil {
			return nil, mapTournamentRepoError(err)
		}
		if !tournament.IsCreator(actor.ID) {
			return nil, ErrForbiddenOperation
		}
		if err := cancelTournament(tournament, s.clock.Now().UTC()); err != nil {
			return nil, err
		}
		if err := s.tournamentRepo.UpdateState(ctx, tx, tournament); err != nil {
			return nil, mapTournamentRepoError(err)
		}

		participants, err := s.participantRepo.ListByTournament(ctx, tx, tournamentID)
		if err != nil {
			return nil, fmt.Errorf("failed to list participants: %w", err)
		}
		s.logger.Info("tournament canceled", slog.String("tournament_id", tournamentID.String()))
		return tournamentCanceledEvents(tournament, participants), nil
	})
	if err != nil {
		return nil, err
	}
	return s.brackets.GetBracket(ctx, tournamentID, actor.ID)
}

func (s *tournamentService) AdvanceRound(ctx context.Context, actor models.User, tournamentID uuid.UUID) (*BracketSnapshot, error) {
	completed := false
	err := s.runner.inTournament(ctx, tournamentID, func(tx *sqlx.Tx) ([]models.Event, error) {
		tournament, err := s.tournamentRepo.GetByIDForUpdate(ctx, tx, tournamentID)
		if err != nil {
			return nil, mapTournamentRepoError(err)
		}
		if !tournament.IsCreator(actor.ID) {
			return nil, ErrForbiddenOperation
		}
		events, err := s.advancer.advance(ctx, tx, tournament)
		if err != nil {
			return nil, err
		}
		completed = tournament.Status == models.StatusCompleted
		return events, nil
	})
	if err != nil {
		return nil, err
	}
	if completed {
		s.brackets.ArchiveAsync(tournamentID)
	}
	return s.brackets.GetBracket(ctx, tournamentID, actor.ID)
}

func (s *tournamentService) GetCurrentMatches(ctx context.Context, tournamentID uuid.UUID) ([]*models.Match, error) {
	tournament, err := s.tournamentRepo.GetByID(ctx, nil, tournamentID)
	if err != nil {
		return nil, mapTournamentRepoError(err)
	}
	if tournament.CurrentRound == 0 {
		return []*models.Match{}, nil
	}
	round := tournament.CurrentRound
	return s.matchRepo.ListByTournament(ctx, nil, tournamentID, &round)
}
