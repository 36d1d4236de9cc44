package services

import "errors"

// Общие ошибки, используемые в разных сервисах и маппинге HTTP.
var (
	// Ресурс не найден
	ErrTournamentNotFound = errors.New("tournament not found")
	ErrMatchNotFound      = errors.New("match not found")

	// Ошибки валидации и бизнес-правил
	ErrTournamentNameRequired   = errors.New("tournament name is required")
	ErrTournamentNameTooLong    = errors.New("tournament name is too long")
	ErrTournamentNotOpen        = errors.New("tournament is not open for registration")
	ErrTournamentInvalidState   = errors.New("operation not allowed in the tournament's current state")
	ErrInsufficientParticipants = errors.New("tournament needs at least 2 participants to start")
	ErrAlreadyJoined            = errors.New("user has already joined this tournament")
	ErrNotParticipant           = errors.New("user is not a participant of this tournament")
	ErrCreatorCannotLeave       = errors.New("the creator cannot leave while other participants remain")
	ErrMatchInvalidState        = errors.New("operation not allowed in the match's current state")
	ErrInvalidScore             = errors.New("scores must be non-negative")
	ErrMatchTied                = errors.New("scores are tied: an explicit winner is required")
	ErrInvalidWinner            = errors.New("winner must be one of the match players")
	ErrRoundNotResolved         = errors.New("current round still has matches to play")
	ErrInvalidListFilter        = errors.New("invalid tournament list filter")

	// Нарушение инварианта: завершённый матч без победителя.
	ErrIncompleteRound = errors.New("current round has a resolved match without a winner")

	// Ошибки конфликтов
	ErrTournamentNameConflict = errors.New("an active tournament with this name already exists")

	// Ошибки доступа
	ErrForbiddenOperation = errors.New("operation not allowed for the current user")
)
