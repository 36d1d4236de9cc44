package brackets

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/Dosada05/tournament-orchestrator/models"
	"github.com/google/uuid"
)

var (
	ErrNotEnoughEntrants = errors.New("at least two entrants are required to generate a round")
	ErrDuplicateEntrant  = errors.New("entrant appears more than once")
	ErrInvalidRound      = errors.New("round number must be positive")
)

type GenerateRoundParams struct {
	Round    int
	Entrants []string
}

// BracketGenerator produces the pairings of one round. Implementations have
// no side effects; persisting the result is up to the caller.
type BracketGenerator interface {
	GenerateRound(params GenerateRoundParams) ([]*BracketMatch, error)

	GetName() string
}

// BracketMatch is a match draft. A bye has no Participant2ID and is already
// decided in favour of Participant1ID.
type BracketMatch struct {
	Round          int
	MatchOrder     int
	Participant1ID string
	Participant2ID *string
	IsBye          bool
}

// ToMatch turns the draft into a match record owned by tournamentID.
func (bm *BracketMatch) ToMatch(tournamentID uuid.UUID, now time.Time) *models.Match {
	m := &models.Match{
		ID:           uuid.New(),
		TournamentID: tournamentID,
		Round:        bm.Round,
		MatchOrder:   bm.MatchOrder,
		Player1ID:    bm.Participant1ID,
		Player2ID:    bm.Participant2ID,
		Status:       models.MatchStatusPending,
		CreatedAt:    now,
	}
	if bm.IsBye {
		winner := bm.Participant1ID
		m.Status = models.MatchStatusCompleted
		m.ScorePlayer1 = 1
		m.ScorePlayer2 = 0
		m.WinnerID = &winner
		m.StartTime = &now
		m.EndTime = &now
	}
	return m
}

type SingleEliminationGenerator struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewSingleEliminationGenerator returns a generator shuffling with src. A nil
// src uses the runtime's auto-seeded source.
func NewSingleEliminationGenerator(src rand.Source) *SingleEliminationGenerator {
	g := &SingleEliminationGenerator{}
	if src != nil {
		g.rng = rand.New(src)
	}
	return g
}

func (g *SingleEliminationGenerator) GetName() string {
	return "SingleElimination"
}

func (g *SingleEliminationGenerator) GenerateRound(params GenerateRoundParams) ([]*BracketMatch, error) {
	if params.Round < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidRound, params.Round)
	}
	n := len(params.Entrants)
	if n < 2 {
		return nil, fmt.Errorf("%w: got %d", ErrNotEnoughEntrants, n)
	}

	seen := make(map[string]struct{}, n)
	for _, id := range params.Entrants {
		if _, dup := seen[id]; dup {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateEntrant, id)
		}
		seen[id] = struct{}{}
	}

	shuffled := make([]string, n)
	copy(shuffled, params.Entrants)
	g.shuffle(shuffled)

	matches := make([]*BracketMatch, 0, (n+1)/2)
	for i := 0; i+1 < n; i += 2 {
		p2 := shuffled[i+1]
		matches = append(matches, &BracketMatch{
			Round:          params.Round,
			MatchOrder:     i / 2,
			Participant1ID: shuffled[i],
			Participant2ID: &p2,
		})
	}
	if n%2 == 1 {
		matches = append(matches, &BracketMatch{
			Round:          params.Round,
			MatchOrder:     n / 2,
			Participant1ID: shuffled[n-1],
			IsBye:          true,
		})
	}

	return matches, nil
}

func (g *SingleEliminationGenerator) shuffle(ids []string) {
	swap := func(i, j int) { ids[i], ids[j] = ids[j], ids[i] }
	if g.rng == nil {
		rand.Shuffle(len(ids), swap)
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rng.Shuffle(len(ids), swap)
}
