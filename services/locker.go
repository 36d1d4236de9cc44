package services

import (
	"sync"

	"github.com/google/uuid"
)

// TournamentLocker serializes state changes of a single tournament inside
// this process. Different tournaments never wait on each other.
type TournamentLocker struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func NewTournamentLocker() *TournamentLocker {
	return &TournamentLocker{locks: make(map[uuid.UUID]*lockEntry)}
}

// Lock blocks until the tournament is free and returns the unlock function.
func (l *TournamentLocker) Lock(id uuid.UUID) (unlock func()) {
	l.mu.Lock()
	entry, ok := l.locks[id]
	if !ok {
		entry = &lockEntry{}
		l.locks[id] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.mu.Lock()

	var once sync.Once
	return func() {
		once.Do(func() {
			entry.mu.Unlock()

			l.mu.Lock()
			entry.refs--
			if entry.refs == 0 {
				delete(l.locks, id)
			}
			l.mu.Unlock()
		})
	}
}

// size is the number of tournaments currently locked or waited on.
func (l *TournamentLocker) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
