package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTournamentStatus(t *testing.T) {
	testCases := []struct {
		status   TournamentStatus
		valid    bool
		terminal bool
	}{
		{StatusOpen, true, false},
		{StatusInProgress, true, false},
		{StatusCompleted, true, true},
		{StatusCanceled, true, true},
		{TournamentStatus("archived"), false, false},
	}
	for _, tc := range testCases {
		t.Run(string(tc.status), func(t *testing.T) {
			assert.Equal(t, tc.valid, tc.status.IsValid())
			assert.Equal(t, tc.terminal, tc.status.IsTerminal())
		})
	}
}
