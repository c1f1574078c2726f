package game

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mcdev12/quizhall/go/internal/models"
)

func TestView(t *testing.T) {
	s := &models.GameSession{
		ID:    "s1",
		Phase: models.PhaseFinalReviewing,
		Participants: []models.Participant{
			{ID: "host", Role: models.RoleHost},
			{ID: "p1", Role: models.RolePlayer},
			{ID: "p2", Role: models.RolePlayer},
		},
		State: models.PhaseState{Final: &models.FinalRound{
			Bids:    map[string]int{"p1": 50, "p2": 40},
			Answers: map[string]string{"p1": "Oslo", "p2": "Bergen"},
			Judged:  map[string]bool{"p1": true},
		}},
	}

	tests := []struct {
		name    string
		viewer  string
		bids    map[string]int
		answers map[string]string
	}{
		{name: "host sees everything", viewer: "host", bids: s.State.Final.Bids, answers: s.State.Final.Answers},
		{name: "player sees own entries", viewer: "p1", bids: map[string]int{"p1": 50}, answers: map[string]string{"p1": "Oslo"}},
		{name: "anonymous sees none", viewer: ""},
		{name: "stranger sees none", viewer: "ghost"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := View(s, tt.viewer)
			assert.Equal(t, tt.bids, v.State.Final.Bids)
			assert.Equal(t, tt.answers, v.State.Final.Answers)
			assert.Equal(t, map[string]bool{"p1": true}, v.State.Final.Judged)
		})
	}
	assert.Len(t, s.State.Final.Answers, 2, "source session is untouched")
}
