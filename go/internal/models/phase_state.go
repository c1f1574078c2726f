package models

import (
	"maps"
	"slices"
)

// PhaseState holds scratch data. Only the fields legal for the current
// phase are set; every transition rebuilds it.
type PhaseState struct {
	Question       *QuestionRef      `json:"question,omitempty"`
	Eligible       []string          `json:"eligible,omitempty"` // frozen at reveal time
	Answering      string            `json:"answering,omitempty"`
	SingleAnswerer bool              `json:"single_answerer,omitempty"`
	AnswerValue    int               `json:"answer_value,omitempty"`
	Answered       []string          `json:"answered,omitempty"`
	Skipped        []string          `json:"skipped,omitempty"`
	MediaReady     []string          `json:"media_ready,omitempty"`
	LobbyReady     []string          `json:"lobby_ready,omitempty"`
	ShowingRestore *Timer            `json:"showing_restore,omitempty"`
	Stake          *StakeBidding     `json:"stake,omitempty"`
	Transfer       *SecretTransfer   `json:"transfer,omitempty"`
	Elimination    *ThemeElimination `json:"elimination,omitempty"`
	Final          *FinalRound       `json:"final,omitempty"`
}

// QuestionRef points at the active question inside the package.
type QuestionRef struct {
	ID       string       `json:"id"`
	Round    int          `json:"round"`
	Theme    int          `json:"theme"`
	Index    int          `json:"index"`
	Price    int          `json:"price"`
	Kind     QuestionType `json:"kind"`
	HasMedia bool         `json:"has_media"`
}

// StakeBidding tracks an auction for a stake question.
type StakeBidding struct {
	Order      []string `json:"order"`
	Turn       int      `json:"turn"`
	Floor      int      `json:"floor"`
	HighBid    int      `json:"high_bid"`
	HighBidder string   `json:"high_bidder,omitempty"`
	AllIn      bool     `json:"all_in,omitempty"`
	Passed     []string `json:"passed,omitempty"`
}

// Current returns the participant whose turn it is to bid.
func (b *StakeBidding) Current() string {
	if b.Turn < 0 || b.Turn >= len(b.Order) {
		return ""
	}
	return b.Order[b.Turn]
}

// HasPassed reports whether id is out of the auction.
func (b *StakeBidding) HasPassed(id string) bool {
	return slices.Contains(b.Passed, id)
}

// SecretTransfer tracks who must hand over a secret question.
type SecretTransfer struct {
	Holder     string   `json:"holder,omitempty"`
	Candidates []string `json:"candidates"`
}

// ThemeElimination tracks turn order while final themes are removed.
type ThemeElimination struct {
	Order     []string `json:"order"`
	Turn      int      `json:"turn"`
	Remaining []int    `json:"remaining"`
}

// Current returns the participant whose turn it is to eliminate.
func (e *ThemeElimination) Current() string {
	if e.Turn < 0 || e.Turn >= len(e.Order) {
		return ""
	}
	return e.Order[e.Turn]
}

// FinalRound holds bids, answers and verdicts for the final question.
type FinalRound struct {
	Theme   int               `json:"theme"`
	Bids    map[string]int    `json:"bids,omitempty"`
	Answers map[string]string `json:"answers,omitempty"`
	Judged  map[string]bool   `json:"judged,omitempty"`
}

func (s PhaseState) Clone() PhaseState {
	c := s
	if s.Question != nil {
		q := *s.Question
		c.Question = &q
	}
	c.Eligible = slices.Clone(s.Eligible)
	c.Answered = slices.Clone(s.Answered)
	c.Skipped = slices.Clone(s.Skipped)
	c.MediaReady = slices.Clone(s.MediaReady)
	c.LobbyReady = slices.Clone(s.LobbyReady)
	c.ShowingRestore = s.ShowingRestore.Clone()
	if s.Stake != nil {
		b := *s.Stake
		b.Order = slices.Clone(s.Stake.Order)
		b.Passed = slices.Clone(s.Stake.Passed)
		c.Stake = &b
	}
	if s.Transfer != nil {
		t := *s.Transfer
		t.Candidates = slices.Clone(s.Transfer.Candidates)
		c.Transfer = &t
	}
	if s.Elimination != nil {
		e := *s.Elimination
		e.Order = slices.Clone(s.Elimination.Order)
		e.Remaining = slices.Clone(s.Elimination.Remaining)
		c.Elimination = &e
	}
	if s.Final != nil {
		f := *s.Final
		f.Bids = maps.Clone(s.Final.Bids)
		f.Answers = maps.Clone(s.Final.Answers)
		f.Judged = maps.Clone(s.Final.Judged)
		c.Final = &f
	}
	return c
}
