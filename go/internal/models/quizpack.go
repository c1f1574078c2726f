package models

import (
	"fmt"
	"time"
)

// RoundKind separates regular rounds from the final round.
type RoundKind string

const (
	RoundStandard RoundKind = "STANDARD"
	RoundFinal    RoundKind = "FINAL"
)

// QuestionType selects the question lifecycle after a pick.
type QuestionType string

const (
	QuestionSimple QuestionType = "SIMPLE"
	QuestionStake  QuestionType = "STAKE"
	QuestionSecret QuestionType = "SECRET"
	QuestionNoRisk QuestionType = "NO_RISK"
)

// Package is an immutable question set. Sessions only hold its id.
type Package struct {
	ID        string            `json:"id" yaml:"id"`
	Title     string            `json:"title" yaml:"title"`
	Author    string            `json:"author,omitempty" yaml:"author,omitempty"`
	Rounds    []Round           `json:"rounds" yaml:"rounds"`
	Metadata  map[string]string `json:"metadata,omitempty" yaml:"metadata,omitempty"`
	CreatedAt time.Time         `json:"created_at,omitempty" yaml:"created_at,omitempty"`
}

type Round struct {
	Name   string    `json:"name" yaml:"name"`
	Kind   RoundKind `json:"kind" yaml:"kind"`
	Themes []Theme   `json:"themes" yaml:"themes"`
}

type Theme struct {
	Name      string     `json:"name" yaml:"name"`
	Questions []Question `json:"questions" yaml:"questions"`
}

type Question struct {
	ID     string       `json:"id" yaml:"id"`
	Price  int          `json:"price" yaml:"price"`
	Kind   QuestionType `json:"kind" yaml:"kind"`
	Text   string       `json:"text,omitempty" yaml:"text,omitempty"`
	Answer string       `json:"answer,omitempty" yaml:"answer,omitempty"`
	Media  []Media      `json:"media,omitempty" yaml:"media,omitempty"`
}

type Media struct {
	Kind string `json:"kind" yaml:"kind"`
	URL  string `json:"url" yaml:"url"`
}

// Normalize fills defaults: missing question ids, kinds and round kinds.
func (p *Package) Normalize() {
	for r := range p.Rounds {
		round := &p.Rounds[r]
		if round.Kind == "" {
			round.Kind = RoundStandard
		}
		for t := range round.Themes {
			theme := &round.Themes[t]
			for q := range theme.Questions {
				question := &theme.Questions[q]
				if question.ID == "" {
					question.ID = fmt.Sprintf("r%d.t%d.q%d", r, t, q)
				}
				if question.Kind == "" {
					question.Kind = QuestionSimple
				}
			}
		}
	}
}

// Validate checks the structural rules a playable package must satisfy.
func (p *Package) Validate() error {
	if len(p.Rounds) == 0 {
		return fmt.Errorf("package %s has no rounds", p.ID)
	}
	seen := make(map[string]bool)
	for r, round := range p.Rounds {
		if len(round.Themes) == 0 {
			return fmt.Errorf("round %d has no themes", r)
		}
		for t, theme := range round.Themes {
			if len(theme.Questions) == 0 {
				return fmt.Errorf("round %d theme %d has no questions", r, t)
			}
			for _, q := range theme.Questions {
				if seen[q.ID] {
					return fmt.Errorf("duplicate question id %q", q.ID)
				}
				seen[q.ID] = true
			}
		}
	}
	return nil
}

// Question returns the question at the given coordinates, or nil.
func (p *Package) Question(round, theme, index int) *Question {
	if round < 0 || round >= len(p.Rounds) {
		return nil
	}
	themes := p.Rounds[round].Themes
	if theme < 0 || theme >= len(themes) {
		return nil
	}
	questions := themes[theme].Questions
	if index < 0 || index >= len(questions) {
		return nil
	}
	return &questions[index]
}

// QuestionCount returns the number of questions in a round.
func (p *Package) QuestionCount(round int) int {
	if round < 0 || round >= len(p.Rounds) {
		return 0
	}
	n := 0
	for _, t := range p.Rounds[round].Themes {
		n += len(t.Questions)
	}
	return n
}
