// Package types defines the core domain types shared across rehearse packages.
//
//nolint:revive // types is a common Go package naming convention
package types

import (
	"fmt"
	"strings"
)

// Difficulty is the difficulty tag of an interview question.
type Difficulty string

// Difficulty levels served by the question bank.
const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// ParseDifficulty parses a difficulty tag, case-insensitively.
func ParseDifficulty(s string) (Difficulty, error) {
	switch d := Difficulty(strings.ToLower(strings.TrimSpace(s))); d {
	case DifficultyEasy, DifficultyMedium, DifficultyHard:
		return d, nil
	default:
		return "", fmt.Errorf("invalid difficulty: %q (must be easy, medium, or hard)", s)
	}
}

// Question is an interview question fetched from the question bank.
// Questions are immutable once fetched; a session only keeps the ID.
type Question struct {
	// ID is the question-bank identifier.
	ID string `json:"_id" yaml:"id"`
	// Prompt is the question text shown to the candidate.
	Prompt string `json:"question" yaml:"question"`
	// Difficulty is the difficulty tag.
	Difficulty Difficulty `json:"difficulty,omitempty" yaml:"difficulty,omitempty"`
}

// FindQuestion returns the question with the given ID.
func FindQuestion(questions []Question, id string) (Question, bool) {
	for _, q := range questions {
		if q.ID == id {
			return q, true
		}
	}
	return Question{}, false
}
