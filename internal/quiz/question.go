// Package quiz holds the trivia questions the game asks: an emoji clue, the
// canonical answer shown to the player, and the list of spoken forms that are
// accepted as correct (including common mishearings).
//
// Questions are immutable once constructed. A [Catalog] is an ordered,
// read-only sequence of questions loaded at program start.
package quiz

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// ErrNoAcceptableAnswer is returned by [NewQuestion] when neither the canonical
// answer nor any alternative normalises to a non-empty string.
var ErrNoAcceptableAnswer = errors.New("quiz: question has no acceptable answer")

// Question is a single trivia item. Use [NewQuestion] to construct one; the
// zero value has no acceptable answers and never matches.
type Question struct {
	clue       string
	answer     string
	acceptable []string
}

// NewQuestion builds a Question from its clue, canonical answer and optional
// alternative spoken forms. Every alternative is trimmed and lower-cased;
// empty strings and duplicates are dropped, original order is kept. The
// normalised canonical answer is appended when it is not already present.
func NewQuestion(clue, answer string, alternatives ...string) (Question, error) {
	acceptable := make([]string, 0, len(alternatives)+1)
	for _, alt := range alternatives {
		n := Normalize(alt)
		if n == "" || slices.Contains(acceptable, n) {
			continue
		}
		acceptable = append(acceptable, n)
	}
	if n := Normalize(answer); n != "" && !slices.Contains(acceptable, n) {
		acceptable = append(acceptable, n)
	}
	if len(acceptable) == 0 {
		return Question{}, fmt.Errorf("%w (answer %q)", ErrNoAcceptableAnswer, answer)
	}
	return Question{
		clue:       clue,
		answer:     answer,
		acceptable: acceptable,
	}, nil
}

// MustQuestion is like [NewQuestion] but panics on error. Intended for
// package-level catalogs and tests.
func MustQuestion(clue, answer string, alternatives ...string) Question {
	q, err := NewQuestion(clue, answer, alternatives...)
	if err != nil {
		panic(err)
	}
	return q
}

// Clue returns the emoji clue. The engine never interprets it.
func (q Question) Clue() string { return q.clue }

// Answer returns the canonical display answer.
func (q Question) Answer() string { return q.answer }

// Acceptable returns a copy of the normalised acceptable answers in order.
func (q Question) Acceptable() []string { return slices.Clone(q.acceptable) }

// EachAcceptable calls fn for every acceptable answer in order until fn
// returns false. It avoids the copy made by [Question.Acceptable].
func (q Question) EachAcceptable(fn func(string) bool) {
	for _, a := range q.acceptable {
		if !fn(a) {
			return
		}
	}
}

// Normalize trims surrounding whitespace and lower-cases s. It is the single
// normalisation applied to both transcripts and acceptable answers.
func Normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
