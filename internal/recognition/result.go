package recognition

import (
	"time"

	"github.com/MrWong99/emojiquiz/internal/quiz"
)

// Outcome is the verdict on one question.
type Outcome int

const (
	// Correct means the final transcript matched an acceptable answer.
	Correct Outcome = iota + 1
	// Incorrect means something was said but it did not match.
	Incorrect
	// NoResponse means the final transcript was empty.
	NoResponse
)

// String returns the snake_case name used in logs and metric attributes.
func (o Outcome) String() string {
	switch o {
	case Correct:
		return "correct"
	case Incorrect:
		return "incorrect"
	case NoResponse:
		return "no_response"
	default:
		return "unknown"
	}
}

// Result is the single evaluation produced by a session.
type Result struct {
	Question quiz.Question
	Outcome  Outcome

	// RecognizedText is the final transcript as received (not normalised).
	RecognizedText string

	// ReactionTime is set only for Correct results whose first matching
	// transcript arrived before the window closed.
	ReactionTime *time.Duration

	// Window is the listening window the session ran with.
	Window time.Duration

	BasePoints  int
	TimeBonus   int
	TotalPoints int
}
