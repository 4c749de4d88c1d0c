package game

import (
	"strings"
	"time"

	"github.com/MrWong99/emojiquiz/internal/recognition"
	"github.com/MrWong99/emojiquiz/internal/scoring"
)

// NoResponseText stands in for an empty transcript in the results log.
const NoResponseText = "(no response)"

// Status is how a question ended, as shown to the player.
type Status string

const (
	StatusCorrect   Status = "correct"
	StatusIncorrect Status = "incorrect"
	StatusTimeout   Status = "timeout"
)

// StatusOf maps an evaluation outcome to a display status. Silence is a
// timeout.
func StatusOf(o recognition.Outcome) Status {
	switch o {
	case recognition.Correct:
		return StatusCorrect
	case recognition.Incorrect:
		return StatusIncorrect
	default:
		return StatusTimeout
	}
}

// Answer is one line of the results log.
type Answer struct {
	Index        int
	Clue         string
	Answer       string
	Given        string
	Status       Status
	Points       int
	TimeBonus    int
	ReactionTime *time.Duration
}

// answerFrom converts an evaluation into a log line.
func answerFrom(i int, r recognition.Result) Answer {
	given := strings.TrimSpace(r.RecognizedText)
	if given == "" {
		given = NoResponseText
	}
	return Answer{
		Index:        i,
		Clue:         r.Question.Clue(),
		Answer:       r.Question.Answer(),
		Given:        given,
		Status:       StatusOf(r.Outcome),
		Points:       r.TotalPoints,
		TimeBonus:    r.TimeBonus,
		ReactionTime: r.ReactionTime,
	}
}

// Summary is the end-of-game report.
type Summary struct {
	GameID    string
	Questions int
	Answers   []Answer

	Correct   int
	Incorrect int
	Timeouts  int

	Score     int
	MaxScore  int
	TimeBonus int

	// Message is the performance verdict. Empty for an aborted game.
	Message string

	Duration time.Duration
	Aborted  bool
}

// Summarize tallies answers for a game of n questions.
func Summarize(answers []Answer, n int) Summary {
	s := Summary{
		Questions: n,
		Answers:   answers,
		MaxScore:  scoring.MaxScore(n),
	}
	for _, a := range answers {
		switch a.Status {
		case StatusCorrect:
			s.Correct++
		case StatusIncorrect:
			s.Incorrect++
		default:
			s.Timeouts++
		}
		s.Score += a.Points
		s.TimeBonus += a.TimeBonus
	}
	s.Message = PerformanceMessage(s.Correct, n, s.TimeBonus)
	return s
}

// PerformanceMessage grades the share of correct answers. A perfect game
// with an average bonus of at least 4 per question earns an extra note.
func PerformanceMessage(correct, n, bonus int) string {
	if n <= 0 {
		return ""
	}
	pct := float64(correct) / float64(n) * 100
	switch {
	case pct >= 100:
		msg := "Perfect score! You're a movie genius!"
		if bonus >= n*4 {
			msg += " Lightning fast too!"
		}
		return msg
	case pct >= 80:
		return "Excellent! You really know your movies!"
	case pct >= 60:
		return "Good job! Keep watching those movies!"
	case pct >= 40:
		return "Not bad! Time for a movie marathon?"
	default:
		return "Keep practicing! Watch more movies!"
	}
}
