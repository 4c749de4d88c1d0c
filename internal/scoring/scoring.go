// Package scoring turns an evaluated guess into points.
//
// A correct answer earns [CorrectPoints]. On top of that a speed bonus of up
// to [MaxTimeBonus] is awarded based on how early in the listening window the
// answer was first recognised.
package scoring

import "time"

const (
	// CorrectPoints is the base score for a correct answer.
	CorrectPoints = 10

	// MaxTimeBonus is the bonus for answering within the first quarter of
	// the listening window.
	MaxTimeBonus = 5

	// MaxPerQuestion is the best possible score for one question.
	MaxPerQuestion = CorrectPoints + MaxTimeBonus
)

// BasePoints returns [CorrectPoints] for a correct answer and 0 otherwise.
func BasePoints(correct bool) int {
	if correct {
		return CorrectPoints
	}
	return 0
}

// TimeBonus returns the speed bonus for a reaction time measured from the
// start of a listening window of length window. A nil reaction means no
// candidate answer was ever recognised and earns nothing.
//
//	ratio <= 0.25 → 5
//	ratio <= 0.50 → 4
//	ratio <= 0.75 → 2
//	otherwise     → 1
func TimeBonus(reaction *time.Duration, window time.Duration) int {
	if reaction == nil {
		return 0
	}
	if window <= 0 {
		return 1
	}
	ratio := float64(*reaction) / float64(window)
	switch {
	case ratio <= 0.25:
		return 5
	case ratio <= 0.50:
		return 4
	case ratio <= 0.75:
		return 2
	default:
		return 1
	}
}

// Total returns base points plus the time bonus. Incorrect answers score 0
// regardless of reaction.
func Total(correct bool, reaction *time.Duration, window time.Duration) (base, bonus, total int) {
	base = BasePoints(correct)
	if correct {
		bonus = TimeBonus(reaction, window)
	}
	return base, bonus, base + bonus
}

// MaxScore returns the theoretical maximum for a game of n questions.
func MaxScore(n int) int {
	return n * MaxPerQuestion
}
