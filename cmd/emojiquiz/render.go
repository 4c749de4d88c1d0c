package main

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/MrWong99/emojiquiz/internal/game"
	"github.com/MrWong99/emojiquiz/internal/quiz"
)

// consoleObserver prints game progress for a player at the terminal.
type consoleObserver struct {
	mu sync.Mutex
	w  io.Writer
}

func newConsoleObserver(w io.Writer) *consoleObserver {
	return &consoleObserver{w: w}
}

func (o *consoleObserver) QuestionShown(i, n int, q quiz.Question) {
	o.mu.Lock()
	defer o.mu.Unlock()
	fmt.Fprintf(o.w, "\nQuestion %d/%d:  %s\n", i+1, n, q.Clue())
	fmt.Fprintln(o.w, "  Think about it...")
}

func (o *consoleObserver) Listening(_ int, window time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	fmt.Fprintf(o.w, "  Answer now! (%s)\n", window.Round(time.Second))
}

func (o *consoleObserver) Answered(a game.Answer) {
	o.mu.Lock()
	defer o.mu.Unlock()
	switch a.Status {
	case game.StatusCorrect:
		fmt.Fprintf(o.w, "  Correct! %q is %s  +%d", a.Given, a.Answer, a.Points)
		if a.TimeBonus > 0 {
			fmt.Fprintf(o.w, " (speed bonus %d)", a.TimeBonus)
		}
		fmt.Fprintln(o.w)
	case game.StatusIncorrect:
		fmt.Fprintf(o.w, "  Not quite. You said %q, it was %s\n", a.Given, a.Answer)
	default:
		fmt.Fprintf(o.w, "  Time's up! It was %s\n", a.Answer)
	}
}

// printSummary writes the end-of-game report.
func printSummary(w io.Writer, s game.Summary) {
	rule := strings.Repeat("=", 44)
	fmt.Fprintln(w)
	fmt.Fprintln(w, rule)
	if s.Aborted {
		fmt.Fprintln(w, " Game stopped early")
	} else {
		fmt.Fprintln(w, " Game over")
	}
	fmt.Fprintln(w, rule)
	fmt.Fprintf(w, " Score:      %d / %d\n", s.Score, s.MaxScore)
	fmt.Fprintf(w, " Correct:    %d   Incorrect: %d   Timeouts: %d\n", s.Correct, s.Incorrect, s.Timeouts)
	fmt.Fprintf(w, " Time bonus: %d\n", s.TimeBonus)
	if s.Message != "" {
		fmt.Fprintf(w, "\n %s\n", s.Message)
	}
	if len(s.Answers) > 0 {
		fmt.Fprintln(w)
		for _, a := range s.Answers {
			line := fmt.Sprintf(" %2d. %-10s %-28s %-9s %2d", a.Index+1, a.Clue, a.Answer, a.Status, a.Points)
			if a.ReactionTime != nil {
				line += fmt.Sprintf("  %.1fs", a.ReactionTime.Seconds())
			}
			fmt.Fprintln(w, line)
			if a.Status != game.StatusCorrect {
				fmt.Fprintf(w, "     heard: %s\n", a.Given)
			}
		}
	}
	fmt.Fprintln(w, rule)
}
