package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/emojiquiz/internal/game"
	"github.com/MrWong99/emojiquiz/internal/quiz"
)

func TestConsoleObserver(t *testing.T) {
	var buf bytes.Buffer
	o := newConsoleObserver(&buf)

	o.QuestionShown(0, 10, quiz.MustQuestion("🦈", "Jaws", "jaws"))
	o.Listening(0, 10*time.Second)
	o.Answered(game.Answer{Answer: "Jaws", Given: "jaws", Status: game.StatusCorrect, Points: 14, TimeBonus: 4})
	o.Answered(game.Answer{Answer: "Jaws", Given: "frozen", Status: game.StatusIncorrect})
	o.Answered(game.Answer{Answer: "Jaws", Given: game.NoResponseText, Status: game.StatusTimeout})

	out := buf.String()
	for _, want := range []string{
		"Question 1/10:  🦈",
		"Answer now! (10s)",
		"+14 (speed bonus 4)",
		`You said "frozen", it was Jaws`,
		"Time's up! It was Jaws",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestPrintSummary(t *testing.T) {
	reaction := 1500 * time.Millisecond
	s := game.Summarize([]game.Answer{
		{Index: 0, Clue: "🚢", Answer: "Titanic", Given: "titanic", Status: game.StatusCorrect, Points: 15, TimeBonus: 5, ReactionTime: &reaction},
		{Index: 1, Clue: "🦈", Answer: "Jaws", Given: game.NoResponseText, Status: game.StatusTimeout},
	}, 2)

	var buf bytes.Buffer
	printSummary(&buf, s)
	out := buf.String()

	for _, want := range []string{"Game over", "Score:      15 / 30", "Timeouts: 1", "1.5s", "heard: (no response)", s.Message} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q:\n%s", want, out)
		}
	}

	buf.Reset()
	s.Aborted = true
	s.Message = ""
	printSummary(&buf, s)
	if !strings.Contains(buf.String(), "stopped early") {
		t.Errorf("aborted summary:\n%s", buf.String())
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("console", 22); got != "console" {
		t.Errorf("truncate short = %q", got)
	}
	if got := truncate("deepgram > whisper > browser > console", 22); len(got) != 22 || !strings.HasSuffix(got, "...") {
		t.Errorf("truncate long = %q", got)
	}
}
