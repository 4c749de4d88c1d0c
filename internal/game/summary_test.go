package game

import (
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/emojiquiz/internal/quiz"
	"github.com/MrWong99/emojiquiz/internal/recognition"
)

func TestClampSeconds(t *testing.T) {
	t.Parallel()

	tests := []struct {
		v, def, want int
	}{
		{0, 3, 3},
		{0, 10, 10},
		{1, 3, 3},
		{-4, 10, 3},
		{7, 3, 7},
		{15, 3, 15},
		{60, 10, 15},
	}
	for _, tc := range tests {
		if got := ClampSeconds(tc.v, tc.def); got != tc.want {
			t.Errorf("ClampSeconds(%d, %d) = %d, want %d", tc.v, tc.def, got, tc.want)
		}
	}
}

func TestNewSettings(t *testing.T) {
	t.Parallel()

	s := NewSettings(0, 99, true)
	if s.GuessTime != 3*time.Second || s.VoiceTime != 15*time.Second {
		t.Errorf("NewSettings(0, 99) = %v/%v, want 3s/15s", s.GuessTime, s.VoiceTime)
	}
	if s.Pause != DefaultPause || !s.Shuffle {
		t.Errorf("Pause = %v Shuffle = %v", s.Pause, s.Shuffle)
	}
}

func TestPerformanceMessage(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name              string
		correct, n, bonus int
		want              string
		lightning         bool
	}{
		{"perfect and fast", 10, 10, 40, "Perfect", true},
		{"perfect but slow", 10, 10, 39, "Perfect", false},
		{"eighty", 8, 10, 0, "Excellent", false},
		{"sixty", 6, 10, 0, "Good job", false},
		{"forty", 4, 10, 0, "Not bad", false},
		{"thirty", 3, 10, 0, "Keep practicing", false},
		{"zero", 0, 10, 0, "Keep practicing", false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			msg := PerformanceMessage(tc.correct, tc.n, tc.bonus)
			if !strings.HasPrefix(msg, tc.want) {
				t.Errorf("message %q should start with %q", msg, tc.want)
			}
			if got := strings.Contains(msg, "Lightning"); got != tc.lightning {
				t.Errorf("lightning = %v, want %v (%q)", got, tc.lightning, msg)
			}
		})
	}

	if PerformanceMessage(0, 0, 0) != "" {
		t.Error("empty game should have no message")
	}
}

func TestAnswerFrom(t *testing.T) {
	t.Parallel()

	q := quiz.MustQuestion("🦈", "Jaws")
	reaction := 1200 * time.Millisecond

	a := answerFrom(2, recognition.Result{
		Question: q, Outcome: recognition.Correct, RecognizedText: "joss",
		ReactionTime: &reaction, BasePoints: 10, TimeBonus: 5, TotalPoints: 15,
	})
	if a.Index != 2 || a.Clue != "🦈" || a.Answer != "Jaws" || a.Given != "joss" {
		t.Errorf("answerFrom = %+v", a)
	}
	if a.Status != StatusCorrect || a.Points != 15 || a.TimeBonus != 5 || *a.ReactionTime != reaction {
		t.Errorf("answerFrom = %+v", a)
	}

	silent := answerFrom(0, recognition.Result{Question: q, Outcome: recognition.NoResponse, RecognizedText: "  "})
	if silent.Given != NoResponseText || silent.Status != StatusTimeout {
		t.Errorf("silent answer = %+v", silent)
	}
}

func TestSummarize(t *testing.T) {
	t.Parallel()

	answers := []Answer{
		{Status: StatusCorrect, Points: 15, TimeBonus: 5},
		{Status: StatusCorrect, Points: 11, TimeBonus: 1},
		{Status: StatusIncorrect},
		{Status: StatusTimeout},
	}
	s := Summarize(answers, 4)

	if s.Correct != 2 || s.Incorrect != 1 || s.Timeouts != 1 {
		t.Errorf("counts = %d/%d/%d, want 2/1/1", s.Correct, s.Incorrect, s.Timeouts)
	}
	if s.Score != 26 || s.TimeBonus != 6 || s.MaxScore != 60 {
		t.Errorf("score %d bonus %d max %d, want 26 6 60", s.Score, s.TimeBonus, s.MaxScore)
	}
	if !strings.HasPrefix(s.Message, "Not bad") {
		t.Errorf("Message = %q", s.Message)
	}
}
