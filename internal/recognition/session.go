package recognition

import (
	"sync/atomic"
	"time"

	"github.com/MrWong99/emojiquiz/internal/answer"
	"github.com/MrWong99/emojiquiz/internal/quiz"
	"github.com/MrWong99/emojiquiz/internal/scoring"
	"github.com/MrWong99/emojiquiz/pkg/speech"
)

// State is the lifecycle position of a [Session].
type State int

const (
	Idle State = iota
	Listening
	Draining
	Finalized
	Cancelled
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Listening:
		return "listening"
	case Draining:
		return "draining"
	case Finalized:
		return "finalized"
	case Cancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Session is the state of one question's listening window. It is a plain
// value driven by the [Controller]'s event loop; only the finalized flag is
// touched from other goroutines.
type Session struct {
	question quiz.Question
	window   time.Duration
	start    time.Time
	state    State

	transcript   string
	candidate    *time.Duration
	lastActivity time.Time
	interim      bool
	expired      bool
	drainStart   time.Time

	finalized atomic.Bool
}

// newSession returns a session listening from start.
func newSession(q quiz.Question, window time.Duration, start time.Time) *Session {
	return &Session{
		question: q,
		window:   window,
		start:    start,
		state:    Listening,
	}
}

// State returns the current state.
func (s *Session) State() State { return s.state }

// Transcript returns the latest transcript.
func (s *Session) Transcript() string { return s.transcript }

// Candidate returns the offset of the first matching transcript, or nil.
func (s *Session) Candidate() *time.Duration { return s.candidate }

// observe applies a transcript event stamped at ts. The first transcript
// matching the question while the window is open fixes the candidate
// offset; later ones never move it.
func (s *Session) observe(ev speech.Event, ts time.Time, m *answer.Matcher) {
	if s.state != Listening && s.state != Draining {
		return
	}
	s.transcript = ev.Text
	s.lastActivity = ts
	s.interim = !ev.IsFinal

	if s.state == Listening && s.candidate == nil && m.Matches(ev.Text, s.question) {
		d := max(ts.Sub(s.start), 0)
		s.candidate = &d
	}
}

// expire closes the window at now and moves to Draining. It reports whether
// speech may still be in flight, in which case the caller should poll
// [Session.settled] before stopping the source.
func (s *Session) expire(now time.Time, t Timing) (active bool) {
	s.expired = true
	s.state = Draining
	s.drainStart = now
	return s.interim || s.sinceActivity(now) < t.ActivityWindow
}

// settled reports whether an active drain may stop: no interim hypothesis is
// pending and the stream has been quiet for QuietPeriod.
func (s *Session) settled(now time.Time, t Timing) bool {
	return !s.interim && s.sinceActivity(now) >= t.QuietPeriod
}

// sinceActivity is the time since the last event, or the maximum duration
// when none arrived.
func (s *Session) sinceActivity(now time.Time) time.Duration {
	if s.lastActivity.IsZero() {
		return time.Duration(1<<63 - 1)
	}
	return now.Sub(s.lastActivity)
}

// claim is the finalize-once guard. Exactly one caller ever gets true.
func (s *Session) claim() bool {
	return s.finalized.CompareAndSwap(false, true)
}

// evaluate grades the final transcript. The verdict depends only on the
// final text; the candidate offset only feeds the time bonus.
func (s *Session) evaluate(m *answer.Matcher) Result {
	r := Result{
		Question:       s.question,
		RecognizedText: s.transcript,
		Window:         s.window,
	}
	switch {
	case quiz.Normalize(s.transcript) == "":
		r.Outcome = NoResponse
	case m.Matches(s.transcript, s.question):
		r.Outcome = Correct
		r.ReactionTime = s.candidate
	default:
		r.Outcome = Incorrect
	}
	r.BasePoints, r.TimeBonus, r.TotalPoints = scoring.Total(r.Outcome == Correct, r.ReactionTime, s.window)
	return r
}
