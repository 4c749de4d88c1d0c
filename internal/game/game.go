// Package game plays a round of emoji trivia: show a clue, give the player a
// moment to think, listen for the answer, record the result, repeat.
//
// A [Game] drives a [Listener] (normally a *recognition.Controller) one
// question at a time and reports progress through an [Observer]. When the
// catalog is exhausted it returns a [Summary] with the score and a
// performance message.
package game

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/emojiquiz/internal/observe"
	"github.com/MrWong99/emojiquiz/internal/quiz"
	"github.com/MrWong99/emojiquiz/internal/recognition"
	"github.com/MrWong99/emojiquiz/pkg/speech"
)

// ErrEmptyCatalog is returned by [Game.Play] for a catalog with no questions.
var ErrEmptyCatalog = errors.New("game: catalog is empty")

// Listener opens one recognition session at a time.
// *recognition.Controller satisfies it.
type Listener interface {
	Open(ctx context.Context, q quiz.Question, window time.Duration, onResult func(recognition.Result)) error
	Cancel()
}

// Observer is told about game progress. Calls are made from the goroutine
// running [Game.Play] and must not block for long.
type Observer interface {
	// QuestionShown is called when the clue for question i of n appears.
	QuestionShown(i, n int, q quiz.Question)

	// Listening is called when the voice phase begins.
	Listening(i int, window time.Duration)

	// Answered is called with the evaluated answer.
	Answered(a Answer)
}

// NopObserver ignores all progress.
type NopObserver struct{}

func (NopObserver) QuestionShown(int, int, quiz.Question) {}
func (NopObserver) Listening(int, time.Duration)          {}
func (NopObserver) Answered(Answer)                       {}

// Progress is a point-in-time view of a running game.
type Progress struct {
	GameID    string
	Index     int
	Questions int
	Phase     string
	Answers   []Answer
	StartedAt time.Time
}

// Phase names reported in [Progress].
const (
	PhaseGuess    = "guess"
	PhaseVoice    = "voice"
	PhasePause    = "pause"
	PhaseFinished = "finished"
)

// Option is a functional option for [New].
type Option func(*Game)

// WithClock sets the clock driving the guess phase and pauses.
func WithClock(c clockwork.Clock) Option {
	return func(g *Game) { g.clock = c }
}

// WithObserver sets the progress observer.
func WithObserver(o Observer) Option {
	return func(g *Game) { g.observer = o }
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(g *Game) { g.log = l }
}

// WithMetrics sets the metric instruments. Default: observe.DefaultMetrics().
func WithMetrics(m *observe.Metrics) Option {
	return func(g *Game) { g.metrics = m }
}

// Game is a single play-through of a catalog. Create one per round.
type Game struct {
	id       string
	catalog  *quiz.Catalog
	listener Listener
	settings Settings
	clock    clockwork.Clock
	observer Observer
	log      *slog.Logger
	metrics  *observe.Metrics

	mu       sync.Mutex
	progress Progress
}

// New returns a Game over catalog. The catalog is shuffled here when
// settings ask for it.
func New(catalog *quiz.Catalog, l Listener, settings Settings, opts ...Option) *Game {
	if settings.Shuffle {
		catalog = catalog.Shuffled()
	}
	g := &Game{
		id:       uuid.NewString(),
		catalog:  catalog,
		listener: l,
		settings: settings,
		clock:    clockwork.NewRealClock(),
		observer: NopObserver{},
	}
	for _, o := range opts {
		o(g)
	}
	if g.log == nil {
		g.log = slog.Default()
	}
	if g.metrics == nil {
		g.metrics = observe.DefaultMetrics()
	}
	g.log = g.log.With("game_id", g.id)
	g.progress = Progress{GameID: g.id, Questions: catalog.Len()}
	return g
}

// ID returns the game's unique identifier.
func (g *Game) ID() string { return g.id }

// Progress returns a snapshot of the game so far.
func (g *Game) Progress() Progress {
	g.mu.Lock()
	defer g.mu.Unlock()
	p := g.progress
	p.Answers = append([]Answer(nil), p.Answers...)
	return p
}

func (g *Game) setPhase(i int, phase string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.progress.Index = i
	g.progress.Phase = phase
}

func (g *Game) record(a Answer) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.progress.Answers = append(g.progress.Answers, a)
}

// Play runs every question in order and returns the summary. When ctx is
// cancelled the active session is cancelled and Play returns the answers
// collected so far with Aborted set, together with ctx's error.
func (g *Game) Play(ctx context.Context) (Summary, error) {
	n := g.catalog.Len()
	if n == 0 {
		return Summary{}, ErrEmptyCatalog
	}

	ctx, span := observe.StartSpan(ctx, "game.play", trace.WithAttributes(
		attribute.String("game.id", g.id),
		attribute.Int("game.questions", n),
	))
	start := g.clock.Now()
	g.mu.Lock()
	g.progress.StartedAt = start
	g.mu.Unlock()

	g.log.Info("game started", "questions", n,
		"guess_time", g.settings.GuessTime, "voice_time", g.settings.VoiceTime)

	var answers []Answer
	for i, q := range g.catalog.Questions() {
		a, err := g.playQuestion(ctx, i, n, q)
		if err != nil {
			return g.abort(ctx, span, answers, start, i, err)
		}
		answers = append(answers, a)
		g.record(a)
		g.observer.Answered(a)

		if i < n-1 && g.settings.Pause > 0 {
			g.setPhase(i, PhasePause)
			if err := g.sleep(ctx, g.settings.Pause); err != nil {
				return g.abort(ctx, span, answers, start, i, err)
			}
		}
	}

	s := Summarize(answers, n)
	s.GameID = g.id
	s.Duration = g.clock.Since(start)
	g.setPhase(n-1, PhaseFinished)

	g.metrics.RecordGame(ctx, "finished")
	span.SetAttributes(attribute.Int("game.score", s.Score))
	observe.EndSpan(span, nil)
	g.log.Info("game finished", "score", s.Score, "max_score", s.MaxScore,
		"correct", s.Correct, "incorrect", s.Incorrect, "timeouts", s.Timeouts)
	return s, nil
}

// abort builds the partial summary of a game stopped at question i.
func (g *Game) abort(ctx context.Context, span trace.Span, answers []Answer, start time.Time, i int, err error) (Summary, error) {
	s := Summarize(answers, g.catalog.Len())
	s.GameID = g.id
	s.Message = ""
	s.Aborted = true
	s.Duration = g.clock.Since(start)

	g.metrics.RecordGame(context.WithoutCancel(ctx), "aborted")
	observe.EndSpan(span, err)
	g.log.Warn("game aborted", "question", i, "answered", len(answers), "err", err)
	return s, err
}

// playQuestion runs the guess phase and the voice phase for one question.
func (g *Game) playQuestion(ctx context.Context, i, n int, q quiz.Question) (Answer, error) {
	g.setPhase(i, PhaseGuess)
	g.observer.QuestionShown(i, n, q)
	if err := g.sleep(ctx, g.settings.GuessTime); err != nil {
		return Answer{}, err
	}

	g.setPhase(i, PhaseVoice)
	res, err := g.listen(ctx, i, q)
	if err != nil {
		return Answer{}, err
	}
	return answerFrom(i, res), nil
}

// listen opens a recognition session and waits for its result. A refused
// microphone is retried once; a second refusal counts as no response.
func (g *Game) listen(ctx context.Context, i int, q quiz.Question) (recognition.Result, error) {
	results := make(chan recognition.Result, 1)
	deliver := func(r recognition.Result) { results <- r }

	for attempt := 1; ; attempt++ {
		g.observer.Listening(i, g.settings.VoiceTime)
		err := g.listener.Open(ctx, q, g.settings.VoiceTime, deliver)
		if err == nil {
			break
		}
		if !errors.Is(err, speech.ErrPermissionDenied) {
			return recognition.Result{}, fmt.Errorf("game: question %d: %w", i, err)
		}
		if attempt >= 2 {
			g.log.Warn("microphone refused twice, skipping question", "question", i, "err", err)
			return silence(q, g.settings.VoiceTime), nil
		}
		g.log.Warn("microphone refused, retrying", "question", i, "err", err)
	}

	select {
	case r := <-results:
		return r, nil
	case <-ctx.Done():
		g.listener.Cancel()
		return recognition.Result{}, ctx.Err()
	}
}

// silence is the result recorded when no session could be opened.
func silence(q quiz.Question, window time.Duration) recognition.Result {
	return recognition.Result{
		Question: q,
		Outcome:  recognition.NoResponse,
		Window:   window,
	}
}

func (g *Game) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := g.clock.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.Chan():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
