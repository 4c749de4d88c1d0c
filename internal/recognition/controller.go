// Package recognition runs the listening window for one question at a time.
//
// A [Controller] opens a [Session] against a [speech.Source], tracks the
// latest transcript and the first moment the player said the right answer,
// and, once the window closes, waits for in-flight speech to settle before
// producing exactly one [Result].
//
// Lifecycle of a session:
//
//	Idle → Listening → Draining → Finalized
//	          │            │
//	          └─── Cancel ─┴──→ Cancelled (no result)
//
// When the window timer fires the controller decides between two drain
// modes. If no speech arrived recently it stops the source at once and
// finalizes after a short settle delay. If the player was mid-sentence it
// keeps listening, polling until the stream has been quiet for a while (or
// a hard ceiling passes), then stops and settles. An end of stream reported
// by the source finalizes immediately. Whichever path gets there first wins;
// the others are no-ops.
//
// All timers come from a [clockwork.Clock], so tests can drive a session
// deterministically with a fake clock.
package recognition

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

	"github.com/MrWong99/emojiquiz/internal/answer"
	"github.com/MrWong99/emojiquiz/internal/observe"
	"github.com/MrWong99/emojiquiz/internal/quiz"
	"github.com/MrWong99/emojiquiz/pkg/speech"
)

var (
	// ErrSessionActive is returned by [Controller.Open] while another
	// session is still listening or draining.
	ErrSessionActive = errors.New("recognition: session already active")

	// ErrInvalidWindow is returned by [Controller.Open] for a non-positive
	// listening window.
	ErrInvalidWindow = errors.New("recognition: listening window must be positive")
)

// Timing holds the drain and settle durations. Zero fields take the value
// from [DefaultTiming].
type Timing struct {
	// PollInterval is how often an active drain checks for quiet.
	PollInterval time.Duration

	// QuietPeriod is how long the stream must be silent, with no interim
	// hypothesis pending, before an active drain stops the source.
	QuietPeriod time.Duration

	// ActivityWindow decides the drain mode: speech within this long before
	// the window closed means the player may still be talking.
	ActivityWindow time.Duration

	// DrainCeiling bounds an active drain.
	DrainCeiling time.Duration

	// SettleDelay is the pause between stopping the source after an active
	// drain and finalizing.
	SettleDelay time.Duration

	// QuickSettleDelay is the same pause when the window closed on silence.
	QuickSettleDelay time.Duration
}

// DefaultTiming returns the standard durations.
func DefaultTiming() Timing {
	return Timing{
		PollInterval:     200 * time.Millisecond,
		QuietPeriod:      time.Second,
		ActivityWindow:   3 * time.Second,
		DrainCeiling:     3 * time.Second,
		SettleDelay:      200 * time.Millisecond,
		QuickSettleDelay: 500 * time.Millisecond,
	}
}

func (t Timing) withDefaults() Timing {
	d := DefaultTiming()
	if t.PollInterval <= 0 {
		t.PollInterval = d.PollInterval
	}
	if t.QuietPeriod <= 0 {
		t.QuietPeriod = d.QuietPeriod
	}
	if t.ActivityWindow <= 0 {
		t.ActivityWindow = d.ActivityWindow
	}
	if t.DrainCeiling <= 0 {
		t.DrainCeiling = d.DrainCeiling
	}
	if t.SettleDelay <= 0 {
		t.SettleDelay = d.SettleDelay
	}
	if t.QuickSettleDelay <= 0 {
		t.QuickSettleDelay = d.QuickSettleDelay
	}
	return t
}

// Snapshot is a read-only view of the current or most recent session.
type Snapshot struct {
	SessionID  string
	Question   quiz.Question
	State      State
	Transcript string
	Elapsed    time.Duration
}

// Option is a functional option for [New].
type Option func(*Controller)

// WithClock sets the clock used for timestamps and timers. Default: the
// real clock.
func WithClock(c clockwork.Clock) Option {
	return func(ctl *Controller) { ctl.clock = c }
}

// WithTiming overrides the drain and settle durations.
func WithTiming(t Timing) Option {
	return func(ctl *Controller) { ctl.timing = t.withDefaults() }
}

// WithMatcher sets the answer matcher. Default: answer.New().
func WithMatcher(m *answer.Matcher) Option {
	return func(ctl *Controller) { ctl.matcher = m }
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(ctl *Controller) { ctl.log = l }
}

// WithMetrics sets the metric instruments. Default: observe.DefaultMetrics().
func WithMetrics(m *observe.Metrics) Option {
	return func(ctl *Controller) { ctl.metrics = m }
}

// Controller runs at most one [Session] at a time against a speech source.
// It is safe for concurrent use.
type Controller struct {
	src     speech.Source
	clock   clockwork.Clock
	timing  Timing
	matcher *answer.Matcher
	log     *slog.Logger
	metrics *observe.Metrics

	mu      sync.Mutex
	opening bool
	active  *run
	last    *run
}

// New returns a Controller listening to src.
func New(src speech.Source, opts ...Option) *Controller {
	c := &Controller{
		src:    src,
		clock:  clockwork.NewRealClock(),
		timing: DefaultTiming(),
	}
	for _, o := range opts {
		o(c)
	}
	if c.matcher == nil {
		c.matcher = answer.New()
	}
	if c.log == nil {
		c.log = slog.Default()
	}
	if c.metrics == nil {
		c.metrics = observe.DefaultMetrics()
	}
	return c
}

// run is the bookkeeping for one open session. sess is owned by the loop
// goroutine; the snapshot fields are copied out under mu for Telemetry.
type run struct {
	id       string
	sess     *Session
	timing   Timing
	window   clockwork.Timer
	onResult func(Result)
	span     trace.Span
	log      *slog.Logger

	cancel     chan struct{}
	cancelOnce sync.Once
	done       chan struct{}

	mu         sync.Mutex
	state      State
	transcript string
	ended      time.Time
}

func (r *run) publish(now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = r.sess.state
	r.transcript = r.sess.transcript
	if r.state == Finalized || r.state == Cancelled {
		r.ended = now
	}
}

// Open starts listening for an answer to q. The window timer starts now.
// onResult is called exactly once, from the controller's goroutine, unless
// the session is cancelled first. It must not block for long.
//
// Open fails with [ErrSessionActive] while another session is running and
// passes through the source's Start error (for example one wrapping
// [speech.ErrPermissionDenied]); in both cases no session is created.
func (c *Controller) Open(ctx context.Context, q quiz.Question, window time.Duration, onResult func(Result)) error {
	if window <= 0 {
		return ErrInvalidWindow
	}

	c.mu.Lock()
	if c.active != nil || c.opening {
		c.mu.Unlock()
		return ErrSessionActive
	}
	c.opening = true
	timing := c.timing
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.opening = false
		c.mu.Unlock()
	}()

	if h, ok := c.src.(speech.Hinter); ok {
		h.SetHints(q.Acceptable())
	}

	id := uuid.NewString()
	ctx, span := observe.StartSpan(ctx, "recognition.session",
		trace.WithAttributes(
			attribute.String("session.id", id),
			attribute.String("question.answer", q.Answer()),
			attribute.String("speech.source", c.src.Name()),
			attribute.Float64("window.seconds", window.Seconds()),
		))

	events, err := c.src.Start(ctx)
	if err != nil {
		c.metrics.RecordSpeechError(ctx, c.src.Name(), speech.ErrorKind(err))
		err = fmt.Errorf("recognition: start %s: %w", c.src.Name(), err)
		observe.EndSpan(span, err)
		return err
	}

	now := c.clock.Now()
	r := &run{
		id:       id,
		sess:     newSession(q, window, now),
		timing:   timing,
		window:   c.clock.NewTimer(window),
		onResult: onResult,
		span:     span,
		log:      observe.Logger(ctx, c.log).With("session_id", id, "source", c.src.Name()),
		cancel:   make(chan struct{}),
		done:     make(chan struct{}),
	}
	r.publish(now)
	c.mu.Lock()
	c.active = r
	c.last = r
	c.mu.Unlock()

	c.metrics.ActiveSessions.Add(ctx, 1)
	r.log.Debug("recognition session opened", "answer", q.Answer(), "window", window)

	go c.loop(ctx, r, events)
	return nil
}

// Cancel aborts the active session, if any. The source is stopped, every
// timer is discarded and no result is delivered. Cancel waits for the
// session goroutine to exit unless it is called from onResult.
func (c *Controller) Cancel() {
	c.mu.Lock()
	r := c.active
	c.mu.Unlock()
	if r == nil {
		return
	}
	r.cancelOnce.Do(func() { close(r.cancel) })
	<-r.done
}

// Telemetry returns a snapshot of the active session, or of the most recent
// one when none is active. The zero Snapshot (state Idle) is returned before
// the first Open.
func (c *Controller) Telemetry() Snapshot {
	c.mu.Lock()
	r := c.last
	c.mu.Unlock()
	if r == nil {
		return Snapshot{State: Idle}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	end := r.ended
	if end.IsZero() {
		end = c.clock.Now()
	}
	return Snapshot{
		SessionID:  r.id,
		Question:   r.sess.question,
		State:      r.state,
		Transcript: r.transcript,
		Elapsed:    end.Sub(r.sess.start),
	}
}

// SetTiming replaces the drain timing for sessions opened from now on.
func (c *Controller) SetTiming(t Timing) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.timing = t.withDefaults()
}

// loop owns r.sess for the lifetime of the session.
func (c *Controller) loop(ctx context.Context, r *run, events <-chan speech.Event) {
	defer close(r.done)
	defer r.window.Stop()

	var (
		poll     clockwork.Ticker
		pollC    <-chan time.Time
		ceiling  clockwork.Timer
		ceilingC <-chan time.Time
		settle   clockwork.Timer
		settleC  <-chan time.Time
		stopped  bool
	)
	defer func() {
		if poll != nil {
			poll.Stop()
		}
		if ceiling != nil {
			ceiling.Stop()
		}
		if settle != nil {
			settle.Stop()
		}
	}()

	stopSource := func() {
		if stopped {
			return
		}
		stopped = true
		if err := c.src.Stop(); err != nil {
			r.log.Warn("failed to stop speech source", "err", err)
			c.metrics.RecordSpeechError(ctx, c.src.Name(), "stop")
		}
	}
	beginSettle := func(d time.Duration) {
		if poll != nil {
			poll.Stop()
			pollC = nil
		}
		if ceiling != nil {
			ceiling.Stop()
			ceilingC = nil
		}
		stopSource()
		settle = c.clock.NewTimer(d)
		settleC = settle.Chan()
	}

	for {
		select {
		case <-ctx.Done():
			c.abort(ctx, r, stopSource, ctx.Err())
			return

		case <-r.cancel:
			c.abort(ctx, r, stopSource, nil)
			return

		case ev, ok := <-events:
			if !ok {
				events = nil
				if stopped {
					// Expected after our own Stop; let the settle timer finish.
					continue
				}
				r.log.Debug("speech stream ended")
				c.finalize(ctx, r, stopSource)
				return
			}
			if ev.Err != nil {
				events = nil
				if stopped {
					continue
				}
				r.log.Warn("speech stream failed", "err", ev.Err)
				c.metrics.RecordSpeechError(ctx, c.src.Name(), speech.ErrorKind(ev.Err))
				r.span.RecordError(ev.Err)
				c.finalize(ctx, r, stopSource)
				return
			}
			ts := ev.Timestamp
			if ts.IsZero() {
				ts = c.clock.Now()
			}
			r.sess.observe(ev, ts, c.matcher)
			r.publish(ts)

		case <-r.window.Chan():
			now := c.clock.Now()
			if r.sess.expire(now, r.timing) {
				r.log.Debug("window closed during speech, draining")
				poll = c.clock.NewTicker(r.timing.PollInterval)
				pollC = poll.Chan()
				ceiling = c.clock.NewTimer(r.timing.DrainCeiling)
				ceilingC = ceiling.Chan()
			} else {
				beginSettle(r.timing.QuickSettleDelay)
			}
			r.publish(now)

		case <-pollC:
			if r.sess.settled(c.clock.Now(), r.timing) {
				beginSettle(r.timing.SettleDelay)
			}

		case <-ceilingC:
			r.log.Debug("drain ceiling reached")
			beginSettle(r.timing.SettleDelay)

		case <-settleC:
			c.finalize(ctx, r, stopSource)
			return
		}
	}
}

// finalize evaluates the session and delivers the result, unless a cancel
// already claimed it. The source is stopped even when its stream already
// ended, so wrappers can release it.
func (c *Controller) finalize(ctx context.Context, r *run, stopSource func()) {
	if !r.sess.claim() {
		return
	}
	stopSource()

	now := c.clock.Now()
	if !r.sess.drainStart.IsZero() {
		c.metrics.DrainDuration.Record(ctx, now.Sub(r.sess.drainStart).Seconds())
	}
	res := r.sess.evaluate(c.matcher)
	r.sess.state = Finalized
	r.publish(now)

	c.metrics.RecordEvaluation(ctx, res.Outcome.String(), res.TotalPoints, res.ReactionTime)
	c.metrics.ActiveSessions.Add(ctx, -1)
	r.span.SetAttributes(
		attribute.String("outcome", res.Outcome.String()),
		attribute.Int("points", res.TotalPoints),
	)
	observe.EndSpan(r.span, nil)

	attrs := []any{"outcome", res.Outcome, "transcript", res.RecognizedText, "points", res.TotalPoints}
	if res.ReactionTime != nil {
		attrs = append(attrs, "reaction", *res.ReactionTime)
	}
	r.log.Info("answer evaluated", attrs...)

	c.release(r)
	if r.onResult != nil {
		r.onResult(res)
	}
}

// abort ends the session without a result.
func (c *Controller) abort(ctx context.Context, r *run, stopSource func(), cause error) {
	if !r.sess.claim() {
		return
	}
	stopSource()
	r.sess.state = Cancelled
	r.publish(c.clock.Now())

	c.metrics.ActiveSessions.Add(context.WithoutCancel(ctx), -1)
	observe.EndSpan(r.span, cause)
	r.log.Debug("recognition session cancelled", "cause", cause)
	c.release(r)
}

func (c *Controller) release(r *run) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == r {
		c.active = nil
	}
}
