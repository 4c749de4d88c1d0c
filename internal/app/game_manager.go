package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/MrWong99/emojiquiz/internal/game"
	"github.com/MrWong99/emojiquiz/internal/observe"
	"github.com/MrWong99/emojiquiz/internal/quiz"
)

var (
	// ErrGameActive is returned by [GameManager.Start] while a game is running.
	ErrGameActive = errors.New("app: a game is already running")

	// ErrNoGame is returned when an operation needs a game and none is running.
	ErrNoGame = errors.New("app: no game is running")
)

// GameInfo describes the running game.
type GameInfo struct {
	GameID    string
	StartedAt time.Time
	Questions int
}

// GameManagerConfig holds the dependencies of a [GameManager].
type GameManagerConfig struct {
	Listener game.Listener
	Catalog  *quiz.Catalog
	Settings game.Settings
	Clock    clockwork.Clock
	Observer game.Observer
	Metrics  *observe.Metrics
	Logger   *slog.Logger
}

// GameManager runs one game at a time. All exported methods are safe for
// concurrent use.
type GameManager struct {
	listener game.Listener
	clock    clockwork.Clock
	observer game.Observer
	metrics  *observe.Metrics
	log      *slog.Logger

	mu       sync.Mutex
	catalog  *quiz.Catalog
	settings game.Settings
	active   *game.Game
	info     GameInfo
	cancel   context.CancelFunc
	done     chan struct{}
	last     *game.Summary
	lastErr  error
}

// NewGameManager returns a GameManager. Listener is required; a nil
// Catalog means the built-in one.
func NewGameManager(cfg GameManagerConfig) *GameManager {
	gm := &GameManager{
		listener: cfg.Listener,
		catalog:  cfg.Catalog,
		settings: cfg.Settings,
		clock:    cfg.Clock,
		observer: cfg.Observer,
		metrics:  cfg.Metrics,
		log:      cfg.Logger,
	}
	if gm.catalog == nil {
		gm.catalog = quiz.DefaultCatalog()
	}
	if gm.clock == nil {
		gm.clock = clockwork.NewRealClock()
	}
	if gm.observer == nil {
		gm.observer = game.NopObserver{}
	}
	if gm.metrics == nil {
		gm.metrics = observe.DefaultMetrics()
	}
	if gm.log == nil {
		gm.log = slog.Default()
	}
	return gm
}

// SetSettings changes the timing used by games started from now on.
func (gm *GameManager) SetSettings(s game.Settings) {
	gm.mu.Lock()
	defer gm.mu.Unlock()
	gm.settings = s
}

// Settings returns the timing the next game will use.
func (gm *GameManager) Settings() game.Settings {
	gm.mu.Lock()
	defer gm.mu.Unlock()
	return gm.settings
}

// SetCatalog changes the questions used by games started from now on.
func (gm *GameManager) SetCatalog(c *quiz.Catalog) {
	gm.mu.Lock()
	defer gm.mu.Unlock()
	gm.catalog = c
}

// Start begins a new game in the background and returns its ID. The game
// keeps running after ctx's request finishes; values such as the trace span
// are inherited but cancellation is not. Use [GameManager.Stop] to end it.
func (gm *GameManager) Start(ctx context.Context) (string, error) {
	gm.mu.Lock()
	defer gm.mu.Unlock()

	if gm.active != nil {
		return "", fmt.Errorf("%w (id=%s)", ErrGameActive, gm.info.GameID)
	}

	g := game.New(gm.catalog, gm.listener, gm.settings,
		game.WithClock(gm.clock),
		game.WithObserver(gm.observer),
		game.WithMetrics(gm.metrics),
		game.WithLogger(gm.log),
	)
	gameCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})

	gm.active = g
	gm.cancel = cancel
	gm.done = done
	gm.info = GameInfo{
		GameID:    g.ID(),
		StartedAt: gm.clock.Now(),
		Questions: gm.catalog.Len(),
	}

	go func() {
		defer close(done)
		s, err := g.Play(gameCtx)
		cancel()

		gm.mu.Lock()
		defer gm.mu.Unlock()
		gm.last = &s
		gm.lastErr = err
		gm.active = nil
		gm.cancel = nil
		gm.info = GameInfo{}
	}()

	gm.log.Info("game manager: game started", "game_id", g.ID(), "questions", gm.catalog.Len())
	return g.ID(), nil
}

// Wait blocks until the running game ends and returns its summary. Without
// a running game it returns the last summary, or [ErrNoGame].
func (gm *GameManager) Wait(ctx context.Context) (game.Summary, error) {
	gm.mu.Lock()
	done := gm.done
	gm.mu.Unlock()
	if done == nil {
		return game.Summary{}, ErrNoGame
	}

	select {
	case <-done:
	case <-ctx.Done():
		return game.Summary{}, ctx.Err()
	}

	gm.mu.Lock()
	defer gm.mu.Unlock()
	return *gm.last, gm.lastErr
}

// Stop cancels the running game and waits for it to wind down or for ctx
// to expire. Returns [ErrNoGame] if nothing is running.
func (gm *GameManager) Stop(ctx context.Context) error {
	gm.mu.Lock()
	if gm.active == nil {
		gm.mu.Unlock()
		return ErrNoGame
	}
	id := gm.info.GameID
	cancel := gm.cancel
	done := gm.done
	gm.mu.Unlock()

	cancel()
	select {
	case <-done:
	case <-ctx.Done():
		return fmt.Errorf("app: stop game %s: %w", id, ctx.Err())
	}
	gm.log.Info("game manager: game stopped", "game_id", id)
	return nil
}

// IsActive reports whether a game is running.
func (gm *GameManager) IsActive() bool {
	gm.mu.Lock()
	defer gm.mu.Unlock()
	return gm.active != nil
}

// Info returns metadata about the running game, or the zero value.
func (gm *GameManager) Info() GameInfo {
	gm.mu.Lock()
	defer gm.mu.Unlock()
	return gm.info
}

// Progress returns the running game's progress.
func (gm *GameManager) Progress() (game.Progress, bool) {
	gm.mu.Lock()
	g := gm.active
	gm.mu.Unlock()
	if g == nil {
		return game.Progress{}, false
	}
	return g.Progress(), true
}

// Last returns the summary of the most recently ended game.
func (gm *GameManager) Last() (game.Summary, bool) {
	gm.mu.Lock()
	defer gm.mu.Unlock()
	if gm.last == nil {
		return game.Summary{}, false
	}
	return *gm.last, true
}

// Register adds the game API to mux:
//
//	POST   /api/games          start a game
//	GET    /api/games/current  progress of the running game
//	DELETE /api/games/current  stop the running game
//	GET    /api/games/last     summary of the last finished game
func (gm *GameManager) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/games", gm.handleStart)
	mux.HandleFunc("GET /api/games/current", gm.handleCurrent)
	mux.HandleFunc("DELETE /api/games/current", gm.handleStop)
	mux.HandleFunc("GET /api/games/last", gm.handleLast)
}

func (gm *GameManager) handleStart(w http.ResponseWriter, r *http.Request) {
	id, err := gm.Start(r.Context())
	if errors.Is(err, ErrGameActive) {
		writeError(w, http.StatusConflict, err)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"game_id": id})
}

func (gm *GameManager) handleCurrent(w http.ResponseWriter, _ *http.Request) {
	p, ok := gm.Progress()
	if !ok {
		writeError(w, http.StatusNotFound, ErrNoGame)
		return
	}
	writeJSON(w, http.StatusOK, progressJSON(p))
}

func (gm *GameManager) handleStop(w http.ResponseWriter, r *http.Request) {
	err := gm.Stop(r.Context())
	if errors.Is(err, ErrNoGame) {
		writeError(w, http.StatusNotFound, err)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (gm *GameManager) handleLast(w http.ResponseWriter, _ *http.Request) {
	s, ok := gm.Last()
	if !ok {
		writeError(w, http.StatusNotFound, ErrNoGame)
		return
	}
	writeJSON(w, http.StatusOK, summaryJSON(s))
}

type answerBody struct {
	Index           int      `json:"index"`
	Clue            string   `json:"clue"`
	Answer          string   `json:"answer"`
	Given           string   `json:"given"`
	Status          string   `json:"status"`
	Points          int      `json:"points"`
	TimeBonus       int      `json:"time_bonus"`
	ReactionSeconds *float64 `json:"reaction_seconds,omitempty"`
}

func answersJSON(as []game.Answer) []answerBody {
	out := make([]answerBody, 0, len(as))
	for _, a := range as {
		b := answerBody{
			Index:     a.Index,
			Clue:      a.Clue,
			Answer:    a.Answer,
			Given:     a.Given,
			Status:    string(a.Status),
			Points:    a.Points,
			TimeBonus: a.TimeBonus,
		}
		if a.ReactionTime != nil {
			secs := a.ReactionTime.Seconds()
			b.ReactionSeconds = &secs
		}
		out = append(out, b)
	}
	return out
}

type progressBody struct {
	GameID    string       `json:"game_id"`
	Index     int          `json:"index"`
	Questions int          `json:"questions"`
	Phase     string       `json:"phase"`
	StartedAt time.Time    `json:"started_at"`
	Answers   []answerBody `json:"answers"`
}

func progressJSON(p game.Progress) progressBody {
	return progressBody{
		GameID:    p.GameID,
		Index:     p.Index,
		Questions: p.Questions,
		Phase:     p.Phase,
		StartedAt: p.StartedAt,
		Answers:   answersJSON(p.Answers),
	}
}

type summaryBody struct {
	GameID    string       `json:"game_id"`
	Questions int          `json:"questions"`
	Correct   int          `json:"correct"`
	Incorrect int          `json:"incorrect"`
	Timeouts  int          `json:"timeouts"`
	Score     int          `json:"score"`
	MaxScore  int          `json:"max_score"`
	TimeBonus int          `json:"time_bonus"`
	Message   string       `json:"message,omitempty"`
	Aborted   bool         `json:"aborted"`
	Seconds   float64      `json:"duration_seconds"`
	Answers   []answerBody `json:"answers"`
}

func summaryJSON(s game.Summary) summaryBody {
	return summaryBody{
		GameID:    s.GameID,
		Questions: s.Questions,
		Correct:   s.Correct,
		Incorrect: s.Incorrect,
		Timeouts:  s.Timeouts,
		Score:     s.Score,
		MaxScore:  s.MaxScore,
		TimeBonus: s.TimeBonus,
		Message:   s.Message,
		Aborted:   s.Aborted,
		Seconds:   s.Duration.Seconds(),
		Answers:   answersJSON(s.Answers),
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
