package health

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/MrWong99/emojiquiz/pkg/speech"
	"github.com/MrWong99/emojiquiz/pkg/speech/mock"
)

func serve(t *testing.T, h *Handler, path string, ctx context.Context) (int, result) {
	t.Helper()
	mux := http.NewServeMux()
	h.Register(mux)

	req := httptest.NewRequest("GET", path, nil).WithContext(ctx)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if ct := rec.Header().Get("Content-Type"); ct != "application/json; charset=utf-8" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}
	var body result
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
	return rec.Code, body
}

func TestHealthz_AlwaysOK(t *testing.T) {
	h := New(Checker{Name: "broken", Check: func(context.Context) error { return errors.New("down") }})

	code, body := serve(t, h, "/healthz", context.Background())
	if code != http.StatusOK || body.Status != "ok" {
		t.Errorf("healthz = %d %q, want 200 ok", code, body.Status)
	}
	if body.Checks != nil {
		t.Errorf("healthz should not run checks, got %v", body.Checks)
	}
}

func TestReadyz(t *testing.T) {
	ok := func(context.Context) error { return nil }
	fail := func(msg string) func(context.Context) error {
		return func(context.Context) error { return errors.New(msg) }
	}

	tests := []struct {
		name       string
		checkers   []Checker
		wantStatus int
		wantChecks map[string]string
	}{
		{
			name:       "no checkers",
			wantStatus: http.StatusOK,
		},
		{
			name:       "all pass",
			checkers:   []Checker{{"speech", ok}, {"game", ok}},
			wantStatus: http.StatusOK,
			wantChecks: map[string]string{"speech": "ok", "game": "ok"},
		},
		{
			name:       "one fails",
			checkers:   []Checker{{"speech", fail("no microphone")}, {"game", ok}},
			wantStatus: http.StatusServiceUnavailable,
			wantChecks: map[string]string{"speech": "fail: no microphone", "game": "ok"},
		},
		{
			name:       "all fail",
			checkers:   []Checker{{"speech", fail("timeout")}, {"game", fail("game in progress")}},
			wantStatus: http.StatusServiceUnavailable,
			wantChecks: map[string]string{"speech": "fail: timeout", "game": "fail: game in progress"},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			code, body := serve(t, New(tc.checkers...), "/readyz", context.Background())
			if code != tc.wantStatus {
				t.Errorf("status = %d, want %d", code, tc.wantStatus)
			}
			wantBody := "ok"
			if tc.wantStatus != http.StatusOK {
				wantBody = "fail"
			}
			if body.Status != wantBody {
				t.Errorf("body status = %q, want %q", body.Status, wantBody)
			}
			for name, want := range tc.wantChecks {
				if got := body.Checks[name]; got != want {
					t.Errorf("check %s = %q, want %q", name, got, want)
				}
			}
		})
	}
}

func TestReadyz_RespectsContextCancellation(t *testing.T) {
	h := New(Checker{Name: "slow", Check: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	code, _ := serve(t, h, "/readyz", ctx)
	if code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", code, http.StatusServiceUnavailable)
	}
}

func TestSourceChecker(t *testing.T) {
	src := &mock.Source{SourceName: "deepgram"}
	c := SourceChecker(src)
	if c.Name != "speech" {
		t.Errorf("Name = %q, want speech", c.Name)
	}
	if err := c.Check(context.Background()); err != nil {
		t.Errorf("Check() = %v, want nil", err)
	}

	src.AvailableErr = fmt.Errorf("%w: no api key", speech.ErrSourceUnavailable)
	if err := c.Check(context.Background()); !errors.Is(err, speech.ErrSourceUnavailable) {
		t.Errorf("Check() = %v, want ErrSourceUnavailable", err)
	}
}

func TestGameChecker(t *testing.T) {
	busy := false
	c := GameChecker(func() bool { return busy })

	if err := c.Check(context.Background()); err != nil {
		t.Errorf("idle Check() = %v, want nil", err)
	}
	busy = true
	if err := c.Check(context.Background()); err == nil {
		t.Error("busy Check() = nil, want error")
	}
}
