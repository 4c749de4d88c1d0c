package browser_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/MrWong99/emojiquiz/pkg/speech/browser"
)

func TestPage_ServesRelayClient(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	browser.Page("/ws/speech", "/api/games").ServeHTTP(rec, httptest.NewRequest("GET", "/speech", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("content type = %q", ct)
	}
	body := rec.Body.String()
	for _, path := range []string{"/ws/speech", "/api/games"} {
		// html/template may escape the slashes of script string literals.
		escaped := strings.ReplaceAll(path, "/", `\/`)
		if !strings.Contains(body, `"`+path+`"`) && !strings.Contains(body, `"`+escaped+`"`) {
			t.Errorf("page does not embed %s as a script string", path)
		}
	}
	for _, want := range []string{`type: "started"`, `isFinal: isFinal`} {
		if !strings.Contains(body, want) {
			t.Errorf("page is missing %s", want)
		}
	}
}
