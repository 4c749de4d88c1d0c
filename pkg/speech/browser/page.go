package browser

import (
	_ "embed"
	"html/template"
	"net/http"
)

//go:embed static/index.html
var pageSource string

var pageTemplate = template.Must(template.New("page").Parse(pageSource))

// Page returns a handler serving a tab that speaks the relay protocol with
// the browser's Web Speech API. relayPath is where the [Relay] is mounted
// and gamesPath is the game API behind the start and stop buttons.
func Page(relayPath, gamesPath string) http.Handler {
	data := struct{ RelayPath, GamesPath string }{relayPath, gamesPath}
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "no-cache")
		if err := pageTemplate.Execute(w, data); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	})
}
