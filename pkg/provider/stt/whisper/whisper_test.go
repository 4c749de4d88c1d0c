package whisper_test

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrWong99/emojiquiz/pkg/provider/stt"
	"github.com/MrWong99/emojiquiz/pkg/provider/stt/whisper"
)

// inferenceServer answers every POST /inference with text and records the
// prompt field of each request.
type inferenceServer struct {
	*httptest.Server
	calls atomic.Int32

	mu      sync.Mutex
	prompts []string
}

func newInferenceServer(t *testing.T, text string, status int) *inferenceServer {
	t.Helper()
	s := &inferenceServer{}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/inference" {
			http.NotFound(w, r)
			return
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		s.calls.Add(1)
		s.mu.Lock()
		s.prompts = append(s.prompts, r.FormValue("prompt"))
		s.mu.Unlock()
		if status != http.StatusOK {
			w.WriteHeader(status)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"text": text})
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *inferenceServer) lastPrompt() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.prompts) == 0 {
		return ""
	}
	return s.prompts[len(s.prompts)-1]
}

// tone returns ms milliseconds of a loud 440 Hz sine at 16 kHz mono.
func tone(ms int) []byte {
	n := 16 * ms
	buf := make([]byte, 2*n)
	for i := range n {
		v := int16(8000 * math.Sin(2*math.Pi*440*float64(i)/16000))
		binary.LittleEndian.PutUint16(buf[2*i:], uint16(v))
	}
	return buf
}

func silence(ms int) []byte { return make([]byte, 32*ms) }

func start(t *testing.T, p *whisper.Provider, kws ...stt.KeywordBoost) stt.SessionHandle {
	t.Helper()
	h, err := p.StartStream(context.Background(), stt.StreamConfig{SampleRate: 16000, Channels: 1, Keywords: kws})
	if err != nil {
		t.Fatalf("StartStream: %v", err)
	}
	t.Cleanup(func() { _ = h.Close() })
	return h
}

func TestNew_RequiresServerURL(t *testing.T) {
	t.Parallel()

	if _, err := whisper.New(""); err == nil {
		t.Error("expected error for empty server url")
	}
}

func TestStartStream_CancelledContext(t *testing.T) {
	t.Parallel()

	p, _ := whisper.New("http://127.0.0.1:1")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := p.StartStream(ctx, stt.StreamConfig{}); err == nil {
		t.Error("expected error for cancelled context")
	}
}

func TestSilenceOnly_NoInference(t *testing.T) {
	t.Parallel()

	srv := newInferenceServer(t, "unused", http.StatusOK)
	p, _ := whisper.New(srv.URL, whisper.WithSilence(50*time.Millisecond))
	h := start(t, p)

	_ = h.SendAudio(silence(500))
	_ = h.Close()

	if n := srv.calls.Load(); n != 0 {
		t.Errorf("inference calls = %d, want 0", n)
	}
}

func TestSpeechThenSilence_EmitsPartialAndFinal(t *testing.T) {
	t.Parallel()

	srv := newInferenceServer(t, " Titanic\n", http.StatusOK)
	p, _ := whisper.New(srv.URL, whisper.WithSilence(100*time.Millisecond))
	h := start(t, p, stt.KeywordBoost{Keyword: "titanic"}, stt.KeywordBoost{Keyword: "the titanic"})

	_ = h.SendAudio(tone(200))
	_ = h.SendAudio(silence(100))

	var partialSeq uint64
	select {
	case tr := <-h.Partials():
		if tr.Text != "Titanic" || tr.IsFinal {
			t.Errorf("partial = %+v", tr)
		}
		partialSeq = tr.Seq
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for partial")
	}
	select {
	case tr := <-h.Finals():
		if tr.Text != "Titanic" || !tr.IsFinal {
			t.Errorf("final = %+v", tr)
		}
		if partialSeq == 0 || tr.Seq <= partialSeq {
			t.Errorf("seq partial = %d, final = %d; final must come after its partial", partialSeq, tr.Seq)
		}
		if tr.Duration != 300*time.Millisecond {
			t.Errorf("duration = %v, want 300ms", tr.Duration)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for final")
	}
	if got := srv.lastPrompt(); got != "titanic, the titanic" {
		t.Errorf("prompt = %q, want %q", got, "titanic, the titanic")
	}
}

func TestSetKeywords_ChangesPrompt(t *testing.T) {
	t.Parallel()

	srv := newInferenceServer(t, "jaws", http.StatusOK)
	p, _ := whisper.New(srv.URL, whisper.WithSilence(50*time.Millisecond))
	h := start(t, p)

	if err := h.SetKeywords([]stt.KeywordBoost{{Keyword: "jaws"}}); err != nil {
		t.Fatalf("SetKeywords: %v", err)
	}
	_ = h.SendAudio(tone(100))
	_ = h.SendAudio(silence(50))

	select {
	case <-h.Finals():
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for final")
	}
	if got := srv.lastPrompt(); got != "jaws" {
		t.Errorf("prompt = %q, want jaws", got)
	}
}

func TestMaxSpeech_ForcesCommit(t *testing.T) {
	t.Parallel()

	srv := newInferenceServer(t, "lord of the rings", http.StatusOK)
	p, _ := whisper.New(srv.URL,
		whisper.WithSilence(time.Minute),
		whisper.WithMaxSpeech(200*time.Millisecond),
	)
	h := start(t, p)

	_ = h.SendAudio(tone(250))

	select {
	case tr := <-h.Finals():
		if tr.Text != "lord of the rings" {
			t.Errorf("final = %q", tr.Text)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for forced commit")
	}
}

func TestClose_CommitsBufferedSpeech(t *testing.T) {
	t.Parallel()

	srv := newInferenceServer(t, "frozen", http.StatusOK)
	p, _ := whisper.New(srv.URL, whisper.WithSilence(time.Minute))
	h := start(t, p)

	_ = h.SendAudio(tone(100))
	_ = h.Close()

	var got []string
	for tr := range h.Finals() {
		got = append(got, tr.Text)
	}
	if len(got) != 1 || got[0] != "frozen" {
		t.Errorf("finals after Close = %v, want [frozen]", got)
	}
	n := 0
	for range h.Partials() {
		n++
	}
	if n != 1 {
		t.Errorf("partials after Close = %d, want 1", n)
	}
}

func TestClose_Idempotent(t *testing.T) {
	t.Parallel()

	srv := newInferenceServer(t, "", http.StatusOK)
	p, _ := whisper.New(srv.URL)
	h := start(t, p)

	if err := h.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := h.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
	if err := h.SendAudio(tone(10)); err == nil {
		t.Error("SendAudio after Close should fail")
	}
}

func TestSendAudio_FailsAfterCloseEveryTime(t *testing.T) {
	t.Parallel()

	srv := newInferenceServer(t, "", http.StatusOK)
	p, _ := whisper.New(srv.URL)
	for i := range 50 {
		h := start(t, p)
		_ = h.Close()
		if err := h.SendAudio(tone(10)); err == nil {
			t.Fatalf("run %d: SendAudio after Close succeeded", i)
		}
	}
}

func TestServerError_NoTranscript(t *testing.T) {
	t.Parallel()

	srv := newInferenceServer(t, "", http.StatusInternalServerError)
	p, _ := whisper.New(srv.URL, whisper.WithSilence(50*time.Millisecond))
	h := start(t, p)

	_ = h.SendAudio(tone(100))
	_ = h.SendAudio(silence(50))
	_ = h.Close()

	for tr := range h.Finals() {
		t.Errorf("unexpected final %+v", tr)
	}
	if srv.calls.Load() == 0 {
		t.Error("expected at least one inference attempt")
	}
}
