package observe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// installTracer swaps the global tracer provider for an in-memory one.
func installTracer(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()
	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	orig := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(orig)
		_ = tp.Shutdown(context.Background())
	})
	return exp
}

func TestMiddleware_SpanHeaderAndStatus(t *testing.T) {
	exp := installTracer(t)
	m, _ := newTestMetrics(t)

	var seen string
	h := Middleware(m)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = CorrelationID(r.Context())
		w.WriteHeader(http.StatusTeapot)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ws/speech", nil))

	if len(seen) != 32 {
		t.Fatalf("correlation id = %q, want 32 hex chars", seen)
	}
	if got := rec.Header().Get("X-Correlation-ID"); got != seen {
		t.Errorf("X-Correlation-ID = %q, want %q", got, seen)
	}
	spans := exp.GetSpans()
	if len(spans) != 1 || spans[0].Name != "HTTP GET /ws/speech" {
		t.Fatalf("spans = %v", spans)
	}
	var status int64
	for _, a := range spans[0].Attributes {
		if a.Key == "http.response.status_code" {
			status = a.Value.AsInt64()
		}
	}
	if status != http.StatusTeapot {
		t.Errorf("span status attribute = %d, want 418", status)
	}
}

func TestMiddleware_ContinuesIncomingTrace(t *testing.T) {
	installTracer(t)
	m, _ := newTestMetrics(t)

	const traceID = "4bf92f3577b34da6a3ce929d0e0e4736"
	var seen string
	h := Middleware(m)(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seen = CorrelationID(r.Context())
	}))
	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	req.Header.Set("traceparent", "00-"+traceID+"-00f067aa0ba902b7-01")
	h.ServeHTTP(httptest.NewRecorder(), req)

	if seen != traceID {
		t.Errorf("correlation id = %q, want %q", seen, traceID)
	}
}

func TestMiddleware_RecordsRoutePattern(t *testing.T) {
	installTracer(t)
	m, reader := newTestMetrics(t)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /results/{id}", func(w http.ResponseWriter, _ *http.Request) {})
	Middleware(m)(mux).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/results/42", nil))

	met := findMetric(collect(t, reader), "emojiquiz.http.request.duration")
	if met == nil {
		t.Fatal("http.request.duration not found")
	}
	hist := met.Data.(metricdata.Histogram[float64])
	if len(hist.DataPoints) != 1 {
		t.Fatalf("data points = %d, want 1", len(hist.DataPoints))
	}
	if v, _ := hist.DataPoints[0].Attributes.Value("path"); v.AsString() != "GET /results/{id}" {
		t.Errorf("path attribute = %q, want route pattern", v.AsString())
	}
}

func TestStatusRecorder_Unwrap(t *testing.T) {
	rec := httptest.NewRecorder()
	sr := &statusRecorder{ResponseWriter: rec}
	if http.NewResponseController(sr) == nil || sr.Unwrap() != rec {
		t.Error("Unwrap should return the wrapped writer")
	}
	if _, _, err := sr.Hijack(); err == nil {
		t.Error("Hijack on a non-hijackable writer should fail")
	}
}
