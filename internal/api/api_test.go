package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/BTreeMap/IsItStolen/internal/metrics"
	"github.com/BTreeMap/IsItStolen/internal/testutil"
)

func TestHealthHandler_OK(t *testing.T) {
	_, client := testutil.NewRedis(t)
	s := NewServer(WithHealthCheck("redis", func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	}))

	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "healthz")
	resp := testutil.AssertJSONResponse(t, rr, StatusOK)
	checks, _ := resp["checks"].(map[string]any)
	if checks["redis"] != StatusOK {
		t.Errorf("expected redis check ok, got %v", checks["redis"])
	}
}

func TestHealthHandler_Unhealthy(t *testing.T) {
	s := NewServer(
		WithHealthCheck("redis", func(context.Context) error { return errors.New("dial tcp: connection refused") }),
		WithHealthCheck("database", func(context.Context) error { return nil }),
	)

	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	testutil.AssertHTTPStatus(t, http.StatusServiceUnavailable, rr.Code, "healthz")
	resp := testutil.AssertJSONResponse(t, rr, StatusError)
	checks, _ := resp["checks"].(map[string]any)
	if checks["database"] != StatusOK {
		t.Errorf("expected database check ok, got %v", checks["database"])
	}
	if checks["redis"] == StatusOK {
		t.Error("expected redis check to fail")
	}
}

func TestHealthHandler_MethodNotAllowed(t *testing.T) {
	s := NewServer()
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/healthz", nil))
	testutil.AssertHTTPStatus(t, http.StatusMethodNotAllowed, rr.Code, "POST /healthz")
}

func TestMetricsEndpoint(t *testing.T) {
	m := metrics.New()
	m.RateLimited()
	s := NewServer(WithMetricsHandler(m.Handler()))

	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "metrics")
	body, _ := io.ReadAll(rr.Body)
	if !strings.Contains(string(body), "isitstolen_") {
		t.Errorf("expected isitstolen metrics in output, got %q", body)
	}
}

func TestRoutesAreOptional(t *testing.T) {
	s := NewServer()
	for _, path := range []string{"/metrics", "/twilio/webhook"} {
		rr := httptest.NewRecorder()
		s.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
		testutil.AssertHTTPStatus(t, http.StatusNotFound, rr.Code, path)
	}
}

func TestTwilioWebhookRoute(t *testing.T) {
	var got url.Values
	s := NewServer(WithTwilioWebhook(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		got = r.PostForm
		w.WriteHeader(http.StatusOK)
	}))

	req := testutil.CreateFormRequest(t, "/twilio/webhook", url.Values{"From": {"whatsapp:+447700900123"}, "Body": {"Hi"}})
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, req)

	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "webhook")
	if got.Get("Body") != "Hi" {
		t.Errorf("expected webhook to receive form, got %v", got)
	}
}

func TestStartStopsOnCancel(t *testing.T) {
	s := NewServer(WithAddr("127.0.0.1:0"))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()
	cancel()
	if err := <-done; err != nil && !errors.Is(err, context.Canceled) {
		t.Fatalf("Start returned error: %v", err)
	}
}
