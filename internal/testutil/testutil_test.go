package testutil

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"testing"
	"time"
)

func TestNewRedis(t *testing.T) {
	mr, client := NewRedis(t)
	if err := client.Set(context.Background(), "k", "v", time.Minute).Err(); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	got, err := mr.Get("k")
	if err != nil || got != "v" {
		t.Errorf("expected miniredis to hold k=v, got %q (%v)", got, err)
	}
}

func TestClock(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewClock(start)
	c.Advance(90 * time.Second)
	if want := start.Add(90 * time.Second); !c.Now().Equal(want) {
		t.Errorf("expected %v, got %v", want, c.Now())
	}
}

func TestWriteFile(t *testing.T) {
	path := WriteFile(t, "flows.yaml", "flows: {}\n")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if string(data) != "flows: {}\n" {
		t.Errorf("unexpected content %q", data)
	}
}

func TestAssertHTTPStatus(t *testing.T) {
	tests := []struct {
		name       string
		expected   int
		actual     int
		shouldFail bool
	}{
		{name: "matching status codes", expected: 200, actual: 200},
		{name: "different status codes", expected: 200, actual: 404, shouldFail: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockT := &mockTestingT{}
			AssertHTTPStatus(mockT, tt.expected, tt.actual, "test context")
			if tt.shouldFail != mockT.failed {
				t.Errorf("expected failed=%v, got %v (%v)", tt.shouldFail, mockT.failed, mockT.messages)
			}
		})
	}
}

func TestAssertJSONResponse(t *testing.T) {
	rr := httptest.NewRecorder()
	rr.WriteString(`{"status":"ok","count":2}`)
	resp := AssertJSONResponse(t, rr, "ok")
	if resp["count"].(float64) != 2 {
		t.Errorf("expected count 2, got %v", resp["count"])
	}

	mockT := &mockTestingT{}
	rr = httptest.NewRecorder()
	rr.WriteString(`{"status":"error"}`)
	AssertJSONResponse(mockT, rr, "ok")
	if !mockT.failed {
		t.Error("expected mismatched status to fail")
	}

	mockT = &mockTestingT{}
	rr = httptest.NewRecorder()
	rr.WriteString(`{}`)
	AssertJSONResponse(mockT, rr, "ok")
	if !mockT.failed {
		t.Error("expected missing status to fail")
	}
}

func TestCreateFormRequest(t *testing.T) {
	req := CreateFormRequest(t, "/twilio/webhook", url.Values{"From": {"whatsapp:+15551234567"}, "Body": {"hi"}})
	if req.Method != http.MethodPost {
		t.Errorf("expected POST, got %s", req.Method)
	}
	if err := req.ParseForm(); err != nil {
		t.Fatalf("parse form: %v", err)
	}
	if req.PostForm.Get("Body") != "hi" {
		t.Errorf("expected Body=hi, got %q", req.PostForm.Get("Body"))
	}
}

func TestCreateHTTPRequest(t *testing.T) {
	req := CreateHTTPRequest(t, http.MethodGet, "/healthz", nil)
	if req.Method != http.MethodGet || req.URL.Path != "/healthz" {
		t.Errorf("unexpected request %s %s", req.Method, req.URL.Path)
	}
	req = CreateHTTPRequest(t, http.MethodPost, "/x", map[string]string{"a": "b"})
	if req.ContentLength == 0 {
		t.Error("expected a JSON body")
	}
}

// mockTestingT implements TestingT and records failures instead of failing.
type mockTestingT struct {
	failed   bool
	messages []string
}

func (m *mockTestingT) Helper() {}

func (m *mockTestingT) Errorf(format string, args ...any) {
	m.failed = true
	m.messages = append(m.messages, fmt.Sprintf(format, args...))
}

func (m *mockTestingT) Error(args ...any) {
	m.failed = true
	m.messages = append(m.messages, fmt.Sprint(args...))
}

func (m *mockTestingT) Fatalf(format string, args ...any) {
	m.failed = true
	m.messages = append(m.messages, fmt.Sprintf(format, args...))
}
