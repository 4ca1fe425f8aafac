package middleware

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/essaybinder/internal/metrics"
)

type recordingMetrics struct {
	metrics.Nop
	statuses []int
}

func (m *recordingMetrics) RecordHTTPStatus(code int) { m.statuses = append(m.statuses, code) }

func parseLog(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse JSON log: %v\nraw: %s", err, buf.String())
	}
	return entry
}

func TestLoggingMiddleware_LogsRequestFields(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	m := &recordingMetrics{}

	handler := NewLoggingMiddleware(logger, m)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/essays/add", nil))

	entry := parseLog(t, &buf)
	if entry["method"] != "POST" || entry["path"] != "/essays/add" {
		t.Errorf("method/path = %v %v", entry["method"], entry["path"])
	}
	if entry["status"] != float64(201) {
		t.Errorf("status = %v, want 201", entry["status"])
	}
	if _, ok := entry["duration_ms"]; !ok {
		t.Error("expected duration_ms field")
	}
	if _, ok := entry["user_id"]; ok {
		t.Error("user_id should be absent for anonymous requests")
	}
	if len(m.statuses) != 1 || m.statuses[0] != 201 {
		t.Errorf("recorded statuses = %v, want [201]", m.statuses)
	}
}

func TestLoggingMiddleware_IncludesUserIDFromSession(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	inner := NewSessionMiddleware(validVerifier(), CookieConfig{})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	handler := NewLoggingMiddleware(logger, nil)(inner)

	req := httptest.NewRequest(http.MethodGet, "/essays", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "good-token"})
	handler.ServeHTTP(httptest.NewRecorder(), req)

	entry := parseLog(t, &buf)
	if entry["user_id"] != alice.ID {
		t.Errorf("user_id = %v, want %s", entry["user_id"], alice.ID)
	}
}

func TestLoggingMiddleware_LevelByStatus(t *testing.T) {
	tests := []struct {
		status int
		want   string
	}{
		{http.StatusOK, "INFO"},
		{http.StatusNotFound, "WARN"},
		{http.StatusInternalServerError, "ERROR"},
	}
	for _, tt := range tests {
		var buf bytes.Buffer
		logger := slog.New(slog.NewJSONHandler(&buf, nil))
		handler := NewLoggingMiddleware(logger, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tt.status)
		}))
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

		if got := parseLog(t, &buf)["level"]; got != tt.want {
			t.Errorf("status %d: level = %v, want %s", tt.status, got, tt.want)
		}
	}
}
