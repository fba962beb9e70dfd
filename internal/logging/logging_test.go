package logging

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func observe(t *testing.T) *observer.ObservedLogs {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	mu.Lock()
	prev := globalLog
	globalLog = zap.New(core)
	mu.Unlock()
	t.Cleanup(func() {
		mu.Lock()
		globalLog = prev
		mu.Unlock()
	})
	return logs
}

func TestMiddlewareLevels(t *testing.T) {
	tests := []struct {
		method string
		status int
		want   zapcore.Level
	}{
		{http.MethodGet, http.StatusOK, zapcore.InfoLevel},
		{http.MethodHead, http.StatusOK, zapcore.DebugLevel},
		{http.MethodHead, http.StatusNotFound, zapcore.DebugLevel},
		{http.MethodPost, http.StatusBadGateway, zapcore.WarnLevel},
	}
	for _, tt := range tests {
		logs := observe(t)
		h := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tt.status)
		}))
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(tt.method, "/api/files/a.png", nil))

		entries := logs.All()
		if len(entries) != 1 {
			t.Fatalf("%s %d: %d entries", tt.method, tt.status, len(entries))
		}
		if entries[0].Level != tt.want {
			t.Errorf("%s %d: level %v, want %v", tt.method, tt.status, entries[0].Level, tt.want)
		}
	}
}

func TestMiddlewareKeepsRequestID(t *testing.T) {
	logs := observe(t)
	var fromCtx *zap.Logger
	h := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fromCtx = WithContext(r.Context())
	}))
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "req-42")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if got := rec.Header().Get("X-Request-ID"); got != "req-42" {
		t.Errorf("response id = %q", got)
	}
	if fromCtx == nil || fromCtx == L() {
		t.Error("handler did not get the request logger")
	}
	if got := logs.All()[0].ContextMap()["request_id"]; got != "req-42" {
		t.Errorf("logged request_id = %v", got)
	}
}
