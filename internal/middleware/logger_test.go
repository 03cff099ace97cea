package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestLogger(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	logger := zap.New(core)

	h := Logger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte("ok"))
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/revenues", nil))

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("log entries = %d, want 1", len(entries))
	}

	fields := entries[0].ContextMap()
	if fields["status"] != int64(http.StatusCreated) {
		t.Fatalf("status field = %v, want %d", fields["status"], http.StatusCreated)
	}
	if fields["size"] != int64(2) {
		t.Fatalf("size field = %v, want 2", fields["size"])
	}
	if fields["method"] != http.MethodPost {
		t.Fatalf("method field = %v", fields["method"])
	}
}
