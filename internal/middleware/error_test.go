package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestRecoverer_NoPanic(t *testing.T) {
	t.Parallel()

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK")) // Ignore error in test
	})

	w := httptest.NewRecorder()
	Recoverer(zap.NewNop())(handler).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}
}

func TestRecoverer_PanicRecovery(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.ErrorLevel)
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("test panic")
	})

	w := httptest.NewRecorder()
	// Should not panic
	Recoverer(zap.New(core))(handler).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/board", nil))

	if w.Code != http.StatusInternalServerError {
		t.Errorf("Expected status 500, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Expected Content-Type 'application/json', got '%s'", ct)
	}

	var body ErrorResponse
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if body.Success {
		t.Error("Expected success to be false")
	}
	if body.Path != "/api/v1/board" {
		t.Errorf("Expected path '/api/v1/board', got '%s'", body.Path)
	}
	if body.Message == "test panic" {
		t.Error("Panic value must not leak to the client")
	}
	if logs.FilterMessage("panic_recovered").Len() != 1 {
		t.Error("Expected panic_recovered to be logged")
	}
}

func TestRecoverer_PanicAfterWrite(t *testing.T) {
	t.Parallel()

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
		panic("late panic")
	})

	w := httptest.NewRecorder()
	Recoverer(zap.NewNop())(handler).ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/tasks", nil))

	if w.Code != http.StatusAccepted {
		t.Errorf("Expected original status to stand, got %d", w.Code)
	}
	if w.Body.Len() != 0 {
		t.Errorf("Expected no error body after headers were sent, got %q", w.Body.String())
	}
}

func TestRecoverer_IncludesRequestID(t *testing.T) {
	t.Parallel()

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})

	w := httptest.NewRecorder()
	RequestID(Recoverer(zap.NewNop())(handler)).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/board", nil))

	var body ErrorResponse
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if body.RequestID == "" || body.RequestID != w.Header().Get("X-Request-ID") {
		t.Errorf("Expected request id %q in body, got %q", w.Header().Get("X-Request-ID"), body.RequestID)
	}
}
