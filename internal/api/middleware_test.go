package api

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/storymill/storymill-render/internal/failure"
)

func TestAuthMiddleware(t *testing.T) {
	tests := []struct {
		name     string
		header   string
		settings *fakeSettings
		wantCode int
	}{
		{"missing header", "", &fakeSettings{token: "secret-token"}, http.StatusUnauthorized},
		{"wrong scheme", "Basic secret-token", &fakeSettings{token: "secret-token"}, http.StatusUnauthorized},
		{"wrong token", "Bearer nope", &fakeSettings{token: "secret-token"}, http.StatusUnauthorized},
		{"valid token", "Bearer secret-token", &fakeSettings{token: "secret-token"}, http.StatusOK},
		{"no stored token", "Bearer secret-token", &fakeSettings{}, http.StatusInternalServerError},
		{"settings error", "Bearer secret-token", &fakeSettings{err: errors.New("db closed")}, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := AuthMiddleware(tt.settings, testLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			}))

			req := httptest.NewRequest(http.MethodGet, "/jobs", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			if rr.Code != tt.wantCode {
				t.Fatalf("status code = %d, want %d", rr.Code, tt.wantCode)
			}
		})
	}
}

func TestRouter_AuthGuardsJobs(t *testing.T) {
	cfg := testConfig()
	cfg.AuthEnabled = true

	rr := serve(cfg, httptest.NewRequest(http.MethodGet, "/jobs", nil))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status code = %d, want 401", rr.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/jobs", nil)
	req.Header.Set("Authorization", "Bearer secret-token")
	rr = serve(cfg, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("status code = %d, want 200", rr.Code)
	}
}

func TestRequestIDMiddleware(t *testing.T) {
	var seen string
	handler := RequestIDMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = r.Context().Value(RequestIDKey).(string)
	}))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "abc123")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if seen != "abc123" || rr.Header().Get("X-Request-ID") != "abc123" {
		t.Fatalf("request id = %q, header = %q", seen, rr.Header().Get("X-Request-ID"))
	}

	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	if len(seen) != 8 {
		t.Fatalf("generated request id = %q, want 8 chars", seen)
	}
	if rr.Header().Get("X-Request-ID") != seen {
		t.Fatalf("header = %q, want %q", rr.Header().Get("X-Request-ID"), seen)
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	handler := RecoveryMiddleware(testLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/jobs", nil))
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status code = %d, want 500", rr.Code)
	}
	if got := decodeJSONBody(t, rr)["code"]; got != "INTERNAL_ERROR" {
		t.Fatalf("code = %v", got)
	}
}

func TestLoggingMiddleware_KeepsFlusher(t *testing.T) {
	var flushed bool
	handler := LoggingMiddleware(testLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f, ok := w.(http.Flusher)
		if !ok {
			t.Fatal("wrapped writer does not implement http.Flusher")
		}
		w.WriteHeader(http.StatusTeapot)
		f.Flush()
		flushed = true
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	if !flushed || !rr.Flushed {
		t.Fatal("response was not flushed")
	}
	if rr.Code != http.StatusTeapot {
		t.Fatalf("status code = %d", rr.Code)
	}
}

func TestWriteFailure(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		wantStatus  int
		wantCode    string
		wantMessage string
		wantStage   string
	}{
		{
			"validation uses message",
			failure.Wrap(failure.ErrValidation, "validate", "scenes", "scene 2 has no image", nil),
			http.StatusBadRequest, "VALIDATION_ERROR", "scene 2 has no image", "validate",
		},
		{
			"not found",
			failure.Wrap(failure.ErrArtifactNotFound, "resolve", "lookup", "no artifact \"x\"", nil),
			http.StatusNotFound, "NOT_FOUND", "no artifact \"x\"", "resolve",
		},
		{
			"asset download",
			failure.Wrap(failure.ErrAssetDownload, "assets", "fetch", "", errors.New("timeout")),
			http.StatusBadGateway, "ASSET_DOWNLOAD_ERROR", "", "assets",
		},
		{
			"packaging names stage",
			failure.Wrap(failure.ErrPackaging, "render", "archive", "", errors.New("disk full")),
			http.StatusInternalServerError, "PACKAGING_ERROR", "", "render",
		},
		{
			"untyped",
			errors.New("disk full"),
			http.StatusInternalServerError, "INTERNAL_ERROR", "disk full", "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			WriteFailure(rr, testLogger(), tt.err)

			if rr.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rr.Code, tt.wantStatus)
			}
			body := decodeJSONBody(t, rr)
			if body["code"] != tt.wantCode {
				t.Fatalf("code = %v, want %s", body["code"], tt.wantCode)
			}
			if tt.wantMessage != "" && body["error"] != tt.wantMessage {
				t.Fatalf("error = %v, want %q", body["error"], tt.wantMessage)
			}
			stage, _ := body["stage"].(string)
			if stage != tt.wantStage {
				t.Fatalf("stage = %q, want %q", stage, tt.wantStage)
			}
		})
	}
}
