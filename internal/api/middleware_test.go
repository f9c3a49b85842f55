package api

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/alphabot-ai/threadcache/internal/identity"
)

func TestLogRequests(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	logged := LogRequests(logger, handler)

	req := httptest.NewRequest(http.MethodGet, "/api/stories", nil)
	rec := httptest.NewRecorder()
	logged.ServeHTTP(rec, req)

	if rec.Code != http.StatusTeapot {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusTeapot)
	}

	logOutput := buf.String()
	for _, want := range []string{"method=GET", "path=/api/stories", "status=418"} {
		if !strings.Contains(logOutput, want) {
			t.Errorf("log output %q should contain %q", logOutput, want)
		}
	}
}

func TestLogRequestsDefaultStatus(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})

	LogRequests(logger, handler).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/test", nil))

	if !strings.Contains(buf.String(), "status=200") {
		t.Errorf("log should record implicit 200, got %q", buf.String())
	}
}

func TestOptionalAuth(t *testing.T) {
	ts := setupTestServer(t)
	defer ts.cleanup()

	aliceID, alice := ts.signup(t, "alice")

	tests := []struct {
		name     string
		token    string
		lang     string
		wantID   string
		wantLang string
	}{
		{name: "no token", wantID: "", wantLang: "en"},
		{name: "bogus token", token: "bogus", wantID: "", wantLang: "en"},
		{name: "valid token", token: alice, lang: "de-DE,de;q=0.9", wantID: aliceID, wantLang: "de"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got *identity.Viewer
			handler := ts.handler.OptionalAuth(func(w http.ResponseWriter, r *http.Request) {
				got = identity.FromContext(r.Context())
			})

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.token != "" {
				req.Header.Set("Authorization", "Bearer "+tt.token)
			}
			if tt.lang != "" {
				req.Header.Set("Accept-Language", tt.lang)
			}
			handler.ServeHTTP(httptest.NewRecorder(), req)

			if got == nil {
				t.Fatal("handler was not called")
			}
			if got.ID() != tt.wantID {
				t.Errorf("viewer id = %q, want %q", got.ID(), tt.wantID)
			}
			if got.Lang != tt.wantLang {
				t.Errorf("lang = %q, want %q", got.Lang, tt.wantLang)
			}
		})
	}
}

func TestRequireAuthRejectsMissingToken(t *testing.T) {
	ts := setupTestServer(t)
	defer ts.cleanup()

	called := false
	handler := ts.handler.RequireAuth(func(w http.ResponseWriter, r *http.Request) {
		called = true
	})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
	if called {
		t.Error("handler should not run without a token")
	}
}

func TestRequestLang(t *testing.T) {
	tests := map[string]string{
		"":                "en",
		"*":               "en",
		"fr":              "fr",
		"pt-BR,pt;q=0.8":  "pt",
		"EN-us":           "en",
		" es ; q=0.5, en": "es",
	}
	for header, want := range tests {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if header != "" {
			req.Header.Set("Accept-Language", header)
		}
		if got := requestLang(req); got != want {
			t.Errorf("requestLang(%q) = %q, want %q", header, got, want)
		}
	}
}
