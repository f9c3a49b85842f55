package web

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/alphabot-ai/threadcache/internal/config"
	"github.com/alphabot-ai/threadcache/internal/identity"
	"github.com/alphabot-ai/threadcache/internal/logging"
	"github.com/alphabot-ai/threadcache/internal/pane"
	"github.com/alphabot-ai/threadcache/internal/relation"
	"github.com/alphabot-ai/threadcache/internal/render"
	"github.com/alphabot-ai/threadcache/internal/rendercache"
	"github.com/alphabot-ai/threadcache/internal/store"
)

type testEnv struct {
	handler   *Handler
	store     *store.SQLiteStore
	relations *relation.Store
	cleanup   func()
}

func setupTestHandler(t *testing.T) *testEnv {
	t.Helper()

	tmpFile, err := os.CreateTemp("", "threadcache-web-test-*.db")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	tmpFile.Close()

	sqliteStore, err := store.NewSQLiteStore(tmpFile.Name())
	if err != nil {
		os.Remove(tmpFile.Name())
		t.Fatalf("failed to create store: %v", err)
	}

	cleanup := func() {
		sqliteStore.Close()
		os.Remove(tmpFile.Name())
	}

	renderer, err := render.NewRenderer()
	if err != nil {
		cleanup()
		t.Fatalf("failed to create renderer: %v", err)
	}

	cfg := &config.Config{
		BaseURL: "http://localhost:8080",
	}

	logger := logging.Discard()
	relations := relation.NewStore(sqliteStore, 5*time.Second, logger)
	panes := pane.NewService(sqliteStore, relations, renderer, rendercache.NewMemoryCache(), time.Minute, 200, logger)

	handler, err := NewHandler(sqliteStore, panes, relations, cfg, logger)
	if err != nil {
		cleanup()
		t.Fatalf("failed to create handler: %v", err)
	}

	return &testEnv{handler: handler, store: sqliteStore, relations: relations, cleanup: cleanup}
}

func (e *testEnv) story(t *testing.T, s *store.Story) *store.Story {
	t.Helper()
	if err := e.store.CreateStory(context.Background(), s); err != nil {
		t.Fatalf("failed to create story: %v", err)
	}
	return s
}

func asViewer(req *http.Request, id string) *http.Request {
	v := &identity.Viewer{AccountID: id, LoggedIn: true, Lang: "en", MinCommentScore: identity.DefaultMinCommentScore}
	return req.WithContext(identity.NewContext(req.Context(), v))
}

func storyRequest(id, query string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/story/"+id+query, nil)
	req.SetPathValue("id", id)
	return req
}

func TestNewHandler(t *testing.T) {
	env := setupTestHandler(t)
	defer env.cleanup()

	if len(env.handler.templates) != 3 {
		t.Errorf("expected 3 templates, got %d", len(env.handler.templates))
	}
	for _, page := range []string{"home.html", "story.html", "submit.html"} {
		if env.handler.templates[page] == nil {
			t.Errorf("template %s missing", page)
		}
	}
}

func TestHomeHandler(t *testing.T) {
	env := setupTestHandler(t)
	defer env.cleanup()

	env.story(t, &store.Story{Title: "Test Story Title", URL: "https://example.com", Lang: "en"})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	env.handler.Home(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.Contains(ct, "text/html") {
		t.Errorf("expected text/html content type, got %s", ct)
	}
	if !strings.Contains(rec.Body.String(), "Test Story Title") {
		t.Error("expected story title in response")
	}
}

func TestHomeHandlerNotFound(t *testing.T) {
	env := setupTestHandler(t)
	defer env.cleanup()

	rec := httptest.NewRecorder()
	env.handler.Home(rec, httptest.NewRequest(http.MethodGet, "/nonexistent", nil))

	if rec.Code != http.StatusNotFound {
		t.Errorf("expected status 404, got %d", rec.Code)
	}
}

func TestHomeHidesHiddenStories(t *testing.T) {
	env := setupTestHandler(t)
	defer env.cleanup()

	kept := env.story(t, &store.Story{Title: "Story that stays", Text: "body", Lang: "en"})
	hidden := env.story(t, &store.Story{Title: "Story that goes", Text: "body", Lang: "en"})
	if _, err := env.relations.Add(context.Background(), relation.KindSaveHide, "alice", hidden.ID, relation.Hide, nil); err != nil {
		t.Fatalf("failed to hide story: %v", err)
	}

	req := asViewer(httptest.NewRequest(http.MethodGet, "/?format=json", nil), "alice")
	rec := httptest.NewRecorder()
	env.handler.Home(rec, req)

	var body struct {
		Stories []*store.Story `json:"stories"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(body.Stories) != 1 || body.Stories[0].ID != kept.ID {
		t.Errorf("expected only %s, got %+v", kept.ID, body.Stories)
	}

	// Someone else still sees both
	rec = httptest.NewRecorder()
	env.handler.Home(rec, asViewer(httptest.NewRequest(http.MethodGet, "/?format=json", nil), "bob"))
	body.Stories = nil
	json.NewDecoder(rec.Body).Decode(&body)
	if len(body.Stories) != 2 {
		t.Errorf("expected 2 stories for another viewer, got %d", len(body.Stories))
	}
}

func TestStoryHandler(t *testing.T) {
	env := setupTestHandler(t)
	defer env.cleanup()

	s := env.story(t, &store.Story{Title: "A story worth reading", Text: "body", AuthorID: "op", Lang: "en"})
	if err := env.store.CreateComment(context.Background(), &store.Comment{StoryID: s.ID, AuthorID: "carol", Text: "first comment"}); err != nil {
		t.Fatalf("failed to create comment: %v", err)
	}

	rec := httptest.NewRecorder()
	env.handler.Story(rec, storyRequest(s.ID, ""))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{"A story worth reading", "first comment", `class="commentpane"`} {
		if !strings.Contains(body, want) {
			t.Errorf("expected %q in response", want)
		}
	}
	if strings.Contains(body, "{{ph:") {
		t.Error("placeholders should be resolved before serving")
	}
}

func TestStoryHandlerNotFound(t *testing.T) {
	env := setupTestHandler(t)
	defer env.cleanup()

	rec := httptest.NewRecorder()
	env.handler.Story(rec, storyRequest("nonexistent", ""))

	if rec.Code != http.StatusNotFound {
		t.Errorf("expected status 404, got %d", rec.Code)
	}
}

func TestStoryHandlerUnknownStyle(t *testing.T) {
	env := setupTestHandler(t)
	defer env.cleanup()

	s := env.story(t, &store.Story{Title: "A story worth reading", Text: "body", Lang: "en"})

	rec := httptest.NewRecorder()
	env.handler.Story(rec, storyRequest(s.ID, "?style=bogus"))

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d", rec.Code)
	}
}

func TestStoryHandlerPrivateCommunity(t *testing.T) {
	env := setupTestHandler(t)
	defer env.cleanup()

	ctx := context.Background()
	c := &store.Community{Name: "secret_club", Title: "Secret", Type: store.CommunityPrivate}
	if err := env.store.CreateCommunity(ctx, c); err != nil {
		t.Fatalf("failed to create community: %v", err)
	}
	s := env.story(t, &store.Story{Title: "Members only story", Text: "body", CommunityID: c.ID, Lang: "en"})

	rec := httptest.NewRecorder()
	env.handler.Story(rec, asViewer(storyRequest(s.ID, ""), "outsider"))
	if rec.Code != http.StatusForbidden {
		t.Errorf("expected status 403, got %d", rec.Code)
	}
}

func TestStoryHandlerJSONSharesCanonical(t *testing.T) {
	env := setupTestHandler(t)
	defer env.cleanup()

	s := env.story(t, &store.Story{Title: "A story worth reading", Text: "body", AuthorID: "op", Lang: "en"})

	get := func(viewer string) map[string]any {
		t.Helper()
		rec := httptest.NewRecorder()
		env.handler.Story(rec, asViewer(storyRequest(s.ID, "?format=json"), viewer))
		if rec.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rec.Code)
		}
		var body map[string]any
		if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		return body
	}

	first := get("alice")
	second := get("bob")

	if first["cached"] != false {
		t.Errorf("first render should miss the cache, got %v", first["cached"])
	}
	if second["cached"] != true {
		t.Errorf("second render should hit the cache, got %v", second["cached"])
	}
	if first["key"] == "" || first["key"] != second["key"] {
		t.Errorf("keys differ: %v vs %v", first["key"], second["key"])
	}
	if first["html"] != second["html"] {
		t.Error("canonical markup should be identical across viewers")
	}
	if html, _ := first["html"].(string); strings.Contains(html, "alice") {
		t.Error("canonical markup must not carry the viewer's identity")
	}
}

func TestStoryHandlerRecordsClick(t *testing.T) {
	env := setupTestHandler(t)
	defer env.cleanup()

	s := env.story(t, &store.Story{Title: "A story worth reading", Text: "body", Lang: "en"})

	env.handler.Story(httptest.NewRecorder(), asViewer(storyRequest(s.ID, ""), "alice"))

	rel, err := env.relations.Get(context.Background(), relation.KindClick, "alice", s.ID, relation.Click)
	if err != nil {
		t.Fatalf("failed to load click: %v", err)
	}
	if rel == nil {
		t.Error("expected click to be recorded for a logged-in viewer")
	}
}

func TestStoryHandlerXML(t *testing.T) {
	env := setupTestHandler(t)
	defer env.cleanup()

	s := env.story(t, &store.Story{Title: "A story worth reading", Text: "body", Lang: "en"})

	rec := httptest.NewRecorder()
	env.handler.Story(rec, storyRequest(s.ID, "?style=xml"))

	if ct := rec.Header().Get("Content-Type"); !strings.Contains(ct, "application/xml") {
		t.Errorf("expected application/xml content type, got %s", ct)
	}
	body := rec.Body.String()
	if !strings.HasPrefix(body, "<pane") {
		t.Errorf("expected bare pane document, got %q", body)
	}
	if strings.Contains(body, "<script") {
		t.Error("xml output should not carry the patch script")
	}
}

func TestSubmitHandler(t *testing.T) {
	env := setupTestHandler(t)
	defer env.cleanup()

	rec := httptest.NewRecorder()
	env.handler.Submit(rec, httptest.NewRequest(http.MethodGet, "/submit", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "<form") {
		t.Error("expected form in response")
	}
}

func TestSubmitHandlerJSON(t *testing.T) {
	env := setupTestHandler(t)
	defer env.cleanup()

	req := httptest.NewRequest(http.MethodGet, "/submit", nil)
	req.Header.Set("Accept", "application/json")
	rec := httptest.NewRecorder()
	env.handler.Submit(rec, req)

	var result map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&result); err != nil {
		t.Fatalf("failed to decode JSON: %v", err)
	}
	if _, ok := result["fields"]; !ok {
		t.Error("expected 'fields' in JSON response")
	}
}

func TestWantsJSON(t *testing.T) {
	tests := []struct {
		name     string
		accept   string
		format   string
		expected bool
	}{
		{"accept json", "application/json", "", true},
		{"format json", "", "json", true},
		{"accept html", "text/html", "", false},
		{"no preference", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			url := "/"
			if tt.format != "" {
				url = "/?format=" + tt.format
			}
			req := httptest.NewRequest(http.MethodGet, url, nil)
			if tt.accept != "" {
				req.Header.Set("Accept", tt.accept)
			}
			if got := wantsJSON(req); got != tt.expected {
				t.Errorf("wantsJSON() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestFormatScore(t *testing.T) {
	tests := []struct {
		score    int
		expected string
	}{
		{0, "0 points"},
		{1, "1 point"},
		{-1, "-1 point"},
		{42, "42 points"},
	}

	for _, tt := range tests {
		if got := FormatScore(tt.score); got != tt.expected {
			t.Errorf("FormatScore(%d) = %q, want %q", tt.score, got, tt.expected)
		}
	}
}
