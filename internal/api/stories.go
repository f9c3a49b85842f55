package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/alphabot-ai/threadcache/internal/identity"
	"github.com/alphabot-ai/threadcache/internal/relation"
	"github.com/alphabot-ai/threadcache/internal/store"
)

type CreateStoryRequest struct {
	CommunityID string `json:"community_id,omitempty"`
	Title       string `json:"title"`
	URL         string `json:"url,omitempty"`
	Text        string `json:"text,omitempty"`
	Lang        string `json:"lang,omitempty"`
}

type CreateStoryResponse struct {
	ID       string `json:"id"`
	Existing bool   `json:"existing,omitempty"`
}

type ListStoriesResponse struct {
	Stories    []*store.Story `json:"stories"`
	NextCursor string         `json:"next_cursor,omitempty"`
}

// CreateStory handles POST /api/stories
func (h *Handler) CreateStory(w http.ResponseWriter, r *http.Request) {
	viewer := identity.FromContext(r.Context())

	var req CreateStoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	// Validate title
	titleLen := utf8.RuneCountInString(req.Title)
	if titleLen < 8 || titleLen > 180 {
		writeError(w, http.StatusBadRequest, "title must be 8-180 characters")
		return
	}

	// Validate URL or text
	hasURL := req.URL != ""
	hasText := req.Text != ""
	if hasURL == hasText {
		writeError(w, http.StatusBadRequest, "exactly one of url or text must be provided")
		return
	}

	if req.CommunityID != "" {
		community, m, ok := h.community(w, r, req.CommunityID)
		if !ok {
			return
		}
		if !relation.CanSubmit(viewer, community, m) {
			writeError(w, http.StatusForbidden, "not allowed to submit to this community")
			return
		}
	}

	if hasURL {
		if _, err := url.ParseRequestURI(req.URL); err != nil {
			writeError(w, http.StatusBadRequest, "invalid URL format")
			return
		}

		since := time.Now().Add(-h.cfg.DuplicateWindow.Duration)
		existing, err := h.store.FindStoryByURL(r.Context(), req.URL, since)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "database error")
			return
		}
		if existing != nil {
			writeJSON(w, http.StatusOK, CreateStoryResponse{
				ID:       existing.ID,
				Existing: true,
			})
			return
		}
	}

	lang := req.Lang
	if lang == "" {
		lang = viewer.Lang
	}

	story := &store.Story{
		CommunityID: req.CommunityID,
		AuthorID:    viewer.ID(),
		Title:       req.Title,
		URL:         req.URL,
		Text:        req.Text,
		Lang:        lang,
	}
	if err := h.store.CreateStory(r.Context(), story); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create story")
		return
	}

	writeJSON(w, http.StatusCreated, CreateStoryResponse{ID: story.ID})
}

// visibleStory loads a story the viewer may see. It writes the error
// response itself and returns nil when the request cannot continue.
func (h *Handler) visibleStory(w http.ResponseWriter, r *http.Request, id string) *store.Story {
	story, err := h.store.GetStory(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "database error")
		return nil
	}
	if story == nil {
		writeError(w, http.StatusNotFound, "story not found")
		return nil
	}
	if story.CommunityID == "" {
		return story
	}

	community, m, ok := h.community(w, r, story.CommunityID)
	if !ok {
		return nil
	}
	if !relation.CanView(identity.FromContext(r.Context()), community, m) {
		writeError(w, http.StatusForbidden, "community is private")
		return nil
	}
	return story
}

// GetStory handles GET /api/stories/{id}
func (h *Handler) GetStory(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "story id required")
		return
	}

	story := h.visibleStory(w, r, id)
	if story == nil {
		return
	}

	writeJSON(w, http.StatusOK, story)
}

// ListStories handles GET /api/stories
func (h *Handler) ListStories(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	sortStr := query.Get("sort")
	var sort store.SortOrder
	switch sortStr {
	case "new":
		sort = store.SortNew
	case "discussed":
		sort = store.SortDiscussed
	default:
		sort = store.SortTop
	}

	limit := 30
	if limitStr := query.Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l <= 100 {
			limit = l
		}
	}

	opts := store.ListOptions{
		Sort:   sort,
		Limit:  limit,
		Cursor: query.Get("cursor"),
	}

	stories, nextCursor, err := h.store.ListStories(r.Context(), opts)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}

	writeJSON(w, http.StatusOK, ListStoriesResponse{
		Stories:    stories,
		NextCursor: nextCursor,
	})
}

// SaveStory handles POST /api/stories/{id}/save
func (h *Handler) SaveStory(w http.ResponseWriter, r *http.Request) {
	viewer := identity.FromContext(r.Context())
	story := h.visibleStory(w, r, r.PathValue("id"))
	if story == nil {
		return
	}
	if _, _, err := h.relations.Ensure(r.Context(), relation.KindSaveHide, viewer.ID(), story.ID, relation.Save, nil); err != nil {
		h.writeRelationError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, OKResponse{OK: true})
}

// UnsaveStory handles POST /api/stories/{id}/unsave
func (h *Handler) UnsaveStory(w http.ResponseWriter, r *http.Request) {
	viewer := identity.FromContext(r.Context())
	if err := h.relations.Remove(r.Context(), relation.KindSaveHide, viewer.ID(), r.PathValue("id"), relation.Save); err != nil {
		h.writeRelationError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, OKResponse{OK: true})
}

// HideStory handles POST /api/stories/{id}/hide
func (h *Handler) HideStory(w http.ResponseWriter, r *http.Request) {
	viewer := identity.FromContext(r.Context())
	story := h.visibleStory(w, r, r.PathValue("id"))
	if story == nil {
		return
	}
	_, err := h.relations.Add(r.Context(), relation.KindSaveHide, viewer.ID(), story.ID, relation.Hide, nil)
	if err != nil && !errors.Is(err, relation.ErrDuplicateRelation) {
		h.writeRelationError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, OKResponse{OK: true})
}
