package api

import (
	"encoding/json"
	"net/http"
	"unicode/utf8"

	"github.com/alphabot-ai/threadcache/internal/identity"
	"github.com/alphabot-ai/threadcache/internal/relation"
	"github.com/alphabot-ai/threadcache/internal/store"
)

const maxCommentLength = 10000

type CreateCommentRequest struct {
	StoryID  string `json:"story_id"`
	ParentID string `json:"parent_id,omitempty"`
	Text     string `json:"text"`
}

type CreateCommentResponse struct {
	ID string `json:"id"`
}

type EditCommentRequest struct {
	Text string `json:"text"`
}

type ListCommentsResponse struct {
	Comments []*store.Comment `json:"comments"`
}

// CreateComment handles POST /api/comments. The parent comment's author, or
// the story's author for top-level comments, gets an inbox entry.
func (h *Handler) CreateComment(w http.ResponseWriter, r *http.Request) {
	viewer := identity.FromContext(r.Context())

	var req CreateCommentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	if req.StoryID == "" {
		writeError(w, http.StatusBadRequest, "story_id is required")
		return
	}
	if req.Text == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}
	if utf8.RuneCountInString(req.Text) > maxCommentLength {
		writeError(w, http.StatusBadRequest, "text is too long")
		return
	}

	story, err := h.store.GetStory(r.Context(), req.StoryID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}
	if story == nil {
		writeError(w, http.StatusNotFound, "story not found")
		return
	}

	var community *store.Community
	var m relation.Membership
	if story.CommunityID != "" {
		var ok bool
		community, m, ok = h.community(w, r, story.CommunityID)
		if !ok {
			return
		}
	}
	if !relation.CanComment(viewer, community, m) {
		writeError(w, http.StatusForbidden, "not allowed to comment here")
		return
	}

	var parent *store.Comment
	if req.ParentID != "" {
		parent, err = h.store.GetComment(r.Context(), req.ParentID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "database error")
			return
		}
		if parent == nil {
			writeError(w, http.StatusNotFound, "parent comment not found")
			return
		}
		if parent.StoryID != req.StoryID {
			writeError(w, http.StatusBadRequest, "parent comment is from a different story")
			return
		}
	}

	comment := &store.Comment{
		StoryID:  req.StoryID,
		ParentID: req.ParentID,
		AuthorID: viewer.ID(),
		Text:     req.Text,
	}
	if err := h.store.CreateComment(r.Context(), comment); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create comment")
		return
	}

	h.store.UpdateStoryCommentCount(r.Context(), req.StoryID, 1)

	recipient, name := story.AuthorID, relation.SelfReply
	if parent != nil {
		recipient, name = parent.AuthorID, relation.Inbox
	}
	if recipient != "" && recipient != viewer.ID() {
		if _, err := h.relations.AddInbox(r.Context(), recipient, comment.ID, name); err != nil {
			h.logger.Warn("failed to deliver reply to inbox", "recipient", recipient, "comment", comment.ID, "error", err)
		}
	}

	writeJSON(w, http.StatusCreated, CreateCommentResponse{ID: comment.ID})
}

// ownComment loads a comment written by the viewer. It writes the error
// response itself and returns nil when the request cannot continue.
func (h *Handler) ownComment(w http.ResponseWriter, r *http.Request) *store.Comment {
	comment, err := h.store.GetComment(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "database error")
		return nil
	}
	if comment == nil || comment.Deleted {
		writeError(w, http.StatusNotFound, "comment not found")
		return nil
	}
	if comment.AuthorID != identity.FromContext(r.Context()).ID() {
		writeError(w, http.StatusForbidden, "not your comment")
		return nil
	}
	return comment
}

// EditComment handles PATCH /api/comments/{id}
func (h *Handler) EditComment(w http.ResponseWriter, r *http.Request) {
	var req EditCommentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Text == "" || utf8.RuneCountInString(req.Text) > maxCommentLength {
		writeError(w, http.StatusBadRequest, "text must be 1-10000 characters")
		return
	}

	comment := h.ownComment(w, r)
	if comment == nil {
		return
	}
	if err := h.store.EditComment(r.Context(), comment.ID, req.Text); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to edit comment")
		return
	}
	writeJSON(w, http.StatusOK, OKResponse{OK: true})
}

// DeleteComment handles DELETE /api/comments/{id}
func (h *Handler) DeleteComment(w http.ResponseWriter, r *http.Request) {
	comment := h.ownComment(w, r)
	if comment == nil {
		return
	}
	if err := h.store.DeleteComment(r.Context(), comment.ID); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to delete comment")
		return
	}
	writeJSON(w, http.StatusOK, OKResponse{OK: true})
}

// ListComments handles GET /api/stories/{id}/comments
func (h *Handler) ListComments(w http.ResponseWriter, r *http.Request) {
	storyID := r.PathValue("id")
	if storyID == "" {
		writeError(w, http.StatusBadRequest, "story id required")
		return
	}

	story := h.visibleStory(w, r, storyID)
	if story == nil {
		return
	}

	query := r.URL.Query()

	var sort store.SortOrder
	switch query.Get("sort") {
	case "new":
		sort = store.SortNew
	default:
		sort = store.SortTop
	}

	var view store.ViewMode
	switch query.Get("view") {
	case "flat":
		view = store.ViewFlat
	default:
		view = store.ViewTree
	}

	comments, err := h.store.ListComments(r.Context(), story.ID, store.CommentListOptions{Sort: sort, View: view})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}

	writeJSON(w, http.StatusOK, ListCommentsResponse{Comments: comments})
}
