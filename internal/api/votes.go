package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/alphabot-ai/threadcache/internal/identity"
	"github.com/alphabot-ai/threadcache/internal/store"
)

type CreateVoteRequest struct {
	TargetType string `json:"target_type"` // "story" or "comment"
	TargetID   string `json:"target_id"`
	Value      int    `json:"value"` // 1, -1, or 0 to clear
}

// CreateVote handles POST /api/votes
func (h *Handler) CreateVote(w http.ResponseWriter, r *http.Request) {
	viewer := identity.FromContext(r.Context())

	var req CreateVoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	if req.TargetType != "story" && req.TargetType != "comment" {
		writeError(w, http.StatusBadRequest, "target_type must be 'story' or 'comment'")
		return
	}
	if req.Value < -1 || req.Value > 1 {
		writeError(w, http.StatusBadRequest, "value must be 1, -1 or 0")
		return
	}

	var authorID string
	if req.TargetType == "story" {
		story := h.visibleStory(w, r, req.TargetID)
		if story == nil {
			return
		}
		authorID = story.AuthorID
	} else {
		comment, err := h.store.GetComment(r.Context(), req.TargetID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "database error")
			return
		}
		if comment == nil {
			writeError(w, http.StatusNotFound, "comment not found")
			return
		}
		if h.visibleStory(w, r, comment.StoryID) == nil {
			return
		}
		authorID = comment.AuthorID
	}
	if authorID != "" && authorID == viewer.ID() {
		writeError(w, http.StatusForbidden, "cannot vote on your own content")
		return
	}

	existing, err := h.store.GetVote(r.Context(), viewer.ID(), req.TargetType, req.TargetID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}

	delta := req.Value
	if existing != nil {
		if existing.Value == req.Value {
			writeJSON(w, http.StatusOK, OKResponse{OK: true})
			return
		}
		if err := h.store.UpdateVote(r.Context(), existing.ID, req.Value); err != nil {
			writeError(w, http.StatusInternalServerError, "failed to update vote")
			return
		}
		delta = req.Value - existing.Value
	} else if req.Value != 0 {
		vote := &store.Vote{
			AccountID:  viewer.ID(),
			TargetType: req.TargetType,
			TargetID:   req.TargetID,
			Value:      req.Value,
		}
		if err := h.store.CreateVote(r.Context(), vote); err != nil {
			if errors.Is(err, store.ErrDuplicate) {
				writeError(w, http.StatusConflict, "vote changed concurrently, retry")
				return
			}
			writeError(w, http.StatusInternalServerError, "failed to create vote")
			return
		}
	}

	if delta != 0 {
		if req.TargetType == "story" {
			h.store.UpdateStoryScore(r.Context(), req.TargetID, delta)
		} else {
			h.store.UpdateCommentScore(r.Context(), req.TargetID, delta)
		}
	}

	writeJSON(w, http.StatusOK, OKResponse{OK: true})
}
