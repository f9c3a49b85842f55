package api

import (
	"encoding/json"
	"net/http"
)

type HideRequest struct {
	TargetType string `json:"target_type"` // "story" or "comment"
	TargetID   string `json:"target_id"`
}

// Hide handles POST /api/admin/hide
func (h *Handler) Hide(w http.ResponseWriter, r *http.Request) {
	if !h.isAdmin(r) {
		writeError(w, http.StatusUnauthorized, "admin authentication required")
		return
	}

	var req HideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	if req.TargetType != "story" && req.TargetType != "comment" {
		writeError(w, http.StatusBadRequest, "target_type must be 'story' or 'comment'")
		return
	}

	if req.TargetID == "" {
		writeError(w, http.StatusBadRequest, "target_id is required")
		return
	}

	var err error
	if req.TargetType == "story" {
		story, getErr := h.store.GetStory(r.Context(), req.TargetID)
		if getErr != nil {
			writeError(w, http.StatusInternalServerError, "database error")
			return
		}
		if story == nil {
			writeError(w, http.StatusNotFound, "story not found")
			return
		}
		err = h.store.HideStory(r.Context(), req.TargetID)
	} else {
		comment, getErr := h.store.GetComment(r.Context(), req.TargetID)
		if getErr != nil {
			writeError(w, http.StatusInternalServerError, "database error")
			return
		}
		if comment == nil {
			writeError(w, http.StatusNotFound, "comment not found")
			return
		}
		err = h.store.HideComment(r.Context(), req.TargetID)
	}

	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to hide content")
		return
	}

	h.logger.Info("content hidden", "type", req.TargetType, "id", req.TargetID)
	writeJSON(w, http.StatusOK, OKResponse{OK: true})
}

type SpamRequest struct {
	StoryID string `json:"story_id"`
	Spam    bool   `json:"spam"`
}

// MarkSpam handles POST /api/admin/spam
func (h *Handler) MarkSpam(w http.ResponseWriter, r *http.Request) {
	if !h.isAdmin(r) {
		writeError(w, http.StatusUnauthorized, "admin authentication required")
		return
	}

	var req SpamRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
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

	if err := h.store.MarkStorySpam(r.Context(), story.ID, req.Spam); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to update story")
		return
	}
	h.logger.Info("story spam flag changed", "id", story.ID, "spam", req.Spam)
	writeJSON(w, http.StatusOK, OKResponse{OK: true})
}
