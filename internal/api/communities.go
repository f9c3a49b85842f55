package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"regexp"

	"github.com/alphabot-ai/threadcache/internal/attachments"
	"github.com/alphabot-ai/threadcache/internal/identity"
	"github.com/alphabot-ai/threadcache/internal/relation"
	"github.com/alphabot-ai/threadcache/internal/slots"
	"github.com/alphabot-ai/threadcache/internal/store"
)

const maxImageBytes = 500 << 10

var communityName = regexp.MustCompile(`^[A-Za-z0-9_]{3,21}$`)

type CreateCommunityRequest struct {
	Name  string `json:"name"`
	Title string `json:"title"`
	Type  string `json:"type"`
}

type CreateCommunityResponse struct {
	ID string `json:"id"`
}

type MemberRequest struct {
	AccountID string `json:"account_id"`
}

type ListImagesResponse struct {
	Images []attachments.Image `json:"images"`
}

// CreateCommunity handles POST /api/communities. The creator becomes the
// first moderator.
func (h *Handler) CreateCommunity(w http.ResponseWriter, r *http.Request) {
	viewer := identity.FromContext(r.Context())

	var req CreateCommunityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if !communityName.MatchString(req.Name) {
		writeError(w, http.StatusBadRequest, "name must be 3-21 letters, digits or underscores")
		return
	}
	switch req.Type {
	case "":
		req.Type = store.CommunityPublic
	case store.CommunityPublic, store.CommunityRestricted, store.CommunityPrivate:
	default:
		writeError(w, http.StatusBadRequest, "type must be 'public', 'restricted' or 'private'")
		return
	}

	community := &store.Community{
		Name:     req.Name,
		Title:    req.Title,
		Type:     req.Type,
		AuthorID: viewer.ID(),
	}
	if err := h.store.CreateCommunity(r.Context(), community); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			writeError(w, http.StatusConflict, "community name is taken")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to create community")
		return
	}

	if _, _, err := h.relations.Ensure(r.Context(), relation.KindMember, viewer.ID(), community.ID, relation.Moderator, nil); err != nil {
		h.writeRelationError(w, err)
		return
	}

	h.logger.Info("community created", "community", community.ID, "name", community.Name, "author", viewer.ID())
	writeJSON(w, http.StatusCreated, CreateCommunityResponse{ID: community.ID})
}

// GetCommunity handles GET /api/communities/{id}
func (h *Handler) GetCommunity(w http.ResponseWriter, r *http.Request) {
	community, err := h.store.GetCommunity(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}
	if community == nil {
		writeError(w, http.StatusNotFound, "community not found")
		return
	}
	writeJSON(w, http.StatusOK, community)
}

// Subscribe handles POST /api/communities/{id}/subscribe
func (h *Handler) Subscribe(w http.ResponseWriter, r *http.Request) {
	viewer := identity.FromContext(r.Context())
	community, m, ok := h.community(w, r, r.PathValue("id"))
	if !ok {
		return
	}
	if !relation.CanView(viewer, community, m) {
		writeError(w, http.StatusForbidden, "community is private")
		return
	}
	if _, _, err := h.relations.Ensure(r.Context(), relation.KindMember, viewer.ID(), community.ID, relation.Subscriber, nil); err != nil {
		h.writeRelationError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, OKResponse{OK: true})
}

// Unsubscribe handles POST /api/communities/{id}/unsubscribe
func (h *Handler) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	viewer := identity.FromContext(r.Context())
	if err := h.relations.Remove(r.Context(), relation.KindMember, viewer.ID(), r.PathValue("id"), relation.Subscriber); err != nil {
		h.writeRelationError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, OKResponse{OK: true})
}

// AddModerator handles POST /api/communities/{id}/moderators
func (h *Handler) AddModerator(w http.ResponseWriter, r *http.Request) {
	h.grant(w, r, relation.Moderator)
}

// AddContributor handles POST /api/communities/{id}/contributors
func (h *Handler) AddContributor(w http.ResponseWriter, r *http.Request) {
	h.grant(w, r, relation.Contributor)
}

// Ban handles POST /api/communities/{id}/banned
func (h *Handler) Ban(w http.ResponseWriter, r *http.Request) {
	h.grant(w, r, relation.Banned)
}

// grant gives the requested account a membership relation. Only the
// community's moderators and admins may.
func (h *Handler) grant(w http.ResponseWriter, r *http.Request, name string) {
	viewer := identity.FromContext(r.Context())
	community, m, ok := h.community(w, r, r.PathValue("id"))
	if !ok {
		return
	}
	if !relation.CanBan(viewer, m) {
		writeError(w, http.StatusForbidden, "moderator access required")
		return
	}

	var req MemberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	account, err := h.store.GetAccount(r.Context(), req.AccountID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}
	if account == nil {
		writeError(w, http.StatusNotFound, "account not found")
		return
	}

	if _, _, err := h.relations.Ensure(r.Context(), relation.KindMember, account.ID, community.ID, name, nil); err != nil {
		h.writeRelationError(w, err)
		return
	}
	h.logger.Info("membership granted", "community", community.ID, "account", account.ID, "name", name, "by", viewer.ID())
	writeJSON(w, http.StatusOK, OKResponse{OK: true})
}

// RemoveModerator handles DELETE /api/communities/{id}/moderators/{accountId}.
// Moderators may only remove those appointed after them.
func (h *Handler) RemoveModerator(w http.ResponseWriter, r *http.Request) {
	viewer := identity.FromContext(r.Context())
	communityID := r.PathValue("id")
	victimID := r.PathValue("accountId")

	allowed, err := h.relations.CanDemod(r.Context(), viewer, victimID, communityID)
	if err != nil {
		h.writeRelationError(w, err)
		return
	}
	if !allowed && victimID != viewer.ID() {
		writeError(w, http.StatusForbidden, "cannot remove a more senior moderator")
		return
	}

	if err := h.relations.Remove(r.Context(), relation.KindMember, victimID, communityID, relation.Moderator); err != nil {
		h.writeRelationError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, OKResponse{OK: true})
}

// UploadImage handles POST /api/communities/{id}/images. The multipart form
// carries the image name in "name" and the bytes in "file".
func (h *Handler) UploadImage(w http.ResponseWriter, r *http.Request) {
	viewer := identity.FromContext(r.Context())
	community, m, ok := h.community(w, r, r.PathValue("id"))
	if !ok {
		return
	}
	if !relation.CanBan(viewer, m) {
		writeError(w, http.StatusForbidden, "moderator access required")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxImageBytes+(64<<10))
	if err := r.ParseMultipartForm(maxImageBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	file, _, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxImageBytes+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read file")
		return
	}
	if len(data) > maxImageBytes {
		writeError(w, http.StatusRequestEntityTooLarge, "image too large")
		return
	}

	img, err := h.images.Upload(r.Context(), community.ID, r.FormValue("name"), data)
	switch {
	case err == nil:
		writeJSON(w, http.StatusCreated, img)
	case errors.Is(err, slots.ErrSlotLimitExceeded):
		writeError(w, http.StatusConflict, "too many images")
	case errors.Is(err, attachments.ErrInvalidName), errors.Is(err, attachments.ErrEmptyImage):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		h.logger.Error("image upload failed", "community", community.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to store image")
	}
}

// DeleteImage handles DELETE /api/communities/{id}/images/{name}
func (h *Handler) DeleteImage(w http.ResponseWriter, r *http.Request) {
	viewer := identity.FromContext(r.Context())
	community, m, ok := h.community(w, r, r.PathValue("id"))
	if !ok {
		return
	}
	if !relation.CanBan(viewer, m) {
		writeError(w, http.StatusForbidden, "moderator access required")
		return
	}

	deleted, err := h.images.Delete(r.Context(), community.ID, r.PathValue("name"))
	if err != nil {
		h.logger.Error("image delete failed", "community", community.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to delete image")
		return
	}
	if !deleted {
		writeError(w, http.StatusNotFound, "image not found")
		return
	}
	writeJSON(w, http.StatusOK, OKResponse{OK: true})
}

// ListImages handles GET /api/communities/{id}/images
func (h *Handler) ListImages(w http.ResponseWriter, r *http.Request) {
	images, err := h.images.List(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}
	writeJSON(w, http.StatusOK, ListImagesResponse{Images: images})
}

// GetImage handles GET /api/communities/{id}/images/{name}
func (h *Handler) GetImage(w http.ResponseWriter, r *http.Request) {
	data, err := h.images.Open(r.Context(), r.PathValue("id"), r.PathValue("name"))
	if errors.Is(err, attachments.ErrImageNotFound) {
		writeError(w, http.StatusNotFound, "image not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load image")
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Write(data)
}
