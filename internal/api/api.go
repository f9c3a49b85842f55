package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/alphabot-ai/threadcache/internal/attachments"
	"github.com/alphabot-ai/threadcache/internal/auth"
	"github.com/alphabot-ai/threadcache/internal/config"
	"github.com/alphabot-ai/threadcache/internal/identity"
	"github.com/alphabot-ai/threadcache/internal/relation"
	"github.com/alphabot-ai/threadcache/internal/store"
)

// Handler holds dependencies for API handlers
type Handler struct {
	store     store.Store
	auth      *auth.Service
	relations *relation.Store
	images    *attachments.Service
	cfg       *config.Config
	logger    *slog.Logger
}

// NewHandler creates a new API handler
func NewHandler(s store.Store, authSvc *auth.Service, relations *relation.Store, images *attachments.Service, cfg *config.Config, logger *slog.Logger) *Handler {
	return &Handler{
		store:     s,
		auth:      authSvc,
		relations: relations,
		images:    images,
		cfg:       cfg,
		logger:    logger,
	}
}

// Register adds every API route to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	// Public reads
	mux.HandleFunc("GET /api/stories", h.ListStories)
	mux.HandleFunc("GET /api/stories/{id}", h.OptionalAuth(h.GetStory))
	mux.HandleFunc("GET /api/stories/{id}/comments", h.OptionalAuth(h.ListComments))
	mux.HandleFunc("GET /api/accounts/{id}", h.GetAccount)
	mux.HandleFunc("GET /api/communities/{id}", h.GetCommunity)
	mux.HandleFunc("GET /api/communities/{id}/images", h.ListImages)
	mux.HandleFunc("GET /api/communities/{id}/images/{name}", h.GetImage)

	// Account creation hands out the first token
	mux.HandleFunc("POST /api/accounts", h.CreateAccount)

	// Authenticated
	mux.HandleFunc("POST /api/auth/token", h.RequireAuth(h.RefreshToken))
	mux.HandleFunc("POST /api/communities", h.RequireAuth(h.CreateCommunity))
	mux.HandleFunc("POST /api/communities/{id}/subscribe", h.RequireAuth(h.Subscribe))
	mux.HandleFunc("POST /api/communities/{id}/unsubscribe", h.RequireAuth(h.Unsubscribe))
	mux.HandleFunc("POST /api/communities/{id}/moderators", h.RequireAuth(h.AddModerator))
	mux.HandleFunc("DELETE /api/communities/{id}/moderators/{accountId}", h.RequireAuth(h.RemoveModerator))
	mux.HandleFunc("POST /api/communities/{id}/contributors", h.RequireAuth(h.AddContributor))
	mux.HandleFunc("POST /api/communities/{id}/banned", h.RequireAuth(h.Ban))
	mux.HandleFunc("POST /api/communities/{id}/images", h.RequireAuth(h.UploadImage))
	mux.HandleFunc("DELETE /api/communities/{id}/images/{name}", h.RequireAuth(h.DeleteImage))
	mux.HandleFunc("POST /api/stories", h.RequireAuth(h.CreateStory))
	mux.HandleFunc("POST /api/stories/{id}/save", h.RequireAuth(h.SaveStory))
	mux.HandleFunc("POST /api/stories/{id}/unsave", h.RequireAuth(h.UnsaveStory))
	mux.HandleFunc("POST /api/stories/{id}/hide", h.RequireAuth(h.HideStory))
	mux.HandleFunc("POST /api/comments", h.RequireAuth(h.CreateComment))
	mux.HandleFunc("PATCH /api/comments/{id}", h.RequireAuth(h.EditComment))
	mux.HandleFunc("DELETE /api/comments/{id}", h.RequireAuth(h.DeleteComment))
	mux.HandleFunc("POST /api/votes", h.RequireAuth(h.CreateVote))
	mux.HandleFunc("POST /api/friends", h.RequireAuth(h.AddFriend))
	mux.HandleFunc("DELETE /api/friends/{id}", h.RequireAuth(h.RemoveFriend))
	mux.HandleFunc("GET /api/inbox", h.RequireAuth(h.ListInbox))
	mux.HandleFunc("POST /api/inbox/{id}/read", h.RequireAuth(h.ReadInbox))
	mux.HandleFunc("POST /api/inbox/{id}/unread", h.RequireAuth(h.UnreadInbox))
	mux.HandleFunc("POST /api/inbox/read-all", h.RequireAuth(h.ReadAllInbox))

	// Admin routes (admin account or admin secret)
	mux.HandleFunc("POST /api/admin/hide", h.OptionalAuth(h.Hide))
	mux.HandleFunc("POST /api/admin/spam", h.OptionalAuth(h.MarkSpam))
}

// Response helpers

type ErrorResponse struct {
	Error string `json:"error"`
}

type OKResponse struct {
	OK bool `json:"ok"`
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}

// writeRelationError maps a failed relation write onto a response.
func (h *Handler) writeRelationError(w http.ResponseWriter, err error) {
	if errors.Is(err, relation.ErrBackendTimeout) {
		writeError(w, http.StatusServiceUnavailable, "relation store unavailable, try again")
		return
	}
	h.logger.Error("relation write failed", "error", err)
	writeError(w, http.StatusInternalServerError, "database error")
}

// Request helpers

func (h *Handler) getToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimPrefix(authHeader, "Bearer ")
	}
	return ""
}

func (h *Handler) isAdmin(r *http.Request) bool {
	if identity.FromContext(r.Context()).Admin {
		return true
	}
	secret := r.Header.Get("X-Admin-Secret")
	return h.cfg.AdminSecret != "" && secret == h.cfg.AdminSecret
}

// requestLang picks the first language tag of Accept-Language.
func requestLang(r *http.Request) string {
	accept := r.Header.Get("Accept-Language")
	if accept == "" {
		return "en"
	}
	lang, _, _ := strings.Cut(accept, ",")
	lang, _, _ = strings.Cut(lang, ";")
	lang, _, _ = strings.Cut(strings.TrimSpace(lang), "-")
	if lang == "" || lang == "*" {
		return "en"
	}
	return strings.ToLower(lang)
}

// community loads the community and the viewer's membership in it. It
// writes the error response itself and returns ok=false when the request
// cannot continue.
func (h *Handler) community(w http.ResponseWriter, r *http.Request, id string) (*store.Community, relation.Membership, bool) {
	community, err := h.store.GetCommunity(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "database error")
		return nil, relation.Membership{}, false
	}
	if community == nil {
		writeError(w, http.StatusNotFound, "community not found")
		return nil, relation.Membership{}, false
	}
	memberships, err := h.relations.LoadMembership(r.Context(), identity.FromContext(r.Context()), []string{id})
	if err != nil {
		h.writeRelationError(w, err)
		return nil, relation.Membership{}, false
	}
	return community, memberships[id], true
}
