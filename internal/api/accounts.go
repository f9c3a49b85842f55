package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/alphabot-ai/threadcache/internal/identity"
	"github.com/alphabot-ai/threadcache/internal/relation"
	"github.com/alphabot-ai/threadcache/internal/store"
)

type CreateAccountRequest struct {
	DisplayName string `json:"display_name"`
}

type CreateAccountResponse struct {
	AccountID   string `json:"account_id"`
	AccessToken string `json:"access_token"`
	ExpiresAt   string `json:"expires_at"`
}

type FriendRequest struct {
	AccountID string `json:"account_id"`
}

type InboxItem struct {
	CommentID string    `json:"comment_id"`
	Kind      string    `json:"kind"`
	Unread    bool      `json:"unread"`
	CreatedAt time.Time `json:"created_at"`
}

type InboxResponse struct {
	Items       []InboxItem `json:"items"`
	UnseenSince *time.Time  `json:"unseen_since,omitempty"`
}

// CreateAccount handles POST /api/accounts
func (h *Handler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	var req CreateAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	req.DisplayName = strings.TrimSpace(req.DisplayName)
	if n := utf8.RuneCountInString(req.DisplayName); n < 3 || n > 32 {
		writeError(w, http.StatusBadRequest, "display_name must be 3-32 characters")
		return
	}

	account := &store.Account{
		DisplayName:     req.DisplayName,
		MinCommentScore: identity.DefaultMinCommentScore,
	}
	if err := h.store.CreateAccount(r.Context(), account); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create account")
		return
	}

	token, err := h.auth.IssueToken(r.Context(), account.ID)
	if err != nil {
		h.logger.Error("failed to issue token", "account", account.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to issue token")
		return
	}

	h.logger.Info("account created", "account", account.ID)
	writeJSON(w, http.StatusCreated, CreateAccountResponse{
		AccountID:   account.ID,
		AccessToken: token.Token,
		ExpiresAt:   token.ExpiresAt.Format(time.RFC3339),
	})
}

// GetAccount handles GET /api/accounts/{id}
func (h *Handler) GetAccount(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "account id required")
		return
	}

	account, err := h.store.GetAccount(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}
	if account == nil {
		writeError(w, http.StatusNotFound, "account not found")
		return
	}

	writeJSON(w, http.StatusOK, account)
}

// AddFriend handles POST /api/friends
func (h *Handler) AddFriend(w http.ResponseWriter, r *http.Request) {
	viewer := identity.FromContext(r.Context())

	var req FriendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.AccountID == "" {
		writeError(w, http.StatusBadRequest, "account_id is required")
		return
	}
	if req.AccountID == viewer.ID() {
		writeError(w, http.StatusBadRequest, "cannot befriend yourself")
		return
	}

	friend, err := h.store.GetAccount(r.Context(), req.AccountID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}
	if friend == nil {
		writeError(w, http.StatusNotFound, "account not found")
		return
	}

	if _, _, err := h.relations.Ensure(r.Context(), relation.KindFriend, viewer.ID(), friend.ID, relation.Friend, nil); err != nil {
		h.writeRelationError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, OKResponse{OK: true})
}

// RemoveFriend handles DELETE /api/friends/{id}
func (h *Handler) RemoveFriend(w http.ResponseWriter, r *http.Request) {
	viewer := identity.FromContext(r.Context())
	if err := h.relations.Remove(r.Context(), relation.KindFriend, viewer.ID(), r.PathValue("id"), relation.Friend); err != nil {
		h.writeRelationError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, OKResponse{OK: true})
}

// ListInbox handles GET /api/inbox
func (h *Handler) ListInbox(w http.ResponseWriter, r *http.Request) {
	viewer := identity.FromContext(r.Context())

	resp := InboxResponse{Items: []InboxItem{}}
	for _, name := range []string{relation.Inbox, relation.SelfReply} {
		rels, err := h.relations.BySubject(r.Context(), relation.KindInbox, viewer.ID(), name)
		if err != nil {
			h.writeRelationError(w, err)
			return
		}
		for _, rel := range rels {
			resp.Items = append(resp.Items, InboxItem{
				CommentID: rel.ObjectID,
				Kind:      rel.Name,
				Unread:    rel.Flags[relation.FlagNew],
				CreatedAt: rel.CreatedAt,
			})
		}
	}

	account, err := h.store.GetAccount(r.Context(), viewer.ID())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}
	if account != nil {
		resp.UnseenSince = account.MsgTime
	}
	writeJSON(w, http.StatusOK, resp)
}

// ReadInbox handles POST /api/inbox/{id}/read
func (h *Handler) ReadInbox(w http.ResponseWriter, r *http.Request) {
	h.markInbox(w, r, false)
}

// UnreadInbox handles POST /api/inbox/{id}/unread
func (h *Handler) UnreadInbox(w http.ResponseWriter, r *http.Request) {
	h.markInbox(w, r, true)
}

func (h *Handler) markInbox(w http.ResponseWriter, r *http.Request, unread bool) {
	viewer := identity.FromContext(r.Context())
	if err := h.relations.MarkInbox(r.Context(), viewer.ID(), r.PathValue("id"), unread); err != nil {
		h.writeRelationError(w, err)
		return
	}
	if !unread {
		if _, err := h.relations.ClearUnseenIfRead(r.Context(), viewer.ID()); err != nil {
			h.writeRelationError(w, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, OKResponse{OK: true})
}

// ReadAllInbox handles POST /api/inbox/read-all
func (h *Handler) ReadAllInbox(w http.ResponseWriter, r *http.Request) {
	viewer := identity.FromContext(r.Context())
	for _, name := range []string{relation.Inbox, relation.SelfReply} {
		rels, err := h.relations.BySubject(r.Context(), relation.KindInbox, viewer.ID(), name)
		if err != nil {
			h.writeRelationError(w, err)
			return
		}
		for _, rel := range rels {
			if !rel.Flags[relation.FlagNew] {
				continue
			}
			if err := h.relations.SetFlag(r.Context(), rel, relation.FlagNew, false); err != nil {
				h.writeRelationError(w, err)
				return
			}
		}
	}
	if err := h.relations.ClearUnseen(r.Context(), viewer.ID()); err != nil {
		h.writeRelationError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, OKResponse{OK: true})
}
