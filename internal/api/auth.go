package api

import (
	"net/http"
	"time"

	"github.com/alphabot-ai/threadcache/internal/identity"
)

type TokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresAt   string `json:"expires_at"`
	AccountID   string `json:"account_id"`
}

// RefreshToken handles POST /api/auth/token. A caller holding a live token
// gets a fresh one with a full lifetime.
func (h *Handler) RefreshToken(w http.ResponseWriter, r *http.Request) {
	viewer := identity.FromContext(r.Context())

	token, err := h.auth.IssueToken(r.Context(), viewer.ID())
	if err != nil {
		h.logger.Error("failed to issue token", "account", viewer.ID(), "error", err)
		writeError(w, http.StatusInternalServerError, "failed to issue token")
		return
	}

	writeJSON(w, http.StatusOK, TokenResponse{
		AccessToken: token.Token,
		ExpiresAt:   token.ExpiresAt.Format(time.RFC3339),
		AccountID:   token.AccountID,
	})
}
