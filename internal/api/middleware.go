package api

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/alphabot-ai/threadcache/internal/auth"
	"github.com/alphabot-ai/threadcache/internal/identity"
)

// RequireAuth returns middleware that requires a valid auth token and puts
// the resolved viewer in the request context.
func (h *Handler) RequireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tokenStr := h.getToken(r)
		if tokenStr == "" {
			writeError(w, http.StatusUnauthorized, "authentication required")
			return
		}

		viewer, err := h.auth.Viewer(r.Context(), tokenStr, requestLang(r))
		if errors.Is(err, auth.ErrInvalidToken) {
			writeError(w, http.StatusUnauthorized, "authentication required")
			return
		}
		if err != nil {
			h.logger.Error("failed to resolve viewer", "error", err)
			writeError(w, http.StatusInternalServerError, "authentication failed")
			return
		}

		next.ServeHTTP(w, r.WithContext(identity.NewContext(r.Context(), viewer)))
	}
}

// OptionalAuth resolves the viewer if a valid token is present. Requests
// without one proceed as the anonymous viewer.
func (h *Handler) OptionalAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		viewer := identity.Anonymous(requestLang(r))

		if tokenStr := h.getToken(r); tokenStr != "" {
			v, err := h.auth.Viewer(r.Context(), tokenStr, viewer.Lang)
			switch {
			case err == nil:
				viewer = v
			case !errors.Is(err, auth.ErrInvalidToken):
				h.logger.Warn("failed to resolve viewer, continuing anonymously", "error", err)
			}
		}

		next.ServeHTTP(w, r.WithContext(identity.NewContext(r.Context(), viewer)))
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// LogRequests returns middleware that logs all incoming requests
func LogRequests(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start),
		)
	})
}
