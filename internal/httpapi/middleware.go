package httpapi

import (
	"net/http"
	"strings"

	"marketplace-auth/internal/authsvc"
)

// authedHandler is a handler running behind the access-token gate.
type authedHandler func(w http.ResponseWriter, r *http.Request, ident *authsvc.Identity)

// requireAuth verifies the Bearer access token and the liveness of its
// backing session before invoking next.
func (h *Handler) requireAuth(next authedHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
			return
		}
		ident, err := h.svc.Authenticate(r.Context(), token)
		if err != nil {
			h.writeAuthError(w, err)
			return
		}
		next(w, r, ident)
	}
}

func bearerToken(r *http.Request) (string, bool) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	return strings.TrimSpace(header[len(prefix):]), true
}
