// Package httpapi exposes the authentication service over JSON HTTP.
package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"marketplace-auth/internal/auth"
	"marketplace-auth/internal/authsvc"
)

const defaultMaxBodyBytes = 1 << 16

// Handler wires HTTP auth endpoints to the authentication facade.
type Handler struct {
	log          *slog.Logger
	svc          *authsvc.Service
	metrics      *Metrics
	ready        func(ctx context.Context) error
	trustProxy   bool
	maxBodyBytes int64
}

// NewHandler constructs the HTTP handler. ready is consulted by /readyz and
// may be nil; metrics may be nil to disable counters.
func NewHandler(log *slog.Logger, svc *authsvc.Service, metrics *Metrics, ready func(ctx context.Context) error, trustProxy bool) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{
		log:          log,
		svc:          svc,
		metrics:      metrics,
		ready:        ready,
		trustProxy:   trustProxy,
		maxBodyBytes: defaultMaxBodyBytes,
	}
}

// Register wires auth routes onto the provided mux.
func (h *Handler) Register(mux *http.ServeMux) {
	if h == nil || mux == nil {
		return
	}
	mux.HandleFunc("/auth/phone/send-code", h.handleSendCode)
	mux.HandleFunc("/auth/phone/verify", h.handleVerifyPhone)
	mux.HandleFunc("/auth/google", h.handleGoogle)
	mux.HandleFunc("/auth/apple", h.handleApple)
	mux.HandleFunc("/auth/refresh", h.handleRefresh)
	mux.HandleFunc("/auth/logout", h.requireAuth(h.handleLogout))
	mux.HandleFunc("/auth/session", h.requireAuth(h.handleSession))
	mux.HandleFunc("/healthz", h.handleHealthz)
	mux.HandleFunc("/readyz", h.handleReadyz)
	mux.Handle("/metrics", promhttp.Handler())
}

type sendCodeRequest struct {
	Phone string `json:"phone"`
}

func (h *Handler) handleSendCode(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req sendCodeRequest
	if err := decodeJSON(w, r, h.maxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}
	if strings.TrimSpace(req.Phone) == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "phone is required")
		return
	}
	if err := h.svc.SendVerificationCode(r.Context(), req.Phone); err != nil {
		h.writeAuthError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type verifyPhoneRequest struct {
	Phone      string `json:"phone"`
	Code       string `json:"code"`
	DeviceType string `json:"device_type"`
}

func (h *Handler) handleVerifyPhone(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req verifyPhoneRequest
	if err := decodeJSON(w, r, h.maxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}
	if strings.TrimSpace(req.Phone) == "" || strings.TrimSpace(req.Code) == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "phone and code are required")
		return
	}
	res, err := h.svc.VerifyPhoneCode(r.Context(), req.Phone, req.Code, req.DeviceType, clientIP(r, h.trustProxy))
	h.metrics.login("phone", err)
	if err != nil {
		h.writeAuthError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type googleRequest struct {
	IDToken    string `json:"id_token"`
	DeviceType string `json:"device_type"`
}

func (h *Handler) handleGoogle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req googleRequest
	if err := decodeJSON(w, r, h.maxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}
	if strings.TrimSpace(req.IDToken) == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "id_token is required")
		return
	}
	res, err := h.svc.AuthenticateWithGoogle(r.Context(), req.IDToken, req.DeviceType, clientIP(r, h.trustProxy))
	h.metrics.login("google", err)
	if err != nil {
		h.writeAuthError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type appleRequest struct {
	IdentityToken string `json:"identity_token"`
	DeviceType    string `json:"device_type"`
}

func (h *Handler) handleApple(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req appleRequest
	if err := decodeJSON(w, r, h.maxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}
	if strings.TrimSpace(req.IdentityToken) == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "identity_token is required")
		return
	}
	res, err := h.svc.AuthenticateWithApple(r.Context(), req.IdentityToken, req.DeviceType, clientIP(r, h.trustProxy))
	h.metrics.login("apple", err)
	if err != nil {
		h.writeAuthError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req refreshRequest
	if err := decodeJSON(w, r, h.maxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}
	if strings.TrimSpace(req.RefreshToken) == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "refresh_token is required")
		return
	}
	pair, err := h.svc.Refresh(r.Context(), req.RefreshToken, clientIP(r, h.trustProxy))
	h.metrics.refresh(err)
	if errors.Is(err, auth.ErrSessionCompromised) {
		h.metrics.reuse()
	}
	if err != nil {
		h.writeAuthError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pair)
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request, ident *authsvc.Identity) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if err := h.svc.Logout(r.Context(), ident.AccountID, ident.SessionID); err != nil {
		h.writeAuthError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type sessionResponse struct {
	SessionID string                  `json:"session_id"`
	Account   *authsvc.AccountSummary `json:"account"`
}

func (h *Handler) handleSession(w http.ResponseWriter, r *http.Request, ident *authsvc.Identity) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	summary, err := h.svc.Account(r.Context(), ident.AccountID)
	if err != nil {
		h.writeAuthError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{SessionID: ident.SessionID, Account: summary})
}

func (h *Handler) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if h.ready != nil {
		if err := h.ready(r.Context()); err != nil {
			writeError(w, http.StatusServiceUnavailable, "not_ready", err.Error())
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// writeAuthError maps facade errors onto HTTP statuses. Unknown errors are
// reported as a generic 500 so store failures never leak as auth decisions.
func (h *Handler) writeAuthError(w http.ResponseWriter, err error) {
	if retryAfter, ok := auth.IsRateLimited(err); ok {
		writeRateLimited(w, retryAfter)
		return
	}
	switch {
	case errors.Is(err, auth.ErrInvalidCredential):
		writeError(w, http.StatusUnauthorized, "invalid_credential", "invalid credential")
	case errors.Is(err, auth.ErrInvalidRefreshToken):
		writeError(w, http.StatusUnauthorized, "invalid_refresh_token", "re-authentication required")
	case errors.Is(err, auth.ErrSessionCompromised):
		writeError(w, http.StatusUnauthorized, "session_compromised", "all sessions revoked, re-authentication required")
	case errors.Is(err, auth.ErrAccountConflict):
		writeError(w, http.StatusConflict, "account_conflict", "identifier already linked to another account")
	case errors.Is(err, auth.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, "unauthorized", "invalid or expired access token")
	default:
		h.log.Error("auth request failed", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
	}
}

func clientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if ip := parseForwardedIP(r.Header.Get("X-Forwarded-For")); ip != "" {
			return ip
		}
		if ip := net.ParseIP(strings.TrimSpace(r.Header.Get("X-Real-IP"))); ip != nil {
			return ip.String()
		}
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil {
		if ip := net.ParseIP(host); ip != nil {
			return ip.String()
		}
	}
	return ""
}

func parseForwardedIP(raw string) string {
	if raw == "" {
		return ""
	}
	for _, p := range strings.Split(raw, ",") {
		if ip := net.ParseIP(strings.TrimSpace(p)); ip != nil {
			return ip.String()
		}
	}
	return ""
}
