package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/kozaktomas/kiosk/internal/database"
	"github.com/kozaktomas/kiosk/internal/web/middleware"
)

// AuthHandler handles admin authentication endpoints
type AuthHandler struct {
	svc            *Services
	sessionManager *middleware.SessionManager
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(svc *Services, sm *middleware.SessionManager) *AuthHandler {
	return &AuthHandler{
		svc:            svc,
		sessionManager: sm,
	}
}

// loginRequest identifies an admin by one of their credentials
type loginRequest struct {
	Kind  string `json:"kind"`
	Value string `json:"value"`
}

// LoginResponse represents a login response
type LoginResponse struct {
	Success     bool   `json:"success"`
	SessionID   string `json:"session_id,omitempty"`
	IdentityID  int64  `json:"identity_id,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
	ExpiresAt   string `json:"expires_at,omitempty"`
	Error       string `json:"error,omitempty"`
}

// Login opens an admin session for an identity holding the admin flag
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}

	req.Value = strings.TrimSpace(req.Value)
	if req.Kind == "" || req.Value == "" {
		respondError(w, http.StatusBadRequest, "kind and value are required")
		return
	}
	kind, ok := database.ParseCredentialKind(req.Kind)
	if !ok {
		respondError(w, http.StatusBadRequest, "kind must be pin or idNumber")
		return
	}

	match, err := h.svc.Matcher.MatchCredential(r.Context(), req.Value, kind)
	if err != nil {
		h.svc.logger().Error("admin login lookup failed", "error", err)
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if match == nil || !match.Identity.IsAdmin {
		respondJSON(w, http.StatusUnauthorized, LoginResponse{
			Success: false,
			Error:   "invalid credentials",
		})
		return
	}

	session, err := h.sessionManager.CreateSession(match.Identity.ID, match.Identity.DisplayName)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to create session")
		return
	}
	h.sessionManager.SetSessionCookie(w, r, session)
	h.svc.logger().Info("admin logged in", "identity_id", match.Identity.ID)

	respondJSON(w, http.StatusOK, LoginResponse{
		Success:     true,
		SessionID:   session.ID,
		IdentityID:  session.IdentityID,
		DisplayName: session.DisplayName,
		ExpiresAt:   session.ExpiresAt.Format(time.RFC3339),
	})
}

// Logout ends the admin session
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if session := h.sessionManager.GetSessionFromRequest(r); session != nil {
		h.sessionManager.DeleteSession(session.ID)
	}
	h.sessionManager.ClearSessionCookie(w)
	respondJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// StatusResponse represents the auth status response
type StatusResponse struct {
	Authenticated bool   `json:"authenticated"`
	IdentityID    int64  `json:"identity_id,omitempty"`
	DisplayName   string `json:"display_name,omitempty"`
	ExpiresAt     string `json:"expires_at,omitempty"`
}

// Status reports whether the request carries a valid admin session
func (h *AuthHandler) Status(w http.ResponseWriter, r *http.Request) {
	session := h.sessionManager.GetSessionFromRequest(r)
	if session == nil {
		respondJSON(w, http.StatusOK, StatusResponse{Authenticated: false})
		return
	}
	respondJSON(w, http.StatusOK, StatusResponse{
		Authenticated: true,
		IdentityID:    session.IdentityID,
		DisplayName:   session.DisplayName,
		ExpiresAt:     session.ExpiresAt.Format(time.RFC3339),
	})
}
