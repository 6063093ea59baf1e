package handlers

import (
	"net/http"
	"strings"

	"github.com/kozaktomas/kiosk/internal/database"
	"github.com/kozaktomas/kiosk/internal/facematch"
)

// MatchHandler lets admins test identification without recording attendance
type MatchHandler struct {
	svc *Services
}

// NewMatchHandler creates a new match handler
func NewMatchHandler(svc *Services) *MatchHandler {
	return &MatchHandler{svc: svc}
}

type matchRequest struct {
	Embedding []float32 `json:"embedding"`
	Threshold float64   `json:"threshold"`
	Kind      string    `json:"kind"`
	Value     string    `json:"value"`
}

// MatchResponse is the outcome of a test identification
type MatchResponse struct {
	Matched   bool              `json:"matched"`
	Identity  *IdentityResponse `json:"identity,omitempty"`
	Method    database.Method   `json:"method,omitempty"`
	Distance  float64           `json:"distance"`
	Threshold float64           `json:"threshold,omitempty"`
}

// Match resolves an embedding, or a credential when kind is set
func (h *MatchHandler) Match(w http.ResponseWriter, r *http.Request) {
	var req matchRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}

	var match *facematch.Match
	var err error
	resp := MatchResponse{}
	if req.Kind != "" {
		kind, ok := database.ParseCredentialKind(req.Kind)
		if !ok {
			respondError(w, http.StatusBadRequest, "kind must be pin or idNumber")
			return
		}
		match, err = h.svc.Matcher.MatchCredential(r.Context(), strings.TrimSpace(req.Value), kind)
	} else {
		if len(req.Embedding) == 0 {
			respondError(w, http.StatusBadRequest, "embedding or kind is required")
			return
		}
		resp.Threshold = req.Threshold
		if resp.Threshold <= 0 {
			resp.Threshold = h.svc.Matcher.Threshold()
		}
		match, err = h.svc.Matcher.MatchFace(r.Context(), req.Embedding, resp.Threshold)
	}
	if err != nil {
		h.svc.logger().Error("test match failed", "error", err)
		respondDomainError(w, err)
		return
	}

	if match != nil {
		ir := toIdentityResponse(&match.Identity)
		resp.Matched = true
		resp.Identity = &ir
		resp.Method = match.Method
		resp.Distance = match.Distance
	}
	respondJSON(w, http.StatusOK, resp)
}
