package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/kozaktomas/kiosk/internal/database"
	"github.com/kozaktomas/kiosk/internal/identity"
	"github.com/kozaktomas/kiosk/internal/report"
	"github.com/kozaktomas/kiosk/internal/web/middleware"
)

// IdentitiesHandler handles identity administration
type IdentitiesHandler struct {
	svc            *Services
	sessionManager *middleware.SessionManager
}

// NewIdentitiesHandler creates a new identities handler
func NewIdentitiesHandler(svc *Services, sm *middleware.SessionManager) *IdentitiesHandler {
	return &IdentitiesHandler{svc: svc, sessionManager: sm}
}

// IdentityResponse is the admin view of one identity
type IdentityResponse struct {
	ID          int64  `json:"id"`
	DisplayName string `json:"display_name"`
	IDNumber    string `json:"id_number,omitempty"`
	PIN         string `json:"pin,omitempty"`
	IsAdmin     bool   `json:"is_admin"`
	Embeddings  int    `json:"embeddings"`
	CreatedAt   string `json:"created_at"`
}

func toIdentityResponse(i *database.Identity) IdentityResponse {
	return IdentityResponse{
		ID:          i.ID,
		DisplayName: i.DisplayName,
		IDNumber:    i.IDNumber,
		PIN:         i.PIN,
		IsAdmin:     i.IsAdmin,
		Embeddings:  len(i.Embeddings),
		CreatedAt:   i.CreatedAt.Format(time.RFC3339),
	}
}

// tableResponse is the JSON form of a report table
type tableResponse struct {
	Columns []string     `json:"columns"`
	Rows    []report.Row `json:"rows"`
}

// respondTable writes a report table as JSON, or as aligned text with ?format=text.
func respondTable(w http.ResponseWriter, r *http.Request, logger *slog.Logger, table *report.Table) {
	if r.URL.Query().Get("format") == "text" {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		if err := table.WriteText(w); err != nil {
			logger.Error("failed to write table", "path", r.URL.Path, "error", err)
		}
		return
	}
	rows := table.Rows
	if rows == nil {
		rows = []report.Row{}
	}
	respondJSON(w, http.StatusOK, tableResponse{Columns: table.Columns, Rows: rows})
}

func (h *IdentitiesHandler) refreshIdentityGauge(ctx context.Context) {
	if n, err := h.svc.Store.CountIdentities(ctx); err == nil {
		h.svc.Metrics.SetIdentities(n)
	}
}

// List returns all identities, or those whose name matches ?q=
func (h *IdentitiesHandler) List(w http.ResponseWriter, r *http.Request) {
	var identities []database.Identity
	var err error
	if q := strings.TrimSpace(r.URL.Query().Get("q")); q != "" {
		identities, err = h.svc.Identities.FindByName(r.Context(), q)
	} else {
		identities, err = h.svc.Identities.AllIdentities(r.Context())
	}
	if err != nil {
		h.svc.logger().Error("failed to list identities", "error", err)
		respondDomainError(w, err)
		return
	}

	withVectors, _ := strconv.ParseBool(r.URL.Query().Get("vectors"))
	respondTable(w, r, h.svc.logger(), report.NewTable(report.IdentityRows(identities, withVectors), report.IdentityColumns...))
}

type createIdentityRequest struct {
	Name             string    `json:"name"`
	IDNumber         string    `json:"id_number"`
	PIN              string    `json:"pin"`
	Embedding        []float32 `json:"embedding"`
	IsAdmin          bool      `json:"is_admin"`
	GeneratePIN      bool      `json:"generate_pin"`
	GenerateIDNumber bool      `json:"generate_id_number"`
}

// Create enrolls a new identity
func (h *IdentitiesHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createIdentityRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}

	e := identity.Enrollment{
		DisplayName: req.Name,
		IDNumber:    strings.TrimSpace(req.IDNumber),
		PIN:         strings.TrimSpace(req.PIN),
		Embedding:   req.Embedding,
		IsAdmin:     req.IsAdmin,
	}
	if e.PIN == "" && req.GeneratePIN {
		pin, err := h.svc.Identities.GenerateUniqueIdentifier(r.Context(), database.CredentialPIN)
		if err != nil {
			respondDomainError(w, err)
			return
		}
		e.PIN = pin
	}
	if e.IDNumber == "" && req.GenerateIDNumber {
		idNumber, err := h.svc.Identities.GenerateUniqueIdentifier(r.Context(), database.CredentialIDNumber)
		if err != nil {
			respondDomainError(w, err)
			return
		}
		e.IDNumber = idNumber
	}

	id, err := h.svc.Identities.CreateIdentity(r.Context(), e)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	h.svc.Metrics.RecordEnrollment()
	h.refreshIdentityGauge(r.Context())
	if e.Embedding != nil {
		if err := h.svc.Matcher.RebuildIndex(r.Context()); err != nil {
			h.svc.logger().Warn("failed to refresh face index", "error", err)
		}
	}

	created, err := h.svc.Identities.Get(r.Context(), id)
	if err != nil || created == nil {
		respondDomainError(w, errors.Join(database.ErrStorage, err))
		return
	}
	h.svc.logger().Info("identity created", "identity_id", id, "admin", created.IsAdmin)
	respondJSON(w, http.StatusCreated, toIdentityResponse(created))
}

// load fetches the identity named by {id}, writing 400 or 404 when it cannot.
func (h *IdentitiesHandler) load(w http.ResponseWriter, r *http.Request) *database.Identity {
	id, err := pathID(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return nil
	}
	found, err := h.svc.Identities.Get(r.Context(), id)
	if err != nil {
		respondDomainError(w, err)
		return nil
	}
	if found == nil {
		respondError(w, http.StatusNotFound, "identity not found")
		return nil
	}
	return found
}

// Get returns one identity
func (h *IdentitiesHandler) Get(w http.ResponseWriter, r *http.Request) {
	found := h.load(w, r)
	if found == nil {
		return
	}
	respondJSON(w, http.StatusOK, toIdentityResponse(found))
}

type embeddingRequest struct {
	Embedding []float32 `json:"embedding"`
}

// AddEmbedding appends a face sample, given as a JSON vector or as an image frame
func (h *IdentitiesHandler) AddEmbedding(w http.ResponseWriter, r *http.Request) {
	found := h.load(w, r)
	if found == nil {
		return
	}

	var vector []float32
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		var req embeddingRequest
		if err := decodeJSON(w, r, &req); err != nil {
			respondError(w, http.StatusBadRequest, errInvalidRequestBody)
			return
		}
		vector = req.Embedding
	} else {
		frame, err := readFrame(w, r)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid frame")
			return
		}
		vector, err = h.svc.Extractor.Extract(r.Context(), frame)
		if err != nil {
			h.svc.Metrics.RecordEmbeddingError()
			h.svc.logger().Warn("embedding extraction failed during enrollment", "identity_id", found.ID, "error", err)
			respondError(w, http.StatusBadGateway, "embedding service unavailable")
			return
		}
		if vector == nil {
			respondError(w, http.StatusUnprocessableEntity, "no face detected")
			return
		}
	}

	stored, err := h.svc.Identities.AppendEmbedding(r.Context(), found.ID, vector)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	h.svc.Matcher.IndexEmbedding(*stored)
	h.svc.logger().Info("embedding enrolled", "identity_id", found.ID, "seq", stored.Seq)

	respondJSON(w, http.StatusCreated, map[string]any{
		"identity_id": found.ID,
		"seq":         stored.Seq,
		"embeddings":  len(found.Embeddings) + 1,
	})
}

type credentialsRequest struct {
	IDNumber string `json:"id_number"`
	PIN      string `json:"pin"`
}

// SetCredentials adds a PIN and/or ID number to an identity. Credentials already set are kept.
func (h *IdentitiesHandler) SetCredentials(w http.ResponseWriter, r *http.Request) {
	found := h.load(w, r)
	if found == nil {
		return
	}
	var req credentialsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	req.IDNumber = strings.TrimSpace(req.IDNumber)
	req.PIN = strings.TrimSpace(req.PIN)
	if req.IDNumber == "" && req.PIN == "" {
		respondError(w, http.StatusBadRequest, "id_number or pin is required")
		return
	}

	if err := h.svc.Identities.AddCredentials(r.Context(), found.ID, req.IDNumber, req.PIN); err != nil {
		respondDomainError(w, err)
		return
	}
	updated, err := h.svc.Identities.Get(r.Context(), found.ID)
	if err != nil || updated == nil {
		respondDomainError(w, errors.Join(database.ErrStorage, err))
		return
	}
	respondJSON(w, http.StatusOK, toIdentityResponse(updated))
}

type adminRequest struct {
	Admin bool `json:"admin"`
}

// SetAdmin grants or revokes the admin flag. Admins cannot revoke their own
// flag. Revoking ends every admin session the identity holds.
func (h *IdentitiesHandler) SetAdmin(w http.ResponseWriter, r *http.Request) {
	found := h.load(w, r)
	if found == nil {
		return
	}
	var req adminRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	if s := middleware.GetSessionFromContext(r.Context()); s != nil && s.IdentityID == found.ID && !req.Admin {
		respondError(w, http.StatusConflict, "cannot revoke your own admin flag")
		return
	}

	if err := h.svc.Identities.SetAdmin(r.Context(), found.ID, req.Admin); err != nil {
		respondDomainError(w, err)
		return
	}
	ended := 0
	if !req.Admin && h.sessionManager != nil {
		ended = h.sessionManager.DeleteForIdentity(found.ID)
	}
	h.svc.logger().Info("admin flag changed", "identity_id", found.ID, "admin", req.Admin, "sessions_ended", ended)
	found.IsAdmin = req.Admin
	respondJSON(w, http.StatusOK, toIdentityResponse(found))
}

type generateRequest struct {
	Kind string `json:"kind"`
}

// GenerateIdentifier returns an unused PIN or ID number
func (h *IdentitiesHandler) GenerateIdentifier(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	kind, ok := database.ParseCredentialKind(req.Kind)
	if !ok {
		respondError(w, http.StatusBadRequest, "kind must be pin or idNumber")
		return
	}

	value, err := h.svc.Identities.GenerateUniqueIdentifier(r.Context(), kind)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"kind": string(kind), "value": value})
}
