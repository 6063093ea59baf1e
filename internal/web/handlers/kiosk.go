package handlers

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/kiosk/internal/constants"
	"github.com/kozaktomas/kiosk/internal/database"
	"github.com/kozaktomas/kiosk/internal/embedding"
	"github.com/kozaktomas/kiosk/internal/i18n"
	"github.com/kozaktomas/kiosk/internal/identity"
	"github.com/kozaktomas/kiosk/internal/session"
	"github.com/kozaktomas/kiosk/internal/web/middleware"
)

// KioskHandler drives kiosk screens through the session flow
type KioskHandler struct {
	svc            *Services
	sessions       *KioskSessions
	sessionManager *middleware.SessionManager
}

// NewKioskHandler creates a new kiosk handler
func NewKioskHandler(svc *Services, sessions *KioskSessions, sm *middleware.SessionManager) *KioskHandler {
	return &KioskHandler{
		svc:            svc,
		sessions:       sessions,
		sessionManager: sm,
	}
}

// KioskResponse is the screen the kiosk should show next
type KioskResponse struct {
	SessionID    string                  `json:"session_id"`
	State        session.State           `json:"state"`
	MessageID    string                  `json:"message_id"`
	Message      string                  `json:"message"`
	IdentityID   int64                   `json:"identity_id,omitempty"`
	DisplayName  string                  `json:"display_name,omitempty"`
	Method       database.Method         `json:"method,omitempty"`
	Distance     float64                 `json:"distance,omitempty"`
	RecordID     int64                   `json:"record_id,omitempty"`
	RecordedAt   string                  `json:"recorded_at,omitempty"`
	Attempts     int                     `json:"attempts"`
	RetryAfterMS int64                   `json:"retry_after_ms,omitempty"`
	PIN          string                  `json:"pin,omitempty"` // only after self registration
	AdminSession *middleware.SessionData `json:"admin_session,omitempty"`
}

func (h *KioskHandler) translator(r *http.Request) *i18n.Translator {
	return h.svc.Translator.For(r.URL.Query().Get("lang"), r.Header.Get("Accept-Language"))
}

// respond stores the new state and writes it.
func (h *KioskHandler) respond(w http.ResponseWriter, r *http.Request, status int, state session.State, sc session.Context, extra func(*KioskResponse)) {
	h.sessions.Put(state, sc)

	resp := KioskResponse{
		SessionID:   sc.SessionID,
		State:       state,
		MessageID:   session.MessageID(state, sc),
		IdentityID:  sc.IdentityID,
		DisplayName: sc.DisplayName,
		Method:      sc.Method,
		Distance:    sc.Distance,
		RecordID:    sc.RecordID,
		Attempts:    sc.Attempts,
	}
	resp.Message = h.translator(r).T(resp.MessageID, map[string]any{"Name": sc.DisplayName})
	if !sc.RecordedAt.IsZero() {
		resp.RecordedAt = sc.RecordedAt.Format(time.RFC3339Nano)
	}
	if state == session.StateReject {
		resp.RetryAfterMS = h.svc.Flow.RetryDelay().Milliseconds()
	}
	if extra != nil {
		extra(&resp)
	}
	respondJSON(w, status, resp)
}

// stepped responds after an identification step. Entering the admin screen opens an admin session.
func (h *KioskHandler) stepped(w http.ResponseWriter, r *http.Request, prev, state session.State, sc session.Context) {
	var extra func(*KioskResponse)
	if state == session.StateAdmin && prev != session.StateAdmin {
		admin, err := h.sessionManager.CreateSession(sc.IdentityID, sc.DisplayName)
		if err != nil {
			h.svc.logger().Error("failed to create admin session", "identity_id", sc.IdentityID, "error", err)
		} else {
			h.sessionManager.SetSessionCookie(w, r, admin)
			data := admin.ToJSON()
			extra = func(resp *KioskResponse) { resp.AdminSession = &data }
		}
	}
	h.respond(w, r, http.StatusOK, state, sc, extra)
}

func (h *KioskHandler) load(w http.ResponseWriter, r *http.Request) (session.State, session.Context, bool) {
	state, sc, ok := h.sessions.Get(chi.URLParam(r, "sid"))
	if !ok {
		respondError(w, http.StatusNotFound, "kiosk session not found")
	}
	return state, sc, ok
}

func queryBool(r *http.Request, key string) bool {
	v, _ := strconv.ParseBool(r.URL.Query().Get(key))
	return v
}

type startRequest struct {
	Admin bool `json:"admin"`
}

// Start opens a new kiosk session in the capture state
func (h *KioskHandler) Start(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if r.ContentLength > 0 {
		if err := decodeJSON(w, r, &req); err != nil {
			respondError(w, http.StatusBadRequest, errInvalidRequestBody)
			return
		}
	}
	state, sc := h.svc.Flow.Start(req.Admin || queryBool(r, "admin"))
	h.respond(w, r, http.StatusCreated, state, sc, nil)
}

// Get returns the current screen of a session
func (h *KioskHandler) Get(w http.ResponseWriter, r *http.Request) {
	state, sc, ok := h.load(w, r)
	if !ok {
		return
	}
	h.respond(w, r, http.StatusOK, state, sc, nil)
}

// Frame identifies the face in an uploaded camera frame
func (h *KioskHandler) Frame(w http.ResponseWriter, r *http.Request) {
	state, sc, ok := h.load(w, r)
	if !ok {
		return
	}
	if state != session.StateCapture {
		h.respond(w, r, http.StatusOK, state, sc, nil)
		return
	}

	frame, err := readFrame(w, r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid frame")
		return
	}

	vector, err := h.svc.Extractor.Extract(r.Context(), frame)
	switch {
	case errors.Is(err, embedding.ErrDimensionMismatch):
		h.svc.logger().Warn("embedding service returned unexpected dimension", "session", sc.SessionID, "error", err)
		vector = nil
	case err != nil:
		h.svc.Metrics.RecordEmbeddingError()
		h.svc.logger().Warn("embedding extraction failed", "session", sc.SessionID, "error", err)
		sc.Reason = session.ReasonUnavailable
		h.respond(w, r, http.StatusOK, state, sc, nil)
		return
	}

	next, sc := h.svc.Flow.Step(r.Context(), state, sc, session.Input{
		Kind:         session.InputFace,
		Embedding:    vector,
		RequestAdmin: queryBool(r, "admin"),
	})
	h.stepped(w, r, state, next, sc)
}

type credentialRequest struct {
	Kind  string `json:"kind"`
	Value string `json:"value"`
	Admin bool   `json:"admin"`
}

// Credential identifies a person by typed PIN or ID number
func (h *KioskHandler) Credential(w http.ResponseWriter, r *http.Request) {
	state, sc, ok := h.load(w, r)
	if !ok {
		return
	}

	var req credentialRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	kind, ok := database.ParseCredentialKind(req.Kind)
	if !ok {
		respondError(w, http.StatusBadRequest, "kind must be pin or idNumber")
		return
	}

	input := session.Input{Kind: session.InputPIN, Value: strings.TrimSpace(req.Value), RequestAdmin: req.Admin}
	if kind == database.CredentialIDNumber {
		input.Kind = session.InputIDNumber
	}
	next, sc := h.svc.Flow.Step(r.Context(), state, sc, input)
	h.stepped(w, r, state, next, sc)
}

// Reset returns a session to capture after a reject or a confirmation
func (h *KioskHandler) Reset(w http.ResponseWriter, r *http.Request) {
	state, sc, ok := h.load(w, r)
	if !ok {
		return
	}
	state, sc = h.svc.Flow.Reset(state, sc)
	h.respond(w, r, http.StatusOK, state, sc, nil)
}

// End closes a session
func (h *KioskHandler) End(w http.ResponseWriter, r *http.Request) {
	h.sessions.Delete(chi.URLParam(r, "sid"))
	w.WriteHeader(http.StatusNoContent)
}

// Register enrolls a new person from the kiosk and records their first check-in.
// The multipart form carries name, optional id_number and pin, generate_pin, and an optional face frame.
func (h *KioskHandler) Register(w http.ResponseWriter, r *http.Request) {
	state, sc, ok := h.load(w, r)
	if !ok {
		return
	}
	if state != session.StateCapture {
		respondError(w, http.StatusConflict, "registration is only possible from the capture screen")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, constants.MaxFrameSize)
	if err := r.ParseMultipartForm(constants.MaxFrameSize); err != nil {
		respondError(w, http.StatusBadRequest, "failed to parse multipart form")
		return
	}

	enrollment := identity.Enrollment{
		DisplayName: r.FormValue("name"),
		IDNumber:    strings.TrimSpace(r.FormValue("id_number")),
		PIN:         strings.TrimSpace(r.FormValue("pin")),
	}

	if file, _, err := r.FormFile("file"); err == nil {
		frame, err := io.ReadAll(file)
		file.Close()
		if err != nil || len(frame) == 0 {
			respondError(w, http.StatusBadRequest, "invalid frame")
			return
		}
		vector, err := h.svc.Extractor.Extract(r.Context(), frame)
		if err != nil {
			h.svc.Metrics.RecordEmbeddingError()
			h.svc.logger().Warn("embedding extraction failed during registration", "session", sc.SessionID, "error", err)
			respondError(w, http.StatusBadGateway, "embedding service unavailable")
			return
		}
		if vector == nil {
			respondError(w, http.StatusUnprocessableEntity, "no face detected")
			return
		}
		enrollment.Embedding = vector
	}

	generated := ""
	if enrollment.PIN == "" {
		if generate, _ := strconv.ParseBool(r.FormValue("generate_pin")); generate {
			pin, err := h.svc.Identities.GenerateUniqueIdentifier(r.Context(), database.CredentialPIN)
			if err != nil {
				respondDomainError(w, err)
				return
			}
			enrollment.PIN = pin
			generated = pin
		}
	}

	id, err := h.svc.Identities.CreateIdentity(r.Context(), enrollment)
	if err != nil {
		h.svc.logger().Info("kiosk registration rejected", "name", sanitizeForLog(enrollment.DisplayName), "error", err)
		respondDomainError(w, err)
		return
	}
	h.svc.Metrics.RecordEnrollment()
	if enrollment.Embedding != nil {
		if err := h.svc.Matcher.RebuildIndex(r.Context()); err != nil {
			h.svc.logger().Warn("failed to refresh face index", "error", err)
		}
	}

	created, err := h.svc.Identities.Get(r.Context(), id)
	if err != nil || created == nil {
		respondDomainError(w, errors.Join(database.ErrStorage, err))
		return
	}

	state, sc = h.svc.Flow.Register(r.Context(), state, sc, *created)
	h.respond(w, r, http.StatusCreated, state, sc, func(resp *KioskResponse) {
		resp.PIN = generated
	})
}
