package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kozaktomas/kiosk/internal/database"
	"github.com/kozaktomas/kiosk/internal/embedding"
	"github.com/kozaktomas/kiosk/internal/session"
)

func startKiosk(t *testing.T, h *KioskHandler, body string) KioskResponse {
	t.Helper()
	recorder := httptest.NewRecorder()
	h.Start(recorder, jsonRequest(http.MethodPost, "/api/v1/kiosk/sessions", body))
	assertStatusCode(t, recorder, http.StatusCreated)

	var resp KioskResponse
	parseJSONResponse(t, recorder, &resp)
	return resp
}

func withSession(r *http.Request, sid string) *http.Request {
	return requestWithChiParams(r, map[string]string{"sid": sid})
}

func TestKioskHandler_Start(t *testing.T) {
	env := newTestEnv(t)
	h := NewKioskHandler(env.svc, env.sessions, env.sm)

	resp := startKiosk(t, h, "")
	if resp.SessionID == "" || resp.State != session.StateCapture {
		t.Errorf("unexpected start response: %+v", resp)
	}
	if resp.MessageID != "capture.prompt" || resp.Message != "Look at the camera or enter your PIN" {
		t.Errorf("unexpected message %q / %q", resp.MessageID, resp.Message)
	}
	if env.sessions.Len() != 1 {
		t.Errorf("expected 1 stored session, got %d", env.sessions.Len())
	}
}

func TestKioskHandler_Start_InvalidJSON(t *testing.T) {
	env := newTestEnv(t)
	h := NewKioskHandler(env.svc, env.sessions, env.sm)

	recorder := httptest.NewRecorder()
	h.Start(recorder, jsonRequest(http.MethodPost, "/api/v1/kiosk/sessions", "{not json"))

	assertStatusCode(t, recorder, http.StatusBadRequest)
	assertJSONError(t, recorder, errInvalidRequestBody)
}

func TestKioskHandler_UnknownSession(t *testing.T) {
	env := newTestEnv(t)
	h := NewKioskHandler(env.svc, env.sessions, env.sm)

	recorder := httptest.NewRecorder()
	h.Get(recorder, withSession(httptest.NewRequest(http.MethodGet, "/", nil), "missing"))

	assertStatusCode(t, recorder, http.StatusNotFound)
	assertJSONError(t, recorder, "kiosk session not found")
}

func TestKioskHandler_Credential(t *testing.T) {
	tests := []struct {
		name        string
		body        string
		wantStatus  int
		wantState   session.State
		wantName    string
		wantMessage string
	}{
		{"pin", `{"kind":"pin","value":"1234"}`, http.StatusOK, session.StateConfirm, "Ana", "Welcome, Ana"},
		{"id number with spaces", `{"kind":"cedula","value":" 10001 "}`, http.StatusOK, session.StateConfirm, "Ana", "Welcome, Ana"},
		{"unknown pin", `{"kind":"pin","value":"0000"}`, http.StatusOK, session.StateReject, "", "PIN or ID number not recognized"},
		{"admin without request", `{"kind":"pin","value":"4321"}`, http.StatusOK, session.StateConfirm, "Carmen", "Welcome, Carmen"},
		{"admin with request", `{"kind":"pin","value":"4321","admin":true}`, http.StatusOK, session.StateAdmin, "Carmen", "Administration, Carmen"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			h := NewKioskHandler(env.svc, env.sessions, env.sm)
			start := startKiosk(t, h, "")

			recorder := httptest.NewRecorder()
			h.Credential(recorder, withSession(jsonRequest(http.MethodPost, "/", tt.body), start.SessionID))

			assertStatusCode(t, recorder, tt.wantStatus)
			var resp KioskResponse
			parseJSONResponse(t, recorder, &resp)
			if resp.State != tt.wantState || resp.DisplayName != tt.wantName || resp.Message != tt.wantMessage {
				t.Errorf("unexpected response: %+v", resp)
			}
			if tt.wantState == session.StateReject && resp.RetryAfterMS != 1500 {
				t.Errorf("expected retry after 1500ms, got %d", resp.RetryAfterMS)
			}
			if tt.wantState == session.StateAdmin && (resp.AdminSession == nil || env.sm.Count() != 1) {
				t.Errorf("expected an admin session, got %+v", resp.AdminSession)
			}
			if tt.wantState != session.StateAdmin && resp.AdminSession != nil {
				t.Error("unexpected admin session")
			}
		})
	}
}

func TestKioskHandler_Credential_BadKind(t *testing.T) {
	env := newTestEnv(t)
	h := NewKioskHandler(env.svc, env.sessions, env.sm)
	start := startKiosk(t, h, "")

	recorder := httptest.NewRecorder()
	h.Credential(recorder, withSession(jsonRequest(http.MethodPost, "/", `{"kind":"badge","value":"1"}`), start.SessionID))

	assertStatusCode(t, recorder, http.StatusBadRequest)
	assertJSONError(t, recorder, "kind must be pin or idNumber")
}

func TestKioskHandler_Frame(t *testing.T) {
	tests := []struct {
		name        string
		vector      []float32
		err         error
		wantState   session.State
		wantMessage string
		wantRecords int
	}{
		{"known face", []float32{0.1, 0.1}, nil, session.StateConfirm, "confirm.welcome", 1},
		{"no face", nil, nil, session.StateCapture, "capture.no_face", 0},
		{"unknown face", []float32{9, 9}, nil, session.StateCapture, "capture.no_match", 0},
		{"wrong dimension", nil, embedding.ErrDimensionMismatch, session.StateCapture, "capture.no_face", 0},
		{"service down", nil, errors.New("connection refused"), session.StateCapture, "capture.unavailable", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			env.extractor.vector = tt.vector
			env.extractor.err = tt.err
			h := NewKioskHandler(env.svc, env.sessions, env.sm)
			start := startKiosk(t, h, "")

			recorder := httptest.NewRecorder()
			h.Frame(recorder, withSession(multipartFrameRequest(t, "/", []byte("jpeg"), nil), start.SessionID))

			assertStatusCode(t, recorder, http.StatusOK)
			var resp KioskResponse
			parseJSONResponse(t, recorder, &resp)
			if resp.State != tt.wantState || resp.MessageID != tt.wantMessage {
				t.Errorf("unexpected response: %+v", resp)
			}
			if n, _ := env.repo.CountAttendance(context.Background()); n != tt.wantRecords {
				t.Errorf("expected %d records, got %d", tt.wantRecords, n)
			}
		})
	}
}

func TestKioskHandler_FrameOutsideCaptureSkipsExtraction(t *testing.T) {
	env := newTestEnv(t)
	env.extractor.vector = []float32{0, 0}
	h := NewKioskHandler(env.svc, env.sessions, env.sm)
	start := startKiosk(t, h, "")

	for range 2 {
		recorder := httptest.NewRecorder()
		h.Frame(recorder, withSession(multipartFrameRequest(t, "/", []byte("jpeg"), nil), start.SessionID))
		assertStatusCode(t, recorder, http.StatusOK)
	}

	if env.extractor.calls != 1 {
		t.Errorf("expected 1 extraction, got %d", env.extractor.calls)
	}
	if n, _ := env.repo.CountAttendance(context.Background()); n != 1 {
		t.Errorf("expected 1 record, got %d", n)
	}
}

func TestKioskHandler_RejectThenReset(t *testing.T) {
	env := newTestEnv(t)
	h := NewKioskHandler(env.svc, env.sessions, env.sm)
	start := startKiosk(t, h, `{"admin":true}`)

	recorder := httptest.NewRecorder()
	h.Credential(recorder, withSession(jsonRequest(http.MethodPost, "/", `{"kind":"pin","value":"9999"}`), start.SessionID))
	var rejected KioskResponse
	parseJSONResponse(t, recorder, &rejected)
	if rejected.State != session.StateReject || rejected.Attempts != 1 {
		t.Fatalf("expected reject, got %+v", rejected)
	}

	recorder = httptest.NewRecorder()
	h.Reset(recorder, withSession(httptest.NewRequest(http.MethodPost, "/", nil), start.SessionID))
	var reset KioskResponse
	parseJSONResponse(t, recorder, &reset)
	if reset.State != session.StateCapture || reset.SessionID != start.SessionID || reset.Attempts != 1 {
		t.Errorf("unexpected reset: %+v", reset)
	}

	recorder = httptest.NewRecorder()
	h.Credential(recorder, withSession(jsonRequest(http.MethodPost, "/", `{"kind":"pin","value":"4321"}`), start.SessionID))
	var admin KioskResponse
	parseJSONResponse(t, recorder, &admin)
	if admin.State != session.StateAdmin {
		t.Errorf("expected admin screen for a session started in admin mode, got %+v", admin)
	}
	if len(recorder.Result().Cookies()) == 0 {
		t.Error("expected admin session cookie")
	}
}

func TestKioskHandler_Translation(t *testing.T) {
	env := newTestEnv(t)
	h := NewKioskHandler(env.svc, env.sessions, env.sm)
	start := startKiosk(t, h, "")

	recorder := httptest.NewRecorder()
	req := jsonRequest(http.MethodPost, "/?lang=es", `{"kind":"pin","value":"1234"}`)
	h.Credential(recorder, withSession(req, start.SessionID))

	var resp KioskResponse
	parseJSONResponse(t, recorder, &resp)
	if resp.Message != "Bienvenido/a, Ana" {
		t.Errorf("expected Spanish welcome, got %q", resp.Message)
	}
}

func TestKioskHandler_End(t *testing.T) {
	env := newTestEnv(t)
	h := NewKioskHandler(env.svc, env.sessions, env.sm)
	start := startKiosk(t, h, "")

	recorder := httptest.NewRecorder()
	h.End(recorder, withSession(httptest.NewRequest(http.MethodDelete, "/", nil), start.SessionID))

	assertStatusCode(t, recorder, http.StatusNoContent)
	if env.sessions.Len() != 0 {
		t.Error("session still stored")
	}
}

func TestKioskHandler_Register(t *testing.T) {
	env := newTestEnv(t)
	env.extractor.vector = []float32{2, 2}
	h := NewKioskHandler(env.svc, env.sessions, env.sm)
	start := startKiosk(t, h, "")

	recorder := httptest.NewRecorder()
	req := multipartFrameRequest(t, "/", []byte("jpeg"), map[string]string{
		"name":         "Luis",
		"id_number":    "20002",
		"generate_pin": "true",
	})
	h.Register(recorder, withSession(req, start.SessionID))

	assertStatusCode(t, recorder, http.StatusCreated)
	var resp KioskResponse
	parseJSONResponse(t, recorder, &resp)
	if resp.State != session.StateConfirm || resp.Method != database.MethodRegister || resp.DisplayName != "Luis" {
		t.Errorf("unexpected response: %+v", resp)
	}
	if len(resp.PIN) != 4 {
		t.Errorf("expected a generated 4 digit PIN, got %q", resp.PIN)
	}

	ctx := context.Background()
	luis, _ := env.svc.Identities.FindByIDNumber(ctx, "20002")
	if luis == nil || luis.PIN != resp.PIN || len(luis.Embeddings) != 1 {
		t.Fatalf("unexpected stored identity: %+v", luis)
	}
	records, _ := env.svc.Ledger.ListForIdentity(ctx, luis.ID)
	if len(records) != 1 || records[0].Method != database.MethodRegister {
		t.Errorf("expected one register record, got %+v", records)
	}
}

func TestKioskHandler_Register_Errors(t *testing.T) {
	tests := []struct {
		name       string
		vector     []float32
		fields     map[string]string
		frame      []byte
		wantStatus int
	}{
		{"duplicate id number", nil, map[string]string{"name": "Luis", "id_number": "10001"}, nil, http.StatusConflict},
		{"missing name", nil, map[string]string{"pin": "5555"}, nil, http.StatusBadRequest},
		{"bad pin", nil, map[string]string{"name": "Luis", "pin": "12"}, nil, http.StatusBadRequest},
		{"no face in frame", nil, map[string]string{"name": "Luis"}, []byte("jpeg"), http.StatusUnprocessableEntity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			env.extractor.vector = tt.vector
			h := NewKioskHandler(env.svc, env.sessions, env.sm)
			start := startKiosk(t, h, "")

			recorder := httptest.NewRecorder()
			h.Register(recorder, withSession(multipartFrameRequest(t, "/", tt.frame, tt.fields), start.SessionID))

			assertStatusCode(t, recorder, tt.wantStatus)
			if n, _ := env.repo.CountIdentities(context.Background()); n != 2 {
				t.Errorf("expected no new identity, got %d identities", n)
			}
		})
	}
}
