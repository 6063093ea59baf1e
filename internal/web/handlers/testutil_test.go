package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/kiosk/internal/config"
	"github.com/kozaktomas/kiosk/internal/database"
	"github.com/kozaktomas/kiosk/internal/database/mock"
	"github.com/kozaktomas/kiosk/internal/facematch"
	"github.com/kozaktomas/kiosk/internal/i18n"
	"github.com/kozaktomas/kiosk/internal/identity"
	"github.com/kozaktomas/kiosk/internal/ledger"
	"github.com/kozaktomas/kiosk/internal/logging"
	"github.com/kozaktomas/kiosk/internal/metrics"
	"github.com/kozaktomas/kiosk/internal/session"
	"github.com/kozaktomas/kiosk/internal/web/middleware"
)

// fakeExtractor returns a fixed embedding for every frame
type fakeExtractor struct {
	vector []float32
	err    error
	calls  int
}

func (f *fakeExtractor) Extract(ctx context.Context, frame []byte) ([]float32, error) {
	f.calls++
	return f.vector, f.err
}

// testEnv wires handlers over an in-memory store holding Ana and the admin Carmen
type testEnv struct {
	repo      *mock.MockStore
	svc       *Services
	extractor *fakeExtractor
	sessions  *KioskSessions
	sm        *middleware.SessionManager
	ana       int64
	admin     int64
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()
	repo := mock.NewMockStore()

	ana, err := repo.CreateIdentity(ctx, &database.Identity{DisplayName: "Ana", PIN: "1234", IDNumber: "10001", Embeddings: [][]float32{{0, 0}}})
	if err != nil {
		t.Fatal(err)
	}
	admin, err := repo.CreateIdentity(ctx, &database.Identity{DisplayName: "Carmen", PIN: "4321", IsAdmin: true, Embeddings: [][]float32{{5, 5}}})
	if err != nil {
		t.Fatal(err)
	}

	logger := logging.Discard()
	m := metrics.NewManager()
	tr, err := i18n.New("en")
	if err != nil {
		t.Fatal(err)
	}
	matcher := facematch.NewMatcher(repo, facematch.WithLogger(logger))
	l := ledger.New(repo, ledger.WithLogger(logger), ledger.WithMetrics(m))
	extractor := &fakeExtractor{}

	svc := &Services{
		Config:     config.Defaults(),
		Store:      repo,
		Identities: identity.NewStore(repo, identity.Options{EmbeddingDim: 2, PINLength: 4, IDNumberLength: 5}),
		Matcher:    matcher,
		Ledger:     l,
		Flow:       session.NewFlow(matcher, l, session.WithRetryDelay(1500*time.Millisecond), session.WithLogger(logger), session.WithMetrics(m)),
		Extractor:  extractor,
		Translator: tr,
		Metrics:    m,
		Logger:     logger,
	}

	sessions := NewKioskSessions()
	sm := middleware.NewSessionManager("test-secret")
	t.Cleanup(sessions.Stop)
	t.Cleanup(sm.Stop)

	return &testEnv{repo: repo, svc: svc, extractor: extractor, sessions: sessions, sm: sm, ana: ana, admin: admin}
}

// jsonRequest creates a request with a JSON body
func jsonRequest(method, path, body string) *http.Request {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

// multipartFrameRequest creates a multipart upload with a "file" part and extra fields
func multipartFrameRequest(t *testing.T, path string, frame []byte, fields map[string]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatal(err)
		}
	}
	if frame != nil {
		part, err := mw.CreateFormFile("file", "frame.jpg")
		if err != nil {
			t.Fatal(err)
		}
		part.Write(frame)
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

// requestWithChiParams creates a request with chi URL parameters
func requestWithChiParams(r *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for key, value := range params {
		rctx.URLParams.Add(key, value)
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// parseJSONResponse parses a JSON response body into the target type
func parseJSONResponse(t *testing.T, recorder *httptest.ResponseRecorder, target any) {
	t.Helper()
	if err := json.Unmarshal(recorder.Body.Bytes(), target); err != nil {
		t.Fatalf("failed to parse JSON response: %v\nBody: %s", err, recorder.Body.String())
	}
}

// assertStatusCode checks if the response has the expected status code
func assertStatusCode(t *testing.T, recorder *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if recorder.Code != expected {
		t.Errorf("expected status %d, got %d\nBody: %s", expected, recorder.Code, recorder.Body.String())
	}
}

// assertContentType checks if the response has the expected content type
func assertContentType(t *testing.T, recorder *httptest.ResponseRecorder, expected string) {
	t.Helper()
	ct := recorder.Header().Get("Content-Type")
	if ct != expected {
		t.Errorf("expected Content-Type '%s', got '%s'", expected, ct)
	}
}

// assertJSONError checks if the response is a JSON error with the expected message
func assertJSONError(t *testing.T, recorder *httptest.ResponseRecorder, expectedMessage string) {
	t.Helper()
	var result map[string]string
	if err := json.Unmarshal(recorder.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to parse error response: %v\nBody: %s", err, recorder.Body.String())
	}
	if result["error"] != expectedMessage {
		t.Errorf("expected error '%s', got '%s'", expectedMessage, result["error"])
	}
}
