package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/kozaktomas/kiosk/internal/logging"
	"github.com/kozaktomas/kiosk/internal/metrics"
)

func TestCORS(t *testing.T) {
	handler := CORS("https://kiosk.example.org, https://admin.example.org")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	tests := []struct {
		name        string
		method      string
		origin      string
		wantAllowed bool
		wantStatus  int
	}{
		{"listed origin", http.MethodGet, "https://kiosk.example.org", true, http.StatusTeapot},
		{"localhost with port", http.MethodGet, "http://localhost:5173", true, http.StatusTeapot},
		{"localhost lookalike", http.MethodGet, "http://localhost.evil.com", false, http.StatusTeapot},
		{"unknown origin", http.MethodGet, "https://evil.example.com", false, http.StatusTeapot},
		{"no origin", http.MethodGet, "", false, http.StatusTeapot},
		{"preflight", http.MethodOptions, "https://admin.example.org", true, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/api/v1/health", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			got := w.Header().Get("Access-Control-Allow-Origin")
			if tt.wantAllowed && got != tt.origin {
				t.Errorf("Allow-Origin = %q, want %q", got, tt.origin)
			}
			if !tt.wantAllowed && got != "" {
				t.Errorf("Allow-Origin = %q, want none", got)
			}
			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
		})
	}
}

func TestSecurityHeaders(t *testing.T) {
	w := httptest.NewRecorder()
	SecurityHeaders()(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	for _, h := range []string{"Content-Security-Policy", "Permissions-Policy", "X-Content-Type-Options", "X-Frame-Options"} {
		if w.Header().Get(h) == "" {
			t.Errorf("missing header %s", h)
		}
	}
}

func TestMetrics_UsesRoutePattern(t *testing.T) {
	m := metrics.NewManager()
	r := chi.NewRouter()
	r.Use(Metrics(m))
	r.Use(RequestLogger(logging.Discard()))
	r.Get("/api/v1/identities/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	for _, id := range []string{"1", "2", "3"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/identities/"+id, nil))
	}

	got, err := testutil.GatherAndCount(m.Registry(), "kiosk_http_requests_total")
	if err != nil {
		t.Fatal(err)
	}
	if got != 1 {
		t.Errorf("expected a single label set, got %d", got)
	}
}
