package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestManagerRecords(t *testing.T) {
	m := NewManager(WithNamespace("test"))

	m.RecordMatch("face", ResultMatched, 20*time.Millisecond)
	m.RecordMatch("face", ResultMatched, 30*time.Millisecond)
	m.RecordMatch("pin", ResultNoMatch, time.Millisecond)
	m.RecordAttendance("face")
	m.RecordAttendanceFailure()
	m.SetIdentities(12)
	m.RecordTransition("capture", "confirm")

	if got := testutil.ToFloat64(m.matches.WithLabelValues("face", ResultMatched)); got != 2 {
		t.Errorf("expected 2 face matches, got %v", got)
	}
	if got := testutil.ToFloat64(m.matches.WithLabelValues("pin", ResultNoMatch)); got != 1 {
		t.Errorf("expected 1 pin miss, got %v", got)
	}
	if got := testutil.ToFloat64(m.attendanceFailures); got != 1 {
		t.Errorf("expected 1 failure, got %v", got)
	}
	if got := testutil.ToFloat64(m.identities); got != 12 {
		t.Errorf("expected 12 identities, got %v", got)
	}
	if got := testutil.ToFloat64(m.sessionTransitions.WithLabelValues("capture", "confirm")); got != 1 {
		t.Errorf("expected 1 transition, got %v", got)
	}
}

func TestNilManagerIsNoop(t *testing.T) {
	var m *Manager
	m.RecordMatch("face", ResultError, time.Second)
	m.RecordAttendance("pin")
	m.RecordAttendanceFailure()
	m.RecordEnrollment()
	m.SetIdentities(1)
	m.RecordTransition("a", "b")
	m.RecordHTTPRequest("/", "GET", "200", time.Second)
	m.RecordEmbeddingError()
}

func TestHandler(t *testing.T) {
	m := NewManager()
	m.RecordAttendance("cedula")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), `kiosk_attendance_records_total{method="cedula"} 1`) {
		t.Errorf("expected attendance counter in output, got:\n%s", body)
	}
}
