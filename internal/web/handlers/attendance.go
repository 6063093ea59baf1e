package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/kozaktomas/kiosk/internal/database"
	"github.com/kozaktomas/kiosk/internal/report"
)

// AttendanceHandler serves the attendance ledger to admins
type AttendanceHandler struct {
	svc *Services
}

// NewAttendanceHandler creates a new attendance handler
func NewAttendanceHandler(svc *Services) *AttendanceHandler {
	return &AttendanceHandler{svc: svc}
}

// List returns attendance records in creation order. Optional filters:
// identity_id, and since/until as RFC3339 timestamps.
func (h *AttendanceHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var since, until time.Time
	for _, p := range []struct {
		key string
		dst *time.Time
	}{{"since", &since}, {"until", &until}} {
		if v := q.Get(p.key); v != "" {
			t, err := time.Parse(time.RFC3339, v)
			if err != nil {
				respondError(w, http.StatusBadRequest, "invalid "+p.key+" timestamp")
				return
			}
			*p.dst = t
		}
	}

	var records []database.AttendanceRecord
	var err error
	if v := q.Get("identity_id"); v != "" {
		id, perr := strconv.ParseInt(v, 10, 64)
		if perr != nil {
			respondError(w, http.StatusBadRequest, "invalid identity_id")
			return
		}
		records, err = h.svc.Ledger.ListForIdentity(r.Context(), id)
	} else {
		records, err = h.svc.Ledger.ListAll(r.Context())
	}
	if err != nil {
		h.svc.logger().Error("failed to list attendance", "error", err)
		respondDomainError(w, err)
		return
	}

	identities, err := h.svc.Identities.AllIdentities(r.Context())
	if err != nil {
		respondDomainError(w, err)
		return
	}

	rows := report.AttendanceRows(report.InWindow(records, since, until), identities)
	respondTable(w, r, h.svc.logger(), report.NewTable(rows, report.AttendanceColumns...))
}
