package handlers

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/kozaktomas/kiosk/internal/constants"
)

// statsCache holds cached stats with expiry
type statsCache struct {
	mu        sync.RWMutex
	data      *StatsResponse
	expiresAt time.Time
}

func (c *statsCache) get() (*StatsResponse, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.data == nil || time.Now().After(c.expiresAt) {
		return nil, false
	}
	return c.data, true
}

func (c *statsCache) set(data *StatsResponse) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data = data
	c.expiresAt = time.Now().Add(constants.StatsCacheTTL)
}

func (c *statsCache) invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data = nil
}

// StatsHandler handles statistics endpoints
type StatsHandler struct {
	svc      *Services
	sessions *KioskSessions
	cache    statsCache
}

// NewStatsHandler creates a new stats handler
func NewStatsHandler(svc *Services, sessions *KioskSessions) *StatsHandler {
	return &StatsHandler{svc: svc, sessions: sessions}
}

// InvalidateCache clears the cached stats so the next request fetches fresh data
func (h *StatsHandler) InvalidateCache() {
	h.cache.invalidate()
}

// StatsResponse represents the statistics response
type StatsResponse struct {
	Identities        int `json:"identities"`
	Admins            int `json:"admins"`
	Embeddings        int `json:"embeddings"`
	AttendanceRecords int `json:"attendance_records"`
	PendingRecords    int `json:"pending_records"`
	KioskSessions     int `json:"kiosk_sessions"`
}

func (h *StatsHandler) collect(ctx context.Context) (*StatsResponse, error) {
	identities, err := h.svc.Store.ListIdentities(ctx)
	if err != nil {
		return nil, err
	}
	attendance, err := h.svc.Store.CountAttendance(ctx)
	if err != nil {
		return nil, err
	}

	stats := &StatsResponse{
		Identities:        len(identities),
		AttendanceRecords: attendance,
		PendingRecords:    h.svc.Ledger.Pending(),
		KioskSessions:     h.sessions.Len(),
	}
	for _, i := range identities {
		stats.Embeddings += len(i.Embeddings)
		if i.IsAdmin {
			stats.Admins++
		}
	}
	return stats, nil
}

// Get returns counts of identities, embeddings and attendance records
func (h *StatsHandler) Get(w http.ResponseWriter, r *http.Request) {
	if cached, ok := h.cache.get(); ok {
		respondJSON(w, http.StatusOK, cached)
		return
	}

	stats, err := h.collect(r.Context())
	if err != nil {
		h.svc.logger().Error("failed to collect stats", "error", err)
		respondDomainError(w, err)
		return
	}
	h.svc.Metrics.SetIdentities(stats.Identities)

	h.cache.set(stats)
	respondJSON(w, http.StatusOK, stats)
}
