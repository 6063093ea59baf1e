// Package ledger is the append-only attendance log. Writes never fail from
// the caller's point of view: a record the store rejects is logged, counted
// and kept in memory until a later write or Flush persists it.
package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/kozaktomas/kiosk/internal/database"
	"github.com/kozaktomas/kiosk/internal/metrics"
)

// Ledger records attendance events for identities.
type Ledger struct {
	repo    database.AttendanceWriter
	now     func() time.Time
	logger  *slog.Logger
	metrics *metrics.Manager

	mu      sync.Mutex
	last    map[int64]time.Time
	loaded  map[int64]bool
	pending []database.AttendanceRecord
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) { l.logger = logger }
}

// WithMetrics counts records and write failures.
func WithMetrics(m *metrics.Manager) Option {
	return func(l *Ledger) { l.metrics = m }
}

// New creates a ledger over repo.
func New(repo database.AttendanceWriter, opts ...Option) *Ledger {
	l := &Ledger{
		repo:   repo,
		now:    time.Now,
		logger: slog.Default(),
		last:   make(map[int64]time.Time),
		loaded: make(map[int64]bool),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Record appends one attendance event and returns it. The timestamp is never
// earlier than a previous one for the same identity. When the store fails the
// returned record has ID 0 and stays pending.
func (l *Ledger) Record(ctx context.Context, identityID int64, method database.Method) database.AttendanceRecord {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec := database.AttendanceRecord{
		IdentityID: identityID,
		Timestamp:  l.nextTimestamp(ctx, identityID),
		Method:     method,
	}
	l.metrics.RecordAttendance(string(method))

	if !method.Valid() {
		l.logger.Error("attendance record has unknown method, not persisted", "identity_id", identityID, "method", method)
		l.metrics.RecordAttendanceFailure()
		return rec
	}

	// Earlier failures go first so IDs keep creation order.
	if len(l.pending) > 0 {
		if err := l.flushLocked(ctx); err != nil {
			l.keepPending(rec, err)
			return rec
		}
	}
	if err := l.repo.InsertAttendance(ctx, &rec); err != nil {
		rec.ID = 0
		l.keepPending(rec, err)
	}
	return rec
}

func (l *Ledger) keepPending(rec database.AttendanceRecord, err error) {
	l.pending = append(l.pending, rec)
	l.metrics.RecordAttendanceFailure()
	l.logger.Warn("attendance write failed, keeping record in memory",
		"identity_id", rec.IdentityID,
		"method", rec.Method,
		"pending", len(l.pending),
		"error", err)
}

// nextTimestamp clamps now to the last timestamp seen for the identity. The
// stored records are consulted until one lookup for the identity succeeds.
func (l *Ledger) nextTimestamp(ctx context.Context, identityID int64) time.Time {
	ts := l.now()
	last := l.last[identityID]
	if !l.loaded[identityID] {
		records, err := l.repo.ListAttendanceForIdentity(ctx, identityID)
		if err != nil {
			l.logger.Debug("could not load previous attendance", "identity_id", identityID, "error", err)
		} else {
			l.loaded[identityID] = true
		}
		for _, r := range records {
			if r.Timestamp.After(last) {
				last = r.Timestamp
			}
		}
	}
	if ts.Before(last) {
		ts = last
	}
	l.last[identityID] = ts
	return ts
}

// Flush retries pending records in order, stopping at the first failure.
func (l *Ledger) Flush(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.flushLocked(ctx)
}

func (l *Ledger) flushLocked(ctx context.Context) error {
	for len(l.pending) > 0 {
		rec := l.pending[0]
		if err := l.repo.InsertAttendance(ctx, &rec); err != nil {
			return fmt.Errorf("flush attendance: %w", err)
		}
		l.pending = l.pending[1:]
		l.logger.Info("pending attendance record persisted", "id", rec.ID, "identity_id", rec.IdentityID)
	}
	return nil
}

// Pending returns the number of records not yet persisted.
func (l *Ledger) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.pending)
}

// ListAll returns every record in creation order, pending ones last.
func (l *Ledger) ListAll(ctx context.Context) ([]database.AttendanceRecord, error) {
	stored, err := l.repo.ListAttendance(ctx)
	if err != nil {
		return nil, fmt.Errorf("list attendance: %w", err)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return append(stored, l.pending...), nil
}

// ListForIdentity returns the records of one identity in creation order.
func (l *Ledger) ListForIdentity(ctx context.Context, identityID int64) ([]database.AttendanceRecord, error) {
	stored, err := l.repo.ListAttendanceForIdentity(ctx, identityID)
	if err != nil {
		return nil, fmt.Errorf("list attendance for %d: %w", identityID, err)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, r := range l.pending {
		if r.IdentityID == identityID {
			stored = append(stored, r)
		}
	}
	return stored, nil
}

// Purge deletes persisted records older than before. Administrative use only.
func (l *Ledger) Purge(ctx context.Context, before time.Time) (int64, error) {
	n, err := l.repo.PurgeAttendance(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("purge attendance: %w", err)
	}
	l.logger.Info("attendance purged", "before", before, "deleted", n)
	return n, nil
}
