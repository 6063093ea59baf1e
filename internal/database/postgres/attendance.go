package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/kozaktomas/kiosk/internal/database"
)

// InsertAttendance stores the record and fills in its ID
func (s *Store) InsertAttendance(ctx context.Context, record *database.AttendanceRecord) error {
	err := s.pool.QueryRow(ctx,
		`INSERT INTO attendance (identity_id, ts, method) VALUES ($1, $2, $3) RETURNING id`,
		record.IdentityID, record.Timestamp, string(record.Method),
	).Scan(&record.ID)
	if err != nil {
		return mapError(fmt.Errorf("insert attendance: %w", err))
	}
	return nil
}

// ListAttendance returns all records in creation order
func (s *Store) ListAttendance(ctx context.Context) ([]database.AttendanceRecord, error) {
	return s.queryAttendance(ctx, `SELECT id, identity_id, ts, method FROM attendance ORDER BY id`)
}

// ListAttendanceForIdentity returns the records of one identity in creation order
func (s *Store) ListAttendanceForIdentity(ctx context.Context, identityID int64) ([]database.AttendanceRecord, error) {
	return s.queryAttendance(ctx, `SELECT id, identity_id, ts, method FROM attendance WHERE identity_id = $1 ORDER BY id`, identityID)
}

func (s *Store) queryAttendance(ctx context.Context, query string, args ...any) ([]database.AttendanceRecord, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var out []database.AttendanceRecord
	for rows.Next() {
		var r database.AttendanceRecord
		var method string
		if err := rows.Scan(&r.ID, &r.IdentityID, &r.Timestamp, &method); err != nil {
			return nil, mapError(fmt.Errorf("scan attendance: %w", err))
		}
		r.Method = database.Method(method)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(fmt.Errorf("iterate attendance: %w", err))
	}
	return out, nil
}

// CountAttendance returns the total number of records
func (s *Store) CountAttendance(ctx context.Context) (int, error) {
	var count int
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM attendance").Scan(&count); err != nil {
		return 0, mapError(fmt.Errorf("count attendance: %w", err))
	}
	return count, nil
}

// PurgeAttendance deletes records older than before
func (s *Store) PurgeAttendance(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.pool.Exec(ctx, "DELETE FROM attendance WHERE ts < $1", before)
	if err != nil {
		return 0, mapError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, mapError(fmt.Errorf("getting rows affected: %w", err))
	}
	return n, nil
}
