package bunstore

import (
	"context"
	"time"

	"github.com/kozaktomas/kiosk/internal/database"
)

// InsertAttendance stores the record and fills in its ID
func (s *Store) InsertAttendance(ctx context.Context, record *database.AttendanceRecord) error {
	m := &attendanceModel{
		IdentityID: record.IdentityID,
		Timestamp:  record.Timestamp.UTC(),
		Method:     string(record.Method),
	}
	if _, err := s.db.NewInsert().Model(m).Returning("id").Exec(ctx); err != nil {
		return database.MapDBError(err)
	}
	record.ID = m.ID
	return nil
}

// ListAttendance returns all records in creation order
func (s *Store) ListAttendance(ctx context.Context) ([]database.AttendanceRecord, error) {
	var rows []attendanceModel
	if err := s.db.NewSelect().Model(&rows).Order("id ASC").Scan(ctx); err != nil {
		return nil, database.MapDBError(err)
	}
	return toRecords(rows), nil
}

// ListAttendanceForIdentity returns the records of one identity in creation order
func (s *Store) ListAttendanceForIdentity(ctx context.Context, identityID int64) ([]database.AttendanceRecord, error) {
	var rows []attendanceModel
	if err := s.db.NewSelect().Model(&rows).Where("identity_id = ?", identityID).Order("id ASC").Scan(ctx); err != nil {
		return nil, database.MapDBError(err)
	}
	return toRecords(rows), nil
}

// CountAttendance returns the total number of records
func (s *Store) CountAttendance(ctx context.Context) (int, error) {
	n, err := s.db.NewSelect().Model((*attendanceModel)(nil)).Count(ctx)
	if err != nil {
		return 0, database.MapDBError(err)
	}
	return n, nil
}

// PurgeAttendance deletes records older than before
func (s *Store) PurgeAttendance(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.NewDelete().Model((*attendanceModel)(nil)).Where("ts < ?", before.UTC()).Exec(ctx)
	if err != nil {
		return 0, database.MapDBError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, database.MapDBError(err)
	}
	return n, nil
}

func toRecords(rows []attendanceModel) []database.AttendanceRecord {
	out := make([]database.AttendanceRecord, len(rows))
	for i := range rows {
		out[i] = rows[i].toRecord()
	}
	return out
}
