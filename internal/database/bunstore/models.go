package bunstore

import (
	"database/sql"
	"time"

	"github.com/pgvector/pgvector-go"
	"github.com/uptrace/bun"

	"github.com/kozaktomas/kiosk/internal/database"
)

type identityModel struct {
	bun.BaseModel `bun:"table:identities"`
	ID            int64          `bun:"id,pk,autoincrement"`
	DisplayName   string         `bun:"display_name"`
	IDNumber      sql.NullString `bun:"id_number"`
	PIN           sql.NullString `bun:"pin"`
	IsAdmin       bool           `bun:"is_admin"`
	CreatedAt     time.Time      `bun:"created_at"`
}

type embeddingModel struct {
	bun.BaseModel `bun:"table:embeddings"`
	ID            int64           `bun:"id,pk,autoincrement"`
	IdentityID    int64           `bun:"identity_id"`
	Seq           int             `bun:"seq"`
	Vector        pgvector.Vector `bun:"vector,type:text"`
	CreatedAt     time.Time       `bun:"created_at"`
}

type attendanceModel struct {
	bun.BaseModel `bun:"table:attendance"`
	ID            int64     `bun:"id,pk,autoincrement"`
	IdentityID    int64     `bun:"identity_id"`
	Timestamp     time.Time `bun:"ts"`
	Method        string    `bun:"method"`
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func (m *identityModel) toIdentity() database.Identity {
	return database.Identity{
		ID:          m.ID,
		DisplayName: m.DisplayName,
		IDNumber:    m.IDNumber.String,
		PIN:         m.PIN.String,
		IsAdmin:     m.IsAdmin,
		CreatedAt:   m.CreatedAt,
	}
}

func (m *embeddingModel) toStored() database.StoredEmbedding {
	return database.StoredEmbedding{
		ID:         m.ID,
		IdentityID: m.IdentityID,
		Seq:        m.Seq,
		Vector:     database.DecodeVector(m.Vector),
		CreatedAt:  m.CreatedAt,
	}
}

func (m *attendanceModel) toRecord() database.AttendanceRecord {
	return database.AttendanceRecord{
		ID:         m.ID,
		IdentityID: m.IdentityID,
		Timestamp:  m.Timestamp,
		Method:     database.Method(m.Method),
	}
}

func credentialColumn(kind database.CredentialKind) string {
	if kind == database.CredentialPIN {
		return "pin"
	}
	return "id_number"
}
