package database

import (
	"context"
	"time"
)

// IdentityReader provides read-only access to enrolled identities.
// Lookups of a missing identity return (nil, nil).
type IdentityReader interface {
	// GetIdentity retrieves an identity with its embeddings
	GetIdentity(ctx context.Context, id int64) (*Identity, error)
	// FindByCredential performs an exact, case-sensitive lookup on the PIN or ID number column
	FindByCredential(ctx context.Context, kind CredentialKind, value string) (*Identity, error)
	// ListIdentities returns all identities in insertion order, embeddings included
	ListIdentities(ctx context.Context) ([]Identity, error)
	// ListEmbeddings returns every stored embedding ordered by identity insertion order, then sequence
	ListEmbeddings(ctx context.Context) ([]StoredEmbedding, error)
	// CountIdentities returns the number of enrolled identities
	CountIdentities(ctx context.Context) (int, error)
}

// IdentityWriter provides write access to identities. Identities are never
// deleted or renamed; embeddings are append-only.
type IdentityWriter interface {
	IdentityReader

	// CreateIdentity inserts the identity and its initial embeddings, returning the new ID.
	// Returns ErrDuplicateCredential if the PIN or ID number is already taken.
	CreateIdentity(ctx context.Context, identity *Identity) (int64, error)

	// AppendEmbedding adds one embedding after the existing ones.
	// Returns ErrNotFound if the identity does not exist.
	AppendEmbedding(ctx context.Context, identityID int64, vector []float32) (*StoredEmbedding, error)

	// SetCredential sets a PIN or ID number on an identity.
	// Returns ErrNotFound or ErrDuplicateCredential.
	SetCredential(ctx context.Context, identityID int64, kind CredentialKind, value string) error

	// SetAdmin grants or revokes the admin flag.
	SetAdmin(ctx context.Context, identityID int64, admin bool) error
}

// AttendanceReader provides read-only access to the attendance ledger.
type AttendanceReader interface {
	// ListAttendance returns all records in creation order
	ListAttendance(ctx context.Context) ([]AttendanceRecord, error)
	// ListAttendanceForIdentity returns the records of one identity in creation order
	ListAttendanceForIdentity(ctx context.Context, identityID int64) ([]AttendanceRecord, error)
	// CountAttendance returns the total number of records
	CountAttendance(ctx context.Context) (int, error)
}

// AttendanceWriter appends to the attendance ledger.
type AttendanceWriter interface {
	AttendanceReader

	// InsertAttendance stores the record and fills in its ID.
	InsertAttendance(ctx context.Context, record *AttendanceRecord) error

	// PurgeAttendance deletes records older than before. Administrative bulk operation only.
	PurgeAttendance(ctx context.Context, before time.Time) (int64, error)
}

// Store is a complete storage backend.
type Store interface {
	IdentityWriter
	AttendanceWriter

	// Close releases the underlying connection pool
	Close() error
}
