// Package mock provides in-memory implementations of database interfaces for testing.
package mock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kozaktomas/kiosk/internal/database"
)

// MockStore is an in-memory implementation of database.Store
type MockStore struct {
	mu         sync.RWMutex
	identities []*database.Identity // insertion order
	embeddings []database.StoredEmbedding
	attendance []database.AttendanceRecord
	nextID     int64
	nextEmbID  int64
	nextAttID  int64
	closed     bool

	// Error injection
	GetIdentityError      error
	FindByCredentialError error
	ListIdentitiesError   error
	ListEmbeddingsError   error
	CreateIdentityError   error
	AppendEmbeddingError  error
	SetCredentialError    error
	SetAdminError         error
	InsertAttendanceError error
	ListAttendanceError   error
	PurgeAttendanceError  error

	// Call tracking
	InsertAttendanceCalls int
}

// NewMockStore creates a new empty mock store
func NewMockStore() *MockStore {
	return &MockStore{}
}

var _ database.Store = (*MockStore)(nil)

func cloneIdentity(i *database.Identity) *database.Identity {
	c := *i
	c.Embeddings = make([][]float32, len(i.Embeddings))
	for j, e := range i.Embeddings {
		c.Embeddings[j] = append([]float32(nil), e...)
	}
	return &c
}

func (m *MockStore) find(id int64) *database.Identity {
	for _, i := range m.identities {
		if i.ID == id {
			return i
		}
	}
	return nil
}

func (m *MockStore) credentialTaken(kind database.CredentialKind, value string, except int64) bool {
	if value == "" {
		return false
	}
	for _, i := range m.identities {
		if i.ID != except && i.Credential(kind) == value {
			return true
		}
	}
	return false
}

// GetIdentity retrieves an identity by ID
func (m *MockStore) GetIdentity(ctx context.Context, id int64) (*database.Identity, error) {
	if m.GetIdentityError != nil {
		return nil, m.GetIdentityError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if i := m.find(id); i != nil {
		return cloneIdentity(i), nil
	}
	return nil, nil
}

// FindByCredential finds an identity by exact PIN or ID number
func (m *MockStore) FindByCredential(ctx context.Context, kind database.CredentialKind, value string) (*database.Identity, error) {
	if m.FindByCredentialError != nil {
		return nil, m.FindByCredentialError
	}
	if value == "" {
		return nil, nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, i := range m.identities {
		if i.Credential(kind) == value {
			return cloneIdentity(i), nil
		}
	}
	return nil, nil
}

// ListIdentities returns all identities in insertion order
func (m *MockStore) ListIdentities(ctx context.Context) ([]database.Identity, error) {
	if m.ListIdentitiesError != nil {
		return nil, m.ListIdentitiesError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]database.Identity, 0, len(m.identities))
	for _, i := range m.identities {
		out = append(out, *cloneIdentity(i))
	}
	return out, nil
}

// ListEmbeddings returns embeddings grouped by identity insertion order
func (m *MockStore) ListEmbeddings(ctx context.Context) ([]database.StoredEmbedding, error) {
	if m.ListEmbeddingsError != nil {
		return nil, m.ListEmbeddingsError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []database.StoredEmbedding
	for _, i := range m.identities {
		for _, e := range m.embeddings {
			if e.IdentityID == i.ID {
				out = append(out, e)
			}
		}
	}
	return out, nil
}

// CountIdentities returns the number of identities
func (m *MockStore) CountIdentities(ctx context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.identities), nil
}

// CreateIdentity stores a new identity with its initial embeddings
func (m *MockStore) CreateIdentity(ctx context.Context, identity *database.Identity) (int64, error) {
	if m.CreateIdentityError != nil {
		return 0, m.CreateIdentityError
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.credentialTaken(database.CredentialPIN, identity.PIN, 0) {
		return 0, fmt.Errorf("pin %w", database.ErrDuplicateCredential)
	}
	if m.credentialTaken(database.CredentialIDNumber, identity.IDNumber, 0) {
		return 0, fmt.Errorf("id number %w", database.ErrDuplicateCredential)
	}

	m.nextID++
	stored := cloneIdentity(identity)
	stored.ID = m.nextID
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now()
	}
	m.identities = append(m.identities, stored)
	for seq, vec := range stored.Embeddings {
		m.nextEmbID++
		m.embeddings = append(m.embeddings, database.StoredEmbedding{
			ID:         m.nextEmbID,
			IdentityID: stored.ID,
			Seq:        seq,
			Vector:     vec,
			CreatedAt:  stored.CreatedAt,
		})
	}
	return stored.ID, nil
}

// AppendEmbedding adds an embedding after the existing ones
func (m *MockStore) AppendEmbedding(ctx context.Context, identityID int64, vector []float32) (*database.StoredEmbedding, error) {
	if m.AppendEmbeddingError != nil {
		return nil, m.AppendEmbeddingError
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	i := m.find(identityID)
	if i == nil {
		return nil, fmt.Errorf("identity %d: %w", identityID, database.ErrNotFound)
	}
	vec := append([]float32(nil), vector...)
	i.Embeddings = append(i.Embeddings, vec)
	m.nextEmbID++
	emb := database.StoredEmbedding{
		ID:         m.nextEmbID,
		IdentityID: identityID,
		Seq:        len(i.Embeddings) - 1,
		Vector:     vec,
		CreatedAt:  time.Now(),
	}
	m.embeddings = append(m.embeddings, emb)
	return &emb, nil
}

// SetCredential sets a PIN or ID number
func (m *MockStore) SetCredential(ctx context.Context, identityID int64, kind database.CredentialKind, value string) error {
	if m.SetCredentialError != nil {
		return m.SetCredentialError
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	i := m.find(identityID)
	if i == nil {
		return fmt.Errorf("identity %d: %w", identityID, database.ErrNotFound)
	}
	if m.credentialTaken(kind, value, identityID) {
		return fmt.Errorf("%s %w", kind, database.ErrDuplicateCredential)
	}
	if kind == database.CredentialPIN {
		i.PIN = value
	} else {
		i.IDNumber = value
	}
	return nil
}

// SetAdmin sets the admin flag
func (m *MockStore) SetAdmin(ctx context.Context, identityID int64, admin bool) error {
	if m.SetAdminError != nil {
		return m.SetAdminError
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	i := m.find(identityID)
	if i == nil {
		return fmt.Errorf("identity %d: %w", identityID, database.ErrNotFound)
	}
	i.IsAdmin = admin
	return nil
}

// InsertAttendance appends a record
func (m *MockStore) InsertAttendance(ctx context.Context, record *database.AttendanceRecord) error {
	m.mu.Lock()
	m.InsertAttendanceCalls++
	m.mu.Unlock()
	if m.InsertAttendanceError != nil {
		return m.InsertAttendanceError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextAttID++
	record.ID = m.nextAttID
	m.attendance = append(m.attendance, *record)
	return nil
}

// ListAttendance returns all records
func (m *MockStore) ListAttendance(ctx context.Context) ([]database.AttendanceRecord, error) {
	if m.ListAttendanceError != nil {
		return nil, m.ListAttendanceError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]database.AttendanceRecord(nil), m.attendance...), nil
}

// ListAttendanceForIdentity returns records for one identity
func (m *MockStore) ListAttendanceForIdentity(ctx context.Context, identityID int64) ([]database.AttendanceRecord, error) {
	if m.ListAttendanceError != nil {
		return nil, m.ListAttendanceError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []database.AttendanceRecord
	for _, r := range m.attendance {
		if r.IdentityID == identityID {
			out = append(out, r)
		}
	}
	return out, nil
}

// CountAttendance returns the number of records
func (m *MockStore) CountAttendance(ctx context.Context) (int, error) {
	if m.ListAttendanceError != nil {
		return 0, m.ListAttendanceError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.attendance), nil
}

// PurgeAttendance removes records older than before
func (m *MockStore) PurgeAttendance(ctx context.Context, before time.Time) (int64, error) {
	if m.PurgeAttendanceError != nil {
		return 0, m.PurgeAttendanceError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.attendance[:0]
	var removed int64
	for _, r := range m.attendance {
		if r.Timestamp.Before(before) {
			removed++
			continue
		}
		kept = append(kept, r)
	}
	m.attendance = kept
	return removed, nil
}

// Close marks the store closed
func (m *MockStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// IsClosed reports whether Close was called
func (m *MockStore) IsClosed() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.closed
}
