// Package identity manages enrolled people: their face embeddings, PIN and
// ID-number credentials, and admin flag.
package identity

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"strings"
	"unicode"

	"github.com/kozaktomas/kiosk/internal/config"
	"github.com/kozaktomas/kiosk/internal/database"
)

var (
	// ErrEmptyName is returned when an identity is created without a display name.
	ErrEmptyName = errors.New("display name is required")
	// ErrIdentifierSpaceExhausted is returned when no free identifier was found within the attempt bound.
	ErrIdentifierSpaceExhausted = errors.New("identifier space exhausted")
	// ErrCredentialSet is returned when a credential slot already holds a different value.
	ErrCredentialSet = errors.New("credential already set")
)

// Options control validation and identifier generation.
type Options struct {
	EmbeddingDim        int // 0 accepts any non-empty length
	PINLength           int
	IDNumberLength      int
	MaxGenerateAttempts int
}

// OptionsFromConfig builds Options from the loaded configuration.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		EmbeddingDim:        cfg.Embedding.Dim,
		PINLength:           cfg.Credentials.PINLength,
		IDNumberLength:      cfg.Credentials.IDNumberLength,
		MaxGenerateAttempts: cfg.Credentials.MaxGenerateAttempts,
	}
}

// Enrollment describes a new identity. Credentials and embedding are optional.
type Enrollment struct {
	DisplayName string
	IDNumber    string
	PIN         string
	Embedding   []float32
	IsAdmin     bool
}

// Store is the descriptor store: identities with embeddings and credentials.
type Store struct {
	repo database.IdentityWriter
	opts Options
	intN func(n int) int
}

// NewStore creates a descriptor store over repo.
func NewStore(repo database.IdentityWriter, opts Options) *Store {
	if opts.PINLength <= 0 {
		opts.PINLength = 4
	}
	if opts.IDNumberLength <= 0 {
		opts.IDNumberLength = 5
	}
	if opts.MaxGenerateAttempts <= 0 {
		opts.MaxGenerateAttempts = 1000
	}
	return &Store{repo: repo, opts: opts, intN: rand.IntN}
}

// Options returns the effective options.
func (s *Store) Options() Options {
	return s.opts
}

// CreateIdentity validates and stores a new identity, returning its ID.
func (s *Store) CreateIdentity(ctx context.Context, e Enrollment) (int64, error) {
	name := strings.TrimSpace(e.DisplayName)
	if name == "" {
		return 0, ErrEmptyName
	}
	if e.PIN != "" {
		if err := s.ValidateCredential(database.CredentialPIN, e.PIN); err != nil {
			return 0, err
		}
	}
	if e.IDNumber != "" {
		if err := s.ValidateCredential(database.CredentialIDNumber, e.IDNumber); err != nil {
			return 0, err
		}
	}

	identity := &database.Identity{
		DisplayName: name,
		IDNumber:    e.IDNumber,
		PIN:         e.PIN,
		IsAdmin:     e.IsAdmin,
	}
	if e.Embedding != nil {
		if err := s.ValidateEmbedding(e.Embedding); err != nil {
			return 0, err
		}
		identity.Embeddings = [][]float32{e.Embedding}
	}

	if err := s.checkFree(ctx, 0, database.CredentialPIN, e.PIN); err != nil {
		return 0, err
	}
	if err := s.checkFree(ctx, 0, database.CredentialIDNumber, e.IDNumber); err != nil {
		return 0, err
	}

	id, err := s.repo.CreateIdentity(ctx, identity)
	if err != nil {
		return 0, fmt.Errorf("create identity %q: %w", name, err)
	}
	return id, nil
}

// checkFree reports ErrDuplicateCredential when value is held by an identity other than owner.
func (s *Store) checkFree(ctx context.Context, owner int64, kind database.CredentialKind, value string) error {
	if value == "" {
		return nil
	}
	existing, err := s.repo.FindByCredential(ctx, kind, value)
	if err != nil {
		return fmt.Errorf("check %s: %w", kind, err)
	}
	if existing != nil && existing.ID != owner {
		return fmt.Errorf("%s %q: %w", kind, value, database.ErrDuplicateCredential)
	}
	return nil
}

// AppendEmbedding adds a face sample to an existing identity and returns the stored row.
func (s *Store) AppendEmbedding(ctx context.Context, identityID int64, embedding []float32) (*database.StoredEmbedding, error) {
	if err := s.ValidateEmbedding(embedding); err != nil {
		return nil, err
	}
	stored, err := s.repo.AppendEmbedding(ctx, identityID, embedding)
	if err != nil {
		return nil, fmt.Errorf("append embedding to %d: %w", identityID, err)
	}
	return stored, nil
}

// AddCredentials sets a PIN and/or ID number on an existing identity. Empty
// values are skipped and a slot that already holds a different value is never
// overwritten.
func (s *Store) AddCredentials(ctx context.Context, identityID int64, idNumber, pin string) error {
	existing, err := s.repo.GetIdentity(ctx, identityID)
	if err != nil {
		return fmt.Errorf("get identity %d: %w", identityID, err)
	}
	if existing == nil {
		return fmt.Errorf("identity %d: %w", identityID, database.ErrNotFound)
	}
	updates := []struct {
		kind  database.CredentialKind
		value string
	}{
		{database.CredentialIDNumber, idNumber},
		{database.CredentialPIN, pin},
	}
	for _, u := range updates {
		if u.value == "" {
			continue
		}
		if err := s.ValidateCredential(u.kind, u.value); err != nil {
			return err
		}
		if current := existing.Credential(u.kind); current != "" && current != u.value {
			return fmt.Errorf("%s on identity %d: %w", u.kind, identityID, ErrCredentialSet)
		}
		if err := s.checkFree(ctx, identityID, u.kind, u.value); err != nil {
			return err
		}
	}
	for _, u := range updates {
		if u.value == "" || existing.Credential(u.kind) == u.value {
			continue
		}
		if err := s.repo.SetCredential(ctx, identityID, u.kind, u.value); err != nil {
			return fmt.Errorf("set %s on %d: %w", u.kind, identityID, err)
		}
	}
	return nil
}

// SetAdmin grants or revokes the admin flag.
func (s *Store) SetAdmin(ctx context.Context, identityID int64, admin bool) error {
	if err := s.repo.SetAdmin(ctx, identityID, admin); err != nil {
		return fmt.Errorf("set admin on %d: %w", identityID, err)
	}
	return nil
}

// Get returns the identity or nil if it does not exist.
func (s *Store) Get(ctx context.Context, id int64) (*database.Identity, error) {
	return s.repo.GetIdentity(ctx, id)
}

// FindByIDNumber returns the identity holding the exact ID number, or nil.
func (s *Store) FindByIDNumber(ctx context.Context, idNumber string) (*database.Identity, error) {
	return s.repo.FindByCredential(ctx, database.CredentialIDNumber, idNumber)
}

// FindByPIN returns the identity holding the exact PIN, or nil.
func (s *Store) FindByPIN(ctx context.Context, pin string) (*database.Identity, error) {
	return s.repo.FindByCredential(ctx, database.CredentialPIN, pin)
}

// AllIdentities returns every identity in insertion order.
func (s *Store) AllIdentities(ctx context.Context) ([]database.Identity, error) {
	return s.repo.ListIdentities(ctx)
}

// FindByName returns identities whose name matches query ignoring case and diacritics.
func (s *Store) FindByName(ctx context.Context, query string) ([]database.Identity, error) {
	all, err := s.repo.ListIdentities(ctx)
	if err != nil {
		return nil, err
	}
	var out []database.Identity
	for _, identity := range all {
		if nameMatches(identity.DisplayName, query) {
			out = append(out, identity)
		}
	}
	return out, nil
}

// GenerateUniqueIdentifier returns a random fixed-length numeric string not
// held by any identity for the given credential kind.
func (s *Store) GenerateUniqueIdentifier(ctx context.Context, kind database.CredentialKind) (string, error) {
	length := s.lengthFor(kind)
	space := int(math.Pow10(length))

	for range s.opts.MaxGenerateAttempts {
		candidate := fmt.Sprintf("%0*d", length, s.intN(space))
		existing, err := s.repo.FindByCredential(ctx, kind, candidate)
		if err != nil {
			return "", fmt.Errorf("check %s: %w", kind, err)
		}
		if existing == nil {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("%s after %d attempts: %w", kind, s.opts.MaxGenerateAttempts, ErrIdentifierSpaceExhausted)
}

func (s *Store) lengthFor(kind database.CredentialKind) int {
	if kind == database.CredentialPIN {
		return s.opts.PINLength
	}
	return s.opts.IDNumberLength
}

// ValidateCredential checks the format of a PIN or ID number. PINs are
// digits of the configured length; ID numbers are non-empty without spaces.
func (s *Store) ValidateCredential(kind database.CredentialKind, value string) error {
	if kind == database.CredentialPIN {
		if len(value) != s.opts.PINLength || !isDigits(value) {
			return fmt.Errorf("pin must be %d digits: %w", s.opts.PINLength, database.ErrInvalidCredential)
		}
		return nil
	}
	if value == "" || strings.IndexFunc(value, unicode.IsSpace) >= 0 {
		return fmt.Errorf("id number %q: %w", value, database.ErrInvalidCredential)
	}
	return nil
}

// ValidateEmbedding checks dimension and that every component is finite.
func (s *Store) ValidateEmbedding(embedding []float32) error {
	if len(embedding) == 0 {
		return fmt.Errorf("empty embedding: %w", database.ErrInvalidEmbedding)
	}
	if s.opts.EmbeddingDim > 0 && len(embedding) != s.opts.EmbeddingDim {
		return fmt.Errorf("expected %d dimensions, got %d: %w", s.opts.EmbeddingDim, len(embedding), database.ErrInvalidEmbedding)
	}
	for _, v := range embedding {
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			return fmt.Errorf("non-finite component: %w", database.ErrInvalidEmbedding)
		}
	}
	return nil
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
