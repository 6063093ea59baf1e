package bunstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"github.com/kozaktomas/kiosk/internal/database"
)

// GetIdentity retrieves an identity with its embeddings
func (s *Store) GetIdentity(ctx context.Context, id int64) (*database.Identity, error) {
	var m identityModel
	err := s.db.NewSelect().Model(&m).Where("id = ?", id).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, database.MapDBError(err)
	}
	return s.withEmbeddings(ctx, &m)
}

// FindByCredential performs an exact lookup on the PIN or ID number column
func (s *Store) FindByCredential(ctx context.Context, kind database.CredentialKind, value string) (*database.Identity, error) {
	if value == "" {
		return nil, nil
	}
	var m identityModel
	err := s.db.NewSelect().Model(&m).Where("? = ?", bun.Ident(credentialColumn(kind)), value).Limit(1).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, database.MapDBError(err)
	}
	// mysql collations compare case-insensitively
	if found := m.toIdentity(); found.Credential(kind) != value {
		return nil, nil
	}
	return s.withEmbeddings(ctx, &m)
}

func (s *Store) withEmbeddings(ctx context.Context, m *identityModel) (*database.Identity, error) {
	var rows []embeddingModel
	err := s.db.NewSelect().Model(&rows).Where("identity_id = ?", m.ID).Order("seq ASC").Scan(ctx)
	if err != nil {
		return nil, database.MapDBError(err)
	}
	identity := m.toIdentity()
	for i := range rows {
		identity.Embeddings = append(identity.Embeddings, database.DecodeVector(rows[i].Vector))
	}
	return &identity, nil
}

// ListIdentities returns all identities in insertion order, embeddings included
func (s *Store) ListIdentities(ctx context.Context) ([]database.Identity, error) {
	var rows []identityModel
	if err := s.db.NewSelect().Model(&rows).Order("id ASC").Scan(ctx); err != nil {
		return nil, database.MapDBError(err)
	}
	identities := make([]database.Identity, len(rows))
	for i := range rows {
		identities[i] = rows[i].toIdentity()
	}

	embeddings, err := s.ListEmbeddings(ctx)
	if err != nil {
		return nil, err
	}
	database.GroupEmbeddings(identities, embeddings)
	return identities, nil
}

// ListEmbeddings returns every stored embedding ordered by identity, then sequence
func (s *Store) ListEmbeddings(ctx context.Context) ([]database.StoredEmbedding, error) {
	var rows []embeddingModel
	if err := s.db.NewSelect().Model(&rows).Order("identity_id ASC", "seq ASC").Scan(ctx); err != nil {
		return nil, database.MapDBError(err)
	}
	out := make([]database.StoredEmbedding, len(rows))
	for i := range rows {
		out[i] = rows[i].toStored()
	}
	return out, nil
}

// CountIdentities returns the number of enrolled identities
func (s *Store) CountIdentities(ctx context.Context) (int, error) {
	n, err := s.db.NewSelect().Model((*identityModel)(nil)).Count(ctx)
	if err != nil {
		return 0, database.MapDBError(err)
	}
	return n, nil
}

// CreateIdentity inserts the identity and its initial embeddings in one transaction
func (s *Store) CreateIdentity(ctx context.Context, identity *database.Identity) (int64, error) {
	createdAt := identity.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	m := &identityModel{
		DisplayName: identity.DisplayName,
		IDNumber:    nullString(identity.IDNumber),
		PIN:         nullString(identity.PIN),
		IsAdmin:     identity.IsAdmin,
		CreatedAt:   createdAt,
	}

	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewInsert().Model(m).Returning("id").Exec(ctx); err != nil {
			return err
		}
		for seq, vec := range identity.Embeddings {
			e := &embeddingModel{
				IdentityID: m.ID,
				Seq:        seq,
				Vector:     database.EncodeVector(vec),
				CreatedAt:  createdAt,
			}
			if _, err := tx.NewInsert().Model(e).Returning("id").Exec(ctx); err != nil {
				return fmt.Errorf("insert embedding %d: %w", seq, err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, database.MapDBError(err)
	}
	return m.ID, nil
}

// AppendEmbedding adds one embedding after the existing ones
func (s *Store) AppendEmbedding(ctx context.Context, identityID int64, vector []float32) (*database.StoredEmbedding, error) {
	e := &embeddingModel{
		IdentityID: identityID,
		Vector:     database.EncodeVector(vector),
		CreatedAt:  time.Now().UTC(),
	}

	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		exists, err := tx.NewSelect().Model((*identityModel)(nil)).Where("id = ?", identityID).Exists(ctx)
		if err != nil {
			return err
		}
		if !exists {
			return fmt.Errorf("identity %d: %w", identityID, database.ErrNotFound)
		}

		var next sql.NullInt64
		if err := tx.NewRaw("SELECT MAX(seq) + 1 FROM embeddings WHERE identity_id = ?", identityID).Scan(ctx, &next); err != nil {
			return err
		}
		e.Seq = int(next.Int64)

		_, err = tx.NewInsert().Model(e).Returning("id").Exec(ctx)
		return err
	})
	if err != nil {
		return nil, database.MapDBError(err)
	}

	stored := e.toStored()
	return &stored, nil
}

// SetCredential sets a PIN or ID number on an identity
func (s *Store) SetCredential(ctx context.Context, identityID int64, kind database.CredentialKind, value string) error {
	res, err := s.db.NewUpdate().Model((*identityModel)(nil)).
		Set("? = ?", bun.Ident(credentialColumn(kind)), nullString(value)).
		Where("id = ?", identityID).
		Exec(ctx)
	return s.checkUpdated(ctx, res, err, identityID)
}

// SetAdmin grants or revokes the admin flag
func (s *Store) SetAdmin(ctx context.Context, identityID int64, admin bool) error {
	res, err := s.db.NewUpdate().Model((*identityModel)(nil)).
		Set("is_admin = ?", admin).
		Where("id = ?", identityID).
		Exec(ctx)
	return s.checkUpdated(ctx, res, err, identityID)
}

// checkUpdated maps an UPDATE outcome. MySQL reports zero affected rows when
// the value did not change, so a miss is confirmed with a lookup.
func (s *Store) checkUpdated(ctx context.Context, res sql.Result, err error, identityID int64) error {
	if err != nil {
		return database.MapDBError(err)
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		return nil
	}
	exists, err := s.db.NewSelect().Model((*identityModel)(nil)).Where("id = ?", identityID).Exists(ctx)
	if err != nil {
		return database.MapDBError(err)
	}
	if !exists {
		return fmt.Errorf("identity %d: %w", identityID, database.ErrNotFound)
	}
	return nil
}
