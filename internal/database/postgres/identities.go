package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"

	"github.com/kozaktomas/kiosk/internal/database"
)

const identityColumns = `id, display_name, COALESCE(id_number, ''), COALESCE(pin, ''), is_admin, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanIdentity(row rowScanner) (*database.Identity, error) {
	var i database.Identity
	if err := row.Scan(&i.ID, &i.DisplayName, &i.IDNumber, &i.PIN, &i.IsAdmin, &i.CreatedAt); err != nil {
		return nil, err
	}
	return &i, nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func credentialColumn(kind database.CredentialKind) string {
	if kind == database.CredentialPIN {
		return "pin"
	}
	return "id_number"
}

// GetIdentity retrieves an identity with its embeddings, returns nil if not found
func (s *Store) GetIdentity(ctx context.Context, id int64) (*database.Identity, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+identityColumns+` FROM identities WHERE id = $1`, id)
	return s.finishIdentity(ctx, row)
}

// FindByCredential performs an exact, case-sensitive lookup
func (s *Store) FindByCredential(ctx context.Context, kind database.CredentialKind, value string) (*database.Identity, error) {
	if value == "" {
		return nil, nil
	}
	query := fmt.Sprintf(`SELECT %s FROM identities WHERE %s = $1`, identityColumns, credentialColumn(kind))
	return s.finishIdentity(ctx, s.pool.QueryRow(ctx, query, value))
}

func (s *Store) finishIdentity(ctx context.Context, row rowScanner) (*database.Identity, error) {
	identity, err := scanIdentity(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, mapError(fmt.Errorf("query identity: %w", err))
	}

	embs, err := s.embeddingsFor(ctx, []int64{identity.ID})
	if err != nil {
		return nil, err
	}
	for _, e := range embs {
		identity.Embeddings = append(identity.Embeddings, e.Vector)
	}
	return identity, nil
}

// embeddingsFor returns the embeddings of the given identities ordered by identity, then sequence
func (s *Store) embeddingsFor(ctx context.Context, ids []int64) ([]database.StoredEmbedding, error) {
	query := `
		SELECT id, identity_id, seq, vector, created_at
		FROM embeddings
		WHERE $1::bigint[] IS NULL OR identity_id = ANY($1)
		ORDER BY identity_id, seq
	`
	var arg any
	if ids != nil {
		arg = pq.Array(ids)
	}

	rows, err := s.pool.Query(ctx, query, arg)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var out []database.StoredEmbedding
	for rows.Next() {
		var e database.StoredEmbedding
		var vec pgvector.Vector
		if err := rows.Scan(&e.ID, &e.IdentityID, &e.Seq, &vec, &e.CreatedAt); err != nil {
			return nil, mapError(fmt.Errorf("scan embedding: %w", err))
		}
		e.Vector = database.DecodeVector(vec)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(fmt.Errorf("iterate embeddings: %w", err))
	}
	return out, nil
}

// ListIdentities returns all identities in insertion order, embeddings included
func (s *Store) ListIdentities(ctx context.Context) ([]database.Identity, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+identityColumns+` FROM identities ORDER BY id`)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var identities []database.Identity
	for rows.Next() {
		identity, err := scanIdentity(rows)
		if err != nil {
			return nil, mapError(fmt.Errorf("scan identity: %w", err))
		}
		identities = append(identities, *identity)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(fmt.Errorf("iterate identities: %w", err))
	}

	embs, err := s.ListEmbeddings(ctx)
	if err != nil {
		return nil, err
	}
	database.GroupEmbeddings(identities, embs)
	return identities, nil
}

// ListEmbeddings returns every stored embedding ordered by identity, then sequence
func (s *Store) ListEmbeddings(ctx context.Context) ([]database.StoredEmbedding, error) {
	return s.embeddingsFor(ctx, nil)
}

// CountIdentities returns the number of enrolled identities
func (s *Store) CountIdentities(ctx context.Context) (int, error) {
	var count int
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM identities").Scan(&count); err != nil {
		return 0, mapError(fmt.Errorf("count identities: %w", err))
	}
	return count, nil
}

// CreateIdentity inserts the identity and its initial embeddings in one transaction
func (s *Store) CreateIdentity(ctx context.Context, identity *database.Identity) (int64, error) {
	createdAt := identity.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	tx, err := s.pool.BeginTx(ctx, nil)
	if err != nil {
		return 0, mapError(err)
	}
	defer tx.Rollback()

	var id int64
	err = tx.QueryRowContext(ctx, `
		INSERT INTO identities (display_name, id_number, pin, is_admin, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`, identity.DisplayName, nullable(identity.IDNumber), nullable(identity.PIN), identity.IsAdmin, createdAt).Scan(&id)
	if err != nil {
		return 0, mapError(fmt.Errorf("insert identity: %w", err))
	}

	for seq, vec := range identity.Embeddings {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO embeddings (identity_id, seq, vector, created_at) VALUES ($1, $2, $3, $4)`,
			id, seq, database.EncodeVector(vec), createdAt)
		if err != nil {
			return 0, mapError(fmt.Errorf("insert embedding %d: %w", seq, err))
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, mapError(fmt.Errorf("commit identity: %w", err))
	}
	return id, nil
}

// AppendEmbedding adds one embedding after the existing ones
func (s *Store) AppendEmbedding(ctx context.Context, identityID int64, vector []float32) (*database.StoredEmbedding, error) {
	tx, err := s.pool.BeginTx(ctx, nil)
	if err != nil {
		return nil, mapError(err)
	}
	defer tx.Rollback()

	// lock the identity row so concurrent appends get distinct sequence numbers
	var locked int64
	err = tx.QueryRowContext(ctx, `SELECT id FROM identities WHERE id = $1 FOR UPDATE`, identityID).Scan(&locked)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("identity %d: %w", identityID, database.ErrNotFound)
	}
	if err != nil {
		return nil, mapError(err)
	}

	e := database.StoredEmbedding{IdentityID: identityID, Vector: vector}
	err = tx.QueryRowContext(ctx, `
		INSERT INTO embeddings (identity_id, seq, vector)
		VALUES ($1, (SELECT COALESCE(MAX(seq) + 1, 0) FROM embeddings WHERE identity_id = $1), $2)
		RETURNING id, seq, created_at
	`, identityID, database.EncodeVector(vector)).Scan(&e.ID, &e.Seq, &e.CreatedAt)
	if err != nil {
		return nil, mapError(fmt.Errorf("insert embedding: %w", err))
	}

	if err := tx.Commit(); err != nil {
		return nil, mapError(err)
	}
	return &e, nil
}

// SetCredential sets a PIN or ID number on an identity
func (s *Store) SetCredential(ctx context.Context, identityID int64, kind database.CredentialKind, value string) error {
	query := fmt.Sprintf(`UPDATE identities SET %s = $1 WHERE id = $2`, credentialColumn(kind))
	res, err := s.pool.DB().ExecContext(ctx, query, nullable(value), identityID)
	return checkUpdated(res, err, identityID)
}

// SetAdmin grants or revokes the admin flag
func (s *Store) SetAdmin(ctx context.Context, identityID int64, admin bool) error {
	res, err := s.pool.DB().ExecContext(ctx, `UPDATE identities SET is_admin = $1 WHERE id = $2`, admin, identityID)
	return checkUpdated(res, err, identityID)
}

func checkUpdated(res sql.Result, err error, identityID int64) error {
	if err != nil {
		return mapError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return mapError(err)
	}
	if n == 0 {
		return fmt.Errorf("identity %d: %w", identityID, database.ErrNotFound)
	}
	return nil
}
