package database

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrDuplicateCredential is returned when a PIN or ID number is already used by another identity.
	ErrDuplicateCredential = errors.New("duplicate credential")
	// ErrNotFound is returned when an operation references a missing identity.
	ErrNotFound = errors.New("not found")
	// ErrStorage wraps failures of the underlying database.
	ErrStorage = errors.New("storage failure")
	// ErrInvalidEmbedding is returned for embeddings of the wrong dimension.
	ErrInvalidEmbedding = errors.New("invalid embedding")
	// ErrInvalidCredential is returned for malformed PINs or ID numbers.
	ErrInvalidCredential = errors.New("invalid credential")
)

// MapDBError inspects low-level driver errors and maps unique constraint
// violations to ErrDuplicateCredential. Everything else is wrapped in ErrStorage.
// String based so this package does not import the SQL drivers.
func MapDBError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrDuplicateCredential) || errors.Is(err, ErrNotFound) || errors.Is(err, ErrStorage) {
		return err
	}
	le := strings.ToLower(err.Error())
	// MySQL duplicate entry (1062), Postgres unique violation (23505), SQLite unique constraint
	if strings.Contains(le, "duplicate") || strings.Contains(le, "unique") || strings.Contains(le, "23505") || strings.Contains(le, "1062") {
		return fmt.Errorf("%w: %v", ErrDuplicateCredential, err)
	}
	return fmt.Errorf("%w: %v", ErrStorage, err)
}
