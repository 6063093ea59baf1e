package database

import (
	"time"
)

// Method is how an attendance event was authenticated.
type Method string

const (
	MethodFace     Method = "face"
	MethodPIN      Method = "pin"
	MethodCedula   Method = "cedula"   // ID number
	MethodRegister Method = "register" // first check-in at enrollment time
)

// Valid reports whether m is one of the known methods.
func (m Method) Valid() bool {
	switch m {
	case MethodFace, MethodPIN, MethodCedula, MethodRegister:
		return true
	}
	return false
}

// CredentialKind names an exact-match credential column.
type CredentialKind string

const (
	CredentialPIN      CredentialKind = "pin"
	CredentialIDNumber CredentialKind = "idNumber"
)

// ParseCredentialKind accepts the spellings used by the CLI and HTTP API.
func ParseCredentialKind(s string) (CredentialKind, bool) {
	switch s {
	case "pin", "PIN":
		return CredentialPIN, true
	case "id", "idNumber", "id_number", "cedula":
		return CredentialIDNumber, true
	}
	return "", false
}

// MethodFor returns the attendance method recorded for a credential match.
func (k CredentialKind) MethodFor() Method {
	if k == CredentialPIN {
		return MethodPIN
	}
	return MethodCedula
}

// Identity is an enrolled person. Embeddings are kept in enrollment order.
type Identity struct {
	ID          int64
	DisplayName string
	IDNumber    string // empty when not set
	PIN         string // empty when not set
	IsAdmin     bool
	Embeddings  [][]float32
	CreatedAt   time.Time
}

// Credential returns the value of the given credential kind.
func (i *Identity) Credential(kind CredentialKind) string {
	if kind == CredentialPIN {
		return i.PIN
	}
	return i.IDNumber
}

// StoredEmbedding is one enrolled face sample.
type StoredEmbedding struct {
	ID         int64
	IdentityID int64
	Seq        int // position within the identity, starting at 0
	Vector     []float32
	CreatedAt  time.Time
}

// AttendanceRecord is a single access event. IdentityID is copied by value and
// may refer to an identity that no longer exists.
type AttendanceRecord struct {
	ID         int64
	IdentityID int64
	Timestamp  time.Time
	Method     Method
}
