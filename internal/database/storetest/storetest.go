// Package storetest holds behavior tests shared by every database.Store backend.
package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kozaktomas/kiosk/internal/database"
)

// Factory returns an empty store. Cleanup is registered on t by the factory.
type Factory func(t *testing.T) database.Store

// Run exercises the database.Store contract against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("CreateAndGet", func(t *testing.T) { testCreateAndGet(t, newStore(t)) })
	t.Run("DuplicateCredentials", func(t *testing.T) { testDuplicateCredentials(t, newStore(t)) })
	t.Run("FindByCredential", func(t *testing.T) { testFindByCredential(t, newStore(t)) })
	t.Run("AppendEmbedding", func(t *testing.T) { testAppendEmbedding(t, newStore(t)) })
	t.Run("ListOrder", func(t *testing.T) { testListOrder(t, newStore(t)) })
	t.Run("SetCredentialAndAdmin", func(t *testing.T) { testSetCredentialAndAdmin(t, newStore(t)) })
	t.Run("Attendance", func(t *testing.T) { testAttendance(t, newStore(t)) })
}

func vec(vals ...float32) []float32 { return vals }

func testCreateAndGet(t *testing.T, s database.Store) {
	ctx := context.Background()

	id, err := s.CreateIdentity(ctx, &database.Identity{
		DisplayName: "Ana",
		IDNumber:    "10001",
		PIN:         "1234",
		Embeddings:  [][]float32{vec(0.1, 0.2, 0.3)},
	})
	if err != nil {
		t.Fatalf("CreateIdentity: %v", err)
	}
	if id <= 0 {
		t.Fatalf("expected positive id, got %d", id)
	}

	got, err := s.GetIdentity(ctx, id)
	if err != nil {
		t.Fatalf("GetIdentity: %v", err)
	}
	if got == nil {
		t.Fatal("expected identity, got nil")
	}
	if got.DisplayName != "Ana" || got.IDNumber != "10001" || got.PIN != "1234" {
		t.Errorf("unexpected identity: %+v", got)
	}
	if got.IsAdmin {
		t.Error("new identity should not be admin")
	}
	if len(got.Embeddings) != 1 || len(got.Embeddings[0]) != 3 {
		t.Fatalf("unexpected embeddings: %v", got.Embeddings)
	}
	if got.Embeddings[0][1] != 0.2 {
		t.Errorf("expected 0.2, got %v", got.Embeddings[0][1])
	}

	missing, err := s.GetIdentity(ctx, id+1000)
	if err != nil {
		t.Fatalf("GetIdentity missing: %v", err)
	}
	if missing != nil {
		t.Errorf("expected nil for missing identity, got %+v", missing)
	}

	n, err := s.CountIdentities(ctx)
	if err != nil {
		t.Fatalf("CountIdentities: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 identity, got %d", n)
	}
}

func testDuplicateCredentials(t *testing.T, s database.Store) {
	ctx := context.Background()

	if _, err := s.CreateIdentity(ctx, &database.Identity{DisplayName: "Ana", IDNumber: "10001", PIN: "1234"}); err != nil {
		t.Fatalf("CreateIdentity: %v", err)
	}
	// identities without credentials never collide
	for _, name := range []string{"NoCred1", "NoCred2"} {
		if _, err := s.CreateIdentity(ctx, &database.Identity{DisplayName: name}); err != nil {
			t.Fatalf("CreateIdentity %s: %v", name, err)
		}
	}

	tests := []struct {
		name     string
		identity database.Identity
	}{
		{"same pin", database.Identity{DisplayName: "Luis", PIN: "1234"}},
		{"same id number", database.Identity{DisplayName: "Luis", IDNumber: "10001"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.CreateIdentity(ctx, &tt.identity)
			if !errors.Is(err, database.ErrDuplicateCredential) {
				t.Errorf("expected ErrDuplicateCredential, got %v", err)
			}
		})
	}

	n, _ := s.CountIdentities(ctx)
	if n != 3 {
		t.Errorf("expected 3 identities after rejected inserts, got %d", n)
	}
}

func testFindByCredential(t *testing.T, s database.Store) {
	ctx := context.Background()

	anaID, _ := s.CreateIdentity(ctx, &database.Identity{DisplayName: "Ana", PIN: "1234"})
	luisID, _ := s.CreateIdentity(ctx, &database.Identity{DisplayName: "Luis", IDNumber: "55555"})

	tests := []struct {
		name   string
		kind   database.CredentialKind
		value  string
		wantID int64
	}{
		{"pin match", database.CredentialPIN, "1234", anaID},
		{"pin miss", database.CredentialPIN, "9999", 0},
		{"id number match", database.CredentialIDNumber, "55555", luisID},
		{"pin is not an id number", database.CredentialIDNumber, "1234", 0},
		{"empty value", database.CredentialPIN, "", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.FindByCredential(ctx, tt.kind, tt.value)
			if err != nil {
				t.Fatalf("FindByCredential: %v", err)
			}
			if tt.wantID == 0 {
				if got != nil {
					t.Errorf("expected no match, got %+v", got)
				}
				return
			}
			if got == nil || got.ID != tt.wantID {
				t.Errorf("expected identity %d, got %+v", tt.wantID, got)
			}
		})
	}
}

func testAppendEmbedding(t *testing.T, s database.Store) {
	ctx := context.Background()

	id, _ := s.CreateIdentity(ctx, &database.Identity{DisplayName: "Ana", Embeddings: [][]float32{vec(1, 0)}})

	emb, err := s.AppendEmbedding(ctx, id, vec(0, 1))
	if err != nil {
		t.Fatalf("AppendEmbedding: %v", err)
	}
	if emb.Seq != 1 || emb.IdentityID != id {
		t.Errorf("unexpected stored embedding: %+v", emb)
	}

	got, _ := s.GetIdentity(ctx, id)
	if len(got.Embeddings) != 2 {
		t.Fatalf("expected 2 embeddings, got %d", len(got.Embeddings))
	}
	if got.Embeddings[0][0] != 1 || got.Embeddings[1][1] != 1 {
		t.Errorf("embeddings out of order: %v", got.Embeddings)
	}

	if _, err := s.AppendEmbedding(ctx, id+1000, vec(1, 1)); !errors.Is(err, database.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func testListOrder(t *testing.T, s database.Store) {
	ctx := context.Background()

	names := []string{"Carmen", "Ana", "Bruno"}
	ids := make([]int64, len(names))
	for i, name := range names {
		id, err := s.CreateIdentity(ctx, &database.Identity{DisplayName: name, Embeddings: [][]float32{vec(float32(i), 0)}})
		if err != nil {
			t.Fatalf("CreateIdentity %s: %v", name, err)
		}
		ids[i] = id
	}
	if _, err := s.AppendEmbedding(ctx, ids[0], vec(9, 9)); err != nil {
		t.Fatalf("AppendEmbedding: %v", err)
	}

	all, err := s.ListIdentities(ctx)
	if err != nil {
		t.Fatalf("ListIdentities: %v", err)
	}
	if len(all) != len(names) {
		t.Fatalf("expected %d identities, got %d", len(names), len(all))
	}
	for i, identity := range all {
		if identity.DisplayName != names[i] {
			t.Errorf("position %d: expected %s, got %s", i, names[i], identity.DisplayName)
		}
	}
	if len(all[0].Embeddings) != 2 {
		t.Errorf("expected 2 embeddings on first identity, got %d", len(all[0].Embeddings))
	}

	embs, err := s.ListEmbeddings(ctx)
	if err != nil {
		t.Fatalf("ListEmbeddings: %v", err)
	}
	wantOwners := []int64{ids[0], ids[0], ids[1], ids[2]}
	if len(embs) != len(wantOwners) {
		t.Fatalf("expected %d embeddings, got %d", len(wantOwners), len(embs))
	}
	for i, e := range embs {
		if e.IdentityID != wantOwners[i] {
			t.Errorf("embedding %d: expected owner %d, got %d", i, wantOwners[i], e.IdentityID)
		}
	}
}

func testSetCredentialAndAdmin(t *testing.T, s database.Store) {
	ctx := context.Background()

	anaID, _ := s.CreateIdentity(ctx, &database.Identity{DisplayName: "Ana", PIN: "1234"})
	luisID, _ := s.CreateIdentity(ctx, &database.Identity{DisplayName: "Luis"})

	if err := s.SetCredential(ctx, luisID, database.CredentialPIN, "1234"); !errors.Is(err, database.ErrDuplicateCredential) {
		t.Errorf("expected ErrDuplicateCredential, got %v", err)
	}
	if err := s.SetCredential(ctx, luisID, database.CredentialIDNumber, "77777"); err != nil {
		t.Fatalf("SetCredential: %v", err)
	}
	got, _ := s.FindByCredential(ctx, database.CredentialIDNumber, "77777")
	if got == nil || got.ID != luisID {
		t.Errorf("expected Luis by id number, got %+v", got)
	}

	if err := s.SetAdmin(ctx, anaID, true); err != nil {
		t.Fatalf("SetAdmin: %v", err)
	}
	// setting the same value again is not an error
	if err := s.SetAdmin(ctx, anaID, true); err != nil {
		t.Fatalf("SetAdmin repeat: %v", err)
	}
	ana, _ := s.GetIdentity(ctx, anaID)
	if !ana.IsAdmin {
		t.Error("expected Ana to be admin")
	}

	if err := s.SetAdmin(ctx, luisID+1000, true); !errors.Is(err, database.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func testAttendance(t *testing.T, s database.Store) {
	ctx := context.Background()
	base := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

	records := []database.AttendanceRecord{
		{IdentityID: 1, Timestamp: base, Method: database.MethodFace},
		{IdentityID: 2, Timestamp: base.Add(time.Hour), Method: database.MethodPIN},
		{IdentityID: 1, Timestamp: base.Add(2 * time.Hour), Method: database.MethodCedula},
		// dangling reference is stored as is
		{IdentityID: 404, Timestamp: base.Add(3 * time.Hour), Method: database.MethodRegister},
	}
	var lastID int64
	for i := range records {
		if err := s.InsertAttendance(ctx, &records[i]); err != nil {
			t.Fatalf("InsertAttendance: %v", err)
		}
		if records[i].ID <= lastID {
			t.Errorf("record IDs not increasing: %d after %d", records[i].ID, lastID)
		}
		lastID = records[i].ID
	}

	all, err := s.ListAttendance(ctx)
	if err != nil {
		t.Fatalf("ListAttendance: %v", err)
	}
	if len(all) != len(records) {
		t.Fatalf("expected %d records, got %d", len(records), len(all))
	}
	for i, r := range all {
		if r.Method != records[i].Method || r.IdentityID != records[i].IdentityID {
			t.Errorf("record %d: expected %+v, got %+v", i, records[i], r)
		}
		if !r.Timestamp.Equal(records[i].Timestamp) {
			t.Errorf("record %d: expected timestamp %v, got %v", i, records[i].Timestamp, r.Timestamp)
		}
	}

	forAna, err := s.ListAttendanceForIdentity(ctx, 1)
	if err != nil {
		t.Fatalf("ListAttendanceForIdentity: %v", err)
	}
	if len(forAna) != 2 || forAna[0].Method != database.MethodFace || forAna[1].Method != database.MethodCedula {
		t.Errorf("unexpected records for identity 1: %+v", forAna)
	}

	removed, err := s.PurgeAttendance(ctx, base.Add(90*time.Minute))
	if err != nil {
		t.Fatalf("PurgeAttendance: %v", err)
	}
	if removed != 2 {
		t.Errorf("expected 2 purged, got %d", removed)
	}
	n, _ := s.CountAttendance(ctx)
	if n != 2 {
		t.Errorf("expected 2 remaining, got %d", n)
	}
}
