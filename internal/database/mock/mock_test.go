package mock

import (
	"context"
	"errors"
	"testing"

	"github.com/kozaktomas/kiosk/internal/database"
	"github.com/kozaktomas/kiosk/internal/database/storetest"
)

func TestMockStore_Contract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) database.Store { return NewMockStore() })
}

func TestMockStore_GetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	s := NewMockStore()
	id, _ := s.CreateIdentity(ctx, &database.Identity{DisplayName: "Ana", Embeddings: [][]float32{{1}}})

	got, _ := s.GetIdentity(ctx, id)
	got.Embeddings[0][0] = 42
	got.DisplayName = "changed"

	again, _ := s.GetIdentity(ctx, id)
	if again.Embeddings[0][0] != 1 || again.DisplayName != "Ana" {
		t.Errorf("stored identity was mutated through returned copy")
	}

	missing, err := s.GetIdentity(ctx, 404)
	if err != nil || missing != nil {
		t.Errorf("expected nil, nil for missing identity, got %v, %v", missing, err)
	}
}

func TestMockStore_ErrorInjection(t *testing.T) {
	ctx := context.Background()
	injected := errors.New("boom")
	s := NewMockStore()
	s.InsertAttendanceError = injected
	s.ListIdentitiesError = injected

	if err := s.InsertAttendance(ctx, &database.AttendanceRecord{IdentityID: 1}); !errors.Is(err, injected) {
		t.Errorf("expected injected error, got %v", err)
	}
	if s.InsertAttendanceCalls != 1 {
		t.Errorf("expected 1 call, got %d", s.InsertAttendanceCalls)
	}
	if _, err := s.ListIdentities(ctx); !errors.Is(err, injected) {
		t.Errorf("expected injected error, got %v", err)
	}
}
