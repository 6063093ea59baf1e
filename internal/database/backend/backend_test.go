package backend

import (
	"context"
	"testing"

	"github.com/kozaktomas/kiosk/internal/config"
)

func TestOpen_SQLiteMemory(t *testing.T) {
	store, err := Open(context.Background(), &config.DatabaseConfig{Driver: "sqlite", URL: ":memory:", MaxOpenConns: 1, MaxIdleConns: 1})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer store.Close()

	n, err := store.CountIdentities(context.Background())
	if err != nil {
		t.Fatalf("CountIdentities: %v", err)
	}
	if n != 0 {
		t.Errorf("expected empty store, got %d identities", n)
	}
}

func TestOpen_UnknownDriver(t *testing.T) {
	if _, err := Open(context.Background(), &config.DatabaseConfig{Driver: "oracle", URL: "x"}); err == nil {
		t.Error("expected error for unknown driver")
	}
}
