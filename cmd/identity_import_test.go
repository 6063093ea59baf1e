package cmd

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/kozaktomas/kiosk/internal/database/mock"
	"github.com/kozaktomas/kiosk/internal/identity"
)

// fileExtractor returns the embedding registered for a file's contents, nil when unknown.
type fileExtractor map[string][]float32

func (f fileExtractor) Extract(ctx context.Context, frame []byte) ([]float32, error) {
	return f[string(frame)], nil
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
}

func TestLoadManifest(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "people.yaml", `
people:
  - name: Ana
    id_number: "10001"
    images: [ana.jpg]
  - name: Carmen
    generate_pin: true
    admin: true
`)
	m, err := loadManifest(filepath.Join(dir, "people.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if len(m.People) != 2 || m.People[0].IDNumber != "10001" || !m.People[1].Admin || !m.People[1].GeneratePIN {
		t.Errorf("unexpected manifest: %+v", m)
	}

	writeFile(t, dir, "empty.yaml", "people: []\n")
	if _, err := loadManifest(filepath.Join(dir, "empty.yaml")); err == nil {
		t.Error("expected an error for a manifest without people")
	}
}

func TestImporter_Run(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "ana1.jpg", "ana-1")
	writeFile(t, dir, "ana2.jpg", "ana-2")
	writeFile(t, dir, "blank.jpg", "blank")
	writeFile(t, dir, "luis.jpg", "blank")

	repo := mock.NewMockStore()
	store := identity.NewStore(repo, identity.Options{EmbeddingDim: 2, PINLength: 4, IDNumberLength: 5})
	done := 0
	im := &importer{
		store:     store,
		extractor: fileExtractor{"ana-1": {0, 0}, "ana-2": {0.1, 0}},
		baseDir:   dir,
		onDone:    func() { done++ },
	}

	people := []importPerson{
		{Name: "Ana", IDNumber: "10001", Images: []string{"ana1.jpg", "blank.jpg", "ana2.jpg"}},
		{Name: "Carmen", GeneratePIN: true, Admin: true},
		{Name: "Luis", Images: []string{"luis.jpg"}},
		{Name: "Rosa", IDNumber: "10001"},
	}
	// One worker keeps the order deterministic for the duplicate check.
	result := im.run(context.Background(), people, 1)

	if result.Created != 2 || result.Embeddings != 2 || result.SkippedImages != 1 {
		t.Errorf("unexpected result: %+v", result)
	}
	if result.Success || len(result.Failed) != 2 {
		t.Fatalf("expected Luis and Rosa to fail, got %+v", result.Failed)
	}
	if done != len(people) {
		t.Errorf("progress callback ran %d times, want %d", done, len(people))
	}

	all, err := store.AllIdentities(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 || len(all[0].Embeddings) != 2 || len(all[1].PIN) != 4 || !all[1].IsAdmin {
		t.Errorf("unexpected identities: %+v", all)
	}
}

func TestImporter_RunExtraSampleFails(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "ana1.jpg", "ana-1")
	writeFile(t, dir, "ana2.jpg", "ana-2")
	writeFile(t, dir, "ana3.jpg", "ana-3")

	repo := mock.NewMockStore()
	repo.AppendEmbeddingError = errors.New("disk full")
	store := identity.NewStore(repo, identity.Options{EmbeddingDim: 2, PINLength: 4, IDNumberLength: 5})
	im := &importer{
		store:     store,
		extractor: fileExtractor{"ana-1": {0, 0}, "ana-2": {0.1, 0}, "ana-3": {0, 0.1}},
		baseDir:   dir,
	}

	result := im.run(context.Background(), []importPerson{
		{Name: "Ana", Images: []string{"ana1.jpg", "ana2.jpg", "ana3.jpg"}},
	}, 1)

	if result.Created != 1 || result.Embeddings != 1 {
		t.Errorf("expected 1 identity with 1 stored sample, got %+v", result)
	}
	if result.Success || len(result.Failed) != 1 {
		t.Errorf("expected the failed sample to be reported, got %+v", result.Failed)
	}
}

func TestParseWhen(t *testing.T) {
	tests := []struct {
		in      string
		wantErr bool
		zero    bool
	}{
		{"", false, true},
		{"2026-03-01", false, false},
		{"2026-03-01T08:00:00Z", false, false},
		{"yesterday", true, false},
	}
	for _, tt := range tests {
		got, err := parseWhen(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseWhen(%q) error = %v", tt.in, err)
			continue
		}
		if !tt.wantErr && got.IsZero() != tt.zero {
			t.Errorf("parseWhen(%q) = %v", tt.in, got)
		}
	}
}
