package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/kozaktomas/kiosk/internal/constants"
	"github.com/kozaktomas/kiosk/internal/database"
	"github.com/kozaktomas/kiosk/internal/embedding"
	"github.com/kozaktomas/kiosk/internal/identity"
)

var identityImportCmd = &cobra.Command{
	Use:   "import <manifest.yaml>",
	Short: "Enroll many people from a YAML manifest",
	Long: `Enroll many people at once. The manifest lists each person with their
credentials and face images; image paths are relative to the manifest.

  people:
    - name: Ana Gómez
      id_number: "10001"
      images: [ana/1.jpg, ana/2.jpg]
    - name: Carmen Ruiz
      generate_pin: true
      admin: true

Face images are sent to the embedding service in parallel.`,
	Args: cobra.ExactArgs(1),
	RunE: runIdentityImport,
}

func init() {
	identityCmd.AddCommand(identityImportCmd)
	identityImportCmd.Flags().Int("concurrency", constants.DefaultImportConcurrency, "Number of people processed in parallel")
}

// importManifest is the YAML document read by identity import.
type importManifest struct {
	People []importPerson `yaml:"people"`
}

type importPerson struct {
	Name        string   `yaml:"name"`
	IDNumber    string   `yaml:"id_number"`
	PIN         string   `yaml:"pin"`
	GeneratePIN bool     `yaml:"generate_pin"`
	Admin       bool     `yaml:"admin"`
	Images      []string `yaml:"images"`
}

// ImportResult summarizes an import run.
type ImportResult struct {
	Success       bool            `json:"success"`
	Created       int             `json:"created"`
	Embeddings    int             `json:"embeddings"`
	SkippedImages int             `json:"skipped_images"`
	Failed        []ImportFailure `json:"failed,omitempty"`
	DurationMs    int64           `json:"duration_ms"`
}

// ImportFailure names a person that could not be enrolled.
type ImportFailure struct {
	Name  string `json:"name"`
	Error string `json:"error"`
}

func loadManifest(path string) (*importManifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}
	var m importManifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing manifest: %w", err)
	}
	if len(m.People) == 0 {
		return nil, errors.New("manifest lists no people")
	}
	return &m, nil
}

// importer enrolls manifest entries. Extraction runs in parallel, store writes are serialized.
type importer struct {
	store     *identity.Store
	extractor embedding.Extractor
	baseDir   string
	onDone    func()

	mu     sync.Mutex
	result ImportResult
}

func (im *importer) run(ctx context.Context, people []importPerson, concurrency int) ImportResult {
	sem := make(chan struct{}, max(concurrency, 1))
	var wg sync.WaitGroup

	for _, p := range people {
		wg.Add(1)
		sem <- struct{}{}
		go func(p importPerson) {
			defer wg.Done()
			defer func() { <-sem }()

			if err := im.enroll(ctx, p); err != nil {
				im.mu.Lock()
				im.result.Failed = append(im.result.Failed, ImportFailure{Name: p.Name, Error: err.Error()})
				im.mu.Unlock()
			}
			if im.onDone != nil {
				im.onDone()
			}
		}(p)
	}
	wg.Wait()

	im.result.Success = len(im.result.Failed) == 0
	return im.result
}

func (im *importer) enroll(ctx context.Context, p importPerson) error {
	var vectors [][]float32
	skipped := 0
	for _, img := range p.Images {
		if !filepath.IsAbs(img) {
			img = filepath.Join(im.baseDir, img)
		}
		vector, err := extractFromFile(ctx, im.extractor, img)
		if errors.Is(err, errNoFace) {
			skipped++
			continue
		}
		if err != nil {
			return err
		}
		vectors = append(vectors, vector)
	}
	if len(p.Images) > 0 && len(vectors) == 0 {
		return errNoFace
	}

	im.mu.Lock()
	defer im.mu.Unlock()
	im.result.SkippedImages += skipped

	e := identity.Enrollment{DisplayName: p.Name, IDNumber: p.IDNumber, PIN: p.PIN, IsAdmin: p.Admin}
	if p.GeneratePIN && e.PIN == "" {
		pin, err := im.store.GenerateUniqueIdentifier(ctx, database.CredentialPIN)
		if err != nil {
			return err
		}
		e.PIN = pin
	}
	if len(vectors) > 0 {
		e.Embedding = vectors[0]
	}
	id, err := im.store.CreateIdentity(ctx, e)
	if err != nil {
		return err
	}
	im.result.Created++
	im.result.Embeddings += min(1, len(vectors))

	for _, v := range vectors[min(1, len(vectors)):] {
		if _, err := im.store.AppendEmbedding(ctx, id, v); err != nil {
			return fmt.Errorf("identity %d created, extra face sample failed: %w", id, err)
		}
		im.result.Embeddings++
	}
	return nil
}

func runIdentityImport(cmd *cobra.Command, args []string) error {
	manifest, err := loadManifest(args[0])
	if err != nil {
		return err
	}
	ctx := context.Background()
	a, err := openApp(ctx, false)
	if err != nil {
		return err
	}
	defer a.Close(ctx)

	startTime := time.Now()
	im := &importer{
		store:     a.identities,
		extractor: embedding.NewClientFromConfig(&a.cfg.Embedding),
		baseDir:   filepath.Dir(args[0]),
	}

	var bar *progressbar.ProgressBar
	if !jsonOutput {
		fmt.Printf("Importing %d people\n\n", len(manifest.People))
		bar = progressbar.NewOptions(len(manifest.People),
			progressbar.OptionSetDescription("Enrolling"),
			progressbar.OptionShowCount(),
			progressbar.OptionShowIts(),
			progressbar.OptionSetItsString("people"),
			progressbar.OptionShowElapsedTimeOnFinish(),
			progressbar.OptionSetPredictTime(true),
			progressbar.OptionFullWidth(),
		)
		im.onDone = func() { bar.Add(1) }
	}

	result := im.run(ctx, manifest.People, mustGetInt(cmd, "concurrency"))
	result.DurationMs = time.Since(startTime).Milliseconds()

	if jsonOutput {
		return outputJSON(result)
	}

	fmt.Println("\n\nImport complete!")
	fmt.Printf("  Created:        %d\n", result.Created)
	fmt.Printf("  Face samples:   %d\n", result.Embeddings)
	if result.SkippedImages > 0 {
		fmt.Printf("  Skipped images: %d (no face)\n", result.SkippedImages)
	}
	for _, f := range result.Failed {
		fmt.Printf("  Failed:         %s: %s\n", f.Name, f.Error)
	}
	fmt.Printf("  Duration:       %s\n", formatDuration(time.Since(startTime)))
	if len(result.Failed) > 0 {
		return fmt.Errorf("%d of %d people failed to import", len(result.Failed), len(manifest.People))
	}
	return nil
}

func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
}
