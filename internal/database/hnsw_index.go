package database

import (
	"bytes"
	"encoding/gob"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/coder/hnsw"
)

// HNSWIndexMetadata stores metadata for validating cached HNSW indexes.
type HNSWIndexMetadata struct {
	EmbeddingCount int64     `json:"embedding_count"`
	MaxEmbeddingID int64     `json:"max_embedding_id"`
	BuildTime      time.Time `json:"build_time"`
	Version        int       `json:"version"`
}

const hnswMetadataVersion = 1

// HNSWIndex wraps the HNSW graph for face descriptor search.
// Nodes are keyed by embedding ID and carry the owning identity in idToEmbedding.
type HNSWIndex struct {
	graph         *hnsw.Graph[int64]
	idToEmbedding map[int64]*StoredEmbedding
	mu            sync.RWMutex
}

// NewHNSWIndex creates a new empty HNSW index.
func NewHNSWIndex() *HNSWIndex {
	return &HNSWIndex{
		idToEmbedding: make(map[int64]*StoredEmbedding),
	}
}

func newGraph() *hnsw.Graph[int64] {
	g := hnsw.NewGraph[int64]()
	g.M = HNSWMaxNeighbors
	g.Ml = 1.0 / float64(HNSWMaxNeighbors) // Standard HNSW formula
	g.EfSearch = HNSWEfSearch
	g.Distance = hnsw.EuclideanDistance
	return g
}

// BuildFromEmbeddings builds the index from a slice of embeddings.
func (h *HNSWIndex) BuildFromEmbeddings(embeddings []StoredEmbedding) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.idToEmbedding = make(map[int64]*StoredEmbedding, len(embeddings))
	if len(embeddings) == 0 {
		h.graph = nil
		return
	}

	g := newGraph()
	for i := range embeddings {
		emb := &embeddings[i]
		if len(emb.Vector) == 0 {
			continue
		}
		g.Add(hnsw.MakeNode(emb.ID, emb.Vector))
		h.idToEmbedding[emb.ID] = emb
	}
	h.graph = g
}

// Add adds a single embedding to the index.
func (h *HNSWIndex) Add(emb StoredEmbedding) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(emb.Vector) == 0 {
		return
	}
	if h.graph == nil {
		h.graph = newGraph()
	}
	h.graph.Add(hnsw.MakeNode(emb.ID, emb.Vector))
	h.idToEmbedding[emb.ID] = &emb
}

// Search finds the k nearest embeddings to the query.
// Distances are recomputed with EuclideanDistance so callers can compare them to a threshold.
func (h *HNSWIndex) Search(query []float32, k int) ([]StoredEmbedding, []float64, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.graph == nil {
		return nil, nil, errors.New("index not initialized")
	}

	neighbors := h.graph.Search(query, k)
	results := make([]StoredEmbedding, 0, len(neighbors))
	distances := make([]float64, 0, len(neighbors))
	for _, n := range neighbors {
		emb, ok := h.idToEmbedding[n.Key]
		if !ok {
			continue
		}
		results = append(results, *emb)
		distances = append(distances, EuclideanDistance(query, n.Value))
	}
	return results, distances, nil
}

// Count returns the number of indexed embeddings.
func (h *HNSWIndex) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.idToEmbedding)
}

// IsEmpty returns true if the index has no graph data loaded.
func (h *HNSWIndex) IsEmpty() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.graph == nil
}

// Metadata describes the current index contents for staleness detection.
func (h *HNSWIndex) Metadata() HNSWIndexMetadata {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var maxID int64
	for id := range h.idToEmbedding {
		maxID = max(maxID, id)
	}
	return HNSWIndexMetadata{
		EmbeddingCount: int64(len(h.idToEmbedding)),
		MaxEmbeddingID: maxID,
		BuildTime:      time.Now(),
		Version:        hnswMetadataVersion,
	}
}

// Save persists the graph, its metadata (.meta) and the embedding rows (.embeddings) to disk.
func (h *HNSWIndex) Save(path string) error {
	meta := h.Metadata()

	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.graph == nil {
		// Remove existing files if index is empty (best-effort cleanup).
		_ = os.Remove(path)
		_ = os.Remove(path + ".meta")
		_ = os.Remove(path + ".embeddings")
		return nil
	}

	f, err := os.Create(path) //nolint:gosec // path is from trusted config
	if err != nil {
		return fmt.Errorf("failed to create HNSW index file: %w", err)
	}
	if err := h.graph.Export(f); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to export HNSW graph: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing HNSW index file: %w", err)
	}

	metaData, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	if err := os.WriteFile(path+".meta", metaData, 0600); err != nil {
		return fmt.Errorf("failed to write metadata file: %w", err)
	}

	embeddings := make([]StoredEmbedding, 0, len(h.idToEmbedding))
	for _, emb := range h.idToEmbedding {
		embeddings = append(embeddings, *emb)
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(embeddings); err != nil {
		return fmt.Errorf("failed to encode embeddings: %w", err)
	}
	if err := os.WriteFile(path+".embeddings", buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("failed to write embeddings file: %w", err)
	}
	return nil
}

// LoadHNSWMetadata loads metadata from a separate .meta file.
func LoadHNSWMetadata(path string) (HNSWIndexMetadata, error) {
	var metadata HNSWIndexMetadata

	data, err := os.ReadFile(path + ".meta") //nolint:gosec // path is from trusted config
	if err != nil {
		return metadata, fmt.Errorf("failed to read metadata file: %w", err)
	}
	if err := json.Unmarshal(data, &metadata); err != nil {
		return metadata, fmt.Errorf("failed to unmarshal metadata: %w", err)
	}
	return metadata, nil
}

// Load replaces the index contents with the graph and embedding rows saved at path.
func (h *HNSWIndex) Load(path string) error {
	f, err := os.Open(path) //nolint:gosec // path is from trusted config
	if err != nil {
		return fmt.Errorf("failed to open HNSW index: %w", err)
	}
	defer f.Close()

	g := newGraph()
	if err := g.Import(f); err != nil {
		return fmt.Errorf("failed to import HNSW graph: %w", err)
	}

	data, err := os.ReadFile(path + ".embeddings") //nolint:gosec // path is from trusted config
	if err != nil {
		return fmt.Errorf("failed to read embeddings file: %w", err)
	}
	var embeddings []StoredEmbedding
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&embeddings); err != nil {
		return fmt.Errorf("failed to decode embeddings: %w", err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.graph = g
	h.idToEmbedding = make(map[int64]*StoredEmbedding, len(embeddings))
	for i := range embeddings {
		h.idToEmbedding[embeddings[i].ID] = &embeddings[i]
	}
	return nil
}
