package database

// DefaultEmbeddingDim is the face descriptor length produced by the embedding service.
const DefaultEmbeddingDim = 128

// HNSW index parameters for 128-dim face descriptors
const (
	// HNSWMaxNeighbors (M) is the maximum number of neighbors per node.
	// Higher values improve recall but increase memory and build time.
	HNSWMaxNeighbors = 16

	// HNSWEfSearch is the search candidate pool size.
	HNSWEfSearch = 64

	// HNSWSearchMultiplier is the factor to request more candidates from HNSW
	// so that every identity near the query is represented after re-ranking.
	HNSWSearchMultiplier = 4
)
