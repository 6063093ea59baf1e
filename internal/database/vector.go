package database

import (
	"github.com/pgvector/pgvector-go"
)

// EncodeVector wraps a descriptor for storage. pgvector.Vector implements
// driver.Valuer as the "[1,2,3]" text literal, which is also how sqlite and
// mysql store it in a TEXT column.
func EncodeVector(v []float32) pgvector.Vector {
	return pgvector.NewVector(v)
}

// DecodeVector returns the descriptor held by a scanned vector.
func DecodeVector(v pgvector.Vector) []float32 {
	s := v.Slice()
	if s == nil {
		return []float32{}
	}
	return s
}

// GroupEmbeddings attaches embeddings to their identities, preserving the
// order in which they are given.
func GroupEmbeddings(identities []Identity, embeddings []StoredEmbedding) {
	byID := make(map[int64]int, len(identities))
	for i := range identities {
		byID[identities[i].ID] = i
		identities[i].Embeddings = nil
	}
	for _, e := range embeddings {
		if idx, ok := byID[e.IdentityID]; ok {
			identities[idx].Embeddings = append(identities[idx].Embeddings, e.Vector)
		}
	}
}
