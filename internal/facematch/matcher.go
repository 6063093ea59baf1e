// Package facematch resolves a face embedding or an exact credential to an enrolled identity.
package facematch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"math"

	"github.com/kozaktomas/kiosk/internal/database"
)

// DefaultThreshold is the maximum Euclidean distance accepted as the same person.
const DefaultThreshold = 0.6

// Match is a resolved identity.
type Match struct {
	Identity database.Identity
	Distance float64 // 0 for credential matches
	Method   database.Method
}

// Index narrows face search to nearby candidates. database.HNSWIndex implements it.
type Index interface {
	BuildFromEmbeddings(embeddings []database.StoredEmbedding)
	Add(emb database.StoredEmbedding)
	Search(query []float32, k int) ([]database.StoredEmbedding, []float64, error)
	Count() int
}

// Matcher holds no state between calls apart from the optional index.
type Matcher struct {
	repo      database.IdentityReader
	threshold float64
	dim       int
	index     Index
	logger    *slog.Logger
}

// Option configures a Matcher.
type Option func(*Matcher)

// WithThreshold sets the default threshold used when MatchFace is given a non-positive one.
func WithThreshold(threshold float64) Option {
	return func(m *Matcher) {
		if threshold > 0 {
			m.threshold = threshold
		}
	}
}

// WithDimension makes MatchFace treat inputs of any other length as a detection failure.
func WithDimension(dim int) Option {
	return func(m *Matcher) { m.dim = dim }
}

// WithIndex routes face search through an approximate index with exact re-ranking.
func WithIndex(index Index) Option {
	return func(m *Matcher) { m.index = index }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Matcher) { m.logger = logger }
}

// NewMatcher creates a matcher over the identity store.
func NewMatcher(repo database.IdentityReader, opts ...Option) *Matcher {
	m := &Matcher{
		repo:      repo,
		threshold: DefaultThreshold,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Threshold returns the default threshold.
func (m *Matcher) Threshold() float64 {
	return m.threshold
}

// MatchFace returns the identity owning the stored embedding nearest to
// embedding, or nil when that distance exceeds threshold. A nil, empty or
// wrong-length embedding means no face was detected and also yields nil.
// On equal distances the identity enrolled first wins.
func (m *Matcher) MatchFace(ctx context.Context, embedding []float32, threshold float64) (*Match, error) {
	if len(embedding) == 0 || (m.dim > 0 && len(embedding) != m.dim) {
		return nil, nil
	}
	if threshold <= 0 {
		threshold = m.threshold
	}

	var best *candidate
	var err error
	if m.index != nil && m.index.Count() > 0 {
		best, err = m.searchIndex(embedding)
		if err != nil {
			m.logger.Warn("index search failed, falling back to linear scan", "error", err)
			best = nil
		}
	}
	if best == nil {
		best, err = m.scan(ctx, embedding)
		if err != nil {
			return nil, err
		}
	}
	if best == nil || best.distance > threshold {
		return nil, nil
	}

	identity, err := m.repo.GetIdentity(ctx, best.identityID)
	if err != nil {
		return nil, fmt.Errorf("load matched identity %d: %w", best.identityID, err)
	}
	if identity == nil {
		return nil, nil
	}
	return &Match{Identity: *identity, Distance: best.distance, Method: database.MethodFace}, nil
}

type candidate struct {
	identityID int64
	seq        int
	distance   float64
}

// better orders by distance, then identity insertion order, then sample order.
func (c candidate) better(other *candidate) bool {
	if other == nil {
		return true
	}
	if c.distance != other.distance {
		return c.distance < other.distance
	}
	if c.identityID != other.identityID {
		return c.identityID < other.identityID
	}
	return c.seq < other.seq
}

func (m *Matcher) scan(ctx context.Context, embedding []float32) (*candidate, error) {
	stored, err := m.repo.ListEmbeddings(ctx)
	if err != nil {
		return nil, fmt.Errorf("list embeddings: %w", err)
	}

	var best *candidate
	for _, e := range stored {
		d := database.EuclideanDistance(embedding, e.Vector)
		if math.IsInf(d, 1) || math.IsNaN(d) {
			continue
		}
		c := candidate{identityID: e.IdentityID, seq: e.Seq, distance: d}
		if c.better(best) {
			best = &c
		}
	}
	return best, nil
}

func (m *Matcher) searchIndex(embedding []float32) (*candidate, error) {
	k := min(m.index.Count(), database.HNSWEfSearch*database.HNSWSearchMultiplier)
	results, distances, err := m.index.Search(embedding, k)
	if err != nil {
		return nil, err
	}

	var best *candidate
	for i, e := range results {
		c := candidate{identityID: e.IdentityID, seq: e.Seq, distance: distances[i]}
		if c.better(best) {
			best = &c
		}
	}
	return best, nil
}

// MatchCredential returns the identity holding exactly value for kind, or nil.
func (m *Matcher) MatchCredential(ctx context.Context, value string, kind database.CredentialKind) (*Match, error) {
	if value == "" {
		return nil, nil
	}
	identity, err := m.repo.FindByCredential(ctx, kind, value)
	if err != nil {
		return nil, fmt.Errorf("match %s: %w", kind, err)
	}
	if identity == nil {
		return nil, nil
	}
	return &Match{Identity: *identity, Method: kind.MethodFor()}, nil
}

// RebuildIndex loads every stored embedding into the index.
func (m *Matcher) RebuildIndex(ctx context.Context) error {
	if m.index == nil {
		return nil
	}
	stored, err := m.repo.ListEmbeddings(ctx)
	if err != nil {
		return fmt.Errorf("list embeddings: %w", err)
	}
	m.index.BuildFromEmbeddings(stored)
	m.logger.Info("face index rebuilt", "embeddings", len(stored))
	return nil
}

// IndexEmbedding adds a newly enrolled embedding to the index.
func (m *Matcher) IndexEmbedding(emb database.StoredEmbedding) {
	if m.index != nil {
		m.index.Add(emb)
	}
}

// PersistentIndex is an Index that can be saved to and restored from disk.
type PersistentIndex interface {
	Index
	Save(path string) error
	Load(path string) error
}

// LoadOrRebuildIndex restores a saved index when it still matches the store,
// otherwise rebuilds it and saves it back to path.
func (m *Matcher) LoadOrRebuildIndex(ctx context.Context, path string) error {
	index, ok := m.index.(PersistentIndex)
	if !ok || path == "" {
		return m.RebuildIndex(ctx)
	}

	meta, err := database.LoadHNSWMetadata(path)
	switch {
	case err == nil:
		stored, err := m.repo.ListEmbeddings(ctx)
		if err != nil {
			return fmt.Errorf("list embeddings: %w", err)
		}
		var maxID int64
		for _, e := range stored {
			maxID = max(maxID, e.ID)
		}
		if meta.EmbeddingCount == int64(len(stored)) && meta.MaxEmbeddingID == maxID {
			if err := index.Load(path); err == nil {
				m.logger.Info("face index loaded", "path", path, "embeddings", index.Count())
				return nil
			}
		}
	case !errors.Is(err, fs.ErrNotExist):
		m.logger.Warn("ignoring unreadable face index metadata", "path", path, "error", err)
	}

	if err := m.RebuildIndex(ctx); err != nil {
		return err
	}
	if err := index.Save(path); err != nil {
		return fmt.Errorf("save face index: %w", err)
	}
	return nil
}

// SaveIndex persists the index when it supports it.
func (m *Matcher) SaveIndex(path string) error {
	index, ok := m.index.(PersistentIndex)
	if !ok || path == "" {
		return nil
	}
	return index.Save(path)
}
