package memory

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// VectorStore layers embedding-based semantic search over a DocumentStore.
// Vectors live in memory keyed by document ID; the base store persists the
// text and metadata.
type VectorStore struct {
	base     DocumentStore
	embedder Embedder

	mu      sync.RWMutex
	vectors map[string][]float32
}

// NewVectorStore creates a VectorStore backed by base and using embedder.
// With a nil or Noop embedder, SearchSemantic returns an error and Save
// skips vector computation.
func NewVectorStore(base DocumentStore, embedder Embedder) *VectorStore {
	return &VectorStore{
		base:     base,
		embedder: embedder,
		vectors:  make(map[string][]float32),
	}
}

// Save persists the document and, when an embedder is available, computes
// and caches its vector. Embedding failure is non-fatal; text search still
// covers the document.
func (v *VectorStore) Save(ctx context.Context, doc Document) error {
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	if err := v.base.Save(ctx, doc); err != nil {
		return err
	}

	if v.canEmbed() {
		vec, err := v.embedder.Embed(ctx, doc.Content)
		if err == nil && len(vec) > 0 {
			v.mu.Lock()
			v.vectors[doc.ID] = vec
			v.mu.Unlock()
		}
	}
	return nil
}

func (v *VectorStore) canEmbed() bool {
	if v.embedder == nil {
		return false
	}
	switch v.embedder.(type) {
	case NoopEmbedder, *NoopEmbedder:
		return false
	}
	return true
}

// Search delegates to the underlying text search.
func (v *VectorStore) Search(ctx context.Context, projectID, query string, topK int) ([]Document, error) {
	return v.base.Search(ctx, projectID, query, topK)
}

// SearchSemantic embeds the query and returns the topK most similar
// documents by cosine similarity over the cached vectors.
func (v *VectorStore) SearchSemantic(ctx context.Context, query string, topK int) ([]Document, error) {
	if !v.canEmbed() {
		return nil, fmt.Errorf("vectorstore: no embedder configured")
	}

	queryVec, err := v.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("vectorstore: embed query: %w", err)
	}

	type scored struct {
		id    string
		score float64
	}

	v.mu.RLock()
	scores := make([]scored, 0, len(v.vectors))
	for id, vec := range v.vectors {
		scores = append(scores, scored{id: id, score: cosineSimilarity(queryVec, vec)})
	}
	v.mu.RUnlock()

	sort.Slice(scores, func(i, j int) bool {
		return scores[i].score > scores[j].score
	})

	if topK <= 0 {
		topK = 10
	}
	if topK > len(scores) {
		topK = len(scores)
	}

	results := make([]Document, 0, topK)
	for _, s := range scores[:topK] {
		doc, err := v.base.Get(ctx, s.id)
		if err != nil || doc == nil {
			continue
		}
		results = append(results, *doc)
	}
	return results, nil
}

// Get delegates to the base store.
func (v *VectorStore) Get(ctx context.Context, id string) (*Document, error) {
	return v.base.Get(ctx, id)
}

// Delete removes from both the base store and the vector cache.
func (v *VectorStore) Delete(ctx context.Context, id string) error {
	v.mu.Lock()
	delete(v.vectors, id)
	v.mu.Unlock()
	return v.base.Delete(ctx, id)
}

// Close closes the underlying store.
func (v *VectorStore) Close() error { return v.base.Close() }

// VectorCount returns the number of cached embedding vectors.
func (v *VectorStore) VectorCount() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.vectors)
}

// cosineSimilarity returns the cosine similarity in [-1, 1], or 0 when
// either vector has zero magnitude or lengths differ.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		fa, fb := float64(a[i]), float64(b[i])
		dot += fa * fb
		normA += fa * fa
		normB += fb * fb
	}

	denom := math.Sqrt(normA) * math.Sqrt(normB)
	if denom == 0 {
		return 0
	}
	return dot / denom
}
