package memory_test

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ella-systems/ella-agent/internal/memory"
)

// stubEmbedder maps text to pre-canned vectors.
type stubEmbedder struct {
	vecs  map[string][]float32
	dims  int
	calls int
}

func (s *stubEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	s.calls++
	if v, ok := s.vecs[text]; ok {
		return v, nil
	}
	return []float32{1, 0, 0}, nil
}

func (s *stubEmbedder) Dimensions() int { return s.dims }

func newBase(t *testing.T) *memory.SQLiteStore {
	t.Helper()
	base, err := memory.NewSQLiteStore(":memory:", zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { base.Close() })
	return base
}

func TestVectorStoreSemanticRanking(t *testing.T) {
	ctx := context.Background()
	base := newBase(t)

	embedder := &stubEmbedder{dims: 3, vecs: map[string][]float32{
		"cats are fluffy":    {1, 0, 0},
		"dogs are loyal":     {0, 1, 0},
		"fish swim in water": {0, 0, 1},
		"furry cats":         {0.9, 0.1, 0},
	}}
	vs := memory.NewVectorStore(base, embedder)

	docs := []memory.Document{
		{ID: "e1", ProjectID: "p", Content: "cats are fluffy"},
		{ID: "e2", ProjectID: "p", Content: "dogs are loyal"},
		{ID: "e3", ProjectID: "p", Content: "fish swim in water"},
	}
	for _, d := range docs {
		require.NoError(t, vs.Save(ctx, d))
	}
	assert.Equal(t, 3, vs.VectorCount())

	results, err := vs.SearchSemantic(ctx, "furry cats", 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "e1", results[0].ID)
}

func TestVectorStoreDeleteDropsVector(t *testing.T) {
	ctx := context.Background()
	vs := memory.NewVectorStore(newBase(t), &stubEmbedder{dims: 2, vecs: map[string][]float32{
		"hello": {1, 0},
	}})

	require.NoError(t, vs.Save(ctx, memory.Document{ID: "x1", ProjectID: "p", Content: "hello"}))
	assert.Equal(t, 1, vs.VectorCount())

	require.NoError(t, vs.Delete(ctx, "x1"))
	assert.Equal(t, 0, vs.VectorCount())
}

func TestVectorStoreNoopEmbedderTextSearchOnly(t *testing.T) {
	ctx := context.Background()
	vs := memory.NewVectorStore(newBase(t), memory.NoopEmbedder{})

	require.NoError(t, vs.Save(ctx, memory.Document{ID: "t1", ProjectID: "p", Content: "golang concurrency patterns"}))
	require.NoError(t, vs.Save(ctx, memory.Document{ID: "t2", ProjectID: "p", Content: "rust borrow checker"}))
	assert.Equal(t, 0, vs.VectorCount())

	results, err := vs.Search(ctx, "p", "golang", 5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "t1", results[0].ID)

	_, err = vs.SearchSemantic(ctx, "golang", 5)
	assert.Error(t, err)
}

func TestCachedEmbedderMemoizes(t *testing.T) {
	ctx := context.Background()
	inner := &stubEmbedder{dims: 3, vecs: map[string][]float32{
		"repeat": {0.1, 0.2, 0.3},
	}}
	cached := memory.NewCachedEmbedder(inner, 8)

	v1, err := cached.Embed(ctx, "repeat")
	require.NoError(t, err)
	v2, err := cached.Embed(ctx, "repeat")
	require.NoError(t, err)

	assert.Equal(t, v1, v2)
	assert.Equal(t, 1, inner.calls)

	_, err = cached.Embed(ctx, "different")
	require.NoError(t, err)
	assert.Equal(t, 2, inner.calls)
}
