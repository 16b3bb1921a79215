package memory

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(":memory:", zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSaveAndGet(t *testing.T) {
	ctx := context.Background()
	s := testStore(t)

	doc := Document{
		ID:        "doc_001",
		ProjectID: "proj-a",
		Content:   "the deployment target is AWS ECS",
		Tags:      []string{"research", "infra"},
	}
	require.NoError(t, s.Save(ctx, doc))

	got, err := s.Get(ctx, "doc_001")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, doc.ProjectID, got.ProjectID)
	assert.Equal(t, doc.Content, got.Content)
	assert.Equal(t, doc.Tags, got.Tags)
}

func TestGetMissing(t *testing.T) {
	s := testStore(t)

	got, err := s.Get(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSaveUpsert(t *testing.T) {
	ctx := context.Background()
	s := testStore(t)

	d := Document{ID: "up", ProjectID: "p", Content: "v1"}
	require.NoError(t, s.Save(ctx, d))

	d.Content = "v2"
	require.NoError(t, s.Save(ctx, d))

	got, err := s.Get(ctx, "up")
	require.NoError(t, err)
	assert.Equal(t, "v2", got.Content)
}

func TestSearchScopedToProject(t *testing.T) {
	ctx := context.Background()
	s := testStore(t)

	require.NoError(t, s.Save(ctx, Document{ID: "1", ProjectID: "alpha", Content: "postgres connection pooling notes"}))
	require.NoError(t, s.Save(ctx, Document{ID: "2", ProjectID: "beta", Content: "postgres replication setup"}))

	results, err := s.Search(ctx, "alpha", "postgres", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "1", results[0].ID)

	all, err := s.Search(ctx, "", "postgres", 10)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestSearchLikeFallback(t *testing.T) {
	ctx := context.Background()
	s := testStore(t)

	require.NoError(t, s.Save(ctx, Document{ID: "x", ProjectID: "p", Content: "unique-needle-term"}))

	results, err := s.searchLike(ctx, "p", "unique-needle", 5)
	require.NoError(t, err)
	assert.NotEmpty(t, results)
}

func TestDeleteRemovesDocument(t *testing.T) {
	ctx := context.Background()
	s := testStore(t)

	require.NoError(t, s.Save(ctx, Document{ID: "del", ProjectID: "p", Content: "bye"}))
	require.NoError(t, s.Delete(ctx, "del"))

	got, err := s.Get(ctx, "del")
	require.NoError(t, err)
	assert.Nil(t, got)
}
