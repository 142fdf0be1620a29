package vectorstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wizmain/tarot-reading-engine/internal/domain"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(Config{}, nil)
	require.NoError(t, err)
	return s
}

func TestAddAndSearchSingleEntryBoundary(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	err := s.Add(ctx, "cards", []domain.VectorStoreEntry{
		{ID: "the-fool", Document: "new beginnings", Metadata: map[string]any{"arcana": "major"}, Embedding: []float32{1, 0, 0}},
	})
	require.NoError(t, err)

	result, err := s.Search(ctx, "cards", []float32{1, 0, 0}, 1, nil)
	require.NoError(t, err)
	require.Len(t, result.IDs, 1)
	assert.Equal(t, "the-fool", result.IDs[0])
	assert.InDelta(t, 0, result.Distances[0], 1e-6)
}

func TestGetByIDFoundAndMissing(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Add(ctx, "cards", []domain.VectorStoreEntry{
		{ID: "the-sun", Document: "joy", Embedding: []float32{0, 1, 0}},
	}))

	entry, ok := s.GetByID(ctx, "cards", "the-sun")
	require.True(t, ok)
	assert.Equal(t, "joy", entry.Document)

	_, ok = s.GetByID(ctx, "cards", "missing")
	assert.False(t, ok)
}

func TestCountAndClear(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Add(ctx, "cards", []domain.VectorStoreEntry{
		{ID: "a", Document: "doc-a", Embedding: []float32{1, 0}},
		{ID: "b", Document: "doc-b", Embedding: []float32{0, 1}},
	}))
	assert.Equal(t, 2, s.Count("cards"))

	require.NoError(t, s.Clear(ctx, "cards"))
	assert.Equal(t, 0, s.Count("cards"))
}

func TestDeleteRemovesEntry(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Add(ctx, "cards", []domain.VectorStoreEntry{
		{ID: "a", Document: "doc-a", Embedding: []float32{1, 0}},
	}))
	require.NoError(t, s.Delete(ctx, "cards", []string{"a"}))
	assert.Equal(t, 0, s.Count("cards"))
}
