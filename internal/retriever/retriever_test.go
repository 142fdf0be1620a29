package retriever

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wizmain/tarot-reading-engine/internal/domain"
	"github.com/wizmain/tarot-reading-engine/internal/embed"
	"github.com/wizmain/tarot-reading-engine/internal/knowledge"
	"github.com/wizmain/tarot-reading-engine/internal/vectorstore"
)

func setupTestRetriever(t *testing.T) *Retriever {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(struct {
			Embeddings [][]float32 `json:"embeddings"`
		}{Embeddings: [][]float32{{1, 0, 0}}})
	}))
	t.Cleanup(srv.Close)

	embedder := embed.New(srv.URL, embed.ModelParaphraseMultilingualMiniLM, 3, 1)

	store, err := vectorstore.New(vectorstore.Config{}, nil)
	require.NoError(t, err)

	require.NoError(t, store.Add(context.Background(), cardsCollection, []domain.VectorStoreEntry{
		{ID: "fool-1", Document: "a leap of faith", Metadata: map[string]any{"card_id": "0"}, Embedding: []float32{1, 0, 0}},
	}))
	require.NoError(t, store.Add(context.Background(), generalCollection, []domain.VectorStoreEntry{
		{ID: "general-1", Document: "general insight", Embedding: []float32{1, 0, 0}},
	}))

	kb, err := knowledge.Load("../../testdata/knowledge", nil)
	require.NoError(t, err)

	return New(store, kb, embedder, Config{CacheEnabled: true, CacheSize: 100, CacheTTL: time.Minute, PoolSize: 2})
}

func TestRetrieveCardContextReturnsCardAndSnippets(t *testing.T) {
	r := setupTestRetriever(t)

	cc, err := r.RetrieveCardContext(context.Background(), 0, "new beginnings", 1)
	require.NoError(t, err)
	assert.Equal(t, "The Fool", cc.Card.Name)
	assert.Len(t, cc.Snippets.IDs, 1)
}

func TestRetrieveCardContextIsCached(t *testing.T) {
	r := setupTestRetriever(t)
	ctx := context.Background()

	_, err := r.RetrieveCardContext(ctx, 0, "new beginnings", 1)
	require.NoError(t, err)
	_, err = r.RetrieveCardContext(ctx, 0, "new beginnings", 1)
	require.NoError(t, err)

	stats := r.Stats()
	assert.Equal(t, int64(1), stats.Hits)
}

func TestRetrieveGeneralContext(t *testing.T) {
	r := setupTestRetriever(t)

	result, err := r.RetrieveGeneralContext(context.Background(), "any question", 1)
	require.NoError(t, err)
	assert.Len(t, result.IDs, 1)
}

func TestRetrieveCombinationContextMatchesKnownPair(t *testing.T) {
	r := setupTestRetriever(t)

	cc, err := r.RetrieveCombinationContext(context.Background(), []int{0}, 1)
	require.NoError(t, err)
	assert.NotEmpty(t, cc.Combinations)
}

func TestClearResetsCacheStats(t *testing.T) {
	r := setupTestRetriever(t)
	ctx := context.Background()
	_, _ = r.RetrieveGeneralContext(ctx, "q", 1)

	r.Clear()
	stats := r.Stats()
	assert.Zero(t, stats.Size)
}
