package enrich

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
	"github.com/wizmain/tarot-reading-engine/internal/retriever"
	"github.com/wizmain/tarot-reading-engine/internal/vectorstore"
)

func setupEnricher(t *testing.T) *Enricher {
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
	require.NoError(t, store.Add(context.Background(), "cards", []domain.VectorStoreEntry{
		{ID: "fool-1", Document: "a fresh start", Metadata: map[string]any{"card_id": "0"}, Embedding: []float32{1, 0, 0}},
	}))
	require.NoError(t, store.Add(context.Background(), "general", []domain.VectorStoreEntry{
		{ID: "gen-1", Document: "a general note", Embedding: []float32{1, 0, 0}},
	}))

	kb, err := knowledge.Load("../../testdata/knowledge", nil)
	require.NoError(t, err)

	r := retriever.New(store, kb, embedder, retriever.Config{CacheEnabled: false, PoolSize: 2, CacheTTL: time.Minute})
	return New(r, nil)
}

func TestEnrichReturnsFixedShapeForSingleCard(t *testing.T) {
	e := setupEnricher(t)
	cards := []domain.DrawnCard{{Card: domain.Card{ID: 0, Name: "The Fool", Symbolism: "white rose"}, Orientation: domain.Upright}}

	result := e.Enrich(context.Background(), cards, domain.SpreadOneCard, "what should I know?", "", "en")
	assert.Len(t, result.CardsContext, 1)
	assert.Empty(t, result.CombinationContext, "single card must not trigger combination lookup")
	assert.Equal(t, 1, result.Metadata.NumCards)
}

func TestEnrichTriggersCombinationsForMultipleCards(t *testing.T) {
	e := setupEnricher(t)
	cards := []domain.DrawnCard{
		{Card: domain.Card{ID: 0, Name: "The Fool"}, Orientation: domain.Upright},
		{Card: domain.Card{ID: 20, Name: "Judgement"}, Orientation: domain.Upright},
	}

	result := e.Enrich(context.Background(), cards, domain.SpreadThreeCardPastPresentFuture, "where is this heading?", "", "en")
	assert.Len(t, result.CardsContext, 2)
}

func TestFormatDetailedIncludesCardNames(t *testing.T) {
	ctx := domain.EnrichedContext{
		CardsContext: []domain.CardContext{{Card: domain.Card{Name: "The Fool"}, Snippets: []string{"begin"}}},
	}
	out := Format(ctx, domain.FormatDetailed)
	assert.Contains(t, out, "The Fool")
	assert.Contains(t, out, "begin")
}

func TestFormatConciseIsShorterThanDetailed(t *testing.T) {
	ctx := domain.EnrichedContext{
		CardsContext:    []domain.CardContext{{Card: domain.Card{Name: "The Fool"}, Snippets: []string{"a long explanatory snippet"}}},
		GeneralInsights: []string{"insight"},
	}
	detailed := Format(ctx, domain.FormatDetailed)
	concise := Format(ctx, domain.FormatConcise)
	assert.Less(t, len(concise), len(detailed))
}
