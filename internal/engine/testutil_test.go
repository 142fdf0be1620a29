package engine

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/wizmain/tarot-reading-engine/internal/domain"
	"github.com/wizmain/tarot-reading-engine/internal/embed"
	"github.com/wizmain/tarot-reading-engine/internal/enrich"
	"github.com/wizmain/tarot-reading-engine/internal/knowledge"
	"github.com/wizmain/tarot-reading-engine/internal/llm"
	"github.com/wizmain/tarot-reading-engine/internal/modelregistry"
	"github.com/wizmain/tarot-reading-engine/internal/orchestrator"
	"github.com/wizmain/tarot-reading-engine/internal/retriever"
	"github.com/wizmain/tarot-reading-engine/internal/vectorstore"
)

// fakeLLMProvider is a minimal llm.Provider whose Generate is supplied by
// the test.
type fakeLLMProvider struct {
	name     string
	models   []string
	generate func(ctx context.Context, req llm.Request) (domain.AIResponse, error)
}

func (f *fakeLLMProvider) Name() string             { return f.name }
func (f *fakeLLMProvider) AvailableModels() []string { return f.models }
func (f *fakeLLMProvider) EstimateCost(int, int, string) float64 { return 0 }
func (f *fakeLLMProvider) CountTokens(text, _ string) int        { return len(text) }
func (f *fakeLLMProvider) ContextWindow(string) int              { return 200_000 }
func (f *fakeLLMProvider) Generate(ctx context.Context, req llm.Request) (domain.AIResponse, error) {
	return f.generate(ctx, req)
}

func setupEnricherForEngineTests(t *testing.T) *enrich.Enricher {
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
		{ID: "seed", Document: "seed snippet", Metadata: map[string]any{"card_id": "0"}, Embedding: []float32{1, 0, 0}},
	}))
	require.NoError(t, store.Add(context.Background(), "general", []domain.VectorStoreEntry{
		{ID: "seed-general", Document: "general seed", Embedding: []float32{1, 0, 0}},
	}))

	kb, err := knowledge.Load("../../testdata/knowledge", nil)
	require.NoError(t, err)

	r := retriever.New(store, kb, embedder, retriever.Config{CacheEnabled: false, PoolSize: 4, CacheTTL: time.Minute})
	return enrich.New(r, nil)
}

func setupRegistry(t *testing.T) *modelregistry.Registry {
	t.Helper()
	reg := modelregistry.New()
	require.NoError(t, reg.RegisterModel(domain.ModelMetadata{ModelID: "fake-model", Provider: "fake", Available: true}))
	return reg
}

func setupOrchestrator(t *testing.T, provider *fakeLLMProvider) *orchestrator.Orchestrator {
	t.Helper()
	o, err := orchestrator.New([]orchestrator.ProviderEntry{{Provider: provider, MaxRetries: 0}}, 5*time.Second, nil)
	require.NoError(t, err)
	return o
}
