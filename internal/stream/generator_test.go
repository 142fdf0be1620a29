package stream

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wizmain/tarot-reading-engine/internal/domain"
	"github.com/wizmain/tarot-reading-engine/internal/embed"
	"github.com/wizmain/tarot-reading-engine/internal/engine"
	"github.com/wizmain/tarot-reading-engine/internal/enrich"
	"github.com/wizmain/tarot-reading-engine/internal/knowledge"
	"github.com/wizmain/tarot-reading-engine/internal/llm"
	"github.com/wizmain/tarot-reading-engine/internal/orchestrator"
	"github.com/wizmain/tarot-reading-engine/internal/retriever"
	"github.com/wizmain/tarot-reading-engine/internal/vectorstore"
)

type fakeProvider struct {
	name     string
	models   []string
	generate func(ctx context.Context, req llm.Request) (domain.AIResponse, error)
}

func (f *fakeProvider) Name() string                                            { return f.name }
func (f *fakeProvider) AvailableModels() []string                               { return f.models }
func (f *fakeProvider) EstimateCost(int, int, string) float64                   { return 0 }
func (f *fakeProvider) CountTokens(text, _ string) int                          { return len(text) }
func (f *fakeProvider) ContextWindow(string) int                                { return 200_000 }
func (f *fakeProvider) Generate(ctx context.Context, req llm.Request) (domain.AIResponse, error) {
	return f.generate(ctx, req)
}

func koreanText(n int) string { return strings.Repeat("가", n) }

func wellFormedOneCardJSON() string {
	reading := domain.ReadingResponse{
		Cards: []domain.CardInterpretation{
			{CardID: 0, Position: "insight", Interpretation: koreanText(110), KeyMessage: "새로운 시작"},
		},
		OverallReading: koreanText(90),
		Summary:        "요약",
		Advice: domain.Advice{
			ImmediateAction: koreanText(30),
			ShortTerm:       koreanText(30),
		},
	}
	b, _ := json.Marshal(reading)
	return string(b)
}

func setupGeneratorDeps(t *testing.T) (*knowledge.Store, *enrich.Enricher, *engine.SingleCallEngine) {
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
	enricher := enrich.New(r, nil)

	provider := &fakeProvider{
		name:   "fake",
		models: []string{"fake-model"},
		generate: func(ctx context.Context, req llm.Request) (domain.AIResponse, error) {
			return domain.AIResponse{Content: wellFormedOneCardJSON(), FinishReason: domain.FinishStop, Provider: "fake", Model: "fake-model"}, nil
		},
	}
	o, err := orchestrator.New([]orchestrator.ProviderEntry{{Provider: provider, MaxRetries: 0}}, 5*time.Second, nil)
	require.NoError(t, err)

	single := engine.NewSingleCallEngine(o, enricher, "fake-model", nil)
	return kb, enricher, single
}

type recordingPersister struct {
	calls []domain.PersistedReading
}

func (p *recordingPersister) CreateReading(ctx context.Context, payload domain.PersistedReading) (domain.PersistedReading, error) {
	p.calls = append(p.calls, payload)
	return payload, nil
}

func drainFrames(ch <-chan string) []string {
	var frames []string
	for f := range ch {
		frames = append(frames, f)
	}
	return frames
}

func eventNames(frames []string) []string {
	var names []string
	for _, f := range frames {
		for _, line := range strings.Split(f, "\n") {
			if strings.HasPrefix(line, "event: ") {
				names = append(names, strings.TrimPrefix(line, "event: "))
			}
		}
	}
	return names
}

func TestGenerateEmitsStagesInFixedOrder(t *testing.T) {
	kb, enricher, single := setupGeneratorDeps(t)
	persister := &recordingPersister{}
	gen := NewGenerator(kb, enricher, single, persister, nil)

	ch := gen.Generate(context.Background(), "reading-1", "user-1", "Should I take the job?", domain.SpreadOneCard, "career", "ko", 1)
	frames := drainFrames(ch)
	names := eventNames(frames)

	require.Contains(t, names, string(EventStarted))
	require.Contains(t, names, string(EventCardDrawn))
	require.Contains(t, names, string(EventRAGEnrichment))
	require.Contains(t, names, string(EventAIGeneration))
	require.Contains(t, names, string(EventComplete))

	firstProgressIdx := -1
	completeIdx := -1
	for i, n := range names {
		if n == string(EventProgress) && firstProgressIdx == -1 {
			firstProgressIdx = i
		}
		if n == string(EventComplete) {
			completeIdx = i
		}
	}
	assert.Equal(t, 0, firstProgressIdx)
	assert.Equal(t, len(names)-1, completeIdx)

	gen.Wait()
	require.Len(t, persister.calls, 1)
	assert.Equal(t, "reading-1", persister.calls[0].ID)
}

func TestGenerateEmitsSingleErrorEventOnFailure(t *testing.T) {
	kb, enricher, _ := setupGeneratorDeps(t)

	provider := &fakeProvider{
		name:   "fake",
		models: []string{"fake-model"},
		generate: func(ctx context.Context, req llm.Request) (domain.AIResponse, error) {
			return domain.AIResponse{}, assertError{}
		},
	}
	o, err := orchestrator.New([]orchestrator.ProviderEntry{{Provider: provider, MaxRetries: 0}}, 5*time.Second, nil)
	require.NoError(t, err)
	single := engine.NewSingleCallEngine(o, enricher, "fake-model", nil)

	gen := NewGenerator(kb, enricher, single, nil, nil)
	ch := gen.Generate(context.Background(), "reading-2", "user-1", "q", domain.SpreadOneCard, "", "ko", 1)
	frames := drainFrames(ch)
	names := eventNames(frames)

	errCount := 0
	for _, n := range names {
		if n == string(EventError) {
			errCount++
		}
	}
	assert.Equal(t, 1, errCount)
	assert.NotContains(t, names, string(EventComplete))
}

type assertError struct{}

func (assertError) Error() string { return "synthetic provider failure" }
