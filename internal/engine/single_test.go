package engine

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wizmain/tarot-reading-engine/internal/domain"
	"github.com/wizmain/tarot-reading-engine/internal/knowledge"
	"github.com/wizmain/tarot-reading-engine/internal/llm"
)

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

func TestSingleCallEngineOneCardSucceeds(t *testing.T) {
	kb, err := knowledge.Load("../../testdata/knowledge", nil)
	require.NoError(t, err)
	cards := DrawCards(kb, 1)
	cards[0].Orientation = domain.Upright

	provider := &fakeLLMProvider{
		name:   "fake",
		models: []string{"fake-model"},
		generate: func(ctx context.Context, req llm.Request) (domain.AIResponse, error) {
			return domain.AIResponse{Content: wellFormedOneCardJSON(), FinishReason: domain.FinishStop, Provider: "fake", Model: "fake-model"}, nil
		},
	}

	o := setupOrchestrator(t, provider)
	enricher := setupEnricherForEngineTests(t)
	engine := NewSingleCallEngine(o, enricher, "fake-model", nil)

	result, err := engine.Generate(context.Background(), cards, domain.SpreadOneCard, "Should I take the job?", "career", "ko")
	require.NoError(t, err)
	assert.Len(t, result.Reading.Cards, 1)
	assert.Len(t, result.Attempts, 1)
}

func TestSingleCallEngineRejectsWrongCardCount(t *testing.T) {
	kb, err := knowledge.Load("../../testdata/knowledge", nil)
	require.NoError(t, err)
	cards := DrawCards(kb, 1)

	provider := &fakeLLMProvider{name: "fake", models: []string{"fake-model"}}
	o := setupOrchestrator(t, provider)
	enricher := setupEnricherForEngineTests(t)
	engine := NewSingleCallEngine(o, enricher, "fake-model", nil)

	_, err = engine.Generate(context.Background(), cards, domain.SpreadThreeCardPastPresentFuture, "q", "", "ko")
	assert.Error(t, err)
}

func TestSingleCallEngineRetriesOnTruncation(t *testing.T) {
	kb, err := knowledge.Load("../../testdata/knowledge", nil)
	require.NoError(t, err)
	cards := DrawCards(kb, 1)

	callCount := 0
	provider := &fakeLLMProvider{
		name:   "fake",
		models: []string{"fake-model"},
		generate: func(ctx context.Context, req llm.Request) (domain.AIResponse, error) {
			callCount++
			if callCount == 1 {
				return domain.AIResponse{Content: `{"cards": [{"card_id": 0, "position": "insight", "interpretation": "cut off mid`, FinishReason: domain.FinishMaxTokens, Provider: "fake", Model: "fake-model"}, nil
			}
			return domain.AIResponse{Content: wellFormedOneCardJSON(), FinishReason: domain.FinishStop, Provider: "fake", Model: "fake-model"}, nil
		},
	}

	o := setupOrchestrator(t, provider)
	enricher := setupEnricherForEngineTests(t)
	engine := NewSingleCallEngine(o, enricher, "fake-model", nil)

	result, err := engine.Generate(context.Background(), cards, domain.SpreadOneCard, "q", "", "ko")
	require.NoError(t, err)
	assert.Equal(t, 2, callCount)
	assert.Len(t, result.Attempts, 2)
}
