package engine

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wizmain/tarot-reading-engine/internal/domain"
	"github.com/wizmain/tarot-reading-engine/internal/knowledge"
	"github.com/wizmain/tarot-reading-engine/internal/llm"
)

func celticFakeGenerate(ctx context.Context, req llm.Request) (domain.AIResponse, error) {
	switch {
	case strings.Contains(req.UserPrompt, "Celtic Cross position"):
		return domain.AIResponse{Content: koreanText(110), FinishReason: domain.FinishStop, Provider: "fake", Model: "fake-model"}, nil
	case strings.Contains(req.UserPrompt, "overall reading"):
		return domain.AIResponse{Content: koreanText(320), FinishReason: domain.FinishStop, Provider: "fake", Model: "fake-model"}, nil
	case strings.Contains(req.UserPrompt, "relate to each other"):
		return domain.AIResponse{Content: koreanText(150), FinishReason: domain.FinishStop, Provider: "fake", Model: "fake-model"}, nil
	case strings.Contains(req.UserPrompt, "Based on this reading summary"):
		return domain.AIResponse{Content: koreanText(80), FinishReason: domain.FinishStop, Provider: "fake", Model: "fake-model"}, nil
	default:
		return domain.AIResponse{Content: koreanText(110), FinishReason: domain.FinishStop, Provider: "fake", Model: "fake-model"}, nil
	}
}

func TestCelticCrossEngineProducesTenOrderedCards(t *testing.T) {
	kb, err := knowledge.Load("../../testdata/knowledge", nil)
	require.NoError(t, err)

	// testdata only has 3 cards; pad by repeating draws with distinct
	// positions so the engine can exercise all ten slots.
	base := DrawCards(kb, 3)
	cards := make([]domain.DrawnCard, 10)
	for i := range cards {
		cards[i] = base[i%len(base)]
	}

	provider := &fakeLLMProvider{name: "fake", models: []string{"fake-model"}, generate: celticFakeGenerate}
	o := setupOrchestrator(t, provider)
	enricher := setupEnricherForEngineTests(t)
	registry := setupRegistry(t)

	engine := NewCelticCrossEngine(o, enricher, registry, CelticConfig{BatchSize: 3, SemaphoreSize: 5, Provider: "fake"}, nil)

	result, err := engine.Generate(context.Background(), cards, "What does the year ahead hold?", "career", "ko")
	require.NoError(t, err)
	require.Len(t, result.Reading.Cards, 10)

	for i, c := range result.Reading.Cards {
		assert.Equal(t, celticCrossPositions[i], c.Position)
	}
}

func TestCelticCrossEngineRejectsWrongCardCount(t *testing.T) {
	kb, err := knowledge.Load("../../testdata/knowledge", nil)
	require.NoError(t, err)
	cards := DrawCards(kb, 1)

	provider := &fakeLLMProvider{name: "fake", models: []string{"fake-model"}, generate: celticFakeGenerate}
	o := setupOrchestrator(t, provider)
	enricher := setupEnricherForEngineTests(t)
	registry := setupRegistry(t)
	engine := NewCelticCrossEngine(o, enricher, registry, CelticConfig{Provider: "fake"}, nil)

	_, err = engine.Generate(context.Background(), cards, "q", "", "ko")
	assert.Error(t, err)
}

func TestApplyCitationsTitleCasesPositions(t *testing.T) {
	out := applyCitations("the recent_past position shows growth", []string{"recent_past"})
	assert.Contains(t, out, "Recent Past")
}
