// Package engine implements the two reading engines of spec.md §4.13: the
// single-call engine for one-card and three-card spreads, and the parallel
// Celtic Cross engine built on top of it.
package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/wizmain/tarot-reading-engine/internal/apierrors"
	"github.com/wizmain/tarot-reading-engine/internal/domain"
	"github.com/wizmain/tarot-reading-engine/internal/enrich"
	"github.com/wizmain/tarot-reading-engine/internal/llm"
	"github.com/wizmain/tarot-reading-engine/internal/orchestrator"
	"github.com/wizmain/tarot-reading-engine/internal/parser"
	"github.com/wizmain/tarot-reading-engine/internal/prompt"
)

// defaultMaxTokens are the spread/language table defaults from spec.md
// §4.13 ("one-card ≈ 2000, three-card ≈ 3500").
var defaultMaxTokens = map[domain.SpreadType]int{
	domain.SpreadOneCard:                     2000,
	domain.SpreadThreeCardPastPresentFuture:  3500,
	domain.SpreadThreeCardSituationActionOut: 3500,
}

const truncationRetryInflation = 1.5
const maxTruncationRetries = 2

// SingleCallEngine runs the one/three-card spreads as a single orchestrator
// call, retrying on truncation by inflating max_tokens.
type SingleCallEngine struct {
	orchestrator *orchestrator.Orchestrator
	enricher     *enrich.Enricher
	model        string
	logger       *slog.Logger
}

func NewSingleCallEngine(o *orchestrator.Orchestrator, enricher *enrich.Enricher, model string, logger *slog.Logger) *SingleCallEngine {
	if logger == nil {
		logger = slog.Default()
	}
	return &SingleCallEngine{orchestrator: o, enricher: enricher, model: model, logger: logger}
}

// Result bundles the validated reading with the full attempt log, per
// spec.md §4.13's "emit the ReadingResponse plus the full attempt log".
type Result struct {
	Reading     domain.ReadingResponse
	Attempts    []domain.OrchestratorResponse
	DrawnCards  []domain.DrawnCard
	Positions   []string
}

func positionsFor(spreadType domain.SpreadType) []string {
	switch spreadType {
	case domain.SpreadOneCard:
		return []string{"insight"}
	case domain.SpreadThreeCardPastPresentFuture:
		return []string{"past", "present", "future"}
	case domain.SpreadThreeCardSituationActionOut:
		return []string{"situation", "action", "outcome"}
	default:
		return nil
	}
}

// Generate takes the cards drawn by the caller, enriches context, builds the
// prompt, calls the orchestrator, parses, retries on truncation, and
// validates.
func (e *SingleCallEngine) Generate(ctx context.Context, cards []domain.DrawnCard, spreadType domain.SpreadType, question, category, language string) (Result, error) {
	positions := positionsFor(spreadType)
	if len(positions) != len(cards) {
		return Result{}, fmt.Errorf("engine: spread %q expects %d cards, got %d", spreadType, len(positions), len(cards))
	}

	enriched := e.enricher.Enrich(ctx, cards, spreadType, question, category, language)
	ragContext := enrich.Format(enriched, domain.FormatDetailed)

	renderCards := make([]prompt.CardRenderContext, len(cards))
	for i, c := range cards {
		renderCards[i] = prompt.CardRenderContextFrom(c, positions[i])
	}

	built, err := prompt.BuildFullPrompt(question, renderCards, spreadType, category, ragContext, true, true)
	if err != nil {
		return Result{}, fmt.Errorf("engine: build prompt: %w", err)
	}

	maxTokens := defaultMaxTokens[spreadType]
	if maxTokens == 0 {
		maxTokens = 2000
	}

	var attempts []domain.OrchestratorResponse
	var reading domain.ReadingResponse

	for attempt := 0; attempt <= maxTruncationRetries; attempt++ {
		cfg, cfgErr := domain.NewGenerationConfig(0.8, maxTokens, 0.9)
		if cfgErr != nil {
			return Result{}, fmt.Errorf("engine: generation config: %w", cfgErr)
		}

		resp, genErr := e.orchestrator.Generate(ctx, llm.Request{
			SystemPrompt: built.SystemPrompt,
			UserPrompt:   built.UserPrompt,
			Config:       cfg,
			Model:        e.model,
		})
		if genErr != nil {
			return Result{}, fmt.Errorf("engine: orchestrator generate: %w", genErr)
		}
		attempts = append(attempts, resp)

		parsed, parseErr := parser.Parse(resp.Primary.Content, resp.Primary.FinishReason)
		if parseErr != nil {
			if isTruncated(parseErr) && attempt < maxTruncationRetries {
				maxTokens = int(float64(maxTokens) * truncationRetryInflation)
				e.logger.Warn("engine: truncated parse, retrying with larger max_tokens", "attempt", attempt, "max_tokens", maxTokens)
				continue
			}
			return Result{}, fmt.Errorf("engine: parse reading: %w", parseErr)
		}

		if valErr := parser.Validate(parsed, spreadType, positions); valErr != nil {
			return Result{}, fmt.Errorf("engine: validate reading: %w", valErr)
		}

		reading = parsed
		break
	}

	return Result{Reading: reading, Attempts: attempts, DrawnCards: cards, Positions: positions}, nil
}

func isTruncated(err error) bool {
	var apiErr *apierrors.Error
	return apierrors.As(err, &apiErr) && apiErr.Truncated
}
