package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/wizmain/tarot-reading-engine/internal/analyzer"
	"github.com/wizmain/tarot-reading-engine/internal/domain"
	"github.com/wizmain/tarot-reading-engine/internal/enrich"
	"github.com/wizmain/tarot-reading-engine/internal/llm"
	"github.com/wizmain/tarot-reading-engine/internal/modelregistry"
	"github.com/wizmain/tarot-reading-engine/internal/orchestrator"
	"github.com/wizmain/tarot-reading-engine/internal/parser"
	"github.com/wizmain/tarot-reading-engine/internal/prompt"
)

// celticCrossPositions is the fixed position order for the ten-card spread.
var celticCrossPositions = []string{
	"present", "challenge", "foundation", "recent_past", "potential",
	"near_future", "self", "environment", "hopes_fears", "outcome",
}

const defaultBatchSize = 3
const defaultSemaphoreSize = 5
const maxBatchRetries = 2
const summaryCharsForAdvice = 500

// CelticCrossEngine runs the ten-position Celtic Cross spread as a
// two-phase parallel pipeline (spec.md §4.13).
type CelticCrossEngine struct {
	orchestrator *orchestrator.Orchestrator
	enricher     *enrich.Enricher
	registry     *modelregistry.Registry
	provider     string
	batchSize    int
	sem          chan struct{}
	logger       *slog.Logger
}

type CelticConfig struct {
	BatchSize     int
	SemaphoreSize int
	Provider      string
}

func NewCelticCrossEngine(o *orchestrator.Orchestrator, enricher *enrich.Enricher, registry *modelregistry.Registry, cfg CelticConfig, logger *slog.Logger) *CelticCrossEngine {
	if logger == nil {
		logger = slog.Default()
	}
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	semSize := cfg.SemaphoreSize
	if semSize <= 0 {
		semSize = defaultSemaphoreSize
	}
	return &CelticCrossEngine{
		orchestrator: o,
		enricher:     enricher,
		registry:     registry,
		provider:     cfg.Provider,
		batchSize:    batchSize,
		sem:          make(chan struct{}, semSize),
		logger:       logger,
	}
}

type cardBatchResult struct {
	index          int
	interpretation domain.CardInterpretation
	attempt        domain.OrchestratorResponse
}

// Generate takes the ten drawn cards supplied by the caller and runs Phase 1
// (per-batch card interpretation) followed by Phase 2 (overall reading,
// relationships, then advice), reordering interpretations by position
// index before returning.
func (e *CelticCrossEngine) Generate(ctx context.Context, cards []domain.DrawnCard, question, category, language string) (Result, error) {
	if len(cards) != len(celticCrossPositions) {
		return Result{}, fmt.Errorf("engine: celtic cross requires %d cards, got %d", len(celticCrossPositions), len(cards))
	}

	enriched := e.enricher.Enrich(ctx, cards, domain.SpreadCelticCross, question, category, language)
	ragContext := enrich.Format(enriched, domain.FormatDetailed)

	results, attempts, err := e.phase1(ctx, cards, question, category, ragContext)
	if err != nil {
		return Result{}, fmt.Errorf("engine: celtic cross phase 1: %w", err)
	}

	sort.Slice(results, func(i, j int) bool { return results[i].index < results[j].index })
	cardInterps := make([]domain.CardInterpretation, len(results))
	for i, r := range results {
		cardInterps[i] = r.interpretation
		attempts = append(attempts, r.attempt)
	}

	overall, relationships, phase2Attempts, err := e.phase2Overall(ctx, cards, question, category, ragContext)
	if err != nil {
		return Result{}, fmt.Errorf("engine: celtic cross phase 2 overall: %w", err)
	}
	attempts = append(attempts, phase2Attempts...)

	advice, adviceAttempt, err := e.phase2Advice(ctx, overall, question)
	if err != nil {
		return Result{}, fmt.Errorf("engine: celtic cross phase 2 advice: %w", err)
	}
	attempts = append(attempts, adviceAttempt)

	reading := domain.ReadingResponse{
		Cards:             cardInterps,
		CardRelationships: applyCitations(relationships, celticCrossPositions),
		OverallReading:    applyCitations(overall, celticCrossPositions),
		Advice:            advice,
		Summary:           truncateRunes(overall, summaryCharsForAdvice),
	}

	if valErr := parser.Validate(reading, domain.SpreadCelticCross, celticCrossPositions); valErr != nil {
		return Result{}, fmt.Errorf("engine: validate celtic cross reading: %w", valErr)
	}

	return Result{Reading: reading, Attempts: attempts, DrawnCards: cards, Positions: celticCrossPositions}, nil
}

func (e *CelticCrossEngine) phase1(ctx context.Context, cards []domain.DrawnCard, question, category, ragContext string) ([]cardBatchResult, []domain.OrchestratorResponse, error) {
	var mu sync.Mutex
	var attempts []domain.OrchestratorResponse
	var allResults []cardBatchResult

	g, gctx := errgroup.WithContext(ctx)

	for batchStart := 0; batchStart < len(cards); batchStart += e.batchSize {
		batchStart := batchStart
		end := batchStart + e.batchSize
		if end > len(cards) {
			end = len(cards)
		}

		g.Go(func() error {
			if err := e.acquire(gctx); err != nil {
				return err
			}
			defer e.release()

			batchResults, batchAttempts, err := e.runBatch(gctx, cards[batchStart:end], batchStart, question, category, ragContext)
			if err != nil {
				return err
			}

			mu.Lock()
			allResults = append(allResults, batchResults...)
			attempts = append(attempts, batchAttempts...)
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return allResults, attempts, nil
}

func (e *CelticCrossEngine) runBatch(ctx context.Context, batch []domain.DrawnCard, startIndex int, question, category, ragContext string) ([]cardBatchResult, []domain.OrchestratorResponse, error) {
	analysis := analyzer.Analyze(analyzer.Input{
		TaskType:      analyzer.TaskCardInterpretation,
		UserPrompt:    ragContext,
		Question:      question,
		NumCards:      len(batch),
		Category:      category,
		HasRAGContext: ragContext != "",
	})
	alloc, err := analyzer.Allocate(analysis, analyzer.TaskCardInterpretation, e.registry, e.provider)
	if err != nil {
		return nil, nil, err
	}

	var attempts []domain.OrchestratorResponse
	results := make([]cardBatchResult, len(batch))

	for i, dc := range batch {
		idx := startIndex + i
		position := celticCrossPositions[idx]

		cfg := alloc.Config
		var reading domain.ReadingResponse
		var lastAttempt domain.OrchestratorResponse
		for attempt := 0; attempt <= maxBatchRetries; attempt++ {
			renderCard := prompt.CardRenderContextFrom(dc, position)
			userPrompt := fmt.Sprintf(
				"Celtic Cross position \"%s\": %s (%s), %s.\nKeywords: %v\nMeaning: %s\n\nQuestion: %s\n\n%s",
				position, renderCard.Name, renderCard.LocalizedName, renderCard.Orientation, renderCard.Keywords, renderCard.Meaning, question, ragContext,
			)

			resp, genErr := e.orchestrator.Generate(ctx, llm.Request{UserPrompt: userPrompt, Config: cfg, Model: alloc.ModelID})
			if genErr != nil {
				return nil, nil, genErr
			}
			lastAttempt = resp

			interp := domain.CardInterpretation{
				CardID:         dc.Card.ID,
				Position:       position,
				Interpretation: resp.Primary.Content,
				KeyMessage:     truncateRunes(resp.Primary.Content, 80),
			}
			if len(interp.Interpretation) >= parser.RulesFor(domain.SpreadCelticCross).MinInterpretationLen || attempt == maxBatchRetries {
				reading = domain.ReadingResponse{Cards: []domain.CardInterpretation{interp}}
				break
			}
			nextMaxTokens := int(float64(cfg.MaxTokens) * truncationRetryInflation)
			if meta, ok := e.registry.Get(alloc.ModelID); ok && meta.MaxContextWindow > 0 && nextMaxTokens > meta.MaxContextWindow {
				nextMaxTokens = meta.MaxContextWindow
			}
			cfg = cfg.WithMaxTokens(nextMaxTokens)
		}

		attempts = append(attempts, lastAttempt)
		results[i] = cardBatchResult{index: idx, interpretation: reading.Cards[0], attempt: lastAttempt}
	}

	return results, attempts, nil
}

func (e *CelticCrossEngine) phase2Overall(ctx context.Context, cards []domain.DrawnCard, question, category, ragContext string) (string, string, []domain.OrchestratorResponse, error) {
	var overall, relationships string
	var attempts []domain.OrchestratorResponse
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := e.acquire(gctx); err != nil {
			return err
		}
		defer e.release()

		analysis := analyzer.Analyze(analyzer.Input{TaskType: analyzer.TaskOverallReading, Question: question, NumCards: len(cards), Category: category, HasRAGContext: ragContext != ""})
		alloc, err := analyzer.Allocate(analysis, analyzer.TaskOverallReading, e.registry, e.provider)
		if err != nil {
			return err
		}
		resp, genErr := e.orchestrator.Generate(gctx, llm.Request{
			UserPrompt: fmt.Sprintf("Give the overall reading for this ten-card Celtic Cross spread.\nQuestion: %s\n\n%s", question, ragContext),
			Config:     alloc.Config, Model: alloc.ModelID,
		})
		if genErr != nil {
			return genErr
		}
		mu.Lock()
		overall = resp.Primary.Content
		attempts = append(attempts, resp)
		mu.Unlock()
		return nil
	})

	g.Go(func() error {
		if err := e.acquire(gctx); err != nil {
			return err
		}
		defer e.release()

		analysis := analyzer.Analyze(analyzer.Input{TaskType: analyzer.TaskRelationships, Question: question, NumCards: len(cards), Category: category, HasRAGContext: ragContext != ""})
		alloc, err := analyzer.Allocate(analysis, analyzer.TaskRelationships, e.registry, e.provider)
		if err != nil {
			return err
		}
		resp, genErr := e.orchestrator.Generate(gctx, llm.Request{
			UserPrompt: fmt.Sprintf("Describe how the ten drawn cards relate to each other.\nQuestion: %s\n\n%s", question, ragContext),
			Config:     alloc.Config, Model: alloc.ModelID,
		})
		if genErr != nil {
			return genErr
		}
		mu.Lock()
		relationships = resp.Primary.Content
		attempts = append(attempts, resp)
		mu.Unlock()
		return nil
	})

	if err := g.Wait(); err != nil {
		return "", "", nil, err
	}
	return overall, relationships, attempts, nil
}

func (e *CelticCrossEngine) phase2Advice(ctx context.Context, overall, question string) (domain.Advice, domain.OrchestratorResponse, error) {
	if err := e.acquire(ctx); err != nil {
		return domain.Advice{}, domain.OrchestratorResponse{}, err
	}
	defer e.release()

	summary := truncateRunes(overall, summaryCharsForAdvice)
	analysis := analyzer.Analyze(analyzer.Input{TaskType: analyzer.TaskAdvice, Question: question})
	alloc, err := analyzer.Allocate(analysis, analyzer.TaskAdvice, e.registry, e.provider)
	if err != nil {
		return domain.Advice{}, domain.OrchestratorResponse{}, err
	}

	resp, genErr := e.orchestrator.Generate(ctx, llm.Request{
		UserPrompt: fmt.Sprintf("Based on this reading summary, give immediate_action, short_term, long_term, mindset, and cautions advice.\nSummary: %s", summary),
		Config:     alloc.Config, Model: alloc.ModelID,
	})
	if genErr != nil {
		return domain.Advice{}, domain.OrchestratorResponse{}, genErr
	}

	return defaultAdviceStructure(resp.Primary.Content), resp, nil
}

// defaultAdviceStructure is the fallback structure used when no dedicated
// advice template/parse is available (spec.md §4.13).
func defaultAdviceStructure(content string) domain.Advice {
	return domain.Advice{
		ImmediateAction: content,
		ShortTerm:       content,
	}
}

func (e *CelticCrossEngine) acquire(ctx context.Context) error {
	select {
	case e.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *CelticCrossEngine) release() { <-e.sem }

// applyCitations rewrites raw snake_case position keys appearing in text
// (as the LLM tends to echo them back) into their canonical Title Case
// names, e.g. "recent_past" -> "Recent Past".
func applyCitations(text string, positions []string) string {
	for _, p := range positions {
		text = strings.ReplaceAll(text, p, titleCasePosition(p))
	}
	return text
}

func titleCasePosition(position string) string {
	words := strings.Split(position, "_")
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
