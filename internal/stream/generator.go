package stream

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/wizmain/tarot-reading-engine/internal/apierrors"
	"github.com/wizmain/tarot-reading-engine/internal/domain"
	"github.com/wizmain/tarot-reading-engine/internal/engine"
	"github.com/wizmain/tarot-reading-engine/internal/enrich"
	"github.com/wizmain/tarot-reading-engine/internal/knowledge"
)

// Persister is the subset of persistence.DatabaseProvider the streaming
// layer needs for its fire-and-forget background write.
type Persister interface {
	CreateReading(ctx context.Context, payload domain.PersistedReading) (domain.PersistedReading, error)
}

// Generator produces the fixed-stage-order SSE sequence for one reading
// request (spec.md §4.15).
type Generator struct {
	kb       *knowledge.Store
	enricher *enrich.Enricher
	single   *engine.SingleCallEngine
	persist  Persister
	logger   *slog.Logger

	// inFlight tracks background persistence goroutines so they are not
	// garbage-collected away before completion (spec.md §4.15's "weak set
	// of in-flight tasks" requirement, realized here as a WaitGroup the
	// generator itself owns rather than a GC-observable weak reference,
	// since Go has no client-visible weak pointers).
	inFlight sync.WaitGroup
}

func NewGenerator(kb *knowledge.Store, enricher *enrich.Enricher, single *engine.SingleCallEngine, persist Persister, logger *slog.Logger) *Generator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{kb: kb, enricher: enricher, single: single, persist: persist, logger: logger}
}

// Generate runs the full sequence and sends each rendered SSE frame to out,
// closing out when done. On any failure, exactly one error event is sent
// before out is closed.
func (g *Generator) Generate(ctx context.Context, readingID, userID, question string, spreadType domain.SpreadType, category, language string, numCards int) <-chan string {
	out := make(chan string, 16)

	go func() {
		defer close(out)
		start := time.Now()

		send := func(e Event) {
			frame, err := Format(e)
			if err != nil {
				g.logger.Warn("stream: failed to format event", "event", e.Name, "error", err)
				return
			}
			select {
			case out <- frame:
			case <-ctx.Done():
			}
		}

		fail := func(stage ProgressStage, err error) {
			kind := apierrors.KindOf(err)
			send(Event{Name: EventError, Data: errorPayload{
				Type:    kind.String(),
				Message: err.Error(),
				Details: truncateDetails(err.Error()),
				Stage:   string(stage),
			}})
		}

		send(progressEvent(StageInitializing, 0))
		send(Event{Name: EventStarted, Data: map[string]any{"reading_id": readingID}})

		send(progressEvent(StageDrawingCards, 10))
		cards := engine.DrawCards(g.kb, numCards)
		if len(cards) != numCards {
			fail(StageDrawingCards, apierrors.New(apierrors.InvalidRequest, "not enough cards in knowledge base to draw requested count"))
			return
		}

		positions := positionsForStream(spreadType, numCards)
		cardSpan := 20.0 / float64(numCards)
		for i, c := range cards {
			progress := 10 + int(float64(i+1)*cardSpan)
			send(Event{Name: EventCardDrawn, Data: cardDrawnPayload{
				CardID:     c.Card.ID,
				Name:       c.Card.Name,
				Position:   positions[i],
				IsReversed: c.Orientation == domain.Reversed,
				Progress:   progress,
			}})
		}

		send(progressEvent(StageEnrichingContext, 35))
		enriched := g.enricher.Enrich(ctx, cards, spreadType, question, category, language)
		send(Event{Name: EventRAGEnrichment, Data: ragEnrichmentPayload{
			CardsEnriched:  len(enriched.CardsContext),
			SpreadLoaded:   len(enriched.SpreadContext) > 0,
			CategoryLoaded: len(enriched.CategoryContext) > 0,
		}})
		send(progressEvent(StageEnrichingContext, 50))

		send(progressEvent(StageGeneratingAI, 60))
		send(Event{Name: EventAIGeneration, Data: aiGenerationPayload{Provider: "", Model: ""}})

		result, err := g.single.Generate(ctx, cards, spreadType, question, category, language)
		if err != nil {
			fail(StageGeneratingAI, err)
			return
		}
		if len(result.Attempts) > 1 {
			// Each retry beyond the first climbs progress within the
			// generating_ai stage, per spec.md §4.15.
			for i := 1; i < len(result.Attempts); i++ {
				send(progressEvent(StageGeneratingAI, 60+i*5))
			}
		}

		send(progressEvent(StageFinalizing, 82))
		send(Event{Name: EventSectionComplete, Data: sectionCompletePayload{Section: "summary"}})
		send(progressEvent(StageFinalizing, 84))
		send(Event{Name: EventSectionComplete, Data: sectionCompletePayload{Section: "cards"}})
		send(progressEvent(StageFinalizing, 86))
		send(Event{Name: EventSectionComplete, Data: sectionCompletePayload{Section: "overall_reading"}})
		send(progressEvent(StageFinalizing, 88))
		send(Event{Name: EventSectionComplete, Data: sectionCompletePayload{Section: "advice"}})
		send(progressEvent(StageFinalizing, 90))

		send(progressEvent(StageFinalizing, 92))
		g.schedulePersistence(readingID, userID, question, spreadType, category, cards, result, positions)

		send(progressEvent(StageCompleted, 100))
		send(Event{Name: EventComplete, Data: completePayload{
			ReadingID:      readingID,
			TotalTimeMS:    time.Since(start).Milliseconds(),
			ReadingSummary: result.Reading.Summary,
		}})
	}()

	return out
}

// schedulePersistence fires the background write and logs (rather than
// raises) any failure, per spec.md §6.2.
func (g *Generator) schedulePersistence(readingID, userID, question string, spreadType domain.SpreadType, category string, cards []domain.DrawnCard, result engine.Result, positions []string) {
	if g.persist == nil {
		return
	}

	persistedCards := make([]domain.PersistedCard, len(result.Reading.Cards))
	for i, ci := range result.Reading.Cards {
		var orientation domain.Orientation
		var snapshot domain.Card
		if i < len(cards) {
			orientation = cards[i].Orientation
			snapshot = cards[i].Card
		}
		persistedCards[i] = domain.PersistedCard{
			CardID:         ci.CardID,
			Position:       ci.Position,
			Orientation:    orientation,
			Interpretation: ci.Interpretation,
			KeyMessage:     ci.KeyMessage,
			CardSnapshot:   snapshot,
		}
	}

	payload := domain.PersistedReading{
		ID:                readingID,
		UserID:            userID,
		SpreadType:        spreadType,
		Question:          question,
		Category:          category,
		Cards:             persistedCards,
		CardRelationships: result.Reading.CardRelationships,
		OverallReading:    result.Reading.OverallReading,
		Advice:            result.Reading.Advice,
		Summary:           result.Reading.Summary,
	}

	g.inFlight.Add(1)
	go func() {
		defer g.inFlight.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if _, err := g.persist.CreateReading(ctx, payload); err != nil {
			g.logger.Error("stream: background persistence failed", "reading_id", readingID, "error", err)
		}
	}()
}

// Wait blocks until every in-flight background persistence task launched
// by this generator has completed. Intended for graceful shutdown and
// tests, not the request path itself.
func (g *Generator) Wait() {
	g.inFlight.Wait()
}

func positionsForStream(spreadType domain.SpreadType, numCards int) []string {
	switch spreadType {
	case domain.SpreadOneCard:
		return []string{"insight"}
	case domain.SpreadThreeCardPastPresentFuture:
		return []string{"past", "present", "future"}
	case domain.SpreadThreeCardSituationActionOut:
		return []string{"situation", "action", "outcome"}
	case domain.SpreadCelticCross:
		return []string{
			"present", "challenge", "foundation", "recent_past", "potential",
			"near_future", "self", "environment", "hopes_fears", "outcome",
		}
	default:
		out := make([]string, numCards)
		for i := range out {
			out[i] = "position"
		}
		return out
	}
}
