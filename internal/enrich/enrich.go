// Package enrich fans out across the retriever's five query families
// concurrently and assembles a fixed-shape domain.EnrichedContext
// (spec.md §4.10). Any single family's failure degrades that section to
// empty rather than failing the whole enrichment.
package enrich

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/wizmain/tarot-reading-engine/internal/domain"
	"github.com/wizmain/tarot-reading-engine/internal/retriever"
)

const snippetsPerFamily = 3

// Enricher wraps a Retriever to produce prompt-ready context bundles.
type Enricher struct {
	retriever *retriever.Retriever
	logger    *slog.Logger
}

func New(r *retriever.Retriever, logger *slog.Logger) *Enricher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Enricher{retriever: r, logger: logger}
}

// Enrich runs all five retrieval families concurrently, waits for all, and
// returns a fixed-shape EnrichedContext. It never returns an error: a
// per-family failure is logged and leaves that section empty.
func (e *Enricher) Enrich(ctx context.Context, cards []domain.DrawnCard, spreadType domain.SpreadType, question string, category, language string) domain.EnrichedContext {
	cardIDs := make([]int, len(cards))
	for i, c := range cards {
		cardIDs[i] = c.Card.ID
	}

	out := domain.EnrichedContext{
		Metadata: domain.EnrichedContextMetadata{
			Language:   language,
			Question:   question,
			SpreadType: spreadType,
			Category:   category,
			NumCards:   len(cards),
		},
	}

	g, gctx := errgroup.WithContext(ctx)

	cardsContext := make([]domain.CardContext, len(cards))
	for i, c := range cards {
		i, c := i, c
		g.Go(func() error {
			cc, err := e.retriever.RetrieveCardContext(gctx, c.Card.ID, question, snippetsPerFamily)
			if err != nil {
				e.logger.Warn("enrich: card context failed, using empty section", "card_id", c.Card.ID, "error", err)
				cardsContext[i] = domain.CardContext{Card: c.Card}
				return nil
			}
			cardsContext[i] = domain.CardContext{
				Card:      cc.Card,
				Snippets:  cc.Snippets.Documents,
				Positions: nil,
			}
			return nil
		})
	}

	g.Go(func() error {
		sp, err := e.retriever.RetrieveSpreadContext(gctx, string(spreadType), snippetsPerFamily)
		if err != nil {
			e.logger.Warn("enrich: spread context failed, using empty section", "error", err)
			return nil
		}
		out.SpreadContext = sp.Snippets.Documents
		return nil
	})

	if len(cards) > 1 {
		g.Go(func() error {
			cc, err := e.retriever.RetrieveCombinationContext(gctx, cardIDs, snippetsPerFamily)
			if err != nil {
				e.logger.Warn("enrich: combination context failed, using empty section", "error", err)
				return nil
			}
			descs := make([]string, 0, len(cc.Combinations)+len(cc.Snippets.Documents))
			for _, c := range cc.Combinations {
				descs = append(descs, c.Description)
			}
			descs = append(descs, cc.Snippets.Documents...)
			out.CombinationContext = descs
			return nil
		})
	}

	if category != "" {
		g.Go(func() error {
			cc, err := e.retriever.RetrieveCategoryContext(gctx, category, cardIDs, snippetsPerFamily)
			if err != nil {
				e.logger.Warn("enrich: category context failed, using empty section", "error", err)
				return nil
			}
			docs := cc.Snippets.Documents
			if cc.Category.Description != "" {
				docs = append([]string{cc.Category.Description}, docs...)
			}
			out.CategoryContext = docs
			return nil
		})
	}

	g.Go(func() error {
		result, err := e.retriever.RetrieveGeneralContext(gctx, question, snippetsPerFamily)
		if err != nil {
			e.logger.Warn("enrich: general context failed, using empty section", "error", err)
			return nil
		}
		out.GeneralInsights = result.Documents
		return nil
	})

	// errgroup.Wait never returns an error here: every goroutine above
	// swallows its own failure, so only a genuine panic could surface one.
	_ = g.Wait()

	out.CardsContext = cardsContext
	return out
}

// Format renders an EnrichedContext for prompt inclusion per one of the
// three fixed templates (spec.md §4.10).
func Format(ctx domain.EnrichedContext, template domain.FormatTemplate) string {
	switch template {
	case domain.FormatConcise:
		return formatConcise(ctx)
	case domain.FormatSymbolic:
		return formatSymbolic(ctx)
	default:
		return formatDetailed(ctx)
	}
}

func formatDetailed(ctx domain.EnrichedContext) string {
	var b strings.Builder
	for _, cc := range ctx.CardsContext {
		fmt.Fprintf(&b, "Card: %s (%s)\n", cc.Card.Name, cc.Card.LocalizedName)
		for _, s := range cc.Snippets {
			fmt.Fprintf(&b, "  - %s\n", s)
		}
	}
	if len(ctx.SpreadContext) > 0 {
		b.WriteString("Spread insights:\n")
		for _, s := range ctx.SpreadContext {
			fmt.Fprintf(&b, "  - %s\n", s)
		}
	}
	if len(ctx.CombinationContext) > 0 {
		b.WriteString("Combinations:\n")
		for _, s := range ctx.CombinationContext {
			fmt.Fprintf(&b, "  - %s\n", s)
		}
	}
	if len(ctx.CategoryContext) > 0 {
		b.WriteString("Category context:\n")
		for _, s := range ctx.CategoryContext {
			fmt.Fprintf(&b, "  - %s\n", s)
		}
	}
	if len(ctx.GeneralInsights) > 0 {
		b.WriteString("General insights:\n")
		for _, s := range ctx.GeneralInsights {
			fmt.Fprintf(&b, "  - %s\n", s)
		}
	}
	return b.String()
}

func formatConcise(ctx domain.EnrichedContext) string {
	var parts []string
	for _, cc := range ctx.CardsContext {
		parts = append(parts, cc.Card.Name)
	}
	if len(ctx.GeneralInsights) > 0 {
		parts = append(parts, ctx.GeneralInsights[0])
	}
	return strings.Join(parts, "; ")
}

func formatSymbolic(ctx domain.EnrichedContext) string {
	var parts []string
	for _, cc := range ctx.CardsContext {
		parts = append(parts, cc.Card.Symbolism)
	}
	return strings.Join(parts, " | ")
}
