package engine

import (
	"math/rand/v2"

	"github.com/wizmain/tarot-reading-engine/internal/domain"
	"github.com/wizmain/tarot-reading-engine/internal/knowledge"
)

// DrawCards draws n distinct cards from the knowledge base's full deck,
// each independently oriented upright or reversed. Draws are immutable
// once produced (spec.md §3).
func DrawCards(kb *knowledge.Store, n int) []domain.DrawnCard {
	deck := kb.AllCards()
	rand.Shuffle(len(deck), func(i, j int) { deck[i], deck[j] = deck[j], deck[i] })

	if n > len(deck) {
		n = len(deck)
	}

	out := make([]domain.DrawnCard, n)
	for i := 0; i < n; i++ {
		orientation := domain.Upright
		if rand.IntN(2) == 1 {
			orientation = domain.Reversed
		}
		out[i] = domain.DrawnCard{Card: deck[i], Orientation: orientation}
	}
	return out
}
