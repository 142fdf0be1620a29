package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wizmain/tarot-reading-engine/internal/knowledge"
)

func TestDrawCardsReturnsDistinctCards(t *testing.T) {
	kb, err := knowledge.Load("../../testdata/knowledge", nil)
	require.NoError(t, err)

	drawn := DrawCards(kb, 3)
	require.Len(t, drawn, 3)

	seen := make(map[int]bool)
	for _, d := range drawn {
		assert.False(t, seen[d.Card.ID], "card drawn twice")
		seen[d.Card.ID] = true
	}
}

func TestDrawCardsCapsAtDeckSize(t *testing.T) {
	kb, err := knowledge.Load("../../testdata/knowledge", nil)
	require.NoError(t, err)

	drawn := DrawCards(kb, 1000)
	assert.LessOrEqual(t, len(drawn), len(kb.AllCards()))
}
