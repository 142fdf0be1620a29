package knowledge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFixtureKnowledgeBase(t *testing.T) {
	s, err := Load("../../testdata/knowledge", nil)
	require.NoError(t, err)

	card, ok := s.GetCard(0)
	require.True(t, ok)
	assert.Equal(t, "The Fool", card.Name)

	sp, ok := s.GetSpread("one_card")
	require.True(t, ok)
	assert.Equal(t, 1, sp.NumCards)

	cat, ok := s.GetCategory("love")
	require.True(t, ok)
	assert.NotEmpty(t, cat.Keywords)
}

func TestLegacyCardIDAliasResolvesTo20(t *testing.T) {
	s, err := Load("../../testdata/knowledge", nil)
	require.NoError(t, err)

	aliased, ok := s.GetCard(21)
	require.True(t, ok)
	canonical, ok := s.GetCard(20)
	require.True(t, ok)
	assert.Equal(t, canonical.Name, aliased.Name)
}

func TestMissingDirectoryIsWarnOnlyNotFatal(t *testing.T) {
	s, err := Load("/nonexistent/path/does/not/exist", nil)
	require.NoError(t, err)
	assert.Empty(t, s.AllCards())
}

func TestCombinationsContainingAny(t *testing.T) {
	s, err := Load("../../testdata/knowledge", nil)
	require.NoError(t, err)

	combos := s.CombinationsContainingAny([]int{0})
	assert.NotEmpty(t, combos)
}
