package prompt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wizmain/tarot-reading-engine/internal/domain"
)

func TestBuildFullPromptOneCard(t *testing.T) {
	cards := []CardRenderContext{
		{CardID: 0, Position: "insight", Name: "The Fool", LocalizedName: "바보", Orientation: "upright", Keywords: []string{"beginnings"}, Meaning: "A leap of faith."},
	}
	built, err := BuildFullPrompt("Should I take the new job?", cards, domain.SpreadOneCard, "career", "", true, true)
	require.NoError(t, err)
	assert.Contains(t, built.UserPrompt, "The Fool")
	assert.Contains(t, built.UserPrompt, "career")
	assert.Contains(t, built.UserPrompt, "JSON")
	assert.NotEmpty(t, built.SystemPrompt)
}

func TestBuildFullPromptRejectsWrongCardCount(t *testing.T) {
	cards := []CardRenderContext{{CardID: 0, Name: "The Fool"}}
	_, err := BuildFullPrompt("q", cards, domain.SpreadThreeCardPastPresentFuture, "", "", true, true)
	assert.Error(t, err)
}

func TestBuildFullPromptOmitsSystemWhenDisabled(t *testing.T) {
	cards := []CardRenderContext{{CardID: 0, Name: "The Fool"}}
	built, err := BuildFullPrompt("q", cards, domain.SpreadOneCard, "", "", false, false)
	require.NoError(t, err)
	assert.Empty(t, built.SystemPrompt)
	assert.NotContains(t, built.UserPrompt, "JSON")
}

func TestCardRenderContextFromTranslatesOrientation(t *testing.T) {
	dc := domain.DrawnCard{
		Card:        domain.Card{ID: 20, Name: "Judgement", UprightKeywords: []string{"reckoning"}, ReversedKeywords: []string{"avoidance"}, UprightMeaning: "rise", ReversedMeaning: "avoid"},
		Orientation: domain.Reversed,
	}
	ctx := CardRenderContextFrom(dc, "outcome")
	assert.Equal(t, "reversed", ctx.Orientation)
	assert.Equal(t, []string{"avoidance"}, ctx.Keywords)
	assert.Equal(t, "avoid", ctx.Meaning)
}
