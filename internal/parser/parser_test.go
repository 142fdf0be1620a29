package parser

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wizmain/tarot-reading-engine/internal/apierrors"
	"github.com/wizmain/tarot-reading-engine/internal/domain"
)

func TestExtractFencedJSONBlock(t *testing.T) {
	raw := "Here is the reading:\n```json\n{\"summary\": \"ok\"}\n```\nThanks."
	out, err := Extract(raw, domain.FinishStop)
	require.NoError(t, err)
	assert.Equal(t, `{"summary": "ok"}`, out)
}

func TestExtractBraceMatchingFallback(t *testing.T) {
	raw := "preamble text {\"summary\": \"ok\"} trailing text"
	out, err := Extract(raw, domain.FinishStop)
	require.NoError(t, err)
	assert.Equal(t, `{"summary": "ok"}`, out)
}

func TestExtractNoJSONIsError(t *testing.T) {
	_, err := Extract("no json here at all", domain.FinishStop)
	require.Error(t, err)
	assert.Equal(t, apierrors.JSONExtractionError, apierrors.KindOf(err))
}

func TestParseTaggedTruncatedOnMaxTokensFinish(t *testing.T) {
	raw := `{"cards": [{"card_id": 0, "position": "insight", "interpretation": "unterminated`
	_, err := Parse(raw, domain.FinishMaxTokens)
	require.Error(t, err)

	var apiErr *apierrors.Error
	require.True(t, apierrors.As(err, &apiErr))
	assert.True(t, apiErr.Truncated)
}

func koreanInterpretation(n int) string {
	return strings.Repeat("가", n)
}

func validOneCardReading() domain.ReadingResponse {
	interp := koreanInterpretation(100)
	return domain.ReadingResponse{
		Cards: []domain.CardInterpretation{
			{CardID: 0, Position: "insight", Interpretation: interp, KeyMessage: "새로운 시작"},
		},
		OverallReading: koreanInterpretation(90),
		Summary:        "요약",
		Advice: domain.Advice{
			ImmediateAction: koreanInterpretation(30),
			ShortTerm:       koreanInterpretation(30),
		},
	}
}

func TestValidateAcceptsWellFormedReading(t *testing.T) {
	reading := validOneCardReading()
	err := Validate(reading, domain.SpreadOneCard, []string{"insight"})
	assert.NoError(t, err)
}

func TestValidateRejectsEmptyCards(t *testing.T) {
	err := Validate(domain.ReadingResponse{}, domain.SpreadOneCard, nil)
	require.Error(t, err)
	assert.Equal(t, apierrors.ValidationError, apierrors.KindOf(err))
}

func TestValidateRejectsDuplicatePositions(t *testing.T) {
	reading := validOneCardReading()
	reading.Cards = append(reading.Cards, reading.Cards[0])
	err := Validate(reading, domain.SpreadOneCard, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate position")
}

func TestValidateRejectsLowKoreanRatio(t *testing.T) {
	reading := validOneCardReading()
	reading.Cards[0].Interpretation = strings.Repeat("a", 100)
	reading.OverallReading = strings.Repeat("a", 100)
	reading.Advice.ImmediateAction = strings.Repeat("a", 30)
	reading.Advice.ShortTerm = strings.Repeat("a", 30)
	err := Validate(reading, domain.SpreadOneCard, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "korean content ratio")
}

func TestValidateRejectsShortInterpretation(t *testing.T) {
	reading := validOneCardReading()
	reading.Cards[0].Interpretation = "너무 짧음"
	err := Validate(reading, domain.SpreadOneCard, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "interpretation")
}

func TestRulesForCelticCrossRelaxesThresholds(t *testing.T) {
	rules := RulesFor(domain.SpreadCelticCross)
	assert.Equal(t, 80, rules.MinInterpretationLen)
	assert.Equal(t, 300, rules.MinOverallLen)
	assert.InDelta(t, 0.10, rules.MinKoreanRatio, 1e-9)
}
