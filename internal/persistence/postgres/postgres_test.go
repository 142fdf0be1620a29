package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/wizmain/tarot-reading-engine/internal/domain"
	"github.com/wizmain/tarot-reading-engine/internal/persistence"
)

// These tests exercise a real postgres instance and are skipped unless
// TAROT_TEST_POSTGRES_DSN is set, mirroring how the pack's own
// pgx-backed stores gate their integration tests on an env var.
func TestCreateAndFetchReadingRoundTrips(t *testing.T) {
	dsn := os.Getenv("TAROT_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TAROT_TEST_POSTGRES_DSN not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	p, err := New(ctx, dsn)
	require.NoError(t, err)
	defer p.Close(ctx)
	require.NoError(t, p.InitSchema(ctx))

	payload := domain.PersistedReading{
		ID:         "reading-test-1",
		UserID:     "user-1",
		SpreadType: domain.SpreadOneCard,
		Question:   "Should I take the job?",
		Cards: []domain.PersistedCard{
			{CardID: 0, Position: "insight", Orientation: domain.Upright, Interpretation: "growth ahead"},
		},
		OverallReading: "a time of new beginnings",
		Summary:        "new beginnings",
		Advice:         domain.Advice{ImmediateAction: "say yes", ShortTerm: "prepare"},
		LLMUsage: []domain.LLMUsageLog{
			{Provider: "fake", Model: "fake-model", Purpose: domain.PurposeMainReading, TotalTokens: 120},
		},
	}

	saved, err := p.CreateReading(ctx, payload)
	require.NoError(t, err)
	require.Equal(t, payload.ID, saved.ID)

	_, err = p.pool.Exec(ctx, `INSERT INTO cards(id, name, arcana) VALUES ($1,$2,$3) ON CONFLICT (id) DO NOTHING`, 0, "The Fool", "major")
	require.NoError(t, err)

	card, found, err := p.GetCardByID(ctx, 0)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "The Fool", card.Name)

	_, notFound, err := p.GetCardByID(ctx, 9999)
	require.NoError(t, err)
	require.False(t, notFound)

	cards, err := p.GetCards(ctx, persistence.CardFilters{Arcana: domain.ArcanaMajor}, persistence.Page{Limit: 10})
	require.NoError(t, err)
	require.NotEmpty(t, cards)
}
