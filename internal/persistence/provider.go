// Package persistence defines the DatabaseProvider abstraction (spec.md
// §6.2) that the reading pipeline's core calls against, without depending
// on either concrete backend.
package persistence

import (
	"context"

	"github.com/wizmain/tarot-reading-engine/internal/domain"
)

// CardFilters narrows a get_cards query. Zero values mean "unfiltered".
type CardFilters struct {
	Arcana domain.Arcana
	Suit   domain.Suit
}

// Page is a simple offset/limit pagination window.
type Page struct {
	Offset int
	Limit  int
}

// DatabaseProvider is the persistence abstraction selectable at boot
// (spec.md §6.2). Exactly two implementations are required: a relational
// one (postgres) and a document one (mongo).
type DatabaseProvider interface {
	CreateReading(ctx context.Context, payload domain.PersistedReading) (domain.PersistedReading, error)
	GetCardByID(ctx context.Context, id int) (domain.Card, bool, error)
	GetCards(ctx context.Context, filters CardFilters, page Page) ([]domain.Card, error)
	GetRandomCards(ctx context.Context, n int) ([]domain.Card, error)
	CreateLLMUsageLog(ctx context.Context, log domain.LLMUsageLog) error
	Close(ctx context.Context) error
}
