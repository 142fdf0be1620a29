// Package postgres implements persistence.DatabaseProvider against a
// relational schema via pgx's connection pool.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wizmain/tarot-reading-engine/internal/apierrors"
	"github.com/wizmain/tarot-reading-engine/internal/domain"
	"github.com/wizmain/tarot-reading-engine/internal/persistence"
)

// Provider is the relational DatabaseProvider implementation.
type Provider struct {
	pool *pgxpool.Pool
}

// New opens a pool against dsn and verifies connectivity.
func New(ctx context.Context, dsn string) (*Provider, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, apierrors.Wrap(apierrors.PersistenceError, "open postgres pool", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, apierrors.Wrap(apierrors.PersistenceError, "ping postgres", err)
	}
	return &Provider{pool: pool}, nil
}

// InitSchema creates the tables this provider depends on if absent.
func (p *Provider) InitSchema(ctx context.Context) error {
	_, err := p.pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS cards (
  id BIGINT PRIMARY KEY,
  name TEXT NOT NULL,
  localized_name TEXT NOT NULL DEFAULT '',
  arcana TEXT NOT NULL,
  suit TEXT NOT NULL DEFAULT '',
  rank INT NOT NULL DEFAULT 0,
  upright_keywords JSONB NOT NULL DEFAULT '[]',
  reversed_keywords JSONB NOT NULL DEFAULT '[]',
  upright_meaning TEXT NOT NULL DEFAULT '',
  reversed_meaning TEXT NOT NULL DEFAULT '',
  description TEXT NOT NULL DEFAULT '',
  symbolism TEXT NOT NULL DEFAULT '',
  image_url TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS readings (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL,
  spread_type TEXT NOT NULL,
  question TEXT NOT NULL DEFAULT '',
  category TEXT NOT NULL DEFAULT '',
  cards JSONB NOT NULL,
  card_relationships TEXT NOT NULL DEFAULT '',
  overall_reading TEXT NOT NULL DEFAULT '',
  advice JSONB NOT NULL,
  summary TEXT NOT NULL DEFAULT '',
  created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS llm_usage_logs (
  id TEXT PRIMARY KEY,
  reading_id TEXT NOT NULL REFERENCES readings(id) ON DELETE CASCADE,
  provider TEXT NOT NULL,
  model TEXT NOT NULL,
  prompt_tokens INT NOT NULL DEFAULT 0,
  completion_tokens INT NOT NULL DEFAULT 0,
  total_tokens INT NOT NULL DEFAULT 0,
  estimated_cost DOUBLE PRECISION NOT NULL DEFAULT 0,
  latency_seconds DOUBLE PRECISION NOT NULL DEFAULT 0,
  purpose TEXT NOT NULL,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`)
	if err != nil {
		return apierrors.Wrap(apierrors.PersistenceError, "init postgres schema", err)
	}
	return nil
}

// CreateReading writes the reading and, opportunistically, any attached
// usage logs in a single transaction.
func (p *Provider) CreateReading(ctx context.Context, payload domain.PersistedReading) (domain.PersistedReading, error) {
	now := time.Now().UTC()
	if payload.CreatedAt.IsZero() {
		payload.CreatedAt = now
	}
	payload.UpdatedAt = now

	cardsJSON, err := json.Marshal(payload.Cards)
	if err != nil {
		return payload, apierrors.Wrap(apierrors.PersistenceError, "marshal cards", err)
	}
	adviceJSON, err := json.Marshal(payload.Advice)
	if err != nil {
		return payload, apierrors.Wrap(apierrors.PersistenceError, "marshal advice", err)
	}

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return payload, apierrors.Wrap(apierrors.PersistenceError, "begin transaction", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
INSERT INTO readings(id, user_id, spread_type, question, category, cards, card_relationships, overall_reading, advice, summary, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
ON CONFLICT (id) DO UPDATE SET
  card_relationships=EXCLUDED.card_relationships,
  overall_reading=EXCLUDED.overall_reading,
  advice=EXCLUDED.advice,
  summary=EXCLUDED.summary,
  updated_at=EXCLUDED.updated_at
`, payload.ID, payload.UserID, string(payload.SpreadType), payload.Question, payload.Category,
		cardsJSON, payload.CardRelationships, payload.OverallReading, adviceJSON, payload.Summary,
		payload.CreatedAt, payload.UpdatedAt)
	if err != nil {
		return payload, apierrors.Wrap(apierrors.PersistenceError, "insert reading", err)
	}

	for _, l := range payload.LLMUsage {
		if err := insertUsageLog(ctx, tx, payload.ID, l); err != nil {
			return payload, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return payload, apierrors.Wrap(apierrors.PersistenceError, "commit reading", err)
	}
	return payload, nil
}

func insertUsageLog(ctx context.Context, tx pgx.Tx, readingID string, l domain.LLMUsageLog) error {
	if l.ID == "" {
		l.ID = fmt.Sprintf("%s-%s-%d", readingID, l.Purpose, time.Now().UnixNano())
	}
	if l.CreatedAt.IsZero() {
		l.CreatedAt = time.Now().UTC()
	}
	_, err := tx.Exec(ctx, `
INSERT INTO llm_usage_logs(id, reading_id, provider, model, prompt_tokens, completion_tokens, total_tokens, estimated_cost, latency_seconds, purpose, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
ON CONFLICT (id) DO NOTHING
`, l.ID, readingID, l.Provider, l.Model, l.PromptTokens, l.CompletionTokens, l.TotalTokens,
		l.EstimatedCost, l.LatencySeconds, string(l.Purpose), l.CreatedAt)
	if err != nil {
		return apierrors.Wrap(apierrors.PersistenceError, "insert llm usage log", err)
	}
	return nil
}

// CreateLLMUsageLog appends a standalone usage log, independent of
// CreateReading's own batch insert.
func (p *Provider) CreateLLMUsageLog(ctx context.Context, log domain.LLMUsageLog) error {
	_, err := p.pool.Exec(ctx, `
INSERT INTO llm_usage_logs(id, reading_id, provider, model, prompt_tokens, completion_tokens, total_tokens, estimated_cost, latency_seconds, purpose, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
ON CONFLICT (id) DO NOTHING
`, log.ID, log.ReadingID, log.Provider, log.Model, log.PromptTokens, log.CompletionTokens, log.TotalTokens,
		log.EstimatedCost, log.LatencySeconds, string(log.Purpose), log.CreatedAt)
	if err != nil {
		return apierrors.Wrap(apierrors.PersistenceError, "insert llm usage log", err)
	}
	return nil
}

// GetCardByID returns a single card, or (_, false, nil) if absent.
func (p *Provider) GetCardByID(ctx context.Context, id int) (domain.Card, bool, error) {
	row := p.pool.QueryRow(ctx, `
SELECT id, name, localized_name, arcana, suit, rank, upright_keywords, reversed_keywords, upright_meaning, reversed_meaning, description, symbolism, image_url
FROM cards WHERE id=$1
`, id)
	c, err := scanCard(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Card{}, false, nil
		}
		return domain.Card{}, false, apierrors.Wrap(apierrors.PersistenceError, "get card by id", err)
	}
	return c, true, nil
}

// GetCards returns a filtered, paginated slice of the card catalog.
func (p *Provider) GetCards(ctx context.Context, filters persistence.CardFilters, page persistence.Page) ([]domain.Card, error) {
	query := `
SELECT id, name, localized_name, arcana, suit, rank, upright_keywords, reversed_keywords, upright_meaning, reversed_meaning, description, symbolism, image_url
FROM cards WHERE 1=1`
	args := []any{}
	argN := 1
	if filters.Arcana != "" {
		query += fmt.Sprintf(" AND arcana=$%d", argN)
		args = append(args, string(filters.Arcana))
		argN++
	}
	if filters.Suit != "" {
		query += fmt.Sprintf(" AND suit=$%d", argN)
		args = append(args, string(filters.Suit))
		argN++
	}
	query += fmt.Sprintf(" ORDER BY id LIMIT $%d OFFSET $%d", argN, argN+1)
	limit := page.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit, page.Offset)

	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, apierrors.Wrap(apierrors.PersistenceError, "query cards", err)
	}
	defer rows.Close()
	return scanCards(rows)
}

// GetRandomCards returns n distinct cards in random order.
func (p *Provider) GetRandomCards(ctx context.Context, n int) ([]domain.Card, error) {
	rows, err := p.pool.Query(ctx, `
SELECT id, name, localized_name, arcana, suit, rank, upright_keywords, reversed_keywords, upright_meaning, reversed_meaning, description, symbolism, image_url
FROM cards ORDER BY random() LIMIT $1
`, n)
	if err != nil {
		return nil, apierrors.Wrap(apierrors.PersistenceError, "query random cards", err)
	}
	defer rows.Close()
	return scanCards(rows)
}

// Close releases the underlying pool.
func (p *Provider) Close(ctx context.Context) error {
	p.pool.Close()
	return nil
}

type cardScanner interface {
	Scan(dest ...any) error
}

func scanCard(row cardScanner) (domain.Card, error) {
	var c domain.Card
	var uprightKeywords, reversedKeywords []byte
	if err := row.Scan(&c.ID, &c.Name, &c.LocalizedName, &c.Arcana, &c.Suit, &c.Rank,
		&uprightKeywords, &reversedKeywords, &c.UprightMeaning, &c.ReversedMeaning,
		&c.Description, &c.Symbolism, &c.ImageURL); err != nil {
		return domain.Card{}, err
	}
	if err := json.Unmarshal(uprightKeywords, &c.UprightKeywords); err != nil {
		return domain.Card{}, err
	}
	if err := json.Unmarshal(reversedKeywords, &c.ReversedKeywords); err != nil {
		return domain.Card{}, err
	}
	return c, nil
}

func scanCards(rows pgx.Rows) ([]domain.Card, error) {
	var out []domain.Card
	for rows.Next() {
		c, err := scanCard(rows)
		if err != nil {
			return nil, apierrors.Wrap(apierrors.PersistenceError, "scan card row", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, apierrors.Wrap(apierrors.PersistenceError, "iterate card rows", err)
	}
	return out, nil
}

var _ persistence.DatabaseProvider = (*Provider)(nil)
