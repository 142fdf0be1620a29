// Package mongo implements persistence.DatabaseProvider as a document
// store. Usage logs are embedded directly in the reading document rather
// than living in a separate collection, per spec.md's note that a document
// backend may fold them in.
package mongo

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/wizmain/tarot-reading-engine/internal/apierrors"
	"github.com/wizmain/tarot-reading-engine/internal/domain"
	"github.com/wizmain/tarot-reading-engine/internal/persistence"
)

const (
	readingsCollection = "readings"
	cardsCollection    = "cards"
)

// Provider is the document-store DatabaseProvider implementation.
type Provider struct {
	client   *mongo.Client
	db       *mongo.Database
	readings *mongo.Collection
	cards    *mongo.Collection
}

// New connects to uri and selects dbName.
func New(ctx context.Context, uri, dbName string) (*Provider, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, apierrors.Wrap(apierrors.PersistenceError, "connect mongo", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, apierrors.Wrap(apierrors.PersistenceError, "ping mongo", err)
	}
	db := client.Database(dbName)
	return &Provider{
		client:   client,
		db:       db,
		readings: db.Collection(readingsCollection),
		cards:    db.Collection(cardsCollection),
	}, nil
}

// readingDoc mirrors domain.PersistedReading for BSON encoding, using
// reading_id as the document's own _id.
type readingDoc struct {
	ID                string                `bson:"_id"`
	UserID            string                `bson:"user_id"`
	SpreadType        domain.SpreadType     `bson:"spread_type"`
	Question          string                `bson:"question"`
	Category          string                `bson:"category,omitempty"`
	Cards             []domain.PersistedCard `bson:"cards"`
	CardRelationships string                `bson:"card_relationships"`
	OverallReading    string                `bson:"overall_reading"`
	Advice            domain.Advice         `bson:"advice"`
	Summary           string                `bson:"summary"`
	CreatedAt         time.Time             `bson:"created_at"`
	UpdatedAt         time.Time             `bson:"updated_at"`
	LLMUsage          []domain.LLMUsageLog  `bson:"llm_usage"`
}

func toDoc(p domain.PersistedReading) readingDoc {
	return readingDoc{
		ID:                p.ID,
		UserID:            p.UserID,
		SpreadType:        p.SpreadType,
		Question:          p.Question,
		Category:          p.Category,
		Cards:             p.Cards,
		CardRelationships: p.CardRelationships,
		OverallReading:    p.OverallReading,
		Advice:            p.Advice,
		Summary:           p.Summary,
		CreatedAt:         p.CreatedAt,
		UpdatedAt:         p.UpdatedAt,
		LLMUsage:          p.LLMUsage,
	}
}

func fromDoc(d readingDoc) domain.PersistedReading {
	return domain.PersistedReading{
		ID:                d.ID,
		UserID:            d.UserID,
		SpreadType:        d.SpreadType,
		Question:          d.Question,
		Category:          d.Category,
		Cards:             d.Cards,
		CardRelationships: d.CardRelationships,
		OverallReading:    d.OverallReading,
		Advice:            d.Advice,
		Summary:           d.Summary,
		CreatedAt:         d.CreatedAt,
		UpdatedAt:         d.UpdatedAt,
		LLMUsage:          d.LLMUsage,
	}
}

// CreateReading upserts the reading document by ID.
func (p *Provider) CreateReading(ctx context.Context, payload domain.PersistedReading) (domain.PersistedReading, error) {
	now := time.Now().UTC()
	if payload.CreatedAt.IsZero() {
		payload.CreatedAt = now
	}
	payload.UpdatedAt = now

	doc := toDoc(payload)
	_, err := p.readings.ReplaceOne(ctx, bson.M{"_id": doc.ID}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return payload, apierrors.Wrap(apierrors.PersistenceError, "upsert reading document", err)
	}
	return payload, nil
}

// CreateLLMUsageLog appends a usage entry to the reading's embedded array.
func (p *Provider) CreateLLMUsageLog(ctx context.Context, log domain.LLMUsageLog) error {
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now().UTC()
	}
	_, err := p.readings.UpdateOne(ctx,
		bson.M{"_id": log.ReadingID},
		bson.M{"$push": bson.M{"llm_usage": log}},
	)
	if err != nil {
		return apierrors.Wrap(apierrors.PersistenceError, "append llm usage log", err)
	}
	return nil
}

// cardDoc mirrors domain.Card for the separate card-catalog collection.
type cardDoc struct {
	ID               int      `bson:"_id"`
	Name             string   `bson:"name"`
	LocalizedName    string   `bson:"localized_name"`
	Arcana           domain.Arcana `bson:"arcana"`
	Suit             domain.Suit   `bson:"suit,omitempty"`
	Rank             int      `bson:"rank,omitempty"`
	UprightKeywords  []string `bson:"upright_keywords"`
	ReversedKeywords []string `bson:"reversed_keywords"`
	UprightMeaning   string   `bson:"upright_meaning"`
	ReversedMeaning  string   `bson:"reversed_meaning"`
	Description      string   `bson:"description,omitempty"`
	Symbolism        string   `bson:"symbolism,omitempty"`
	ImageURL         string   `bson:"image_url,omitempty"`
}

func cardFromDoc(d cardDoc) domain.Card {
	return domain.Card{
		ID:               d.ID,
		Name:             d.Name,
		LocalizedName:    d.LocalizedName,
		Arcana:           d.Arcana,
		Suit:             d.Suit,
		Rank:             d.Rank,
		UprightKeywords:  d.UprightKeywords,
		ReversedKeywords: d.ReversedKeywords,
		UprightMeaning:   d.UprightMeaning,
		ReversedMeaning:  d.ReversedMeaning,
		Description:      d.Description,
		Symbolism:        d.Symbolism,
		ImageURL:         d.ImageURL,
	}
}

// GetCardByID returns a single card, or (_, false, nil) if absent.
func (p *Provider) GetCardByID(ctx context.Context, id int) (domain.Card, bool, error) {
	var d cardDoc
	err := p.cards.FindOne(ctx, bson.M{"_id": id}).Decode(&d)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.Card{}, false, nil
	}
	if err != nil {
		return domain.Card{}, false, apierrors.Wrap(apierrors.PersistenceError, "find card by id", err)
	}
	return cardFromDoc(d), true, nil
}

// GetCards returns a filtered, paginated slice of the card catalog.
func (p *Provider) GetCards(ctx context.Context, filters persistence.CardFilters, page persistence.Page) ([]domain.Card, error) {
	filter := bson.M{}
	if filters.Arcana != "" {
		filter["arcana"] = filters.Arcana
	}
	if filters.Suit != "" {
		filter["suit"] = filters.Suit
	}

	limit := int64(page.Limit)
	if limit <= 0 {
		limit = 100
	}
	opts := options.Find().SetSort(bson.M{"_id": 1}).SetSkip(int64(page.Offset)).SetLimit(limit)

	cur, err := p.cards.Find(ctx, filter, opts)
	if err != nil {
		return nil, apierrors.Wrap(apierrors.PersistenceError, "find cards", err)
	}
	defer cur.Close(ctx)

	var out []domain.Card
	for cur.Next(ctx) {
		var d cardDoc
		if err := cur.Decode(&d); err != nil {
			return nil, apierrors.Wrap(apierrors.PersistenceError, "decode card document", err)
		}
		out = append(out, cardFromDoc(d))
	}
	if err := cur.Err(); err != nil {
		return nil, apierrors.Wrap(apierrors.PersistenceError, "iterate card cursor", err)
	}
	return out, nil
}

// GetRandomCards returns n distinct cards via an aggregation $sample stage.
func (p *Provider) GetRandomCards(ctx context.Context, n int) ([]domain.Card, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$sample", Value: bson.M{"size": n}}},
	}
	cur, err := p.cards.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, apierrors.Wrap(apierrors.PersistenceError, "sample random cards", err)
	}
	defer cur.Close(ctx)

	var out []domain.Card
	for cur.Next(ctx) {
		var d cardDoc
		if err := cur.Decode(&d); err != nil {
			return nil, apierrors.Wrap(apierrors.PersistenceError, "decode sampled card", err)
		}
		out = append(out, cardFromDoc(d))
	}
	if err := cur.Err(); err != nil {
		return nil, apierrors.Wrap(apierrors.PersistenceError, "iterate sampled cards", err)
	}
	return out, nil
}

// Close disconnects the underlying client.
func (p *Provider) Close(ctx context.Context) error {
	if err := p.client.Disconnect(ctx); err != nil {
		return apierrors.Wrap(apierrors.PersistenceError, "disconnect mongo client", err)
	}
	return nil
}

var _ persistence.DatabaseProvider = (*Provider)(nil)
