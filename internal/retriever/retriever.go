// Package retriever builds the five query families (spec.md §4.9) over the
// vector store and knowledge base, with an optional process-wide LRU cache.
// Each uncached call holds a slot of a bounded semaphore (Config.PoolSize,
// default 5) while it embeds and searches, which caps concurrent
// vector-store I/O; the work runs on the caller's goroutine.
package retriever

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/wizmain/tarot-reading-engine/internal/domain"
	"github.com/wizmain/tarot-reading-engine/internal/embed"
	"github.com/wizmain/tarot-reading-engine/internal/knowledge"
	"github.com/wizmain/tarot-reading-engine/internal/vectorstore"
)

const cardsCollection = "cards"
const generalCollection = "general"

// Config configures the optional LRU layer and worker pool size.
type Config struct {
	CacheEnabled bool
	CacheSize    int
	CacheTTL     time.Duration
	PoolSize     int
}

// Retriever answers the five retrieval families, optionally cached.
type Retriever struct {
	store    *vectorstore.Store
	kb       *knowledge.Store
	embedder *embed.Embedder
	cache    *lruCache
	sem      chan struct{}
}

func New(store *vectorstore.Store, kb *knowledge.Store, embedder *embed.Embedder, cfg Config) *Retriever {
	r := &Retriever{store: store, kb: kb, embedder: embedder}
	if cfg.CacheEnabled {
		r.cache = newLRUCache(cfg.CacheSize, cfg.CacheTTL)
	}
	poolSize := cfg.PoolSize
	if poolSize <= 0 {
		poolSize = 5
	}
	r.sem = make(chan struct{}, poolSize)
	return r
}

// Stats returns the LRU cache statistics, or a zero Stats if caching is off.
func (r *Retriever) Stats() Stats {
	if r.cache == nil {
		return Stats{}
	}
	return r.cache.stats()
}

// Clear empties the cache, if enabled.
func (r *Retriever) Clear() {
	if r.cache != nil {
		r.cache.clear()
	}
}

func cacheKey(method, query string, k int, extra ...string) string {
	truncated := query
	if len(truncated) > 100 {
		truncated = truncated[:100]
	}
	parts := append([]string{method, truncated, strconv.Itoa(k)}, extra...)
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}

func (r *Retriever) acquire(ctx context.Context) (func(), error) {
	select {
	case r.sem <- struct{}{}:
		return func() { <-r.sem }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// CardContext is the result of RetrieveCardContext.
type CardContext struct {
	Card     domain.Card
	Snippets domain.RetrievalResult
}

func (r *Retriever) RetrieveCardContext(ctx context.Context, cardID int, query string, k int) (CardContext, error) {
	card, _ := r.kb.GetCard(cardID)

	key := cacheKey("card_context", query, k, strconv.Itoa(cardID))
	if r.cache != nil {
		if v, ok := r.cache.get(key); ok {
			return v.(CardContext), nil
		}
	}

	release, err := r.acquire(ctx)
	if err != nil {
		return CardContext{}, err
	}
	defer release()

	vec, err := r.embedder.EncodeSingle(ctx, query)
	if err != nil {
		return CardContext{}, fmt.Errorf("retriever: embed query: %w", err)
	}
	filter := map[string]any{"card_id": strconv.Itoa(cardID)}
	result, err := r.store.Search(ctx, cardsCollection, vec, k, filter)
	if err != nil {
		return CardContext{}, fmt.Errorf("retriever: search card context: %w", err)
	}

	out := CardContext{Card: card, Snippets: result}
	if r.cache != nil {
		r.cache.set(key, out)
	}
	return out, nil
}

func (r *Retriever) RetrieveCardContextAsync(ctx context.Context, cardID int, query string, k int) <-chan asyncCardResult {
	ch := make(chan asyncCardResult, 1)
	go func() {
		cc, err := r.RetrieveCardContext(ctx, cardID, query, k)
		ch <- asyncCardResult{CardContext: cc, Err: err}
	}()
	return ch
}

type asyncCardResult struct {
	CardContext CardContext
	Err         error
}

// SpreadContext wraps the spread's reference record and loose matches.
type SpreadContext struct {
	Spread   knowledge.Spread
	Snippets domain.RetrievalResult
}

func (r *Retriever) RetrieveSpreadContext(ctx context.Context, spreadKey string, k int) (SpreadContext, error) {
	sp, _ := r.kb.GetSpread(spreadKey)

	key := cacheKey("spread_context", spreadKey, k)
	if r.cache != nil {
		if v, ok := r.cache.get(key); ok {
			return v.(SpreadContext), nil
		}
	}

	release, err := r.acquire(ctx)
	if err != nil {
		return SpreadContext{}, err
	}
	defer release()

	vec, err := r.embedder.EncodeSingle(ctx, spreadKey)
	if err != nil {
		return SpreadContext{}, fmt.Errorf("retriever: embed spread query: %w", err)
	}
	result, err := r.store.Search(ctx, generalCollection, vec, k, map[string]any{"kind": "spread"})
	if err != nil {
		return SpreadContext{}, fmt.Errorf("retriever: search spread context: %w", err)
	}

	out := SpreadContext{Spread: sp, Snippets: result}
	if r.cache != nil {
		r.cache.set(key, out)
	}
	return out, nil
}

// CombinationContext pairs matching known combinations with free-text hits.
type CombinationContext struct {
	Combinations []knowledge.Combination
	Snippets     domain.RetrievalResult
}

func (r *Retriever) RetrieveCombinationContext(ctx context.Context, cardIDs []int, k int) (CombinationContext, error) {
	sorted := append([]int(nil), cardIDs...)
	sort.Ints(sorted)
	idStrs := make([]string, len(sorted))
	for i, id := range sorted {
		idStrs[i] = strconv.Itoa(id)
	}
	query := strings.Join(idStrs, ",")

	key := cacheKey("combination_context", query, k)
	if r.cache != nil {
		if v, ok := r.cache.get(key); ok {
			return v.(CombinationContext), nil
		}
	}

	release, err := r.acquire(ctx)
	if err != nil {
		return CombinationContext{}, err
	}
	defer release()

	combos := r.kb.CombinationsContainingAny(cardIDs)

	vec, err := r.embedder.EncodeSingle(ctx, query)
	if err != nil {
		return CombinationContext{}, fmt.Errorf("retriever: embed combination query: %w", err)
	}
	result, err := r.store.Search(ctx, generalCollection, vec, k, map[string]any{"kind": "combination"})
	if err != nil {
		return CombinationContext{}, fmt.Errorf("retriever: search combination context: %w", err)
	}

	out := CombinationContext{Combinations: combos, Snippets: result}
	if r.cache != nil {
		r.cache.set(key, out)
	}
	return out, nil
}

// CategoryContext wraps the category record with scoped matches.
type CategoryContext struct {
	Category knowledge.Category
	Snippets domain.RetrievalResult
}

func (r *Retriever) RetrieveCategoryContext(ctx context.Context, category string, cardIDs []int, k int) (CategoryContext, error) {
	cat, _ := r.kb.GetCategory(category)

	idStrs := make([]string, len(cardIDs))
	for i, id := range cardIDs {
		idStrs[i] = strconv.Itoa(id)
	}
	extra := strings.Join(idStrs, ",")

	key := cacheKey("category_context", category, k, extra)
	if r.cache != nil {
		if v, ok := r.cache.get(key); ok {
			return v.(CategoryContext), nil
		}
	}

	release, err := r.acquire(ctx)
	if err != nil {
		return CategoryContext{}, err
	}
	defer release()

	vec, err := r.embedder.EncodeSingle(ctx, category)
	if err != nil {
		return CategoryContext{}, fmt.Errorf("retriever: embed category query: %w", err)
	}
	result, err := r.store.Search(ctx, generalCollection, vec, k, map[string]any{"kind": "category", "category": category})
	if err != nil {
		return CategoryContext{}, fmt.Errorf("retriever: search category context: %w", err)
	}

	out := CategoryContext{Category: cat, Snippets: result}
	if r.cache != nil {
		r.cache.set(key, out)
	}
	return out, nil
}

func (r *Retriever) RetrieveGeneralContext(ctx context.Context, query string, k int) (domain.RetrievalResult, error) {
	key := cacheKey("general_context", query, k)
	if r.cache != nil {
		if v, ok := r.cache.get(key); ok {
			return v.(domain.RetrievalResult), nil
		}
	}

	release, err := r.acquire(ctx)
	if err != nil {
		return domain.RetrievalResult{}, err
	}
	defer release()

	vec, err := r.embedder.EncodeSingle(ctx, query)
	if err != nil {
		return domain.RetrievalResult{}, fmt.Errorf("retriever: embed general query: %w", err)
	}
	result, err := r.store.Search(ctx, generalCollection, vec, k, nil)
	if err != nil {
		return domain.RetrievalResult{}, fmt.Errorf("retriever: search general context: %w", err)
	}

	if r.cache != nil {
		r.cache.set(key, result)
	}
	return result, nil
}
