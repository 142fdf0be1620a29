// Package vectorstore implements the persistent k-NN collection (spec.md
// §4.7) on top of chromem-go, adapted from the teacher's
// pkg/vector/chromem.go: collection-per-name with an identity embedding
// function, since vectors are precomputed by internal/embed.
package vectorstore

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"sync"

	"github.com/philippgille/chromem-go"

	"github.com/wizmain/tarot-reading-engine/internal/domain"
)

// Store is the persistent vector collection described in spec.md §4.7.
type Store struct {
	db          *chromem.DB
	persistPath string
	compress    bool
	mu          sync.RWMutex
	collections map[string]*chromem.Collection
	embedFunc   chromem.EmbeddingFunc
	logger      *slog.Logger
}

// Config configures the chromem-backed store.
type Config struct {
	PersistPath string
	Compress    bool
}

// New creates or reopens a Store. Re-initialization against an existing
// PersistPath reuses prior data (spec.md §4.7).
func New(cfg Config, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var db *chromem.DB
	if cfg.PersistPath != "" {
		if err := os.MkdirAll(cfg.PersistPath, 0o755); err != nil {
			return nil, fmt.Errorf("vectorstore: create persist dir: %w", err)
		}

		dbPath := cfg.PersistPath + "/vectors.gob"
		if cfg.Compress {
			dbPath += ".gz"
		}

		if _, statErr := os.Stat(dbPath); statErr == nil {
			loaded, err := chromem.NewPersistentDB(dbPath, cfg.Compress)
			if err != nil {
				logger.Warn("vectorstore: failed to load existing db, starting fresh", "path", dbPath, "error", err)
				db = chromem.NewDB()
			} else {
				db = loaded
			}
		} else {
			db = chromem.NewDB()
		}
	} else {
		db = chromem.NewDB()
	}

	identity := func(ctx context.Context, text string) ([]float32, error) {
		return nil, fmt.Errorf("vectorstore: embeddings must be precomputed, got bare text query")
	}

	return &Store{
		db:          db,
		persistPath: cfg.PersistPath,
		compress:    cfg.Compress,
		collections: make(map[string]*chromem.Collection),
		embedFunc:   identity,
		logger:      logger,
	}, nil
}

func (s *Store) getCollection(name string) (*chromem.Collection, error) {
	s.mu.RLock()
	if col, ok := s.collections[name]; ok {
		s.mu.RUnlock()
		return col, nil
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if col, ok := s.collections[name]; ok {
		return col, nil
	}

	col, err := s.db.GetOrCreateCollection(name, nil, s.embedFunc)
	if err != nil {
		return nil, fmt.Errorf("vectorstore: get/create collection %q: %w", name, err)
	}
	s.collections[name] = col
	return col, nil
}

// Add inserts entries into collection. Each entry carries its own
// precomputed embedding; metadata values are stored as strings.
func (s *Store) Add(ctx context.Context, collection string, entries []domain.VectorStoreEntry) error {
	col, err := s.getCollection(collection)
	if err != nil {
		return err
	}

	docs := make([]chromem.Document, 0, len(entries))
	for _, e := range entries {
		strMeta := make(map[string]string, len(e.Metadata))
		for k, v := range e.Metadata {
			strMeta[k] = fmt.Sprint(v)
		}
		docs = append(docs, chromem.Document{
			ID:        e.ID,
			Content:   e.Document,
			Metadata:  strMeta,
			Embedding: e.Embedding,
		})
	}

	if err := col.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return fmt.Errorf("vectorstore: add documents: %w", err)
	}
	if err := s.persist(); err != nil {
		s.logger.Warn("vectorstore: failed to persist after add", "error", err)
	}
	return nil
}

// Search performs k-NN search with an optional equality filter over
// metadata, returning a RetrievalResult (parallel lists, spec.md §3).
func (s *Store) Search(ctx context.Context, collection string, query []float32, k int, filter map[string]any) (domain.RetrievalResult, error) {
	if k < 1 {
		return domain.RetrievalResult{}, fmt.Errorf("vectorstore: k must be >= 1, got %d", k)
	}
	col, err := s.getCollection(collection)
	if err != nil {
		return domain.RetrievalResult{}, err
	}

	var whereFilter map[string]string
	if len(filter) > 0 {
		whereFilter = make(map[string]string, len(filter))
		for k, v := range filter {
			whereFilter[k] = fmt.Sprint(v)
		}
	}

	results, err := col.QueryEmbedding(ctx, query, k, whereFilter, nil)
	if err != nil {
		return domain.RetrievalResult{}, fmt.Errorf("vectorstore: search failed: %w", err)
	}

	out := domain.RetrievalResult{}
	for _, r := range results {
		meta := make(map[string]any, len(r.Metadata))
		for k, v := range r.Metadata {
			meta[k] = v
		}
		out.IDs = append(out.IDs, r.ID)
		out.Documents = append(out.Documents, r.Content)
		out.Metadatas = append(out.Metadatas, meta)
		// chromem reports cosine similarity; distance = 1 - similarity so
		// an exact match (similarity 1) yields distance 0, matching
		// spec.md §8's k=1 single-entry boundary behavior.
		out.Distances = append(out.Distances, 1-r.Similarity)
	}
	return out, nil
}

// GetByID returns the single entry for id, or (zero, false) if absent.
func (s *Store) GetByID(ctx context.Context, collection, id string) (domain.VectorStoreEntry, bool) {
	col, err := s.getCollection(collection)
	if err != nil {
		return domain.VectorStoreEntry{}, false
	}
	doc, err := col.GetByID(ctx, id)
	if err != nil {
		return domain.VectorStoreEntry{}, false
	}
	meta := make(map[string]any, len(doc.Metadata))
	for k, v := range doc.Metadata {
		meta[k] = v
	}
	return domain.VectorStoreEntry{ID: doc.ID, Document: doc.Content, Metadata: meta, Embedding: doc.Embedding}, true
}

// Delete removes the given ids from collection.
func (s *Store) Delete(ctx context.Context, collection string, ids []string) error {
	col, err := s.getCollection(collection)
	if err != nil {
		return err
	}
	if err := col.Delete(ctx, nil, nil, ids...); err != nil {
		return fmt.Errorf("vectorstore: delete failed: %w", err)
	}
	return s.persistWarn()
}

// Clear removes every document in collection.
func (s *Store) Clear(ctx context.Context, collection string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.db.DeleteCollection(collection); err != nil {
		return fmt.Errorf("vectorstore: clear failed: %w", err)
	}
	delete(s.collections, collection)
	return s.persistWarn()
}

// Count returns the number of documents in collection.
func (s *Store) Count(collection string) int {
	col, err := s.getCollection(collection)
	if err != nil {
		return 0
	}
	return col.Count()
}

func (s *Store) persistWarn() error {
	if err := s.persist(); err != nil {
		s.logger.Warn("vectorstore: failed to persist", "error", err)
	}
	return nil
}

func (s *Store) persist() error {
	if s.persistPath == "" {
		return nil
	}
	dbPath := s.persistPath + "/vectors.gob"
	if s.compress {
		dbPath += ".gz"
	}
	//nolint:staticcheck // chromem's persistence API is export-based, kept for compatibility
	return s.db.Export(dbPath, s.compress, "")
}

// Close flushes any pending persistence.
func (s *Store) Close() error {
	return s.persist()
}
