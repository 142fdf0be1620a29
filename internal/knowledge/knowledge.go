// Package knowledge implements the file-backed reference data store
// (spec.md §4.8): major/minor arcana cards, spreads, combinations, and
// categories loaded from a directory tree. Per spec.md §9's re-architecture
// hint, the entire tree is scanned once at boot rather than per request.
package knowledge

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/wizmain/tarot-reading-engine/internal/domain"
)

// Spread is the reference description of a layout.
type Spread struct {
	Key         string `json:"key"`
	Name        string `json:"name"`
	NumCards    int    `json:"num_cards"`
	Positions   []string `json:"positions"`
	Description string `json:"description,omitempty"`
}

// Combination is a known meaningful pairing/grouping of cards.
type Combination struct {
	Name        string `json:"name"`
	CardIDs     []int  `json:"card_ids"`
	Description string `json:"description"`
}

// Category is a reading-topic reference record (love, career, ...).
type Category struct {
	Key         string   `json:"key"`
	Name        string   `json:"name"`
	Keywords    []string `json:"keywords"`
	Description string   `json:"description,omitempty"`
}

// Store is the in-memory, boot-time-loaded knowledge base.
type Store struct {
	rootDir      string
	logger       *slog.Logger
	cards        map[int]domain.Card
	spreads      map[string]Spread
	combinations map[string]Combination
	categories   map[string]Category
}

// legacyCardIDAlias resolves the explicit id-21 legacy alias from spec.md
// §4.8 to its replacement, Judgement (id 20). The alias can be removed once
// the knowledge base holds a real record with id 21.
const legacyCardIDAlias = 21
const legacyCardIDTarget = 20

// Load scans rootDir once and returns a populated Store. Malformed or
// missing files are warned about, never fatal, per spec.md §4.8.
func Load(rootDir string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{
		rootDir:      rootDir,
		logger:       logger,
		cards:        make(map[int]domain.Card),
		spreads:      make(map[string]Spread),
		combinations: make(map[string]Combination),
		categories:   make(map[string]Category),
	}

	if err := s.loadCards(filepath.Join(rootDir, "cards", "major_arcana")); err != nil {
		logger.Warn("knowledge: major arcana scan failed", "error", err)
	}
	if err := s.loadCards(filepath.Join(rootDir, "cards", "minor_arcana")); err != nil {
		logger.Warn("knowledge: minor arcana scan failed", "error", err)
	}
	if err := s.loadInto(filepath.Join(rootDir, "spreads"), func(key string, data []byte) error {
		var sp Spread
		if err := json.Unmarshal(data, &sp); err != nil {
			return err
		}
		if sp.Key == "" {
			sp.Key = key
		}
		s.spreads[sp.Key] = sp
		return nil
	}); err != nil {
		logger.Warn("knowledge: spreads scan failed", "error", err)
	}
	if err := s.loadInto(filepath.Join(rootDir, "combinations"), func(key string, data []byte) error {
		var c Combination
		if err := json.Unmarshal(data, &c); err != nil {
			return err
		}
		if c.Name == "" {
			c.Name = key
		}
		s.combinations[c.Name] = c
		return nil
	}); err != nil {
		logger.Warn("knowledge: combinations scan failed", "error", err)
	}
	if err := s.loadInto(filepath.Join(rootDir, "categories"), func(key string, data []byte) error {
		var c Category
		if err := json.Unmarshal(data, &c); err != nil {
			return err
		}
		if c.Key == "" {
			c.Key = key
		}
		s.categories[c.Key] = c
		return nil
	}); err != nil {
		logger.Warn("knowledge: categories scan failed", "error", err)
	}

	return s, nil
}

func (s *Store) loadCards(dir string) error {
	return s.loadInto(dir, func(_ string, data []byte) error {
		var c domain.Card
		if err := json.Unmarshal(data, &c); err != nil {
			return err
		}
		s.cards[c.ID] = c
		return nil
	})
}

// loadInto walks dir (recursively, for suit subdirectories) decoding every
// *.json file via decode. Missing dir is not an error: warn-only per
// spec.md §4.8.
func (s *Store) loadInto(dir string, decode func(key string, data []byte) error) error {
	entries, err := filesInTree(dir)
	if err != nil {
		s.logger.Warn("knowledge: directory not scanned", "dir", dir, "error", err)
		return nil //nolint:nilerr // missing directory is warn-only, not fatal
	}
	for _, path := range entries {
		data, readErr := os.ReadFile(path)
		if readErr != nil {
			s.logger.Warn("knowledge: failed to read record", "path", path, "error", readErr)
			continue
		}
		key := strings.TrimSuffix(filepath.Base(path), ".json")
		if decodeErr := decode(key, data); decodeErr != nil {
			s.logger.Warn("knowledge: failed to parse record", "path", path, "error", decodeErr)
		}
	}
	return nil
}

// GetCard returns the major or minor arcana card for id, resolving the id-21 legacy
// alias to id 20 with a warning.
func (s *Store) GetCard(id int) (domain.Card, bool) {
	if id == legacyCardIDAlias {
		s.logger.Warn("knowledge: card id 21 is a legacy alias, resolving to 20")
		id = legacyCardIDTarget
	}
	c, ok := s.cards[id]
	return c, ok
}

// AllCards returns every loaded card via directory-scan enumeration.
func (s *Store) AllCards() []domain.Card {
	out := make([]domain.Card, 0, len(s.cards))
	for _, c := range s.cards {
		out = append(out, c)
	}
	return out
}

func (s *Store) GetSpread(key string) (Spread, bool) {
	sp, ok := s.spreads[key]
	return sp, ok
}

func (s *Store) AllSpreads() []Spread {
	out := make([]Spread, 0, len(s.spreads))
	for _, sp := range s.spreads {
		out = append(out, sp)
	}
	return out
}

func (s *Store) GetCombination(name string) (Combination, bool) {
	c, ok := s.combinations[name]
	return c, ok
}

// CombinationsContainingAny returns every combination overlapping cardIDs.
func (s *Store) CombinationsContainingAny(cardIDs []int) []Combination {
	want := make(map[int]struct{}, len(cardIDs))
	for _, id := range cardIDs {
		want[id] = struct{}{}
	}
	var out []Combination
	for _, c := range s.combinations {
		for _, id := range c.CardIDs {
			if _, ok := want[id]; ok {
				out = append(out, c)
				break
			}
		}
	}
	return out
}

func (s *Store) GetCategory(key string) (Category, bool) {
	c, ok := s.categories[key]
	return c, ok
}

func filesInTree(dir string) ([]string, error) {
	var out []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasSuffix(path, ".json") {
			out = append(out, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("knowledge: walk %s: %w", dir, err)
	}
	return out, nil
}
