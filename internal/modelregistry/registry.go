// Package modelregistry implements the process-wide model metadata registry
// (spec.md §4.3): populated from adapters at boot, queried by the allocator
// and the orchestrator's model-routing step.
package modelregistry

import (
	"strings"

	"github.com/wizmain/tarot-reading-engine/internal/domain"
	"github.com/wizmain/tarot-reading-engine/internal/registry"
)

// Registry is a lazily-populated, append-only-after-boot store of
// domain.ModelMetadata keyed by model id.
type Registry struct {
	*registry.BaseRegistry[domain.ModelMetadata]
}

func New() *Registry {
	return &Registry{BaseRegistry: registry.NewBaseRegistry[domain.ModelMetadata]()}
}

// RegisterModel registers m, computing Tier/SuitableForList from the model
// id if the caller left them zero-valued, per spec.md §4.3's "heuristic from
// model id... may be overridden per-model" rule.
func (r *Registry) RegisterModel(m domain.ModelMetadata) error {
	if m.Tier == "" {
		m.Tier = TierFromModelID(m.ModelID)
	}
	if len(m.SuitableForList) == 0 {
		m.SuitableForList = suitableForTier(m.Tier)
	}
	return r.Register(m.ModelID, m)
}

// FindOptions are the criteria Find filters registered models by. Any
// zero-valued filter field is ignored; AvailableOnly is false unless set,
// so unavailable models are included by default.
type FindOptions struct {
	Provider      string
	Tier          domain.ModelTier
	MaxInCost     float64 // 0 means unset
	MaxOutCost    float64
	SuitableFor   []domain.SuitableFor
	AvailableOnly bool
}

func (r *Registry) Find(opts FindOptions) []domain.ModelMetadata {
	var out []domain.ModelMetadata
	for _, m := range r.List() {
		if opts.AvailableOnly && !m.Available {
			continue
		}
		if opts.Provider != "" && m.Provider != opts.Provider {
			continue
		}
		if opts.Tier != "" && m.Tier != opts.Tier {
			continue
		}
		if opts.MaxInCost > 0 && m.CostPer1MInput > opts.MaxInCost {
			continue
		}
		if opts.MaxOutCost > 0 && m.CostPer1MOutput > opts.MaxOutCost {
			continue
		}
		if len(opts.SuitableFor) > 0 && !m.SuitableForAny(opts.SuitableFor) {
			continue
		}
		out = append(out, m)
	}
	return out
}

// ProviderModels returns every model registered for provider.
func (r *Registry) ProviderModels(provider string) []domain.ModelMetadata {
	return r.Find(FindOptions{Provider: provider, AvailableOnly: false})
}

// TierFromModelID applies spec.md §4.3's heuristic: fast/high keyword
// matches win, else balanced.
func TierFromModelID(modelID string) domain.ModelTier {
	id := strings.ToLower(modelID)
	fastMarkers := []string{"haiku", "flash", "mini", "nano", "turbo"}
	highMarkers := []string{"opus", "pro", "-5", "4.1"}
	for _, m := range fastMarkers {
		if strings.Contains(id, m) {
			return domain.TierFast
		}
	}
	for _, m := range highMarkers {
		if strings.Contains(id, m) {
			return domain.TierHigh
		}
	}
	return domain.TierBalanced
}

func suitableForTier(tier domain.ModelTier) []domain.SuitableFor {
	switch tier {
	case domain.TierFast:
		return []domain.SuitableFor{domain.SuitableShort, domain.SuitableMedium}
	case domain.TierHigh:
		return []domain.SuitableFor{domain.SuitableMedium, domain.SuitableLong, domain.SuitableComplex}
	default:
		return []domain.SuitableFor{domain.SuitableShort, domain.SuitableMedium, domain.SuitableLong}
	}
}
