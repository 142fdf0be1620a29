package analyzer

import (
	"fmt"

	"github.com/wizmain/tarot-reading-engine/internal/domain"
	"github.com/wizmain/tarot-reading-engine/internal/modelregistry"
)

// maxTokensHeadroom inflates the estimated output tokens to leave room for
// the model to actually finish its thought.
const maxTokensHeadroom = 1.25

// Allocation is what the allocator hands back to a reading engine: a ready
// GenerationConfig and the model id to call it with.
type Allocation struct {
	Config  domain.GenerationConfig
	ModelID string
	Tier    domain.ModelTier
}

// Allocate picks a GenerationConfig and model consistent with analysis,
// preferring models in the registry that match the analysis's suitable
// tiers. For overall_reading and for complexity >= 0.7, upgradeTiers puts
// the high tier first, following spec.md §4.14.
func Allocate(analysis Analysis, taskType TaskType, registry *modelregistry.Registry, provider string) (Allocation, error) {
	tiers := analysis.SuitableTiers
	if taskType == TaskOverallReading || analysis.Complexity >= 0.7 {
		tiers = upgradeTiers(tiers)
	}

	var chosen domain.ModelMetadata
	found := false
	for _, tier := range tiers {
		candidates := registry.Find(modelregistry.FindOptions{
			Provider:      provider,
			Tier:          tier,
			AvailableOnly: true,
		})
		if len(candidates) > 0 {
			chosen = candidates[0]
			found = true
			break
		}
	}
	if !found {
		return Allocation{}, fmt.Errorf("analyzer: no available model for tiers %v on provider %q", tiers, provider)
	}

	maxTokens := int(float64(analysis.EstOutputTokens) * maxTokensHeadroom)
	if maxTokens < 256 {
		maxTokens = 256
	}

	cfg, err := domain.NewGenerationConfig(temperatureFor(taskType), maxTokens, 0.9)
	if err != nil {
		return Allocation{}, fmt.Errorf("analyzer: build generation config: %w", err)
	}

	return Allocation{Config: cfg, ModelID: chosen.ModelID, Tier: chosen.Tier}, nil
}

func upgradeTiers(tiers []domain.ModelTier) []domain.ModelTier {
	out := []domain.ModelTier{domain.TierHigh}
	for _, t := range tiers {
		if t != domain.TierHigh {
			out = append(out, t)
		}
	}
	return out
}

func temperatureFor(taskType TaskType) float64 {
	switch taskType {
	case TaskOverallReading, TaskCardInterpretation:
		return 0.8
	case TaskRelationships:
		return 0.7
	case TaskAdvice:
		return 0.6
	default:
		return 0.7
	}
}
