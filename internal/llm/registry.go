package llm

import (
	"context"
	"fmt"

	"github.com/wizmain/tarot-reading-engine/internal/config"
	"github.com/wizmain/tarot-reading-engine/internal/registry"
)

// Registry holds constructed Provider instances keyed by provider name.
type Registry struct {
	*registry.BaseRegistry[Provider]
}

func NewRegistry() *Registry {
	return &Registry{BaseRegistry: registry.NewBaseRegistry[Provider]()}
}

// CreateFromConfig constructs and registers a Provider for cfg.Name,
// mirroring hector's CreateLLMFromConfig switch-on-type pattern.
func (r *Registry) CreateFromConfig(ctx context.Context, cfg config.ProviderConfig, models []string) error {
	var p Provider
	switch cfg.Name {
	case config.ProviderAnthropic:
		p = NewAnthropicProvider(cfg.APIKey, models)
	case config.ProviderOpenAI:
		p = NewOpenAIProvider(cfg.APIKey, models)
	case config.ProviderGemini:
		gp, err := NewGeminiProvider(ctx, cfg.APIKey, models)
		if err != nil {
			return err
		}
		p = gp
	default:
		return fmt.Errorf("llm registry: unsupported provider type %q", cfg.Name)
	}
	return r.Register(string(cfg.Name), p)
}

// ProviderNames returns the registered provider names in registration order
// is not guaranteed (map iteration); callers needing priority order should
// consult the orchestrator's own ordered provider list instead of this
// registry's List().
func (r *Registry) ProviderNames() []string {
	names := make([]string, 0, r.Count())
	for _, p := range r.List() {
		names = append(names, p.Name())
	}
	return names
}
