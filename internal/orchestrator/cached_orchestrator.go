package orchestrator

import (
	"context"

	"github.com/wizmain/tarot-reading-engine/internal/cache"
	"github.com/wizmain/tarot-reading-engine/internal/domain"
	"github.com/wizmain/tarot-reading-engine/internal/llm"
)

// CachedOrchestrator decorates an Orchestrator with a cache check before
// Generate and a cache write after a successful call. This is the
// composition re-expression of spec.md §9's "cached orchestrator inherits
// from base orchestrator" re-architecture hint: a decorator wrapping a core
// Orchestrator instead of a subclass.
type CachedOrchestrator struct {
	inner         *Orchestrator
	respCache     *cache.ResponseCache
	enableCaching bool
}

func NewCachedOrchestrator(inner *Orchestrator, respCache *cache.ResponseCache, enableCaching bool) *CachedOrchestrator {
	return &CachedOrchestrator{inner: inner, respCache: respCache, enableCaching: enableCaching}
}

// Generate checks the cache only when both useCache and the instance's
// enableCaching flag are true (spec.md §4.5). On a hit, no provider is
// invoked and the cached AIResponse is returned as the sole attempt.
func (c *CachedOrchestrator) Generate(ctx context.Context, req llm.Request, useCache bool) (domain.OrchestratorResponse, error) {
	if useCache && c.enableCaching {
		params := keyParamsFromRequest(req)
		if cached, ok := c.respCache.Get(ctx, params); ok {
			return domain.OrchestratorResponse{
				Primary:     cached,
				AllAttempts: []domain.AIResponse{cached},
				TotalCost:   0,
			}, nil
		}
	}

	resp, err := c.inner.Generate(ctx, req)
	if err != nil {
		return domain.OrchestratorResponse{}, err
	}

	if useCache && c.enableCaching {
		params := keyParamsFromRequest(req)
		c.respCache.Set(ctx, params, resp.Primary, 0)
	}
	return resp, nil
}

func keyParamsFromRequest(req llm.Request) cache.KeyParams {
	return cache.KeyParams{
		Prompt:           req.UserPrompt,
		SystemPrompt:     req.SystemPrompt,
		Model:            req.Model,
		Temperature:      req.Config.Temperature,
		MaxTokens:        req.Config.MaxTokens,
		TopP:             req.Config.TopP,
		FrequencyPenalty: req.Config.FrequencyPenalty,
		PresencePenalty:  req.Config.PresencePenalty,
		StopSequences:    req.Config.StopSequences,
	}
}
