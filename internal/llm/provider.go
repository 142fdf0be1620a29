// Package llm defines the uniform provider contract (spec.md §4.2) and the
// three vendor adapters built on their official SDKs.
package llm

import (
	"context"

	"github.com/wizmain/tarot-reading-engine/internal/domain"
)

// Request is the uniform outbound shape for a single round-trip call
// (spec.md §6.1).
type Request struct {
	SystemPrompt string
	UserPrompt   string
	Config       domain.GenerationConfig
	Model        string
}

// Provider is the contract every vendor adapter implements.
type Provider interface {
	// Name is the identifier used for routing and logging, e.g. "anthropic".
	Name() string

	// AvailableModels lists the model ids this provider accepts.
	AvailableModels() []string

	// Generate performs one round trip and returns a fully populated
	// AIResponse, or an *apierrors.Error from the closed taxonomy.
	Generate(ctx context.Context, req Request) (domain.AIResponse, error)

	// EstimateCost computes the dollar cost of a completed call.
	EstimateCost(promptTokens, completionTokens int, model string) float64

	// CountTokens best-effort estimates token count for text under model.
	CountTokens(text string, model string) int

	// ContextWindow returns the max context window for model, or a
	// documented default if model is unknown.
	ContextWindow(model string) int
}
