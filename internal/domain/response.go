package domain

import "time"

// FinishReason is the closed set of why a provider call stopped generating.
type FinishReason string

const (
	FinishStop      FinishReason = "stop"
	FinishMaxTokens FinishReason = "max_tokens"
	FinishSafety    FinishReason = "safety"
	FinishOther     FinishReason = "other"
)

// AIResponse is one provider call's outcome. Immutable after construction.
type AIResponse struct {
	Content          string       `json:"content"`
	Model            string       `json:"model"`
	Provider         string       `json:"provider"`
	PromptTokens     int          `json:"prompt_tokens"`
	CompletionTokens int          `json:"completion_tokens"`
	TotalTokens      int          `json:"total_tokens"`
	EstimatedCost    float64      `json:"estimated_cost"`
	FinishReason     FinishReason `json:"finish_reason"`
	LatencyMS        int64        `json:"latency_ms"`
	CreatedAt        time.Time    `json:"created_at"`
}

// OrchestratorResponse is the orchestrator's top-level result: the winning
// attempt plus the ordered history of every attempt made to produce it.
type OrchestratorResponse struct {
	Primary     AIResponse   `json:"primary"`
	AllAttempts []AIResponse `json:"all_attempts"`
	TotalCost   float64      `json:"total_cost"`
}

// ModelTier is a coarse cost/capability bucket used for routing decisions.
type ModelTier string

const (
	TierFast     ModelTier = "fast"
	TierBalanced ModelTier = "balanced"
	TierHigh     ModelTier = "high"
)

// SuitableFor names the task sizes a model is appropriate for.
type SuitableFor string

const (
	SuitableShort   SuitableFor = "short"
	SuitableMedium  SuitableFor = "medium"
	SuitableLong    SuitableFor = "long"
	SuitableComplex SuitableFor = "complex"
)

// ModelMetadata is a model registry entry.
type ModelMetadata struct {
	ModelID          string        `json:"model_id"`
	Provider         string        `json:"provider"`
	DisplayName      string        `json:"display_name"`
	CostPer1MInput   float64       `json:"cost_per_1m_input"`
	CostPer1MOutput  float64       `json:"cost_per_1m_output"`
	MaxContextWindow int           `json:"max_context_window"`
	Tier             ModelTier     `json:"tier"`
	SuitableForList  []SuitableFor `json:"suitable_for"`
	Available        bool          `json:"available"`
}

// SuitableForAny reports whether any of the requested uses are satisfied.
func (m ModelMetadata) SuitableForAny(wanted []SuitableFor) bool {
	if len(wanted) == 0 {
		return true
	}
	set := make(map[SuitableFor]bool, len(m.SuitableForList))
	for _, s := range m.SuitableForList {
		set[s] = true
	}
	for _, w := range wanted {
		if set[w] {
			return true
		}
	}
	return false
}
