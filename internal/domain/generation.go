package domain

import "fmt"

// GenerationConfig controls a single provider call. It is validated on
// construction so invalid values never reach an adapter.
type GenerationConfig struct {
	Temperature      float64  `json:"temperature"`
	MaxTokens        int      `json:"max_tokens"`
	TopP             float64  `json:"top_p"`
	FrequencyPenalty float64  `json:"frequency_penalty,omitempty"`
	PresencePenalty  float64  `json:"presence_penalty,omitempty"`
	StopSequences    []string `json:"stop_sequences,omitempty"`
}

// NewGenerationConfig validates and returns a GenerationConfig, or an error
// describing the first invariant violated.
func NewGenerationConfig(temperature float64, maxTokens int, topP float64) (GenerationConfig, error) {
	cfg := GenerationConfig{Temperature: temperature, MaxTokens: maxTokens, TopP: topP}
	return cfg, cfg.Validate()
}

// Validate reports the first constraint violation, if any.
func (c GenerationConfig) Validate() error {
	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("generation config: temperature %v out of range [0,2]", c.Temperature)
	}
	if c.MaxTokens <= 0 {
		return fmt.Errorf("generation config: max_tokens must be > 0, got %d", c.MaxTokens)
	}
	if c.TopP < 0 || c.TopP > 1 {
		return fmt.Errorf("generation config: top_p %v out of range [0,1]", c.TopP)
	}
	return nil
}

// WithMaxTokens returns a copy of c with MaxTokens replaced; used by the
// reading engines' truncation-retry path so the original config is never
// mutated in place.
func (c GenerationConfig) WithMaxTokens(maxTokens int) GenerationConfig {
	clone := c
	clone.MaxTokens = maxTokens
	return clone
}
