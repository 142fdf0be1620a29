package domain

import "time"

// SpreadType names the supported spreads.
type SpreadType string

const (
	SpreadOneCard                     SpreadType = "one_card"
	SpreadThreeCardPastPresentFuture  SpreadType = "three_card_past_present_future"
	SpreadThreeCardSituationActionOut SpreadType = "three_card_situation_action_outcome"
	SpreadCelticCross                 SpreadType = "celtic_cross"
)

// CardInterpretation is one card's reading within a ReadingResponse.
type CardInterpretation struct {
	CardID         int    `json:"card_id"`
	Position       string `json:"position"`
	Interpretation string `json:"interpretation"`
	KeyMessage     string `json:"key_message"`
}

// Advice is the closing guidance block. LongTerm, Mindset and Cautions are
// optional; the remaining fields are required and length-checked.
type Advice struct {
	ImmediateAction string `json:"immediate_action"`
	ShortTerm       string `json:"short_term"`
	LongTerm        string `json:"long_term,omitempty"`
	Mindset         string `json:"mindset,omitempty"`
	Cautions        string `json:"cautions,omitempty"`
}

// ReadingResponse is the validated shape produced by the parser.
type ReadingResponse struct {
	Cards             []CardInterpretation `json:"cards"`
	CardRelationships string                `json:"card_relationships"`
	OverallReading    string                `json:"overall_reading"`
	Advice            Advice                `json:"advice"`
	Summary           string                `json:"summary"`
}

// LLMUsagePurpose is the closed set of roles an LLM call can play within a
// reading's lifecycle.
type LLMUsagePurpose string

const (
	PurposeMainReading    LLMUsagePurpose = "main_reading"
	PurposeRetry          LLMUsagePurpose = "retry"
	PurposeParseRetry     LLMUsagePurpose = "parse_retry"
	PurposeCardBatch      LLMUsagePurpose = "card_batch"
	PurposeOverallReading LLMUsagePurpose = "overall_reading"
	PurposeRelationships  LLMUsagePurpose = "relationships"
	PurposeAdvice         LLMUsagePurpose = "advice"
)

// LLMUsageLog records one provider call's cost/latency against a reading.
type LLMUsageLog struct {
	ID               string          `json:"id"`
	ReadingID        string          `json:"reading_id"`
	Provider         string          `json:"provider"`
	Model            string          `json:"model"`
	PromptTokens     int             `json:"prompt_tokens"`
	CompletionTokens int             `json:"completion_tokens"`
	TotalTokens      int             `json:"total_tokens"`
	EstimatedCost    float64         `json:"estimated_cost"`
	LatencySeconds   float64         `json:"latency_seconds"`
	Purpose          LLMUsagePurpose `json:"purpose"`
	CreatedAt        time.Time       `json:"created_at"`
}

// PersistedCard is one drawn card as stored within a PersistedReading.
type PersistedCard struct {
	CardID         int         `json:"card_id"`
	Position       string      `json:"position"`
	Orientation    Orientation `json:"orientation"`
	Interpretation string      `json:"interpretation"`
	KeyMessage     string      `json:"key_message"`
	CardSnapshot   Card        `json:"card_snapshot"`
}

// PersistedReading is the full record written to the persistence backend.
type PersistedReading struct {
	ID                string          `json:"id"`
	UserID            string          `json:"user_id"`
	SpreadType        SpreadType      `json:"spread_type"`
	Question          string          `json:"question"`
	Category          string          `json:"category,omitempty"`
	Cards             []PersistedCard `json:"cards"`
	CardRelationships string          `json:"card_relationships"`
	OverallReading    string          `json:"overall_reading"`
	Advice            Advice          `json:"advice"`
	Summary           string          `json:"summary"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
	LLMUsage          []LLMUsageLog   `json:"llm_usage"`
}
