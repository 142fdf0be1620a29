// Package analyzer implements the prompt analyzer and generation-config
// allocator (spec.md §4.14): given a candidate prompt and task shape, it
// estimates token counts and complexity, then the allocator turns that
// analysis into a concrete GenerationConfig and suitable model tiers.
package analyzer

import (
	"strings"

	"github.com/wizmain/tarot-reading-engine/internal/domain"
)

// charsPerToken is the heuristic input-size estimate (spec.md §4.14).
const charsPerToken = 3.0

// ragContextDiscount approximates how much more token-dense structured RAG
// context is than prose, letting the estimator discount it slightly.
const ragContextDiscount = 0.9

// TaskType names the four output-size profiles from spec.md §4.14.
type TaskType string

const (
	TaskCardInterpretation TaskType = "card_interpretation"
	TaskOverallReading     TaskType = "overall_reading"
	TaskRelationships      TaskType = "relationships"
	TaskAdvice             TaskType = "advice"
)

var baseOutputTokens = map[TaskType]int{
	TaskCardInterpretation: 400,
	TaskOverallReading:     2000,
	TaskRelationships:      800,
	TaskAdvice:             600,
}

// Urgency is a coarse scheduling hint derived from task/complexity.
type Urgency string

const (
	UrgencyLow    Urgency = "low"
	UrgencyMedium Urgency = "medium"
	UrgencyHigh   Urgency = "high"
)

// Analysis is the fixed shape the analyzer produces (spec.md §4.14).
type Analysis struct {
	EstInputTokens     int
	EstOutputTokens    int
	Complexity         float64
	Urgency            Urgency
	RequiresHighQuality bool
	SuitableTiers       []domain.ModelTier
}

// Input bundles everything the analyzer needs about one candidate call.
type Input struct {
	TaskType      TaskType
	SystemPrompt  string
	UserPrompt    string
	RAGContext    string
	Question      string
	NumCards      int
	Category      string
	HasRAGContext bool
}

// Analyze estimates token usage and complexity for a candidate prompt.
func Analyze(in Input) Analysis {
	promptChars := float64(len(in.SystemPrompt) + len(in.UserPrompt))
	ragChars := float64(len(in.RAGContext)) * ragContextDiscount
	estInput := int((promptChars + ragChars) / charsPerToken)

	estOutput := baseOutputTokens[in.TaskType]
	if estOutput == 0 {
		estOutput = baseOutputTokens[TaskCardInterpretation]
	}
	if in.TaskType == TaskCardInterpretation {
		estOutput *= in.NumCards
		if estOutput == 0 {
			estOutput = baseOutputTokens[TaskCardInterpretation]
		}
	}

	qLen := len(in.Question)
	switch {
	case qLen > 200:
		estOutput = int(float64(estOutput) * 1.3)
	case qLen > 100:
		estOutput = int(float64(estOutput) * 1.15)
	}

	promptLen := len(in.UserPrompt)
	switch {
	case promptLen > 5000:
		estOutput = int(float64(estOutput) * 1.2)
	case promptLen > 3000:
		estOutput = int(float64(estOutput) * 1.1)
	}

	complexity := complexityScore(in)
	requiresHighQuality := complexity >= 0.7 || in.TaskType == TaskOverallReading

	urgency := UrgencyLow
	switch {
	case complexity >= 0.7:
		urgency = UrgencyHigh
	case complexity >= 0.4:
		urgency = UrgencyMedium
	}

	return Analysis{
		EstInputTokens:      estInput,
		EstOutputTokens:     estOutput,
		Complexity:          complexity,
		Urgency:             urgency,
		RequiresHighQuality: requiresHighQuality,
		SuitableTiers:       suitableTiers(complexity, requiresHighQuality),
	}
}

func complexityScore(in Input) float64 {
	score := 0.0

	switch {
	case in.NumCards >= 10:
		score += 0.4
	case in.NumCards >= 3:
		score += 0.2
	case in.NumCards >= 1:
		score += 0.1
	}

	qWords := len(strings.Fields(in.Question))
	switch {
	case qWords > 60:
		score += 0.2
	case qWords > 25:
		score += 0.1
	}

	promptLen := len(in.UserPrompt)
	switch {
	case promptLen > 5000:
		score += 0.2
	case promptLen > 3000:
		score += 0.1
	}

	if in.Category != "" {
		score += 0.05
	}
	if in.HasRAGContext {
		score += 0.1
	}

	if score > 1 {
		score = 1
	}
	return score
}

func suitableTiers(complexity float64, requiresHighQuality bool) []domain.ModelTier {
	if requiresHighQuality {
		return []domain.ModelTier{domain.TierHigh}
	}
	if complexity >= 0.4 {
		return []domain.ModelTier{domain.TierBalanced, domain.TierHigh}
	}
	return []domain.ModelTier{domain.TierFast, domain.TierBalanced, domain.TierHigh}
}
