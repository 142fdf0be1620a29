// Package parser extracts and validates the structured JSON reading
// produced by an LLM call (spec.md §4.12). Extraction tries a fenced code
// block first, then falls back to brace matching; validation enforces the
// reading schema plus two quality rules (minimum lengths, Korean-content
// ratio) that vary by spread.
package parser

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/wizmain/tarot-reading-engine/internal/apierrors"
	"github.com/wizmain/tarot-reading-engine/internal/domain"
)

var fencedBlockRe = regexp.MustCompile("(?is)```(?:json)?\\s*\\n?(.*?)```")

// Extract pulls the JSON payload out of raw LLM text, per spec.md §4.12's
// ordered extraction rules. When no JSON can be extracted and finishReason
// is max_tokens, the returned error has Truncated set, which callers use to
// decide whether to retry with a larger max_tokens.
func Extract(raw string, finishReason domain.FinishReason) (string, error) {
	if m := fencedBlockRe.FindStringSubmatch(raw); len(m) == 2 {
		candidate := strings.TrimSpace(m[1])
		if candidate != "" {
			return candidate, nil
		}
	}

	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start == -1 || end == -1 || end < start {
		return "", newExtractionError("no JSON object found in response", finishReason)
	}
	candidate := strings.TrimSpace(raw[start : end+1])
	if candidate == "" {
		return "", newExtractionError("empty JSON candidate", finishReason)
	}
	return candidate, nil
}

func newExtractionError(msg string, finishReason domain.FinishReason) error {
	err := apierrors.New(apierrors.JSONExtractionError, msg)
	if finishReason == domain.FinishMaxTokens {
		err.Truncated = true
	}
	return err
}

// Parse extracts and strictly decodes the JSON reading. A decode failure
// on a response that looks truncated (trailing structural error, or
// finishReason == max_tokens) is tagged Truncated so the engine can retry
// with a larger budget.
func Parse(raw string, finishReason domain.FinishReason) (domain.ReadingResponse, error) {
	candidate, err := Extract(raw, finishReason)
	if err != nil {
		return domain.ReadingResponse{}, err
	}

	var reading domain.ReadingResponse
	dec := json.NewDecoder(strings.NewReader(candidate))
	if decErr := dec.Decode(&reading); decErr != nil {
		apiErr := apierrors.New(apierrors.JSONExtractionError, fmt.Sprintf("failed to decode reading JSON: %v", decErr))
		if finishReason == domain.FinishMaxTokens || looksTruncated(candidate) {
			apiErr.Truncated = true
		}
		return domain.ReadingResponse{}, apiErr
	}
	return reading, nil
}

// looksTruncated is a light heuristic for a JSON string that stops
// mid-structure — no reliance on finishReason alone.
func looksTruncated(candidate string) bool {
	trimmed := strings.TrimRight(candidate, " \n\r\t")
	if trimmed == "" {
		return true
	}
	last := trimmed[len(trimmed)-1]
	return last != '}' && last != ']' && last != '"'
}

// SpreadQualityRules are the per-spread length/ratio thresholds from
// spec.md §4.12.
type SpreadQualityRules struct {
	MinInterpretationLen int
	MinOverallLen        int
	MinKeyMessageLen     int
	MinAdviceFieldLen    int
	MinKoreanRatio       float64
}

var defaultRules = SpreadQualityRules{
	MinInterpretationLen: 100,
	MinOverallLen:        100,
	MinKeyMessageLen:     5,
	MinAdviceFieldLen:    30,
	MinKoreanRatio:       0.12,
}

// RulesFor resolves the quality thresholds for a spread (spec.md §4.12:
// Celtic Cross and one-card readings relax some defaults).
func RulesFor(spreadType domain.SpreadType) SpreadQualityRules {
	rules := defaultRules
	switch spreadType {
	case domain.SpreadCelticCross:
		rules.MinInterpretationLen = 80
		rules.MinOverallLen = 300
		rules.MinKoreanRatio = 0.10
	case domain.SpreadOneCard:
		rules.MinOverallLen = 80
	}
	return rules
}

// Validate checks schema invariants and quality rules against reading for
// the given spread and expected position set.
func Validate(reading domain.ReadingResponse, spreadType domain.SpreadType, expectedPositions []string) error {
	rules := RulesFor(spreadType)

	if len(reading.Cards) == 0 {
		return apierrors.New(apierrors.ValidationError, "reading: cards must not be empty")
	}

	seenPositions := make(map[string]struct{}, len(reading.Cards))
	for _, c := range reading.Cards {
		if _, dup := seenPositions[c.Position]; dup {
			return apierrors.New(apierrors.ValidationError, fmt.Sprintf("reading: duplicate position %q", c.Position))
		}
		seenPositions[c.Position] = struct{}{}

		if len(c.Interpretation) < rules.MinInterpretationLen {
			return apierrors.New(apierrors.ValidationError, fmt.Sprintf("reading: interpretation for %q too short (%d < %d)", c.Position, len(c.Interpretation), rules.MinInterpretationLen))
		}
		if len(c.KeyMessage) < rules.MinKeyMessageLen {
			return apierrors.New(apierrors.ValidationError, fmt.Sprintf("reading: key_message for %q too short", c.Position))
		}
	}

	if len(expectedPositions) > 0 && len(reading.Cards) != len(expectedPositions) {
		return apierrors.New(apierrors.ValidationError, fmt.Sprintf("reading: expected %d positions, got %d", len(expectedPositions), len(reading.Cards)))
	}

	if len(reading.OverallReading) < rules.MinOverallLen {
		return apierrors.New(apierrors.ValidationError, fmt.Sprintf("reading: overall_reading too short (%d < %d)", len(reading.OverallReading), rules.MinOverallLen))
	}
	if reading.Summary == "" {
		return apierrors.New(apierrors.ValidationError, "reading: summary must not be empty")
	}

	if len(reading.Advice.ImmediateAction) < rules.MinAdviceFieldLen {
		return apierrors.New(apierrors.ValidationError, "reading: advice.immediate_action too short")
	}
	if len(reading.Advice.ShortTerm) < rules.MinAdviceFieldLen {
		return apierrors.New(apierrors.ValidationError, "reading: advice.short_term too short")
	}

	if ratio := koreanRatio(fullText(reading)); ratio < rules.MinKoreanRatio {
		return apierrors.New(apierrors.ValidationError, fmt.Sprintf("reading: korean content ratio too low (%.3f < %.3f)", ratio, rules.MinKoreanRatio))
	}

	return nil
}

func fullText(r domain.ReadingResponse) string {
	var b strings.Builder
	for _, c := range r.Cards {
		b.WriteString(c.Interpretation)
		b.WriteString(c.KeyMessage)
	}
	b.WriteString(r.CardRelationships)
	b.WriteString(r.OverallReading)
	b.WriteString(r.Summary)
	b.WriteString(r.Advice.ImmediateAction)
	b.WriteString(r.Advice.ShortTerm)
	b.WriteString(r.Advice.LongTerm)
	b.WriteString(r.Advice.Mindset)
	b.WriteString(r.Advice.Cautions)
	return b.String()
}

// koreanRatio computes the fraction of non-whitespace characters falling
// in the Hangul syllable block (가-힣), per spec.md §4.12.
func koreanRatio(text string) float64 {
	var korean, total int
	for _, r := range text {
		if unicode.IsSpace(r) {
			continue
		}
		total++
		if r >= '가' && r <= '힣' {
			korean++
		}
	}
	if total == 0 {
		return 0
	}
	return float64(korean) / float64(total)
}
