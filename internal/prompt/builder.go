package prompt

import (
	"embed"
	"fmt"
	"strings"

	"github.com/wizmain/tarot-reading-engine/internal/domain"
)

//go:embed templates
var templatesFS embed.FS

// expectedCardCount maps a spread to the number of cards build_full_prompt
// must validate against (spec.md §4.11).
var expectedCardCount = map[domain.SpreadType]int{
	domain.SpreadOneCard:                     1,
	domain.SpreadThreeCardPastPresentFuture:  3,
	domain.SpreadThreeCardSituationActionOut: 3,
	domain.SpreadCelticCross:                 10,
}

var readingTemplateFile = map[domain.SpreadType]string{
	domain.SpreadOneCard:                     "templates/reading/one_card.txt",
	domain.SpreadThreeCardPastPresentFuture:  "templates/reading/three_card_past_present_future.txt",
	domain.SpreadThreeCardSituationActionOut: "templates/reading/three_card_situation_action_outcome.txt",
}

// CardRenderContext is a drawn card translated to the uniform, bilingual
// shape the templates expect (spec.md §4.11).
type CardRenderContext struct {
	CardID        int
	Position      string
	Name          string
	LocalizedName string
	Orientation   string
	Arcana        string
	Suit          string
	Keywords      []string
	Meaning       string
}

// BuiltPrompt is the two-part result build_full_prompt produces.
type BuiltPrompt struct {
	SystemPrompt string
	UserPrompt   string
}

// BuildFullPrompt assembles the system and user prompts for a reading
// request (spec.md §4.11). ragContext, when non-empty, is inlined under a
// "Relevant background" heading via the Format output from internal/enrich.
func BuildFullPrompt(question string, cards []CardRenderContext, spreadType domain.SpreadType, category, ragContext string, includeSystem, includeOutputFormat bool) (BuiltPrompt, error) {
	expected, known := expectedCardCount[spreadType]
	if !known {
		return BuiltPrompt{}, fmt.Errorf("prompt: unknown spread type %q", spreadType)
	}
	if len(cards) != expected {
		return BuiltPrompt{}, fmt.Errorf("prompt: spread %q requires %d cards, got %d", spreadType, expected, len(cards))
	}

	readingFile, ok := readingTemplateFile[spreadType]
	if !ok {
		return BuiltPrompt{}, fmt.Errorf("prompt: no reading template for spread %q (celtic cross uses per-position templates)", spreadType)
	}

	readingSrc, err := templatesFS.ReadFile(readingFile)
	if err != nil {
		return BuiltPrompt{}, fmt.Errorf("prompt: read reading template: %w", err)
	}

	cardData := make([]any, len(cards))
	for i, c := range cards {
		cardData[i] = map[string]any{
			"card_id":        c.CardID,
			"position":       c.Position,
			"name":           c.Name,
			"localized_name": c.LocalizedName,
			"orientation":    c.Orientation,
			"arcana":         c.Arcana,
			"suit":           c.Suit,
			"keywords":       strings.Join(c.Keywords, ", "),
			"meaning":        c.Meaning,
		}
	}

	userPrompt := Render(string(readingSrc), map[string]any{
		"question":    question,
		"cards":       cardData,
		"category":    category,
		"rag_context": ragContext,
	})

	if includeOutputFormat {
		outputSrc, err := templatesFS.ReadFile("templates/output/structured_response.txt")
		if err != nil {
			return BuiltPrompt{}, fmt.Errorf("prompt: read output template: %w", err)
		}
		userPrompt = strings.TrimRight(userPrompt, "\n") + "\n\n" + string(outputSrc)
	}

	var systemPrompt string
	if includeSystem {
		systemSrc, err := templatesFS.ReadFile("templates/system/tarot_expert.txt")
		if err != nil {
			return BuiltPrompt{}, fmt.Errorf("prompt: read system template: %w", err)
		}
		systemPrompt = string(systemSrc)
	}

	return BuiltPrompt{SystemPrompt: systemPrompt, UserPrompt: userPrompt}, nil
}

// RenderPositionTemplate renders a single Celtic Cross position template
// (spec.md §4.13's "card" template family) given its source text and data.
func RenderPositionTemplate(src string, data map[string]any) string {
	return Render(src, data)
}

// CardRenderContextFrom translates a drawn card into the bilingual shape
// BuildFullPrompt expects.
func CardRenderContextFrom(dc domain.DrawnCard, position string) CardRenderContext {
	return CardRenderContext{
		CardID:        dc.Card.ID,
		Position:      position,
		Name:          dc.Card.Name,
		LocalizedName: dc.Card.LocalizedName,
		Orientation:   string(dc.Orientation),
		Arcana:        string(dc.Card.Arcana),
		Suit:          string(dc.Card.Suit),
		Keywords:      dc.Card.Keywords(dc.Orientation),
		Meaning:       dc.Card.Meaning(dc.Orientation),
	}
}
