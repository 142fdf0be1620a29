package llm

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"
)

// countTokensTiktoken gives an exact-for-OpenAI token count via tiktoken-go.
// When the model has no known encoding it counts with cl100k_base; it
// returns an error (and the caller uses the chars/token heuristic) only when
// no encoding can be loaded at all.
func countTokensTiktoken(text string, model string) (int, error) {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		// Most chat models share the cl100k_base / o200k_base family; try a
		// reasonable default before giving up to the heuristic fallback.
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return 0, fmt.Errorf("tiktoken: no encoding available for %q: %w", model, err)
		}
	}
	return len(enc.Encode(text, nil, nil)), nil
}
