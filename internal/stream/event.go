// Package stream implements the Server-Sent Events wire format and the
// fixed-stage-order event generator for a reading request (spec.md §4.15,
// §6.4).
package stream

import (
	"encoding/json"
	"fmt"
	"strings"
)

// EventName is the closed set of SSE event names from spec.md §6.4.
type EventName string

const (
	EventStarted         EventName = "started"
	EventProgress        EventName = "progress"
	EventCardDrawn       EventName = "card_drawn"
	EventRAGEnrichment   EventName = "rag_enrichment"
	EventAIGeneration    EventName = "ai_generation"
	EventSectionComplete EventName = "section_complete"
	EventComplete        EventName = "complete"
	EventError           EventName = "error"
)

// Event is one SSE frame before wire-encoding.
type Event struct {
	Name EventName
	Data any
}

// Format renders e as `event: <name>\ndata: <json>\n\n`, per spec.md §6.4.
func Format(e Event) (string, error) {
	data, err := json.Marshal(e.Data)
	if err != nil {
		return "", fmt.Errorf("stream: marshal event %q: %w", e.Name, err)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "event: %s\n", e.Name)
	fmt.Fprintf(&b, "data: %s\n\n", data)
	return b.String(), nil
}

// ProgressStage names the stage tag carried by progress payloads.
type ProgressStage string

const (
	StageInitializing     ProgressStage = "initializing"
	StageDrawingCards     ProgressStage = "drawing_cards"
	StageEnrichingContext ProgressStage = "enriching_context"
	StageGeneratingAI     ProgressStage = "generating_ai"
	StageFinalizing       ProgressStage = "finalizing"
	StageCompleted        ProgressStage = "completed"
)

type progressPayload struct {
	Stage    ProgressStage `json:"stage"`
	Progress int           `json:"progress"`
}

func progressEvent(stage ProgressStage, progress int) Event {
	return Event{Name: EventProgress, Data: progressPayload{Stage: stage, Progress: progress}}
}

type cardDrawnPayload struct {
	CardID     int    `json:"card_id"`
	Name       string `json:"name"`
	Position   string `json:"position"`
	IsReversed bool   `json:"is_reversed"`
	Progress   int    `json:"progress"`
}

type ragEnrichmentPayload struct {
	CardsEnriched  int  `json:"cards_enriched"`
	SpreadLoaded   bool `json:"spread_loaded"`
	CategoryLoaded bool `json:"category_loaded"`
}

type aiGenerationPayload struct {
	Provider string `json:"provider"`
	Model    string `json:"model"`
}

type sectionCompletePayload struct {
	Section string `json:"section"`
}

type completePayload struct {
	ReadingID      string `json:"reading_id"`
	TotalTimeMS    int64  `json:"total_time_ms"`
	ReadingSummary string `json:"reading_summary"`
}

type errorPayload struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Details string `json:"details"`
	Stage   string `json:"stage"`
}

// maxErrorDetailsLen truncates error details per spec.md §4.15
// ("details[:500]").
const maxErrorDetailsLen = 500

func truncateDetails(s string) string {
	r := []rune(s)
	if len(r) <= maxErrorDetailsLen {
		return s
	}
	return string(r[:maxErrorDetailsLen])
}
