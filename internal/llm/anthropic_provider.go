package llm

import (
	"context"
	"errors"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/wizmain/tarot-reading-engine/internal/apierrors"
	"github.com/wizmain/tarot-reading-engine/internal/domain"
)

var anthropicPricing = lookupTable{
	entries: []priceEntry{
		{prefix: "claude-opus", inPer1M: 15.0, outPer1M: 75.0, maxContextWindow: 200_000},
		{prefix: "claude-sonnet", inPer1M: 3.0, outPer1M: 15.0, maxContextWindow: 200_000},
		{prefix: "claude-3-5-haiku", inPer1M: 0.8, outPer1M: 4.0, maxContextWindow: 200_000},
		{prefix: "claude-haiku", inPer1M: 0.25, outPer1M: 1.25, maxContextWindow: 200_000},
	},
	def: priceEntry{inPer1M: 3.0, outPer1M: 15.0, maxContextWindow: 200_000},
}

// AnthropicProvider adapts the official anthropic-sdk-go client to Provider.
type AnthropicProvider struct {
	client anthropic.Client
	models []string
}

// NewAnthropicProvider constructs an adapter for the given API key. models
// is the set of model ids this provider instance is configured to accept.
func NewAnthropicProvider(apiKey string, models []string) *AnthropicProvider {
	return &AnthropicProvider{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
		models: models,
	}
}

func (p *AnthropicProvider) Name() string { return "anthropic" }

func (p *AnthropicProvider) AvailableModels() []string { return p.models }

func (p *AnthropicProvider) Generate(ctx context.Context, req Request) (domain.AIResponse, error) {
	start := time.Now()

	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(req.Model),
		MaxTokens:   int64(req.Config.MaxTokens),
		Temperature: anthropic.Float(req.Config.Temperature),
		TopP:        anthropic.Float(req.Config.TopP),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.UserPrompt)),
		},
	}
	if req.SystemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.SystemPrompt}}
	}
	if len(req.Config.StopSequences) > 0 {
		params.StopSequences = req.Config.StopSequences
	}

	msg, err := p.client.Messages.New(ctx, params)
	latency := time.Since(start)
	if err != nil {
		return domain.AIResponse{}, translateAnthropicError(err)
	}

	var content string
	for _, block := range msg.Content {
		if text := block.Text; text != "" {
			content += text
		}
	}

	return domain.AIResponse{
		Content:          content,
		Model:            req.Model,
		Provider:         p.Name(),
		PromptTokens:     int(msg.Usage.InputTokens),
		CompletionTokens: int(msg.Usage.OutputTokens),
		TotalTokens:      int(msg.Usage.InputTokens + msg.Usage.OutputTokens),
		EstimatedCost:    p.EstimateCost(int(msg.Usage.InputTokens), int(msg.Usage.OutputTokens), req.Model),
		FinishReason:     mapAnthropicStopReason(string(msg.StopReason)),
		LatencyMS:        latency.Milliseconds(),
		CreatedAt:        time.Now().UTC(),
	}, nil
}

func (p *AnthropicProvider) EstimateCost(promptTokens, completionTokens int, model string) float64 {
	return estimateCost(promptTokens, completionTokens, anthropicPricing.lookup(model))
}

func (p *AnthropicProvider) CountTokens(text string, model string) int {
	return charsPerTokenEstimate(text)
}

func (p *AnthropicProvider) ContextWindow(model string) int {
	return anthropicPricing.lookup(model).maxContextWindow
}

func mapAnthropicStopReason(reason string) domain.FinishReason {
	switch reason {
	case "end_turn", "stop_sequence":
		return domain.FinishStop
	case "max_tokens":
		return domain.FinishMaxTokens
	case "refusal":
		return domain.FinishSafety
	default:
		return domain.FinishOther
	}
}

// translateAnthropicError maps SDK errors to the closed taxonomy, per
// spec.md §4.2.
func translateAnthropicError(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case 429:
			return apierrors.Wrap(apierrors.RateLimit, "anthropic rate limited", err).WithProvider("anthropic")
		case 401, 403:
			return apierrors.Wrap(apierrors.Authentication, "anthropic authentication failed", err).WithProvider("anthropic")
		case 400, 404, 422:
			return apierrors.Wrap(apierrors.InvalidRequest, "anthropic rejected request", err).WithProvider("anthropic")
		case 500, 502, 503, 504:
			return apierrors.Wrap(apierrors.ServiceUnavailable, "anthropic unavailable", err).WithProvider("anthropic")
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return apierrors.Wrap(apierrors.Timeout, "anthropic call timed out", err).WithProvider("anthropic")
	}
	return apierrors.Wrap(apierrors.Unknown, "anthropic call failed", err).WithProvider("anthropic")
}
