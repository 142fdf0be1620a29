package llm

import (
	"context"
	"errors"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/wizmain/tarot-reading-engine/internal/apierrors"
	"github.com/wizmain/tarot-reading-engine/internal/domain"
)

var openaiPricing = lookupTable{
	entries: []priceEntry{
		{prefix: "gpt-4o-mini", inPer1M: 0.15, outPer1M: 0.6, maxContextWindow: 128_000},
		{prefix: "gpt-4o", inPer1M: 2.5, outPer1M: 10.0, maxContextWindow: 128_000},
		{prefix: "gpt-4-turbo", inPer1M: 10.0, outPer1M: 30.0, maxContextWindow: 128_000},
		{prefix: "gpt-4", inPer1M: 30.0, outPer1M: 60.0, maxContextWindow: 8_192},
		{prefix: "gpt-3.5-turbo", inPer1M: 0.5, outPer1M: 1.5, maxContextWindow: 16_385},
	},
	def: priceEntry{inPer1M: 2.5, outPer1M: 10.0, maxContextWindow: 128_000},
}

// OpenAIProvider adapts the official openai-go Chat Completions client.
type OpenAIProvider struct {
	client openai.Client
	models []string
}

func NewOpenAIProvider(apiKey string, models []string) *OpenAIProvider {
	return &OpenAIProvider{
		client: openai.NewClient(option.WithAPIKey(apiKey)),
		models: models,
	}
}

func (p *OpenAIProvider) Name() string { return "openai" }

func (p *OpenAIProvider) AvailableModels() []string { return p.models }

func (p *OpenAIProvider) Generate(ctx context.Context, req Request) (domain.AIResponse, error) {
	start := time.Now()

	messages := []openai.ChatCompletionMessageParamUnion{}
	if req.SystemPrompt != "" {
		messages = append(messages, openai.SystemMessage(req.SystemPrompt))
	}
	messages = append(messages, openai.UserMessage(req.UserPrompt))

	params := openai.ChatCompletionNewParams{
		Model:       req.Model,
		Messages:    messages,
		Temperature: openai.Float(req.Config.Temperature),
		TopP:        openai.Float(req.Config.TopP),
		MaxTokens:   openai.Int(int64(req.Config.MaxTokens)),
	}
	if len(req.Config.StopSequences) > 0 {
		params.Stop = openai.ChatCompletionNewParamsStopUnion{OfStringArray: req.Config.StopSequences}
	}

	resp, err := p.client.Chat.Completions.New(ctx, params)
	latency := time.Since(start)
	if err != nil {
		return domain.AIResponse{}, translateOpenAIError(err)
	}
	if len(resp.Choices) == 0 {
		return domain.AIResponse{}, apierrors.New(apierrors.InvalidRequest, "openai returned no choices").WithProvider("openai")
	}

	choice := resp.Choices[0]
	return domain.AIResponse{
		Content:          choice.Message.Content,
		Model:            req.Model,
		Provider:         p.Name(),
		PromptTokens:     int(resp.Usage.PromptTokens),
		CompletionTokens: int(resp.Usage.CompletionTokens),
		TotalTokens:      int(resp.Usage.TotalTokens),
		EstimatedCost:    p.EstimateCost(int(resp.Usage.PromptTokens), int(resp.Usage.CompletionTokens), req.Model),
		FinishReason:     mapOpenAIFinishReason(string(choice.FinishReason)),
		LatencyMS:        latency.Milliseconds(),
		CreatedAt:        time.Now().UTC(),
	}, nil
}

func (p *OpenAIProvider) EstimateCost(promptTokens, completionTokens int, model string) float64 {
	return estimateCost(promptTokens, completionTokens, openaiPricing.lookup(model))
}

func (p *OpenAIProvider) CountTokens(text string, model string) int {
	if n, err := countTokensTiktoken(text, model); err == nil {
		return n
	}
	return charsPerTokenEstimate(text)
}

func (p *OpenAIProvider) ContextWindow(model string) int {
	return openaiPricing.lookup(model).maxContextWindow
}

func mapOpenAIFinishReason(reason string) domain.FinishReason {
	switch reason {
	case "stop":
		return domain.FinishStop
	case "length":
		return domain.FinishMaxTokens
	case "content_filter":
		return domain.FinishSafety
	default:
		return domain.FinishOther
	}
}

func translateOpenAIError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case 429:
			return apierrors.Wrap(apierrors.RateLimit, "openai rate limited", err).WithProvider("openai")
		case 401, 403:
			return apierrors.Wrap(apierrors.Authentication, "openai authentication failed", err).WithProvider("openai")
		case 400, 404, 422:
			return apierrors.Wrap(apierrors.InvalidRequest, "openai rejected request", err).WithProvider("openai")
		case 500, 502, 503, 504:
			return apierrors.Wrap(apierrors.ServiceUnavailable, "openai unavailable", err).WithProvider("openai")
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return apierrors.Wrap(apierrors.Timeout, "openai call timed out", err).WithProvider("openai")
	}
	return apierrors.Wrap(apierrors.Unknown, "openai call failed", err).WithProvider("openai")
}
