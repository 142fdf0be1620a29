package llm

import (
	"context"
	"errors"
	"time"

	"google.golang.org/genai"

	"github.com/wizmain/tarot-reading-engine/internal/apierrors"
	"github.com/wizmain/tarot-reading-engine/internal/domain"
)

var geminiPricing = lookupTable{
	entries: []priceEntry{
		{prefix: "gemini-2.0-flash", inPer1M: 0.1, outPer1M: 0.4, maxContextWindow: 1_000_000},
		{prefix: "gemini-1.5-flash", inPer1M: 0.075, outPer1M: 0.3, maxContextWindow: 1_000_000},
		{prefix: "gemini-1.5-pro", inPer1M: 1.25, outPer1M: 5.0, maxContextWindow: 2_000_000},
		{prefix: "gemini-pro", inPer1M: 0.5, outPer1M: 1.5, maxContextWindow: 1_000_000},
	},
	def: priceEntry{inPer1M: 0.1, outPer1M: 0.4, maxContextWindow: 1_000_000},
}

// GeminiProvider adapts the official google.golang.org/genai client.
type GeminiProvider struct {
	client *genai.Client
	models []string
}

func NewGeminiProvider(ctx context.Context, apiKey string, models []string) (*GeminiProvider, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, apierrors.Wrap(apierrors.Unknown, "failed to construct gemini client", err).WithProvider("gemini")
	}
	return &GeminiProvider{client: client, models: models}, nil
}

func (p *GeminiProvider) Name() string { return "gemini" }

func (p *GeminiProvider) AvailableModels() []string { return p.models }

func (p *GeminiProvider) Generate(ctx context.Context, req Request) (domain.AIResponse, error) {
	start := time.Now()

	cfg := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(float32(req.Config.Temperature)),
		TopP:            genai.Ptr(float32(req.Config.TopP)),
		MaxOutputTokens: int32(req.Config.MaxTokens),
	}
	if req.SystemPrompt != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.SystemPrompt, genai.RoleUser)
	}
	if len(req.Config.StopSequences) > 0 {
		cfg.StopSequences = req.Config.StopSequences
	}

	resp, err := p.client.Models.GenerateContent(ctx, req.Model, genai.Text(req.UserPrompt), cfg)
	latency := time.Since(start)
	if err != nil {
		return domain.AIResponse{}, translateGeminiError(err)
	}

	// Gemini-specific nuance (spec.md §4.2): if the response cannot
	// materialize .text (blocked/truncated content), degrade to empty
	// content rather than raising, but still fill usage and finish reason.
	var content string
	var finish domain.FinishReason = domain.FinishOther
	if len(resp.Candidates) > 0 {
		cand := resp.Candidates[0]
		finish = mapGeminiFinishReason(string(cand.FinishReason))
		if text := resp.Text(); text != "" {
			content = text
		}
	}

	promptTokens, completionTokens := 0, 0
	if resp.UsageMetadata != nil {
		promptTokens = int(resp.UsageMetadata.PromptTokenCount)
		completionTokens = int(resp.UsageMetadata.CandidatesTokenCount)
	}

	return domain.AIResponse{
		Content:          content,
		Model:            req.Model,
		Provider:         p.Name(),
		PromptTokens:     promptTokens,
		CompletionTokens: completionTokens,
		TotalTokens:      promptTokens + completionTokens,
		EstimatedCost:    p.EstimateCost(promptTokens, completionTokens, req.Model),
		FinishReason:     finish,
		LatencyMS:        latency.Milliseconds(),
		CreatedAt:        time.Now().UTC(),
	}, nil
}

func (p *GeminiProvider) EstimateCost(promptTokens, completionTokens int, model string) float64 {
	return estimateCost(promptTokens, completionTokens, geminiPricing.lookup(model))
}

func (p *GeminiProvider) CountTokens(text string, model string) int {
	return charsPerTokenEstimate(text)
}

func (p *GeminiProvider) ContextWindow(model string) int {
	return geminiPricing.lookup(model).maxContextWindow
}

func mapGeminiFinishReason(reason string) domain.FinishReason {
	switch reason {
	case "STOP":
		return domain.FinishStop
	case "MAX_TOKENS":
		return domain.FinishMaxTokens
	case "SAFETY", "RECITATION", "BLOCKLIST", "PROHIBITED_CONTENT":
		return domain.FinishSafety
	default:
		return domain.FinishOther
	}
}

func translateGeminiError(err error) error {
	var apiErr *genai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case 429:
			return apierrors.Wrap(apierrors.RateLimit, "gemini rate limited", err).WithProvider("gemini")
		case 401, 403:
			return apierrors.Wrap(apierrors.Authentication, "gemini authentication failed", err).WithProvider("gemini")
		case 400, 404:
			return apierrors.Wrap(apierrors.InvalidRequest, "gemini rejected request", err).WithProvider("gemini")
		case 500, 502, 503, 504:
			return apierrors.Wrap(apierrors.ServiceUnavailable, "gemini unavailable", err).WithProvider("gemini")
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return apierrors.Wrap(apierrors.Timeout, "gemini call timed out", err).WithProvider("gemini")
	}
	return apierrors.Wrap(apierrors.Unknown, "gemini call failed", err).WithProvider("gemini")
}
