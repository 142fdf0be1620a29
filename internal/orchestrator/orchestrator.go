// Package orchestrator implements the provider-aware fan-out/retry/fallback
// logic of spec.md §4.4: sequential attempts in priority order, bounded
// retries with exponential backoff per provider, and model-aware routing.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/wizmain/tarot-reading-engine/internal/apierrors"
	"github.com/wizmain/tarot-reading-engine/internal/domain"
	"github.com/wizmain/tarot-reading-engine/internal/llm"
)

// ProviderEntry is one entry in the orchestrator's priority-ordered list.
type ProviderEntry struct {
	Provider   llm.Provider
	MaxRetries int
}

// Orchestrator multiplexes the configured providers. Index 0 is primary,
// the rest are fallbacks, tried strictly in order.
type Orchestrator struct {
	providers       []ProviderEntry
	providerTimeout time.Duration
	logger          *slog.Logger
}

// New constructs an Orchestrator. providers must be non-empty; an empty list
// is a construction error per spec.md §8's documented boundary behavior.
func New(providers []ProviderEntry, providerTimeout time.Duration, logger *slog.Logger) (*Orchestrator, error) {
	if len(providers) == 0 {
		return nil, fmt.Errorf("orchestrator: provider list must not be empty")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{providers: providers, providerTimeout: providerTimeout, logger: logger}, nil
}

// providerError records one failed attempt for the composite error summary.
type providerError struct {
	provider  string
	errType   apierrors.Kind
	message   string
	isPrimary bool
}

// Generate runs the sequential-attempt-per-provider algorithm described in
// spec.md §4.4.
func (o *Orchestrator) Generate(ctx context.Context, req llm.Request) (domain.OrchestratorResponse, error) {
	compatible, err := o.routeByModel(req.Model)
	if err != nil {
		return domain.OrchestratorResponse{}, err
	}

	var allAttempts []domain.AIResponse
	var failures []providerError

	for i, entry := range compatible {
		resp, err := o.tryProvider(ctx, entry, req)
		if err == nil {
			allAttempts = append(allAttempts, resp)
			total := 0.0
			for _, a := range allAttempts {
				total += a.EstimatedCost
			}
			return domain.OrchestratorResponse{Primary: resp, AllAttempts: allAttempts, TotalCost: total}, nil
		}

		failures = append(failures, providerError{
			provider:  entry.Provider.Name(),
			errType:   apierrors.KindOf(err),
			message:   err.Error(),
			isPrimary: i == 0,
		})
		o.logger.Warn("provider attempt failed", "provider", entry.Provider.Name(), "error", err)
	}

	return domain.OrchestratorResponse{}, allProvidersFailed(failures)
}

// routeByModel filters providers whose AvailableModels contains req.Model,
// preserving priority order. An unset model accepts all providers.
func (o *Orchestrator) routeByModel(model string) ([]ProviderEntry, error) {
	if model == "" {
		return o.providers, nil
	}
	var out []ProviderEntry
	for _, p := range o.providers {
		for _, m := range p.Provider.AvailableModels() {
			if m == model {
				out = append(out, p)
				break
			}
		}
	}
	if len(out) == 0 {
		return nil, apierrors.New(apierrors.NoCompatibleProvider,
			fmt.Sprintf("no configured provider serves model %q", model))
	}
	return out, nil
}

// tryProvider implements spec.md §4.4's `_try_provider`: up to MaxRetries+1
// attempts, bounded by providerTimeout, with exponential backoff capped at
// 4s between retryable failures.
func (o *Orchestrator) tryProvider(ctx context.Context, entry ProviderEntry, req llm.Request) (domain.AIResponse, error) {
	var lastErr error
	attempts := entry.MaxRetries + 1

	for attempt := 0; attempt < attempts; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, o.providerTimeout)
		resp, err := entry.Provider.Generate(callCtx, req)
		cancel()

		if err == nil {
			return resp, nil
		}
		lastErr = err

		var apiErr *apierrors.Error
		if !apierrors.As(err, &apiErr) || !apiErr.Retryable() {
			return domain.AIResponse{}, err
		}

		if attempt == attempts-1 {
			break
		}

		wait := backoffDuration(attempt)
		o.logger.Warn("retrying provider after backoff", "provider", entry.Provider.Name(),
			"attempt", attempt+1, "wait", wait)

		select {
		case <-ctx.Done():
			return domain.AIResponse{}, apierrors.Wrap(apierrors.Timeout, "context cancelled during backoff", ctx.Err()).WithProvider(entry.Provider.Name())
		case <-time.After(wait):
		}
	}
	return domain.AIResponse{}, lastErr
}

// backoffDuration is exponential with base 2, ceiling 4s (spec.md §5).
func backoffDuration(attempt int) time.Duration {
	seconds := math.Pow(2, float64(attempt))
	if seconds > 4 {
		seconds = 4
	}
	return time.Duration(seconds * float64(time.Second))
}

func allProvidersFailed(failures []providerError) error {
	var b strings.Builder
	for i, f := range failures {
		if i > 0 {
			b.WriteString("; ")
		}
		fmt.Fprintf(&b, "%s: %s (%s)", f.provider, f.message, f.errType)
	}
	return apierrors.New(apierrors.AllProvidersFailed, b.String())
}

// ParallelRequest is one entry in a generate_parallel batch; fields left at
// zero-value fall back to a shared default supplied by the caller.
type ParallelRequest struct {
	Request llm.Request
}

// GenerateParallel runs len(requests) Generate calls concurrently,
// preserving input index in the output slice (spec.md §8 invariant). If any
// individual request fails, the whole batch fails, per spec.md §4.4's
// documented policy.
func (o *Orchestrator) GenerateParallel(ctx context.Context, requests []ParallelRequest) ([]domain.OrchestratorResponse, error) {
	results := make([]domain.OrchestratorResponse, len(requests))

	g, gctx := errgroup.WithContext(ctx)
	for i, r := range requests {
		i, r := i, r
		g.Go(func() error {
			resp, err := o.Generate(gctx, r.Request)
			if err != nil {
				return err
			}
			results[i] = resp
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// Status mirrors spec.md §4.4's get_provider_status().
type Status struct {
	TotalProviders int
	Primary        ProviderStatus
	Fallbacks      []ProviderStatus
	Timeout        time.Duration
	MaxRetries     int
}

type ProviderStatus struct {
	Name  string
	Model string
}

func (o *Orchestrator) GetProviderStatus() Status {
	status := Status{
		TotalProviders: len(o.providers),
		Timeout:        o.providerTimeout,
	}
	if len(o.providers) > 0 {
		status.Primary = ProviderStatus{Name: o.providers[0].Provider.Name()}
		status.MaxRetries = o.providers[0].MaxRetries
	}
	for _, p := range o.providers[1:] {
		status.Fallbacks = append(status.Fallbacks, ProviderStatus{Name: p.Provider.Name()})
	}
	return status
}
