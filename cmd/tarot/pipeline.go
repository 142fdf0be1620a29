package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/wizmain/tarot-reading-engine/internal/config"
	"github.com/wizmain/tarot-reading-engine/internal/domain"
	"github.com/wizmain/tarot-reading-engine/internal/embed"
	"github.com/wizmain/tarot-reading-engine/internal/engine"
	"github.com/wizmain/tarot-reading-engine/internal/enrich"
	"github.com/wizmain/tarot-reading-engine/internal/knowledge"
	"github.com/wizmain/tarot-reading-engine/internal/llm"
	"github.com/wizmain/tarot-reading-engine/internal/metrics"
	"github.com/wizmain/tarot-reading-engine/internal/modelregistry"
	"github.com/wizmain/tarot-reading-engine/internal/orchestrator"
	"github.com/wizmain/tarot-reading-engine/internal/persistence"
	"github.com/wizmain/tarot-reading-engine/internal/persistence/mongo"
	"github.com/wizmain/tarot-reading-engine/internal/persistence/postgres"
	"github.com/wizmain/tarot-reading-engine/internal/retriever"
	"github.com/wizmain/tarot-reading-engine/internal/stream"
	"github.com/wizmain/tarot-reading-engine/internal/vectorstore"
)

// pipeline bundles every collaborator a command needs, assembled once from
// a loaded Config. Built fresh per process. The orchestrator is built
// through a Manager, but the engines keep the instance returned by the
// first Manager.Get, so invalidating the Manager does not change the
// orchestrator they call.
type pipeline struct {
	cfg       *config.Config
	models    *modelregistry.Registry
	orch      *orchestrator.Manager
	kb        *knowledge.Store
	enricher  *enrich.Enricher
	single    *engine.SingleCallEngine
	celtic    *engine.CelticCrossEngine
	generator *stream.Generator
	persist   persistence.DatabaseProvider
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// buildPipeline wires every collaborator named in cfg. Persistence and
// metrics are optional: persistence is nil when cfg.Persistence.DSN is
// empty, metrics is nil when metricsEnabled is false.
func buildPipeline(ctx context.Context, cfg *config.Config, metricsEnabled bool, logger *slog.Logger) (*pipeline, error) {
	if logger == nil {
		logger = slog.Default()
	}

	registry := llm.NewRegistry()
	for _, p := range cfg.Providers.Priority {
		if !p.Enabled {
			continue
		}
		if err := registry.CreateFromConfig(ctx, p, []string{p.Model}); err != nil {
			return nil, fmt.Errorf("pipeline: create provider %q: %w", p.Name, err)
		}
	}

	models := modelregistry.New()
	for _, p := range cfg.Providers.Priority {
		if !p.Enabled {
			continue
		}
		if err := models.RegisterModel(modelMetadataFromProvider(p)); err != nil {
			return nil, fmt.Errorf("pipeline: register model %q: %w", p.Model, err)
		}
	}

	orchManager := orchestrator.NewManager(func() (*orchestrator.Orchestrator, error) {
		var entries []orchestrator.ProviderEntry
		for _, p := range cfg.Providers.Priority {
			if !p.Enabled {
				continue
			}
			provider, ok := registry.Get(string(p.Name))
			if !ok {
				continue
			}
			entries = append(entries, orchestrator.ProviderEntry{Provider: provider, MaxRetries: cfg.Providers.MaxRetries})
		}
		return orchestrator.New(entries, cfg.Providers.DefaultTimeout, logger)
	})
	orch, err := orchManager.Get()
	if err != nil {
		return nil, fmt.Errorf("pipeline: build orchestrator: %w", err)
	}

	embedder := embed.New(cfg.Embedder.Host, cfg.Embedder.Model, cfg.Embedder.Dimension, cfg.Embedder.MaxRetries)

	store, err := vectorstore.New(vectorstore.Config{
		PersistPath: cfg.VectorStore.PersistPath,
		Compress:    cfg.VectorStore.Compress,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("pipeline: build vector store: %w", err)
	}

	kb, err := knowledge.Load(cfg.KnowledgeBase.RootDir, logger)
	if err != nil {
		return nil, fmt.Errorf("pipeline: load knowledge base: %w", err)
	}

	retr := retriever.New(store, kb, embedder, retriever.Config{
		CacheEnabled: cfg.Retriever.LRUCacheSize > 0,
		CacheSize:    cfg.Retriever.LRUCacheSize,
		CacheTTL:     cfg.Retriever.LRUCacheTTL,
		PoolSize:     cfg.Retriever.WorkerPool,
	})
	enricher := enrich.New(retr, logger)

	primaryModel := ""
	if len(cfg.Providers.Priority) > 0 {
		primaryModel = cfg.Providers.Priority[0].Model
	}
	single := engine.NewSingleCallEngine(orch, enricher, primaryModel, logger)
	celtic := engine.NewCelticCrossEngine(orch, enricher, models, engine.CelticConfig{
		Provider: string(firstProviderName(cfg)),
	}, logger)

	var persist persistence.DatabaseProvider
	if cfg.Persistence.DSN != "" {
		switch cfg.Persistence.Backend {
		case config.PersistenceMongo:
			p, err := mongo.New(ctx, cfg.Persistence.DSN, cfg.Persistence.Database)
			if err != nil {
				return nil, fmt.Errorf("pipeline: connect mongo: %w", err)
			}
			persist = p
		default:
			p, err := postgres.New(ctx, cfg.Persistence.DSN)
			if err != nil {
				return nil, fmt.Errorf("pipeline: connect postgres: %w", err)
			}
			if err := p.InitSchema(ctx); err != nil {
				return nil, fmt.Errorf("pipeline: init postgres schema: %w", err)
			}
			persist = p
		}
	} else {
		logger.Warn("pipeline: no persistence DSN configured, readings will not be saved")
	}

	m, err := metrics.New(metrics.Config{Enabled: metricsEnabled, Namespace: "tarot"})
	if err != nil {
		return nil, fmt.Errorf("pipeline: build metrics: %w", err)
	}

	var persister stream.Persister
	if persist != nil {
		persister = persist
	}
	generator := stream.NewGenerator(kb, enricher, single, persister, logger)

	return &pipeline{
		cfg:       cfg,
		models:    models,
		orch:      orchManager,
		kb:        kb,
		enricher:  enricher,
		single:    single,
		celtic:    celtic,
		generator: generator,
		persist:   persist,
		metrics:   m,
		logger:    logger,
	}, nil
}

func (p *pipeline) Close(ctx context.Context) {
	if p.persist != nil {
		if err := p.persist.Close(ctx); err != nil {
			p.logger.Warn("pipeline: error closing persistence backend", "error", err)
		}
	}
}

// modelMetadataFromProvider builds the minimal registry entry for a
// configured provider; Tier and SuitableForList are left zero-valued so
// modelregistry.RegisterModel applies its id-based heuristic.
func modelMetadataFromProvider(p config.ProviderConfig) domain.ModelMetadata {
	return domain.ModelMetadata{
		ModelID:   p.Model,
		Provider:  string(p.Name),
		Available: true,
	}
}

func firstProviderName(cfg *config.Config) config.ProviderName {
	for _, p := range cfg.Providers.Priority {
		if p.Enabled {
			return p.Name
		}
	}
	return ""
}
