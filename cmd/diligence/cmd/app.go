package cmd

import (
	"fmt"

	"github.com/hugo-lorenzo-mato/diligence-ai/internal/adapters/localindex"
	"github.com/hugo-lorenzo-mato/diligence-ai/internal/adapters/openai"
	"github.com/hugo-lorenzo-mato/diligence-ai/internal/adapters/pinecone"
	"github.com/hugo-lorenzo-mato/diligence-ai/internal/agents"
	"github.com/hugo-lorenzo-mato/diligence-ai/internal/config"
	"github.com/hugo-lorenzo-mato/diligence-ai/internal/core"
	"github.com/hugo-lorenzo-mato/diligence-ai/internal/events"
	"github.com/hugo-lorenzo-mato/diligence-ai/internal/logging"
	"github.com/hugo-lorenzo-mato/diligence-ai/internal/mcp"
	"github.com/hugo-lorenzo-mato/diligence-ai/internal/pipeline"
)

// application is the wired object graph shared by serve, analyze and mcp.
type application struct {
	cfg      *config.Config
	log      *logging.Logger
	bus      *events.EventBus
	index    core.Index
	registry *mcp.Registry
	driver   *pipeline.Driver
}

// newApplication wires generation, retrieval, agents and the pipeline from
// cfg. gen overrides the generator when non-nil.
func newApplication(cfg *config.Config, log *logging.Logger, gen core.Generator) (*application, error) {
	if err := config.ValidateConfig(cfg); err != nil {
		return nil, err
	}

	var client *openai.Client
	if gen == nil || cfg.Retrieval.Backend == config.BackendPinecone {
		c, err := openai.New(openai.Config{
			BaseURL:           cfg.Generation.BaseURL,
			APIKey:            cfg.Generation.APIKey,
			Model:             cfg.Generation.Model,
			EmbeddingModel:    cfg.Embedding.Model,
			Dimensions:        cfg.Embedding.Dimensions,
			Timeout:           cfg.Generation.Timeout,
			MaxAttempts:       cfg.Generation.MaxAttempts,
			RequestsPerMinute: cfg.Generation.RequestsPerMinute,
			Logger:            log,
		})
		if err != nil {
			return nil, err
		}
		client = c
	}
	if gen == nil {
		gen = client
	}

	index, err := openIndex(cfg, log, client)
	if err != nil {
		return nil, err
	}

	bus := events.New(256)
	registry := mcp.NewRegistry(mcp.WithLogger(log), mcp.WithEventBus(bus))
	agents.RegisterAll(registry, agents.Deps{
		Retriever: index,
		Generator: gen,
		Logger:    log,
		Model:     cfg.Generation.Model,
		TopK:      cfg.Retrieval.TopK,
	})

	driver := pipeline.New(registry, index,
		pipeline.WithOptions(pipeline.Options{
			ParallelAgents:   cfg.Pipeline.ParallelAgents,
			CleanupDocuments: cfg.Pipeline.CleanupDocuments,
			Timeout:          cfg.Pipeline.Timeout,
		}),
		pipeline.WithPolicy(cfg.Guardrails.Policy()),
		pipeline.WithEventBus(bus),
		pipeline.WithLogger(log),
	)

	return &application{
		cfg:      cfg,
		log:      log,
		bus:      bus,
		index:    index,
		registry: registry,
		driver:   driver,
	}, nil
}

func openIndex(cfg *config.Config, log *logging.Logger, embedder *openai.Client) (core.Index, error) {
	switch cfg.Retrieval.Backend {
	case config.BackendPinecone:
		return pinecone.New(pinecone.Config{
			Host:        cfg.Retrieval.Pinecone.Host,
			APIKey:      cfg.Retrieval.Pinecone.APIKey,
			Namespace:   cfg.Retrieval.Pinecone.Namespace,
			Timeout:     cfg.Generation.Timeout,
			MaxAttempts: cfg.Generation.MaxAttempts,
			Logger:      log,
		}, embedder)
	case config.BackendSQLite:
		return localindex.Open(cfg.Retrieval.SQLite.Path,
			localindex.WithChunkSize(cfg.Retrieval.SQLite.ChunkSize),
			localindex.WithLogger(log))
	}
	return nil, fmt.Errorf("unknown retrieval backend %q", cfg.Retrieval.Backend)
}

// Close releases the index and the event bus.
func (a *application) Close() error {
	a.bus.Close()
	return a.index.Close()
}
