// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/pdiddy/scholarqa/internal/llm"
	"github.com/pdiddy/scholarqa/internal/metadata"
	"github.com/pdiddy/scholarqa/internal/pipeline"
	"github.com/pdiddy/scholarqa/internal/rerank"
	"github.com/pdiddy/scholarqa/internal/s2"
	"github.com/pdiddy/scholarqa/internal/search"
	"github.com/pdiddy/scholarqa/internal/store"
	"github.com/pdiddy/scholarqa/pkg/types"
)

// closers releases wired resources in reverse order.
type closers []func() error

func (c closers) Close() {
	for i := len(c) - 1; i >= 0; i-- {
		if err := c[i](); err != nil {
			logger.Warn("closing resource", zap.Error(err))
		}
	}
}

// newBackend wires the keyword and semantic search backends. The returned
// S2 client is shared so that one rate limiter covers every Semantic
// Scholar call.
func newBackend(cfg types.PipelineConfig) (*search.Router, *s2.Client, closers, error) {
	var cl closers
	s2c := s2.NewClient(cfg.Retrieval.HTTPConfig, cfg.Retrieval.SemanticScholarAPIKey, cfg.Retrieval.RequestsPerSecond)
	router := &search.Router{Keyword: &search.PaperBackend{Client: s2c}}

	switch cfg.Retrieval.Semantic {
	case types.SemanticQdrant:
		if cfg.Retrieval.QdrantAddr == "" || cfg.Retrieval.QdrantCollection == "" {
			return nil, nil, nil, fmt.Errorf("qdrant backend needs retrieval.qdrant_addr and retrieval.qdrant_collection")
		}
		emb, err := llm.NewEmbedder(cfg.Retrieval.EmbeddingHost, cfg.Retrieval.EmbeddingModel, cfg.Retrieval.EmbeddingAPIKey)
		if err != nil {
			return nil, nil, nil, err
		}
		qb, err := search.NewQdrantBackend(cfg.Retrieval.QdrantAddr, cfg.Retrieval.QdrantCollection, emb)
		if err != nil {
			return nil, nil, nil, err
		}
		cl = append(cl, qb.Close)
		router.Semantic = qb
	case types.SemanticS2, "":
		router.Semantic = &search.SnippetBackend{Client: s2c, MinWords: cfg.Retrieval.MinPassageWords}
	default:
		return nil, nil, nil, fmt.Errorf("unknown semantic backend %q (want s2 or qdrant)", cfg.Retrieval.Semantic)
	}
	return router, s2c, cl, nil
}

// newCache returns the configured metadata cache, or nil for none.
func newCache(cfg types.PipelineConfig, st *store.Store) (metadata.Cache, closers, error) {
	switch cfg.Metadata.Cache {
	case types.CacheSQLite, "":
		return st, nil, nil
	case types.CacheRedis:
		if cfg.Metadata.RedisAddr == "" {
			return nil, nil, fmt.Errorf("redis cache needs metadata.redis_addr")
		}
		client := redis.NewClient(&redis.Options{Addr: cfg.Metadata.RedisAddr})
		return metadata.NewRedisCache(client, cfg.Metadata.CacheTTL, logger), closers{client.Close}, nil
	case types.CacheNone:
		return nil, nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown metadata cache %q (want none, sqlite, or redis)", cfg.Metadata.Cache)
	}
}

// newReranker returns the cross-encoder client, or nil when no endpoint is
// configured.
func newReranker(cfg types.PipelineConfig) rerank.Reranker {
	if cfg.Rerank.Endpoint == "" {
		return nil
	}
	return rerank.NewCrossEncoder(cfg.Rerank)
}

// newPipeline wires every collaborator of the pipeline.
func newPipeline(cfg types.PipelineConfig, st *store.Store) (*pipeline.Pipeline, closers, error) {
	model, err := llm.NewModel(cfg.Generation.AIConfig)
	if err != nil {
		return nil, nil, err
	}

	backend, s2c, cl, err := newBackend(cfg)
	if err != nil {
		return nil, nil, err
	}
	cache, cacheClosers, err := newCache(cfg, st)
	if err != nil {
		cl.Close()
		return nil, nil, err
	}
	cl = append(cl, cacheClosers...)

	deps := pipeline.Deps{
		LLM:      llm.NewClient(model, cfg.Generation.MaxRetries),
		Backend:  backend,
		Metadata: &metadata.S2Store{Client: s2c},
		Logger:   logger,
	}
	if r := newReranker(cfg); r != nil {
		deps.Reranker = r
	}
	if cache != nil {
		deps.Cache = cache
	}

	p, err := pipeline.New(cfg, deps)
	if err != nil {
		cl.Close()
		return nil, nil, err
	}
	cl = append(cl, func() error { p.Close(); return nil })
	return p, cl, nil
}
