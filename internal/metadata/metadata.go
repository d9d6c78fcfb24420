// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package metadata resolves document IDs to citation metadata. A Resolver
// consults a per-request working map, then an optional persistent Cache,
// then issues one batched Store fetch for whatever is still missing.
package metadata

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/pdiddy/scholarqa/internal/metrics"
	"github.com/pdiddy/scholarqa/pkg/types"
)

// Store fetches metadata for a batch of document IDs. IDs it does not know
// are absent from the result.
type Store interface {
	Fetch(ctx context.Context, ids []string) (map[string]types.PaperMetadata, error)
}

// Cache is a persistent metadata cache shared across requests.
type Cache interface {
	GetMany(ctx context.Context, ids []string) (map[string]types.PaperMetadata, error)
	PutMany(ctx context.Context, papers []types.PaperMetadata) error
}

// Resolver resolves IDs for one request. It is not safe for concurrent use;
// the pipeline calls it once after all quotes are aligned.
type Resolver struct {
	store   Store
	cache   Cache
	working map[string]types.PaperMetadata
	logger  *zap.Logger
}

// NewResolver returns a Resolver. cache may be nil.
func NewResolver(store Store, cache Cache, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{
		store:   store,
		cache:   cache,
		working: make(map[string]types.PaperMetadata),
		logger:  logger.Named("metadata"),
	}
}

// Seed adds already known metadata to the working map.
func (r *Resolver) Seed(papers ...types.PaperMetadata) {
	for _, p := range papers {
		if p.DocID != "" {
			r.working[p.DocID] = p
		}
	}
}

// Resolve returns metadata for every ID it can resolve. Empty and duplicate
// IDs are ignored. Cache failures are logged and treated as misses; a Store
// failure is returned along with whatever was resolved before it.
func (r *Resolver) Resolve(ctx context.Context, ids []string) (map[string]types.PaperMetadata, error) {
	out := make(map[string]types.PaperMetadata, len(ids))
	var missing []string
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		if p, ok := r.working[id]; ok {
			out[id] = p
			metrics.MetadataLookups.WithLabelValues("working").Inc()
			continue
		}
		missing = append(missing, id)
	}
	if len(missing) == 0 {
		return out, nil
	}

	if r.cache != nil {
		cached, err := r.cache.GetMany(ctx, missing)
		if err != nil {
			r.logger.Warn("metadata cache read failed", zap.Error(err))
		}
		missing = r.absorb(out, cached, missing, "cache")
	}
	if len(missing) == 0 {
		return out, nil
	}

	fetched, err := r.store.Fetch(ctx, missing)
	if err != nil {
		metrics.MetadataLookups.WithLabelValues("miss").Add(float64(len(missing)))
		return out, fmt.Errorf("fetching metadata for %d papers: %w", len(missing), err)
	}
	stillMissing := r.absorb(out, fetched, missing, "fetch")
	metrics.MetadataLookups.WithLabelValues("miss").Add(float64(len(stillMissing)))

	if r.cache != nil && len(fetched) > 0 {
		papers := make([]types.PaperMetadata, 0, len(fetched))
		for _, id := range missing {
			if p, ok := fetched[id]; ok {
				papers = append(papers, p)
			}
		}
		if err := r.cache.PutMany(ctx, papers); err != nil {
			r.logger.Warn("metadata cache write failed", zap.Error(err))
		}
	}
	r.logger.Debug("resolved metadata",
		zap.Int("requested", len(seen)),
		zap.Int("fetched", len(fetched)),
		zap.Int("unresolved", len(stillMissing)))
	return out, nil
}

// absorb copies found entries into out and the working map and returns the
// IDs that are still missing.
func (r *Resolver) absorb(out, found map[string]types.PaperMetadata, ids []string, source string) []string {
	var rest []string
	for _, id := range ids {
		p, ok := found[id]
		if !ok {
			rest = append(rest, id)
			continue
		}
		if p.DocID == "" {
			p.DocID = id
		}
		out[id] = p
		r.working[id] = p
		metrics.MetadataLookups.WithLabelValues(source).Inc()
	}
	return rest
}
