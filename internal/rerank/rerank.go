// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package rerank re-scores deduplicated candidates against the original
// question with a cross-encoder and cuts the list to the configured depth.
package rerank

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/pdiddy/scholarqa/internal/metrics"
	"github.com/pdiddy/scholarqa/pkg/types"
)

const defaultBatchSize = 64

// Reranker scores texts against a query. Scores are aligned to the input
// order. Implementations fail on empty input.
type Reranker interface {
	Rerank(ctx context.Context, query string, texts []string) ([]float64, error)
}

// Gateway batches candidates through a Reranker.
type Gateway struct {
	reranker  Reranker
	depth     int
	batchSize int
	logger    *zap.Logger
}

// NewGateway returns a Gateway. depth 0 disables reranking, a negative depth
// keeps every candidate, and a positive depth keeps the top depth.
func NewGateway(r Reranker, depth, batchSize int, logger *zap.Logger) *Gateway {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gateway{reranker: r, depth: depth, batchSize: batchSize, logger: logger.Named("rerank")}
}

// Enabled reports whether Rerank calls the reranker at all.
func (g *Gateway) Enabled() bool { return g.depth != 0 && g.reranker != nil }

// Rerank scores cands against originalQuery and returns them in descending
// score order, cut to the gateway depth. With depth 0 the input is returned
// unchanged. Empty input fails with types.ErrRerankEmpty.
func (g *Gateway) Rerank(ctx context.Context, originalQuery string, cands []types.Candidate) ([]types.Candidate, error) {
	if len(cands) == 0 {
		return nil, types.ErrRerankEmpty
	}
	if !g.Enabled() {
		return cands, nil
	}

	scored := make([]types.Candidate, len(cands))
	copy(scored, cands)

	for start := 0; start < len(scored); start += g.batchSize {
		end := start + g.batchSize
		if end > len(scored) {
			end = len(scored)
		}
		batch := scored[start:end]
		texts := make([]string, len(batch))
		for i, c := range batch {
			texts[i] = rerankText(c)
		}

		scores, err := g.reranker.Rerank(ctx, originalQuery, texts)
		metrics.RerankCalls.Inc()
		if err != nil {
			return nil, fmt.Errorf("reranking batch %d-%d: %w", start, end, err)
		}
		if len(scores) != len(batch) {
			return nil, fmt.Errorf("reranker returned %d scores for %d texts", len(scores), len(batch))
		}
		for i := range batch {
			batch[i].Score = scores[i]
		}
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})

	if g.depth > 0 && len(scored) > g.depth {
		scored = scored[:g.depth]
	}
	g.logger.Debug("reranked candidates",
		zap.Int("input", len(cands)),
		zap.Int("kept", len(scored)))
	return scored, nil
}

// rerankText prefixes abstracts with the paper title so keyword hits are
// scored on the same footing as body passages.
func rerankText(c types.Candidate) string {
	if c.Kind == types.KindAbstract && c.Title != "" {
		return c.Title + "\n" + c.Text
	}
	return c.Text
}
