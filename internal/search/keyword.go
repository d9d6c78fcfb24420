// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package search

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/pdiddy/scholarqa/internal/s2"
	"github.com/pdiddy/scholarqa/pkg/types"
)

// PaperBackend runs keyword search over paper metadata through Semantic
// Scholar paper search. Each hit becomes an abstract candidate with score
// 0; the reranker assigns its relevance.
type PaperBackend struct {
	Client *s2.Client
}

// Name returns the backend identifier.
func (b *PaperBackend) Name() string { return "s2_paper" }

// Search returns up to limit papers matching query. Papers without a
// corpus ID, title, or abstract are skipped.
func (b *PaperBackend) Search(ctx context.Context, query string, _ types.SearchMode, limit int) ([]types.Candidate, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("empty paper query")
	}
	if limit <= 0 {
		limit = defaultTaskLimit
	}

	params := url.Values{
		"query":  {query},
		"limit":  {fmt.Sprintf("%d", limit)},
		"fields": {s2.PaperFields},
	}

	var pr s2.PaperSearchResponse
	if err := b.Client.Get(ctx, "paper/search", params, &pr); err != nil {
		return nil, err
	}

	cands := make([]types.Candidate, 0, len(pr.Data))
	for _, p := range pr.Data {
		if p.CorpusID == "" || p.Title == "" || p.Abstract == "" {
			continue
		}
		cands = append(cands, types.Candidate{
			DocID:        string(p.CorpusID),
			Text:         p.Abstract,
			Title:        p.Title,
			SectionTitle: "abstract",
			Kind:         types.KindAbstract,
			Source:       "s2_paper",
		})
	}
	return cands, nil
}
