// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package metadata

import (
	"context"
	"net/url"

	"github.com/pdiddy/scholarqa/internal/s2"
	"github.com/pdiddy/scholarqa/pkg/types"
)

// maxBatch is the largest ID list paper/batch accepts.
const maxBatch = 500

// S2Store fetches metadata through the Semantic Scholar paper/batch endpoint.
type S2Store struct {
	Client *s2.Client
}

// Fetch looks up ids as corpus IDs. Papers the API does not know come back
// as null and are left out of the result.
func (s *S2Store) Fetch(ctx context.Context, ids []string) (map[string]types.PaperMetadata, error) {
	out := make(map[string]types.PaperMetadata, len(ids))
	params := url.Values{"fields": {s2.PaperFields}}

	for start := 0; start < len(ids); start += maxBatch {
		end := min(start+maxBatch, len(ids))
		batch := ids[start:end]

		body := struct {
			IDs []string `json:"ids"`
		}{IDs: make([]string, len(batch))}
		for i, id := range batch {
			body.IDs[i] = "CorpusId:" + id
		}

		var papers []*s2.Paper
		if err := s.Client.Post(ctx, "paper/batch", params, body, &papers); err != nil {
			return out, err
		}
		for i, p := range papers {
			if p == nil || i >= len(batch) {
				continue
			}
			m := p.Metadata()
			m.DocID = batch[i]
			out[batch[i]] = m
		}
	}
	return out, nil
}
