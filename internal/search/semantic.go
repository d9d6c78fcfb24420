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

const defaultMinPassageWords = 20

// SnippetBackend searches full-text passages through Semantic Scholar
// snippet search. Passages carry the corpus's citation-marker annotations.
type SnippetBackend struct {
	Client *s2.Client

	// MinWords drops passages with this many words or fewer. Zero uses 20.
	MinWords int
}

// Name returns the backend identifier.
func (b *SnippetBackend) Name() string { return "s2_snippet" }

// Search returns up to limit passages for query. mode is ignored: snippet
// search is always semantic.
func (b *SnippetBackend) Search(ctx context.Context, query string, _ types.SearchMode, limit int) ([]types.Candidate, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("empty snippet query")
	}
	if limit <= 0 {
		limit = defaultTaskLimit
	}

	params := url.Values{
		"query": {query},
		"limit": {fmt.Sprintf("%d", limit)},
	}

	var sr s2.SnippetSearchResponse
	if err := b.Client.Get(ctx, "snippet/search", params, &sr); err != nil {
		return nil, err
	}

	minWords := b.MinWords
	if minWords <= 0 {
		minWords = defaultMinPassageWords
	}

	cands := make([]types.Candidate, 0, len(sr.Data))
	for _, m := range sr.Data {
		if m.Paper.CorpusID == "" || len(strings.Fields(m.Snippet.Text)) <= minWords {
			continue
		}
		cands = append(cands, snippetCandidate(m))
	}
	return cands, nil
}

// snippetCandidate converts one match, translating the code-point offsets
// of its ref mentions into byte offsets.
func snippetCandidate(m s2.SnippetMatch) types.Candidate {
	c := types.Candidate{
		DocID:        string(m.Paper.CorpusID),
		Text:         m.Snippet.Text,
		Title:        m.Paper.Title,
		SectionTitle: m.Snippet.SnippetKind,
		Kind:         types.KindPassage,
		Source:       "s2_snippet",
		Score:        m.Score,
	}
	if m.Snippet.SnippetKind == "body" && m.Snippet.Section != "" {
		c.SectionTitle = m.Snippet.Section
	}

	if m.Snippet.Annotations == nil {
		return c
	}
	toByte := s2.ByteOffsets(m.Snippet.Text)
	for _, rm := range m.Snippet.Annotations.RefMentions {
		if rm.End <= rm.Start {
			continue
		}
		c.RefMentions = append(c.RefMentions, types.RefMention{
			Start:        toByte(rm.Start),
			End:          toByte(rm.End),
			MatchedDocID: string(rm.MatchedPaperCorpusID),
		})
	}
	return c
}
