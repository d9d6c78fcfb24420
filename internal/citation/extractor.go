// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package citation links aligned quotes to the citation markers inside
// them, resolves the cited documents through one batched metadata lookup,
// and rewrites section references into human-readable reference strings.
package citation

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/pdiddy/scholarqa/pkg/types"
)

// DocLookup returns the aggregated document for an ID. aggregate.Table
// satisfies it.
type DocLookup interface {
	Get(docID string) (*types.AggregatedDocument, bool)
}

// Resolver batch-resolves document IDs. metadata.Resolver satisfies it.
type Resolver interface {
	Resolve(ctx context.Context, ids []string) (map[string]types.PaperMetadata, error)
}

// Extractor extracts the citation markers of one request. It holds the
// resolved metadata afterwards, so it is created per request.
type Extractor struct {
	docs     DocLookup
	resolver Resolver
	logger   *zap.Logger

	papers map[string]types.PaperMetadata
	diags  []types.Diagnostic
}

// NewExtractor returns an Extractor over docs.
func NewExtractor(docs DocLookup, resolver Resolver, logger *zap.Logger) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{
		docs:     docs,
		resolver: resolver,
		logger:   logger.Named("citation"),
		papers:   make(map[string]types.PaperMetadata),
	}
}

// Extract fills Mentions on every evidence item with a resolved alignment.
// A marker belongs to a quote when its start offset lies inside the
// alignment. All referenced documents, plus the quoted documents
// themselves, are resolved with a single Resolver call. Markers without a
// matched document, or whose document cannot be resolved, are dropped and
// recorded as diagnostics. Only context cancellation is returned as an
// error.
func (x *Extractor) Extract(ctx context.Context, evidence []types.Evidence) ([]types.Evidence, error) {
	out := make([]types.Evidence, len(evidence))
	copy(out, evidence)

	markers := make([][]types.RefMention, len(out))
	var ids []string
	for i, e := range out {
		ids = append(ids, e.Quote.DocID)
		markers[i] = x.markersFor(e)
		for _, m := range markers[i] {
			if m.MatchedDocID != "" {
				ids = append(ids, m.MatchedDocID)
			}
		}
	}

	resolved, err := x.resolver.Resolve(ctx, ids)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		x.logger.Warn("metadata resolution incomplete", zap.Error(err))
	}
	for id, p := range resolved {
		x.papers[id] = p
	}

	for i := range out {
		out[i].Mentions = nil
		for _, m := range markers[i] {
			if m.MatchedDocID == "" {
				x.miss(out[i], m, "citation marker has no matched document")
				continue
			}
			mention := types.CitationMention{Start: m.Start, End: m.End, DocID: m.MatchedDocID}
			if p, ok := x.papers[m.MatchedDocID]; ok {
				paper := p
				mention.Metadata = &paper
			} else {
				x.miss(out[i], m, fmt.Sprintf("cited document %s has no metadata", m.MatchedDocID))
			}
			mention.RefString = FormatRef(m.MatchedDocID, mention.Metadata)
			out[i].Mentions = append(out[i].Mentions, mention)
		}
	}
	return out, nil
}

// markersFor returns the markers of e's passage that start inside its
// alignment, in order of appearance.
func (x *Extractor) markersFor(e types.Evidence) []types.RefMention {
	if !e.Alignment.Resolved {
		return nil
	}
	doc, ok := x.docs.Get(e.Quote.DocID)
	if !ok || e.Alignment.Passage < 0 || e.Alignment.Passage >= len(doc.Passages) {
		return nil
	}
	var in []types.RefMention
	for _, m := range doc.Passages[e.Alignment.Passage].RefMentions {
		if e.Alignment.Contains(m.Start) {
			in = append(in, m)
		}
	}
	sort.SliceStable(in, func(i, j int) bool { return in[i].Start < in[j].Start })
	return in
}

func (x *Extractor) miss(e types.Evidence, m types.RefMention, msg string) {
	x.diags = append(x.diags, types.Diagnostic{
		Stage:   types.StateExtracting,
		Kind:    types.DiagCitationResolutionMiss,
		Subject: fmt.Sprintf("%s[%d:%d]", e.Quote.DocID, m.Start, m.End),
		Message: msg,
	})
}

// Paper returns the resolved metadata of a document.
func (x *Extractor) Paper(docID string) (types.PaperMetadata, bool) {
	p, ok := x.papers[docID]
	return p, ok
}

// Diagnostics returns the resolution misses recorded by Extract.
func (x *Extractor) Diagnostics() []types.Diagnostic {
	return x.diags
}
