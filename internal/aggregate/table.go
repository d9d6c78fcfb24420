// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package aggregate groups reranked candidates into one scored record per
// document.
package aggregate

import (
	"sort"

	"github.com/pdiddy/scholarqa/pkg/types"
)

// Table maps document IDs to aggregated documents. It is built once,
// single-threaded, and read-only afterwards.
type Table struct {
	byID  map[string]*types.AggregatedDocument
	order []*types.AggregatedDocument
}

// Build groups cands by DocID. A document's score is the maximum of its
// passage scores; passages are ordered by descending score with ties broken
// by arrival. Documents are ordered by descending score with ties broken by
// first arrival.
func Build(cands []types.Candidate) *Table {
	t := &Table{byID: make(map[string]*types.AggregatedDocument)}
	for i, c := range cands {
		doc, ok := t.byID[c.DocID]
		if !ok {
			doc = &types.AggregatedDocument{DocID: c.DocID, Title: c.Title, Score: c.Score}
			t.byID[c.DocID] = doc
			t.order = append(t.order, doc)
		}
		if doc.Title == "" {
			doc.Title = c.Title
		}
		if c.Score > doc.Score {
			doc.Score = c.Score
		}
		doc.Passages = append(doc.Passages, types.Passage{
			Text:         c.Text,
			SectionTitle: c.SectionTitle,
			Kind:         c.Kind,
			Score:        c.Score,
			Arrival:      i,
			RefMentions:  c.RefMentions,
		})
	}

	for _, doc := range t.order {
		sort.SliceStable(doc.Passages, func(i, j int) bool {
			a, b := doc.Passages[i], doc.Passages[j]
			if a.Score != b.Score {
				return a.Score > b.Score
			}
			return a.Arrival < b.Arrival
		})
	}
	// order holds documents by first arrival, so a stable sort keeps that
	// as the tie-break.
	sort.SliceStable(t.order, func(i, j int) bool {
		return t.order[i].Score > t.order[j].Score
	})
	return t
}

// Get returns the document with the given ID.
func (t *Table) Get(docID string) (*types.AggregatedDocument, bool) {
	doc, ok := t.byID[docID]
	return doc, ok
}

// Docs returns the documents in descending score order.
func (t *Table) Docs() []*types.AggregatedDocument {
	return t.order
}

// Top returns at most n documents in descending score order. n <= 0
// returns all.
func (t *Table) Top(n int) []*types.AggregatedDocument {
	if n <= 0 || n >= len(t.order) {
		return t.order
	}
	return t.order[:n]
}

// Len returns the number of documents.
func (t *Table) Len() int { return len(t.order) }
