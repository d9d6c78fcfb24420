// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package search

import (
	"sort"
	"strings"
	"unicode"

	"github.com/pdiddy/scholarqa/pkg/types"
)

// Deduplicate collapses candidates that carry the same passage of the same
// document, keeping the higher score. Distinct passages of one document
// survive so the aggregation table can group them. It returns the
// surviving candidates and the number of duplicates removed.
//
// The output is ordered by descending score, then task index, document ID,
// and text, so the result does not depend on the order in which concurrent
// tasks delivered their candidates. Deduplicating the output again returns
// it unchanged.
func Deduplicate(cands []types.Candidate) ([]types.Candidate, int) {
	sorted := make([]types.Candidate, len(cands))
	copy(sorted, cands)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Task != b.Task {
			return a.Task < b.Task
		}
		if a.DocID != b.DocID {
			return a.DocID < b.DocID
		}
		return a.Text < b.Text
	})

	seen := make(map[string]int, len(sorted))
	deduped := make([]types.Candidate, 0, len(sorted))
	removed := 0
	for _, c := range sorted {
		key := dedupKey(c)
		if idx, ok := seen[key]; ok {
			mergeInto(&deduped[idx], c)
			removed++
			continue
		}
		seen[key] = len(deduped)
		deduped = append(deduped, c)
	}
	return deduped, removed
}

// dedupKey identifies a passage by document and normalized text.
func dedupKey(c types.Candidate) string {
	return c.DocID + "\x00" + normalizeText(c.Text)
}

// mergeInto fills empty fields of dst from src. dst already holds the
// higher score because candidates arrive sorted.
func mergeInto(dst *types.Candidate, src types.Candidate) {
	if dst.Title == "" && src.Title != "" {
		dst.Title = src.Title
	}
	if dst.SectionTitle == "" && src.SectionTitle != "" {
		dst.SectionTitle = src.SectionTitle
	}
	if len(dst.RefMentions) == 0 && len(src.RefMentions) > 0 && dst.Text == src.Text {
		dst.RefMentions = src.RefMentions
	}
}

// normalizeText returns a lowercased, punctuation-stripped version of the
// text with whitespace collapsed.
func normalizeText(text string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(text) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) {
			b.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}
