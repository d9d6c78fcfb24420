// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package align locates LLM-produced quotes inside the source passages of a
// document. An exact pass runs over case- and whitespace-normalized text;
// when it fails a fuzzy pass scores token windows by LCS similarity.
// Offsets always refer to the original passage bytes.
package align

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/pdiddy/scholarqa/pkg/types"
)

// Aligner maps quotes to passage offsets.
type Aligner struct {
	cfg types.AlignmentConfig
}

// New returns an Aligner. Zero thresholds fall back to the defaults.
func New(cfg types.AlignmentConfig) *Aligner {
	def := types.DefaultAlignmentConfig()
	if cfg.Threshold <= 0 {
		cfg.Threshold = def.Threshold
	}
	if cfg.MinContentRecall <= 0 {
		cfg.MinContentRecall = def.MinContentRecall
	}
	if cfg.WindowSlack < 0 {
		cfg.WindowSlack = 0
	}
	return &Aligner{cfg: cfg}
}

// Align returns the location of quote in doc, or types.Unresolved. Passages
// are searched in the document's order, which is descending score.
func (a *Aligner) Align(quote string, doc *types.AggregatedDocument) types.Alignment {
	if doc == nil || len(doc.Passages) == 0 {
		return types.Unresolved
	}
	q := normalizeQuote(quote)
	if q == "" {
		return types.Unresolved
	}
	if al, ok := exactMatch(q, doc.Passages); ok {
		return al
	}
	return a.fuzzyMatch(q, doc.Passages)
}

// normalizeQuote trims ellipses, straightens smart quotes, lowercases, and
// collapses whitespace.
func normalizeQuote(s string) string {
	s = strings.TrimSpace(s)
	for {
		t := strings.TrimSpace(trimEllipsis(s))
		if t == s {
			break
		}
		s = t
	}
	n, _ := normalize(s)
	return n
}

func trimEllipsis(s string) string {
	for _, e := range []string{"...", "…"} {
		s = strings.TrimPrefix(s, e)
		s = strings.TrimSuffix(s, e)
	}
	return s
}

// offsetMap records, for every byte of normalized text, the byte range of
// the original rune that produced it.
type offsetMap struct {
	start []int
	end   []int
}

// normalize lowercases text, straightens smart quotes, and collapses
// whitespace runs to one space with no leading or trailing space.
func normalize(text string) (string, offsetMap) {
	var b strings.Builder
	var m offsetMap
	b.Grow(len(text))
	pendingSpace := -1

	for i, r := range text {
		_, size := utf8.DecodeRuneInString(text[i:])
		if unicode.IsSpace(r) {
			if b.Len() > 0 && pendingSpace < 0 {
				pendingSpace = i
			}
			continue
		}
		if pendingSpace >= 0 {
			b.WriteByte(' ')
			m.start = append(m.start, pendingSpace)
			m.end = append(m.end, pendingSpace+1)
			pendingSpace = -1
		}
		out := string(unicode.ToLower(straighten(r)))
		b.WriteString(out)
		for range len(out) {
			m.start = append(m.start, i)
			m.end = append(m.end, i+size)
		}
	}
	return b.String(), m
}

func straighten(r rune) rune {
	switch r {
	case '‘', '’', '‚', '′':
		return '\''
	case '“', '”', '„', '″':
		return '"'
	case '–', '—':
		return '-'
	}
	return r
}

// exactMatch returns the first passage containing q after normalization.
func exactMatch(q string, passages []types.Passage) (types.Alignment, bool) {
	for pi, p := range passages {
		norm, m := normalize(p.Text)
		idx := strings.Index(norm, q)
		if idx < 0 {
			continue
		}
		return types.Alignment{
			Resolved:   true,
			Passage:    pi,
			Start:      m.start[idx],
			End:        m.end[idx+len(q)-1],
			Confidence: 1,
			Exact:      true,
		}, true
	}
	return types.Alignment{}, false
}
