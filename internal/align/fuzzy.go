// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package align

import (
	"strings"
	"unicode"

	"github.com/pdiddy/scholarqa/pkg/types"
)

type token struct {
	text       string
	start, end int
}

// tokenize splits text into maximal runs of letters and digits, lowercased,
// with byte offsets into text.
func tokenize(text string) []token {
	var toks []token
	start := -1
	flush := func(end int) {
		if start >= 0 {
			toks = append(toks, token{text: strings.ToLower(text[start:end]), start: start, end: end})
			start = -1
		}
	}
	for i, r := range text {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if start < 0 {
				start = i
			}
			continue
		}
		flush(i)
	}
	flush(len(text))
	return toks
}

func contentWords(toks []token) []string {
	var out []string
	for _, t := range toks {
		if !stopWords[t.text] {
			out = append(out, t.text)
		}
	}
	return out
}

type window struct {
	passage, start, length int
	sim                    float64
}

// fuzzyMatch scores every window of quote length ± slack in every passage
// and keeps the best one that clears both thresholds. Ties go to the
// earlier passage, then the earlier start, then the shorter window.
func (a *Aligner) fuzzyMatch(q string, passages []types.Passage) types.Alignment {
	qToks := tokenize(q)
	qWords := make([]string, len(qToks))
	for i, t := range qToks {
		qWords[i] = t.text
	}
	qContent := contentWords(qToks)
	if len(qContent) == 0 {
		return types.Unresolved
	}

	n := len(qWords)
	minLen := n - a.cfg.WindowSlack
	if minLen < 1 {
		minLen = 1
	}
	maxLen := n + a.cfg.WindowSlack

	var best *window
	var bestToks []token
	for pi, p := range passages {
		toks := tokenize(p.Text)
		words := make([]string, len(toks))
		for i, t := range toks {
			words[i] = t.text
		}

		for s := range toks {
			limit := maxLen
			if s+limit > len(toks) {
				limit = len(toks) - s
			}
			if limit < minLen {
				break
			}
			lcs := prefixLCS(qWords, words[s:s+limit])
			for l := minLen; l <= limit; l++ {
				sim := 2 * float64(lcs[l]) / float64(n+l)
				if sim < a.cfg.Threshold {
					continue
				}
				if best != nil && sim <= best.sim {
					continue
				}
				wContent := contentWords(toks[s : s+l])
				recall := float64(lcsLen(qContent, wContent)) / float64(len(qContent))
				if recall < a.cfg.MinContentRecall {
					continue
				}
				best = &window{passage: pi, start: s, length: l, sim: sim}
				bestToks = toks
			}
		}
	}

	if best == nil {
		return types.Unresolved
	}
	return types.Alignment{
		Resolved:   true,
		Passage:    best.passage,
		Start:      bestToks[best.start].start,
		End:        bestToks[best.start+best.length-1].end,
		Confidence: best.sim,
	}
}

// prefixLCS returns, for every l in [0, len(w)], the LCS length of q and
// w[:l].
func prefixLCS(q, w []string) []int {
	out := make([]int, len(w)+1)
	prev := make([]int, len(q)+1)
	cur := make([]int, len(q)+1)
	for i := 1; i <= len(w); i++ {
		for j := 1; j <= len(q); j++ {
			switch {
			case w[i-1] == q[j-1]:
				cur[j] = prev[j-1] + 1
			case prev[j] >= cur[j-1]:
				cur[j] = prev[j]
			default:
				cur[j] = cur[j-1]
			}
		}
		out[i] = cur[len(q)]
		prev, cur = cur, prev
	}
	return out
}

func lcsLen(a, b []string) int {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	return prefixLCS(a, b)[len(b)]
}

var stopWords = map[string]bool{
	"a": true, "about": true, "above": true, "after": true, "again": true, "against": true,
	"all": true, "also": true, "am": true, "an": true, "and": true, "any": true, "are": true,
	"as": true, "at": true, "be": true, "because": true, "been": true, "before": true,
	"being": true, "below": true, "between": true, "both": true, "but": true, "by": true,
	"can": true, "could": true, "did": true, "do": true, "does": true, "doing": true,
	"down": true, "during": true, "each": true, "few": true, "for": true, "from": true,
	"further": true, "had": true, "has": true, "have": true, "having": true, "he": true,
	"her": true, "here": true, "hers": true, "him": true, "his": true, "how": true,
	"i": true, "if": true, "in": true, "into": true, "is": true, "it": true, "its": true,
	"itself": true, "just": true, "may": true, "me": true, "might": true, "more": true,
	"most": true, "must": true, "my": true, "no": true, "nor": true, "not": true, "of": true,
	"off": true, "on": true, "once": true, "only": true, "or": true, "other": true,
	"our": true, "ours": true, "out": true, "over": true, "own": true, "same": true,
	"she": true, "should": true, "so": true, "some": true, "such": true, "than": true,
	"that": true, "the": true, "their": true, "theirs": true, "them": true, "then": true,
	"there": true, "these": true, "they": true, "this": true, "those": true, "through": true,
	"to": true, "too": true, "under": true, "until": true, "up": true, "very": true,
	"was": true, "we": true, "were": true, "what": true, "when": true, "where": true,
	"which": true, "while": true, "who": true, "whom": true, "why": true, "will": true,
	"with": true, "would": true, "you": true, "your": true, "yours": true,
}
