// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package align

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/scholarqa/pkg/types"
)

func doc(texts ...string) *types.AggregatedDocument {
	d := &types.AggregatedDocument{DocID: "1"}
	for i, t := range texts {
		d.Passages = append(d.Passages, types.Passage{Text: t, Arrival: i})
	}
	return d
}

func TestExactAlignment(t *testing.T) {
	a := New(types.AlignmentConfig{})
	passage := "The model uses RAG to extend context."

	got := a.Align("uses RAG to extend context", doc(passage))
	require.True(t, got.Resolved)
	assert.True(t, got.Exact)
	assert.Equal(t, 10, got.Start)
	assert.Equal(t, 36, got.End)
	assert.Equal(t, 1.0, got.Confidence)
	assert.Equal(t, "uses RAG to extend context", passage[got.Start:got.End])
}

func TestExactAlignmentNormalization(t *testing.T) {
	a := New(types.AlignmentConfig{})
	tests := []struct {
		name    string
		quote   string
		passage string
		want    string
	}{
		{
			name:    "case and whitespace",
			quote:   "Dense   RETRIEVAL outperforms",
			passage: "We find that dense\n  retrieval outperforms BM25.",
			want:    "dense\n  retrieval outperforms",
		},
		{
			name:    "ellipses trimmed",
			quote:   "...dense retrieval outperforms…",
			passage: "We find that dense retrieval outperforms BM25.",
			want:    "dense retrieval outperforms",
		},
		{
			name:    "smart quotes",
			quote:   "the so-called “lost in the middle” effect",
			passage: "This is the so-called \"lost in the middle\" effect.",
			want:    "the so-called \"lost in the middle\" effect",
		},
		{
			name:    "multibyte text before match",
			quote:   "naïve baselines fail",
			passage: "Über alles, naïve baselines fail here.",
			want:    "naïve baselines fail",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := a.Align(tt.quote, doc(tt.passage))
			require.True(t, got.Resolved)
			assert.True(t, got.Exact)
			assert.Equal(t, tt.want, tt.passage[got.Start:got.End])
		})
	}
}

func TestExactAlignmentFirstPassageWins(t *testing.T) {
	a := New(types.AlignmentConfig{})
	got := a.Align("shared sentence", doc("no match here", "a shared sentence", "another shared sentence"))
	require.True(t, got.Resolved)
	assert.Equal(t, 1, got.Passage)
}

func TestFuzzyInsertedWordResolves(t *testing.T) {
	a := New(types.AlignmentConfig{})
	passage := "The model uses RAG to extend context."

	got := a.Align("The model uses RAG to greatly extend context", doc(passage))
	require.True(t, got.Resolved)
	assert.False(t, got.Exact)
	assert.Equal(t, 0, got.Start)
	assert.Equal(t, 36, got.End)
	assert.InDelta(t, 14.0/15.0, got.Confidence, 1e-9)
}

func TestFuzzyDroppedWordResolves(t *testing.T) {
	a := New(types.AlignmentConfig{})
	passage := "Results show that sparse retrieval remains highly competitive on keyword queries, as noted before."

	got := a.Align("sparse retrieval remains competitive on keyword queries", doc(passage))
	require.True(t, got.Resolved)
	assert.Equal(t, "sparse retrieval remains highly competitive on keyword queries", passage[got.Start:got.End])
}

func TestStopWordOverlapUnresolved(t *testing.T) {
	a := New(types.AlignmentConfig{})
	passage := "It was in the interest of all of them to do so, and it is what they did with it."

	tests := []string{
		"it was in the of them to do",
		"they said that it was in the interest of a different team",
	}
	for _, q := range tests {
		got := a.Align(q, doc(passage))
		assert.False(t, got.Resolved, "quote %q", q)
		assert.Equal(t, types.Unresolved, got)
	}
}

func TestFuzzyUnrelatedUnresolved(t *testing.T) {
	a := New(types.AlignmentConfig{})
	got := a.Align("graph neural networks improve molecule property prediction",
		doc("Retrieval augmented generation extends the context of language models."))
	assert.False(t, got.Resolved)
}

func TestFuzzyTieBreakEarlierPassage(t *testing.T) {
	a := New(types.AlignmentConfig{})
	text := "dense retrieval beats sparse retrieval on open domain questions"
	got := a.Align("dense retrieval clearly beats sparse retrieval on open domain questions", doc(text, text))
	require.True(t, got.Resolved)
	assert.Equal(t, 0, got.Passage)
}

func TestAlignEmptyInputs(t *testing.T) {
	a := New(types.AlignmentConfig{})
	assert.False(t, a.Align("", doc("text")).Resolved)
	assert.False(t, a.Align("...", doc("text")).Resolved)
	assert.False(t, a.Align("quote", nil).Resolved)
	assert.False(t, a.Align("quote", &types.AggregatedDocument{}).Resolved)
}

func TestNormalizeOffsets(t *testing.T) {
	norm, m := normalize("  A\tB  ")
	assert.Equal(t, "a b", norm)
	require.Len(t, m.start, 3)
	assert.Equal(t, 2, m.start[0])
	assert.Equal(t, 3, m.start[1])
	assert.Equal(t, 4, m.start[2])
}

func TestNormalizeInvalidUTF8(t *testing.T) {
	passage := "abc\xff def"
	norm, m := normalize(passage)
	assert.Equal(t, "abc\uFFFD def", norm)
	assert.Equal(t, 3, m.start[3])
	assert.Equal(t, 4, m.end[5], "an invalid byte maps to a one-byte range")

	got := New(types.AlignmentConfig{}).Align("abc\uFFFD", doc(passage))
	require.True(t, got.Resolved)
	assert.Equal(t, 0, got.Start)
	assert.Equal(t, 4, got.End)
}

func TestTokenize(t *testing.T) {
	toks := tokenize("GPT-4, (2023) naïve")
	words := make([]string, len(toks))
	for i, tk := range toks {
		words[i] = tk.text
	}
	assert.Equal(t, []string{"gpt", "4", "2023", "naïve"}, words)
	assert.Equal(t, 14, toks[3].start)
	assert.Equal(t, 20, toks[3].end)
}

func TestPrefixLCS(t *testing.T) {
	q := []string{"a", "b", "c"}
	w := []string{"a", "x", "b", "c"}
	assert.Equal(t, []int{0, 1, 1, 2, 3}, prefixLCS(q, w))
}
