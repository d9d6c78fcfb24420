// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package types defines the records shared by the scholarqa pipeline stages:
// queries and search candidates, aggregated documents and quote alignments,
// citation mentions, generated sections, and the final TaskResult.
package types

// MaxSubTopics bounds the sub-topic breakdown of one query. With the keyword
// task this caps a request at six concurrent searches.
const MaxSubTopics = 5

// Query is one user question plus the derived search strings. Original is
// never modified after the request starts.
type Query struct {
	// Original is the question as the user typed it. Reranking always
	// scores against this text.
	Original string `json:"original" yaml:"original"`

	// Rewritten is the decomposed, self-contained form of the question.
	Rewritten string `json:"rewritten" yaml:"rewritten"`

	// Keyword is the short query sent to keyword (paper) search. Empty
	// disables the keyword task.
	Keyword string `json:"keyword,omitempty" yaml:"keyword,omitempty"`

	// SubTopics are the ordered aspects of the question, at most MaxSubTopics.
	SubTopics []string `json:"sub_topics,omitempty" yaml:"sub_topics,omitempty"`
}

// SearchText returns the rewritten query, or the original when no rewrite exists.
func (q Query) SearchText() string {
	if q.Rewritten != "" {
		return q.Rewritten
	}
	return q.Original
}

// SearchMode selects how a backend interprets a query string.
type SearchMode string

const (
	ModeKeyword  SearchMode = "keyword"
	ModeSemantic SearchMode = "semantic"
)

// SearchTask binds one query string to a mode and a result bound.
type SearchTask struct {
	Index int        `json:"index" yaml:"index"`
	Query string     `json:"query" yaml:"query"`
	Mode  SearchMode `json:"mode" yaml:"mode"`
	Limit int        `json:"limit" yaml:"limit"`
}

// CandidateKind tells a passage hit from a whole-paper (abstract) hit.
type CandidateKind string

const (
	KindPassage  CandidateKind = "passage"
	KindAbstract CandidateKind = "abstract"
)

// RefMention is a citation marker annotated by the corpus inside a passage.
// Start and End are byte offsets into the passage text, half-open.
type RefMention struct {
	Start int `json:"start" yaml:"start"`
	End   int `json:"end" yaml:"end"`

	// MatchedDocID is the cited document, empty when the corpus could not
	// match the reference to a paper.
	MatchedDocID string `json:"matched_doc_id,omitempty" yaml:"matched_doc_id,omitempty"`
}

// Candidate is one scored passage or paper returned by a search task.
type Candidate struct {
	// DocID is the stable document identifier shared by all backends.
	DocID string `json:"doc_id" yaml:"doc_id"`

	// Text is the passage text, or the abstract for keyword hits.
	Text string `json:"text" yaml:"text"`

	// Title is the paper title when the backend returns it.
	Title string `json:"title,omitempty" yaml:"title,omitempty"`

	// SectionTitle is the heading the passage was taken from.
	SectionTitle string `json:"section_title,omitempty" yaml:"section_title,omitempty"`

	Kind CandidateKind `json:"kind" yaml:"kind"`

	// Source names the backend that produced the candidate (e.g. "s2_snippet").
	Source string `json:"source" yaml:"source"`

	// Task is the index of the originating SearchTask.
	Task int `json:"task" yaml:"task"`

	// Score is the backend or reranker relevance score. Higher is better.
	Score float64 `json:"score" yaml:"score"`

	// RefMentions are the citation markers inside Text.
	RefMentions []RefMention `json:"ref_mentions,omitempty" yaml:"ref_mentions,omitempty"`
}
