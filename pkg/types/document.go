// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "strings"

// Passage is one contributing span of an aggregated document.
type Passage struct {
	Text         string        `json:"text" yaml:"text"`
	SectionTitle string        `json:"section_title,omitempty" yaml:"section_title,omitempty"`
	Kind         CandidateKind `json:"kind" yaml:"kind"`
	Score        float64       `json:"score" yaml:"score"`

	// Arrival is the position of the passage in the reranked stream. It breaks
	// score ties.
	Arrival int `json:"arrival" yaml:"arrival"`

	RefMentions []RefMention `json:"ref_mentions,omitempty" yaml:"ref_mentions,omitempty"`
}

// AggregatedDocument groups the passages of one document. Score is the
// maximum passage score and Passages are ordered by descending score.
type AggregatedDocument struct {
	DocID    string    `json:"doc_id" yaml:"doc_id"`
	Title    string    `json:"title,omitempty" yaml:"title,omitempty"`
	Score    float64   `json:"score" yaml:"score"`
	Passages []Passage `json:"passages" yaml:"passages"`
}

// Quote is a short text an LLM attributed to a document. It is not
// guaranteed to be a verbatim substring of any passage.
type Quote struct {
	DocID string `json:"doc_id" yaml:"doc_id"`
	Text  string `json:"text" yaml:"text"`
}

// Alignment locates a quote inside one passage of its document. When
// Resolved is false the other fields are zero.
type Alignment struct {
	Resolved bool `json:"resolved" yaml:"resolved"`

	// Passage indexes AggregatedDocument.Passages.
	Passage int `json:"passage" yaml:"passage"`

	// Start and End are byte offsets into the original passage text.
	Start int `json:"start" yaml:"start"`
	End   int `json:"end" yaml:"end"`

	// Confidence is 1 for exact matches and the window similarity otherwise.
	Confidence float64 `json:"confidence" yaml:"confidence"`
	Exact      bool    `json:"exact" yaml:"exact"`
}

// Unresolved is the alignment of a quote that could not be located.
var Unresolved = Alignment{}

// Contains reports whether byte offset pos lies in [Start, End).
func (a Alignment) Contains(pos int) bool {
	return a.Resolved && pos >= a.Start && pos < a.End
}

// CitationMention is a marker found inside an alignment, resolved to the
// cited document.
type CitationMention struct {
	Start     int            `json:"start" yaml:"start"`
	End       int            `json:"end" yaml:"end"`
	DocID     string         `json:"doc_id" yaml:"doc_id"`
	RefString string         `json:"ref_string,omitempty" yaml:"ref_string,omitempty"`
	Metadata  *PaperMetadata `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// Evidence is a quote after alignment and citation extraction. Index is its
// position in the request-wide evidence list.
type Evidence struct {
	Index     int               `json:"index" yaml:"index"`
	Quote     Quote             `json:"quote" yaml:"quote"`
	Alignment Alignment         `json:"alignment" yaml:"alignment"`
	Mentions  []CitationMention `json:"mentions,omitempty" yaml:"mentions,omitempty"`
}

// Author is one paper author as returned by the metadata store.
type Author struct {
	AuthorID string `json:"author_id,omitempty" yaml:"author_id,omitempty"`
	Name     string `json:"name" yaml:"name"`
}

// PaperMetadata is the citation metadata of one document.
type PaperMetadata struct {
	DocID         string            `json:"doc_id" yaml:"doc_id"`
	Title         string            `json:"title" yaml:"title"`
	Authors       []Author          `json:"authors,omitempty" yaml:"authors,omitempty"`
	Year          int               `json:"year,omitempty" yaml:"year,omitempty"`
	Venue         string            `json:"venue,omitempty" yaml:"venue,omitempty"`
	CitationCount int               `json:"citation_count" yaml:"citation_count"`
	Abstract      string            `json:"abstract,omitempty" yaml:"abstract,omitempty"`
	URL           string            `json:"url,omitempty" yaml:"url,omitempty"`
	ExternalIDs   map[string]string `json:"external_ids,omitempty" yaml:"external_ids,omitempty"`
}

// AuthorNames returns the author names in order.
func (m PaperMetadata) AuthorNames() []string {
	names := make([]string, len(m.Authors))
	for i, a := range m.Authors {
		names[i] = a.Name
	}
	return names
}

// ShortAuthor returns "Lastname" for one author, "Lastname et al." for more,
// and an empty string when no author is known.
func (m PaperMetadata) ShortAuthor() string {
	if len(m.Authors) == 0 {
		return ""
	}
	fields := strings.Fields(m.Authors[0].Name)
	if len(fields) == 0 {
		return ""
	}
	last := fields[len(fields)-1]
	if len(m.Authors) > 1 {
		return last + " et al."
	}
	return last
}
