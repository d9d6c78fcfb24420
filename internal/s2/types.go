// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package s2

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/pdiddy/scholarqa/pkg/types"
)

// ID is a corpus identifier. The API sends it as a number for Semantic
// Scholar corpus IDs and as a string for arXiv-style IDs.
type ID string

// UnmarshalJSON accepts a JSON string, number, or null.
func (id *ID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*id = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("corpus id %s: %w", b, err)
	}
	*id = ID(n.String())
	return nil
}

// Paper is a paper record from paper/search or paper/batch.
type Paper struct {
	PaperID       string        `json:"paperId"`
	CorpusID      ID            `json:"corpusId"`
	Title         string        `json:"title"`
	Abstract      string        `json:"abstract"`
	Year          int           `json:"year"`
	Venue         string        `json:"venue"`
	CitationCount int           `json:"citationCount"`
	URL           string        `json:"url"`
	Authors       []Author      `json:"authors"`
	ExternalIDs   map[string]ID `json:"externalIds"`
}

// Author is one author of a Paper.
type Author struct {
	AuthorID string `json:"authorId"`
	Name     string `json:"name"`
}

// Metadata converts the record to the pipeline's metadata type.
func (p Paper) Metadata() types.PaperMetadata {
	m := types.PaperMetadata{
		DocID:         string(p.CorpusID),
		Title:         p.Title,
		Year:          p.Year,
		Venue:         p.Venue,
		CitationCount: p.CitationCount,
		Abstract:      p.Abstract,
		URL:           p.URL,
	}
	for _, a := range p.Authors {
		m.Authors = append(m.Authors, types.Author{AuthorID: a.AuthorID, Name: a.Name})
	}
	if len(p.ExternalIDs) > 0 {
		m.ExternalIDs = make(map[string]string, len(p.ExternalIDs))
		for k, v := range p.ExternalIDs {
			m.ExternalIDs[k] = string(v)
		}
	}
	return m
}

// PaperSearchResponse is the body of paper/search.
type PaperSearchResponse struct {
	Total  int     `json:"total"`
	Offset int     `json:"offset"`
	Data   []Paper `json:"data"`
}

// SnippetSearchResponse is the body of snippet/search.
type SnippetSearchResponse struct {
	Data []SnippetMatch `json:"data"`
}

// SnippetMatch is one scored snippet with its paper.
type SnippetMatch struct {
	Snippet Snippet      `json:"snippet"`
	Score   float64      `json:"score"`
	Paper   SnippetPaper `json:"paper"`
}

// SnippetPaper is the abbreviated paper record attached to a snippet.
type SnippetPaper struct {
	CorpusID ID     `json:"corpusId"`
	Title    string `json:"title"`
}

// Snippet is a passage of a paper's full text.
type Snippet struct {
	Text        string       `json:"text"`
	SnippetKind string       `json:"snippetKind"`
	Section     string       `json:"section"`
	Offset      *Span        `json:"snippetOffset"`
	Annotations *Annotations `json:"annotations"`
}

// Span is a code-point range.
type Span struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Annotations carries the corpus annotations of a snippet.
type Annotations struct {
	Sentences   []Span       `json:"sentences"`
	RefMentions []RefMention `json:"refMentions"`
}

// RefMention is a citation marker in snippet text, with code-point offsets.
type RefMention struct {
	Start                int `json:"start"`
	End                  int `json:"end"`
	MatchedPaperCorpusID ID  `json:"matchedPaperCorpusId"`
}
