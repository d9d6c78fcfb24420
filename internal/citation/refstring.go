// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package citation

import (
	"fmt"
	"strings"

	"github.com/pdiddy/scholarqa/pkg/types"
)

// FormatRef returns the reference string of a paper: "(Doe, 2024)" for one
// author, "(Doe et al., 2024)" for more, and "(2024)" without authors. A
// paper with no metadata is referred to by its ID.
func FormatRef(docID string, m *types.PaperMetadata) string {
	if m == nil {
		return "(" + docID + ")"
	}
	year := "n.d."
	if m.Year > 0 {
		year = fmt.Sprint(m.Year)
	}
	if author := m.ShortAuthor(); author != "" {
		return "(" + author + ", " + year + ")"
	}
	return "(" + year + ")"
}

// Registry assigns reference strings across a whole answer, so that two
// different papers sharing an author and year never share a string. The
// second paper becomes "(Doe et al._1, 2024)", the third "_2", and so on.
type Registry struct {
	byBase map[string]map[string]string
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{byBase: make(map[string]map[string]string)}
}

// Assign returns the reference string of docID for the given base string.
// The same document always gets the same string.
func (r *Registry) Assign(base, docID string) string {
	docs, ok := r.byBase[base]
	if !ok {
		docs = make(map[string]string)
		r.byBase[base] = docs
	}
	if id, ok := docs[docID]; ok {
		return id
	}
	id := base
	if n := len(docs); n > 0 {
		if author, rest, found := strings.Cut(base, ","); found {
			id = fmt.Sprintf("%s_%d,%s", author, n, rest)
		} else {
			id = fmt.Sprintf("%s_%d", base, n)
		}
	}
	docs[docID] = id
	return id
}
