// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package citation

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/pdiddy/scholarqa/pkg/types"
)

// Source is a document a section may cite. Quoted documents are primary;
// documents known only through citation markers inside quotes are inline
// sources and lose ties to primary ones.
type Source struct {
	DocID    string
	Paper    *types.PaperMetadata
	Score    float64
	Snippets []string
	Mentions []types.CitationMention
	Inline   bool
}

// Key returns the bracketed reference key a model is shown for src:
// "[docID | Author | Year | Citations: N]".
func Key(src Source) string {
	author, year, cites := "NULL", 0, 0
	if src.Paper != nil {
		if a := src.Paper.ShortAuthor(); a != "" {
			author = a
		}
		year = src.Paper.Year
		cites = src.Paper.CitationCount
	}
	return fmt.Sprintf("[%s | %s | %d | Citations: %d]", src.DocID, author, year, cites)
}

var (
	bracketRe = regexp.MustCompile(`\[[^\[\]]*\]`)
	spacesRe  = regexp.MustCompile(`[ \t]{2,}`)
)

// Linker rewrites section references into reference strings. Its Registry
// is shared by every section of an answer.
type Linker struct {
	registry *Registry
	primary  map[string]*Source
	inline   map[string]*Source
}

// NewLinker indexes sources by normalized ID.
func NewLinker(sources []Source, registry *Registry) *Linker {
	if registry == nil {
		registry = NewRegistry()
	}
	l := &Linker{
		registry: registry,
		primary:  make(map[string]*Source),
		inline:   make(map[string]*Source),
	}
	for i := range sources {
		s := &sources[i]
		id := normalizeID(s.DocID)
		if id == "" {
			continue
		}
		if s.Inline {
			if _, ok := l.inline[id]; !ok {
				l.inline[id] = s
			}
			continue
		}
		if _, ok := l.primary[id]; !ok {
			l.primary[id] = s
		}
	}
	return l
}

// Refs returns the distinct documents cited by text in order of first
// appearance. It does not assign reference strings, so concurrent callers
// are safe.
func (l *Linker) Refs(text string) []string {
	var ids []string
	seen := make(map[string]bool)
	for _, br := range bracketRe.FindAllString(text, -1) {
		for _, part := range refParts(br) {
			if s := l.lookup(part); s != nil && !seen[s.DocID] {
				seen[s.DocID] = true
				ids = append(ids, s.DocID)
			}
		}
	}
	return ids
}

// Link replaces every bracketed reference in sec.Text with its reference
// string, removes references that match no source, fills sec.Citations in
// first-appearance order, and appends the source count to the TLDR. It
// returns one diagnostic per removed reference.
func (l *Linker) Link(sec *types.Section) []types.Diagnostic {
	var diags []types.Diagnostic
	var cites []types.CitationRef
	done := make(map[string]string)

	text := bracketRe.ReplaceAllStringFunc(sec.Text, func(br string) string {
		var out []string
		for _, part := range refParts(br) {
			s := l.lookup(part)
			if s == nil {
				diags = append(diags, types.Diagnostic{
					Stage:   types.StateAssembling,
					Kind:    types.DiagReferenceMiss,
					Subject: sec.Title,
					Message: fmt.Sprintf("reference %q matches no evidence", part),
				})
				continue
			}
			id, ok := done[s.DocID]
			if !ok {
				id = l.registry.Assign(FormatRef(s.DocID, s.Paper), s.DocID)
				done[s.DocID] = id
				cites = append(cites, types.CitationRef{
					ID:       id,
					DocID:    s.DocID,
					Snippets: s.Snippets,
					Score:    s.Score,
					Paper:    s.Paper,
					Mentions: s.Mentions,
				})
			}
			out = append(out, id)
		}
		return strings.Join(out, " ")
	})

	sec.Text = strings.TrimSpace(spacesRe.ReplaceAllString(text, " "))
	sec.Citations = cites
	if sec.TLDR != "" {
		sec.TLDR += sourceSuffix(len(cites))
	}
	return diags
}

func sourceSuffix(n int) string {
	switch n {
	case 0:
		return " (LLM Memory)"
	case 1:
		return " (1 source)"
	default:
		return fmt.Sprintf(" (%d sources)", n)
	}
}

// refParts splits a bracketed reference into its keys. Models sometimes
// merge several keys into one bracket separated by semicolons.
func refParts(br string) []string {
	inner := strings.TrimSpace(br[1 : len(br)-1])
	if inner == "" {
		return nil
	}
	var parts []string
	for _, p := range strings.Split(inner, ";") {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return parts
}

// lookup resolves one key by exact normalized ID, then by unique prefix.
// Primary sources win over inline ones at each step.
func (l *Linker) lookup(part string) *Source {
	token, _, _ := strings.Cut(part, "|")
	id := normalizeID(token)
	if id == "" {
		return nil
	}
	if s, ok := l.primary[id]; ok {
		return s
	}
	if s, ok := l.inline[id]; ok {
		return s
	}
	if s := uniquePrefix(l.primary, id); s != nil {
		return s
	}
	return uniquePrefix(l.inline, id)
}

func uniquePrefix(m map[string]*Source, prefix string) *Source {
	var found *Source
	for k, s := range m {
		if !strings.HasPrefix(k, prefix) {
			continue
		}
		if found != nil {
			return nil
		}
		found = s
	}
	return found
}

// normalizeID strips labels such as "paperId " or "arXiv:" and stray
// punctuation from a reference token.
func normalizeID(token string) string {
	s := strings.TrimSpace(token)
	for _, prefix := range []string{"paperid ", "paperId ", "CorpusId:", "corpusid:", "arxiv:", "arXiv:"} {
		s = strings.TrimPrefix(s, prefix)
	}
	s = strings.TrimRight(s, ".,;: ]")
	s = strings.TrimLeft(s, "[")
	return strings.TrimSpace(s)
}
