// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package export

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/pdiddy/scholarqa/pkg/types"
)

// CitationKeys returns a distinct BibTeX key per paper, in order:
// lastname + year + first title word, lowercased ("doe2024dense").
// Repeated keys get a letter suffix ("doe2024densea").
func CitationKeys(papers []types.PaperMetadata) []string {
	keys := make([]string, len(papers))
	used := make(map[string]int)
	for i, p := range papers {
		base := citationKey(p)
		key := base
		if n := used[base]; n > 0 {
			key = fmt.Sprintf("%s%c", base, 'a'+rune(n-1)%26)
		}
		used[base]++
		keys[i] = key
	}
	return keys
}

func citationKey(p types.PaperMetadata) string {
	var b strings.Builder
	if len(p.Authors) > 0 {
		fields := strings.Fields(p.Authors[0].Name)
		if len(fields) > 0 {
			b.WriteString(keyWord(fields[len(fields)-1]))
		}
	}
	if p.Year > 0 {
		fmt.Fprintf(&b, "%d", p.Year)
	}
	for _, w := range strings.Fields(p.Title) {
		if kw := keyWord(w); len(kw) > 3 {
			b.WriteString(kw)
			break
		}
	}
	if b.Len() == 0 {
		return "s2_" + keyWord(p.DocID)
	}
	return b.String()
}

// keyWord lowercases s and keeps only ASCII letters and digits.
func keyWord(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// BibTeX produces BibTeX entries for papers.
func BibTeX(papers []types.PaperMetadata) string {
	keys := CitationKeys(papers)
	var b strings.Builder
	for i, p := range papers {
		fmt.Fprintf(&b, "@article{%s,\n", keys[i])
		fmt.Fprintf(&b, "  title = {%s},\n", bibEscape(p.Title))
		if names := p.AuthorNames(); len(names) > 0 {
			fmt.Fprintf(&b, "  author = {%s},\n", bibEscape(strings.Join(names, " and ")))
		}
		if p.Year > 0 {
			fmt.Fprintf(&b, "  year = {%d},\n", p.Year)
		}
		if p.Venue != "" {
			fmt.Fprintf(&b, "  journal = {%s},\n", bibEscape(p.Venue))
		}
		if doi := p.ExternalIDs["DOI"]; doi != "" {
			fmt.Fprintf(&b, "  doi = {%s},\n", doi)
		}
		if arxiv := p.ExternalIDs["ArXiv"]; arxiv != "" {
			fmt.Fprintf(&b, "  eprint = {%s},\n  archivePrefix = {arXiv},\n", arxiv)
		}
		if p.URL != "" {
			fmt.Fprintf(&b, "  url = {%s},\n", p.URL)
		}
		fmt.Fprintf(&b, "}\n\n")
	}
	return b.String()
}

// bibEscape escapes the characters BibTeX treats specially inside braces.
func bibEscape(s string) string {
	r := strings.NewReplacer(`\`, `\\`, "{", `\{`, "}", `\}`, "&", `\&`, "%", `\%`)
	return r.Replace(s)
}
