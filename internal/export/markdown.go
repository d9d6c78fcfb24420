// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package export

import (
	"fmt"
	"strings"

	"github.com/pdiddy/scholarqa/pkg/types"
)

// Markdown renders an answer: one heading per section with its TLDR as a
// quote, the section text, its comparison table, and a reference list of
// every cited paper.
func Markdown(r *types.TaskResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", r.Query.Original)

	if r.Status == types.StatusFailed {
		fmt.Fprintf(&b, "**Failed:** %s\n", r.Error)
		return b.String()
	}

	for _, s := range r.Sections {
		fmt.Fprintf(&b, "## %s\n\n", s.Title)
		if s.TLDR != "" {
			fmt.Fprintf(&b, "> **TLDR:** %s\n\n", s.TLDR)
		}
		b.WriteString(strings.TrimSpace(s.Text))
		b.WriteString("\n\n")
		if s.Table != nil && len(s.Table.Columns) > 0 {
			writeTable(&b, s.Table)
		}
	}

	refs := references(r)
	if len(refs) > 0 {
		b.WriteString("## References\n\n")
		for _, ref := range refs {
			fmt.Fprintf(&b, "- %s %s\n", ref.ID, describe(ref.Paper))
		}
	}
	return b.String()
}

func writeTable(b *strings.Builder, t *types.Table) {
	b.WriteString("| Paper |")
	for _, c := range t.Columns {
		fmt.Fprintf(b, " %s |", cell(c.Name))
	}
	b.WriteString("\n|---|")
	for range t.Columns {
		b.WriteString("---|")
	}
	b.WriteString("\n")
	for _, row := range t.Rows {
		fmt.Fprintf(b, "| %s |", cell(row.Title))
		for _, c := range t.Columns {
			fmt.Fprintf(b, " %s |", cell(t.Cell(row.ID, c.ID)))
		}
		b.WriteString("\n")
	}
	b.WriteString("\n")
}

// cell escapes pipes and newlines inside a table cell.
func cell(s string) string {
	s = strings.ReplaceAll(s, "|", `\|`)
	return strings.Join(strings.Fields(s), " ")
}

// references returns each cited paper once, in first-citation order.
func references(r *types.TaskResult) []types.CitationRef {
	seen := make(map[string]bool)
	var refs []types.CitationRef
	for _, s := range r.Sections {
		for _, c := range s.Citations {
			if seen[c.DocID] {
				continue
			}
			seen[c.DocID] = true
			refs = append(refs, c)
		}
	}
	return refs
}

// describe formats "Authors. Title. Venue, Year. URL" for whatever fields
// are known.
func describe(p *types.PaperMetadata) string {
	if p == nil {
		return ""
	}
	var parts []string
	if names := p.AuthorNames(); len(names) > 0 {
		if len(names) > 3 {
			names = append(names[:3:3], "et al")
		}
		parts = append(parts, strings.Join(names, ", "))
	}
	if p.Title != "" {
		parts = append(parts, p.Title)
	}
	switch {
	case p.Venue != "" && p.Year > 0:
		parts = append(parts, fmt.Sprintf("%s, %d", p.Venue, p.Year))
	case p.Venue != "":
		parts = append(parts, p.Venue)
	case p.Year > 0:
		parts = append(parts, fmt.Sprint(p.Year))
	}
	out := strings.Join(parts, ". ")
	if out != "" {
		out += "."
	}
	if p.URL != "" {
		out += " " + p.URL
	}
	return strings.TrimSpace(out)
}
