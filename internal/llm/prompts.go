// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package llm

import (
	"bytes"
	"fmt"
	"text/template"
)

// DecomposeData feeds the decompose prompt.
type DecomposeData struct {
	Query string
}

// Decomposition is the decompose reply.
type Decomposition struct {
	Rewritten string `json:"rewritten_query"`
	Keyword   string `json:"keyword_query"`
}

// BreakdownData feeds the breakdown prompt.
type BreakdownData struct {
	Query string
	Max   int
}

// Breakdown is the breakdown reply.
type Breakdown struct {
	SubTopics []string `json:"sub_topics"`
}

// QuotesData feeds the quote extraction prompt for one paper.
type QuotesData struct {
	Query    string
	Title    string
	Passages []string
}

// Quotes is the quote extraction reply.
type Quotes struct {
	Quotes []string `json:"quotes"`
}

// PlanQuote is one numbered quote shown to the planner.
type PlanQuote struct {
	Index int
	Key   string
	Text  string
}

// PlanData feeds the planning prompt.
type PlanData struct {
	Query  string
	Quotes []PlanQuote
}

// PlanDimension is one planned section.
type PlanDimension struct {
	Name   string `json:"name"`
	Format string `json:"format"`
	Quotes []int  `json:"quotes"`
}

// Plan is the planning reply.
type Plan struct {
	Dimensions []PlanDimension `json:"dimensions"`
}

// SectionSource is one citable paper shown to the section writer.
type SectionSource struct {
	Key    string
	Quotes []string
	Inline []string
}

// SectionData feeds the section prompt.
type SectionData struct {
	Query   string
	Outline []string
	Index   int
	Title   string
	Format  string
	Sources []SectionSource
}

// TablePaper is one row candidate shown to the table prompts.
type TablePaper struct {
	DocID    string
	Title    string
	Snippets []string
}

// TableColumnsData feeds the column suggestion prompt.
type TableColumnsData struct {
	Query   string
	Section string
	Papers  []TablePaper
	Max     int
}

// ColumnSuggestion is one suggested table column.
type ColumnSuggestion struct {
	Name       string `json:"name"`
	Definition string `json:"definition"`
}

// TableColumns is the column suggestion reply.
type TableColumns struct {
	Columns []ColumnSuggestion `json:"columns"`
}

// TableValuesData feeds the value prompt for one column.
type TableValuesData struct {
	Query      string
	Column     string
	Definition string
	Papers     []TablePaper
}

// CellValue is one generated cell.
type CellValue struct {
	DocID string `json:"doc_id"`
	Value string `json:"value"`
}

// TableValues is the value reply for one column.
type TableValues struct {
	Cells []CellValue `json:"cells"`
}

const systemPrompt = `You are a research assistant that answers scientific questions using only the evidence you are given. Follow the output format exactly.`

var templates = map[PromptKind]*template.Template{
	KindDecompose: template.Must(template.New("decompose").Parse(`Rewrite the user's question as a single self-contained search question, and write a short keyword query (at most 10 words) for a paper title and abstract search engine.

Respond with a JSON object: {"rewritten_query": "...", "keyword_query": "..."}

Question:
{{.Query}}
`)),

	KindBreakdown: template.Must(template.New("breakdown").Parse(`Break the question below into at most {{.Max}} distinct sub-topics. Each sub-topic must be a standalone search query for scientific passages. Order them from most to least central.

Respond with a JSON object: {"sub_topics": ["...", "..."]}

Question:
{{.Query}}
`)),

	KindQuotes: template.Must(template.New("quotes").Parse(`Extract verbatim quotes from the paper passages below that help answer the question. Copy text exactly; do not paraphrase, merge sentences, or add words. Return an empty list if nothing is relevant.

Respond with a JSON object: {"quotes": ["...", "..."]}

Question:
{{.Query}}

Paper: {{.Title}}
{{range $i, $p := .Passages}}
Passage {{$i}}:
{{$p}}
{{end}}`)),

	KindPlan: template.Must(template.New("plan").Parse(`Organize the numbered quotes below into the sections of a literature review answering the question. Give every section a name and a format: "synthesis" for a paragraph, or "list" for a bulleted comparison of approaches. Assign each quote to the sections it supports by number.

Respond with a JSON object: {"dimensions": [{"name": "...", "format": "synthesis", "quotes": [0, 3]}]}

Question:
{{.Query}}

Quotes:
{{range .Quotes}}[{{.Index}}] {{.Key}} {{.Text}}
{{end}}`)),

	KindSection: template.Must(template.New("section").Parse(`You are writing section {{.Index}} of a literature review answering the question below.

Question:
{{.Query}}

Outline:
{{range $i, $t := .Outline}}{{$i}}. {{$t}}
{{end}}
Write the section "{{.Title}}" ({{.Format}}). Cite sources inline using their exact bracketed keys, for example [12345 | Doe et al. | 2024 | Citations: 10]. Do not cite anything not listed.

Start with the title line "{{.Title}} ({{.Format}})", then a line "TLDR: " with a one-sentence summary, then the section text.

Sources:
{{range .Sources}}{{.Key}}
{{range .Quotes}}  - {{.}}
{{end}}{{range .Inline}}  cited: {{.}}
{{end}}{{end}}`)),

	KindTableColumns: template.Must(template.New("table_columns").Parse(`Suggest at most {{.Max}} columns for a table comparing the papers below in the context of the section "{{.Section}}" and the question "{{.Query}}". Each column is one aspect every paper can be judged on.

Respond with a JSON object: {"columns": [{"name": "...", "definition": "..."}]}

Papers:
{{range .Papers}}- {{.DocID}}: {{.Title}}
{{range .Snippets}}    {{.}}
{{end}}{{end}}`)),

	KindTableValues: template.Must(template.New("table_values").Parse(`For each paper below, give a short value (at most 10 words) for the column "{{.Column}}": {{.Definition}}
Use "N/A" when the evidence does not say.

Respond with a JSON object: {"cells": [{"doc_id": "...", "value": "..."}]}

Question:
{{.Query}}

Papers:
{{range .Papers}}- {{.DocID}}: {{.Title}}
{{range .Snippets}}    {{.}}
{{end}}{{end}}`)),
}

// textKinds are answered in free text; every other kind expects JSON.
var textKinds = map[PromptKind]bool{KindSection: true}

type prompt struct {
	system string
	user   string
	json   bool
}

// render executes the template for kind with data.
func render(kind PromptKind, data any) (prompt, error) {
	tmpl, ok := templates[kind]
	if !ok {
		return prompt{}, fmt.Errorf("unknown prompt kind %q", kind)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return prompt{}, err
	}
	return prompt{system: systemPrompt, user: buf.String(), json: !textKinds[kind]}, nil
}
