// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// SectionFormat is the output shape of a generated section.
type SectionFormat string

const (
	FormatProse SectionFormat = "prose"
	FormatList  SectionFormat = "list"
)

// ParseSectionFormat maps planner labels to a format. "list" is a list;
// anything else ("synthesis", "prose", "") is prose.
func ParseSectionFormat(s string) SectionFormat {
	if s == string(FormatList) {
		return FormatList
	}
	return FormatProse
}

// CitationRef is one paper cited by a section, with the evidence snippets
// that support it.
type CitationRef struct {
	// ID is the human-readable reference string, e.g. "(Doe et al., 2024)".
	ID       string            `json:"id" yaml:"id"`
	DocID    string            `json:"doc_id" yaml:"doc_id"`
	Snippets []string          `json:"snippets" yaml:"snippets"`
	Score    float64           `json:"score" yaml:"score"`
	Paper    *PaperMetadata    `json:"paper,omitempty" yaml:"paper,omitempty"`
	Mentions []CitationMention `json:"mentions,omitempty" yaml:"mentions,omitempty"`
}

// TableColumn is one comparison dimension of a section table.
type TableColumn struct {
	ID          string `json:"id" yaml:"id"`
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}

// TableRow is one paper of a section table.
type TableRow struct {
	ID    string `json:"id" yaml:"id"`
	DocID string `json:"doc_id" yaml:"doc_id"`
	Title string `json:"title" yaml:"title"`
}

// Table is a papers-by-aspects comparison table. Cells are keyed by
// CellKey(row, column).
type Table struct {
	ID      string            `json:"id" yaml:"id"`
	Title   string            `json:"title" yaml:"title"`
	Columns []TableColumn     `json:"columns" yaml:"columns"`
	Rows    []TableRow        `json:"rows" yaml:"rows"`
	Cells   map[string]string `json:"cells" yaml:"cells"`
}

// MissingCell is the value of a cell the generator produced nothing for.
const MissingCell = "N/A"

// CellKey returns the Cells key for a row and column.
func CellKey(rowID, columnID string) string {
	return rowID + "_" + columnID
}

// Cell returns the value at (row, column), or MissingCell.
func (t *Table) Cell(rowID, columnID string) string {
	if v, ok := t.Cells[CellKey(rowID, columnID)]; ok && v != "" {
		return v
	}
	return MissingCell
}

// Section is one titled part of the answer.
type Section struct {
	Title     string        `json:"title" yaml:"title"`
	Format    SectionFormat `json:"format" yaml:"format"`
	TLDR      string        `json:"tldr,omitempty" yaml:"tldr,omitempty"`
	Text      string        `json:"text" yaml:"text"`
	Citations []CitationRef `json:"citations" yaml:"citations"`
	Table     *Table        `json:"table,omitempty" yaml:"table,omitempty"`
}

// TaskStatus is the terminal status of a request.
type TaskStatus string

const (
	StatusDone   TaskStatus = "done"
	StatusFailed TaskStatus = "failed"
)

// State is one step of the request state machine.
type State string

const (
	StatePreprocessing      State = "preprocessing"
	StateRetrieving         State = "retrieving"
	StateReranking          State = "reranking"
	StateExtracting         State = "extracting"
	StatePlanning           State = "planning"
	StateGeneratingSections State = "generating_sections"
	StateAwaitingTables     State = "awaiting_tables"
	StateAssembling         State = "assembling"
	StateDone               State = "done"
	StateFailed             State = "failed"
)

// StateEvent records entry into a state.
type StateEvent struct {
	State State     `json:"state" yaml:"state"`
	At    time.Time `json:"at" yaml:"at"`
}

// RetrievalStats summarizes the search fan-out.
type RetrievalStats struct {
	Tasks         int `json:"tasks" yaml:"tasks"`
	FailedTasks   int `json:"failed_tasks" yaml:"failed_tasks"`
	RawCandidates int `json:"raw_candidates" yaml:"raw_candidates"`
	Duplicates    int `json:"duplicates" yaml:"duplicates"`
	Reranked      int `json:"reranked" yaml:"reranked"`
	Documents     int `json:"documents" yaml:"documents"`
	Quotes        int `json:"quotes" yaml:"quotes"`
	Aligned       int `json:"aligned" yaml:"aligned"`
}

// Trace is the diagnostic record attached to every TaskResult.
type Trace struct {
	States      []StateEvent   `json:"states" yaml:"states"`
	Diagnostics []Diagnostic   `json:"diagnostics,omitempty" yaml:"diagnostics,omitempty"`
	Retrieval   RetrievalStats `json:"retrieval" yaml:"retrieval"`
}

// Usage counts the tokens of one or more model calls.
type Usage struct {
	Calls        int `json:"calls" yaml:"calls"`
	InputTokens  int `json:"input_tokens" yaml:"input_tokens"`
	OutputTokens int `json:"output_tokens" yaml:"output_tokens"`
}

// Add returns the sum of u and o.
func (u Usage) Add(o Usage) Usage {
	return Usage{
		Calls:        u.Calls + o.Calls,
		InputTokens:  u.InputTokens + o.InputTokens,
		OutputTokens: u.OutputTokens + o.OutputTokens,
	}
}

// StageCost is the usage recorded at one checkpoint.
type StageCost struct {
	Stage   string  `json:"stage" yaml:"stage"`
	Usage   Usage   `json:"usage" yaml:"usage"`
	CostUSD float64 `json:"cost_usd" yaml:"cost_usd"`
}

// CostSummary aggregates model usage over a request.
type CostSummary struct {
	Stages       []StageCost `json:"stages" yaml:"stages"`
	Total        Usage       `json:"total" yaml:"total"`
	TotalCostUSD float64     `json:"total_cost_usd" yaml:"total_cost_usd"`
}

// TaskResult is the answer to one question.
type TaskResult struct {
	TaskID    string        `json:"task_id" yaml:"task_id"`
	Query     Query         `json:"query" yaml:"query"`
	Status    TaskStatus    `json:"status" yaml:"status"`
	Sections  []Section     `json:"sections" yaml:"sections"`
	Cost      CostSummary   `json:"cost" yaml:"cost"`
	Trace     Trace         `json:"trace" yaml:"trace"`
	Error     string        `json:"error,omitempty" yaml:"error,omitempty"`
	StartedAt time.Time     `json:"started_at" yaml:"started_at"`
	Elapsed   time.Duration `json:"elapsed" yaml:"elapsed"`
}

// CitedPapers returns the distinct papers cited across all sections, in
// first-citation order.
func (r *TaskResult) CitedPapers() []PaperMetadata {
	seen := make(map[string]bool)
	var papers []PaperMetadata
	for _, s := range r.Sections {
		for _, c := range s.Citations {
			if c.Paper == nil || seen[c.DocID] {
				continue
			}
			seen[c.DocID] = true
			papers = append(papers, *c.Paper)
		}
	}
	return papers
}
