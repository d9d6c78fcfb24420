// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package sections

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/scholarqa/internal/citation"
	"github.com/pdiddy/scholarqa/internal/llm"
	"github.com/pdiddy/scholarqa/pkg/types"
)

// fakeLLM answers each prompt kind with a scripted function.
type fakeLLM struct {
	section func(llm.SectionData) string
	columns func(llm.TableColumnsData) string
	values  func(context.Context, llm.TableValuesData) (string, error)

	mu    sync.Mutex
	calls map[llm.PromptKind]int
}

func (f *fakeLLM) Ask(ctx context.Context, kind llm.PromptKind, data any) (llm.Completion, error) {
	f.mu.Lock()
	if f.calls == nil {
		f.calls = make(map[llm.PromptKind]int)
	}
	f.calls[kind]++
	f.mu.Unlock()

	usage := types.Usage{Calls: 1, InputTokens: 100, OutputTokens: 10}
	switch kind {
	case llm.KindSection:
		return llm.Completion{Text: f.section(data.(llm.SectionData)), Usage: usage}, nil
	case llm.KindTableColumns:
		return llm.Completion{Text: f.columns(data.(llm.TableColumnsData)), Usage: usage}, nil
	case llm.KindTableValues:
		text, err := f.values(ctx, data.(llm.TableValuesData))
		return llm.Completion{Text: text, Usage: usage}, err
	}
	return llm.Completion{}, fmt.Errorf("unexpected kind %s", kind)
}

func (f *fakeLLM) count(kind llm.PromptKind) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[kind]
}

// citingSection writes a section that cites every source it was given.
func citingSection(d llm.SectionData) string {
	var keys []string
	for _, s := range d.Sources {
		keys = append(keys, s.Key)
	}
	return fmt.Sprintf("%s (%s)\nTLDR: About %s.\nEvidence %s.", d.Title, d.Format, d.Title, strings.Join(keys, " "))
}

func columnsJSON(names ...string) string {
	var cols []llm.ColumnSuggestion
	for _, n := range names {
		cols = append(cols, llm.ColumnSuggestion{Name: n, Definition: "the " + n})
	}
	b, _ := json.Marshal(llm.TableColumns{Columns: cols})
	return string(b)
}

// echoValues fills every cell with "<column>-<doc>".
func echoValues(_ context.Context, d llm.TableValuesData) (string, error) {
	var reply llm.TableValues
	for _, p := range d.Papers {
		reply.Cells = append(reply.Cells, llm.CellValue{DocID: p.DocID, Value: d.Column + "-" + p.DocID})
	}
	b, _ := json.Marshal(reply)
	return string(b), nil
}

func paper(id, title string) *types.PaperMetadata {
	return &types.PaperMetadata{DocID: id, Title: title, Year: 2024, Authors: []types.Author{{Name: "Jane Doe"}}}
}

// fixture has two resolved documents and one without metadata.
func fixture(specs ...Spec) Request {
	evidence := []types.Evidence{
		{Index: 0, Quote: types.Quote{DocID: "1", Text: "dense retrieval helps"}},
		{Index: 1, Quote: types.Quote{DocID: "2", Text: "sparse retrieval is strong"},
			Mentions: []types.CitationMention{{DocID: "9"}}},
		{Index: 2, Quote: types.Quote{DocID: "3", Text: "unresolved paper quote"}},
		{Index: 3, Quote: types.Quote{DocID: "1", Text: "second quote from one"}},
	}
	sources := []citation.Source{
		{DocID: "1", Paper: paper("1", "Dense"), Score: 0.5, Snippets: []string{"dense retrieval helps"}},
		{DocID: "2", Paper: paper("2", "Sparse"), Score: 0.9, Snippets: []string{"sparse retrieval is strong"}},
		{DocID: "3", Score: 0.7},
		{DocID: "9", Paper: paper("9", "Cited"), Inline: true},
	}
	return Request{
		Query:    "dense or sparse retrieval?",
		Sections: specs,
		Evidence: evidence,
		Sources:  sources,
		Linker:   citation.NewLinker(sources, nil),
	}
}

func newPool(t *testing.T, size int) *ants.Pool {
	t.Helper()
	pool, err := ants.NewPool(size)
	require.NoError(t, err)
	t.Cleanup(pool.Release)
	return pool
}

// --- FanOut ---

func TestGenerateKeepsPlanOrder(t *testing.T) {
	fake := &fakeLLM{section: citingSection}
	req := fixture(
		Spec{Title: "Background", Format: types.FormatProse, Evidence: []int{0}},
		Spec{Title: "Methods", Format: types.FormatProse, Evidence: []int{1}},
		Spec{Title: "Limits", Format: types.FormatProse, Evidence: []int{2}},
	)

	drafts := NewFanOut(fake, nil, 2, nil).Generate(context.Background(), req, nil)
	require.Len(t, drafts, 3)
	for i, want := range []string{"Background", "Methods", "Limits"} {
		assert.Equal(t, i, drafts[i].Index)
		assert.Equal(t, want, drafts[i].Section.Title)
		assert.NoError(t, drafts[i].Err)
		assert.Equal(t, 1, drafts[i].Usage.Calls)
	}
	assert.Equal(t, "About Background.", drafts[0].Section.TLDR)
	assert.Contains(t, drafts[0].Section.Text, "[1 | Doe | 2024 | Citations: 0]")
}

func TestGenerateGroupsEvidenceByDocument(t *testing.T) {
	var got llm.SectionData
	var mu sync.Mutex
	fake := &fakeLLM{section: func(d llm.SectionData) string {
		mu.Lock()
		got = d
		mu.Unlock()
		return citingSection(d)
	}}
	req := fixture(Spec{Title: "All", Format: types.FormatList, Evidence: []int{0, 1, 3, 99}})

	NewFanOut(fake, nil, 1, nil).Generate(context.Background(), req, nil)

	require.Len(t, got.Sources, 2)
	assert.Equal(t, []string{"dense retrieval helps", "second quote from one"}, got.Sources[0].Quotes)
	assert.Equal(t, []string{"[9 | Doe | 2024 | Citations: 0]"}, got.Sources[1].Inline)
	assert.Equal(t, "list", got.Format)
	assert.Equal(t, []string{"All"}, got.Outline)
}

func TestGenerateSectionFailureIsolated(t *testing.T) {
	fake := &fakeLLM{section: func(d llm.SectionData) string {
		if d.Title == "Broken" {
			return "no summary line here"
		}
		return citingSection(d)
	}}
	req := fixture(
		Spec{Title: "Fine", Format: types.FormatProse, Evidence: []int{0}},
		Spec{Title: "Broken", Format: types.FormatProse, Evidence: []int{1}},
	)

	drafts := NewFanOut(fake, nil, 2, nil).Generate(context.Background(), req, nil)
	assert.NoError(t, drafts[0].Err)
	require.Error(t, drafts[1].Err)
	assert.ErrorIs(t, drafts[1].Err, llm.ErrMalformed)
	assert.Equal(t, 2, drafts[1].Usage.Calls, "malformed section text is asked for once more")
}

func TestTableJobEligibility(t *testing.T) {
	tests := []struct {
		name    string
		spec    Spec
		tables  bool
		wantJob bool
	}{
		{"list citing resolved papers", Spec{Title: "L", Format: types.FormatList, Evidence: []int{0, 1}}, true, true},
		{"prose section", Spec{Title: "P", Format: types.FormatProse, Evidence: []int{0, 1}}, true, false},
		{"list citing only unresolved paper", Spec{Title: "U", Format: types.FormatList, Evidence: []int{2}}, true, false},
		{"tables disabled", Spec{Title: "D", Format: types.FormatList, Evidence: []int{0}}, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := &fakeLLM{section: citingSection, columns: func(llm.TableColumnsData) string { return columnsJSON("Model") }, values: echoValues}
			var tables *TableGenerator
			if tt.tables {
				tables = NewTableGenerator(fake, 6, 6, nil)
			}
			jobs := NewJobs(context.Background(), newPool(t, 2))

			drafts := NewFanOut(fake, tables, 2, nil).Generate(context.Background(), fixture(tt.spec), jobs)
			assert.Equal(t, tt.wantJob, drafts[0].Job != nil)
			assert.Equal(t, map[bool]int{true: 1, false: 0}[tt.wantJob], jobs.Len())
			jobs.Join(context.Background(), time.Second)
		})
	}
}

func TestJoinAttachesTables(t *testing.T) {
	fake := &fakeLLM{
		section: citingSection,
		columns: func(llm.TableColumnsData) string { return columnsJSON("Model", "Dataset") },
		values:  echoValues,
	}
	jobs := NewJobs(context.Background(), newPool(t, 2))
	req := fixture(
		Spec{Title: "Approaches", Format: types.FormatList, Evidence: []int{0, 1}},
		Spec{Title: "Summary", Format: types.FormatProse, Evidence: []int{0}},
	)

	drafts := NewFanOut(fake, NewTableGenerator(fake, 6, 6, nil), 2, nil).Generate(context.Background(), req, jobs)
	require.NotNil(t, drafts[0].Job)
	assert.Nil(t, drafts[1].Job)

	results := jobs.Join(context.Background(), 5*time.Second)
	require.Len(t, results, 1)
	r := results[0]
	require.NoError(t, r.Err)
	assert.Equal(t, 0, r.Section)
	assert.Equal(t, 3, r.Usage.Calls)

	table := r.Table
	require.NotNil(t, table)
	assert.Equal(t, "Approaches", table.Title)
	require.Len(t, table.Rows, 2)
	assert.Equal(t, "2", table.Rows[0].DocID, "rows follow document score")
	require.Len(t, table.Columns, 2)
	assert.Equal(t, "Model-2", table.Cell(table.Rows[0].ID, table.Columns[0].ID))
	assert.Equal(t, "Dataset-1", table.Cell(table.Rows[1].ID, table.Columns[1].ID))
}

func TestJoinTimeout(t *testing.T) {
	started := make(chan struct{})
	var cancelled sync.WaitGroup
	cancelled.Add(1)
	jobs := NewJobs(context.Background(), newPool(t, 2))

	jobs.Submit(0, "fast", func(context.Context) (*types.Table, types.Usage, error) {
		return &types.Table{Title: "fast"}, types.Usage{}, nil
	})
	jobs.Submit(1, "slow", func(ctx context.Context) (*types.Table, types.Usage, error) {
		close(started)
		defer cancelled.Done()
		<-ctx.Done()
		return nil, types.Usage{}, ctx.Err()
	})
	<-started

	start := time.Now()
	results := jobs.Join(context.Background(), 50*time.Millisecond)
	assert.Less(t, time.Since(start), time.Second)

	require.Len(t, results, 2)
	assert.NoError(t, results[0].Err)
	assert.Equal(t, "fast", results[0].Table.Title)
	assert.ErrorIs(t, results[1].Err, ErrJobTimeout)
	assert.Nil(t, results[1].Table)

	// Join cancels jobs that missed the deadline.
	cancelled.Wait()
}

func TestJoinJobError(t *testing.T) {
	jobs := NewJobs(context.Background(), newPool(t, 1))
	boom := errors.New("columns failed")
	jobs.Submit(0, "t", func(context.Context) (*types.Table, types.Usage, error) {
		return nil, types.Usage{Calls: 2}, boom
	})
	results := jobs.Join(context.Background(), time.Second)
	require.Len(t, results, 1)
	assert.ErrorIs(t, results[0].Err, boom)
	assert.Equal(t, 2, results[0].Usage.Calls)
}

func TestSubmitOnReleasedPool(t *testing.T) {
	pool, err := ants.NewPool(1)
	require.NoError(t, err)
	pool.Release()

	jobs := NewJobs(context.Background(), pool)
	job := jobs.Submit(0, "t", func(context.Context) (*types.Table, types.Usage, error) {
		t.Error("job must not run")
		return nil, types.Usage{}, nil
	})
	<-job.Done()
	_, _, err = job.Result()
	assert.Error(t, err)

	results := jobs.Join(context.Background(), time.Second)
	assert.Error(t, results[0].Err)
}

func TestSubmitDoesNotWaitForBusyPool(t *testing.T) {
	jobs := NewJobs(context.Background(), newPool(t, 1))
	release := make(chan struct{})
	started := make(chan struct{})

	jobs.Submit(0, "first", func(context.Context) (*types.Table, types.Usage, error) {
		close(started)
		<-release
		return &types.Table{Title: "first"}, types.Usage{}, nil
	})
	<-started

	start := time.Now()
	jobs.Submit(1, "second", func(context.Context) (*types.Table, types.Usage, error) {
		return &types.Table{Title: "second"}, types.Usage{}, nil
	})
	assert.Less(t, time.Since(start), 100*time.Millisecond, "submit must not wait for a worker")
	assert.Equal(t, 2, jobs.Len())

	close(release)
	results := jobs.Join(context.Background(), 5*time.Second)
	require.Len(t, results, 2)
	require.NoError(t, results[0].Err)
	require.NoError(t, results[1].Err)
	assert.Equal(t, "first", results[0].Table.Title)
	assert.Equal(t, "second", results[1].Table.Title)
}

func TestQueuedJobSkippedAfterJoinDeadline(t *testing.T) {
	jobs := NewJobs(context.Background(), newPool(t, 1))
	release := make(chan struct{})
	started := make(chan struct{})

	jobs.Submit(0, "busy", func(ctx context.Context) (*types.Table, types.Usage, error) {
		close(started)
		<-release
		return nil, types.Usage{}, ctx.Err()
	})
	<-started
	queued := jobs.Submit(1, "queued", func(context.Context) (*types.Table, types.Usage, error) {
		t.Error("queued job must not run after Join cancelled it")
		return nil, types.Usage{}, nil
	})

	results := jobs.Join(context.Background(), 20*time.Millisecond)
	require.Len(t, results, 2)
	assert.ErrorIs(t, results[0].Err, ErrJobTimeout)
	assert.ErrorIs(t, results[1].Err, ErrJobTimeout)

	close(release)
	<-queued.Done()
	_, _, err := queued.Result()
	assert.ErrorIs(t, err, context.Canceled)
}

// --- TableGenerator ---

func manyPapers(n int) []llm.TablePaper {
	papers := make([]llm.TablePaper, n)
	for i := range papers {
		papers[i] = llm.TablePaper{DocID: fmt.Sprint(i), Title: fmt.Sprintf("Paper %d", i)}
	}
	return papers
}

func TestTableGeneratorCaps(t *testing.T) {
	fake := &fakeLLM{
		columns: func(d llm.TableColumnsData) string {
			assert.Equal(t, 6, d.Max)
			return columnsJSON("A", "a", "B", "C", "", "D", "E", "F", "G")
		},
		values: func(_ context.Context, d llm.TableValuesData) (string, error) {
			// Only the first paper gets a value.
			return fmt.Sprintf(`{"cells": [{"doc_id": "0", "value": "%s"}]}`, d.Column), nil
		},
	}
	table, usage, err := NewTableGenerator(fake, 0, 0, nil).Generate(context.Background(), "q", "T", manyPapers(8))
	require.NoError(t, err)

	require.Len(t, table.Rows, 6)
	require.Len(t, table.Columns, 6)
	names := make([]string, len(table.Columns))
	for i, c := range table.Columns {
		names[i] = c.Name
	}
	assert.Equal(t, []string{"A", "B", "C", "D", "E", "F"}, names)
	assert.Equal(t, "A", table.Cell(table.Rows[0].ID, table.Columns[0].ID))
	assert.Equal(t, types.MissingCell, table.Cells[types.CellKey(table.Rows[5].ID, table.Columns[0].ID)])
	assert.Equal(t, 7, usage.Calls)
	assert.Len(t, table.Cells, 36)
}

func TestTableGeneratorDropsFailedColumn(t *testing.T) {
	fake := &fakeLLM{
		columns: func(llm.TableColumnsData) string { return columnsJSON("Good", "Bad") },
		values: func(ctx context.Context, d llm.TableValuesData) (string, error) {
			if d.Column == "Bad" {
				return "not json", nil
			}
			return echoValues(ctx, d)
		},
	}
	table, usage, err := NewTableGenerator(fake, 6, 6, nil).Generate(context.Background(), "q", "T", manyPapers(2))
	require.NoError(t, err)
	require.Len(t, table.Columns, 1)
	assert.Equal(t, "Good", table.Columns[0].Name)
	assert.Equal(t, 4, usage.Calls, "one columns call, one good column, two tries of the bad one")
}

func TestTableGeneratorFailures(t *testing.T) {
	noColumns := &fakeLLM{columns: func(llm.TableColumnsData) string { return `{"columns": []}` }}
	_, _, err := NewTableGenerator(noColumns, 6, 6, nil).Generate(context.Background(), "q", "T", manyPapers(2))
	assert.Error(t, err)

	allBad := &fakeLLM{
		columns: func(llm.TableColumnsData) string { return columnsJSON("X") },
		values: func(context.Context, llm.TableValuesData) (string, error) {
			return "", errors.New("model down")
		},
	}
	_, _, err = NewTableGenerator(allBad, 6, 6, nil).Generate(context.Background(), "q", "T", manyPapers(2))
	assert.Error(t, err)

	_, _, err = NewTableGenerator(allBad, 6, 6, nil).Generate(context.Background(), "q", "T", nil)
	assert.Error(t, err)
	assert.Equal(t, 1, allBad.count(llm.KindTableColumns))
}
