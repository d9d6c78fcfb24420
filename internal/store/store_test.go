package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pdiddy/scholarqa/internal/metadata"
	"github.com/pdiddy/scholarqa/pkg/types"
)

// --- test helpers ---

func testStore(t *testing.T, ttl time.Duration) *Store {
	t.Helper()
	s, err := Open(types.StoreConfig{Dir: filepath.Join(t.TempDir(), "data")}, ttl)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testResult(id, query string, started time.Time) *types.TaskResult {
	return &types.TaskResult{
		TaskID: id,
		Query:  types.Query{Original: query},
		Status: types.StatusDone,
		Sections: []types.Section{{
			Title: "Background",
			Text:  "Dense retrieval (Doe et al., 2024) helps.",
			Citations: []types.CitationRef{{
				ID:    "(Doe et al., 2024)",
				DocID: "1",
				Paper: &types.PaperMetadata{DocID: "1", Title: "Dense"},
			}},
		}},
		Cost:      types.CostSummary{TotalCostUSD: 0.25},
		StartedAt: started,
		Elapsed:   1500 * time.Millisecond,
	}
}

// --- Open ---

func TestOpenCreatesDatabase(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "data")
	s, err := Open(types.StoreConfig{Dir: dir}, 0)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(filepath.Join(dir, dbFile)); err != nil {
		t.Errorf("database file missing: %v", err)
	}

	// Reopening an existing database keeps the schema.
	s2, err := Open(types.StoreConfig{Dir: dir}, 0)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	s2.Close()
}

// --- papers ---

func TestPaperCacheRoundTrip(t *testing.T) {
	s := testStore(t, 0)
	ctx := context.Background()

	papers := []types.PaperMetadata{
		{DocID: "1", Title: "Dense", Year: 2020, Authors: []types.Author{{Name: "Jane Doe"}}},
		{DocID: "2", Title: "Sparse", ExternalIDs: map[string]string{"ArXiv": "2001.00001"}},
		{Title: "no id is skipped"},
	}
	if err := s.PutMany(ctx, papers); err != nil {
		t.Fatalf("PutMany: %v", err)
	}

	got, err := s.GetMany(ctx, []string{"1", "2", "3"})
	if err != nil {
		t.Fatalf("GetMany: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d papers, want 2", len(got))
	}
	if got["1"].Authors[0].Name != "Jane Doe" {
		t.Errorf("authors = %+v", got["1"].Authors)
	}
	if got["2"].ExternalIDs["ArXiv"] != "2001.00001" {
		t.Errorf("external ids = %+v", got["2"].ExternalIDs)
	}

	// Upsert replaces the cached entry.
	if err := s.PutMany(ctx, []types.PaperMetadata{{DocID: "1", Title: "Dense v2"}}); err != nil {
		t.Fatal(err)
	}
	got, _ = s.GetMany(ctx, []string{"1"})
	if got["1"].Title != "Dense v2" {
		t.Errorf("title = %q, want updated", got["1"].Title)
	}
}

func TestPaperCacheTTL(t *testing.T) {
	s := testStore(t, time.Hour)
	ctx := context.Background()

	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }
	if err := s.PutMany(ctx, []types.PaperMetadata{{DocID: "1", Title: "A"}}); err != nil {
		t.Fatal(err)
	}

	s.now = func() time.Time { return now.Add(30 * time.Minute) }
	if got, _ := s.GetMany(ctx, []string{"1"}); len(got) != 1 {
		t.Errorf("fresh entry missing")
	}

	s.now = func() time.Time { return now.Add(2 * time.Hour) }
	if got, _ := s.GetMany(ctx, []string{"1"}); len(got) != 0 {
		t.Errorf("expired entry returned: %+v", got)
	}
}

func TestPaperCacheEmpty(t *testing.T) {
	s := testStore(t, 0)
	got, err := s.GetMany(context.Background(), nil)
	if err != nil || len(got) != 0 {
		t.Errorf("GetMany(nil) = %v, %v", got, err)
	}
	if err := s.PutMany(context.Background(), nil); err != nil {
		t.Errorf("PutMany(nil) = %v", err)
	}
}

// fetchCounter counts the IDs the resolver asks the remote store for.
type fetchCounter struct {
	asked []string
}

func (f *fetchCounter) Fetch(_ context.Context, ids []string) (map[string]types.PaperMetadata, error) {
	f.asked = append(f.asked, ids...)
	out := make(map[string]types.PaperMetadata)
	for _, id := range ids {
		out[id] = types.PaperMetadata{DocID: id, Title: "fetched " + id}
	}
	return out, nil
}

func TestStoreAsResolverCache(t *testing.T) {
	s := testStore(t, 0)
	ctx := context.Background()

	remote := &fetchCounter{}
	if _, err := metadata.NewResolver(remote, s, nil).Resolve(ctx, []string{"1", "2"}); err != nil {
		t.Fatal(err)
	}

	// A new request resolves from the SQLite cache without fetching.
	remote.asked = nil
	got, err := metadata.NewResolver(remote, s, nil).Resolve(ctx, []string{"1", "2"})
	if err != nil {
		t.Fatal(err)
	}
	if len(remote.asked) != 0 {
		t.Errorf("fetched %v, want cache hits", remote.asked)
	}
	if got["2"].Title != "fetched 2" {
		t.Errorf("got %+v", got["2"])
	}
}

// --- tasks ---

func TestSaveAndLoadResult(t *testing.T) {
	s := testStore(t, 0)
	ctx := context.Background()
	started := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	r := testResult("3f2a9c1e-0000-4000-8000-000000000001", "How does RAG extend context?", started)
	if err := s.SaveResult(ctx, r); err != nil {
		t.Fatalf("SaveResult: %v", err)
	}

	got, err := s.LoadResult(ctx, r.TaskID)
	if err != nil {
		t.Fatalf("LoadResult: %v", err)
	}
	if got.Query.Original != r.Query.Original || len(got.Sections) != 1 {
		t.Errorf("loaded %+v", got)
	}
	if got.Sections[0].Citations[0].Paper.Title != "Dense" {
		t.Errorf("citation paper lost: %+v", got.Sections[0].Citations[0])
	}
	if !got.StartedAt.Equal(started) {
		t.Errorf("started_at = %v, want %v", got.StartedAt, started)
	}

	// Prefix lookup.
	if _, err := s.LoadResult(ctx, "3f2a"); err != nil {
		t.Errorf("LoadResult(prefix): %v", err)
	}
}

func TestLoadResultErrors(t *testing.T) {
	s := testStore(t, 0)
	ctx := context.Background()
	now := time.Now()

	for _, id := range []string{"abc1", "abc2", "abc"} {
		if err := s.SaveResult(ctx, testResult(id, "q "+id, now)); err != nil {
			t.Fatal(err)
		}
	}

	if _, err := s.LoadResult(ctx, "zzz"); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing id: err = %v, want ErrNotFound", err)
	}
	if _, err := s.LoadResult(ctx, "ab"); err == nil {
		t.Error("ambiguous prefix: expected error")
	}
	got, err := s.LoadResult(ctx, "abc")
	if err != nil {
		t.Fatalf("exact id with longer siblings: %v", err)
	}
	if got.TaskID != "abc" {
		t.Errorf("loaded %q, want abc", got.TaskID)
	}
	if _, err := s.LoadResult(ctx, ""); err == nil {
		t.Error("empty id: expected error")
	}
	if err := s.SaveResult(ctx, &types.TaskResult{}); err == nil {
		t.Error("SaveResult without id: expected error")
	}
}

func TestListResults(t *testing.T) {
	s := testStore(t, 0)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	failed := testResult("t3", "Sparse retrieval baselines", base.Add(2*time.Hour))
	failed.Status = types.StatusFailed
	failed.Error = "No papers were found for this question."
	failed.Sections = nil

	for _, r := range []*types.TaskResult{
		testResult("t1", "How does RAG extend context?", base),
		testResult("t2", "Dense retrieval for QA", base.Add(time.Hour)),
		failed,
	} {
		if err := s.SaveResult(ctx, r); err != nil {
			t.Fatal(err)
		}
	}

	all, err := s.ListResults(ctx, HistoryOptions{})
	if err != nil {
		t.Fatalf("ListResults: %v", err)
	}
	if len(all) != 3 || all[0].ID != "t3" || all[2].ID != "t1" {
		t.Fatalf("order = %+v, want newest first", all)
	}
	if all[0].Status != types.StatusFailed || all[0].Error == "" || all[0].Sections != 0 {
		t.Errorf("failed summary = %+v", all[0])
	}
	if all[1].Elapsed != 1500*time.Millisecond || all[1].CostUSD != 0.25 || all[1].Sections != 1 {
		t.Errorf("summary = %+v", all[1])
	}

	tests := []struct {
		name string
		opts HistoryOptions
		want []string
	}{
		{"contains is case-insensitive", HistoryOptions{Contains: "retrieval"}, []string{"t3", "t2"}},
		{"status filter", HistoryOptions{Status: types.StatusDone}, []string{"t2", "t1"}},
		{"limit", HistoryOptions{Limit: 1}, []string{"t3"}},
		{"no match", HistoryOptions{Contains: "graph neural"}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.ListResults(ctx, tt.opts)
			if err != nil {
				t.Fatal(err)
			}
			var ids []string
			for _, r := range got {
				ids = append(ids, r.ID)
			}
			if len(ids) != len(tt.want) {
				t.Fatalf("ids = %v, want %v", ids, tt.want)
			}
			for i := range ids {
				if ids[i] != tt.want[i] {
					t.Errorf("ids = %v, want %v", ids, tt.want)
				}
			}
		})
	}
}

func TestSaveResultReplaces(t *testing.T) {
	s := testStore(t, 0)
	ctx := context.Background()
	r := testResult("t1", "q", time.Now())
	if err := s.SaveResult(ctx, r); err != nil {
		t.Fatal(err)
	}
	r.Sections = append(r.Sections, types.Section{Title: "More"})
	if err := s.SaveResult(ctx, r); err != nil {
		t.Fatal(err)
	}
	list, _ := s.ListResults(ctx, HistoryOptions{})
	if len(list) != 1 || list[0].Sections != 2 {
		t.Errorf("list = %+v", list)
	}
}

func TestDeleteResult(t *testing.T) {
	s := testStore(t, 0)
	ctx := context.Background()
	if err := s.SaveResult(ctx, testResult("t1", "q", time.Now())); err != nil {
		t.Fatal(err)
	}
	if err := s.DeleteResult(ctx, "t1"); err != nil {
		t.Fatalf("DeleteResult: %v", err)
	}
	if err := s.DeleteResult(ctx, "t1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second delete: err = %v, want ErrNotFound", err)
	}
}
