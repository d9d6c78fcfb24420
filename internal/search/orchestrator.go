// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package search

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/pdiddy/scholarqa/internal/metrics"
	"github.com/pdiddy/scholarqa/pkg/types"
)

const (
	defaultTaskLimit   = 50
	defaultTaskTimeout = 45 * time.Second
)

var tracer = otel.Tracer("scholarqa/search")

// Orchestrator fans one query out into concurrent search tasks.
type Orchestrator struct {
	backend Backend
	limit   int
	timeout time.Duration
	logger  *zap.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithTaskLimit sets the number of results each task requests.
func WithTaskLimit(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.limit = n
		}
	}
}

// WithTaskTimeout sets the bounded wait applied to each task.
func WithTaskTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithLogger sets the logger used for task warnings.
func WithLogger(l *zap.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// NewOrchestrator returns an Orchestrator that sends every task to backend.
func NewOrchestrator(backend Backend, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		backend: backend,
		limit:   defaultTaskLimit,
		timeout: defaultTaskTimeout,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.logger = o.logger.Named("search")
	return o
}

// TaskOutcome is the result slot of one task: candidates or an error, never both.
type TaskOutcome struct {
	Task       types.SearchTask
	Candidates []types.Candidate
	Err        error
	Elapsed    time.Duration
}

// Output is the merged result of one fan-out.
type Output struct {
	// Candidates holds every task's candidates in task order, tagged with
	// the task index.
	Candidates []types.Candidate

	// Outcomes has one entry per planned task, in task order.
	Outcomes []TaskOutcome
}

// Failed returns the number of tasks that errored or timed out.
func (o Output) Failed() int {
	n := 0
	for _, oc := range o.Outcomes {
		if oc.Err != nil {
			n++
		}
	}
	return n
}

// Errors returns one record per failed task.
func (o Output) Errors() []*types.TaskError {
	var errs []*types.TaskError
	for _, oc := range o.Outcomes {
		if oc.Err != nil {
			errs = append(errs, &types.TaskError{Task: oc.Task, Err: oc.Err})
		}
	}
	return errs
}

// PlanTasks builds the task list for q: one keyword task for q.Keyword when
// set, then one semantic task per sub-topic (at most MaxSubTopics). When
// there are no sub-topics the plan degrades to a single semantic task over
// the rewritten query.
func PlanTasks(q types.Query, limit int) []types.SearchTask {
	var subTopics []string
	for _, s := range q.SubTopics {
		if s != "" {
			subTopics = append(subTopics, s)
		}
	}
	if len(subTopics) > types.MaxSubTopics {
		subTopics = subTopics[:types.MaxSubTopics]
	}

	if len(subTopics) == 0 {
		return []types.SearchTask{{Index: 0, Query: q.SearchText(), Mode: types.ModeSemantic, Limit: limit}}
	}

	tasks := make([]types.SearchTask, 0, len(subTopics)+1)
	if q.Keyword != "" {
		tasks = append(tasks, types.SearchTask{Query: q.Keyword, Mode: types.ModeKeyword, Limit: limit})
	}
	for _, s := range subTopics {
		tasks = append(tasks, types.SearchTask{Query: s, Mode: types.ModeSemantic, Limit: limit})
	}
	for i := range tasks {
		tasks[i].Index = i
	}
	return tasks
}

// Run executes the planned tasks concurrently and waits for every one to
// finish or be abandoned. A failed task contributes an outcome with Err set
// and no candidates; siblings are unaffected. Run fails with
// types.ErrRetrievalEmpty only when no task produced a candidate.
func (o *Orchestrator) Run(ctx context.Context, q types.Query) (Output, error) {
	tasks := PlanTasks(q, o.limit)
	outcomes := make([]TaskOutcome, len(tasks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(len(tasks))
	for i, t := range tasks {
		g.Go(func() error {
			outcomes[i] = o.runTask(gctx, t)
			return nil
		})
	}
	_ = g.Wait()

	out := Output{Outcomes: outcomes}
	for _, oc := range outcomes {
		out.Candidates = append(out.Candidates, oc.Candidates...)
	}
	metrics.SearchCandidates.Observe(float64(len(out.Candidates)))

	if len(out.Candidates) == 0 {
		return out, fmt.Errorf("%w: %d of %d tasks failed", types.ErrRetrievalEmpty, out.Failed(), len(tasks))
	}
	return out, nil
}

// runTask runs one task under its own deadline. A backend that does not
// return by the deadline is abandoned and its late reply discarded.
func (o *Orchestrator) runTask(ctx context.Context, t types.SearchTask) TaskOutcome {
	tctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	tctx, span := tracer.Start(tctx, "search.task", trace.WithAttributes(
		attribute.Int("task.index", t.Index),
		attribute.String("task.mode", string(t.Mode)),
	))
	defer span.End()

	type reply struct {
		cands []types.Candidate
		err   error
	}
	ch := make(chan reply, 1)
	start := time.Now()
	go func() {
		cands, err := o.backend.Search(tctx, t.Query, t.Mode, t.Limit)
		ch <- reply{cands: cands, err: err}
	}()

	var r reply
	select {
	case r = <-ch:
	case <-tctx.Done():
		r = reply{err: fmt.Errorf("abandoned after %v: %w", o.timeout, tctx.Err())}
	}

	oc := TaskOutcome{Task: t, Elapsed: time.Since(start)}
	if r.err != nil {
		oc.Err = r.err
		outcome := "error"
		if errors.Is(r.err, context.DeadlineExceeded) {
			outcome = "timeout"
		}
		metrics.SearchTasks.WithLabelValues(string(t.Mode), outcome).Inc()
		span.RecordError(r.err)
		span.SetStatus(codes.Error, r.err.Error())
		o.logger.Warn("search task failed",
			zap.Int("task", t.Index),
			zap.String("mode", string(t.Mode)),
			zap.String("query", t.Query),
			zap.Error(r.err))
		return oc
	}

	cands := r.cands
	if t.Limit > 0 && len(cands) > t.Limit {
		cands = cands[:t.Limit]
	}
	oc.Candidates = make([]types.Candidate, len(cands))
	for i, c := range cands {
		c.Task = t.Index
		oc.Candidates[i] = c
	}
	metrics.SearchTasks.WithLabelValues(string(t.Mode), "ok").Inc()
	span.SetAttributes(attribute.Int("task.results", len(cands)))
	return oc
}
