// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package sections

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/pdiddy/scholarqa/internal/metrics"
	"github.com/pdiddy/scholarqa/pkg/types"
)

// ErrJobTimeout is the error of a job still running when Join's deadline
// passed.
var ErrJobTimeout = errors.New("table job did not finish before the deadline")

// TableFunc builds the table of one section.
type TableFunc func(ctx context.Context) (*types.Table, types.Usage, error)

// Job is the handle of one background table job.
type Job struct {
	Section int
	Title   string

	done  chan struct{}
	table *types.Table
	usage types.Usage
	err   error
}

// Done is closed when the job has finished.
func (j *Job) Done() <-chan struct{} {
	return j.done
}

// Result returns the job's outcome. It must only be called after Done is
// closed.
func (j *Job) Result() (*types.Table, types.Usage, error) {
	return j.table, j.usage, j.err
}

func (j *Job) finish(t *types.Table, u types.Usage, err error) {
	j.table, j.usage, j.err = t, u, err
	close(j.done)
}

// JobResult is a joined job.
type JobResult struct {
	Section int
	Title   string
	Table   *types.Table
	Usage   types.Usage
	Err     error
}

// Jobs tracks the table jobs of one request. Jobs run on a shared ants
// pool; the pool outlives the request and is released by its owner.
type Jobs struct {
	pool   *ants.Pool
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	pending []*Job
}

// NewJobs returns a tracker whose jobs run on pool. Jobs observe ctx and
// are cancelled when Join returns.
func NewJobs(ctx context.Context, pool *ants.Pool) *Jobs {
	jctx, cancel := context.WithCancel(ctx)
	return &Jobs{pool: pool, ctx: jctx, cancel: cancel}
}

// Submit schedules fn on the pool and returns its handle at once, even
// when every worker is busy; only Join waits. A job the pool refuses
// finishes with the pool's error, and a job that gets a worker after Join
// gave up finishes with the context error without running.
func (j *Jobs) Submit(section int, title string, fn TableFunc) *Job {
	job := &Job{Section: section, Title: title, done: make(chan struct{})}

	j.mu.Lock()
	j.pending = append(j.pending, job)
	j.mu.Unlock()

	go func() {
		err := j.pool.Submit(func() {
			if err := j.ctx.Err(); err != nil {
				job.finish(nil, types.Usage{}, err)
				return
			}
			t, u, err := fn(j.ctx)
			job.finish(t, u, err)
		})
		if err != nil {
			job.finish(nil, types.Usage{}, fmt.Errorf("submitting table job: %w", err))
		}
	}()
	return job
}

// Len returns the number of submitted jobs.
func (j *Jobs) Len() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.pending)
}

// Join waits for every submitted job until one shared deadline, timeout
// from now. Results are returned in submission order. Jobs still running
// at the deadline, or when ctx is cancelled, report ErrJobTimeout or the
// context error and are cancelled.
func (j *Jobs) Join(ctx context.Context, timeout time.Duration) []JobResult {
	defer j.cancel()

	j.mu.Lock()
	pending := append([]*Job(nil), j.pending...)
	j.mu.Unlock()

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	results := make([]JobResult, len(pending))
	expired := false
	var expiredErr error
	for i, job := range pending {
		results[i] = JobResult{Section: job.Section, Title: job.Title}
		if !expired {
			select {
			case <-job.Done():
			case <-deadline.C:
				expired, expiredErr = true, ErrJobTimeout
			case <-ctx.Done():
				expired, expiredErr = true, ctx.Err()
			}
		}
		select {
		case <-job.Done():
			results[i].Table, results[i].Usage, results[i].Err = job.Result()
		default:
			results[i].Err = expiredErr
		}

		switch {
		case results[i].Err == nil:
			metrics.TableJobs.WithLabelValues("ok").Inc()
		case errors.Is(results[i].Err, ErrJobTimeout):
			metrics.TableJobs.WithLabelValues("timeout").Inc()
		default:
			metrics.TableJobs.WithLabelValues("error").Inc()
		}
	}
	return results
}
