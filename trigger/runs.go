package trigger

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/cockroachdb/recon/reconcile"
	"github.com/google/uuid"
)

type runState string

const (
	runRunning   runState = "running"
	runDone      runState = "done"
	runAborted   runState = "aborted"
	runCancelled runState = "cancelled"
)

type run struct {
	id      uuid.UUID
	tables  []string
	started time.Time
	cancel  context.CancelFunc
	done    chan struct{}

	mu struct {
		sync.Mutex
		state     runState
		cancelled bool
		finished  time.Time
		results   []reconcile.Result
	}
}

func (r *run) finish(now time.Time, results []reconcile.Result) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mu.finished = now
	r.mu.results = results
	r.mu.state = runDone
	for _, res := range results {
		if res.State == reconcile.StateAborted {
			r.mu.state = runAborted
		}
	}
	if r.mu.cancelled {
		r.mu.state = runCancelled
	}
	close(r.done)
}

func (r *run) view() runView {
	r.mu.Lock()
	defer r.mu.Unlock()
	v := runView{
		ID:      r.id.String(),
		Tables:  r.tables,
		State:   r.mu.state,
		Started: r.started,
	}
	for _, res := range r.mu.results {
		v.Results = append(v.Results, makeResultView(res))
	}
	return v
}

// finishedAt returns when the run finished, or false if it is running.
func (r *run) finishedAt() (time.Time, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.mu.finished, r.mu.state != runRunning
}

const (
	DefaultRunRetention = time.Hour
	DefaultMaxRuns      = 1000
)

// registry tracks asynchronous runs so they can be polled and cancelled.
// Finished runs are forgotten once older than retention, or oldest first once
// more than maxRuns are tracked. Running runs are never forgotten.
type registry struct {
	retention time.Duration
	maxRuns   int
	now       func() time.Time

	wg sync.WaitGroup
	mu struct {
		sync.Mutex
		runs map[uuid.UUID]*run
	}
}

func newRegistry(retention time.Duration, maxRuns int) *registry {
	r := &registry{retention: retention, maxRuns: maxRuns, now: time.Now}
	r.mu.runs = make(map[uuid.UUID]*run)
	return r
}

// pruneLocked evicts finished runs. reg.mu must be held.
func (reg *registry) pruneLocked() {
	type finishedRun struct {
		id uuid.UUID
		at time.Time
	}
	var finished []finishedRun
	cutoff := reg.now().Add(-reg.retention)
	for id, r := range reg.mu.runs {
		at, ok := r.finishedAt()
		if !ok {
			continue
		}
		if reg.retention > 0 && at.Before(cutoff) {
			delete(reg.mu.runs, id)
			continue
		}
		finished = append(finished, finishedRun{id: id, at: at})
	}
	// Leave room for the run about to be added.
	if reg.maxRuns <= 0 || len(reg.mu.runs) < reg.maxRuns {
		return
	}
	sort.Slice(finished, func(i, j int) bool { return finished[i].at.Before(finished[j].at) })
	for _, f := range finished {
		if len(reg.mu.runs) < reg.maxRuns {
			return
		}
		delete(reg.mu.runs, f.id)
	}
}

// start runs fn in the background under a cancellable context derived from
// ctx.
func (reg *registry) start(
	ctx context.Context, tables []string, fn func(ctx context.Context, id uuid.UUID) []reconcile.Result,
) *run {
	runCtx, cancel := context.WithCancel(ctx)
	r := &run{
		id:      uuid.New(),
		tables:  tables,
		started: reg.now(),
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	r.mu.state = runRunning

	reg.mu.Lock()
	reg.pruneLocked()
	reg.mu.runs[r.id] = r
	reg.mu.Unlock()

	reg.wg.Add(1)
	go func() {
		defer reg.wg.Done()
		defer cancel()
		results := fn(runCtx, r.id)
		r.finish(reg.now(), results)
	}()
	return r
}

func (reg *registry) get(id uuid.UUID) (*run, bool) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	r, ok := reg.mu.runs[id]
	return r, ok
}

// cancel stops a run between pages. It returns false for unknown runs.
func (reg *registry) cancel(id uuid.UUID) bool {
	r, ok := reg.get(id)
	if !ok {
		return false
	}
	r.mu.Lock()
	if r.mu.state == runRunning {
		r.mu.cancelled = true
	}
	r.mu.Unlock()
	r.cancel()
	return true
}

// shutdown cancels every run and waits for them to stop.
func (reg *registry) shutdown() {
	reg.mu.Lock()
	for _, r := range reg.mu.runs {
		r.cancel()
	}
	reg.mu.Unlock()
	reg.wg.Wait()
}
