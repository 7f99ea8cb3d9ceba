package reconcile

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/cockroachdb/recon/dbconn"
	"github.com/cockroachdb/recon/reconcile/inconsistency"
	"github.com/cockroachdb/recon/tableconfig"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/sync/errgroup"
)

var tablesRunning = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "recon",
	Subsystem: "reconcile",
	Name:      "tables_running",
	Help:      "Number of tables being reconciled.",
})

// CompareTables reconciles the named tables, or every configured table if
// none are named. A table that fails is logged and reported; the remaining
// tables still run. The results are in the order of tables. In continuous
// mode each table holds the result of its last run.
func CompareTables(
	ctx context.Context,
	conns dbconn.OrderedConns,
	source tableconfig.Source,
	tables []string,
	reporter inconsistency.Reporter,
	inOpts ...Opt,
) []Result {
	opts := makeOpts(inOpts)
	logger := opts.logger
	if len(tables) == 0 {
		tables = source.Tables()
	}
	results := make([]Result, len(tables))
	if len(tables) == 0 {
		logger.Warn().Msg("no tables to reconcile")
		return results
	}

	numGoroutines := opts.concurrency
	if opts.continuous {
		// Every table runs on its own loop in continuous mode.
		numGoroutines = len(tables)
	} else if numGoroutines == 0 {
		numGoroutines = runtime.NumCPU()
		logger.Debug().Int("concurrency", numGoroutines).
			Msgf("no concurrency set; defaulting to number of CPUs")
	}
	if numGoroutines > len(tables) {
		numGoroutines = len(tables)
	}

	// Run ids are per run, never shared between tables.
	tableOpts := append(append([]Opt(nil), inOpts...), WithRunID(uuid.Nil))

	g, _ := errgroup.WithContext(ctx)
	workQueue := make(chan int)
	for goroutineIdx := 0; goroutineIdx < numGoroutines; goroutineIdx++ {
		g.Go(func() error {
			tablesRunning.Inc()
			defer tablesRunning.Dec()

			for idx := range workQueue {
				table := tables[idx]
				for runNum := 1; opts.continuous || runNum <= 1; runNum++ {
					if runNum > 1 && ctx.Err() != nil {
						break
					}
					msg := fmt.Sprintf("starting reconciliation of %s", table)
					if opts.continuous {
						msg += fmt.Sprintf(", run #%d", runNum)
					}
					reporter.Report(inconsistency.StatusReport{Info: msg})
					results[idx] = compareConfiguredTable(ctx, conns, source, table, reporter, tableOpts)
					if err := results[idx].Err; err != nil {
						logger.Err(err).
							Str("table", table).
							Msgf("error reconciling table")
						reporter.Report(inconsistency.StatusReport{
							Info: fmt.Sprintf("failed to reconcile %s", table),
						})
					}
					if opts.continuous && !sleepCtx(ctx, opts.continuousPause) {
						break
					}
				}
			}
			return nil
		})
	}
	for idx := range tables {
		workQueue <- idx
	}
	close(workQueue)
	_ = g.Wait()
	return results
}

func compareConfiguredTable(
	ctx context.Context,
	conns dbconn.OrderedConns,
	source tableconfig.Source,
	table string,
	reporter inconsistency.Reporter,
	tableOpts []Opt,
) Result {
	spec, err := source.TableSpec(table)
	if err != nil {
		return Result{Table: table, State: StateAborted, FailedPage: -1, Err: err}
	}
	res, _ := CompareTable(ctx, conns, spec, reporter, tableOpts...)
	return res
}

// sleepCtx returns false if ctx is done before d elapses.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
