package cmdutil

import (
	"time"

	"github.com/cockroachdb/recon/pagefetch"
	"github.com/cockroachdb/recon/reconcile"
	"github.com/cockroachdb/recon/retry"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

type reconcileConfig struct {
	pageSize        int
	concurrency     int
	rowsPerSecond   int
	continuous      bool
	continuousPause time.Duration
	fetchRetry      retry.Settings
}

var reconcileCfg = reconcileConfig{
	pageSize:    reconcile.DefaultPageSize,
	concurrency: reconcile.DefaultConcurrency,
	fetchRetry: retry.Settings{
		InitialBackoff: 250 * time.Millisecond,
		Multiplier:     2,
		MaxBackoff:     5 * time.Second,
		MaxRetries:     3,
	},
}

func RegisterReconcileFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().IntVar(
		&reconcileCfg.pageSize,
		"page-size",
		reconcileCfg.pageSize,
		"number of rows to read from each side at a time",
	)
	cmd.PersistentFlags().IntVar(
		&reconcileCfg.concurrency,
		"concurrency",
		reconcileCfg.concurrency,
		"number of tables to process at a time (0 uses the number of CPUs)",
	)
	cmd.PersistentFlags().IntVar(
		&reconcileCfg.rowsPerSecond,
		"rows-per-second",
		0,
		"if set, maximum number of rows to read per second from each side of a table",
	)
	cmd.PersistentFlags().BoolVar(
		&reconcileCfg.continuous,
		"continuous",
		false,
		"whether each table should be reconciled again once finished",
	)
	cmd.PersistentFlags().DurationVar(
		&reconcileCfg.continuousPause,
		"continuous-pause-between-runs",
		0,
		"time to pause between continuous runs",
	)
	cmd.PersistentFlags().IntVar(
		&reconcileCfg.fetchRetry.MaxRetries,
		"fetch-retries-max-iterations",
		reconcileCfg.fetchRetry.MaxRetries,
		"maximum number of times a failed page read is retried (0 disables retries)",
	)
	cmd.PersistentFlags().DurationVar(
		&reconcileCfg.fetchRetry.InitialBackoff,
		"fetch-retry-initial-backoff",
		reconcileCfg.fetchRetry.InitialBackoff,
		"amount of time to back off before the first retry of a page read",
	)
	cmd.PersistentFlags().DurationVar(
		&reconcileCfg.fetchRetry.MaxBackoff,
		"fetch-retry-max-backoff",
		reconcileCfg.fetchRetry.MaxBackoff,
		"maximum amount of time to back off between retries of a page read",
	)
	cmd.PersistentFlags().IntVar(
		&reconcileCfg.fetchRetry.Multiplier,
		"fetch-retry-multiplier",
		reconcileCfg.fetchRetry.Multiplier,
		"multiplier applied to the backoff after each failed page read",
	)
}

// ReconcileOpts turns the reconcile flags into options. Continuous mode is
// only applied when withContinuous is set.
func ReconcileOpts(logger zerolog.Logger, withContinuous bool) ([]reconcile.Opt, error) {
	opts := []reconcile.Opt{
		reconcile.WithLogger(logger),
		reconcile.WithPageSize(reconcileCfg.pageSize),
		reconcile.WithConcurrency(reconcileCfg.concurrency),
		reconcile.WithRowsPerSecond(reconcileCfg.rowsPerSecond),
	}
	if withContinuous {
		opts = append(opts, reconcile.WithContinuous(reconcileCfg.continuous, reconcileCfg.continuousPause))
	}
	if reconcileCfg.fetchRetry.MaxRetries > 0 {
		if err := reconcileCfg.fetchRetry.Verify(); err != nil {
			return nil, err
		}
		opts = append(opts, reconcile.WithFetcher(pagefetch.RetryingFetcher{
			Fetcher:  pagefetch.QueryFetcher{},
			Settings: reconcileCfg.fetchRetry,
			Logger:   logger,
		}))
	}
	return opts, nil
}
