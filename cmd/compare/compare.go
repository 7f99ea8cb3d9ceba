package compare

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/recon/cmd/internal/cmdutil"
	"github.com/cockroachdb/recon/reconcile"
	"github.com/cockroachdb/recon/reconcile/inconsistency"
	"github.com/cockroachdb/recon/recontelemetry"
	"github.com/cockroachdb/recon/reportstore"
	"github.com/cockroachdb/recon/tableconfig"
	"github.com/spf13/cobra"
)

func Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "compare [table...]",
		Short: "Reconcile tables between the primary and the secondary.",
		Long: `Compare pages through each table on both databases and reports every difference.
Without arguments, every configured table matching the name filters is compared.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			logger, err := cmdutil.Logger()
			if err != nil {
				return err
			}
			cmdutil.RunMetricsServer(ctx, logger)

			source, err := cmdutil.LoadTableConfig()
			if err != nil {
				return err
			}
			tables := args
			if len(tables) == 0 {
				if tables, err = tableconfig.Filter(cmdutil.TableFilter(), tableconfig.SortedTables(source)); err != nil {
					return err
				}
				if len(tables) == 0 {
					return errors.Newf("no configured tables match the filters")
				}
			}
			for _, table := range tables {
				if _, err := source.TableSpec(table); err != nil {
					return err
				}
			}
			opts, err := cmdutil.ReconcileOpts(logger, true)
			if err != nil {
				return err
			}
			opts = append(opts, reconcile.WithCatalog(source.Catalog()))

			reporter := inconsistency.CombinedReporter{}
			reporter.Reporters = append(reporter.Reporters, inconsistency.LogReporter{Logger: logger})
			store, err := cmdutil.ReportStore(ctx, logger)
			if err != nil {
				return err
			}
			var fileReporter *reportstore.Reporter
			if store != nil {
				fileReporter = reportstore.NewReporter(store, logger, cmdutil.ReportFlushRows())
				reporter.Reporters = append(reporter.Reporters, fileReporter)
			}
			defer reporter.Close()

			conns, err := cmdutil.LoadDBConns(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = conns.Close(context.Background()) }()
			recontelemetry.ReportAsync(ctx, logger, conns, recontelemetry.Features(conns, "compare")...)

			reporter.Report(inconsistency.StatusReport{Info: "reconciliation in progress"})
			results := reconcile.CompareTables(ctx, conns, source, tables, reporter, opts...)

			var failed int
			var differences int
			for _, res := range results {
				differences += res.Differences()
				if res.State != reconcile.StateDone {
					failed++
				}
			}
			if fileReporter != nil {
				if err := fileReporter.Flush(ctx); err != nil {
					return errors.Wrap(err, "error writing report")
				}
				for _, loc := range fileReporter.Locations() {
					logger.Info().Str("location", loc).Msg("wrote differences")
				}
			}
			if failed > 0 {
				return errors.Newf("%d of %d tables failed to reconcile", failed, len(results))
			}
			logger.Info().Int("tables", len(results)).Int("differences", differences).Msg("reconciliation complete")
			reporter.Report(inconsistency.StatusReport{Info: "reconciliation complete"})
			return nil
		},
	}

	cmdutil.RegisterConfigFlags(cmd)
	cmdutil.RegisterDBConnFlags(cmd)
	cmdutil.RegisterReconcileFlags(cmd)
	cmdutil.RegisterReportFlags(cmd)
	cmdutil.RegisterLoggerFlags(cmd)
	cmdutil.RegisterNameFilterFlags(cmd)
	cmdutil.RegisterMetricsFlags(cmd)
	return cmd
}
