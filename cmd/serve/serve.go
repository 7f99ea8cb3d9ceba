package serve

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/recon/checkpoint"
	"github.com/cockroachdb/recon/cmd/internal/cmdutil"
	"github.com/cockroachdb/recon/reconcile"
	"github.com/cockroachdb/recon/reconcile/inconsistency"
	"github.com/cockroachdb/recon/recontelemetry"
	"github.com/cockroachdb/recon/reportstore"
	"github.com/cockroachdb/recon/trigger"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

func Command() *cobra.Command {
	var (
		listenAddr       string
		redisAddr        string
		redisPrefix      string
		checkpointTTL    time.Duration
		reportFlushEvery time.Duration
		runRetention     time.Duration
		maxRuns          int
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve an HTTP API that starts reconciliations.",
		Long: `Serve exposes POST /api/v1/compare/:table and POST /api/v1/compare to start reconciliations,
GET and DELETE /api/v1/runs/:id to follow and cancel them, plus /healthz and /metrics.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			logger, err := cmdutil.Logger()
			if err != nil {
				return err
			}
			gin.SetMode(gin.ReleaseMode)

			source, err := cmdutil.LoadTableConfig()
			if err != nil {
				return err
			}
			opts, err := cmdutil.ReconcileOpts(logger, false)
			if err != nil {
				return err
			}
			opts = append(opts, reconcile.WithCatalog(source.Catalog()))

			if redisAddr != "" {
				client := redis.NewClient(&redis.Options{Addr: redisAddr})
				defer func() { _ = client.Close() }()
				if err := client.Ping(ctx).Err(); err != nil {
					return errors.Wrapf(err, "error connecting to redis at %s", redisAddr)
				}
				opts = append(opts, reconcile.WithCursor(checkpoint.NewRedisStore(client, redisPrefix, checkpointTTL)))
				logger.Info().Str("addr", redisAddr).Msg("resuming runs from redis checkpoints")
			}

			reporter := inconsistency.CombinedReporter{}
			reporter.Reporters = append(reporter.Reporters, inconsistency.LogReporter{Logger: logger})
			store, err := cmdutil.ReportStore(ctx, logger)
			if err != nil {
				return err
			}
			if store != nil {
				fileReporter := reportstore.NewReporter(store, logger, cmdutil.ReportFlushRows())
				reporter.Reporters = append(reporter.Reporters, fileReporter)
				go fileReporter.FlushEvery(ctx, reportFlushEvery)
			}
			defer reporter.Close()

			conns, err := cmdutil.LoadDBConns(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = conns.Close(context.Background()) }()
			recontelemetry.ReportAsync(ctx, logger, conns, recontelemetry.Features(conns, "serve")...)

			srv := trigger.NewServer(conns, source, reporter, logger, opts...)
			srv.SetRunRetention(runRetention, maxRuns)
			return srv.ListenAndServe(ctx, listenAddr)
		},
	}

	cmd.PersistentFlags().StringVar(
		&listenAddr,
		"listen-addr",
		"127.0.0.1:8080",
		"address to serve the API on",
	)
	cmd.PersistentFlags().StringVar(
		&redisAddr,
		"redis-addr",
		"",
		"if set, redis address used to checkpoint runs so that they resume after a restart",
	)
	cmd.PersistentFlags().StringVar(
		&redisPrefix,
		"redis-checkpoint-prefix",
		checkpoint.DefaultPrefix,
		"prefix of the redis keys holding checkpoints",
	)
	cmd.PersistentFlags().DurationVar(
		&checkpointTTL,
		"checkpoint-ttl",
		24*time.Hour,
		"how long an unfinished run's checkpoint is kept (0 keeps it forever)",
	)
	cmd.PersistentFlags().DurationVar(
		&reportFlushEvery,
		"report-flush-interval",
		time.Minute,
		"how often buffered differences are written to the report store (0 writes them only on exit)",
	)
	cmd.PersistentFlags().DurationVar(
		&runRetention,
		"run-retention",
		trigger.DefaultRunRetention,
		"how long finished asynchronous runs can be polled (0 keeps them until --max-runs is reached)",
	)
	cmd.PersistentFlags().IntVar(
		&maxRuns,
		"max-runs",
		trigger.DefaultMaxRuns,
		"maximum number of asynchronous runs remembered; the oldest finished runs are dropped first",
	)
	cmdutil.RegisterConfigFlags(cmd)
	cmdutil.RegisterDBConnFlags(cmd)
	cmdutil.RegisterReconcileFlags(cmd)
	cmdutil.RegisterReportFlags(cmd)
	cmdutil.RegisterLoggerFlags(cmd)
	return cmd
}
