// Package reconcile compares a table page by page between a primary and a
// secondary database and reports every difference found.
package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/recon/dbconn"
	"github.com/cockroachdb/recon/pagefetch"
	"github.com/cockroachdb/recon/reconcile/inconsistency"
	"github.com/cockroachdb/recon/reconcile/reconbase"
	"github.com/cockroachdb/recon/reconcile/rowdiff"
	"github.com/cockroachdb/recon/tableconfig"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

var (
	pagesCompared = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "recon",
		Subsystem: "reconcile",
		Name:      "pages_compared_total",
		Help:      "Number of pages compared.",
	}, []string{"table"})
	differencesFound = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "recon",
		Subsystem: "reconcile",
		Name:      "differences_total",
		Help:      "Number of differences found.",
	}, []string{"table", "kind"})
	runsFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "recon",
		Subsystem: "reconcile",
		Name:      "runs_total",
		Help:      "Number of finished table runs by final state.",
	}, []string{"state"})
)

type State int

const (
	StateDone State = iota
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateDone:
		return "done"
	case StateAborted:
		return "aborted"
	}
	return "unknown"
}

// Result summarizes one run over one table.
type Result struct {
	RunID uuid.UUID
	Table string
	State State
	// StartPage is the first page compared, which is non-zero when resuming.
	StartPage int
	// Pages is the number of pages that held rows on at least one side.
	Pages    int
	RowsRead [2]int
	Counts   map[inconsistency.Kind]int
	// FailedPage is the page being compared when the run aborted, or -1 if
	// the run aborted before paging or did not abort.
	FailedPage int
	Err        error
	Duration   time.Duration
}

// Differences is the total number of differences reported.
func (r Result) Differences() int {
	total := 0
	for _, c := range r.Counts {
		total += c
	}
	return total
}

func (r Result) String() string {
	return fmt.Sprintf(
		"pages: %d, primary rows: %d, secondary rows: %d, missing on secondary: %d, missing on primary: %d, mismatch: %d, duplicate: %d",
		r.Pages,
		r.RowsRead[reconbase.Primary],
		r.RowsRead[reconbase.Secondary],
		r.Counts[inconsistency.KindMissingOnSecondary],
		r.Counts[inconsistency.KindMissingOnPrimary],
		r.Counts[inconsistency.KindFieldMismatch],
		r.Counts[inconsistency.KindDuplicateKey],
	)
}

// CompareTable reconciles one table. Pages are compared in order until both
// sides return an empty page for the same page index. Cancellation of ctx is
// observed between pages; a page that has started is always completed. The
// returned error is also stored in Result.Err.
func CompareTable(
	ctx context.Context,
	conns dbconn.OrderedConns,
	spec reconbase.TableSpec,
	reporter inconsistency.Reporter,
	inOpts ...Opt,
) (Result, error) {
	opts := makeOpts(inOpts)
	res := Result{
		RunID:      opts.runID,
		Table:      spec.Name,
		State:      StateAborted,
		FailedPage: -1,
		Counts:     make(map[inconsistency.Kind]int, len(inconsistency.Kinds)),
	}
	if res.RunID == uuid.Nil {
		res.RunID = uuid.New()
	}
	start := time.Now()
	logger := opts.logger.With().
		Str("table", spec.Name).
		Str("run_id", res.RunID.String()).
		Logger()

	abort := func(page int, err error) (Result, error) {
		res.FailedPage = page
		res.Err = err
		res.Duration = time.Since(start)
		runsFinished.WithLabelValues(res.State.String()).Inc()
		logger.Err(err).Int("page", page).Msg("reconciliation aborted")
		return res, err
	}

	if err := tableconfig.ValidateSpec(spec); err != nil {
		return abort(-1, err)
	}
	var srcs [2]pagefetch.Source
	for _, side := range reconbase.Sides {
		conn := conns.Conn(side)
		if conn == nil {
			return abort(-1, errors.AssertionFailedf("no %s connection", side))
		}
		tmpl, err := opts.catalog.Resolve(conn.Dialect())
		if err != nil {
			return abort(-1, errors.Wrapf(err, "resolving dialect of %s", side))
		}
		srcs[side] = pagefetch.Source{Side: side, Conn: conn, Dialect: tmpl}
	}

	if opts.cursor != nil {
		cp, err := opts.cursor.Load(ctx, spec.Name)
		switch {
		case err != nil:
			logger.Warn().Err(err).Msg("unable to load checkpoint, starting from the first page")
		case cp.NextPage > 0 && cp.PageSize != opts.pageSize:
			// Page boundaries moved; resuming would skip or repeat rows.
			logger.Warn().
				Int("page", cp.NextPage).
				Int("checkpoint_page_size", cp.PageSize).
				Int("page_size", opts.pageSize).
				Msg("checkpoint was taken with a different page size, starting from the first page")
		case cp.NextPage > 0:
			res.StartPage = cp.NextPage
		}
	}
	if res.StartPage > 0 {
		logger.Info().Int("page", res.StartPage).Msg("resuming from checkpoint")
	}

	limiter := rate.NewLimiter(opts.rateLimit(), 1)
	for page := res.StartPage; ; page++ {
		if err := ctx.Err(); err != nil {
			return abort(page, errors.Wrap(err, "reconciliation cancelled"))
		}
		if err := limiter.Wait(ctx); err != nil {
			return abort(page, errors.Wrap(err, "reconciliation cancelled"))
		}

		rows, err := fetchPagePair(ctx, opts.fetcher, srcs, spec, pagefetch.Page{Index: page, Size: opts.pageSize})
		if err != nil {
			return abort(page, err)
		}
		if len(rows[reconbase.Primary]) == 0 && len(rows[reconbase.Secondary]) == 0 {
			break
		}

		diffs := rowdiff.Diff(
			spec.Name,
			spec.ComparedFields,
			rowdiff.Index(rows[reconbase.Primary]),
			rowdiff.Index(rows[reconbase.Secondary]),
		)
		for _, d := range diffs {
			reporter.Report(d)
			res.Counts[d.Kind()]++
			differencesFound.WithLabelValues(spec.Name, string(d.Kind())).Inc()
		}
		for _, side := range reconbase.Sides {
			res.RowsRead[side] += len(rows[side])
		}
		res.Pages++
		pagesCompared.WithLabelValues(spec.Name).Inc()
		logger.Debug().
			Int("page", page).
			Int("primary_rows", len(rows[reconbase.Primary])).
			Int("secondary_rows", len(rows[reconbase.Secondary])).
			Int("differences", len(diffs)).
			Msg("compared page")

		if opts.cursor != nil {
			if err := opts.cursor.Save(ctx, spec.Name, Checkpoint{NextPage: page + 1, PageSize: opts.pageSize}); err != nil {
				logger.Warn().Err(err).Int("page", page).Msg("unable to save checkpoint")
			}
		}
	}

	res.State = StateDone
	res.Duration = time.Since(start)
	runsFinished.WithLabelValues(res.State.String()).Inc()
	if opts.cursor != nil {
		if err := opts.cursor.Clear(ctx, spec.Name); err != nil {
			logger.Warn().Err(err).Msg("unable to clear checkpoint")
		}
	}
	reporter.Report(inconsistency.StatusReport{
		Info: fmt.Sprintf("finished reconciling %s; %s", spec.Name, res.String()),
	})
	return res, nil
}

// fetchPagePair reads the same page from both sides concurrently. The fetches
// run to completion even if ctx is cancelled meanwhile, but the first failure
// cancels the other side.
func fetchPagePair(
	ctx context.Context,
	fetcher pagefetch.Fetcher,
	srcs [2]pagefetch.Source,
	spec reconbase.TableSpec,
	page pagefetch.Page,
) ([2][]reconbase.Row, error) {
	var rows [2][]reconbase.Row
	g, gCtx := errgroup.WithContext(context.WithoutCancel(ctx))
	for _, side := range reconbase.Sides {
		side := side
		g.Go(func() error {
			var err error
			rows[side], err = fetcher.Fetch(gCtx, srcs[side], spec, page)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return rows, err
	}
	return rows, nil
}
