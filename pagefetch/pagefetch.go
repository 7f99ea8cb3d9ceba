// Package pagefetch reads one page of a table from one source.
package pagefetch

import (
	"context"
	"fmt"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/recon/dbconn"
	"github.com/cockroachdb/recon/dialect"
	"github.com/cockroachdb/recon/reconcile/reconbase"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	fetchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "recon",
		Subsystem: "fetch",
		Name:      "page_duration_seconds",
		Help:      "Time taken to fetch one page from one side.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"side"})
	rowsRead = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "recon",
		Subsystem: "fetch",
		Name:      "rows_read_total",
		Help:      "Rows read from each side.",
	}, []string{"side"})
)

// Source is one side of a comparison with its resolved dialect.
type Source struct {
	Side    reconbase.Side
	Conn    dbconn.Conn
	Dialect dialect.Template
}

// Page is a window of Size rows starting at row Index*Size.
type Page struct {
	Index int
	Size  int
}

func (p Page) Offset() int {
	return p.Index * p.Size
}

type Fetcher interface {
	// Fetch returns the rows of the page ordered by identity. An empty result
	// means the table has no rows at or after the page's offset.
	Fetch(ctx context.Context, src Source, spec reconbase.TableSpec, page Page) ([]reconbase.Row, error)
}

// FetchError is any failure to read a page.
type FetchError struct {
	Side  reconbase.Side
	Table string
	Page  int
	Cause error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("error fetching page %d of %s from %s: %v", e.Page, e.Table, e.Side, e.Cause)
}

func (e *FetchError) Unwrap() error {
	return e.Cause
}

// Query renders the statement used to read a page.
func Query(src Source, spec reconbase.TableSpec, page Page) string {
	return src.Dialect.SelectPage(spec.Name, spec.IdentityField, spec.ComparedFields, page.Offset(), page.Size)
}

// QueryFetcher runs the page query against the source connection. Pooled
// connections are acquired and released within each call.
type QueryFetcher struct{}

var _ Fetcher = QueryFetcher{}

func (QueryFetcher) Fetch(
	ctx context.Context, src Source, spec reconbase.TableSpec, page Page,
) ([]reconbase.Row, error) {
	start := time.Now()
	ret, err := fetch(ctx, src, spec, page)
	fetchDuration.WithLabelValues(src.Side.String()).Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, &FetchError{Side: src.Side, Table: spec.Name, Page: page.Index, Cause: err}
	}
	rowsRead.WithLabelValues(src.Side.String()).Add(float64(len(ret)))
	return ret, nil
}

func fetch(
	ctx context.Context, src Source, spec reconbase.TableSpec, page Page,
) ([]reconbase.Row, error) {
	q := Query(src, spec, page)
	var currRows rows
	switch conn := src.Conn.(type) {
	case *dbconn.PGConn:
		newRows, err := conn.Query(ctx, q)
		if err != nil {
			return nil, errors.Wrapf(err, "error running %q on %s", q, conn.ID())
		}
		currRows = &pgRows{Rows: newRows}
	case *dbconn.SQLConn:
		newRows, err := conn.QueryContext(ctx, q)
		if err != nil {
			return nil, errors.Wrapf(err, "error running %q on %s", q, conn.ID())
		}
		colTypes, err := newRows.ColumnTypes()
		if err != nil {
			_ = newRows.Close()
			return nil, errors.Wrapf(err, "error getting column types")
		}
		currRows = &sqlRows{Rows: newRows, colTypes: colTypes}
	default:
		return nil, errors.AssertionFailedf("unhandled conn type: %T", conn)
	}
	defer currRows.Close()

	cols := spec.Columns()
	ret := make([]reconbase.Row, 0, page.Size)
	for currRows.Next() {
		vals, err := currRows.Values()
		if err != nil {
			return nil, errors.Wrapf(err, "error reading row")
		}
		if len(vals) != len(cols) {
			return nil, errors.AssertionFailedf("expected %d columns, got %d", len(cols), len(vals))
		}
		ret = append(ret, reconbase.Row{Columns: cols, Vals: vals})
	}
	if err := currRows.Err(); err != nil {
		return nil, err
	}
	return ret, nil
}
