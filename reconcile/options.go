package reconcile

import (
	"context"
	"time"

	"github.com/cockroachdb/recon/dialect"
	"github.com/cockroachdb/recon/pagefetch"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const DefaultPageSize = 1000
const DefaultConcurrency = 8

// Checkpoint is where an interrupted run resumes: the first page not yet
// compared, counted in pages of PageSize rows.
type Checkpoint struct {
	NextPage int
	PageSize int
}

// Cursor persists the checkpoint of each table so that an interrupted run can
// resume.
type Cursor interface {
	// Load returns the zero Checkpoint if nothing is stored for the table.
	Load(ctx context.Context, table string) (Checkpoint, error)
	Save(ctx context.Context, table string, cp Checkpoint) error
	Clear(ctx context.Context, table string) error
}

type Opt func(*opts)

type opts struct {
	pageSize        int
	concurrency     int
	rowsPerSecond   int
	continuous      bool
	continuousPause time.Duration
	fetcher         pagefetch.Fetcher
	catalog         *dialect.Catalog
	cursor          Cursor
	logger          zerolog.Logger
	runID           uuid.UUID
}

func makeOpts(inOpts []Opt) opts {
	o := opts{
		pageSize:    DefaultPageSize,
		concurrency: DefaultConcurrency,
		fetcher:     pagefetch.QueryFetcher{},
		catalog:     dialect.Default(),
		logger:      zerolog.Nop(),
	}
	for _, applyOpt := range inOpts {
		applyOpt(&o)
	}
	if o.pageSize <= 0 {
		o.pageSize = DefaultPageSize
	}
	return o
}

// rateLimit is the rate of page pairs that keeps each side under
// rowsPerSecond rows.
func (o opts) rateLimit() rate.Limit {
	if o.rowsPerSecond == 0 {
		return rate.Inf
	}
	perSecond := float64(o.pageSize) / float64(o.rowsPerSecond)
	return rate.Every(time.Duration(float64(time.Second) * perSecond))
}

func WithPageSize(c int) Opt {
	return func(o *opts) {
		o.pageSize = c
	}
}

// WithConcurrency sets how many tables are compared at once. Zero uses the
// number of CPUs.
func WithConcurrency(c int) Opt {
	return func(o *opts) {
		o.concurrency = c
	}
}

func WithRowsPerSecond(c int) Opt {
	return func(o *opts) {
		o.rowsPerSecond = c
	}
}

// WithContinuous makes CompareTables compare every table again, pausing
// between runs, until the context is cancelled.
func WithContinuous(c bool, pauseLength time.Duration) Opt {
	return func(o *opts) {
		o.continuous = c
		o.continuousPause = pauseLength
	}
}

func WithFetcher(f pagefetch.Fetcher) Opt {
	return func(o *opts) {
		o.fetcher = f
	}
}

func WithCatalog(c *dialect.Catalog) Opt {
	return func(o *opts) {
		o.catalog = c
	}
}

func WithCursor(c Cursor) Opt {
	return func(o *opts) {
		o.cursor = c
	}
}

func WithLogger(l zerolog.Logger) Opt {
	return func(o *opts) {
		o.logger = l
	}
}

// WithRunID fixes the run id of a CompareTable call instead of generating one.
func WithRunID(id uuid.UUID) Opt {
	return func(o *opts) {
		o.runID = id
	}
}
