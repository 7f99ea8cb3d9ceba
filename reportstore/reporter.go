package reportstore

import (
	"bytes"
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/recon/reconcile/inconsistency"
	"github.com/rs/zerolog"
)

const DefaultFlushRows = 10000

// Reporter buffers differences per table and writes them to a Store as
// newline delimited JSON, one part file per flushRows differences.
type Reporter struct {
	store     Store
	logger    zerolog.Logger
	flushRows int

	mu struct {
		sync.Mutex
		tables    map[string]*tableBuffer
		locations []string
		err       error
	}
}

type tableBuffer struct {
	buf  bytes.Buffer
	rows int
	part int
}

var _ inconsistency.Reporter = (*Reporter)(nil)

func NewReporter(store Store, logger zerolog.Logger, flushRows int) *Reporter {
	if flushRows <= 0 {
		flushRows = DefaultFlushRows
	}
	r := &Reporter{store: store, logger: logger, flushRows: flushRows}
	r.mu.tables = make(map[string]*tableBuffer)
	return r
}

func (r *Reporter) Report(obj inconsistency.ReportableObject) {
	d, ok := obj.(inconsistency.Difference)
	if !ok {
		return
	}
	line, err := json.Marshal(inconsistency.ToRecord(d))
	if err != nil {
		r.logger.Err(err).Msg("error encoding difference")
		return
	}
	table := d.Ref().Table

	r.mu.Lock()
	defer r.mu.Unlock()
	tb, ok := r.mu.tables[table]
	if !ok {
		tb = &tableBuffer{}
		r.mu.tables[table] = tb
	}
	tb.buf.Write(line)
	tb.buf.WriteByte('\n')
	tb.rows++
	if tb.rows >= r.flushRows {
		r.flushLocked(context.Background(), table, tb)
	}
}

// flushLocked writes the table's buffer as its next part.
func (r *Reporter) flushLocked(ctx context.Context, table string, tb *tableBuffer) {
	if tb.rows == 0 {
		return
	}
	loc, err := r.store.CreateFromReader(ctx, bytes.NewReader(tb.buf.Bytes()), table, tb.part)
	if err != nil {
		err = errors.Wrapf(err, "error writing report part %d of %s", tb.part, table)
		r.logger.Err(err).Msg("error persisting differences")
		r.mu.err = errors.CombineErrors(r.mu.err, err)
	} else {
		r.logger.Debug().Str("table", table).Str("location", loc).Int("rows", tb.rows).Msg("wrote report part")
		r.mu.locations = append(r.mu.locations, loc)
	}
	tb.buf.Reset()
	tb.rows = 0
	tb.part++
}

// Flush writes every buffered difference.
func (r *Reporter) Flush(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	tables := make([]string, 0, len(r.mu.tables))
	for t := range r.mu.tables {
		tables = append(tables, t)
	}
	sort.Strings(tables)
	for _, t := range tables {
		r.flushLocked(ctx, t, r.mu.tables[t])
	}
	return r.mu.err
}

// FlushEvery flushes on every tick of interval until ctx is done. It returns
// at once if interval is not positive, leaving the flush to Close.
func (r *Reporter) FlushEvery(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := r.Flush(ctx); err != nil {
				r.logger.Err(err).Msg("error flushing report")
			}
		}
	}
}

func (r *Reporter) Close() {
	_ = r.Flush(context.Background())
}

// Locations lists every part written so far.
func (r *Reporter) Locations() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.mu.locations...)
}
