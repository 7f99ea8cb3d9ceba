package pagefetch

import (
	"context"

	"github.com/cockroachdb/recon/reconcile/reconbase"
	"github.com/cockroachdb/recon/retry"
	"github.com/rs/zerolog"
)

// RetryingFetcher retries failed pages with exponential backoff. The last
// error is returned once the retries run out.
type RetryingFetcher struct {
	Fetcher  Fetcher
	Settings retry.Settings
	Logger   zerolog.Logger
}

var _ Fetcher = RetryingFetcher{}

func (f RetryingFetcher) Fetch(
	ctx context.Context, src Source, spec reconbase.TableSpec, page Page,
) ([]reconbase.Row, error) {
	var ret []reconbase.Row
	err := retry.Do(
		ctx,
		f.Settings,
		func(ctx context.Context) error {
			var err error
			ret, err = f.Fetcher.Fetch(ctx, src, spec, page)
			return err
		},
		func(r *retry.Retry, err error) {
			f.Logger.Warn().
				Err(err).
				Str("table", spec.Name).
				Stringer("side", src.Side).
				Int("page", page.Index).
				Int("attempt", r.Iteration).
				Time("next_retry", r.NextRetry).
				Msg("retrying page fetch")
		},
	)
	return ret, err
}
