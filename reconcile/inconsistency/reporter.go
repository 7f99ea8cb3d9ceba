package inconsistency

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

// Reporter receives every difference found, once per difference, plus status
// updates. Implementations must be safe for concurrent use as tables are
// compared in parallel.
type Reporter interface {
	Report(obj ReportableObject)
	Close()
}

type CombinedReporter struct {
	Reporters []Reporter
}

func (c CombinedReporter) Report(obj ReportableObject) {
	for _, r := range c.Reporters {
		r.Report(obj)
	}
}

func (c CombinedReporter) Close() {
	for _, r := range c.Reporters {
		r.Close()
	}
}

type StatusReport struct {
	Info string
}

// LogReporter reports to `zerolog`.
type LogReporter struct {
	zerolog.Logger
}

func (l LogReporter) Report(obj ReportableObject) {
	switch obj := obj.(type) {
	case StatusReport:
		l.Info().Msg(obj.Info)
	case MissingOnSecondary:
		l.Warn().
			Str("table_name", obj.Table).
			Str("id", obj.ID.String()).
			Msgf("row missing on secondary")
	case MissingOnPrimary:
		l.Warn().
			Str("table_name", obj.Table).
			Str("id", obj.ID.String()).
			Msgf("row missing on primary")
	case FieldMismatch:
		l.Warn().
			Str("table_name", obj.Table).
			Str("id", obj.ID.String()).
			Str("field", obj.Field).
			Dict("values", zerolog.Dict().
				Str("primary", obj.PrimaryValue.String()).
				Str("secondary", obj.SecondaryValue.String()),
			).
			Msgf("mismatching field value")
	case DuplicateKey:
		l.Warn().
			Str("table_name", obj.Table).
			Str("id", obj.ID.String()).
			Stringer("side", obj.Side).
			Msgf("duplicate identity value within page")
	default:
		l.Error().
			Str("type", fmt.Sprintf("%T", obj)).
			Msgf("unknown object type")
	}
}

func (l LogReporter) Close() {
}

// BufferedReporter keeps every reported difference in memory. It is meant for
// small tables and tests.
type BufferedReporter struct {
	mu struct {
		sync.Mutex
		diffs  []Difference
		status []string
	}
}

func (b *BufferedReporter) Report(obj ReportableObject) {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch obj := obj.(type) {
	case Difference:
		b.mu.diffs = append(b.mu.diffs, obj)
	case StatusReport:
		b.mu.status = append(b.mu.status, obj.Info)
	}
}

func (b *BufferedReporter) Close() {
}

// Differences returns a copy of the differences reported so far.
func (b *BufferedReporter) Differences() []Difference {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Difference(nil), b.mu.diffs...)
}

// Descriptions returns Describe for every difference reported so far, or nil
// if there are none.
func (b *BufferedReporter) Descriptions() []string {
	var ret []string
	for _, d := range b.Differences() {
		ret = append(ret, Describe(d))
	}
	return ret
}

// Status returns the status messages reported so far.
func (b *BufferedReporter) Status() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.mu.status...)
}
