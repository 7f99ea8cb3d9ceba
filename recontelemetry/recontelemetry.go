// Package recontelemetry counts feature usage on CockroachDB sides of a run
// using crdb_internal.increment_feature_counter.
package recontelemetry

import (
	"context"
	"crypto/sha256"
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/recon/dbconn"
	"github.com/rs/zerolog"
)

// Features returns the counters describing a run between conns.
func Features(conns dbconn.OrderedConns, command string) []string {
	ret := []string{"recon." + command}
	for _, c := range conns {
		if c == nil {
			continue
		}
		ret = append(ret, fmt.Sprintf("recon.%s.%s", command, strings.ToLower(strings.ReplaceAll(c.Dialect(), " ", "_"))))
	}
	return ret
}

// ReportAsync reports telemetry in the background.
func ReportAsync(ctx context.Context, logger zerolog.Logger, conns dbconn.OrderedConns, telemetry ...string) {
	go func() {
		if err := Report(ctx, conns, telemetry...); err != nil {
			logger.Warn().Err(err).Strs("telemetry", telemetry).Msgf("error reporting telemetry")
			return
		}
		logger.Trace().Strs("telemetry", telemetry).Msgf("reported telemetry")
	}()
}

// Report increments the counters on every CockroachDB connection. Other
// products are skipped.
func Report(ctx context.Context, conns dbconn.OrderedConns, telemetry ...string) error {
	if len(telemetry) == 0 {
		return nil
	}
	q, args := query(telemetry)
	var err error
	for _, c := range conns {
		pgConn, ok := c.(*dbconn.PGConn)
		if !ok || !pgConn.IsCockroach() {
			continue
		}
		if _, execErr := pgConn.Exec(ctx, q, args...); execErr != nil {
			err = errors.CombineErrors(err, errors.Wrapf(execErr, "error reporting telemetry to %s", c.ID()))
		}
	}
	return err
}

func query(telemetry []string) (string, []any) {
	var sb strings.Builder
	args := make([]any, len(telemetry))
	sb.WriteString("SELECT ")
	for i := range telemetry {
		if i > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "crdb_internal.increment_feature_counter($%d)", i+1)
		args[i] = telemetry[i]
	}
	return sb.String(), args
}

// TelemetryKey is the name a feature is stored under in crdb_internal.feature_usage.
func TelemetryKey(feature string) string {
	sum := sha256.Sum256([]byte(feature))
	return fmt.Sprintf("sql.hashed.%x", sum)
}
