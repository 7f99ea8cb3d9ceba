package cmdutil

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/recon/dbconn"
	"github.com/spf13/cobra"
)

type dbConnConfig struct {
	primary   string
	secondary string
}

var dbConnCfg = dbConnConfig{}

func RegisterDBConnFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().StringVar(
		&dbConnCfg.primary,
		"primary",
		"",
		"URL of the primary database (postgres://, mysql://, oracle:// or clickhouse://)",
	)
	cmd.PersistentFlags().StringVar(
		&dbConnCfg.secondary,
		"secondary",
		"",
		"URL of the secondary database",
	)
}

// LoadDBConns connects to both databases. Either flag may come from the
// environment, so they are checked here rather than marked required.
func LoadDBConns(ctx context.Context) (dbconn.OrderedConns, error) {
	if dbConnCfg.primary == "" || dbConnCfg.secondary == "" {
		return dbconn.OrderedConns{}, errors.Newf("--primary and --secondary must both be set")
	}
	primary, err := dbconn.Connect(ctx, "primary", dbConnCfg.primary)
	if err != nil {
		return dbconn.OrderedConns{}, err
	}
	secondary, err := dbconn.Connect(ctx, "secondary", dbConnCfg.secondary)
	if err != nil {
		return dbconn.OrderedConns{}, errors.CombineErrors(err, primary.Close(ctx))
	}
	return dbconn.OrderedConns{primary, secondary}, nil
}
