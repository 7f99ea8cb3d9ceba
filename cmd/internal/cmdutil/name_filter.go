package cmdutil

import (
	"github.com/cockroachdb/recon/tableconfig"
	"github.com/spf13/cobra"
)

var tableFilter = tableconfig.DefaultFilterConfig()

func RegisterNameFilterFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().StringVar(
		&tableFilter.TableFilter,
		"table-filter",
		tableFilter.TableFilter,
		"POSIX regexp filter for tables to reconcile",
	)
	cmd.PersistentFlags().StringVar(
		&tableFilter.SchemaFilter,
		"schema-filter",
		tableFilter.SchemaFilter,
		"POSIX regexp filter for schemas to reconcile",
	)
}

func TableFilter() tableconfig.FilterConfig {
	return tableFilter
}
