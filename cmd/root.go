package cmd

import (
	"fmt"
	"os"

	"github.com/cockroachdb/recon/cmd/compare"
	"github.com/cockroachdb/recon/cmd/internal/cmdutil"
	"github.com/cockroachdb/recon/cmd/serve"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "recon",
	Short: "Reconcile table rows between a primary and a secondary database",
	Long: `recon pages through configured tables on two databases in identity order and reports
rows missing on either side, mismatching field values and duplicate identities.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return cmdutil.LoadEnv(cmd)
	},
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(compare.Command())
	rootCmd.AddCommand(serve.Command())
}
