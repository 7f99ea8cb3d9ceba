package cmdutil

import (
	"os"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/recon/tableconfig"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const envPrefix = "RECON"

var configPath string

func RegisterConfigFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().StringVar(
		&configPath,
		"config",
		"recon.yaml",
		"path of the table configuration file (yaml, json or toml)",
	)
}

// LoadEnv reads a .env file from the working directory, if present, then
// sets every flag not given on the command line from its RECON_ environment
// variable, e.g. --log-level from RECON_LOG_LEVEL.
func LoadEnv(cmd *cobra.Command) error {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "error loading .env")
	}
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	var err error
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if f.Changed || !v.IsSet(f.Name) {
			return
		}
		if setErr := cmd.Flags().Set(f.Name, v.GetString(f.Name)); setErr != nil {
			err = errors.CombineErrors(err, errors.Wrapf(setErr, "invalid value for %s from environment", f.Name))
		}
	})
	return err
}

func LoadTableConfig() (*tableconfig.Static, error) {
	return tableconfig.Load(configPath)
}
