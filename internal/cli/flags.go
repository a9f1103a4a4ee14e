package cli

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// flagDef defines a command-line flag bound to a viper configuration key.
type (
	flagType interface {
		string | int | bool
	}

	flagDef[T flagType] struct {
		name         string
		viperKey     string
		defaultValue T
		description  string
	}
)

// Defaults come from the embedded example config, so flags only override.
var (
	stringFlags = []flagDef[string]{
		{"rpc-url", "network.rpc-url", "", "JSON-RPC endpoint of the target chain"},
		{"log-level", "log.level", "", "Log level (debug, info, warn, error)"},
		{"log-format", "log.format", "", "Log format (json or text)"},
		{"store-driver", "store.driver", "", "Deployment store driver (json or postgres)"},
		{"store-path", "store.path", "", "Directory of the json deployment store"},
		{"store-dsn", "store.dsn", "", "Postgres DSN of the deployment store"},
		{"artifacts-dir", "artifacts.dir", "", "Directory holding the compiled contracts.json"},
		{"metrics-listen", "metrics.listen", "", "Address to serve Prometheus metrics on, empty disables"},
	}

	intFlags = []flagDef[int]{
		{"chain-id", "network.chain-id", 0, "Chain id of the target chain; 0 asks the node"},
	}

	boolFlags = []flagDef[bool]{}
)

// DeclarePersistentFlags declares the global flags on the root command and
// binds them to viper.
func DeclarePersistentFlags(root *cobra.Command) error {
	if err := declareFlags(root, stringFlags); err != nil {
		return err
	}
	if err := declareFlags(root, intFlags); err != nil {
		return err
	}
	return declareFlags(root, boolFlags)
}

func declareFlags[T flagType](cmd *cobra.Command, flags []flagDef[T]) error {
	for _, flag := range flags {
		if err := declareFlag(cmd, flag.name, flag.viperKey, flag.defaultValue, flag.description); err != nil {
			return err
		}
	}
	return nil
}

// declareFlag declares a single persistent flag. Unset flags do not shadow
// values from the config file.
func declareFlag[T flagType](cmd *cobra.Command, flagName, viperKey string, defaultValue T, description string) error {
	var zero T
	switch any(zero).(type) {
	case string:
		cmd.PersistentFlags().String(flagName, any(defaultValue).(string), description)
	case int:
		cmd.PersistentFlags().Int(flagName, any(defaultValue).(int), description)
	case bool:
		cmd.PersistentFlags().Bool(flagName, any(defaultValue).(bool), description)
	}
	return viper.BindPFlag(viperKey, cmd.PersistentFlags().Lookup(flagName))
}
