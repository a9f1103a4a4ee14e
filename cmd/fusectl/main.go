package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/compose-network/fuse-deployer/configs"
	"github.com/compose-network/fuse-deployer/internal/cli"
	"github.com/compose-network/fuse-deployer/internal/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	appName   = "fusectl"
	envPrefix = "FUSECTL"
)

var rootCmd = &cobra.Command{
	Use:           appName,
	Short:         "CLI for deploying and exercising Fuse lending pools",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logger.InitializeWith(os.Stderr, slog.LevelInfo, "json")

		if err := configs.SetDefaults(viper.GetViper()); err != nil {
			return err
		}

		viper.SetConfigName("config")
		viper.SetConfigType("yaml")

		if execPath, err := os.Executable(); err == nil {
			viper.AddConfigPath(filepath.Dir(execPath))
		}
		viper.AddConfigPath(".")
		viper.AddConfigPath("./configs")

		viper.SetEnvPrefix(envPrefix)
		viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
		viper.AutomaticEnv()

		// The embedded defaults cover every key, a config file is optional.
		if err := viper.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				const errMsg = "error reading config file"
				slog.With("err", err.Error()).Error(errMsg)
				return errors.Join(err, errors.New(errMsg))
			}
			slog.Debug("no config file found, using defaults, environment and flags")
		}

		if err := viper.Unmarshal(&configs.Values); err != nil {
			const errMsg = "unable to decode application config"
			slog.With("err", err.Error()).Error(errMsg)
			return errors.Join(err, errors.New(errMsg))
		}

		level, err := logger.ParseLevel(configs.Values.Log.Level)
		if err != nil {
			return err
		}
		logger.InitializeWith(os.Stderr, level, configs.Values.Log.Format)

		slog.With("config_file", viper.ConfigFileUsed()).
			With("rpc_url", configs.Values.Network.RPCURL).
			With("store", configs.Values.Store.Driver).
			Debug("configuration loaded")

		return nil
	},
}

func main() {
	if err := cli.DeclarePersistentFlags(rootCmd); err != nil {
		panic(err)
	}

	rootCmd.AddCommand(cli.DeployCMD)
	rootCmd.AddCommand(cli.CompileCMD)
	rootCmd.AddCommand(cli.ChainsCMD)
	rootCmd.AddCommand(cli.PoolCMD)
	rootCmd.AddCommand(cli.RewardsCMD)
	rootCmd.AddCommand(cli.DevnetCMD)
	rootCmd.AddCommand(cli.ScenarioCMD)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		slog.With("err", err.Error()).Error("command failed")
		stop()
		os.Exit(1)
	}
}
