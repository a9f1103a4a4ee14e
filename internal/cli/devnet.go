package cli

import (
	"context"
	"log/slog"

	"github.com/compose-network/fuse-deployer/configs"
	"github.com/compose-network/fuse-deployer/internal/devnet"
	"github.com/spf13/cobra"
)

var DevnetCMD = &cobra.Command{
	Use:   "devnet",
	Short: "Run a local anvil node in Docker",
}

var (
	advanceDays uint64
	fundAccount string
	fundWei     string
)

var devnetUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Start the devnet container and wait for its RPC",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDevnet(cmd.Context(), func(ctx context.Context, d *devnet.Devnet) error {
			url, err := d.Up(ctx)
			if err != nil {
				return err
			}
			slog.With("rpc_url", url).Info("devnet is up")
			return nil
		})
	},
}

var devnetDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Stop and remove the devnet container",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDevnet(cmd.Context(), func(ctx context.Context, d *devnet.Devnet) error {
			return d.Down(ctx)
		})
	},
}

var devnetResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reset the node at network.rpc-url to its genesis state",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRPC(cmd.Context(), func(ctx context.Context, r *devnet.RPC) error {
			return r.Reset(ctx)
		})
	},
}

var devnetAdvanceCmd = &cobra.Command{
	Use:   "advance",
	Short: "Move block time forward by whole days and mine a block",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRPC(cmd.Context(), func(ctx context.Context, r *devnet.RPC) error {
			return r.AdvanceDays(ctx, advanceDays)
		})
	},
}

var devnetFundCmd = &cobra.Command{
	Use:   "fund",
	Short: "Set the native balance of an account",
	RunE: func(cmd *cobra.Command, args []string) error {
		wei, err := parseAmount("wei", fundWei)
		if err != nil {
			return err
		}
		account, err := resolveAccount(configs.Values, fundAccount)
		if err != nil {
			return err
		}

		return withRPC(cmd.Context(), func(ctx context.Context, r *devnet.RPC) error {
			return r.SetBalance(ctx, account, wei)
		})
	},
}

func withDevnet(ctx context.Context, fn func(ctx context.Context, d *devnet.Devnet) error) error {
	docker, err := devnet.NewDocker()
	if err != nil {
		return err
	}
	defer docker.Close()

	d, err := devnet.New(docker, configs.Values.Devnet)
	if err != nil {
		return err
	}

	return fn(ctx, d)
}

func withRPC(ctx context.Context, fn func(ctx context.Context, r *devnet.RPC) error) error {
	r, err := devnet.DialRPC(ctx, configs.Values.Network.RPCURL)
	if err != nil {
		return err
	}
	defer r.Close()

	return fn(ctx, r)
}

func init() {
	devnetAdvanceCmd.Flags().Uint64Var(&advanceDays, "days", 1, "Days to advance")
	devnetFundCmd.Flags().StringVar(&fundAccount, "account", string(configs.AccountDeployer), "Account name or address to fund")
	devnetFundCmd.Flags().StringVar(&fundWei, "wei", "100000000000000000000000", "Balance in wei")

	DevnetCMD.AddCommand(devnetUpCmd)
	DevnetCMD.AddCommand(devnetDownCmd)
	DevnetCMD.AddCommand(devnetResetCmd)
	DevnetCMD.AddCommand(devnetAdvanceCmd)
	DevnetCMD.AddCommand(devnetFundCmd)
}
