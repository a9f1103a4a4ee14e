package cli

import (
	"context"
	"fmt"
	"math/big"
	"slices"
	"strings"

	"github.com/compose-network/fuse-deployer/configs"
	"github.com/compose-network/fuse-deployer/internal/evm"
	"github.com/compose-network/fuse-deployer/internal/pool"
	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
)

var PoolCMD = &cobra.Command{
	Use:   "pool",
	Short: "Create pools and list markets in them",
}

var (
	poolAccount string

	createParams     pool.CreateParams
	createWhitelist  []string
	assetComptroller string
	assetSymbols     []string
	supplySymbol     string
	supplyAmount     string
)

var poolCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a pool and accept its admin role",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withPools(cmd.Context(), func(ctx context.Context, rt *runtime, sdk *pool.SDK) error {
			params := createParams
			for _, name := range createWhitelist {
				addr, err := accountAddress(rt.cfg, configs.AccountName(name))
				if err != nil {
					return err
				}
				params.Whitelist = append(params.Whitelist, addr)
			}

			p, err := sdk.DeployPool(ctx, params)
			if err != nil {
				return err
			}

			return printYAML(cmd, map[string]any{
				"name":        p.Name,
				"comptroller": p.Comptroller,
				"index":       p.Index.String(),
				"state":       p.State().String(),
			})
		})
	},
}

var poolDeployAssetsCmd = &cobra.Command{
	Use:   "deploy-assets",
	Short: "List the chain's asset templates as markets of a pool",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withPools(cmd.Context(), func(ctx context.Context, rt *runtime, sdk *pool.SDK) error {
			p, err := loadPool(ctx, sdk)
			if err != nil {
				return err
			}

			deployed, err := rt.deployed(ctx)
			if err != nil {
				return err
			}
			assets, err := pool.AssetsFor(rt.chain, p.Comptroller, sdk.Contracts().InterestRateModel, deployed)
			if err != nil {
				return err
			}
			if assets, err = selectAssets(assets, assetSymbols); err != nil {
				return err
			}

			listed, err := p.DeployAssets(ctx, assets)
			if err != nil {
				return err
			}

			markets := make(map[string]common.Address, len(listed))
			for _, a := range listed {
				markets[a.Symbol] = a.Market
			}
			return printYAML(cmd, markets)
		})
	},
}

var poolSupplyCmd = &cobra.Command{
	Use:   "supply",
	Short: "Supply an amount of underlying to one market of a pool",
	RunE: func(cmd *cobra.Command, args []string) error {
		amount, ok := new(big.Int).SetString(supplyAmount, 10)
		if !ok {
			return fmt.Errorf("invalid amount %q, expected an integer in base units", supplyAmount)
		}

		return withPools(cmd.Context(), func(ctx context.Context, rt *runtime, sdk *pool.SDK) error {
			p, err := loadPool(ctx, sdk)
			if err != nil {
				return err
			}

			summary, err := p.Summary(ctx)
			if err != nil {
				return err
			}
			markets, err := p.Markets(ctx)
			if err != nil {
				return err
			}

			i := slices.IndexFunc(summary.Symbols, func(s string) bool { return strings.EqualFold(s, supplySymbol) })
			if i < 0 || i >= len(markets) {
				return evm.Precondition("pool %s has no %s market", p.Comptroller.Hex(), supplySymbol)
			}

			return p.Supply(ctx, pool.DeployedAsset{
				Symbol:     summary.Symbols[i],
				Underlying: summary.Underlyings[i],
				Market:     markets[i],
			}, amount)
		})
	},
}

var poolSummaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Print the lens summary of a pool",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withPools(cmd.Context(), func(ctx context.Context, rt *runtime, sdk *pool.SDK) error {
			p, err := loadPool(ctx, sdk)
			if err != nil {
				return err
			}

			s, err := p.Summary(ctx)
			if err != nil {
				return err
			}

			return printYAML(cmd, map[string]any{
				"name":              p.Name,
				"state":             p.State().String(),
				"total-supply":      s.TotalSupply.String(),
				"total-borrow":      s.TotalBorrow.String(),
				"underlyings":       s.Underlyings,
				"symbols":           s.Symbols,
				"whitelisted-admin": s.WhitelistedAdmin,
			})
		})
	},
}

func withPools(ctx context.Context, fn func(ctx context.Context, rt *runtime, sdk *pool.SDK) error) error {
	rt, err := openRuntime(ctx, configs.Values, configs.AccountName(poolAccount))
	if err != nil {
		return err
	}
	defer rt.Close()

	deployed, err := rt.deployed(ctx)
	if err != nil {
		return err
	}
	poolContracts, err := pool.ContractsFrom(deployed)
	if err != nil {
		return err
	}

	return fn(ctx, rt, pool.New(rt.client, poolContracts, rt.artifacts))
}

func loadPool(ctx context.Context, sdk *pool.SDK) (*pool.Pool, error) {
	if !common.IsHexAddress(assetComptroller) {
		return nil, fmt.Errorf("invalid comptroller address %q", assetComptroller)
	}
	return sdk.LoadPool(ctx, common.HexToAddress(assetComptroller))
}

func selectAssets(assets []pool.AssetConfig, symbols []string) ([]pool.AssetConfig, error) {
	if len(symbols) == 0 {
		return assets, nil
	}

	selected := make([]pool.AssetConfig, 0, len(symbols))
	for _, symbol := range symbols {
		i := slices.IndexFunc(assets, func(a pool.AssetConfig) bool { return strings.EqualFold(a.Symbol, symbol) })
		if i < 0 {
			return nil, evm.Precondition("no asset template for symbol %s", symbol)
		}
		selected = append(selected, assets[i])
	}
	return selected, nil
}

func accountAddress(cfg configs.Config, name configs.AccountName) (common.Address, error) {
	key, err := cfg.PrivateKey(name)
	if err != nil {
		return common.Address{}, err
	}
	return evm.AddressFromPrivateKey(key)
}

func init() {
	PoolCMD.PersistentFlags().StringVar(&poolAccount, "account", string(configs.AccountDeployer), "Configured account that signs pool transactions")

	poolCreateCmd.Flags().StringVar(&createParams.Name, "name", "", "Pool name")
	poolCreateCmd.Flags().Float64Var(&createParams.CloseFactor, "close-factor", 50, "Close factor in percent")
	poolCreateCmd.Flags().Float64Var(&createParams.LiquidationIncentive, "liquidation-incentive", 8, "Liquidation bonus in percent on top of the repaid amount")
	poolCreateCmd.Flags().BoolVar(&createParams.EnforceWhitelist, "enforce-whitelist", false, "Restrict supplying to whitelisted accounts")
	poolCreateCmd.Flags().StringSliceVar(&createWhitelist, "whitelist", nil, "Configured account names allowed to supply")
	_ = poolCreateCmd.MarkFlagRequired("name")

	for _, c := range []*cobra.Command{poolDeployAssetsCmd, poolSupplyCmd, poolSummaryCmd} {
		c.Flags().StringVar(&assetComptroller, "comptroller", "", "Comptroller (unitroller) address of the pool")
		_ = c.MarkFlagRequired("comptroller")
	}
	poolDeployAssetsCmd.Flags().StringSliceVar(&assetSymbols, "symbols", nil, "Asset symbols to list, all templates when empty")

	poolSupplyCmd.Flags().StringVar(&supplySymbol, "symbol", "", "Symbol of the market to supply to")
	poolSupplyCmd.Flags().StringVar(&supplyAmount, "amount", "", "Amount in base units of the underlying")
	_ = poolSupplyCmd.MarkFlagRequired("symbol")
	_ = poolSupplyCmd.MarkFlagRequired("amount")

	PoolCMD.AddCommand(poolCreateCmd)
	PoolCMD.AddCommand(poolDeployAssetsCmd)
	PoolCMD.AddCommand(poolSupplyCmd)
	PoolCMD.AddCommand(poolSummaryCmd)
}
