package cli

import (
	"fmt"
	"strconv"

	"github.com/compose-network/fuse-deployer/internal/chains"
	"github.com/spf13/cobra"
)

var ChainsCMD = &cobra.Command{
	Use:   "chains",
	Short: "Inspect the embedded per-chain constant tables",
}

type chainSummary struct {
	ID          int64               `yaml:"id"`
	Name        string              `yaml:"name"`
	Version     int                 `yaml:"version"`
	Unconfirmed bool                `yaml:"unconfirmed,omitempty"`
	Local       bool                `yaml:"local,omitempty"`
	NativeToken string              `yaml:"native-token"`
	Oracles     []chains.OracleType `yaml:"oracles"`
	Assets      []string            `yaml:"assets,omitempty"`
}

var chainsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the chains that can be deployed to",
	RunE: func(cmd *cobra.Command, args []string) error {
		registry, err := chains.Load()
		if err != nil {
			return err
		}

		summaries := make([]chainSummary, 0, len(registry.IDs()))
		for _, id := range registry.IDs() {
			chain, _ := registry.Lookup(id)
			s := chainSummary{
				ID:          chain.ID,
				Name:        chain.Name,
				Version:     chain.Version,
				Unconfirmed: chain.Unconfirmed,
				Local:       chain.Local,
				NativeToken: chain.NativeToken.Symbol,
				Oracles:     chain.SupportedOracles,
			}
			for _, a := range chain.Assets {
				s.Assets = append(s.Assets, a.Symbol)
			}
			summaries = append(summaries, s)
		}

		return printYAML(cmd, summaries)
	},
}

var chainsShowCmd = &cobra.Command{
	Use:   "show <chain-id>",
	Short: "Print the full constant table of a chain",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid chain id %q: %w", args[0], err)
		}

		chain, ok := chains.MustLoad().Lookup(id)
		if !ok {
			return fmt.Errorf("no constant table for chain %d", id)
		}

		return printYAML(cmd, chain)
	},
}

func init() {
	ChainsCMD.AddCommand(chainsListCmd)
	ChainsCMD.AddCommand(chainsShowCmd)
}
