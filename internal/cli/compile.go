package cli

import (
	"github.com/compose-network/fuse-deployer/configs"
	"github.com/compose-network/fuse-deployer/internal/contracts"
	"github.com/spf13/cobra"
)

var CompileCMD = &cobra.Command{
	Use:   "compile",
	Short: "Compile the protocol contracts with forge into the artifacts directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := configs.Values.Artifacts

		return contracts.NewCompiler(cfg.ContractsRoot, cfg.Dir).Compile(cmd.Context(), cfg.Compile)
	},
}
