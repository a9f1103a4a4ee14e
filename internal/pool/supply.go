package pool

import (
	"context"
	"fmt"
	"math/big"

	"github.com/compose-network/fuse-deployer/internal/contracts"
	"github.com/compose-network/fuse-deployer/internal/evm"
	"github.com/ethereum/go-ethereum/common"
)

// Supply deposits amount into a market from the SDK account. ERC20 markets
// are approved first and minted behind the dry-run guard; the native market
// is minted by value.
func (p *Pool) Supply(ctx context.Context, asset DeployedAsset, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return evm.Precondition("supply amount must be positive")
	}

	client := p.sdk.client
	if asset.Underlying == (common.Address{}) {
		data, err := contracts.FuncMintNative.EncodeArgs()
		if err != nil {
			return err
		}
		if _, err := client.Send(ctx, evm.Operation(contracts.FuncMintNative), &asset.Market, amount, data); err != nil {
			return fmt.Errorf("failed to supply %s to %s market: %w", amount, asset.Symbol, err)
		}
		return nil
	}

	if _, err := client.Transact(ctx, asset.Underlying, contracts.FuncApprove, asset.Market, amount); err != nil {
		return fmt.Errorf("failed to approve %s market: %w", asset.Symbol, err)
	}
	if _, err := client.TransactChecked(ctx, asset.Market, contracts.FuncMintMarket, amount); err != nil {
		return fmt.Errorf("failed to supply %s to %s market: %w", amount, asset.Symbol, err)
	}

	p.sdk.logger.With("pool", p.Name).With("symbol", asset.Symbol).With("amount", amount.String()).Info("supplied")
	return nil
}
