// Package pool creates isolated lending pools through FusePoolDirectory and
// lists markets in them.
package pool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/compose-network/fuse-deployer/internal/contracts"
	"github.com/compose-network/fuse-deployer/internal/evm"
	"github.com/compose-network/fuse-deployer/internal/logger"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

type State int

const (
	StateUninitialized State = iota
	// StatePending means deployPool was sent but its receipt is not in.
	StatePending
	// StateCreated means the pool exists with this account as pending admin.
	StateCreated
	// StateReady means this account accepted admin and can list markets.
	StateReady
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateCreated:
		return "created"
	case StateReady:
		return "ready"
	default:
		return "uninitialized"
	}
}

var ErrAddressMismatch = errors.New("computed pool address does not match the directory")

type (
	// Contracts are the protocol infrastructure a pool is built from.
	Contracts struct {
		Directory         common.Address
		Comptroller       common.Address
		FeeDistributor    common.Address
		Lens              common.Address
		PriceOracle       common.Address
		CErc20Delegate    common.Address
		CEtherDelegate    common.Address
		InterestRateModel common.Address
	}

	SDK struct {
		client    *evm.Client
		contracts Contracts
		artifacts contracts.Set
		logger    *slog.Logger
	}

	Pool struct {
		sdk *SDK

		Name        string
		Creator     common.Address
		Comptroller common.Address
		Index       *big.Int
		Receipt     *types.Receipt

		params CreateParams
		state  State
	}

	Summary struct {
		TotalSupply      *big.Int
		TotalBorrow      *big.Int
		Underlyings      []common.Address
		Symbols          []string
		WhitelistedAdmin bool
	}
)

// ContractsFrom picks the pool infrastructure out of a deployment keyed by
// contract name.
func ContractsFrom(deployed map[string]common.Address) (Contracts, error) {
	var missing []string
	get := func(name contracts.Name) common.Address {
		addr, ok := deployed[string(name)]
		if !ok {
			missing = append(missing, string(name))
		}
		return addr
	}

	c := Contracts{
		Directory:         get(contracts.FusePoolDirectory),
		Comptroller:       get(contracts.Comptroller),
		FeeDistributor:    get(contracts.FuseFeeDistributor),
		Lens:              get(contracts.FusePoolLens),
		PriceOracle:       get(contracts.MasterPriceOracle),
		CErc20Delegate:    get(contracts.CErc20Delegate),
		CEtherDelegate:    get(contracts.CEtherDelegate),
		InterestRateModel: get(contracts.JumpRateModel),
	}
	if len(missing) > 0 {
		return Contracts{}, evm.Precondition("deployment is missing %v", missing)
	}

	return c, nil
}

// New returns an SDK signing with client. artifacts must hold the Unitroller
// creation code the directory deploys, used to derive pool addresses locally.
func New(client *evm.Client, c Contracts, artifacts contracts.Set) *SDK {
	return &SDK{
		client:    client,
		contracts: c,
		artifacts: artifacts,
		logger:    logger.Named("pool_sdk"),
	}
}

func (s *SDK) Contracts() Contracts {
	return s.contracts
}

// DeployPool creates a pool, accepts admin and applies the supplier whitelist.
func (s *SDK) DeployPool(ctx context.Context, params CreateParams) (*Pool, error) {
	p, err := s.CreatePool(ctx, params)
	if err != nil {
		return p, err
	}
	if err := p.AcceptAdmin(ctx); err != nil {
		return p, err
	}
	if err := p.ApplyWhitelist(ctx); err != nil {
		return p, err
	}
	return p, nil
}

// CreatePool sends deployPool and checks the locally derived comptroller
// address against what the directory recorded.
func (s *SDK) CreatePool(ctx context.Context, params CreateParams) (*Pool, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	oracle := params.PriceOracle
	if oracle == (common.Address{}) {
		oracle = s.contracts.PriceOracle
	}
	if oracle == (common.Address{}) {
		return nil, evm.Precondition("no price oracle for pool %q", params.Name)
	}
	params.PriceOracle = oracle

	ctorData, err := contracts.EncodeConstructor(contracts.CtorUnitroller, s.contracts.FeeDistributor)
	if err != nil {
		return nil, err
	}
	initCode, err := s.artifacts.InitCode(contracts.Unitroller, ctorData)
	if err != nil {
		return nil, err
	}

	closeFactor, incentive := params.mantissas()
	p := &Pool{
		sdk:     s,
		Name:    params.Name,
		Creator: s.client.From(),
		params:  params,
		state:   StatePending,
	}

	receipt, err := s.client.Transact(ctx, s.contracts.Directory, contracts.FuncDeployPool,
		params.Name, s.contracts.Comptroller, ctorData, params.EnforceWhitelist, closeFactor, incentive, oracle)
	p.Receipt = receipt
	if err != nil {
		return p, fmt.Errorf("failed to deploy pool %s: %w", params, err)
	}

	p.Comptroller = ComputeAddress(s.contracts.Directory, p.Creator, params.Name, receipt.BlockNumber, initCode)

	info, index, err := s.findPool(ctx, p.Creator, params.Name, receipt.BlockNumber)
	if err != nil {
		return p, err
	}
	if info.Comptroller != p.Comptroller {
		return p, fmt.Errorf("%w: computed %s, directory has %s", ErrAddressMismatch, p.Comptroller.Hex(), info.Comptroller.Hex())
	}
	p.Index = index
	p.state = StateCreated

	s.logger.
		With("pool", p.Name).
		With("comptroller", p.Comptroller.Hex()).
		With("index", index).
		Info("pool created")

	return p, nil
}

// LoadPool attaches to an existing comptroller administered by this account.
// The state is Ready when this account is admin and Created when it is the
// pending admin. Any other pool is rejected before a transaction is sent.
func (s *SDK) LoadPool(ctx context.Context, comptroller common.Address) (*Pool, error) {
	admin, err := evm.CallOne[common.Address](ctx, s.client, comptroller, contracts.FuncAdmin)
	if err != nil {
		return nil, fmt.Errorf("failed to load pool %s: %w", comptroller.Hex(), err)
	}

	p := &Pool{sdk: s, Comptroller: comptroller, state: StateReady}
	if admin != s.client.From() {
		pending, err := evm.CallOne[common.Address](ctx, s.client, comptroller, contracts.FuncPendingAdmin)
		if err != nil {
			return nil, fmt.Errorf("failed to load pool %s: %w", comptroller.Hex(), err)
		}
		if pending != s.client.From() {
			return nil, evm.Precondition("pool %s is administered by %s, not %s",
				comptroller.Hex(), admin.Hex(), s.client.From().Hex())
		}
		p.state = StateCreated
	}

	pools, err := evm.CallOne[[]contracts.PoolInfo](ctx, s.client, s.contracts.Directory, contracts.FuncGetAllPools)
	if err != nil {
		return nil, err
	}
	for i, info := range pools {
		if info.Comptroller == comptroller {
			p.Name, p.Creator, p.Index = info.Name, info.Creator, big.NewInt(int64(i))
			return p, nil
		}
	}

	return nil, fmt.Errorf("pool %s is not registered in directory %s", comptroller.Hex(), s.contracts.Directory.Hex())
}

func (s *SDK) findPool(ctx context.Context, creator common.Address, name string, block *big.Int) (contracts.PoolInfo, *big.Int, error) {
	values, err := s.client.Call(ctx, s.contracts.Directory, contracts.FuncGetPoolsByAccount, creator)
	if err != nil {
		return contracts.PoolInfo{}, nil, err
	}
	indexes, err := evm.Convert[[]*big.Int](values[0])
	if err != nil {
		return contracts.PoolInfo{}, nil, err
	}
	pools, err := evm.Convert[[]contracts.PoolInfo](values[1])
	if err != nil {
		return contracts.PoolInfo{}, nil, err
	}

	for i := len(pools) - 1; i >= 0; i-- {
		if pools[i].Name == name && pools[i].BlockPosted.Cmp(block) == 0 {
			return pools[i], indexes[i], nil
		}
	}

	return contracts.PoolInfo{}, nil, fmt.Errorf("pool %q posted at block %s not found in directory", name, block)
}

func (p *Pool) State() State {
	return p.state
}

// AcceptAdmin completes the two-step ownership handover from the directory.
func (p *Pool) AcceptAdmin(ctx context.Context) error {
	if p.state != StateCreated {
		return evm.Precondition("pool %q cannot accept admin in state %s", p.Name, p.state)
	}

	if _, err := p.sdk.client.TransactChecked(ctx, p.Comptroller, contracts.FuncAcceptAdmin); err != nil {
		return fmt.Errorf("failed to accept admin of pool %q: %w", p.Name, err)
	}
	p.state = StateReady

	p.sdk.logger.With("pool", p.Name).With("admin", p.sdk.client.From().Hex()).Info("pool admin accepted")
	return nil
}

// ApplyWhitelist marks the configured suppliers as whitelisted. It does
// nothing for pools that do not enforce a whitelist.
func (p *Pool) ApplyWhitelist(ctx context.Context) error {
	if !p.params.EnforceWhitelist || len(p.params.Whitelist) == 0 {
		return nil
	}
	return p.SetWhitelistStatuses(ctx, p.params.Whitelist, true)
}

func (p *Pool) SetWhitelistStatuses(ctx context.Context, suppliers []common.Address, status bool) error {
	if p.state != StateReady {
		return evm.Precondition("pool %q is %s, admin must be accepted first", p.Name, p.state)
	}

	statuses := make([]bool, len(suppliers))
	for i := range statuses {
		statuses[i] = status
	}
	if _, err := p.sdk.client.TransactChecked(ctx, p.Comptroller, contracts.FuncSetWhitelistStatuses, suppliers, statuses); err != nil {
		return fmt.Errorf("failed to set whitelist of pool %q: %w", p.Name, err)
	}
	return nil
}

func (p *Pool) Markets(ctx context.Context) ([]common.Address, error) {
	return evm.CallOne[[]common.Address](ctx, p.sdk.client, p.Comptroller, contracts.FuncGetAllMarkets)
}

// Summary reads the pool through FusePoolLens.
func (p *Pool) Summary(ctx context.Context) (Summary, error) {
	values, err := p.sdk.client.Call(ctx, p.sdk.contracts.Lens, contracts.FuncGetPoolSummary, p.Comptroller)
	if err != nil {
		return Summary{}, fmt.Errorf("failed to read summary of pool %q: %w", p.Name, err)
	}

	var s Summary
	if s.TotalSupply, err = evm.Convert[*big.Int](values[0]); err != nil {
		return Summary{}, err
	}
	if s.TotalBorrow, err = evm.Convert[*big.Int](values[1]); err != nil {
		return Summary{}, err
	}
	if s.Underlyings, err = evm.Convert[[]common.Address](values[2]); err != nil {
		return Summary{}, err
	}
	if s.Symbols, err = evm.Convert[[]string](values[3]); err != nil {
		return Summary{}, err
	}
	if s.WhitelistedAdmin, err = evm.Convert[bool](values[4]); err != nil {
		return Summary{}, err
	}

	return s, nil
}
