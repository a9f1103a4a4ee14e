package deploy

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/compose-network/fuse-deployer/configs"
	"github.com/compose-network/fuse-deployer/internal/chains"
	"github.com/compose-network/fuse-deployer/internal/contracts"
	"github.com/compose-network/fuse-deployer/internal/deploy/store"
	"github.com/compose-network/fuse-deployer/internal/evm"
	"github.com/compose-network/fuse-deployer/internal/evm/evmtest"
	"github.com/compose-network/fuse-deployer/internal/fusetest"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type harness struct {
	chain    *evmtest.Chain
	client   *evm.Client
	store    store.Store
	orch     *Orchestrator
	settings Settings
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	cfg := configs.MustDefaultConfig()
	settings, err := SettingsFromConfig(cfg)
	require.NoError(t, err)

	chain := evmtest.NewChain(chains.Anvil)
	protocol := fusetest.New(chain)

	key, err := cfg.PrivateKey(configs.AccountDeployer)
	require.NoError(t, err)
	client, err := evm.NewClient(context.Background(), chain, key)
	require.NoError(t, err)

	st := store.NewJSONStore(t.TempDir())

	return &harness{
		chain:    chain,
		client:   client,
		store:    st,
		orch:     NewOrchestrator(client, protocol.Artifacts, st),
		settings: settings,
	}
}

func anvil(t *testing.T) chains.ChainConfig {
	t.Helper()
	cfg, ok := chains.MustLoad().Lookup(chains.Anvil)
	require.True(t, ok)
	return cfg
}

func TestSortOrdersByDependency(t *testing.T) {
	plan := Plan{Steps: []Step{
		{Name: "lens", DependsOn: []string{"directory"}},
		{Name: "comptroller"},
		{Name: "directory"},
		{Name: "secondary", DependsOn: []string{"directory", "lens"}},
	}}

	sorted, err := plan.Sort()
	require.NoError(t, err)

	var names []string
	for _, s := range sorted {
		names = append(names, s.Name)
	}
	assert.Equal(t, []string{"comptroller", "directory", "lens", "secondary"}, names)
}

func TestSortRejectsBrokenPlans(t *testing.T) {
	_, err := Plan{Steps: []Step{{Name: "a", DependsOn: []string{"missing"}}}}.Sort()
	require.ErrorIs(t, err, ErrUnresolved)

	_, err = Plan{Steps: []Step{{Name: "a"}, {Name: "a"}}}.Sort()
	require.ErrorContains(t, err, "duplicate step")

	_, err = Plan{Steps: []Step{
		{Name: "a", DependsOn: []string{"b"}},
		{Name: "b", DependsOn: []string{"a"}},
		{Name: "c"},
	}}.Sort()
	require.ErrorContains(t, err, "dependency cycle between steps: a, b")
}

func TestExecuteFusePlan(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	plan, err := FusePlan(anvil(t), h.settings)
	require.NoError(t, err)
	assert.Contains(t, plan.Names(), "TOUCH")
	assert.Contains(t, plan.Names(), string(contracts.SimplePriceOracle))
	assert.NotContains(t, plan.Names(), string(contracts.ChainlinkPriceOracleV2))

	deployments, err := h.orch.Execute(ctx, plan)
	require.NoError(t, err)
	assert.Len(t, deployments, len(plan.Steps))

	for _, name := range deployments.Names() {
		record := deployments[name]
		assert.True(t, record.Initialized, name)
		code, err := h.client.CodeAt(ctx, record.Address)
		require.NoError(t, err)
		assert.NotEmpty(t, code, name)
	}

	feeDistributor, err := deployments.Address(string(contracts.FuseFeeDistributor))
	require.NoError(t, err)
	rate, err := evm.CallOne[*big.Int](ctx, h.client, feeDistributor, contracts.FuncInterestFeeRate)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(1e17), rate)
	maxSupply, err := evm.CallOne[*big.Int](ctx, h.client, feeDistributor, contracts.FuncMaxSupplyEth)
	require.NoError(t, err)
	assert.Equal(t, math.MaxBig256, maxSupply)

	directory, err := deployments.Address(string(contracts.FusePoolDirectory))
	require.NoError(t, err)
	whitelisted, err := evm.CallOne[bool](ctx, h.client, directory, contracts.FuncDeployerWhitelist, h.client.From())
	require.NoError(t, err)
	assert.True(t, whitelisted)

	lens, err := deployments.Address(string(contracts.FusePoolLens))
	require.NoError(t, err)
	lensDirectory, err := evm.CallOne[common.Address](ctx, h.client, lens, contracts.FuncDirectory)
	require.NoError(t, err)
	assert.Equal(t, directory, lensDirectory)

	touch, err := deployments.Address("TOUCH")
	require.NoError(t, err)
	balance, err := evm.CallOne[*big.Int](ctx, h.client, touch, contracts.FuncBalanceOf, h.client.From())
	require.NoError(t, err)
	assert.Equal(t, "1000000000000000000000000", balance.String())

	records, err := h.store.List(ctx, chains.Anvil)
	require.NoError(t, err)
	assert.Len(t, records, len(plan.Steps))
}

func TestExecuteRejectsInterestFeeAboveOne(t *testing.T) {
	h := newHarness(t)
	h.settings.InterestFeeRate = big.NewInt(2e18)

	plan, err := FusePlan(anvil(t), h.settings)
	require.NoError(t, err)

	_, err = h.orch.Execute(context.Background(), plan)
	require.Error(t, err)
	assert.ErrorContains(t, err, "Interest fee rate cannot be more than 100%.")
}

func TestExecuteTwiceSendsNothing(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	plan, err := FusePlan(anvil(t), h.settings)
	require.NoError(t, err)

	first, err := h.orch.Execute(ctx, plan)
	require.NoError(t, err)
	sent := len(h.chain.Sent())

	second, err := h.orch.Execute(ctx, plan)
	require.NoError(t, err)

	assert.Len(t, h.chain.Sent(), sent, "a repeated run must not send transactions")
	assert.Equal(t, first.Addresses(), second.Addresses())
	for name, record := range second {
		assert.Equal(t, first[name].TxHash, record.TxHash, name)
	}
}

func TestExecuteResumesInterruptedInitializer(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	calls := 0
	fail := true
	plan := Plan{Steps: []Step{{
		Name:          "Liquidator",
		Contract:      contracts.FuseSafeLiquidator,
		Deterministic: true,
		Init: func(context.Context, Env) error {
			calls++
			if fail {
				return errors.New("rpc went away")
			}
			return nil
		},
	}}}

	_, err := h.orch.Execute(ctx, plan)
	require.ErrorContains(t, err, "rpc went away")

	record, err := h.store.Get(ctx, chains.Anvil, "Liquidator")
	require.NoError(t, err)
	assert.False(t, record.Initialized)

	fail = false
	deployments, err := h.orch.Execute(ctx, plan)
	require.NoError(t, err)
	assert.True(t, deployments["Liquidator"].Initialized)
	assert.Equal(t, 2, calls)

	_, err = h.orch.Execute(ctx, plan)
	require.NoError(t, err)
	assert.Equal(t, 2, calls, "initializers run once")
}

func TestExecuteFailsOnUndeclaredDependency(t *testing.T) {
	h := newHarness(t)

	plan := Plan{Steps: []Step{
		{Name: "Directory", Contract: contracts.FusePoolDirectory, Deterministic: true},
		{
			Name:          "Lens",
			Contract:      contracts.FusePoolLens,
			Deterministic: true,
			Args: func(deps Deployments) ([]byte, error) {
				_, err := deps.Address("Directory")
				return nil, err
			},
		},
	}}

	_, err := h.orch.Execute(context.Background(), plan)
	require.ErrorIs(t, err, ErrUnresolved)
}

func TestExecuteNonDeterministicReusesStoredAddress(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	plan := Plan{Steps: []Step{{Name: "Liquidator", Contract: contracts.FuseSafeLiquidator}}}

	first, err := h.orch.Execute(ctx, plan)
	require.NoError(t, err)
	sent := len(h.chain.Sent())

	second, err := h.orch.Execute(ctx, plan)
	require.NoError(t, err)
	assert.Equal(t, first.Addresses(), second.Addresses())
	assert.Len(t, h.chain.Sent(), sent)
}

func TestExecuteRejectsMissingArtifacts(t *testing.T) {
	h := newHarness(t)
	orch := NewOrchestrator(h.client, contracts.Set{}, h.store)

	_, err := orch.Execute(context.Background(), Plan{Steps: []Step{{Name: "Comptroller", Contract: contracts.Comptroller}}})
	require.ErrorContains(t, err, "missing compiled artifacts")
	assert.Empty(t, h.chain.Sent())
}

func TestFusePlanWithChainlink(t *testing.T) {
	chapel, ok := chains.MustLoad().Lookup(chains.Chapel)
	require.True(t, ok)

	plan, err := FusePlan(chapel, Settings{})
	require.NoError(t, err)
	assert.Contains(t, plan.Names(), string(contracts.ChainlinkPriceOracleV2))
	assert.NotContains(t, plan.Names(), string(contracts.SimplePriceOracle))
	assert.NotContains(t, plan.Names(), "TOUCH", "fixtures are local only")
}

func TestFusePlanRejectsUndeployableChain(t *testing.T) {
	evmos, ok := chains.MustLoad().Lookup(chains.Evmos)
	require.True(t, ok)

	_, err := FusePlan(evmos, Settings{})
	require.ErrorContains(t, err, "wrapped-native-token")
}

func TestMantissa(t *testing.T) {
	for _, tc := range []struct {
		in   string
		want string
	}{
		{"0.1", "100000000000000000"},
		{"1", "1000000000000000000"},
		{"max", math.MaxBig256.String()},
		{"MAX", math.MaxBig256.String()},
		{"0", "0"},
	} {
		got, err := Mantissa(tc.in)
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got.String(), tc.in)
	}

	for _, bad := range []string{"-1", "abc", "0.0000000000000000001"} {
		_, err := Mantissa(bad)
		assert.Error(t, err, bad)
	}
}

func TestSettingsFromConfig(t *testing.T) {
	settings, err := SettingsFromConfig(configs.MustDefaultConfig())
	require.NoError(t, err)

	assert.Equal(t, common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"), settings.Deployer)
	assert.True(t, settings.EnforceWhitelist)
	assert.Len(t, settings.Whitelist, 3)
	assert.Equal(t, big.NewInt(1e18), settings.MinBorrowEth)
}
