package configs

import (
	"strings"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg, err := DefaultConfig()
	require.NoError(t, err)

	require.NoError(t, cfg.Validate())
	require.NoError(t, cfg.Devnet.Validate())

	assert.Equal(t, int64(31337), cfg.Network.ChainID)
	assert.Equal(t, StoreDriverJSON, cfg.Store.Driver)
	assert.Len(t, cfg.Deploy.DeployerWhitelist, 3)
	assert.Equal(t, "max", cfg.Deploy.PoolLimits.MaxSupplyEth)
}

func TestSetDefaultsFillsPartialConfig(t *testing.T) {
	v := viper.New()
	require.NoError(t, SetDefaults(v))
	v.SetConfigType("yaml")
	require.NoError(t, v.ReadConfig(strings.NewReader("network:\n  chain-id: 97\nstore:\n  driver: postgres\n  dsn: postgres://localhost/fuse\n")))

	var cfg Config
	require.NoError(t, v.Unmarshal(&cfg))
	require.NoError(t, cfg.Validate())

	defaults := MustDefaultConfig()
	assert.Equal(t, int64(97), cfg.Network.ChainID)
	assert.Equal(t, defaults.Network.RPCURL, cfg.Network.RPCURL)
	assert.Equal(t, StoreDriverPostgres, cfg.Store.Driver)
	assert.Equal(t, defaults.Deploy, cfg.Deploy)
	assert.Equal(t, defaults.Accounts, cfg.Accounts)

	again := viper.New()
	require.NoError(t, SetDefaults(again))
	assert.Equal(t, int64(31337), again.GetInt64("network.chain-id"), "defaults are not shared state")
}

func TestValidateReportsEveryProblem(t *testing.T) {
	cfg := Config{
		Deploy: Deploy{
			EnforceDeployerList: true,
			DeployerWhitelist:   []AccountName{"carol"},
		},
		Store: Store{Driver: "sqlite"},
	}

	err := cfg.Validate()
	require.Error(t, err)

	msg := err.Error()
	assert.Contains(t, msg, "network.rpc-url is required")
	assert.Contains(t, msg, "accounts.deployer.private-key is required")
	assert.Contains(t, msg, `unknown account "carol"`)
	assert.Contains(t, msg, "store.driver must be either")
}

func TestStoreValidate(t *testing.T) {
	require.Error(t, (&Store{Driver: StoreDriverJSON}).Validate())
	require.NoError(t, (&Store{Driver: StoreDriverJSON, Path: "deployments"}).Validate())
	require.Error(t, (&Store{Driver: StoreDriverPostgres}).Validate())
	require.NoError(t, (&Store{Driver: StoreDriverPostgres, DSN: "postgres://localhost/fuse"}).Validate())
}

func TestPrivateKeyLookup(t *testing.T) {
	cfg := MustDefaultConfig()

	key, err := cfg.PrivateKey(AccountAlice)
	require.NoError(t, err)
	assert.NotEmpty(t, key)

	_, err = cfg.PrivateKey("mallory")
	require.Error(t, err)
}
