package configs

import (
	"errors"
	"fmt"
	"strings"
)

var Values Config

type (
	AccountName string
	StoreDriver string

	Config struct {
		Log       Log                     `mapstructure:"log"`
		Network   Network                 `mapstructure:"network"`
		Accounts  map[AccountName]Account `mapstructure:"accounts"`
		Artifacts Artifacts               `mapstructure:"artifacts"`
		Store     Store                   `mapstructure:"store"`
		Deploy    Deploy                  `mapstructure:"deploy"`
		Devnet    Devnet                  `mapstructure:"devnet"`
		Metrics   Metrics                 `mapstructure:"metrics"`
	}

	Log struct {
		Level  string `mapstructure:"level"`
		Format string `mapstructure:"format"`
	}

	Network struct {
		RPCURL         string `mapstructure:"rpc-url"`
		ChainID        int64  `mapstructure:"chain-id"`
		TimeoutSeconds int    `mapstructure:"timeout-seconds"`
		GasLimit       uint64 `mapstructure:"gas-limit"`
	}

	Account struct {
		PrivateKey string `mapstructure:"private-key"`
	}

	Artifacts struct {
		Dir           string   `mapstructure:"dir"`
		ContractsRoot string   `mapstructure:"contracts-root"`
		Compile       []string `mapstructure:"compile"`
	}

	Store struct {
		Driver StoreDriver `mapstructure:"driver"`
		Path   string      `mapstructure:"path"`
		DSN    string      `mapstructure:"dsn"`
	}

	Deploy struct {
		DefaultInterestFeeRate string        `mapstructure:"default-interest-fee-rate"`
		PoolLimits             PoolLimits    `mapstructure:"pool-limits"`
		EnforceDeployerList    bool          `mapstructure:"enforce-deployer-whitelist"`
		DeployerWhitelist      []AccountName `mapstructure:"deployer-whitelist"`
		OutputFile             string        `mapstructure:"output-file"`
	}

	// PoolLimits values are decimal ether amounts; "max" means MaxUint256.
	PoolLimits struct {
		MinBorrowEth       string `mapstructure:"min-borrow-eth"`
		MaxSupplyEth       string `mapstructure:"max-supply-eth"`
		MaxUtilizationRate string `mapstructure:"max-utilization-rate"`
	}

	Devnet struct {
		Image         string `mapstructure:"image"`
		BuildContext  string `mapstructure:"build-context"`
		ContainerName string `mapstructure:"container-name"`
		Port          int    `mapstructure:"port"`
		ChainID       int64  `mapstructure:"chain-id"`
		BlockTime     int    `mapstructure:"block-time"`
	}

	Metrics struct {
		Listen string `mapstructure:"listen"`
	}
)

const (
	AccountDeployer AccountName = "deployer"
	AccountAlice    AccountName = "alice"
	AccountBob      AccountName = "bob"

	StoreDriverJSON     StoreDriver = "json"
	StoreDriverPostgres StoreDriver = "postgres"
)

// Validate checks the settings needed to talk to a chain and sign transactions.
func (c *Config) Validate() error {
	var errs []error

	if c.Network.RPCURL == "" {
		errs = append(errs, errors.New("network.rpc-url is required"))
	}
	if c.Network.ChainID < 0 {
		errs = append(errs, errors.New("network.chain-id must not be negative"))
	}

	deployer, ok := c.Accounts[AccountDeployer]
	if !ok || deployer.PrivateKey == "" {
		errs = append(errs, errors.New("accounts.deployer.private-key is required"))
	}

	for _, name := range c.Deploy.DeployerWhitelist {
		if _, ok := c.Accounts[name]; !ok {
			errs = append(errs, fmt.Errorf("deploy.deployer-whitelist references unknown account %q", name))
		}
	}
	if c.Deploy.EnforceDeployerList && len(c.Deploy.DeployerWhitelist) == 0 {
		errs = append(errs, errors.New("deploy.deployer-whitelist must not be empty when enforce-deployer-whitelist is set"))
	}

	if err := c.Store.Validate(); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %w", errors.Join(errs...))
	}

	return nil
}

func (s *Store) Validate() error {
	switch s.Driver {
	case StoreDriverJSON, "":
		if s.Path == "" {
			return errors.New("store.path is required for the json driver")
		}
	case StoreDriverPostgres:
		if s.DSN == "" {
			return errors.New("store.dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("store.driver must be either '%s' or '%s'", StoreDriverJSON, StoreDriverPostgres)
	}

	return nil
}

func (d *Devnet) Validate() error {
	var errs []error

	if d.Image == "" && d.BuildContext == "" {
		errs = append(errs, errors.New("devnet.image or devnet.build-context is required"))
	}
	if d.ContainerName == "" {
		errs = append(errs, errors.New("devnet.container-name is required"))
	}
	if d.Port <= 0 || d.Port > 65535 {
		errs = append(errs, errors.New("devnet.port must be a valid TCP port"))
	}
	if d.ChainID <= 0 {
		errs = append(errs, errors.New("devnet.chain-id is required"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("devnet configuration validation failed: %w", errors.Join(errs...))
	}

	return nil
}

// PrivateKey returns the configured key for a named account.
func (c *Config) PrivateKey(name AccountName) (string, error) {
	account, ok := c.Accounts[AccountName(strings.ToLower(string(name)))]
	if !ok || account.PrivateKey == "" {
		return "", fmt.Errorf("no private key configured for account %q", name)
	}

	return account.PrivateKey, nil
}
