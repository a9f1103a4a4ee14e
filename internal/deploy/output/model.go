package output

import (
	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"
)

type (
	Model struct {
		Network   Network                   `yaml:"network"`
		Contracts map[string]ContractConfig `yaml:"contracts"`
	}

	Network struct {
		ChainID   int64          `yaml:"chain-id"`
		Name      string         `yaml:"name"`
		RPCURL    string         `yaml:"rpc-url"`
		Deployer  common.Address `yaml:"deployer"`
		RunID     string         `yaml:"run-id"`
		Generated string         `yaml:"generated"`
	}

	ContractConfig struct {
		Contract string             `yaml:"contract"`
		Address  common.Address     `yaml:"address"`
		ABI      SingleQuotedString `yaml:"abi,omitempty"`
	}

	SingleQuotedString string
)

func (s SingleQuotedString) MarshalYAML() (any, error) {
	node := &yaml.Node{
		Kind:  yaml.ScalarNode,
		Style: yaml.SingleQuotedStyle,
		Value: string(s),
	}
	return node, nil
}
