package output

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/compose-network/fuse-deployer/internal/contracts"
	"github.com/compose-network/fuse-deployer/internal/deploy/store"
	"github.com/compose-network/fuse-deployer/internal/infra/filesystem"
	fsjson "github.com/compose-network/fuse-deployer/internal/infra/filesystem/json"
	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"
)

// Generator writes the addresses and ABIs of a deployment run as YAML for
// frontends and scripts.
type Generator struct {
	writer filesystem.Writer
	now    func() time.Time
}

func NewGenerator() *Generator {
	return &Generator{writer: fsjson.NewWriter(), now: time.Now}
}

type Input struct {
	ChainID   int64
	ChainName string
	RPCURL    string
	Deployer  common.Address
	Records   []store.Record
	Artifacts contracts.Set
}

func (g *Generator) Generate(path string, in Input) error {
	model := Model{
		Network: Network{
			ChainID:   in.ChainID,
			Name:      in.ChainName,
			RPCURL:    in.RPCURL,
			Deployer:  in.Deployer,
			Generated: g.now().UTC().Format(time.RFC3339),
		},
		Contracts: make(map[string]ContractConfig, len(in.Records)),
	}

	for _, record := range in.Records {
		if model.Network.RunID == "" || record.RunID > model.Network.RunID {
			model.Network.RunID = record.RunID
		}

		cfg := ContractConfig{
			Contract: string(record.Contract),
			Address:  record.Address,
		}
		if artifact, ok := in.Artifacts[record.Contract]; ok && artifact.RawABI != "" {
			cfg.ABI = SingleQuotedString(compactJSON(artifact.RawABI))
		}
		model.Contracts[strings.ToLower(record.Name)] = cfg
	}

	data, err := yaml.Marshal(model)
	if err != nil {
		return fmt.Errorf("could not marshal output model: %w", err)
	}

	if err := g.writer.WriteBytes(path, data); err != nil {
		return fmt.Errorf("could not write output file: %w", err)
	}

	return nil
}

func compactJSON(jsonStr string) string {
	var buf bytes.Buffer
	if err := json.Compact(&buf, []byte(jsonStr)); err != nil {
		return jsonStr
	}
	return buf.String()
}
