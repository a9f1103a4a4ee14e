package output

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/compose-network/fuse-deployer/internal/contracts"
	"github.com/compose-network/fuse-deployer/internal/deploy/store"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestGenerate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "output.yaml")
	g := NewGenerator()
	g.now = func() time.Time { return time.Date(2026, 10, 18, 0, 0, 0, 0, time.UTC) }

	directory := common.HexToAddress("0x00000000000000000000000000000000000000d1")
	err := g.Generate(path, Input{
		ChainID:   31337,
		ChainName: "anvil",
		RPCURL:    "http://localhost:8545",
		Records: []store.Record{
			{Name: "FusePoolDirectory", Contract: contracts.FusePoolDirectory, Address: directory, RunID: "run-1"},
			{Name: "TOUCH", Contract: contracts.MockERC20, Address: common.HexToAddress("0x02"), RunID: "run-1"},
		},
		Artifacts: contracts.Set{
			contracts.FusePoolDirectory: {Name: contracts.FusePoolDirectory, RawABI: "[\n  {\"type\": \"function\", \"name\": \"initialize\"}\n]"},
		},
	})
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `abi: '[{"type":"function","name":"initialize"}]'`)

	var got Model
	require.NoError(t, yaml.Unmarshal(data, &got))
	assert.Equal(t, int64(31337), got.Network.ChainID)
	assert.Equal(t, "run-1", got.Network.RunID)
	assert.Equal(t, "2026-10-18T00:00:00Z", got.Network.Generated)
	assert.Equal(t, directory, got.Contracts["fusepooldirectory"].Address)
	assert.Equal(t, "MockERC20", got.Contracts["touch"].Contract)
	assert.Empty(t, got.Contracts["touch"].ABI)
}
