package devnet

import (
	"context"
	"testing"
	"time"

	"github.com/compose-network/fuse-deployer/configs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
)

func TestAnvilArgs(t *testing.T) {
	cfg := configs.MustDefaultConfig().Devnet

	assert.Equal(t, []string{"--host", "0.0.0.0", "--port", "8545", "--chain-id", "31337"}, anvilArgs(cfg))

	cfg.BlockTime = 2
	assert.Equal(t, []string{"--host", "0.0.0.0", "--port", "8545", "--chain-id", "31337", "--block-time", "2"}, anvilArgs(cfg))
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	_, err := New(nil, configs.Devnet{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "devnet.container-name is required")
}

func TestDevnetUpDown(t *testing.T) {
	if testing.Short() {
		t.Skip("starts a docker container")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	docker, err := NewDocker()
	require.NoError(t, err)
	defer docker.Close()

	cfg := configs.MustDefaultConfig().Devnet
	cfg.ContainerName = "fuse-devnet-test"
	cfg.Port = 18545

	d, err := New(docker, cfg)
	require.NoError(t, err)
	defer func() { _ = d.Down(context.Background()) }()

	url, err := d.Up(ctx)
	require.NoError(t, err)
	assert.Equal(t, "http://127.0.0.1:18545", url)

	r, err := DialRPC(ctx, url)
	require.NoError(t, err)
	defer r.Close()

	id, err := r.Snapshot(ctx)
	require.NoError(t, err)
	require.NoError(t, r.AdvanceDays(ctx, 1))
	require.NoError(t, r.Revert(ctx, id))

	require.NoError(t, d.Down(ctx))
	exists, _, err := docker.Running(ctx, cfg.ContainerName)
	require.NoError(t, err)
	assert.False(t, exists)
}
