// Package devnet runs a local anvil node in Docker and drives its test-only
// RPC methods.
package devnet

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/compose-network/fuse-deployer/configs"
	"github.com/compose-network/fuse-deployer/internal/evm"
	"github.com/compose-network/fuse-deployer/internal/logger"
	"github.com/docker/go-connections/nat"
)

const (
	anvilPort    = "8545/tcp"
	localTag     = "fuse-devnet:local"
	pollInterval = 500 * time.Millisecond
	logTail      = 50
)

type Devnet struct {
	docker *Docker
	cfg    configs.Devnet
	logger *slog.Logger
}

func New(docker *Docker, cfg configs.Devnet) (*Devnet, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &Devnet{docker: docker, cfg: cfg, logger: logger.Named("devnet")}, nil
}

// URL is the host RPC endpoint of the node.
func (d *Devnet) URL() string {
	return fmt.Sprintf("http://127.0.0.1:%d", d.cfg.Port)
}

// Up starts the node unless it already runs and waits until RPC answers.
func (d *Devnet) Up(ctx context.Context) (string, error) {
	exists, running, err := d.docker.Running(ctx, d.cfg.ContainerName)
	if err != nil {
		return "", err
	}

	switch {
	case running:
		d.logger.With("container", d.cfg.ContainerName).Info("devnet already running")
	case exists:
		if err := d.docker.Remove(ctx, d.cfg.ContainerName); err != nil {
			return "", err
		}
		fallthrough
	default:
		img, err := d.ensureImage(ctx)
		if err != nil {
			return "", err
		}
		if _, err := d.docker.Start(ctx, ContainerOptions{
			Name:       d.cfg.ContainerName,
			Image:      img,
			Entrypoint: []string{"anvil"},
			Cmd:        anvilArgs(d.cfg),
			Ports:      map[nat.Port]string{anvilPort: strconv.Itoa(d.cfg.Port)},
		}); err != nil {
			return "", err
		}
	}

	url := d.URL()
	if err := evm.WaitForRPC(ctx, url, pollInterval); err != nil {
		logs, logErr := d.docker.Logs(context.WithoutCancel(ctx), d.cfg.ContainerName, logTail)
		if logErr == nil && logs != "" {
			return "", fmt.Errorf("%w\n%s", err, logs)
		}
		return "", err
	}

	d.logger.With("url", url).With("chain_id", d.cfg.ChainID).Info("devnet ready")
	return url, nil
}

func (d *Devnet) Down(ctx context.Context) error {
	if err := d.docker.Remove(ctx, d.cfg.ContainerName); err != nil {
		return err
	}
	d.logger.With("container", d.cfg.ContainerName).Info("devnet removed")
	return nil
}

func (d *Devnet) ensureImage(ctx context.Context) (string, error) {
	if d.cfg.BuildContext != "" {
		tag := d.cfg.Image
		if tag == "" {
			tag = localTag
		}
		return tag, d.docker.BuildImage(ctx, d.cfg.BuildContext, tag)
	}

	exists, err := d.docker.ImageExists(ctx, d.cfg.Image)
	if err != nil {
		return "", err
	}
	if !exists {
		if err := d.docker.PullImage(ctx, d.cfg.Image); err != nil {
			return "", err
		}
	}
	return d.cfg.Image, nil
}

func anvilArgs(cfg configs.Devnet) []string {
	args := []string{
		"--host", "0.0.0.0",
		"--port", "8545",
		"--chain-id", strconv.FormatInt(cfg.ChainID, 10),
	}
	if cfg.BlockTime > 0 {
		args = append(args, "--block-time", strconv.Itoa(cfg.BlockTime))
	}
	return args
}
