package devnet

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/compose-network/fuse-deployer/internal/logger"
	"github.com/containerd/errdefs"
	"github.com/docker/docker/api/types/build"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/docker/go-connections/nat"
	"github.com/moby/go-archive"
)

type (
	Docker struct {
		cli    *client.Client
		logger *slog.Logger
	}

	ContainerOptions struct {
		Name       string
		Image      string
		Entrypoint []string
		Cmd        []string
		// Ports maps container ports ("8545/tcp") to host ports on 127.0.0.1.
		Ports map[nat.Port]string
	}
)

// NewDocker creates a Docker client from the environment.
func NewDocker() (*Docker, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, err
	}

	return &Docker{cli: cli, logger: logger.Named("docker_client")}, nil
}

func (d *Docker) Close() error {
	return d.cli.Close()
}

// ImageExists checks if a Docker image exists locally.
func (d *Docker) ImageExists(ctx context.Context, imageName string) (bool, error) {
	_, err := d.cli.ImageInspect(ctx, imageName)
	if err != nil {
		if errdefs.IsNotFound(err) {
			return false, nil
		}
		return false, err
	}

	return true, nil
}

// PullImage pulls a Docker image from a registry.
func (d *Docker) PullImage(ctx context.Context, imageName string) error {
	d.logger.With("image", imageName).Info("pulling docker image")

	resp, err := d.cli.ImagePull(ctx, imageName, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("failed to pull image: %w", err)
	}
	defer resp.Close()

	if err := d.drain(resp, "pull"); err != nil {
		return err
	}

	d.logger.With("image", imageName).Info("docker image pulled successfully")
	return nil
}

// BuildImage builds a Docker image from the Dockerfile in contextPath.
func (d *Docker) BuildImage(ctx context.Context, contextPath, tag string) error {
	d.logger.With("tag", tag).With("context", contextPath).Info("building docker image")

	buildContext, err := archive.TarWithOptions(contextPath, &archive.TarOptions{})
	if err != nil {
		return fmt.Errorf("failed to create build context: %w", err)
	}
	defer buildContext.Close()

	resp, err := d.cli.ImageBuild(ctx, buildContext, build.ImageBuildOptions{
		Tags:       []string{tag},
		Dockerfile: "Dockerfile",
		Remove:     true,
	})
	if err != nil {
		return fmt.Errorf("failed to build image: %w", err)
	}
	defer resp.Body.Close()

	if err := d.drain(resp.Body, "build"); err != nil {
		return err
	}

	d.logger.With("tag", tag).Info("docker image built successfully")
	return nil
}

// drain logs the JSON progress stream and returns the last reported error.
func (d *Docker) drain(r io.Reader, action string) error {
	scanner := bufio.NewScanner(r)
	var streamErr error
	for scanner.Scan() {
		line := scanner.Text()
		d.logger.Debug(line)

		var msg struct {
			Error string `json:"error"`
		}
		if err := json.Unmarshal([]byte(line), &msg); err == nil && msg.Error != "" {
			streamErr = fmt.Errorf("%s failed: %s", action, msg.Error)
			d.logger.Error("docker "+action+" error", "error", msg.Error)
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading %s output: %w", action, err)
	}

	return streamErr
}

// Running reports whether a container with the given name exists and runs.
func (d *Docker) Running(ctx context.Context, name string) (exists, running bool, err error) {
	info, err := d.cli.ContainerInspect(ctx, name)
	if err != nil {
		if errdefs.IsNotFound(err) {
			return false, false, nil
		}
		return false, false, err
	}

	return true, info.State != nil && info.State.Running, nil
}

// Start creates and starts a detached container.
func (d *Docker) Start(ctx context.Context, opts ContainerOptions) (string, error) {
	exposed := make(nat.PortSet, len(opts.Ports))
	bindings := make(nat.PortMap, len(opts.Ports))
	for port, hostPort := range opts.Ports {
		exposed[port] = struct{}{}
		bindings[port] = []nat.PortBinding{{HostIP: "127.0.0.1", HostPort: hostPort}}
	}

	resp, err := d.cli.ContainerCreate(ctx,
		&container.Config{
			Image:        opts.Image,
			Entrypoint:   opts.Entrypoint,
			Cmd:          opts.Cmd,
			ExposedPorts: exposed,
		},
		&container.HostConfig{PortBindings: bindings},
		nil, nil, opts.Name,
	)
	if err != nil {
		return "", fmt.Errorf("failed to create container %s: %w", opts.Name, err)
	}

	if err := d.cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		_ = d.cli.ContainerRemove(ctx, resp.ID, container.RemoveOptions{Force: true})
		return "", fmt.Errorf("failed to start container %s: %w", opts.Name, err)
	}

	d.logger.With("container", opts.Name).With("id", resp.ID).Info("container started")
	return resp.ID, nil
}

// Remove force-removes the container. A missing container is not an error.
func (d *Docker) Remove(ctx context.Context, name string) error {
	err := d.cli.ContainerRemove(ctx, name, container.RemoveOptions{Force: true})
	if err != nil && !errdefs.IsNotFound(err) {
		return fmt.Errorf("failed to remove container %s: %w", name, err)
	}
	return nil
}

// Logs returns the last lines of the container's combined output.
func (d *Docker) Logs(ctx context.Context, name string, tail int) (string, error) {
	rc, err := d.cli.ContainerLogs(ctx, name, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Tail:       fmt.Sprint(tail),
	})
	if err != nil {
		return "", fmt.Errorf("failed to read logs of %s: %w", name, err)
	}
	defer rc.Close()

	var out bytes.Buffer
	if _, err := stdcopy.StdCopy(&out, &out, rc); err != nil {
		return "", fmt.Errorf("failed to demultiplex logs of %s: %w", name, err)
	}
	return out.String(), nil
}
