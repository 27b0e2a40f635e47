// Package docker runs the agent command inside a container so that
// evaluations do not touch the host's agent installation.
package docker

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/moby/moby/api/types/container"
	"github.com/moby/moby/api/types/mount"
	"github.com/moby/moby/client"

	"github.com/signalnine/skilltune/internal/launch"
)

// WorkspaceDir is where the project root is mounted inside the container.
const WorkspaceDir = "/workspace"

// waitGrace bounds how long Wait blocks for a killed container to report.
const waitGrace = 10 * time.Second

// Launcher starts one container per invocation. The project root (the
// Spec's Dir) is bind-mounted so the descriptor artifact written on the
// host is visible to the agent.
type Launcher struct {
	Image string
	// Env is added to the container on top of the forwarded host keys.
	Env map[string]string
	// Forward lists host environment prefixes passed through to the
	// container. Defaults to ANTHROPIC_ and CLAUDE_.
	Forward     []string
	CPULimit    float64
	MemoryLimit int64
}

type Mount struct {
	Source   string
	Target   string
	ReadOnly bool
}

var defaultForward = []string{"ANTHROPIC_", "CLAUDE_"}

func (l *Launcher) Launch(ctx context.Context, spec launch.Spec) (launch.Process, error) {
	if l.Image == "" {
		return nil, fmt.Errorf("docker launcher: image is required")
	}
	if len(spec.Argv) == 0 {
		return nil, fmt.Errorf("docker launcher: empty command")
	}
	projectDir, err := filepath.Abs(spec.Dir)
	if err != nil {
		return nil, fmt.Errorf("resolving project dir: %w", err)
	}

	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("creating docker client: %w", err)
	}

	mounts := []mount.Mount{
		{Type: mount.TypeBind, Source: projectDir, Target: WorkspaceDir},
	}
	for _, m := range credentialMounts() {
		mounts = append(mounts, mount.Mount{
			Type:     mount.TypeBind,
			Source:   m.Source,
			Target:   m.Target,
			ReadOnly: m.ReadOnly,
		})
	}

	initTrue := true
	hostCfg := &container.HostConfig{
		Mounts: mounts,
		Init:   &initTrue,
	}
	if l.CPULimit > 0 {
		hostCfg.NanoCPUs = int64(l.CPULimit * 1e9)
	}
	if l.MemoryLimit > 0 {
		hostCfg.Memory = l.MemoryLimit
	}

	// Tty keeps the log stream raw (no stdout/stderr multiplex headers).
	containerCfg := &container.Config{
		Image:      l.Image,
		Cmd:        spec.Argv,
		Env:        l.containerEnv(spec.Env),
		WorkingDir: WorkspaceDir,
		Tty:        true,
		Labels:     map[string]string{"skilltune": "true"},
	}

	createResp, err := cli.ContainerCreate(ctx, client.ContainerCreateOptions{
		Config:     containerCfg,
		HostConfig: hostCfg,
	})
	if err != nil {
		cli.Close()
		return nil, fmt.Errorf("creating container: %w", err)
	}
	p := &containerProcess{cli: cli, id: createResp.ID}

	if _, err := cli.ContainerStart(ctx, p.id, client.ContainerStartOptions{}); err != nil {
		p.Kill()
		cli.Close()
		return nil, fmt.Errorf("starting container: %w", err)
	}

	logs, err := cli.ContainerLogs(ctx, p.id, client.ContainerLogsOptions{
		ShowStdout: true,
		Follow:     true,
	})
	if err != nil {
		p.Kill()
		cli.Close()
		return nil, fmt.Errorf("attaching to container logs: %w", err)
	}
	p.logs = logs
	return p, nil
}

// containerEnv forwards only the agent's credentials and settings; the
// host PATH and HOME make no sense inside the image.
func (l *Launcher) containerEnv(hostEnv []string) []string {
	prefixes := l.Forward
	if len(prefixes) == 0 {
		prefixes = defaultForward
	}
	var env []string
	for _, kv := range hostEnv {
		for _, p := range prefixes {
			if strings.HasPrefix(kv, p) {
				env = append(env, kv)
				break
			}
		}
	}
	for k, v := range l.Env {
		env = append(env, k+"="+v)
	}
	return env
}

// credentialMounts exposes ~/.claude/.credentials.json read-only when it
// exists, so subscription logins work inside the container.
func credentialMounts() []Mount {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil
	}
	credsFile := filepath.Join(home, ".claude", ".credentials.json")
	if _, err := os.Stat(credsFile); err != nil {
		return nil
	}
	return []Mount{{Source: credsFile, Target: "/root/.claude/.credentials.json", ReadOnly: true}}
}

type containerProcess struct {
	cli  *client.Client
	id   string
	logs io.ReadCloser

	killOnce sync.Once
}

func (p *containerProcess) Stdout() io.Reader {
	return p.logs
}

// Kill stops and force-removes the container. Removal also ends the
// followed log stream, which unblocks any reader.
func (p *containerProcess) Kill() error {
	p.killOnce.Do(func() {
		ctx := context.Background()
		p.cli.ContainerKill(ctx, p.id, client.ContainerKillOptions{Signal: "SIGKILL"})
		p.cli.ContainerRemove(ctx, p.id, client.ContainerRemoveOptions{Force: true})
		if p.logs != nil {
			p.logs.Close()
		}
	})
	return nil
}

func (p *containerProcess) Wait() error {
	ctx, cancel := context.WithTimeout(context.Background(), waitGrace)
	defer cancel()
	defer p.cli.Close()

	waitResult := p.cli.ContainerWait(ctx, p.id, client.ContainerWaitOptions{
		Condition: container.WaitConditionRemoved,
	})
	select {
	case <-waitResult.Error:
		if ctx.Err() != nil {
			return fmt.Errorf("waiting for container %s: %w", p.id, ctx.Err())
		}
		// Kill has usually removed the container already.
		return nil
	case status := <-waitResult.Result:
		if status.StatusCode != 0 {
			return fmt.Errorf("container exited with status %d", status.StatusCode)
		}
		return nil
	}
}
