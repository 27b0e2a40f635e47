// Package launch starts the external decision process and hands back an
// owned handle to its output.
package launch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
)

// Spec describes one agent invocation.
type Spec struct {
	Argv []string
	Dir  string
	Env  []string
}

// Process is a running invocation. Stdout yields the agent's line-delimited
// output. Kill must be safe to call more than once and after the process
// has exited; Wait reaps it.
type Process interface {
	Stdout() io.Reader
	Kill() error
	Wait() error
}

// Launcher starts processes. Implementations: Local here, docker.Launcher
// for container runs.
type Launcher interface {
	Launch(ctx context.Context, spec Spec) (Process, error)
}

// Local runs the agent as a child process of skilltune.
type Local struct{}

func (Local) Launch(ctx context.Context, spec Spec) (Process, error) {
	if len(spec.Argv) == 0 {
		return nil, errors.New("empty command")
	}
	cmd := exec.CommandContext(ctx, spec.Argv[0], spec.Argv[1:]...)
	cmd.Dir = spec.Dir
	cmd.Env = spec.Env
	cmd.Stderr = nil // discarded

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting %s: %w", spec.Argv[0], err)
	}
	return &localProcess{cmd: cmd, stdout: stdout}, nil
}

type localProcess struct {
	cmd    *exec.Cmd
	stdout io.Reader

	waitOnce sync.Once
	waitErr  error
}

func (p *localProcess) Stdout() io.Reader { return p.stdout }

func (p *localProcess) Kill() error {
	if p.cmd.ProcessState != nil {
		return nil
	}
	if err := p.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	return nil
}

func (p *localProcess) Wait() error {
	p.waitOnce.Do(func() { p.waitErr = p.cmd.Wait() })
	return p.waitErr
}

// AgentEnv returns the current environment without CLAUDECODE, which would
// otherwise make a nested `claude -p` refuse to start.
func AgentEnv() []string {
	var env []string
	for _, kv := range os.Environ() {
		if strings.HasPrefix(kv, "CLAUDECODE=") {
			continue
		}
		env = append(env, kv)
	}
	return env
}
