package runner

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/signalnine/skilltune/internal/detect"
	"github.com/signalnine/skilltune/internal/launch"
	"github.com/signalnine/skilltune/internal/logging"
	"github.com/signalnine/skilltune/internal/skill"
)

const (
	DefaultCommand      = "claude"
	DefaultPollInterval = time.Second
)

// AgentOpts is the launch context shared by every invocation of a batch.
type AgentOpts struct {
	// Command is the agent executable, optionally with leading arguments.
	Command      string
	Model        string
	ProjectRoot  string
	Launcher     launch.Launcher
	Timeout      time.Duration
	// PollInterval paces the debug trace of the detector state. The
	// timeout does not depend on it.
	PollInterval time.Duration
	Detect       detect.Options
	// NewID overrides invocation ID generation in tests.
	NewID func() string
}

type QueryOpts struct {
	AgentOpts
	Query       string
	SkillName   string
	Description string
	Logger      *log.Logger
}

// NewInvocationID returns the short random ID that makes this
// invocation's command name unique among concurrent runs.
func NewInvocationID() string {
	id := uuid.New()
	return strings.ReplaceAll(id.String(), "-", "")[:8]
}

// BuildArgv assembles the agent command line.
func BuildArgv(command, query, model string) []string {
	if strings.TrimSpace(command) == "" {
		command = DefaultCommand
	}
	argv := strings.Fields(command)
	argv = append(argv,
		"-p", query,
		"--output-format", "stream-json",
		"--verbose",
		"--include-partial-messages",
	)
	if model != "" {
		argv = append(argv, "--model", model)
	}
	return argv
}

// FindProjectRoot walks up from start to the first directory containing
// .claude/, which is where the agent looks for project commands. It
// returns start when no such directory exists.
func FindProjectRoot(start string) string {
	abs, err := filepath.Abs(start)
	if err != nil {
		return start
	}
	for dir := abs; ; {
		if fi, err := os.Stat(filepath.Join(dir, ".claude")); err == nil && fi.IsDir() {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return abs
		}
		dir = parent
	}
}

// RunQuery runs one invocation and reports whether the agent selected
// this invocation's command. A timeout is a false outcome, not an error.
// The command file is removed and the process reaped on every return path.
func RunQuery(ctx context.Context, opts *QueryOpts) (triggered bool, err error) {
	logger := opts.Logger
	if logger == nil {
		logger = logging.New("runner")
	}
	newID := opts.NewID
	if newID == nil {
		newID = NewInvocationID
	}
	name := skill.CommandName(opts.SkillName, newID())

	art, err := skill.WriteCommand(opts.ProjectRoot, name, opts.SkillName, opts.Description)
	if err != nil {
		return false, err
	}
	defer func() {
		if rmErr := art.Remove(); rmErr != nil {
			logger.Warn("command file not removed", "path", art.Path, "err", rmErr)
		}
	}()

	launcher := opts.Launcher
	if launcher == nil {
		launcher = launch.Local{}
	}
	proc, err := launcher.Launch(ctx, launch.Spec{
		Argv: BuildArgv(opts.Command, opts.Query, opts.Model),
		Dir:  opts.ProjectRoot,
		Env:  launch.AgentEnv(),
	})
	if err != nil {
		return false, fmt.Errorf("launching agent: %w", err)
	}
	done := make(chan struct{})
	defer func() {
		close(done)
		if killErr := proc.Kill(); killErr != nil {
			logger.Debug("kill failed", "command", name, "err", killErr)
		}
		proc.Wait()
	}()

	poll := opts.PollInterval
	if poll <= 0 {
		poll = DefaultPollInterval
	}
	ticker := time.NewTicker(poll)
	defer ticker.Stop()
	// A nil channel never fires, so a zero Timeout waits for a decision.
	var expired <-chan time.Time
	if opts.Timeout > 0 {
		timer := time.NewTimer(opts.Timeout)
		defer timer.Stop()
		expired = timer.C
	}

	det := detect.New(name, opts.Detect)
	lines, readErr := streamLines(proc.Stdout(), done)
	for {
		select {
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-readErr:
					return false, fmt.Errorf("reading agent output: %w", err)
				default:
				}
				return det.Finish(), nil
			}
			if det.Feed(line) {
				logger.Debug("decided", "command", name, "triggered", det.Triggered())
				return det.Triggered(), nil
			}
		case <-ticker.C:
			logger.Debug("waiting", "command", name, "state", det.State())
		case <-expired:
			logger.Debug("timed out", "command", name, "state", det.State(), "timeout", opts.Timeout)
			return false, nil
		case <-ctx.Done():
			return false, ctx.Err()
		}
	}
}

// streamLines forwards r line by line until EOF, a read error or done.
// A non-EOF error is delivered on the second channel before the first
// closes.
func streamLines(r io.Reader, done <-chan struct{}) (<-chan []byte, <-chan error) {
	lines := make(chan []byte)
	errc := make(chan error, 1)
	go func() {
		defer close(lines)
		br := bufio.NewReader(r)
		for {
			line, err := br.ReadBytes('\n')
			if len(line) > 0 {
				select {
				case lines <- line:
				case <-done:
					return
				}
			}
			if err != nil {
				if !errors.Is(err, io.EOF) {
					errc <- err
				}
				return
			}
		}
	}()
	return lines, errc
}
