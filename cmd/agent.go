package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/signalnine/skilltune/internal/config"
	"github.com/signalnine/skilltune/internal/detect"
	"github.com/signalnine/skilltune/internal/docker"
	"github.com/signalnine/skilltune/internal/launch"
	"github.com/signalnine/skilltune/internal/runner"
	"github.com/signalnine/skilltune/internal/skill"
)

// addAgentFlags registers the flags shared by every command that runs
// the agent.
func addAgentFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("skill-path", "", "skill directory containing SKILL.md")
	f.String("eval-set", "", "JSON file of {query, should_trigger} items")
	f.String("model", "", "model passed to the agent")
	f.String("agent-command", runner.DefaultCommand, "agent executable")
	f.String("launcher", config.LauncherLocal, "where the agent runs (local, docker)")
	f.String("image", "", "container image for the docker launcher")
	f.String("project-root", "", "project whose .claude/commands receives the test command")
	f.Bool("lenient", false, "ignore unrelated tool calls while waiting for a decision")
	f.Int("workers", 10, "concurrent agent invocations")
	f.Int("timeout", 30, "seconds before an invocation counts as not triggered")
	f.Int("runs-per-query", 3, "repetitions of each query")
	f.Float64("trigger-threshold", runner.DefaultTriggerThreshold, "trigger rate that counts as triggered")
	f.Bool("verbose", false, "log progress at debug level")
}

// agentOpts translates the agent and eval sections into runner options.
func agentOpts(cfg *config.Config) (runner.AgentOpts, error) {
	root := cfg.Agent.ProjectRoot
	if root == "" {
		wd, err := os.Getwd()
		if err != nil {
			return runner.AgentOpts{}, fmt.Errorf("resolving working dir: %w", err)
		}
		root = runner.FindProjectRoot(wd)
	}

	var l launch.Launcher = launch.Local{}
	if cfg.Agent.Launcher == config.LauncherDocker {
		l = &docker.Launcher{
			Image:       cfg.Agent.Image,
			Env:         cfg.Agent.Env,
			CPULimit:    cfg.Agent.CPULimit,
			MemoryLimit: cfg.Agent.MemoryLimit,
		}
	}

	return runner.AgentOpts{
		Command:      cfg.Agent.Command,
		Model:        cfg.Agent.Model,
		ProjectRoot:  root,
		Launcher:     l,
		Timeout:      cfg.Eval.Timeout(),
		PollInterval: cfg.Agent.PollInterval(),
		Detect:       detect.Options{Lenient: cfg.Agent.LenientDetection},
	}, nil
}

func loadSkill(cfg *config.Config) (*skill.Skill, error) {
	if cfg.SkillPath == "" {
		return nil, fmt.Errorf("skill path is required (--skill-path or skill_path)")
	}
	return skill.Parse(cfg.SkillPath)
}

func requireEvalSet(cfg *config.Config) error {
	if cfg.EvalSet == "" {
		return fmt.Errorf("eval set is required (--eval-set or eval_set)")
	}
	return nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
