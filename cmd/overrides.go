package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/signalnine/skilltune/internal/config"
)

const envPrefix = "SKILLTUNE"

// binding copies one flag (or its SKILLTUNE_* variable) into the config.
type binding struct {
	flag  string
	apply func(v *viper.Viper, cfg *config.Config)
}

var bindings = []binding{
	{"skill-path", func(v *viper.Viper, c *config.Config) { c.SkillPath = v.GetString("skill-path") }},
	{"eval-set", func(v *viper.Viper, c *config.Config) { c.EvalSet = v.GetString("eval-set") }},
	{"model", func(v *viper.Viper, c *config.Config) { c.Agent.Model = v.GetString("model") }},
	{"agent-command", func(v *viper.Viper, c *config.Config) { c.Agent.Command = v.GetString("agent-command") }},
	{"launcher", func(v *viper.Viper, c *config.Config) { c.Agent.Launcher = v.GetString("launcher") }},
	{"image", func(v *viper.Viper, c *config.Config) { c.Agent.Image = v.GetString("image") }},
	{"project-root", func(v *viper.Viper, c *config.Config) { c.Agent.ProjectRoot = v.GetString("project-root") }},
	{"lenient", func(v *viper.Viper, c *config.Config) { c.Agent.LenientDetection = v.GetBool("lenient") }},
	{"workers", func(v *viper.Viper, c *config.Config) { c.Eval.Workers = v.GetInt("workers") }},
	{"timeout", func(v *viper.Viper, c *config.Config) { c.Eval.TimeoutSeconds = v.GetInt("timeout") }},
	{"runs-per-query", func(v *viper.Viper, c *config.Config) { c.Eval.RunsPerQuery = v.GetInt("runs-per-query") }},
	{"trigger-threshold", func(v *viper.Viper, c *config.Config) { c.Eval.TriggerThreshold = v.GetFloat64("trigger-threshold") }},
	{"max-iterations", func(v *viper.Viper, c *config.Config) { c.Loop.MaxIterations = v.GetInt("max-iterations") }},
	{"holdout", func(v *viper.Viper, c *config.Config) { c.Loop.Holdout = v.GetFloat64("holdout") }},
	{"seed", func(v *viper.Viper, c *config.Config) { c.Loop.Seed = v.GetInt64("seed") }},
	{"rewriter-provider", func(v *viper.Viper, c *config.Config) { c.Rewriter.Provider = v.GetString("rewriter-provider") }},
	{"rewriter-model", func(v *viper.Viper, c *config.Config) { c.Rewriter.Model = v.GetString("rewriter-model") }},
	{"rewriter-base-url", func(v *viper.Viper, c *config.Config) { c.Rewriter.BaseURL = v.GetString("rewriter-base-url") }},
	{"thinking-budget", func(v *viper.Viper, c *config.Config) { c.Rewriter.ThinkingBudget = v.GetInt64("thinking-budget") }},
	{"max-description-chars", func(v *viper.Viper, c *config.Config) {
		c.Rewriter.MaxDescriptionChars = v.GetInt("max-description-chars")
	}},
	{"pricing-file", func(v *viper.Viper, c *config.Config) { c.Rewriter.PricingFile = v.GetString("pricing-file") }},
	{"results-dir", func(v *viper.Viper, c *config.Config) { c.Results.Dir = v.GetString("results-dir") }},
	{"env-file", func(v *viper.Viper, c *config.Config) { c.Secrets.EnvFile = v.GetString("env-file") }},
	{"log-level", func(v *viper.Viper, c *config.Config) { c.Log.Level = v.GetString("log-level") }},
	{"log-file", func(v *viper.Viper, c *config.Config) { c.Log.File = v.GetString("log-file") }},
	{"verbose", func(v *viper.Viper, c *config.Config) {
		if v.GetBool("verbose") {
			c.Log.Level = "debug"
		}
	}},
}

// applyOverrides layers the command's flags and SKILLTUNE_* variables on
// top of cfg. Only flags the user set and variables present in the
// environment win over the file; flag defaults never do.
func applyOverrides(cmd *cobra.Command, cfg *config.Config) error {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return fmt.Errorf("binding flags: %w", err)
	}

	for _, b := range bindings {
		f := cmd.Flags().Lookup(b.flag)
		if f == nil {
			continue
		}
		if f.Changed || envSet(b.flag) {
			b.apply(v, cfg)
		}
	}
	return nil
}

func envName(flag string) string {
	return envPrefix + "_" + strings.ToUpper(strings.ReplaceAll(flag, "-", "_"))
}

func envSet(flag string) bool {
	_, ok := os.LookupEnv(envName(flag))
	return ok
}
