package cmd

import (
	"github.com/spf13/cobra"

	"github.com/signalnine/skilltune/internal/evalset"
	"github.com/signalnine/skilltune/internal/logging"
	"github.com/signalnine/skilltune/internal/result"
	"github.com/signalnine/skilltune/internal/runner"
)

func newEvalCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "eval",
		Short: "Measure how often a description triggers the skill",
		Args:  cobra.NoArgs,
		RunE:  runEvalCmd,
	}
	addAgentFlags(cmd)
	cmd.Flags().String("description", "", "description to test instead of the one in SKILL.md")
	return cmd
}

func runEvalCmd(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	sk, err := loadSkill(cfg)
	if err != nil {
		return err
	}
	if err := requireEvalSet(cfg); err != nil {
		return err
	}
	items, err := evalset.Load(cfg.EvalSet)
	if err != nil {
		return err
	}
	agent, err := agentOpts(cfg)
	if err != nil {
		return err
	}

	description := sk.Description
	if d, _ := cmd.Flags().GetString("description"); d != "" {
		description = d
	}

	logger := logging.New("eval")
	logger.Info("evaluating", "skill", sk.Name, "queries", len(items), "runs_per_query", cfg.Eval.RunsPerQuery)
	out, err := runner.RunEval(cmd.Context(), &runner.EvalOpts{
		Agent:        agent,
		Items:        items,
		SkillName:    sk.Name,
		Description:  description,
		RunsPerQuery: cfg.Eval.RunsPerQuery,
		Workers:      cfg.Eval.Workers,
		Threshold:    cfg.Eval.TriggerThreshold,
		Logger:       logger,
	})
	if err != nil {
		return err
	}

	c := result.ComputeConfusion(out.Results)
	logger.Info("done",
		"passed", out.Summary.Passed, "total", out.Summary.Total,
		"precision", c.Precision, "recall", c.Recall, "accuracy", c.Accuracy)
	return printJSON(cmd.OutOrStdout(), out)
}
