package cmd

import (
	"github.com/spf13/cobra"

	"github.com/signalnine/skilltune/internal/evalset"
)

type splitOutput struct {
	SkillName   string         `json:"skill_name,omitempty"`
	Description string         `json:"description,omitempty"`
	Holdout     float64        `json:"holdout"`
	Seed        int64          `json:"seed"`
	Train       []evalset.Item `json:"train"`
	Test        []evalset.Item `json:"test"`
}

func newSplitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "split",
		Short: "Show the stratified train/test split of an eval set",
		Args:  cobra.NoArgs,
		RunE:  runSplitCmd,
	}
	f := cmd.Flags()
	f.String("skill-path", "", "skill directory; adds its name and description to the output")
	f.String("eval-set", "", "JSON file of {query, should_trigger} items")
	f.Float64("holdout", 0.4, "share of each label held out for testing")
	f.Int64("seed", 42, "seed for the split")
	return cmd
}

func runSplitCmd(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
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
	train, test, err := evalset.Split(items, cfg.Loop.Holdout, cfg.Loop.Seed)
	if err != nil {
		return err
	}

	out := splitOutput{
		Holdout: cfg.Loop.Holdout,
		Seed:    cfg.Loop.Seed,
		Train:   train,
		Test:    test,
	}
	if out.Test == nil {
		out.Test = []evalset.Item{}
	}
	if cfg.SkillPath != "" {
		sk, err := loadSkill(cfg)
		if err != nil {
			return err
		}
		out.SkillName = sk.Name
		out.Description = sk.Description
	}
	return printJSON(cmd.OutOrStdout(), out)
}
