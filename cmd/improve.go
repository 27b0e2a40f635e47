package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/signalnine/skilltune/internal/logging"
	"github.com/signalnine/skilltune/internal/result"
	"github.com/signalnine/skilltune/internal/rewrite"
)

// improveOutput is what `improve` prints: the new description and the
// history extended with the attempt it was derived from.
type improveOutput struct {
	Description string                    `json:"description"`
	History     []result.BlindedIteration `json:"history"`
}

func newImproveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "improve",
		Short: "Propose one new description from saved eval results",
		Args:  cobra.NoArgs,
		RunE:  runImproveCmd,
	}
	addRewriterFlags(cmd)
	f := cmd.Flags()
	f.String("skill-path", "", "skill directory containing SKILL.md")
	f.String("model", "", "model name, used for the rewriter when --rewriter-model is unset")
	f.String("eval-results", "", "eval output JSON produced by `skilltune eval`")
	f.String("history", "", "JSON list of previous attempts")
	f.String("log-dir", "", "directory for the rewrite transcript")
	f.Bool("verbose", false, "log progress at debug level")
	cmd.MarkFlagRequired("eval-results")
	return cmd
}

func runImproveCmd(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	sk, err := loadSkill(cfg)
	if err != nil {
		return err
	}

	resultsPath, _ := cmd.Flags().GetString("eval-results")
	var evalOut result.EvalOutput
	if err := result.ReadJSON(resultsPath, &evalOut); err != nil {
		return err
	}
	var history []result.BlindedIteration
	if historyPath, _ := cmd.Flags().GetString("history"); historyPath != "" {
		if err := result.ReadJSON(historyPath, &history); err != nil {
			return err
		}
	}

	logDir, _ := cmd.Flags().GetString("log-dir")
	improver, err := newImprover(cfg, logDir, logging.New("rewrite"))
	if err != nil {
		return err
	}

	current := evalOut.Description
	if current == "" {
		current = sk.Description
	}
	iteration := len(history) + 1
	desc, _, err := improver.Improve(cmd.Context(), &rewrite.Request{
		SkillName:          sk.Name,
		SkillContent:       sk.Content,
		CurrentDescription: current,
		Results:            evalOut.Results,
		Summary:            evalOut.Summary,
		History:            history,
		Iteration:          iteration,
	})
	if err != nil {
		return fmt.Errorf("improving description: %w", err)
	}

	history = append(history, result.BlindedIteration{
		Iteration:    iteration,
		Description:  current,
		TrainSummary: evalOut.Summary,
		TrainResults: evalOut.Results,
	})
	return printJSON(cmd.OutOrStdout(), improveOutput{Description: desc, History: history})
}
