package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/signalnine/skilltune/internal/config"
	"github.com/signalnine/skilltune/internal/evalset"
	"github.com/signalnine/skilltune/internal/logging"
	"github.com/signalnine/skilltune/internal/loop"
	"github.com/signalnine/skilltune/internal/pricing"
	"github.com/signalnine/skilltune/internal/result"
	"github.com/signalnine/skilltune/internal/rewrite"
	"github.com/signalnine/skilltune/internal/runner"
)

func newLoopCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "loop",
		Short: "Rewrite the description until it triggers correctly",
		Long: "Evaluate the description, ask the rewriting model for a better one, and repeat. " +
			"A held-out share of the eval set is scored every iteration but never shown to the rewriter; " +
			"the best description is chosen by that score.",
		Args: cobra.NoArgs,
		RunE: runLoopCmd,
	}
	addAgentFlags(cmd)
	addRewriterFlags(cmd)
	f := cmd.Flags()
	f.String("description", "", "starting description instead of the one in SKILL.md")
	f.Int("max-iterations", 5, "iteration budget")
	f.Float64("holdout", 0.4, "share of each label held out for testing (0 disables)")
	f.Int64("seed", 42, "seed for the train/test split")
	f.String("results-dir", "results", "where run directories are created")
	return cmd
}

func addRewriterFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("rewriter-provider", "anthropic", "rewriting model provider (anthropic, openai)")
	f.String("rewriter-model", "", "rewriting model (defaults to --model)")
	f.String("rewriter-base-url", "", "send rewrite requests through this gateway")
	f.Int64("thinking-budget", 10000, "extended thinking tokens for the rewriter (0 disables)")
	f.Int("max-description-chars", rewrite.MaxDescriptionChars, "length that triggers a shortening request")
	f.String("pricing-file", "", "YAML price table for cost estimates")
}

// newImprover builds the rewriter from the rewriter section. logDir may
// be empty.
func newImprover(cfg *config.Config, logDir string, logger *log.Logger) (*rewrite.Improver, error) {
	r := cfg.Rewriter
	modelName := r.Model
	if modelName == "" {
		modelName = cfg.Agent.Model
	}
	model, err := rewrite.NewModel(rewrite.ModelConfig{
		Provider:       r.Provider,
		Model:          modelName,
		BaseURL:        r.BaseURL,
		MaxTokens:      r.MaxTokens,
		ThinkingBudget: r.ThinkingBudget,
	})
	if err != nil {
		return nil, fmt.Errorf("configuring rewriter: %w", err)
	}
	prices, err := pricing.Load(r.PricingFile)
	if err != nil {
		return nil, err
	}
	return &rewrite.Improver{
		Model:     model,
		MaxChars:  r.MaxDescriptionChars,
		LogDir:    logDir,
		Pricing:   prices,
		Provider:  r.Provider,
		ModelName: modelName,
		Logger:    logger,
	}, nil
}

func runLoopCmd(cmd *cobra.Command, args []string) error {
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
	train, test, err := evalset.Split(items, cfg.Loop.Holdout, cfg.Loop.Seed)
	if err != nil {
		return err
	}
	agent, err := agentOpts(cfg)
	if err != nil {
		return err
	}

	logger := logging.New("loop")
	trainPos, trainNeg := evalset.Counts(train)
	testPos, testNeg := evalset.Counts(test)
	logger.Info("split",
		"train", len(train), "train_pos", trainPos, "train_neg", trainNeg,
		"test", len(test), "test_pos", testPos, "test_neg", testNeg)

	runDir, err := result.CreateRunDir(cfg.Results.Dir)
	if err != nil {
		return err
	}
	logger.Info("run directory", "path", runDir)

	improver, err := newImprover(cfg, result.LogDir(runDir), logging.New("rewrite"))
	if err != nil {
		return err
	}
	evaluator := &runner.Evaluator{Base: runner.EvalOpts{
		Agent:        agent,
		SkillName:    sk.Name,
		RunsPerQuery: cfg.Eval.RunsPerQuery,
		Workers:      cfg.Eval.Workers,
		Threshold:    cfg.Eval.TriggerThreshold,
		Logger:       logging.New("eval"),
	}}

	start, _ := cmd.Flags().GetString("description")
	progressPath := filepath.Join(runDir, "progress.json")
	res, err := loop.Run(cmd.Context(), &loop.Opts{
		Train:               train,
		Test:                test,
		SkillName:           sk.Name,
		SkillContent:        sk.Content,
		OriginalDescription: sk.Description,
		StartDescription:    start,
		MaxIterations:       cfg.Loop.MaxIterations,
		Holdout:             cfg.Loop.Holdout,
		Evaluator:           evaluator,
		Rewriter:            improver,
		Progress: func(p *result.LoopProgress) {
			if err := result.WriteJSON(progressPath, p); err != nil {
				logger.Warn("could not write progress", "err", err)
			}
		},
		Logger: logger,
	})
	if err != nil {
		return err
	}

	if err := result.WriteJSON(filepath.Join(runDir, "results.json"), res); err != nil {
		logger.Warn("could not write results", "err", err)
	}
	logger.Info("finished",
		"exit_reason", res.ExitReason, "iterations", res.IterationsRun,
		"best_iteration", res.BestIteration, "best_score", res.BestScore)
	return printJSON(cmd.OutOrStdout(), res)
}
